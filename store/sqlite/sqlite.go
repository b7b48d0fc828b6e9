/*
Package sqlite provides the SQLite-backed implementation of engine.Store.

PURPOSE:
  Persists the commission program's records: the agent hierarchy, sales,
  commission lines, per-sale hierarchy snapshots, bonuses, and clawback
  events. The same patterns apply to PostgreSQL - only minor SQL dialect
  differences.

MUTATION DISCIPLINE:
  Commission lines are write-once apart from the reversed flag. Sales
  flip is_cancelled through a guarded UPDATE so concurrent cancellations
  have exactly one winner. Bonus recalculation is delete-then-insert for
  one (type, period) key inside the caller's transaction.

KEY TABLES:
  agents:              hierarchy nodes (parent_id links, 4 levels)
  sales:               policy sales with one-way cancellation
  commission_lines:    FYC/Override entries, uuid keyed
  hierarchy_snapshots: seller + upline frozen at sale time
  bonuses:             unique per (agent_id, period, bonus_type)
  clawback_events:     unique per sale

CONCURRENCY:
  sync.RWMutex around the connection plus WAL mode, as in any small
  single-writer SQLite service. WithTx serializes mutating operations.

USAGE:
  store, err := sqlite.New("./data/commission.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - engine/store.go: interface definitions
  - engine/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/commission-engine/engine"
)

// Store implements engine.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Agent hierarchy (forest, parent one level above child)
	CREATE TABLE IF NOT EXISTS agents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		level INTEGER NOT NULL,
		parent_id INTEGER REFERENCES agents(id),
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_agents_parent ON agents(parent_id);
	CREATE INDEX IF NOT EXISTS idx_agents_level ON agents(level);

	-- Policy sales
	CREATE TABLE IF NOT EXISTS sales (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		policy_number TEXT NOT NULL UNIQUE,
		policy_value TEXT NOT NULL,
		agent_id INTEGER NOT NULL REFERENCES agents(id),
		sale_date TEXT NOT NULL,
		is_cancelled INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Volume aggregation hot path: agent + date range over live sales
	CREATE INDEX IF NOT EXISTS idx_sales_agent_date ON sales(agent_id, sale_date);
	CREATE INDEX IF NOT EXISTS idx_sales_cancelled ON sales(is_cancelled);

	-- Commission lines (write-once apart from reversed)
	CREATE TABLE IF NOT EXISTS commission_lines (
		id TEXT PRIMARY KEY,
		sale_id INTEGER NOT NULL REFERENCES sales(id),
		agent_id INTEGER NOT NULL REFERENCES agents(id),
		commission_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		rate_applied TEXT NOT NULL,
		level_distance INTEGER NOT NULL,
		reversed INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_commission_lines_sale ON commission_lines(sale_id);
	CREATE INDEX IF NOT EXISTS idx_commission_lines_agent ON commission_lines(agent_id);

	-- Upline frozen at sale time; position 0 is the seller
	CREATE TABLE IF NOT EXISTS hierarchy_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sale_id INTEGER NOT NULL REFERENCES sales(id),
		agent_id INTEGER NOT NULL,
		chain_position INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(sale_id, chain_position)
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_sale ON hierarchy_snapshots(sale_id);

	-- Bonuses, one row per agent per period per type
	CREATE TABLE IF NOT EXISTS bonuses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id INTEGER NOT NULL REFERENCES agents(id),
		period TEXT NOT NULL,
		bonus_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(agent_id, period, bonus_type)
	);

	CREATE INDEX IF NOT EXISTS idx_bonuses_type_period ON bonuses(bonus_type, period);

	-- One clawback per sale, ever
	CREATE TABLE IF NOT EXISTS clawback_events (
		id TEXT PRIMARY KEY,
		sale_id INTEGER NOT NULL UNIQUE REFERENCES sales(id),
		reversed_commission_total TEXT NOT NULL,
		reversed_bonus_total TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so the query helpers can
// run inside or outside an explicit transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction. Rollback on error.
func (s *Store) WithTx(ctx context.Context, fn func(store engine.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", engine.ErrStoreFailure, err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", engine.ErrStoreFailure, err)
	}
	return nil
}

// txStore is the in-transaction view. The parent's mutex is already held.
type txStore struct {
	tx *sql.Tx
}

// =============================================================================
// AGENTS
// =============================================================================

func insertAgent(ctx context.Context, db dbtx, a engine.Agent) (engine.Agent, error) {
	res, err := db.ExecContext(ctx,
		`INSERT INTO agents (name, level, parent_id, created_at) VALUES (?, ?, ?, ?)`,
		a.Name, int(a.Level), agentIDPtr(a.ParentID), formatTime(a.CreatedAt),
	)
	if err != nil {
		return engine.Agent{}, fmt.Errorf("failed to insert agent: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return engine.Agent{}, fmt.Errorf("failed to read agent id: %w", err)
	}
	a.ID = engine.AgentID(id)
	return a, nil
}

const agentColumns = `id, name, level, parent_id, created_at`

func getAgent(ctx context.Context, db dbtx, id engine.AgentID) (*engine.Agent, error) {
	row := db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ?`, id)
	a, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func listAgents(ctx context.Context, db dbtx) ([]engine.Agent, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query agents: %w", err)
	}
	defer rows.Close()

	var agents []engine.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func updateAgent(ctx context.Context, db dbtx, a engine.Agent) error {
	res, err := db.ExecContext(ctx,
		`UPDATE agents SET name = ?, level = ?, parent_id = ? WHERE id = ?`,
		a.Name, int(a.Level), agentIDPtr(a.ParentID), a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update agent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.ErrAgentNotFound
	}
	return nil
}

func deleteAgent(ctx context.Context, db dbtx, id engine.AgentID) error {
	_, err := db.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete agent: %w", err)
	}
	return nil
}

func countAgentDependents(ctx context.Context, db dbtx, id engine.AgentID) (engine.DependentCounts, error) {
	var deps engine.DependentCounts
	row := db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM sales WHERE agent_id = ?),
			(SELECT COUNT(*) FROM commission_lines WHERE agent_id = ?),
			(SELECT COUNT(*) FROM agents WHERE parent_id = ?)`,
		id, id, id,
	)
	if err := row.Scan(&deps.Sales, &deps.CommissionLines, &deps.Children); err != nil {
		return deps, fmt.Errorf("failed to count agent dependents: %w", err)
	}
	return deps, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanAgent(row scannable) (engine.Agent, error) {
	var (
		a         engine.Agent
		level     int
		parentID  sql.NullInt64
		createdAt string
	)
	if err := row.Scan(&a.ID, &a.Name, &level, &parentID, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return a, err
		}
		return a, fmt.Errorf("failed to scan agent: %w", err)
	}
	a.Level = engine.Level(level)
	if parentID.Valid {
		pid := engine.AgentID(parentID.Int64)
		a.ParentID = &pid
	}
	a.CreatedAt = parseTime(createdAt)
	return a, nil
}

// =============================================================================
// SALES
// =============================================================================

func insertSale(ctx context.Context, db dbtx, sale engine.Sale) (engine.Sale, error) {
	res, err := db.ExecContext(ctx,
		`INSERT INTO sales (policy_number, policy_value, agent_id, sale_date, is_cancelled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?)`,
		sale.PolicyNumber, sale.PolicyValue.String(), sale.AgentID,
		formatTime(sale.SaleDate), formatTime(sale.CreatedAt), formatTime(sale.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return engine.Sale{}, fmt.Errorf("%w: %s", engine.ErrDuplicatePolicyNumber, sale.PolicyNumber)
		}
		return engine.Sale{}, fmt.Errorf("failed to insert sale: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return engine.Sale{}, fmt.Errorf("failed to read sale id: %w", err)
	}
	sale.ID = engine.SaleID(id)
	sale.UpdatedAt = sale.CreatedAt
	return sale, nil
}

const saleColumns = `id, policy_number, policy_value, agent_id, sale_date, is_cancelled, created_at, updated_at`

func getSale(ctx context.Context, db dbtx, id engine.SaleID) (*engine.Sale, error) {
	row := db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = ?`, id)
	sale, err := scanSale(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func getSaleByPolicyNumber(ctx context.Context, db dbtx, policyNumber string) (*engine.Sale, error) {
	row := db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE policy_number = ?`, policyNumber)
	sale, err := scanSale(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func listSales(ctx context.Context, db dbtx) ([]engine.Sale, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+saleColumns+` FROM sales ORDER BY sale_date DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sales: %w", err)
	}
	defer rows.Close()

	var sales []engine.Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

func markSaleCancelled(ctx context.Context, db dbtx, id engine.SaleID) (bool, error) {
	// Guarded flip: only one caller ever sees a row change.
	res, err := db.ExecContext(ctx,
		`UPDATE sales SET is_cancelled = 1, updated_at = ? WHERE id = ? AND is_cancelled = 0`,
		formatTime(time.Now().UTC()), id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to cancel sale: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read cancel result: %w", err)
	}
	return n > 0, nil
}

func salesVolume(ctx context.Context, db dbtx, agentIDs []engine.AgentID, from, to time.Time) (decimal.Decimal, error) {
	if len(agentIDs) == 0 {
		return decimal.Zero, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(agentIDs)), ",")
	args := make([]any, 0, len(agentIDs)+2)
	for _, id := range agentIDs {
		args = append(args, id)
	}
	args = append(args, formatTime(from), formatTime(to))

	rows, err := db.QueryContext(ctx, `
		SELECT policy_value FROM sales
		WHERE agent_id IN (`+placeholders+`)
		  AND sale_date >= ? AND sale_date < ?
		  AND is_cancelled = 0`,
		args...,
	)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query sales volume: %w", err)
	}
	defer rows.Close()

	// Values are stored as decimal strings, so the sum happens in Go,
	// not in SQL float arithmetic.
	total := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan policy value: %w", err)
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("corrupt policy value %q: %w", raw, err)
		}
		total = total.Add(v)
	}
	return total, rows.Err()
}

func scanSale(row scannable) (engine.Sale, error) {
	var (
		sale        engine.Sale
		policyValue string
		saleDate    string
		cancelled   int
		createdAt   string
		updatedAt   string
	)
	err := row.Scan(&sale.ID, &sale.PolicyNumber, &policyValue, &sale.AgentID,
		&saleDate, &cancelled, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return sale, err
		}
		return sale, fmt.Errorf("failed to scan sale: %w", err)
	}
	sale.PolicyValue = engine.MustDecimal(policyValue)
	sale.SaleDate = parseTime(saleDate)
	sale.IsCancelled = cancelled != 0
	sale.CreatedAt = parseTime(createdAt)
	sale.UpdatedAt = parseTime(updatedAt)
	return sale, nil
}

// =============================================================================
// COMMISSION LINES
// =============================================================================

func insertCommissionLines(ctx context.Context, db dbtx, lines []engine.CommissionLine) error {
	for _, l := range lines {
		_, err := db.ExecContext(ctx,
			`INSERT INTO commission_lines
			 (id, sale_id, agent_id, commission_type, amount, rate_applied, level_distance, reversed, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`,
			l.ID, l.SaleID, l.AgentID, string(l.Type),
			l.Amount.String(), l.RateApplied.String(), l.LevelDistance, formatTime(l.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert commission line: %w", err)
		}
	}
	return nil
}

func commissionLinesBySale(ctx context.Context, db dbtx, saleID engine.SaleID) ([]engine.CommissionLine, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, sale_id, agent_id, commission_type, amount, rate_applied, level_distance, reversed, created_at
		FROM commission_lines WHERE sale_id = ? ORDER BY level_distance ASC`,
		saleID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query commission lines: %w", err)
	}
	defer rows.Close()

	var lines []engine.CommissionLine
	for rows.Next() {
		var (
			l         engine.CommissionLine
			lineType  string
			amount    string
			rate      string
			reversed  int
			createdAt string
		)
		if err := rows.Scan(&l.ID, &l.SaleID, &l.AgentID, &lineType, &amount, &rate, &l.LevelDistance, &reversed, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan commission line: %w", err)
		}
		l.Type = engine.CommissionType(lineType)
		l.Amount = engine.MustDecimal(amount)
		l.RateApplied = engine.MustDecimal(rate)
		l.Reversed = reversed != 0
		l.CreatedAt = parseTime(createdAt)
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func markCommissionsReversed(ctx context.Context, db dbtx, saleID engine.SaleID) error {
	_, err := db.ExecContext(ctx,
		`UPDATE commission_lines SET reversed = 1 WHERE sale_id = ? AND reversed = 0`, saleID)
	if err != nil {
		return fmt.Errorf("failed to reverse commission lines: %w", err)
	}
	return nil
}

// =============================================================================
// HIERARCHY SNAPSHOTS
// =============================================================================

func insertSnapshots(ctx context.Context, db dbtx, entries []engine.SnapshotEntry) error {
	now := formatTime(time.Now().UTC())
	for _, e := range entries {
		_, err := db.ExecContext(ctx,
			`INSERT INTO hierarchy_snapshots (sale_id, agent_id, chain_position, created_at) VALUES (?, ?, ?, ?)`,
			e.SaleID, e.AgentID, e.Position, now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert hierarchy snapshot: %w", err)
		}
	}
	return nil
}

func snapshotAgentIDs(ctx context.Context, db dbtx, saleID engine.SaleID) ([]engine.AgentID, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT agent_id FROM hierarchy_snapshots WHERE sale_id = ? ORDER BY chain_position ASC`, saleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query hierarchy snapshot: %w", err)
	}
	defer rows.Close()

	var ids []engine.AgentID
	for rows.Next() {
		var id engine.AgentID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot agent: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// =============================================================================
// BONUSES
// =============================================================================

const bonusColumns = `id, agent_id, period, bonus_type, amount, created_at, updated_at`

func getBonus(ctx context.Context, db dbtx, agentID engine.AgentID, period string, bonusType engine.BonusType) (*engine.Bonus, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+bonusColumns+` FROM bonuses WHERE agent_id = ? AND period = ? AND bonus_type = ?`,
		agentID, period, string(bonusType),
	)
	b, err := scanBonus(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func listBonuses(ctx context.Context, db dbtx) ([]engine.Bonus, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+bonusColumns+` FROM bonuses ORDER BY period DESC, agent_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query bonuses: %w", err)
	}
	defer rows.Close()

	var bonuses []engine.Bonus
	for rows.Next() {
		b, err := scanBonus(rows)
		if err != nil {
			return nil, err
		}
		bonuses = append(bonuses, b)
	}
	return bonuses, rows.Err()
}

func insertBonus(ctx context.Context, db dbtx, b engine.Bonus) (engine.Bonus, error) {
	res, err := db.ExecContext(ctx,
		`INSERT INTO bonuses (agent_id, period, bonus_type, amount, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		b.AgentID, b.Period, string(b.Type), b.Amount.String(),
		formatTime(b.CreatedAt), formatTime(b.UpdatedAt),
	)
	if err != nil {
		return engine.Bonus{}, fmt.Errorf("failed to insert bonus: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return engine.Bonus{}, fmt.Errorf("failed to read bonus id: %w", err)
	}
	b.ID = engine.BonusID(id)
	return b, nil
}

func updateBonusAmount(ctx context.Context, db dbtx, id engine.BonusID, amount decimal.Decimal) error {
	_, err := db.ExecContext(ctx,
		`UPDATE bonuses SET amount = ?, updated_at = ? WHERE id = ?`,
		amount.String(), formatTime(time.Now().UTC()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update bonus: %w", err)
	}
	return nil
}

func deleteBonus(ctx context.Context, db dbtx, id engine.BonusID) error {
	_, err := db.ExecContext(ctx, `DELETE FROM bonuses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete bonus: %w", err)
	}
	return nil
}

func deleteBonusesForPeriod(ctx context.Context, db dbtx, bonusType engine.BonusType, period string) (int, error) {
	res, err := db.ExecContext(ctx,
		`DELETE FROM bonuses WHERE bonus_type = ? AND period = ?`, string(bonusType), period)
	if err != nil {
		return 0, fmt.Errorf("failed to clear bonuses for period: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read cleared bonus count: %w", err)
	}
	return int(n), nil
}

func scanBonus(row scannable) (engine.Bonus, error) {
	var (
		b         engine.Bonus
		bonusType string
		amount    string
		createdAt string
		updatedAt string
	)
	err := row.Scan(&b.ID, &b.AgentID, &b.Period, &bonusType, &amount, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return b, err
		}
		return b, fmt.Errorf("failed to scan bonus: %w", err)
	}
	b.Type = engine.BonusType(bonusType)
	b.Amount = engine.MustDecimal(amount)
	b.CreatedAt = parseTime(createdAt)
	b.UpdatedAt = parseTime(updatedAt)
	return b, nil
}

// =============================================================================
// CLAWBACK EVENTS
// =============================================================================

func insertClawbackEvent(ctx context.Context, db dbtx, ev engine.ClawbackEvent) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO clawback_events (id, sale_id, reversed_commission_total, reversed_bonus_total, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		ev.ID, ev.SaleID, ev.ReversedCommissionTotal.String(), ev.ReversedBonusTotal.String(),
		formatTime(ev.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("sale %d: %w", ev.SaleID, engine.ErrAlreadyCancelled)
		}
		return fmt.Errorf("failed to insert clawback event: %w", err)
	}
	return nil
}

func listClawbackEvents(ctx context.Context, db dbtx) ([]engine.ClawbackEvent, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, sale_id, reversed_commission_total, reversed_bonus_total, created_at
		FROM clawback_events ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query clawback events: %w", err)
	}
	defer rows.Close()

	var events []engine.ClawbackEvent
	for rows.Next() {
		var (
			ev              engine.ClawbackEvent
			commissionTotal string
			bonusTotal      string
			createdAt       string
		)
		if err := rows.Scan(&ev.ID, &ev.SaleID, &commissionTotal, &bonusTotal, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan clawback event: %w", err)
		}
		ev.ReversedCommissionTotal = engine.MustDecimal(commissionTotal)
		ev.ReversedBonusTotal = engine.MustDecimal(bonusTotal)
		ev.CreatedAt = parseTime(createdAt)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// =============================================================================
// SUMMARY
// =============================================================================

func summaryTotals(ctx context.Context, db dbtx) (engine.Summary, error) {
	sum := engine.Summary{
		TotalSalesValue:      decimal.Zero,
		TotalCommissionsPaid: decimal.Zero,
		TotalBonusesPaid:     decimal.Zero,
		TotalClawbacksValue:  decimal.Zero,
	}

	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM agents`).Scan(&sum.AgentCount); err != nil {
		return sum, fmt.Errorf("failed to count agents: %w", err)
	}

	add := func(query string, into *decimal.Decimal) error {
		rows, err := db.QueryContext(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var raw string
			if err := rows.Scan(&raw); err != nil {
				return err
			}
			*into = into.Add(engine.MustDecimal(raw))
		}
		return rows.Err()
	}

	if err := add(`SELECT policy_value FROM sales WHERE is_cancelled = 0`, &sum.TotalSalesValue); err != nil {
		return sum, fmt.Errorf("failed to sum sales: %w", err)
	}
	if err := add(`SELECT amount FROM commission_lines WHERE reversed = 0`, &sum.TotalCommissionsPaid); err != nil {
		return sum, fmt.Errorf("failed to sum commissions: %w", err)
	}
	if err := add(`SELECT amount FROM bonuses`, &sum.TotalBonusesPaid); err != nil {
		return sum, fmt.Errorf("failed to sum bonuses: %w", err)
	}

	reversed := decimal.Zero
	if err := add(`SELECT reversed_commission_total FROM clawback_events`, &reversed); err != nil {
		return sum, fmt.Errorf("failed to sum clawbacks: %w", err)
	}
	if err := add(`SELECT reversed_bonus_total FROM clawback_events`, &reversed); err != nil {
		return sum, fmt.Errorf("failed to sum clawbacks: %w", err)
	}
	sum.TotalClawbacksValue = reversed.Neg()

	return sum, nil
}

// =============================================================================
// STORE METHODS (mutex-guarded) AND TX VIEW
// =============================================================================

func (s *Store) InsertAgent(ctx context.Context, a engine.Agent) (engine.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertAgent(ctx, s.db, a)
}

func (s *Store) GetAgent(ctx context.Context, id engine.AgentID) (*engine.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAgent(ctx, s.db, id)
}

func (s *Store) ListAgents(ctx context.Context) ([]engine.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listAgents(ctx, s.db)
}

func (s *Store) UpdateAgent(ctx context.Context, a engine.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateAgent(ctx, s.db, a)
}

func (s *Store) DeleteAgent(ctx context.Context, id engine.AgentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteAgent(ctx, s.db, id)
}

func (s *Store) CountAgentDependents(ctx context.Context, id engine.AgentID) (engine.DependentCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return countAgentDependents(ctx, s.db, id)
}

func (s *Store) InsertSale(ctx context.Context, sale engine.Sale) (engine.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertSale(ctx, s.db, sale)
}

func (s *Store) GetSale(ctx context.Context, id engine.SaleID) (*engine.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getSale(ctx, s.db, id)
}

func (s *Store) GetSaleByPolicyNumber(ctx context.Context, policyNumber string) (*engine.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getSaleByPolicyNumber(ctx, s.db, policyNumber)
}

func (s *Store) ListSales(ctx context.Context) ([]engine.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listSales(ctx, s.db)
}

func (s *Store) MarkSaleCancelled(ctx context.Context, id engine.SaleID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return markSaleCancelled(ctx, s.db, id)
}

func (s *Store) SalesVolume(ctx context.Context, agentIDs []engine.AgentID, from, to time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return salesVolume(ctx, s.db, agentIDs, from, to)
}

func (s *Store) InsertCommissionLines(ctx context.Context, lines []engine.CommissionLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertCommissionLines(ctx, s.db, lines)
}

func (s *Store) CommissionLinesBySale(ctx context.Context, saleID engine.SaleID) ([]engine.CommissionLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return commissionLinesBySale(ctx, s.db, saleID)
}

func (s *Store) MarkCommissionsReversed(ctx context.Context, saleID engine.SaleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return markCommissionsReversed(ctx, s.db, saleID)
}

func (s *Store) InsertSnapshots(ctx context.Context, entries []engine.SnapshotEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertSnapshots(ctx, s.db, entries)
}

func (s *Store) SnapshotAgentIDs(ctx context.Context, saleID engine.SaleID) ([]engine.AgentID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotAgentIDs(ctx, s.db, saleID)
}

func (s *Store) GetBonus(ctx context.Context, agentID engine.AgentID, period string, bonusType engine.BonusType) (*engine.Bonus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getBonus(ctx, s.db, agentID, period, bonusType)
}

func (s *Store) ListBonuses(ctx context.Context) ([]engine.Bonus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listBonuses(ctx, s.db)
}

func (s *Store) InsertBonus(ctx context.Context, b engine.Bonus) (engine.Bonus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertBonus(ctx, s.db, b)
}

func (s *Store) UpdateBonusAmount(ctx context.Context, id engine.BonusID, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateBonusAmount(ctx, s.db, id, amount)
}

func (s *Store) DeleteBonus(ctx context.Context, id engine.BonusID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteBonus(ctx, s.db, id)
}

func (s *Store) DeleteBonusesForPeriod(ctx context.Context, bonusType engine.BonusType, period string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteBonusesForPeriod(ctx, s.db, bonusType, period)
}

func (s *Store) InsertClawbackEvent(ctx context.Context, ev engine.ClawbackEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertClawbackEvent(ctx, s.db, ev)
}

func (s *Store) ListClawbackEvents(ctx context.Context) ([]engine.ClawbackEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listClawbackEvents(ctx, s.db)
}

func (s *Store) SummaryTotals(ctx context.Context) (engine.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return summaryTotals(ctx, s.db)
}

func (t *txStore) InsertAgent(ctx context.Context, a engine.Agent) (engine.Agent, error) {
	return insertAgent(ctx, t.tx, a)
}

func (t *txStore) GetAgent(ctx context.Context, id engine.AgentID) (*engine.Agent, error) {
	return getAgent(ctx, t.tx, id)
}

func (t *txStore) ListAgents(ctx context.Context) ([]engine.Agent, error) {
	return listAgents(ctx, t.tx)
}

func (t *txStore) UpdateAgent(ctx context.Context, a engine.Agent) error {
	return updateAgent(ctx, t.tx, a)
}

func (t *txStore) DeleteAgent(ctx context.Context, id engine.AgentID) error {
	return deleteAgent(ctx, t.tx, id)
}

func (t *txStore) CountAgentDependents(ctx context.Context, id engine.AgentID) (engine.DependentCounts, error) {
	return countAgentDependents(ctx, t.tx, id)
}

func (t *txStore) InsertSale(ctx context.Context, sale engine.Sale) (engine.Sale, error) {
	return insertSale(ctx, t.tx, sale)
}

func (t *txStore) GetSale(ctx context.Context, id engine.SaleID) (*engine.Sale, error) {
	return getSale(ctx, t.tx, id)
}

func (t *txStore) GetSaleByPolicyNumber(ctx context.Context, policyNumber string) (*engine.Sale, error) {
	return getSaleByPolicyNumber(ctx, t.tx, policyNumber)
}

func (t *txStore) ListSales(ctx context.Context) ([]engine.Sale, error) {
	return listSales(ctx, t.tx)
}

func (t *txStore) MarkSaleCancelled(ctx context.Context, id engine.SaleID) (bool, error) {
	return markSaleCancelled(ctx, t.tx, id)
}

func (t *txStore) SalesVolume(ctx context.Context, agentIDs []engine.AgentID, from, to time.Time) (decimal.Decimal, error) {
	return salesVolume(ctx, t.tx, agentIDs, from, to)
}

func (t *txStore) InsertCommissionLines(ctx context.Context, lines []engine.CommissionLine) error {
	return insertCommissionLines(ctx, t.tx, lines)
}

func (t *txStore) CommissionLinesBySale(ctx context.Context, saleID engine.SaleID) ([]engine.CommissionLine, error) {
	return commissionLinesBySale(ctx, t.tx, saleID)
}

func (t *txStore) MarkCommissionsReversed(ctx context.Context, saleID engine.SaleID) error {
	return markCommissionsReversed(ctx, t.tx, saleID)
}

func (t *txStore) InsertSnapshots(ctx context.Context, entries []engine.SnapshotEntry) error {
	return insertSnapshots(ctx, t.tx, entries)
}

func (t *txStore) SnapshotAgentIDs(ctx context.Context, saleID engine.SaleID) ([]engine.AgentID, error) {
	return snapshotAgentIDs(ctx, t.tx, saleID)
}

func (t *txStore) GetBonus(ctx context.Context, agentID engine.AgentID, period string, bonusType engine.BonusType) (*engine.Bonus, error) {
	return getBonus(ctx, t.tx, agentID, period, bonusType)
}

func (t *txStore) ListBonuses(ctx context.Context) ([]engine.Bonus, error) {
	return listBonuses(ctx, t.tx)
}

func (t *txStore) InsertBonus(ctx context.Context, b engine.Bonus) (engine.Bonus, error) {
	return insertBonus(ctx, t.tx, b)
}

func (t *txStore) UpdateBonusAmount(ctx context.Context, id engine.BonusID, amount decimal.Decimal) error {
	return updateBonusAmount(ctx, t.tx, id, amount)
}

func (t *txStore) DeleteBonus(ctx context.Context, id engine.BonusID) error {
	return deleteBonus(ctx, t.tx, id)
}

func (t *txStore) DeleteBonusesForPeriod(ctx context.Context, bonusType engine.BonusType, period string) (int, error) {
	return deleteBonusesForPeriod(ctx, t.tx, bonusType, period)
}

func (t *txStore) InsertClawbackEvent(ctx context.Context, ev engine.ClawbackEvent) error {
	return insertClawbackEvent(ctx, t.tx, ev)
}

func (t *txStore) ListClawbackEvents(ctx context.Context) ([]engine.ClawbackEvent, error) {
	return listClawbackEvents(ctx, t.tx)
}

func (t *txStore) SummaryTotals(ctx context.Context) (engine.Summary, error) {
	return summaryTotals(ctx, t.tx)
}

// =============================================================================
// RESET (dev/demo only)
// =============================================================================

// Reset wipes every table. Used by the demo scenario loader, never in
// normal operation.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM clawback_events;
		DELETE FROM bonuses;
		DELETE FROM hierarchy_snapshots;
		DELETE FROM commission_lines;
		DELETE FROM sales;
		DELETE FROM agents;
		DELETE FROM sqlite_sequence;
	`)
	if err != nil {
		return fmt.Errorf("failed to reset database: %w", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// formatTime stores timestamps as RFC3339 UTC. Fixed-width UTC keeps TEXT
// comparison in SQL aligned with chronological order, which the volume and
// period queries rely on when filtering sale_date with >= and <.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// agentIDPtr maps an optional parent reference to its SQL value.
func agentIDPtr(id *engine.AgentID) interface{} {
	if id == nil {
		return nil
	}
	return int64(*id)
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
