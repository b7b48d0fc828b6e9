/*
store.go - Persistence interfaces for the commission engine

PURPOSE:
  Defines the boundary between the engine and the database. Commission
  lines are immutable apart from the reversed flag; sales flip
  is_cancelled exactly once via a guarded update; bonus recalculation is
  a transactional delete-then-insert.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: production SQLite
  - engine/store/memory.go: in-memory for tests
*/
package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// DependentCounts reports what still references an agent. Deletion is
// blocked while any count is non-zero.
type DependentCounts struct {
	Sales           int
	CommissionLines int
	Children        int
}

// Store handles persistence for all engine records. Read methods that
// look up a single record return nil (not an error) when it is missing.
type Store interface {
	// Agents
	InsertAgent(ctx context.Context, a Agent) (Agent, error)
	GetAgent(ctx context.Context, id AgentID) (*Agent, error)
	ListAgents(ctx context.Context) ([]Agent, error)
	UpdateAgent(ctx context.Context, a Agent) error
	DeleteAgent(ctx context.Context, id AgentID) error
	CountAgentDependents(ctx context.Context, id AgentID) (DependentCounts, error)

	// Sales
	InsertSale(ctx context.Context, s Sale) (Sale, error)
	GetSale(ctx context.Context, id SaleID) (*Sale, error)
	GetSaleByPolicyNumber(ctx context.Context, policyNumber string) (*Sale, error)
	ListSales(ctx context.Context) ([]Sale, error)

	// MarkSaleCancelled flips is_cancelled only when currently false.
	// Returns false when the sale was already cancelled, so concurrent
	// cancellations have exactly one winner.
	MarkSaleCancelled(ctx context.Context, id SaleID) (bool, error)

	// SalesVolume sums policy values of non-cancelled sales by the given
	// agents with sale_date in [from, to).
	SalesVolume(ctx context.Context, agentIDs []AgentID, from, to time.Time) (decimal.Decimal, error)

	// Commission lines
	InsertCommissionLines(ctx context.Context, lines []CommissionLine) error
	CommissionLinesBySale(ctx context.Context, saleID SaleID) ([]CommissionLine, error)
	MarkCommissionsReversed(ctx context.Context, saleID SaleID) error

	// Hierarchy snapshots
	InsertSnapshots(ctx context.Context, entries []SnapshotEntry) error
	SnapshotAgentIDs(ctx context.Context, saleID SaleID) ([]AgentID, error)

	// Bonuses
	GetBonus(ctx context.Context, agentID AgentID, period string, bonusType BonusType) (*Bonus, error)
	ListBonuses(ctx context.Context) ([]Bonus, error)
	InsertBonus(ctx context.Context, b Bonus) (Bonus, error)
	UpdateBonusAmount(ctx context.Context, id BonusID, amount decimal.Decimal) error
	DeleteBonus(ctx context.Context, id BonusID) error

	// DeleteBonusesForPeriod clears every row for one (type, period) key.
	// Returns the number of rows removed.
	DeleteBonusesForPeriod(ctx context.Context, bonusType BonusType, period string) (int, error)

	// Clawback events
	InsertClawbackEvent(ctx context.Context, ev ClawbackEvent) error
	ListClawbackEvents(ctx context.Context) ([]ClawbackEvent, error)

	// SummaryTotals computes the dashboard rollup: non-cancelled sales,
	// non-reversed commissions, current bonuses, and the (non-positive)
	// clawback total.
	SummaryTotals(ctx context.Context) (Summary, error)
}

// TxStore wraps Store with transaction support. Every engine mutation
// runs inside WithTx: if fn returns an error the transaction rolls back
// and nothing is partially applied.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}
