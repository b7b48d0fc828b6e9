// Package store provides an in-memory engine.Store for tests and dev.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/commission-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements engine.TxStore with plain maps. Transactions are
// simulated with a snapshot + rollback on error, matching the all-or-
// nothing contract of the SQLite store.
type Memory struct {
	mu sync.RWMutex
	st *state
}

type state struct {
	agents      map[engine.AgentID]engine.Agent
	nextAgentID engine.AgentID

	sales      map[engine.SaleID]engine.Sale
	nextSaleID engine.SaleID

	lines     map[engine.SaleID][]engine.CommissionLine
	snapshots map[engine.SaleID][]engine.SnapshotEntry

	bonuses     map[engine.BonusID]engine.Bonus
	nextBonusID engine.BonusID

	clawbacks []engine.ClawbackEvent
}

func NewMemory() *Memory {
	return &Memory{st: newState()}
}

func newState() *state {
	return &state{
		agents:    make(map[engine.AgentID]engine.Agent),
		sales:     make(map[engine.SaleID]engine.Sale),
		lines:     make(map[engine.SaleID][]engine.CommissionLine),
		snapshots: make(map[engine.SaleID][]engine.SnapshotEntry),
		bonuses:   make(map[engine.BonusID]engine.Bonus),
	}
}

func (st *state) clone() *state {
	cp := newState()
	cp.nextAgentID, cp.nextSaleID, cp.nextBonusID = st.nextAgentID, st.nextSaleID, st.nextBonusID
	for k, v := range st.agents {
		cp.agents[k] = v
	}
	for k, v := range st.sales {
		cp.sales[k] = v
	}
	for k, v := range st.lines {
		cp.lines[k] = append([]engine.CommissionLine{}, v...)
	}
	for k, v := range st.snapshots {
		cp.snapshots[k] = append([]engine.SnapshotEntry{}, v...)
	}
	for k, v := range st.bonuses {
		cp.bonuses[k] = v
	}
	cp.clawbacks = append([]engine.ClawbackEvent{}, st.clawbacks...)
	return cp
}

// WithTx runs fn over the live state under the write lock, restoring the
// pre-transaction snapshot if fn fails.
func (m *Memory) WithTx(_ context.Context, fn func(engine.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(&txView{st: m.st}); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

// txView exposes the state without locking; only reachable inside WithTx
// where the parent already holds the lock.
type txView struct {
	st *state
}

// =============================================================================
// AGENTS
// =============================================================================

func (st *state) insertAgent(a engine.Agent) (engine.Agent, error) {
	st.nextAgentID++
	a.ID = st.nextAgentID
	st.agents[a.ID] = a
	return a, nil
}

func (st *state) getAgent(id engine.AgentID) (*engine.Agent, error) {
	if a, ok := st.agents[id]; ok {
		return &a, nil
	}
	return nil, nil
}

func (st *state) listAgents() ([]engine.Agent, error) {
	out := make([]engine.Agent, 0, len(st.agents))
	for _, a := range st.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (st *state) updateAgent(a engine.Agent) error {
	if _, ok := st.agents[a.ID]; !ok {
		return engine.ErrAgentNotFound
	}
	st.agents[a.ID] = a
	return nil
}

func (st *state) deleteAgent(id engine.AgentID) error {
	delete(st.agents, id)
	return nil
}

func (st *state) countAgentDependents(id engine.AgentID) (engine.DependentCounts, error) {
	var deps engine.DependentCounts
	for _, s := range st.sales {
		if s.AgentID == id {
			deps.Sales++
		}
	}
	for _, lines := range st.lines {
		for _, l := range lines {
			if l.AgentID == id {
				deps.CommissionLines++
			}
		}
	}
	for _, a := range st.agents {
		if a.ParentID != nil && *a.ParentID == id {
			deps.Children++
		}
	}
	return deps, nil
}

// =============================================================================
// SALES
// =============================================================================

func (st *state) insertSale(s engine.Sale) (engine.Sale, error) {
	if existing, _ := st.getSaleByPolicyNumber(s.PolicyNumber); existing != nil {
		return engine.Sale{}, engine.ErrDuplicatePolicyNumber
	}
	st.nextSaleID++
	s.ID = st.nextSaleID
	s.UpdatedAt = s.CreatedAt
	st.sales[s.ID] = s
	return s, nil
}

func (st *state) getSale(id engine.SaleID) (*engine.Sale, error) {
	if s, ok := st.sales[id]; ok {
		return &s, nil
	}
	return nil, nil
}

func (st *state) getSaleByPolicyNumber(policyNumber string) (*engine.Sale, error) {
	for _, s := range st.sales {
		if s.PolicyNumber == policyNumber {
			return &s, nil
		}
	}
	return nil, nil
}

func (st *state) listSales() ([]engine.Sale, error) {
	out := make([]engine.Sale, 0, len(st.sales))
	for _, s := range st.sales {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SaleDate.After(out[j].SaleDate) })
	return out, nil
}

func (st *state) markSaleCancelled(id engine.SaleID) (bool, error) {
	s, ok := st.sales[id]
	if !ok || s.IsCancelled {
		return false, nil
	}
	s.IsCancelled = true
	s.UpdatedAt = time.Now().UTC()
	st.sales[id] = s
	return true, nil
}

func (st *state) salesVolume(agentIDs []engine.AgentID, from, to time.Time) (decimal.Decimal, error) {
	in := make(map[engine.AgentID]bool, len(agentIDs))
	for _, id := range agentIDs {
		in[id] = true
	}
	total := decimal.Zero
	for _, s := range st.sales {
		if s.IsCancelled || !in[s.AgentID] {
			continue
		}
		if s.SaleDate.Before(from) || !s.SaleDate.Before(to) {
			continue
		}
		total = total.Add(s.PolicyValue)
	}
	return total, nil
}

// =============================================================================
// COMMISSION LINES & SNAPSHOTS
// =============================================================================

func (st *state) insertCommissionLines(lines []engine.CommissionLine) error {
	for _, l := range lines {
		st.lines[l.SaleID] = append(st.lines[l.SaleID], l)
	}
	return nil
}

func (st *state) commissionLinesBySale(saleID engine.SaleID) ([]engine.CommissionLine, error) {
	return append([]engine.CommissionLine{}, st.lines[saleID]...), nil
}

func (st *state) markCommissionsReversed(saleID engine.SaleID) error {
	lines := st.lines[saleID]
	for i := range lines {
		lines[i].Reversed = true
	}
	return nil
}

func (st *state) insertSnapshots(entries []engine.SnapshotEntry) error {
	for _, e := range entries {
		st.snapshots[e.SaleID] = append(st.snapshots[e.SaleID], e)
	}
	return nil
}

func (st *state) snapshotAgentIDs(saleID engine.SaleID) ([]engine.AgentID, error) {
	entries := st.snapshots[saleID]
	sort.Slice(entries, func(i, j int) bool { return entries[i].Position < entries[j].Position })
	out := make([]engine.AgentID, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.AgentID)
	}
	return out, nil
}

// =============================================================================
// BONUSES
// =============================================================================

func (st *state) getBonus(agentID engine.AgentID, period string, bonusType engine.BonusType) (*engine.Bonus, error) {
	for _, b := range st.bonuses {
		if b.AgentID == agentID && b.Period == period && b.Type == bonusType {
			return &b, nil
		}
	}
	return nil, nil
}

func (st *state) listBonuses() ([]engine.Bonus, error) {
	out := make([]engine.Bonus, 0, len(st.bonuses))
	for _, b := range st.bonuses {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Period != out[j].Period {
			return out[i].Period > out[j].Period
		}
		return out[i].AgentID < out[j].AgentID
	})
	return out, nil
}

func (st *state) insertBonus(b engine.Bonus) (engine.Bonus, error) {
	st.nextBonusID++
	b.ID = st.nextBonusID
	st.bonuses[b.ID] = b
	return b, nil
}

func (st *state) updateBonusAmount(id engine.BonusID, amount decimal.Decimal) error {
	b, ok := st.bonuses[id]
	if !ok {
		return nil
	}
	b.Amount = amount
	b.UpdatedAt = time.Now().UTC()
	st.bonuses[id] = b
	return nil
}

func (st *state) deleteBonus(id engine.BonusID) error {
	delete(st.bonuses, id)
	return nil
}

func (st *state) deleteBonusesForPeriod(bonusType engine.BonusType, period string) (int, error) {
	removed := 0
	for id, b := range st.bonuses {
		if b.Type == bonusType && b.Period == period {
			delete(st.bonuses, id)
			removed++
		}
	}
	return removed, nil
}

// =============================================================================
// CLAWBACKS & SUMMARY
// =============================================================================

func (st *state) insertClawbackEvent(ev engine.ClawbackEvent) error {
	for _, existing := range st.clawbacks {
		if existing.SaleID == ev.SaleID {
			return engine.ErrAlreadyCancelled
		}
	}
	st.clawbacks = append(st.clawbacks, ev)
	return nil
}

func (st *state) listClawbackEvents() ([]engine.ClawbackEvent, error) {
	return append([]engine.ClawbackEvent{}, st.clawbacks...), nil
}

func (st *state) summaryTotals() (engine.Summary, error) {
	sum := engine.Summary{
		TotalSalesValue:      decimal.Zero,
		TotalCommissionsPaid: decimal.Zero,
		TotalBonusesPaid:     decimal.Zero,
		TotalClawbacksValue:  decimal.Zero,
		AgentCount:           len(st.agents),
	}
	for _, s := range st.sales {
		if !s.IsCancelled {
			sum.TotalSalesValue = sum.TotalSalesValue.Add(s.PolicyValue)
		}
	}
	for _, lines := range st.lines {
		for _, l := range lines {
			if !l.Reversed {
				sum.TotalCommissionsPaid = sum.TotalCommissionsPaid.Add(l.Amount)
			}
		}
	}
	for _, b := range st.bonuses {
		sum.TotalBonusesPaid = sum.TotalBonusesPaid.Add(b.Amount)
	}
	for _, ev := range st.clawbacks {
		sum.TotalClawbacksValue = sum.TotalClawbacksValue.Sub(ev.ReversedCommissionTotal).Sub(ev.ReversedBonusTotal)
	}
	return sum, nil
}

// =============================================================================
// LOCKED WRAPPERS (Memory) AND UNLOCKED VIEW (txView)
// =============================================================================

func (m *Memory) InsertAgent(_ context.Context, a engine.Agent) (engine.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.insertAgent(a)
}

func (m *Memory) GetAgent(_ context.Context, id engine.AgentID) (*engine.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getAgent(id)
}

func (m *Memory) ListAgents(_ context.Context) ([]engine.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listAgents()
}

func (m *Memory) UpdateAgent(_ context.Context, a engine.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.updateAgent(a)
}

func (m *Memory) DeleteAgent(_ context.Context, id engine.AgentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.deleteAgent(id)
}

func (m *Memory) CountAgentDependents(_ context.Context, id engine.AgentID) (engine.DependentCounts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.countAgentDependents(id)
}

func (m *Memory) InsertSale(_ context.Context, s engine.Sale) (engine.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.insertSale(s)
}

func (m *Memory) GetSale(_ context.Context, id engine.SaleID) (*engine.Sale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getSale(id)
}

func (m *Memory) GetSaleByPolicyNumber(_ context.Context, policyNumber string) (*engine.Sale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getSaleByPolicyNumber(policyNumber)
}

func (m *Memory) ListSales(_ context.Context) ([]engine.Sale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listSales()
}

func (m *Memory) MarkSaleCancelled(_ context.Context, id engine.SaleID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.markSaleCancelled(id)
}

func (m *Memory) SalesVolume(_ context.Context, agentIDs []engine.AgentID, from, to time.Time) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.salesVolume(agentIDs, from, to)
}

func (m *Memory) InsertCommissionLines(_ context.Context, lines []engine.CommissionLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.insertCommissionLines(lines)
}

func (m *Memory) CommissionLinesBySale(_ context.Context, saleID engine.SaleID) ([]engine.CommissionLine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.commissionLinesBySale(saleID)
}

func (m *Memory) MarkCommissionsReversed(_ context.Context, saleID engine.SaleID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.markCommissionsReversed(saleID)
}

func (m *Memory) InsertSnapshots(_ context.Context, entries []engine.SnapshotEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.insertSnapshots(entries)
}

func (m *Memory) SnapshotAgentIDs(_ context.Context, saleID engine.SaleID) ([]engine.AgentID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.snapshotAgentIDs(saleID)
}

func (m *Memory) GetBonus(_ context.Context, agentID engine.AgentID, period string, bonusType engine.BonusType) (*engine.Bonus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getBonus(agentID, period, bonusType)
}

func (m *Memory) ListBonuses(_ context.Context) ([]engine.Bonus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listBonuses()
}

func (m *Memory) InsertBonus(_ context.Context, b engine.Bonus) (engine.Bonus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.insertBonus(b)
}

func (m *Memory) UpdateBonusAmount(_ context.Context, id engine.BonusID, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.updateBonusAmount(id, amount)
}

func (m *Memory) DeleteBonus(_ context.Context, id engine.BonusID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.deleteBonus(id)
}

func (m *Memory) DeleteBonusesForPeriod(_ context.Context, bonusType engine.BonusType, period string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.deleteBonusesForPeriod(bonusType, period)
}

func (m *Memory) InsertClawbackEvent(_ context.Context, ev engine.ClawbackEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.insertClawbackEvent(ev)
}

func (m *Memory) ListClawbackEvents(_ context.Context) ([]engine.ClawbackEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listClawbackEvents()
}

func (m *Memory) SummaryTotals(_ context.Context) (engine.Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.summaryTotals()
}

func (tv *txView) InsertAgent(_ context.Context, a engine.Agent) (engine.Agent, error) {
	return tv.st.insertAgent(a)
}
func (tv *txView) GetAgent(_ context.Context, id engine.AgentID) (*engine.Agent, error) {
	return tv.st.getAgent(id)
}
func (tv *txView) ListAgents(_ context.Context) ([]engine.Agent, error) { return tv.st.listAgents() }
func (tv *txView) UpdateAgent(_ context.Context, a engine.Agent) error  { return tv.st.updateAgent(a) }
func (tv *txView) DeleteAgent(_ context.Context, id engine.AgentID) error {
	return tv.st.deleteAgent(id)
}
func (tv *txView) CountAgentDependents(_ context.Context, id engine.AgentID) (engine.DependentCounts, error) {
	return tv.st.countAgentDependents(id)
}
func (tv *txView) InsertSale(_ context.Context, s engine.Sale) (engine.Sale, error) {
	return tv.st.insertSale(s)
}
func (tv *txView) GetSale(_ context.Context, id engine.SaleID) (*engine.Sale, error) {
	return tv.st.getSale(id)
}
func (tv *txView) GetSaleByPolicyNumber(_ context.Context, policyNumber string) (*engine.Sale, error) {
	return tv.st.getSaleByPolicyNumber(policyNumber)
}
func (tv *txView) ListSales(_ context.Context) ([]engine.Sale, error) { return tv.st.listSales() }
func (tv *txView) MarkSaleCancelled(_ context.Context, id engine.SaleID) (bool, error) {
	return tv.st.markSaleCancelled(id)
}
func (tv *txView) SalesVolume(_ context.Context, agentIDs []engine.AgentID, from, to time.Time) (decimal.Decimal, error) {
	return tv.st.salesVolume(agentIDs, from, to)
}
func (tv *txView) InsertCommissionLines(_ context.Context, lines []engine.CommissionLine) error {
	return tv.st.insertCommissionLines(lines)
}
func (tv *txView) CommissionLinesBySale(_ context.Context, saleID engine.SaleID) ([]engine.CommissionLine, error) {
	return tv.st.commissionLinesBySale(saleID)
}
func (tv *txView) MarkCommissionsReversed(_ context.Context, saleID engine.SaleID) error {
	return tv.st.markCommissionsReversed(saleID)
}
func (tv *txView) InsertSnapshots(_ context.Context, entries []engine.SnapshotEntry) error {
	return tv.st.insertSnapshots(entries)
}
func (tv *txView) SnapshotAgentIDs(_ context.Context, saleID engine.SaleID) ([]engine.AgentID, error) {
	return tv.st.snapshotAgentIDs(saleID)
}
func (tv *txView) GetBonus(_ context.Context, agentID engine.AgentID, period string, bonusType engine.BonusType) (*engine.Bonus, error) {
	return tv.st.getBonus(agentID, period, bonusType)
}
func (tv *txView) ListBonuses(_ context.Context) ([]engine.Bonus, error) { return tv.st.listBonuses() }
func (tv *txView) InsertBonus(_ context.Context, b engine.Bonus) (engine.Bonus, error) {
	return tv.st.insertBonus(b)
}
func (tv *txView) UpdateBonusAmount(_ context.Context, id engine.BonusID, amount decimal.Decimal) error {
	return tv.st.updateBonusAmount(id, amount)
}
func (tv *txView) DeleteBonus(_ context.Context, id engine.BonusID) error {
	return tv.st.deleteBonus(id)
}
func (tv *txView) DeleteBonusesForPeriod(_ context.Context, bonusType engine.BonusType, period string) (int, error) {
	return tv.st.deleteBonusesForPeriod(bonusType, period)
}
func (tv *txView) InsertClawbackEvent(_ context.Context, ev engine.ClawbackEvent) error {
	return tv.st.insertClawbackEvent(ev)
}
func (tv *txView) ListClawbackEvents(_ context.Context) ([]engine.ClawbackEvent, error) {
	return tv.st.listClawbackEvents()
}
func (tv *txView) SummaryTotals(_ context.Context) (engine.Summary, error) {
	return tv.st.summaryTotals()
}
