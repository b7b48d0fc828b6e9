package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/commission-engine/engine"
	memstore "github.com/warp/commission-engine/engine/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng := engine.New(memstore.NewMemory(), nil)
	eng.Now = func() time.Time {
		return time.Date(2026, time.July, 15, 12, 0, 0, 0, time.UTC)
	}
	return eng
}

// buildChain creates Director <- Manager <- Lead <- Agent and returns
// them in that order.
func buildChain(t *testing.T, eng *engine.Engine) (director, manager, lead, agent engine.Agent) {
	t.Helper()
	ctx := context.Background()

	var err error
	director, err = eng.CreateAgent(ctx, engine.CreateAgentInput{Name: "Dana", Level: engine.LevelDirector})
	require.NoError(t, err)
	manager, err = eng.CreateAgent(ctx, engine.CreateAgentInput{Name: "Marcus", Level: engine.LevelManager, ParentID: &director.ID})
	require.NoError(t, err)
	lead, err = eng.CreateAgent(ctx, engine.CreateAgentInput{Name: "Tessa", Level: engine.LevelTeamLead, ParentID: &manager.ID})
	require.NoError(t, err)
	agent, err = eng.CreateAgent(ctx, engine.CreateAgentInput{Name: "Alice", Level: engine.LevelAgent, ParentID: &lead.ID})
	require.NoError(t, err)
	return director, manager, lead, agent
}

func recordSale(t *testing.T, eng *engine.Engine, policy string, value string, agentID engine.AgentID, date string) (engine.Sale, []engine.CommissionLine) {
	t.Helper()
	saleDate, err := time.Parse("2006-01-02", date)
	require.NoError(t, err)

	sale, lines, err := eng.RecordSale(context.Background(), engine.RecordSaleInput{
		PolicyNumber: policy,
		PolicyValue:  engine.MustDecimal(value),
		AgentID:      agentID,
		SaleDate:     saleDate,
	})
	require.NoError(t, err)
	return sale, lines
}

func amountByAgent(lines []engine.CommissionLine) map[engine.AgentID]decimal.Decimal {
	out := make(map[engine.AgentID]decimal.Decimal, len(lines))
	for _, l := range lines {
		out[l.AgentID] = l.Amount
	}
	return out
}

// =============================================================================
// AGENT LIFECYCLE
// =============================================================================

func TestCreateAgent_RequiresName(t *testing.T) {
	eng := newTestEngine(t)

	_, err := eng.CreateAgent(context.Background(), engine.CreateAgentInput{Name: "   ", Level: engine.LevelDirector})
	assert.Error(t, err)

	var ve *engine.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestCreateAgent_ValidatesHierarchyLink(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	director, err := eng.CreateAgent(ctx, engine.CreateAgentInput{Name: "Dana", Level: engine.LevelDirector})
	require.NoError(t, err)

	// Agent directly under a Director skips two levels
	_, err = eng.CreateAgent(ctx, engine.CreateAgentInput{Name: "Alice", Level: engine.LevelAgent, ParentID: &director.ID})
	assert.ErrorIs(t, err, engine.ErrHierarchyViolation)
}

func TestUpdateAgent_Rename(t *testing.T) {
	eng := newTestEngine(t)
	_, _, _, agent := buildChain(t, eng)

	name := "Alice Romero"
	updated, err := eng.UpdateAgent(context.Background(), agent.ID, engine.UpdateAgentInput{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Alice Romero", updated.Name)
	assert.Equal(t, agent.Level, updated.Level)
}

func TestUpdateAgent_PromotionBlockedByChildren(t *testing.T) {
	// GIVEN: A lead with a level-1 child
	eng := newTestEngine(t)
	director, _, lead, _ := buildChain(t, eng)

	// WHEN: Promoting the lead to Manager (children would be two levels down)
	level := engine.LevelManager
	_, err := eng.UpdateAgent(context.Background(), lead.ID, engine.UpdateAgentInput{
		Level:     &level,
		ParentID:  &director.ID,
		ParentSet: true,
	})

	// THEN: The update is rejected and nothing changed
	assert.ErrorIs(t, err, engine.ErrHierarchyViolation)

	current, getErr := eng.Store.GetAgent(context.Background(), lead.ID)
	require.NoError(t, getErr)
	assert.Equal(t, engine.LevelTeamLead, current.Level)
}

func TestUpdateAgent_NotFound(t *testing.T) {
	eng := newTestEngine(t)

	name := "Ghost"
	_, err := eng.UpdateAgent(context.Background(), 404, engine.UpdateAgentInput{Name: &name})
	assert.ErrorIs(t, err, engine.ErrAgentNotFound)
}

func TestDeleteAgent_BlockedBySales(t *testing.T) {
	eng := newTestEngine(t)
	_, _, _, agent := buildChain(t, eng)
	recordSale(t, eng, "POL-100", "50000", agent.ID, "2026-07-01")

	err := eng.DeleteAgent(context.Background(), agent.ID)
	assert.ErrorIs(t, err, engine.ErrAgentInUse)
}

func TestDeleteAgent_BlockedByChildren(t *testing.T) {
	eng := newTestEngine(t)
	_, _, lead, _ := buildChain(t, eng)

	err := eng.DeleteAgent(context.Background(), lead.ID)
	assert.ErrorIs(t, err, engine.ErrAgentInUse)
}

func TestDeleteAgent_LeafWithNoRecords(t *testing.T) {
	eng := newTestEngine(t)
	_, _, _, agent := buildChain(t, eng)
	ctx := context.Background()

	require.NoError(t, eng.DeleteAgent(ctx, agent.ID))

	got, err := eng.Store.GetAgent(ctx, agent.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

// =============================================================================
// SALE RECORDING AND COMMISSION DERIVATION
// =============================================================================

func TestRecordSale_FullChainCommissions(t *testing.T) {
	// GIVEN: A complete 4-level chain
	eng := newTestEngine(t)
	director, manager, lead, agent := buildChain(t, eng)

	// WHEN: The agent sells a 100,000 policy
	sale, lines := recordSale(t, eng, "POL-001", "100000", agent.ID, "2026-07-01")

	// THEN: One FYC line and one override per ancestor
	require.Len(t, lines, 4)
	amounts := amountByAgent(lines)

	assert.True(t, amounts[agent.ID].Equal(engine.MustDecimal("50000")), "FYC at 50 percent")
	assert.True(t, amounts[lead.ID].Equal(engine.MustDecimal("2000")), "team lead override")
	assert.True(t, amounts[manager.ID].Equal(engine.MustDecimal("1500")), "manager override")
	assert.True(t, amounts[director.ID].Equal(engine.MustDecimal("1000")), "director override")

	// FYC is the seller's line at distance 0
	assert.Equal(t, engine.CommissionFYC, lines[0].Type)
	assert.Equal(t, 0, lines[0].LevelDistance)
	assert.False(t, sale.IsCancelled)
}

func TestRecordSale_PartialChain(t *testing.T) {
	// A lead selling directly: FYC plus overrides for manager and director only.
	eng := newTestEngine(t)
	director, manager, lead, _ := buildChain(t, eng)

	_, lines := recordSale(t, eng, "POL-002", "10000", lead.ID, "2026-07-02")

	require.Len(t, lines, 3)
	amounts := amountByAgent(lines)
	assert.True(t, amounts[lead.ID].Equal(engine.MustDecimal("5000")))
	assert.True(t, amounts[manager.ID].Equal(engine.MustDecimal("150")))
	assert.True(t, amounts[director.ID].Equal(engine.MustDecimal("100")))
}

func TestRecordSale_SnapshotFrozenAtSaleTime(t *testing.T) {
	// GIVEN: A sale recorded under the original lead
	eng := newTestEngine(t)
	_, manager, lead, agent := buildChain(t, eng)
	sale, _ := recordSale(t, eng, "POL-003", "20000", agent.ID, "2026-07-03")

	ctx := context.Background()

	// WHEN: The agent later moves under a different lead
	otherLead, err := eng.CreateAgent(ctx, engine.CreateAgentInput{Name: "Oscar", Level: engine.LevelTeamLead, ParentID: &manager.ID})
	require.NoError(t, err)
	_, err = eng.UpdateAgent(ctx, agent.ID, engine.UpdateAgentInput{ParentID: &otherLead.ID, ParentSet: true})
	require.NoError(t, err)

	// THEN: The stored snapshot still names the chain as of the sale
	ids, err := eng.Store.SnapshotAgentIDs(ctx, sale.ID)
	require.NoError(t, err)
	require.Len(t, ids, 4)
	assert.Equal(t, agent.ID, ids[0], "position 0 is the seller")
	assert.Equal(t, lead.ID, ids[1], "original lead, not the new one")
}

func TestRecordSale_PolicyNumberRules(t *testing.T) {
	eng := newTestEngine(t)
	_, _, _, agent := buildChain(t, eng)
	ctx := context.Background()

	// Too short after trimming
	_, _, err := eng.RecordSale(ctx, engine.RecordSaleInput{
		PolicyNumber: " AB ",
		PolicyValue:  engine.MustDecimal("1000"),
		AgentID:      agent.ID,
		SaleDate:     time.Now(),
	})
	var ve *engine.ValidationError
	assert.ErrorAs(t, err, &ve)

	// Duplicate
	recordSale(t, eng, "POL-DUP", "1000", agent.ID, "2026-07-01")
	_, _, err = eng.RecordSale(ctx, engine.RecordSaleInput{
		PolicyNumber: "POL-DUP",
		PolicyValue:  engine.MustDecimal("1000"),
		AgentID:      agent.ID,
		SaleDate:     time.Now(),
	})
	assert.ErrorIs(t, err, engine.ErrDuplicatePolicyNumber)
}

func TestRecordSale_ValueBounds(t *testing.T) {
	eng := newTestEngine(t)
	_, _, _, agent := buildChain(t, eng)
	ctx := context.Background()

	attempt := func(value string) error {
		_, _, err := eng.RecordSale(ctx, engine.RecordSaleInput{
			PolicyNumber: "POL-" + value,
			PolicyValue:  engine.MustDecimal(value),
			AgentID:      agent.ID,
			SaleDate:     time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC),
		})
		return err
	}

	assert.ErrorIs(t, attempt("0"), engine.ErrInvalidSaleValue, "zero rejected")
	assert.ErrorIs(t, attempt("-5"), engine.ErrInvalidSaleValue, "negative rejected")
	assert.ErrorIs(t, attempt("10000001"), engine.ErrInvalidSaleValue, "above cap rejected")

	assert.NoError(t, attempt("0.01"), "smallest positive accepted")
	assert.NoError(t, attempt("10000000"), "cap itself accepted")
}

func TestRecordSale_UnknownAgent(t *testing.T) {
	eng := newTestEngine(t)

	_, _, err := eng.RecordSale(context.Background(), engine.RecordSaleInput{
		PolicyNumber: "POL-404",
		PolicyValue:  engine.MustDecimal("1000"),
		AgentID:      404,
		SaleDate:     time.Now(),
	})
	assert.ErrorIs(t, err, engine.ErrAgentNotFound)
}
