/*
scenarios_test.go - Tests for demo scenario loaders

Each scenario must load cleanly into an empty database and leave the
records its description promises.
*/
package api

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/commission-engine/engine"
	"github.com/warp/commission-engine/store/sqlite"
)

func newScenarioHandler(t *testing.T) *Handler {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return NewHandler(engine.New(store, nil), store)
}

func TestScenario_StarterTeam(t *testing.T) {
	h := newScenarioHandler(t)
	ctx := context.Background()

	require.NoError(t, loadStarterTeamScenario(ctx, h))

	agents, err := h.Store.ListAgents(ctx)
	require.NoError(t, err)
	assert.Len(t, agents, 5)

	sales, err := h.Store.ListSales(ctx)
	require.NoError(t, err)
	assert.Len(t, sales, 3)

	// Every sale generated commission lines
	for _, s := range sales {
		lines, err := h.Store.CommissionLinesBySale(ctx, s.ID)
		require.NoError(t, err)
		assert.NotEmpty(t, lines, "sale %s", s.PolicyNumber)
	}
}

func TestScenario_FullOrg(t *testing.T) {
	h := newScenarioHandler(t)
	ctx := context.Background()

	require.NoError(t, loadFullOrgScenario(ctx, h))

	agents, err := h.Store.ListAgents(ctx)
	require.NoError(t, err)
	assert.Len(t, agents, 8)

	sales, err := h.Store.ListSales(ctx)
	require.NoError(t, err)
	assert.Len(t, sales, 7)

	// The scenario ran July monthly and Q3 quarterly bonuses
	bonuses, err := h.Store.ListBonuses(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, bonuses)
	periods := map[string]bool{}
	for _, b := range bonuses {
		periods[b.Period] = true
	}
	assert.True(t, periods["2026-07"])
	assert.True(t, periods["2026-Q3"])
}

func TestScenario_ClawbackDemo(t *testing.T) {
	h := newScenarioHandler(t)
	ctx := context.Background()

	require.NoError(t, loadClawbackDemoScenario(ctx, h))

	events, err := h.Store.ListClawbackEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].ReversedCommissionTotal.IsPositive())

	// The cancelled sale is flagged
	sale, err := h.Store.GetSale(ctx, events[0].SaleID)
	require.NoError(t, err)
	require.NotNil(t, sale)
	assert.True(t, sale.IsCancelled)
}

func TestScenario_LoadersAreRepeatableAfterReset(t *testing.T) {
	h := newScenarioHandler(t)
	ctx := context.Background()

	require.NoError(t, loadStarterTeamScenario(ctx, h))
	require.NoError(t, h.Store.Reset(ctx))
	require.NoError(t, loadStarterTeamScenario(ctx, h))

	sales, err := h.Store.ListSales(ctx)
	require.NoError(t, err)
	assert.Len(t, sales, 3, "no duplicate policy conflicts after reset")
}
