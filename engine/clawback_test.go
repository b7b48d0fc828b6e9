package engine_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/commission-engine/engine"
)

// =============================================================================
// COMMISSION REVERSAL
// =============================================================================

func TestCancelSale_ReversesAllCommissionLines(t *testing.T) {
	// GIVEN: A recorded sale with FYC and three overrides
	eng := newTestEngine(t)
	_, _, _, agent := buildChain(t, eng)
	sale, lines := recordSale(t, eng, "POL-C1", "100000", agent.ID, "2026-07-01")
	require.Len(t, lines, 4)
	ctx := context.Background()

	// WHEN: The sale is cancelled
	event, err := eng.CancelSale(ctx, sale.ID)
	require.NoError(t, err)

	// THEN: All lines are flagged reversed and the event carries their sum
	after, err := eng.Store.CommissionLinesBySale(ctx, sale.ID)
	require.NoError(t, err)
	for _, l := range after {
		assert.True(t, l.Reversed, "line for agent %d should be reversed", l.AgentID)
	}

	// 50000 + 2000 + 1500 + 1000
	assert.True(t, event.ReversedCommissionTotal.Equal(engine.MustDecimal("54500")),
		"got %s", event.ReversedCommissionTotal)

	got, err := eng.Store.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.True(t, got.IsCancelled)
}

func TestCancelSale_NotFound(t *testing.T) {
	eng := newTestEngine(t)

	_, err := eng.CancelSale(context.Background(), 404)
	assert.ErrorIs(t, err, engine.ErrSaleNotFound)
}

func TestCancelSale_SecondCancelRejected(t *testing.T) {
	eng := newTestEngine(t)
	_, _, _, agent := buildChain(t, eng)
	sale, _ := recordSale(t, eng, "POL-C2", "10000", agent.ID, "2026-07-01")
	ctx := context.Background()

	_, err := eng.CancelSale(ctx, sale.ID)
	require.NoError(t, err)

	_, err = eng.CancelSale(ctx, sale.ID)
	assert.ErrorIs(t, err, engine.ErrAlreadyCancelled)

	events, err := eng.Store.ListClawbackEvents(ctx)
	require.NoError(t, err)
	assert.Len(t, events, 1, "exactly one clawback event per sale")
}

func TestCancelSale_ConcurrentCancellations_OneWinner(t *testing.T) {
	eng := newTestEngine(t)
	_, _, _, agent := buildChain(t, eng)
	sale, _ := recordSale(t, eng, "POL-C3", "10000", agent.ID, "2026-07-01")

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = eng.CancelSale(context.Background(), sale.ID)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, engine.ErrAlreadyCancelled)
		}
	}
	assert.Equal(t, 1, winners)

	events, err := eng.Store.ListClawbackEvents(context.Background())
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

// =============================================================================
// BONUS REVERSAL
// =============================================================================

func TestCancelSale_RecomputesAffectedBonuses(t *testing.T) {
	// GIVEN: Two July sales and a calculated monthly bonus
	eng := newTestEngine(t)
	_, _, _, agent := buildChain(t, eng)
	keep, _ := recordSale(t, eng, "POL-C4", "30000", agent.ID, "2026-07-05")
	_ = keep
	cancel, _ := recordSale(t, eng, "POL-C5", "40000", agent.ID, "2026-07-12")
	ctx := context.Background()

	run, err := eng.CalculateBonuses(ctx, engine.BonusMonthly, "2026-07")
	require.NoError(t, err)
	// 70,000: 50k-100k band at 3% = 2100
	require.True(t, findBonus(t, run, agent.ID).Amount.Equal(engine.MustDecimal("2100")))

	// WHEN: The 40,000 sale is cancelled
	event, err := eng.CancelSale(ctx, cancel.ID)
	require.NoError(t, err)

	// THEN: The bonus is recomputed from the surviving 30,000
	// (25k-50k band at 2% = 600), clawing back 1500
	fresh, err := eng.Store.GetBonus(ctx, agent.ID, "2026-07", engine.BonusMonthly)
	require.NoError(t, err)
	require.NotNil(t, fresh)
	assert.True(t, fresh.Amount.Equal(engine.MustDecimal("600")), "got %s", fresh.Amount)

	assert.True(t, event.ReversedBonusTotal.Equal(engine.MustDecimal("1500")),
		"got %s", event.ReversedBonusTotal)
}

func TestCancelSale_BonusDroppingToZeroIsDeleted(t *testing.T) {
	// GIVEN: A single sale that alone puts the agent in a paying band
	eng := newTestEngine(t)
	_, _, _, agent := buildChain(t, eng)
	sale, _ := recordSale(t, eng, "POL-C6", "30000", agent.ID, "2026-07-05")
	ctx := context.Background()

	_, err := eng.CalculateBonuses(ctx, engine.BonusMonthly, "2026-07")
	require.NoError(t, err)

	// WHEN: The only sale is cancelled
	event, err := eng.CancelSale(ctx, sale.ID)
	require.NoError(t, err)

	// THEN: The bonus row is gone, matching what a fresh run would produce
	gone, err := eng.Store.GetBonus(ctx, agent.ID, "2026-07", engine.BonusMonthly)
	require.NoError(t, err)
	assert.Nil(t, gone)

	assert.True(t, event.ReversedBonusTotal.Equal(engine.MustDecimal("600")))
}

func TestCancelSale_StaleBonusUpwardCorrectionIsNotClawedBack(t *testing.T) {
	// GIVEN: A monthly bonus run, then a larger sale recorded afterwards,
	// so the stored bonus (600) is smaller than a recomputation would be
	eng := newTestEngine(t)
	_, _, _, agent := buildChain(t, eng)
	small, _ := recordSale(t, eng, "POL-C8", "30000", agent.ID, "2026-07-05")
	ctx := context.Background()

	_, err := eng.CalculateBonuses(ctx, engine.BonusMonthly, "2026-07")
	require.NoError(t, err)

	recordSale(t, eng, "POL-C9", "100000", agent.ID, "2026-07-12")

	// WHEN: The small sale is cancelled
	event, err := eng.CancelSale(ctx, small.ID)
	require.NoError(t, err)

	// THEN: The bonus row corrects upward (100,000 alone: 100k+ band at
	// 5% = 5000) but the correction never counts as a clawback
	fresh, err := eng.Store.GetBonus(ctx, agent.ID, "2026-07", engine.BonusMonthly)
	require.NoError(t, err)
	require.NotNil(t, fresh)
	assert.True(t, fresh.Amount.Equal(engine.MustDecimal("5000")), "got %s", fresh.Amount)

	assert.True(t, event.ReversedBonusTotal.IsZero(), "got %s", event.ReversedBonusTotal)

	// The dashboard clawback figure stays non-positive: exactly the
	// reversed commissions on the 30,000 sale, nothing from the bonus
	sum, err := eng.Summary(ctx)
	require.NoError(t, err)
	assert.True(t, sum.TotalClawbacksValue.Equal(engine.MustDecimal("-16350")),
		"got %s", sum.TotalClawbacksValue)
}

func TestCancelSale_NoBonusesCalculatedYet(t *testing.T) {
	// Cancelling before any bonus run reverses commissions only.
	eng := newTestEngine(t)
	_, _, _, agent := buildChain(t, eng)
	sale, _ := recordSale(t, eng, "POL-C7", "30000", agent.ID, "2026-07-05")

	event, err := eng.CancelSale(context.Background(), sale.ID)
	require.NoError(t, err)

	assert.True(t, event.ReversedBonusTotal.IsZero())
	assert.False(t, event.ReversedCommissionTotal.IsZero())
}

// =============================================================================
// SUMMARY AFTER CLAWBACK
// =============================================================================

func TestSummary_ExcludesCancelledAndReversed(t *testing.T) {
	// GIVEN: Two sales, bonuses run, then one sale cancelled
	eng := newTestEngine(t)
	_, _, _, agent := buildChain(t, eng)
	recordSale(t, eng, "POL-C8", "30000", agent.ID, "2026-07-05")
	cancel, _ := recordSale(t, eng, "POL-C9", "40000", agent.ID, "2026-07-12")
	ctx := context.Background()

	_, err := eng.CalculateBonuses(ctx, engine.BonusMonthly, "2026-07")
	require.NoError(t, err)
	event, err := eng.CancelSale(ctx, cancel.ID)
	require.NoError(t, err)

	// WHEN: Reading the dashboard summary
	summary, err := eng.Summary(ctx)
	require.NoError(t, err)

	// THEN: Only the surviving sale counts
	assert.True(t, summary.TotalSalesValue.Equal(engine.MustDecimal("30000")),
		"got %s", summary.TotalSalesValue)

	// Live commissions: 30000 sale only (FYC 15000 + overrides 600+450+300)
	assert.True(t, summary.TotalCommissionsPaid.Equal(engine.MustDecimal("16350")),
		"got %s", summary.TotalCommissionsPaid)

	// Bonuses reflect the recomputed 600 row
	assert.True(t, summary.TotalBonusesPaid.Equal(engine.MustDecimal("600")),
		"got %s", summary.TotalBonusesPaid)

	// Clawbacks are reported as a non-positive figure
	expected := event.ReversedCommissionTotal.Add(event.ReversedBonusTotal).Neg()
	assert.True(t, summary.TotalClawbacksValue.Equal(expected),
		"got %s", summary.TotalClawbacksValue)
	assert.False(t, summary.TotalClawbacksValue.IsPositive())

	assert.Equal(t, 4, summary.AgentCount)
}
