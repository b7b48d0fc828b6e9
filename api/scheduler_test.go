package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBonusScheduler_RunNowRecalculatesCurrentPeriods(t *testing.T) {
	// GIVEN: A July sale and a clock pinned inside July
	h := newScenarioHandler(t)
	h.Engine.Now = func() time.Time {
		return time.Date(2026, time.July, 15, 12, 0, 0, 0, time.UTC)
	}
	ctx := context.Background()
	require.NoError(t, loadStarterTeamScenario(ctx, h))

	scheduler := NewBonusScheduler(h)

	// WHEN: Triggering an immediate run
	scheduler.RunNow()

	// THEN: Monthly, quarterly, and annual rows exist for the period
	bonuses, err := h.Store.ListBonuses(ctx)
	require.NoError(t, err)

	periods := map[string]bool{}
	for _, b := range bonuses {
		periods[b.Period] = true
	}
	assert.True(t, periods["2026-07"], "monthly row")
	assert.True(t, periods["2026-Q3"], "quarterly row")
	assert.True(t, periods["2026"], "annual row")
}

func TestBonusScheduler_RepeatRunsAreStable(t *testing.T) {
	h := newScenarioHandler(t)
	h.Engine.Now = func() time.Time {
		return time.Date(2026, time.July, 15, 12, 0, 0, 0, time.UTC)
	}
	ctx := context.Background()
	require.NoError(t, loadStarterTeamScenario(ctx, h))

	scheduler := NewBonusScheduler(h)
	scheduler.RunNow()

	first, err := h.Store.ListBonuses(ctx)
	require.NoError(t, err)

	scheduler.RunNow()

	second, err := h.Store.ListBonuses(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(first), len(second), "reruns replace rather than append")
}

func TestBonusScheduler_StartStop(t *testing.T) {
	h := newScenarioHandler(t)

	scheduler := NewBonusScheduler(h)
	scheduler.CheckInterval = time.Hour

	scheduler.Start()
	scheduler.Stop()
}
