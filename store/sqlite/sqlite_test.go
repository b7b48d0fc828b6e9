/*
sqlite_test.go - Round-trip tests for the SQLite store

PURPOSE:
  Exercises the storage layer directly: timestamp round-trips, nullable
  parent references, the TEXT-comparison volume window, and unique
  constraint mapping to domain conflicts. The engine tests cover
  behavior on top of this layer; these tests cover the layer itself.
*/
package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/commission-engine/engine"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedAgent(t *testing.T, s *Store, name string, level engine.Level, parentID *engine.AgentID) engine.Agent {
	t.Helper()
	a, err := s.InsertAgent(context.Background(), engine.Agent{
		Name:      name,
		Level:     level,
		ParentID:  parentID,
		CreatedAt: time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return a
}

func seedSale(t *testing.T, s *Store, agentID engine.AgentID, policy string, value string, saleDate time.Time) engine.Sale {
	t.Helper()
	sale, err := s.InsertSale(context.Background(), engine.Sale{
		PolicyNumber: policy,
		PolicyValue:  engine.MustDecimal(value),
		AgentID:      agentID,
		SaleDate:     saleDate,
		CreatedAt:    saleDate,
	})
	require.NoError(t, err)
	return sale
}

func TestAgentRoundTrip(t *testing.T) {
	// GIVEN a director and a manager under them
	s := newTestStore(t)
	ctx := context.Background()
	director := seedAgent(t, s, "Dana", engine.LevelDirector, nil)
	manager := seedAgent(t, s, "Marcus", engine.LevelManager, &director.ID)

	// WHEN reading both back
	gotDirector, err := s.GetAgent(ctx, director.ID)
	require.NoError(t, err)
	gotManager, err := s.GetAgent(ctx, manager.ID)
	require.NoError(t, err)

	// THEN the nullable parent and the timestamp survive the round trip
	require.NotNil(t, gotDirector)
	assert.Nil(t, gotDirector.ParentID)
	assert.Equal(t, time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC), gotDirector.CreatedAt)
	require.NotNil(t, gotManager)
	require.NotNil(t, gotManager.ParentID)
	assert.Equal(t, director.ID, *gotManager.ParentID)
}

func TestSalesVolumeWindowIsHalfOpen(t *testing.T) {
	// GIVEN sales on the window start, inside, and exactly on the end
	s := newTestStore(t)
	ctx := context.Background()
	agent := seedAgent(t, s, "Tessa", engine.LevelAgent, nil)

	from := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	seedSale(t, s, agent.ID, "POL-A", "1000", from)
	seedSale(t, s, agent.ID, "POL-B", "2500", time.Date(2026, 7, 20, 12, 30, 0, 0, time.UTC))
	seedSale(t, s, agent.ID, "POL-C", "9999", to)

	// WHEN summing the July window
	volume, err := s.SalesVolume(ctx, []engine.AgentID{agent.ID}, from, to)
	require.NoError(t, err)

	// THEN the start is included, the end excluded
	assert.True(t, volume.Equal(decimal.NewFromInt(3500)), "got %s", volume)
}

func TestSalesVolumeComparesStoredTimestampsChronologically(t *testing.T) {
	// GIVEN a sale stored at an afternoon instant
	s := newTestStore(t)
	ctx := context.Background()
	agent := seedAgent(t, s, "Alice", engine.LevelAgent, nil)
	seedSale(t, s, agent.ID, "POL-D", "4000", time.Date(2026, 7, 15, 14, 5, 6, 0, time.UTC))

	// WHEN querying a window starting that same morning
	from := time.Date(2026, 7, 15, 8, 0, 0, 0, time.UTC)
	to := time.Date(2026, 7, 16, 0, 0, 0, 0, time.UTC)
	volume, err := s.SalesVolume(ctx, []engine.AgentID{agent.ID}, from, to)
	require.NoError(t, err)

	// THEN the TEXT comparison finds it (stored form sorts chronologically)
	assert.True(t, volume.Equal(decimal.NewFromInt(4000)), "got %s", volume)
}

func TestDuplicatePolicyNumberMapsToDomainError(t *testing.T) {
	// GIVEN an existing policy number
	s := newTestStore(t)
	agent := seedAgent(t, s, "Ben", engine.LevelAgent, nil)
	seedSale(t, s, agent.ID, "POL-DUP", "1000", time.Date(2026, 7, 2, 0, 0, 0, 0, time.UTC))

	// WHEN inserting it again
	_, err := s.InsertSale(context.Background(), engine.Sale{
		PolicyNumber: "POL-DUP",
		PolicyValue:  engine.MustDecimal("500"),
		AgentID:      agent.ID,
		SaleDate:     time.Date(2026, 7, 3, 0, 0, 0, 0, time.UTC),
		CreatedAt:    time.Date(2026, 7, 3, 0, 0, 0, 0, time.UTC),
	})

	// THEN the unique constraint surfaces as the domain conflict
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrDuplicatePolicyNumber)
}

func TestClawbackEventUniquePerSale(t *testing.T) {
	// GIVEN a recorded clawback event
	s := newTestStore(t)
	ctx := context.Background()
	agent := seedAgent(t, s, "Noah", engine.LevelAgent, nil)
	sale := seedSale(t, s, agent.ID, "POL-E", "1000", time.Date(2026, 7, 4, 0, 0, 0, 0, time.UTC))

	ev := engine.ClawbackEvent{
		ID:                      "11111111-1111-1111-1111-111111111111",
		SaleID:                  sale.ID,
		ReversedCommissionTotal: engine.MustDecimal("500"),
		ReversedBonusTotal:      decimal.Zero,
		CreatedAt:               time.Date(2026, 7, 5, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.InsertClawbackEvent(ctx, ev))

	// WHEN inserting a second event for the same sale
	ev.ID = "22222222-2222-2222-2222-222222222222"
	err := s.InsertClawbackEvent(ctx, ev)

	// THEN it maps to the already-cancelled conflict
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrAlreadyCancelled)
}
