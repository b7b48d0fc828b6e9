/*
bonus.go - Period bonus aggregation

PURPOSE:
  Computes tier-based bonuses for one (type, period) key. For every
  agent: sum the non-cancelled sales volume in scope for the window,
  look up the tier rate for the agent's level, and pay volume * rate.
  Level-1 agents are scored on personal sales; levels 2..4 on their full
  downline including themselves.

IDEMPOTENCE:
  Recalculating the same key replaces rather than appends: inside one
  transaction the previous rows for (type, period) are deleted and the
  fresh set inserted. Running twice over unchanged sales yields the same
  bonus set.
*/
package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// CalculateBonuses computes and stores bonuses for one period. Agents
// with zero volume or a zero tier rate get no row.
func (e *Engine) CalculateBonuses(ctx context.Context, bonusType BonusType, periodKey string) (BonusRun, error) {
	period, err := ParsePeriod(bonusType, periodKey)
	if err != nil {
		return BonusRun{}, err
	}

	now := e.Now()
	run := BonusRun{Type: bonusType, Period: periodKey}

	err = e.Store.WithTx(ctx, func(s Store) error {
		agents, err := s.ListAgents(ctx)
		if err != nil {
			return err
		}
		h := NewHierarchy(agents)

		// Stable order keeps runs deterministic.
		sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })

		var computed []Bonus
		for _, agent := range agents {
			volume, err := s.SalesVolume(ctx, h.VolumeScope(agent), period.Start, period.End)
			if err != nil {
				return err
			}
			if !volume.IsPositive() {
				continue
			}
			rate := e.Plan.Tiers.RateFor(agent.Level, volume)
			if rate.IsZero() {
				continue
			}
			computed = append(computed, Bonus{
				AgentID:   agent.ID,
				Period:    periodKey,
				Type:      bonusType,
				Amount:    volume.Mul(rate),
				CreatedAt: now,
				UpdatedAt: now,
			})
		}

		replaced, err := s.DeleteBonusesForPeriod(ctx, bonusType, periodKey)
		if err != nil {
			return err
		}

		for _, b := range computed {
			saved, err := s.InsertBonus(ctx, b)
			if err != nil {
				return err
			}
			run.Bonuses = append(run.Bonuses, saved)
		}
		run.Replaced = replaced
		if len(computed) > replaced {
			run.Created = len(computed) - replaced
		}
		return nil
	})
	if err != nil {
		return BonusRun{}, err
	}
	return run, nil
}

// Message renders the human-readable completion line shown by the UI.
func (r BonusRun) Message() string {
	return fmt.Sprintf("%s bonuses calculated for %s. Created: %d, Updated: %d",
		r.Type, r.Period, r.Created, r.Replaced)
}

// recomputeBonus recalculates one agent's bonus for one window from the
// surviving sales. Used by the clawback processor after a cancellation.
// Returns the fresh amount (zero when below threshold).
func (e *Engine) recomputeBonus(ctx context.Context, s Store, h *Hierarchy, agent Agent, period Period) (decimal.Decimal, error) {
	volume, err := s.SalesVolume(ctx, h.VolumeScope(agent), period.Start, period.End)
	if err != nil {
		return decimal.Zero, err
	}
	if !volume.IsPositive() {
		return decimal.Zero, nil
	}
	rate := e.Plan.Tiers.RateFor(agent.Level, volume)
	return volume.Mul(rate), nil
}
