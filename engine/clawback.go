/*
clawback.go - Sale cancellation and reversal

PURPOSE:
  Cancelling a sale must leave the books as if proportionally adjusted:
  every commission line the sale produced is flagged reversed, and every
  bonus the sale contributed to is recomputed from the surviving sales.
  The whole reversal is one transaction; a sale marked cancelled with its
  commissions still live is a state this file exists to make impossible.

AFFECTED BONUSES:
  The agents whose bonuses can shift are exactly the seller and upline
  frozen in the sale's hierarchy snapshot - the live hierarchy may have
  been reorganized since. For each of those agents, the sale's monthly,
  quarterly, and annual periods are recomputed. A bonus that falls below
  threshold is deleted; otherwise its amount is updated in place. The
  difference old - new accumulates into the event's reversed bonus total;
  an upward correction (stale bonus smaller than the recomputed one)
  updates the row but contributes nothing, keeping the total and the
  dashboard clawback figure on one side of zero.

ONE WINNER:
  The is_cancelled flip is a guarded update. Two concurrent cancellations
  of the same sale commit exactly one reversal; the loser fails with
  ErrAlreadyCancelled.
*/
package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CancelSale marks the sale cancelled and reverses its commissions and
// bonus contributions atomically.
func (e *Engine) CancelSale(ctx context.Context, saleID SaleID) (ClawbackEvent, error) {
	now := e.Now()
	var event ClawbackEvent

	err := e.Store.WithTx(ctx, func(s Store) error {
		sale, err := s.GetSale(ctx, saleID)
		if err != nil {
			return err
		}
		if sale == nil {
			return fmt.Errorf("sale %d: %w", saleID, ErrSaleNotFound)
		}
		if sale.IsCancelled {
			return fmt.Errorf("sale %d: %w", saleID, ErrAlreadyCancelled)
		}

		won, err := s.MarkSaleCancelled(ctx, saleID)
		if err != nil {
			return err
		}
		if !won {
			return fmt.Errorf("sale %d: %w", saleID, ErrAlreadyCancelled)
		}

		// Reverse every live commission line for the sale.
		lines, err := s.CommissionLinesBySale(ctx, saleID)
		if err != nil {
			return err
		}
		commissionTotal := decimal.Zero
		for _, line := range lines {
			if line.Reversed {
				continue
			}
			commissionTotal = commissionTotal.Add(line.Amount)
		}
		if err := s.MarkCommissionsReversed(ctx, saleID); err != nil {
			return err
		}

		bonusTotal, err := e.reverseBonusContributions(ctx, s, sale)
		if err != nil {
			return err
		}

		event = ClawbackEvent{
			ID:                      uuid.NewString(),
			SaleID:                  saleID,
			ReversedCommissionTotal: commissionTotal,
			ReversedBonusTotal:      bonusTotal,
			CreatedAt:               now,
		}
		return s.InsertClawbackEvent(ctx, event)
	})
	if err != nil {
		return ClawbackEvent{}, err
	}
	return event, nil
}

// reverseBonusContributions recomputes every bonus the cancelled sale
// could have fed, using the hierarchy snapshot taken at sale time.
// Volume queries see the sale as cancelled already (the guarded update
// ran in this transaction), so recomputation is simply "the world
// without this sale". Returns the total amount clawed back.
func (e *Engine) reverseBonusContributions(ctx context.Context, s Store, sale *Sale) (decimal.Decimal, error) {
	affected, err := s.SnapshotAgentIDs(ctx, sale.ID)
	if err != nil {
		return decimal.Zero, err
	}

	agents, err := s.ListAgents(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	h := NewHierarchy(agents)

	total := decimal.Zero
	for _, period := range PeriodsForDate(sale.SaleDate) {
		for _, agentID := range affected {
			agent, ok := h.Get(agentID)
			if !ok {
				continue
			}

			existing, err := s.GetBonus(ctx, agentID, period.Key, period.Type)
			if err != nil {
				return decimal.Zero, err
			}
			if existing == nil {
				continue // never calculated for this window, nothing to adjust
			}

			fresh, err := e.recomputeBonus(ctx, s, h, agent, period)
			if err != nil {
				return decimal.Zero, err
			}

			delta := existing.Amount.Sub(fresh)
			if delta.IsZero() {
				continue
			}
			// Sales recorded since the last bonus run can make the
			// recomputed amount larger than the stored one. The row
			// still updates, but an upward correction is not a
			// clawback, so it never reduces the event total.
			if delta.IsPositive() {
				total = total.Add(delta)
			}

			if fresh.IsZero() {
				if err := s.DeleteBonus(ctx, existing.ID); err != nil {
					return decimal.Zero, err
				}
			} else if err := s.UpdateBonusAmount(ctx, existing.ID, fresh); err != nil {
				return decimal.Zero, err
			}
		}
	}
	return total, nil
}
