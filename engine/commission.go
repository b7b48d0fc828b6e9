/*
commission.go - Commission line derivation

PURPOSE:
  Turns one sale into its commission lines: a single FYC line for the
  seller and one override line per upline ancestor whose level carries a
  rate. Pure computation - persistence and atomicity live in engine.go.

SHAPE:
  FYC:      amount = policy_value * plan.FYCRate,      level_distance = 0
  Override: amount = policy_value * rate(upline.Level), level_distance = hops

  The upline chain has at most MaxLevel-1 entries, so a sale emits at
  most 4 lines total.
*/
package engine

import (
	"time"

	"github.com/google/uuid"
)

// DeriveCommissionLines computes the FYC and override lines for a sale.
// upline is the seller's ancestor chain, nearest first (Hierarchy.Upline
// order). Ancestors whose level has no override rate are skipped.
func DeriveCommissionLines(sale Sale, seller Agent, upline []Agent, plan *CompensationPlan, now time.Time) []CommissionLine {
	lines := []CommissionLine{{
		ID:            uuid.NewString(),
		SaleID:        sale.ID,
		AgentID:       seller.ID,
		Type:          CommissionFYC,
		Amount:        sale.PolicyValue.Mul(plan.FYCRate),
		RateApplied:   plan.FYCRate,
		LevelDistance: 0,
		CreatedAt:     now,
	}}

	for distance, ancestor := range upline {
		rate := plan.OverrideRate(ancestor.Level)
		if rate.IsZero() {
			continue
		}
		lines = append(lines, CommissionLine{
			ID:            uuid.NewString(),
			SaleID:        sale.ID,
			AgentID:       ancestor.ID,
			Type:          CommissionOverride,
			Amount:        sale.PolicyValue.Mul(rate),
			RateApplied:   rate,
			LevelDistance: distance + 1,
			CreatedAt:     now,
		})
	}
	return lines
}

// SnapshotChain freezes the seller and upline as snapshot entries:
// position 0 is the seller, 1..n the ancestors nearest first.
func SnapshotChain(saleID SaleID, seller Agent, upline []Agent) []SnapshotEntry {
	entries := []SnapshotEntry{{SaleID: saleID, AgentID: seller.ID, Position: 0}}
	for i, a := range upline {
		entries = append(entries, SnapshotEntry{SaleID: saleID, AgentID: a.ID, Position: i + 1})
	}
	return entries
}
