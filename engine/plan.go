/*
plan.go - Compensation plan: commission rates and bonus tiers

PURPOSE:
  Everything tunable about the program lives here, not in the algorithms:
  the FYC rate, the override rate per upline level, and the volume tier
  table per agent level. The factory package builds plans from JSON so
  the schedule can change without code changes; these defaults mirror the
  production plan.

RATES:
  FYC: 50% of policy value to the selling agent.
  Override, keyed by the ancestor's level: Team Lead 2%, Manager 1.5%,
  Director 1%. Levels strictly increase up the chain, so the schedule is
  monotonically decreasing with level distance.

TIERS:
  Per level, [min, max) volume bands with a bonus rate. The bottom band
  of every level pays 0 - below threshold, no bonus row is written.
*/
package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// COMPENSATION PLAN
// =============================================================================

// CompensationPlan bundles the commission rate schedule and bonus tier
// table. Plans are immutable after construction.
type CompensationPlan struct {
	FYCRate       decimal.Decimal
	OverrideRates map[Level]decimal.Decimal
	Tiers         TierTable
}

// OverrideRate returns the override rate for an ancestor at the given
// level, or zero if the level earns no override.
func (p *CompensationPlan) OverrideRate(level Level) decimal.Decimal {
	if r, ok := p.OverrideRates[level]; ok {
		return r
	}
	return decimal.Zero
}

// Validate checks the plan is internally consistent.
func (p *CompensationPlan) Validate() error {
	if p.FYCRate.IsNegative() || p.FYCRate.GreaterThan(decimal.NewFromInt(1)) {
		return &ValidationError{Field: "fyc_rate", Message: "must be in [0, 1]"}
	}
	for level, rate := range p.OverrideRates {
		if !level.Valid() {
			return &ValidationError{Field: "override_rates", Message: fmt.Sprintf("level %d out of range", level)}
		}
		if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
			return &ValidationError{Field: "override_rates", Message: fmt.Sprintf("rate for level %d must be in [0, 1]", level)}
		}
	}
	return p.Tiers.Validate()
}

// =============================================================================
// PERFORMANCE TIERS
// =============================================================================

// Tier is one volume band for one agent level. MaxVolume nil means
// unbounded. Bands are half-open: MinVolume <= volume < MaxVolume.
type Tier struct {
	Level     Level
	Name      string
	MinVolume decimal.Decimal
	MaxVolume *decimal.Decimal
	Rate      decimal.Decimal
}

// Contains reports whether a volume falls in this band.
func (t Tier) Contains(volume decimal.Decimal) bool {
	if volume.LessThan(t.MinVolume) {
		return false
	}
	return t.MaxVolume == nil || volume.LessThan(*t.MaxVolume)
}

// TierTable holds every level's bands.
type TierTable []Tier

// RateFor finds the bonus rate for an agent level at a volume. Zero when
// no band matches.
func (tt TierTable) RateFor(level Level, volume decimal.Decimal) decimal.Decimal {
	for _, t := range tt {
		if t.Level == level && t.Contains(volume) {
			return t.Rate
		}
	}
	return decimal.Zero
}

// Validate checks rates are sane and bands don't overlap per level.
func (tt TierTable) Validate() error {
	for i, t := range tt {
		if !t.Level.Valid() {
			return &ValidationError{Field: "tiers", Message: fmt.Sprintf("tier %d: level %d out of range", i, t.Level)}
		}
		if t.Rate.IsNegative() || t.Rate.GreaterThan(decimal.NewFromInt(1)) {
			return &ValidationError{Field: "tiers", Message: fmt.Sprintf("tier %q: rate must be in [0, 1]", t.Name)}
		}
		if t.MinVolume.IsNegative() {
			return &ValidationError{Field: "tiers", Message: fmt.Sprintf("tier %q: min_volume must be >= 0", t.Name)}
		}
		if t.MaxVolume != nil && !t.MinVolume.LessThan(*t.MaxVolume) {
			return &ValidationError{Field: "tiers", Message: fmt.Sprintf("tier %q: min_volume must be below max_volume", t.Name)}
		}
		for j, other := range tt {
			if j <= i || other.Level != t.Level {
				continue
			}
			if t.Contains(other.MinVolume) || other.Contains(t.MinVolume) {
				return &ValidationError{Field: "tiers", Message: fmt.Sprintf("tiers %q and %q overlap for level %d", t.Name, other.Name, t.Level)}
			}
		}
	}
	return nil
}

// =============================================================================
// DEFAULT PLAN
// =============================================================================

// DefaultPlan returns the production compensation plan.
func DefaultPlan() *CompensationPlan {
	return &CompensationPlan{
		FYCRate: MustDecimal("0.50"),
		OverrideRates: map[Level]decimal.Decimal{
			LevelTeamLead: MustDecimal("0.02"),
			LevelManager:  MustDecimal("0.015"),
			LevelDirector: MustDecimal("0.01"),
		},
		Tiers: DefaultTiers(),
	}
}

// DefaultTiers returns the production tier table.
func DefaultTiers() TierTable {
	band := func(level Level, name string, min string, max string, rate string) Tier {
		t := Tier{Level: level, Name: name, MinVolume: MustDecimal(min), Rate: MustDecimal(rate)}
		if max != "" {
			m := MustDecimal(max)
			t.MaxVolume = &m
		}
		return t
	}
	return TierTable{
		band(LevelAgent, "BRONZE", "0", "25000", "0"),
		band(LevelAgent, "SILVER", "25000", "50000", "0.02"),
		band(LevelAgent, "GOLD", "50000", "100000", "0.03"),
		band(LevelAgent, "PLATINUM", "100000", "", "0.05"),

		band(LevelTeamLead, "BRONZE", "0", "100000", "0"),
		band(LevelTeamLead, "SILVER", "100000", "250000", "0.03"),
		band(LevelTeamLead, "GOLD", "250000", "500000", "0.05"),
		band(LevelTeamLead, "PLATINUM", "500000", "", "0.07"),

		band(LevelManager, "BRONZE", "0", "500000", "0"),
		band(LevelManager, "SILVER", "500000", "1000000", "0.04"),
		band(LevelManager, "GOLD", "1000000", "2000000", "0.06"),
		band(LevelManager, "PLATINUM", "2000000", "", "0.08"),

		band(LevelDirector, "BRONZE", "0", "1000000", "0"),
		band(LevelDirector, "SILVER", "1000000", "3000000", "0.05"),
		band(LevelDirector, "GOLD", "3000000", "5000000", "0.07"),
		band(LevelDirector, "PLATINUM", "5000000", "", "0.10"),
	}
}
