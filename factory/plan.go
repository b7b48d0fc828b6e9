/*
Package factory provides JSON to Go compensation plan conversion.

PURPOSE:
  Converts JSON plan definitions into engine.CompensationPlan values.
  This enables plan configuration without code changes - comp operations
  can define rate schedules in JSON, and the factory creates the proper
  Go structs.

WHY JSON?
  - Non-developers can modify rate schedules
  - Easy integration with admin UI
  - Version control for plan definitions
  - Database storage of plan configs

JSON SCHEMA:
  {
    "name": "standard-2026",
    "fyc_rate": "0.50",
    "override_rates": {
      "2": "0.02",
      "3": "0.015",
      "4": "0.01"
    },
    "tiers": [
      {"level": 1, "name": "Bronze", "min_volume": "25000", "max_volume": "50000", "rate": "0.02"},
      {"level": 1, "name": "Silver", "min_volume": "50000", "max_volume": "100000", "rate": "0.03"}
    ]
  }

KEY FEATURES:
  - Validates rates and tier bands (gaps, overlaps, bounds)
  - Rates are decimal strings, never floats
  - Missing sections fall back to the default plan values
  - Round-trips back to JSON for admin display

USAGE:
  plan, err := factory.ParsePlan(jsonString)
  if err != nil {
      log.Fatal(err)
  }
  eng := engine.New(store, plan)

  // Or load from a file path with a default fallback:
  plan, err := factory.LoadPlan(cfg.PlanPath)

SEE ALSO:
  - engine/plan.go: CompensationPlan and TierTable definitions
  - engine/bonus.go: how tier rates are applied to period volume
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/warp/commission-engine/engine"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PlanJSON is the JSON representation of a compensation plan.
type PlanJSON struct {
	Name          string            `json:"name,omitempty"`
	FYCRate       string            `json:"fyc_rate,omitempty"`
	OverrideRates map[string]string `json:"override_rates,omitempty"` // level -> rate
	Tiers         []TierJSON        `json:"tiers,omitempty"`
}

// TierJSON represents one bonus tier band.
type TierJSON struct {
	Level     int    `json:"level"`
	Name      string `json:"name"`
	MinVolume string `json:"min_volume"`
	MaxVolume string `json:"max_volume,omitempty"` // empty = unbounded
	Rate      string `json:"rate"`
}

// =============================================================================
// PARSING
// =============================================================================

// ParsePlan parses a JSON string into a CompensationPlan. Sections absent
// from the JSON keep the default plan's values, so `{}` yields the
// standard plan unchanged.
func ParsePlan(jsonStr string) (*engine.CompensationPlan, error) {
	var pj PlanJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return nil, fmt.Errorf("failed to parse plan JSON: %w", err)
	}
	return FromJSON(pj)
}

// LoadPlan reads a plan JSON file. An empty path returns the default plan.
func LoadPlan(path string) (*engine.CompensationPlan, error) {
	if path == "" {
		return engine.DefaultPlan(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	return ParsePlan(string(data))
}

// FromJSON converts PlanJSON to an engine.CompensationPlan.
func FromJSON(pj PlanJSON) (*engine.CompensationPlan, error) {
	plan := engine.DefaultPlan()

	if pj.FYCRate != "" {
		rate, err := parseRate("fyc_rate", pj.FYCRate)
		if err != nil {
			return nil, err
		}
		plan.FYCRate = rate
	}

	if len(pj.OverrideRates) > 0 {
		overrides := make(map[engine.Level]decimal.Decimal, len(pj.OverrideRates))
		for levelStr, rateStr := range pj.OverrideRates {
			var level int
			if _, err := fmt.Sscanf(levelStr, "%d", &level); err != nil {
				return nil, fmt.Errorf("invalid override level %q", levelStr)
			}
			if level < 2 || level > int(engine.MaxLevel) {
				return nil, fmt.Errorf("override level %d out of range [2, %d]", level, engine.MaxLevel)
			}
			rate, err := parseRate("override_rates."+levelStr, rateStr)
			if err != nil {
				return nil, err
			}
			overrides[engine.Level(level)] = rate
		}
		plan.OverrideRates = overrides
	}

	if len(pj.Tiers) > 0 {
		tiers, err := parseTiers(pj.Tiers)
		if err != nil {
			return nil, err
		}
		plan.Tiers = tiers
	}

	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

func parseTiers(tjs []TierJSON) (engine.TierTable, error) {
	var table engine.TierTable
	for i, tj := range tjs {
		if tj.Level < 1 || tj.Level > int(engine.MaxLevel) {
			return nil, fmt.Errorf("tier %d: level %d out of range", i, tj.Level)
		}
		min, err := parseRate(fmt.Sprintf("tiers[%d].min_volume", i), tj.MinVolume)
		if err != nil {
			return nil, err
		}
		rate, err := parseRate(fmt.Sprintf("tiers[%d].rate", i), tj.Rate)
		if err != nil {
			return nil, err
		}
		tier := engine.Tier{
			Level:     engine.Level(tj.Level),
			Name:      tj.Name,
			MinVolume: min,
			Rate:      rate,
		}
		if tj.MaxVolume != "" {
			max, err := parseRate(fmt.Sprintf("tiers[%d].max_volume", i), tj.MaxVolume)
			if err != nil {
				return nil, err
			}
			tier.MaxVolume = &max
		}
		table = append(table, tier)
	}
	return table, nil
}

func parseRate(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal for %s: %q", field, raw)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative, got %s", field, raw)
	}
	return d, nil
}

// =============================================================================
// SERIALIZATION
// =============================================================================

// ToJSON converts a CompensationPlan back to its JSON form.
func ToJSON(plan *engine.CompensationPlan) PlanJSON {
	pj := PlanJSON{
		FYCRate:       plan.FYCRate.String(),
		OverrideRates: make(map[string]string, len(plan.OverrideRates)),
	}
	for level, rate := range plan.OverrideRates {
		pj.OverrideRates[fmt.Sprintf("%d", level)] = rate.String()
	}
	for _, tier := range plan.Tiers {
		tj := TierJSON{
			Level:     int(tier.Level),
			Name:      tier.Name,
			MinVolume: tier.MinVolume.String(),
			Rate:      tier.Rate.String(),
		}
		if tier.MaxVolume != nil {
			tj.MaxVolume = tier.MaxVolume.String()
		}
		pj.Tiers = append(pj.Tiers, tj)
	}
	return pj
}

// DefaultPlanJSON returns the standard plan serialized to a JSON string,
// useful as a starting point for a custom plan file.
func DefaultPlanJSON() string {
	data, _ := json.MarshalIndent(ToJSON(engine.DefaultPlan()), "", "  ")
	return string(data)
}
