package factory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/commission-engine/engine"
	"github.com/warp/commission-engine/factory"
)

func TestParsePlan_EmptyObjectYieldsDefaults(t *testing.T) {
	plan, err := factory.ParsePlan(`{}`)
	require.NoError(t, err)

	def := engine.DefaultPlan()
	assert.True(t, plan.FYCRate.Equal(def.FYCRate))
	assert.Len(t, plan.Tiers, len(def.Tiers))
	assert.True(t, plan.OverrideRate(engine.LevelTeamLead).Equal(engine.MustDecimal("0.02")))
}

func TestParsePlan_OverridesSections(t *testing.T) {
	plan, err := factory.ParsePlan(`{
		"fyc_rate": "0.40",
		"override_rates": {"2": "0.03", "3": "0.02", "4": "0.01"}
	}`)
	require.NoError(t, err)

	assert.True(t, plan.FYCRate.Equal(engine.MustDecimal("0.40")))
	assert.True(t, plan.OverrideRate(engine.LevelTeamLead).Equal(engine.MustDecimal("0.03")))
	// Tiers untouched
	assert.Len(t, plan.Tiers, len(engine.DefaultTiers()))
}

func TestParsePlan_CustomTiers(t *testing.T) {
	plan, err := factory.ParsePlan(`{
		"tiers": [
			{"level": 1, "name": "BASE", "min_volume": "0", "max_volume": "50000", "rate": "0"},
			{"level": 1, "name": "TOP", "min_volume": "50000", "rate": "0.04"}
		]
	}`)
	require.NoError(t, err)

	rate := plan.Tiers.RateFor(engine.LevelAgent, engine.MustDecimal("60000"))
	assert.True(t, rate.Equal(engine.MustDecimal("0.04")))

	rate = plan.Tiers.RateFor(engine.LevelAgent, engine.MustDecimal("49999"))
	assert.True(t, rate.IsZero())
}

func TestParsePlan_Rejections(t *testing.T) {
	cases := map[string]string{
		"bad json":           `{`,
		"negative rate":      `{"fyc_rate": "-0.1"}`,
		"rate above one":     `{"fyc_rate": "1.5"}`,
		"override level 1":   `{"override_rates": {"1": "0.02"}}`,
		"override level 5":   `{"override_rates": {"5": "0.02"}}`,
		"non-numeric rate":   `{"fyc_rate": "half"}`,
		"overlapping tiers":  `{"tiers": [{"level": 1, "name": "A", "min_volume": "0", "max_volume": "100", "rate": "0.01"}, {"level": 1, "name": "B", "min_volume": "50", "rate": "0.02"}]}`,
		"inverted tier band": `{"tiers": [{"level": 1, "name": "A", "min_volume": "100", "max_volume": "50", "rate": "0.01"}]}`,
	}

	for name, input := range cases {
		_, err := factory.ParsePlan(input)
		assert.Error(t, err, name)
	}
}

func TestLoadPlan_EmptyPathReturnsDefault(t *testing.T) {
	plan, err := factory.LoadPlan("")
	require.NoError(t, err)
	assert.True(t, plan.FYCRate.Equal(engine.MustDecimal("0.50")))
}

func TestToJSON_RoundTrip(t *testing.T) {
	original := engine.DefaultPlan()

	pj := factory.ToJSON(original)
	restored, err := factory.FromJSON(pj)
	require.NoError(t, err)

	assert.True(t, restored.FYCRate.Equal(original.FYCRate))
	for level, rate := range original.OverrideRates {
		assert.True(t, restored.OverrideRate(level).Equal(rate), "level %d", level)
	}
	for _, volume := range []string{"0", "25000", "99999", "100000", "5000000"} {
		v := engine.MustDecimal(volume)
		assert.True(t,
			restored.Tiers.RateFor(engine.LevelAgent, v).Equal(original.Tiers.RateFor(engine.LevelAgent, v)),
			"volume %s", volume)
	}
}

func TestDefaultPlanJSON_Parses(t *testing.T) {
	plan, err := factory.ParsePlan(factory.DefaultPlanJSON())
	require.NoError(t, err)
	assert.True(t, plan.FYCRate.Equal(engine.MustDecimal("0.50")))
}
