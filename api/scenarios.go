/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates an agent hierarchy
	and sales that demonstrate specific features of the engine.

AVAILABLE SCENARIOS:

	starter-team:   One full chain (Director down to two Agents), a few sales
	full-org:       Two branches, sales spread over a quarter, bonuses run
	clawback-demo:  Recorded sales with one cancellation and its clawback

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create agents top-down so parent links resolve
 3. Record sales through the engine (commissions computed as usual)
 4. Optionally run bonus calculations or cancellations

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "full-org"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, h)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: shared helpers and error mapping
  - engine/engine.go: the operations scenarios drive
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/commission-engine/engine"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "starter-team",
		Name:        "Starter Team",
		Description: "One chain from Director to two Agents with a handful of sales",
	},
	{
		ID:          "full-org",
		Name:        "Full Organization",
		Description: "Two branches, a quarter of sales, monthly bonuses calculated",
	},
	{
		ID:          "clawback-demo",
		Name:        "Clawback Demo",
		Description: "Sales plus one cancellation showing commission and bonus reversal",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}

	// Scenario ID exists but not in list (shouldn't happen)
	writeJSON(w, http.StatusOK, ScenarioDTO{
		ID:          h.currentScenario,
		Name:        h.currentScenario,
		Description: "Currently loaded scenario",
	})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	ctx := r.Context()

	// Reset first
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	var err error
	switch req.ScenarioID {
	case "starter-team":
		err = loadStarterTeamScenario(ctx, h)
	case "full-org":
		err = loadFullOrgScenario(ctx, h)
	case "clawback-demo":
		err = loadClawbackDemoScenario(ctx, h)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown scenario: %s", req.ScenarioID), nil)
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Scenario %q loaded", req.ScenarioID),
	})
}

// ResetDatabase wipes all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"message": "Database reset"})
}

// =============================================================================
// SCENARIO BUILD HELPERS
// =============================================================================

type scenarioBuilder struct {
	h   *Handler
	ctx context.Context
	err error
}

// agent creates one agent, remembering the first error.
func (b *scenarioBuilder) agent(name string, level engine.Level, parentID *engine.AgentID) engine.AgentID {
	if b.err != nil {
		return 0
	}
	a, err := b.h.Engine.CreateAgent(b.ctx, engine.CreateAgentInput{
		Name:     name,
		Level:    level,
		ParentID: parentID,
	})
	if err != nil {
		b.err = fmt.Errorf("create agent %q: %w", name, err)
		return 0
	}
	return a.ID
}

// sale records one sale on a given date.
func (b *scenarioBuilder) sale(policyNumber string, value string, agentID engine.AgentID, date string) engine.SaleID {
	if b.err != nil {
		return 0
	}
	saleDate, err := time.Parse("2006-01-02", date)
	if err != nil {
		b.err = fmt.Errorf("sale %s: %w", policyNumber, err)
		return 0
	}
	s, _, err := b.h.Engine.RecordSale(b.ctx, engine.RecordSaleInput{
		PolicyNumber: policyNumber,
		PolicyValue:  mustDecimal(value),
		AgentID:      agentID,
		SaleDate:     saleDate,
	})
	if err != nil {
		b.err = fmt.Errorf("record sale %s: %w", policyNumber, err)
		return 0
	}
	return s.ID
}

// bonuses runs one bonus calculation.
func (b *scenarioBuilder) bonuses(bonusType engine.BonusType, period string) {
	if b.err != nil {
		return
	}
	if _, err := b.h.Engine.CalculateBonuses(b.ctx, bonusType, period); err != nil {
		b.err = fmt.Errorf("calculate %s bonuses for %s: %w", bonusType, period, err)
	}
}

// cancel cancels one sale.
func (b *scenarioBuilder) cancel(saleID engine.SaleID) {
	if b.err != nil {
		return
	}
	if _, err := b.h.Engine.CancelSale(b.ctx, saleID); err != nil {
		b.err = fmt.Errorf("cancel sale %d: %w", saleID, err)
	}
}

func ref(id engine.AgentID) *engine.AgentID { return &id }

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(fmt.Sprintf("bad scenario decimal %q", s))
	}
	return d
}

// =============================================================================
// SCENARIO: STARTER TEAM
// =============================================================================

// loadStarterTeamScenario builds a single chain and a few sales. Good for
// walking through commission math by hand.
func loadStarterTeamScenario(ctx context.Context, h *Handler) error {
	b := &scenarioBuilder{h: h, ctx: ctx}

	director := b.agent("Dana Whitfield", engine.LevelDirector, nil)
	manager := b.agent("Marcus Obi", engine.LevelManager, ref(director))
	lead := b.agent("Tessa Lindqvist", engine.LevelTeamLead, ref(manager))
	alice := b.agent("Alice Romero", engine.LevelAgent, ref(lead))
	ben := b.agent("Ben Takahashi", engine.LevelAgent, ref(lead))

	b.sale("POL-1001", "100000", alice, "2026-07-03")
	b.sale("POL-1002", "45000", ben, "2026-07-11")
	b.sale("POL-1003", "32000", alice, "2026-07-21")

	return b.err
}

// =============================================================================
// SCENARIO: FULL ORGANIZATION
// =============================================================================

// loadFullOrgScenario builds two branches under one Director, records a
// quarter of sales, and runs the July monthly bonuses so the dashboard
// has every record type populated.
func loadFullOrgScenario(ctx context.Context, h *Handler) error {
	b := &scenarioBuilder{h: h, ctx: ctx}

	director := b.agent("Dana Whitfield", engine.LevelDirector, nil)

	east := b.agent("Marcus Obi", engine.LevelManager, ref(director))
	eastLead := b.agent("Tessa Lindqvist", engine.LevelTeamLead, ref(east))
	alice := b.agent("Alice Romero", engine.LevelAgent, ref(eastLead))
	ben := b.agent("Ben Takahashi", engine.LevelAgent, ref(eastLead))

	west := b.agent("Priya Raman", engine.LevelManager, ref(director))
	westLead := b.agent("Oscar Dele", engine.LevelTeamLead, ref(west))
	carla := b.agent("Carla Nguyen", engine.LevelAgent, ref(westLead))

	// July
	b.sale("POL-2001", "120000", alice, "2026-07-02")
	b.sale("POL-2002", "80000", ben, "2026-07-09")
	b.sale("POL-2003", "60000", carla, "2026-07-15")
	b.sale("POL-2004", "30000", alice, "2026-07-28")

	// August
	b.sale("POL-2005", "200000", carla, "2026-08-04")
	b.sale("POL-2006", "55000", ben, "2026-08-13")

	// September
	b.sale("POL-2007", "95000", alice, "2026-09-01")

	b.bonuses(engine.BonusMonthly, "2026-07")
	b.bonuses(engine.BonusQuarterly, "2026-Q3")

	return b.err
}

// =============================================================================
// SCENARIO: CLAWBACK DEMO
// =============================================================================

// loadClawbackDemoScenario records sales, calculates bonuses, then cancels
// the largest sale so the clawback trail is visible end to end.
func loadClawbackDemoScenario(ctx context.Context, h *Handler) error {
	b := &scenarioBuilder{h: h, ctx: ctx}

	director := b.agent("Dana Whitfield", engine.LevelDirector, nil)
	manager := b.agent("Marcus Obi", engine.LevelManager, ref(director))
	lead := b.agent("Tessa Lindqvist", engine.LevelTeamLead, ref(manager))
	alice := b.agent("Alice Romero", engine.LevelAgent, ref(lead))

	b.sale("POL-3001", "150000", alice, "2026-07-05")
	big := b.sale("POL-3002", "400000", alice, "2026-07-12")
	b.sale("POL-3003", "25000", alice, "2026-07-19")

	b.bonuses(engine.BonusMonthly, "2026-07")
	b.cancel(big)

	return b.err
}
