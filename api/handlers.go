/*
handlers.go - HTTP API handlers for the commission engine

PURPOSE:
  Exposes the commission engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Agents:
    GET    /api/agents                 List all agents
    POST   /api/agents                 Create agent
    GET    /api/agents/{id}            Get agent details
    PUT    /api/agents/{id}            Update agent
    DELETE /api/agents/{id}            Delete agent (blocked if in use)

  Sales:
    GET    /api/sales                  List all sales
    POST   /api/sales                  Record sale (computes commissions)
    GET    /api/sales/{id}/commissions Commission lines for a sale
    PUT    /api/sales/{id}/cancel      Cancel sale (runs clawback)

  Bonuses:
    GET    /api/bonuses                List all bonuses
    POST   /api/bonuses/calculate      Run a bonus calculation for a period

  Clawbacks:
    GET    /api/clawbacks              List clawback events

  Dashboard:
    GET    /api/dashboard/summary      Aggregate totals

  Scenarios:
    GET    /api/scenarios              List demo scenarios
    POST   /api/scenarios/load         Load a demo scenario
    POST   /api/scenarios/reset        Wipe the database (dev only)

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Engine: domain logic (commissions, bonuses, clawbacks)
  - Store:  direct reads for list endpoints
  - validate: shared validator instance for request DTOs

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input (struct tags first, domain rules in the engine)
  3. Call domain logic
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, bad period keys
  - 404: Agent or sale not found
  - 409: Conflict (duplicate policy, double cancel, hierarchy break)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warp/commission-engine/engine"
	"github.com/warp/commission-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *engine.Engine
	Store  *sqlite.Store

	validate *validator.Validate

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler around the engine and its store.
func NewHandler(eng *engine.Engine, store *sqlite.Store) *Handler {
	return &Handler{
		Engine:   eng,
		Store:    store,
		validate: validator.New(),
	}
}

// =============================================================================
// AGENT HANDLERS
// =============================================================================

// ListAgents returns the agent hierarchy. Without a filter the response
// is the nested tree from the roots down; ?level=N returns a flat list
// of that level only.
func (h *Handler) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.Store.ListAgents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list agents", err)
		return
	}

	if raw := r.URL.Query().Get("level"); raw != "" {
		level, err := strconv.Atoi(raw)
		if err != nil || !engine.Level(level).Valid() {
			writeError(w, http.StatusBadRequest, "Invalid level filter: must be 1-4", nil)
			return
		}

		dtos := make([]AgentDTO, 0)
		for _, a := range agents {
			if a.Level == engine.Level(level) {
				dtos = append(dtos, toAgentDTO(a))
			}
		}
		writeJSON(w, http.StatusOK, dtos)
		return
	}

	writeJSON(w, http.StatusOK, toAgentTree(agents))
}

// GetAgent returns a single agent.
func (h *Handler) GetAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	agent, err := h.Store.GetAgent(r.Context(), engine.AgentID(id))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get agent", err)
		return
	}
	if agent == nil {
		writeError(w, http.StatusNotFound, "Agent not found", nil)
		return
	}

	writeJSON(w, http.StatusOK, toAgentDTO(*agent))
}

// CreateAgent creates a new agent, validating its place in the hierarchy.
func (h *Handler) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var req CreateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	input := engine.CreateAgentInput{
		Name:  req.Name,
		Level: engine.Level(req.Level),
	}
	if req.ParentID != nil {
		pid := engine.AgentID(*req.ParentID)
		input.ParentID = &pid
	}

	agent, err := h.Engine.CreateAgent(r.Context(), input)
	if err != nil {
		writeEngineError(w, "Failed to create agent", err)
		return
	}

	writeJSON(w, http.StatusCreated, toAgentDTO(agent))
}

// UpdateAgent applies a partial update to an agent.
func (h *Handler) UpdateAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req UpdateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	input := engine.UpdateAgentInput{
		Name:      req.Name,
		ParentSet: req.ParentSet,
	}
	if req.Level != nil {
		level := engine.Level(*req.Level)
		input.Level = &level
	}
	if req.ParentID != nil {
		pid := engine.AgentID(*req.ParentID)
		input.ParentID = &pid
	}

	agent, err := h.Engine.UpdateAgent(r.Context(), engine.AgentID(id), input)
	if err != nil {
		writeEngineError(w, "Failed to update agent", err)
		return
	}

	writeJSON(w, http.StatusOK, toAgentDTO(agent))
}

// DeleteAgent removes an agent with no sales, commissions, or children.
func (h *Handler) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.Engine.DeleteAgent(r.Context(), engine.AgentID(id)); err != nil {
		writeEngineError(w, "Failed to delete agent", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("Agent %d deleted", id)})
}

// =============================================================================
// SALE HANDLERS
// =============================================================================

// ListSales returns all sales, newest first.
func (h *Handler) ListSales(w http.ResponseWriter, r *http.Request) {
	sales, err := h.Store.ListSales(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sales", err)
		return
	}
	names, err := h.agentNames(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sales", err)
		return
	}

	dtos := make([]SaleDTO, len(sales))
	for i, s := range sales {
		dtos[i] = toSaleDTO(s)
		dtos[i].AgentName = names[s.AgentID]
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RecordSale records a sale and returns the commission lines it generated.
func (h *Handler) RecordSale(w http.ResponseWriter, r *http.Request) {
	var req RecordSaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	saleDate := time.Now().UTC()
	if req.SaleDate != "" {
		parsed, err := time.Parse("2006-01-02", req.SaleDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid sale_date format (use YYYY-MM-DD)", err)
			return
		}
		saleDate = parsed
	}

	sale, lines, err := h.Engine.RecordSale(r.Context(), engine.RecordSaleInput{
		PolicyNumber: req.PolicyNumber,
		PolicyValue:  decimal.NewFromFloat(req.PolicyValue),
		AgentID:      engine.AgentID(req.AgentID),
		SaleDate:     saleDate,
	})
	if err != nil {
		writeEngineError(w, "Failed to record sale", err)
		return
	}

	writeJSON(w, http.StatusCreated, RecordSaleResponse{
		Sale:        toSaleDTO(sale),
		Commissions: toCommissionLineDTOs(lines),
	})
}

// GetSaleCommissions returns the commission lines for one sale.
func (h *Handler) GetSaleCommissions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	sale, err := h.Store.GetSale(r.Context(), engine.SaleID(id))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get sale", err)
		return
	}
	if sale == nil {
		writeError(w, http.StatusNotFound, "Sale not found", nil)
		return
	}

	lines, err := h.Store.CommissionLinesBySale(r.Context(), engine.SaleID(id))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get commissions", err)
		return
	}

	writeJSON(w, http.StatusOK, toCommissionLineDTOs(lines))
}

// CancelSale cancels a sale and runs the clawback.
func (h *Handler) CancelSale(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	event, err := h.Engine.CancelSale(r.Context(), engine.SaleID(id))
	if err != nil {
		writeEngineError(w, "Failed to cancel sale", err)
		return
	}

	writeJSON(w, http.StatusOK, CancelSaleResponse{
		Message:  fmt.Sprintf("Sale %d cancelled", id),
		Clawback: toClawbackEventDTO(event),
	})
}

// =============================================================================
// BONUS HANDLERS
// =============================================================================

// ListBonuses returns all bonuses.
func (h *Handler) ListBonuses(w http.ResponseWriter, r *http.Request) {
	bonuses, err := h.Store.ListBonuses(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list bonuses", err)
		return
	}
	names, err := h.agentNames(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list bonuses", err)
		return
	}

	dtos := toBonusDTOs(bonuses)
	for i := range dtos {
		dtos[i].AgentName = names[engine.AgentID(dtos[i].AgentID)]
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CalculateBonuses runs the bonus calculation for one type and period.
// Re-running the same period replaces its rows.
func (h *Handler) CalculateBonuses(w http.ResponseWriter, r *http.Request) {
	var req CalculateBonusesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	run, err := h.Engine.CalculateBonuses(r.Context(), engine.BonusType(req.Type), req.Period)
	if err != nil {
		writeEngineError(w, "Failed to calculate bonuses", err)
		return
	}

	writeJSON(w, http.StatusOK, BonusRunDTO{
		Message: run.Message(),
		Type:    string(run.Type),
		Period:  run.Period,
		Created: run.Created,
		Updated: run.Replaced,
		Bonuses: toBonusDTOs(run.Bonuses),
	})
}

// =============================================================================
// CLAWBACK HANDLERS
// =============================================================================

// ListClawbacks returns all clawback events, newest first.
func (h *Handler) ListClawbacks(w http.ResponseWriter, r *http.Request) {
	events, err := h.Store.ListClawbackEvents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list clawbacks", err)
		return
	}

	dtos := make([]ClawbackEventDTO, len(events))
	for i, ev := range events {
		dtos[i] = toClawbackEventDTO(ev)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// DASHBOARD HANDLERS
// =============================================================================

// GetSummary returns aggregate program totals over live records.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Engine.Summary(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute summary", err)
		return
	}

	writeJSON(w, http.StatusOK, toSummaryDTO(summary))
}

// =============================================================================
// HELPERS
// =============================================================================

// agentNames builds an id -> name map for joining names into list
// responses.
func (h *Handler) agentNames(ctx context.Context) (map[engine.AgentID]string, error) {
	agents, err := h.Store.ListAgents(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[engine.AgentID]string, len(agents))
	for _, a := range agents {
		names[a.ID] = a.Name
	}
	return names, nil
}

// pathID parses a positive integer URL parameter, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s: %q", name, raw), nil)
		return 0, false
	}
	return id, true
}

// writeEngineError maps engine errors onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, message string, err error) {
	switch {
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case engine.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case engine.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
