/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY AT THE BOUNDARY:
  Internally every amount is a shopspring decimal. DTOs expose float64
  because that is what JSON clients expect; the conversion happens only
  here, never in domain logic.

VALIDATION:
  Request structs carry go-playground/validator tags; handlers run the
  shared validate instance before touching the engine. Domain rules the
  tags can't express (hierarchy links, duplicate policies) stay in the
  engine.

SEE ALSO:
  - handlers.go: Uses these types
  - engine/types.go: domain model these map from
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/warp/commission-engine/engine"
)

// =============================================================================
// AGENTS
// =============================================================================

// AgentDTO represents an agent in API responses. Children is populated
// only by the unfiltered list endpoint, which returns the nested
// hierarchy from the roots down.
type AgentDTO struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Level     int        `json:"level"`
	LevelName string     `json:"level_name"`
	ParentID  *int64     `json:"parent_id"`
	Children  []AgentDTO `json:"children,omitempty"`
	CreatedAt string     `json:"created_at,omitempty"`
}

// CreateAgentRequest is the request to create an agent.
type CreateAgentRequest struct {
	Name     string `json:"name" validate:"required"`
	Level    int    `json:"level" validate:"required,min=1,max=4"`
	ParentID *int64 `json:"parent_id" validate:"omitempty,min=1"`
}

// UpdateAgentRequest is the request to update an agent. All fields are
// optional; parent_id distinguishes "absent" from an explicit null, which
// detaches a Director from any parent.
type UpdateAgentRequest struct {
	Name     *string `json:"-" validate:"omitempty,min=1"`
	Level    *int    `json:"-" validate:"omitempty,min=1,max=4"`
	ParentID *int64  `json:"-" validate:"omitempty,min=1"`

	ParentSet bool `json:"-"`
}

// UnmarshalJSON tracks whether parent_id appeared in the body at all.
func (u *UpdateAgentRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name     *string `json:"name"`
		Level    *int    `json:"level"`
		ParentID *int64  `json:"parent_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}

	u.Name = raw.Name
	u.Level = raw.Level
	u.ParentID = raw.ParentID
	_, u.ParentSet = keys["parent_id"]
	return nil
}

// =============================================================================
// SALES AND COMMISSIONS
// =============================================================================

// SaleDTO represents a sale in API responses. AgentName is joined in by
// the list endpoint so clients don't have to resolve ids themselves.
type SaleDTO struct {
	ID           int64   `json:"id"`
	PolicyNumber string  `json:"policy_number"`
	PolicyValue  float64 `json:"policy_value"`
	AgentID      int64   `json:"agent_id"`
	AgentName    string  `json:"agent_name,omitempty"`
	SaleDate     string  `json:"sale_date"`
	IsCancelled  bool    `json:"is_cancelled"`
	CreatedAt    string  `json:"created_at,omitempty"`
}

// RecordSaleRequest is the request to record a sale.
type RecordSaleRequest struct {
	PolicyNumber string  `json:"policy_number" validate:"required,min=3"`
	PolicyValue  float64 `json:"policy_value" validate:"required"`
	AgentID      int64   `json:"agent_id" validate:"required,min=1"`
	SaleDate     string  `json:"sale_date" validate:"omitempty,datetime=2006-01-02"`
}

// CommissionLineDTO represents one commission entry.
type CommissionLineDTO struct {
	ID            string  `json:"id"`
	SaleID        int64   `json:"sale_id"`
	AgentID       int64   `json:"agent_id"`
	Type          string  `json:"commission_type"`
	Amount        float64 `json:"amount"`
	RateApplied   float64 `json:"rate_applied"`
	LevelDistance int     `json:"level_distance"`
	Reversed      bool    `json:"reversed"`
	CreatedAt     string  `json:"created_at,omitempty"`
}

// RecordSaleResponse is the response after recording a sale.
type RecordSaleResponse struct {
	Sale        SaleDTO             `json:"sale"`
	Commissions []CommissionLineDTO `json:"commissions"`
}

// =============================================================================
// BONUSES
// =============================================================================

// CalculateBonusesRequest is the request to run a bonus calculation.
type CalculateBonusesRequest struct {
	Type   string `json:"type" validate:"required,oneof=Monthly Quarterly Annual"`
	Period string `json:"period" validate:"required"`
}

// BonusDTO represents one agent's bonus for a period. AgentName is
// joined in by the list endpoint.
type BonusDTO struct {
	ID        int64   `json:"id"`
	AgentID   int64   `json:"agent_id"`
	AgentName string  `json:"agent_name,omitempty"`
	Period    string  `json:"period"`
	Type      string  `json:"bonus_type"`
	Amount    float64 `json:"amount"`
	CreatedAt string  `json:"created_at,omitempty"`
	UpdatedAt string  `json:"updated_at,omitempty"`
}

// BonusRunDTO is the response after a bonus calculation run.
type BonusRunDTO struct {
	Message string     `json:"message"`
	Type    string     `json:"type"`
	Period  string     `json:"period"`
	Created int        `json:"created"`
	Updated int        `json:"updated"`
	Bonuses []BonusDTO `json:"bonuses"`
}

// =============================================================================
// CLAWBACKS AND DASHBOARD
// =============================================================================

// ClawbackEventDTO records the reversals from one cancellation.
type ClawbackEventDTO struct {
	ID                      string  `json:"id"`
	SaleID                  int64   `json:"sale_id"`
	ReversedCommissionTotal float64 `json:"reversed_commission_total"`
	ReversedBonusTotal      float64 `json:"reversed_bonus_total"`
	CreatedAt               string  `json:"created_at,omitempty"`
}

// CancelSaleResponse is the response after cancelling a sale.
type CancelSaleResponse struct {
	Message  string           `json:"message"`
	Clawback ClawbackEventDTO `json:"clawback"`
}

// SummaryDTO is the dashboard summary.
type SummaryDTO struct {
	TotalSalesValue      float64 `json:"total_sales_value"`
	TotalCommissionsPaid float64 `json:"total_commissions_paid"`
	TotalBonusesPaid     float64 `json:"total_bonuses_paid"`
	TotalClawbacksValue  float64 `json:"total_clawbacks_value"`
	AgentCount           int     `json:"agent_count"`
}

// =============================================================================
// SCENARIOS AND ERRORS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the request to load a demo scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toAgentDTO(a engine.Agent) AgentDTO {
	dto := AgentDTO{
		ID:        int64(a.ID),
		Name:      a.Name,
		Level:     int(a.Level),
		LevelName: a.Level.String(),
		CreatedAt: a.CreatedAt.Format(time.RFC3339),
	}
	if a.ParentID != nil {
		pid := int64(*a.ParentID)
		dto.ParentID = &pid
	}
	return dto
}

// toAgentTree nests agents under their parents, roots first. Order
// follows the flat input, so store ordering carries through each level.
func toAgentTree(agents []engine.Agent) []AgentDTO {
	h := engine.NewHierarchy(agents)
	var build func(a engine.Agent) AgentDTO
	build = func(a engine.Agent) AgentDTO {
		dto := toAgentDTO(a)
		for _, child := range h.ChildrenOf(a.ID) {
			dto.Children = append(dto.Children, build(child))
		}
		return dto
	}

	roots := make([]AgentDTO, 0)
	for _, a := range agents {
		if a.ParentID == nil {
			roots = append(roots, build(a))
		}
	}
	return roots
}

func toSaleDTO(s engine.Sale) SaleDTO {
	value, _ := s.PolicyValue.Float64()
	return SaleDTO{
		ID:           int64(s.ID),
		PolicyNumber: s.PolicyNumber,
		PolicyValue:  value,
		AgentID:      int64(s.AgentID),
		SaleDate:     s.SaleDate.Format("2006-01-02"),
		IsCancelled:  s.IsCancelled,
		CreatedAt:    s.CreatedAt.Format(time.RFC3339),
	}
}

func toCommissionLineDTO(l engine.CommissionLine) CommissionLineDTO {
	amount, _ := l.Amount.Float64()
	rate, _ := l.RateApplied.Float64()
	return CommissionLineDTO{
		ID:            l.ID,
		SaleID:        int64(l.SaleID),
		AgentID:       int64(l.AgentID),
		Type:          string(l.Type),
		Amount:        amount,
		RateApplied:   rate,
		LevelDistance: l.LevelDistance,
		Reversed:      l.Reversed,
		CreatedAt:     l.CreatedAt.Format(time.RFC3339),
	}
}

func toCommissionLineDTOs(lines []engine.CommissionLine) []CommissionLineDTO {
	dtos := make([]CommissionLineDTO, len(lines))
	for i, l := range lines {
		dtos[i] = toCommissionLineDTO(l)
	}
	return dtos
}

func toBonusDTO(b engine.Bonus) BonusDTO {
	amount, _ := b.Amount.Float64()
	return BonusDTO{
		ID:        int64(b.ID),
		AgentID:   int64(b.AgentID),
		Period:    b.Period,
		Type:      string(b.Type),
		Amount:    amount,
		CreatedAt: b.CreatedAt.Format(time.RFC3339),
		UpdatedAt: b.UpdatedAt.Format(time.RFC3339),
	}
}

func toBonusDTOs(bonuses []engine.Bonus) []BonusDTO {
	dtos := make([]BonusDTO, len(bonuses))
	for i, b := range bonuses {
		dtos[i] = toBonusDTO(b)
	}
	return dtos
}

func toClawbackEventDTO(ev engine.ClawbackEvent) ClawbackEventDTO {
	commissionTotal, _ := ev.ReversedCommissionTotal.Float64()
	bonusTotal, _ := ev.ReversedBonusTotal.Float64()
	return ClawbackEventDTO{
		ID:                      ev.ID,
		SaleID:                  int64(ev.SaleID),
		ReversedCommissionTotal: commissionTotal,
		ReversedBonusTotal:      bonusTotal,
		CreatedAt:               ev.CreatedAt.Format(time.RFC3339),
	}
}

func toSummaryDTO(s engine.Summary) SummaryDTO {
	sales, _ := s.TotalSalesValue.Float64()
	commissions, _ := s.TotalCommissionsPaid.Float64()
	bonuses, _ := s.TotalBonusesPaid.Float64()
	clawbacks, _ := s.TotalClawbacksValue.Float64()
	return SummaryDTO{
		TotalSalesValue:      sales,
		TotalCommissionsPaid: commissions,
		TotalBonusesPaid:     bonuses,
		TotalClawbacksValue:  clawbacks,
		AgentCount:           s.AgentCount,
	}
}
