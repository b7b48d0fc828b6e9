/*
engine.go - Engine orchestration: agents and sale recording

PURPOSE:
  The Engine ties the pure algorithms (hierarchy walks, commission
  derivation, period math) to the store. Every mutating operation runs
  inside one store transaction; validation happens before any write.

OPERATIONS (this file):
  CreateAgent / UpdateAgent / DeleteAgent - hierarchy management
  RecordSale - sale + snapshot + commission lines, all-or-nothing

SEE ALSO:
  - bonus.go: CalculateBonuses
  - clawback.go: CancelSale
  - summary.go: Summary
*/
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Engine executes the commission program's operations against a store.
type Engine struct {
	Store TxStore
	Plan  *CompensationPlan

	// Now is the clock; overridable in tests.
	Now func() time.Time
}

// New creates an engine with the given store and plan. A nil plan means
// the default production plan.
func New(store TxStore, plan *CompensationPlan) *Engine {
	if plan == nil {
		plan = DefaultPlan()
	}
	return &Engine{Store: store, Plan: plan, Now: func() time.Time { return time.Now().UTC() }}
}

// =============================================================================
// AGENT MANAGEMENT
// =============================================================================

// CreateAgentInput carries a new agent's fields.
type CreateAgentInput struct {
	Name     string
	Level    Level
	ParentID *AgentID
}

// CreateAgent validates the hierarchy link and inserts the agent.
func (e *Engine) CreateAgent(ctx context.Context, input CreateAgentInput) (Agent, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Agent{}, &ValidationError{Field: "name", Message: "must be a non-empty string"}
	}

	var created Agent
	err := e.Store.WithTx(ctx, func(s Store) error {
		agents, err := s.ListAgents(ctx)
		if err != nil {
			return err
		}
		h := NewHierarchy(agents)
		if err := h.ValidateLink(0, input.Level, input.ParentID); err != nil {
			return err
		}

		created, err = s.InsertAgent(ctx, Agent{
			Name:      name,
			Level:     input.Level,
			ParentID:  input.ParentID,
			CreatedAt: e.Now(),
		})
		return err
	})
	return created, err
}

// UpdateAgentInput carries partial agent updates. Nil fields are left
// unchanged; ParentSet distinguishes "clear the parent" from "no change".
type UpdateAgentInput struct {
	Name      *string
	Level     *Level
	ParentID  *AgentID
	ParentSet bool
}

// UpdateAgent applies the changes, re-validating the chain invariants
// against both the (possibly new) parent and the agent's children.
func (e *Engine) UpdateAgent(ctx context.Context, id AgentID, input UpdateAgentInput) (Agent, error) {
	var updated Agent
	err := e.Store.WithTx(ctx, func(s Store) error {
		agent, err := s.GetAgent(ctx, id)
		if err != nil {
			return err
		}
		if agent == nil {
			return ErrAgentNotFound
		}

		next := *agent
		if input.Name != nil {
			name := strings.TrimSpace(*input.Name)
			if name == "" {
				return &ValidationError{Field: "name", Message: "must be a non-empty string"}
			}
			next.Name = name
		}
		if input.Level != nil {
			next.Level = *input.Level
		}
		if input.ParentSet {
			next.ParentID = input.ParentID
		}

		agents, err := s.ListAgents(ctx)
		if err != nil {
			return err
		}
		h := NewHierarchy(agents)
		if err := h.ValidateLink(id, next.Level, next.ParentID); err != nil {
			return err
		}
		if err := h.ValidateChildren(id, next.Level); err != nil {
			return err
		}

		if err := s.UpdateAgent(ctx, next); err != nil {
			return err
		}
		updated = next
		return nil
	})
	return updated, err
}

// DeleteAgent removes an agent with no history: no sales, no commission
// lines, no children. Anything else is a conflict, never a cascade.
func (e *Engine) DeleteAgent(ctx context.Context, id AgentID) error {
	return e.Store.WithTx(ctx, func(s Store) error {
		agent, err := s.GetAgent(ctx, id)
		if err != nil {
			return err
		}
		if agent == nil {
			return ErrAgentNotFound
		}

		deps, err := s.CountAgentDependents(ctx, id)
		if err != nil {
			return err
		}
		switch {
		case deps.Sales > 0:
			return fmt.Errorf("%w: %d associated sales", ErrAgentInUse, deps.Sales)
		case deps.CommissionLines > 0:
			return fmt.Errorf("%w: %d commission lines", ErrAgentInUse, deps.CommissionLines)
		case deps.Children > 0:
			return fmt.Errorf("%w: %d child agents; remove or reassign children first", ErrAgentInUse, deps.Children)
		}

		return s.DeleteAgent(ctx, id)
	})
}

// =============================================================================
// SALE RECORDING
// =============================================================================

// RecordSaleInput carries a new sale. A zero SaleDate means now.
type RecordSaleInput struct {
	PolicyNumber string
	PolicyValue  decimal.Decimal
	AgentID      AgentID
	SaleDate     time.Time
}

// RecordSale validates the sale, then atomically persists the sale row,
// the hierarchy snapshot, and every commission line. On any failure
// nothing is written.
func (e *Engine) RecordSale(ctx context.Context, input RecordSaleInput) (Sale, []CommissionLine, error) {
	policyNumber := strings.TrimSpace(input.PolicyNumber)
	if len(policyNumber) < MinPolicyNumberLen {
		return Sale{}, nil, &ValidationError{Field: "policy_number", Message: fmt.Sprintf("must be at least %d characters", MinPolicyNumberLen)}
	}
	if !input.PolicyValue.IsPositive() || input.PolicyValue.GreaterThan(MaxPolicyValue) {
		return Sale{}, nil, fmt.Errorf("%w: must be greater than 0 and at most %s", ErrInvalidSaleValue, MaxPolicyValue.String())
	}

	now := e.Now()
	saleDate := input.SaleDate
	if saleDate.IsZero() {
		saleDate = now
	}

	var (
		sale  Sale
		lines []CommissionLine
	)
	err := e.Store.WithTx(ctx, func(s Store) error {
		agents, err := s.ListAgents(ctx)
		if err != nil {
			return err
		}
		h := NewHierarchy(agents)
		seller, ok := h.Get(input.AgentID)
		if !ok {
			return fmt.Errorf("agent %d: %w", input.AgentID, ErrAgentNotFound)
		}

		existing, err := s.GetSaleByPolicyNumber(ctx, policyNumber)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: %s", ErrDuplicatePolicyNumber, policyNumber)
		}

		sale, err = s.InsertSale(ctx, Sale{
			PolicyNumber: policyNumber,
			PolicyValue:  input.PolicyValue,
			AgentID:      input.AgentID,
			SaleDate:     saleDate.UTC(),
			CreatedAt:    now,
		})
		if err != nil {
			return err
		}

		upline := h.Upline(seller.ID)
		if err := s.InsertSnapshots(ctx, SnapshotChain(sale.ID, seller, upline)); err != nil {
			return err
		}

		lines = DeriveCommissionLines(sale, seller, upline, e.Plan, now)
		return s.InsertCommissionLines(ctx, lines)
	})
	if err != nil {
		return Sale{}, nil, err
	}
	return sale, lines, nil
}
