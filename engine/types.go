/*
Package engine provides the core commission calculation engine.

PURPOSE:
  This package contains the domain types and algorithms for a multi-level
  sales commission program: recording policy sales, deriving first-year
  and override commission lines up the agent hierarchy, aggregating
  volume-based bonuses per period, and reversing everything when a policy
  is cancelled.

KEY CONCEPTS IN THIS FILE (types.go):
  - Agent: A node in the 4-level sales hierarchy (Agent -> Director)
  - Sale: A recorded policy sale with one-way cancellation
  - CommissionLine: An immutable commission entry (FYC or Override)
  - Bonus: A per-agent, per-period, tier-based payout
  - ClawbackEvent: The record of a cancellation's reversals

DESIGN PRINCIPLES:
  1. Immutability: Commission lines are never edited, only flagged reversed
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Atomicity: Every mutation runs in a single store transaction
  4. Derivation: Dashboard totals are recomputed from rows, never cached

SEE ALSO:
  - plan.go: Compensation plan (rates and bonus tiers)
  - commission.go: Commission line derivation
  - bonus.go, clawback.go: Period aggregation and reversal
  - store.go: Persistence interfaces
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AgentID int64
type SaleID int64
type BonusID int64

// =============================================================================
// HIERARCHY LEVELS
// =============================================================================

// Level is an agent's position in the hierarchy: 1=Agent, 2=Team Lead,
// 3=Manager, 4=Director. Parents are always exactly one level above.
type Level int

const (
	LevelAgent    Level = 1
	LevelTeamLead Level = 2
	LevelManager  Level = 3
	LevelDirector Level = 4

	MinLevel = LevelAgent
	MaxLevel = LevelDirector
)

func (l Level) Valid() bool { return l >= MinLevel && l <= MaxLevel }

func (l Level) String() string {
	switch l {
	case LevelAgent:
		return "Agent"
	case LevelTeamLead:
		return "Team Lead"
	case LevelManager:
		return "Manager"
	case LevelDirector:
		return "Director"
	default:
		return "Unknown"
	}
}

// =============================================================================
// AGENT
// =============================================================================

// Agent is one node in the sales hierarchy forest. ParentID is nil only
// for level-4 agents (Directors); everyone else reports one level up.
type Agent struct {
	ID       AgentID
	Name     string
	Level    Level
	ParentID *AgentID

	CreatedAt time.Time
}

// =============================================================================
// SALE
// =============================================================================

// Sale value bounds enforced at record time.
var (
	MaxPolicyValue = decimal.NewFromInt(10_000_000)
)

// MinPolicyNumberLen is the shortest accepted policy number.
const MinPolicyNumberLen = 3

// Sale is a recorded policy sale. IsCancelled flips exactly once; there
// is no un-cancel path.
type Sale struct {
	ID           SaleID
	PolicyNumber string
	PolicyValue  decimal.Decimal
	AgentID      AgentID
	SaleDate     time.Time
	IsCancelled  bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// COMMISSION LINE
// =============================================================================

type CommissionType string

const (
	CommissionFYC      CommissionType = "FYC"      // direct commission to the seller
	CommissionOverride CommissionType = "Override" // upline commission on downline sales
)

// CommissionLine is one commission entry derived from a sale. Lines are
// immutable once written; a cancellation sets Reversed instead of
// deleting or editing the row.
type CommissionLine struct {
	ID            string // uuid
	SaleID        SaleID
	AgentID       AgentID
	Type          CommissionType
	Amount        decimal.Decimal
	RateApplied   decimal.Decimal
	LevelDistance int // 0 for FYC, hops up the chain for overrides
	Reversed      bool

	CreatedAt time.Time
}

// =============================================================================
// BONUS
// =============================================================================

// Bonus is a computed payout for one agent in one period. Unique on
// (AgentID, Period, Type); recalculation replaces rather than appends.
type Bonus struct {
	ID      BonusID
	AgentID AgentID
	Period  string // "2025-10", "2025-Q4", or "2025"
	Type    BonusType
	Amount  decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
}

// BonusRun reports the outcome of one CalculateBonuses invocation.
type BonusRun struct {
	Type     BonusType
	Period   string
	Bonuses  []Bonus
	Created  int
	Replaced int
}

// =============================================================================
// CLAWBACK EVENT
// =============================================================================

// ClawbackEvent records the reversals performed by one sale cancellation.
// At most one event exists per sale.
type ClawbackEvent struct {
	ID                      string // uuid
	SaleID                  SaleID
	ReversedCommissionTotal decimal.Decimal
	ReversedBonusTotal      decimal.Decimal

	CreatedAt time.Time
}

// =============================================================================
// HIERARCHY SNAPSHOT
// =============================================================================

// SnapshotEntry freezes one link of the seller's chain at sale time.
// Position 0 is the seller, 1 the seller's parent, and so on. Clawbacks
// read the snapshot, not the live hierarchy, so re-parenting an agent
// after a sale cannot shift whose bonuses get adjusted.
type SnapshotEntry struct {
	SaleID   SaleID
	AgentID  AgentID
	Position int
}

// =============================================================================
// SUMMARY
// =============================================================================

// Summary is the dashboard rollup. TotalClawbacksValue is zero or
// negative. All fields are recomputed on read.
type Summary struct {
	TotalSalesValue      decimal.Decimal
	TotalCommissionsPaid decimal.Decimal
	TotalBonusesPaid     decimal.Decimal
	TotalClawbacksValue  decimal.Decimal
	AgentCount           int
}

// MustDecimal parses a decimal literal, returning zero on bad input.
// For constants and stored values that are known-good.
func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
