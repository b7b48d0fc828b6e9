package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// BONUS TYPE - Which aggregation window a bonus run covers
// =============================================================================

type BonusType string

const (
	BonusMonthly   BonusType = "Monthly"
	BonusQuarterly BonusType = "Quarterly"
	BonusAnnual    BonusType = "Annual"
)

func (t BonusType) Valid() bool {
	switch t {
	case BonusMonthly, BonusQuarterly, BonusAnnual:
		return true
	}
	return false
}

// Layout names the expected period key shape for error messages.
func (t BonusType) Layout() string {
	switch t {
	case BonusMonthly:
		return "YYYY-MM"
	case BonusQuarterly:
		return "YYYY-Qn"
	case BonusAnnual:
		return "YYYY"
	}
	return ""
}

// =============================================================================
// PERIOD - A half-open aggregation window [Start, End)
// =============================================================================

// Period is the resolved time window for a period key. End is exclusive,
// so adjacent periods never double-count a sale on the boundary instant.
type Period struct {
	Type  BonusType
	Key   string
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// ParsePeriod resolves a period key against its bonus type.
// Monthly "2025-10", Quarterly "2025-Q4", Annual "2025".
func ParsePeriod(bonusType BonusType, key string) (Period, error) {
	if !bonusType.Valid() {
		return Period{}, &ValidationError{Field: "type", Message: "use Monthly, Quarterly, or Annual"}
	}

	switch bonusType {
	case BonusMonthly:
		parts := strings.SplitN(key, "-", 2)
		if len(parts) != 2 {
			return Period{}, &PeriodFormatError{Type: bonusType, Period: key}
		}
		year, err1 := strconv.Atoi(parts[0])
		month, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil || len(parts[0]) != 4 || month < 1 || month > 12 {
			return Period{}, &PeriodFormatError{Type: bonusType, Period: key}
		}
		start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		return Period{Type: bonusType, Key: key, Start: start, End: start.AddDate(0, 1, 0)}, nil

	case BonusQuarterly:
		parts := strings.SplitN(key, "-", 2)
		if len(parts) != 2 || len(parts[1]) != 2 || parts[1][0] != 'Q' {
			return Period{}, &PeriodFormatError{Type: bonusType, Period: key}
		}
		year, err1 := strconv.Atoi(parts[0])
		quarter, err2 := strconv.Atoi(parts[1][1:])
		if err1 != nil || err2 != nil || len(parts[0]) != 4 || quarter < 1 || quarter > 4 {
			return Period{}, &PeriodFormatError{Type: bonusType, Period: key}
		}
		start := time.Date(year, time.Month((quarter-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
		return Period{Type: bonusType, Key: key, Start: start, End: start.AddDate(0, 3, 0)}, nil

	case BonusAnnual:
		year, err := strconv.Atoi(key)
		if err != nil || len(key) != 4 {
			return Period{}, &PeriodFormatError{Type: bonusType, Period: key}
		}
		start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		return Period{Type: bonusType, Key: key, Start: start, End: start.AddDate(1, 0, 0)}, nil
	}

	return Period{}, &PeriodFormatError{Type: bonusType, Period: key}
}

// PeriodsForDate returns the monthly, quarterly, and annual periods a
// date falls into. Clawbacks use this to find every bonus a cancelled
// sale could have contributed to.
func PeriodsForDate(t time.Time) []Period {
	t = t.UTC()
	quarter := (int(t.Month())-1)/3 + 1

	monthly, _ := ParsePeriod(BonusMonthly, fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month())))
	quarterly, _ := ParsePeriod(BonusQuarterly, fmt.Sprintf("%04d-Q%d", t.Year(), quarter))
	annual, _ := ParsePeriod(BonusAnnual, fmt.Sprintf("%04d", t.Year()))

	return []Period{monthly, quarterly, annual}
}
