package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrBadClock       = errors.New("bad wall-clock value, want HH:MM")
	ErrBadRulesWindow = errors.New("overtime threshold falls inside the lunch window")
	ErrBadWeights     = errors.New("allocation weights must be non-negative and sum to 1.0")
)

// AllocationWeights are the scoring coefficients for quantity allocation.
// They must sum to 1.0.
type AllocationWeights struct {
	Time       float64 `json:"time"`
	Efficiency float64 `json:"efficiency"`
	Process    float64 `json:"process"`
	Operator   float64 `json:"operator"`
}

// RulesProfile is the site policy applied when computing hours and
// allocating quantities. One profile exists per report kind: operators get
// a fixed lunch window, SMT machines do not.
type RulesProfile struct {
	Kind              ReportKind         `json:"kind"`
	OvertimeThreshold string             `json:"overtime_threshold"` // "17:30"
	LunchStart        string             `json:"lunch_start,omitempty"`
	LunchEnd          string             `json:"lunch_end,omitempty"`
	LunchDeduction    float64            `json:"lunch_deduction_hours"`
	PackagingKeywords []string           `json:"packaging_keywords"`
	Weights           AllocationWeights  `json:"allocation_weights"`
	ProcessComplexity map[string]float64 `json:"process_complexity"`
}

// HasLunch reports whether the profile deducts a lunch break at all.
func (p RulesProfile) HasLunch() bool {
	return p.LunchStart != "" && p.LunchEnd != ""
}

// ComplexityFor returns the process complexity multiplier, defaulting to 1.0.
func (p RulesProfile) ComplexityFor(process string) float64 {
	if v, ok := p.ProcessComplexity[process]; ok && v > 0 {
		return v
	}
	return 1.0
}

// Validate rejects malformed profiles at load time. A threshold inside the
// lunch window would make the regular/overtime split ambiguous (spurious
// double deduction), so the engine refuses to start with one.
func (p RulesProfile) Validate() error {
	threshold, err := ParseClock(p.OvertimeThreshold)
	if err != nil {
		return fmt.Errorf("overtime_threshold: %w", err)
	}
	if p.HasLunch() {
		ls, err := ParseClock(p.LunchStart)
		if err != nil {
			return fmt.Errorf("lunch_start: %w", err)
		}
		le, err := ParseClock(p.LunchEnd)
		if err != nil {
			return fmt.Errorf("lunch_end: %w", err)
		}
		if le <= ls {
			return fmt.Errorf("lunch window %s-%s is empty", p.LunchStart, p.LunchEnd)
		}
		if threshold > ls && threshold < le {
			return ErrBadRulesWindow
		}
		if p.LunchDeduction <= 0 {
			return fmt.Errorf("lunch_deduction_hours must be > 0 when a lunch window is set")
		}
	}
	w := p.Weights
	if w.Time < 0 || w.Efficiency < 0 || w.Process < 0 || w.Operator < 0 {
		return ErrBadWeights
	}
	if math.Abs(w.Time+w.Efficiency+w.Process+w.Operator-1.0) > 1e-9 {
		return ErrBadWeights
	}
	return nil
}

// ParseClock parses a "15:04" wall-clock string into minutes since midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadClock, s)
	}
	return t.Hour()*60 + t.Minute(), nil
}
