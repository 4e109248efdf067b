package workhours

import (
	"fmt"
	"math"

	"prodreport/internal/domain"
)

const minutesPerDay = 24 * 60

// Breakdown splits an elapsed shift into its accounted parts. The
// conservation invariant is regular + overtime + brk == total within a
// cent of an hour.
type Breakdown struct {
	Total    float64 `json:"total_hours"`
	Regular  float64 `json:"regular_hours"`
	Overtime float64 `json:"overtime_hours"`
	Break    float64 `json:"break_hours"`

	Warnings []Warning `json:"warnings,omitempty"`
}

// Warning is a non-fatal input anomaly. The calculator never fails: bad
// input yields a zero breakdown plus a warning, and upstream validation is
// the reporter's problem.
type Warning struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// Calculate computes the hour breakdown for one shift-slice under the
// given rules profile. Times are wall-clock "15:04" strings; an end at or
// before the start is read as crossing midnight.
//
// The lunch break is deducted only when the interval fully spans the lunch
// window. Partial overlap deducts nothing: short slices are expected to be
// split by the reporter around the break.
func Calculate(startTime, endTime string, profile domain.RulesProfile) Breakdown {
	start, err := domain.ParseClock(startTime)
	if err != nil {
		return zeroWith("bad_start_time", err.Error())
	}
	end, err := domain.ParseClock(endTime)
	if err != nil {
		return zeroWith("bad_end_time", err.Error())
	}
	threshold, err := domain.ParseClock(profile.OvertimeThreshold)
	if err != nil {
		return zeroWith("bad_profile", err.Error())
	}

	// Midnight compensation: shift the end into the next calendar day.
	// Exact equality is an empty slice, not a full-day wrap.
	if end < start {
		end += minutesPerDay
	}

	var b Breakdown
	duration := end - start
	if duration <= 0 {
		return zeroWith("empty_interval", fmt.Sprintf("%s-%s", startTime, endTime))
	}
	if duration > minutesPerDay {
		b.Warnings = append(b.Warnings, Warning{
			Code:   "clipped_to_24h",
			Detail: fmt.Sprintf("%s-%s spans %d minutes", startTime, endTime, duration),
		})
		duration = minutesPerDay
		end = start + duration
	}

	b.Total = round2(float64(duration) / 60)

	var lunchStart, lunchEnd int
	if profile.HasLunch() {
		lunchStart, _ = domain.ParseClock(profile.LunchStart)
		lunchEnd, _ = domain.ParseClock(profile.LunchEnd)
		if start < lunchStart && end > lunchEnd {
			b.Break = profile.LunchDeduction
		}
	}

	actual := b.Total - b.Break

	switch {
	case start >= threshold:
		// The whole slice is past the threshold.
		b.Overtime = round2(actual)
	case end <= threshold:
		b.Regular = round2(actual)
	default:
		// Straddles the threshold. The lunch window sits entirely on one
		// side (profiles with the threshold inside the window are rejected
		// at load), so the deduction lands on that side's segment.
		regularRaw := float64(threshold-start) / 60
		if b.Break > 0 && lunchEnd <= threshold {
			regularRaw -= b.Break
		}
		// Round the regular side and derive overtime from the rounded
		// total so the parts always reconcile, even when both segments
		// land on a half-cent (35 minutes is 0.5833... hours). A lunch
		// deduction on the overtime side is already inside actual.
		b.Regular = round2(regularRaw)
		b.Overtime = round2(actual - b.Regular)
	}

	return b
}

func zeroWith(code, detail string) Breakdown {
	return Breakdown{Warnings: []Warning{{Code: code, Detail: detail}}}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
