package allocation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"prodreport/internal/config"
	"prodreport/internal/domain"
	"prodreport/internal/pkg/clock"
	"prodreport/internal/repository"
)

const historyDepth = 10

// Service redistributes missing quantities across one workorder's approved
// reports so that non-packaging processes reconcile with the packaging
// total. All reads happen before the single atomic write; the computation
// in between is deterministic for a given snapshot.
type Service struct {
	reports    ReportStore
	workorders WorkorderStore
	rules      config.RulesConfig
	tiers      TierProvider
	clk        clock.Clock
	log        *logrus.Logger
}

func NewService(
	reports ReportStore,
	workorders WorkorderStore,
	rules config.RulesConfig,
	tiers TierProvider,
	clk clock.Clock,
	log *logrus.Logger,
) *Service {
	if tiers == nil {
		tiers = DefaultTierProvider()
	}
	return &Service{
		reports:    reports,
		workorders: workorders,
		rules:      rules,
		tiers:      tiers,
		clk:        clk,
		log:        log,
	}
}

// Allocate runs the engine for one (workorder, date range). A returned
// error means nothing was written (store failure or a logic invariant
// violation); a Result with Success=false is a terminal per-workorder
// verdict.
func (s *Service) Allocate(ctx context.Context, workorderID int64, from, to time.Time) (*Result, error) {
	started := s.clk.Now()

	wo, err := s.workorders.GetByID(ctx, workorderID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load workorder %d: %w", workorderID, err)
	}
	if wo == nil {
		s.logPhase(workorderID, "load", "skipped_unresolved", started)
		return &Result{WorkorderID: workorderID, Success: false, Message: msgWorkorderUnresolved}, nil
	}

	reports, err := s.reports.ListApproved(ctx, workorderID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load reports for %s: %w", wo.OrderNumber, err)
	}
	if len(reports) == 0 {
		return &Result{WorkorderID: workorderID, Success: false, Message: msgNoApprovedReports}, nil
	}

	var packaging, filled, unfilled []domain.Report
	for _, r := range reports {
		switch {
		case s.isPackaging(r):
			packaging = append(packaging, r)
		case r.RawQuantity > 0:
			filled = append(filled, r)
		default:
			unfilled = append(unfilled, r)
		}
	}

	if len(packaging) == 0 {
		// No writes: the rows stay unchecked so the scheduler revisits
		// once packaging data arrives.
		s.logPhase(workorderID, "classify", "no_packaging", started)
		return &Result{WorkorderID: workorderID, Success: false, Message: msgNoPackagingReports}, nil
	}

	finalTotal := 0
	for _, p := range packaging {
		finalTotal += p.RawQuantity
	}

	if wo.PlannedQuantity > 0 && float64(finalTotal) > float64(wo.PlannedQuantity)*1.05 {
		s.log.WithFields(logrus.Fields{
			"workorder":   wo.OrderNumber,
			"phase":       "classify",
			"outcome":     "total_exceeds_plan",
			"final_total": finalTotal,
			"planned":     wo.PlannedQuantity,
		}).Warn("packaging total implausible, refusing allocation")
		return &Result{WorkorderID: workorderID, Success: false, Message: msgTotalExceedsPlan, FinalTotal: finalTotal}, nil
	}

	filledSum := 0
	for _, f := range filled {
		filledSum += f.RawQuantity
	}
	remaining := finalTotal - filledSum
	if remaining < 0 {
		remaining = 0
	}

	if finalTotal <= 0 || remaining == 0 || len(unfilled) == 0 {
		// Nothing to distribute: give the unfilled rows their terminal
		// no-op so the scheduler stops revisiting them.
		decisions := make([]Decision, 0, len(unfilled))
		for _, u := range unfilled {
			decisions = append(decisions, Decision{
				ReportID:          u.ID,
				AllocatedQuantity: u.RawQuantity,
				QuantitySource:    domain.SourceOriginal,
				Note:              msgNoAllocationNeeded,
			})
		}
		if err := s.write(ctx, decisions); err != nil {
			return nil, err
		}
		s.logPhase(workorderID, "distribute", "no_allocation_needed", started)
		return &Result{
			WorkorderID: workorderID,
			Success:     true,
			Message:     msgNoAllocationNeeded,
			FinalTotal:  finalTotal,
			Decisions:   decisions,
		}, nil
	}

	weights, err := s.scoreWeights(ctx, unfilled)
	if err != nil {
		return nil, fmt.Errorf("score weights for %s: %w", wo.OrderNumber, err)
	}

	shares, sharePct := distribute(remaining, weights)

	allocated := 0
	for _, v := range shares {
		allocated += v
	}
	if allocated != remaining {
		s.log.WithFields(logrus.Fields{
			"workorder": wo.OrderNumber,
			"phase":     "distribute",
			"outcome":   "invariant_violation",
			"remaining": remaining,
			"allocated": allocated,
			"weights":   weights,
		}).Error("dropping allocation batch")
		return nil, fmt.Errorf("%w: workorder %s remaining=%d allocated=%d",
			ErrInvariantViolation, wo.OrderNumber, remaining, allocated)
	}

	decisions := make([]Decision, 0, len(reports))
	for i, u := range unfilled {
		decisions = append(decisions, Decision{
			ReportID:          u.ID,
			AllocatedQuantity: shares[i],
			QuantitySource:    domain.SourceAutoAllocated,
			Note:              fmt.Sprintf("time-weighted share: %.1f%%", sharePct[i]),
		})
	}
	for _, f := range filled {
		decisions = append(decisions, Decision{
			ReportID:          f.ID,
			AllocatedQuantity: f.RawQuantity,
			QuantitySource:    domain.SourceOriginal,
		})
	}
	for _, p := range packaging {
		decisions = append(decisions, Decision{
			ReportID:          p.ID,
			AllocatedQuantity: p.RawQuantity,
			QuantitySource:    domain.SourcePackaging,
		})
	}

	if err := s.write(ctx, decisions); err != nil {
		return nil, err
	}

	s.logPhase(workorderID, "write", "allocated", started)
	return &Result{
		WorkorderID: workorderID,
		Success:     true,
		Message:     msgAllocated,
		FinalTotal:  finalTotal,
		Remaining:   remaining,
		Decisions:   decisions,
	}, nil
}

// isPackaging matches the report's process name against the keywords of the
// profile for its kind, so SMT-specific keywords apply to SMT rows only.
func (s *Service) isPackaging(r domain.Report) bool {
	name := strings.ToLower(r.ProcessName)
	for _, kw := range s.rules.ProfileFor(r.Kind).PackagingKeywords {
		if kw != "" && strings.Contains(name, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// scoreWeights computes one non-negative weight per unfilled report. The
// worked hours are the base; historical efficiency, process complexity and
// operator tier blend into a multiplier via the configured coefficients:
//
//	w = hours * (w_t + w_e*efficiency + w_p*complexity + w_o*tier)
//
// With every factor at its 1.0 default the multiplier collapses to 1 and
// shares are proportional to hours alone.
func (s *Service) scoreWeights(ctx context.Context, unfilled []domain.Report) ([]float64, error) {
	out := make([]float64, len(unfilled))
	for i, r := range unfilled {
		p := s.rules.ProfileFor(r.Kind)
		w := p.Weights
		hours := r.WorkHours()

		eff, err := s.historicalEfficiency(ctx, r)
		if err != nil {
			return nil, err
		}

		cx := p.ComplexityFor(r.ProcessName)
		tier := s.tiers.TierFor(r.OperatorCode)
		if tier <= 0 {
			tier = 1.0
		}

		out[i] = hours * (w.Time + w.Efficiency*eff + w.Process*cx + w.Operator*tier)
	}
	return out, nil
}

// historicalEfficiency is the mean units/hour over the operator's last
// approved reports on the same process. Missing history degrades to 1.0.
func (s *Service) historicalEfficiency(ctx context.Context, r domain.Report) (float64, error) {
	if r.OperatorCode == "" {
		return 1.0, nil
	}
	history, err := s.reports.HistoryForEfficiency(ctx, r.OperatorCode, r.ProcessName, r.ID, historyDepth)
	if err != nil {
		return 0, err
	}
	sum, n := 0.0, 0
	for _, h := range history {
		if hours := h.WorkHours(); hours > 0 {
			sum += float64(h.RawQuantity) / hours
			n++
		}
	}
	if n == 0 {
		return 1.0, nil
	}
	return sum / float64(n), nil
}

// distribute splits remaining units across the weighted rows. Floor shares
// first; the residual goes to the single highest weight, earliest row on
// ties. Degenerate weights fall back to an even split with the modulo
// leftover handed out one per row in report order.
func distribute(remaining int, weights []float64) (shares []int, sharePct []float64) {
	n := len(weights)
	shares = make([]int, n)
	sharePct = make([]float64, n)

	totalWeight := 0.0
	for _, w := range weights {
		if w > 0 {
			totalWeight += w
		}
	}

	if totalWeight <= 0 {
		base, extra := remaining/n, remaining%n
		for i := range shares {
			shares[i] = base
			if i < extra {
				shares[i]++
			}
			sharePct[i] = 100.0 / float64(n)
		}
		return shares, sharePct
	}

	allocated := 0
	best := 0
	for i, w := range weights {
		if w < 0 {
			w = 0
		}
		shares[i] = int(math.Floor(float64(remaining) * w / totalWeight))
		sharePct[i] = w / totalWeight * 100
		allocated += shares[i]
		if weights[i] > weights[best] {
			best = i
		}
	}
	shares[best] += remaining - allocated
	return shares, sharePct
}

func (s *Service) write(ctx context.Context, decisions []Decision) error {
	if len(decisions) == 0 {
		return nil
	}
	now := s.clk.Now()
	batch := make([]repository.AllocationWrite, 0, len(decisions))
	for _, d := range decisions {
		batch = append(batch, repository.AllocationWrite{
			ReportID:          d.ReportID,
			AllocatedQuantity: d.AllocatedQuantity,
			QuantitySource:    d.QuantitySource,
			AllocationNote:    d.Note,
			CheckedAt:         now,
		})
	}
	return s.reports.WriteAllocations(ctx, batch)
}

func (s *Service) logPhase(workorderID int64, phase, outcome string, started time.Time) {
	s.log.WithFields(logrus.Fields{
		"workorder":   workorderID,
		"phase":       phase,
		"outcome":     outcome,
		"duration_ms": s.clk.Now().Sub(started).Milliseconds(),
	}).Info("allocation step")
}
