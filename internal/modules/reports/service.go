package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"prodreport/internal/config"
	"prodreport/internal/domain"
	"prodreport/internal/modules/allocation"
	"prodreport/internal/modules/workhours"
	"prodreport/internal/pkg/clock"
)

// Service owns report ingestion and the approval transition. Approval is
// the moment hours are computed and frozen onto the row: later profile
// changes never rewrite history.
type Service struct {
	reports    ReportStore
	workorders WorkorderStore
	allocator  AllocationTrigger
	settings   SettingsReader
	rules      config.RulesConfig
	rangeDays  int
	clk        clock.Clock
	log        *logrus.Logger
}

func NewService(
	reports ReportStore,
	workorders WorkorderStore,
	allocator AllocationTrigger,
	settings SettingsReader,
	rules config.RulesConfig,
	rangeDays int,
	clk clock.Clock,
	log *logrus.Logger,
) *Service {
	if rangeDays <= 0 {
		rangeDays = 30
	}
	return &Service{
		reports:    reports,
		workorders: workorders,
		allocator:  allocator,
		settings:   settings,
		rules:      rules,
		rangeDays:  rangeDays,
		clk:        clk,
		log:        log,
	}
}

func (s *Service) CreateWorkorder(ctx context.Context, req CreateWorkorderRequest) (*domain.Workorder, error) {
	w := &domain.Workorder{
		OrderNumber:     req.OrderNumber,
		ProductCode:     req.ProductCode,
		CompanyCode:     req.CompanyCode,
		PlannedQuantity: req.PlannedQuantity,
		State:           domain.WorkorderPending,
	}
	if err := s.workorders.Create(ctx, w); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateWorkorder
		}
		return nil, err
	}
	return w, nil
}

// CreateReport ingests one shift-slice in pending state. The workorder is
// resolved by order number when it exists; legacy rows that reference an
// unknown order keep a nil WorkorderID and stay out of allocation scope.
func (s *Service) CreateReport(ctx context.Context, req CreateReportRequest) (*domain.Report, error) {
	workDate, err := time.Parse("2006-01-02", req.WorkDate)
	if err != nil {
		return nil, fmt.Errorf("work_date must be YYYY-MM-DD: %w", err)
	}
	if _, err := domain.ParseClock(req.StartTime); err != nil {
		return nil, fmt.Errorf("start_time: %w", err)
	}
	if _, err := domain.ParseClock(req.EndTime); err != nil {
		return nil, fmt.Errorf("end_time: %w", err)
	}

	r := &domain.Report{
		Kind:           domain.ReportKind(req.Kind),
		WorkorderNo:    req.WorkorderNo,
		ProcessName:    req.ProcessName,
		OperatorCode:   req.OperatorCode,
		EquipmentCode:  req.EquipmentCode,
		WorkDate:       workDate,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		RawQuantity:    req.RawQuantity,
		DefectQuantity: req.DefectQuantity,
		ApprovalState:  domain.ApprovalPending,
		QuantitySource: domain.SourceOriginal,
	}

	wo, err := s.workorders.GetByOrderNumber(ctx, req.WorkorderNo)
	switch {
	case err == nil:
		r.WorkorderID = &wo.ID
	case errors.Is(err, gorm.ErrRecordNotFound):
		s.log.WithField("workorder_no", req.WorkorderNo).Warn("report references unknown workorder")
	default:
		return nil, err
	}

	if err := s.reports.Create(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) GetReport(ctx context.Context, id int64) (*domain.Report, error) {
	r, err := s.reports.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrReportNotFound
	}
	return r, err
}

// Approve moves a pending report to approved and freezes its hour
// breakdown, computed under the rules profile of the report's kind.
func (s *Service) Approve(ctx context.Context, id int64) (*ApprovalOutcome, error) {
	r, err := s.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.ApprovalState != domain.ApprovalPending {
		return nil, ErrAlreadyDecided
	}

	profile := s.rules.ProfileFor(r.Kind)
	b := workhours.Calculate(r.StartTime, r.EndTime, profile)

	if err := s.reports.UpdateHours(ctx, id, b.Regular, b.Overtime, b.Break); err != nil {
		return nil, err
	}
	if err := s.reports.UpdateApproval(ctx, id, domain.ApprovalApproved); err != nil {
		return nil, err
	}

	r.ApprovalState = domain.ApprovalApproved
	r.RegularHours = b.Regular
	r.OvertimeHours = b.Overtime
	r.BreakHours = b.Break

	out := &ApprovalOutcome{Report: r}
	for _, w := range b.Warnings {
		out.Warnings = append(out.Warnings, fmt.Sprintf("%s: %s", w.Code, w.Detail))
		s.log.WithFields(logrus.Fields{
			"report_id": id,
			"code":      w.Code,
			"detail":    w.Detail,
		}).Warn("hour calculation warning at approval")
	}
	return out, nil
}

func (s *Service) Reject(ctx context.Context, id int64) (*domain.Report, error) {
	r, err := s.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.ApprovalState != domain.ApprovalPending {
		return nil, ErrAlreadyDecided
	}
	if err := s.reports.UpdateApproval(ctx, id, domain.ApprovalRejected); err != nil {
		return nil, err
	}
	r.ApprovalState = domain.ApprovalRejected
	return r, nil
}

// TriggerAllocation runs the engine for one workorder on demand, unless a
// scheduled run currently holds the flag.
func (s *Service) TriggerAllocation(ctx context.Context, workorderID int64) (*allocation.Result, error) {
	if s.settings != nil {
		cfg, err := s.settings.Get(ctx)
		if err != nil {
			return nil, err
		}
		if cfg.IsRunning {
			return nil, ErrAllocationRunning
		}
	}

	wo, err := s.workorders.GetByID(ctx, workorderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWorkorderNotFound
	}
	if err != nil {
		return nil, err
	}

	to := s.clk.Now()
	from := to.AddDate(0, 0, -s.rangeDays)

	s.log.WithField("workorder", wo.OrderNumber).Info("manual allocation trigger")
	return s.allocator.Allocate(ctx, workorderID, from, to)
}

// isUniqueViolation recognizes a postgres duplicate-key error (23505).
// Other drivers fall through and surface the raw error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
