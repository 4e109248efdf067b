package reports

import (
	"context"
	"time"

	"prodreport/internal/domain"
	"prodreport/internal/modules/allocation"
)

// ReportStore is the ingestion side of the report repository.
type ReportStore interface {
	Create(ctx context.Context, r *domain.Report) error
	GetByID(ctx context.Context, id int64) (*domain.Report, error)
	UpdateHours(ctx context.Context, id int64, regular, overtime, brk float64) error
	UpdateApproval(ctx context.Context, id int64, state domain.ApprovalState) error
}

type WorkorderStore interface {
	Create(ctx context.Context, w *domain.Workorder) error
	GetByID(ctx context.Context, id int64) (*domain.Workorder, error)
	GetByOrderNumber(ctx context.Context, orderNumber string) (*domain.Workorder, error)
}

// AllocationTrigger runs the engine for one workorder on demand.
type AllocationTrigger interface {
	Allocate(ctx context.Context, workorderID int64, from, to time.Time) (*allocation.Result, error)
}

// SettingsReader exposes just enough of the scheduler state to refuse a
// manual trigger while a scheduled run is in flight.
type SettingsReader interface {
	Get(ctx context.Context) (*domain.SchedulerSettings, error)
}
