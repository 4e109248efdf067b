package allocation

import (
	"context"
	"time"

	"prodreport/internal/domain"
	"prodreport/internal/repository"
)

// ReportStore is the slice of the record store the engine reads and writes.
type ReportStore interface {
	ListApproved(ctx context.Context, workorderID int64, from, to time.Time) ([]domain.Report, error)
	HistoryForEfficiency(ctx context.Context, operatorCode, processName string, excludeID int64, limit int) ([]domain.Report, error)
	// WriteAllocations must apply the batch atomically: all decisions or none.
	WriteAllocations(ctx context.Context, batch []repository.AllocationWrite) error
}

// WorkorderStore resolves workorders. An unknown id, whether signalled as
// (nil, nil) or gorm.ErrRecordNotFound, degrades to a skipped workorder.
type WorkorderStore interface {
	GetByID(ctx context.Context, id int64) (*domain.Workorder, error)
}

// TierProvider grades operators for the scoring formula. No grading data
// exists yet; the constant provider returns 1.0 for everyone.
type TierProvider interface {
	TierFor(operatorCode string) float64
}

type constantTier struct{}

func (constantTier) TierFor(string) float64 { return 1.0 }

// DefaultTierProvider returns the constant 1.0 grading.
func DefaultTierProvider() TierProvider { return constantTier{} }
