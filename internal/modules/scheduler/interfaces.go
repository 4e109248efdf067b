package scheduler

import (
	"context"
	"time"

	"prodreport/internal/domain"
	"prodreport/internal/modules/allocation"
	"prodreport/internal/repository"
)

// Allocator is the per-workorder allocation engine the scheduler drives.
type Allocator interface {
	Allocate(ctx context.Context, workorderID int64, from, to time.Time) (*allocation.Result, error)
}

// CandidateSource discovers workorders with pending allocations.
type CandidateSource interface {
	ListNeedingAllocation(ctx context.Context, keywords []string, limit int) ([]repository.AllocationCandidate, error)
}

// SettingsStore is the singleton scheduler_settings row.
type SettingsStore interface {
	Get(ctx context.Context) (*domain.SchedulerSettings, error)
	TryStartRun(ctx context.Context, id int64) error
	FinishRun(ctx context.Context, id int64, lastRun time.Time, nextRun *time.Time, success bool) error
	ClearRunning(ctx context.Context, id int64) error
	SetEnabled(ctx context.Context, id int64, enabled bool) error
	SetInterval(ctx context.Context, id int64, minutes int) error
}

// RunLogStore appends one AllocationLog row per run.
type RunLogStore interface {
	Create(ctx context.Context, l *domain.AllocationLog) error
	Complete(ctx context.Context, l *domain.AllocationLog) error
	ListRecent(ctx context.Context, limit int) ([]domain.AllocationLog, error)
}

// RunLocker guards against two scheduler processes racing past the
// is_running flag. Returns ok=false when another holder owns the lock.
// A nil RunLocker disables the second guard (single-process deployments).
type RunLocker interface {
	Acquire(ctx context.Context, ttl time.Duration) (release func(), ok bool, err error)
}
