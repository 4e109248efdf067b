package reporting

import (
	"context"
	"time"

	"prodreport/internal/domain"
	"prodreport/internal/repository"
)

// ReportSource is the read-only snapshot the aggregator computes from.
type ReportSource interface {
	ListApprovedBetween(ctx context.Context, from, to time.Time, f repository.SummaryFilter) ([]domain.Report, error)
}

// SummaryCache is satisfied by the redis cache client. The aggregator works
// fine without one; correctness never depends on the cache.
type SummaryCache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}
