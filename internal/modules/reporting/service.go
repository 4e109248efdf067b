package reporting

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"prodreport/internal/domain"
	"prodreport/internal/repository"
)

var ErrBadGrouping = errors.New("unknown grouping")

const cacheTTL = 24 * time.Hour

// Service computes daily/weekly/monthly and per-operator / per-workorder
// rollups over the approved-report snapshot. It is a pure function of the
// snapshot plus an optional time-invalidated cache in front.
type Service struct {
	source ReportSource
	cache  SummaryCache
	log    *logrus.Logger
}

func NewService(source ReportSource, cache SummaryCache, log *logrus.Logger) *Service {
	return &Service{source: source, cache: cache, log: log}
}

func (s *Service) Summarize(ctx context.Context, q Query) ([]GroupSummary, error) {
	if !q.Grouping.Valid() {
		return nil, ErrBadGrouping
	}

	key := cacheKey(q)
	if s.cache != nil {
		var cached []GroupSummary
		hit, err := s.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			s.log.WithError(err).Warn("summary cache read failed, computing live")
		} else if hit {
			return cached, nil
		}
	}

	rows, err := s.source.ListApprovedBetween(ctx, q.From, q.To, repository.SummaryFilter{
		Kind:         q.Kind,
		OperatorCode: q.OperatorCode,
		WorkorderID:  q.WorkorderID,
	})
	if err != nil {
		return nil, err
	}

	summaries := rollup(rows, q.Grouping)

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, summaries, cacheTTL); err != nil {
			s.log.WithError(err).Warn("summary cache write failed")
		}
	}
	return summaries, nil
}

type bucket struct {
	summary    GroupSummary
	effSum     float64
	yieldSum   float64
	workers    map[string]struct{}
	workorders map[string]struct{}
}

func rollup(rows []domain.Report, grouping Grouping) []GroupSummary {
	buckets := map[string]*bucket{}

	for _, r := range rows {
		key := groupKey(r, grouping)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{
				summary:    GroupSummary{Key: key},
				workers:    map[string]struct{}{},
				workorders: map[string]struct{}{},
			}
			buckets[key] = b
		}

		effective := r.EffectiveQuantity()
		hours := r.WorkHours()

		b.summary.TotalRegularHours += r.RegularHours
		b.summary.TotalOvertimeHours += r.OvertimeHours
		b.summary.TotalBreakHours += r.BreakHours
		b.summary.TotalEffectiveQuantity += effective
		b.summary.TotalDefectQuantity += r.DefectQuantity
		b.summary.ReportCount++

		if hours > 0 {
			b.effSum += float64(effective) / hours
		}
		if effective+r.DefectQuantity > 0 {
			b.yieldSum += float64(effective) / float64(effective+r.DefectQuantity) * 100
		}
		if r.OperatorCode != "" {
			b.workers[r.OperatorCode] = struct{}{}
		}
		if r.WorkorderNo != "" {
			b.workorders[r.WorkorderNo] = struct{}{}
		}
	}

	out := make([]GroupSummary, 0, len(buckets))
	for _, b := range buckets {
		n := float64(b.summary.ReportCount)
		b.summary.DistinctWorkers = len(b.workers)
		b.summary.DistinctWorkorders = len(b.workorders)
		b.summary.AvgEfficiency = round2(b.effSum / n)
		b.summary.AvgYieldRate = round2(b.yieldSum / n)
		b.summary.TotalRegularHours = round2(b.summary.TotalRegularHours)
		b.summary.TotalOvertimeHours = round2(b.summary.TotalOvertimeHours)
		b.summary.TotalBreakHours = round2(b.summary.TotalBreakHours)
		out = append(out, b.summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func groupKey(r domain.Report, grouping Grouping) string {
	switch grouping {
	case GroupWeekly:
		return isoMonday(r.WorkDate).Format("2006-01-02")
	case GroupMonthly:
		return r.WorkDate.Format("2006-01")
	case GroupOperator:
		if r.OperatorCode == "" {
			return r.EquipmentCode
		}
		return r.OperatorCode
	case GroupWorkorder:
		return r.WorkorderNo
	default:
		return r.WorkDate.Format("2006-01-02")
	}
}

// isoMonday returns the Monday of the ISO week containing d.
func isoMonday(d time.Time) time.Time {
	wd := int(d.Weekday())
	if wd == 0 {
		wd = 7
	}
	return d.AddDate(0, 0, 1-wd)
}

func cacheKey(q Query) string {
	wo := ""
	if q.WorkorderID != nil {
		wo = fmt.Sprintf("%d", *q.WorkorderID)
	}
	return fmt.Sprintf("summary:%s:%s:%s:%s:%s:%s",
		q.Grouping,
		q.From.Format("2006-01-02"),
		q.To.Format("2006-01-02"),
		q.Kind, q.OperatorCode, wo)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
