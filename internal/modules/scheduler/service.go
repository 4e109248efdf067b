package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"prodreport/internal/domain"
	"prodreport/internal/pkg/clock"
	"prodreport/internal/repository"
)

const candidateLimit = 200

// Service drives the allocation engine across all pending workorders at
// the configured cadence. Runs are serial: the is_running flag in the
// settings row plus an optional short-lived lock token keep concurrent
// schedulers (and manual triggers) from overlapping.
type Service struct {
	allocator  Allocator
	candidates CandidateSource
	settings   SettingsStore
	runlog     RunLogStore
	locker     RunLocker
	hub        *Hub
	keywords   []string
	rangeDays  int
	clk        clock.Clock
	log        *logrus.Logger

	cancelled atomic.Bool
}

func NewService(
	allocator Allocator,
	candidates CandidateSource,
	settings SettingsStore,
	runlog RunLogStore,
	locker RunLocker,
	hub *Hub,
	packagingKeywords []string,
	rangeDays int,
	clk clock.Clock,
	log *logrus.Logger,
) *Service {
	if rangeDays <= 0 {
		rangeDays = 30
	}
	return &Service{
		allocator:  allocator,
		candidates: candidates,
		settings:   settings,
		runlog:     runlog,
		locker:     locker,
		hub:        hub,
		keywords:   packagingKeywords,
		rangeDays:  rangeDays,
		clk:        clk,
		log:        log,
	}
}

// WorkorderOutcome is one workorder's verdict within a run.
type WorkorderOutcome struct {
	WorkorderID int64  `json:"workorder_id"`
	OrderNumber string `json:"order_number"`
	Success     bool   `json:"success"`
	Message     string `json:"message,omitempty"`
}

// RunOutcome summarizes one completed tick.
type RunOutcome struct {
	RunID     string             `json:"run_id"`
	StartedAt time.Time          `json:"started_at"`
	EndedAt   time.Time          `json:"ended_at"`
	Total     int                `json:"workorders_total"`
	Succeeded int                `json:"workorders_succeeded"`
	Failed    int                `json:"workorders_failed"`
	TimedOut  bool               `json:"timed_out"`
	Cancelled bool               `json:"cancelled"`
	Outcomes  []WorkorderOutcome `json:"outcomes"`
}

// RunOnce executes a single tick: discover candidates, allocate each in
// order_number order, record the run. Returns ErrDisabled or
// ErrAlreadyRunning without touching anything when the tick must not start.
func (s *Service) RunOnce(ctx context.Context) (*RunOutcome, error) {
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load scheduler settings: %w", err)
	}
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	var release func()
	if s.locker != nil {
		ttl := time.Duration(cfg.MaxExecutionSeconds+60) * time.Second
		rel, ok, err := s.locker.Acquire(ctx, ttl)
		if err != nil {
			return nil, fmt.Errorf("acquire run lock: %w", err)
		}
		if !ok {
			return nil, ErrAlreadyRunning
		}
		release = rel
		defer release()
	}

	if err := s.settings.TryStartRun(ctx, cfg.ID); err != nil {
		if errors.Is(err, repository.ErrRunInProgress) {
			return nil, ErrAlreadyRunning
		}
		return nil, err
	}

	s.cancelled.Store(false)
	started := s.clk.Now()
	runID := uuid.NewString()

	logRow := &domain.AllocationLog{RunID: runID, StartedAt: started}
	if err := s.runlog.Create(ctx, logRow); err != nil {
		// A run without its log row is worse than no run.
		_ = s.settings.ClearRunning(ctx, cfg.ID)
		return nil, fmt.Errorf("open allocation log: %w", err)
	}

	outcome := s.processCandidates(ctx, cfg, runID, started)

	completed := s.clk.Now()
	outcome.EndedAt = completed
	s.closeRun(ctx, cfg, logRow, outcome, completed)
	return outcome, nil
}

func (s *Service) processCandidates(ctx context.Context, cfg *domain.SchedulerSettings, runID string, started time.Time) *RunOutcome {
	outcome := &RunOutcome{RunID: runID, StartedAt: started}
	deadline := started.Add(time.Duration(cfg.MaxExecutionSeconds) * time.Second)

	s.broadcast(RunEvent{RunID: runID, Phase: "run_started", Timestamp: started})

	candidates, err := s.candidates.ListNeedingAllocation(ctx, s.keywords, candidateLimit)
	if err != nil {
		s.log.WithFields(logrus.Fields{"run_id": runID, "phase": "discover", "error": err.Error()}).
			Error("candidate discovery failed")
		return outcome
	}
	outcome.Total = len(candidates)

	to := started
	from := started.AddDate(0, 0, -s.rangeDays)

	for _, cand := range candidates {
		// Cooperative cancel and timeout, checked at workorder
		// boundaries only: in-flight allocations always complete.
		if s.cancelled.Load() {
			outcome.Cancelled = true
			s.log.WithFields(logrus.Fields{"run_id": runID, "phase": "allocate", "outcome": "cancelled"}).
				Warn("run cancelled, stopping at workorder boundary")
			break
		}
		if cfg.MaxExecutionSeconds > 0 && s.clk.Now().After(deadline) {
			outcome.TimedOut = true
			s.log.WithFields(logrus.Fields{"run_id": runID, "phase": "allocate", "outcome": "timeout"}).
				Warn("run exceeded max_execution_seconds, deferring remaining workorders")
			break
		}

		wo := WorkorderOutcome{WorkorderID: cand.WorkorderID, OrderNumber: cand.OrderNumber}
		stepStart := s.clk.Now()

		res, err := s.allocator.Allocate(ctx, cand.WorkorderID, from, to)
		switch {
		case err != nil:
			wo.Message = err.Error()
		case res.Success:
			wo.Success = true
			wo.Message = res.Message
		default:
			wo.Message = res.Message
		}

		if wo.Success {
			outcome.Succeeded++
		} else {
			outcome.Failed++
		}
		outcome.Outcomes = append(outcome.Outcomes, wo)

		s.log.WithFields(logrus.Fields{
			"run_id":      runID,
			"workorder":   cand.OrderNumber,
			"phase":       "allocate",
			"outcome":     wo.Message,
			"duration_ms": s.clk.Now().Sub(stepStart).Milliseconds(),
		}).Info("workorder processed")

		s.broadcast(RunEvent{
			RunID:     runID,
			Phase:     "workorder_done",
			Workorder: cand.OrderNumber,
			Outcome:   outcomeLabel(wo.Success),
			Message:   wo.Message,
			Timestamp: s.clk.Now(),
		})
	}

	return outcome
}

func (s *Service) closeRun(ctx context.Context, cfg *domain.SchedulerSettings, logRow *domain.AllocationLog, outcome *RunOutcome, completed time.Time) {
	details, _ := json.Marshal(outcome.Outcomes)

	logRow.CompletedAt = &completed
	logRow.Success = outcome.Failed == 0 && !outcome.TimedOut
	logRow.WorkordersTotal = outcome.Total
	logRow.WorkordersSucceeded = outcome.Succeeded
	logRow.WorkordersFailed = outcome.Failed
	logRow.Details = string(details)
	if outcome.TimedOut {
		logRow.ErrorMessage = "run exceeded max_execution_seconds"
	}
	if err := s.runlog.Complete(ctx, logRow); err != nil {
		s.log.WithError(err).Error("failed to complete allocation log")
	}

	next := s.nextRunTime(cfg, completed)
	if err := s.settings.FinishRun(ctx, cfg.ID, completed, next, logRow.Success); err != nil {
		s.log.WithError(err).Error("failed to finish scheduler run")
	}

	s.broadcast(RunEvent{
		RunID:     outcome.RunID,
		Phase:     "run_finished",
		Outcome:   outcomeLabel(logRow.Success),
		Message:   fmt.Sprintf("%d/%d workorders succeeded", outcome.Succeeded, outcome.Total),
		Timestamp: completed,
	})
}

// nextRunTime schedules the next tick, clamped to the configured window:
// a completion past window_end defers to the following day's window_start.
func (s *Service) nextRunTime(cfg *domain.SchedulerSettings, completed time.Time) *time.Time {
	next := completed.Add(time.Duration(cfg.IntervalMinutes) * time.Minute)

	if cfg.WindowStart == "" || cfg.WindowEnd == "" {
		return &next
	}
	ws, err := domain.ParseClock(cfg.WindowStart)
	if err != nil {
		return &next
	}
	we, err := domain.ParseClock(cfg.WindowEnd)
	if err != nil {
		return &next
	}

	nm := next.Hour()*60 + next.Minute()
	switch {
	case nm < ws:
		at := dayAt(next, ws)
		return &at
	case nm > we:
		at := dayAt(next.AddDate(0, 0, 1), ws)
		return &at
	}
	return &next
}

func dayAt(d time.Time, minutes int) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), minutes/60, minutes%60, 0, 0, d.Location())
}

// Cancel requests a stop at the next workorder boundary.
func (s *Service) Cancel() {
	s.cancelled.Store(true)
}

// Status returns the settings row and the most recent run logs.
func (s *Service) Status(ctx context.Context) (*domain.SchedulerSettings, []domain.AllocationLog, error) {
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, nil, err
	}
	logs, err := s.runlog.ListRecent(ctx, 10)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logs, nil
}

// Stop disables the scheduler. In-flight runs finish; future ticks no-op.
func (s *Service) Stop(ctx context.Context) error {
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return err
	}
	return s.settings.SetEnabled(ctx, cfg.ID, false)
}

func (s *Service) Enable(ctx context.Context) error {
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return err
	}
	return s.settings.SetEnabled(ctx, cfg.ID, true)
}

func (s *Service) SetInterval(ctx context.Context, minutes int) error {
	if minutes < 1 {
		return ErrBadInterval
	}
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return err
	}
	return s.settings.SetInterval(ctx, cfg.ID, minutes)
}

// ClearStuck force-clears a wedged is_running flag after a crashed run.
func (s *Service) ClearStuck(ctx context.Context) error {
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return err
	}
	return s.settings.ClearRunning(ctx, cfg.ID)
}

// Run is the daemon loop: sleep until the next tick is due, tick, repeat.
// The context stops the loop between runs.
func (s *Service) Run(ctx context.Context) error {
	for {
		cfg, err := s.settings.Get(ctx)
		if err != nil {
			return err
		}

		// A future next_run_at overrides the plain interval in both
		// directions: it shortens the wait when a run is almost due and
		// stretches it across a window deferral.
		wait := time.Duration(cfg.IntervalMinutes) * time.Minute
		if cfg.NextRunAt != nil {
			if until := cfg.NextRunAt.Sub(s.clk.Now()); until > 0 {
				wait = until
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		if _, err := s.RunOnce(ctx); err != nil {
			if errors.Is(err, ErrDisabled) || errors.Is(err, ErrAlreadyRunning) {
				s.log.WithError(err).Debug("tick skipped")
				continue
			}
			s.log.WithError(err).Error("scheduler tick failed")
		}
	}
}

func (s *Service) broadcast(e RunEvent) {
	if s.hub != nil {
		s.hub.Broadcast(e)
	}
}

func outcomeLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
