package scheduler

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"prodreport/internal/domain"
	"prodreport/internal/modules/allocation"
	"prodreport/internal/pkg/clock"
	"prodreport/internal/repository"
)

type MockAllocator struct {
	mock.Mock
}

func (m *MockAllocator) Allocate(ctx context.Context, workorderID int64, from, to time.Time) (*allocation.Result, error) {
	args := m.Called(ctx, workorderID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*allocation.Result), args.Error(1)
}

type MockCandidateSource struct {
	mock.Mock
}

func (m *MockCandidateSource) ListNeedingAllocation(ctx context.Context, keywords []string, limit int) ([]repository.AllocationCandidate, error) {
	args := m.Called(ctx, keywords, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repository.AllocationCandidate), args.Error(1)
}

type MockSettingsStore struct {
	mock.Mock
}

func (m *MockSettingsStore) Get(ctx context.Context) (*domain.SchedulerSettings, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SchedulerSettings), args.Error(1)
}

func (m *MockSettingsStore) TryStartRun(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockSettingsStore) FinishRun(ctx context.Context, id int64, lastRun time.Time, nextRun *time.Time, success bool) error {
	return m.Called(ctx, id, lastRun, nextRun, success).Error(0)
}

func (m *MockSettingsStore) ClearRunning(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockSettingsStore) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	return m.Called(ctx, id, enabled).Error(0)
}

func (m *MockSettingsStore) SetInterval(ctx context.Context, id int64, minutes int) error {
	return m.Called(ctx, id, minutes).Error(0)
}

type MockRunLogStore struct {
	mock.Mock
}

func (m *MockRunLogStore) Create(ctx context.Context, l *domain.AllocationLog) error {
	return m.Called(ctx, l).Error(0)
}

func (m *MockRunLogStore) Complete(ctx context.Context, l *domain.AllocationLog) error {
	return m.Called(ctx, l).Error(0)
}

func (m *MockRunLogStore) ListRecent(ctx context.Context, limit int) ([]domain.AllocationLog, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.AllocationLog), args.Error(1)
}

type deniedLocker struct{}

func (deniedLocker) Acquire(context.Context, time.Duration) (func(), bool, error) {
	return nil, false, nil
}

func enabledSettings() *domain.SchedulerSettings {
	return &domain.SchedulerSettings{
		ID:                  1,
		Enabled:             true,
		IntervalMinutes:     30,
		MaxExecutionSeconds: 300,
	}
}

type fixture struct {
	allocator  *MockAllocator
	candidates *MockCandidateSource
	settings   *MockSettingsStore
	runlog     *MockRunLogStore
	clk        *clock.Frozen
	service    *Service
}

func newFixture(t *testing.T, locker RunLocker) *fixture {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	f := &fixture{
		allocator:  new(MockAllocator),
		candidates: new(MockCandidateSource),
		settings:   new(MockSettingsStore),
		runlog:     new(MockRunLogStore),
		clk:        &clock.Frozen{Current: time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)},
	}
	f.service = NewService(
		f.allocator, f.candidates, f.settings, f.runlog, locker, nil,
		[]string{"packaging"}, 30, f.clk, log,
	)
	return f
}

func (f *fixture) expectHappyRun() {
	f.settings.On("Get", mock.Anything).Return(enabledSettings(), nil)
	f.settings.On("TryStartRun", mock.Anything, int64(1)).Return(nil)
	f.settings.On("FinishRun", mock.Anything, int64(1), mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.runlog.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.runlog.On("Complete", mock.Anything, mock.Anything).Return(nil)
}

func candidate(id int64, no string) repository.AllocationCandidate {
	return repository.AllocationCandidate{WorkorderID: id, OrderNumber: no, PendingCount: 2}
}

func TestRunOnce_DisabledIsNoOp(t *testing.T) {
	f := newFixture(t, nil)
	cfg := enabledSettings()
	cfg.Enabled = false
	f.settings.On("Get", mock.Anything).Return(cfg, nil)

	_, err := f.service.RunOnce(context.Background())

	assert.ErrorIs(t, err, ErrDisabled)
	f.settings.AssertNotCalled(t, "TryStartRun", mock.Anything, mock.Anything)
	f.runlog.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRunOnce_RefusesWhenFlagHeld(t *testing.T) {
	f := newFixture(t, nil)
	f.settings.On("Get", mock.Anything).Return(enabledSettings(), nil)
	f.settings.On("TryStartRun", mock.Anything, int64(1)).Return(repository.ErrRunInProgress)

	_, err := f.service.RunOnce(context.Background())

	assert.ErrorIs(t, err, ErrAlreadyRunning)
	f.runlog.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRunOnce_RefusesWhenLockHeld(t *testing.T) {
	f := newFixture(t, deniedLocker{})
	f.settings.On("Get", mock.Anything).Return(enabledSettings(), nil)

	_, err := f.service.RunOnce(context.Background())

	assert.ErrorIs(t, err, ErrAlreadyRunning)
	f.settings.AssertNotCalled(t, "TryStartRun", mock.Anything, mock.Anything)
}

func TestRunOnce_ProcessesCandidatesInOrder(t *testing.T) {
	f := newFixture(t, nil)
	f.expectHappyRun()
	f.candidates.On("ListNeedingAllocation", mock.Anything, []string{"packaging"}, candidateLimit).
		Return([]repository.AllocationCandidate{candidate(1, "WO-01-001"), candidate(2, "WO-01-002")}, nil)

	var order []int64
	f.allocator.On("Allocate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			order = append(order, args.Get(1).(int64))
		}).
		Return(&allocation.Result{Success: true, Message: "allocated"}, nil)

	outcome, err := f.service.RunOnce(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, order)
	assert.Equal(t, 2, outcome.Total)
	assert.Equal(t, 2, outcome.Succeeded)
	assert.Equal(t, 0, outcome.Failed)
}

func TestRunOnce_QueriesAllocationRange(t *testing.T) {
	f := newFixture(t, nil)
	f.expectHappyRun()
	f.candidates.On("ListNeedingAllocation", mock.Anything, mock.Anything, mock.Anything).
		Return([]repository.AllocationCandidate{candidate(1, "WO-01-001")}, nil)

	started := f.clk.Current
	f.allocator.On("Allocate", mock.Anything, int64(1), started.AddDate(0, 0, -30), started).
		Return(&allocation.Result{Success: true, Message: "allocated"}, nil)

	_, err := f.service.RunOnce(context.Background())

	assert.NoError(t, err)
	f.allocator.AssertExpectations(t)
}

func TestRunOnce_AccumulatesFailuresAndKeepsGoing(t *testing.T) {
	f := newFixture(t, nil)
	f.expectHappyRun()
	f.candidates.On("ListNeedingAllocation", mock.Anything, mock.Anything, mock.Anything).
		Return([]repository.AllocationCandidate{
			candidate(1, "WO-01-001"),
			candidate(2, "WO-01-002"),
			candidate(3, "WO-01-003"),
		}, nil)

	f.allocator.On("Allocate", mock.Anything, int64(1), mock.Anything, mock.Anything).
		Return(&allocation.Result{Success: false, Message: "no packaging reports"}, nil)
	f.allocator.On("Allocate", mock.Anything, int64(2), mock.Anything, mock.Anything).
		Return(nil, errors.New("db connection lost"))
	f.allocator.On("Allocate", mock.Anything, int64(3), mock.Anything, mock.Anything).
		Return(&allocation.Result{Success: true, Message: "allocated"}, nil)

	outcome, err := f.service.RunOnce(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, outcome.Succeeded)
	assert.Equal(t, 2, outcome.Failed)
	if assert.Len(t, outcome.Outcomes, 3) {
		assert.Equal(t, "no packaging reports", outcome.Outcomes[0].Message)
		assert.Equal(t, "db connection lost", outcome.Outcomes[1].Message)
		assert.True(t, outcome.Outcomes[2].Success)
	}
}

func TestRunOnce_RecordsRunLog(t *testing.T) {
	f := newFixture(t, nil)
	f.settings.On("Get", mock.Anything).Return(enabledSettings(), nil)
	f.settings.On("TryStartRun", mock.Anything, int64(1)).Return(nil)
	f.settings.On("FinishRun", mock.Anything, int64(1), mock.Anything, mock.Anything, false).Return(nil)
	f.runlog.On("Create", mock.Anything, mock.Anything).Return(nil)

	var completed *domain.AllocationLog
	f.runlog.On("Complete", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			completed = args.Get(1).(*domain.AllocationLog)
		}).
		Return(nil)

	f.candidates.On("ListNeedingAllocation", mock.Anything, mock.Anything, mock.Anything).
		Return([]repository.AllocationCandidate{candidate(1, "WO-01-001"), candidate(2, "WO-01-002")}, nil)
	f.allocator.On("Allocate", mock.Anything, int64(1), mock.Anything, mock.Anything).
		Return(&allocation.Result{Success: true, Message: "allocated"}, nil)
	f.allocator.On("Allocate", mock.Anything, int64(2), mock.Anything, mock.Anything).
		Return(&allocation.Result{Success: false, Message: "no approved reports in range"}, nil)

	_, err := f.service.RunOnce(context.Background())

	assert.NoError(t, err)
	if assert.NotNil(t, completed) {
		assert.NotEmpty(t, completed.RunID)
		assert.NotNil(t, completed.CompletedAt)
		assert.False(t, completed.Success)
		assert.Equal(t, 2, completed.WorkordersTotal)
		assert.Equal(t, 1, completed.WorkordersSucceeded)
		assert.Equal(t, 1, completed.WorkordersFailed)
		assert.Contains(t, completed.Details, "WO-01-002")
	}
}

func TestRunOnce_TimeoutStopsAtWorkorderBoundary(t *testing.T) {
	f := newFixture(t, nil)
	cfg := enabledSettings()
	cfg.MaxExecutionSeconds = 60
	f.settings.On("Get", mock.Anything).Return(cfg, nil)
	f.settings.On("TryStartRun", mock.Anything, int64(1)).Return(nil)
	f.settings.On("FinishRun", mock.Anything, int64(1), mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.runlog.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.runlog.On("Complete", mock.Anything, mock.Anything).Return(nil)

	f.candidates.On("ListNeedingAllocation", mock.Anything, mock.Anything, mock.Anything).
		Return([]repository.AllocationCandidate{candidate(1, "WO-01-001"), candidate(2, "WO-01-002")}, nil)

	// The first allocation runs past the deadline; the second never starts.
	f.allocator.On("Allocate", mock.Anything, int64(1), mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { f.clk.Advance(2 * time.Minute) }).
		Return(&allocation.Result{Success: true, Message: "allocated"}, nil)

	outcome, err := f.service.RunOnce(context.Background())

	assert.NoError(t, err)
	assert.True(t, outcome.TimedOut)
	assert.Len(t, outcome.Outcomes, 1)
	f.allocator.AssertNotCalled(t, "Allocate", mock.Anything, int64(2), mock.Anything, mock.Anything)
}

func TestRunOnce_CancelStopsAtWorkorderBoundary(t *testing.T) {
	f := newFixture(t, nil)
	f.expectHappyRun()
	f.candidates.On("ListNeedingAllocation", mock.Anything, mock.Anything, mock.Anything).
		Return([]repository.AllocationCandidate{candidate(1, "WO-01-001"), candidate(2, "WO-01-002")}, nil)

	f.allocator.On("Allocate", mock.Anything, int64(1), mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { f.service.Cancel() }).
		Return(&allocation.Result{Success: true, Message: "allocated"}, nil)

	outcome, err := f.service.RunOnce(context.Background())

	assert.NoError(t, err)
	assert.True(t, outcome.Cancelled)
	assert.Len(t, outcome.Outcomes, 1)
	f.allocator.AssertNotCalled(t, "Allocate", mock.Anything, int64(2), mock.Anything, mock.Anything)
}

func TestRunOnce_ClearsFlagWhenLogCreateFails(t *testing.T) {
	f := newFixture(t, nil)
	f.settings.On("Get", mock.Anything).Return(enabledSettings(), nil)
	f.settings.On("TryStartRun", mock.Anything, int64(1)).Return(nil)
	f.settings.On("ClearRunning", mock.Anything, int64(1)).Return(nil)
	f.runlog.On("Create", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	_, err := f.service.RunOnce(context.Background())

	assert.Error(t, err)
	f.settings.AssertCalled(t, "ClearRunning", mock.Anything, int64(1))
	f.candidates.AssertNotCalled(t, "ListNeedingAllocation", mock.Anything, mock.Anything, mock.Anything)
}

func TestNextRunTime_PlainInterval(t *testing.T) {
	f := newFixture(t, nil)
	cfg := enabledSettings()

	completed := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	next := f.service.nextRunTime(cfg, completed)

	assert.Equal(t, completed.Add(30*time.Minute), *next)
}

func TestNextRunTime_DefersPastWindowEnd(t *testing.T) {
	f := newFixture(t, nil)
	cfg := enabledSettings()
	cfg.WindowStart = "08:00"
	cfg.WindowEnd = "20:00"

	// 19:45 + 30m lands past window_end, so the next run waits for the
	// following day's window_start.
	completed := time.Date(2026, 3, 9, 19, 45, 0, 0, time.UTC)
	next := f.service.nextRunTime(cfg, completed)

	assert.Equal(t, time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC), *next)
}

func TestNextRunTime_ClampsBeforeWindowStart(t *testing.T) {
	f := newFixture(t, nil)
	cfg := enabledSettings()
	cfg.WindowStart = "08:00"
	cfg.WindowEnd = "20:00"

	completed := time.Date(2026, 3, 9, 7, 0, 0, 0, time.UTC)
	next := f.service.nextRunTime(cfg, completed)

	assert.Equal(t, time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC), *next)
}

func TestRun_WaitsOutDeferredNextRun(t *testing.T) {
	// A completion past window_end defers next_run_at far beyond the
	// interval; the loop must sleep through the whole deferral instead of
	// ticking one interval later.
	f := newFixture(t, nil)
	cfg := enabledSettings()
	cfg.IntervalMinutes = 1
	next := f.clk.Current.Add(22 * time.Hour)
	cfg.NextRunAt = &next
	f.settings.On("Get", mock.Anything).Return(cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	err := f.service.Run(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	f.settings.AssertNotCalled(t, "TryStartRun", mock.Anything, mock.Anything)
}

func TestRun_TicksWhenNextRunIsDue(t *testing.T) {
	f := newFixture(t, nil)
	cfg := enabledSettings()
	cfg.IntervalMinutes = 1
	next := f.clk.Current.Add(20 * time.Millisecond)
	cfg.NextRunAt = &next
	f.settings.On("Get", mock.Anything).Return(cfg, nil)
	f.settings.On("TryStartRun", mock.Anything, int64(1)).Return(repository.ErrRunInProgress)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	err := f.service.Run(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	f.settings.AssertCalled(t, "TryStartRun", mock.Anything, int64(1))
}

func TestSetInterval_RejectsNonPositive(t *testing.T) {
	f := newFixture(t, nil)

	err := f.service.SetInterval(context.Background(), 0)

	assert.ErrorIs(t, err, ErrBadInterval)
	f.settings.AssertNotCalled(t, "SetInterval", mock.Anything, mock.Anything, mock.Anything)
}

func TestStop_DisablesSettings(t *testing.T) {
	f := newFixture(t, nil)
	f.settings.On("Get", mock.Anything).Return(enabledSettings(), nil)
	f.settings.On("SetEnabled", mock.Anything, int64(1), false).Return(nil)

	assert.NoError(t, f.service.Stop(context.Background()))
	f.settings.AssertExpectations(t)
}
