package domain

import "time"

// SchedulerSettings is a singleton row controlling the allocation scheduler.
// IsRunning doubles as a coarse mutex: a tick refuses to start while the
// flag is set.
type SchedulerSettings struct {
	ID                  int64      `json:"id"`
	Enabled             bool       `json:"enabled"`
	IntervalMinutes     int        `json:"interval_minutes"`
	WindowStart         string     `json:"window_start,omitempty"` // "08:00", empty = all day
	WindowEnd           string     `json:"window_end,omitempty"`
	MaxExecutionSeconds int        `json:"max_execution_seconds"`
	IsRunning           bool       `json:"is_running"`
	LastRunAt           *time.Time `json:"last_run_at,omitempty"`
	NextRunAt           *time.Time `json:"next_run_at,omitempty"`
	SuccessCount        int64      `json:"success_count"`
	FailureCount        int64      `json:"failure_count"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// AllocationLog is one append-only row per scheduler run.
type AllocationLog struct {
	ID                  int64      `json:"id"`
	RunID               string     `json:"run_id"`
	StartedAt           time.Time  `json:"started_at"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	Success             bool       `json:"success"`
	WorkordersTotal     int        `json:"workorders_total"`
	WorkordersSucceeded int        `json:"workorders_succeeded"`
	WorkordersFailed    int        `json:"workorders_failed"`
	ErrorMessage        string     `json:"error_message,omitempty"`
	Details             string     `json:"details,omitempty"` // JSON blob of per-workorder outcomes
}
