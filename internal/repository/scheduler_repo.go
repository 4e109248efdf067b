package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"prodreport/internal/domain"
)

// ErrRunInProgress is returned when the is_running flag is already set by
// another run.
var ErrRunInProgress = errors.New("scheduler run already in progress")

type SchedulerRepository struct {
	db *gorm.DB
}

func NewSchedulerRepository(db *gorm.DB) *SchedulerRepository {
	return &SchedulerRepository{db: db}
}

type schedulerSettingsModel struct {
	ID                  int64      `gorm:"column:id;primaryKey"`
	Enabled             bool       `gorm:"column:enabled"`
	IntervalMinutes     int        `gorm:"column:interval_minutes"`
	WindowStart         string     `gorm:"column:window_start"`
	WindowEnd           string     `gorm:"column:window_end"`
	MaxExecutionSeconds int        `gorm:"column:max_execution_seconds"`
	IsRunning           bool       `gorm:"column:is_running"`
	LastRunAt           *time.Time `gorm:"column:last_run_at"`
	NextRunAt           *time.Time `gorm:"column:next_run_at"`
	SuccessCount        int64      `gorm:"column:success_count"`
	FailureCount        int64      `gorm:"column:failure_count"`
	UpdatedAt           time.Time  `gorm:"column:updated_at"`
}

func (schedulerSettingsModel) TableName() string { return "scheduler_settings" }

func toDomainSettings(m schedulerSettingsModel) *domain.SchedulerSettings {
	return &domain.SchedulerSettings{
		ID:                  m.ID,
		Enabled:             m.Enabled,
		IntervalMinutes:     m.IntervalMinutes,
		WindowStart:         m.WindowStart,
		WindowEnd:           m.WindowEnd,
		MaxExecutionSeconds: m.MaxExecutionSeconds,
		IsRunning:           m.IsRunning,
		LastRunAt:           m.LastRunAt,
		NextRunAt:           m.NextRunAt,
		SuccessCount:        m.SuccessCount,
		FailureCount:        m.FailureCount,
		UpdatedAt:           m.UpdatedAt,
	}
}

// Get loads the singleton settings row, creating a sane default if the
// table is empty.
func (r *SchedulerRepository) Get(ctx context.Context) (*domain.SchedulerSettings, error) {
	var m schedulerSettingsModel
	tx := r.db.WithContext(ctx).First(&m)
	if tx.Error != nil {
		if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
			m = schedulerSettingsModel{
				Enabled:             true,
				IntervalMinutes:     30,
				MaxExecutionSeconds: 300,
			}
			if tx := r.db.WithContext(ctx).Create(&m); tx.Error != nil {
				return nil, tx.Error
			}
			return toDomainSettings(m), nil
		}
		return nil, tx.Error
	}
	return toDomainSettings(m), nil
}

// TryStartRun flips is_running under an optimistic guard. Losing the race
// yields ErrRunInProgress, never a stomped flag.
func (r *SchedulerRepository) TryStartRun(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Model(&schedulerSettingsModel{}).
		Where("id = ? AND is_running = ?", id, false).
		Update("is_running", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRunInProgress
	}
	return nil
}

// FinishRun clears is_running and records the lifecycle fields.
func (r *SchedulerRepository) FinishRun(ctx context.Context, id int64, lastRun time.Time, nextRun *time.Time, success bool) error {
	updates := map[string]any{
		"is_running":  false,
		"last_run_at": lastRun,
		"next_run_at": nextRun,
	}
	if success {
		updates["success_count"] = gorm.Expr("success_count + 1")
	} else {
		updates["failure_count"] = gorm.Expr("failure_count + 1")
	}
	return r.db.WithContext(ctx).Model(&schedulerSettingsModel{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// ClearRunning force-clears a wedged is_running flag (watchdog / operator).
func (r *SchedulerRepository) ClearRunning(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Model(&schedulerSettingsModel{}).
		Where("id = ?", id).
		Update("is_running", false).Error
}

func (r *SchedulerRepository) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	return r.db.WithContext(ctx).Model(&schedulerSettingsModel{}).
		Where("id = ?", id).
		Update("enabled", enabled).Error
}

func (r *SchedulerRepository) SetInterval(ctx context.Context, id int64, minutes int) error {
	return r.db.WithContext(ctx).Model(&schedulerSettingsModel{}).
		Where("id = ?", id).
		Update("interval_minutes", minutes).Error
}
