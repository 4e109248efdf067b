package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"prodreport/internal/domain"
)

type AllocationLogRepository struct {
	db *gorm.DB
}

func NewAllocationLogRepository(db *gorm.DB) *AllocationLogRepository {
	return &AllocationLogRepository{db: db}
}

type allocationLogModel struct {
	ID                  int64      `gorm:"column:id;primaryKey"`
	RunID               string     `gorm:"column:run_id;index"`
	StartedAt           time.Time  `gorm:"column:started_at"`
	CompletedAt         *time.Time `gorm:"column:completed_at"`
	Success             bool       `gorm:"column:success"`
	WorkordersTotal     int        `gorm:"column:workorders_total"`
	WorkordersSucceeded int        `gorm:"column:workorders_succeeded"`
	WorkordersFailed    int        `gorm:"column:workorders_failed"`
	ErrorMessage        string     `gorm:"column:error_message"`
	Details             string     `gorm:"column:details;type:text"`
}

func (allocationLogModel) TableName() string { return "allocation_logs" }

func toDomainLog(m allocationLogModel) domain.AllocationLog {
	return domain.AllocationLog{
		ID:                  m.ID,
		RunID:               m.RunID,
		StartedAt:           m.StartedAt,
		CompletedAt:         m.CompletedAt,
		Success:             m.Success,
		WorkordersTotal:     m.WorkordersTotal,
		WorkordersSucceeded: m.WorkordersSucceeded,
		WorkordersFailed:    m.WorkordersFailed,
		ErrorMessage:        m.ErrorMessage,
		Details:             m.Details,
	}
}

// The allocation log is append-only: one Create at run start, one Complete
// at run end, nothing else ever writes it.

func (r *AllocationLogRepository) Create(ctx context.Context, l *domain.AllocationLog) error {
	m := allocationLogModel{
		RunID:     l.RunID,
		StartedAt: l.StartedAt,
	}
	if tx := r.db.WithContext(ctx).Create(&m); tx.Error != nil {
		return tx.Error
	}
	l.ID = m.ID
	return nil
}

func (r *AllocationLogRepository) Complete(ctx context.Context, l *domain.AllocationLog) error {
	return r.db.WithContext(ctx).Model(&allocationLogModel{}).
		Where("id = ?", l.ID).
		Updates(map[string]any{
			"completed_at":         l.CompletedAt,
			"success":              l.Success,
			"workorders_total":     l.WorkordersTotal,
			"workorders_succeeded": l.WorkordersSucceeded,
			"workorders_failed":    l.WorkordersFailed,
			"error_message":        l.ErrorMessage,
			"details":              l.Details,
		}).Error
}

func (r *AllocationLogRepository) ListRecent(ctx context.Context, limit int) ([]domain.AllocationLog, error) {
	var rows []allocationLogModel
	tx := r.db.WithContext(ctx).Order("started_at DESC, id DESC").Limit(limit).Find(&rows)
	if tx.Error != nil {
		return nil, tx.Error
	}
	out := make([]domain.AllocationLog, 0, len(rows))
	for _, m := range rows {
		out = append(out, toDomainLog(m))
	}
	return out, nil
}
