package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"prodreport/internal/domain"
)

type WorkorderRepository struct {
	db *gorm.DB
}

func NewWorkorderRepository(db *gorm.DB) *WorkorderRepository {
	return &WorkorderRepository{db: db}
}

type workorderModel struct {
	ID              int64     `gorm:"column:id;primaryKey"`
	OrderNumber     string    `gorm:"column:order_number;uniqueIndex"`
	ProductCode     string    `gorm:"column:product_code"`
	CompanyCode     string    `gorm:"column:company_code"`
	PlannedQuantity int       `gorm:"column:planned_quantity"`
	State           string    `gorm:"column:state"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`
}

func (workorderModel) TableName() string { return "workorders" }

func toDomainWorkorder(m workorderModel) *domain.Workorder {
	return &domain.Workorder{
		ID:              m.ID,
		OrderNumber:     m.OrderNumber,
		ProductCode:     m.ProductCode,
		CompanyCode:     m.CompanyCode,
		PlannedQuantity: m.PlannedQuantity,
		State:           domain.WorkorderState(m.State),
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func (r *WorkorderRepository) Create(ctx context.Context, w *domain.Workorder) error {
	m := workorderModel{
		OrderNumber:     w.OrderNumber,
		ProductCode:     w.ProductCode,
		CompanyCode:     w.CompanyCode,
		PlannedQuantity: w.PlannedQuantity,
		State:           string(w.State),
	}
	tx := r.db.WithContext(ctx).Create(&m)
	if tx.Error != nil {
		return tx.Error
	}
	*w = *toDomainWorkorder(m)
	return nil
}

func (r *WorkorderRepository) GetByID(ctx context.Context, id int64) (*domain.Workorder, error) {
	var m workorderModel
	if tx := r.db.WithContext(ctx).First(&m, id); tx.Error != nil {
		return nil, tx.Error
	}
	return toDomainWorkorder(m), nil
}

func (r *WorkorderRepository) GetByOrderNumber(ctx context.Context, orderNumber string) (*domain.Workorder, error) {
	var m workorderModel
	if tx := r.db.WithContext(ctx).Where("order_number = ?", orderNumber).First(&m); tx.Error != nil {
		return nil, tx.Error
	}
	return toDomainWorkorder(m), nil
}
