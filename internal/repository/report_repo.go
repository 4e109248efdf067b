package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"prodreport/internal/domain"
)

type ReportRepository struct {
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

type reportModel struct {
	ID                  int64      `gorm:"column:id;primaryKey"`
	Kind                string     `gorm:"column:kind;index"`
	WorkorderID         *int64     `gorm:"column:workorder_id;index"`
	WorkorderNo         string     `gorm:"column:workorder_no;index"`
	ProcessName         string     `gorm:"column:process_name"`
	OperatorCode        string     `gorm:"column:operator_code;index"`
	EquipmentCode       string     `gorm:"column:equipment_code"`
	WorkDate            time.Time  `gorm:"column:work_date;index"`
	StartTime           string     `gorm:"column:start_time"`
	EndTime             string     `gorm:"column:end_time"`
	RawQuantity         int        `gorm:"column:raw_quantity"`
	DefectQuantity      int        `gorm:"column:defect_quantity"`
	ApprovalState       string     `gorm:"column:approval_state;index"`
	AllocatedQuantity   int        `gorm:"column:allocated_quantity"`
	QuantitySource      string     `gorm:"column:quantity_source"`
	AllocationNote      *string    `gorm:"column:allocation_note"`
	AllocationChecked   bool       `gorm:"column:allocation_checked;index"`
	AllocationCheckedAt *time.Time `gorm:"column:allocation_checked_at"`
	RegularHours        float64    `gorm:"column:regular_hours"`
	OvertimeHours       float64    `gorm:"column:overtime_hours"`
	BreakHours          float64    `gorm:"column:break_hours"`
	CreatedAt           time.Time  `gorm:"column:created_at"`
	UpdatedAt           time.Time  `gorm:"column:updated_at"`
}

func (reportModel) TableName() string { return "reports" }

func toDomainReport(m reportModel) domain.Report {
	var note string
	if m.AllocationNote != nil {
		note = *m.AllocationNote
	}
	return domain.Report{
		ID:                  m.ID,
		Kind:                domain.ReportKind(m.Kind),
		WorkorderID:         m.WorkorderID,
		WorkorderNo:         m.WorkorderNo,
		ProcessName:         m.ProcessName,
		OperatorCode:        m.OperatorCode,
		EquipmentCode:       m.EquipmentCode,
		WorkDate:            m.WorkDate,
		StartTime:           m.StartTime,
		EndTime:             m.EndTime,
		RawQuantity:         m.RawQuantity,
		DefectQuantity:      m.DefectQuantity,
		ApprovalState:       domain.ApprovalState(m.ApprovalState),
		AllocatedQuantity:   m.AllocatedQuantity,
		QuantitySource:      domain.QuantitySource(m.QuantitySource),
		AllocationNote:      note,
		AllocationChecked:   m.AllocationChecked,
		AllocationCheckedAt: m.AllocationCheckedAt,
		RegularHours:        m.RegularHours,
		OvertimeHours:       m.OvertimeHours,
		BreakHours:          m.BreakHours,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}

func toReportModel(r *domain.Report) reportModel {
	var note *string
	if r.AllocationNote != "" {
		v := r.AllocationNote
		note = &v
	}
	return reportModel{
		ID:                  r.ID,
		Kind:                string(r.Kind),
		WorkorderID:         r.WorkorderID,
		WorkorderNo:         r.WorkorderNo,
		ProcessName:         r.ProcessName,
		OperatorCode:        r.OperatorCode,
		EquipmentCode:       r.EquipmentCode,
		WorkDate:            r.WorkDate,
		StartTime:           r.StartTime,
		EndTime:             r.EndTime,
		RawQuantity:         r.RawQuantity,
		DefectQuantity:      r.DefectQuantity,
		ApprovalState:       string(r.ApprovalState),
		AllocatedQuantity:   r.AllocatedQuantity,
		QuantitySource:      string(r.QuantitySource),
		AllocationNote:      note,
		AllocationChecked:   r.AllocationChecked,
		AllocationCheckedAt: r.AllocationCheckedAt,
		RegularHours:        r.RegularHours,
		OvertimeHours:       r.OvertimeHours,
		BreakHours:          r.BreakHours,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
}

func (r *ReportRepository) Create(ctx context.Context, rep *domain.Report) error {
	m := toReportModel(rep)
	tx := r.db.WithContext(ctx).Create(&m)
	if tx.Error != nil {
		return tx.Error
	}
	*rep = toDomainReport(m)
	return nil
}

func (r *ReportRepository) GetByID(ctx context.Context, id int64) (*domain.Report, error) {
	var m reportModel
	tx := r.db.WithContext(ctx).First(&m, id)
	if tx.Error != nil {
		return nil, tx.Error
	}
	rep := toDomainReport(m)
	return &rep, nil
}

// ListApproved returns every approved report of one workorder inside the
// date range, in the engine's canonical order.
func (r *ReportRepository) ListApproved(ctx context.Context, workorderID int64, from, to time.Time) ([]domain.Report, error) {
	var rows []reportModel
	tx := r.db.WithContext(ctx).
		Where("workorder_id = ? AND approval_state = ? AND work_date >= ? AND work_date <= ?",
			workorderID, string(domain.ApprovalApproved), from, to).
		Order("work_date, start_time, id").
		Find(&rows)
	if tx.Error != nil {
		return nil, tx.Error
	}
	out := make([]domain.Report, 0, len(rows))
	for _, m := range rows {
		out = append(out, toDomainReport(m))
	}
	return out, nil
}

// SummaryFilter narrows aggregator queries.
type SummaryFilter struct {
	Kind         string
	OperatorCode string
	WorkorderID  *int64
}

// ListApprovedBetween feeds the aggregator: all approved reports in a date
// range, optionally filtered.
func (r *ReportRepository) ListApprovedBetween(ctx context.Context, from, to time.Time, f SummaryFilter) ([]domain.Report, error) {
	q := r.db.WithContext(ctx).
		Where("approval_state = ? AND work_date >= ? AND work_date <= ?",
			string(domain.ApprovalApproved), from, to)
	if f.Kind != "" {
		q = q.Where("kind = ?", f.Kind)
	}
	if f.OperatorCode != "" {
		q = q.Where("operator_code = ?", f.OperatorCode)
	}
	if f.WorkorderID != nil {
		q = q.Where("workorder_id = ?", *f.WorkorderID)
	}
	var rows []reportModel
	if tx := q.Order("work_date, start_time, id").Find(&rows); tx.Error != nil {
		return nil, tx.Error
	}
	out := make([]domain.Report, 0, len(rows))
	for _, m := range rows {
		out = append(out, toDomainReport(m))
	}
	return out, nil
}

// AllocationCandidate is one workorder the scheduler should visit.
type AllocationCandidate struct {
	WorkorderID  int64  `gorm:"column:workorder_id"`
	OrderNumber  string `gorm:"column:order_number"`
	PendingCount int    `gorm:"column:pending_count"`
}

// ListNeedingAllocation is the scheduler's cheap discovery path: workorders
// with at least one approved, unfilled, unchecked report and a packaging
// sibling. Packaging is a case-insensitive substring match against the
// profile keywords, mirrored here in SQL.
func (r *ReportRepository) ListNeedingAllocation(ctx context.Context, keywords []string, limit int) ([]AllocationCandidate, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	likes := make([]string, 0, len(keywords))
	args := []any{string(domain.ApprovalApproved), string(domain.ApprovalApproved)}
	for _, kw := range keywords {
		likes = append(likes, "LOWER(p.process_name) LIKE ?")
		args = append(args, "%"+strings.ToLower(kw)+"%")
	}
	args = append(args, limit)

	q := fmt.Sprintf(`
SELECT r.workorder_id AS workorder_id, w.order_number AS order_number, COUNT(1) AS pending_count
FROM reports r
JOIN workorders w ON w.id = r.workorder_id
WHERE r.approval_state = ?
  AND r.raw_quantity = 0
  AND r.allocation_checked = FALSE
  AND r.workorder_id IS NOT NULL
  AND EXISTS (
    SELECT 1 FROM reports p
    WHERE p.workorder_id = r.workorder_id
      AND p.approval_state = ?
      AND (%s)
  )
GROUP BY r.workorder_id, w.order_number
ORDER BY w.order_number
LIMIT ?`, strings.Join(likes, " OR "))

	var rows []AllocationCandidate
	tx := r.db.WithContext(ctx).Raw(q, args...).Scan(&rows)
	if tx.Error != nil {
		return nil, tx.Error
	}
	return rows, nil
}

// HistoryForEfficiency returns the operator's most recent approved reports
// on the same process, newest first, excluding the report being scored.
func (r *ReportRepository) HistoryForEfficiency(ctx context.Context, operatorCode, processName string, excludeID int64, limit int) ([]domain.Report, error) {
	if operatorCode == "" {
		return nil, nil
	}
	var rows []reportModel
	tx := r.db.WithContext(ctx).
		Where("operator_code = ? AND process_name = ? AND approval_state = ? AND id <> ?",
			operatorCode, processName, string(domain.ApprovalApproved), excludeID).
		Order("work_date DESC, start_time DESC, id DESC").
		Limit(limit).
		Find(&rows)
	if tx.Error != nil {
		return nil, tx.Error
	}
	out := make([]domain.Report, 0, len(rows))
	for _, m := range rows {
		out = append(out, toDomainReport(m))
	}
	return out, nil
}

// AllocationWrite is one decided row of an allocation batch.
type AllocationWrite struct {
	ReportID          int64
	AllocatedQuantity int
	QuantitySource    domain.QuantitySource
	AllocationNote    string
	CheckedAt         time.Time
}

// WriteAllocations persists a whole batch atomically. Only the engine-owned
// fields are touched; everything else belongs to upstream ingestion.
func (r *ReportRepository) WriteAllocations(ctx context.Context, batch []AllocationWrite) error {
	if len(batch) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, w := range batch {
			checkedAt := w.CheckedAt
			res := tx.Model(&reportModel{}).
				Where("id = ?", w.ReportID).
				Updates(map[string]any{
					"allocated_quantity":    w.AllocatedQuantity,
					"quantity_source":       string(w.QuantitySource),
					"allocation_note":       w.AllocationNote,
					"allocation_checked":    true,
					"allocation_checked_at": &checkedAt,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("report %d vanished during allocation write", w.ReportID)
			}
		}
		return nil
	})
}

// UpdateHours caches the C1 breakdown on approval.
func (r *ReportRepository) UpdateHours(ctx context.Context, id int64, regular, overtime, brk float64) error {
	return r.db.WithContext(ctx).Model(&reportModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"regular_hours":  regular,
			"overtime_hours": overtime,
			"break_hours":    brk,
		}).Error
}

// UpdateApproval moves a report between approval states. Rejection clears
// the allocation check flag so the row drops out of engine scope cleanly.
func (r *ReportRepository) UpdateApproval(ctx context.Context, id int64, state domain.ApprovalState) error {
	updates := map[string]any{"approval_state": string(state)}
	if state == domain.ApprovalRejected {
		updates["allocation_checked"] = false
	}
	return r.db.WithContext(ctx).Model(&reportModel{}).
		Where("id = ?", id).
		Updates(updates).Error
}
