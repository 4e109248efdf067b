package domain

import "time"

type ReportKind string

const (
	ReportKindOperator ReportKind = "operator"
	ReportKindSMT      ReportKind = "smt"
)

type ApprovalState string

const (
	ApprovalPending  ApprovalState = "pending"
	ApprovalApproved ApprovalState = "approved"
	ApprovalRejected ApprovalState = "rejected"
)

type QuantitySource string

const (
	SourceOriginal      QuantitySource = "original"
	SourceAllocated     QuantitySource = "allocated"
	SourcePackaging     QuantitySource = "packaging"
	SourceAutoAllocated QuantitySource = "auto_allocated"
)

// Report is one shift-slice of work by one operator (or SMT machine) on one
// process of one workorder. Start/end times are wall-clock "15:04" strings;
// an end before the start means the slice crosses midnight.
type Report struct {
	ID   int64      `json:"id"`
	Kind ReportKind `json:"kind"`

	// WorkorderID is nil for legacy imports that carry only the raw
	// order number. Unresolved rows can never be allocated.
	WorkorderID *int64 `json:"workorder_id,omitempty"`
	WorkorderNo string `json:"workorder_no"`

	ProcessName   string `json:"process_name"`
	OperatorCode  string `json:"operator_code,omitempty"`
	EquipmentCode string `json:"equipment_code,omitempty"`

	WorkDate  time.Time `json:"work_date"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`

	RawQuantity    int `json:"raw_quantity"`
	DefectQuantity int `json:"defect_quantity"`

	ApprovalState ApprovalState `json:"approval_state"`

	// Engine-owned fields below. Upstream ingestion must never touch them.
	AllocatedQuantity   int            `json:"allocated_quantity"`
	QuantitySource      QuantitySource `json:"quantity_source"`
	AllocationNote      string         `json:"allocation_note,omitempty"`
	AllocationChecked   bool           `json:"allocation_checked"`
	AllocationCheckedAt *time.Time     `json:"allocation_checked_at,omitempty"`

	RegularHours  float64 `json:"regular_hours"`
	OvertimeHours float64 `json:"overtime_hours"`
	BreakHours    float64 `json:"break_hours"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WorkHours is the portion of the shift that counts as work.
func (r *Report) WorkHours() float64 {
	return r.RegularHours + r.OvertimeHours
}

// EffectiveQuantity prefers the allocated quantity once the engine has
// filled it in.
func (r *Report) EffectiveQuantity() int {
	if r.AllocatedQuantity > 0 {
		return r.AllocatedQuantity
	}
	return r.RawQuantity
}
