package domain

import "time"

type WorkorderState string

const (
	WorkorderPending    WorkorderState = "pending"
	WorkorderInProgress WorkorderState = "in_progress"
	WorkorderCompleted  WorkorderState = "completed"
)

// Workorder is a planned production order. The engine reads the planned
// quantity as a sanity bound but never writes it.
type Workorder struct {
	ID              int64          `json:"id"`
	OrderNumber     string         `json:"order_number"`
	ProductCode     string         `json:"product_code"`
	CompanyCode     string         `json:"company_code"`
	PlannedQuantity int            `json:"planned_quantity"`
	State           WorkorderState `json:"state"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}
