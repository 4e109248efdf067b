package reports

import "prodreport/internal/domain"

type CreateReportRequest struct {
	Kind           string `json:"kind" binding:"required,oneof=operator smt"`
	WorkorderNo    string `json:"workorder_no" binding:"required"`
	ProcessName    string `json:"process_name" binding:"required"`
	OperatorCode   string `json:"operator_code"`
	EquipmentCode  string `json:"equipment_code"`
	WorkDate       string `json:"work_date" binding:"required"` // YYYY-MM-DD
	StartTime      string `json:"start_time" binding:"required"`
	EndTime        string `json:"end_time" binding:"required"`
	RawQuantity    int    `json:"raw_quantity" binding:"min=0"`
	DefectQuantity int    `json:"defect_quantity" binding:"min=0"`
}

type CreateWorkorderRequest struct {
	OrderNumber     string `json:"order_number" binding:"required"`
	ProductCode     string `json:"product_code"`
	CompanyCode     string `json:"company_code"`
	PlannedQuantity int    `json:"planned_quantity" binding:"min=0"`
}

// ApprovalOutcome echoes the hour breakdown computed at approval time.
type ApprovalOutcome struct {
	Report   *domain.Report `json:"report"`
	Warnings []string       `json:"warnings,omitempty"`
}
