package allocation

import "prodreport/internal/domain"

// Decision is the engine's verdict for one visited report.
type Decision struct {
	ReportID          int64                 `json:"report_id"`
	AllocatedQuantity int                   `json:"allocated_quantity"`
	QuantitySource    domain.QuantitySource `json:"quantity_source"`
	Note              string                `json:"note,omitempty"`
}

// Result is the outcome of one workorder allocation. Adverse-but-expected
// conditions (no reports, no packaging, implausible totals) come back as
// Success=false with a message, not as errors.
type Result struct {
	WorkorderID int64      `json:"workorder_id"`
	Success     bool       `json:"success"`
	Message     string     `json:"message,omitempty"`
	FinalTotal  int        `json:"final_total"`
	Remaining   int        `json:"remaining"`
	Decisions   []Decision `json:"decisions,omitempty"`
}

const (
	msgWorkorderUnresolved = "workorder not resolved"
	msgNoApprovedReports   = "no approved reports in range"
	msgNoPackagingReports  = "no packaging reports"
	msgTotalExceedsPlan    = "packaging total exceeds planned quantity cap"
	msgNoAllocationNeeded  = "no_allocation_needed"
	msgAllocated           = "allocated"
)
