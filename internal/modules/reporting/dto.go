package reporting

import "time"

type Grouping string

const (
	GroupDaily     Grouping = "daily"
	GroupWeekly    Grouping = "weekly"
	GroupMonthly   Grouping = "monthly"
	GroupOperator  Grouping = "operator"
	GroupWorkorder Grouping = "workorder"
)

func (g Grouping) Valid() bool {
	switch g {
	case GroupDaily, GroupWeekly, GroupMonthly, GroupOperator, GroupWorkorder:
		return true
	}
	return false
}

// Query selects the snapshot and the rollup axis.
type Query struct {
	Grouping     Grouping
	From         time.Time
	To           time.Time
	Kind         string
	OperatorCode string
	WorkorderID  *int64
}

// GroupSummary is one rollup bucket. Key depends on the grouping: a date,
// an ISO-week Monday, a "2006-01" month, an operator code or a workorder
// number.
type GroupSummary struct {
	Key                    string  `json:"key"`
	TotalRegularHours      float64 `json:"total_regular_hours"`
	TotalOvertimeHours     float64 `json:"total_overtime_hours"`
	TotalBreakHours        float64 `json:"total_break_hours"`
	TotalEffectiveQuantity int     `json:"total_effective_quantity"`
	TotalDefectQuantity    int     `json:"total_defect_quantity"`
	DistinctWorkers        int     `json:"distinct_workers"`
	DistinctWorkorders     int     `json:"distinct_workorders"`
	AvgEfficiency          float64 `json:"avg_efficiency"`
	AvgYieldRate           float64 `json:"avg_yield_rate"`
	ReportCount            int     `json:"report_count"`
}
