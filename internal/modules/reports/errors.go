package reports

import "errors"

var (
	ErrReportNotFound     = errors.New("report not found")
	ErrWorkorderNotFound  = errors.New("workorder not found")
	ErrDuplicateWorkorder = errors.New("workorder with this order number already exists")
	// ErrAlreadyDecided: approval is a one-way transition from pending.
	ErrAlreadyDecided = errors.New("report is no longer pending")
	// ErrAllocationRunning: manual triggers wait for the scheduled run.
	ErrAllocationRunning = errors.New("an allocation run is in progress")
)
