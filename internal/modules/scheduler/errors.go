package scheduler

import "errors"

var (
	// ErrDisabled: the settings row has enabled=false.
	ErrDisabled = errors.New("scheduler is disabled")
	// ErrAlreadyRunning: another run holds the is_running flag or the lock.
	ErrAlreadyRunning = errors.New("a run is already in progress")
	// ErrBadInterval rejects non-positive intervals on set-interval.
	ErrBadInterval = errors.New("interval must be at least one minute")
)
