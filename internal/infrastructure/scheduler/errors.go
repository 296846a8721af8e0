package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when submitting to a stopped component
	ErrSchedulerNotRunning = errors.New("scheduler is not running")

	// ErrQueueFull is returned when the notification buffer is full
	ErrQueueFull = errors.New("notification queue is full")

	// ErrDuplicateNotification is returned for a notification coalesced into an earlier one
	ErrDuplicateNotification = errors.New("duplicate notification")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")
)
