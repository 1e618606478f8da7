package presence

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a directory record cannot be found.
	ErrNotFound = errors.New("presence: not found")
	// ErrEmptyMAC is returned when a device has no MAC address.
	ErrEmptyMAC = errors.New("presence: empty mac address")
	// ErrEmptyName is returned when an employee has no name.
	ErrEmptyName = errors.New("presence: empty employee name")
	// ErrEmptyDeviceID is returned when an event has no device id.
	ErrEmptyDeviceID = errors.New("presence: empty device id")
	// ErrInvalidStatus is returned for statuses other than Online/Offline.
	ErrInvalidStatus = errors.New("presence: invalid status")
	// ErrInvalidTimestamp is returned for zero event timestamps.
	ErrInvalidTimestamp = errors.New("presence: invalid timestamp")
	// ErrNegativeDuration is returned when an event duration is negative.
	ErrNegativeDuration = errors.New("presence: negative duration")
	// ErrNonMonotonic guards per-device timestamp ordering.
	ErrNonMonotonic = errors.New("presence: event timestamp not after previous event")
	// ErrStatusUnchanged guards status alternation.
	ErrStatusUnchanged = errors.New("presence: status unchanged since previous event")
	// ErrInvalidRange is returned when a day range is empty or inverted.
	ErrInvalidRange = errors.New("presence: invalid day range")
)

// PersistenceError wraps a store failure inside a reconcile unit of work.
type PersistenceError struct {
	Stage string
	MAC   string
	Err   error
}

func (e *PersistenceError) Error() string {
	if e.MAC != "" {
		return fmt.Sprintf("presence: %s failed for mac=%s: %v", e.Stage, e.MAC, e.Err)
	}
	return fmt.Sprintf("presence: %s failed: %v", e.Stage, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
