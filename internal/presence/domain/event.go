package presence

import (
	"strings"
	"time"
)

// Status is the presence state recorded for a device.
type Status string

const (
	StatusOnline  Status = "Online"
	StatusOffline Status = "Offline"
)

// IsValid reports whether the status is supported.
func (s Status) IsValid() bool {
	return s == StatusOnline || s == StatusOffline
}

// ParseStatus maps a gateway status string to a Status.
func ParseStatus(value string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "online":
		return StatusOnline, nil
	case "offline":
		return StatusOffline, nil
	default:
		return "", ErrInvalidStatus
	}
}

// PresenceEvent is an immutable status transition of one device.
// Duration is the time elapsed since the device's previous event.
type PresenceEvent struct {
	ID        string
	DeviceID  string
	Status    Status
	Timestamp time.Time
	Duration  time.Duration
}

// Validate checks event invariants.
func (e PresenceEvent) Validate() error {
	if e.DeviceID == "" {
		return ErrEmptyDeviceID
	}
	if !e.Status.IsValid() {
		return ErrInvalidStatus
	}
	if e.Timestamp.IsZero() {
		return ErrInvalidTimestamp
	}
	if e.Duration < 0 {
		return ErrNegativeDuration
	}
	return nil
}

// CheckFollows validates that next may be appended after prev.
// A nil prev means the device has no history.
func CheckFollows(prev *PresenceEvent, next PresenceEvent) error {
	if err := next.Validate(); err != nil {
		return err
	}
	if prev == nil {
		return nil
	}
	if !next.Timestamp.After(prev.Timestamp) {
		return ErrNonMonotonic
	}
	if next.Status == prev.Status {
		return ErrStatusUnchanged
	}
	return nil
}

// DurationSince returns the whole-second duration between prev and now,
// or zero when there is no previous event.
func DurationSince(prev *PresenceEvent, now time.Time) time.Duration {
	if prev == nil {
		return 0
	}
	d := now.Sub(prev.Timestamp).Truncate(time.Second)
	if d < 0 {
		return 0
	}
	return d
}
