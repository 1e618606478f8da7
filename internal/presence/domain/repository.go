package presence

import (
	"context"
	"time"
)

// DirectoryStore manages the current-state employee and device tables.
type DirectoryStore interface {
	FindDeviceByMAC(ctx context.Context, mac string) (*Device, error)
	// UpsertDevice creates a device or updates its IP and employee link.
	// The hostname is only written on creation. The bool reports creation.
	UpsertDevice(ctx context.Context, mac, ip, hostname string, employeeID *string) (*Device, bool, error)
	FindEmployeeByName(ctx context.Context, name string) (*Employee, error)
	CreateEmployee(ctx context.Context, name string) (*Employee, error)
	ListDevices(ctx context.Context) ([]Device, error)
	// FindDevicesByHostname returns devices linked to the oldest employee
	// with that name, plus unlinked devices whose recorded hostname matches.
	FindDevicesByHostname(ctx context.Context, hostname string) ([]Device, error)
}

// HistoryLog is the append-only presence event stream.
type HistoryLog interface {
	Append(ctx context.Context, deviceID string, status Status, ts time.Time, duration time.Duration) (*PresenceEvent, error)
	LastEvent(ctx context.Context, deviceID string) (*PresenceEvent, error)
	// LastEvents returns the most recent event per device, keyed by device id.
	LastEvents(ctx context.Context) (map[string]PresenceEvent, error)
	// EventsFor returns events of the given devices in [since, until), ordered by time.
	EventsFor(ctx context.Context, deviceIDs []string, since, until time.Time) ([]PresenceEvent, error)
	// EventsBetween returns events of all devices in [since, until), ordered by time.
	EventsBetween(ctx context.Context, since, until time.Time) ([]PresenceEvent, error)
}

// TxFunc runs inside one unit of work.
type TxFunc func(ctx context.Context, directory DirectoryStore, history HistoryLog) error

// UnitOfWork runs directory and history mutations atomically and exposes
// committed-read views for queries.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn TxFunc) error
	Directory() DirectoryStore
	History() HistoryLog
}
