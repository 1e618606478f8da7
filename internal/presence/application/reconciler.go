package application

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"netpresence/internal/observability/metrics"
	presence "netpresence/internal/presence/domain"
)

// ReconcileResult summarizes one reconcile unit of work.
type ReconcileResult struct {
	CreatedDevices   int `json:"created_devices"`
	UpdatedDevices   int `json:"updated_devices"`
	CreatedEmployees int `json:"created_employees"`
	EventsWritten    int `json:"events_written"`
	WentOnline       int `json:"went_online"`
	WentOffline      int `json:"went_offline"`
	// SkippedTransitions counts transitions dropped because the device's
	// last event is not before the cycle time.
	SkippedTransitions int `json:"skipped_transitions"`
}

// Reconciler applies a snapshot to the directory and history log.
type Reconciler struct {
	uow    presence.UnitOfWork
	logger zerolog.Logger
}

// NewReconciler constructs a Reconciler.
func NewReconciler(uow presence.UnitOfWork, logger zerolog.Logger) (*Reconciler, error) {
	if uow == nil {
		return nil, errors.New("reconciler: nil unit of work")
	}
	return &Reconciler{uow: uow, logger: logger}, nil
}

// Reconcile upserts every sighted device, records Online transitions for
// them and Offline transitions for devices that were online and are no
// longer sighted. It runs as one transaction.
func (r *Reconciler) Reconcile(ctx context.Context, sightings []presence.DeviceSighting, now time.Time) (ReconcileResult, error) {
	now = now.UTC()
	sightings = dedupeByMAC(sightings)

	var result ReconcileResult
	err := r.uow.WithinTx(ctx, func(ctx context.Context, directory presence.DirectoryStore, history presence.HistoryLog) error {
		result = ReconcileResult{}

		lastEvents, err := history.LastEvents(ctx)
		if err != nil {
			return &presence.PersistenceError{Stage: "load last events", Err: err}
		}

		employees := make(map[string]*presence.Employee)
		seen := make(map[string]struct{}, len(sightings))

		for _, sighting := range sightings {
			employee, err := r.resolveEmployee(ctx, directory, employees, sighting.Hostname, &result)
			if err != nil {
				return &presence.PersistenceError{Stage: "resolve employee", MAC: sighting.MACAddress, Err: err}
			}
			var employeeID *string
			if employee != nil {
				employeeID = &employee.ID
			}

			device, created, err := directory.UpsertDevice(ctx, sighting.MACAddress, sighting.IPAddress, sighting.Hostname, employeeID)
			if err != nil {
				return &presence.PersistenceError{Stage: "upsert device", MAC: sighting.MACAddress, Err: err}
			}
			if created {
				result.CreatedDevices++
				r.logger.Info().
					Str("mac", device.MACAddress).
					Str("ip", device.IPAddress).
					Str("hostname", device.Hostname).
					Msg("device created")
			} else {
				result.UpdatedDevices++
				r.logger.Debug().
					Str("mac", device.MACAddress).
					Str("ip", device.IPAddress).
					Msg("device updated")
			}
			seen[device.ID] = struct{}{}

			var last *presence.PresenceEvent
			if event, ok := lastEvents[device.ID]; ok {
				last = &event
			}
			if last != nil && last.Status == presence.StatusOnline {
				continue
			}
			if r.stale(last, now) {
				result.SkippedTransitions++
				continue
			}
			if _, err := history.Append(ctx, device.ID, presence.StatusOnline, now, presence.DurationSince(last, now)); err != nil {
				return &presence.PersistenceError{Stage: "append online", MAC: sighting.MACAddress, Err: err}
			}
			result.EventsWritten++
			result.WentOnline++
		}

		for deviceID, last := range lastEvents {
			if last.Status != presence.StatusOnline {
				continue
			}
			if _, ok := seen[deviceID]; ok {
				continue
			}
			event := last
			if r.stale(&event, now) {
				result.SkippedTransitions++
				continue
			}
			if _, err := history.Append(ctx, deviceID, presence.StatusOffline, now, presence.DurationSince(&event, now)); err != nil {
				return &presence.PersistenceError{Stage: "append offline", Err: err}
			}
			result.EventsWritten++
			result.WentOffline++
			r.logger.Debug().Str("device_id", deviceID).Msg("device went offline")
		}
		return nil
	})
	if err != nil {
		return ReconcileResult{}, err
	}

	metrics.AddDirectoryCreates(metrics.KindDevice, result.CreatedDevices)
	metrics.AddDirectoryCreates(metrics.KindEmployee, result.CreatedEmployees)
	metrics.AddPresenceEvents(string(presence.StatusOnline), result.WentOnline)
	metrics.AddPresenceEvents(string(presence.StatusOffline), result.WentOffline)
	return result, nil
}

// stale reports whether now does not come after the device's last event.
// Such a transition is left for a later cycle.
func (r *Reconciler) stale(last *presence.PresenceEvent, now time.Time) bool {
	if last == nil || now.After(last.Timestamp) {
		return false
	}
	r.logger.Warn().
		Str("device_id", last.DeviceID).
		Time("last_event", last.Timestamp).
		Time("now", now).
		Msg("cycle time not after last event, transition skipped")
	return true
}

// resolveEmployee finds or creates the employee for a hostname. Employees
// created earlier in the same unit of work are reused through cache.
func (r *Reconciler) resolveEmployee(ctx context.Context, directory presence.DirectoryStore, cache map[string]*presence.Employee, hostname string, result *ReconcileResult) (*presence.Employee, error) {
	if !presence.IsMatchableHostname(hostname) {
		return nil, nil
	}
	if employee, ok := cache[hostname]; ok {
		return employee, nil
	}
	employee, err := directory.FindEmployeeByName(ctx, hostname)
	if err != nil {
		return nil, err
	}
	if employee == nil {
		employee, err = directory.CreateEmployee(ctx, hostname)
		if err != nil {
			return nil, err
		}
		result.CreatedEmployees++
		r.logger.Info().Str("name", hostname).Msg("employee created")
	}
	cache[hostname] = employee
	return employee, nil
}

// dedupeByMAC keeps the last sighting per MAC, preserving first-seen order.
func dedupeByMAC(sightings []presence.DeviceSighting) []presence.DeviceSighting {
	index := make(map[string]int, len(sightings))
	out := make([]presence.DeviceSighting, 0, len(sightings))
	for _, sighting := range sightings {
		mac := presence.NormalizeMAC(sighting.MACAddress)
		if mac == "" || mac == presence.UnknownValue {
			continue
		}
		sighting.MACAddress = mac
		if i, ok := index[mac]; ok {
			out[i] = sighting
			continue
		}
		index[mac] = len(out)
		out = append(out, sighting)
	}
	return out
}
