package application

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	presence "netpresence/internal/presence/domain"
	"netpresence/internal/presence/infrastructure/memory"
)

var t0 = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

func newReconciler(t *testing.T, store *memory.Store) *Reconciler {
	t.Helper()
	r, err := NewReconciler(store, zerolog.Nop())
	require.NoError(t, err)
	return r
}

func sighting(mac, ip, hostname string) presence.DeviceSighting {
	return presence.DeviceSighting{
		MACAddress: mac,
		IPAddress:  ip,
		Hostname:   hostname,
		Status:     presence.SightingStatusOnline,
	}
}

// seedEvents records alternating events for a device, starting with Online.
func seedEvents(t *testing.T, store *memory.Store, mac, hostname string, times ...time.Time) string {
	t.Helper()
	var deviceID string
	err := store.WithinTx(context.Background(), func(ctx context.Context, directory presence.DirectoryStore, history presence.HistoryLog) error {
		var employeeID *string
		if presence.IsMatchableHostname(hostname) {
			employee, err := directory.FindEmployeeByName(ctx, hostname)
			if err != nil {
				return err
			}
			if employee == nil {
				if employee, err = directory.CreateEmployee(ctx, hostname); err != nil {
					return err
				}
			}
			employeeID = &employee.ID
		}
		device, _, err := directory.UpsertDevice(ctx, mac, "10.0.0.9", hostname, employeeID)
		if err != nil {
			return err
		}
		deviceID = device.ID
		last, err := history.LastEvent(ctx, device.ID)
		if err != nil {
			return err
		}
		status := presence.StatusOnline
		if last != nil && last.Status == presence.StatusOnline {
			status = presence.StatusOffline
		}
		for _, ts := range times {
			if _, err := history.Append(ctx, device.ID, status, ts, presence.DurationSince(last, ts)); err != nil {
				return err
			}
			last = &presence.PresenceEvent{DeviceID: device.ID, Status: status, Timestamp: ts}
			if status == presence.StatusOnline {
				status = presence.StatusOffline
			} else {
				status = presence.StatusOnline
			}
		}
		return nil
	})
	require.NoError(t, err)
	return deviceID
}
