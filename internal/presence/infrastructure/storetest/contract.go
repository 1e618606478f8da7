// Package storetest holds behavior checks shared by every UnitOfWork
// implementation.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	presence "netpresence/internal/presence/domain"
)

// Factory returns an empty, migrated unit of work.
type Factory func(t *testing.T) presence.UnitOfWork

var base = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

// Run exercises the directory and history contracts against newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("DeviceUpsert", func(t *testing.T) { testDeviceUpsert(t, newStore(t)) })
	t.Run("EmployeeLookup", func(t *testing.T) { testEmployeeLookup(t, newStore(t)) })
	t.Run("DevicesByHostname", func(t *testing.T) { testDevicesByHostname(t, newStore(t)) })
	t.Run("DevicesByHostnameAfterRelink", func(t *testing.T) { testDevicesByHostnameAfterRelink(t, newStore(t)) })
	t.Run("AppendRules", func(t *testing.T) { testAppendRules(t, newStore(t)) })
	t.Run("EventQueries", func(t *testing.T) { testEventQueries(t, newStore(t)) })
	t.Run("Rollback", func(t *testing.T) { testRollback(t, newStore(t)) })
}

func withinTx(t *testing.T, uow presence.UnitOfWork, fn presence.TxFunc) {
	t.Helper()
	require.NoError(t, uow.WithinTx(context.Background(), fn))
}

func testDeviceUpsert(t *testing.T, uow presence.UnitOfWork) {
	ctx := context.Background()
	var employee *presence.Employee
	withinTx(t, uow, func(ctx context.Context, directory presence.DirectoryStore, _ presence.HistoryLog) error {
		var err error
		employee, err = directory.CreateEmployee(ctx, "alice")
		if err != nil {
			return err
		}
		device, created, err := directory.UpsertDevice(ctx, "AA:BB:CC:00:00:01", "10.0.0.2", "alice", nil)
		if err != nil {
			return err
		}
		assert.True(t, created)
		assert.False(t, device.HasEmployee())

		device, created, err = directory.UpsertDevice(ctx, "AA:BB:CC:00:00:01", "10.0.0.3", "renamed", &employee.ID)
		if err != nil {
			return err
		}
		assert.False(t, created)
		assert.Equal(t, "alice", device.Hostname)
		return nil
	})

	device, err := uow.Directory().FindDeviceByMAC(ctx, "AA:BB:CC:00:00:01")
	require.NoError(t, err)
	require.NotNil(t, device)
	assert.Equal(t, "10.0.0.3", device.IPAddress)
	assert.Equal(t, "alice", device.Hostname)
	require.NotNil(t, device.EmployeeID)
	assert.Equal(t, employee.ID, *device.EmployeeID)

	// A nil employee keeps the existing link.
	withinTx(t, uow, func(ctx context.Context, directory presence.DirectoryStore, _ presence.HistoryLog) error {
		_, _, err := directory.UpsertDevice(ctx, "AA:BB:CC:00:00:01", "10.0.0.4", "alice", nil)
		return err
	})
	device, err = uow.Directory().FindDeviceByMAC(ctx, "AA:BB:CC:00:00:01")
	require.NoError(t, err)
	require.NotNil(t, device.EmployeeID)
	assert.Equal(t, "10.0.0.4", device.IPAddress)

	missing, err := uow.Directory().FindDeviceByMAC(ctx, "AA:BB:CC:FF:FF:FF")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = uow.Directory().FindDeviceByMAC(ctx, "")
	assert.ErrorIs(t, err, presence.ErrEmptyMAC)

	devices, err := uow.Directory().ListDevices(ctx)
	require.NoError(t, err)
	assert.Len(t, devices, 1)
}

func testEmployeeLookup(t *testing.T, uow presence.UnitOfWork) {
	ctx := context.Background()
	employee, err := uow.Directory().FindEmployeeByName(ctx, "bob")
	require.NoError(t, err)
	assert.Nil(t, employee)

	var created *presence.Employee
	withinTx(t, uow, func(ctx context.Context, directory presence.DirectoryStore, _ presence.HistoryLog) error {
		var err error
		created, err = directory.CreateEmployee(ctx, "bob")
		return err
	})

	employee, err = uow.Directory().FindEmployeeByName(ctx, "bob")
	require.NoError(t, err)
	require.NotNil(t, employee)
	assert.Equal(t, created.ID, employee.ID)

	_, err = uow.Directory().FindEmployeeByName(ctx, "")
	assert.ErrorIs(t, err, presence.ErrEmptyName)
}

func testDevicesByHostname(t *testing.T, uow presence.UnitOfWork) {
	ctx := context.Background()
	withinTx(t, uow, func(ctx context.Context, directory presence.DirectoryStore, _ presence.HistoryLog) error {
		carol, err := directory.CreateEmployee(ctx, "carol")
		if err != nil {
			return err
		}
		if _, _, err := directory.UpsertDevice(ctx, "AA:BB:CC:00:00:02", "10.0.0.2", "carol-phone", &carol.ID); err != nil {
			return err
		}
		if _, _, err := directory.UpsertDevice(ctx, "AA:BB:CC:00:00:01", "10.0.0.3", "carol", nil); err != nil {
			return err
		}
		_, _, err = directory.UpsertDevice(ctx, "AA:BB:CC:00:00:03", "10.0.0.4", "dave", nil)
		return err
	})

	devices, err := uow.Directory().FindDevicesByHostname(ctx, "carol")
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "AA:BB:CC:00:00:01", devices[0].MACAddress)
	assert.Equal(t, "AA:BB:CC:00:00:02", devices[1].MACAddress)

	devices, err = uow.Directory().FindDevicesByHostname(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, devices)

	devices, err = uow.Directory().FindDevicesByHostname(ctx, "dave")
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "AA:BB:CC:00:00:03", devices[0].MACAddress)
}

func testDevicesByHostnameAfterRelink(t *testing.T, uow presence.UnitOfWork) {
	ctx := context.Background()
	withinTx(t, uow, func(ctx context.Context, directory presence.DirectoryStore, _ presence.HistoryLog) error {
		alice, err := directory.CreateEmployee(ctx, "alice")
		if err != nil {
			return err
		}
		_, _, err = directory.UpsertDevice(ctx, "AA:BB:CC:00:00:01", "10.0.0.2", "alice", &alice.ID)
		return err
	})
	withinTx(t, uow, func(ctx context.Context, directory presence.DirectoryStore, _ presence.HistoryLog) error {
		bob, err := directory.CreateEmployee(ctx, "bob")
		if err != nil {
			return err
		}
		_, _, err = directory.UpsertDevice(ctx, "AA:BB:CC:00:00:01", "10.0.0.2", "bob", &bob.ID)
		return err
	})

	devices, err := uow.Directory().FindDevicesByHostname(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, devices, "a device linked to another employee must not match its recorded hostname")

	devices, err = uow.Directory().FindDevicesByHostname(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "AA:BB:CC:00:00:01", devices[0].MACAddress)
	assert.Equal(t, "alice", devices[0].Hostname)
}

func seedDevice(t *testing.T, uow presence.UnitOfWork, mac string) string {
	t.Helper()
	var id string
	withinTx(t, uow, func(ctx context.Context, directory presence.DirectoryStore, _ presence.HistoryLog) error {
		device, _, err := directory.UpsertDevice(ctx, mac, "10.0.0.2", presence.UnknownValue, nil)
		if err != nil {
			return err
		}
		id = device.ID
		return nil
	})
	return id
}

func testAppendRules(t *testing.T, uow presence.UnitOfWork) {
	ctx := context.Background()
	id := seedDevice(t, uow, "AA:BB:CC:00:00:01")

	err := uow.WithinTx(ctx, func(ctx context.Context, _ presence.DirectoryStore, history presence.HistoryLog) error {
		if _, err := history.Append(ctx, id, presence.StatusOnline, base, 0); err != nil {
			return err
		}
		_, err := history.Append(ctx, id, presence.StatusOnline, base.Add(time.Minute), time.Minute)
		return err
	})
	assert.ErrorIs(t, err, presence.ErrStatusUnchanged)

	last, err := uow.History().LastEvent(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, last, "failed transaction must not leave events behind")

	withinTx(t, uow, func(ctx context.Context, _ presence.DirectoryStore, history presence.HistoryLog) error {
		_, err := history.Append(ctx, id, presence.StatusOnline, base, 0)
		return err
	})

	err = uow.WithinTx(ctx, func(ctx context.Context, _ presence.DirectoryStore, history presence.HistoryLog) error {
		_, err := history.Append(ctx, id, presence.StatusOffline, base, 0)
		return err
	})
	assert.ErrorIs(t, err, presence.ErrNonMonotonic)

	err = uow.WithinTx(ctx, func(ctx context.Context, _ presence.DirectoryStore, history presence.HistoryLog) error {
		_, err := history.Append(ctx, id, presence.StatusOffline, base.Add(time.Hour), -time.Second)
		return err
	})
	assert.ErrorIs(t, err, presence.ErrNegativeDuration)

	err = uow.WithinTx(ctx, func(ctx context.Context, _ presence.DirectoryStore, history presence.HistoryLog) error {
		_, err := history.Append(ctx, id, presence.Status("Away"), base.Add(time.Hour), 0)
		return err
	})
	assert.ErrorIs(t, err, presence.ErrInvalidStatus)

	withinTx(t, uow, func(ctx context.Context, _ presence.DirectoryStore, history presence.HistoryLog) error {
		_, err := history.Append(ctx, id, presence.StatusOffline, base.Add(90*time.Minute), 90*time.Minute)
		return err
	})
	last, err = uow.History().LastEvent(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, presence.StatusOffline, last.Status)
	assert.True(t, last.Timestamp.Equal(base.Add(90*time.Minute)))
	assert.Equal(t, 90*time.Minute, last.Duration)
}

func testEventQueries(t *testing.T, uow presence.UnitOfWork) {
	ctx := context.Background()
	first := seedDevice(t, uow, "AA:BB:CC:00:00:01")
	second := seedDevice(t, uow, "AA:BB:CC:00:00:02")

	withinTx(t, uow, func(ctx context.Context, _ presence.DirectoryStore, history presence.HistoryLog) error {
		steps := []struct {
			id     string
			status presence.Status
			at     time.Duration
		}{
			{first, presence.StatusOnline, 0},
			{second, presence.StatusOnline, time.Hour},
			{first, presence.StatusOffline, 2 * time.Hour},
			{first, presence.StatusOnline, 26 * time.Hour},
		}
		for _, step := range steps {
			if _, err := history.Append(ctx, step.id, step.status, base.Add(step.at), 0); err != nil {
				return err
			}
		}
		return nil
	})

	last, err := uow.History().LastEvents(ctx)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, presence.StatusOnline, last[first].Status)
	assert.True(t, last[first].Timestamp.Equal(base.Add(26*time.Hour)))
	assert.True(t, last[second].Timestamp.Equal(base.Add(time.Hour)))

	events, err := uow.History().EventsBetween(ctx, base, base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, first, events[0].DeviceID)
	assert.Equal(t, second, events[1].DeviceID)
	assert.Equal(t, presence.StatusOffline, events[2].Status)

	// The upper bound is exclusive.
	events, err = uow.History().EventsBetween(ctx, base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, events, 1)

	events, err = uow.History().EventsFor(ctx, []string{first}, base, base.Add(48*time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 3)
	for _, event := range events {
		assert.Equal(t, first, event.DeviceID)
	}

	events, err = uow.History().EventsFor(ctx, nil, base, base.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func testRollback(t *testing.T, uow presence.UnitOfWork) {
	ctx := context.Background()
	boom := errors.New("boom")
	err := uow.WithinTx(ctx, func(ctx context.Context, directory presence.DirectoryStore, history presence.HistoryLog) error {
		employee, err := directory.CreateEmployee(ctx, "erin")
		if err != nil {
			return err
		}
		device, _, err := directory.UpsertDevice(ctx, "AA:BB:CC:00:00:09", "10.0.0.9", "erin", &employee.ID)
		if err != nil {
			return err
		}
		if _, err := history.Append(ctx, device.ID, presence.StatusOnline, base, 0); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	employee, err := uow.Directory().FindEmployeeByName(ctx, "erin")
	require.NoError(t, err)
	assert.Nil(t, employee)
	device, err := uow.Directory().FindDeviceByMAC(ctx, "AA:BB:CC:00:00:09")
	require.NoError(t, err)
	assert.Nil(t, device)
}
