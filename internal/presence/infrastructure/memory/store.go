package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	presence "netpresence/internal/presence/domain"
)

// Store is an in-memory unit of work for demo/testing.
// Transactions work on a copy that replaces the committed state on success,
// so readers never observe an uncommitted cycle.
type Store struct {
	mu      sync.RWMutex
	writeMu sync.Mutex
	state   *state
	now     func() time.Time
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		state: newState(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

type state struct {
	employees []presence.Employee
	devices   map[string]presence.Device
	byMAC     map[string]string
	events    map[string][]presence.PresenceEvent
}

func newState() *state {
	return &state{
		devices: make(map[string]presence.Device),
		byMAC:   make(map[string]string),
		events:  make(map[string][]presence.PresenceEvent),
	}
}

func (s *state) clone() *state {
	out := newState()
	out.employees = append([]presence.Employee(nil), s.employees...)
	for id, device := range s.devices {
		out.devices[id] = copyDevice(device)
	}
	for mac, id := range s.byMAC {
		out.byMAC[mac] = id
	}
	for id, events := range s.events {
		out.events[id] = append([]presence.PresenceEvent(nil), events...)
	}
	return out
}

// accessor abstracts committed (locked) and transactional (private) state.
type accessor interface {
	read(fn func(*state))
	write(fn func(*state))
}

type committed struct{ s *Store }

func (c committed) read(fn func(*state)) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	fn(c.s.state)
}

func (c committed) write(fn func(*state)) {
	c.s.writeMu.Lock()
	defer c.s.writeMu.Unlock()
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	fn(c.s.state)
}

type private struct{ st *state }

func (p private) read(fn func(*state))  { fn(p.st) }
func (p private) write(fn func(*state)) { fn(p.st) }

// WithinTx runs fn against a private copy and commits it when fn succeeds.
func (s *Store) WithinTx(ctx context.Context, fn presence.TxFunc) error {
	if fn == nil {
		return errors.New("memory store: nil tx func")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	work := s.state.clone()
	s.mu.RUnlock()

	tx := private{st: work}
	if err := fn(ctx, &Directory{acc: tx, now: s.now}, &History{acc: tx}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = work
	s.mu.Unlock()
	return nil
}

// Directory returns a committed-read directory view.
func (s *Store) Directory() presence.DirectoryStore {
	return &Directory{acc: committed{s: s}, now: s.now}
}

// History returns a committed-read history view.
func (s *Store) History() presence.HistoryLog {
	return &History{acc: committed{s: s}}
}

// Directory implements presence.DirectoryStore.
type Directory struct {
	acc accessor
	now func() time.Time
}

// FindDeviceByMAC loads a device by MAC; nil when absent.
func (d *Directory) FindDeviceByMAC(_ context.Context, mac string) (*presence.Device, error) {
	if mac == "" {
		return nil, presence.ErrEmptyMAC
	}
	var found *presence.Device
	d.acc.read(func(st *state) {
		if id, ok := st.byMAC[mac]; ok {
			device := copyDevice(st.devices[id])
			found = &device
		}
	})
	return found, nil
}

// UpsertDevice creates a device or updates its IP and employee link.
func (d *Directory) UpsertDevice(_ context.Context, mac, ip, hostname string, employeeID *string) (*presence.Device, bool, error) {
	candidate := presence.Device{MACAddress: mac}
	if err := candidate.Validate(); err != nil {
		return nil, false, err
	}
	var (
		result  presence.Device
		created bool
	)
	now := d.now()
	d.acc.write(func(st *state) {
		if id, ok := st.byMAC[mac]; ok {
			device := st.devices[id]
			device.IPAddress = ip
			if employeeID != nil {
				device.EmployeeID = copyString(employeeID)
			}
			device.UpdatedAt = now
			st.devices[id] = device
			result = copyDevice(device)
			return
		}
		device := presence.Device{
			ID:         uuid.NewString(),
			MACAddress: mac,
			Hostname:   hostname,
			IPAddress:  ip,
			EmployeeID: copyString(employeeID),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		st.devices[device.ID] = device
		st.byMAC[mac] = device.ID
		result = copyDevice(device)
		created = true
	})
	return &result, created, nil
}

// FindEmployeeByName returns the oldest employee with the name; nil when absent.
func (d *Directory) FindEmployeeByName(_ context.Context, name string) (*presence.Employee, error) {
	if name == "" {
		return nil, presence.ErrEmptyName
	}
	var found *presence.Employee
	d.acc.read(func(st *state) {
		for _, employee := range st.employees {
			if employee.Name == name {
				e := employee
				found = &e
				return
			}
		}
	})
	return found, nil
}

// CreateEmployee appends a new employee.
func (d *Directory) CreateEmployee(_ context.Context, name string) (*presence.Employee, error) {
	employee := presence.Employee{ID: uuid.NewString(), Name: name, CreatedAt: d.now()}
	if err := employee.Validate(); err != nil {
		return nil, err
	}
	d.acc.write(func(st *state) {
		st.employees = append(st.employees, employee)
	})
	return &employee, nil
}

// ListDevices returns all devices ordered by MAC.
func (d *Directory) ListDevices(_ context.Context) ([]presence.Device, error) {
	var result []presence.Device
	d.acc.read(func(st *state) {
		for _, device := range st.devices {
			result = append(result, copyDevice(device))
		}
	})
	sortDevices(result)
	return result, nil
}

// FindDevicesByHostname returns the devices linked to the oldest employee
// named hostname, plus unlinked devices that recorded that hostname.
func (d *Directory) FindDevicesByHostname(_ context.Context, hostname string) ([]presence.Device, error) {
	if hostname == "" {
		return nil, nil
	}
	var result []presence.Device
	d.acc.read(func(st *state) {
		employeeID := ""
		for _, employee := range st.employees {
			if employee.Name == hostname {
				employeeID = employee.ID
				break
			}
		}
		for _, device := range st.devices {
			switch {
			case device.HasEmployee():
				if employeeID != "" && *device.EmployeeID == employeeID {
					result = append(result, copyDevice(device))
				}
			case device.Hostname == hostname:
				result = append(result, copyDevice(device))
			}
		}
	})
	sortDevices(result)
	return result, nil
}

// History implements the append-only presence.HistoryLog.
type History struct {
	acc accessor
}

// Append writes one event after checking ordering and alternation.
func (h *History) Append(_ context.Context, deviceID string, status presence.Status, ts time.Time, duration time.Duration) (*presence.PresenceEvent, error) {
	event := presence.PresenceEvent{
		ID:        uuid.NewString(),
		DeviceID:  deviceID,
		Status:    status,
		Timestamp: ts.UTC(),
		Duration:  duration,
	}
	var err error
	h.acc.write(func(st *state) {
		if _, ok := st.devices[deviceID]; !ok {
			err = presence.ErrNotFound
			return
		}
		var last *presence.PresenceEvent
		if events := st.events[deviceID]; len(events) > 0 {
			last = &events[len(events)-1]
		}
		if err = presence.CheckFollows(last, event); err != nil {
			return
		}
		st.events[deviceID] = append(st.events[deviceID], event)
	})
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// LastEvent returns the device's most recent event; nil when it has none.
func (h *History) LastEvent(_ context.Context, deviceID string) (*presence.PresenceEvent, error) {
	if deviceID == "" {
		return nil, presence.ErrEmptyDeviceID
	}
	var last *presence.PresenceEvent
	h.acc.read(func(st *state) {
		if events := st.events[deviceID]; len(events) > 0 {
			e := events[len(events)-1]
			last = &e
		}
	})
	return last, nil
}

// LastEvents returns the most recent event of every device.
func (h *History) LastEvents(_ context.Context) (map[string]presence.PresenceEvent, error) {
	result := make(map[string]presence.PresenceEvent)
	h.acc.read(func(st *state) {
		for id, events := range st.events {
			if len(events) > 0 {
				result[id] = events[len(events)-1]
			}
		}
	})
	return result, nil
}

// EventsFor returns events of the given devices in [since, until).
func (h *History) EventsFor(_ context.Context, deviceIDs []string, since, until time.Time) ([]presence.PresenceEvent, error) {
	var result []presence.PresenceEvent
	h.acc.read(func(st *state) {
		for _, id := range deviceIDs {
			result = appendInRange(result, st.events[id], since, until)
		}
	})
	sortEvents(result)
	return result, nil
}

// EventsBetween returns events of all devices in [since, until).
func (h *History) EventsBetween(_ context.Context, since, until time.Time) ([]presence.PresenceEvent, error) {
	var result []presence.PresenceEvent
	h.acc.read(func(st *state) {
		for _, events := range st.events {
			result = appendInRange(result, events, since, until)
		}
	})
	sortEvents(result)
	return result, nil
}

func appendInRange(dst, events []presence.PresenceEvent, since, until time.Time) []presence.PresenceEvent {
	for _, event := range events {
		if event.Timestamp.Before(since) || !event.Timestamp.Before(until) {
			continue
		}
		dst = append(dst, event)
	}
	return dst
}

func sortEvents(events []presence.PresenceEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].DeviceID < events[j].DeviceID
		}
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}

func sortDevices(devices []presence.Device) {
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].MACAddress < devices[j].MACAddress
	})
}

func copyDevice(device presence.Device) presence.Device {
	device.EmployeeID = copyString(device.EmployeeID)
	return device
}

func copyString(value *string) *string {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}
