package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	presence "netpresence/internal/presence/domain"
)

const deviceColumns = `d.id, d.mac_address, d.hostname, d.ip_address, d.employee_id, d.created_at, d.updated_at`

// DirectoryRepository implements presence.DirectoryStore.
type DirectoryRepository struct {
	db  DBTX
	now func() time.Time
}

// NewDirectoryRepository constructs a repository on a db or transaction.
func NewDirectoryRepository(db DBTX) *DirectoryRepository {
	return &DirectoryRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// FindDeviceByMAC loads a device by MAC address; nil when absent.
func (r *DirectoryRepository) FindDeviceByMAC(ctx context.Context, mac string) (*presence.Device, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("directory repo: nil db")
	}
	if mac == "" {
		return nil, presence.ErrEmptyMAC
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+deviceColumns+`
FROM devices d
WHERE d.mac_address = $1
LIMIT 1`, mac)
	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return device, nil
}

// UpsertDevice creates a device or updates its IP and employee link.
func (r *DirectoryRepository) UpsertDevice(ctx context.Context, mac, ip, hostname string, employeeID *string) (*presence.Device, bool, error) {
	if r == nil || r.db == nil {
		return nil, false, errors.New("directory repo: nil db")
	}
	existing, err := r.FindDeviceByMAC(ctx, mac)
	if err != nil {
		return nil, false, err
	}
	now := r.now()

	if existing == nil {
		device := &presence.Device{
			ID:         uuid.NewString(),
			MACAddress: mac,
			Hostname:   hostname,
			IPAddress:  ip,
			EmployeeID: employeeID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := device.Validate(); err != nil {
			return nil, false, err
		}
		if _, err := r.db.ExecContext(ctx, `
INSERT INTO devices (
	id,
	mac_address,
	hostname,
	ip_address,
	employee_id,
	created_at,
	updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7
)`,
			device.ID,
			device.MACAddress,
			device.Hostname,
			device.IPAddress,
			nullString(employeeID),
			device.CreatedAt,
			device.UpdatedAt,
		); err != nil {
			return nil, false, err
		}
		return device, true, nil
	}

	existing.IPAddress = ip
	if employeeID != nil {
		existing.EmployeeID = employeeID
	}
	existing.UpdatedAt = now
	if _, err := r.db.ExecContext(ctx, `
UPDATE devices
SET ip_address = $1,
	employee_id = $2,
	updated_at = $3
WHERE id = $4`,
		existing.IPAddress,
		nullString(existing.EmployeeID),
		existing.UpdatedAt,
		existing.ID,
	); err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// FindEmployeeByName returns the oldest employee with the name; nil when absent.
func (r *DirectoryRepository) FindEmployeeByName(ctx context.Context, name string) (*presence.Employee, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("directory repo: nil db")
	}
	if name == "" {
		return nil, presence.ErrEmptyName
	}
	var employee presence.Employee
	if err := r.db.QueryRowContext(ctx, `
SELECT id, name, created_at
FROM employees
WHERE name = $1
ORDER BY created_at ASC, id ASC
LIMIT 1`, name).Scan(&employee.ID, &employee.Name, &employee.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	employee.CreatedAt = employee.CreatedAt.UTC()
	return &employee, nil
}

// CreateEmployee inserts a new employee.
func (r *DirectoryRepository) CreateEmployee(ctx context.Context, name string) (*presence.Employee, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("directory repo: nil db")
	}
	employee := &presence.Employee{ID: uuid.NewString(), Name: name, CreatedAt: r.now()}
	if err := employee.Validate(); err != nil {
		return nil, err
	}
	if _, err := r.db.ExecContext(ctx, `
INSERT INTO employees (id, name, created_at)
VALUES ($1, $2, $3)`, employee.ID, employee.Name, employee.CreatedAt); err != nil {
		return nil, err
	}
	return employee, nil
}

// ListDevices returns all devices ordered by MAC address.
func (r *DirectoryRepository) ListDevices(ctx context.Context) ([]presence.Device, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("directory repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+deviceColumns+`
FROM devices d
ORDER BY d.mac_address ASC`)
	if err != nil {
		return nil, err
	}
	return collectDevices(rows)
}

// FindDevicesByHostname returns the devices linked to the oldest employee
// named hostname, plus unlinked devices that recorded that hostname.
func (r *DirectoryRepository) FindDevicesByHostname(ctx context.Context, hostname string) ([]presence.Device, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("directory repo: nil db")
	}
	if hostname == "" {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+deviceColumns+`
FROM devices d
WHERE d.employee_id = (
	SELECT e.id
	FROM employees e
	WHERE e.name = $1
	ORDER BY e.created_at ASC, e.id ASC
	LIMIT 1
)
	OR (d.employee_id IS NULL AND d.hostname = $1)
ORDER BY d.mac_address ASC`, hostname)
	if err != nil {
		return nil, err
	}
	return collectDevices(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*presence.Device, error) {
	var (
		device     presence.Device
		employeeID sql.NullString
	)
	if err := row.Scan(
		&device.ID,
		&device.MACAddress,
		&device.Hostname,
		&device.IPAddress,
		&employeeID,
		&device.CreatedAt,
		&device.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if employeeID.Valid {
		id := employeeID.String
		device.EmployeeID = &id
	}
	device.CreatedAt = device.CreatedAt.UTC()
	device.UpdatedAt = device.UpdatedAt.UTC()
	return &device, nil
}

func collectDevices(rows *sql.Rows) ([]presence.Device, error) {
	defer rows.Close()
	var result []presence.Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *device)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func nullString(value *string) sql.NullString {
	if value == nil || *value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}
