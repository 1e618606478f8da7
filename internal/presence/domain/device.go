package presence

import (
	"strings"
	"time"
)

// UnknownValue marks a field the gateway did not report.
const UnknownValue = "N/A"

// Device is a network device identified by its MAC address.
type Device struct {
	ID         string
	MACAddress string
	Hostname   string
	IPAddress  string
	EmployeeID *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Validate checks device invariants.
func (d Device) Validate() error {
	if d.MACAddress == "" || d.MACAddress == UnknownValue {
		return ErrEmptyMAC
	}
	return nil
}

// HasEmployee reports whether the device is linked to an employee.
func (d Device) HasEmployee() bool {
	return d.EmployeeID != nil && *d.EmployeeID != ""
}

// IsMatchableHostname reports whether a hostname may be used to look up an employee.
func IsMatchableHostname(hostname string) bool {
	hostname = strings.TrimSpace(hostname)
	return hostname != "" && hostname != UnknownValue
}

// NormalizeMAC returns the canonical upper-case, colon separated form.
func NormalizeMAC(mac string) string {
	mac = strings.TrimSpace(mac)
	if mac == "" || mac == UnknownValue {
		return mac
	}
	mac = strings.ReplaceAll(mac, "-", ":")
	return strings.ToUpper(mac)
}
