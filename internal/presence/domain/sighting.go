package presence

import "time"

// DeviceSighting is one canonical device record extracted from a snapshot.
type DeviceSighting struct {
	MACAddress string    `json:"mac_address"`
	IPAddress  string    `json:"ip_address"`
	Hostname   string    `json:"hostname"`
	Status     string    `json:"status"`
	ObservedAt time.Time `json:"observed_at"`
	// ConnectedFor is the gateway's raw connection-time field, when reported.
	ConnectedFor string `json:"connected_for,omitempty"`
}

// SightingStatusOnline is the canonical status of a currently attached device.
const SightingStatusOnline = "online"
