package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	presence "netpresence/internal/presence/domain"
)

var hijackPrefixes = [][]byte{
	[]byte("while(1);"),
	[]byte("for(;;);"),
	[]byte(")]}',"),
	[]byte(")]}'"),
}

var (
	macKeys      = []string{"macaddress", "mac_address", "mac", "macaddr"}
	ipKeys       = []string{"ipaddress", "ip_address", "ip", "ipaddr"}
	hostnameKeys = []string{"hostname", "host_name", "actualname", "name"}
	activeKeys   = []string{"active", "is_active", "online"}
	wirelessKeys = []string{"wirelessactive", "wireless_active", "wlanactive", "iswireless"}
	statusKeys   = []string{"status", "devstatus", "state"}
	uptimeKeys   = []string{"time", "connectedtime", "onlinetime"}
	listKeys     = []string{"devices", "data", "hosts", "hostinfo"}
)

// unwrapJSON removes anti-hijacking guards and a surrounding comment block.
func unwrapJSON(raw []byte) []byte {
	body := bytes.TrimSpace(raw)
	for _, prefix := range hijackPrefixes {
		if bytes.HasPrefix(body, prefix) {
			body = bytes.TrimSpace(body[len(prefix):])
			break
		}
	}
	if bytes.HasPrefix(body, []byte("/*")) && bytes.HasSuffix(body, []byte("*/")) {
		body = bytes.TrimSpace(body[2 : len(body)-2])
	}
	return body
}

func parseJSON(raw []byte, observedAt time.Time) ([]presence.DeviceSighting, []*ParseError) {
	body := unwrapJSON(raw)
	if len(body) == 0 {
		return nil, nil
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, []*ParseError{{Format: FormatJSON, Index: -1, Reason: fmt.Sprintf("invalid json: %v", err)}}
	}

	entries, ok := deviceList(doc)
	if !ok {
		return nil, []*ParseError{{Format: FormatJSON, Index: -1, Reason: "no device list in payload"}}
	}

	var (
		sightings []presence.DeviceSighting
		skipped   []*ParseError
	)
	for i, entry := range entries {
		obj, ok := entry.(map[string]any)
		if !ok {
			skipped = append(skipped, &ParseError{Format: FormatJSON, Index: i, Reason: "entry is not an object"})
			continue
		}
		fields := lowerKeys(obj)
		if !flag(fields, activeKeys) || !flag(fields, wirelessKeys) {
			continue
		}
		mac := presence.NormalizeMAC(str(fields, macKeys))
		if mac == "" {
			skipped = append(skipped, &ParseError{Format: FormatJSON, Index: i, Reason: "missing mac address"})
			continue
		}
		status := strings.ToLower(str(fields, statusKeys))
		if status == "" {
			status = presence.SightingStatusOnline
		}
		sightings = append(sightings, presence.DeviceSighting{
			MACAddress:   mac,
			IPAddress:    orUnknown(str(fields, ipKeys)),
			Hostname:     orUnknown(str(fields, hostnameKeys)),
			Status:       status,
			ObservedAt:   observedAt,
			ConnectedFor: str(fields, uptimeKeys),
		})
	}
	return sightings, skipped
}

func deviceList(doc any) ([]any, bool) {
	switch v := doc.(type) {
	case []any:
		return v, true
	case map[string]any:
		fields := lowerKeys(v)
		for _, key := range listKeys {
			if list, ok := fields[key].([]any); ok {
				return list, true
			}
		}
	}
	return nil, false
}

func lowerKeys(obj map[string]any) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[strings.ToLower(k)] = v
	}
	return out
}

func str(fields map[string]any, keys []string) string {
	for _, key := range keys {
		value, ok := fields[key]
		if !ok || value == nil {
			continue
		}
		switch v := value.(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(v)
		}
	}
	return ""
}

// flag reads a boolean that gateways encode as bool, number or string.
func flag(fields map[string]any, keys []string) bool {
	for _, key := range keys {
		value, ok := fields[key]
		if !ok || value == nil {
			continue
		}
		switch v := value.(type) {
		case bool:
			return v
		case float64:
			return v != 0
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "1", "true", "yes", "on", "online":
				return true
			default:
				return false
			}
		}
	}
	return false
}
