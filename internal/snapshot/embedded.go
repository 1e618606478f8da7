package snapshot

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	presence "netpresence/internal/presence/domain"
)

// DefaultConstructor is the device constructor emitted by the gateway's device page.
const DefaultConstructor = "USERDeviceNew"

// Positional fields of one constructor call.
const (
	fieldIP       = 1
	fieldMAC      = 2
	fieldStatus   = 6
	fieldTime     = 8
	fieldHostname = 10

	minEmbeddedFields = fieldHostname + 1
)

var hexEscapes = strings.NewReplacer(
	`\x2e`, ".",
	`\x3a`, ":",
	`\x2d`, "-",
	`\x20`, " ",
	`\x5f`, "_",
)

var (
	patternMu    sync.Mutex
	patternCache = map[string]*regexp.Regexp{}
)

func constructorPattern(name string) *regexp.Regexp {
	patternMu.Lock()
	defer patternMu.Unlock()
	if re, ok := patternCache[name]; ok {
		return re
	}
	re := regexp.MustCompile(`(?s)\b` + regexp.QuoteMeta(name) + `\((.*?)\)`)
	patternCache[name] = re
	return re
}

func parseEmbedded(raw []byte, constructor string, observedAt time.Time) ([]presence.DeviceSighting, []*ParseError) {
	matches := constructorPattern(constructor).FindAllSubmatch(raw, -1)

	var (
		sightings []presence.DeviceSighting
		skipped   []*ParseError
	)
	for i, match := range matches {
		fields := strings.Split(string(match[1]), ",")
		if len(fields) < minEmbeddedFields {
			skipped = append(skipped, &ParseError{
				Format: FormatEmbedded,
				Index:  i,
				Reason: fmt.Sprintf("expected at least %d fields, got %d", minEmbeddedFields, len(fields)),
			})
			continue
		}

		if field(fields, fieldStatus) != "Online" {
			continue
		}
		mac := presence.NormalizeMAC(unescape(field(fields, fieldMAC)))
		if mac == "" {
			skipped = append(skipped, &ParseError{Format: FormatEmbedded, Index: i, Reason: "missing mac address"})
			continue
		}
		sightings = append(sightings, presence.DeviceSighting{
			MACAddress:   mac,
			IPAddress:    orUnknown(unescape(field(fields, fieldIP))),
			Hostname:     orUnknown(unescape(field(fields, fieldHostname))),
			Status:       presence.SightingStatusOnline,
			ObservedAt:   observedAt,
			ConnectedFor: unescape(field(fields, fieldTime)),
		})
	}
	return sightings, skipped
}

func field(fields []string, idx int) string {
	return strings.Trim(strings.TrimSpace(fields[idx]), `"'`)
}

func unescape(value string) string {
	return hexEscapes.Replace(value)
}
