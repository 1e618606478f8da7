package snapshot

import (
	"errors"
	"fmt"
	"strings"
)

// Format identifies the shape of a raw snapshot payload.
type Format string

const (
	// FormatJSON is a device list, possibly behind an anti-hijacking wrapper.
	FormatJSON Format = "json"
	// FormatEmbedded is a page with one constructor call per device.
	FormatEmbedded Format = "embedded"
)

// ErrUnknownFormat is returned for unsupported formats.
var ErrUnknownFormat = errors.New("snapshot: unknown format")

// IsValid reports whether the format is supported.
func (f Format) IsValid() bool {
	return f == FormatJSON || f == FormatEmbedded
}

// ParseFormat maps a config value to a Format.
func ParseFormat(value string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(value)))
	if !f.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, value)
	}
	return f, nil
}

// ParseError describes one snapshot entry that could not be used.
// Index is the entry position within the payload, or -1 for the payload itself.
type ParseError struct {
	Format Format
	Index  int
	Reason string
}

func (e *ParseError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("snapshot %s: %s", e.Format, e.Reason)
	}
	return fmt.Sprintf("snapshot %s: entry %d: %s", e.Format, e.Index, e.Reason)
}
