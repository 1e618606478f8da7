// Package snapshot turns raw gateway payloads into device sightings.
package snapshot

import (
	"time"

	"github.com/rs/zerolog"

	"netpresence/internal/observability/metrics"
	presence "netpresence/internal/presence/domain"
)

// Parser parses snapshots and reports skipped entries.
type Parser struct {
	logger      zerolog.Logger
	constructor string
}

// Option configures the parser.
type Option func(*Parser)

// WithConstructor overrides the constructor name scanned in embedded payloads.
func WithConstructor(name string) Option {
	return func(p *Parser) {
		if name != "" {
			p.constructor = name
		}
	}
}

// NewParser constructs a Parser.
func NewParser(logger zerolog.Logger, opts ...Option) *Parser {
	p := &Parser{logger: logger, constructor: DefaultConstructor}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse extracts the currently attached devices from raw.
// Malformed entries are logged and skipped; only an unknown format is an error.
func (p *Parser) Parse(raw []byte, format Format, observedAt time.Time) ([]presence.DeviceSighting, error) {
	var (
		sightings []presence.DeviceSighting
		skipped   []*ParseError
	)
	switch format {
	case FormatJSON:
		sightings, skipped = parseJSON(raw, observedAt)
	case FormatEmbedded:
		sightings, skipped = parseEmbedded(raw, p.constructor, observedAt)
	default:
		return nil, ErrUnknownFormat
	}

	for _, perr := range skipped {
		metrics.IncParseError(string(format))
		p.logger.Warn().
			Str("format", string(format)).
			Int("entry", perr.Index).
			Str("reason", perr.Reason).
			Msg("snapshot entry skipped")
	}
	if sightings == nil {
		sightings = []presence.DeviceSighting{}
	}
	return sightings, nil
}

// Parse is a convenience wrapper using a no-op logger.
func Parse(raw []byte, format Format, observedAt time.Time) ([]presence.DeviceSighting, error) {
	return NewParser(zerolog.Nop()).Parse(raw, format, observedAt)
}

func orUnknown(value string) string {
	if value == "" {
		return presence.UnknownValue
	}
	return value
}
