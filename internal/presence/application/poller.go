package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"netpresence/internal/gateway"
	"netpresence/internal/observability/metrics"
	presence "netpresence/internal/presence/domain"
	"netpresence/internal/snapshot"
)

// Cycle stages reported in CycleError.
const (
	StageFetch     = "fetch"
	StageParse     = "parse"
	StageReconcile = "reconcile"
)

// CycleError reports which stage of a poll cycle failed.
type CycleError struct {
	CycleID string
	Stage   string
	Err     error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("poll cycle %s: %s: %v", e.CycleID, e.Stage, e.Err)
}

func (e *CycleError) Unwrap() error { return e.Err }

// CycleResult summarizes one fetch, parse and reconcile pass.
type CycleResult struct {
	CycleID   string          `json:"cycle_id"`
	StartedAt time.Time       `json:"started_at"`
	Duration  time.Duration   `json:"duration"`
	Sightings int             `json:"sightings"`
	Reconcile ReconcileResult `json:"reconcile"`
}

// PollerConfig holds gateway access settings for a cycle.
type PollerConfig struct {
	Credentials  gateway.Credentials
	DevicesURL   string
	FetchTimeout time.Duration
}

// Poller runs poll cycles and remembers the last sighted device set.
type Poller struct {
	fetcher    gateway.FetchCollaborator
	parser     *snapshot.Parser
	reconciler *Reconciler
	cfg        PollerConfig
	clock      func() time.Time
	logger     zerolog.Logger

	mu        sync.RWMutex
	current   []presence.DeviceSighting
	lastCycle *CycleResult
}

// NewPoller constructs a Poller.
func NewPoller(fetcher gateway.FetchCollaborator, parser *snapshot.Parser, reconciler *Reconciler, cfg PollerConfig, logger zerolog.Logger) (*Poller, error) {
	if fetcher == nil {
		return nil, errors.New("poller: nil fetcher")
	}
	if parser == nil {
		return nil, errors.New("poller: nil parser")
	}
	if reconciler == nil {
		return nil, errors.New("poller: nil reconciler")
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 60 * time.Second
	}
	return &Poller{
		fetcher:    fetcher,
		parser:     parser,
		reconciler: reconciler,
		cfg:        cfg,
		clock:      func() time.Time { return time.Now().UTC() },
		logger:     logger,
	}, nil
}

// SetClock overrides the cycle clock.
func (p *Poller) SetClock(clock func() time.Time) {
	if clock != nil {
		p.clock = clock
	}
}

// RunCycle fetches, parses and reconciles one snapshot.
func (p *Poller) RunCycle(ctx context.Context) (CycleResult, error) {
	started := time.Now()
	now := p.clock().Truncate(time.Second)
	result := CycleResult{CycleID: uuid.NewString(), StartedAt: now}

	err := p.runCycle(ctx, now, &result)
	result.Duration = time.Since(started)
	metrics.ObservePollCycle(metrics.ResultOf(err), result.Duration)
	if err != nil {
		var cerr *CycleError
		if errors.As(err, &cerr) {
			metrics.IncStageError(cerr.Stage)
		}
		return result, err
	}

	p.mu.Lock()
	last := result
	p.lastCycle = &last
	p.mu.Unlock()
	return result, nil
}

func (p *Poller) runCycle(ctx context.Context, now time.Time, result *CycleResult) error {
	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	snap, err := p.fetcher.FetchSnapshot(fetchCtx, p.cfg.Credentials, p.cfg.DevicesURL)
	cancel()
	if err != nil {
		return &CycleError{CycleID: result.CycleID, Stage: StageFetch, Err: err}
	}

	sightings, err := p.parser.Parse(snap.Raw, snap.Format, now)
	if err != nil {
		return &CycleError{CycleID: result.CycleID, Stage: StageParse, Err: err}
	}
	result.Sightings = len(sightings)
	metrics.SetSightings(len(sightings))

	reconciled, err := p.reconciler.Reconcile(ctx, sightings, now)
	if err != nil {
		return &CycleError{CycleID: result.CycleID, Stage: StageReconcile, Err: err}
	}
	result.Reconcile = reconciled

	p.mu.Lock()
	p.current = sightings
	p.mu.Unlock()
	return nil
}

// CurrentDevices returns the sightings of the last successful cycle.
func (p *Poller) CurrentDevices() []presence.DeviceSighting {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]presence.DeviceSighting, len(p.current))
	copy(out, p.current)
	return out
}

// LastCycle returns the last successful cycle, if any.
func (p *Poller) LastCycle() (CycleResult, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.lastCycle == nil {
		return CycleResult{}, false
	}
	return *p.lastCycle, true
}
