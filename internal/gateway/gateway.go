// Package gateway retrieves raw attached-device snapshots from the router.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"netpresence/internal/snapshot"
)

// Failure reasons reported by FetchError.
const (
	ReasonAuth        = "auth"
	ReasonTimeout     = "timeout"
	ReasonUnreachable = "unreachable"
	ReasonStatus      = "status"
)

// Credentials are the gateway admin login.
type Credentials struct {
	Username string
	Password string
}

// Snapshot is one raw payload and the format it must be parsed with.
type Snapshot struct {
	Raw    []byte
	Format snapshot.Format
}

// FetchCollaborator logs into the gateway and returns the devices page.
type FetchCollaborator interface {
	FetchSnapshot(ctx context.Context, creds Credentials, targetURL string) (Snapshot, error)
}

// FetchError reports why a snapshot could not be retrieved.
type FetchError struct {
	Reason string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("gateway: fetch failed: %s", e.Reason)
	}
	return fmt.Sprintf("gateway: fetch failed: %s: %v", e.Reason, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsReason reports whether err is a FetchError with the given reason.
func IsReason(err error, reason string) bool {
	var ferr *FetchError
	return errors.As(err, &ferr) && ferr.Reason == reason
}

func classify(ctx context.Context, err error) *FetchError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &FetchError{Reason: ReasonTimeout, Err: err}
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return &FetchError{Reason: ReasonTimeout, Err: err}
	}
	return &FetchError{Reason: ReasonUnreachable, Err: err}
}
