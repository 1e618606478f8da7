package gateway

import (
	"context"
	"errors"
	"os"

	"netpresence/internal/snapshot"
)

// FileFetcher replays a captured snapshot from disk.
type FileFetcher struct {
	format snapshot.Format
}

// NewFileFetcher constructs a FileFetcher.
func NewFileFetcher(format snapshot.Format) (*FileFetcher, error) {
	if !format.IsValid() {
		return nil, snapshot.ErrUnknownFormat
	}
	return &FileFetcher{format: format}, nil
}

// FetchSnapshot reads targetURL as a file path; credentials are ignored.
func (f *FileFetcher) FetchSnapshot(ctx context.Context, _ Credentials, targetURL string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, classify(ctx, err)
	}
	raw, err := os.ReadFile(targetURL)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Snapshot{}, &FetchError{Reason: ReasonUnreachable, Err: err}
		}
		return Snapshot{}, &FetchError{Reason: ReasonStatus, Err: err}
	}
	return Snapshot{Raw: raw, Format: f.format}, nil
}
