package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	presence "netpresence/internal/presence/domain"
)

// HistoryRepository implements the append-only presence.HistoryLog.
type HistoryRepository struct {
	db DBTX
}

// NewHistoryRepository constructs a repository on a db or transaction.
func NewHistoryRepository(db DBTX) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Append writes one event after checking ordering and alternation
// against the device's last event.
func (r *HistoryRepository) Append(ctx context.Context, deviceID string, status presence.Status, ts time.Time, duration time.Duration) (*presence.PresenceEvent, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("history repo: nil db")
	}
	event := presence.PresenceEvent{
		ID:        uuid.NewString(),
		DeviceID:  deviceID,
		Status:    status,
		Timestamp: ts.UTC(),
		Duration:  duration,
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	last, err := r.LastEvent(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if err := presence.CheckFollows(last, event); err != nil {
		return nil, err
	}

	if _, err := r.db.ExecContext(ctx, `
INSERT INTO presence_events (
	id,
	device_id,
	status,
	ts,
	duration_seconds
) VALUES (
	$1, $2, $3, $4, $5
)`,
		event.ID,
		event.DeviceID,
		string(event.Status),
		event.Timestamp,
		int64(event.Duration/time.Second),
	); err != nil {
		return nil, err
	}
	return &event, nil
}

// LastEvent returns the device's most recent event; nil when it has none.
func (r *HistoryRepository) LastEvent(ctx context.Context, deviceID string) (*presence.PresenceEvent, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("history repo: nil db")
	}
	if deviceID == "" {
		return nil, presence.ErrEmptyDeviceID
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, device_id, status, ts, duration_seconds
FROM presence_events
WHERE device_id = $1
ORDER BY ts DESC
LIMIT 1`, deviceID)
	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return event, nil
}

// LastEvents returns the most recent event of every device.
func (r *HistoryRepository) LastEvents(ctx context.Context) (map[string]presence.PresenceEvent, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("history repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT e.id, e.device_id, e.status, e.ts, e.duration_seconds
FROM presence_events e
JOIN (
	SELECT device_id, MAX(ts) AS ts
	FROM presence_events
	GROUP BY device_id
) latest ON latest.device_id = e.device_id AND latest.ts = e.ts`)
	if err != nil {
		return nil, err
	}
	events, err := collectEvents(rows)
	if err != nil {
		return nil, err
	}
	result := make(map[string]presence.PresenceEvent, len(events))
	for _, event := range events {
		result[event.DeviceID] = event
	}
	return result, nil
}

// EventsFor returns events of the given devices in [since, until).
func (r *HistoryRepository) EventsFor(ctx context.Context, deviceIDs []string, since, until time.Time) ([]presence.PresenceEvent, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("history repo: nil db")
	}
	if len(deviceIDs) == 0 {
		return nil, nil
	}
	args := []any{since.UTC(), until.UTC()}
	placeholders := make([]string, 0, len(deviceIDs))
	for _, id := range deviceIDs {
		args = append(args, id)
		placeholders = append(placeholders, "$"+strconv.Itoa(len(args)))
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, device_id, status, ts, duration_seconds
FROM presence_events
WHERE ts >= $1
	AND ts < $2
	AND device_id IN (`+strings.Join(placeholders, ", ")+`)
ORDER BY ts ASC, device_id ASC`, args...)
	if err != nil {
		return nil, err
	}
	return collectEvents(rows)
}

// EventsBetween returns events of all devices in [since, until).
func (r *HistoryRepository) EventsBetween(ctx context.Context, since, until time.Time) ([]presence.PresenceEvent, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("history repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, device_id, status, ts, duration_seconds
FROM presence_events
WHERE ts >= $1
	AND ts < $2
ORDER BY ts ASC, device_id ASC`, since.UTC(), until.UTC())
	if err != nil {
		return nil, err
	}
	return collectEvents(rows)
}

func scanEvent(row rowScanner) (*presence.PresenceEvent, error) {
	var (
		event    presence.PresenceEvent
		status   string
		duration int64
	)
	if err := row.Scan(&event.ID, &event.DeviceID, &status, &event.Timestamp, &duration); err != nil {
		return nil, err
	}
	event.Status = presence.Status(status)
	event.Timestamp = event.Timestamp.UTC()
	event.Duration = time.Duration(duration) * time.Second
	return &event, nil
}

func collectEvents(rows *sql.Rows) ([]presence.PresenceEvent, error) {
	defer rows.Close()
	var result []presence.PresenceEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
