package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netpresence/internal/presence/application"
	presence "netpresence/internal/presence/domain"
	"netpresence/internal/presence/infrastructure/memory"
)

var now = time.Date(2024, 3, 7, 12, 0, 0, 0, time.UTC)

type stubDevices struct {
	sightings []presence.DeviceSighting
}

func (s *stubDevices) CurrentDevices() []presence.DeviceSighting { return s.sightings }

func (s *stubDevices) LastCycle() (application.CycleResult, bool) {
	return application.CycleResult{CycleID: "c1"}, true
}

type stubTrigger struct {
	err   error
	calls int
}

func (s *stubTrigger) TriggerNow(context.Context) (application.CycleResult, error) {
	s.calls++
	return application.CycleResult{}, s.err
}

type brokenHistory struct {
	presence.HistoryLog
}

func (brokenHistory) EventsBetween(context.Context, time.Time, time.Time) ([]presence.PresenceEvent, error) {
	return nil, errors.New("connection refused")
}

func (brokenHistory) EventsFor(context.Context, []string, time.Time, time.Time) ([]presence.PresenceEvent, error) {
	return nil, errors.New("connection refused")
}

func seed(t *testing.T, store *memory.Store) {
	t.Helper()
	err := store.WithinTx(context.Background(), func(ctx context.Context, directory presence.DirectoryStore, history presence.HistoryLog) error {
		employee, err := directory.CreateEmployee(ctx, "alice")
		if err != nil {
			return err
		}
		device, _, err := directory.UpsertDevice(ctx, "AA:BB", "10.0.0.2", "alice", &employee.ID)
		if err != nil {
			return err
		}
		day := time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)
		if _, err := history.Append(ctx, device.ID, presence.StatusOnline, day.Add(8*time.Hour), 0); err != nil {
			return err
		}
		if _, err := history.Append(ctx, device.ID, presence.StatusOffline, day.Add(12*time.Hour), 4*time.Hour); err != nil {
			return err
		}
		_, err = history.Append(ctx, device.ID, presence.StatusOnline, day.Add(14*time.Hour), 2*time.Hour)
		return err
	})
	require.NoError(t, err)
}

func newTestHandler(t *testing.T, history presence.HistoryLog, store *memory.Store, trigger CycleTrigger) *Handler {
	t.Helper()
	if history == nil {
		history = store.History()
	}
	aggregator, err := application.NewAggregator(store.Directory(), history, time.UTC)
	require.NoError(t, err)
	devices := &stubDevices{sightings: []presence.DeviceSighting{{MACAddress: "AA:BB", IPAddress: "10.0.0.2", Hostname: "alice", Status: "online"}}}
	h, err := NewHandler(devices, trigger, aggregator, zerolog.Nop())
	require.NoError(t, err)
	h.now = func() time.Time { return now }
	return h
}

func serve(h *Handler, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("Origin", "http://dashboard.local")
	rec := httptest.NewRecorder()
	NewRouter(h, nil).ServeHTTP(rec, req)
	return rec
}

func TestDevices(t *testing.T) {
	h := newTestHandler(t, nil, memory.NewStore(), nil)
	rec := serve(h, http.MethodGet, "/devices")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	var body []presence.DeviceSighting
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "AA:BB", body[0].MACAddress)
}

func TestDevices_Refresh(t *testing.T) {
	trigger := &stubTrigger{}
	h := newTestHandler(t, nil, memory.NewStore(), trigger)
	rec := serve(h, http.MethodGet, "/devices?refresh=true")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, trigger.calls)

	trigger.err = application.ErrCycleInFlight
	rec = serve(h, http.MethodGet, "/devices?refresh=true")
	assert.Equal(t, http.StatusConflict, rec.Code)

	trigger.err = errors.New("login failed")
	rec = serve(h, http.MethodGet, "/devices?refresh=1")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	trigger.err = &application.CycleError{
		CycleID: "c2",
		Stage:   application.StageReconcile,
		Err:     &presence.PersistenceError{Stage: "upsert device", MAC: "AA:BB", Err: errors.New("disk full")},
	}
	rec = serve(h, http.MethodGet, "/devices?refresh=true")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	trigger.err = application.ErrSchedulerStopped
	rec = serve(h, http.MethodGet, "/devices?refresh=true")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type gatedRunner struct {
	started chan struct{}
	release chan struct{}
	ctxErr  chan error
}

func (g *gatedRunner) RunCycle(ctx context.Context) (application.CycleResult, error) {
	close(g.started)
	<-g.release
	g.ctxErr <- ctx.Err()
	return application.CycleResult{CycleID: "c3"}, nil
}

func TestDevices_RefreshSurvivesClientDisconnect(t *testing.T) {
	runner := &gatedRunner{started: make(chan struct{}), release: make(chan struct{}), ctxErr: make(chan error, 1)}
	scheduler := application.NewScheduler(runner, time.Minute, zerolog.Nop())
	h := newTestHandler(t, nil, memory.NewStore(), scheduler)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/devices?refresh=true", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		NewRouter(h, nil).ServeHTTP(rec, req)
	}()

	<-runner.started
	cancel()
	close(runner.release)
	<-done

	assert.NoError(t, <-runner.ctxErr)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHistorical(t *testing.T) {
	store := memory.NewStore()
	seed(t, store)
	h := newTestHandler(t, nil, store, nil)

	rec := serve(h, http.MethodGet, "/historical?days=3")
	require.Equal(t, http.StatusOK, rec.Code)

	var body []application.DayCount
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []application.DayCount{
		{Day: "2024-03-05", OnlineDeviceCount: 0},
		{Day: "2024-03-06", OnlineDeviceCount: 1},
		{Day: "2024-03-07", OnlineDeviceCount: 0},
	}, body)
}

func TestHistorical_DefaultsToSevenDays(t *testing.T) {
	h := newTestHandler(t, nil, memory.NewStore(), nil)
	rec := serve(h, http.MethodGet, "/historical")
	require.Equal(t, http.StatusOK, rec.Code)

	var body []application.DayCount
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body, 7)
}

func TestHistorical_BadDays(t *testing.T) {
	h := newTestHandler(t, nil, memory.NewStore(), nil)
	for _, q := range []string{"0", "367", "abc", "-2"} {
		rec := serve(h, http.MethodGet, "/historical?days="+q)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestPersonStats(t *testing.T) {
	store := memory.NewStore()
	seed(t, store)
	h := newTestHandler(t, nil, store, nil)

	rec := serve(h, http.MethodGet, "/person/alice/stats?days=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var body application.PersonStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Known)
	require.Len(t, body.Days, 2)
	assert.Equal(t, 2.0, body.Days[0].OnlineHours)
	assert.Equal(t, 1, body.Days[0].OfflineIntervals)
	assert.Equal(t, application.Summary{TotalOnlineDays: 1, AverageHoursPerDay: 1, MaxHoursOnline: 2}, body.Summary)
}

func TestPersonStats_UnknownHostnameZeroFilled(t *testing.T) {
	h := newTestHandler(t, nil, memory.NewStore(), nil)
	rec := serve(h, http.MethodGet, "/person/ghost/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var body application.PersonStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Known)
	assert.Len(t, body.Days, 7)
	assert.Equal(t, application.Summary{}, body.Summary)
}

func TestStoreFailureIs503(t *testing.T) {
	store := memory.NewStore()
	h := newTestHandler(t, brokenHistory{HistoryLog: store.History()}, store, nil)

	for _, target := range []string{"/historical", "/person/alice/stats", "/person/alice/timeline", "/person/alice/stats/export?format=csv"} {
		rec := serve(h, http.MethodGet, target)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, target)
	}
}

func TestTimeline(t *testing.T) {
	store := memory.NewStore()
	seed(t, store)
	h := newTestHandler(t, nil, store, nil)

	rec := serve(h, http.MethodGet, "/person/alice/timeline?days=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var body []application.TimelineEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 3)
	assert.Equal(t, presence.StatusOnline, body[0].Status)
	assert.Equal(t, presence.StatusOffline, body[1].Status)
}

func TestExport(t *testing.T) {
	store := memory.NewStore()
	seed(t, store)
	h := newTestHandler(t, nil, store, nil)

	rec := serve(h, http.MethodGet, "/person/alice/stats/export?days=2&format=csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "presence_alice_20240307.csv")
	assert.Contains(t, rec.Body.String(), "alice,2024-03-06,2.00,1")

	rec = serve(h, http.MethodGet, "/person/alice/stats/export?format=pdf")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.NotZero(t, rec.Body.Len())

	rec = serve(h, http.MethodGet, "/person/alice/stats/export?format=docx")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestHandler(t, nil, memory.NewStore(), nil)

	rec := serve(h, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"cycle_id":"c1"`)

	rec = serve(h, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewHandler_Validation(t *testing.T) {
	_, err := NewHandler(nil, nil, nil, zerolog.Nop())
	require.Error(t, err)
}
