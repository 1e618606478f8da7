package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"netpresence/internal/presence/application"
	presence "netpresence/internal/presence/domain"
	"netpresence/internal/presence/interfaces/export"
)

const (
	defaultDays = 7
	maxDays     = 366
)

// DeviceSource exposes the last successful poll cycle.
type DeviceSource interface {
	CurrentDevices() []presence.DeviceSighting
	LastCycle() (application.CycleResult, bool)
}

// CycleTrigger runs a poll cycle on demand.
type CycleTrigger interface {
	TriggerNow(ctx context.Context) (application.CycleResult, error)
}

// Handler serves the presence API.
type Handler struct {
	devices    DeviceSource
	trigger    CycleTrigger
	aggregator *application.Aggregator
	logger     zerolog.Logger
	now        func() time.Time
}

// NewHandler constructs a handler. trigger may be nil, which disables ?refresh=true.
func NewHandler(devices DeviceSource, trigger CycleTrigger, aggregator *application.Aggregator, logger zerolog.Logger) (*Handler, error) {
	if devices == nil {
		return nil, errors.New("presence handler: nil device source")
	}
	if aggregator == nil {
		return nil, errors.New("presence handler: nil aggregator")
	}
	return &Handler{
		devices:    devices,
		trigger:    trigger,
		aggregator: aggregator,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Register mounts the API routes on r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/devices", h.handleDevices).Methods(http.MethodGet)
	r.HandleFunc("/historical", h.handleHistorical).Methods(http.MethodGet)
	r.HandleFunc("/person/{hostname}/stats", h.handlePersonStats).Methods(http.MethodGet)
	r.HandleFunc("/person/{hostname}/stats/export", h.handleExport).Methods(http.MethodGet)
	r.HandleFunc("/person/{hostname}/timeline", h.handleTimeline).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)
}

func (h *Handler) handleDevices(w http.ResponseWriter, r *http.Request) {
	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		if h.trigger == nil {
			http.Error(w, "refresh not available", http.StatusServiceUnavailable)
			return
		}
		if _, err := h.trigger.TriggerNow(r.Context()); err != nil {
			var perr *presence.PersistenceError
			switch {
			case errors.Is(err, application.ErrCycleInFlight):
				http.Error(w, "poll cycle in progress", http.StatusConflict)
			case errors.Is(err, application.ErrSchedulerStopped):
				http.Error(w, "shutting down", http.StatusServiceUnavailable)
			case errors.As(err, &perr):
				h.logger.Error().Err(err).Msg("refresh cycle failed to persist")
				http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			default:
				h.logger.Error().Err(err).Msg("refresh cycle failed")
				http.Error(w, "gateway unavailable", http.StatusBadGateway)
			}
			return
		}
	}
	writeJSON(w, h.devices.CurrentDevices())
}

func (h *Handler) handleHistorical(w http.ResponseWriter, r *http.Request) {
	days, err := h.dayRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	counts, err := h.aggregator.Historical(r.Context(), days)
	if err != nil {
		h.storeError(w, err, "historical query failed")
		return
	}
	writeJSON(w, counts)
}

func (h *Handler) handlePersonStats(w http.ResponseWriter, r *http.Request) {
	stats, ok := h.personStats(w, r)
	if !ok {
		return
	}
	writeJSON(w, stats.Rounded())
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	stats, ok := h.personStats(w, r)
	if !ok {
		return
	}
	generated := h.now().In(h.aggregator.Location())
	data, err := export.Render(stats, format, generated)
	if err != nil {
		h.logger.Error().Err(err).Str("format", string(format)).Msg("export render failed")
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(stats.Hostname, format, generated)))
	_, _ = w.Write(data)
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	hostname := mux.Vars(r)["hostname"]
	days, err := h.dayRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	entries, err := h.aggregator.Timeline(r.Context(), hostname, days)
	if err != nil {
		h.storeError(w, err, "timeline query failed")
		return
	}
	writeJSON(w, entries)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{"status": "ok"}
	if last, ok := h.devices.LastCycle(); ok {
		resp["last_cycle"] = last
	}
	writeJSON(w, resp)
}

func (h *Handler) personStats(w http.ResponseWriter, r *http.Request) (application.PersonStats, bool) {
	hostname := strings.TrimSpace(mux.Vars(r)["hostname"])
	if hostname == "" {
		http.Error(w, "hostname is required", http.StatusBadRequest)
		return application.PersonStats{}, false
	}
	days, err := h.dayRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return application.PersonStats{}, false
	}
	stats, err := h.aggregator.PersonStats(r.Context(), hostname, days)
	if err != nil {
		h.storeError(w, err, "person stats query failed")
		return application.PersonStats{}, false
	}
	return stats, true
}

func (h *Handler) dayRange(r *http.Request) (application.DayRange, error) {
	n, err := parseDays(r.URL.Query().Get("days"))
	if err != nil {
		return application.DayRange{}, err
	}
	return application.LastNDays(h.now(), n, h.aggregator.Location())
}

func (h *Handler) storeError(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, context.Canceled) {
		return
	}
	h.logger.Error().Err(err).Msg(msg)
	http.Error(w, "store unavailable", http.StatusServiceUnavailable)
}

func parseDays(value string) (int, error) {
	if value == "" {
		return defaultDays, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.New("days must be an integer")
	}
	if n < 1 || n > maxDays {
		return 0, fmt.Errorf("days must be between 1 and %d", maxDays)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
