package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const (
	metricPrefix = "netpresence_"

	resultSuccess = "success"
	resultError   = "error"
	resultSkipped = "skipped"
)

var (
	registerOnce sync.Once

	pollCycles       *prometheus.CounterVec
	pollCycleLatency *prometheus.HistogramVec
	pollStageErrors  *prometheus.CounterVec

	parseErrors *prometheus.CounterVec
	sightings   prometheus.Gauge

	presenceEvents   *prometheus.CounterVec
	directoryCreates *prometheus.CounterVec

	queryTotal   *prometheus.CounterVec
	queryLatency *prometheus.HistogramVec
)

// Init registers presence metrics and DB-backed gauges.
func Init(db *sql.DB, logger zerolog.Logger) {
	registerOnce.Do(func() {
		pollCycles = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "poll_cycles_total",
				Help: "Total poll cycles by result",
			},
			[]string{"result"},
		)
		pollCycleLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "poll_cycle_latency_seconds",
				Help:    "Poll cycle latency in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
			},
			[]string{"result"},
		)
		pollStageErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "poll_stage_errors_total",
				Help: "Total poll cycle failures by stage",
			},
			[]string{"stage"},
		)

		parseErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "snapshot_parse_errors_total",
				Help: "Snapshot entries skipped as malformed, by format",
			},
			[]string{"format"},
		)
		sightings = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "snapshot_sightings",
				Help: "Devices attached in the last parsed snapshot",
			},
		)

		presenceEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "presence_events_total",
				Help: "Presence events appended by status",
			},
			[]string{"status"},
		)
		directoryCreates = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "directory_created_total",
				Help: "Directory records created by kind",
			},
			[]string{"kind"},
		)

		queryTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "aggregation_queries_total",
				Help: "Total aggregation queries by query and result",
			},
			[]string{"query", "result"},
		)
		queryLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "aggregation_query_latency_seconds",
				Help:    "Aggregation query latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"query", "result"},
		)

		prometheus.MustRegister(
			pollCycles,
			pollCycleLatency,
			pollStageErrors,
			parseErrors,
			sightings,
			presenceEvents,
			directoryCreates,
			queryTotal,
			queryLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObservePollCycle records poll cycle duration and result.
func ObservePollCycle(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if pollCycles != nil {
		pollCycles.WithLabelValues(result).Inc()
	}
	if pollCycleLatency != nil && result != resultSkipped {
		pollCycleLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncPollSkipped counts a tick skipped because a cycle was still running.
func IncPollSkipped() {
	if pollCycles != nil {
		pollCycles.WithLabelValues(resultSkipped).Inc()
	}
}

// IncStageError increments the failed stage counter.
func IncStageError(stage string) {
	if stage == "" {
		stage = "unknown"
	}
	if pollStageErrors != nil {
		pollStageErrors.WithLabelValues(stage).Inc()
	}
}

// IncParseError increments skipped snapshot entries.
func IncParseError(format string) {
	if format == "" {
		format = "unknown"
	}
	if parseErrors != nil {
		parseErrors.WithLabelValues(format).Inc()
	}
}

// SetSightings sets the number of devices seen in the last snapshot.
func SetSightings(count int) {
	if count < 0 {
		count = 0
	}
	if sightings != nil {
		sightings.Set(float64(count))
	}
}

// AddPresenceEvents increments appended events for a status.
func AddPresenceEvents(status string, count int) {
	if count <= 0 {
		return
	}
	if presenceEvents != nil {
		presenceEvents.WithLabelValues(status).Add(float64(count))
	}
}

// AddDirectoryCreates increments created directory records of a kind.
func AddDirectoryCreates(kind string, count int) {
	if count <= 0 {
		return
	}
	if directoryCreates != nil {
		directoryCreates.WithLabelValues(kind).Add(float64(count))
	}
}

// ObserveQuery records aggregation query latency and result.
func ObserveQuery(query, result string, duration time.Duration) {
	if query == "" {
		query = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if queryTotal != nil {
		queryTotal.WithLabelValues(query, result).Inc()
	}
	if queryLatency != nil {
		queryLatency.WithLabelValues(query, result).Observe(duration.Seconds())
	}
}

// ResultOf maps an error to a result label.
func ResultOf(err error) string {
	if err != nil {
		return resultError
	}
	return resultSuccess
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
	ResultSkipped = resultSkipped

	KindDevice   = "device"
	KindEmployee = "employee"
)
