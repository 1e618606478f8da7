package application

import (
	"context"
	"errors"
	"math"
	"time"

	"netpresence/internal/observability/metrics"
	presence "netpresence/internal/presence/domain"
)

const (
	queryHistorical  = "historical"
	queryPersonStats = "person_stats"
	queryTimeline    = "timeline"
)

// DayCount is the number of distinct devices online on a day.
type DayCount struct {
	Day               string `json:"day"`
	OnlineDeviceCount int    `json:"online_device_count"`
}

// DayStats holds one employee's presence on a day. OnlineHours is unrounded.
type DayStats struct {
	Day              string  `json:"day"`
	OnlineHours      float64 `json:"online_hours"`
	OfflineIntervals int     `json:"offline_intervals"`
}

// Summary aggregates DayStats over the requested range.
type Summary struct {
	TotalOnlineDays    int     `json:"total_online_days"`
	AverageHoursPerDay float64 `json:"average_hours_per_day"`
	MaxHoursOnline     float64 `json:"max_hours_online"`
}

// PersonStats is the per-employee statistics result.
type PersonStats struct {
	Hostname string     `json:"hostname"`
	Known    bool       `json:"known"`
	Days     []DayStats `json:"days"`
	Summary  Summary    `json:"summary"`
}

// Rounded returns a copy with hours rounded to two decimals.
func (p PersonStats) Rounded() PersonStats {
	out := p
	out.Days = make([]DayStats, len(p.Days))
	for i, day := range p.Days {
		day.OnlineHours = round2(day.OnlineHours)
		out.Days[i] = day
	}
	out.Summary.AverageHoursPerDay = round2(p.Summary.AverageHoursPerDay)
	out.Summary.MaxHoursOnline = round2(p.Summary.MaxHoursOnline)
	return out
}

// TimelineEntry is one status change of an employee's device.
type TimelineEntry struct {
	DeviceID   string          `json:"device_id"`
	MACAddress string          `json:"mac_address"`
	Status     presence.Status `json:"status"`
	Time       time.Time       `json:"time"`
}

// Aggregator answers read-only statistics queries over committed history.
type Aggregator struct {
	directory presence.DirectoryStore
	history   presence.HistoryLog
	loc       *time.Location
}

// NewAggregator constructs an Aggregator bucketing days in loc.
func NewAggregator(directory presence.DirectoryStore, history presence.HistoryLog, loc *time.Location) (*Aggregator, error) {
	if directory == nil || history == nil {
		return nil, errors.New("aggregator: nil store")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{directory: directory, history: history, loc: loc}, nil
}

// Location returns the location days are bucketed in.
func (a *Aggregator) Location() *time.Location { return a.loc }

// Historical counts, per day, the distinct devices with an Online event that day.
func (a *Aggregator) Historical(ctx context.Context, days DayRange) (result []DayCount, err error) {
	started := time.Now()
	defer func() { metrics.ObserveQuery(queryHistorical, metrics.ResultOf(err), time.Since(started)) }()

	events, err := a.history.EventsBetween(ctx, days.Since(), days.Until())
	if err != nil {
		return nil, err
	}

	online := make(map[string]map[string]struct{})
	for _, event := range events {
		if event.Status != presence.StatusOnline {
			continue
		}
		key := DayKey(event.Timestamp.In(a.loc))
		if online[key] == nil {
			online[key] = make(map[string]struct{})
		}
		online[key][event.DeviceID] = struct{}{}
	}

	for _, day := range days.Days() {
		key := DayKey(day)
		result = append(result, DayCount{Day: key, OnlineDeviceCount: len(online[key])})
	}
	return result, nil
}

// PersonStats computes daily online hours and offline intervals for the
// employee matched by hostname. Unknown hostnames yield zero-filled days.
// Averages divide by the number of requested days.
func (a *Aggregator) PersonStats(ctx context.Context, hostname string, days DayRange) (result PersonStats, err error) {
	started := time.Now()
	defer func() { metrics.ObserveQuery(queryPersonStats, metrics.ResultOf(err), time.Since(started)) }()

	devices, err := a.directory.FindDevicesByHostname(ctx, hostname)
	if err != nil {
		return PersonStats{}, err
	}
	events, err := a.history.EventsFor(ctx, deviceIDs(devices), days.Since(), days.Until())
	if err != nil {
		return PersonStats{}, err
	}

	onlineSeconds := make(map[string]int64)
	offline := make(map[string]int)
	for _, event := range events {
		key := DayKey(event.Timestamp.In(a.loc))
		switch event.Status {
		case presence.StatusOnline:
			onlineSeconds[key] += int64(event.Duration / time.Second)
		case presence.StatusOffline:
			offline[key]++
		}
	}

	result = PersonStats{Hostname: hostname, Known: len(devices) > 0}
	var total float64
	for _, day := range days.Days() {
		key := DayKey(day)
		hours := float64(onlineSeconds[key]) / 3600
		result.Days = append(result.Days, DayStats{Day: key, OnlineHours: hours, OfflineIntervals: offline[key]})
		total += hours
		if hours > 0 {
			result.Summary.TotalOnlineDays++
		}
		if hours > result.Summary.MaxHoursOnline {
			result.Summary.MaxHoursOnline = hours
		}
	}
	if n := len(result.Days); n > 0 {
		result.Summary.AverageHoursPerDay = total / float64(n)
	}
	return result, nil
}

// Timeline lists the status changes of the employee's devices in the range.
func (a *Aggregator) Timeline(ctx context.Context, hostname string, days DayRange) (result []TimelineEntry, err error) {
	started := time.Now()
	defer func() { metrics.ObserveQuery(queryTimeline, metrics.ResultOf(err), time.Since(started)) }()

	devices, err := a.directory.FindDevicesByHostname(ctx, hostname)
	if err != nil {
		return nil, err
	}
	events, err := a.history.EventsFor(ctx, deviceIDs(devices), days.Since(), days.Until())
	if err != nil {
		return nil, err
	}
	macs := make(map[string]string, len(devices))
	for _, device := range devices {
		macs[device.ID] = device.MACAddress
	}
	result = make([]TimelineEntry, 0, len(events))
	for _, event := range events {
		result = append(result, TimelineEntry{
			DeviceID:   event.DeviceID,
			MACAddress: macs[event.DeviceID],
			Status:     event.Status,
			Time:       event.Timestamp.In(a.loc),
		})
	}
	return result, nil
}

func deviceIDs(devices []presence.Device) []string {
	ids := make([]string, 0, len(devices))
	for _, device := range devices {
		ids = append(ids, device.ID)
	}
	return ids
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
