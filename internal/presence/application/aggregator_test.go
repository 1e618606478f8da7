package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	presence "netpresence/internal/presence/domain"
	"netpresence/internal/presence/infrastructure/memory"
)

func newAggregator(t *testing.T, store *memory.Store, loc *time.Location) *Aggregator {
	t.Helper()
	a, err := NewAggregator(store.Directory(), store.History(), loc)
	require.NoError(t, err)
	return a
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestHistorical_ZeroFillsDaysWithoutOnlineEvents(t *testing.T) {
	store := memory.NewStore()
	seedEvents(t, store, "AA:BB", "alice", day(2024, 3, 2).Add(10*time.Hour))

	days, err := NewDayRange(day(2024, 3, 1), day(2024, 3, 3), time.UTC)
	require.NoError(t, err)

	result, err := newAggregator(t, store, time.UTC).Historical(context.Background(), days)
	require.NoError(t, err)
	assert.Equal(t, []DayCount{
		{Day: "2024-03-01", OnlineDeviceCount: 0},
		{Day: "2024-03-02", OnlineDeviceCount: 1},
		{Day: "2024-03-03", OnlineDeviceCount: 0},
	}, result)
}

func TestHistorical_CountsDistinctDevices(t *testing.T) {
	store := memory.NewStore()
	d := day(2024, 3, 2)
	// Online twice on the same day still counts once.
	seedEvents(t, store, "AA:BB:CC:00:00:01", "alice", d.Add(8*time.Hour), d.Add(9*time.Hour), d.Add(10*time.Hour))
	seedEvents(t, store, "AA:BB:CC:00:00:02", "bob", d.Add(11*time.Hour))
	seedEvents(t, store, "AA:BB:CC:00:00:03", "carol", d.Add(-time.Hour))

	days, err := NewDayRange(d, d, time.UTC)
	require.NoError(t, err)
	result, err := newAggregator(t, store, time.UTC).Historical(context.Background(), days)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, 2, result[0].OnlineDeviceCount)
}

func TestPersonStats_UnknownHostnameIsZeroFilled(t *testing.T) {
	store := memory.NewStore()
	days, err := LastNDays(day(2024, 3, 7).Add(12*time.Hour), 7, time.UTC)
	require.NoError(t, err)

	stats, err := newAggregator(t, store, time.UTC).PersonStats(context.Background(), "nobody", days)
	require.NoError(t, err)
	assert.False(t, stats.Known)
	require.Len(t, stats.Days, 7)
	assert.Equal(t, "2024-03-01", stats.Days[0].Day)
	assert.Equal(t, "2024-03-07", stats.Days[6].Day)
	for _, d := range stats.Days {
		assert.Zero(t, d.OnlineHours)
		assert.Zero(t, d.OfflineIntervals)
	}
	assert.Equal(t, Summary{}, stats.Summary)
}

func TestPersonStats_SumsOnlineDurationsAndCountsOffline(t *testing.T) {
	store := memory.NewStore()
	d := day(2024, 3, 4)
	// Online 08:00, Offline 12:00, Online 13:30, Offline 17:00.
	seedEvents(t, store, "AA:BB", "alice",
		d.Add(8*time.Hour),
		d.Add(12*time.Hour),
		d.Add(13*time.Hour+30*time.Minute),
		d.Add(17*time.Hour),
	)

	days, err := NewDayRange(d, d.AddDate(0, 0, 1), time.UTC)
	require.NoError(t, err)
	stats, err := newAggregator(t, store, time.UTC).PersonStats(context.Background(), "alice", days)
	require.NoError(t, err)
	assert.True(t, stats.Known)
	require.Len(t, stats.Days, 2)

	// Online event durations: 0 for the first, 1.5h gap before the second.
	assert.InDelta(t, 1.5, stats.Days[0].OnlineHours, 1e-9)
	assert.Equal(t, 2, stats.Days[0].OfflineIntervals)
	assert.Zero(t, stats.Days[1].OnlineHours)

	assert.Equal(t, 1, stats.Summary.TotalOnlineDays)
	assert.InDelta(t, 0.75, stats.Summary.AverageHoursPerDay, 1e-9)
	assert.InDelta(t, 1.5, stats.Summary.MaxHoursOnline, 1e-9)
}

func TestPersonStats_Rounded(t *testing.T) {
	stats := PersonStats{
		Days:    []DayStats{{Day: "2024-03-04", OnlineHours: 1.0 / 3}},
		Summary: Summary{AverageHoursPerDay: 2.0 / 3, MaxHoursOnline: 1.0 / 3},
	}
	rounded := stats.Rounded()
	assert.Equal(t, 0.33, rounded.Days[0].OnlineHours)
	assert.Equal(t, 0.67, rounded.Summary.AverageHoursPerDay)
	assert.InDelta(t, 1.0/3, stats.Days[0].OnlineHours, 1e-12)
}

func TestPersonStats_BucketsDaysInLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	store := memory.NewStore()
	// 22:00 UTC on the 3rd is 01:00 on the 4th at UTC+3.
	base := day(2024, 3, 3)
	seedEvents(t, store, "AA:BB", "alice", base.Add(19*time.Hour), base.Add(20*time.Hour), base.Add(22*time.Hour))

	days, err := NewDayRange(time.Date(2024, 3, 3, 0, 0, 0, 0, loc), time.Date(2024, 3, 4, 0, 0, 0, 0, loc), loc)
	require.NoError(t, err)
	stats, err := newAggregator(t, store, loc).PersonStats(context.Background(), "alice", days)
	require.NoError(t, err)
	require.Len(t, stats.Days, 2)
	assert.Equal(t, 1, stats.Days[0].OfflineIntervals)
	assert.Zero(t, stats.Days[0].OnlineHours)
	assert.InDelta(t, 2.0, stats.Days[1].OnlineHours, 1e-9)
}

func TestTimeline_ListsEventsInOrder(t *testing.T) {
	store := memory.NewStore()
	d := day(2024, 3, 4)
	seedEvents(t, store, "AA:BB:CC:00:00:02", "alice", d.Add(9*time.Hour), d.Add(11*time.Hour))
	seedEvents(t, store, "AA:BB:CC:00:00:01", "alice", d.Add(10*time.Hour))

	days, err := NewDayRange(d, d, time.UTC)
	require.NoError(t, err)
	entries, err := newAggregator(t, store, time.UTC).Timeline(context.Background(), "alice", days)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "AA:BB:CC:00:00:02", entries[0].MACAddress)
	assert.Equal(t, "AA:BB:CC:00:00:01", entries[1].MACAddress)
	assert.True(t, entries[2].Time.Equal(d.Add(11*time.Hour)))
}

func TestNewAggregator_RequiresStores(t *testing.T) {
	_, err := NewAggregator(nil, nil, nil)
	require.Error(t, err)
}

func TestPersonStats_RelinkedDeviceCountsForCurrentEmployeeOnly(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	r := newReconciler(t, store)

	_, err := r.Reconcile(ctx, []presence.DeviceSighting{sighting("AA:BB", "10.0.0.2", "alice")}, t0)
	require.NoError(t, err)
	_, err = r.Reconcile(ctx, nil, t0.Add(time.Hour))
	require.NoError(t, err)
	_, err = r.Reconcile(ctx, []presence.DeviceSighting{sighting("AA:BB", "10.0.0.2", "bob")}, t0.Add(3*time.Hour))
	require.NoError(t, err)

	days, err := NewDayRange(day(2024, 3, 4), day(2024, 3, 4), time.UTC)
	require.NoError(t, err)
	a := newAggregator(t, store, time.UTC)

	bob, err := a.PersonStats(ctx, "bob", days)
	require.NoError(t, err)
	assert.True(t, bob.Known)
	assert.Equal(t, []DayStats{{Day: "2024-03-04", OnlineHours: 2, OfflineIntervals: 1}}, bob.Days)

	alice, err := a.PersonStats(ctx, "alice", days)
	require.NoError(t, err)
	assert.False(t, alice.Known)
	assert.Equal(t, []DayStats{{Day: "2024-03-04"}}, alice.Days)

	timeline, err := a.Timeline(ctx, "alice", days)
	require.NoError(t, err)
	assert.Empty(t, timeline)
}
