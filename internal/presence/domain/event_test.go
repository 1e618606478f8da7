package presence

import (
	"errors"
	"testing"
	"time"
)

func TestCheckFollows(t *testing.T) {
	t0 := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	online := &PresenceEvent{DeviceID: "d1", Status: StatusOnline, Timestamp: t0}

	cases := []struct {
		name string
		prev *PresenceEvent
		next PresenceEvent
		want error
	}{
		{"first event", nil, PresenceEvent{DeviceID: "d1", Status: StatusOnline, Timestamp: t0}, nil},
		{"alternates", online, PresenceEvent{DeviceID: "d1", Status: StatusOffline, Timestamp: t0.Add(time.Minute), Duration: time.Minute}, nil},
		{"same status", online, PresenceEvent{DeviceID: "d1", Status: StatusOnline, Timestamp: t0.Add(time.Minute)}, ErrStatusUnchanged},
		{"same timestamp", online, PresenceEvent{DeviceID: "d1", Status: StatusOffline, Timestamp: t0}, ErrNonMonotonic},
		{"earlier timestamp", online, PresenceEvent{DeviceID: "d1", Status: StatusOffline, Timestamp: t0.Add(-time.Second)}, ErrNonMonotonic},
		{"no device", nil, PresenceEvent{Status: StatusOnline, Timestamp: t0}, ErrEmptyDeviceID},
		{"bad status", nil, PresenceEvent{DeviceID: "d1", Status: "online", Timestamp: t0}, ErrInvalidStatus},
		{"zero timestamp", nil, PresenceEvent{DeviceID: "d1", Status: StatusOnline}, ErrInvalidTimestamp},
		{"negative duration", nil, PresenceEvent{DeviceID: "d1", Status: StatusOnline, Timestamp: t0, Duration: -time.Second}, ErrNegativeDuration},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckFollows(tc.prev, tc.next)
			if !errors.Is(err, tc.want) {
				t.Fatalf("CheckFollows() = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestDurationSince(t *testing.T) {
	t0 := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	prev := &PresenceEvent{Timestamp: t0}

	if got := DurationSince(nil, t0); got != 0 {
		t.Fatalf("no previous event: got %s", got)
	}
	if got := DurationSince(prev, t0.Add(90*time.Minute+400*time.Millisecond)); got != 90*time.Minute {
		t.Fatalf("expected whole seconds, got %s", got)
	}
	if got := DurationSince(prev, t0.Add(-time.Minute)); got != 0 {
		t.Fatalf("clock skew: got %s", got)
	}
}

func TestParseStatus(t *testing.T) {
	for input, want := range map[string]Status{"Online": StatusOnline, "online": StatusOnline, " OFFLINE ": StatusOffline} {
		got, err := ParseStatus(input)
		if err != nil || got != want {
			t.Fatalf("ParseStatus(%q) = %q, %v", input, got, err)
		}
	}
	if _, err := ParseStatus("away"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestNormalizeMAC(t *testing.T) {
	cases := map[string]string{
		"aa:bb:cc:dd:ee:ff":   "AA:BB:CC:DD:EE:FF",
		"aa-bb-cc-dd-ee-ff":   "AA:BB:CC:DD:EE:FF",
		" AA:BB:CC:DD:EE:FF ": "AA:BB:CC:DD:EE:FF",
		"":                    "",
		UnknownValue:          UnknownValue,
	}
	for input, want := range cases {
		if got := NormalizeMAC(input); got != want {
			t.Fatalf("NormalizeMAC(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestIsMatchableHostname(t *testing.T) {
	if IsMatchableHostname("") || IsMatchableHostname(UnknownValue) || IsMatchableHostname("  ") {
		t.Fatal("empty and unknown hostnames must not match employees")
	}
	if !IsMatchableHostname("alice-laptop") {
		t.Fatal("expected hostname to match")
	}
}

func TestPersistenceErrorUnwrap(t *testing.T) {
	err := &PersistenceError{Stage: "upsert device", MAC: "AA:BB", Err: ErrEmptyMAC}
	if !errors.Is(err, ErrEmptyMAC) {
		t.Fatal("expected wrapped error")
	}
}
