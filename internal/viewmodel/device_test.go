package viewmodel

import (
	"testing"
	"time"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestNormalizeDeviceNameOnly(t *testing.T) {
	row := NormalizeDevice(Record{"deviceName": "Lobby phone"}, testNow)

	if row.Name != "Lobby phone" {
		t.Errorf("Name = %q, want %q", row.Name, "Lobby phone")
	}
	if row.Status != StatusUnknown {
		t.Errorf("Status = %q, want %q", row.Status, StatusUnknown)
	}
	if row.RootCause != CauseRegistrationDrift {
		t.Errorf("RootCause = %q, want %q", row.RootCause, CauseRegistrationDrift)
	}
	for field, got := range map[string]string{"Model": row.Model, "LastSeen": row.LastSeen, "Location": row.Location} {
		if got != Placeholder {
			t.Errorf("%s = %q, want placeholder", field, got)
		}
	}
}

func TestNormalizeDeviceOfflineLongAgo(t *testing.T) {
	seen := testNow.Add(-72 * time.Hour)
	row := NormalizeDevice(Record{
		"deviceName":       "Reception",
		"connectionStatus": "Offline",
		"lastSeen":         seen.Format(time.RFC3339),
	}, testNow)

	if row.Status != StatusOffline {
		t.Errorf("Status = %q, want %q", row.Status, StatusOffline)
	}
	if row.RootCause != CauseSiteOutage {
		t.Errorf("RootCause = %q, want %q", row.RootCause, CauseSiteOutage)
	}
	if row.LastSeenAt == nil || !row.LastSeenAt.Equal(seen) {
		t.Errorf("LastSeenAt = %v, want %v", row.LastSeenAt, seen)
	}
}

func TestNormalizeDeviceRootCause(t *testing.T) {
	recent := testNow.Add(-2 * time.Hour).Format(time.RFC3339)

	tests := []struct {
		name   string
		rec    Record
		status string
		cause  string
	}{
		{"online", Record{"status": "Connected", "lastSeen": recent}, StatusOnline, CauseNone},
		{"offline recently", Record{"status": "DISCONNECTED", "lastSeen": recent}, StatusOffline, CauseIntermittent},
		{"offline unparseable last seen", Record{"state": "offline", "lastSeenAt": "yesterday-ish"}, StatusOffline, CauseIntermittent},
		{"other status", Record{"connectionStatus": "Rebooting", "lastSeen": recent}, "Rebooting", CauseNetworkDrop},
		{"epoch millis", Record{"status": "offline", "lastSeen": float64(testNow.Add(-50 * time.Hour).UnixMilli())}, StatusOffline, CauseSiteOutage},
		{"epoch seconds", Record{"status": "offline", "last_seen": float64(testNow.Add(-time.Hour).Unix())}, StatusOffline, CauseIntermittent},
		{"online without last seen", Record{"status": "online"}, StatusOnline, CauseRegistrationDrift},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := NormalizeDevice(tt.rec, testNow)
			if row.Status != tt.status {
				t.Errorf("Status = %q, want %q", row.Status, tt.status)
			}
			if row.RootCause != tt.cause {
				t.Errorf("RootCause = %q, want %q", row.RootCause, tt.cause)
			}
		})
	}
}

func TestNormalizeDeviceAliasOrder(t *testing.T) {
	row := NormalizeDevice(Record{
		"name":        "second",
		"deviceName":  "first",
		"model":       "",
		"deviceModel": "VVX 450",
		"site":        "HQ",
	}, testNow)

	if row.Name != "first" {
		t.Errorf("Name = %q, want first alias to win", row.Name)
	}
	if row.Model != "VVX 450" {
		t.Errorf("Model = %q, want empty alias skipped", row.Model)
	}
	if row.Location != "HQ" {
		t.Errorf("Location = %q, want HQ", row.Location)
	}
}

func TestNormalizeStatus(t *testing.T) {
	tests := map[string]string{
		"":              StatusUnknown,
		"  ":            StatusUnknown,
		"Online":        StatusOnline,
		"connected":     StatusOnline,
		"Disconnected":  StatusOffline,
		"went offline":  StatusOffline,
		"Provisioning ": "Provisioning",
	}
	for in, want := range tests {
		if got := NormalizeStatus(in); got != want {
			t.Errorf("NormalizeStatus(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeDevicesShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"bare array", `[{"deviceName":"a"},{"deviceName":"b"}]`, 2},
		{"devices envelope", `{"devices":[{"name":"a"}]}`, 1},
		{"items envelope", `{"items":[{"name":"a"},{"name":"b"},{"name":"c"}]}`, 3},
		{"unknown envelope", `{"total":0}`, 0},
		{"null", `null`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := NormalizeDevices([]byte(tt.raw), testNow)
			if err != nil {
				t.Fatalf("NormalizeDevices() error = %v", err)
			}
			if len(rows) != tt.want {
				t.Errorf("len(rows) = %d, want %d", len(rows), tt.want)
			}
		})
	}

	if _, err := NormalizeDevices([]byte(`{"devices":"nope"}`), testNow); err == nil {
		t.Error("expected error for non-array envelope")
	}
}

func TestCountDevices(t *testing.T) {
	c := CountDevices([]DeviceRow{
		{Status: StatusOnline}, {Status: StatusOnline}, {Status: StatusOffline}, {Status: "Rebooting"},
	})
	want := DeviceCounts{Total: 4, Online: 2, Offline: 1, Other: 1}
	if c != want {
		t.Errorf("CountDevices() = %+v, want %+v", c, want)
	}
}
