package viewmodel

import (
	"strings"
	"time"
)

// Device status values after normalization.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
	StatusUnknown = "unknown"
)

// Root-cause labels derived from status and last-seen age.
const (
	CauseRegistrationDrift = "Registration drift"
	CauseSiteOutage        = "Power / site outage"
	CauseIntermittent      = "Intermittent connectivity"
	CauseNetworkDrop       = "Network drop"
	CauseNone              = Placeholder
)

// outageAfter is how long an offline device must have been silent before
// the outage label applies.
const outageAfter = 48 * time.Hour

// Aliases per logical device field, evaluated first match wins.
var (
	deviceNameAliases     = []string{"deviceName", "name", "displayName", "hostname"}
	deviceModelAliases    = []string{"model", "deviceModel", "productModel"}
	deviceStatusAliases   = []string{"connectionStatus", "status", "state"}
	deviceLastSeenAliases = []string{"lastSeen", "lastSeenAt", "last_seen", "lastContact"}
	deviceLocationAliases = []string{"location", "site", "siteName"}
)

// DeviceRow is the canonical, render-ready device representation.
type DeviceRow struct {
	Name       string     `json:"name"`
	Model      string     `json:"model"`
	Status     string     `json:"status"`
	LastSeen   string     `json:"last_seen"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	Location   string     `json:"location"`
	RootCause  string     `json:"root_cause"`
}

// NormalizeDevice maps one upstream device record onto a DeviceRow.
func NormalizeDevice(rec Record, now time.Time) DeviceRow {
	name, nameOK := rec.firstString(deviceNameAliases...)
	model, modelOK := rec.firstString(deviceModelAliases...)
	rawStatus, _ := rec.firstString(deviceStatusAliases...)
	lastSeen, lastSeenOK := rec.firstString(deviceLastSeenAliases...)
	location, locationOK := rec.firstString(deviceLocationAliases...)

	row := DeviceRow{
		Name:     orPlaceholder(name, nameOK),
		Model:    orPlaceholder(model, modelOK),
		Status:   NormalizeStatus(rawStatus),
		LastSeen: orPlaceholder(lastSeen, lastSeenOK),
		Location: orPlaceholder(location, locationOK),
	}

	var seenAt time.Time
	if lastSeenOK {
		if ts, ok := parseTimestamp(lastSeen); ok {
			seenAt = ts
			row.LastSeenAt = &ts
		}
	}

	row.RootCause = rootCause(row.Status, lastSeenOK, seenAt, now)
	return row
}

// NormalizeStatus folds vendor status strings onto online/offline.
// Unrecognized values pass through verbatim; empty becomes "unknown".
func NormalizeStatus(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case s == "":
		return StatusUnknown
	case strings.Contains(s, "offline"), strings.Contains(s, "disconnected"):
		return StatusOffline
	case strings.Contains(s, "online"), strings.Contains(s, "connected"):
		return StatusOnline
	default:
		return strings.TrimSpace(raw)
	}
}

func rootCause(status string, hasLastSeen bool, seenAt, now time.Time) string {
	switch {
	case !hasLastSeen:
		return CauseRegistrationDrift
	case status == StatusOnline:
		return CauseNone
	case status == StatusOffline && !seenAt.IsZero() && now.Sub(seenAt) > outageAfter:
		return CauseSiteOutage
	case status == StatusOffline:
		return CauseIntermittent
	default:
		return CauseNetworkDrop
	}
}

// NormalizeDevices decodes an upstream devices document (bare array or
// {"devices": [...]} / {"items": [...]}) into rows.
func NormalizeDevices(raw []byte, now time.Time) ([]DeviceRow, error) {
	records, err := decodeList(raw, "devices", "items", "data")
	if err != nil {
		return nil, err
	}

	rows := make([]DeviceRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, NormalizeDevice(rec, now))
	}
	return rows, nil
}

// DeviceCounts tallies rows by normalized status.
type DeviceCounts struct {
	Total   int `json:"total"`
	Online  int `json:"online"`
	Offline int `json:"offline"`
	Other   int `json:"other"`
}

// CountDevices summarizes rows for the report and rollup views.
func CountDevices(rows []DeviceRow) DeviceCounts {
	c := DeviceCounts{Total: len(rows)}
	for _, r := range rows {
		switch r.Status {
		case StatusOnline:
			c.Online++
		case StatusOffline:
			c.Offline++
		default:
			c.Other++
		}
	}
	return c
}
