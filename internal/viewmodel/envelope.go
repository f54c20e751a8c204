package viewmodel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Placeholder is rendered wherever a field is missing upstream.
const Placeholder = "—"

// Record is one loosely-typed upstream JSON object.
type Record map[string]any

// decodeList accepts either a bare JSON array of objects or an object that
// wraps the array under one of envelopeKeys.
func decodeList(raw []byte, envelopeKeys ...string) ([]Record, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var list []Record
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("failed to decode list: %w", err)
		}
		return list, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	for _, key := range envelopeKeys {
		inner, ok := envelope[key]
		if !ok {
			continue
		}
		var list []Record
		if err := json.Unmarshal(inner, &list); err != nil {
			return nil, fmt.Errorf("failed to decode %q: %w", key, err)
		}
		return list, nil
	}
	return nil, nil
}

// decodeRecord decodes a single JSON object.
func decodeRecord(raw []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode object: %w", err)
	}
	return rec, nil
}

// firstString returns the first alias holding a non-empty scalar, in
// alias order.
func (r Record) firstString(aliases ...string) (string, bool) {
	for _, alias := range aliases {
		v, ok := r[alias]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = strings.TrimSpace(t)
		case float64:
			s = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			s = strconv.FormatBool(t)
		default:
			continue
		}
		if s != "" {
			return s, true
		}
	}
	return "", false
}

// firstNumber returns the first alias holding a number or numeric string.
func (r Record) firstNumber(aliases ...string) (float64, bool) {
	for _, alias := range aliases {
		switch t := r[alias].(type) {
		case float64:
			return t, true
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

// orPlaceholder returns s, or Placeholder when s is empty.
func orPlaceholder(s string, ok bool) string {
	if !ok || s == "" {
		return Placeholder
	}
	return s
}

// parseTimestamp understands RFC 3339 strings and epoch numbers in seconds
// or milliseconds.
func parseTimestamp(s string) (time.Time, bool) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, true
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil && n > 0 {
		if n > 1e12 {
			return time.UnixMilli(int64(n)), true
		}
		return time.Unix(int64(n), 0), true
	}
	return time.Time{}, false
}
