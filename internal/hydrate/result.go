package hydrate

import (
	"bytes"
	"encoding/json"
	"reflect"

	"github.com/MrSnakeDoc/pulse/internal/upstream"
)

// ResultKind tells the renderer which state a view is in.
type ResultKind string

const (
	KindReady        ResultKind = "ready"
	KindEmpty        ResultKind = "empty"
	KindNotAvailable ResultKind = "not_available"
	KindFailed       ResultKind = "failed"
	KindAbsent       ResultKind = "absent"
)

// User-facing messages, one per non-ready kind.
const (
	MessageEmpty        = "No data"
	MessageNotAvailable = "Not yet available"
	MessageFailed       = "Failed to load"
	MessageAbsent       = "Not included"
)

// Result is the isolated outcome of one view load.
type Result struct {
	Kind    ResultKind `json:"kind"`
	Data    any        `json:"data,omitempty"`
	Message string     `json:"message,omitempty"`
}

// Classify maps a loader outcome onto a Result. A 404 is "not yet
// available", any other error is a failure, and a successful but empty
// payload is "no data".
func Classify(data any, err error) Result {
	switch {
	case err == nil && isEmpty(data):
		return Result{Kind: KindEmpty, Message: MessageEmpty}
	case err == nil:
		return Result{Kind: KindReady, Data: data}
	case upstream.IsNotFound(err):
		return Result{Kind: KindNotAvailable, Message: MessageNotAvailable}
	default:
		return Result{Kind: KindFailed, Message: MessageFailed}
	}
}

// Absent is the marker substituted for best-effort data that failed.
func Absent() Result {
	return Result{Kind: KindAbsent, Message: MessageAbsent}
}

func isEmpty(data any) bool {
	if data == nil {
		return true
	}
	if raw, ok := data.(json.RawMessage); ok {
		trimmed := bytes.TrimSpace(raw)
		switch string(trimmed) {
		case "", "null", "[]", "{}":
			return true
		}
		return false
	}

	v := reflect.ValueOf(data)
	switch v.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return v.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return v.IsNil()
	}
	return false
}
