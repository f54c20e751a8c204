package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrSnakeDoc/pulse/internal/httpserver/deps"
	"github.com/MrSnakeDoc/pulse/internal/hydrate"
	"github.com/MrSnakeDoc/pulse/internal/logger"
	"github.com/MrSnakeDoc/pulse/internal/session"
	"github.com/MrSnakeDoc/pulse/internal/upstream"
)

// SessionHeader identifies the dashboard page session of a request.
const SessionHeader = "X-Pulse-Session"

type errorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"upstream_status,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps an orchestration error onto an HTTP answer: 404 from
// upstream stays 404, other upstream failures are 502.
func writeError(w http.ResponseWriter, d deps.Deps, r *http.Request, err error) {
	status := http.StatusInternalServerError
	upstreamStatus := upstream.StatusOf(err)

	var netErr *upstream.NetworkError
	switch {
	case errors.Is(err, hydrate.ErrUnknownView):
		status = http.StatusNotFound
	case upstreamStatus == http.StatusNotFound:
		status = http.StatusNotFound
	case upstreamStatus != 0, errors.As(err, &netErr):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// client went away, nobody reads the answer
		return
	}

	if status >= http.StatusInternalServerError {
		d.Logger.Warn("request failed",
			logger.String("path", r.URL.Path),
			logger.Int("status", status),
			logger.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Status: upstreamStatus})
}

func sessionFor(d deps.Deps, r *http.Request) *session.Session {
	return d.Sessions.Get(r.Header.Get(SessionHeader))
}
