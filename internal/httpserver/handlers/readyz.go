package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/pulse/internal/httpserver/deps"
)

type readyzResponse struct {
	Ready bool   `json:"ready"`
	Redis string `json:"redis"`
}

// Readyz reports ready unless a configured Redis is unreachable.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		redis := checkRedis(r.Context(), d)

		status := http.StatusOK
		if d.RedisClient != nil && !redis.OK {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, readyzResponse{
			Ready: status == http.StatusOK,
			Redis: redis.Mode,
		})
	}
}
