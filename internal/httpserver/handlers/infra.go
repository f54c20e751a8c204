package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/pulse/internal/httpserver/deps"
)

type componentStatus struct {
	OK       bool   `json:"ok"`
	Sessions *int   `json:"sessions,omitempty"`
	Mode     string `json:"mode,omitempty"`
	Impact   string `json:"impact,omitempty"`
	Error    string `json:"error,omitempty"`
}

type sessionStatus struct {
	ID         string `json:"id"`
	CacheKeys  int    `json:"cache_keys"`
	LastSeenAt string `json:"last_seen_at"`
}

type infraResponse struct {
	InvalidationMode string                     `json:"invalidation_mode"`
	Components       map[string]componentStatus `json:"components"`
	Sessions         []sessionStatus            `json:"sessions"`
}

// Infra describes sessions and the invalidation backend.
func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids := d.Sessions.IDs()
		count := len(ids)

		sessions := make([]sessionStatus, 0, count)
		for _, id := range ids {
			s := d.Sessions.Peek(id)
			if s == nil {
				continue
			}
			sessions = append(sessions, sessionStatus{
				ID:         id,
				CacheKeys:  s.Loaders().Cache().Len(),
				LastSeenAt: s.LastSeen().UTC().Format(time.RFC3339),
			})
		}

		redis := checkRedis(r.Context(), d)
		components := map[string]componentStatus{
			"sessions": {OK: true, Sessions: &count},
			"redis":    redis,
		}

		writeJSON(w, http.StatusOK, infraResponse{
			InvalidationMode: invalidationMode(d, redis),
			Components:       components,
			Sessions:         sessions,
		})
	}
}

func invalidationMode(d deps.Deps, redis componentStatus) string {
	switch {
	case d.RedisClient == nil:
		return "local"
	case !redis.OK:
		return "degraded"
	default:
		return "replicated"
	}
}

func checkRedis(parent context.Context, d deps.Deps) componentStatus {
	if d.RedisClient == nil {
		return componentStatus{
			OK:     true,
			Mode:   "disabled",
			Impact: "invalidation-process-local",
		}
	}

	ctx, cancel := context.WithTimeout(parent, 2*time.Second)
	defer cancel()

	if err := d.RedisClient.Ping(ctx).Err(); err != nil {
		return componentStatus{
			OK:     false,
			Mode:   "unreachable",
			Impact: "replicas-may-serve-stale-data",
			Error:  err.Error(),
		}
	}

	return componentStatus{
		OK:     true,
		Mode:   "optimal",
		Impact: "invalidation-replicated",
	}
}
