package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/pulse/internal/httpserver/deps"
	"github.com/MrSnakeDoc/pulse/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/pulse/internal/httpserver/mw"
)

func init() { Register("mutations", registerMutations) }

// Mutating routes share one token bucket per client IP.
func registerMutations(r chi.Router, d deps.Deps) {
	limited := r.With(
		mw.EnforceHost(d.AllowedHosts, d.Logger),
		mw.RateLimit(mw.RateLimitConfig{
			Burst:             d.MutationBurst,
			RefillPerIPPerMin: d.MutationRefillPerMin,
			MaxEntries:        10000,
			TrustProxy:        d.TrustProxy,
		}),
	)

	limited.Post("/api/refresh", handlers.RefreshOverview(d))
	limited.Post("/api/customers/{id}/refresh", handlers.Refresh(d))
	limited.Post("/api/customers/{id}/reevaluate", handlers.Reevaluate(d))
	limited.Post("/api/customers/{id}/notify", handlers.Notify(d))
}
