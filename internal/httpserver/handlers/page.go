package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/pulse/internal/httpserver/deps"
	"github.com/MrSnakeDoc/pulse/internal/hydrate"
	"github.com/MrSnakeDoc/pulse/internal/logger"
	"github.com/MrSnakeDoc/pulse/internal/resources"
)

// maxNotifyBody caps the notification payload forwarded upstream.
const maxNotifyBody = 64 << 10

type pageResponse struct {
	*hydrate.PageSnapshot
	LastMutationAt *time.Time `json:"last_mutation_at,omitempty"`
}

type actionResponse struct {
	Via      resources.Kind  `json:"via"`
	Upstream json.RawMessage `json:"upstream,omitempty"`
}

// OpenPage loads the core panels of a customer page.
func OpenPage(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		snap, err := sessionFor(d, r).Page(id).Open(r.Context())
		if err != nil {
			writeError(w, d, r, err)
			return
		}

		resp := pageResponse{PageSnapshot: snap}
		if d.Mutations != nil {
			at, ok, err := d.Mutations.LastMutation(r.Context(), id)
			switch {
			case err != nil:
				d.Logger.Debug("mutation marker unavailable", logger.Error(err))
			case ok:
				resp.LastMutationAt = &at
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// ActivateView hydrates one tab of a customer page.
func ActivateView(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := sessionFor(d, r).Page(chi.URLParam(r, "id"))
		res, err := page.Activate(r.Context(), chi.URLParam(r, "view"))
		if err != nil {
			writeError(w, d, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// Refresh invalidates the customer and reloads every activated view.
func Refresh(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := sessionFor(d, r).Page(chi.URLParam(r, "id"))
		results, err := page.Refresh(r.Context())
		if err != nil {
			writeError(w, d, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"views":  results,
			"states": page.States(),
		})
	}
}

// Reevaluate triggers a health re-evaluation and propagates the mutation.
func Reevaluate(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := sessionFor(d, r)
		id := chi.URLParam(r, "id")

		res, err := sess.Page(id).Reevaluate(r.Context())
		if err != nil {
			writeError(w, d, r, err)
			return
		}
		propagate(d, r, id)

		d.Logger.Info("health re-evaluation triggered",
			logger.String("customer", id),
			logger.String("via", string(res.Via)))
		writeJSON(w, http.StatusAccepted, actionResponse{Via: res.Via, Upstream: res.Body})
	}
}

// Notify forwards a notification for the customer.
func Notify(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := sessionFor(d, r)
		id := chi.URLParam(r, "id")

		var payload json.RawMessage
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxNotifyBody)).Decode(&payload); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
			return
		}

		res, err := sess.Page(id).Notify(r.Context(), payload)
		if err != nil {
			writeError(w, d, r, err)
			return
		}
		propagate(d, r, id)
		writeJSON(w, http.StatusAccepted, actionResponse{Via: res.Via, Upstream: res.Body})
	}
}

// Report renders the printable report preview.
func Report(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, err := sessionFor(d, r).Page(chi.URLParam(r, "id")).Report(r.Context())
		if err != nil {
			writeError(w, d, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

// propagate tells every session and the other replicas. A publish failure
// does not fail the action that already succeeded upstream.
func propagate(d deps.Deps, r *http.Request, customerID string) {
	if err := d.Sessions.InvalidateCustomer(r.Context(), customerID); err != nil {
		d.Logger.Warn("failed to propagate invalidation",
			logger.String("customer", customerID),
			logger.Error(err))
	}
}
