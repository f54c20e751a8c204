package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/MrSnakeDoc/pulse/internal/httpserver/deps"
	"github.com/MrSnakeDoc/pulse/internal/hydrate"
)

// Customers lists customer rows. A non-empty q goes through the session's
// debounced search: a request overtaken by a newer one answers 204.
func Customers(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		overview := sessionFor(d, r).Overview()
		query := strings.TrimSpace(r.URL.Query().Get("q"))

		var (
			res hydrate.Result
			err error
		)
		if query == "" {
			res, err = overview.Customers(r.Context(), "")
		} else {
			res, err = overview.Search(r.Context(), query)
		}

		if errors.Is(err, hydrate.ErrSuperseded) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if err != nil {
			writeError(w, d, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// Rollup returns the executive rollup.
func Rollup(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := sessionFor(d, r).Overview().Rollup(r.Context())
		if err != nil {
			writeError(w, d, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// RefreshOverview drops the cached customer list and reloads the list and
// rollup if they were shown.
func RefreshOverview(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		overview := sessionFor(d, r).Overview()
		if err := overview.Refresh(r.Context()); err != nil {
			writeError(w, d, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"states": overview.States()})
	}
}
