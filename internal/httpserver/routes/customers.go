package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/pulse/internal/httpserver/deps"
	"github.com/MrSnakeDoc/pulse/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/pulse/internal/httpserver/mw"
)

func init() { Register("customers", registerCustomers) }

func registerCustomers(r chi.Router, d deps.Deps) {
	api := r.With(mw.EnforceHost(d.AllowedHosts, d.Logger))

	api.Get("/api/customers", handlers.Customers(d))
	api.Get("/api/rollup", handlers.Rollup(d))
	api.Get("/api/customers/{id}", handlers.OpenPage(d))
	api.Get("/api/customers/{id}/views/{view}", handlers.ActivateView(d))
	api.Get("/api/customers/{id}/report", handlers.Report(d))
}
