// Package httpapi assembles the HTTP surface: middleware chain, health and
// metrics endpoints, and the authenticated API routes.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	notifhandler "civicdesk/internal/notification/handler"
	"civicdesk/internal/notification/sse"
	"civicdesk/internal/platform/middleware"
	reqhandler "civicdesk/internal/request/handler"
	"civicdesk/pkg/platform/httputil"
)

// Registrar mounts a set of routes on a router.
type Registrar interface {
	Register(r chi.Router)
}

// Deps carries the handlers the router mounts.
type Deps struct {
	Auth          *middleware.Authenticator
	Requests      *reqhandler.Handler
	Notifications *notifhandler.Handler
	Stream        *sse.Handler
	Logger        *slog.Logger
}

// NewRouter wires the middleware chain and all endpoints. Everything under
// /api/v1 requires authentication; health and metrics stay open.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(deps.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(deps.Auth.RequireAuth)
		deps.Requests.Register(r)
		deps.Notifications.Register(r)
		deps.Stream.Register(r)
	})

	return r
}
