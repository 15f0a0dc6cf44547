// Package httpapi assembles the engine's HTTP surface: public registration
// and marketplace routes, operator-only admin routes, and the operational
// endpoints.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	feemanagerhandler "namehaus/internal/feemanager/handler"
	limiterhandler "namehaus/internal/limiter/handler"
	marketplacehandler "namehaus/internal/marketplace/handler"
	"namehaus/internal/platform/metrics"
	registrarhandler "namehaus/internal/registrar/handler"
	"namehaus/pkg/platform/middleware/admin"
	"namehaus/pkg/platform/middleware/requestid"
	"namehaus/pkg/platform/middleware/requesttime"
)

// Handlers groups the per-domain handlers the router mounts.
type Handlers struct {
	Registrar   *registrarhandler.Handler
	Marketplace *marketplacehandler.Handler
	FeeManager  *feemanagerhandler.Handler
	Limiter     *limiterhandler.Handler
}

// NewRouter wires all endpoints. Admin routes live under /admin and require
// the operator token; everything else is public.
func NewRouter(h Handlers, operatorToken string, httpMetrics *metrics.Metrics, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)
	if httpMetrics != nil {
		r.Use(httpMetrics.Middleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		h.Registrar.Register(r)
		h.Marketplace.Register(r)
		h.Limiter.Register(r)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(admin.RequireOperatorToken(operatorToken, logger))
		h.Registrar.RegisterAdmin(r)
		h.Marketplace.RegisterAdmin(r)
		h.FeeManager.RegisterAdmin(r)
		h.Limiter.RegisterAdmin(r)
	})

	return r
}
