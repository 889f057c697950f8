package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/cargo-ledger/internal/catalog"
	"github.com/odyssey-erp/cargo-ledger/internal/movement"
	"github.com/odyssey-erp/cargo-ledger/internal/observability"
	"github.com/odyssey-erp/cargo-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/cargo-ledger/internal/registry"
	"github.com/odyssey-erp/cargo-ledger/internal/settlement"
	"github.com/odyssey-erp/cargo-ledger/internal/shared"
	"github.com/odyssey-erp/cargo-ledger/internal/vessel"
	"github.com/odyssey-erp/cargo-ledger/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	Metrics           *observability.Metrics
	CatalogHandler    *catalog.Handler
	RegistryHandler   *registry.Handler
	VesselHandler     *vessel.Handler
	SettlementHandler *settlement.Handler
	MovementHandler   *movement.Handler
	JobHandler        *jobs.Handler
}

// NewRouter constructs the chi.Router with cargo ledger defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	if params.Config == nil || !params.Config.IsProduction() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Handle("/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if params.CatalogHandler != nil {
			params.CatalogHandler.MountRoutes(r)
		}
		if params.RegistryHandler != nil {
			params.RegistryHandler.MountRoutes(r)
		}
		if params.VesselHandler != nil {
			params.VesselHandler.MountRoutes(r)
		}
		if params.SettlementHandler != nil {
			params.SettlementHandler.MountRoutes(r)
		}
		if params.MovementHandler != nil {
			params.MovementHandler.MountRoutes(r)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.RespondError(w, shared.NotFound("route %s not found", r.URL.Path))
	})

	return r
}
