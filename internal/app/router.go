package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/pharmaos/pharmaos/internal/analytics"
	"github.com/pharmaos/pharmaos/internal/coldchain"
	"github.com/pharmaos/pharmaos/internal/ledger"
	"github.com/pharmaos/pharmaos/internal/masterdata"
	"github.com/pharmaos/pharmaos/internal/observability"
	"github.com/pharmaos/pharmaos/internal/sales"
	"github.com/pharmaos/pharmaos/internal/shared"
	"github.com/pharmaos/pharmaos/internal/trace"
	"github.com/pharmaos/pharmaos/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	MasterDataHandler *masterdata.Handler
	LedgerHandler     *ledger.Handler
	SalesHandler      *sales.Handler
	ColdChainHandler  *coldchain.Handler
	TraceHandler      *trace.Handler
	AnalyticsHandler  *analytics.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with PharmaOS defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		if params.MasterDataHandler != nil {
			api.Group(func(g chi.Router) {
				g.Use(RequireRoles(shared.RoleManager, shared.RolePharmacist))
				params.MasterDataHandler.MountRoutes(g)
			})
		}
		if params.LedgerHandler != nil {
			api.Group(func(g chi.Router) {
				g.Use(RequireRoles(shared.RoleManager, shared.RolePharmacist, shared.RolePicker))
				params.LedgerHandler.MountRoutes(g)
			})
		}
		if params.SalesHandler != nil {
			api.Group(func(g chi.Router) {
				g.Use(RequireRoles(shared.RoleManager, shared.RolePharmacist))
				params.SalesHandler.MountRoutes(g)
			})
		}
		// Telemetry arrives from sensors, not staff; no role gate.
		if params.ColdChainHandler != nil {
			params.ColdChainHandler.MountRoutes(api)
		}
		if params.TraceHandler != nil {
			api.Group(func(g chi.Router) {
				g.Use(RequireRoles(shared.RoleManager, shared.RolePharmacist))
				params.TraceHandler.MountRoutes(g)
			})
		}
		if params.AnalyticsHandler != nil {
			api.Group(func(g chi.Router) {
				g.Use(RequireRoles(shared.RoleManager))
				params.AnalyticsHandler.MountRoutes(g)
			})
		}
		if params.JobHandler != nil {
			api.Route("/jobs", func(jr chi.Router) {
				jr.Use(RequireRoles(shared.RoleManager))
				params.JobHandler.MountRoutes(jr)
			})
		}
	})

	return r
}
