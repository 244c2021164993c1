package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	consolidationhttp "github.com/groupledger/groupledger/internal/consolidation/http"
	eliminationhttp "github.com/groupledger/groupledger/internal/elimination/http"
	fxratehttp "github.com/groupledger/groupledger/internal/fxrate/http"
	goodwillhttp "github.com/groupledger/groupledger/internal/goodwill/http"
	packhttp "github.com/groupledger/groupledger/internal/pack/http"
	perimeterhttp "github.com/groupledger/groupledger/internal/perimeter/http"
	reconciliationhttp "github.com/groupledger/groupledger/internal/reconciliation/http"
	reporthttp "github.com/groupledger/groupledger/internal/report/http"
	restatementhttp "github.com/groupledger/groupledger/internal/restatement/http"
	"github.com/groupledger/groupledger/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	FXHandler             *fxratehttp.Handler
	PerimeterHandler      *perimeterhttp.Handler
	PackageHandler        *packhttp.Handler
	ConsolidationHandler  *consolidationhttp.Handler
	EliminationHandler    *eliminationhttp.Handler
	RestatementHandler    *restatementhttp.Handler
	ReconciliationHandler *reconciliationhttp.Handler
	GoodwillHandler       *goodwillhttp.Handler
	ReportHandler         *reporthttp.Handler
	JobHandler            *jobs.Handler

	// ArtifactDir, when set, is served read-only under /reports/artifacts.
	ArtifactDir string
}

// NewRouter constructs the chi.Router with all module routes mounted.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(api chi.Router) {
		if params.FXHandler != nil {
			params.FXHandler.MountRoutes(api)
		}
		if params.PerimeterHandler != nil {
			params.PerimeterHandler.MountRoutes(api)
		}
		if params.PackageHandler != nil {
			params.PackageHandler.MountRoutes(api)
		}
		if params.ConsolidationHandler != nil {
			params.ConsolidationHandler.MountRoutes(api)
		}
		if params.EliminationHandler != nil {
			params.EliminationHandler.MountRoutes(api)
		}
		if params.RestatementHandler != nil {
			params.RestatementHandler.MountRoutes(api)
		}
		if params.ReconciliationHandler != nil {
			params.ReconciliationHandler.MountRoutes(api)
		}
		if params.GoodwillHandler != nil {
			params.GoodwillHandler.MountRoutes(api)
		}
		if params.ReportHandler != nil {
			params.ReportHandler.MountRoutes(api)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", func(jr chi.Router) {
			params.JobHandler.MountRoutes(jr)
		})
	}

	if params.ArtifactDir != "" {
		fileServer := http.StripPrefix("/reports/artifacts/", http.FileServer(http.Dir(params.ArtifactDir)))
		r.Get("/reports/artifacts/*", func(w http.ResponseWriter, r *http.Request) {
			fileServer.ServeHTTP(w, r)
		})
	}

	return r
}
