package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/home-dashboard/httping/internal/auth"
	"github.com/home-dashboard/httping/internal/models"
	"github.com/home-dashboard/httping/internal/monitor"
	"github.com/home-dashboard/httping/internal/rollup"
	"github.com/home-dashboard/httping/internal/tracing"
)

// Engine is the part of the monitor manager the API serves.
type Engine interface {
	Targets() []models.Target
	Snapshot(internalName string, now time.Time) (models.Snapshot, error)
	Recompute(ctx context.Context, internalName string, dryRun bool, grans ...models.Granularity) (*rollup.Report, error)
}

// HealthChecker reports the health of a dependency.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// RouterConfig collects the handlers' dependencies.
type RouterConfig struct {
	Engine      Engine
	Store       HealthChecker       // optional
	WebSocket   http.Handler        // optional
	Auth        *auth.Authenticator // nil leaves recompute open
	CORSOrigins []string
	Logger      *zap.Logger
	Now         func() time.Time
}

type api struct {
	engine Engine
	store  HealthChecker
	logger *zap.Logger
	now    func() time.Time
}

// NewRouter builds the HTTP API.
func NewRouter(cfg RouterConfig) http.Handler {
	a := &api{engine: cfg.Engine, store: cfg.Store, logger: cfg.Logger, now: cfg.Now}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	if a.now == nil {
		a.now = time.Now
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	if cfg.WebSocket != nil {
		router.Handle("/ws", cfg.WebSocket)
	}

	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.Use(otelhttp.NewMiddleware("httping.api"))
	apiRouter.HandleFunc("/targets", a.handleListTargets).Methods(http.MethodGet)
	apiRouter.HandleFunc("/targets/{id}/snapshot", a.handleSnapshot).Methods(http.MethodGet)

	var recompute http.Handler = http.HandlerFunc(a.handleRecompute)
	if cfg.Auth != nil {
		apiRouter.HandleFunc("/auth/token", cfg.Auth.HandleToken).Methods(http.MethodPost)
		recompute = cfg.Auth.RequireOperator(recompute)
	}
	apiRouter.Handle("/targets/{id}/recompute", recompute).Methods(http.MethodPost)

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})

	return corsHandler.Handler(router)
}

type targetView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Interval string `json:"interval"`
	Timezone string `json:"timezone"`
}

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "healthy"}
	if a.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.store.HealthCheck(ctx); err != nil {
			status["status"] = "degraded"
			status["database"] = err.Error()
			respondJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		status["database"] = "ok"
	}
	respondJSON(w, http.StatusOK, status)
}

func (a *api) handleListTargets(w http.ResponseWriter, r *http.Request) {
	targets := a.engine.Targets()
	out := make([]targetView, 0, len(targets))
	for _, t := range targets {
		out = append(out, targetView{
			ID:       t.InternalName,
			Name:     t.Name,
			URL:      t.URL,
			Interval: t.Interval.String(),
			Timezone: t.Loc().String(),
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func (a *api) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	snap, err := a.engine.Snapshot(id, a.now())
	if err != nil {
		if errors.Is(err, monitor.ErrUnknownTarget) {
			respondError(w, http.StatusNotFound, "Target not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to assemble snapshot")
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (a *api) handleRecompute(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	dryRun := false
	if v := r.URL.Query().Get("dry_run"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid dry_run value")
			return
		}
		dryRun = b
	}

	var grans []models.Granularity
	for _, v := range r.URL.Query()["granularity"] {
		g, err := models.ParseGranularity(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		grans = append(grans, g)
	}

	tracing.AddSpanAttributes(r.Context(),
		attribute.String("target.id", id),
		attribute.Bool("recompute.dry_run", dryRun))

	report, err := a.engine.Recompute(r.Context(), id, dryRun, grans...)
	if err != nil {
		if errors.Is(err, monitor.ErrUnknownTarget) {
			respondError(w, http.StatusNotFound, "Target not found")
			return
		}
		tracing.RecordError(r.Context(), err)
		a.logger.Error("recompute request failed", zap.String("target", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Recompute failed")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
