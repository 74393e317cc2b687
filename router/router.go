/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Tier:        L3
Logic:       Full service router with middleware chain:
             CORS → Security Headers → Request ID → Recoverer →
             Request Logger → Tracing → Body Size Limit, then
             inside /v1: Auth → Rate Limit → Header Normalization
             → Timeout. Routes: ingestion (events/sessions), query
             (sources/plans), dashboards, and the invariant gate /
             contract sentinel status surfaces.
Context:     Router design affects all downstream handlers.
Suitability: L3 model for proper middleware chain design.
──────────────────────────────────────────────────────────────
*/

package router

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/riverreach/ledgerview/config"
	"github.com/riverreach/ledgerview/contract"
	"github.com/riverreach/ledgerview/dashboard"
	"github.com/riverreach/ledgerview/engine"
	"github.com/riverreach/ledgerview/eventlog"
	"github.com/riverreach/ledgerview/executor"
	"github.com/riverreach/ledgerview/handler"
	"github.com/riverreach/ledgerview/invariant"
	evmw "github.com/riverreach/ledgerview/middleware"
	"github.com/riverreach/ledgerview/observability"
	"github.com/riverreach/ledgerview/planner"
)

// Deps bundles the components NewRouter wires into handlers. Keeping this as
// a struct instead of a long parameter list mirrors how the gateway's
// optional variadic dependencies grew — but typed. Tracer and Metrics are
// optional (nil skips tracing and the /metrics route); the rest are required.
type Deps struct {
	Events      *eventlog.Client
	Catalog     *planner.Catalog
	Compiler    *planner.Compiler
	Gate        *invariant.Gate
	Executor    *executor.Executor
	Factory     *dashboard.Factory
	Sentinel    *contract.Sentinel
	Metrics     *observability.Metrics
	Tracer      *observability.Tracer
	EngineSess  engine.Session
}

// NewRouter returns a configured chi Router with the full middleware chain
// and every API route mounted.
func NewRouter(cfg *config.Config, appLogger zerolog.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()

	// --- Middleware Chain (order matters) ---
	// 1. CORS — must be first so preflight responses succeed
	r.Use(evmw.CORSMiddleware([]string{"*"}))

	// 2. Security headers
	r.Use(evmw.SecurityHeadersMiddleware)

	// 3. Request ID injection (chi built-in)
	r.Use(chimw.RequestID)

	// 4. Panic recovery
	r.Use(chimw.Recoverer)

	// 5. Request logger
	r.Use(mwRequestLogger(appLogger))

	// 6. OpenTelemetry-style tracing
	if deps.Tracer != nil {
		r.Use(observability.TracingMiddleware(deps.Tracer))
	}

	// 7. Body size limit
	r.Use(mwMaxBodySize(cfg.MaxBodyBytes))

	// --- Health endpoints (no auth required) ---
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"eventcore"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready","service":"eventcore"}`))
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy","service":"eventcore"}`))
	})

	// Prometheus metrics endpoint — no auth required
	if deps.Metrics != nil {
		r.Get("/metrics", deps.Metrics.Handler())
	}

	// --- Handlers ---
	ingestionHandler := handler.NewIngestionHandler(appLogger, deps.Events)
	queryHandler := handler.NewQueryHandler(appLogger, deps.Catalog, deps.Compiler, deps.Gate, deps.Executor, cfg.LandingTable, cfg.MaxRows, deps.EngineSess)
	dashboardHandler := handler.NewDashboardHandler(appLogger, deps.Factory)
	gateHandler := handler.NewGateHandler(appLogger, deps.Gate, cfg.StrictInvariant)
	contractHandler := handler.NewContractHandler(appLogger, deps.Sentinel)

	authMW := evmw.NewAuthMiddleware(appLogger, cfg.APIKeyHeader)
	rateLimiter := evmw.NewRateLimiter(appLogger, cfg.RateLimitEnabled, cfg.RateLimitRPM, cfg.RateLimitBurst)
	headerNorm := evmw.NewHeaderNormalization(appLogger)
	timeoutMW := evmw.NewTimeoutMiddleware(appLogger, cfg)

	r.Route("/v1", func(r chi.Router) {
		r.Use(authMW.Handler)
		r.Use(rateLimiter.Handler)
		r.Use(headerNorm.Handler)
		r.Use(timeoutMW.Handler)

		// Ingestion API (spec.md §6.1)
		r.Post("/events", ingestionHandler.LogEvent)
		r.Post("/events/batch", ingestionHandler.LogEventBatch)
		r.Post("/sessions", ingestionHandler.StartSession)
		r.Post("/sessions/end", ingestionHandler.EndSession)
		r.Get("/sessions/{sessionId}/stats", ingestionHandler.GetSessionStats)

		// Query API (spec.md §6.2)
		r.Get("/sources", queryHandler.ListSources)
		r.Post("/plans/compose", queryHandler.ComposeQueryPlan)
		r.Post("/plans/validate", queryHandler.ValidatePlan)
		r.Post("/plans/execute", queryHandler.ExecuteQueryPlan)

		// Dashboard Factory (spec.md §6.2, create_dashboard)
		r.Post("/dashboards", dashboardHandler.CreateDashboard)
		r.Get("/dashboards/{name}", dashboardHandler.GetActiveDashboard)
		r.Post("/dashboards/{name}/rollback", dashboardHandler.RollbackDashboard)

		// Two-Table Invariant Gate — operational visibility
		r.Get("/invariant/status", gateHandler.Status)
		r.Get("/invariant/log", gateHandler.EvaluationLog)

		// Contract Sentinel — operational visibility
		r.Get("/contract/status", contractHandler.Status)
		r.Post("/contract/recheck", contractHandler.Recheck)
	})

	return r
}

// mwMaxBodySize returns middleware that limits the request body size.
func mwMaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = 1 * 1024 * 1024 // default 1MB
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			max := maxBytes
			if v := os.Getenv("SERVICE_MAX_BODY_BYTES"); v != "" {
				if parsed, err := strconv.ParseInt(v, 10, 64); err == nil && parsed > 0 {
					max = parsed
				}
			}

			if r.ContentLength > 0 && r.ContentLength > max {
				http.Error(w, `{"error":"request_too_large","message":"request body too large"}`, http.StatusRequestEntityTooLarge)
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, max)
			next.ServeHTTP(w, r)
		})
	}
}

func mwRequestLogger(appLogger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(rw, r)
			dur := time.Since(start)
			reqID := chimw.GetReqID(r.Context())
			appLogger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("req_id", reqID).
				Int("status", rw.Status()).
				Dur("duration", dur).
				Msg("request completed")
		})
	}
}
