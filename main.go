/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Tier:        L3
Logic:       Service entry point with graceful shutdown. Wires
             config → logger → Redis → warehouse connection pool →
             Event Log Client (replaying any spooled batches) →
             query planner → Two-Table Invariant Gate → Guarded
             Executor → Dashboard Factory → Contract Sentinel →
             router → HTTP server with OS signal handling.
Context:     Entry point wiring for the full event pipeline; the
             Contract Sentinel runs once synchronously before the
             server starts serving so a broken warehouse contract
             fails boot instead of surfacing as query errors later.
Suitability: L3 model for graceful shutdown and system wiring.
──────────────────────────────────────────────────────────────
*/

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/riverreach/ledgerview/alerting"
	"github.com/riverreach/ledgerview/config"
	"github.com/riverreach/ledgerview/contract"
	"github.com/riverreach/ledgerview/dashboard"
	"github.com/riverreach/ledgerview/engine"
	"github.com/riverreach/ledgerview/eventlog"
	"github.com/riverreach/ledgerview/executor"
	"github.com/riverreach/ledgerview/invariant"
	"github.com/riverreach/ledgerview/logger"
	"github.com/riverreach/ledgerview/observability"
	"github.com/riverreach/ledgerview/planner"
	"github.com/riverreach/ledgerview/redisclient"
	"github.com/riverreach/ledgerview/router"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)

	log.Info().Str("env", cfg.Env).Msg("eventcore starting")

	// Redis backs the permission/budget lookup cache; its absence degrades
	// every caller to the VIEWER default budget rather than failing boot.
	var permissionLookup executor.PermissionLookup
	rc, err := redisclient.New(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("redis init failed — continuing with VIEWER-only budgets")
	} else if err := rc.Ping(); err != nil {
		log.Warn().Err(err).Msg("redis ping failed")
	} else {
		log.Info().Msg("redis connected")
		permissionLookup = func(ctx context.Context, callerID string) (executor.Budget, bool, error) {
			raw, err := rc.Get(ctx, "budget:"+callerID)
			if err == redisclient.ErrNotFound {
				return executor.Budget{}, false, nil
			}
			if err != nil {
				return executor.Budget{}, false, err
			}
			var b executor.Budget
			if err := json.Unmarshal([]byte(raw), &b); err != nil {
				return executor.Budget{}, false, err
			}
			return b, true, nil
		}
	}

	sess := engine.Session{
		Role:      cfg.EngineRole,
		Warehouse: cfg.EngineWarehouse,
		Database:  cfg.EngineDatabase,
		Schema:    cfg.EngineSchema,
	}

	pool := engine.NewPool(engine.PoolConfig{
		Size:        cfg.EnginePoolSize,
		DialTimeout: 10 * time.Second,
		BackoffBase: 250 * time.Millisecond,
		BackoffMax:  30 * time.Second,
	}, engine.DialHTTPConnector(engine.HTTPConnectorConfig{
		BaseURL:   cfg.EngineBaseURL,
		Account:   cfg.EngineAccount,
		Token:     cfg.EngineToken,
		StageBase: cfg.EngineStageBase,
	}))
	adapter := engine.New(pool)

	pdCfg := alerting.DefaultPagerDutyConfig()
	pdCfg.RoutingKey = cfg.PagerDutyRoutingKey
	pdCfg.Enabled = cfg.PagerDutyRoutingKey != ""
	pd := alerting.NewPagerDutyClient(pdCfg, log)

	// Event Log Client (C2) — the only component allowed to append to the
	// landing table, via the sink below.
	sink := eventlog.NewLandingTableSink(adapter, sess, cfg.LandingTable)
	events, err := eventlog.New(log, cfg, sink)
	if err != nil {
		log.Fatal().Err(err).Msg("event log client init failed")
	}
	events.Start(context.Background())
	replayCtx, replayCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := events.Replay(replayCtx); err != nil {
		log.Warn().Err(err).Msg("spool replay failed — spooled batches left on disk for next boot")
	}
	replayCancel()

	// Query Planner & Guard (C3)
	catalog, err := planner.LoadCatalog(cfg.SourceCatalogPath)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.SourceCatalogPath).Msg("source catalog load failed — falling back to empty catalog")
		catalog = &planner.Catalog{}
	}
	// No NL compilation backend is wired — nil falls through to the
	// deterministic regex-table compiler unconditionally (Open Question
	// §9 resolved in DESIGN.md).
	compiler := planner.NewCompiler(catalog, cfg.MaxRows, nil)

	// Two-Table Invariant Gate (C7)
	gate := invariant.New(cfg.LandingTable, cfg.StrictInvariant)

	// Guarded Executor (C4)
	resolver := executor.NewBudgetResolver(cfg, permissionLookup)
	ex := executor.New(log, cfg, adapter, gate, resolver, cfg.LandingTable, events)

	// Dashboard Factory (C5)
	factory := dashboard.New(log, cfg, adapter, gate, events)

	// Contract Sentinel (C6)
	contractDoc, err := contract.LoadDocument(cfg.ContractCatalogPath)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.ContractCatalogPath).Msg("contract catalog load failed — using default document")
		contractDoc = contract.DefaultDocument()
	}
	sentinel := contract.New(log, adapter, contractDoc, cfg.SentinelInterval, cfg.StrictContract, func(action string, attrs map[string]interface{}) {
		if err := events.Emit(eventlog.Event{Action: action, Attributes: attrs, Source: eventlog.SourceSystem}); err != nil {
			log.Warn().Err(err).Str("action", action).Msg("failed to emit contract sentinel event")
		}
	})
	sentinel.OnTransition(func(report contract.Report) {
		if report.Passed {
			if err := pd.ResolveSchemaDrift(); err != nil {
				log.Warn().Err(err).Msg("pagerduty resolve failed")
			}
		} else {
			first := ""
			if len(report.Issues) > 0 {
				first = string(report.Issues[0].Kind)
			}
			if err := pd.AlertSchemaDrift(len(report.Issues), first); err != nil {
				log.Warn().Err(err).Msg("pagerduty alert failed")
			}
		}
	})

	bootReport := sentinel.Check(context.Background())
	metrics := observability.NewMetrics()
	metrics.SetContractPassed(bootReport.Passed)
	if !bootReport.Passed && cfg.StrictContract {
		log.Fatal().Int("issues", len(bootReport.Issues)).Msg("contract sentinel failed at boot under strict enforcement")
	}

	sentinelCtx, sentinelCancel := context.WithCancel(context.Background())
	sentinel.Start(sentinelCtx)

	traceExporter := observability.NewLogExporter(log)
	tracer := observability.NewTracer(log, traceExporter, sentinelSampleRate(cfg))

	deps := router.Deps{
		Events:     events,
		Catalog:    catalog,
		Compiler:   compiler,
		Gate:       gate,
		Executor:   ex,
		Factory:    factory,
		Sentinel:   sentinel,
		Metrics:    metrics,
		Tracer:     tracer,
		EngineSess: sess,
	}
	r := router.NewRouter(cfg, log, deps)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.DefaultTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("eventcore listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-done
	log.Info().Msg("shutdown signal received")

	sentinelCancel()
	sentinel.Stop()
	events.Stop()
	tracer.Shutdown()
	pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	} else {
		log.Info().Msg("eventcore stopped gracefully")
	}
}

// sentinelSampleRate samples every span in development, 10% in production —
// the contract sentinel's own interval already bounds trace volume, this
// just keeps request tracing cheap once adapter calls are real network hops.
func sentinelSampleRate(cfg *config.Config) float64 {
	if cfg.IsProduction() {
		return 0.1
	}
	return 1.0
}
