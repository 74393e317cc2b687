/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Tier:        L3
Logic:       Dashboard Factory (C5) state machine: analyze →
             spec_draft → validate → preflight → materialize →
             render → publish → active, with a fallback branch on
             any failed stage and a rollback entry point back to a
             previously active hash. Publish is blue/green: stage
             the new version, swap the pointer, then mark it active
             — in that event order, so a crash mid-publish leaves
             the previous version serving traffic.
Context:     Per-dashboard-name creation is serialized in-process so
             two concurrent requests for the same name never race on
             the same stage path.
Suitability: L3 — state machine + concurrency + content addressing.
──────────────────────────────────────────────────────────────
*/

package dashboard

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/riverreach/ledgerview/config"
	"github.com/riverreach/ledgerview/engine"
	"github.com/riverreach/ledgerview/eventlog"
	"github.com/riverreach/ledgerview/invariant"
	"github.com/riverreach/ledgerview/observability"
)

// Stage names the Dashboard Factory's state machine steps.
type Stage string

const (
	StageAnalyze     Stage = "analyze"
	StageSpecDraft    Stage = "spec_draft"
	StageValidate     Stage = "validate"
	StagePreflight    Stage = "preflight"
	StageMaterialize  Stage = "materialize"
	StageRender       Stage = "render"
	StagePublish      Stage = "publish"
	StageActive       Stage = "active"
	StageFallback     Stage = "fallback"
)

// Result reports where a create/publish run ended up.
type Result struct {
	DashboardName string
	SpecHash      string
	Stage         Stage
	Reused        bool // true if this spec hash was already in the publish cache, so no artifacts were written (I6)
	Err           error
}

// activeVersion tracks, per dashboard name, which spec hash is currently
// serving traffic; ActiveSpecHash reads it. Create and Rollback find
// reusable versions in the publish cache, not in this map.
type activeVersion struct {
	specHash     string
	stageVersion string
}

// Factory drives dashboards through the state machine.
type Factory struct {
	logger  zerolog.Logger
	cfg     *config.Config
	adapter engine.Adapter
	gate    *invariant.Gate
	events  *eventlog.Client
	cache   *Cache

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	activeMu sync.RWMutex
	active   map[string]activeVersion
}

// New builds a Dashboard Factory.
func New(logger zerolog.Logger, cfg *config.Config, adapter engine.Adapter, gate *invariant.Gate, events *eventlog.Client) *Factory {
	return &Factory{
		logger:  logger.With().Str("component", "dashboard-factory").Logger(),
		cfg:     cfg,
		adapter: adapter,
		gate:    gate,
		events:  events,
		cache:   NewCache(logger),
		locks:   make(map[string]*sync.Mutex),
		active:  make(map[string]activeVersion),
	}
}

func (f *Factory) lockFor(name string) *sync.Mutex {
	f.locksMu.Lock()
	defer f.locksMu.Unlock()
	l, ok := f.locks[name]
	if !ok {
		l = &sync.Mutex{}
		f.locks[name] = l
	}
	return l
}

// Create runs spec through the full state machine. Concurrent calls for the
// same dashboard name serialize on an in-process lock; concurrent calls for
// different names proceed independently.
func (f *Factory) Create(ctx context.Context, callerID, sessionID string, spec Spec) Result {
	lock := f.lockFor(spec.Name)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, f.cfg.CreateTimeout)
	defer cancel()

	specHash := spec.Hash()
	observability.TagDashboardSpan(ctx, spec.Name, specHash, string(StageValidate))

	// analyze / spec_draft: the caller-supplied spec is already the draft;
	// nothing to derive before validation.
	if err := f.validate(spec); err != nil {
		return f.fail(spec.Name, specHash, StageValidate, err)
	}

	if err := f.preflight(ctx, spec); err != nil {
		return f.fail(spec.Name, specHash, StagePreflight, err)
	}

	if cached, ok := f.cache.Lookup(spec.Name, specHash); ok {
		// I6: identical spec already materialized and published. Re-publish
		// only reasserts the active pointer — no new artifacts are written.
		if err := f.activate(ctx, callerID, sessionID, spec.Name, specHash, cached.StageVersion); err != nil {
			return f.fail(spec.Name, specHash, StagePublish, err)
		}
		return Result{DashboardName: spec.Name, SpecHash: specHash, Stage: StageActive, Reused: true}
	}

	manifestPath, files, err := StageLayout(f.cfg.DashStageRoot, spec.Name, specHash, spec)
	if err != nil {
		return f.fail(spec.Name, specHash, StageMaterialize, err)
	}
	sess := engine.Session{Role: "SYSTEM", Database: "ANALYTICS", Schema: "DASHBOARDS"}
	for path, data := range files {
		if err := f.adapter.PutStage(ctx, sess, path, data); err != nil {
			return f.fail(spec.Name, specHash, StageMaterialize, err)
		}
	}
	f.emit(sessionID, "dashboard.version.uploaded", spec.Name, map[string]interface{}{
		"spec_hash": specHash, "manifest": manifestPath,
	})

	appName := sanitizeAppName(spec.Name)
	stageRoot := fmt.Sprintf("%s/%s/%s", f.cfg.DashStageRoot, spec.Name, specHash)
	createSQL := fmt.Sprintf("CREATE OR REPLACE STREAMLIT %s ROOT_LOCATION = '%s' MAIN_FILE = 'app.entry'", appName, stageRoot)
	if err := f.gate.Check(createSQL); err != nil {
		return f.fail(spec.Name, specHash, StageRender, err)
	}
	if err := f.adapter.CreateOrReplaceApp(ctx, sess, appName, stageRoot); err != nil {
		return f.fail(spec.Name, specHash, StageRender, err)
	}

	f.cache.Store(spec.Name, specHash, stageRoot)
	if err := f.activate(ctx, callerID, sessionID, spec.Name, specHash, stageRoot); err != nil {
		return f.fail(spec.Name, specHash, StagePublish, err)
	}

	return Result{DashboardName: spec.Name, SpecHash: specHash, Stage: StageActive}
}

// activate performs the blue/green pointer swap: emit the swap event, flip
// the in-process active-version map, then emit the active event — in that
// order, so an observer reading the event log never sees "active" without
// a preceding "swapped".
func (f *Factory) activate(ctx context.Context, callerID, sessionID, name, specHash, stageVersion string) error {
	observability.TagDashboardSpan(ctx, name, specHash, string(StagePublish))
	f.emit(sessionID, "dashboard.blue_green.swapped", name, map[string]interface{}{"spec_hash": specHash})

	f.activeMu.Lock()
	f.active[name] = activeVersion{specHash: specHash, stageVersion: stageVersion}
	f.activeMu.Unlock()

	observability.TagDashboardSpan(ctx, name, specHash, string(StageActive))
	f.emit(sessionID, "dashboard.version.active", name, map[string]interface{}{"spec_hash": specHash})
	return nil
}

// Rollback makes targetSpecHash the active version of a dashboard name
// again, if the publish cache still holds an artifact for that hash.
func (f *Factory) Rollback(ctx context.Context, sessionID, name, targetSpecHash string) error {
	cached, ok := f.cache.Lookup(name, targetSpecHash)
	if !ok {
		return fmt.Errorf("dashboard: no cached artifact for %s@%s to roll back to", name, targetSpecHash)
	}
	if err := f.activate(ctx, "", sessionID, name, targetSpecHash, cached.StageVersion); err != nil {
		return err
	}
	f.emit(sessionID, "dashboard.rollback.executed", name, map[string]interface{}{"spec_hash": targetSpecHash})
	return nil
}

// ActiveSpecHash returns the spec hash currently serving traffic for name.
func (f *Factory) ActiveSpecHash(name string) (string, bool) {
	f.activeMu.RLock()
	defer f.activeMu.RUnlock()
	v, ok := f.active[name]
	return v.specHash, ok
}

func (f *Factory) validate(spec Spec) error {
	if spec.Name == "" {
		return fmt.Errorf("dashboard: name is required")
	}
	if len(spec.Panels) == 0 {
		return fmt.Errorf("dashboard: at least one panel is required")
	}
	if _, err := ResolveCron(spec.Freshness); err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, p := range spec.Panels {
		if p.ID == "" {
			return fmt.Errorf("dashboard: panel missing id")
		}
		if seen[p.ID] {
			return fmt.Errorf("dashboard: duplicate panel id %q", p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

// preflight pings the engine so a dead warehouse fails fast before any
// stage write happens, rather than partway through materialize.
func (f *Factory) preflight(ctx context.Context, spec Spec) error {
	return f.adapter.Ping(ctx)
}

func (f *Factory) fail(name, specHash string, stage Stage, err error) Result {
	f.logger.Warn().Err(err).Str("dashboard", name).Str("stage", string(stage)).Msg("dashboard creation failed, falling back")
	return Result{DashboardName: name, SpecHash: specHash, Stage: StageFallback, Err: err}
}

func (f *Factory) emit(sessionID, action, dashboardName string, attrs map[string]interface{}) {
	if f.events == nil {
		return
	}
	if attrs == nil {
		attrs = map[string]interface{}{}
	}
	_ = f.events.Emit(eventlog.Event{
		Action:    action,
		SessionID: sessionID,
		Object:    &eventlog.ObjectRef{Type: "dashboard", ID: dashboardName},
		Source:    eventlog.SourceSystem,
		Attributes: attrs,
	})
}

func sanitizeAppName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
