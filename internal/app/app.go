// Package app wires all realm-runtime subsystems into a running
// application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the main processing loop, and Shutdown tears
// everything down in order.
//
// For testing, inject mock or alternative implementations via functional
// options (WithCache, WithCoordinator, ...). When an option is not
// provided, New creates a real implementation from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/openworld-client/realm-runtime/internal/avatar"
	"github.com/openworld-client/realm-runtime/internal/comms"
	"github.com/openworld-client/realm-runtime/internal/comms/ws"
	"github.com/openworld-client/realm-runtime/internal/config"
	"github.com/openworld-client/realm-runtime/internal/content"
	"github.com/openworld-client/realm-runtime/internal/health"
	"github.com/openworld-client/realm-runtime/internal/interaction"
	"github.com/openworld-client/realm-runtime/internal/loading"
	"github.com/openworld-client/realm-runtime/internal/observe"
	"github.com/openworld-client/realm-runtime/internal/realm"
	"github.com/openworld-client/realm-runtime/internal/resilience"
	"github.com/openworld-client/realm-runtime/internal/scene"
	"github.com/openworld-client/realm-runtime/internal/types"
)

// defaultSceneLoadDeadline is the per-scene fetch/spawn/asset-load deadline
// a loading session enforces before marking a scene as timed out (spec
// §4.G).
const defaultSceneLoadDeadline = 30 * time.Second

// frameInterval paces the orchestrator's main tick loop: one RunFrame call
// per scene-runtime frame budget (spec §4.C's 8333us @ 60fps).
var frameInterval = time.Duration(scene.MaxTickUs) * time.Microsecond

// reconcileInterval is how often the scene set is compared against the
// coordinator's loadable/keep-alive sets to spawn or kill scenes. This runs
// far less often than a tick: spawning a sandbox is comparatively
// expensive, and the coordinator's own derived sets only change when a
// fetch resolves or the player moves.
const reconcileInterval = 500 * time.Millisecond

// realmSwitchQueueDepth bounds how many change_realm requests can be
// pending before new ones are dropped; a scene has no business queuing more
// than one realm switch at a time.
const realmSwitchQueueDepth = 1

// SandboxFactory constructs the per-scene execution boundary for a content
// hash. The scripting VM itself is out of this module's scope (spec
// Non-goals); production wiring supplies a factory that spawns the real
// runtime, and tests supply one backed by scene/mock.Sandbox.
type SandboxFactory func(ctx context.Context, hash types.Hash) (scene.Sandbox, error)

func errSandboxFactory(ctx context.Context, hash types.Hash) (scene.Sandbox, error) {
	return nil, fmt.Errorf("app: no sandbox factory configured, cannot spawn scene %s", hash)
}

// App owns all subsystem lifetimes and orchestrates the realm runtime
// client: content cache, scene entity coordinator, scene orchestrator,
// comms fabric, avatar projector, and the diagnostics HTTP server.
type App struct {
	cfg *config.Config

	downloader content.Downloader
	cache      *content.Cache
	optimised  *content.OptimisedCache

	mu          sync.RWMutex
	coordinator *realm.Coordinator

	dispatcher   *scene.ToolDispatcher
	orchestrator *scene.Orchestrator
	registry     *sceneHost

	projector             *avatar.Projector
	interactionDispatcher *interaction.Dispatcher
	tracker               *loading.Tracker
	realmSession          *RealmSession

	commsManager *comms.Manager

	metrics       *observe.Metrics
	health        *health.Handler
	httpServer    *http.Server
	otelShutdown  func(context.Context) error
	configWatcher *config.Watcher

	sandboxFactory      SandboxFactory
	realmSwitchRequests chan string

	watchConfigPath string
	prevLiveScenes  int64
	sceneIDSeq      uint64

	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles
// or override a default wiring decision.
type Option func(*App)

// WithDownloader injects a content.Downloader instead of creating an
// HTTPDownloader from config.
func WithDownloader(d content.Downloader) Option {
	return func(a *App) { a.downloader = d }
}

// WithCache injects a content cache instead of creating one from config.
func WithCache(c *content.Cache) Option {
	return func(a *App) { a.cache = c }
}

// WithCoordinator injects a scene entity coordinator instead of creating
// one from config.
func WithCoordinator(c *realm.Coordinator) Option {
	return func(a *App) { a.coordinator = c }
}

// WithCommsManager injects a comms manager instead of creating one from
// config.
func WithCommsManager(m *comms.Manager) Option {
	return func(a *App) { a.commsManager = m }
}

// WithMetrics injects a Metrics instance instead of using
// observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithSandboxFactory supplies the per-scene execution boundary. Required in
// production; New defaults to a factory that always errors, so an
// unconfigured App degrades to "coordinator runs, nothing ever spawns"
// instead of panicking.
func WithSandboxFactory(f SandboxFactory) Option {
	return func(a *App) { a.sandboxFactory = f }
}

// WithConfigWatcher starts a config.Watcher against path, reacting to realm
// changes by queuing a realm switch and to log-level changes by logging
// them; the running logger's level is not changed. Omit this option to run
// with a static, one-shot config.
func WithConfigWatcher(path string) Option {
	return func(a *App) { a.watchConfigPath = path }
}

// New creates an App by wiring all subsystems together. Use Option
// functions to inject test doubles for any subsystem; when omitted, New
// builds the real implementation from cfg.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:                 cfg,
		realmSwitchRequests: make(chan string, realmSwitchQueueDepth),
		sandboxFactory:      errSandboxFactory,
	}
	for _, o := range opts {
		o(a)
	}

	a.initContent()

	if err := a.initRealm(); err != nil {
		return nil, fmt.Errorf("app: init realm coordinator: %w", err)
	}

	a.initScene()

	a.projector = avatar.NewProjector(a.registry)
	a.interactionDispatcher = interaction.NewDispatcher(nil)
	a.tracker = loading.NewTracker(a.onLoadingEvent)

	if err := a.initComms(); err != nil {
		return nil, fmt.Errorf("app: init comms: %w", err)
	}

	a.realmSession = NewRealmSession(a.commsManager, a.tracker, a.coordinator)

	if err := a.initObservability(ctx); err != nil {
		return nil, fmt.Errorf("app: init observability: %w", err)
	}

	if a.watchConfigPath != "" {
		watcher, err := config.NewWatcher(a.watchConfigPath, a.onConfigChange)
		if err != nil {
			return nil, fmt.Errorf("app: init config watcher: %w", err)
		}
		a.configWatcher = watcher
	}

	return a, nil
}

// initContent wires the content-addressed cache and its downloader unless
// both were injected.
func (a *App) initContent() {
	if a.downloader == nil {
		a.downloader = content.NewHTTPDownloader(content.DefaultHTTPGetter{}, a.cfg.Content.CacheDir)
	}
	if a.cache == nil {
		breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "content-cache"})
		var cacheOpts []content.CacheOption
		if a.cfg.Content.MaxCacheBytes > 0 {
			cacheOpts = append(cacheOpts, content.WithMaxCacheBytes(a.cfg.Content.MaxCacheBytes))
		}
		a.cache = content.NewCache(a.downloader, breaker, cacheOpts...)
	}
	a.closers = append(a.closers, func() error { a.cache.Stop(); return nil })
	a.optimised = content.NewOptimisedCache(a.cache)
}

// initRealm wires the scene entity coordinator against the realm's
// entities/active and fixed-entity HTTP endpoints.
func (a *App) initRealm() error {
	if a.coordinator != nil {
		return nil
	}
	if a.cfg.Realm.ContentBaseURL == "" {
		return fmt.Errorf("realm.content_base_url is required")
	}

	fetcher := realm.NewHTTPFetcher(a.cfg.Realm.ContentBaseURL, nil)
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "realm-entities"})
	coordinator := realm.NewCoordinator(fetcher, fetcher, breaker)
	coordinator.Configure(realmConfigFrom(a.cfg.Realm))
	a.coordinator = coordinator
	return nil
}

func realmConfigFrom(cfg config.RealmConfig) realm.Config {
	mode := realm.CityMode
	if cfg.Mode == config.RealmModeFloatingIslands {
		mode = realm.FloatingIslandsMode
	}
	radius := cfg.Radius
	if radius <= 0 {
		radius = 4
	}
	return realm.Config{
		Mode:       mode,
		Radius:     radius,
		FixedURNs:  hashesFrom(cfg.FixedURNs),
		GlobalURNs: hashesFrom(cfg.GlobalURNs),
	}
}

func hashesFrom(urns []string) []types.Hash {
	if len(urns) == 0 {
		return nil
	}
	out := make([]types.Hash, len(urns))
	for i, u := range urns {
		out[i] = types.Hash(u)
	}
	return out
}

// initScene wires the tool dispatcher, the host-side scene registry, and
// the orchestrator.
func (a *App) initScene() {
	a.dispatcher = scene.NewToolDispatcher()
	a.registerSceneRPCs(a.dispatcher)
	a.registry = newSceneHost(nil, a.coordinator, hashesFrom(a.cfg.Realm.GlobalURNs))
	a.orchestrator = scene.NewOrchestrator(a.dispatcher)
	a.registry.orc = a.orchestrator
}

// nextSceneID allocates a process-local scene id. Scene ids are not
// persisted or compared across runs, so a simple increasing counter is
// sufficient.
func (a *App) nextSceneID() types.SceneId {
	a.sceneIDSeq++
	return types.SceneId(a.sceneIDSeq)
}

// initComms wires the ephemeral signer, gatekeeper, dual-transport fallback
// dialer, and message processor (spec §4.E).
func (a *App) initComms() error {
	if a.commsManager != nil {
		return nil
	}

	signer, err := comms.NewEphemeralSigner()
	if err != nil {
		return fmt.Errorf("generate ephemeral signer: %w", err)
	}

	var gate *comms.Gatekeeper
	if a.cfg.Comms.GatekeeperURL != "" {
		gate = comms.NewGatekeeper(a.cfg.Comms.GatekeeperURL, signer, nil)
	}

	dialer := comms.NewFallbackDialer("coder", ws.CoderDialer{}, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{Name: "comms-coder"},
	})
	dialer.AddFallback("gorilla", ws.GorillaDialer{})

	processor := comms.NewMessageProcessor(a.projector, a.registry)
	a.commsManager = comms.NewManager(dialer, processor, gate)
	return nil
}

// initObservability brings up the OpenTelemetry providers, the metrics
// instrument set, the health handler, and the diagnostics HTTP server.
func (a *App) initObservability(ctx context.Context) error {
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "realm-runtime",
	})
	if err != nil {
		return fmt.Errorf("init otel providers: %w", err)
	}
	a.otelShutdown = shutdown
	a.closers = append(a.closers, func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.otelShutdown(shutdownCtx)
	})

	if a.metrics == nil {
		m, err := observe.NewMetrics(otel.GetMeterProvider())
		if err != nil {
			return fmt.Errorf("init metrics: %w", err)
		}
		a.metrics = m
	}

	a.health = health.New(
		health.Checker{Name: "content_cache", Check: a.checkContentCache},
	)

	if a.cfg.Server.ListenAddr != "" {
		mux := http.NewServeMux()
		a.health.Register(mux)
		mux.Handle("GET /metrics", promhttp.Handler())
		a.httpServer = &http.Server{Addr: a.cfg.Server.ListenAddr, Handler: mux}
	}

	return nil
}

// checkContentCache reports the content cache as healthy: it is always
// constructed successfully in New, so this just confirms the App reached a
// ready state. A future revision can wire this to a disk-space probe on
// cfg.Content.CacheDir.
func (a *App) checkContentCache(_ context.Context) error {
	if a.cache == nil {
		return fmt.Errorf("content cache not initialised")
	}
	return nil
}

// onLoadingEvent logs loading-session phase transitions (spec §4.G).
func (a *App) onLoadingEvent(ev loading.Event) {
	slog.Info("loading session event",
		"kind", ev.Kind,
		"session_id", ev.SessionID,
		"phase", ev.Phase,
	)
}

// currentCoordinator returns the active realm coordinator, safe to call
// concurrently with a realm switch swapping it out.
func (a *App) currentCoordinator() *realm.Coordinator {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.coordinator
}

// ─── Accessors ───────────────────────────────────────────────────────────

// Coordinator returns the active scene entity coordinator.
func (a *App) Coordinator() *realm.Coordinator { return a.currentCoordinator() }

// Orchestrator returns the scene runtime orchestrator.
func (a *App) Orchestrator() *scene.Orchestrator { return a.orchestrator }

// CommsManager returns the comms fabric manager.
func (a *App) CommsManager() *comms.Manager { return a.commsManager }

// Projector returns the avatar scene projector.
func (a *App) Projector() *avatar.Projector { return a.projector }

// Tracker returns the loading session tracker.
func (a *App) Tracker() *loading.Tracker { return a.tracker }

// RealmSession returns the realm connection session.
func (a *App) RealmSession() *RealmSession { return a.realmSession }

// Cache returns the content-addressed cache.
func (a *App) Cache() *content.Cache { return a.cache }

// ─── Run ─────────────────────────────────────────────────────────────────

// Run starts the main processing loop and blocks until ctx is cancelled:
// it ticks the scene orchestrator at the frame budget, periodically
// reconciles the live scene set against the coordinator's derived sets,
// drains queued realm switches, and serves the diagnostics HTTP server.
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.cache.RunEvictionLoop(ctx)
	}()

	if a.httpServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			slog.Info("diagnostics server listening", "addr", a.httpServer.Addr)
			if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("diagnostics server error", "err", err)
			}
		}()
		a.closers = append(a.closers, func() error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.httpServer.Shutdown(shutdownCtx)
		})
	}

	frameTicker := time.NewTicker(frameInterval)
	defer frameTicker.Stop()
	reconcileTicker := time.NewTicker(reconcileInterval)
	defer reconcileTicker.Stop()

	slog.Info("app running", "realm", a.cfg.Realm.Name, "mode", a.cfg.Realm.Mode)

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()

		case realmURL := <-a.realmSwitchRequests:
			a.performRealmSwitch(ctx, realmURL)

		case <-reconcileTicker.C:
			a.reconcileScenes(ctx)

		case <-frameTicker.C:
			a.orchestrator.RunFrame(ctx, hostComponents(a.registry))
		}
	}
}

// reconcileScenes spawns scenes newly reported loadable or keep-alive and
// kills scenes no longer in either set (spec §4.B/§4.C's coordinator-driven
// lifecycle).
func (a *App) reconcileScenes(ctx context.Context) {
	coordinator := a.currentCoordinator()
	loadable, keepAlive, _, _ := coordinator.Snapshot()

	wanted := make(map[types.Hash]struct{}, len(loadable)+len(keepAlive))
	for _, h := range loadable {
		wanted[h] = struct{}{}
	}
	for _, h := range keepAlive {
		wanted[h] = struct{}{}
	}

	live := make(map[types.Hash]types.SceneId)
	for _, id := range a.orchestrator.SceneIDs() {
		if s, ok := a.orchestrator.Scene(id); ok {
			live[s.Hash] = id
		}
	}

	for hash := range wanted {
		if _, alreadyLive := live[hash]; alreadyLive {
			continue
		}
		a.spawnScene(ctx, hash)
	}

	for hash, id := range live {
		if _, stillWanted := wanted[hash]; !stillWanted {
			a.orchestrator.KillScene(id)
		}
	}

	current := int64(a.orchestrator.LiveSceneCount())
	a.metrics.LiveScenes.Add(ctx, current-a.prevLiveScenes)
	a.prevLiveScenes = current
}

func (a *App) spawnScene(ctx context.Context, hash types.Hash) {
	sandbox, err := a.sandboxFactory(ctx, hash)
	if err != nil {
		slog.Warn("failed to spawn scene sandbox", "hash", hash, "err", err)
		a.tracker.MarkSpawnError(hash, err)
		return
	}
	id := a.nextSceneID()
	a.orchestrator.Spawn(id, hash, sandbox)
	a.tracker.MarkSpawned(hash)
	slog.Info("scene spawned", "scene_id", id, "hash", hash)
}

// performRealmSwitch rebuilds the coordinator against a new content base
// URL, kills every live scene, and starts a fresh loading session, per the
// async realm-switch plan driven by a sandbox's change_realm RPC call or a
// config hot-reload.
func (a *App) performRealmSwitch(_ context.Context, realmURL string) {
	slog.Info("performing realm switch", "realm_url", realmURL)

	fetcher := realm.NewHTTPFetcher(realmURL, nil)
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "realm-entities"})
	coordinator := realm.NewCoordinator(fetcher, fetcher, breaker)
	coordinator.Configure(realmConfigFrom(a.cfg.Realm))

	a.mu.Lock()
	a.coordinator = coordinator
	a.registry.coord = coordinator
	a.mu.Unlock()
	a.realmSession.SetCoordinator(coordinator)

	for _, id := range a.orchestrator.SceneIDs() {
		a.orchestrator.KillScene(id)
	}

	a.tracker.StartSession(nil, 0, defaultSceneLoadDeadline)
}

// onConfigChange reacts to a hot-reloaded config: a realm change is routed
// through the same async switch path an RPC-driven change_realm uses; a
// log-level change is logged, and the running logger's level is not changed.
func (a *App) onConfigChange(previous, updated *config.Config) {
	diff := config.DiffConfigs(previous, updated)
	a.cfg = updated

	if diff.RealmChanged {
		select {
		case a.realmSwitchRequests <- updated.Realm.ContentBaseURL:
		default:
			slog.Warn("config reload: realm switch already pending, dropping reload-triggered switch")
		}
	}
	if diff.LogLevelChanged {
		slog.Info("config reload: log level changed", "level", diff.NewLogLevel)
	}
}

// ─── Shutdown ──────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.configWatcher != nil {
			a.configWatcher.Stop()
		}
		if a.commsManager != nil {
			a.commsManager.DisconnectAll()
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
