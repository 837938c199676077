// Package app wires every voxengine subsystem into a running process.
//
// App owns the full lifecycle: New connects all subsystems from a loaded
// [config.Config], Run executes the concurrent listener/worker loops, and
// Shutdown tears everything down in reverse-init order. The shape mirrors
// internal/app.App: a struct of subsystem handles, a closers slice appended
// to as each subsystem is brought up, and a sync.Once-guarded Shutdown that
// drains that slice with a deadline.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/corvidlabs/voxcore/internal/ari"
	"github.com/corvidlabs/voxcore/internal/config"
	"github.com/corvidlabs/voxcore/internal/dialer"
	dialerstore "github.com/corvidlabs/voxcore/internal/dialer/store"
	"github.com/corvidlabs/voxcore/internal/engine"
	"github.com/corvidlabs/voxcore/internal/health"
	"github.com/corvidlabs/voxcore/internal/history"
	"github.com/corvidlabs/voxcore/internal/media/audiosocket"
	"github.com/corvidlabs/voxcore/internal/observe"
	"github.com/corvidlabs/voxcore/internal/session"
)

// appName is the Stasis application every channel this process drives is
// routed into. It must match the PBX dialplan's Stasis() invocation.
const appName = "voxengine"

// Option is a functional option for New. Tests use these to inject doubles
// instead of the real Postgres/SQLite-backed subsystems.
type Option func(*App)

// WithHistoryStore injects a call-history recorder instead of opening the
// configured SQLite file.
func WithHistoryStore(s *history.Store) Option {
	return func(a *App) { a.history = s }
}

// WithDialerStore injects a dialer lead/campaign store instead of dialing
// Postgres from config.
func WithDialerStore(s *dialerstore.Store) Option {
	return func(a *App) { a.dialerStore = s }
}

// App owns every subsystem's lifetime and exposes the admin HTTP surface.
type App struct {
	cfgSource func() *config.Config
	watcher   *config.Watcher

	ariClient     *ari.Client
	audioListener *audiosocket.Listener
	metrics       *observe.Metrics
	otelShutdown  func(context.Context) error

	history     *history.Store
	retention   *history.RetentionSweeper
	dialerStore *dialerstore.Store
	dialerPool  *pgxpool.Pool

	sessions *session.Registry
	engine   *engine.CallEngine
	dialer   *dialer.Worker

	adminServer *http.Server

	closers  []func() error
	stopOnce sync.Once
}

// New wires every subsystem together from cfg and returns a runnable App.
// Initialisation happens synchronously, one subsystem at a time, so a
// failure midway can unwind the subsystems already opened by running their
// closers before returning the error.
func New(ctx context.Context, watcher *config.Watcher, opts ...Option) (*App, error) {
	a := &App{
		cfgSource: watcher.Current,
		watcher:   watcher,
		sessions:  session.NewRegistry(),
	}
	for _, o := range opts {
		o(a)
	}

	cfg := watcher.Current()

	if err := a.initObservability(ctx, cfg); err != nil {
		return nil, a.unwind(fmt.Errorf("app: init observability: %w", err))
	}
	if err := a.initHistory(cfg); err != nil {
		return nil, a.unwind(fmt.Errorf("app: init history: %w", err))
	}
	if err := a.initDialerStore(ctx, cfg); err != nil {
		return nil, a.unwind(fmt.Errorf("app: init dialer store: %w", err))
	}
	if err := a.initMedia(cfg); err != nil {
		return nil, a.unwind(fmt.Errorf("app: init media: %w", err))
	}
	a.initEngineAndDialer(cfg)
	a.initAdminServer(cfg)

	return a, nil
}

// unwind runs closers already registered before returning err from New, so a
// partially-initialised App never leaks the subsystems it did manage to open.
func (a *App) unwind(err error) error {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if cerr := a.closers[i](); cerr != nil {
			slog.Warn("unwind: closer error", "err", cerr)
		}
	}
	return err
}

func (a *App) initObservability(ctx context.Context, cfg *config.Config) error {
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voxengine",
		ServiceVersion: "dev",
	})
	if err != nil {
		return err
	}
	a.otelShutdown = shutdown
	a.closers = append(a.closers, func() error { return a.otelShutdown(context.Background()) })

	m, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return err
	}
	a.metrics = m

	a.ariClient = ari.NewClient(cfg.Server.AriURL, cfg.Server.AriUsername, cfg.Server.AriPassword, appName)
	return nil
}

func (a *App) initHistory(cfg *config.Config) error {
	if a.history == nil {
		s, err := history.Open(cfg.History)
		if err != nil {
			return err
		}
		a.history = s
	}
	a.closers = append(a.closers, a.history.Close)

	a.retention = history.NewRetentionSweeper(a.history, cfg.History)
	a.closers = append(a.closers, func() error { a.retention.Stop(); return nil })
	return nil
}

func (a *App) initDialerStore(ctx context.Context, cfg *config.Config) error {
	if a.dialerStore != nil {
		return nil
	}
	if cfg.Server.DialerDSN == "" {
		slog.Warn("server.dialer_dsn not set, outbound dialer disabled")
		return nil
	}

	pool, err := pgxpool.New(ctx, cfg.Server.DialerDSN)
	if err != nil {
		return fmt.Errorf("connect dialer database: %w", err)
	}
	a.dialerPool = pool
	a.closers = append(a.closers, func() error { pool.Close(); return nil })

	store := dialerstore.New(dialerstore.NewPoolDB(pool))
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate dialer database: %w", err)
	}
	a.dialerStore = store
	return nil
}

func (a *App) initMedia(cfg *config.Config) error {
	listener, err := audiosocket.Listen(cfg.Server.MediaBindHost, func(ctx context.Context, sessionID uuid.UUID, conn *audiosocket.Conn) {
		a.engine.AudioSocketHandler(ctx, sessionID, conn)
	})
	if err != nil {
		return fmt.Errorf("listen audiosocket on %q: %w", cfg.Server.MediaBindHost, err)
	}
	a.audioListener = listener
	a.closers = append(a.closers, listener.Close)
	return nil
}

func (a *App) initEngineAndDialer(cfg *config.Config) {
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	deps := engine.Deps{
		ConfigSource:  a.cfgSource,
		Providers:     reg,
		ARIClient:     a.ariClient,
		AppName:       appName,
		MediaHost:     cfg.Server.MediaBindHost,
		AudioListener: a.audioListener,
		Metrics:       a.metrics,
		Sessions:      a.sessions,
		Recorder:      a.history,
		HTTPClient:    &http.Client{Timeout: 10 * time.Second},
	}

	if a.dialerStore != nil {
		w := dialer.New(dialer.Deps{
			ConfigSource: a.cfgSource,
			Store:        a.dialerStore,
			ARIClient:    a.ariClient,
			Metrics:      a.metrics,
		})
		a.dialer = w
		deps.AMDRecorder = w
	}

	a.engine = engine.New(deps)
}

func (a *App) initAdminServer(cfg *config.Config) {
	mux := http.NewServeMux()

	checkers := []health.Checker{
		{Name: "history", Check: func(ctx context.Context) error { return a.history.Ping(ctx) }},
	}
	if a.dialerStore != nil {
		checkers = append(checkers, health.Checker{
			Name: "dialer_db",
			Check: func(ctx context.Context) error {
				return a.dialerPool.Ping(ctx)
			},
		})
	}
	healthHandler := health.New(checkers...)
	healthHandler.Register(mux)

	mux.Handle("GET /metrics", promhttp.Handler())

	a.registerAdminRoutes(mux)

	handler := observe.Middleware(a.metrics)(mux)
	a.adminServer = &http.Server{
		Addr:    cfg.Server.AdminBindAddr,
		Handler: handler,
	}
}

// Run starts every long-running subsystem and blocks until ctx is cancelled
// or one of them reports a terminal error.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 4)
	var wg sync.WaitGroup

	run := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("subsystem exited", "subsystem", name, "err", err)
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	run("engine", func() error { return a.engine.Serve(ctx) })
	run("audiosocket", func() error { return a.audioListener.Serve(ctx) })
	run("admin_http", func() error { return a.adminServer.ListenAndServe() })

	// http.Server.ListenAndServe only returns once Shutdown/Close is called
	// on it; it does not watch ctx itself like the other two loops do.
	go func() {
		<-ctx.Done()
		_ = a.adminServer.Shutdown(context.Background())
	}()

	if a.dialer != nil {
		run("dialer", func() error { return a.dialer.Run(ctx) })
	}
	if a.retention != nil {
		if err := a.retention.Start(ctx); err != nil {
			slog.Warn("retention sweeper failed to start", "err", err)
		}
	}

	slog.Info("voxengine running", "admin_addr", a.cfgSource().Server.AdminBindAddr)

	select {
	case <-ctx.Done():
		wg.Wait()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown tears down every subsystem in reverse-init order, respecting
// ctx's deadline. It is idempotent.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := a.adminServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("admin server shutdown error", "err", err)
		}

		a.watcher.Stop()

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
