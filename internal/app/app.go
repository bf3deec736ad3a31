// Package app wires all Temple Guardian subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context ends, and Shutdown tears
// everything down in order.
//
// For testing, inject implementations via functional options
// (WithDirectory, WithChatStore, WithLLM, etc.). When an option is not
// provided, New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/templeguardian/internal/api"
	"github.com/MrWong99/templeguardian/internal/chat"
	"github.com/MrWong99/templeguardian/internal/config"
	"github.com/MrWong99/templeguardian/internal/health"
	"github.com/MrWong99/templeguardian/internal/observe"
	"github.com/MrWong99/templeguardian/internal/player"
	"github.com/MrWong99/templeguardian/internal/resilience"
	"github.com/MrWong99/templeguardian/internal/temple"
	"github.com/MrWong99/templeguardian/pkg/audio"
	"github.com/MrWong99/templeguardian/pkg/chant"
	"github.com/MrWong99/templeguardian/pkg/provider/llm"
)

// App owns all subsystem lifetimes of the Temple Guardian server.
type App struct {
	cfg     *config.Config
	llm     llm.Provider
	metrics *observe.Metrics
	level   *slog.LevelVar

	pool      *pgxpool.Pool
	temples   temple.Directory
	chatStore chat.Store
	chat      *chat.Service
	engine    *chant.Engine
	players   *player.Manager
	api       *api.Server
	srv       *http.Server

	// cfgMu serialises ApplyConfig.
	cfgMu sync.Mutex

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithDirectory injects a temple directory instead of building one from config.
func WithDirectory(d temple.Directory) Option {
	return func(a *App) { a.temples = d }
}

// WithChatStore injects a conversation store instead of building one from config.
func WithChatStore(s chat.Store) Option {
	return func(a *App) { a.chatStore = s }
}

// WithLLM sets the chat fallback provider. Without it, chat answers from
// keyword rules and apologises for everything else.
func WithLLM(p llm.Provider) Option {
	return func(a *App) { a.llm = p }
}

// WithMetrics sets the instruments used by every subsystem. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets [App.ApplyConfig] change the log level of the logger
// built on v.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// New creates an App by wiring all subsystems together. It connects to
// PostgreSQL when a DSN is configured, loads the temple seed and chat rules,
// and builds the chant engine and player manager.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// Closers registered so far must run if a later step fails.
	fail := func(step string, err error) (*App, error) {
		_ = a.Shutdown(context.Background())
		return nil, fmt.Errorf("app: init %s: %w", step, err)
	}

	if err := a.initDatabase(ctx); err != nil {
		return fail("database", err)
	}
	if err := a.initTemples(ctx); err != nil {
		return fail("temples", err)
	}
	if err := a.initChat(ctx); err != nil {
		return fail("chat", err)
	}
	a.initPlayers()

	checks := []health.Checker{{
		Name: "temples",
		Check: func(ctx context.Context) error {
			_, err := a.temples.States(ctx)
			return err
		},
	}}
	if a.pool != nil {
		checks = append(checks, health.Ping("database", a.pool))
	}
	a.api = api.New(a.temples, a.chat, a.players,
		api.WithMetrics(a.metrics),
		api.WithHealth(health.New(checks...)),
	)
	return a, nil
}

// initDatabase opens the pgx pool when a DSN is configured and something
// still needs it.
func (a *App) initDatabase(ctx context.Context) error {
	dsn := a.cfg.Database.PostgresDSN
	if dsn == "" || (a.temples != nil && a.chatStore != nil) {
		return nil
	}
	pc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("parse dsn: %w", err)
	}
	if n := a.cfg.Database.MaxConns; n > 0 {
		pc.MaxConns = n
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	a.closers = append(a.closers, func() error {
		pool.Close()
		return nil
	})
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	a.pool = pool
	slog.Info("connected to postgres", "max_conns", pc.MaxConns)
	return nil
}

// initTemples builds the directory: PostgreSQL with the seed upserted when
// a pool exists, otherwise an in-memory store over the seed file.
func (a *App) initTemples(ctx context.Context) error {
	if a.temples != nil {
		return nil
	}

	var seed []temple.Temple
	if path := a.cfg.Temples.SeedFile; path != "" {
		var err error
		if seed, err = temple.LoadSeed(path); err != nil {
			return err
		}
	}

	if a.pool == nil {
		store, err := temple.NewMemoryStore(seed)
		if err != nil {
			return err
		}
		a.temples = store
		slog.Info("temple directory loaded", "backend", "memory", "temples", len(seed))
		return nil
	}

	store := temple.NewPostgresStore(a.pool)
	if a.cfg.Database.Migrate {
		if err := store.Migrate(ctx); err != nil {
			return err
		}
	}
	if len(seed) > 0 {
		if err := store.Upsert(ctx, seed...); err != nil {
			return err
		}
	}
	a.temples = store
	slog.Info("temple directory loaded", "backend", "postgres", "seeded", len(seed))
	return nil
}

func (a *App) initChat(ctx context.Context) error {
	if a.chatStore == nil {
		if a.pool != nil {
			store := chat.NewPostgresStore(a.pool)
			if a.cfg.Database.Migrate {
				if err := store.Migrate(ctx); err != nil {
					return err
				}
			}
			a.chatStore = store
		} else {
			a.chatStore = chat.NewMemoryStore()
		}
	}

	rules, err := loadRules(a.cfg.Chat)
	if err != nil {
		return err
	}
	opts := []chat.Option{
		chat.WithStore(a.chatStore),
		chat.WithRules(rules),
		chat.WithTuning(tuningOf(a.cfg.Chat)),
		chat.WithMetrics(a.metrics),
	}
	if a.llm != nil {
		opts = append(opts, chat.WithLLM(a.llm))
	}
	a.chat = chat.NewService(opts...)
	return nil
}

func (a *App) initPlayers() {
	ch := a.cfg.Chanting
	a.engine = chant.NewEngine(
		chant.WithSampleRate(ch.SampleRate),
		chant.WithContextOptions(audio.WithFrameDuration(ch.FrameDuration)),
	)
	a.players = player.NewManager(player.Config{
		Engine:      a.engine,
		Catalog:     ch.Catalog(),
		Volume:      ch.Volume(),
		MaxPlayers:  ch.MaxPlayers,
		IdleTimeout: ch.IdleTimeout,
		Metrics:     a.metrics,
	})
	// Players stop their voices before the shared context goes away.
	a.closers = append(a.closers, a.players.Close, a.engine.Close)
}

// Handler returns the HTTP handler serving the whole API.
func (a *App) Handler() http.Handler { return a.api.Handler() }

// Run serves HTTP on the configured address and reaps idle players until
// ctx is cancelled. It returns nil after a clean stop.
func (a *App) Run(ctx context.Context) error {
	a.cfgMu.Lock()
	server := a.cfg.Server
	a.cfgMu.Unlock()

	a.srv = &http.Server{
		Addr:              server.ListenAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Audio and event streams only end when their player closes.
	a.srv.RegisterOnShutdown(func() {
		if err := a.players.Close(); err != nil {
			slog.Warn("app: close players", "err", err)
		}
	})

	timeout := server.ShutdownTimeout
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if tls := server.TLS; tls != nil {
			slog.Info("listening", "addr", a.srv.Addr, "tls", true)
			err = a.srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			slog.Info("listening", "addr", a.srv.Addr, "tls", false)
			err = a.srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error {
		return a.players.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), timeout)
		defer cancel()
		return a.srv.Shutdown(sctx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ApplyConfig applies the hot-reloadable parts of next: the log level and
// chat tuning and rules. Changes to any other section are logged and need a
// restart. A rules file that fails to load keeps the current rules.
func (a *App) ApplyConfig(next *config.Config) config.ConfigDiff {
	a.cfgMu.Lock()
	defer a.cfgMu.Unlock()

	d := config.Diff(a.cfg, next)
	if d.Empty() {
		return d
	}

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.ChatChanged {
		a.chat.SetTuning(tuningOf(next.Chat))
		if rules, err := loadRules(next.Chat); err != nil {
			slog.Warn("keeping current chat rules", "err", err)
		} else {
			a.chat.SetRules(rules)
		}
		slog.Info("chat settings reloaded")
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config sections changed that need a restart", "sections", d.RestartRequired)
	}

	// Only the applied sections move forward; restart-only sections keep
	// diffing against what is actually running.
	applied := *a.cfg
	applied.Server.LogLevel = next.Server.LogLevel
	applied.Chat = next.Chat
	a.cfg = &applied
	return d
}

// Shutdown tears down all subsystems in init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// BuildLLM creates the configured primary LLM and its fallbacks through reg
// and chains them behind per-backend circuit breakers. It returns nil when
// no LLM is configured.
func BuildLLM(cfg *config.Config, reg *config.Registry) (llm.Provider, error) {
	primary := cfg.Providers.LLM
	if primary.Name == "" {
		return nil, nil
	}
	p, err := reg.CreateLLM(primary)
	if err != nil {
		return nil, fmt.Errorf("app: create llm %q: %w", primary.Name, err)
	}

	cb := cfg.Chat.CircuitBreaker
	fo := resilience.NewLLMFailover(p, primary.Name, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  cb.MaxFailures,
			ResetTimeout: cb.ResetTimeout,
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Warn("llm circuit breaker", "provider", name, "from", from, "to", to)
			},
		},
	})
	for i, entry := range cfg.Providers.LLMFallbacks {
		fb, err := reg.CreateLLM(entry)
		if err != nil {
			return nil, fmt.Errorf("app: create llm fallback %d %q: %w", i, entry.Name, err)
		}
		fo.AddFallback(entry.Name, fb)
	}
	slog.Info("llm configured", "chain", fo.Names())
	return fo, nil
}

// SlogLevel maps a config level to its slog equivalent.
func SlogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func tuningOf(c config.ChatConfig) chat.Tuning {
	t := chat.DefaultTuning
	if c.MaxTokens > 0 {
		t.MaxTokens = c.MaxTokens
	}
	if c.Temperature != nil {
		t.Temperature = *c.Temperature
	}
	if c.Timeout > 0 {
		t.Timeout = c.Timeout
	}
	return t
}

func loadRules(c config.ChatConfig) (chat.Rules, error) {
	if c.RulesFile == "" {
		return chat.DefaultRules(), nil
	}
	return chat.LoadRules(c.RulesFile)
}
