// Package app wires all voice-notes subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP and drives the session loop, ApplyConfig
// hot-reloads what can change at runtime, and Shutdown tears everything
// down in order.
//
// For testing, inject doubles via functional options (WithBackend,
// WithCapturer, etc.). When an option is not provided, New creates real
// implementations from the config.
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

	"github.com/MrWong99/voicenotes/internal/assistant"
	"github.com/MrWong99/voicenotes/internal/capture"
	"github.com/MrWong99/voicenotes/internal/config"
	"github.com/MrWong99/voicenotes/internal/dictation"
	"github.com/MrWong99/voicenotes/internal/health"
	"github.com/MrWong99/voicenotes/internal/i18n"
	"github.com/MrWong99/voicenotes/internal/notestore"
	"github.com/MrWong99/voicenotes/internal/observe"
	"github.com/MrWong99/voicenotes/internal/pipeline"
	"github.com/MrWong99/voicenotes/internal/session"
	"github.com/MrWong99/voicenotes/internal/visualizer"
	"github.com/MrWong99/voicenotes/internal/web"
)

const (
	defaultCanvasWidth  = 320
	defaultCanvasHeight = 64
	shutdownGrace       = 10 * time.Second
)

// App owns all subsystem lifetimes of the voice-notes server.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics
	level     *slog.LevelVar
	promh     http.Handler

	// Subsystems, initialised in New and torn down in Shutdown.
	backend    notestore.Backend
	store      *notestore.Store
	capturer   session.Capturer
	vis        *visualizer.Visualizer
	pipeline   *pipeline.Pipeline
	controller *session.Controller
	assistant  *assistant.Assistant
	dictator   *dictation.Dictator
	hub        *web.Hub
	web        *web.Server
	server     *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithBackend injects a note backend instead of opening one from config.
func WithBackend(b notestore.Backend) Option {
	return func(a *App) { a.backend = b }
}

// WithCapturer injects a microphone recorder instead of the ffmpeg device.
func WithCapturer(c session.Capturer) Option {
	return func(a *App) { a.capturer = c }
}

// WithMetrics sets the metrics instruments. Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel lets ApplyConfig change the level of the default logger.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.promh = h }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers come
// from main.go via the config registry.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Audio == nil {
		return nil, errors.New("app: an audio llm provider is required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if providers.Chat == nil {
		providers.Chat, providers.ChatName = providers.Audio, providers.AudioName
	}

	cat, err := catalogFor(cfg.UI)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	// ── 1. Note store ───────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. Event hub ────────────────────────────────────────────────────
	a.hub = web.NewHub(
		web.WithHubMetrics(a.metrics),
		web.WithOriginPatterns(cfg.Server.AllowedHosts...),
	)
	a.closers = append(a.closers, func() error { a.hub.Close(); return nil })

	// ── 3. Visualizer + capture ─────────────────────────────────────────
	a.initCapture()

	// ── 4. Pipeline ─────────────────────────────────────────────────────
	a.pipeline, err = pipeline.New(providers.Audio, providers.Text, pipeline.Config{
		TargetLanguage: cfg.UI.TargetLanguage,
		Prompts:        cfg.Pipeline.Prompts,
	},
		pipeline.WithMetrics(a.metrics),
		pipeline.WithProviderNames(providers.AudioName, providers.TextName),
	)
	if err != nil {
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}

	// ── 5. Session controller ───────────────────────────────────────────
	a.controller, err = session.NewController(session.Config{
		Capture:    a.capturer,
		Pipeline:   a.pipeline,
		Store:      a.store,
		Visualizer: a.vis,
		Sink:       a.hub,
		Catalog:    cat,
		Metrics:    a.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("app: init session: %w", err)
	}

	// ── 6. Assistant ────────────────────────────────────────────────────
	a.assistant, err = assistant.New(assistant.Config{
		Provider:       providers.Chat,
		ProviderName:   providers.ChatName,
		SystemPrompt:   cfg.Assistant.SystemPrompt,
		TargetLanguage: cfg.UI.TargetLanguage,
		Catalog:        cat,
		HistoryTokens:  cfg.Assistant.HistoryTokens,
		Metrics:        a.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("app: init assistant: %w", err)
	}

	// ── 7. Dictation ────────────────────────────────────────────────────
	if providers.STT != nil {
		opts := []dictation.Option{
			dictation.WithProviderName(providers.STTName),
			dictation.WithMetrics(a.metrics),
		}
		if cfg.Dictation.Locale != "" {
			opts = append(opts, dictation.WithLocale(cfg.Dictation.Locale))
		}
		a.dictator = dictation.New(providers.STT, opts...)
	}

	// ── 8. HTTP surface ─────────────────────────────────────────────────
	checks := []health.Checker{
		{Name: "store", Check: a.store.Ping},
		{Name: "providers", Check: providers.circuits, Optional: true},
	}
	a.web, err = web.New(web.Config{
		Controller:     a.controller,
		Notes:          a.store,
		Assistant:      a.assistant,
		Dictator:       a.dictator,
		Visualizer:     a.vis,
		Hub:            a.hub,
		Health:         health.New(checks...),
		MetricsHandler: a.promh,
		AllowedHosts:   cfg.Server.AllowedHosts,
		Catalog:        cat,
		Metrics:        a.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("app: init web: %w", err)
	}
	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.web.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// catalogFor builds the status catalog for the UI locale and timezone.
func catalogFor(ui config.UIConfig) (*i18n.Catalog, error) {
	cat, err := i18n.New(i18n.Locale(ui.Locale))
	if err != nil {
		return nil, err
	}
	if ui.Timezone != "" {
		loc, err := time.LoadLocation(ui.Timezone)
		if err != nil {
			return nil, fmt.Errorf("timezone %q: %w", ui.Timezone, err)
		}
		cat = cat.WithLocation(loc)
	}
	return cat, nil
}

// initStore opens the configured backend unless one was injected, then loads
// the note history from it.
func (a *App) initStore(ctx context.Context) error {
	if a.backend == nil {
		b, err := a.openBackend(ctx)
		if err != nil {
			return err
		}
		a.backend = b
	}
	store, err := notestore.Open(ctx, a.backend)
	if err != nil {
		return err
	}
	a.store = store
	slog.Info("note history loaded", "backend", a.cfg.Store.Backend, "notes", store.Len())
	return nil
}

func (a *App) openBackend(ctx context.Context) (notestore.Backend, error) {
	sc := a.cfg.Store
	switch sc.Backend {
	case config.StoreFile:
		return notestore.NewFileBackend(sc.Path)
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, sc.DSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b := notestore.NewPostgresBackend(pool)
		if err := b.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		return b, nil
	default:
		b, err := notestore.OpenSQLite(ctx, sc.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, b.Close)
		return b, nil
	}
}

// initCapture creates the waveform visualizer and, unless one was injected,
// the ffmpeg recorder tapped by it.
func (a *App) initCapture() {
	vc := a.cfg.Visualizer
	w, h := vc.Width, vc.Height
	if w == 0 {
		w = defaultCanvasWidth
	}
	if h == 0 {
		h = defaultCanvasHeight
	}
	a.vis = visualizer.New(visualizer.NewFrameCanvas(w, h),
		visualizer.WithFrameInterval(vc.FrameInterval),
		visualizer.WithFrameHook(func(f visualizer.Frame) {
			a.hub.Emit(session.VisualizerFrame{Frame: f})
		}),
	)

	if a.capturer != nil {
		return
	}
	cc := a.cfg.Capture
	device := capture.NewFFmpegDevice(capture.FFmpegConfig{
		Command:          cc.Command,
		InputFormat:      cc.InputFormat,
		InputDevice:      cc.InputDevice,
		EchoCancelDevice: cc.EchoCancelDevice,
		SampleRate:       cc.SampleRate,
		Channels:         cc.Channels,
		StartupGrace:     cc.StartupGrace,
		StopTimeout:      cc.StopTimeout,
	})
	a.capturer = capture.NewRecorder(device, capture.WithTap(a.vis))
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Handler returns the HTTP handler of the app, for tests and embedding.
func (a *App) Handler() http.Handler { return a.server.Handler }

// Run serves HTTP on the configured address and runs the session loop until
// ctx is cancelled. A cancelled ctx is a clean exit and returns nil.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.controller.Run(gctx)
	})

	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: http server: %w", err)
	})

	g.Go(func() error {
		<-gctx.Done()
		a.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	slog.Info("app running", "listen_addr", a.cfg.Server.ListenAddr, "dictation", a.dictator.Available())
	return g.Wait()
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable differences between old and new.
// Changes that need a restart are logged and otherwise ignored.
func (a *App) ApplyConfig(ctx context.Context, old, new *config.Config) {
	d := config.Diff(old, new)
	if d.RestartRequired {
		slog.Warn("config: changes to providers, store, capture or listen address take effect after a restart")
	}
	if !d.Any() {
		return
	}

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(SlogLevel(d.NewLogLevel))
		slog.Info("config: log level changed", "level", d.NewLogLevel)
	}

	if d.TargetLanguageChanged || d.PromptsChanged {
		err := a.pipeline.SetConfig(pipeline.Config{
			TargetLanguage: new.UI.TargetLanguage,
			Prompts:        new.Pipeline.Prompts,
		})
		if err != nil {
			slog.Error("config: pipeline prompts rejected", "err", err)
		} else {
			slog.Info("config: pipeline updated", "target_language", new.UI.TargetLanguage)
		}
	}

	if d.LocaleChanged || d.TargetLanguageChanged || d.SystemPromptChanged {
		cat, err := catalogFor(new.UI)
		if err != nil {
			slog.Error("config: locale rejected", "err", err)
			return
		}
		if d.LocaleChanged {
			if err := a.controller.SetCatalog(ctx, cat); err != nil {
				slog.Warn("config: session catalog", "err", err)
			}
			a.web.SetCatalog(cat)
		}
		prompt := new.Assistant.SystemPrompt
		if prompt == "" {
			prompt = assistant.DefaultSystemPrompt
		}
		if err := a.assistant.Reconfigure(cat, new.UI.TargetLanguage, prompt); err != nil {
			slog.Error("config: assistant settings rejected", "err", err)
		}
		slog.Info("config: language settings applied", "locale", new.UI.Locale, "target_language", new.UI.TargetLanguage)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
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

// SlogLevel converts a config log level to its slog equivalent.
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
