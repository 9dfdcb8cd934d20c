// Command voicenotes is the entry point for the voice notes server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/voicenotes/internal/app"
	"github.com/MrWong99/voicenotes/internal/config"
	"github.com/MrWong99/voicenotes/internal/observe"
	"github.com/MrWong99/voicenotes/pkg/provider/llm"
	"github.com/MrWong99/voicenotes/pkg/provider/llm/anyllm"
	"github.com/MrWong99/voicenotes/pkg/provider/llm/openai"
	"github.com/MrWong99/voicenotes/pkg/provider/stt"
	"github.com/MrWong99/voicenotes/pkg/provider/stt/deepgram"
	"github.com/MrWong99/voicenotes/pkg/provider/stt/whisper"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload the configuration file when it changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voicenotes: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voicenotes: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("voicenotes starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
		Registerer:     promReg,
		SampleRatio:    cfg.Server.TraceSampleRatio,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := app.BuildProviders(cfg, reg, observe.DefaultMetrics())
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg, providers)

	application, err := app.New(ctx, cfg, providers,
		app.WithLogLevel(level),
		app.WithMetricsHandler(promhttp.HandlerFor(promReg, promhttp.HandlerOpts{Registry: promReg})),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	if *watch {
		w, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
			application.ApplyConfig(ctx, old, new)
		})
		if err != nil {
			slog.Warn("config hot reload disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	slog.Info("server ready, press Ctrl+C to shut down", "url", "http://"+cfg.Server.ListenAddr)

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	// gemini goes through the OpenAI-compatible endpoint so that audio and
	// file parts reach the model.
	reg.RegisterLLM("gemini", func(entry config.ProviderEntry) (llm.Provider, error) {
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = openai.GeminiBaseURL
		}
		return openai.New(entry.APIKey, modelOr(entry, config.DefaultGeminiModel), openai.WithBaseURL(baseURL))
	})

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := entry.OptString("organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	// gemini-native uses the Gemini SDK through any-llm-go and carries text only.
	reg.RegisterLLM("gemini-native", func(entry config.ProviderEntry) (llm.Provider, error) {
		return anyllm.NewGemini(modelOr(entry, config.DefaultGeminiModel), anyllmOptions(entry)...)
	})

	// The remaining any-llm-go backends. openai and gemini are served above
	// through the OpenAI SDK so that they accept audio and files.
	for _, name := range anyllm.Backends() {
		if name == "openai" || name == "gemini" {
			continue
		}
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			return anyllm.New(name, entry.Model, anyllmOptions(entry)...)
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := entry.OptString("language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		keepAlive, err := optDuration(entry, "keep_alive")
		if err != nil {
			return nil, err
		}
		if keepAlive > 0 {
			opts = append(opts, deepgram.WithKeepAlive(keepAlive))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := entry.OptString("language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		pause, err := optDuration(entry, "pause")
		if err != nil {
			return nil, err
		}
		if pause > 0 {
			opts = append(opts, whisper.WithPause(pause))
		}
		maxSegment, err := optDuration(entry, "max_segment")
		if err != nil {
			return nil, err
		}
		if maxSegment > 0 {
			opts = append(opts, whisper.WithMaxSegment(maxSegment))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	slog.Debug("providers registered", "llm", reg.LLMNames(), "stt", reg.STTNames())
}

func anyllmOptions(entry config.ProviderEntry) []anyllmlib.Option {
	var opts []anyllmlib.Option
	if entry.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
	}
	if entry.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
	}
	return opts
}

// optDuration parses a duration option such as "800ms". Absent is zero.
func optDuration(entry config.ProviderEntry, key string) (time.Duration, error) {
	s := entry.OptString(key)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s option %s: %w", entry.Name, key, err)
	}
	return d, nil
}

func modelOr(entry config.ProviderEntry, fallback string) string {
	if entry.Model != "" {
		return entry.Model
	}
	return fallback
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, ps *app.Providers) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       Voice notes: startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Audio LLM", ps.AudioName, cfg.Providers.AudioLLM.Model)
	printRow("Text LLM", ps.TextName, cfg.Providers.TextLLM.Model)
	printRow("Chat LLM", ps.ChatName, cfg.Providers.ChatLLM.Model)
	printRow("Dictation", ps.STTName, cfg.Providers.STT.Model)
	printRow("Note store", string(cfg.Store.Backend), "")
	printRow("Language", string(cfg.UI.Locale), cfg.UI.TargetLanguage)
	printRow("Listen addr", cfg.Server.ListenAddr, "")
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, name, detail string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if detail != "" {
		value = name + " / " + detail
	}
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:18]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}
