package config

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"gemini", "openai", "gemini-native", "anthropic", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"deepgram", "whisper"},
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr     = ":4173"
	DefaultTargetLanguage = "Vietnamese"
	DefaultGeminiModel    = "gemini-2.5-flash"
	DefaultStorePath      = "voicenotes.db"
)

// Load reads the YAML configuration file at path, overlays the environment
// (see [LoadEnv]) and returns a validated [Config].
func Load(path string) (*Config, error) {
	cfg, _, err := loadFile(path)
	return cfg, err
}

// loadFile is Load that also returns the hash of the file content.
func loadFile(path string) (*Config, [sha256.Size]byte, error) {
	var sum [sha256.Size]byte
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, sum, fmt.Errorf("config: open %q: %w", path, err)
	}
	sum = sha256.Sum256(data)

	cfg, err := decode(bytes.NewReader(data))
	if err != nil {
		return nil, sum, fmt.Errorf("config: parse %q: %w", path, err)
	}
	env, err := LoadEnv()
	if err != nil {
		return nil, sum, err
	}
	cfg.ApplyEnv(env)
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, sum, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, sum, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. The environment is not consulted.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg, err := decode(r)
	if err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields with their defaults. Text and chat
// providers inherit the audio provider.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.UI.Locale == "" {
		cfg.UI.Locale = LocaleVietnamese
	}
	if strings.TrimSpace(cfg.UI.TargetLanguage) == "" {
		cfg.UI.TargetLanguage = DefaultTargetLanguage
	}
	if cfg.Providers.AudioLLM.IsSet() && cfg.Providers.AudioLLM.Model == "" && cfg.Providers.AudioLLM.Name == "gemini" {
		cfg.Providers.AudioLLM.Model = DefaultGeminiModel
	}
	if !cfg.Providers.TextLLM.IsSet() {
		cfg.Providers.TextLLM = cfg.Providers.AudioLLM
	}
	if !cfg.Providers.ChatLLM.IsSet() {
		cfg.Providers.ChatLLM = cfg.Providers.AudioLLM
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = StoreSQLite
	}
	if cfg.Store.Path == "" && cfg.Store.Backend != StorePostgres {
		cfg.Store.Path = DefaultStorePath
		if cfg.Store.Backend == StoreFile {
			cfg.Store.Path = "notes"
		}
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}
	if r := cfg.Server.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("server.trace_sample_ratio %v must be between 0 and 1", r))
	}

	// UI
	if cfg.UI.Locale != "" && !cfg.UI.Locale.IsValid() {
		errs = append(errs, fmt.Errorf("ui.locale %q is invalid; valid values: vi, en", cfg.UI.Locale))
	}
	if cfg.UI.Timezone != "" {
		if _, err := time.LoadLocation(cfg.UI.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("ui.timezone %q: %w", cfg.UI.Timezone, err))
		}
	}

	// Providers
	if !cfg.Providers.AudioLLM.IsSet() {
		errs = append(errs, errors.New("providers.audio_llm is required; set it or export GEMINI_API_KEY"))
	}
	for _, p := range []struct {
		kind, field string
		entry       ProviderEntry
	}{
		{"llm", "audio_llm", cfg.Providers.AudioLLM},
		{"llm", "text_llm", cfg.Providers.TextLLM},
		{"llm", "chat_llm", cfg.Providers.ChatLLM},
		{"stt", "stt", cfg.Providers.STT},
	} {
		validateProviderName(p.kind, p.entry.Name)
		for i, fb := range p.entry.Fallbacks {
			if !fb.IsSet() {
				errs = append(errs, fmt.Errorf("providers.%s.fallbacks[%d].name is required", p.field, i))
			}
			validateProviderName(p.kind, fb.Name)
		}
	}

	// Capture
	if c := cfg.Capture; c.Channels < 0 || c.Channels > 2 {
		errs = append(errs, fmt.Errorf("capture.channels %d is out of range [1, 2]", c.Channels))
	}
	if cfg.Capture.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("capture.sample_rate %d must not be negative", cfg.Capture.SampleRate))
	}

	// Store
	if cfg.Store.Backend != "" && !cfg.Store.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("store.backend %q is invalid; valid values: file, sqlite, postgres", cfg.Store.Backend))
	}
	if cfg.Store.Backend == StorePostgres && cfg.Store.DSN == "" {
		errs = append(errs, errors.New("store.dsn is required when backend is postgres"))
	}

	// Assistant
	if cfg.Assistant.HistoryTokens < 0 {
		errs = append(errs, fmt.Errorf("assistant.history_tokens %d must not be negative", cfg.Assistant.HistoryTokens))
	}

	// Visualizer
	if v := cfg.Visualizer; v.Width < 0 || v.Height < 0 || v.FrameInterval < 0 {
		errs = append(errs, errors.New("visualizer sizes and frame_interval must not be negative"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
