// Package config provides the configuration schema, loader, environment
// overlay and provider registry for the voicenotes server.
package config

import (
	"time"

	"github.com/MrWong99/voicenotes/internal/pipeline"
)

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Locale selects the language of status texts, placeholders and dates.
type Locale string

const (
	LocaleVietnamese Locale = "vi"
	LocaleEnglish    Locale = "en"
)

// IsValid reports whether l is a supported UI locale.
func (l Locale) IsValid() bool {
	return l == LocaleVietnamese || l == LocaleEnglish
}

// StoreBackend selects where the note history is persisted.
type StoreBackend string

const (
	StoreFile     StoreBackend = "file"
	StoreSQLite   StoreBackend = "sqlite"
	StorePostgres StoreBackend = "postgres"
)

// IsValid reports whether b is a recognised store backend.
func (b StoreBackend) IsValid() bool {
	switch b {
	case StoreFile, StoreSQLite, StorePostgres:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	UI         UIConfig         `yaml:"ui"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Capture    CaptureConfig    `yaml:"capture"`
	Store      StoreConfig      `yaml:"store"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Assistant  AssistantConfig  `yaml:"assistant"`
	Dictation  DictationConfig  `yaml:"dictation"`
	Visualizer VisualizerConfig `yaml:"visualizer"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	// The PORT environment variable overrides it.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// AllowedHosts restricts the Host header of incoming requests. Empty
	// allows every host. The ALLOWED_HOSTS environment variable overrides it.
	AllowedHosts []string `yaml:"allowed_hosts"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`

	// TraceSampleRatio is the fraction of jobs and requests traced, in
	// [0, 1]. Zero traces everything.
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// UIConfig controls presentation language and the output language of notes.
type UIConfig struct {
	// Locale of status texts and dates. Default "vi".
	Locale Locale `yaml:"locale"`

	// TargetLanguage is the language notes are translated into and the chat
	// answers in. Default "Vietnamese".
	TargetLanguage string `yaml:"target_language"`

	// Timezone is an IANA zone name used to render dates. Default local.
	Timezone string `yaml:"timezone"`
}

// ProvidersConfig declares which provider implementation serves each role.
// Each field selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	// AudioLLM transcribes recordings. It must accept audio parts.
	AudioLLM ProviderEntry `yaml:"audio_llm"`

	// TextLLM detects the language, polishes and translates. Defaults to
	// AudioLLM when unset.
	TextLLM ProviderEntry `yaml:"text_llm"`

	// ChatLLM answers questions about the notes. Defaults to AudioLLM when
	// unset, which keeps file attachments working.
	ChatLLM ProviderEntry `yaml:"chat_llm"`

	// STT serves dictation. Optional.
	STT ProviderEntry `yaml:"stt"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "gemini", "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	// GEMINI_API_KEY fills it for Gemini providers when left empty.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above.
	Options map[string]any `yaml:"options"`

	// Fallbacks are tried in order when this provider fails.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// IsSet reports whether a provider was named.
func (e ProviderEntry) IsSet() bool { return e.Name != "" }

// OptString returns the string option key, or "" when absent.
func (e ProviderEntry) OptString(key string) string {
	if e.Options == nil {
		return ""
	}
	if v, ok := e.Options[key].(string); ok {
		return v
	}
	return ""
}

// CaptureConfig configures the ffmpeg microphone device and the recorder.
type CaptureConfig struct {
	// Command is the ffmpeg binary. Default "ffmpeg".
	Command string `yaml:"command"`

	// InputFormat is the ffmpeg demuxer (pulse, alsa, avfoundation, dshow).
	InputFormat string `yaml:"input_format"`

	// InputDevice is the device passed to -i.
	InputDevice string `yaml:"input_device"`

	// EchoCancelDevice replaces InputDevice when set.
	EchoCancelDevice string `yaml:"echo_cancel_device"`

	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`

	// StartupGrace bounds how long acquisition waits for ffmpeg to fail.
	StartupGrace time.Duration `yaml:"startup_grace"`

	// StopTimeout bounds the wait for ffmpeg after an interrupt.
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

// StoreConfig selects and configures the note history backend.
type StoreConfig struct {
	// Backend is file, sqlite or postgres. Default sqlite.
	Backend StoreBackend `yaml:"backend"`

	// Path is the directory (file) or database file (sqlite).
	Path string `yaml:"path"`

	// DSN is the postgres connection string.
	DSN string `yaml:"dsn"`
}

// PipelineConfig overrides the transcription and polish prompts. Empty
// prompts fall back to the built-in defaults.
type PipelineConfig struct {
	Prompts pipeline.Prompts `yaml:"prompts"`
}

// AssistantConfig configures the chat assistant.
type AssistantConfig struct {
	// SystemPrompt is a text/template with {{.Language}} and {{.Notes}}.
	// Empty uses the built-in prompt.
	SystemPrompt string `yaml:"system_prompt"`

	// HistoryTokens bounds the conversation history kept verbatim. Zero uses
	// half the model's context window.
	HistoryTokens int `yaml:"history_tokens"`
}

// DictationConfig configures the dictation affordance.
type DictationConfig struct {
	// Locale is the recognition language. Default "vi-VN".
	Locale string `yaml:"locale"`
}

// VisualizerConfig sizes the waveform frames.
type VisualizerConfig struct {
	Width         int           `yaml:"width"`
	Height        int           `yaml:"height"`
	FrameInterval time.Duration `yaml:"frame_interval"`
}
