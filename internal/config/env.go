package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Env holds the settings read from the process environment. A .env file in
// the working directory is loaded first when present.
type Env struct {
	// GeminiAPIKey fills the API key of Gemini providers left without one.
	GeminiAPIKey string `envconfig:"GEMINI_API_KEY"`

	// Port overrides server.listen_addr with ":<port>".
	Port string `envconfig:"PORT"`

	// AllowedHosts is a comma-separated list overriding server.allowed_hosts.
	AllowedHosts []string `envconfig:"ALLOWED_HOSTS"`
}

// LoadEnv reads [Env] from .env and the environment.
func LoadEnv() (Env, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	var env Env
	if err := envconfig.Process("", &env); err != nil {
		return Env{}, fmt.Errorf("config: load environment: %w", err)
	}
	return env, nil
}

// ApplyEnv overlays env onto cfg. When no audio provider is configured and a
// Gemini key is present, Gemini becomes the audio provider.
func (cfg *Config) ApplyEnv(env Env) {
	if p := strings.TrimSpace(env.Port); p != "" {
		cfg.Server.ListenAddr = ":" + p
	}
	if hosts := trimAll(env.AllowedHosts); len(hosts) > 0 {
		cfg.Server.AllowedHosts = hosts
	}

	key := strings.TrimSpace(env.GeminiAPIKey)
	if key == "" {
		return
	}
	if !cfg.Providers.AudioLLM.IsSet() {
		cfg.Providers.AudioLLM = ProviderEntry{Name: "gemini"}
	}
	for _, e := range []*ProviderEntry{
		&cfg.Providers.AudioLLM,
		&cfg.Providers.TextLLM,
		&cfg.Providers.ChatLLM,
	} {
		fillGeminiKey(e, key)
	}
}

func fillGeminiKey(e *ProviderEntry, key string) {
	if strings.HasPrefix(e.Name, "gemini") && e.APIKey == "" {
		e.APIKey = key
	}
	for i := range e.Fallbacks {
		fillGeminiKey(&e.Fallbacks[i], key)
	}
}

func trimAll(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
