package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/voicenotes/internal/config"
	"github.com/MrWong99/voicenotes/internal/observe"
	"github.com/MrWong99/voicenotes/internal/resilience"
	"github.com/MrWong99/voicenotes/pkg/provider/llm"
	"github.com/MrWong99/voicenotes/pkg/provider/stt"
)

// Providers holds one interface value per provider role. Nil means the role
// is not configured. Names label metrics and logs.
type Providers struct {
	Audio     llm.Provider
	AudioName string

	Text     llm.Provider
	TextName string

	Chat     llm.Provider
	ChatName string

	// STT serves dictation and may be nil.
	STT     stt.Provider
	STTName string
}

// BuildProviders instantiates every provider named in cfg through reg. An
// entry with fallbacks is wrapped in a failover group whose failures are
// counted on m.
func BuildProviders(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*Providers, error) {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	ps := &Providers{}
	var err error

	if ps.Audio, ps.AudioName, err = buildLLM(reg, cfg.Providers.AudioLLM, "transcribe", m); err != nil {
		return nil, fmt.Errorf("create audio llm: %w", err)
	}
	if ps.Audio == nil {
		return nil, errors.New("create audio llm: no provider configured")
	}
	if !ps.Audio.Capabilities().SupportsAudio {
		slog.Warn("audio llm does not declare audio support; transcription will fail", "provider", ps.AudioName)
	}

	if ps.Text, ps.TextName, err = buildLLM(reg, cfg.Providers.TextLLM, "polish", m); err != nil {
		return nil, fmt.Errorf("create text llm: %w", err)
	}
	if ps.Text == nil {
		ps.Text, ps.TextName = ps.Audio, ps.AudioName
	}

	if ps.Chat, ps.ChatName, err = buildLLM(reg, cfg.Providers.ChatLLM, "chat", m); err != nil {
		return nil, fmt.Errorf("create chat llm: %w", err)
	}
	if ps.Chat == nil {
		ps.Chat, ps.ChatName = ps.Audio, ps.AudioName
	}

	if ps.STT, ps.STTName, err = buildSTT(reg, cfg.Providers.STT, m); err != nil {
		return nil, fmt.Errorf("create stt: %w", err)
	}
	return ps, nil
}

// circuitReporter is implemented by failover groups.
type circuitReporter interface {
	OpenCircuits() []string
}

// circuits fails while any provider role has a backend behind an open
// circuit breaker. Roles that share a provider are reported once.
func (ps *Providers) circuits(context.Context) error {
	seen := make(map[any]bool)
	var open []string
	for _, p := range []any{ps.Audio, ps.Text, ps.Chat, ps.STT} {
		g, ok := p.(circuitReporter)
		if !ok || seen[p] {
			continue
		}
		seen[p] = true
		open = append(open, g.OpenCircuits()...)
	}
	if len(open) > 0 {
		return fmt.Errorf("circuit open: %s", strings.Join(open, ", "))
	}
	return nil
}

func failoverConfig(kind string, m *observe.Metrics) resilience.FallbackConfig {
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, _, to resilience.State) {
				m.RecordBreakerTransition(context.Background(), name, kind, to.String())
			},
		},
		OnFailover: func(ctx context.Context, name string, _ error) {
			m.RecordProviderError(ctx, name, kind)
		},
	}
}

func buildLLM(reg *config.Registry, entry config.ProviderEntry, kind string, m *observe.Metrics) (llm.Provider, string, error) {
	if !entry.IsSet() {
		return nil, "", nil
	}
	primary, err := reg.CreateLLM(entry)
	if err != nil {
		return nil, "", fmt.Errorf("%q: %w", entry.Name, err)
	}
	slog.Info("provider created", "kind", "llm", "role", kind, "name", entry.Name, "model", entry.Model)
	if len(entry.Fallbacks) == 0 {
		return primary, entry.Name, nil
	}

	group := resilience.NewLLMFallback(primary, entry.Name, failoverConfig(kind, m))
	for _, fb := range entry.Fallbacks {
		p, err := reg.CreateLLM(fb)
		if err != nil {
			return nil, "", fmt.Errorf("fallback %q: %w", fb.Name, err)
		}
		group.AddFallback(fb.Name, p)
		slog.Info("fallback provider created", "kind", "llm", "role", kind, "name", fb.Name, "model", fb.Model)
	}
	return group, entry.Name, nil
}

// buildSTT returns a nil provider when none is configured or the named one
// is not registered, which leaves dictation unavailable.
func buildSTT(reg *config.Registry, entry config.ProviderEntry, m *observe.Metrics) (stt.Provider, string, error) {
	if !entry.IsSet() {
		return nil, "", nil
	}
	primary, err := reg.CreateSTT(entry)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		slog.Warn("stt provider not available, dictation disabled", "name", entry.Name)
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("%q: %w", entry.Name, err)
	}
	slog.Info("provider created", "kind", "stt", "name", entry.Name)
	if len(entry.Fallbacks) == 0 {
		return primary, entry.Name, nil
	}

	group := resilience.NewSTTFallback(primary, entry.Name, failoverConfig("stt", m))
	for _, fb := range entry.Fallbacks {
		p, err := reg.CreateSTT(fb)
		if err != nil {
			return nil, "", fmt.Errorf("fallback %q: %w", fb.Name, err)
		}
		group.AddFallback(fb.Name, p)
	}
	return group, entry.Name, nil
}
