package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/MrWong99/voicenotes/pkg/provider/llm"
	"github.com/MrWong99/voicenotes/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by CreateLLM and CreateSTT for a name
// with no factory.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its config entry.
type Factory[P any] func(ProviderEntry) (P, error)

// factories is one kind's name table. Names are matched case-insensitively.
type factories[P any] struct {
	kind string
	m    map[string]Factory[P]
}

func (f factories[P]) create(entry ProviderEntry) (P, error) {
	build, ok := f.m[strings.ToLower(entry.Name)]
	if !ok {
		var zero P
		return zero, fmt.Errorf("%w: %s/%q (have %s)", ErrProviderNotRegistered,
			f.kind, entry.Name, strings.Join(f.names(), ", "))
	}
	return build(entry)
}

func (f factories[P]) names() []string { return slices.Sorted(maps.Keys(f.m)) }

// Registry maps provider names in the config to constructors. It is safe
// for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	llm factories[llm.Provider]
	stt factories[stt.Provider]
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		llm: factories[llm.Provider]{kind: "llm", m: make(map[string]Factory[llm.Provider])},
		stt: factories[stt.Provider]{kind: "stt", m: make(map[string]Factory[stt.Provider])},
	}
}

// RegisterLLM adds or replaces the LLM factory for name.
func (r *Registry) RegisterLLM(name string, f Factory[llm.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm.m[strings.ToLower(name)] = f
}

// RegisterSTT adds or replaces the STT factory for name.
func (r *Registry) RegisterSTT(name string, f Factory[stt.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt.m[strings.ToLower(name)] = f
}

// CreateLLM builds the LLM provider entry.Name selects.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.llm.create(entry)
}

// CreateSTT builds the STT provider entry.Name selects.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stt.create(entry)
}

// LLMNames returns the registered LLM provider names, sorted.
func (r *Registry) LLMNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.llm.names()
}

// STTNames returns the registered STT provider names, sorted.
func (r *Registry) STTNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stt.names()
}
