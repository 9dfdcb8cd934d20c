// Package anyllm adapts github.com/mozilla-ai/any-llm-go to [llm.Provider].
//
// The adapter carries text only. It suits language detection, polishing,
// translation and chat turns without attachments; a request with binary
// parts fails with [ErrBinaryParts] before any network call, which the
// failover group treats as "try the next backend".
//
//	p, err := anyllm.New("anthropic", "claude-sonnet-4-5", anyllmlib.WithAPIKey(key))
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"unicode/utf8"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/voicenotes/pkg/provider/llm"
)

// ErrBinaryParts is returned for requests carrying audio, images or files.
var ErrBinaryParts = errors.New("anyllm: binary message parts are not supported")

type constructor func(...anyllmlib.Option) (anyllmlib.Provider, error)

// backends maps config names to any-llm-go constructors.
var backends = map[string]constructor{
	"openai":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return anyllmoai.New(o...) },
	"anthropic": func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return anthropic.New(o...) },
	"gemini":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return gemini.New(o...) },
	"ollama":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return ollama.New(o...) },
	"deepseek":  func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return deepseek.New(o...) },
	"mistral":   func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return mistral.New(o...) },
	"groq":      func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return groq.New(o...) },
	"llamacpp":  func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamacpp.New(o...) },
	"llamafile": func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamafile.New(o...) },
}

// Backends returns the supported backend names, sorted.
func Backends() []string {
	return slices.Sorted(maps.Keys(backends))
}

// Provider implements [llm.Provider] on an any-llm-go backend.
type Provider struct {
	backend anyllmlib.Provider
	name    string
	model   string
}

var _ llm.Provider = (*Provider)(nil)

// New creates a Provider for one of [Backends]. Without an API key option
// the backend reads its usual environment variable, e.g. ANTHROPIC_API_KEY.
func New(backend, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if model == "" {
		return nil, errors.New("anyllm: model must not be empty")
	}
	name := strings.ToLower(backend)
	ctor, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("anyllm: unsupported backend %q; supported: %s", backend, strings.Join(Backends(), ", "))
	}
	b, err := ctor(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %s backend: %w", name, err)
	}
	return &Provider{backend: b, name: name, model: model}, nil
}

// NewGemini creates a text-only Gemini provider. Without options it reads
// GEMINI_API_KEY or GOOGLE_API_KEY.
func NewGemini(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("gemini", model, opts...)
}

// Complete implements [llm.Provider].
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}
	resp, err := p.backend.Completion(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: %s returned no choices", p.name)
	}

	out := &llm.CompletionResponse{Content: resp.Choices[0].Message.ContentString()}
	if u := resp.Usage; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}
	return out, nil
}

// StreamCompletion implements [llm.Provider]. A backend error after the
// stream opened arrives as a final chunk with [llm.FinishError].
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}
	chunks, errs := p.backend.CompletionStream(ctx, params)

	out := make(chan llm.Chunk, 32)
	go func() {
		defer close(out)
		send := func(c llm.Chunk) bool {
			select {
			case out <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for chunk := range chunks {
			if len(chunk.Choices) == 0 {
				continue
			}
			c := chunk.Choices[0]
			if c.Delta.Content == "" && c.FinishReason == "" {
				continue
			}
			if !send(llm.Chunk{Text: c.Delta.Content, FinishReason: c.FinishReason}) {
				return
			}
		}
		if err := <-errs; err != nil {
			send(llm.Chunk{FinishReason: llm.FinishError, Text: fmt.Sprintf("anyllm: %s stream: %v", p.name, err)})
		}
	}()
	return out, nil
}

// CountTokens estimates by characters: roughly three per token across
// Vietnamese and English text, plus a per-message overhead.
func (p *Provider) CountTokens(messages []llm.Message) (int, error) {
	total := 0
	for _, m := range messages {
		total += (utf8.RuneCountInString(m.Text())+2)/3 + 4
	}
	return total, nil
}

// Capabilities implements [llm.Provider]. Media support is never reported.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	return modelCapabilities(p.model)
}

// buildParams flattens req into text messages. Consecutive messages of the
// same role are merged and empty ones dropped, since several backends
// reject both.
func (p *Provider) buildParams(req llm.CompletionRequest) (anyllmlib.CompletionParams, error) {
	var msgs []anyllmlib.Message
	if s := strings.TrimSpace(req.SystemPrompt); s != "" {
		msgs = append(msgs, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: s})
	}
	for _, m := range req.Messages {
		if m.HasBlobs() {
			return anyllmlib.CompletionParams{}, ErrBinaryParts
		}
		text := m.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		if n := len(msgs); n > 0 && msgs[n-1].Role == m.Role {
			msgs[n-1].Content = msgs[n-1].ContentString() + "\n\n" + text
			continue
		}
		msgs = append(msgs, anyllmlib.Message{Role: m.Role, Content: text})
	}

	params := anyllmlib.CompletionParams{Model: p.model, Messages: msgs}
	if req.Temperature != 0 {
		params.Temperature = &req.Temperature
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = &req.MaxTokens
	}
	return params, nil
}

// modelLimits lists context and output limits by model-name prefix. The
// first match wins.
var modelLimits = []struct {
	prefix          string
	context, maxOut int
}{
	{"gemini-2", 1_048_576, 65_536},
	{"gemini", 1_048_576, 8_192},
	{"claude", 200_000, 8_192},
	{"gpt-4o", 128_000, 16_384},
	{"deepseek", 64_000, 8_192},
	{"mistral-large", 128_000, 8_192},
}

func modelCapabilities(model string) llm.ModelCapabilities {
	caps := llm.ModelCapabilities{
		SupportsStreaming: true,
		ContextWindow:     128_000,
		MaxOutputTokens:   4_096,
	}
	lower := strings.ToLower(model)
	for _, l := range modelLimits {
		if strings.HasPrefix(lower, l.prefix) {
			caps.ContextWindow, caps.MaxOutputTokens = l.context, l.maxOut
			break
		}
	}
	return caps
}
