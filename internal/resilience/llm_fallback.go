package resilience

import (
	"context"
	"fmt"

	"github.com/MrWong99/voicenotes/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] with automatic failover across model
// backends. Requests carrying audio, images or documents skip backends whose
// capabilities exclude them, so a text-only fallback never receives a
// recording.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

// Compile-time interface assertion.
var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional LLM provider as a fallback.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Names returns the backend names in failover order.
func (f *LLMFallback) Names() []string { return f.group.Names() }

// OpenCircuits returns the backends currently skipped by their breaker.
func (f *LLMFallback) OpenCircuits() []string { return f.group.OpenCircuits() }

// Complete sends the request to the first healthy backend that can serve it.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(ctx, f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		if err := supports(p, req); err != nil {
			return nil, err
		}
		return p.Complete(ctx, req)
	})
}

// StreamCompletion opens a stream on the first healthy backend that can
// serve the request. A stream that fails before producing any text counts as
// a failed attempt and the next backend is tried; once text has arrived,
// later errors are delivered on the stream.
func (f *LLMFallback) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return ExecuteWithResult(ctx, f.group, func(p llm.Provider) (<-chan llm.Chunk, error) {
		if err := supports(p, req); err != nil {
			return nil, err
		}
		ch, err := p.StreamCompletion(ctx, req)
		if err != nil {
			return nil, err
		}
		return awaitFirstText(ctx, ch)
	})
}

// CountTokens delegates to the primary's token counter.
func (f *LLMFallback) CountTokens(messages []llm.Message) (int, error) {
	return f.group.Primary().CountTokens(messages)
}

// Capabilities returns the capabilities of the primary. The context window
// is the smallest across all backends so history sized for it fits any
// fallback.
func (f *LLMFallback) Capabilities() llm.ModelCapabilities {
	caps := f.group.Primary().Capabilities()
	for _, e := range f.group.entries[1:] {
		if w := e.value.Capabilities().ContextWindow; w > 0 && (caps.ContextWindow == 0 || w < caps.ContextWindow) {
			caps.ContextWindow = w
		}
	}
	return caps
}

// supports reports ErrUnsupported when req carries media p cannot accept.
func supports(p llm.Provider, req llm.CompletionRequest) error {
	caps := p.Capabilities()
	for _, m := range req.Messages {
		for _, part := range m.Parts {
			b := part.Blob
			if b == nil {
				continue
			}
			ok := caps.SupportsDocuments
			switch {
			case b.IsAudio():
				ok = caps.SupportsAudio
			case b.IsImage():
				ok = caps.SupportsVision
			}
			if !ok {
				return fmt.Errorf("%w: %s", ErrUnsupported, b.MIMEType)
			}
		}
	}
	return nil
}

// awaitFirstText reads ch until the first text chunk, an error chunk or the
// end of the stream. An error before any text is returned as an error; in
// every other case the chunks read so far are replayed on the returned
// channel, followed by the rest of ch.
func awaitFirstText(ctx context.Context, ch <-chan llm.Chunk) (<-chan llm.Chunk, error) {
	var head []llm.Chunk
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case c, ok := <-ch:
			if !ok {
				return replay(ctx, head, nil), nil
			}
			if c.FinishReason == llm.FinishError {
				return nil, &llm.StreamError{Message: c.Text}
			}
			head = append(head, c)
			if c.Text != "" {
				return replay(ctx, head, ch), nil
			}
		}
	}
}

func replay(ctx context.Context, head []llm.Chunk, rest <-chan llm.Chunk) <-chan llm.Chunk {
	out := make(chan llm.Chunk, len(head))
	for _, c := range head {
		out <- c
	}
	if rest == nil {
		close(out)
		return out
	}
	go func() {
		defer close(out)
		for c := range rest {
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
