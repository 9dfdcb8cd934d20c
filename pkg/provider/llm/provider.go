// Package llm defines the Provider interface for generative model backends.
//
// A provider wraps a remote or local model API (Gemini through its
// OpenAI-compatible endpoint, OpenAI, Anthropic, a local Ollama instance) and
// exposes a uniform interface for the transcription pipeline and the chat
// assistant. Requests carry an ordered list of messages; each message may mix
// text with inline binary parts (recorded audio, images, PDF or DOCX files).
//
// Implementors must be safe for concurrent use. Channels returned by
// StreamCompletion must be closed by the implementation when the stream ends or
// when the supplied context is cancelled.
package llm

import (
	"context"
)

// Usage holds token accounting information returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message is
	// typically from the "user" role and drives the response.
	Messages []Message

	// Temperature controls output randomness in the range [0.0, 2.0]. Zero
	// leaves the provider default in place.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means provider default.
	MaxTokens int

	// SystemPrompt is an optional instruction injected before the conversation
	// history. Providers without a dedicated system slot prepend it as a
	// "system"-role message.
	SystemPrompt string
}

// Chunk is a single fragment emitted by a streaming completion.
type Chunk struct {
	// Text is the incremental text content of this chunk.
	Text string

	// FinishReason is set on the final chunk. Common values are "stop",
	// "length" and "" (non-final). The value "error" marks a stream that
	// failed after it was opened; Text then carries the error message.
	FinishReason string
}

// CompletionResponse is returned by the non-streaming Complete method.
type CompletionResponse struct {
	// Content is the full text of the model's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any generative model backend.
//
// Each method should propagate context cancellation promptly.
type Provider interface {
	// StreamCompletion sends req to the model and returns a read-only channel
	// that emits Chunk values as they arrive. The channel is closed when
	// generation finishes or ctx is cancelled.
	//
	// Errors that occur after the channel is opened are surfaced as a Chunk
	// with FinishReason "error". The initial error return is non-nil only for
	// failures that prevent the stream from starting.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Complete sends req to the model and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates the number of tokens the given messages would
	// consume in the model's context window. Need not be exact but should not
	// undercount.
	CountTokens(messages []Message) (int, error)

	// Capabilities returns static metadata describing what the model supports.
	Capabilities() ModelCapabilities
}

// Collect drains a stream returned by StreamCompletion into a single string.
// onText, when non-nil, is called with the accumulated text after every
// non-empty fragment. A chunk with FinishReason "error" aborts collection.
func Collect(ctx context.Context, ch <-chan Chunk, onText func(accumulated string)) (string, error) {
	var sb []byte
	for {
		select {
		case <-ctx.Done():
			return string(sb), ctx.Err()
		case c, ok := <-ch:
			if !ok {
				return string(sb), nil
			}
			if c.FinishReason == FinishError {
				return string(sb), &StreamError{Message: c.Text}
			}
			if c.Text == "" {
				continue
			}
			sb = append(sb, c.Text...)
			if onText != nil {
				onText(string(sb))
			}
		}
	}
}

// FinishError is the FinishReason used for mid-stream failures.
const FinishError = "error"

// StreamError is returned by Collect when the provider reported a failure
// after the stream had started.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string { return "llm: stream failed: " + e.Message }
