package assistant

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/voicenotes/pkg/provider/llm"
)

// charsPerToken is the heuristic ratio used for token estimation.
const charsPerToken = 4

// blobTokens is the flat estimate charged for each attached file. Inline
// images and documents are billed per page or tile rather than by size.
const blobTokens = 258

// History is the conversation of one chat session. When the estimated token
// count exceeds thresholdRatio × maxTokens, the oldest half of the turns is
// summarised and replaced by a compact summary message, so long chats stay
// within the model's context window. A zero maxTokens disables
// summarisation.
//
// All methods are safe for concurrent use.
type History struct {
	maxTokens      int
	thresholdRatio float64
	summariser     Summariser

	mu            sync.Mutex
	currentTokens int
	messages      []llm.Message
	summaries     []string
}

// HistoryConfig configures a [History].
type HistoryConfig struct {
	// MaxTokens is the context budget for the conversation turns. Zero
	// keeps every turn.
	MaxTokens int

	// ThresholdRatio is the fraction of MaxTokens at which summarisation is
	// triggered. Defaults to 0.75 if zero or negative.
	ThresholdRatio float64

	// Summariser compresses older turns. Required when MaxTokens > 0.
	Summariser Summariser
}

// NewHistory creates an empty [History].
func NewHistory(cfg HistoryConfig) *History {
	ratio := cfg.ThresholdRatio
	if ratio <= 0 {
		ratio = 0.75
	}
	return &History{
		maxTokens:      cfg.MaxTokens,
		thresholdRatio: ratio,
		summariser:     cfg.Summariser,
	}
}

// Add appends messages. If the accumulated estimate exceeds the threshold,
// the oldest half of the turns is summarised and replaced.
func (h *History) Add(ctx context.Context, msgs ...llm.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, m := range msgs {
		h.messages = append(h.messages, m)
		h.currentTokens += estimateTokens(m)
	}

	if h.maxTokens <= 0 || h.summariser == nil {
		return nil
	}
	threshold := int(float64(h.maxTokens) * h.thresholdRatio)
	if h.currentTokens > threshold && len(h.messages) > 1 {
		if err := h.summariseOldest(ctx); err != nil {
			return fmt.Errorf("assistant: summarise history: %w", err)
		}
	}
	return nil
}

// Messages returns the conversation so far, earlier summaries first.
func (h *History) Messages() []llm.Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]llm.Message, 0, len(h.summaries)+len(h.messages))
	for _, s := range h.summaries {
		out = append(out, llm.Message{
			Role:    llm.RoleSystem,
			Content: "[Earlier conversation summary]: " + s,
		})
	}
	return append(out, h.messages...)
}

// Len returns the number of unsummarised messages.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

// TokenEstimate returns the current estimated token count, including
// summary tokens.
func (h *History) TokenEstimate() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentTokens
}

// Reset clears all messages and summaries.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = nil
	h.summaries = nil
	h.currentTokens = 0
}

// summariseOldest compresses the oldest half of the messages. Must be called
// with h.mu held; the lock is released during the model call.
func (h *History) summariseOldest(ctx context.Context) error {
	half := len(h.messages) / 2
	if half == 0 {
		half = 1
	}
	// Keep user/assistant pairs together.
	if half%2 == 1 && half+1 <= len(h.messages) {
		half++
	}

	batch := make([]llm.Message, half)
	copy(batch, h.messages[:half])

	h.mu.Unlock()
	summary, err := h.summariser.Summarise(ctx, batch)
	h.mu.Lock()
	if err != nil {
		return err
	}

	removed := 0
	for _, m := range h.messages[:half] {
		removed += estimateTokens(m)
	}
	h.messages = h.messages[half:]
	h.currentTokens -= removed

	h.summaries = append(h.summaries, summary)
	h.currentTokens += len(summary) / charsPerToken
	return nil
}

// estimateTokens returns a rough token count for one message using the
// 1-token-per-4-characters heuristic plus a flat cost per attached file.
func estimateTokens(m llm.Message) int {
	chars := len(m.Role)
	blobs := 0
	if len(m.Parts) == 0 {
		chars += len(m.Content)
	}
	for _, p := range m.Parts {
		if p.Blob != nil {
			blobs++
			continue
		}
		chars += len(p.Text)
	}
	tokens := chars / charsPerToken
	if tokens == 0 && chars > 0 {
		tokens = 1
	}
	return tokens + blobs*blobTokens
}
