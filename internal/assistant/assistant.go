// Package assistant implements the chat over the user's notes.
//
// Opening a chat renders every non-empty note (the live current note laid
// over its stored copy) into a fixed system instruction. Each Send streams
// the model's answer, re-rendering the accumulated markdown on every
// fragment. One message is in flight at a time; attachments are staged with
// Attach and consumed by the next Send. Closing the chat discards it.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/voicenotes/internal/i18n"
	"github.com/MrWong99/voicenotes/internal/markdown"
	"github.com/MrWong99/voicenotes/internal/note"
	"github.com/MrWong99/voicenotes/internal/observe"
	"github.com/MrWong99/voicenotes/pkg/provider/llm"
)

var (
	// ErrNoSession is returned when no chat is open.
	ErrNoSession = errors.New("assistant: no chat open")
	// ErrBusy is returned while a message is being answered.
	ErrBusy = errors.New("assistant: a message is already in flight")
	// ErrEmptyMessage is returned by Send with neither text nor attachment.
	ErrEmptyMessage = errors.New("assistant: message is empty")
	// ErrMessageNotFound is returned by Answer for unknown ids.
	ErrMessageNotFound = errors.New("assistant: message not found")
	// ErrNotExportable is returned by Answer for messages that are not a
	// complete answer.
	ErrNotExportable = errors.New("assistant: message cannot be exported")
)

// Message roles in the transcript.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of the chat transcript.
type Message struct {
	ID         string          `json:"id"`
	Role       string          `json:"role"`
	Text       string          `json:"text"`
	HTML       string          `json:"html"`
	Attachment *AttachmentInfo `json:"attachment,omitempty"`
	// Pending is true while the answer is still streaming.
	Pending bool `json:"pending,omitempty"`
	// Exportable marks a complete, non-empty answer.
	Exportable bool `json:"exportable,omitempty"`
	Error      bool `json:"error,omitempty"`
}

// Config configures an Assistant.
type Config struct {
	// Provider answers messages. Required.
	Provider llm.Provider
	// ProviderName labels metrics.
	ProviderName string
	// SystemPrompt overrides DefaultSystemPrompt.
	SystemPrompt string
	// TargetLanguage is the answer language. Default "Vietnamese".
	TargetLanguage string
	// Catalog renders greetings and note blocks. Defaults to Vietnamese.
	Catalog *i18n.Catalog
	// HistoryTokens is the token budget of the conversation before older
	// turns are summarised. Zero uses half the model's context window.
	HistoryTokens int
	// Summariser defaults to an LLMSummariser on Provider.
	Summariser Summariser
	// Metrics defaults to observe.DefaultMetrics().
	Metrics *observe.Metrics
}

// Assistant holds at most one open chat.
type Assistant struct {
	provider      llm.Provider
	providerName  string
	summariser    Summariser
	historyTokens int
	metrics       *observe.Metrics

	mu     sync.Mutex
	cat    *i18n.Catalog
	target string
	tmpl   *template.Template
	sess   *chat
}

type chat struct {
	id         string
	system     string
	history    *History
	messages   []Message
	input      string
	attachment *AttachedFile
	busy       bool
}

// New creates an Assistant.
func New(cfg Config) (*Assistant, error) {
	if cfg.Provider == nil {
		return nil, errors.New("assistant: provider must not be nil")
	}
	tmpl, err := ParseSystemPrompt(cfg.SystemPrompt)
	if err != nil {
		return nil, err
	}
	a := &Assistant{
		provider:      cfg.Provider,
		providerName:  cfg.ProviderName,
		summariser:    cfg.Summariser,
		historyTokens: cfg.HistoryTokens,
		metrics:       cfg.Metrics,
		cat:           cfg.Catalog,
		target:        strings.TrimSpace(cfg.TargetLanguage),
		tmpl:          tmpl,
	}
	if a.providerName == "" {
		a.providerName = "chat"
	}
	if a.summariser == nil {
		a.summariser = NewLLMSummariser(cfg.Provider)
	}
	if a.historyTokens == 0 {
		a.historyTokens = cfg.Provider.Capabilities().ContextWindow / 2
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.cat == nil {
		a.cat = i18n.MustNew(i18n.Vietnamese)
	}
	if a.target == "" {
		a.target = "Vietnamese"
	}
	return a, nil
}

// Reconfigure replaces the catalog, answer language and system prompt for
// chats opened afterwards. Zero values keep the current setting.
func (a *Assistant) Reconfigure(cat *i18n.Catalog, targetLanguage, systemPrompt string) error {
	var tmpl *template.Template
	if systemPrompt != "" {
		var err error
		if tmpl, err = ParseSystemPrompt(systemPrompt); err != nil {
			return err
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if cat != nil {
		a.cat = cat
	}
	if t := strings.TrimSpace(targetLanguage); t != "" {
		a.target = t
	}
	if tmpl != nil {
		a.tmpl = tmpl
	}
	return nil
}

// Open starts a new chat over stored and the live current note, replacing any
// open chat. It returns the greeting.
func (a *Assistant) Open(stored []note.Note, live note.Note) (Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	notes, count := BuildContext(a.cat, stored, live)
	var sb strings.Builder
	err := a.tmpl.Execute(&sb, promptData{Language: a.cat.LanguageName(a.target), Notes: notes})
	if err != nil {
		return Message{}, fmt.Errorf("assistant: render system prompt: %w", err)
	}

	key := i18n.ChatGreeting
	if count == 0 {
		key = i18n.ChatGreetingEmpty
	}
	greeting := a.reply(a.cat.Text(key))

	a.sess = &chat{
		id:     uuid.NewString(),
		system: sb.String(),
		history: NewHistory(HistoryConfig{
			MaxTokens:  a.historyTokens,
			Summariser: a.summariser,
		}),
		messages: []Message{greeting},
	}
	return greeting, nil
}

// Close discards the open chat, its staged attachment and draft.
func (a *Assistant) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sess = nil
}

// IsOpen reports whether a chat is open.
func (a *Assistant) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sess != nil
}

// Messages returns a copy of the open chat's transcript.
func (a *Assistant) Messages() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sess == nil {
		return nil
	}
	return append([]Message(nil), a.sess.messages...)
}

// Attach stages f for the next message, replacing any staged file.
func (a *Assistant) Attach(f AttachedFile) error {
	if !Allowed(f.MIMEType) {
		return fmt.Errorf("%w: %s", ErrUnsupportedFile, f.MIMEType)
	}
	return a.withIdle(func(c *chat) { c.attachment = &f })
}

// RemoveAttachment drops the staged file.
func (a *Assistant) RemoveAttachment() error {
	return a.withIdle(func(c *chat) { c.attachment = nil })
}

// Attachment describes the staged file, or nil.
func (a *Assistant) Attachment() *AttachmentInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sess == nil || a.sess.attachment == nil {
		return nil
	}
	return a.sess.attachment.Info()
}

// SetInput replaces the draft message, as dictation does.
func (a *Assistant) SetInput(text string) error {
	return a.withIdle(func(c *chat) { c.input = text })
}

// Input returns the draft message.
func (a *Assistant) Input() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sess == nil {
		return ""
	}
	return a.sess.input
}

func (a *Assistant) withIdle(fn func(*chat)) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sess == nil {
		return ErrNoSession
	}
	if a.sess.busy {
		return ErrBusy
	}
	fn(a.sess)
	return nil
}

// Answer returns the text of an exportable answer.
func (a *Assistant) Answer(id string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sess == nil {
		return "", ErrNoSession
	}
	for _, m := range a.sess.messages {
		if m.ID != id {
			continue
		}
		if !m.Exportable {
			return "", ErrNotExportable
		}
		return m.Text, nil
	}
	return "", ErrMessageNotFound
}

// Send posts text and the staged attachment, then streams the answer.
// onFragment, when non-nil, receives the pending answer after every
// fragment and the final answer once. A failed model call yields an apology
// answer, not an error; errors are reserved for refusals.
func (a *Assistant) Send(ctx context.Context, text string, onFragment func(Message)) (Message, error) {
	text = strings.TrimSpace(text)

	a.mu.Lock()
	c := a.sess
	switch {
	case c == nil:
		a.mu.Unlock()
		return Message{}, ErrNoSession
	case c.busy:
		a.mu.Unlock()
		return Message{}, ErrBusy
	case text == "" && c.attachment == nil:
		a.mu.Unlock()
		return Message{}, ErrEmptyMessage
	}
	c.busy = true
	att := c.attachment
	c.attachment = nil
	c.input = ""

	user := Message{ID: uuid.NewString(), Role: RoleUser, Text: text}
	if att != nil {
		user.Attachment = att.Info()
	}
	c.messages = append(c.messages, user)
	system := c.system
	history := c.history.Messages()
	apology := a.cat.Text(i18n.ChatError)
	a.mu.Unlock()

	turn := llm.Message{Role: llm.RoleUser}
	if att != nil {
		turn.Parts = append(turn.Parts, llm.BlobPart(att.MIMEType, att.Data, att.Name))
	}
	if text != "" {
		turn.Parts = append(turn.Parts, llm.TextPart(text))
	}

	ctx, span := observe.StartSpan(observe.WithChat(ctx, c.id), "assistant.send")
	defer span.End()
	span.SetAttributes(attribute.Bool("attachment", att != nil))

	reply := Message{ID: uuid.NewString(), Role: RoleAssistant, Pending: true}
	answer, err := a.stream(ctx, system, append(history, turn), func(acc string) {
		reply.Text = acc
		reply.HTML = markdown.MustRender(acc)
		if onFragment != nil {
			onFragment(reply)
		}
	})
	a.metrics.RecordChatMessage(ctx, err)

	reply.Pending = false
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observe.Logger(ctx).Warn("assistant: answer failed", "err", err)
		reply.Text = apology
		reply.Error = true
	} else {
		reply.Text = answer
		reply.Exportable = strings.TrimSpace(answer) != ""
	}
	reply.HTML = markdown.MustRender(reply.Text)
	if onFragment != nil {
		onFragment(reply)
	}

	if err == nil {
		if herr := c.history.Add(ctx, turn, llm.Message{Role: llm.RoleAssistant, Content: answer}); herr != nil {
			observe.Logger(ctx).Warn("assistant: history", "err", herr)
		}
	}

	a.mu.Lock()
	c.busy = false
	if a.sess == c {
		c.messages = append(c.messages, reply)
	}
	a.mu.Unlock()
	return reply, nil
}

func (a *Assistant) stream(ctx context.Context, system string, msgs []llm.Message, onText func(string)) (string, error) {
	start := time.Now()
	ch, err := a.provider.StreamCompletion(ctx, llm.CompletionRequest{
		SystemPrompt: system,
		Messages:     msgs,
	})
	if err == nil {
		var answer string
		answer, err = llm.Collect(ctx, ch, onText)
		if err == nil {
			a.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
			a.metrics.RecordProviderRequest(ctx, a.providerName, "chat", "ok")
			return answer, nil
		}
	}
	a.metrics.RecordProviderRequest(ctx, a.providerName, "chat", "error")
	a.metrics.RecordProviderError(ctx, a.providerName, "chat")
	return "", err
}

func (a *Assistant) reply(text string) Message {
	return Message{ID: uuid.NewString(), Role: RoleAssistant, Text: text, HTML: markdown.MustRender(text)}
}
