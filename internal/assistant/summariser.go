package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrWong99/voicenotes/pkg/provider/llm"
)

// summarisationPrompt is the system prompt sent to the model when compressing
// older chat turns.
const summarisationPrompt = `Summarise the following conversation between a user and an assistant about the user's voice notes.
Preserve: the questions asked, facts quoted from the notes, names, dates, numbers, decisions and any
conclusions reached, and mention attached files by name.
Be concise and write the summary in the language of the conversation.`

// Summariser produces a concise summary of a conversation segment.
type Summariser interface {
	Summarise(ctx context.Context, messages []llm.Message) (string, error)
}

// LLMSummariser uses a model provider to summarise conversations.
type LLMSummariser struct {
	llm llm.Provider
}

// NewLLMSummariser creates a new [LLMSummariser] backed by provider.
func NewLLMSummariser(provider llm.Provider) *LLMSummariser {
	return &LLMSummariser{llm: provider}
}

// Summarise renders messages as a plain transcript and asks the model to
// condense it. Attachments appear as their filenames only.
func (s *LLMSummariser) Summarise(ctx context.Context, messages []llm.Message) (string, error) {
	if len(messages) == 0 {
		return "", nil
	}

	var sb strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&sb, "[%s]: %s\n", m.Role, m.Text())
		for _, p := range m.Parts {
			if p.Blob != nil {
				name := p.Blob.Name
				if name == "" {
					name = p.Blob.MIMEType
				}
				fmt.Fprintf(&sb, "[%s attached]: %s\n", m.Role, name)
			}
		}
	}

	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: summarisationPrompt,
		Messages:     []llm.Message{llm.UserText(sb.String())},
		Temperature:  0.3,
	})
	if err != nil {
		return "", fmt.Errorf("assistant: summarise: %w", err)
	}
	if resp == nil {
		return "", nil
	}
	return resp.Content, nil
}
