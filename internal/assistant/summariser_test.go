package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/voicenotes/pkg/provider/llm"
	llmmock "github.com/MrWong99/voicenotes/pkg/provider/llm/mock"
)

func TestLLMSummariser_Summarise(t *testing.T) {
	t.Parallel()

	t.Run("empty messages returns empty string", func(t *testing.T) {
		p := &llmmock.Provider{}
		result, err := NewLLMSummariser(p).Summarise(context.Background(), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != "" {
			t.Errorf("expected empty string, got %q", result)
		}
		if p.CompleteCallCount() != 0 {
			t.Errorf("expected no model calls for empty input, got %d", p.CompleteCallCount())
		}
	})

	t.Run("summarises messages via the model", func(t *testing.T) {
		p := &llmmock.Provider{
			CompleteResponse: &llm.CompletionResponse{Content: "The user asked about the budget meeting."},
		}
		msgs := []llm.Message{
			{Role: llm.RoleUser, Parts: []llm.Part{
				llm.BlobPart("image/png", []byte{1}, "whiteboard.png"),
				llm.TextPart("What was decided?"),
			}},
			{Role: llm.RoleAssistant, Content: "The budget was approved."},
		}

		result, err := NewLLMSummariser(p).Summarise(context.Background(), msgs)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != "The user asked about the budget meeting." {
			t.Errorf("unexpected result: %q", result)
		}

		calls := p.Completes()
		if len(calls) != 1 {
			t.Fatalf("expected 1 Complete call, got %d", len(calls))
		}
		req := calls[0].Req
		if req.SystemPrompt != summarisationPrompt {
			t.Errorf("unexpected system prompt %q", req.SystemPrompt)
		}
		content := req.Messages[0].Content
		for _, want := range []string{"[user]: What was decided?", "[user attached]: whiteboard.png", "[assistant]: The budget was approved."} {
			if !strings.Contains(content, want) {
				t.Errorf("transcript missing %q:\n%s", want, content)
			}
		}
		if req.Messages[0].HasBlobs() {
			t.Error("attachments must not be re-sent to the summariser")
		}
	})

	t.Run("propagates model errors", func(t *testing.T) {
		p := &llmmock.Provider{CompleteErr: errors.New("model overloaded")}
		_, err := NewLLMSummariser(p).Summarise(context.Background(), []llm.Message{llm.UserText("Hello")})
		if err == nil || !strings.Contains(err.Error(), "model overloaded") {
			t.Errorf("expected wrapped error, got %v", err)
		}
	})
}
