package anyllm

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/voicenotes/pkg/provider/llm"
)

func TestBuildParams(t *testing.T) {
	t.Parallel()

	p := &Provider{name: "anthropic", model: "claude-sonnet-4-5"}
	tests := []struct {
		name      string
		req       llm.CompletionRequest
		wantRoles []string
		wantLast  string
	}{
		{
			name: "system first",
			req: llm.CompletionRequest{
				SystemPrompt: "Trả lời bằng tiếng Việt.",
				Messages:     []llm.Message{llm.UserText("xin chào")},
			},
			wantRoles: []string{anyllmlib.RoleSystem, llm.RoleUser},
			wantLast:  "xin chào",
		},
		{
			name: "blank system prompt dropped",
			req: llm.CompletionRequest{
				SystemPrompt: "  \n",
				Messages:     []llm.Message{llm.UserText("hi")},
			},
			wantRoles: []string{llm.RoleUser},
			wantLast:  "hi",
		},
		{
			name: "consecutive user turns merged",
			req: llm.CompletionRequest{Messages: []llm.Message{
				llm.UserText("Here is my note."),
				{Role: llm.RoleUser, Parts: []llm.Part{llm.TextPart("Summarise it.")}},
			}},
			wantRoles: []string{llm.RoleUser},
			wantLast:  "Here is my note.\n\nSummarise it.",
		},
		{
			name: "empty turns dropped",
			req: llm.CompletionRequest{Messages: []llm.Message{
				llm.UserText("question"),
				{Role: llm.RoleAssistant, Content: " "},
				{Role: llm.RoleAssistant, Content: "answer"},
			}},
			wantRoles: []string{llm.RoleUser, llm.RoleAssistant},
			wantLast:  "answer",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			params, err := p.buildParams(tc.req)
			if err != nil {
				t.Fatalf("buildParams: %v", err)
			}
			var roles []string
			for _, m := range params.Messages {
				roles = append(roles, m.Role)
			}
			if !slices.Equal(roles, tc.wantRoles) {
				t.Fatalf("roles = %v, want %v", roles, tc.wantRoles)
			}
			if got := params.Messages[len(params.Messages)-1].ContentString(); got != tc.wantLast {
				t.Errorf("last content = %q, want %q", got, tc.wantLast)
			}
			if params.Model != "claude-sonnet-4-5" {
				t.Errorf("model = %q", params.Model)
			}
		})
	}
}

func TestBuildParams_Sampling(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "llama3"}
	params, err := p.buildParams(llm.CompletionRequest{Messages: []llm.Message{llm.UserText("x")}})
	if err != nil {
		t.Fatal(err)
	}
	if params.Temperature != nil || params.MaxTokens != nil {
		t.Error("zero sampling values were forwarded")
	}

	params, err = p.buildParams(llm.CompletionRequest{
		Messages:    []llm.Message{llm.UserText("x")},
		Temperature: 0.2,
		MaxTokens:   512,
	})
	if err != nil {
		t.Fatal(err)
	}
	if params.Temperature == nil || *params.Temperature != 0.2 {
		t.Error("temperature not forwarded")
	}
	if params.MaxTokens == nil || *params.MaxTokens != 512 {
		t.Error("max tokens not forwarded")
	}
}

func TestBinaryPartsRejectedBeforeBackend(t *testing.T) {
	t.Parallel()

	// A nil backend would panic if reached.
	p := &Provider{name: "ollama", model: "llama3"}
	req := llm.CompletionRequest{Messages: []llm.Message{{
		Role:  llm.RoleUser,
		Parts: []llm.Part{llm.TextPart("transcribe"), llm.BlobPart("audio/wav", []byte{1}, "recording.wav")},
	}}}

	if _, err := p.Complete(context.Background(), req); !errors.Is(err, ErrBinaryParts) {
		t.Errorf("Complete = %v, want ErrBinaryParts", err)
	}
	if _, err := p.StreamCompletion(context.Background(), req); !errors.Is(err, ErrBinaryParts) {
		t.Errorf("StreamCompletion = %v, want ErrBinaryParts", err)
	}
}

func TestModelCapabilities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model   string
		context int
		output  int
	}{
		{"gemini-2.5-flash", 1_048_576, 65_536},
		{"Gemini-1.5-Pro", 1_048_576, 8_192},
		{"claude-sonnet-4-5", 200_000, 8_192},
		{"deepseek-chat", 64_000, 8_192},
		{"llama3", 128_000, 4_096},
	}
	for _, tc := range tests {
		caps := modelCapabilities(tc.model)
		if caps.ContextWindow != tc.context || caps.MaxOutputTokens != tc.output {
			t.Errorf("%s: limits = %d/%d, want %d/%d", tc.model, caps.ContextWindow, caps.MaxOutputTokens, tc.context, tc.output)
		}
		if caps.SupportsAudio || caps.SupportsVision || caps.SupportsDocuments || !caps.SupportsStreaming {
			t.Errorf("%s: caps = %+v, want text-only streaming", tc.model, caps)
		}
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	if _, err := New("anthropic", ""); err == nil {
		t.Error("empty model accepted")
	}
	_, err := New("fakecloud", "m", anyllmlib.WithAPIKey("k"))
	if err == nil || !strings.Contains(err.Error(), "anthropic, deepseek") {
		t.Errorf("unsupported backend error = %v, want the supported list", err)
	}

	p, err := New("Ollama", "llama3")
	if err != nil {
		t.Fatalf("New(Ollama): %v", err)
	}
	if p.name != "ollama" || p.model != "llama3" {
		t.Errorf("provider = %q/%q", p.name, p.model)
	}
}

func TestBackends(t *testing.T) {
	t.Parallel()

	got := Backends()
	if !slices.IsSorted(got) || len(got) != 9 {
		t.Fatalf("Backends = %v", got)
	}
	for _, want := range []string{"anthropic", "gemini", "ollama", "openai"} {
		if !slices.Contains(got, want) {
			t.Errorf("Backends lacks %q", want)
		}
	}
}

func TestCountTokens(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "llama3"}
	// "Ghi chú" is 7 runes but 10 bytes; the estimate follows runes.
	n, err := p.CountTokens([]llm.Message{llm.UserText("Ghi chú"), llm.UserText("")})
	if err != nil {
		t.Fatal(err)
	}
	if want := (7+2)/3 + 4 + 4; n != want {
		t.Errorf("CountTokens = %d, want %d", n, want)
	}
}
