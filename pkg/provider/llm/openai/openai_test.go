package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/voicenotes/pkg/provider/llm"
)

func TestConvertMessage_System(t *testing.T) {
	param, err := convertMessage(llm.Message{Role: "system", Content: "You are helpful."})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfSystem == nil {
		t.Fatal("expected OfSystem to be set")
	}
}

func TestConvertMessage_UserText(t *testing.T) {
	param, err := convertMessage(llm.UserText("Hello!"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfUser == nil {
		t.Fatal("expected OfUser to be set")
	}
	if !param.OfUser.Content.OfString.Valid() {
		t.Error("expected plain string content")
	}
}

func TestConvertMessage_UserParts(t *testing.T) {
	msg := llm.Message{Role: llm.RoleUser, Parts: []llm.Part{
		llm.BlobPart("audio/wav", []byte("RIFF"), ""),
		llm.BlobPart("image/png", []byte{0x89}, "scan.png"),
		llm.BlobPart("application/pdf", []byte("%PDF"), "doc.pdf"),
		llm.TextPart("Transcribe this."),
	}}
	param, err := convertMessage(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	parts := param.OfUser.Content.OfArrayOfContentParts
	if len(parts) != 4 {
		t.Fatalf("expected 4 parts, got %d", len(parts))
	}
	if parts[0].OfInputAudio == nil || parts[0].OfInputAudio.InputAudio.Format != "wav" {
		t.Errorf("part 0: expected wav input_audio, got %+v", parts[0])
	}
	if parts[1].OfImageURL == nil || !strings.HasPrefix(parts[1].OfImageURL.ImageURL.URL, "data:image/png;base64,") {
		t.Errorf("part 1: expected image data URL, got %+v", parts[1])
	}
	if parts[2].OfFile == nil || parts[2].OfFile.File.Filename.Value != "doc.pdf" {
		t.Errorf("part 2: expected file part named doc.pdf, got %+v", parts[2])
	}
	if parts[3].OfText == nil || parts[3].OfText.Text != "Transcribe this." {
		t.Errorf("part 3: expected text part, got %+v", parts[3])
	}
}

func TestConvertMessage_UnsupportedAudio(t *testing.T) {
	msg := llm.Message{Role: llm.RoleUser, Parts: []llm.Part{llm.BlobPart("audio/webm", []byte{1}, "")}}
	if _, err := convertMessage(msg); err == nil {
		t.Fatal("expected error for audio/webm")
	}
}

func TestConvertMessage_Assistant(t *testing.T) {
	param, err := convertMessage(llm.Message{Role: "assistant", Content: "Hi there!"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfAssistant == nil {
		t.Fatal("expected OfAssistant to be set")
	}
}

func TestConvertMessage_UnknownRole(t *testing.T) {
	if _, err := convertMessage(llm.Message{Role: "tool", Content: "x"}); err == nil {
		t.Fatal("expected error for unsupported role")
	}
}

func TestModelCapabilities(t *testing.T) {
	tests := []struct {
		model     string
		audio     bool
		vision    bool
		documents bool
	}{
		{"gemini-2.5-flash", true, true, true},
		{"gpt-4o-audio-preview", true, false, false},
		{"gpt-4o", false, true, true},
		{"some-local-model", false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			caps := modelCapabilities(tt.model)
			if caps.SupportsAudio != tt.audio || caps.SupportsVision != tt.vision || caps.SupportsDocuments != tt.documents {
				t.Errorf("caps = %+v", caps)
			}
			if !caps.SupportsStreaming {
				t.Error("expected streaming support")
			}
		})
	}
}

func TestCountTokens_Estimation(t *testing.T) {
	p := &Provider{model: "gemini-2.5-flash"}
	n, err := p.CountTokens([]llm.Message{llm.UserText("12345678")})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2+4 {
		t.Errorf("expected 6 tokens, got %d", n)
	}
}

func TestNew_MissingAPIKey(t *testing.T) {
	if _, err := New("", "gemini-2.5-flash"); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestNew_MissingModel(t *testing.T) {
	if _, err := New("key", ""); err == nil {
		t.Fatal("expected error for empty model")
	}
}

func TestComplete_SendsInlineAudio(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":0,"model":"gemini-2.5-flash",
			"choices":[{"index":0,"message":{"role":"assistant","content":"xin chào"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`)
	}))
	defer srv.Close()

	p, err := New("key", "gemini-2.5-flash", WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Parts: []llm.Part{
			llm.TextPart("Transcribe."),
			llm.BlobPart("audio/wav", []byte("RIFF"), ""),
		}}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "xin chào" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 5 {
		t.Errorf("total tokens = %d", resp.Usage.TotalTokens)
	}

	msgs, _ := body["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message on the wire, got %d", len(msgs))
	}
	content, _ := msgs[0].(map[string]any)["content"].([]any)
	if len(content) != 2 {
		t.Fatalf("expected 2 content parts, got %d", len(content))
	}
	audio, _ := content[1].(map[string]any)
	if audio["type"] != "input_audio" {
		t.Errorf("second part type = %v", audio["type"])
	}
}

func TestStreamCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, frag := range []string{"Xin ", "chào"} {
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":0,\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q},\"finish_reason\":null}]}\n\n", frag)
		}
		fmt.Fprint(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":0,\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p, err := New("key", "m", WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatal(err)
	}
	ch, err := p.StreamCompletion(context.Background(), llm.CompletionRequest{
		SystemPrompt: "Answer in Vietnamese.",
		Messages:     []llm.Message{llm.UserText("hi")},
	})
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}
	got, err := llm.Collect(context.Background(), ch, nil)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got != "Xin chào" {
		t.Errorf("got %q", got)
	}
}
