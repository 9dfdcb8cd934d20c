// Package openai provides an LLM provider backed by the OpenAI chat completions
// API. Any OpenAI-compatible endpoint works, including Gemini's compatibility
// layer, which is the default used for audio transcription.
package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/voicenotes/pkg/provider/llm"
)

// GeminiBaseURL is Gemini's OpenAI-compatible endpoint.
const GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

// Provider implements llm.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
}

type config struct {
	baseURL      string
	organization string
	timeout      time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) {
		c.organization = org
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI-compatible Provider.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{client: oai.NewClient(reqOpts...), model: model}, nil
}

// StreamCompletion implements llm.Provider.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, fmt.Errorf("openai: build params: %w", err)
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("openai: start stream: %w", err)
	}

	ch := make(chan llm.Chunk, 32)
	go func() {
		defer close(ch)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			out := llm.Chunk{
				Text:         choice.Delta.Content,
				FinishReason: choice.FinishReason,
			}
			select {
			case ch <- out:
			case <-ctx.Done():
				return
			}
		}

		if err := stream.Err(); err != nil {
			select {
			case ch <- llm.Chunk{FinishReason: llm.FinishError, Text: err.Error()}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, fmt.Errorf("openai: build params: %w", err)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty choices in response")
	}

	return &llm.CompletionResponse{
		Content: resp.Choices[0].Message.Content,
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// CountTokens implements llm.Provider.
// Binary parts are charged a flat estimate per kilobyte.
func (p *Provider) CountTokens(messages []llm.Message) (int, error) {
	total := 0
	for _, m := range messages {
		// ~4 chars per token is a rough approximation for GPT and Gemini.
		total += (len(m.Text()) + 3) / 4
		for _, part := range m.Parts {
			if part.Blob != nil {
				total += (len(part.Blob.Data) + 1023) / 1024 * 32
			}
		}
		total += 4
	}
	return total, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	return modelCapabilities(p.model)
}

func modelCapabilities(model string) llm.ModelCapabilities {
	caps := llm.ModelCapabilities{
		SupportsStreaming: true,
		ContextWindow:     128_000,
		MaxOutputTokens:   4_096,
	}

	lower := strings.ToLower(model)
	switch {
	case strings.HasPrefix(lower, "gemini-2"), strings.HasPrefix(lower, "gemini-1.5"):
		caps.ContextWindow = 1_048_576
		caps.MaxOutputTokens = 65_536
		caps.SupportsVision = true
		caps.SupportsAudio = true
		caps.SupportsDocuments = true
	case strings.HasPrefix(lower, "gpt-4o-audio"), strings.HasPrefix(lower, "gpt-4o-mini-audio"):
		caps.MaxOutputTokens = 16_384
		caps.SupportsAudio = true
	case strings.HasPrefix(lower, "gpt-4o"), strings.HasPrefix(lower, "gpt-4.1"):
		caps.MaxOutputTokens = 16_384
		caps.SupportsVision = true
		caps.SupportsDocuments = true
	case strings.HasPrefix(lower, "gpt-3.5-turbo"):
		caps.ContextWindow = 16_385
	}
	return caps
}

func (p *Provider) buildParams(req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	var messages []oai.ChatCompletionMessageParamUnion

	if req.SystemPrompt != "" {
		messages = append(messages, oai.SystemMessage(req.SystemPrompt))
	}

	for _, m := range req.Messages {
		msg, err := convertMessage(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, err
		}
		messages = append(messages, msg)
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: messages,
	}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	return params, nil
}

func convertMessage(m llm.Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case llm.RoleSystem:
		return oai.SystemMessage(m.Text()), nil

	case llm.RoleUser:
		if len(m.Parts) == 0 {
			return oai.UserMessage(m.Content), nil
		}
		parts := make([]oai.ChatCompletionContentPartUnionParam, 0, len(m.Parts))
		for _, part := range m.Parts {
			cp, err := convertPart(part)
			if err != nil {
				return oai.ChatCompletionMessageParamUnion{}, err
			}
			parts = append(parts, cp)
		}
		return oai.UserMessage(parts), nil

	case llm.RoleAssistant:
		if m.HasBlobs() {
			return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai: assistant messages cannot carry binary parts")
		}
		asst := oai.ChatCompletionAssistantMessageParam{}
		if text := m.Text(); text != "" {
			asst.Content.OfString = oai.String(text)
		}
		return oai.ChatCompletionMessageParamUnion{OfAssistant: &asst}, nil

	default:
		return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai: unknown message role %q", m.Role)
	}
}

// convertPart maps a Part onto the matching content part: audio becomes
// input_audio, images become data-URL image parts and everything else is
// sent as an inline file.
func convertPart(part llm.Part) (oai.ChatCompletionContentPartUnionParam, error) {
	if part.Blob == nil {
		return oai.TextContentPart(part.Text), nil
	}
	b := part.Blob
	encoded := base64.StdEncoding.EncodeToString(b.Data)
	switch {
	case b.IsAudio():
		format, err := audioFormat(b.MIMEType)
		if err != nil {
			return oai.ChatCompletionContentPartUnionParam{}, err
		}
		return oai.InputAudioContentPart(oai.ChatCompletionContentPartInputAudioInputAudioParam{
			Data:   encoded,
			Format: format,
		}), nil
	case b.IsImage():
		return oai.ImageContentPart(oai.ChatCompletionContentPartImageImageURLParam{
			URL: dataURL(b.MIMEType, encoded),
		}), nil
	default:
		file := oai.ChatCompletionContentPartFileFileParam{
			FileData: param.NewOpt(dataURL(b.MIMEType, encoded)),
		}
		if b.Name != "" {
			file.Filename = param.NewOpt(b.Name)
		}
		return oai.FileContentPart(file), nil
	}
}

func audioFormat(mimeType string) (string, error) {
	base, _, _ := strings.Cut(mimeType, ";")
	switch strings.TrimSpace(base) {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav", nil
	case "audio/mpeg", "audio/mp3":
		return "mp3", nil
	default:
		return "", fmt.Errorf("openai: unsupported audio MIME type %q", mimeType)
	}
}

func dataURL(mimeType, encoded string) string {
	return "data:" + mimeType + ";base64," + encoded
}
