// Package pipeline turns a recorded audio blob into a polished markdown note.
//
// A run is strictly sequential: transcribe the audio, detect whether the
// transcript is English, then either polish it directly in the target
// language or polish it in English and translate the draft. Each stage is a
// single model call; there are no retries and no timeouts beyond the caller's
// context. A stage that comes back empty aborts the run with a sentinel
// error; results of earlier stages are reported through the [Observer] before
// the next stage starts, so callers keep whatever partial output exists.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"text/template"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/voicenotes/internal/markdown"
	"github.com/MrWong99/voicenotes/internal/observe"
	"github.com/MrWong99/voicenotes/pkg/provider/llm"
)

// Sentinel errors for stages that produced no usable output.
var (
	ErrEmptyAudio         = errors.New("pipeline: audio blob is empty")
	ErrEmptyTranscription = errors.New("pipeline: transcription is empty")
	ErrEmptyEnglishDraft  = errors.New("pipeline: polished English draft is empty")
	ErrEmptyPolish        = errors.New("pipeline: polished note is empty")
	ErrEmptyTranslation   = errors.New("pipeline: translated note is empty")
)

// detectExcerptRunes is how much of the transcript the detector sees.
const detectExcerptRunes = 500

// Stage identifies one step of a run.
type Stage string

const (
	StageTranscribe Stage = "transcribe"
	StageDetect     Stage = "detect"
	StagePolish     Stage = "polish"
	StageTranslate  Stage = "translate"
)

// Language is the outcome of language detection.
type Language string

const (
	LanguageUnknown Language = ""
	LanguageEnglish Language = "english"
	// LanguageOther covers the target language and any ambiguous answer.
	LanguageOther Language = "other"
)

// StageError wraps a provider failure with the stage it happened in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("pipeline: %s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// FailedStage returns the stage an error from Run belongs to.
func FailedStage(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	switch {
	case errors.Is(err, ErrEmptyAudio), errors.Is(err, ErrEmptyTranscription):
		return StageTranscribe
	case errors.Is(err, ErrEmptyEnglishDraft), errors.Is(err, ErrEmptyPolish):
		return StagePolish
	case errors.Is(err, ErrEmptyTranslation):
		return StageTranslate
	}
	return ""
}

// Observer receives progress while a run is in flight.
type Observer interface {
	// StageStarted is called before each model call. lang is
	// LanguageUnknown until detection has finished.
	StageStarted(stage Stage, lang Language)
	// Transcribed is called once with the non-empty raw transcript.
	Transcribed(raw string)
	// Polished is called once with the final note and its HTML rendering.
	Polished(markdown, html string)
}

// NopObserver ignores all progress.
type NopObserver struct{}

func (NopObserver) StageStarted(Stage, Language) {}
func (NopObserver) Transcribed(string)           {}
func (NopObserver) Polished(string, string)      {}

// Result is the output of a successful run.
type Result struct {
	Raw        string
	Polished   string
	HTML       string
	Language   Language
	Translated bool
}

// Config controls a Pipeline.
type Config struct {
	// TargetLanguage is the language name notes end up in. Default "Vietnamese".
	TargetLanguage string
	Prompts        Prompts
}

// Pipeline runs transcription and polishing against model providers. It is
// safe for concurrent use; prompts may be swapped at runtime with SetConfig.
type Pipeline struct {
	audio llm.Provider
	text  llm.Provider

	audioName string
	textName  string
	metrics   *observe.Metrics

	state atomic.Pointer[runState]
}

type runState struct {
	target  string
	prompts *compiledPrompts
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMetrics records stage latencies and provider calls on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithProviderNames sets the provider labels used in metrics and logs.
func WithProviderNames(audio, text string) Option {
	return func(p *Pipeline) {
		p.audioName = audio
		p.textName = text
	}
}

// New creates a Pipeline. audio receives the transcription call and must
// accept inline audio; text serves detection, polishing and translation.
// Passing the same provider for both is the common case.
func New(audio, text llm.Provider, cfg Config, opts ...Option) (*Pipeline, error) {
	if audio == nil {
		return nil, errors.New("pipeline: audio provider must not be nil")
	}
	if text == nil {
		text = audio
	}
	p := &Pipeline{
		audio:     audio,
		text:      text,
		audioName: "audio",
		textName:  "text",
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	if err := p.SetConfig(cfg); err != nil {
		return nil, err
	}
	return p, nil
}

// SetConfig replaces the target language and prompts for subsequent runs.
func (p *Pipeline) SetConfig(cfg Config) error {
	compiled, err := cfg.Prompts.compile()
	if err != nil {
		return err
	}
	target := strings.TrimSpace(cfg.TargetLanguage)
	if target == "" {
		target = "Vietnamese"
	}
	p.state.Store(&runState{target: target, prompts: compiled})
	return nil
}

// TargetLanguage returns the configured output language name.
func (p *Pipeline) TargetLanguage() string {
	return p.state.Load().target
}

// Run executes the full pipeline on audio. obs may be nil.
func (p *Pipeline) Run(ctx context.Context, audio llm.Blob, obs Observer) (Result, error) {
	if obs == nil {
		obs = NopObserver{}
	}
	st := p.state.Load()

	ctx, span := observe.StartSpan(ctx, "pipeline.run")
	defer span.End()

	res, err := p.run(ctx, st, audio, obs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observe.Logger(ctx).Warn("pipeline: run failed", "stage", FailedStage(err), "err", err)
		return res, err
	}
	span.SetAttributes(
		attribute.String("language", string(res.Language)),
		attribute.Bool("translated", res.Translated),
	)
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, st *runState, audio llm.Blob, obs Observer) (Result, error) {
	var res Result
	if len(audio.Data) == 0 {
		return res, ErrEmptyAudio
	}

	// ── Transcribe ──────────────────────────────────────────────────────────
	obs.StageStarted(StageTranscribe, LanguageUnknown)
	instruction, err := render(st.prompts.transcribe, promptData{Target: st.target})
	if err != nil {
		return res, err
	}
	blob := audio
	raw, err := p.call(ctx, StageTranscribe, p.audio, p.audioName, llm.Message{
		Role:  llm.RoleUser,
		Parts: []llm.Part{llm.TextPart(instruction), {Blob: &blob}},
	})
	if err != nil {
		return res, err
	}
	if strings.TrimSpace(raw) == "" {
		return res, ErrEmptyTranscription
	}
	res.Raw = raw
	obs.Transcribed(raw)

	// ── Detect language ─────────────────────────────────────────────────────
	obs.StageStarted(StageDetect, LanguageUnknown)
	res.Language, err = p.detect(ctx, st, raw)
	if err != nil {
		return res, err
	}

	// ── Polish / translate ──────────────────────────────────────────────────
	if res.Language == LanguageEnglish && !strings.EqualFold(st.target, "English") {
		obs.StageStarted(StagePolish, res.Language)
		draft, err := p.textCall(ctx, StagePolish, st.prompts.polishEnglish, promptData{Text: raw, Target: st.target})
		if err != nil {
			return res, err
		}
		if strings.TrimSpace(draft) == "" {
			return res, ErrEmptyEnglishDraft
		}

		obs.StageStarted(StageTranslate, res.Language)
		translated, err := p.textCall(ctx, StageTranslate, st.prompts.translate, promptData{Text: draft, Target: st.target})
		if err != nil {
			return res, err
		}
		if strings.TrimSpace(translated) == "" {
			return res, ErrEmptyTranslation
		}
		res.Polished = translated
		res.Translated = true
	} else {
		tmpl := st.prompts.polishTarget
		if res.Language == LanguageEnglish {
			tmpl = st.prompts.polishEnglish
		}
		obs.StageStarted(StagePolish, res.Language)
		polished, err := p.textCall(ctx, StagePolish, tmpl, promptData{Text: raw, Target: st.target})
		if err != nil {
			return res, err
		}
		if strings.TrimSpace(polished) == "" {
			return res, ErrEmptyPolish
		}
		res.Polished = polished
	}

	res.HTML = markdown.MustRender(res.Polished)
	obs.Polished(res.Polished, res.HTML)
	return res, nil
}

// detect asks the text model which language the transcript is in. Any answer
// that does not mention English takes the target-language branch.
func (p *Pipeline) detect(ctx context.Context, st *runState, raw string) (Language, error) {
	answer, err := p.textCall(ctx, StageDetect, st.prompts.detect, promptData{Text: excerpt(raw, detectExcerptRunes), Target: st.target})
	if err != nil {
		return LanguageUnknown, err
	}
	if strings.Contains(strings.ToLower(strings.TrimSpace(answer)), "english") {
		return LanguageEnglish, nil
	}
	return LanguageOther, nil
}

// textCall renders tmpl and sends it as a single user message to the text
// provider.
func (p *Pipeline) textCall(ctx context.Context, stage Stage, tmpl *template.Template, data promptData) (string, error) {
	prompt, err := render(tmpl, data)
	if err != nil {
		return "", err
	}
	return p.call(ctx, stage, p.text, p.textName, llm.UserText(prompt))
}

// call performs one non-streaming completion and records its latency.
func (p *Pipeline) call(ctx context.Context, stage Stage, prov llm.Provider, name string, msg llm.Message) (string, error) {
	ctx, span := observe.StartSpan(ctx, "pipeline."+string(stage))
	defer span.End()

	start := time.Now()
	resp, err := prov.Complete(ctx, llm.CompletionRequest{Messages: []llm.Message{msg}})
	elapsed := time.Since(start)

	p.metrics.RecordStage(ctx, string(stage), elapsed, err)
	p.metrics.LLMDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(observe.Attr("provider", name), observe.Attr("stage", string(stage))))
	if err != nil {
		p.metrics.RecordProviderRequest(ctx, name, "complete", "error")
		p.metrics.RecordProviderError(ctx, name, "complete")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", &StageError{Stage: stage, Err: err}
	}
	p.metrics.RecordProviderRequest(ctx, name, "complete", "ok")
	if resp == nil {
		return "", nil
	}
	return resp.Content, nil
}

// excerpt returns at most n runes of s.
func excerpt(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
