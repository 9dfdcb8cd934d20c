// Package dictation turns one spoken utterance into text for the chat input.
//
// A Dictator opens a non-continuous recognition session with a fixed locale,
// streams the utterance in 100 ms frames, closes the session and joins the
// final results. Without a speech provider the affordance is unavailable.
package dictation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/voicenotes/internal/observe"
	"github.com/MrWong99/voicenotes/pkg/audio"
	"github.com/MrWong99/voicenotes/pkg/provider/stt"
)

// DefaultLocale is the recognition language of dictation.
const DefaultLocale = "vi-VN"

const frameDuration = 100 * time.Millisecond

var (
	// ErrUnavailable is returned when no speech provider is configured.
	ErrUnavailable = errors.New("dictation: speech recognition is not available")
	// ErrNoSpeech is returned when the utterance produced no text.
	ErrNoSpeech = errors.New("dictation: no speech recognised")
	// ErrEmptyAudio is returned for an empty utterance.
	ErrEmptyAudio = errors.New("dictation: empty audio")
)

// Option configures a Dictator.
type Option func(*Dictator)

// WithLocale overrides DefaultLocale.
func WithLocale(locale string) Option {
	return func(d *Dictator) { d.locale = locale }
}

// WithProviderName labels metrics. Default "stt".
func WithProviderName(name string) Option {
	return func(d *Dictator) { d.name = name }
}

// WithMetrics sets the metrics sink. Default observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dictator) { d.metrics = m }
}

// Dictator transcribes single utterances. It is safe for concurrent use.
type Dictator struct {
	provider stt.Provider
	locale   string
	name     string
	metrics  *observe.Metrics
}

// New creates a Dictator. A nil provider yields an unavailable Dictator.
func New(provider stt.Provider, opts ...Option) *Dictator {
	d := &Dictator{provider: provider, locale: DefaultLocale, name: "stt"}
	for _, o := range opts {
		o(d)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	return d
}

// Available reports whether a provider is configured.
func (d *Dictator) Available() bool { return d != nil && d.provider != nil }

// Locale returns the recognition language.
func (d *Dictator) Locale() string { return d.locale }

// Transcribe recognises pcm, 16-bit little-endian audio in format f, and
// returns the utterance text.
func (d *Dictator) Transcribe(ctx context.Context, pcm []byte, f audio.Format) (text string, err error) {
	if !d.Available() {
		return "", ErrUnavailable
	}
	if len(pcm) == 0 {
		return "", ErrEmptyAudio
	}
	pcm, err = audio.Convert(pcm, f, audio.SpeechFormat)
	if err != nil {
		return "", fmt.Errorf("dictation: %w", err)
	}

	ctx, span := observe.StartSpan(ctx, "dictation.transcribe")
	defer span.End()
	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil && !errors.Is(err, ErrNoSpeech) {
			status = "error"
			d.metrics.RecordProviderError(ctx, d.name, "stt")
		}
		d.metrics.RecordProviderRequest(ctx, d.name, "stt", status)
		observe.Logger(ctx).Debug("dictation: transcribed",
			"locale", d.locale,
			"audio", audio.SpeechFormat.Duration(len(pcm)),
			"took", time.Since(start),
			"chars", len(text),
		)
	}()

	h, err := d.provider.StartStream(ctx, stt.StreamConfig{
		SampleRate: audio.SpeechFormat.SampleRate,
		Channels:   audio.SpeechFormat.Channels,
		Language:   d.locale,
	})
	if err != nil {
		return "", fmt.Errorf("dictation: start stream: %w", err)
	}

	for _, frame := range audio.Frames(pcm, audio.SpeechFormat, frameDuration) {
		if err := h.SendAudio(frame); err != nil {
			_ = h.Close()
			return "", fmt.Errorf("dictation: send audio: %w", err)
		}
	}
	if err := h.Close(); err != nil {
		return "", fmt.Errorf("dictation: close stream: %w", err)
	}

	var parts []string
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case t, ok := <-h.Finals():
			if !ok {
				text = strings.Join(parts, " ")
				if text == "" {
					return "", ErrNoSpeech
				}
				return text, nil
			}
			if s := strings.TrimSpace(t.Text); s != "" {
				parts = append(parts, s)
			}
		}
	}
}
