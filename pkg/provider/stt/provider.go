// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (e.g. Deepgram or a local
// whisper.cpp server) behind a uniform streaming interface. Once opened, a
// session accepts raw 16-bit PCM frames and emits two streams of Transcript
// values: interim partials for responsiveness and authoritative finals.
//
// Dictation uses a session in single-utterance mode: send the whole
// utterance, Close, then drain Finals.
package stt

import (
	"context"
	"errors"
	"time"
)

// ErrSessionClosed is returned by SendAudio after Close.
var ErrSessionClosed = errors.New("stt: session is closed")

// StreamConfig describes the audio format and recognition options for a new
// session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz, typically 16000.
	SampleRate int

	// Channels is the number of interleaved channels. 1 = mono.
	Channels int

	// Language is the BCP-47 tag for recognition (e.g. "vi-VN"). Empty lets
	// the provider auto-detect, if supported.
	Language string

	// Interim requests partial results while audio is still arriving.
	Interim bool
}

// SessionHandle is an open STT session. All methods must be safe for
// concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw PCM in the format agreed in
	// StreamConfig. Calling SendAudio after Close returns ErrSessionClosed.
	SendAudio(chunk []byte) error

	// Partials emits interim transcripts. Closed when the session ends.
	Partials() <-chan Transcript

	// Finals emits committed transcripts. Closed when the session ends.
	Finals() <-chan Transcript

	// Close flushes pending audio and ends the session. Finals produced by
	// the flush are delivered before the channels close. Calling Close more
	// than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any STT backend. Implementations must be
// safe for concurrent use.
type Provider interface {
	// StartStream opens a transcription session ready to accept audio. The
	// caller owns the handle and must Close it.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}

// Transcript is a recognition result. Partials and finals share the type.
type Transcript struct {
	// Text is the recognised speech.
	Text string

	// IsFinal marks an authoritative result.
	IsFinal bool

	// Confidence is in [0, 1]; zero when the provider does not report it.
	Confidence float64

	// Words carries per-word timing when the provider reports it.
	Words []WordDetail
}

// WordDetail holds per-word metadata.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}
