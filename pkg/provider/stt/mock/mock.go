// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to verify that the caller starts sessions with the expected
// StreamConfig. Use Session to script the Transcript values a session emits
// once it is closed, and to inspect which audio chunks were delivered.
//
// Example:
//
//	sess := mock.NewSession(stt.Transcript{Text: "xin chào", IsFinal: true})
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.StartStream(ctx, cfg)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voicenotes/pkg/provider/stt"
)

// StartStreamCall records a single invocation of Provider.StartStream.
type StartStreamCall struct {
	Ctx context.Context
	Cfg stt.StreamConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is returned by StartStream. If nil, a new empty Session is
	// returned on every call.
	Session *Session

	// StartStreamErr, if non-nil, is returned as the error from StartStream.
	StartStreamErr error

	// StartStreamCalls records every call to StartStream.
	StartStreamCalls []StartStreamCall
}

// StartStream records the call and returns Session, StartStreamErr.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return NewSession(), nil
}

// Calls returns a copy of the recorded StartStream calls. Thread-safe.
func (p *Provider) Calls() []StartStreamCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]StartStreamCall, len(p.StartStreamCalls))
	copy(out, p.StartStreamCalls)
	return out
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)

// Session is a mock implementation of stt.SessionHandle. Close emits the
// scripted finals and then closes both channels, like a real provider
// flushing its last utterance.
type Session struct {
	mu sync.Mutex

	partials chan stt.Transcript
	finals   chan stt.Transcript
	script   []stt.Transcript
	closed   bool

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// SendAudioCalls holds a copy of every chunk passed to SendAudio.
	SendAudioCalls [][]byte

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// NewSession returns a Session that emits finals when closed.
func NewSession(finals ...stt.Transcript) *Session {
	return &Session{
		partials: make(chan stt.Transcript),
		finals:   make(chan stt.Transcript, len(finals)),
		script:   finals,
	}
}

// SendAudio records the chunk and returns SendAudioErr.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stt.ErrSessionClosed
	}
	s.SendAudioCalls = append(s.SendAudioCalls, append([]byte(nil), chunk...))
	return s.SendAudioErr
}

// Partials returns a channel that only closes.
func (s *Session) Partials() <-chan stt.Transcript { return s.partials }

// Finals returns the channel that receives the scripted finals on Close.
func (s *Session) Finals() <-chan stt.Transcript { return s.finals }

// Close emits the scripted finals once and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	if !s.closed {
		s.closed = true
		for _, t := range s.script {
			s.finals <- t
		}
		close(s.finals)
		close(s.partials)
	}
	return s.CloseErr
}

// Audio returns all delivered audio concatenated. Thread-safe.
func (s *Session) Audio() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []byte
	for _, c := range s.SendAudioCalls {
		out = append(out, c...)
	}
	return out
}

// Ensure Session implements stt.SessionHandle at compile time.
var _ stt.SessionHandle = (*Session)(nil)
