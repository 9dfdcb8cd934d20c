package resilience

import (
	"context"
	"errors"
	"sync"

	"github.com/MrWong99/voicenotes/pkg/provider/stt"
)

// STTFallback is an [stt.Provider] that opens dictation sessions on the
// first healthy backend. Only opening fails over. A session that breaks
// while audio is being sent returns the error to the caller and counts
// against the backend that served it, so the next dictation starts
// elsewhere once that backend's breaker opens.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] preferring primary.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends a dictation backend.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Names returns the backends in failover order.
func (f *STTFallback) Names() []string { return f.group.Names() }

// OpenCircuits returns the backends currently skipped by their breaker.
func (f *STTFallback) OpenCircuits() []string { return f.group.OpenCircuits() }

// StartStream opens a session on the first backend that accepts it.
func (f *STTFallback) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	h, name, err := executeNamed(ctx, f.group, func(p stt.Provider) (stt.SessionHandle, error) {
		return p.StartStream(ctx, cfg)
	})
	if err != nil {
		return nil, err
	}
	return &reportingSession{SessionHandle: h, report: func(err error) { f.group.Report(name, err) }}, nil
}

// reportingSession charges the first send failure to its backend.
type reportingSession struct {
	stt.SessionHandle
	report func(error)
	once   sync.Once
}

func (s *reportingSession) SendAudio(chunk []byte) error {
	err := s.SessionHandle.SendAudio(chunk)
	if err != nil && !errors.Is(err, stt.ErrSessionClosed) {
		s.once.Do(func() { s.report(err) })
	}
	return err
}
