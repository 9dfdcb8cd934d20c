// Package mock provides test doubles for capture.Device and capture.Stream.
//
// Device.OpenErrs is consumed one entry per Open call, so a test can make the
// default profile fail and the fallback succeed:
//
//	d := &mock.Device{
//	    OpenErrs: []error{errors.New("no such filter"), nil},
//	    PCM:      pcm,
//	}
package mock

import (
	"context"
	"io"
	"sync"

	"github.com/MrWong99/voicenotes/internal/capture"
)

// Device is a mock implementation of capture.Device.
type Device struct {
	mu sync.Mutex

	// OpenErrs holds the error returned by each successive Open call. Calls
	// past the end of the slice succeed.
	OpenErrs []error

	// PCM is served by every opened stream before it blocks until Stop.
	PCM []byte

	// Format is reported by opened streams. Zero means 16 kHz mono.
	Format capture.Format

	// Profiles records the profile of every Open call.
	Profiles []capture.Profile

	// Streams records every stream handed out.
	Streams []*Stream
}

var _ capture.Device = (*Device)(nil)

// Open implements capture.Device.
func (d *Device) Open(_ context.Context, p capture.Profile) (capture.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	call := len(d.Profiles)
	d.Profiles = append(d.Profiles, p)
	if call < len(d.OpenErrs) && d.OpenErrs[call] != nil {
		return nil, d.OpenErrs[call]
	}
	f := d.Format
	if f.SampleRate == 0 {
		f = capture.Format{SampleRate: 16000, Channels: 1}
	}
	s := NewStream(d.PCM, f)
	d.Streams = append(d.Streams, s)
	return s, nil
}

// OpenCount returns the number of Open calls.
func (d *Device) OpenCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Profiles)
}

// Stream serves a fixed PCM buffer, then blocks until Stop.
type Stream struct {
	mu      sync.Mutex
	pcm     []byte
	format  capture.Format
	stopped chan struct{}
	once    sync.Once
	stops   int
}

var _ capture.Stream = (*Stream)(nil)

// NewStream returns a stream serving pcm in format f.
func NewStream(pcm []byte, f capture.Format) *Stream {
	return &Stream{pcm: append([]byte(nil), pcm...), format: f, stopped: make(chan struct{})}
}

// Read implements io.Reader.
func (s *Stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	if len(s.pcm) > 0 {
		n := copy(p, s.pcm)
		s.pcm = s.pcm[n:]
		s.mu.Unlock()
		return n, nil
	}
	s.mu.Unlock()
	<-s.stopped
	return 0, io.EOF
}

// Format implements capture.Stream.
func (s *Stream) Format() capture.Format { return s.format }

// Stop implements capture.Stream.
func (s *Stream) Stop() error {
	s.mu.Lock()
	s.stops++
	s.mu.Unlock()
	s.once.Do(func() { close(s.stopped) })
	return nil
}

// StopCount returns how many times Stop was called.
func (s *Stream) StopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

// Stopped reports whether Stop was called.
func (s *Stream) Stopped() bool {
	select {
	case <-s.stopped:
		return true
	default:
		return false
	}
}
