// Package capture records microphone audio into a single WAV blob.
//
// A [Recorder] acquires a [Stream] from a [Device] with the default
// processing [Profile], falling back once to an unprocessed profile when the
// device refuses it. While capturing, every PCM chunk is buffered and offered
// to an optional [Tap] (the waveform analyser). StopCapture tears the stream
// down unconditionally, finalises the buffered chunks and fires the
// completion hook exactly once.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Acquisition error categories. Errors returned by Acquire wrap exactly one
// of these or none (generic failure).
var (
	ErrPermissionDenied = errors.New("capture: microphone permission denied")
	ErrDeviceNotFound   = errors.New("capture: no microphone found")
	ErrDeviceBusy       = errors.New("capture: microphone is in use")
)

// ErrAlreadyCapturing is returned by StartCapture while a capture is running.
var ErrAlreadyCapturing = errors.New("capture: already capturing")

// AcquireError describes a failed microphone acquisition.
type AcquireError struct {
	// Kind is one of the category sentinels, or nil for uncategorised errors.
	Kind error
	// Detail is the device's own description of the failure.
	Detail string
	Err    error
}

func (e *AcquireError) Error() string {
	msg := "capture: acquire microphone"
	if e.Kind != nil {
		msg = e.Kind.Error()
	}
	if e.Detail != "" {
		return msg + ": " + e.Detail
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the category and the underlying cause.
func (e *AcquireError) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Profile selects the input processing applied by the device.
type Profile struct {
	Name             string
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

var (
	// DefaultProfile enables every processing stage.
	DefaultProfile = Profile{Name: "default", EchoCancellation: true, NoiseSuppression: true, AutoGainControl: true}
	// FallbackProfile disables all processing.
	FallbackProfile = Profile{Name: "fallback"}
)

// Format describes interleaved signed 16-bit little-endian PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// bytesPerSecond returns the PCM data rate.
func (f Format) bytesPerSecond() int { return f.SampleRate * f.Channels * 2 }

// Stream is an open microphone. Read yields raw PCM in Format(); Stop
// releases the device and makes pending reads return.
type Stream interface {
	io.Reader
	Format() Format
	Stop() error
}

// Device opens microphone streams.
type Device interface {
	Open(ctx context.Context, p Profile) (Stream, error)
}

// Tap receives live PCM chunks while capturing. Implementations must not
// retain pcm after returning.
type Tap interface {
	WritePCM(pcm []byte, f Format)
}

// Blob is a finalised recording.
type Blob struct {
	MIMEType   string
	Data       []byte
	SampleRate int
	Channels   int
	Duration   time.Duration
}

// Size returns the encoded length in bytes.
func (b Blob) Size() int { return len(b.Data) }

// Recorder drives one capture at a time. It is safe for concurrent use.
type Recorder struct {
	device  Device
	chunkSz int

	mu     sync.Mutex
	tap    Tap
	active *session
}

type session struct {
	stream     Stream
	format     Format
	done       chan struct{}
	mu         sync.Mutex
	chunks     [][]byte
	readErr    error
	onComplete func(Blob)
	fired      sync.Once
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithTap forwards live chunks to t.
func WithTap(t Tap) Option {
	return func(r *Recorder) { r.tap = t }
}

// WithChunkSize sets the read size in bytes. Default 4096.
func WithChunkSize(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.chunkSz = n
		}
	}
}

// NewRecorder creates a Recorder on device.
func NewRecorder(device Device, opts ...Option) *Recorder {
	r := &Recorder{device: device, chunkSz: 4096}
	for _, o := range opts {
		o(r)
	}
	return r
}

// SetTap replaces the live chunk consumer. nil disables it.
func (r *Recorder) SetTap(t Tap) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tap = t
}

// Acquire opens the microphone with DefaultProfile, retrying once with
// FallbackProfile. The returned error is an *AcquireError.
func (r *Recorder) Acquire(ctx context.Context) (Stream, error) {
	s, err := r.device.Open(ctx, DefaultProfile)
	if err == nil {
		return s, nil
	}
	slog.Warn("capture: default profile rejected, retrying without processing", "err", err)

	s, err = r.device.Open(ctx, FallbackProfile)
	if err == nil {
		return s, nil
	}
	var ae *AcquireError
	if errors.As(err, &ae) {
		return nil, ae
	}
	return nil, &AcquireError{Kind: Classify(err.Error()), Err: err}
}

// StartCapture begins buffering stream. onComplete is invoked exactly once
// by StopCapture with the finalised blob, which may be empty.
func (r *Recorder) StartCapture(stream Stream, onComplete func(Blob)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return ErrAlreadyCapturing
	}
	sess := &session{
		stream:     stream,
		format:     stream.Format(),
		done:       make(chan struct{}),
		onComplete: onComplete,
	}
	r.active = sess
	go r.readLoop(sess)
	return nil
}

// Capturing reports whether a capture is running.
func (r *Recorder) Capturing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

func (r *Recorder) readLoop(s *session) {
	defer close(s.done)
	buf := make([]byte, r.chunkSz)
	for {
		n, err := s.stream.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.mu.Lock()
			s.chunks = append(s.chunks, chunk)
			s.mu.Unlock()

			r.mu.Lock()
			tap := r.tap
			r.mu.Unlock()
			if tap != nil {
				tap.WritePCM(chunk, s.format)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.mu.Lock()
				s.readErr = err
				s.mu.Unlock()
			}
			return
		}
	}
}

// StopCapture stops the stream, waits for buffered data and returns the
// finalised WAV blob. Calling it without an active capture is a no-op that
// returns an empty blob.
func (r *Recorder) StopCapture() (Blob, error) {
	r.mu.Lock()
	s := r.active
	r.active = nil
	r.mu.Unlock()
	if s == nil {
		return Blob{}, nil
	}

	stopErr := s.stream.Stop()
	<-s.done

	s.mu.Lock()
	chunks := s.chunks
	readErr := s.readErr
	s.chunks = nil
	s.mu.Unlock()

	if stopErr != nil {
		slog.Warn("capture: stream stop", "err", stopErr)
	}
	if readErr != nil {
		slog.Warn("capture: stream read", "err", readErr)
	}

	blob, err := finalize(chunks, s.format)
	if err != nil {
		err = fmt.Errorf("capture: finalize: %w", err)
		blob = Blob{MIMEType: WAVMIMEType, SampleRate: s.format.SampleRate, Channels: s.format.Channels}
	}
	s.fired.Do(func() {
		if s.onComplete != nil {
			s.onComplete(blob)
		}
	})
	return blob, err
}
