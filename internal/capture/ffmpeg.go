package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FFmpegConfig configures an FFmpegDevice.
type FFmpegConfig struct {
	// Command is the ffmpeg binary. Default "ffmpeg".
	Command string
	// InputFormat is the ffmpeg demuxer (pulse, alsa, avfoundation, dshow).
	// Default "pulse".
	InputFormat string
	// InputDevice is the device name passed to -i. Default "default".
	InputDevice string
	// EchoCancelDevice, when set, replaces InputDevice for profiles with
	// echo cancellation (e.g. a PulseAudio echo-cancel source).
	EchoCancelDevice string
	SampleRate       int
	Channels         int
	// StartupGrace is how long Open waits for ffmpeg to fail before
	// considering the device acquired. Default 250ms.
	StartupGrace time.Duration
	// StopTimeout bounds the wait after SIGINT before the process is killed.
	// Default 1.2s.
	StopTimeout time.Duration
}

// FFmpegDevice captures microphone PCM through an ffmpeg subprocess.
type FFmpegDevice struct {
	cfg FFmpegConfig
}

var _ Device = (*FFmpegDevice)(nil)

// NewFFmpegDevice returns a device with cfg's zero fields defaulted.
func NewFFmpegDevice(cfg FFmpegConfig) *FFmpegDevice {
	if cfg.Command == "" {
		cfg.Command = "ffmpeg"
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.StartupGrace <= 0 {
		cfg.StartupGrace = 250 * time.Millisecond
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 1200 * time.Millisecond
	}
	return &FFmpegDevice{cfg: cfg}
}

// args builds the ffmpeg command line for p.
func (d *FFmpegDevice) args(p Profile) []string {
	device := d.cfg.InputDevice
	if p.EchoCancellation && d.cfg.EchoCancelDevice != "" {
		device = d.cfg.EchoCancelDevice
	}
	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", d.cfg.InputFormat,
		"-i", device,
	}
	if af := filterChain(p); af != "" {
		args = append(args, "-af", af)
	}
	return append(args,
		"-ac", strconv.Itoa(d.cfg.Channels),
		"-ar", strconv.Itoa(d.cfg.SampleRate),
		"-f", "s16le",
		"-",
	)
}

// filterChain maps profile switches onto ffmpeg audio filters.
func filterChain(p Profile) string {
	var filters []string
	if p.NoiseSuppression {
		filters = append(filters, "afftdn=nf=-25")
	}
	if p.AutoGainControl {
		filters = append(filters, "dynaudnorm=f=150:g=15")
	}
	return strings.Join(filters, ",")
}

// Open starts ffmpeg and waits StartupGrace for it to fail. Failures are
// returned as *AcquireError categorised from ffmpeg's stderr.
func (d *FFmpegDevice) Open(ctx context.Context, p Profile) (Stream, error) {
	// The process must outlive the request that started it.
	cmd := exec.CommandContext(context.WithoutCancel(ctx), d.cfg.Command, d.args(p)...)
	stderr := &syncBuffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &AcquireError{Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	if err := cmd.Start(); err != nil {
		kind := error(nil)
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			kind = ErrDeviceNotFound
		}
		return nil, &AcquireError{Kind: kind, Err: fmt.Errorf("start %s: %w", d.cfg.Command, err)}
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		detail := strings.TrimSpace(stderr.String())
		if err == nil {
			err = errors.New("ffmpeg exited before capture started")
		}
		return nil, &AcquireError{Kind: Classify(detail), Detail: detail, Err: err}
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-waitErr
		return nil, &AcquireError{Err: ctx.Err()}
	case <-time.After(d.cfg.StartupGrace):
	}

	return &ffmpegStream{
		stdout:      stdout,
		stderr:      stderr,
		process:     cmd.Process,
		waitErr:     waitErr,
		format:      Format{SampleRate: d.cfg.SampleRate, Channels: d.cfg.Channels},
		stopTimeout: d.cfg.StopTimeout,
	}, nil
}

type ffmpegStream struct {
	stdout  io.ReadCloser
	stderr  *syncBuffer
	process *os.Process
	waitErr <-chan error
	format  Format

	stopTimeout time.Duration
	stopOnce    sync.Once
	stopErr     error
}

func (s *ffmpegStream) Read(p []byte) (int, error) { return s.stdout.Read(p) }
func (s *ffmpegStream) Format() Format             { return s.format }

// Stop interrupts ffmpeg, killing it if it does not exit within the stop
// timeout. It is idempotent.
func (s *ffmpegStream) Stop() error {
	s.stopOnce.Do(func() {
		_ = s.process.Signal(os.Interrupt)

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeExit(err)
			}
		case <-time.After(s.stopTimeout):
			_ = s.process.Kill()
			if err, ok := <-s.waitErr; ok {
				s.stopErr = normalizeExit(err)
			}
		}

		if err := s.stdout.Close(); err != nil && !errors.Is(err, os.ErrClosed) && s.stopErr == nil {
			s.stopErr = err
		}
		if s.stopErr != nil {
			if detail := strings.TrimSpace(s.stderr.String()); detail != "" {
				s.stopErr = fmt.Errorf("%w: %s", s.stopErr, detail)
			}
		}
	})
	return s.stopErr
}

// normalizeExit treats a non-zero exit after SIGINT as a clean stop.
func normalizeExit(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

// Classify maps a device error description onto an acquisition category.
// It returns nil when the description matches none.
func Classify(detail string) error {
	d := strings.ToLower(detail)
	switch {
	case containsAny(d, "permission denied", "operation not permitted", "access denied", "not authorized", "notallowederror"):
		return ErrPermissionDenied
	case containsAny(d, "device or resource busy", "resource busy", "already in use", "notreadableerror"):
		return ErrDeviceBusy
	case containsAny(d, "no such file or directory", "no such device", "no such entity", "unknown input format",
		"cannot open audio device", "could not find audio", "not found", "notfounderror"):
		return ErrDeviceNotFound
	}
	return nil
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// syncBuffer is a bytes.Buffer safe for the concurrent writes exec performs
// while Stop reads it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
