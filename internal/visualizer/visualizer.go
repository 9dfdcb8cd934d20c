package visualizer

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/voicenotes/internal/capture"
)

// DefaultFrameInterval approximates a 60 Hz display refresh.
const DefaultFrameInterval = time.Second / 60

// Visualizer owns the analyser, its bin buffer and the canvas for one
// recording at a time. While started it renders a frame every interval;
// the loop ends by itself the first time any of those is missing or the
// recording flag is cleared. It implements [capture.Tap] by forwarding to
// the current analyser.
type Visualizer struct {
	canvas   *FrameCanvas
	interval time.Duration
	onFrame  func(Frame)
	newAn    func() *Analyser

	mu        sync.Mutex
	analyser  *Analyser
	buf       []byte
	recording bool
	visible   bool
	loop      *loopHandle
	timer     *Timer
}

type loopHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

var _ capture.Tap = (*Visualizer)(nil)

// Option configures a Visualizer.
type Option func(*Visualizer)

// WithFrameInterval sets the frame period.
func WithFrameInterval(d time.Duration) Option {
	return func(v *Visualizer) {
		if d > 0 {
			v.interval = d
		}
	}
}

// WithFrameHook is called with every rendered frame, on the loop goroutine.
func WithFrameHook(fn func(Frame)) Option {
	return func(v *Visualizer) { v.onFrame = fn }
}

// WithAnalyserOptions configures the analyser created for each recording.
func WithAnalyserOptions(opts ...AnalyserOption) Option {
	return func(v *Visualizer) {
		v.newAn = func() *Analyser { return NewAnalyser(opts...) }
	}
}

// New creates a Visualizer drawing on canvas. A nil canvas is allowed; the
// frame loop then ends on its first tick.
func New(canvas *FrameCanvas, opts ...Option) *Visualizer {
	v := &Visualizer{
		canvas:   canvas,
		interval: DefaultFrameInterval,
		newAn:    func() *Analyser { return NewAnalyser() },
		visible:  true,
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Start sets up a fresh analyser and starts the frame loop and the timer.
// onTick receives mm:ss.hh strings. Start while already started restarts.
func (v *Visualizer) Start(ctx context.Context, started time.Time, onTick func(string)) {
	v.Stop()

	v.mu.Lock()
	a := v.newAn()
	v.analyser = a
	v.buf = make([]byte, a.FrequencyBinCount())
	v.recording = true

	loopCtx, cancel := context.WithCancel(ctx)
	h := &loopHandle{cancel: cancel, done: make(chan struct{})}
	v.loop = h
	if onTick != nil {
		v.timer = StartTimer(ctx, started, TimerInterval, onTick)
	}
	v.mu.Unlock()

	go v.run(loopCtx, h)
}

// Stop clears the recording flag, cancels the frame loop and the timer and
// releases the analyser. It is safe to call at any time.
func (v *Visualizer) Stop() {
	v.mu.Lock()
	v.recording = false
	h := v.loop
	t := v.timer
	v.loop, v.timer = nil, nil
	v.analyser, v.buf = nil, nil
	v.mu.Unlock()

	if h != nil {
		h.cancel()
		<-h.done
	}
	t.Stop()
	if v.canvas != nil {
		v.canvas.Clear()
	}
}

// Running reports whether a frame loop is active.
func (v *Visualizer) Running() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.loop == nil {
		return false
	}
	select {
	case <-v.loop.done:
		return false
	default:
		return true
	}
}

// WritePCM implements capture.Tap.
func (v *Visualizer) WritePCM(pcm []byte, f capture.Format) {
	v.mu.Lock()
	a := v.analyser
	v.mu.Unlock()
	if a != nil {
		a.WritePCM(pcm, f)
	}
}

// Resize applies a viewport change to the canvas. It only takes effect
// while recording and visible, and reports whether it did.
func (v *Visualizer) Resize(cssWidth, cssHeight, dpr float64, visible bool) bool {
	v.mu.Lock()
	v.visible = visible
	apply := v.recording && visible && v.canvas != nil
	v.mu.Unlock()
	if apply {
		v.canvas.Resize(cssWidth, cssHeight, dpr)
	}
	return apply
}

func (v *Visualizer) run(ctx context.Context, h *loopHandle) {
	defer close(h.done)
	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !v.frame() {
				return
			}
		}
	}
}

// frame renders once. It returns false when the loop must end.
func (v *Visualizer) frame() bool {
	v.mu.Lock()
	a, buf, rec := v.analyser, v.buf, v.recording
	v.mu.Unlock()
	if a == nil || buf == nil || v.canvas == nil || !rec {
		return false
	}
	a.ByteFrequencyData(buf)
	Render(v.canvas, buf)
	if v.onFrame != nil {
		v.onFrame(v.canvas.Frame())
	}
	return true
}
