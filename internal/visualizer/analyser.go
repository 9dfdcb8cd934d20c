// Package visualizer turns live microphone PCM into waveform bar frames and
// drives the recording timer.
//
// The [Analyser] reproduces the byte frequency data of a Web Audio
// AnalyserNode (Blackman window, FFT, temporal smoothing, dB scaling) so the
// bars look the same as in the browser client. [Render] lays the bars out on
// a [Canvas]; the [Visualizer] ties both to a self-terminating frame loop.
package visualizer

import (
	"encoding/binary"
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/MrWong99/voicenotes/internal/capture"
)

// Analyser defaults, matching the recording view.
const (
	DefaultFFTSize   = 256
	DefaultSmoothing = 0.75
	DefaultMinDB     = -100.0
	DefaultMaxDB     = -30.0
)

// Analyser computes smoothed byte frequency data from the most recent
// FFTSize mono samples. It implements [capture.Tap] and is safe for
// concurrent use.
type Analyser struct {
	mu sync.Mutex

	fftSize   int
	smoothing float64
	minDB     float64
	maxDB     float64

	fft      *fourier.FFT
	window   []float64
	ring     []float64
	pos      int
	smoothed []float64
	windowed []float64
	coeffs   []complex128
}

var _ capture.Tap = (*Analyser)(nil)

// AnalyserOption configures an Analyser.
type AnalyserOption func(*Analyser)

// WithFFTSize sets the transform length. It must be a power of two >= 32;
// other values are ignored.
func WithFFTSize(n int) AnalyserOption {
	return func(a *Analyser) {
		if n >= 32 && n&(n-1) == 0 {
			a.fftSize = n
		}
	}
}

// WithSmoothing sets the time constant in [0, 1).
func WithSmoothing(tau float64) AnalyserOption {
	return func(a *Analyser) {
		if tau >= 0 && tau < 1 {
			a.smoothing = tau
		}
	}
}

// WithDecibelRange sets the dB values mapped to 0 and 255.
func WithDecibelRange(minDB, maxDB float64) AnalyserOption {
	return func(a *Analyser) {
		if minDB < maxDB {
			a.minDB, a.maxDB = minDB, maxDB
		}
	}
}

// NewAnalyser creates an Analyser with the defaults above.
func NewAnalyser(opts ...AnalyserOption) *Analyser {
	a := &Analyser{
		fftSize:   DefaultFFTSize,
		smoothing: DefaultSmoothing,
		minDB:     DefaultMinDB,
		maxDB:     DefaultMaxDB,
	}
	for _, o := range opts {
		o(a)
	}
	n := a.fftSize
	a.fft = fourier.NewFFT(n)
	a.window = blackman(n)
	a.ring = make([]float64, n)
	a.windowed = make([]float64, n)
	a.coeffs = make([]complex128, n/2+1)
	a.smoothed = make([]float64, n/2)
	return a
}

// FrequencyBinCount is half the FFT size.
func (a *Analyser) FrequencyBinCount() int { return a.fftSize / 2 }

// WritePCM appends interleaved s16le samples, down-mixed to mono.
func (a *Analyser) WritePCM(pcm []byte, f capture.Format) {
	ch := max(f.Channels, 1)
	frame := ch * 2
	a.mu.Lock()
	defer a.mu.Unlock()
	for off := 0; off+frame <= len(pcm); off += frame {
		var sum float64
		for c := range ch {
			sum += float64(int16(binary.LittleEndian.Uint16(pcm[off+c*2:])))
		}
		a.ring[a.pos] = sum / float64(ch) / 32768
		a.pos = (a.pos + 1) % a.fftSize
	}
}

// ByteFrequencyData fills dst with one byte per bin and returns the number
// written. Each call advances the smoothing state.
func (a *Analyser) ByteFrequencyData(dst []byte) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := a.fftSize
	// Oldest sample first; unfilled slots stay zero.
	for i := range n {
		a.windowed[i] = a.ring[(a.pos+i)%n] * a.window[i]
	}
	a.coeffs = a.fft.Coefficients(a.coeffs, a.windowed)

	bins := min(len(dst), n/2)
	scale := 255 / (a.maxDB - a.minDB)
	for k := range n / 2 {
		mag := cmplx.Abs(a.coeffs[k]) / float64(n)
		a.smoothed[k] = a.smoothing*a.smoothed[k] + (1-a.smoothing)*mag
		if k >= bins {
			continue
		}
		db := 20 * math.Log10(a.smoothed[k])
		v := math.Floor(scale * (db - a.minDB))
		switch {
		case math.IsNaN(v) || v < 0:
			v = 0
		case v > 255:
			v = 255
		}
		dst[k] = byte(v)
	}
	return bins
}

// Reset clears the sample history and smoothing state.
func (a *Analyser) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.ring)
	clear(a.smoothed)
	a.pos = 0
}

// blackman returns the Blackman window used by Web Audio analysers.
func blackman(n int) []float64 {
	const alpha = 0.16
	a0, a1, a2 := (1-alpha)/2, 0.5, alpha/2
	w := make([]float64, n)
	for i := range w {
		x := 2 * math.Pi * float64(i) / float64(n)
		w[i] = a0 - a1*math.Cos(x) + a2*math.Cos(2*x)
	}
	return w
}
