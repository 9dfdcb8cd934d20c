package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"gonum.org/v1/gonum/floats"
)

// EncodeWAV wraps 16-bit PCM in f as a RIFF/WAVE file in memory.
func EncodeWAV(pcm []byte, f Format) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if len(pcm)%f.frameBytes() != 0 {
		return nil, fmt.Errorf("%w: %d bytes of %s", ErrOddLength, len(pcm), f)
	}

	var out memFile
	enc := wav.NewEncoder(&out, f.SampleRate, 16, f.Channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
		Data:           Samples(pcm),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("audio: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("audio: close wav: %w", err)
	}
	return out.buf, nil
}

// Samples decodes little-endian int16 PCM. A trailing odd byte is ignored.
func Samples(pcm []byte) []int {
	out := make([]int, len(pcm)/2)
	for i := range out {
		out[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return out
}

// RMS is the root-mean-square amplitude of pcm, normalised to [0, 1].
// Empty input is silent.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	x := make([]float64, n)
	for i := range x {
		x[i] = float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / math.MaxInt16
	}
	return floats.Norm(x, 2) / math.Sqrt(float64(n))
}

// memFile is the io.WriteSeeker the WAV encoder needs to patch its header.
type memFile struct {
	buf []byte
	pos int
}

func (m *memFile) Write(p []byte) (int, error) {
	if end := m.pos + len(p); end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	n := copy(m.buf[m.pos:], p)
	m.pos += n
	return n, nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(m.pos)
	case io.SeekEnd:
		base = int64(len(m.buf))
	default:
		return 0, errors.New("audio: invalid whence")
	}
	next := base + offset
	if next < 0 {
		return 0, errors.New("audio: negative seek")
	}
	m.pos = int(next)
	return next, nil
}
