// Package audio holds helpers for 16-bit little-endian PCM: format
// conversion between sample rates and channel layouts, and framing for
// streaming providers.
package audio

import (
	"errors"
	"fmt"
	"time"
)

// ErrOddLength is returned for PCM whose byte count is not a whole number of
// frames.
var ErrOddLength = errors.New("audio: pcm length is not a whole number of frames")

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// SpeechFormat is what speech recognisers expect: 16 kHz mono.
var SpeechFormat = Format{SampleRate: 16000, Channels: 1}

// Validate reports whether f describes a supported layout.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("audio: invalid sample rate %d", f.SampleRate)
	}
	if f.Channels != 1 && f.Channels != 2 {
		return fmt.Errorf("audio: unsupported channel count %d", f.Channels)
	}
	return nil
}

// String renders f as e.g. "48000Hz stereo".
func (f Format) String() string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// frameBytes is the size of one sample frame across all channels.
func (f Format) frameBytes() int { return 2 * f.Channels }

// Duration returns how long n bytes of PCM in f play for.
func (f Format) Duration(n int) time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	frames := n / f.frameBytes()
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// Convert converts pcm from one format to another, resampling first so a
// stereo source headed for mono is not resampled twice. Matching formats
// return pcm unchanged.
func Convert(pcm []byte, from, to Format) ([]byte, error) {
	if err := from.Validate(); err != nil {
		return nil, err
	}
	if err := to.Validate(); err != nil {
		return nil, err
	}
	if len(pcm)%from.frameBytes() != 0 {
		return nil, fmt.Errorf("%w: %d bytes of %s", ErrOddLength, len(pcm), from)
	}
	if from == to {
		return pcm, nil
	}

	if from.SampleRate != to.SampleRate {
		if from.Channels == 1 {
			pcm = ResampleMono16(pcm, from.SampleRate, to.SampleRate)
		} else {
			pcm = ResampleStereo16(pcm, from.SampleRate, to.SampleRate)
		}
	}
	switch {
	case from.Channels == 1 && to.Channels == 2:
		pcm = MonoToStereo(pcm)
	case from.Channels == 2 && to.Channels == 1:
		pcm = StereoToMono(pcm)
	}
	return pcm, nil
}

// Frames splits pcm into consecutive chunks of d each; the last chunk may be
// shorter. The chunks alias pcm.
func Frames(pcm []byte, f Format, d time.Duration) [][]byte {
	size := int(int64(f.SampleRate)*int64(d)/int64(time.Second)) * f.frameBytes()
	if size <= 0 {
		return [][]byte{pcm}
	}
	var out [][]byte
	for len(pcm) > size {
		out = append(out, pcm[:size])
		pcm = pcm[size:]
	}
	if len(pcm) > 0 {
		out = append(out, pcm)
	}
	return out
}

// MonoToStereo duplicates each int16 mono sample into a stereo L+R pair.
func MonoToStereo(pcm []byte) []byte {
	out := make([]byte, (len(pcm)/2)*4)
	for i := 0; i+1 < len(pcm); i += 2 {
		lo, hi := pcm[i], pcm[i+1]
		j := i * 2
		out[j] = lo
		out[j+1] = hi
		out[j+2] = lo
		out[j+3] = hi
	}
	return out
}

// StereoToMono averages L+R per stereo frame, clamped to the int16 range.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		r := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := min(max((l+r)/2, -32768), 32767)
		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using
// linear interpolation. Equal or invalid rates return pcm unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	return resample16(pcm, srcRate, dstRate, 1)
}

// ResampleStereo16 resamples interleaved 16-bit stereo PCM from srcRate to
// dstRate using linear interpolation per channel.
func ResampleStereo16(pcm []byte, srcRate, dstRate int) []byte {
	return resample16(pcm, srcRate, dstRate, 2)
}

func resample16(pcm []byte, srcRate, dstRate, channels int) []byte {
	stride := 2 * channels
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < stride {
		return pcm
	}
	srcFrames := len(pcm) / stride
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	sample := func(frame, ch int) int16 {
		o := frame*stride + ch*2
		return int16(pcm[o]) | int16(pcm[o+1])<<8
	}

	out := make([]byte, dstFrames*stride)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstFrames {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		next := min(idx+1, srcFrames-1)
		for ch := range channels {
			s0, s1 := sample(idx, ch), sample(next, ch)
			v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
			o := i*stride + ch*2
			out[o] = byte(v)
			out[o+1] = byte(v >> 8)
		}
	}
	return out
}
