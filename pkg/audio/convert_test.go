package audio_test

import (
	"encoding/binary"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/voicenotes/pkg/audio"
)

// samplesToBytes converts int16 samples to little-endian bytes.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples converts little-endian bytes to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func TestMonoToStereo(t *testing.T) {
	t.Parallel()
	got := bytesToSamples(audio.MonoToStereo(samplesToBytes([]int16{100, 200, 300})))
	want := []int16{100, 100, 200, 200, 300, 300}
	if !slices.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestStereoToMono(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   []int16
		want []int16
	}{
		{name: "average", in: []int16{100, 200, -100, -200}, want: []int16{150, -150}},
		{name: "max stays in range", in: []int16{32767, 32767}, want: []int16{32767}},
		{name: "min stays in range", in: []int16{-32768, -32768}, want: []int16{-32768}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := bytesToSamples(audio.StereoToMono(samplesToBytes(tc.in)))
			if !slices.Equal(got, tc.want) {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestResampleMono16(t *testing.T) {
	t.Parallel()

	pcm := samplesToBytes([]int16{0, 100, 200, 300})
	if got := audio.ResampleMono16(pcm, 16000, 16000); len(got) != len(pcm) {
		t.Errorf("same rate changed length to %d", len(got))
	}
	if got := audio.ResampleMono16(pcm, 16000, 0); len(got) != len(pcm) {
		t.Errorf("zero rate changed length to %d", len(got))
	}

	up := bytesToSamples(audio.ResampleMono16(pcm, 8000, 16000))
	want := []int16{0, 50, 100, 150, 200, 250, 300, 300}
	if !slices.Equal(up, want) {
		t.Errorf("upsample = %v, want %v", up, want)
	}

	down := bytesToSamples(audio.ResampleMono16(samplesToBytes(make([]int16, 480)), 48000, 16000))
	if len(down) != 160 {
		t.Errorf("downsample length = %d, want 160", len(down))
	}
}

func TestResampleStereo16(t *testing.T) {
	t.Parallel()
	pcm := samplesToBytes([]int16{0, 1000, 100, 1100})
	got := bytesToSamples(audio.ResampleStereo16(pcm, 8000, 16000))
	want := []int16{0, 1000, 50, 1050, 100, 1100, 100, 1100}
	if !slices.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestConvert(t *testing.T) {
	t.Parallel()

	stereo48 := audio.Format{SampleRate: 48000, Channels: 2}

	t.Run("same format is a no-op", func(t *testing.T) {
		t.Parallel()
		pcm := samplesToBytes([]int16{1, 2, 3, 4})
		out, err := audio.Convert(pcm, stereo48, stereo48)
		if err != nil {
			t.Fatal(err)
		}
		if &out[0] != &pcm[0] {
			t.Error("expected the input slice back")
		}
	})

	t.Run("48k stereo to speech format", func(t *testing.T) {
		t.Parallel()
		in := make([]int16, 960) // 10 ms of 48 kHz stereo
		for i := range in {
			in[i] = 1000
		}
		out, err := audio.Convert(samplesToBytes(in), stereo48, audio.SpeechFormat)
		if err != nil {
			t.Fatal(err)
		}
		got := bytesToSamples(out)
		if len(got) != 160 {
			t.Fatalf("samples = %d, want 160", len(got))
		}
		for i, s := range got {
			if s != 1000 {
				t.Fatalf("sample %d = %d, want 1000", i, s)
			}
		}
	})

	t.Run("partial frame rejected", func(t *testing.T) {
		t.Parallel()
		_, err := audio.Convert([]byte{1, 2, 3}, audio.SpeechFormat, stereo48)
		if !errors.Is(err, audio.ErrOddLength) {
			t.Errorf("err = %v, want ErrOddLength", err)
		}
	})

	t.Run("invalid formats rejected", func(t *testing.T) {
		t.Parallel()
		if _, err := audio.Convert(nil, audio.Format{}, audio.SpeechFormat); err == nil {
			t.Error("expected error for zero source format")
		}
		if _, err := audio.Convert(nil, audio.SpeechFormat, audio.Format{SampleRate: 16000, Channels: 6}); err == nil {
			t.Error("expected error for 6 channels")
		}
	})
}

func TestFrames(t *testing.T) {
	t.Parallel()

	pcm := make([]byte, 3200*2+100) // 200 ms + a bit at 16 kHz mono
	frames := audio.Frames(pcm, audio.SpeechFormat, 100*time.Millisecond)
	if len(frames) != 3 {
		t.Fatalf("frames = %d, want 3", len(frames))
	}
	if len(frames[0]) != 3200 || len(frames[1]) != 3200 || len(frames[2]) != 100 {
		t.Errorf("frame sizes = %d, %d, %d", len(frames[0]), len(frames[1]), len(frames[2]))
	}
	if got := audio.Frames(nil, audio.SpeechFormat, 100*time.Millisecond); len(got) != 0 {
		t.Errorf("empty input frames = %d, want 0", len(got))
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()
	if got := audio.SpeechFormat.Duration(32000); got != time.Second {
		t.Errorf("Duration = %v, want 1s", got)
	}
	if got := (audio.Format{SampleRate: 48000, Channels: 2}).String(); got != "48000Hz stereo" {
		t.Errorf("String = %q", got)
	}
}
