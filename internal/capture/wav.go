package capture

import (
	"time"

	"github.com/MrWong99/voicenotes/pkg/audio"
)

// WAVMIMEType is the MIME type of finalised recordings.
const WAVMIMEType = "audio/wav"

// finalize encodes the captured PCM chunks as one 16-bit WAV file. A
// trailing partial frame is dropped. No chunks yields an empty blob.
func finalize(chunks [][]byte, f Format) (Blob, error) {
	blob := Blob{MIMEType: WAVMIMEType, SampleRate: f.SampleRate, Channels: f.Channels}

	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	frame := 2 * max(f.Channels, 1)
	total -= total % frame
	if total == 0 {
		return blob, nil
	}

	pcm := make([]byte, 0, total)
	for _, c := range chunks {
		pcm = append(pcm, c...)
	}
	out, err := audio.EncodeWAV(pcm[:total], audio.Format{SampleRate: f.SampleRate, Channels: f.Channels})
	if err != nil {
		return blob, err
	}
	blob.Data = out
	if bps := f.bytesPerSecond(); bps > 0 {
		blob.Duration = time.Duration(total) * time.Second / time.Duration(bps)
	}
	return blob, nil
}
