package capture

import (
	"bytes"
	"encoding/binary"
	"time"
)

// Format describes signed 16-bit little-endian PCM audio.
type Format struct {
	SampleRate int
	Channels   int
}

// DefaultFormat is 16 kHz mono, what the speech models expect.
var DefaultFormat = Format{SampleRate: 16000, Channels: 1}

const bitDepth = 16

// BytesPerSecond returns the PCM byte rate.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * bitDepth / 8
}

// BytesInDuration returns the number of bytes in d, aligned to whole frames.
func (f Format) BytesInDuration(d time.Duration) int {
	frame := f.Channels * bitDepth / 8
	n := int(int64(f.BytesPerSecond()) * int64(d) / int64(time.Second))
	return n - n%frame
}

// Duration returns the playback time of n bytes.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}

// EncodeWAV wraps raw PCM in a canonical 44-byte RIFF/WAVE header.
func EncodeWAV(f Format, pcm []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))

	blockAlign := f.Channels * bitDepth / 8
	w := func(v any) { _ = binary.Write(&buf, binary.LittleEndian, v) }

	buf.WriteString("RIFF")
	w(uint32(36 + len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	w(uint32(16))
	w(uint16(1)) // PCM
	w(uint16(f.Channels))
	w(uint32(f.SampleRate))
	w(uint32(f.BytesPerSecond()))
	w(uint16(blockAlign))
	w(uint16(bitDepth))

	buf.WriteString("data")
	w(uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

// wavHeaderSize returns the offset of PCM data if b starts with a
// canonical WAV header, or 0 for raw PCM.
func wavHeaderSize(b []byte) int {
	if len(b) >= 44 && string(b[0:4]) == "RIFF" && string(b[8:12]) == "WAVE" && string(b[36:40]) == "data" {
		return 44
	}
	return 0
}
