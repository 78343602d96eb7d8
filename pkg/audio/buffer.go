// Package audio decodes raw PCM payloads into playable buffers and provides
// the playback output device the scheduler plays them through.
package audio

import "fmt"

// DecodeError reports a malformed PCM payload. The offending chunk is
// expected to be dropped by the caller; it is never fatal to a session.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	return "audio decode: " + e.Reason
}

// Buffer is a decoded, playable audio unit. Samples are normalized floats in
// planar channel layout. The buffer carries its own sample rate; the output
// device resamples at play time, never the builder.
type Buffer struct {
	SampleRate int
	Channels   int

	data [][]float32
}

// Decode interprets data as interleaved little-endian signed 16-bit samples
// across the given channel count, normalizing each sample by 1/32768.
func Decode(data []byte, sampleRate, channels int) (*Buffer, error) {
	if sampleRate <= 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("invalid sample rate %d", sampleRate)}
	}
	if channels <= 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("invalid channel count %d", channels)}
	}
	frameSize := channels * 2
	if len(data)%frameSize != 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("payload length %d is not a multiple of %d", len(data), frameSize)}
	}

	frames := len(data) / frameSize
	buf := &Buffer{
		SampleRate: sampleRate,
		Channels:   channels,
		data:       make([][]float32, channels),
	}
	for ch := range buf.data {
		buf.data[ch] = make([]float32, frames)
	}
	for frame := 0; frame < frames; frame++ {
		for ch := 0; ch < channels; ch++ {
			off := frame*frameSize + ch*2
			s := int16(data[off]) | int16(data[off+1])<<8
			buf.data[ch][frame] = float32(s) / 32768
		}
	}
	return buf, nil
}

// Frames returns the number of sample frames per channel.
func (b *Buffer) Frames() int {
	if b == nil || len(b.data) == 0 {
		return 0
	}
	return len(b.data[0])
}

// Duration returns the buffer length in seconds at its own sample rate.
func (b *Buffer) Duration() float64 {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// ChannelData returns the samples of one channel.
func (b *Buffer) ChannelData(ch int) []float32 {
	if b == nil || ch < 0 || ch >= len(b.data) {
		return nil
	}
	return b.data[ch]
}

// Mono mixes all channels down to a single sample slice.
func (b *Buffer) Mono() []float32 {
	if b == nil {
		return nil
	}
	if b.Channels == 1 {
		return b.data[0]
	}
	frames := b.Frames()
	out := make([]float32, frames)
	for _, ch := range b.data {
		for i, v := range ch {
			out[i] += v
		}
	}
	scale := 1 / float32(b.Channels)
	for i := range out {
		out[i] *= scale
	}
	return out
}
