package audio

import (
	"math"
	"time"
)

// SineBuffer synthesizes a sine-wave test buffer, useful for smoke-checking
// an output device without a live session.
func SineBuffer(freqHz, sampleRate int, d time.Duration, amp float64) *Buffer {
	if freqHz <= 0 || sampleRate <= 0 || d <= 0 {
		return nil
	}
	if amp <= 0 {
		amp = 0.2
	}
	if amp > 1.0 {
		amp = 1.0
	}
	frames := int(float64(sampleRate) * d.Seconds())
	if frames <= 0 {
		frames = 1
	}
	data := make([]float32, frames)
	for i := range data {
		t := float64(i) / float64(sampleRate)
		data[i] = float32(amp * math.Sin(2*math.Pi*float64(freqHz)*t))
	}
	return &Buffer{
		SampleRate: sampleRate,
		Channels:   1,
		data:       [][]float32{data},
	}
}
