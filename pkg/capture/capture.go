// Package capture owns the local capture devices: the microphone that feeds
// the outbound audio path and the visual sources the frame sampler draws
// from.
package capture

import "image"

// AudioInput is a live microphone-like device delivering periodic blocks of
// normalized float samples at its configured rate. Blocks arrive on the
// device's own callback thread; the callback must not block.
type AudioInput interface {
	// Start begins delivery of sample blocks to onBlock.
	Start(onBlock func(samples []float32)) error

	// Stop halts the subscription. Safe to call more than once.
	Stop() error

	// Close releases the device and its processing context.
	Close() error

	// Rate returns the rate the device was opened at.
	Rate() int
}

// FrameSource yields the current visual frame on demand (camera or shared
// screen). ok is false when no frame is ready this instant; the sampler
// skips the tick silently in that case.
type FrameSource interface {
	Frame() (img image.Image, ok bool)
}
