package audio

import "errors"

// ErrVoiceStopped is returned by Voice.Stop when the voice has already
// finished or been stopped. Interruption treats it as benign.
var ErrVoiceStopped = errors.New("audio: voice already stopped")

// Voice is one scheduled playback instance of a decoded buffer.
type Voice interface {
	// Stop halts the voice immediately, whether it is queued or playing.
	// Returns ErrVoiceStopped if it already ended.
	Stop() error
}

// Output is a playback device with a monotonically advancing clock.
// Play schedules a buffer to start at an absolute time on that clock;
// buffers carrying a foreign sample rate are resampled transparently.
//
// onDone must be invoked asynchronously when the voice ends naturally;
// it is not invoked for voices ended by Stop.
type Output interface {
	// Now returns the device's current playback clock in seconds.
	Now() float64

	// Play schedules buf to start at the given clock time.
	Play(buf *Buffer, at float64, onDone func()) (Voice, error)

	// Close releases the device. In-flight voices are cut off.
	Close() error
}

// Tapper is implemented by outputs that can mirror every played sample block
// to an observer. The recording mixer probes for it once at session start;
// outputs without a tap force the recorder into basic capture mode.
type Tapper interface {
	// SetTap registers fn to receive each mono sample block about to be
	// played, together with its sample rate. A nil fn removes the tap.
	SetTap(fn func(samples []float32, sampleRate int))
}
