package audio

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/422christopher/Tutor-Phone/pkg/pcm"
)

// DefaultOutputRate is the device rate playback engines are opened at when
// the caller does not pick one. Remote speech commonly arrives at 24kHz.
const DefaultOutputRate = 24000

// DeviceOutput is the speaker-backed Output. It runs a single oto context at
// a fixed engine rate and resamples each buffer from its own rate at play
// time. The playback clock is anchored at device creation.
type DeviceOutput struct {
	ctx   *oto.Context
	rate  int
	epoch time.Time

	mu     sync.Mutex
	closed bool
	tap    func([]float32, int)
}

// NewDeviceOutput opens the system speaker at the given engine rate
// (mono, signed 16-bit) and waits for the device to become ready.
func NewDeviceOutput(rate int) (*DeviceOutput, error) {
	if rate <= 0 {
		rate = DefaultOutputRate
	}
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   rate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   50 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open audio output: %w", err)
	}
	<-ready
	return &DeviceOutput{
		ctx:   ctx,
		rate:  rate,
		epoch: time.Now(),
	}, nil
}

// Rate returns the engine rate the device was opened at.
func (d *DeviceOutput) Rate() int { return d.rate }

// Now implements Output.
func (d *DeviceOutput) Now() float64 {
	return time.Since(d.epoch).Seconds()
}

// SetTap implements Tapper.
func (d *DeviceOutput) SetTap(fn func(samples []float32, sampleRate int)) {
	d.mu.Lock()
	d.tap = fn
	d.mu.Unlock()
}

// Play implements Output. The buffer is mixed down to mono, resampled to the
// engine rate, and handed to a player when the clock reaches the requested
// start time.
func (d *DeviceOutput) Play(buf *Buffer, at float64, onDone func()) (Voice, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, fmt.Errorf("audio output is closed")
	}
	d.mu.Unlock()

	if buf == nil || buf.Frames() == 0 {
		return nil, &DecodeError{Reason: "empty buffer"}
	}

	samples := Resample(buf.Mono(), buf.SampleRate, d.rate)
	v := &deviceVoice{
		out:      d,
		data:     pcm.ToPCM16(samples),
		samples:  samples,
		duration: time.Duration(float64(len(samples)) / float64(d.rate) * float64(time.Second)),
		onDone:   onDone,
	}

	delay := time.Duration((at - d.Now()) * float64(time.Second))
	if delay < 0 {
		delay = 0
	}
	v.mu.Lock()
	v.startTimer = time.AfterFunc(delay, v.start)
	v.mu.Unlock()
	return v, nil
}

// Close implements Output. Playback stops immediately; the context itself is
// suspended since oto keeps it alive for the process lifetime.
func (d *DeviceOutput) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()
	return d.ctx.Suspend()
}

type deviceVoice struct {
	out      *DeviceOutput
	data     []byte
	samples  []float32
	duration time.Duration
	onDone   func()

	mu         sync.Mutex
	startTimer *time.Timer
	endTimer   *time.Timer
	player     *oto.Player
	stopped    bool
}

func (v *deviceVoice) start() {
	v.mu.Lock()
	if v.stopped {
		v.mu.Unlock()
		return
	}
	v.player = v.out.ctx.NewPlayer(bytes.NewReader(v.data))
	v.player.Play()
	v.endTimer = time.AfterFunc(v.duration, v.finish)
	v.mu.Unlock()

	v.out.mu.Lock()
	tap := v.out.tap
	v.out.mu.Unlock()
	if tap != nil {
		tap(v.samples, v.out.rate)
	}
}

func (v *deviceVoice) finish() {
	v.mu.Lock()
	if v.stopped {
		v.mu.Unlock()
		return
	}
	v.stopped = true
	player := v.player
	v.player = nil
	v.mu.Unlock()

	if player != nil {
		_ = player.Close()
	}
	if v.onDone != nil {
		v.onDone()
	}
}

// Stop implements Voice. Queued voices are cancelled before they start;
// playing voices are cut off without their onDone firing.
func (v *deviceVoice) Stop() error {
	v.mu.Lock()
	if v.stopped {
		v.mu.Unlock()
		return ErrVoiceStopped
	}
	v.stopped = true
	if v.startTimer != nil {
		v.startTimer.Stop()
	}
	if v.endTimer != nil {
		v.endTimer.Stop()
	}
	player := v.player
	v.player = nil
	v.mu.Unlock()

	if player != nil {
		player.Pause()
		_ = player.Close()
	}
	return nil
}
