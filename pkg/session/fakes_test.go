package session

import (
	"context"
	"errors"
	"sync"

	"github.com/422christopher/Tutor-Phone/pkg/audio"
	"github.com/422christopher/Tutor-Phone/pkg/capture"
	"github.com/422christopher/Tutor-Phone/pkg/live"
)

var errForcedStop = errors.New("device refused stop")

// fakeVoice records scheduling and stop calls.
type fakeVoice struct {
	buf    *audio.Buffer
	at     float64
	onDone func()

	mu      sync.Mutex
	stopped bool
	stopErr error
}

func (v *fakeVoice) Stop() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.stopErr != nil {
		return v.stopErr
	}
	if v.stopped {
		return audio.ErrVoiceStopped
	}
	v.stopped = true
	return nil
}

// finish simulates natural end of playback.
func (v *fakeVoice) finish() {
	v.mu.Lock()
	done := !v.stopped
	v.stopped = true
	v.mu.Unlock()
	if done && v.onDone != nil {
		v.onDone()
	}
}

// fakeOutput is a playback device with a manually advanced clock. It
// implements audio.Tapper so sessions probe into full-mixing mode.
type fakeOutput struct {
	mu     sync.Mutex
	now    float64
	voices []*fakeVoice
	closed int
	tap    func([]float32, int)
}

func (o *fakeOutput) Now() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

func (o *fakeOutput) advance(to float64) {
	o.mu.Lock()
	o.now = to
	o.mu.Unlock()
}

func (o *fakeOutput) Play(buf *audio.Buffer, at float64, onDone func()) (audio.Voice, error) {
	v := &fakeVoice{buf: buf, at: at, onDone: onDone}
	o.mu.Lock()
	o.voices = append(o.voices, v)
	o.mu.Unlock()
	return v, nil
}

func (o *fakeOutput) Close() error {
	o.mu.Lock()
	o.closed++
	o.mu.Unlock()
	return nil
}

func (o *fakeOutput) SetTap(fn func([]float32, int)) {
	o.mu.Lock()
	o.tap = fn
	o.mu.Unlock()
}

func (o *fakeOutput) tapFn() func([]float32, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.tap
}

func (o *fakeOutput) played() []*fakeVoice {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*fakeVoice, len(o.voices))
	copy(out, o.voices)
	return out
}

// basicOutput is a fakeOutput without a playback tap, forcing the recorder
// into basic capture mode.
type basicOutput struct {
	inner fakeOutput
}

func (o *basicOutput) Now() float64 { return o.inner.Now() }
func (o *basicOutput) Play(buf *audio.Buffer, at float64, onDone func()) (audio.Voice, error) {
	return o.inner.Play(buf, at, onDone)
}
func (o *basicOutput) Close() error { return o.inner.Close() }

// fakeMic is an AudioInput driven by tests.
type fakeMic struct {
	rate     int
	startErr error

	mu      sync.Mutex
	onBlock func([]float32)
	stops   int
	closes  int
}

func (m *fakeMic) Rate() int {
	if m.rate == 0 {
		return capture.DefaultMicRate
	}
	return m.rate
}

func (m *fakeMic) Start(onBlock func([]float32)) error {
	if m.startErr != nil {
		return m.startErr
	}
	m.mu.Lock()
	m.onBlock = onBlock
	m.mu.Unlock()
	return nil
}

func (m *fakeMic) Stop() error {
	m.mu.Lock()
	m.stops++
	m.onBlock = nil
	m.mu.Unlock()
	return nil
}

func (m *fakeMic) Close() error {
	m.mu.Lock()
	m.closes++
	m.mu.Unlock()
	return nil
}

// emit simulates one capture callback.
func (m *fakeMic) emit(samples []float32) {
	m.mu.Lock()
	onBlock := m.onBlock
	m.mu.Unlock()
	if onBlock != nil {
		onBlock(samples)
	}
}

// fakeChannel records outbound chunks.
type fakeChannel struct {
	mu     sync.Mutex
	sent   []live.Chunk
	closes int
}

func (c *fakeChannel) Send(chunk live.Chunk) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closes > 0 {
		return live.ErrChannelClosed
	}
	c.sent = append(c.sent, chunk)
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) chunks() []live.Chunk {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]live.Chunk, len(c.sent))
	copy(out, c.sent)
	return out
}

// fakeDialer hands back a fakeChannel and captures the session callbacks so
// tests can drive inbound events.
type fakeDialer struct {
	err error

	mu sync.Mutex
	cb live.Callbacks
	ch *fakeChannel
}

func (d *fakeDialer) dial(_ context.Context, _ live.Config, cb live.Callbacks) (Channel, error) {
	if d.err != nil {
		return nil, d.err
	}
	ch := &fakeChannel{}
	d.mu.Lock()
	d.cb = cb
	d.ch = ch
	d.mu.Unlock()
	return ch, nil
}

func (d *fakeDialer) callbacks() live.Callbacks {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cb
}

func (d *fakeDialer) channel() *fakeChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ch
}

// pcm16Silence builds a payload of n frames of silence.
func pcm16Silence(frames int) []byte {
	return make([]byte, frames*2)
}
