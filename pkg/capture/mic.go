package capture

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

// DefaultMicRate is the capture rate microphones are opened at when the
// caller does not pick one. Live model endpoints commonly expect 16kHz mono
// input.
const DefaultMicRate = 16000

// Microphone is the system capture device. It delivers mono float sample
// blocks at roughly 20ms cadence on the audio backend's thread.
type Microphone struct {
	ctx  *malgo.AllocatedContext
	rate int

	mu      sync.Mutex
	device  *malgo.Device
	onBlock func([]float32)
	started bool
	closed  bool
}

// OpenMicrophone initializes the audio backend and the default capture
// device at the given rate. The device does not deliver blocks until Start.
func OpenMicrophone(rate int) (*Microphone, error) {
	if rate <= 0 {
		rate = DefaultMicRate
	}

	ctxCfg := malgo.ContextConfig{}
	ctxCfg.ThreadPriority = malgo.ThreadPriorityRealtime
	ctx, err := malgo.InitContext(nil, ctxCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("init capture context: %w", err)
	}

	m := &Microphone{ctx: ctx, rate: rate}

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatF32
	deviceCfg.Capture.Channels = 1
	deviceCfg.SampleRate = uint32(rate)
	deviceCfg.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			m.mu.Lock()
			onBlock := m.onBlock
			m.mu.Unlock()
			if onBlock == nil || len(input) < 4 {
				return
			}
			onBlock(decodeF32LE(input))
		},
	}
	device, err := malgo.InitDevice(ctx.Context, deviceCfg, callbacks)
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("init capture device: %w", err)
	}
	m.device = device
	return m, nil
}

// Rate implements AudioInput.
func (m *Microphone) Rate() int { return m.rate }

// Start implements AudioInput.
func (m *Microphone) Start(onBlock func([]float32)) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("microphone is closed")
	}
	m.onBlock = onBlock
	alreadyStarted := m.started
	m.started = true
	m.mu.Unlock()

	if alreadyStarted {
		return nil
	}
	if err := m.device.Start(); err != nil {
		return fmt.Errorf("start capture device: %w", err)
	}
	return nil
}

// Stop implements AudioInput. Blocks already in flight on the backend thread
// may still be delivered; callers gate on their own torn-down state.
func (m *Microphone) Stop() error {
	m.mu.Lock()
	if m.closed || !m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = false
	m.onBlock = nil
	m.mu.Unlock()
	return m.device.Stop()
}

// Close implements AudioInput. Releases the device and the backend context.
func (m *Microphone) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.onBlock = nil
	device := m.device
	m.device = nil
	m.mu.Unlock()

	if device != nil {
		device.Uninit()
	}
	err := m.ctx.Uninit()
	m.ctx.Free()
	return err
}

func decodeF32LE(data []byte) []float32 {
	samples := make([]float32, len(data)/4)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		samples[i] = math.Float32frombits(bits)
	}
	return samples
}
