// Package session orchestrates one live conversation: it acquires the local
// capture devices, opens the external model channel, streams microphone
// audio and periodic video frames outbound, schedules inbound synthesized
// speech for gapless playback, and guarantees that every acquired resource
// is released exactly once on every exit path.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/422christopher/Tutor-Phone/pkg/audio"
	"github.com/422christopher/Tutor-Phone/pkg/capture"
	"github.com/422christopher/Tutor-Phone/pkg/live"
)

// Status is the observable lifecycle state of a session.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// Channel is the session's view of the external media channel.
type Channel interface {
	Send(live.Chunk) error
	Close() error
}

// Dialer opens the external channel. The default wraps live.Connect; tests
// and embedders may substitute their own transport.
type Dialer func(ctx context.Context, cfg live.Config, cb live.Callbacks) (Channel, error)

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithChannelConfig sets the external channel configuration.
func WithChannelConfig(cfg live.Config) Option {
	return func(s *Session) { s.chanCfg = cfg }
}

// WithFrameSource enables the frame sampler on the given visual source.
func WithFrameSource(src capture.FrameSource) Option {
	return func(s *Session) { s.frameSrc = src }
}

// WithFrameInterval sets the frame sampling cadence.
func WithFrameInterval(d time.Duration) Option {
	return func(s *Session) { s.frameInterval = d }
}

// WithFrameWidth sets the downscale target width for sampled frames.
func WithFrameWidth(w int) Option {
	return func(s *Session) { s.frameWidth = w }
}

// WithJPEGQuality sets the frame compression quality (1-100).
func WithJPEGQuality(q int) Option {
	return func(s *Session) { s.jpegQuality = q }
}

// WithRecording enables the recording mixer, writing one WAV artifact per
// session under dir.
func WithRecording(dir string) Option {
	return func(s *Session) { s.recordDir = dir }
}

// WithRecordRate sets the artifact sample rate.
func WithRecordRate(rate int) Option {
	return func(s *Session) { s.recordRate = rate }
}

// WithMicRate sets the microphone capture rate.
func WithMicRate(rate int) Option {
	return func(s *Session) { s.micRate = rate }
}

// WithOutputRate sets the playback engine rate.
func WithOutputRate(rate int) Option {
	return func(s *Session) { s.outputRate = rate }
}

// WithMicrophoneOpener substitutes the microphone factory.
func WithMicrophoneOpener(open func() (capture.AudioInput, error)) Option {
	return func(s *Session) { s.openMic = open }
}

// WithOutputOpener substitutes the playback device factory.
func WithOutputOpener(open func() (audio.Output, error)) Option {
	return func(s *Session) { s.openOutput = open }
}

// WithDialer substitutes the channel dialer.
func WithDialer(dial Dialer) Option {
	return func(s *Session) { s.dial = dial }
}

// WithStatusHandler registers a callback invoked on every status change.
// The handler must not call back into the session.
func WithStatusHandler(fn func(Status)) Option {
	return func(s *Session) { s.onStatus = fn }
}

// WithTranscriptHandler registers a callback invoked with the accumulated
// transcript of each completed model turn.
func WithTranscriptHandler(fn func(text string)) Option {
	return func(s *Session) { s.onTranscript = fn }
}

// Session is one logical conversation with the remote model.
type Session struct {
	logger        *slog.Logger
	chanCfg       live.Config
	frameSrc      capture.FrameSource
	frameInterval time.Duration
	frameWidth    int
	jpegQuality   int
	recordDir     string
	recordRate    int
	micRate       int
	outputRate    int
	openMic       func() (capture.AudioInput, error)
	openOutput    func() (audio.Output, error)
	dial          Dialer
	onStatus      func(Status)
	onTranscript  func(string)

	machine *fsm.FSM

	mu        sync.Mutex
	mic       capture.AudioInput
	out       audio.Output
	channel   Channel
	scheduler *playbackScheduler
	sampler   *frameSampler
	rec       *recorder
	artifact  *Artifact

	transcriptMu sync.Mutex
	transcript   strings.Builder
}

// New builds a Session. Nothing is acquired until Start.
func New(opts ...Option) *Session {
	s := &Session{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "session")
	if s.openMic == nil {
		s.openMic = func() (capture.AudioInput, error) {
			return capture.OpenMicrophone(s.micRate)
		}
	}
	if s.openOutput == nil {
		s.openOutput = func() (audio.Output, error) {
			return audio.NewDeviceOutput(s.outputRate)
		}
	}
	if s.dial == nil {
		s.dial = func(ctx context.Context, cfg live.Config, cb live.Callbacks) (Channel, error) {
			return live.Connect(ctx, cfg, cb)
		}
	}
	s.initStateMachine()
	return s
}

func (s *Session) initStateMachine() {
	s.machine = fsm.NewFSM(
		string(StatusDisconnected),
		fsm.Events{
			{Name: "start", Src: []string{string(StatusDisconnected), string(StatusError)}, Dst: string(StatusConnecting)},
			{Name: "open", Src: []string{string(StatusConnecting)}, Dst: string(StatusConnected)},
			{Name: "stop", Src: []string{string(StatusConnecting), string(StatusConnected)}, Dst: string(StatusDisconnected)},
			{Name: "fail", Src: []string{string(StatusConnecting), string(StatusConnected)}, Dst: string(StatusError)},
		},
		fsm.Callbacks{
			"after_event": func(_ context.Context, e *fsm.Event) {
				if s.onStatus != nil && e.Src != e.Dst {
					s.onStatus(Status(e.Dst))
				}
			},
		},
	)
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	return Status(s.machine.Current())
}

// Recording returns the finalized artifact once the session has been torn
// down with recording enabled.
func (s *Session) Recording() (Artifact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.artifact == nil {
		return Artifact{}, false
	}
	return *s.artifact, true
}

// Start acquires the capture devices, opens the channel (the one blocking
// step), and wires the media paths. On any acquisition failure every
// resource acquired up to that point is released, the session moves to the
// error state, and an *AcquisitionError is returned.
func (s *Session) Start(ctx context.Context) error {
	if err := s.machine.Event(ctx, "start"); err != nil {
		return fmt.Errorf("session start: %w", err)
	}

	out, err := s.openOutput()
	if err != nil {
		return s.failStart(ctx, "audio output", err)
	}
	mic, err := s.openMic()
	if err != nil {
		_ = out.Close()
		return s.failStart(ctx, "microphone", err)
	}

	scheduler := newPlaybackScheduler(out, s.logger)

	var rec *recorder
	if s.recordDir != "" {
		// Capability probe, decided once: full mixing needs a playback tap.
		mode := RecorderBasicCapture
		tapper, canMix := out.(audio.Tapper)
		if canMix {
			mode = RecorderFullMixing
		}
		rec, err = newRecorder(s.recordDir, s.recordRate, mode, s.logger)
		if err != nil {
			_ = mic.Close()
			_ = out.Close()
			return s.failStart(ctx, "recorder", err)
		}
		if canMix {
			tapper.SetTap(rec.onRemote)
		} else {
			s.logger.Warn("playback tap unavailable, recording microphone only")
		}
	}

	releaseAcquired := func() {
		scheduler.shutdown()
		if rec != nil {
			if _, ferr := rec.finalize(); ferr != nil {
				s.logger.Warn("recorder finalize failed during start rollback", "err", ferr)
			}
		}
		if cerr := mic.Close(); cerr != nil {
			s.logger.Warn("microphone release failed during start rollback", "err", cerr)
		}
		if cerr := out.Close(); cerr != nil {
			s.logger.Warn("audio output release failed during start rollback", "err", cerr)
		}
	}

	cb := live.Callbacks{
		OnAudio: func(data []byte, rate int) {
			scheduler.onAudio(data, rate)
		},
		OnInterrupted: scheduler.interrupt,
		OnTranscript:  s.appendTranscript,
		OnTurnComplete: func() {
			s.flushTranscript()
		},
		OnError: func(err error) {
			s.logger.Error("channel failed", "err", err)
			go s.teardown(context.Background(), true)
		},
		OnClose: func() {
			s.logger.Info("channel closed by remote")
			go s.teardown(context.Background(), false)
		},
	}
	ch, err := s.dial(ctx, s.chanCfg, cb)
	if err != nil {
		releaseAcquired()
		return s.failStart(ctx, "channel", err)
	}

	encoder := newCaptureEncoder(mic.Rate(), ch.Send, s.logger)
	onBlock := encoder.onBlock
	if rec != nil {
		micRate := mic.Rate()
		onBlock = func(samples []float32) {
			encoder.onBlock(samples)
			rec.onMic(samples, micRate)
		}
	}
	if err := mic.Start(onBlock); err != nil {
		_ = ch.Close()
		releaseAcquired()
		return s.failStart(ctx, "microphone", err)
	}

	var sampler *frameSampler
	if s.frameSrc != nil {
		sampler = newFrameSampler(s.frameSrc, s.frameInterval, s.frameWidth, s.jpegQuality, ch.Send, s.logger)
	}

	s.mu.Lock()
	s.mic = mic
	s.out = out
	s.channel = ch
	s.scheduler = scheduler
	s.sampler = sampler
	s.rec = rec
	s.mu.Unlock()

	if err := s.machine.Event(ctx, "open"); err != nil {
		// A remote close raced the handshake. The racing teardown saw no
		// registered resources, so release whatever it left behind.
		s.release(s.detachResources())
		return fmt.Errorf("session stopped during start: %w", err)
	}
	if sampler != nil {
		sampler.start()
	}
	return nil
}

func (s *Session) failStart(ctx context.Context, resource string, cause error) error {
	if err := s.machine.Event(ctx, "fail"); err != nil {
		s.logger.Warn("failure transition rejected", "err", err)
	}
	return &AcquisitionError{Resource: resource, Err: cause}
}

// Stop tears the session down. Idempotent: stopping an already-disconnected
// session is a no-op. Safe to call concurrently with any in-progress
// callback from the capture, frame, or channel paths.
func (s *Session) Stop() {
	s.teardown(context.Background(), false)
}

// teardown is the single funnel for every exit path: explicit stop, remote
// close, and fatal channel error. Every release step is attempted even when
// an earlier one fails.
func (s *Session) teardown(ctx context.Context, toError bool) {
	event := "stop"
	if toError {
		event = "fail"
	}
	if err := s.machine.Event(ctx, event); err != nil {
		// Already torn down; nothing to release.
		return
	}
	s.release(s.detachResources())
	s.flushTranscript()
}

// sessionResources is a snapshot of everything a torn-down session owes back
// to the OS.
type sessionResources struct {
	sampler   *frameSampler
	mic       capture.AudioInput
	channel   Channel
	scheduler *playbackScheduler
	rec       *recorder
	out       audio.Output
}

func (s *Session) detachResources() sessionResources {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := sessionResources{
		sampler:   s.sampler,
		mic:       s.mic,
		channel:   s.channel,
		scheduler: s.scheduler,
		rec:       s.rec,
		out:       s.out,
	}
	s.sampler = nil
	s.mic = nil
	s.channel = nil
	s.scheduler = nil
	s.rec = nil
	s.out = nil
	return res
}

// release runs the stop order: frame timer, capture subscription, channel
// handle, in-flight voices, capture devices, audio contexts. Every step is
// attempted even if an earlier one failed.
func (s *Session) release(res sessionResources) {
	if res.sampler != nil {
		res.sampler.stop()
	}
	if res.mic != nil {
		if err := res.mic.Stop(); err != nil {
			s.logger.Warn("microphone stop failed", "err", err)
		}
	}
	if res.channel != nil {
		if err := res.channel.Close(); err != nil {
			s.logger.Warn("channel close failed", "err", err)
		}
	}
	if res.scheduler != nil {
		res.scheduler.shutdown()
	}
	if res.mic != nil {
		if err := res.mic.Close(); err != nil {
			s.logger.Warn("microphone release failed", "err", err)
		}
	}
	if res.rec != nil {
		artifact, err := res.rec.finalize()
		if err != nil {
			s.logger.Warn("recording finalize failed", "err", err)
		}
		s.mu.Lock()
		s.artifact = &artifact
		s.mu.Unlock()
	}
	if res.out != nil {
		if err := res.out.Close(); err != nil {
			s.logger.Warn("audio output close failed", "err", err)
		}
	}
}

func (s *Session) appendTranscript(text string) {
	s.transcriptMu.Lock()
	s.transcript.WriteString(text)
	s.transcriptMu.Unlock()
}

func (s *Session) flushTranscript() {
	s.transcriptMu.Lock()
	text := s.transcript.String()
	s.transcript.Reset()
	s.transcriptMu.Unlock()
	if text != "" && s.onTranscript != nil {
		s.onTranscript(text)
	}
}
