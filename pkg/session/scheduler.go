package session

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/422christopher/Tutor-Phone/pkg/audio"
)

// playbackScheduler consumes inbound audio chunks and schedules them for
// gapless sequential playback against a monotonically advancing watermark.
// The watermark and the in-flight voice set are owned exclusively by the
// scheduler; its callbacks arrive from the channel read loop, the output
// device, and teardown, so both are guarded by one mutex.
type playbackScheduler struct {
	out    audio.Output
	logger *slog.Logger

	mu        sync.Mutex
	watermark float64
	voices    map[uint64]audio.Voice
	nextID    uint64
	closed    bool
}

func newPlaybackScheduler(out audio.Output, logger *slog.Logger) *playbackScheduler {
	return &playbackScheduler{
		out:    out,
		logger: logger.With("component", "scheduler"),
		voices: make(map[uint64]audio.Voice),
	}
}

// onAudio decodes one inbound chunk and schedules it back-to-back after
// everything already queued. Arrival jitter is absorbed by the watermark;
// chunks are never reordered or dropped for timing reasons. A malformed
// payload is dropped and the session stays live. After shutdown this is a
// no-op.
func (s *playbackScheduler) onAudio(data []byte, sampleRate int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if now := s.out.Now(); s.watermark < now {
		s.watermark = now
	}

	buf, err := audio.Decode(data, sampleRate, 1)
	if err != nil {
		s.logger.Debug("dropping malformed audio chunk", "err", err, "bytes", len(data))
		return
	}

	id := s.nextID
	s.nextID++
	voice, err := s.out.Play(buf, s.watermark, func() { s.remove(id) })
	if err != nil {
		s.logger.Warn("failed to schedule voice", "err", err)
		return
	}
	s.voices[id] = voice
	s.watermark += buf.Duration()
}

func (s *playbackScheduler) remove(id uint64) {
	s.mu.Lock()
	delete(s.voices, id)
	s.mu.Unlock()
}

// interrupt force-stops every in-flight voice, clears the set, and resets
// the watermark to zero; the next chunk re-anchors to the device clock.
// A voice that already finished in a race reports a stop error, which is
// swallowed.
func (s *playbackScheduler) interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopAllLocked()
}

// shutdown is interrupt plus refusal of further chunks; part of teardown.
func (s *playbackScheduler) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.stopAllLocked()
}

func (s *playbackScheduler) stopAllLocked() {
	for id, voice := range s.voices {
		if err := voice.Stop(); err != nil && !errors.Is(err, audio.ErrVoiceStopped) {
			s.logger.Debug("voice stop failed", "id", id, "err", err)
		}
		delete(s.voices, id)
	}
	s.watermark = 0
}

// inFlight reports the current voice count.
func (s *playbackScheduler) inFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.voices)
}

// currentWatermark reports the next available playback start time.
func (s *playbackScheduler) currentWatermark() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watermark
}
