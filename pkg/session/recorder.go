package session

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"

	"github.com/422christopher/Tutor-Phone/pkg/audio"
)

// RecorderMode is the capability-probe result decided once at session start
// and consumed uniformly thereafter.
type RecorderMode int

const (
	// RecorderFullMixing mixes local microphone audio with remote playback
	// audio into one recorded track.
	RecorderFullMixing RecorderMode = iota

	// RecorderBasicCapture records the microphone alone. Degraded but
	// non-fatal; observable via Artifact.Degraded.
	RecorderBasicCapture
)

// DefaultRecordRate is the sample rate recorded artifacts are written at.
const DefaultRecordRate = 16000

// Artifact is one immutable recorded conversation.
type Artifact struct {
	Path      string
	CreatedAt time.Time
	Degraded  bool
}

// recorder combines the local microphone tap and (in full-mixing mode) the
// remote playback tap into a single mono WAV artifact. Writing is driven by
// the microphone cadence; remote audio is queued and mixed in as mic blocks
// arrive, zero-padded when the model is silent.
type recorder struct {
	mode   RecorderMode
	rate   int
	logger *slog.Logger

	mu      sync.Mutex
	file    *os.File
	enc     *wav.Encoder
	remote  []float32
	closed  bool
	path    string
	created time.Time
}

// remoteQueueLimit bounds the pending remote audio so a stalled microphone
// cannot grow the queue without bound.
const remoteQueueLimit = 30 // seconds

func newRecorder(dir string, rate int, mode RecorderMode, logger *slog.Logger) (*recorder, error) {
	if rate <= 0 {
		rate = DefaultRecordRate
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recording dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("session-%s.wav", uuid.NewString()))
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create recording file: %w", err)
	}
	return &recorder{
		mode:    mode,
		rate:    rate,
		logger:  logger.With("component", "recorder"),
		file:    f,
		enc:     wav.NewEncoder(f, rate, 16, 1, 1),
		path:    path,
		created: time.Now(),
	}, nil
}

func (r *recorder) degraded() bool {
	return r.mode == RecorderBasicCapture
}

// onMic runs at the microphone callback cadence and drives the artifact.
func (r *recorder) onMic(samples []float32, rate int) {
	block := audio.Resample(samples, rate, r.rate)
	if len(block) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	mixed := make([]int, len(block))
	for i, v := range block {
		if i < len(r.remote) {
			v += r.remote[i]
		}
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		mixed[i] = int(v * 32767)
	}
	if n := len(block); n < len(r.remote) {
		r.remote = r.remote[n:]
	} else {
		r.remote = r.remote[:0]
	}

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: r.rate},
		Data:           mixed,
		SourceBitDepth: 16,
	}
	if err := r.enc.Write(buf); err != nil {
		r.logger.Warn("recording write failed", "err", err)
	}
}

// onRemote queues remote playback audio for mixing. A no-op in basic
// capture mode.
func (r *recorder) onRemote(samples []float32, rate int) {
	if r.mode != RecorderFullMixing {
		return
	}
	block := audio.Resample(samples, rate, r.rate)
	if len(block) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if len(r.remote)+len(block) > remoteQueueLimit*r.rate {
		r.logger.Debug("remote mix queue full, dropping block", "queued", len(r.remote))
		return
	}
	r.remote = append(r.remote, block...)
}

// finalize closes the artifact and returns it. Idempotent.
func (r *recorder) finalize() (Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	artifact := Artifact{Path: r.path, CreatedAt: r.created, Degraded: r.degraded()}
	if r.closed {
		return artifact, nil
	}
	r.closed = true

	encErr := r.enc.Close()
	fileErr := r.file.Close()
	if encErr != nil {
		return artifact, fmt.Errorf("finalize recording: %w", encErr)
	}
	if fileErr != nil {
		return artifact, fmt.Errorf("finalize recording: %w", fileErr)
	}
	return artifact, nil
}
