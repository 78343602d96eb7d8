package session

import (
	"bytes"
	"image"
	"image/jpeg"
	"log/slog"
	"sync"
	"time"

	xdraw "golang.org/x/image/draw"

	"github.com/422christopher/Tutor-Phone/pkg/capture"
	"github.com/422christopher/Tutor-Phone/pkg/live"
	"github.com/422christopher/Tutor-Phone/pkg/live/protocol"
	"github.com/422christopher/Tutor-Phone/pkg/pcm"
)

const (
	// DefaultFrameInterval is the frame sampling cadence, decoupled from the
	// audio path.
	DefaultFrameInterval = time.Second

	// DefaultFrameWidth is the fixed downscale target width; height follows
	// the source aspect ratio.
	DefaultFrameWidth = 640

	// DefaultJPEGQuality balances frame size against legibility for the
	// model.
	DefaultJPEGQuality = 80
)

// frameSampler rasterizes the current visual frame on a fixed timer,
// compresses it to JPEG, and emits it as one outbound image chunk. Ticks
// with no ready frame are skipped silently. It runs on its own goroutine and
// neither blocks nor is blocked by the capture encoder.
type frameSampler struct {
	src      capture.FrameSource
	interval time.Duration
	width    int
	quality  int
	send     func(live.Chunk) error
	logger   *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
}

func newFrameSampler(src capture.FrameSource, interval time.Duration, width, quality int, send func(live.Chunk) error, logger *slog.Logger) *frameSampler {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	if width <= 0 {
		width = DefaultFrameWidth
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &frameSampler{
		src:      src,
		interval: interval,
		width:    width,
		quality:  quality,
		send:     send,
		logger:   logger.With("component", "sampler"),
		stopCh:   make(chan struct{}),
	}
}

func (s *frameSampler) start() {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.sampleOnce()
			}
		}
	}()
}

func (s *frameSampler) stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *frameSampler) sampleOnce() {
	frame, ok := s.src.Frame()
	if !ok {
		return
	}
	data, err := encodeFrame(frame, s.width, s.quality)
	if err != nil {
		s.logger.Debug("dropping frame", "err", err)
		return
	}
	chunk := live.Chunk{
		MIMEType: protocol.MIMEImageJPEG,
		Data:     pcm.EncodeTransport(data),
	}
	if err := s.send(chunk); err != nil {
		s.logger.Debug("dropping frame", "err", err)
	}
}

// encodeFrame downscales img to the target width (aspect preserved) and
// compresses it to JPEG at the given quality.
func encodeFrame(img image.Image, width, quality int) ([]byte, error) {
	bounds := img.Bounds()
	if bounds.Dx() > width {
		height := bounds.Dy() * width / bounds.Dx()
		if height < 1 {
			height = 1
		}
		scaled := image.NewRGBA(image.Rect(0, 0, width, height))
		xdraw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, bounds, xdraw.Over, nil)
		img = scaled
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
