package session

import (
	"log/slog"

	"github.com/422christopher/Tutor-Phone/pkg/live"
	"github.com/422christopher/Tutor-Phone/pkg/live/protocol"
	"github.com/422christopher/Tutor-Phone/pkg/pcm"
)

// captureEncoder taps the live microphone stream and turns each delivered
// sample block into exactly one outbound audio chunk tagged with the capture
// device's configured rate. It holds no state across blocks and never blocks
// the capture callback: the send is fire-and-forget.
type captureEncoder struct {
	mime   string
	send   func(live.Chunk) error
	logger *slog.Logger
}

func newCaptureEncoder(rate int, send func(live.Chunk) error, logger *slog.Logger) *captureEncoder {
	return &captureEncoder{
		mime:   protocol.AudioPCMMIME(rate),
		send:   send,
		logger: logger.With("component", "encoder"),
	}
}

// onBlock runs on the capture device's callback thread.
func (e *captureEncoder) onBlock(samples []float32) {
	if len(samples) == 0 {
		return
	}
	chunk := live.Chunk{
		MIMEType: e.mime,
		Data:     pcm.EncodeTransport(pcm.ToPCM16(samples)),
	}
	if err := e.send(chunk); err != nil {
		e.logger.Debug("dropping capture block", "err", err)
	}
}
