// Package live implements the client side of the external model channel: a
// websocket carrying JSON frames of outbound media chunks and inbound server
// content (synthesized audio, transcripts, interruption and turn signals).
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/422christopher/Tutor-Phone/pkg/live/protocol"
	"github.com/422christopher/Tutor-Phone/pkg/pcm"
)

const (
	defaultConnectTimeout = 15 * time.Second
	defaultSendQueue      = 64
)

// ErrChannelClosed is returned by Send after the channel has been closed.
var ErrChannelClosed = errors.New("live: channel is closed")

// TransportError represents a transport-level failure while talking to the
// channel endpoint (dial, handshake, read, write).
//
// Use errors.As(err, &transportErr) to distinguish transport failures from
// protocol-level problems.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("live transport error during %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("live transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Config configures a channel connection.
type Config struct {
	// URL is the websocket endpoint (ws:// or wss://).
	URL string

	// Model names the remote model the session converses with.
	Model string

	// ResponseModalities defaults to audio only.
	ResponseModalities []string

	// ConnectTimeout bounds the dial plus setup handshake. Default 15s.
	ConnectTimeout time.Duration

	// SendQueue is the outbound chunk queue depth. Default 64. When the
	// writer cannot keep up the oldest-pending chunk is dropped rather than
	// blocking a capture callback.
	SendQueue int

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Callbacks receive inbound channel events. All callbacks are invoked from
// the channel's single read goroutine, in arrival order.
type Callbacks struct {
	OnOpen         func()
	OnAudio        func(data []byte, sampleRate int)
	OnInterrupted  func()
	OnTranscript   func(text string)
	OnTurnComplete func()
	OnError        func(err error)
	OnClose        func()
}

// Chunk is one outbound media payload: transport-encoded bytes plus the
// mime-like tag declaring what they are. Never retained after send.
type Chunk struct {
	MIMEType string
	Data     string
}

// Channel is an open bidirectional media channel.
type Channel struct {
	conn   *websocket.Conn
	cb     Callbacks
	logger *slog.Logger

	sendCh chan protocol.MediaChunk
	done   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool

	errMu sync.Mutex
	err   error
}

// Connect dials the channel endpoint, performs the setup handshake, and
// starts the read and write loops. This is the session's only blocking
// acquisition step; the caller awaits it before the session is usable.
func Connect(ctx context.Context, cfg Config, cb Callbacks) (*Channel, error) {
	cfg.URL = strings.TrimSpace(cfg.URL)
	if cfg.URL == "" {
		return nil, fmt.Errorf("live: endpoint URL must not be empty")
	}
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.Model == "" {
		return nil, fmt.Errorf("live: model must not be empty")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = defaultSendQueue
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if len(cfg.ResponseModalities) == 0 {
		cfg.ResponseModalities = []string{"AUDIO"}
	}

	dialCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, cfg.URL, nil)
	if err != nil {
		return nil, &TransportError{Op: "dial", Err: err}
	}

	setup := protocol.SetupFrame{
		Setup: protocol.Setup{
			Model: cfg.Model,
			GenerationConfig: &protocol.GenerationConfig{
				ResponseModalities: cfg.ResponseModalities,
			},
		},
	}
	if err := conn.WriteJSON(setup); err != nil {
		_ = conn.Close()
		return nil, &TransportError{Op: "setup", Err: err}
	}

	_ = conn.SetReadDeadline(time.Now().Add(cfg.ConnectTimeout))
	var ack protocol.ServerFrame
	if err := conn.ReadJSON(&ack); err != nil {
		_ = conn.Close()
		return nil, &TransportError{Op: "setup ack", Err: err}
	}
	_ = conn.SetReadDeadline(time.Time{})
	if ack.SetupComplete == nil {
		_ = conn.Close()
		return nil, fmt.Errorf("live: unexpected first frame, want setupComplete")
	}

	c := &Channel{
		conn:   conn,
		cb:     cb,
		logger: cfg.Logger.With("component", "live"),
		sendCh: make(chan protocol.MediaChunk, cfg.SendQueue),
		done:   make(chan struct{}),
	}
	go c.writeLoop()
	go c.readLoop()
	if cb.OnOpen != nil {
		cb.OnOpen()
	}
	return c, nil
}

// Send enqueues one outbound chunk. It never blocks: when the queue is full
// the oldest pending chunk is dropped so capture callbacks stay realtime.
func (c *Channel) Send(chunk Chunk) error {
	if c == nil || c.closed.Load() {
		return ErrChannelClosed
	}
	mc := protocol.MediaChunk{MIMEType: chunk.MIMEType, Data: chunk.Data}
	for {
		select {
		case c.sendCh <- mc:
			return nil
		default:
		}
		select {
		case dropped := <-c.sendCh:
			c.logger.Debug("send queue full, dropping oldest chunk", "mime", dropped.MIMEType)
		default:
		}
	}
}

// Close shuts the channel down. Idempotent; safe to call concurrently with
// in-flight reads and writes. No callbacks fire after Close begins.
func (c *Channel) Close() error {
	if c == nil {
		return nil
	}
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(2*time.Second))
		c.writeMu.Unlock()
		_ = c.conn.Close()
	})
	<-c.done
	return nil
}

// Err returns the terminal transport error, if any, once the channel is done.
func (c *Channel) Err() error {
	if c == nil {
		return nil
	}
	<-c.done
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Channel) setErr(err error) {
	if err == nil {
		return
	}
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

func (c *Channel) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case chunk := <-c.sendCh:
			frame := protocol.RealtimeInputFrame{
				RealtimeInput: protocol.RealtimeInput{
					MediaChunks: []protocol.MediaChunk{chunk},
				},
			}
			c.writeMu.Lock()
			err := c.conn.WriteJSON(frame)
			c.writeMu.Unlock()
			if err != nil {
				if !c.closed.Load() {
					c.setErr(&TransportError{Op: "send", Err: err})
				}
				return
			}
		}
	}
}

func (c *Channel) readLoop() {
	defer close(c.done)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				if c.cb.OnClose != nil {
					c.cb.OnClose()
				}
				return
			}
			terr := &TransportError{Op: "read", Err: err}
			c.setErr(terr)
			if c.cb.OnError != nil {
				c.cb.OnError(terr)
			}
			return
		}

		var frame protocol.ServerFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Debug("dropping undecodable frame", "err", err)
			continue
		}
		if frame.ServerContent == nil {
			continue
		}
		c.dispatchContent(frame.ServerContent)
	}
}

func (c *Channel) dispatchContent(content *protocol.ServerContent) {
	if content.Interrupted && c.cb.OnInterrupted != nil {
		c.cb.OnInterrupted()
	}
	if content.ModelTurn != nil {
		for _, part := range content.ModelTurn.Parts {
			if part.Text != "" && c.cb.OnTranscript != nil {
				c.cb.OnTranscript(part.Text)
			}
			if part.InlineData != nil {
				c.dispatchInline(part.InlineData)
			}
		}
	}
	if content.OutputTranscription != nil && content.OutputTranscription.Text != "" && c.cb.OnTranscript != nil {
		c.cb.OnTranscript(content.OutputTranscription.Text)
	}
	if content.TurnComplete && c.cb.OnTurnComplete != nil {
		c.cb.OnTurnComplete()
	}
}

func (c *Channel) dispatchInline(inline *protocol.InlineData) {
	rate, ok := protocol.ParsePCMRate(inline.MIMEType)
	if !ok {
		c.logger.Debug("ignoring inline data with unsupported mime", "mime", inline.MIMEType)
		return
	}
	payload, err := pcm.DecodeTransport(inline.Data)
	if err != nil {
		c.logger.Debug("dropping inline audio with malformed transport encoding", "err", err)
		return
	}
	if c.cb.OnAudio != nil {
		c.cb.OnAudio(payload, rate)
	}
}
