// Package protocol defines the JSON frames exchanged with the live model
// channel. The wire format is a bidirectional streaming conversation: the
// client opens with a setup frame, the server acks with setupComplete, then
// media chunks flow outbound and server content frames flow inbound.
package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// MIME tags for outbound media chunks.
const (
	MIMEImageJPEG = "image/jpeg"

	audioPCMPrefix = "audio/pcm"
)

// AudioPCMMIME builds the mime-like tag for a PCM chunk at the given rate,
// e.g. "audio/pcm;rate=16000".
func AudioPCMMIME(rate int) string {
	return fmt.Sprintf("%s;rate=%d", audioPCMPrefix, rate)
}

// ParsePCMRate extracts the declared sample rate from an audio/pcm mime tag.
// Returns ok=false for non-PCM tags or tags without a usable rate.
func ParsePCMRate(mime string) (int, bool) {
	mime = strings.TrimSpace(mime)
	if !strings.HasPrefix(mime, audioPCMPrefix) {
		return 0, false
	}
	for _, param := range strings.Split(mime, ";")[1:] {
		key, value, found := strings.Cut(strings.TrimSpace(param), "=")
		if !found || strings.TrimSpace(key) != "rate" {
			continue
		}
		rate, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || rate <= 0 {
			return 0, false
		}
		return rate, true
	}
	return 0, false
}

// SetupFrame is the first client frame of a session.
type SetupFrame struct {
	Setup Setup `json:"setup"`
}

// Setup configures the model side of the conversation.
type Setup struct {
	Model            string            `json:"model"`
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
}

// GenerationConfig selects the response modalities the client can consume.
type GenerationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

// RealtimeInputFrame carries outbound media chunks.
type RealtimeInputFrame struct {
	RealtimeInput RealtimeInput `json:"realtimeInput"`
}

// RealtimeInput is the payload of a RealtimeInputFrame.
type RealtimeInput struct {
	MediaChunks []MediaChunk `json:"mediaChunks"`
}

// MediaChunk is one transport-encoded media payload with its mime tag.
type MediaChunk struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// ServerFrame is the envelope for every inbound frame. Exactly one of the
// fields is set per frame.
type ServerFrame struct {
	SetupComplete *SetupComplete `json:"setupComplete,omitempty"`
	ServerContent *ServerContent `json:"serverContent,omitempty"`
}

// SetupComplete acknowledges the setup frame.
type SetupComplete struct{}

// ServerContent carries decoded model output: synthesized audio and
// transcript fragments, plus the interruption and turn-boundary flags.
type ServerContent struct {
	ModelTurn           *ModelTurn     `json:"modelTurn,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	OutputTranscription *Transcription `json:"outputTranscription,omitempty"`
}

// ModelTurn groups the content parts of one model utterance fragment.
type ModelTurn struct {
	Parts []Part `json:"parts"`
}

// Part is one content part: transcript text or inline binary data.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// InlineData is transport-encoded binary content with its mime tag.
// Inbound audio arrives here as "audio/pcm;rate=<N>".
type InlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Transcription is a transcript text fragment.
type Transcription struct {
	Text string `json:"text"`
}
