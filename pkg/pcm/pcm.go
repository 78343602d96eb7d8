// Package pcm converts between normalized floating-point audio samples and
// the signed 16-bit little-endian wire format used by the live channel, and
// between raw bytes and the base64 transport encoding media chunks travel in.
package pcm

import "encoding/base64"

// ToPCM16 encodes normalized float samples as little-endian signed 16-bit
// PCM. Each sample is scaled by 32768 and truncated toward zero; values
// outside [-1, 1] wrap per integer truncation rather than being clamped.
func ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		s := int16(int32(v * 32768))
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// EncodeTransport encodes raw bytes into the text-safe transport encoding.
func EncodeTransport(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeTransport reverses EncodeTransport. The round-trip is exact for all
// byte sequences, including zero bytes and the full byte range.
func DecodeTransport(text string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(text)
}
