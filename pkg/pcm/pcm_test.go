package pcm

import (
	"bytes"
	"testing"
)

func TestToPCM16_KnownSamples(t *testing.T) {
	t.Parallel()

	got := ToPCM16([]float32{0, 0.5, -0.5, -1})
	want := []byte{
		0x00, 0x00, // 0
		0x00, 0x40, // 16384
		0x00, 0xc0, // -16384
		0x00, 0x80, // -32768
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("ToPCM16 = %v, want %v", got, want)
	}
}

func TestToPCM16_TruncatesTowardZero(t *testing.T) {
	t.Parallel()

	// 0.30517578125e-4 * 32768 = 0.99999..., which truncates to 0.
	got := ToPCM16([]float32{0.00003, -0.00003})
	want := []byte{0x00, 0x00, 0x00, 0x00}
	if !bytes.Equal(got, want) {
		t.Fatalf("ToPCM16 = %v, want %v", got, want)
	}
}

func TestToPCM16_OutOfRangeWraps(t *testing.T) {
	t.Parallel()

	// 1.0 * 32768 overflows int16 and wraps to -32768; truncation semantics
	// are preserved deliberately, not clamped.
	got := ToPCM16([]float32{1.0})
	want := []byte{0x00, 0x80}
	if !bytes.Equal(got, want) {
		t.Fatalf("ToPCM16(1.0) = %v, want %v", got, want)
	}
}

func TestTransportRoundTrip(t *testing.T) {
	t.Parallel()

	cases := [][]byte{
		nil,
		{0},
		{0, 1, 2, 3, 255, 254, 128, 127},
	}
	full := make([]byte, 256)
	for i := range full {
		full[i] = byte(i)
	}
	cases = append(cases, full)

	for _, input := range cases {
		decoded, err := DecodeTransport(EncodeTransport(input))
		if err != nil {
			t.Fatalf("DecodeTransport error: %v", err)
		}
		if !bytes.Equal(decoded, input) {
			t.Fatalf("round trip = %v, want %v", decoded, input)
		}
	}
}

func TestDecodeTransport_RejectsMalformedText(t *testing.T) {
	t.Parallel()

	if _, err := DecodeTransport("not base64 !!!"); err == nil {
		t.Fatal("expected decode error for malformed text")
	}
}
