package capture

import (
	"fmt"
	"image"
	"os"
	"sync"

	_ "image/jpeg"
	_ "image/png"
)

// StillSource is a FrameSource serving one fixed image, useful for demos and
// tests where no camera is attached.
type StillSource struct {
	mu  sync.Mutex
	img image.Image
}

// NewStillSource wraps an already-decoded image.
func NewStillSource(img image.Image) *StillSource {
	return &StillSource{img: img}
}

// LoadStillSource reads and decodes an image file into a StillSource.
func LoadStillSource(path string) (*StillSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open frame image: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode frame image %q: %w", path, err)
	}
	return &StillSource{img: img}, nil
}

// SetImage swaps the served frame.
func (s *StillSource) SetImage(img image.Image) {
	s.mu.Lock()
	s.img = img
	s.mu.Unlock()
}

// Frame implements FrameSource.
func (s *StillSource) Frame() (image.Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img == nil {
		return nil, false
	}
	return s.img, true
}
