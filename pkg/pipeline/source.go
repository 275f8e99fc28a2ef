package pipeline

import (
	"image"
	"sync"

	"github.com/lucas-albers-lz4/respimg/pkg/cache"
	"github.com/lucas-albers-lz4/respimg/pkg/codec"
)

// source is one input image, read and hashed once per build. Its pixels are
// decoded on first use and released when the last job needing them finishes.
type source struct {
	path string
	data []byte
	hash cache.Hash
	info codec.Info

	mu        sync.Mutex
	img       image.Image
	decodeErr error
	decoded   bool
	pending   int
}

func (s *source) decode(c codec.Codec) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.decoded {
		s.img, s.decodeErr = c.Decode(s.data)
		s.decoded = true
		if s.decodeErr != nil {
			s.decodeErr = &SourceError{Source: s.path, Err: s.decodeErr}
		}
	}
	return s.img, s.decodeErr
}

func (s *source) retain() {
	s.mu.Lock()
	s.pending++
	s.mu.Unlock()
}

func (s *source) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending--
	if s.pending <= 0 {
		s.img = nil
	}
}

// orientable reports whether the decoded image may differ from the probed
// header dimensions because of an EXIF orientation.
func (s *source) orientable() bool {
	return s.info.Format == "jpeg"
}
