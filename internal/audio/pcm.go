package audio

import (
	"sync"
	"sync/atomic"
)

// PCMSource plays an in-memory stereo interleaved buffer. It is seekable and
// reports the end of the buffer once.
type PCMSource struct {
	mu      sync.Mutex
	samples []float32
	pos     int64
	tap     func([]float32)
	onSeek  func(int64)
	onEnd   func()

	finished atomic.Bool
}

func NewPCMSource(samples []float32) *PCMSource {
	return &PCMSource{samples: samples}
}

// Attach installs tap, invoked with each rendered stereo buffer on the
// audio thread, together with onSeek, which receives the cursor now
// and after every seek. Both run under the source lock, so no buffer is
// tapped between a cursor move and its onSeek; neither may call back into
// the source. Attach(nil, nil) detaches.
func (s *PCMSource) Attach(tap func([]float32), onSeek func(int64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tap = tap
	s.onSeek = onSeek
	if onSeek != nil {
		onSeek(s.pos)
	}
}

// SetOnEnd installs a callback invoked when the cursor reaches the end.
func (s *PCMSource) SetOnEnd(fn func()) {
	s.mu.Lock()
	s.onEnd = fn
	s.mu.Unlock()
}

func (s *PCMSource) Process(dst []float32) {
	s.mu.Lock()
	start := int(s.pos * 2)
	n := 0
	if start < len(s.samples) {
		n = copy(dst, s.samples[start:])
	}
	clear(dst[n:])
	s.pos += int64(n / 2)
	ended := start+n >= len(s.samples) && !s.finished.Load()
	if ended {
		s.finished.Store(true)
	}
	if s.tap != nil {
		s.tap(dst)
	}
	onEnd := s.onEnd
	s.mu.Unlock()

	if ended && onEnd != nil {
		onEnd()
	}
}

func (s *PCMSource) Finished() bool {
	return s.finished.Load()
}

// SeekFrame moves the cursor, clamped to the buffer, and returns the new frame.
// Seeking re-arms the end callback; landing on the end reports it on the next
// Process.
func (s *PCMSource) SeekFrame(frame int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := int64(len(s.samples) / 2)
	if frame < 0 {
		frame = 0
	}
	if frame > total {
		frame = total
	}
	s.pos = frame
	s.finished.Store(false)
	if s.onSeek != nil {
		s.onSeek(frame)
	}
	return frame
}

func (s *PCMSource) Frame() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

func (s *PCMSource) Frames() int64 {
	return int64(len(s.samples) / 2)
}
