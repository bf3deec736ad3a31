// Package mock provides an in-memory [audio.Sink] for use in unit tests.
//
// The sink is safe for concurrent use. It records every frame so that tests
// can assert on what a graph produced.
//
// Typical usage:
//
//	sink := &mock.Sink{}
//	g, _ := ctx.NewGraph(src, sink, 100)
//	<-g.Done()
//	pcm := sink.Bytes()
package mock

import (
	"sync"

	"github.com/MrWong99/templeguardian/pkg/audio"
)

// Sink is a mock implementation of [audio.Sink].
type Sink struct {
	mu sync.Mutex

	// Frames holds every frame written, in order.
	Frames []audio.AudioFrame

	// OnFrame, when set, is called after each frame is recorded.
	OnFrame func(audio.AudioFrame)
}

// WriteFrame implements [audio.Sink].
func (s *Sink) WriteFrame(f audio.AudioFrame) {
	s.mu.Lock()
	s.Frames = append(s.Frames, f)
	cb := s.OnFrame
	s.mu.Unlock()
	if cb != nil {
		cb(f)
	}
}

// FrameCount returns the number of frames recorded so far.
func (s *Sink) FrameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Frames)
}

// Bytes returns the concatenated PCM of all recorded frames.
func (s *Sink) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []byte
	for _, f := range s.Frames {
		out = append(out, f.Data...)
	}
	return out
}

var _ audio.Sink = (*Sink)(nil)
