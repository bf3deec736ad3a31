package audio

import (
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// ErrNotSeekable is returned by [Graph.Seek] when the source cannot be
// repositioned.
var ErrNotSeekable = errors.New("audio: source is not seekable")

// Graph is one playing source: reader, gain stage, and paced output. It is
// created by [Context.NewGraph] and runs until its source is exhausted or
// [Graph.Stop] is called.
type Graph struct {
	ctx  *Context
	sink Sink

	srcMu sync.Mutex // guards src and pos
	src   io.Reader
	pos   int64

	gain atomic.Int32

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func newGraph(c *Context, src io.Reader, sink Sink, gain int) *Graph {
	g := &Graph{
		ctx:  c,
		sink: sink,
		src:  src,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	g.SetGain(gain)
	return g
}

// SetGain sets the output level in percent, clamped to 0-100. It takes
// effect on the next frame.
func (g *Graph) SetGain(percent int) {
	g.gain.Store(int32(max(0, min(100, percent))))
}

// Gain returns the current output level in percent.
func (g *Graph) Gain() int { return int(g.gain.Load()) }

// Seek repositions the source to at. Returns [ErrNotSeekable] when the
// source does not implement [io.Seeker].
func (g *Graph) Seek(at time.Duration) error {
	g.srcMu.Lock()
	defer g.srcMu.Unlock()
	s, ok := g.src.(io.Seeker)
	if !ok {
		return ErrNotSeekable
	}
	off := g.ctx.format.Offset(max(0, at))
	n, err := s.Seek(off, io.SeekStart)
	if err != nil {
		return err
	}
	g.pos = n
	return nil
}

// Position returns the playback position of the next frame.
func (g *Graph) Position() time.Duration {
	g.srcMu.Lock()
	defer g.srcMu.Unlock()
	return g.position(g.pos)
}

func (g *Graph) position(off int64) time.Duration {
	bps := int64(g.ctx.format.BytesPerSecond())
	return time.Duration(off * int64(time.Second) / bps)
}

// Done is closed once the graph has stopped producing frames.
func (g *Graph) Done() <-chan struct{} { return g.done }

// Stop silences the graph and waits for its pacing goroutine to exit. It is
// safe to call more than once and after the source has ended.
func (g *Graph) Stop() {
	g.stopOnce.Do(func() { close(g.stop) })
	<-g.done
}

func (g *Graph) run() {
	defer close(g.done)
	defer g.ctx.release(g)

	ticker := time.NewTicker(g.ctx.frame)
	defer ticker.Stop()

	size := g.ctx.format.FrameBytes(g.ctx.frame)
	for {
		select {
		case <-g.stop:
			return
		case <-ticker.C:
		}

		frame, eof := g.read(size)
		if len(frame.Data) > 0 {
			g.sink.WriteFrame(frame)
		}
		if eof {
			return
		}
	}
}

// read pulls the next frame from the source. eof reports that the source is
// exhausted or failed.
func (g *Graph) read(size int) (AudioFrame, bool) {
	g.srcMu.Lock()
	defer g.srcMu.Unlock()

	buf := make([]byte, size)
	n, err := io.ReadFull(g.src, buf)
	n -= n % 2
	frame := AudioFrame{
		Data:       applyGain(buf[:n], int(g.gain.Load())),
		SampleRate: g.ctx.format.SampleRate,
		Channels:   g.ctx.format.Channels,
		Timestamp:  g.position(g.pos),
	}
	g.pos += int64(n)
	return frame, err != nil
}

// applyGain scales int16 samples in place by percent/100.
func applyGain(pcm []byte, percent int) []byte {
	if percent >= 100 {
		return pcm
	}
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int32(int16(binary.LittleEndian.Uint16(pcm[i:])))
		binary.LittleEndian.PutUint16(pcm[i:], uint16(int16(s*int32(percent)/100)))
	}
	return pcm
}
