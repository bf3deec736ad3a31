package audio

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// DefaultFrameDuration is the pacing interval of graph output.
const DefaultFrameDuration = 20 * time.Millisecond

// ErrContextClosed is returned when a graph is requested from a closed
// [Context].
var ErrContextClosed = errors.New("audio: context closed")

// ContextOption is a functional option for [NewContext].
type ContextOption func(*Context)

// WithFrameDuration overrides the pacing interval. Non-positive values are
// ignored.
func WithFrameDuration(d time.Duration) ContextOption {
	return func(c *Context) {
		if d > 0 {
			c.frame = d
		}
	}
}

// Context is the process-scoped owner of all running graphs. It fixes the
// PCM format every graph produces and tracks live graphs so that shutdown can
// silence them all. A Context is safe for concurrent use.
type Context struct {
	format Format
	frame  time.Duration

	mu     sync.Mutex
	graphs map[*Graph]struct{}
	closed bool
}

// NewContext creates a Context producing PCM in format.
func NewContext(format Format, opts ...ContextOption) (*Context, error) {
	if !format.Valid() {
		return nil, fmt.Errorf("audio: invalid format %s", format)
	}
	c := &Context{
		format: format,
		frame:  DefaultFrameDuration,
		graphs: make(map[*Graph]struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Format returns the PCM format of every graph in this context.
func (c *Context) Format() Format { return c.format }

// FrameDuration returns the pacing interval.
func (c *Context) FrameDuration() time.Duration { return c.frame }

// NewGraph starts a graph that plays src into sink at gain percent (0-100).
// src must already be in the context format. If src also implements
// [io.Seeker] the graph supports [Graph.Seek].
func (c *Context) NewGraph(src io.Reader, sink Sink, gain int) (*Graph, error) {
	if src == nil || sink == nil {
		return nil, errors.New("audio: graph needs a source and a sink")
	}
	g := newGraph(c, src, sink, gain)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrContextClosed
	}
	c.graphs[g] = struct{}{}
	c.mu.Unlock()

	go g.run()
	return g, nil
}

// ActiveGraphs returns the number of graphs that have started and not yet
// stopped or finished.
func (c *Context) ActiveGraphs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.graphs)
}

// Closed reports whether Close has been called.
func (c *Context) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close stops every live graph and refuses new ones. It is safe to call more
// than once.
func (c *Context) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	live := make([]*Graph, 0, len(c.graphs))
	for g := range c.graphs {
		live = append(live, g)
	}
	c.mu.Unlock()

	for _, g := range live {
		g.Stop()
	}
	return nil
}

func (c *Context) release(g *Graph) {
	c.mu.Lock()
	delete(c.graphs, g)
	c.mu.Unlock()
}
