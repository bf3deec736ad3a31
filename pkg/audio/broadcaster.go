package audio

import "sync"

// DefaultListenerBuffer holds about three seconds of 20 ms frames.
const DefaultListenerBuffer = 150

// Broadcaster is a [Sink] that fans frames out to any number of listeners.
// Slow listeners get frames dropped rather than stalling the graph.
type Broadcaster struct {
	buffer int

	mu        sync.RWMutex
	listeners map[*Listener]struct{}
	closed    bool
}

// Listener receives frames from a [Broadcaster]. C is closed when the
// listener is unsubscribed or the broadcaster is closed.
type Listener struct {
	C chan AudioFrame
}

// NewBroadcaster creates a broadcaster whose listeners buffer up to buffer
// frames. Non-positive values use [DefaultListenerBuffer].
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = DefaultListenerBuffer
	}
	return &Broadcaster{
		buffer:    buffer,
		listeners: make(map[*Listener]struct{}),
	}
}

// Subscribe registers a new listener. Subscribing to a closed broadcaster
// returns a listener whose channel is already closed.
func (b *Broadcaster) Subscribe() *Listener {
	l := &Listener{C: make(chan AudioFrame, b.buffer)}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(l.C)
		return l
	}
	b.listeners[l] = struct{}{}
	return l
}

// Unsubscribe removes l and closes its channel. Unknown listeners are
// ignored.
func (b *Broadcaster) Unsubscribe(l *Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.listeners[l]; !ok {
		return
	}
	delete(b.listeners, l)
	close(l.C)
}

// ListenerCount returns the number of active listeners.
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// WriteFrame implements [Sink].
func (b *Broadcaster) WriteFrame(f AudioFrame) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for l := range b.listeners {
		select {
		case l.C <- f:
		default:
		}
	}
}

// Close unsubscribes every listener. Later frames are discarded.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for l := range b.listeners {
		close(l.C)
	}
	clear(b.listeners)
}

var _ Sink = (*Broadcaster)(nil)
