package chant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/templeguardian/pkg/audio"
)

// DefaultVolume is the initial volume of a new [Sequencer].
const DefaultVolume = 70

// TickInterval is the resolution of the elapsed-time counter.
const TickInterval = time.Second

// ErrClosed is returned by commands issued after [Sequencer.Close].
var ErrClosed = errors.New("chant: sequencer closed")

// State is the explicit lifecycle state of a [Sequencer].
type State int

const (
	// StateIdle is the initial resting state; nothing has played on the
	// current track yet.
	StateIdle State = iota

	// StateLoading means a voice is being constructed off the caller's
	// goroutine.
	StateLoading

	// StatePlaying means a voice is audible and the ticker is running.
	StatePlaying

	// StateStopped is the resting state after a pause, a track change, or
	// the end of a track.
	StateStopped
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements [encoding.TextUnmarshaler].
func (s *State) UnmarshalText(text []byte) error {
	for st := StateIdle; st <= StateStopped; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("chant: unknown state %q", text)
}

// Voice is one audible rendition of a track.
type Voice interface {
	// SetVolume applies a 0-100 level immediately.
	SetVolume(percent int)

	// Seek repositions playback. Voices that cannot seek return
	// [audio.ErrNotSeekable].
	Seek(at time.Duration) error

	// Duration returns the real length of the audio, if known.
	Duration() (time.Duration, bool)

	// Stop silences the voice and releases its resources. Safe to call more
	// than once.
	Stop() error
}

// Backend turns a track into a [Voice] that starts playing at the given
// offset. Start may block (downloads, synthesis); the sequencer never calls it
// while holding its lock.
type Backend interface {
	Start(ctx context.Context, t Track, at time.Duration, volume int) (Voice, error)
}

// Clock schedules the recurring tick. The returned stop function must be
// safe to call from inside fn and more than once.
type Clock interface {
	Every(d time.Duration, fn func()) (stop func())
}

// Snapshot is a read-only copy of the playback state.
//
// Version increases with every state change, so a consumer that receives
// snapshots from several goroutines can discard older ones. Duration is the
// real length once a voice reports it; Nominal is always the catalog length
// of the current track.
type Snapshot struct {
	Version    uint64 `json:"version"`
	State      State  `json:"state"`
	Index      int    `json:"index"`
	Track      Track  `json:"track"`
	Tracks     int    `json:"tracks"`
	Elapsed    int    `json:"elapsed"`
	Duration   int    `json:"duration"`
	Nominal    int    `json:"nominal"`
	Volume     int    `json:"volume"`
	Playing    bool   `json:"playing"`
	Loading    bool   `json:"loading"`
	LoadFailed bool   `json:"load_failed"`
}

// Option is a functional option for [NewSequencer].
type Option func(*Sequencer)

// WithClock replaces the wall-clock ticker.
func WithClock(c Clock) Option {
	return func(s *Sequencer) { s.clock = c }
}

// WithVolume sets the initial volume, clamped to 0-100.
func WithVolume(v int) Option {
	return func(s *Sequencer) { s.volume = clampVolume(v) }
}

// WithLogger sets the logger used for load failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sequencer) { s.log = l }
}

// Sequencer is the chant playback controller. It owns the playlist position,
// the elapsed-time counter, the volume, and at most one audible [Voice].
//
// Every transition is serialised behind one mutex. Voice construction runs on
// its own goroutine; its result is applied only if no later command has
// superseded it, otherwise the new voice is stopped straight away.
type Sequencer struct {
	backend Backend
	clock   Clock
	log     *slog.Logger
	spawn   func(func())

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	playlist   []Track
	index      int
	elapsed    int
	duration   int
	volume     int
	state      State
	loadFailed bool
	resting    State // state to return to when a load fails or is cancelled
	gen        uint64
	voice      Voice
	stopTick   func()
	closed     bool
	version    uint64

	listeners []listener
	nextID    int

	// notifyMu orders deliveries; delivered is the newest version handed to
	// listeners.
	notifyMu  sync.Mutex
	delivered uint64
}

type listener struct {
	id int
	fn func(Snapshot)
}

// NewSequencer creates a sequencer over a non-empty playlist. The playlist
// is copied.
func NewSequencer(playlist []Track, backend Backend, opts ...Option) (*Sequencer, error) {
	if len(playlist) == 0 {
		return nil, errors.New("chant: sequencer needs at least one track")
	}
	if backend == nil {
		return nil, errors.New("chant: sequencer needs a backend")
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Sequencer{
		backend:  backend,
		clock:    tickerClock{},
		log:      slog.Default(),
		spawn:    func(f func()) { go f() },
		ctx:      ctx,
		cancel:   cancel,
		playlist: append([]Track(nil), playlist...),
		volume:   DefaultVolume,
		state:    StateIdle,
		resting:  StateIdle,
	}
	for _, o := range opts {
		o(s)
	}
	s.duration = s.playlist[0].NominalSeconds()
	return s, nil
}

// Playlist returns a copy of the tracks the sequencer cycles through.
func (s *Sequencer) Playlist() []Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Track(nil), s.playlist...)
}

// Snapshot returns the current playback state.
func (s *Sequencer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Sequencer) snapshotLocked() Snapshot {
	return Snapshot{
		Version:    s.version,
		State:      s.state,
		Index:      s.index,
		Track:      s.playlist[s.index],
		Tracks:     len(s.playlist),
		Elapsed:    s.elapsed,
		Duration:   s.duration,
		Nominal:    s.playlist[s.index].NominalSeconds(),
		Volume:     s.volume,
		Playing:    s.state == StatePlaying,
		Loading:    s.state == StateLoading,
		LoadFailed: s.loadFailed,
	}
}

// Subscribe registers fn to receive a snapshot after every state change.
// fn runs on the goroutine that made the change, after the sequencer lock is
// released. Deliveries are serialised and their versions strictly increase:
// a snapshot overtaken by a newer one is never delivered. fn must not call
// back into the sequencer. The returned function removes the subscription.
func (s *Sequencer) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// change is the deferred half of every transition: it stops voices detached
// under the lock and notifies listeners.
type change struct {
	snap      Snapshot
	listeners []listener
	silence   []Voice
	notify    bool
}

func (s *Sequencer) commit(c *change) {
	for _, v := range c.silence {
		if err := v.Stop(); err != nil {
			s.log.Warn("chant: stop voice", "err", err)
		}
	}
	if !c.notify {
		return
	}
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if c.snap.Version <= s.delivered {
		return
	}
	s.delivered = c.snap.Version
	for _, l := range c.listeners {
		l.fn(c.snap)
	}
}

// finishLocked bumps the version and records the post-transition snapshot.
// Must hold s.mu.
func (s *Sequencer) finishLocked(c *change) {
	s.version++
	c.notify = true
	c.snap = s.snapshotLocked()
	c.listeners = append([]listener(nil), s.listeners...)
}

// silenceLocked detaches the active voice and cancels the ticker. Must hold
// s.mu.
func (s *Sequencer) silenceLocked(c *change) {
	if s.stopTick != nil {
		s.stopTick()
		s.stopTick = nil
	}
	if s.voice != nil {
		c.silence = append(c.silence, s.voice)
		s.voice = nil
	}
}

// TogglePlayPause pauses a playing track, or starts loading the current track
// at the current elapsed time. Toggling while a load is in flight cancels it.
// The call never blocks on audio construction.
func (s *Sequencer) TogglePlayPause() error {
	var c change
	defer s.commit(&c)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	switch s.state {
	case StatePlaying:
		s.gen++
		s.silenceLocked(&c)
		s.state = StateStopped
		s.resting = StateStopped
		s.finishLocked(&c)
		s.mu.Unlock()
		return nil

	case StateLoading:
		s.gen++
		s.state = s.resting
		s.finishLocked(&c)
		s.mu.Unlock()
		return nil
	}

	s.gen++
	gen := s.gen
	s.resting = s.state
	s.state = StateLoading
	s.loadFailed = false
	track := s.playlist[s.index]
	at := time.Duration(s.elapsed) * time.Second
	volume := s.volume
	s.finishLocked(&c)
	s.mu.Unlock()

	s.spawn(func() { s.load(gen, track, at, volume) })
	return nil
}

// load constructs a voice and installs it if gen is still current.
func (s *Sequencer) load(gen uint64, track Track, at time.Duration, volume int) {
	v, err := s.backend.Start(s.ctx, track, at, volume)

	var c change
	defer s.commit(&c)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || gen != s.gen {
		if v != nil {
			c.silence = append(c.silence, v)
		}
		return
	}
	if err != nil {
		s.log.Warn("chant: load track", "track", track.ID, "err", err)
		s.loadFailed = true
		s.state = s.resting
		s.finishLocked(&c)
		return
	}

	s.voice = v
	if d, ok := v.Duration(); ok && d > 0 {
		s.duration = int(d.Round(time.Second) / time.Second)
	}
	s.elapsed = min(s.elapsed, s.duration)
	if pos := time.Duration(s.elapsed) * time.Second; pos != at {
		// Seeked while loading.
		if err := v.Seek(pos); err != nil && !errors.Is(err, audio.ErrNotSeekable) {
			s.log.Warn("chant: seek", "track", track.ID, "err", err)
		}
	}
	v.SetVolume(s.volume)
	s.state = StatePlaying
	s.stopTick = s.clock.Every(TickInterval, func() { s.tick(gen) })
	s.finishLocked(&c)
}

// tick advances the elapsed counter by one second. Reaching the duration
// ends the track: audio stops, the index advances with wraparound, and the
// sequencer rests in StateStopped without resuming.
func (s *Sequencer) tick(gen uint64) {
	var c change
	defer s.commit(&c)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || gen != s.gen || s.state != StatePlaying {
		return
	}
	s.elapsed = min(s.elapsed+1, s.duration)
	if s.elapsed >= s.duration {
		s.gen++
		s.silenceLocked(&c)
		s.moveLocked((s.index + 1) % len(s.playlist))
		s.state = StateStopped
		s.resting = StateStopped
	}
	s.finishLocked(&c)
}

// moveLocked switches to track i and resets the counters. Must hold s.mu.
func (s *Sequencer) moveLocked(i int) {
	s.index = i
	s.elapsed = 0
	s.duration = s.playlist[i].NominalSeconds()
	s.loadFailed = false
}

// Next stops any audio and moves to the following track, wrapping from the
// last to the first. Playback does not resume.
func (s *Sequencer) Next() error {
	return s.step(1)
}

// Previous stops any audio and moves to the preceding track, wrapping from
// the first to the last. Playback does not resume.
func (s *Sequencer) Previous() error {
	return s.step(-1)
}

func (s *Sequencer) step(delta int) error {
	var c change
	defer s.commit(&c)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.gen++
	s.silenceLocked(&c)
	n := len(s.playlist)
	s.moveLocked(((s.index+delta)%n + n) % n)
	if s.state != StateIdle || s.resting != StateIdle {
		s.state = StateStopped
		s.resting = StateStopped
	}
	s.finishLocked(&c)
	return nil
}

// Seek moves the elapsed counter to seconds, clamped to [0, duration]. A
// playing voice is repositioned when it supports seeking; otherwise the new
// position is display-only.
func (s *Sequencer) Seek(seconds int) error {
	var c change
	defer s.commit(&c)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.elapsed = max(0, min(seconds, s.duration))
	if s.voice != nil {
		err := s.voice.Seek(time.Duration(s.elapsed) * time.Second)
		if err != nil && !errors.Is(err, audio.ErrNotSeekable) {
			s.log.Warn("chant: seek", "track", s.playlist[s.index].ID, "err", err)
		}
	}
	s.finishLocked(&c)
	return nil
}

// SetVolume clamps v to 0-100 and applies it to the active voice.
func (s *Sequencer) SetVolume(v int) error {
	var c change
	defer s.commit(&c)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.volume = clampVolume(v)
	if s.voice != nil {
		s.voice.SetVolume(s.volume)
	}
	s.finishLocked(&c)
	return nil
}

// Close stops audio, cancels the ticker and any in-flight load, and drops
// every subscription. It is safe to call more than once.
func (s *Sequencer) Close() error {
	var c change
	defer s.commit(&c)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.gen++
	s.silenceLocked(&c)
	s.listeners = nil
	s.cancel()
	return nil
}

func clampVolume(v int) int {
	return max(0, min(100, v))
}

// tickerClock is the wall-clock [Clock].
type tickerClock struct{}

func (tickerClock) Every(d time.Duration, fn func()) func() {
	t := time.NewTicker(d)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-t.C:
				fn()
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			t.Stop()
			close(done)
		})
	}
}
