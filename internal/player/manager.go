// Package player manages the chant players of browser sessions: one
// sequencer and one audio broadcaster per player, torn down on request or
// after an idle timeout.
package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/templeguardian/internal/observe"
	"github.com/MrWong99/templeguardian/pkg/audio"
	"github.com/MrWong99/templeguardian/pkg/chant"
)

var (
	// ErrNotFound is returned for unknown or reaped player ids.
	ErrNotFound = errors.New("player: not found")

	// ErrTooMany is returned by [Manager.Create] at capacity.
	ErrTooMany = errors.New("player: too many players")
)

// Spec describes the temple a new player chants for.
type Spec struct {
	TempleID string
	Deity    string
}

// Info holds metadata about an open player.
type Info struct {
	ID        string    `json:"id"`
	TempleID  string    `json:"temple_id,omitempty"`
	Deity     string    `json:"deity"`
	Group     string    `json:"group,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Player is one browser session's chant sequencer and its audio fan-out.
type Player struct {
	info Info
	seq  *chant.Sequencer
	out  *audio.Broadcaster
	done chan struct{}

	holds    atomic.Int32
	mu       sync.Mutex
	lastUsed time.Time
}

// Info returns the player's metadata.
func (p *Player) Info() Info { return p.info }

// Sequencer returns the playback controller.
func (p *Player) Sequencer() *chant.Sequencer { return p.seq }

// Audio returns the broadcaster that receives the player's PCM frames.
func (p *Player) Audio() *audio.Broadcaster { return p.out }

// Done is closed when the player is deleted, reaped or shut down.
func (p *Player) Done() <-chan struct{} { return p.done }

// Hold keeps the player from being reaped until release is called. Event
// streams hold their player for as long as they are connected.
func (p *Player) Hold() (release func()) {
	p.holds.Add(1)
	var once sync.Once
	return func() { once.Do(func() { p.holds.Add(-1) }) }
}

func (p *Player) touch(now time.Time) {
	p.mu.Lock()
	p.lastUsed = now
	p.mu.Unlock()
}

func (p *Player) idleSince() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastUsed
}

// Config holds all dependencies for a [Manager].
type Config struct {
	// Engine renders every player's audio into one shared audio context.
	Engine *chant.Engine

	// Catalog is the full track list playlists are selected from.
	Catalog []chant.Track

	// Volume is the initial volume of new players.
	Volume int

	// MaxPlayers caps open players. Zero means unlimited.
	MaxPlayers int

	// IdleTimeout reaps players untouched for this long. Zero disables reaping.
	IdleTimeout time.Duration

	Metrics *observe.Metrics

	// Now overrides time.Now for idle accounting.
	Now func() time.Time

	// SequencerOptions are appended to every new sequencer's options.
	SequencerOptions []chant.Option
}

// Manager owns every open [Player]. All exported methods are safe for
// concurrent use.
type Manager struct {
	cfg Config

	mu      sync.Mutex
	players map[string]*Player
}

// NewManager creates a Manager with the given dependencies.
func NewManager(cfg Config) *Manager {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if len(cfg.Catalog) == 0 {
		cfg.Catalog = chant.DefaultCatalog()
	}
	return &Manager{
		cfg:     cfg,
		players: make(map[string]*Player),
	}
}

// Format returns the PCM format of every player's audio.
func (m *Manager) Format() audio.Format { return m.cfg.Engine.Format() }

// Catalog returns the tracks playlists are selected from.
func (m *Manager) Catalog() []chant.Track {
	return append([]chant.Track(nil), m.cfg.Catalog...)
}

// Create opens a player whose playlist is selected from the catalog for
// spec.Deity.
func (m *Manager) Create(spec Spec) (*Player, error) {
	playlist := chant.SelectPlaylist(m.cfg.Catalog, spec.Deity)

	id := uuid.NewString()
	out := audio.NewBroadcaster(0)
	opts := []chant.Option{
		chant.WithVolume(m.cfg.Volume),
		chant.WithLogger(slog.With("player_id", id)),
	}
	opts = append(opts, m.cfg.SequencerOptions...)
	seq, err := chant.NewSequencer(playlist, &instrumentedBackend{
		playerID: id,
		next:     m.cfg.Engine.Output(out),
		metrics:  m.cfg.Metrics,
	}, opts...)
	if err != nil {
		out.Close()
		return nil, fmt.Errorf("player: create: %w", err)
	}

	now := m.cfg.Now()
	p := &Player{
		info: Info{
			ID:        id,
			TempleID:  spec.TempleID,
			Deity:     spec.Deity,
			Group:     chant.MatchGroup(spec.Deity),
			CreatedAt: now.UTC(),
		},
		seq:      seq,
		out:      out,
		done:     make(chan struct{}),
		lastUsed: now,
	}

	m.mu.Lock()
	if m.cfg.MaxPlayers > 0 && len(m.players) >= m.cfg.MaxPlayers {
		m.mu.Unlock()
		_ = seq.Close()
		out.Close()
		return nil, ErrTooMany
	}
	m.players[id] = p
	n := len(m.players)
	m.mu.Unlock()

	if m.cfg.Metrics != nil {
		m.cfg.Metrics.ActivePlayers.Add(context.Background(), 1)
	}
	slog.Info("player created",
		"player_id", id,
		"temple_id", spec.TempleID,
		"deity", spec.Deity,
		"group", p.info.Group,
		"tracks", len(playlist),
		"players", n,
	)
	return p, nil
}

// Get returns the player with id and marks it as used.
func (m *Manager) Get(id string) (*Player, error) {
	m.mu.Lock()
	p, ok := m.players[id]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	p.touch(m.cfg.Now())
	return p, nil
}

// Len returns the number of open players.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.players)
}

// Delete closes the player with id and releases its audio.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	p, ok := m.players[id]
	delete(m.players, id)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	m.teardown(p, "deleted")
	return nil
}

func (m *Manager) teardown(p *Player, reason string) {
	if err := p.seq.Close(); err != nil {
		slog.Warn("player: close sequencer", "player_id", p.info.ID, "err", err)
	}
	p.out.Close()
	close(p.done)
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.ActivePlayers.Add(context.Background(), -1)
	}
	slog.Info("player closed", "player_id", p.info.ID, "reason", reason)
}

// Reap closes players idle for longer than the configured timeout and
// returns how many were closed. Players with a connected audio listener or
// an outstanding [Player.Hold] are never idle.
func (m *Manager) Reap() int {
	if m.cfg.IdleTimeout <= 0 {
		return 0
	}
	cutoff := m.cfg.Now().Add(-m.cfg.IdleTimeout)

	var stale []*Player
	m.mu.Lock()
	for id, p := range m.players {
		if p.out.ListenerCount() > 0 || p.holds.Load() > 0 || p.idleSince().After(cutoff) {
			continue
		}
		stale = append(stale, p)
		delete(m.players, id)
	}
	m.mu.Unlock()

	for _, p := range stale {
		m.teardown(p, "idle")
	}
	return len(stale)
}

// Run reaps idle players until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	if m.cfg.IdleTimeout <= 0 {
		<-ctx.Done()
		return nil
	}
	interval := max(m.cfg.IdleTimeout/4, time.Second)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if n := m.Reap(); n > 0 {
				slog.Debug("reaped idle players", "count", n)
			}
		}
	}
}

// Close tears down every player.
func (m *Manager) Close() error {
	m.mu.Lock()
	all := make([]*Player, 0, len(m.players))
	for _, p := range m.players {
		all = append(all, p)
	}
	clear(m.players)
	m.mu.Unlock()

	for _, p := range all {
		m.teardown(p, "shutdown")
	}
	return nil
}

// instrumentedBackend traces and times every voice construction.
type instrumentedBackend struct {
	playerID string
	next     chant.Backend
	metrics  *observe.Metrics
}

func (b *instrumentedBackend) Start(ctx context.Context, t chant.Track, at time.Duration, volume int) (chant.Voice, error) {
	source := "recipe"
	if t.Source.IsStream() {
		source = "url"
	}
	ctx, span := observe.StartSpan(ctx, observe.SpanChantLoad, trace.WithAttributes(
		observe.KeyPlayerID.String(b.playerID),
		observe.KeyTrack.String(t.ID),
		observe.KeyTrackSource.String(source),
		observe.KeyOffset.Int64(int64(at/time.Second)),
	))
	defer span.End()

	start := time.Now()
	v, err := b.next.Start(ctx, t, at, volume)
	observe.Fail(span, err, "load failed")
	if b.metrics != nil {
		b.metrics.RecordChantLoad(ctx, source, time.Since(start).Seconds(), err != nil)
	}
	return v, err
}

var _ chant.Backend = (*instrumentedBackend)(nil)
