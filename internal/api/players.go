package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/templeguardian/internal/observe"
	"github.com/MrWong99/templeguardian/internal/player"
	"github.com/MrWong99/templeguardian/internal/temple"
	"github.com/MrWong99/templeguardian/pkg/chant"
)

// eventWriteTimeout bounds one websocket write to a slow client.
const eventWriteTimeout = 5 * time.Second

type createPlayerRequest struct {
	TempleID string `json:"temple_id"`
	Deity    string `json:"deity"`
}

// snapshotView adds display strings to a snapshot.
type snapshotView struct {
	chant.Snapshot
	ElapsedText  string `json:"elapsed_text"`
	DurationText string `json:"duration_text"`
	NominalText  string `json:"nominal_text"`
}

func viewOf(s chant.Snapshot) snapshotView {
	return snapshotView{
		Snapshot:     s,
		ElapsedText:  chant.FormatTime(s.Elapsed),
		DurationText: chant.FormatTime(s.Duration),
		NominalText:  chant.FormatTime(s.Nominal),
	}
}

type playerResponse struct {
	player.Info
	Playlist []chant.Track `json:"playlist"`
	State    snapshotView  `json:"state"`
}

func responseOf(p *player.Player) playerResponse {
	return playerResponse{
		Info:     p.Info(),
		Playlist: p.Sequencer().Playlist(),
		State:    viewOf(p.Sequencer().Snapshot()),
	}
}

func (s *Server) listChants(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.players.Catalog())
}

// createPlayer opens a player for a temple, or for a bare deity name. With
// neither the playlist falls back to the default track.
func (s *Server) createPlayer(w http.ResponseWriter, r *http.Request) {
	var req createPlayerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}

	spec := player.Spec{Deity: req.Deity}
	if req.TempleID != "" {
		t, err := s.temples.Get(r.Context(), req.TempleID)
		if errors.Is(err, temple.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, err)
			return
		}
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, err)
			return
		}
		spec = player.Spec{TempleID: t.ID, Deity: t.Deity}
	}

	p, err := s.players.Create(spec)
	switch {
	case errors.Is(err, player.ErrTooMany):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error()})
		return
	case err != nil:
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Location", "/api/players/"+p.Info().ID)
	writeJSON(w, http.StatusCreated, responseOf(p))
}

// lookupPlayer resolves the {id} path value, writing a 404 when unknown.
func (s *Server) lookupPlayer(w http.ResponseWriter, r *http.Request) (*player.Player, bool) {
	p, err := s.players.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusNotFound, err)
		return nil, false
	}
	return p, true
}

func (s *Server) getPlayer(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.lookupPlayer(w, r); ok {
		writeJSON(w, http.StatusOK, responseOf(p))
	}
}

func (s *Server) deletePlayer(w http.ResponseWriter, r *http.Request) {
	if err := s.players.Delete(r.PathValue("id")); err != nil {
		writeError(w, r, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type seekRequest struct {
	Time *int `json:"time"`
}

type volumeRequest struct {
	Volume *int `json:"volume"`
}

// playerCommand returns the handler of one transport command. Each replies
// with the snapshot taken right after the command.
func (s *Server) playerCommand(cmd string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := s.lookupPlayer(w, r)
		if !ok {
			return
		}
		seq := p.Sequencer()

		var err error
		switch cmd {
		case "toggle":
			err = seq.TogglePlayPause()
		case "next":
			err = seq.Next()
		case "previous":
			err = seq.Previous()
		case "seek":
			var req seekRequest
			if derr := decodeJSON(r, &req); derr != nil || req.Time == nil {
				writeError(w, r, http.StatusBadRequest, errors.New(`body must be {"time": <seconds>}`))
				return
			}
			err = seq.Seek(*req.Time)
		case "volume":
			var req volumeRequest
			if derr := decodeJSON(r, &req); derr != nil || req.Volume == nil {
				writeError(w, r, http.StatusBadRequest, errors.New(`body must be {"volume": <0-100>}`))
				return
			}
			err = seq.SetVolume(*req.Volume)
		}

		if errors.Is(err, chant.ErrClosed) {
			writeError(w, r, http.StatusNotFound, player.ErrNotFound)
			return
		}
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, err)
			return
		}
		if s.metrics != nil {
			s.metrics.RecordPlayerCommand(r.Context(), cmd)
		}
		writeJSON(w, http.StatusOK, viewOf(seq.Snapshot()))
	}
}

// playerEvents streams a snapshot on every state change over a websocket.
// The first message is the current state. Only the newest pending snapshot
// is kept for a slow client, and nothing older than what was already sent
// goes out.
func (s *Server) playerEvents(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookupPlayer(w, r)
	if !ok {
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		observe.Logger(r.Context()).Debug("api: websocket accept", "err", err)
		return
	}
	defer conn.CloseNow()

	release := p.Hold()
	defer release()
	if s.metrics != nil {
		s.metrics.EventSubscribers.Add(r.Context(), 1)
		defer s.metrics.EventSubscribers.Add(context.WithoutCancel(r.Context()), -1)
	}

	pending := newLatestSnapshot()
	unsubscribe := p.Sequencer().Subscribe(pending.offer)
	defer unsubscribe()
	pending.offer(p.Sequencer().Snapshot())

	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.Done():
			conn.Close(websocket.StatusGoingAway, "player closed")
			return
		case <-pending.wake:
			snap, ok := pending.take()
			if !ok {
				continue
			}
			data, err := json.Marshal(viewOf(snap))
			if err != nil {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
			err = conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// playerAudio streams the player's output as an open-ended WAV file. Frames
// arrive only while a track is playing.
func (s *Server) playerAudio(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookupPlayer(w, r)
	if !ok {
		return
	}
	l := p.Audio().Subscribe()
	defer p.Audio().Unsubscribe(l)
	if s.metrics != nil {
		s.metrics.AudioListeners.Add(r.Context(), 1)
		defer s.metrics.AudioListeners.Add(context.WithoutCancel(r.Context()), -1)
	}

	format := s.players.Format()
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	if _, err := w.Write(chant.StreamHeader(format.SampleRate, format.Channels)); err != nil {
		return
	}
	_ = rc.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-l.C:
			if !ok {
				return
			}
			if _, err := w.Write(f.Data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// latestSnapshot holds the newest snapshot not yet sent to one client.
// Snapshots whose version is not above the newest one seen are dropped.
type latestSnapshot struct {
	mu     sync.Mutex
	snap   chant.Snapshot
	has    bool
	seen   bool
	newest uint64
	wake   chan struct{}
}

func newLatestSnapshot() *latestSnapshot {
	return &latestSnapshot{wake: make(chan struct{}, 1)}
}

func (l *latestSnapshot) offer(snap chant.Snapshot) {
	l.mu.Lock()
	if l.seen && snap.Version <= l.newest {
		l.mu.Unlock()
		return
	}
	l.seen = true
	l.newest = snap.Version
	l.snap = snap
	l.has = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *latestSnapshot) take() (chant.Snapshot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.has {
		return chant.Snapshot{}, false
	}
	l.has = false
	return l.snap, true
}
