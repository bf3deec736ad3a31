// Package api exposes the temple directory, the chat assistant and the chant
// players over HTTP.
//
// Errors are reported as JSON objects of the form {"error": "..."} with
// status 400 for bad input, 404 for unknown resources and 500 otherwise.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/templeguardian/internal/chat"
	"github.com/MrWong99/templeguardian/internal/health"
	"github.com/MrWong99/templeguardian/internal/observe"
	"github.com/MrWong99/templeguardian/internal/player"
	"github.com/MrWong99/templeguardian/internal/temple"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// Server routes HTTP requests to the application services.
type Server struct {
	temples temple.Directory
	chat    *chat.Service
	players *player.Manager

	metrics        *observe.Metrics
	health         *health.Handler
	metricsHandler http.Handler
}

// Option is a functional option for [New].
type Option func(*Server)

// WithMetrics enables the request middleware and command counters.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHealth serves /healthz and /readyz from h.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetricsHandler replaces the Prometheus handler mounted at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// New creates a Server.
func New(temples temple.Directory, chatSvc *chat.Service, players *player.Manager, opts ...Option) *Server {
	s := &Server{
		temples:        temples,
		chat:           chatSvc,
		players:        players,
		health:         health.New(),
		metricsHandler: promhttp.Handler(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the routed handler, wrapped in the observability
// middleware when metrics are configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/temples", s.listTemples)
	mux.HandleFunc("GET /api/temples/states", s.listStates)
	mux.HandleFunc("GET /api/temples/search", s.searchTemples)
	mux.HandleFunc("GET /api/temples/{id}", s.getTemple)

	mux.HandleFunc("GET /api/chat/welcome", s.chatWelcome)
	mux.HandleFunc("POST /api/chat", s.chatReply)
	mux.HandleFunc("GET /api/chat/{session}", s.chatHistory)

	mux.HandleFunc("GET /api/chants", s.listChants)
	mux.HandleFunc("POST /api/players", s.createPlayer)
	mux.HandleFunc("GET /api/players/{id}", s.getPlayer)
	mux.HandleFunc("DELETE /api/players/{id}", s.deletePlayer)
	mux.HandleFunc("POST /api/players/{id}/toggle", s.playerCommand("toggle"))
	mux.HandleFunc("POST /api/players/{id}/next", s.playerCommand("next"))
	mux.HandleFunc("POST /api/players/{id}/previous", s.playerCommand("previous"))
	mux.HandleFunc("POST /api/players/{id}/seek", s.playerCommand("seek"))
	mux.HandleFunc("POST /api/players/{id}/volume", s.playerCommand("volume"))
	mux.HandleFunc("GET /api/players/{id}/events", s.playerEvents)
	mux.HandleFunc("GET /api/players/{id}/audio", s.playerAudio)

	s.health.Register(mux)
	mux.Handle("GET /metrics", s.metricsHandler)

	if s.metrics == nil {
		return mux
	}
	return observe.Middleware(s.metrics)(mux)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("api: encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		observe.Logger(r.Context()).Error("api: request failed",
			"method", r.Method, "path", r.URL.Path, "err", err)
		writeJSON(w, status, errorBody{Error: http.StatusText(status)})
		return
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// decodeJSON decodes a request body into v. Unknown fields are rejected and
// an empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
