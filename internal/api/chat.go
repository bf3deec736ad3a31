package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/MrWong99/templeguardian/internal/chat"
)

type chatRequest struct {
	SessionID string     `json:"session_id"`
	Agent     chat.Agent `json:"agent"`
	Message   string     `json:"message"`
}

type chatResponse struct {
	SessionID string       `json:"session_id"`
	Agent     chat.Agent   `json:"agent"`
	Message   chat.Message `json:"message"`
}

func (s *Server) chatWelcome(w http.ResponseWriter, r *http.Request) {
	agent := chat.Agent(r.URL.Query().Get("agent"))
	writeJSON(w, http.StatusOK, chatResponse{Agent: agent, Message: s.chat.Welcome(agent)})
}

// chatReply answers one visitor message. A missing session id starts a new
// conversation; the id is returned so the client can continue it.
func (s *Server) chatReply(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	msg, err := s.chat.Reply(r.Context(), req.SessionID, req.Agent, req.Message)
	if errors.Is(err, chat.ErrEmptyMessage) {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{SessionID: req.SessionID, Agent: req.Agent, Message: msg})
}

func (s *Server) chatHistory(w http.ResponseWriter, r *http.Request) {
	conv, err := s.chat.History(r.Context(), r.PathValue("session"))
	switch {
	case errors.Is(err, chat.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err)
	case err != nil:
		writeError(w, r, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, conv)
	}
}
