package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrWong99/templeguardian/internal/temple"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

func (s *Server) listTemples(w http.ResponseWriter, r *http.Request) {
	var (
		temples []temple.Temple
		err     error
	)
	if state := strings.TrimSpace(r.URL.Query().Get("state")); state != "" {
		temples, err = s.temples.ListByState(r.Context(), state)
	} else {
		temples, err = s.temples.List(r.Context())
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if temples == nil {
		temples = []temple.Temple{}
	}
	writeJSON(w, http.StatusOK, temples)
}

func (s *Server) listStates(w http.ResponseWriter, r *http.Request) {
	states, err := s.temples.States(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if states == nil {
		states = []string{}
	}
	writeJSON(w, http.StatusOK, states)
}

func (s *Server) searchTemples(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, r, http.StatusBadRequest, errors.New("query parameter q is required"))
		return
	}
	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxSearchLimit {
			writeError(w, r, http.StatusBadRequest, fmt.Errorf("limit must be between 1 and %d", maxSearchLimit))
			return
		}
		limit = n
	}

	results, err := s.temples.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if results == nil {
		results = []temple.Result{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) getTemple(w http.ResponseWriter, r *http.Request) {
	t, err := s.temples.Get(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, temple.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err)
	case err != nil:
		writeError(w, r, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, t)
	}
}
