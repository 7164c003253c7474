// Copyright 2026 Mykhailo Kravets
// SPDX-License-Identifier: Apache-2.0

// Package noteserver is an embedded, in-memory reference implementation of
// the note REST API the client syncs against. It exists for the demo binary
// and for integration tests; production deployments talk to the real
// server, which is an external collaborator.
package noteserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mkravets/go-notesync/internal/auth"
	"github.com/mkravets/go-notesync/notesqlite"
)

// Server holds all state in memory behind one mutex.
type Server struct {
	jwtAuth   *JWTAuth
	csrfToken string
	logger    *slog.Logger

	mu      sync.Mutex
	nextID  int64
	notes   map[int64]*notesqlite.Note
	labels  map[int64]*notesqlite.Label
	// Recent create dedup tokens, temp_id -> assigned id. Best-effort
	// mitigation for at-least-once create replays, not a strict guarantee.
	tempIDs map[string]int64

	failing int32
}

// NewServer creates a reference server. csrfToken, when non-empty, is
// required in the X-CSRF-Token header of every mutating request.
func NewServer(jwtSecret, csrfToken string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		jwtAuth:   NewJWTAuth(jwtSecret),
		csrfToken: csrfToken,
		logger:    logger,
		notes:     make(map[int64]*notesqlite.Note),
		labels:    make(map[int64]*notesqlite.Label),
		tempIDs:   make(map[string]int64),
	}
}

// Auth exposes the token authority so callers can mint client tokens.
func (s *Server) Auth() *JWTAuth { return s.jwtAuth }

// SetFailing makes every API request answer 503, simulating an outage.
func (s *Server) SetFailing(failing bool) {
	if failing {
		atomic.StoreInt32(&s.failing, 1)
	} else {
		atomic.StoreInt32(&s.failing, 0)
	}
}

// Handler returns the HTTP handler for the full API surface.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /api/notes", s.requireAuth(s.handleCreateNote))
	mux.HandleFunc("GET /api/notes", s.requireAuth(s.handleListNotes))
	mux.HandleFunc("GET /api/notes/{id}", s.requireAuth(s.handleGetNote))
	mux.HandleFunc("PUT /api/notes/{id}", s.requireAuth(s.handleUpdateNote))
	mux.HandleFunc("DELETE /api/notes/{id}", s.requireAuth(s.handleDeleteNote))

	mux.HandleFunc("POST /api/labels", s.requireAuth(s.handleCreateLabel))
	mux.HandleFunc("GET /api/labels", s.requireAuth(s.handleListLabels))
	mux.HandleFunc("PUT /api/labels/{id}", s.requireAuth(s.handleUpdateLabel))
	mux.HandleFunc("DELETE /api/labels/{id}", s.requireAuth(s.handleDeleteLabel))

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if atomic.LoadInt32(&s.failing) == 1 {
		s.writeError(w, http.StatusServiceUnavailable, "unavailable", "server is down")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&s.failing) == 1 {
			s.writeError(w, http.StatusServiceUnavailable, "unavailable", "server is down")
			return
		}

		userID, deviceID, err := s.jwtAuth.UserFromRequest(r)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, "authentication_failed", err.Error())
			return
		}

		if r.Method != http.MethodGet && s.csrfToken != "" {
			if r.Header.Get("X-CSRF-Token") != s.csrfToken {
				s.writeError(w, http.StatusForbidden, "csrf_mismatch", "missing or invalid CSRF token")
				return
			}
		}

		next(w, r.WithContext(auth.WithUser(r.Context(), userID, deviceID)))
	}
}

func (s *Server) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	var n notesqlite.Note
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "failed to parse note")
		return
	}

	s.mu.Lock()
	if n.TempID != "" {
		if id, ok := s.tempIDs[n.TempID]; ok {
			existing := *s.notes[id]
			s.mu.Unlock()
			s.logger.Debug("deduplicated note create", "temp_id", n.TempID, "id", id)
			s.writeJSON(w, http.StatusOK, &existing)
			return
		}
	}
	s.nextID++
	n.ID = s.nextID
	n.UserID = userID
	n.IsOfflineCreated = false
	n.UpdatedAt = time.Now().UTC()
	stored := n
	s.notes[n.ID] = &stored
	if n.TempID != "" {
		s.tempIDs[n.TempID] = n.ID
	}
	s.mu.Unlock()

	s.writeJSON(w, http.StatusCreated, &stored)
}

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	s.mu.Lock()
	notes := make([]*notesqlite.Note, 0)
	for _, n := range s.notes {
		if n.UserID == userID {
			cp := *n
			notes = append(notes, &cp)
		}
	}
	s.mu.Unlock()

	s.writeJSON(w, http.StatusOK, notes)
}

func (s *Server) handleGetNote(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "id must be an integer")
		return
	}

	s.mu.Lock()
	n, ok := s.notes[id]
	if !ok || n.UserID != userID {
		s.mu.Unlock()
		s.writeError(w, http.StatusNotFound, "not_found", "note not found")
		return
	}
	cp := *n
	s.mu.Unlock()

	s.writeJSON(w, http.StatusOK, &cp)
}

func (s *Server) handleUpdateNote(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "id must be an integer")
		return
	}

	var in notesqlite.Note
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "failed to parse note")
		return
	}

	s.mu.Lock()
	n, ok := s.notes[id]
	if !ok || n.UserID != userID {
		s.mu.Unlock()
		s.writeError(w, http.StatusNotFound, "not_found", "note not found")
		return
	}
	// Full overwrite: last write wins.
	n.Title = in.Title
	n.Content = in.Content
	n.Color = in.Color
	n.Pinned = in.Pinned
	n.UpdatedAt = time.Now().UTC()
	cp := *n
	s.mu.Unlock()

	s.writeJSON(w, http.StatusOK, &cp)
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "id must be an integer")
		return
	}

	s.mu.Lock()
	n, ok := s.notes[id]
	if !ok || n.UserID != userID {
		s.mu.Unlock()
		s.writeError(w, http.StatusNotFound, "not_found", "note not found")
		return
	}
	delete(s.notes, id)
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateLabel(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	var l notesqlite.Label
	if err := json.NewDecoder(r.Body).Decode(&l); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "failed to parse label")
		return
	}

	s.mu.Lock()
	if l.TempID != "" {
		if id, ok := s.tempIDs[l.TempID]; ok {
			existing := *s.labels[id]
			s.mu.Unlock()
			s.writeJSON(w, http.StatusOK, &existing)
			return
		}
	}
	s.nextID++
	l.ID = s.nextID
	l.UserID = userID
	l.IsOfflineCreated = false
	l.UpdatedAt = time.Now().UTC()
	stored := l
	s.labels[l.ID] = &stored
	if l.TempID != "" {
		s.tempIDs[l.TempID] = l.ID
	}
	s.mu.Unlock()

	s.writeJSON(w, http.StatusCreated, &stored)
}

func (s *Server) handleListLabels(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	s.mu.Lock()
	labels := make([]*notesqlite.Label, 0)
	for _, l := range s.labels {
		if l.UserID == userID {
			cp := *l
			labels = append(labels, &cp)
		}
	}
	s.mu.Unlock()

	s.writeJSON(w, http.StatusOK, labels)
}

func (s *Server) handleUpdateLabel(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "id must be an integer")
		return
	}

	var in notesqlite.Label
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "failed to parse label")
		return
	}

	s.mu.Lock()
	l, ok := s.labels[id]
	if !ok || l.UserID != userID {
		s.mu.Unlock()
		s.writeError(w, http.StatusNotFound, "not_found", "label not found")
		return
	}
	l.Name = in.Name
	l.Color = in.Color
	l.UpdatedAt = time.Now().UTC()
	cp := *l
	s.mu.Unlock()

	s.writeJSON(w, http.StatusOK, &cp)
}

func (s *Server) handleDeleteLabel(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "id must be an integer")
		return
	}

	s.mu.Lock()
	l, ok := s.labels[id]
	if !ok || l.UserID != userID {
		s.mu.Unlock()
		s.writeError(w, http.StatusNotFound, "not_found", "label not found")
		return
	}
	delete(s.labels, id)
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, map[string]string{"error": code, "message": message})
}
