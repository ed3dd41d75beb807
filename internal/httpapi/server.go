// Package httpapi is the reference HTTP/SSE transport over
// internal/orchestrator, matching the route table in spec.md §6
// exactly. The transport itself is named as an external collaborator
// there ("HTTP/SSE transport framework and its routing" is out of
// scope for the core); this package is the one in-tree implementation
// that lets the module serve standalone, grounded on the teacher's
// internal/gateway/http_server.go (bare net/http mux, no framework —
// Nexus hand-rolls its HTTP layer rather than importing one, so this
// module does the same) and the original ai-manus project's
// interface/controller/session_routes.py for the route shapes and
// the {code,msg,data} error envelope from application/errors.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/flowstack/sessioncore/internal/apperrors"
	"github.com/flowstack/sessioncore/internal/orchestrator"
	"github.com/flowstack/sessioncore/internal/sessionstore"
	"github.com/flowstack/sessioncore/pkg/models"
)

// Server adapts an *orchestrator.Orchestrator onto net/http.
type Server struct {
	orch   *orchestrator.Orchestrator
	logger *slog.Logger
	mux    *http.ServeMux
}

// New builds a Server and registers every route in spec.md §6's table
// (VNC WebSocket bridging excluded: it forwards to the sandbox's own
// binary subprotocol and has no session-core semantics to exercise).
func New(orch *orchestrator.Orchestrator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{orch: orch, logger: logger, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/sessions", s.handleSessionsCollection)
	s.mux.HandleFunc("/api/v1/sessions/", s.handleSessionsItem)
}

// handleSessionsCollection dispatches PUT/GET/POST on /api/v1/sessions.
func (s *Server) handleSessionsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut:
		s.createSession(w, r)
	case http.MethodGet:
		s.listSessions(w, r)
	case http.MethodPost:
		s.streamSessionList(w, r)
	default:
		writeError(w, apperrors.BadInput(fmt.Sprintf("method %s not allowed", r.Method), nil))
	}
}

// handleSessionsItem parses /api/v1/sessions/{id}[/chat|/stop|/shell|/file]
// and dispatches to the matching handler.
func (s *Server) handleSessionsItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/sessions/")
	parts := strings.SplitN(rest, "/", 2)
	if parts[0] == "" {
		writeError(w, apperrors.NotFound("session id required", nil))
		return
	}
	sessionID := parts[0]
	sub := ""
	if len(parts) == 2 {
		sub = parts[1]
	}

	switch {
	case sub == "" && r.Method == http.MethodGet:
		s.getSession(w, r, sessionID)
	case sub == "" && r.Method == http.MethodDelete:
		s.deleteSession(w, r, sessionID)
	case sub == "chat" && r.Method == http.MethodPost:
		s.chat(w, r, sessionID)
	case sub == "stop" && r.Method == http.MethodPost:
		s.stop(w, r, sessionID)
	case sub == "shell" && r.Method == http.MethodPost:
		s.shellSnapshot(w, r, sessionID)
	case sub == "file" && r.Method == http.MethodPost:
		s.fileSnapshot(w, r, sessionID)
	default:
		writeError(w, apperrors.NotFound("no such route", nil))
	}
}

// --- PUT /sessions ---

type createSessionRequest struct {
	Attachments []string `json:"attachments,omitempty"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req) // attachments are advisory; absent body is fine
	}
	session, err := s.orch.CreateSession(r.Context())
	if err != nil {
		writeError(w, apperrors.Server("create session", err))
		return
	}
	writeJSON(w, http.StatusOK, createSessionResponse{SessionID: session.ID})
}

// --- GET /sessions/{id} ---

type sessionDetailResponse struct {
	SessionID string                `json:"session_id"`
	Title     string                `json:"title"`
	Events    []*models.SessionEvent `json:"events"`
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request, id string) {
	session, err := s.orch.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, mapStoreErr(err, "get session"))
		return
	}
	events, err := s.orch.GetSessionEvents(r.Context(), id)
	if err != nil {
		writeError(w, apperrors.Server("load events", err))
		return
	}
	writeJSON(w, http.StatusOK, sessionDetailResponse{SessionID: session.ID, Title: session.Title, Events: events})
}

// --- GET /sessions ---

type sessionSummary struct {
	SessionID          string    `json:"session_id"`
	Title              string    `json:"title"`
	Status             string    `json:"status"`
	UnreadMessageCount int       `json:"unread_message_count"`
	LatestMessage      string    `json:"latest_message,omitempty"`
	LatestMessageAt    time.Time `json:"latest_message_at,omitempty"`
}

type sessionListResponse struct {
	Sessions []sessionSummary `json:"sessions"`
}

func summarize(sessions []*models.Session) sessionListResponse {
	out := sessionListResponse{Sessions: make([]sessionSummary, 0, len(sessions))}
	for _, sess := range sessions {
		out.Sessions = append(out.Sessions, sessionSummary{
			SessionID:          sess.ID,
			Title:              sess.Title,
			Status:             string(sess.Status),
			UnreadMessageCount: sess.UnreadMessageCount,
			LatestMessage:      sess.LatestMessage,
			LatestMessageAt:    sess.LatestMessageAt,
		})
	}
	return out
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.orch.GetAllSessions(r.Context())
	if err != nil {
		writeError(w, apperrors.Server("list sessions", err))
		return
	}
	writeJSON(w, http.StatusOK, summarize(sessions))
}

// --- POST /sessions (SSE list poll) ---

func (s *Server) streamSessionList(w http.ResponseWriter, r *http.Request) {
	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, apperrors.Server("streaming unsupported", err))
		return
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	emit := func() bool {
		sessions, err := s.orch.GetAllSessions(r.Context())
		if err != nil {
			return sse.writeEvent("error", errorEnvelope(apperrors.Server("list sessions", err))) == nil
		}
		return sse.writeEvent("sessions", summarize(sessions)) == nil
	}
	if !emit() {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if !emit() {
				return
			}
		}
	}
}

// --- POST /sessions/{id}/chat ---

type chatRequest struct {
	Message   string `json:"message,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
	EventID   string `json:"event_id,omitempty"`
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req chatRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, http.ErrBodyNotAllowed) {
			writeError(w, apperrors.BadInput("malformed chat request", err))
			return
		}
	}

	events, err := s.orch.Chat(r.Context(), sessionID, req.Message, req.EventID)
	if err != nil {
		writeError(w, mapStoreErr(err, "chat"))
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, apperrors.Server("streaming unsupported", err))
		return
	}
	for event := range events {
		if sse.writeEvent(string(event.Type), event) != nil {
			return
		}
	}
}

// --- POST /sessions/{id}/stop ---

func (s *Server) stop(w http.ResponseWriter, r *http.Request, sessionID string) {
	if err := s.orch.StopSession(r.Context(), sessionID); err != nil {
		writeError(w, mapStoreErr(err, "stop session"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

// --- DELETE /sessions/{id} ---

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	if err := s.orch.DeleteSession(r.Context(), sessionID); err != nil {
		writeError(w, mapStoreErr(err, "delete session"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

// --- POST /sessions/{id}/shell, /file: sandbox snapshot streams ---

type shellSnapshotRequest struct {
	ShellSessionID string `json:"session_id"`
}

func (s *Server) shellSnapshot(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req shellSnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.BadInput("malformed shell snapshot request", err))
		return
	}
	client, ok := s.orch.SandboxClient(sessionID)
	if !ok {
		writeError(w, apperrors.NotFound("session has no active sandbox", nil))
		return
	}
	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, apperrors.Server("streaming unsupported", err))
		return
	}
	content, err := client.ViewShell(r.Context(), req.ShellSessionID)
	if err != nil {
		_ = sse.writeEvent("error", errorEnvelope(apperrors.Server("view shell", err)))
		return
	}
	_ = sse.writeEvent("shell", map[string]string{"content": content})
}

type fileSnapshotRequest struct {
	File string `json:"file"`
}

func (s *Server) fileSnapshot(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req fileSnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.BadInput("malformed file snapshot request", err))
		return
	}
	client, ok := s.orch.SandboxClient(sessionID)
	if !ok {
		writeError(w, apperrors.NotFound("session has no active sandbox", nil))
		return
	}
	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, apperrors.Server("streaming unsupported", err))
		return
	}
	content, err := client.FileRead(r.Context(), req.File)
	if err != nil {
		_ = sse.writeEvent("error", errorEnvelope(apperrors.Server("read file", err)))
		return
	}
	_ = sse.writeEvent("file", map[string]string{"content": content})
}

func mapStoreErr(err error, msg string) *apperrors.Error {
	if errors.Is(err, sessionstore.ErrNotFound) {
		return apperrors.NotFound(msg, err)
	}
	return apperrors.Server(msg, err)
}
