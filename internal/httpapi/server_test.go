package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/flowstack/sessioncore/internal/agentmemory"
	"github.com/flowstack/sessioncore/internal/agentstore"
	"github.com/flowstack/sessioncore/internal/eventstream"
	"github.com/flowstack/sessioncore/internal/llmclient"
	"github.com/flowstack/sessioncore/internal/orchestrator"
	"github.com/flowstack/sessioncore/internal/sandboxpool"
	"github.com/flowstack/sessioncore/internal/sessionstore"
	"github.com/flowstack/sessioncore/internal/toolkit"
	"github.com/flowstack/sessioncore/pkg/models"
)

type fakeProvisioner struct{}

func (fakeProvisioner) Provision(ctx context.Context, sessionID string) (*sandboxpool.Handle, error) {
	now := time.Now().UTC()
	return &sandboxpool.Handle{ID: "sandbox-" + sessionID, SessionID: sessionID, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}, nil
}

func (fakeProvisioner) Destroy(ctx context.Context, handle *sandboxpool.Handle) error { return nil }

func newTestServer(t *testing.T, llm llmclient.Client) *Server {
	t.Helper()
	registry := toolkit.NewRegistry()
	registry.Register(&toolkit.NotifyUserTool{})
	registry.Register(&toolkit.AskUserTool{})

	orch := orchestrator.New(orchestrator.Config{
		Agents:             agentstore.NewMemoryStore(),
		Sessions:           sessionstore.NewMemoryStore(),
		Streams:            eventstream.NewMemoryFactory(),
		Sandbox:            sandboxpool.New(fakeProvisioner{}, time.Hour),
		Memory:             agentmemory.NewInMemoryStore(),
		LLM:                llm,
		Tools:              registry,
		DefaultModel:       "claude-sonnet-4-20250514",
		DefaultTemperature: 0.2,
		DefaultMaxTokens:   4096,
	})
	return New(orch, nil)
}

func createTestSession(t *testing.T, s *Server) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/sessions", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("create session status = %d, want 200, body = %s", rec.Code, rec.Body.String())
	}
	var resp createSessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if resp.SessionID == "" {
		t.Fatal("expected a non-empty session id")
	}
	return resp.SessionID
}

func TestCreateAndGetSession(t *testing.T) {
	s := newTestServer(t, llmclient.NewFakeClient())
	id := createTestSession(t, s)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id, nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get session status = %d, want 200, body = %s", rec.Code, rec.Body.String())
	}
	var detail sessionDetailResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode get response: %v", err)
	}
	if detail.SessionID != id {
		t.Errorf("SessionID = %q, want %q", detail.SessionID, id)
	}
}

func TestGetSession_UnknownIDReturns404WithEnvelope(t *testing.T) {
	s := newTestServer(t, llmclient.NewFakeClient())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/does-not-exist", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body = %s", rec.Code, rec.Body.String())
	}
	var env errResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if env.Code != 404 || env.Msg == "" {
		t.Errorf("envelope = %+v, want code 404 and a message", env)
	}
}

func TestListSessions(t *testing.T) {
	s := newTestServer(t, llmclient.NewFakeClient())
	createTestSession(t, s)
	createTestSession(t, s)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var list sessionListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if len(list.Sessions) != 2 {
		t.Fatalf("len(Sessions) = %d, want 2", len(list.Sessions))
	}
}

func TestChat_StreamsSSEEventsAndCompletesSession(t *testing.T) {
	llm := llmclient.NewFakeClient(
		models.MemoryMessage{Role: models.RoleAssistant, Content: `{"goal":"write hello.txt","title":"Write hello.txt","message":"On it.",
			"steps":[{"id":"1","description":"write hello.txt containing hi"}]}`},
		models.MemoryMessage{Role: models.RoleAssistant, Content: "wrote hello.txt"},
		models.MemoryMessage{Role: models.RoleAssistant, Content: `{"goal":"write hello.txt","title":"Write hello.txt","steps":[]}`},
	)
	s := newTestServer(t, llm)
	id := createTestSession(t, s)

	body, err := json.Marshal(chatRequest{Message: "Write hello.txt containing hi"})
	if err != nil {
		t.Fatalf("marshal chat request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+id+"/chat", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	out := rec.Body.String()
	wantFrames := []string{"event: message", "event: title", "event: plan", "event: step", "event: done"}
	for _, frame := range wantFrames {
		if !strings.Contains(out, frame) {
			t.Errorf("SSE output missing %q, full output:\n%s", frame, out)
		}
	}
	if got := strings.Count(out, "event: done"); got != 1 {
		t.Errorf("event: done appeared %d times, want exactly 1", got)
	}

	getReq := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id, nil)
	getRec := httptest.NewRecorder()
	s.ServeHTTP(getRec, getReq)
	var detail sessionDetailResponse
	if err := json.Unmarshal(getRec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode get response: %v", err)
	}
	if len(detail.Events) == 0 {
		t.Error("expected persisted events after chat completes")
	}
}

func TestStopAndDeleteSession(t *testing.T) {
	s := newTestServer(t, llmclient.NewFakeClient())
	id := createTestSession(t, s)

	stopReq := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+id+"/stop", nil)
	stopRec := httptest.NewRecorder()
	s.ServeHTTP(stopRec, stopReq)
	if stopRec.Code != http.StatusOK {
		t.Fatalf("stop status = %d, want 200, body = %s", stopRec.Code, stopRec.Body.String())
	}

	delReq := httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/"+id, nil)
	delRec := httptest.NewRecorder()
	s.ServeHTTP(delRec, delReq)
	if delRec.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want 200, body = %s", delRec.Code, delRec.Body.String())
	}

	getReq := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id, nil)
	getRec := httptest.NewRecorder()
	s.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", getRec.Code)
	}
}

func TestHandleSessionsItem_UnknownRouteReturns404(t *testing.T) {
	s := newTestServer(t, llmclient.NewFakeClient())
	id := createTestSession(t, s)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+id+"/frobnicate", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body = %s", rec.Code, rec.Body.String())
	}
}
