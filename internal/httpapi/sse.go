package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/flowstack/sessioncore/internal/apperrors"
)

// sseWriter frames typed events as Server-Sent Events, grounded on the
// `event: <name>` + `data: <json>` envelope spec.md §6 names and the
// teacher's hand-rolled (no-framework) streaming idiom in
// internal/gateway/http_server.go.
type sseWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("httpapi: response writer does not support flushing")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseWriter{w: w, f: flusher}, nil
}

func (s *sseWriter) writeEvent(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

// errorEnvelope builds the {code, msg, data} body spec.md §6 requires
// for every error response, whether delivered over plain JSON or as
// an `error` SSE frame mid-stream.
type errResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data"`
}

func errorEnvelope(err *apperrors.Error) errResponse {
	return errResponse{Code: err.Kind.Code(), Msg: err.Message, Data: nil}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err *apperrors.Error) {
	writeJSON(w, err.Kind.HTTPStatus(), errorEnvelope(err))
}
