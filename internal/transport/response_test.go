package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pitabwire/opsdesk/model"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusOK, map[string]string{"hello": "world"})

	if w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if xct := w.Header().Get("X-Content-Type-Options"); xct != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", xct)
	}

	var body map[string]string
	_ = json.NewDecoder(w.Body).Decode(&body)
	if body["hello"] != "world" {
		t.Errorf("body = %v", body)
	}
}

func TestWriteError_statusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{model.NewBadRequestError("x"), http.StatusBadRequest},
		{model.NewNotFoundError("x"), http.StatusNotFound},
		{model.NewConflictError("x"), http.StatusConflict},
		{model.NewRateLimitedError(), http.StatusTooManyRequests},
		{model.NewInternalError(), http.StatusInternalServerError},
		{model.NewBackendUnavailableError(), http.StatusBadGateway},
		{model.NewBackendTimeoutError(), http.StatusGatewayTimeout},
		{model.NewSessionNotFoundError("s1"), http.StatusNotFound},
		{model.NewSessionLimitError(10), http.StatusServiceUnavailable},
		{model.NewUnknownViewError("orders", "audit"), http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", model.NewBackendTimeoutError()), http.StatusGatewayTimeout},
		{fmt.Errorf("plain failure"), http.StatusInternalServerError},
		{&model.ErrorEnvelope{Code: "SOMETHING_NEW"}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestWriteError_envelope(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, model.NewUnknownViewError("orders", "audit"))

	var resp struct {
		Error model.ErrorEnvelope `json:"error"`
	}
	_ = json.NewDecoder(w.Body).Decode(&resp)
	if resp.Error.Code != model.ErrUnknownView {
		t.Errorf("code = %q, want %s", resp.Error.Code, model.ErrUnknownView)
	}
}

func TestWriteError_plainErrorHidesMessage(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, fmt.Errorf("database password is hunter2"))

	if strings.Contains(w.Body.String(), "hunter2") {
		t.Errorf("internal error message leaked: %s", w.Body.String())
	}
}

func TestDecodeJSON(t *testing.T) {
	var req pageRequest

	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"direction":"next"}`))
	if err := decodeJSON(httptest.NewRecorder(), r, &req); err != nil {
		t.Fatalf("decodeJSON() error = %v", err)
	}
	if req.Direction != "next" {
		t.Errorf("Direction = %q", req.Direction)
	}

	r = httptest.NewRequest("POST", "/", nil)
	if err := decodeJSON(httptest.NewRecorder(), r, &req); err != nil {
		t.Errorf("empty body error = %v", err)
	}

	r = httptest.NewRequest("POST", "/", strings.NewReader(`{"pages": 2}`))
	if err := decodeJSON(httptest.NewRecorder(), r, &req); err == nil {
		t.Error("unknown field should be rejected")
	}

	r = httptest.NewRequest("POST", "/", strings.NewReader(`{"page":`))
	if err := decodeJSON(httptest.NewRecorder(), r, &req); err == nil {
		t.Error("truncated body should be rejected")
	}
}
