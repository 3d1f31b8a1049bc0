package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

const testAPIKey = "test-secret-key-12345"

// mockHandler is a simple handler that records if it was called
func mockHandler() (http.Handler, *bool) {
	called := false
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}), &called
}

// captureLogs routes slog to a JSON buffer for the duration of the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(old) })
	return &buf
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	handler, called := mockHandler()
	mw := AuthMiddleware(testAPIKey)(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tables/tips/rows", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	w := httptest.NewRecorder()
	mw.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !*called {
		t.Error("handler was not called with valid token")
	}
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong_token", "Bearer wrong-key"},
		{"no_bearer_prefix", testAPIKey},
		{"lowercase_bearer", "bearer " + testAPIKey},
		{"empty_token", "Bearer "},
		{"whitespace_token", "Bearer    "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			captureLogs(t)
			handler, called := mockHandler()
			mw := AuthMiddleware(testAPIKey)(handler)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/tables/tips/rows", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			mw.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
			if *called {
				t.Error("handler should not be called")
			}
		})
	}
}

func TestAuthMiddleware_ResponseFormat_RFC7807(t *testing.T) {
	captureLogs(t)
	handler, _ := mockHandler()
	mw := AuthMiddleware(testAPIKey)(handler)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tables/scans/rows", nil)
	w := httptest.NewRecorder()
	mw.ServeHTTP(w, req)

	if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("Content-Type = %q, want application/problem+json", ct)
	}
	var p Problem
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("failed to unmarshal problem: %v", err)
	}
	if p.Type != "https://fieldsync.dev/errors/unauthorized" || p.Status != 401 {
		t.Errorf("problem = %+v", p)
	}
	if p.Instance != "/api/v1/tables/scans/rows" {
		t.Errorf("instance = %q", p.Instance)
	}
}

func TestAuthMiddleware_NoKeyLeak(t *testing.T) {
	logs := captureLogs(t)
	handler, _ := mockHandler()
	mw := AuthMiddleware(testAPIKey)(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tables/tips/rows", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	mw.ServeHTTP(w, req)

	if strings.Contains(w.Body.String(), testAPIKey) {
		t.Error("response body contains API key")
	}
	if strings.Contains(logs.String(), testAPIKey) {
		t.Error("logs contain API key")
	}
}

func TestAuthMiddleware_EmptyKeyDisablesAuth(t *testing.T) {
	handler, called := mockHandler()
	mw := AuthMiddleware("")(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tables/tips/rows", nil)
	w := httptest.NewRecorder()
	mw.ServeHTTP(w, req)

	if w.Code != http.StatusOK || !*called {
		t.Errorf("status = %d, called = %v; want open access", w.Code, *called)
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"Bearer  abc ", "abc"},
		{"Basic abc", ""},
		{"", ""},
		{"Bearer", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		if got := extractBearerToken(req); got != tt.want {
			t.Errorf("extractBearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestConstantTimeEqual(t *testing.T) {
	if !constantTimeEqual("abc", "abc") {
		t.Error("equal strings should match")
	}
	if constantTimeEqual("abc", "abd") || constantTimeEqual("abc", "abcd") {
		t.Error("different strings should not match")
	}
}

func TestGetRequestID(t *testing.T) {
	var got string
	router := chi.NewRouter()
	router.Use(chiMiddleware.RequestID)
	router.Get("/test", func(w http.ResponseWriter, r *http.Request) {
		got = GetRequestID(r.Context())
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))

	if got == "" {
		t.Error("GetRequestID returned empty string, expected chi-generated ID")
	}
	if id := GetRequestID(httptest.NewRequest(http.MethodGet, "/", nil).Context()); id != "" {
		t.Errorf("GetRequestID without middleware = %q, want empty", id)
	}
}

func TestLogLevelForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   slog.Level
	}{
		{200, slog.LevelInfo},
		{204, slog.LevelInfo},
		{304, slog.LevelInfo},
		{400, slog.LevelWarn},
		{404, slog.LevelWarn},
		{422, slog.LevelWarn},
		{500, slog.LevelError},
		{503, slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			if got := logLevelForStatus(tt.status); got != tt.want {
				t.Errorf("logLevelForStatus(%d) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestLoggingMiddleware_Fields(t *testing.T) {
	logs := captureLogs(t)

	router := chi.NewRouter()
	router.Use(chiMiddleware.RequestID)
	router.Use(LoggingMiddleware)
	router.Get("/test", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = "192.168.1.100:54321"
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	router.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(logs.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log as JSON: %v", err)
	}
	if entry["msg"] != "request completed" || entry["level"] != "WARN" {
		t.Errorf("entry = %v", entry)
	}
	for _, field := range []string{"request_id", "method", "path", "status", "duration_ms", "remote_addr"} {
		if _, ok := entry[field]; !ok {
			t.Errorf("missing expected field: %s", field)
		}
	}
	if entry["remote_addr"] != "192.168.1.100:54321" {
		t.Errorf("remote_addr = %v", entry["remote_addr"])
	}
	if strings.Contains(logs.String(), testAPIKey) {
		t.Error("log output contains the Authorization header")
	}
}

func TestRecoveryMiddleware_NoPanic(t *testing.T) {
	handler, _ := mockHandler()
	w := httptest.NewRecorder()
	RecoveryMiddleware(handler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Errorf("status = %d, body = %q", w.Code, w.Body.String())
	}
}

func TestRecoveryMiddleware_PanicNoLeak(t *testing.T) {
	logs := captureLogs(t)
	secretMessage := "super-secret-database-password-12345"
	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(secretMessage)
	})

	w := httptest.NewRecorder()
	RecoveryMiddleware(panicHandler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/tables/tips/rows", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if strings.Contains(w.Body.String(), secretMessage) {
		t.Error("response body contains secret panic message")
	}
	var p Problem
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if p.Type != "https://fieldsync.dev/errors/internal-error" || p.Detail != "Internal Server Error" {
		t.Errorf("problem = %+v", p)
	}
	if !strings.Contains(logs.String(), secretMessage) {
		t.Error("expected panic message in logs for debugging")
	}
}
