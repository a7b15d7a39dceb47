package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// MockGeminiServer creates a test server that mocks the Gemini generateContent API.
type MockGeminiServer struct {
	*httptest.Server

	mu       sync.Mutex
	reply    string
	status   int
	requests []string
}

// NewMockGeminiServer creates a mock Gemini API server answering with reply.
func NewMockGeminiServer(t *testing.T, reply string) *MockGeminiServer {
	t.Helper()
	m := &MockGeminiServer{reply: reply, status: http.StatusOK}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		body, _ := io.ReadAll(r.Body)
		m.mu.Lock()
		m.requests = append(m.requests, string(body))
		status, reply := m.status, m.reply
		m.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck // test mock response
				"error": map[string]any{"code": status, "message": "mock failure", "status": "UNAVAILABLE"},
			})
			return
		}
		response := map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"role":  "model",
					"parts": []map[string]string{{"text": reply}},
				},
				"finishReason": "STOP",
			}},
		}
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}))
	t.Cleanup(m.Close)
	return m
}

// FailWith makes subsequent requests answer with the given HTTP status.
func (m *MockGeminiServer) FailWith(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = status
}

// Requests returns the raw request bodies received so far.
func (m *MockGeminiServer) Requests() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.requests...)
}
