package testutil

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jxwalker/docfetch/internal/sample"
	"github.com/jxwalker/docfetch/internal/state"
)

// MockHTTPServer creates a test HTTP server that serves canned responses
type MockHTTPServer struct {
	*httptest.Server

	mu        sync.Mutex
	responses map[string]MockResponse
	requests  []*http.Request
}

// MockResponse represents a canned HTTP response
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
}

// NewMockHTTPServer starts a server that is closed when the test ends.
func NewMockHTTPServer(t *testing.T) *MockHTTPServer {
	t.Helper()
	ms := &MockHTTPServer{responses: make(map[string]MockResponse)}

	ms.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ms.mu.Lock()
		ms.requests = append(ms.requests, r.Clone(r.Context()))
		resp, ok := ms.responses[r.URL.Path]
		ms.mu.Unlock()

		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = fmt.Fprintf(w, "No mock response configured for %s", r.URL.Path)
			return
		}

		for k, v := range resp.Headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(resp.StatusCode)
		_, _ = fmt.Fprint(w, resp.Body)
	}))
	t.Cleanup(ms.Close)
	return ms
}

// AddResponse adds a canned response for a specific path
func (ms *MockHTTPServer) AddResponse(path string, response MockResponse) {
	ms.mu.Lock()
	ms.responses[path] = response
	ms.mu.Unlock()
}

// AddJSONResponse adds a JSON response for a specific path
func (ms *MockHTTPServer) AddJSONResponse(path string, statusCode int, body string) {
	ms.AddResponse(path, MockResponse{
		StatusCode: statusCode,
		Body:       body,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	})
}

// Requests returns the requests received so far.
func (ms *MockHTTPServer) Requests() []*http.Request {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return append([]*http.Request(nil), ms.requests...)
}

// SampleServers runs the sample backend and engine handlers on loopback listeners.
type SampleServers struct {
	Sample  *sample.Server
	Backend *httptest.Server
	Engine  *httptest.Server
}

// BackendURL is the base URL to hand to the API client.
func (s *SampleServers) BackendURL() string { return s.Backend.URL + "/" }

// EngineURL is the server URL to hand to the local engine.
func (s *SampleServers) EngineURL() string { return s.Engine.URL + "/" }

// NewSampleServers seeds a sample server for user "test" with an empty password.
func NewSampleServers(t *testing.T, docs ...sample.Document) *SampleServers {
	t.Helper()
	srv := sample.NewServer("test", "", nil)
	for _, d := range docs {
		srv.AddDocument(d)
	}
	s := &SampleServers{
		Sample:  srv,
		Backend: httptest.NewServer(srv.BackendHandler()),
		Engine:  httptest.NewServer(srv.EngineHandler()),
	}
	t.Cleanup(func() {
		s.Backend.Close()
		s.Engine.Close()
	})
	return s
}

// ClosedURL returns an http URL on a loopback port nothing listens on.
func ClosedURL(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	if err := ln.Close(); err != nil {
		t.Fatalf("close listener: %v", err)
	}
	return "http://" + addr + "/"
}

// TestDB creates an in-memory state database for testing
func TestDB(t *testing.T) *state.DB {
	t.Helper()
	db, err := state.OpenMemory()
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})
	return db
}

// TempFile creates a temporary file with content
func TempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}
