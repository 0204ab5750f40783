package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestVersionEndpointReturnsDefaults(t *testing.T) {
	s := newTestServer(t, nil, nil, BuildInfo{})

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	rr := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var got map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	for _, key := range []string{"version", "git_commit", "build_time"} {
		if got[key] != "" {
			t.Fatalf("expected empty %s, got %q", key, got[key])
		}
	}
}

func TestVersionEndpointReturnsInjectedValues(t *testing.T) {
	s := newTestServer(t, nil, nil, BuildInfo{
		Version:   "1.2.3",
		GitCommit: "abc123",
		BuildTime: "2026-02-21T12:00:00Z",
	})

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	rr := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var got map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if got["version"] != "1.2.3" {
		t.Fatalf("unexpected version: %q", got["version"])
	}
	if got["git_commit"] != "abc123" {
		t.Fatalf("unexpected git_commit: %q", got["git_commit"])
	}
	if got["build_time"] != "2026-02-21T12:00:00Z" {
		t.Fatalf("unexpected build_time: %q", got["build_time"])
	}
}
