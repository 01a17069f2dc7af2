package sidecar

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthHandlerReportsIdleSeconds(t *testing.T) {
	pipe := NewPipe(NewTCPUpstream("127.0.0.1:9"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	HealthHandler(pipe).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("Status = %q, want ok", resp.Status)
	}
	if resp.LastActivityTimestamp == 0 {
		t.Error("expected a non-zero last activity timestamp")
	}
	if resp.IdleSeconds < 0 {
		t.Errorf("IdleSeconds = %d, want >= 0", resp.IdleSeconds)
	}
}
