package sidecar

import (
	"encoding/json"
	"net/http"
	"time"
)

// healthResponse is the sidecar's health payload, polled by the reaper's
// idle check (spec.md §4.3).
type healthResponse struct {
	Status               string `json:"status"`
	LastActivityTimestamp int64 `json:"last_activity_timestamp"`
	IdleSeconds           int64 `json:"idle_seconds"`
}

// HealthHandler reports the pipe's liveness and idle duration.
func HealthHandler(p *Pipe) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		last := p.LastActivity()
		idle := time.Now().Unix() - last
		if idle < 0 {
			idle = 0
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(healthResponse{
			Status:                "ok",
			LastActivityTimestamp: last,
			IdleSeconds:           idle,
		})
	})
}
