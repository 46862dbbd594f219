package handlers

import (
	"context"
	"net/http"
	"time"
)

const version = "0.1.0"

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"`            // "pass" or "fail"
	Latency string `json:"latency,omitempty"` // e.g., "2ms"
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string           `json:"status"` // "healthy" or "degraded"
	Version   string           `json:"version"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

// Health reports whether the credential store is reachable and the
// real-time channel is connected.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]Check)
	allHealthy := true

	if h.credentials != nil {
		start := time.Now()
		if err := h.credentials.Ping(ctx); err != nil {
			checks["credentials"] = Check{Status: "fail", Message: "store unreachable"}
			allHealthy = false
		} else {
			checks["credentials"] = Check{Status: "pass", Latency: time.Since(start).String()}
		}
	} else {
		checks["credentials"] = Check{Status: "fail", Message: "not configured"}
		allHealthy = false
	}

	if h.channel != nil {
		st := h.channel.State()
		if st.Connected {
			checks["channel"] = Check{Status: "pass"}
		} else {
			msg := st.LastError
			if msg == "" {
				msg = "not connected"
			}
			checks["channel"] = Check{Status: "fail", Message: msg}
			allHealthy = false
		}
	} else {
		checks["channel"] = Check{Status: "fail", Message: "not configured"}
		allHealthy = false
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	h.JSON(w, statusCode, HealthResponse{
		Status:    status,
		Version:   version,
		Checks:    checks,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

// RootResponse represents the root endpoint response.
type RootResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Root handles the root endpoint.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, RootResponse{
		Name:    "buddychat",
		Version: version,
	})
}
