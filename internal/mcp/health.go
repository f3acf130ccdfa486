package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// HealthResponse represents the JSON response from the health check endpoint.
// Events is omitted when the server runs without a NATS consumer.
type HealthResponse struct {
	Status    string `json:"status"`
	Store     string `json:"store"`
	Events    string `json:"events,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// HealthChecker is implemented by every storage backend and by the NATS
// consumer.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// NewHealthHandler creates an HTTP handler for the /health endpoint. The
// store is required; events may be nil. Any failing dependency turns the
// answer into a 503.
func NewHealthHandler(store, events HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Both checks share one 3-second budget
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		response := HealthResponse{
			Status:    "healthy",
			Store:     "connected",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		code := http.StatusOK

		if err := store.Health(ctx); err != nil {
			response.Status = "unhealthy"
			response.Store = "disconnected"
			response.Error = err.Error()
			code = http.StatusServiceUnavailable
		}

		if events != nil {
			response.Events = "connected"
			if err := events.Health(ctx); err != nil {
				// Searches still work, but queued reindex requests are not arriving
				response.Status = "unhealthy"
				response.Events = "disconnected"
				if response.Error == "" {
					response.Error = err.Error()
				}
				code = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(response)
	}
}
