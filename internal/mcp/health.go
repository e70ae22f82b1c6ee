package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

// HealthTimeout bounds one /health request across all checks.
const HealthTimeout = 3 * time.Second

// HealthResponse represents the JSON response from the health check endpoint.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// HealthChecker is implemented by the Qdrant, Postgres and Redis stores.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// CheckHealth runs every check and reports per-dependency status. Nil
// checkers are reported as disabled and do not affect the result.
func CheckHealth(ctx context.Context, checks map[string]HealthChecker) (HealthResponse, bool) {
	ctx, cancel := context.WithTimeout(ctx, HealthTimeout)
	defer cancel()

	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := HealthResponse{
		Status:    "healthy",
		Checks:    make(map[string]string, len(checks)),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	healthy := true
	for _, name := range names {
		checker := checks[name]
		if checker == nil {
			resp.Checks[name] = "disabled"
			continue
		}
		if err := checker.Health(ctx); err != nil {
			resp.Checks[name] = "disconnected"
			healthy = false
			continue
		}
		resp.Checks[name] = "connected"
	}
	if !healthy {
		resp.Status = "unhealthy"
	}
	return resp, healthy
}

// NewHealthHandler creates an HTTP handler for the /health endpoint.
// It answers 200 when every enabled dependency responds, 503 otherwise.
func NewHealthHandler(checks map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response, healthy := CheckHealth(r.Context(), checks)

		w.Header().Set("Content-Type", "application/json")
		if healthy {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(response)
	}
}
