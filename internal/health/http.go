package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPHandler serves health endpoints, running checks on demand.
type HTTPHandler struct {
	checkers []Checker
	logger   *zap.Logger
}

// NewHTTPHandler creates a health HTTP handler over the given checkers.
func NewHTTPHandler(logger *zap.Logger, checkers ...Checker) *HTTPHandler {
	return &HTTPHandler{checkers: checkers, logger: logger}
}

// RegisterRoutes mounts /health and /health/detailed on the mux.
func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/health/detailed", h.handleDetailed)
}

func (h *HTTPHandler) run(ctx context.Context) []CheckResult {
	results := make([]CheckResult, 0, len(h.checkers))
	for _, c := range h.checkers {
		checkCtx, cancel := context.WithTimeout(ctx, c.Timeout())
		results = append(results, c.Check(checkCtx))
		cancel()
	}
	return results
}

// handleHealth returns 200 unless a critical checker is unhealthy.
func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	results := h.run(r.Context())

	status := http.StatusOK
	overall := StatusHealthy
	for _, res := range results {
		if res.Critical && res.Status == StatusUnhealthy {
			status = http.StatusServiceUnavailable
			overall = StatusUnhealthy
			break
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    overall,
		"timestamp": time.Now(),
	})
}

// handleDetailed returns every checker's full result.
func (h *HTTPHandler) handleDetailed(w http.ResponseWriter, r *http.Request) {
	results := h.run(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"checks":    results,
		"timestamp": time.Now(),
	}); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}
