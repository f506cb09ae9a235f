// Package health provides health check endpoints for the edit coordination
// service.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/AdirGamil/animeedit/internal/store"
	"go.uber.org/zap"
)

// HealthCheck manages health check functionality. Readiness tracks the
// record store connection.
type HealthCheck struct {
	records       store.RecordStore
	logger        *zap.Logger
	mu            sync.RWMutex
	ready         bool
	lastCheck     time.Time
	checkInterval time.Duration
}

// NewHealthCheck creates a new HealthCheck instance and starts its
// background probe.
func NewHealthCheck(records store.RecordStore, logger *zap.Logger) *HealthCheck {
	hc := &HealthCheck{
		records:       records,
		logger:        logger,
		ready:         false,
		checkInterval: 5 * time.Second,
	}

	go hc.backgroundCheck()

	return hc
}

// LivenessResponse represents the response for the liveness check.
type LivenessResponse struct {
	Status string `json:"status"`
}

// ReadinessResponse represents the response for the readiness check.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// LivenessHandler handles GET /health requests.
// Returns 200 OK if the process is running.
func (hc *HealthCheck) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	resp := LivenessResponse{
		Status: "healthy",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// ReadinessHandler handles GET /ready requests.
// Returns 200 OK if the record store is reachable.
func (hc *HealthCheck) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	hc.mu.RLock()
	isReady := hc.ready
	hc.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")

	if isReady {
		resp := ReadinessResponse{
			Status: "ready",
			Checks: map[string]string{
				"record_store": "healthy",
			},
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(resp)
		return
	}

	// Perform a fresh check if not ready
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := hc.records.Ping(ctx); err != nil {
		resp := ReadinessResponse{
			Status: "not_ready",
			Checks: map[string]string{
				"record_store": "unhealthy",
			},
			Error: err.Error(),
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(resp)
		return
	}

	hc.mu.Lock()
	hc.ready = true
	hc.lastCheck = time.Now()
	hc.mu.Unlock()

	resp := ReadinessResponse{
		Status: "ready",
		Checks: map[string]string{
			"record_store": "healthy",
		},
	}
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// backgroundCheck performs periodic health checks.
func (hc *HealthCheck) backgroundCheck() {
	ticker := time.NewTicker(hc.checkInterval)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := hc.records.Ping(ctx)
		cancel()

		hc.mu.Lock()
		if err != nil {
			hc.ready = false
			hc.logger.Warn("health check failed", zap.Error(err))
		} else {
			hc.ready = true
		}
		hc.lastCheck = time.Now()
		hc.mu.Unlock()
	}
}

// IsReady returns the current readiness status.
func (hc *HealthCheck) IsReady() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.ready
}

// SetReady sets the readiness status (for testing).
func (hc *HealthCheck) SetReady(ready bool) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.ready = ready
}
