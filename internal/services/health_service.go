package services

import (
	"context"
	"time"
)

// Pinger is satisfied by stores with a verifiable backing connection.
// The in-memory store does not implement it and is always ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus is the liveness/readiness probe payload.
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthService reports process health for the orchestrator probes.
type HealthService struct {
	store   any
	version string
	started time.Time
}

// NewHealthService creates a health service over the active store.
func NewHealthService(store any, version string) *HealthService {
	return &HealthService{
		store:   store,
		version: version,
		started: time.Now().UTC(),
	}
}

// HealthCheck reports liveness; it never touches dependencies.
func (s *HealthService) HealthCheck(ctx context.Context) *HealthStatus {
	return &HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   s.version,
	}
}

// ReadinessCheck verifies the store connection when it has one.
func (s *HealthService) ReadinessCheck(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Status:    "ready",
		Timestamp: time.Now().UTC(),
		Version:   s.version,
		Checks:    map[string]string{"database": "ok"},
	}

	if p, ok := s.store.(Pinger); ok {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			status.Status = "not_ready"
			status.Checks["database"] = err.Error()
		}
	}
	return status
}

// Uptime reports how long the process has been running.
func (s *HealthService) Uptime() time.Duration {
	return time.Since(s.started)
}
