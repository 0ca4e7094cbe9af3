package session

import (
	"sync"
	"time"
)

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// HealthSnapshot reports durable-tier write health.
type HealthSnapshot struct {
	Status              string     `json:"status"`
	TotalFailures       int64      `json:"total_failures"`
	ConsecutiveFailures int64      `json:"consecutive_failures"`
	LastError           string     `json:"last_error,omitempty"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
}

type durableHealth struct {
	mu            sync.Mutex
	threshold     int64
	total         int64
	consecutive   int64
	lastErr       string
	lastFailureAt time.Time
	lastSuccessAt time.Time
}

func newDurableHealth(threshold int) *durableHealth {
	if threshold <= 0 {
		threshold = 3
	}
	return &durableHealth{threshold: int64(threshold)}
}

func (h *durableHealth) failure(err error, at time.Time) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.total++
	h.consecutive++
	h.lastErr = err.Error()
	h.lastFailureAt = at
	return h.consecutive
}

func (h *durableHealth) success(at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutive = 0
	h.lastSuccessAt = at
}

func (h *durableHealth) snapshot() HealthSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := HealthSnapshot{
		Status:              StatusOK,
		TotalFailures:       h.total,
		ConsecutiveFailures: h.consecutive,
		LastError:           h.lastErr,
	}
	if h.consecutive >= h.threshold {
		s.Status = StatusDegraded
	}
	if !h.lastFailureAt.IsZero() {
		t := h.lastFailureAt
		s.LastFailureAt = &t
	}
	if !h.lastSuccessAt.IsZero() {
		t := h.lastSuccessAt
		s.LastSuccessAt = &t
	}
	return s
}
