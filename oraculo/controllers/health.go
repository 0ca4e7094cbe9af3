package controllers

import (
	"encoding/json"
	"net/http"

	"oraculo/oraculo/services/session"
)

// HealthReporter exposes durable-tier write health.
type HealthReporter interface {
	Health() session.HealthSnapshot
}

type HealthController struct {
	reporter HealthReporter
}

func NewHealthController(reporter HealthReporter) *HealthController {
	return &HealthController{reporter: reporter}
}

type healthResponse struct {
	Status  string                  `json:"status"`
	Durable *session.HealthSnapshot `json:"durable,omitempty"`
}

// HealthCheck always answers 200 while the process serves requests; a
// failing durable tier shows up as status "degraded".
func (h *HealthController) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: session.StatusOK}
	if h.reporter != nil {
		snap := h.reporter.Health()
		resp.Status = snap.Status
		resp.Durable = &snap
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}
