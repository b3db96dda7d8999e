package observability

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// HealthChecker backs the /healthz and /readyz probes. Liveness is
// unconditional; readiness flips up once the service shell finishes wiring
// and flips back down during shutdown so the load balancer drains first.
type HealthChecker struct {
	ready atomic.Bool
	since time.Time
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{since: time.Now()}
}

// SetReady flips the readiness gate.
func (h *HealthChecker) SetReady(ready bool) { h.ready.Store(ready) }

// IsReady reports the readiness gate.
func (h *HealthChecker) IsReady() bool { return h.ready.Load() }

type probeStatus struct {
	Status string `json:"status"`
	Uptime string `json:"uptime,omitempty"`
}

// LivenessHandler answers 200 for as long as the process serves HTTP.
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeProbe(w, http.StatusOK, probeStatus{Status: "alive", Uptime: time.Since(h.since).String()})
}

// ReadinessHandler answers 200 once the engine is serving traffic, 503
// before wiring completes or after shutdown begins.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if h.ready.Load() {
		writeProbe(w, http.StatusOK, probeStatus{Status: "ready"})
		return
	}
	writeProbe(w, http.StatusServiceUnavailable, probeStatus{Status: "not_ready"})
}

func writeProbe(w http.ResponseWriter, code int, s probeStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(s)
}
