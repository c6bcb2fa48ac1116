package domain

import (
	"time"
)

// HealthStatus is the liveness of one capability or of the whole registry.
type HealthStatus string

const (
	Healthy   HealthStatus = "healthy"
	Degraded  HealthStatus = "degraded"
	Unhealthy HealthStatus = "unhealthy"
)

// ProbeResult is the outcome of one capability probe.
type ProbeResult struct {
	Capability string        `json:"capability"`
	Status     HealthStatus  `json:"status"`
	Skipped    bool          `json:"skipped,omitempty"`
	Error      string        `json:"error,omitempty"`
	Latency    time.Duration `json:"latency"`
}

// HealthReport aggregates the probes of every registered capability.
type HealthReport struct {
	Status       HealthStatus  `json:"status"`
	Capabilities []ProbeResult `json:"capabilities"`
	CheckedAt    time.Time     `json:"checked_at"`
}

// NewHealthReport computes the composite status: healthy when every probed capability
// is healthy, unhealthy when every one is unhealthy, degraded otherwise. Skipped
// probes do not count. An empty registry is healthy.
func NewHealthReport(results []ProbeResult, checkedAt time.Time) *HealthReport {
	var probed, healthy, unhealthy int
	for _, r := range results {
		if r.Skipped {
			continue
		}
		probed++
		switch r.Status {
		case Healthy:
			healthy++
		case Unhealthy:
			unhealthy++
		}
	}

	status := Degraded
	switch {
	case healthy == probed:
		status = Healthy
	case unhealthy == probed:
		status = Unhealthy
	}
	if results == nil {
		results = []ProbeResult{}
	}
	return &HealthReport{Status: status, Capabilities: results, CheckedAt: checkedAt}
}

// Get returns the probe result of capability.
func (h *HealthReport) Get(capability string) (ProbeResult, bool) {
	for _, r := range h.Capabilities {
		if r.Capability == capability {
			return r, true
		}
	}
	return ProbeResult{}, false
}
