package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	orchestratorDomain "github.com/allisson/capvault/internal/orchestrator/domain"
)

func TestRenderHealth(t *testing.T) {
	empty := orchestratorDomain.NewHealthReport(nil, time.Now())
	assert.Equal(t, "Health: healthy\nNo capabilities registered.\n", RenderHealth(empty))

	report := orchestratorDomain.NewHealthReport([]orchestratorDomain.ProbeResult{
		{Capability: "web-search", Status: orchestratorDomain.Healthy, Latency: 12 * time.Millisecond},
		{Capability: "transcribe", Status: orchestratorDomain.Unhealthy, Error: "worker exited with code 1"},
		{Capability: "echo", Skipped: true},
	}, time.Now())

	out := RenderHealth(report)
	assert.Contains(t, out, "Health: degraded")
	assert.Contains(t, out, "web-search: healthy in 12ms")
	assert.Contains(t, out, "transcribe: unhealthy (worker exited with code 1)")
	assert.Contains(t, out, "echo: skipped")
}
