package domain

import (
	"fmt"
	"strings"
	"time"

	orchestratorDomain "github.com/allisson/capvault/internal/orchestrator/domain"
)

// RenderHealth formats a health report for a terminal, one capability per line.
func RenderHealth(report *orchestratorDomain.HealthReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Health: %s\n", report.Status)
	if len(report.Capabilities) == 0 {
		b.WriteString("No capabilities registered.\n")
		return b.String()
	}
	for _, r := range report.Capabilities {
		switch {
		case r.Skipped:
			fmt.Fprintf(&b, "  %s: skipped\n", r.Capability)
		case r.Error != "":
			fmt.Fprintf(&b, "  %s: %s (%s)\n", r.Capability, r.Status, r.Error)
		default:
			fmt.Fprintf(&b, "  %s: %s in %s\n", r.Capability, r.Status, r.Latency.Round(time.Millisecond))
		}
	}
	return b.String()
}
