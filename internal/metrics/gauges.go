package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// VaultGauges reads the vault state observed on every collection.
type VaultGauges interface {
	// Unlocked reports whether the private key is in memory.
	Unlocked() bool
	// LiveSessions returns the number of open credential sessions.
	LiveSessions() int
	// NeedsReentry returns the number of providers flagged for re-entry.
	NeedsReentry() int
}

// RegisterVaultGauges registers observable gauges for the vault:
// <namespace>_vault_unlocked, <namespace>_vault_live_sessions and
// <namespace>_vault_needs_reentry.
func RegisterVaultGauges(meterProvider metric.MeterProvider, namespace string, source VaultGauges) error {
	meter := meterProvider.Meter(namespace)

	unlocked, err := meter.Int64ObservableGauge(
		fmt.Sprintf("%s_vault_unlocked", namespace),
		metric.WithDescription("1 while the vault private key is in memory"),
	)
	if err != nil {
		return fmt.Errorf("failed to create unlocked gauge: %w", err)
	}

	sessions, err := meter.Int64ObservableGauge(
		fmt.Sprintf("%s_vault_live_sessions", namespace),
		metric.WithDescription("Credential sessions not yet closed"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create live sessions gauge: %w", err)
	}

	reentry, err := meter.Int64ObservableGauge(
		fmt.Sprintf("%s_vault_needs_reentry", namespace),
		metric.WithDescription("Providers whose stored credential failed verification"),
		metric.WithUnit("{provider}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create needs reentry gauge: %w", err)
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		var value int64
		if source.Unlocked() {
			value = 1
		}
		o.ObserveInt64(unlocked, value)
		o.ObserveInt64(sessions, int64(source.LiveSessions()))
		o.ObserveInt64(reentry, int64(source.NeedsReentry()))
		return nil
	}, unlocked, sessions, reentry)
	if err != nil {
		return fmt.Errorf("failed to register vault gauges: %w", err)
	}
	return nil
}
