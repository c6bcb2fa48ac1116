// Package usecase implements the supervisor that dispatches requests to capabilities.
//
// A dispatch looks the capability up in the live registry, opens a credential session
// only when the capability requires one, and invokes it with retries for transient
// failures. The session is wiped when the dispatch ends, whichever way it ends.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	capabilityDomain "github.com/allisson/capvault/internal/capability/domain"
	"github.com/allisson/capvault/internal/clock"
	orchestratorDomain "github.com/allisson/capvault/internal/orchestrator/domain"
	vaultDomain "github.com/allisson/capvault/internal/vault/domain"
)

// CapabilityLookup is the registry view the supervisor needs.
type CapabilityLookup interface {
	Lookup(name string) (capabilityDomain.Descriptor, error)
	List() []capabilityDomain.Descriptor
}

// CredentialProvider lends decrypted credentials for the duration of fn.
type CredentialProvider interface {
	WithCredential(
		ctx context.Context,
		providerID string,
		fn func(ctx context.Context, session *vaultDomain.CredentialSession) error,
	) error
}

// Invoker runs one capability attempt.
type Invoker interface {
	Invoke(
		ctx context.Context,
		d capabilityDomain.Descriptor,
		inv *orchestratorDomain.Invocation,
	) (string, error)
	Probe(ctx context.Context, d capabilityDomain.Descriptor, inv *orchestratorDomain.Invocation) error
}

// Supervisor dispatches requests to capabilities and reports their health.
type Supervisor interface {
	// Dispatch invokes the capability named by d with payload. Transient failures are
	// retried with exponential backoff; vault errors, unknown capabilities and permanent
	// rejections are returned at once. When the dispatch deadline passes, the credential
	// session is wiped before ErrTimeout is returned.
	Dispatch(
		ctx context.Context,
		d capabilityDomain.Descriptor,
		payload orchestratorDomain.Payload,
	) (*orchestratorDomain.Result, error)

	// Health probes every registered capability concurrently.
	Health(ctx context.Context) (*orchestratorDomain.HealthReport, error)
}

// SupervisorConfig bounds dispatch attempts.
type SupervisorConfig struct {
	DispatchTimeout time.Duration // Whole dispatch, including retries
	AttemptTimeout  time.Duration // One invocation attempt
	MaxAttempts     int
	BaseBackoff     time.Duration // Delay before the second attempt; doubles afterwards
	MaxBackoff      time.Duration
	ProbeTimeout    time.Duration
	ProbeLimit      int // Concurrent health probes
}

var errAttemptTimeout = errors.New("attempt timed out")

type supervisor struct {
	capabilities CapabilityLookup
	credentials  CredentialProvider
	invoker      Invoker
	clock        clock.Clock
	logger       *slog.Logger
	cfg          SupervisorConfig
}

// NewSupervisor creates a Supervisor.
func NewSupervisor(
	capabilities CapabilityLookup,
	credentials CredentialProvider,
	invoker Invoker,
	clk clock.Clock,
	logger *slog.Logger,
	cfg SupervisorConfig,
) Supervisor {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.ProbeLimit <= 0 {
		cfg.ProbeLimit = 8
	}
	return &supervisor{
		capabilities: capabilities,
		credentials:  credentials,
		invoker:      invoker,
		clock:        clk,
		logger:       logger,
		cfg:          cfg,
	}
}

type outcome struct {
	result *orchestratorDomain.Result
	err    error
}

func (s *supervisor) Dispatch(
	ctx context.Context,
	d capabilityDomain.Descriptor,
	payload orchestratorDomain.Payload,
) (*orchestratorDomain.Result, error) {
	// The registry may have been refreshed since the router resolved d.
	current, err := s.capabilities.Lookup(d.Name)
	if err != nil {
		return nil, err
	}

	dctx, cancel := s.withDeadline(ctx, s.cfg.DispatchTimeout, orchestratorDomain.ErrTimeout)
	defer cancel()

	start := s.clock.Now()
	var result *orchestratorDomain.Result
	if !current.RequiresCredential {
		result, err = s.supervise(dctx, current, payload, nil)
	} else {
		err = s.credentials.WithCredential(
			dctx,
			current.ProviderID(),
			func(ctx context.Context, session *vaultDomain.CredentialSession) error {
				var err error
				result, err = s.supervise(ctx, current, payload, session)
				return err
			},
		)
	}

	if err != nil {
		err = s.deadlineErr(dctx, err)
		s.logger.Warn("dispatch failed",
			slog.String("capability", current.Name),
			slog.Any("error", err),
		)
		return nil, err
	}
	result.Duration = s.clock.Now().Sub(start)
	return result, nil
}

// supervise runs the attempts in their own goroutine so that expiry of ctx can wipe
// session and return right away, even while an invoker is still running.
func (s *supervisor) supervise(
	ctx context.Context,
	d capabilityDomain.Descriptor,
	payload orchestratorDomain.Payload,
	session *vaultDomain.CredentialSession,
) (*orchestratorDomain.Result, error) {
	done := make(chan outcome, 1)
	go func() {
		result, err := s.attempts(ctx, d, payload, session)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		if session != nil {
			_ = session.Close()
		}
		return nil, s.deadlineErr(ctx, ctx.Err())
	}
}

func (s *supervisor) attempts(
	ctx context.Context,
	d capabilityDomain.Descriptor,
	payload orchestratorDomain.Payload,
	session *vaultDomain.CredentialSession,
) (*orchestratorDomain.Result, error) {
	var lastErr error
	backoff := s.cfg.BaseBackoff

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-s.clock.After(backoff):
			}
			backoff = min(backoff*2, s.cfg.MaxBackoff)
		}

		text, err := s.attempt(ctx, d, &orchestratorDomain.Invocation{
			Kind:       d.Kind,
			Capability: d.Name,
			Attempt:    attempt,
			Payload:    payload,
			Credential: session,
		})
		if err == nil {
			return &orchestratorDomain.Result{
				Capability: d.Name,
				Kind:       d.Kind,
				Text:       text,
				Attempts:   attempt,
			}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !orchestratorDomain.IsTransient(err) {
			if errors.Is(err, orchestratorDomain.ErrPermanentFailure) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %w", orchestratorDomain.ErrPermanentFailure, err)
		}

		lastErr = err
		s.logger.Warn("transient capability failure",
			slog.String("capability", d.Name),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", s.cfg.MaxAttempts),
			slog.Any("error", err),
		)
	}

	// Only the permanent sentinel is wrapped: the last transient cause must not make the
	// give-up itself look retryable.
	return nil, fmt.Errorf("%w: %s gave up after %d attempts: %v",
		orchestratorDomain.ErrPermanentFailure, d.Name, s.cfg.MaxAttempts, lastErr)
}

func (s *supervisor) attempt(
	ctx context.Context,
	d capabilityDomain.Descriptor,
	inv *orchestratorDomain.Invocation,
) (string, error) {
	actx, cancel := s.withDeadline(ctx, s.cfg.AttemptTimeout, errAttemptTimeout)
	defer cancel()

	text, err := s.invoker.Invoke(actx, d, inv)
	if err != nil && ctx.Err() == nil && errors.Is(context.Cause(actx), errAttemptTimeout) {
		return "", fmt.Errorf("%w: %w", orchestratorDomain.ErrTransientFailure, errAttemptTimeout)
	}
	return text, err
}

// withDeadline cancels the returned context with cause after d on the supervisor clock.
// A non-positive d means no deadline.
func (s *supervisor) withDeadline(
	ctx context.Context,
	d time.Duration,
	cause error,
) (context.Context, context.CancelFunc) {
	cctx, cancel := context.WithCancelCause(ctx)
	if d <= 0 {
		return cctx, func() { cancel(nil) }
	}
	timer := s.clock.AfterFunc(d, func() { cancel(cause) })
	return cctx, func() {
		timer.Stop()
		cancel(nil)
	}
}

// deadlineErr replaces the error of a dispatch whose deadline passed with ErrTimeout.
func (s *supervisor) deadlineErr(ctx context.Context, err error) error {
	if errors.Is(context.Cause(ctx), orchestratorDomain.ErrTimeout) {
		return fmt.Errorf("%w after %s", orchestratorDomain.ErrTimeout, s.cfg.DispatchTimeout)
	}
	return err
}

func (s *supervisor) Health(ctx context.Context) (*orchestratorDomain.HealthReport, error) {
	descriptors := s.capabilities.List()
	results := make([]orchestratorDomain.ProbeResult, len(descriptors))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.ProbeLimit)
	for i, d := range descriptors {
		g.Go(func() error {
			results[i] = s.probe(gctx, d)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return orchestratorDomain.NewHealthReport(results, s.clock.Now()), nil
}

// probe never opens a credential session unless the probe itself asks for one.
func (s *supervisor) probe(ctx context.Context, d capabilityDomain.Descriptor) orchestratorDomain.ProbeResult {
	result := orchestratorDomain.ProbeResult{Capability: d.Name, Status: orchestratorDomain.Healthy}
	if d.HealthProbe.Disabled {
		result.Skipped = true
		return result
	}

	pctx, cancel := s.withDeadline(ctx, s.cfg.ProbeTimeout, errAttemptTimeout)
	defer cancel()

	start := s.clock.Now()
	inv := &orchestratorDomain.Invocation{
		Kind:       d.Kind,
		Capability: d.Name,
		Payload:    orchestratorDomain.Payload{Context: map[string]string{"probe": "true"}},
	}

	var err error
	if d.HealthProbe.RequiresCredential {
		err = s.credentials.WithCredential(
			pctx,
			d.ProviderID(),
			func(ctx context.Context, session *vaultDomain.CredentialSession) error {
				inv.Credential = session
				return s.invoker.Probe(ctx, d, inv)
			},
		)
	} else {
		err = s.invoker.Probe(pctx, d, inv)
	}
	result.Latency = s.clock.Now().Sub(start)

	switch {
	case err == nil:
	case errors.Is(err, vaultDomain.ErrLocked),
		errors.Is(err, vaultDomain.ErrCredentialNotFound),
		errors.Is(err, vaultDomain.ErrCorrupt):
		// Reachability unknown: the credential the probe needs is not available.
		result.Status = orchestratorDomain.Degraded
		result.Error = err.Error()
	default:
		if errors.Is(context.Cause(pctx), errAttemptTimeout) {
			err = fmt.Errorf("probe timed out after %s", s.cfg.ProbeTimeout)
		}
		result.Status = orchestratorDomain.Unhealthy
		result.Error = err.Error()
	}
	return result
}
