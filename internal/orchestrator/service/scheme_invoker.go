package service

import (
	"context"
	"fmt"

	capabilityDomain "github.com/allisson/capvault/internal/capability/domain"
	orchestratorDomain "github.com/allisson/capvault/internal/orchestrator/domain"
	customValidation "github.com/allisson/capvault/internal/validation"
)

// SchemeInvoker picks the transport from the target scheme.
type SchemeInvoker struct {
	byScheme map[string]Invoker
}

// NewSchemeInvoker routes exec:// targets to execInvoker, http:// and https:// to
// httpInvoker and builtin: to builtinInvoker.
func NewSchemeInvoker(execInvoker, httpInvoker, builtinInvoker Invoker) *SchemeInvoker {
	return &SchemeInvoker{
		byScheme: map[string]Invoker{
			customValidation.SchemeExec:    execInvoker,
			customValidation.SchemeHTTP:    httpInvoker,
			customValidation.SchemeHTTPS:   httpInvoker,
			customValidation.SchemeBuiltin: builtinInvoker,
		},
	}
}

// Invoke dispatches on the invocation target scheme.
func (s *SchemeInvoker) Invoke(
	ctx context.Context,
	d capabilityDomain.Descriptor,
	inv *orchestratorDomain.Invocation,
) (string, error) {
	invoker, err := s.pick(d.InvocationTarget)
	if err != nil {
		return "", err
	}
	return invoker.Invoke(ctx, d, inv)
}

// Probe dispatches on the probe target scheme, which may differ from the invocation one.
func (s *SchemeInvoker) Probe(
	ctx context.Context,
	d capabilityDomain.Descriptor,
	inv *orchestratorDomain.Invocation,
) error {
	invoker, err := s.pick(d.ProbeTarget())
	if err != nil {
		return err
	}
	return invoker.Probe(ctx, d, inv)
}

func (s *SchemeInvoker) pick(target string) (Invoker, error) {
	invoker, ok := s.byScheme[schemeOf(target)]
	if !ok || invoker == nil {
		return nil, fmt.Errorf("%w: %q", orchestratorDomain.ErrUnsupportedTarget, target)
	}
	return invoker, nil
}
