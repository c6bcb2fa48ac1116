package service

import (
	"context"
	"fmt"
	"maps"
	"net/url"

	capabilityDomain "github.com/allisson/capvault/internal/capability/domain"
	orchestratorDomain "github.com/allisson/capvault/internal/orchestrator/domain"
)

// BuiltinFunc is an in-process capability.
type BuiltinFunc func(ctx context.Context, inv *orchestratorDomain.Invocation) (string, error)

// BuiltinInvoker runs builtin:<name> capabilities in process.
type BuiltinInvoker struct {
	funcs map[string]BuiltinFunc
}

// NewBuiltinInvoker registers funcs next to the standard "echo" builtin.
func NewBuiltinInvoker(funcs map[string]BuiltinFunc) *BuiltinInvoker {
	all := map[string]BuiltinFunc{"echo": Echo}
	maps.Copy(all, funcs)
	return &BuiltinInvoker{funcs: all}
}

// Echo answers with the command arguments, or the message for free text.
func Echo(ctx context.Context, inv *orchestratorDomain.Invocation) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if inv.Payload.Args != "" {
		return inv.Payload.Args, nil
	}
	return inv.Payload.Message, nil
}

// Invoke runs the builtin named by the invocation target.
func (b *BuiltinInvoker) Invoke(
	ctx context.Context,
	d capabilityDomain.Descriptor,
	inv *orchestratorDomain.Invocation,
) (string, error) {
	fn, err := b.lookup(d.InvocationTarget)
	if err != nil {
		return "", err
	}
	return fn(ctx, inv)
}

// Probe reports whether the builtin is registered.
func (b *BuiltinInvoker) Probe(
	ctx context.Context,
	d capabilityDomain.Descriptor,
	_ *orchestratorDomain.Invocation,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.lookup(d.ProbeTarget())
	return err
}

func (b *BuiltinInvoker) lookup(target string) (BuiltinFunc, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", orchestratorDomain.ErrUnsupportedTarget, target)
	}
	fn, ok := b.funcs[u.Opaque]
	if !ok {
		return nil, fmt.Errorf("%w: no builtin %q", orchestratorDomain.ErrPermanentFailure, u.Opaque)
	}
	return fn, nil
}
