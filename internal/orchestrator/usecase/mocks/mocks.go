// Package mocks provides mock implementations of the orchestrator interfaces for testing.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	capabilityDomain "github.com/allisson/capvault/internal/capability/domain"
	orchestratorDomain "github.com/allisson/capvault/internal/orchestrator/domain"
)

// MockSupervisor is a mock implementation of Supervisor for testing.
type MockSupervisor struct {
	mock.Mock
}

// Dispatch mocks the Dispatch method of Supervisor.
func (m *MockSupervisor) Dispatch(
	ctx context.Context,
	d capabilityDomain.Descriptor,
	payload orchestratorDomain.Payload,
) (*orchestratorDomain.Result, error) {
	args := m.Called(ctx, d, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*orchestratorDomain.Result), args.Error(1)
}

// Health mocks the Health method of Supervisor.
func (m *MockSupervisor) Health(ctx context.Context) (*orchestratorDomain.HealthReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*orchestratorDomain.HealthReport), args.Error(1)
}

// MockInvoker is a mock implementation of Invoker for testing.
type MockInvoker struct {
	mock.Mock
}

// Invoke mocks the Invoke method of Invoker.
func (m *MockInvoker) Invoke(
	ctx context.Context,
	d capabilityDomain.Descriptor,
	inv *orchestratorDomain.Invocation,
) (string, error) {
	args := m.Called(ctx, d, inv)
	return args.String(0), args.Error(1)
}

// Probe mocks the Probe method of Invoker.
func (m *MockInvoker) Probe(
	ctx context.Context,
	d capabilityDomain.Descriptor,
	inv *orchestratorDomain.Invocation,
) error {
	args := m.Called(ctx, d, inv)
	return args.Error(0)
}
