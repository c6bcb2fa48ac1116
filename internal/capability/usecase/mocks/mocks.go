// Package mocks provides testify mocks for the capability registry.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	capabilityDomain "github.com/allisson/capvault/internal/capability/domain"
)

// MockRegistry is a mock implementation of usecase.Registry.
type MockRegistry struct {
	mock.Mock
}

func (m *MockRegistry) Refresh(ctx context.Context) (*capabilityDomain.Set, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*capabilityDomain.Set), args.Error(1)
}

func (m *MockRegistry) Lookup(name string) (capabilityDomain.Descriptor, error) {
	args := m.Called(name)
	return args.Get(0).(capabilityDomain.Descriptor), args.Error(1)
}

func (m *MockRegistry) List() []capabilityDomain.Descriptor {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]capabilityDomain.Descriptor)
}

func (m *MockRegistry) Version() uint64 {
	args := m.Called()
	return args.Get(0).(uint64)
}

func (m *MockRegistry) Snapshot() *capabilityDomain.Set {
	args := m.Called()
	return args.Get(0).(*capabilityDomain.Set)
}

func (m *MockRegistry) Watch(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
