// Package mocks provides testify mocks for the assistant use case.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	assistantDomain "github.com/allisson/capvault/internal/assistant/domain"
)

// MockAssistant is a mock implementation of usecase.Assistant.
type MockAssistant struct {
	mock.Mock
}

func (m *MockAssistant) Handle(
	ctx context.Context,
	conv *assistantDomain.Conversation,
	input string,
) (*assistantDomain.Reply, error) {
	args := m.Called(ctx, conv, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*assistantDomain.Reply), args.Error(1)
}

func (m *MockAssistant) Status(ctx context.Context) (*assistantDomain.Status, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*assistantDomain.Status), args.Error(1)
}
