package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"outboxapi/internal/service"
)

type MockRegistrationService struct {
	mock.Mock
}

func (m *MockRegistrationService) Prepare(ctx context.Context, req service.PrepareRequest) (*service.PrepareResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.PrepareResult), args.Error(1)
}

func (m *MockRegistrationService) PendingPDF(ctx context.Context, id string) (*service.File, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.File), args.Error(1)
}

func (m *MockRegistrationService) Commit(ctx context.Context, req service.CommitRequest) (*service.CommitResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.CommitResult), args.Error(1)
}
