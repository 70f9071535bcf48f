package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"outboxapi/internal/model"
	"outboxapi/internal/service"
)

type MockJournalService struct {
	mock.Mock
}

func (m *MockJournalService) List(ctx context.Context, q service.JournalQuery) (*service.JournalListResult, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.JournalListResult), args.Error(1)
}

func (m *MockJournalService) Get(ctx context.Context, id int64) (*model.JournalEntry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.JournalEntry), args.Error(1)
}

func (m *MockJournalService) Artifact(ctx context.Context, id int64, kind model.ArtifactKind) (*service.File, error) {
	args := m.Called(ctx, id, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.File), args.Error(1)
}

func (m *MockJournalService) Create(ctx context.Context, req service.CreateEntryRequest) (*model.JournalEntry, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.JournalEntry), args.Error(1)
}

func (m *MockJournalService) Update(ctx context.Context, id int64, patch model.JournalPatch) (*model.JournalEntry, error) {
	args := m.Called(ctx, id, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.JournalEntry), args.Error(1)
}

func (m *MockJournalService) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockJournalService) Export(ctx context.Context, q service.JournalQuery) (*service.File, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.File), args.Error(1)
}

func (m *MockJournalService) NextNumber(ctx context.Context, executorID string) (model.Allocation, error) {
	args := m.Called(ctx, executorID)
	return args.Get(0).(model.Allocation), args.Error(1)
}
