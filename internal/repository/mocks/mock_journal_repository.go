package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"outboxapi/internal/model"
	"outboxapi/internal/repository"
)

type MockJournalRepository struct {
	mock.Mock
}

func (m *MockJournalRepository) Create(ctx context.Context, e *model.JournalEntry) (*model.JournalEntry, error) {
	args := m.Called(ctx, e)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.JournalEntry), args.Error(1)
}

func (m *MockJournalRepository) FindByID(ctx context.Context, id int64) (*model.JournalEntry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.JournalEntry), args.Error(1)
}

func (m *MockJournalRepository) FindArtifacts(ctx context.Context, id int64) (*model.JournalArtifacts, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.JournalArtifacts), args.Error(1)
}

func (m *MockJournalRepository) List(ctx context.Context, f repository.JournalFilter, pq repository.PageQuery) (*repository.PageResult[model.JournalEntry], error) {
	args := m.Called(ctx, f, pq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.PageResult[model.JournalEntry]), args.Error(1)
}

func (m *MockJournalRepository) Update(ctx context.Context, e *model.JournalEntry) (*model.JournalEntry, error) {
	args := m.Called(ctx, e)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.JournalEntry), args.Error(1)
}

func (m *MockJournalRepository) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockJournalRepository) MaxSequence(ctx context.Context, scope model.Scope) (int, error) {
	args := m.Called(ctx, scope)
	return args.Int(0), args.Error(1)
}

func (m *MockJournalRepository) NumberTaken(ctx context.Context, formatted string, excludeID int64) (bool, error) {
	args := m.Called(ctx, formatted, excludeID)
	return args.Bool(0), args.Error(1)
}

// WithinTx runs fn against the mock itself. Set an expectation with
// On("WithinTx", mock.Anything, mock.Anything).Return(nil) to let fn run,
// or return an error to simulate a failed begin.
func (m *MockJournalRepository) WithinTx(ctx context.Context, fn func(tx repository.JournalRepository) error) error {
	args := m.Called(ctx, fn)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(m)
}
