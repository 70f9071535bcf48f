package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"outboxapi/internal/board"
)

type MockClient struct {
	mock.Mock
}

func (m *MockClient) Card(ctx context.Context, id int64) (board.Card, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(board.Card), args.Error(1)
}

func (m *MockClient) Executor(ctx context.Context, id int64) (board.Member, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(board.Member), args.Error(1)
}

func (m *MockClient) Download(ctx context.Context, fileURL string) ([]byte, error) {
	args := m.Called(ctx, fileURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockClient) MoveCard(ctx context.Context, id int64, mv board.Move) error {
	args := m.Called(ctx, id, mv)
	return args.Error(0)
}

func (m *MockClient) CardsInColumn(ctx context.Context, columnID int64) ([]board.Card, error) {
	args := m.Called(ctx, columnID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]board.Card), args.Error(1)
}
