package storage

import (
	"context"

	"github.com/ruteri/push-relay/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockStore implements interfaces.RegistrationStore for testing
type MockStore struct {
	mock.Mock
	StoreName string
}

func (m *MockStore) Upsert(ctx context.Context, key, token string) error {
	args := m.Called(ctx, key, token)
	return args.Error(0)
}

func (m *MockStore) Get(ctx context.Context, key string) (*interfaces.Registration, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.Registration), args.Error(1)
}

func (m *MockStore) List(ctx context.Context) ([]interfaces.Registration, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]interfaces.Registration), args.Error(1)
}

func (m *MockStore) DeleteIfToken(ctx context.Context, key, token string) (bool, error) {
	args := m.Called(ctx, key, token)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) Available(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

func (m *MockStore) Name() string {
	if m.StoreName == "" {
		return "mock"
	}
	return m.StoreName
}
