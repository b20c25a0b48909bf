package push

import (
	"context"

	"github.com/ruteri/push-relay/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockGateway implements interfaces.PushGateway for testing
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Send(ctx context.Context, messages []interfaces.PushMessage) (*interfaces.BatchResult, error) {
	args := m.Called(ctx, messages)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.BatchResult), args.Error(1)
}
