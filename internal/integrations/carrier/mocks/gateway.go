package mocks

import (
	"context"

	"github.com/BearBump/ParcelHub/internal/integrations/carrier"
	"github.com/stretchr/testify/mock"
)

type MockGateway struct {
	mock.Mock
}

var _ carrier.Gateway = (*MockGateway)(nil)

func (m *MockGateway) Register(ctx context.Context, items []carrier.RegisterItem) (carrier.RegisterResult, error) {
	args := m.Called(ctx, items)
	return args.Get(0).(carrier.RegisterResult), args.Error(1)
}

func (m *MockGateway) GetInfo(ctx context.Context, numbers []string) ([]carrier.TrackingInfo, error) {
	args := m.Called(ctx, numbers)
	var out []carrier.TrackingInfo
	if v := args.Get(0); v != nil {
		out = v.([]carrier.TrackingInfo)
	}
	return out, args.Error(1)
}

func (m *MockGateway) DetectCarrier(ctx context.Context, number string) ([]string, error) {
	args := m.Called(ctx, number)
	var out []string
	if v := args.Get(0); v != nil {
		out = v.([]string)
	}
	return out, args.Error(1)
}

func (m *MockGateway) DeleteTracking(ctx context.Context, numbers []string) error {
	return m.Called(ctx, numbers).Error(0)
}
