package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"story-server/internal/service"
)

// MockDispatcher is a mock type for the Dispatcher type
type MockDispatcher struct {
	mock.Mock
}

// Dispatch provides a mock function with given fields: ctx, job
func (_m *MockDispatcher) Dispatch(ctx context.Context, job service.IllustrationJob) error {
	ret := _m.Called(ctx, job)
	return ret.Error(0)
}

// NewMockDispatcher creates a new instance of MockDispatcher. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockDispatcher(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockDispatcher {
	m := &MockDispatcher{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
