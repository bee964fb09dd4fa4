package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"story-server/internal/storygen"
)

// MockAIClient is a mock type for the AIClient type
type MockAIClient struct {
	mock.Mock
}

// GenerateText provides a mock function with given fields: ctx, userID, systemPrompt, userInput, params
func (_m *MockAIClient) GenerateText(ctx context.Context, userID string, systemPrompt string, userInput string, params storygen.GenerationParams) (string, storygen.UsageInfo, error) {
	ret := _m.Called(ctx, userID, systemPrompt, userInput, params)

	var r0 string
	if rf, ok := ret.Get(0).(func(context.Context, string, string, string, storygen.GenerationParams) string); ok {
		r0 = rf(ctx, userID, systemPrompt, userInput, params)
	} else {
		r0 = ret.String(0)
	}

	var r1 storygen.UsageInfo
	if ret.Get(1) != nil {
		r1 = ret.Get(1).(storygen.UsageInfo)
	}

	return r0, r1, ret.Error(2)
}

// GenerateTextStream provides a mock function with given fields: ctx, userID, systemPrompt, userInput, params, chunkHandler
// If the first return value is a []string, every element is passed to chunkHandler before returning.
func (_m *MockAIClient) GenerateTextStream(ctx context.Context, userID string, systemPrompt string, userInput string, params storygen.GenerationParams, chunkHandler func(string) error) (storygen.UsageInfo, error) {
	ret := _m.Called(ctx, userID, systemPrompt, userInput, params, chunkHandler)

	if chunks, ok := ret.Get(0).([]string); ok {
		for _, chunk := range chunks {
			if err := chunkHandler(chunk); err != nil {
				return storygen.UsageInfo{}, err
			}
		}
		return storygen.UsageInfo{}, ret.Error(1)
	}

	var r0 storygen.UsageInfo
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(storygen.UsageInfo)
	}
	return r0, ret.Error(1)
}

// NewMockAIClient creates a new instance of MockAIClient. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockAIClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockAIClient {
	m := &MockAIClient{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ storygen.AIClient = (*MockAIClient)(nil)
