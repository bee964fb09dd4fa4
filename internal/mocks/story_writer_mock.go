package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockStoryWriter is a mock type for the StoryWriter type
type MockStoryWriter struct {
	mock.Mock
}

// Write provides a mock function with given fields: ctx, userID, theme
func (_m *MockStoryWriter) Write(ctx context.Context, userID string, theme string) (string, error) {
	ret := _m.Called(ctx, userID, theme)
	return ret.String(0), ret.Error(1)
}

// WriteStream provides a mock function with given fields: ctx, userID, theme, onChunk
// If the first return value is a []string, every element is passed to onChunk and
// their concatenation is returned as the text.
func (_m *MockStoryWriter) WriteStream(ctx context.Context, userID string, theme string, onChunk func(string) error) (string, error) {
	ret := _m.Called(ctx, userID, theme, onChunk)

	if chunks, ok := ret.Get(0).([]string); ok {
		text := ""
		for _, chunk := range chunks {
			if err := onChunk(chunk); err != nil {
				return text, err
			}
			text += chunk
		}
		return text, ret.Error(1)
	}
	return ret.String(0), ret.Error(1)
}

// NewMockStoryWriter creates a new instance of MockStoryWriter. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockStoryWriter(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockStoryWriter {
	m := &MockStoryWriter{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
