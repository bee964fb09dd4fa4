package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"story-server/internal/model"
)

// MockStoryStore is a mock type for the StoryStore type
type MockStoryStore struct {
	mock.Mock
}

// Save provides a mock function with given fields: ctx, ownerKey, story
func (_m *MockStoryStore) Save(ctx context.Context, ownerKey string, story model.Story) error {
	ret := _m.Called(ctx, ownerKey, story)
	return ret.Error(0)
}

// Update provides a mock function with given fields: ctx, ownerKey, story
func (_m *MockStoryStore) Update(ctx context.Context, ownerKey string, story model.Story) error {
	ret := _m.Called(ctx, ownerKey, story)
	return ret.Error(0)
}

// Delete provides a mock function with given fields: ctx, ownerKey, storyID
func (_m *MockStoryStore) Delete(ctx context.Context, ownerKey string, storyID string) error {
	ret := _m.Called(ctx, ownerKey, storyID)
	return ret.Error(0)
}

// List provides a mock function with given fields: ctx, ownerKey, limit
func (_m *MockStoryStore) List(ctx context.Context, ownerKey string, limit int) ([]model.Story, error) {
	ret := _m.Called(ctx, ownerKey, limit)

	var r0 []model.Story
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]model.Story)
	}
	return r0, ret.Error(1)
}

// Clear provides a mock function with given fields: ctx, ownerKey
func (_m *MockStoryStore) Clear(ctx context.Context, ownerKey string) error {
	ret := _m.Called(ctx, ownerKey)
	return ret.Error(0)
}

// NewMockStoryStore creates a new instance of MockStoryStore. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockStoryStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockStoryStore {
	m := &MockStoryStore{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
