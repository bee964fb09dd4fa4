package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"story-server/internal/mocks"
	"story-server/internal/model"
	"story-server/internal/service"
)

type storyServiceDeps struct {
	writer     *mocks.MockStoryWriter
	dispatcher *mocks.MockDispatcher
	local      *mocks.MockStoryStore
	remote     *mocks.MockStoryStore
	notices    *noticeRecorder
}

func newStoryService(t *testing.T) (*service.StoryService, storyServiceDeps) {
	deps := storyServiceDeps{
		writer:     mocks.NewMockStoryWriter(t),
		dispatcher: mocks.NewMockDispatcher(t),
		local:      mocks.NewMockStoryStore(t),
		remote:     mocks.NewMockStoryStore(t),
		notices:    &noticeRecorder{},
	}
	svc := service.NewStoryService(deps.writer, deps.dispatcher,
		service.Stores{Local: deps.local, Remote: deps.remote}, deps.notices, zap.NewNop())
	return svc, deps
}

func TestStoryService_Generate(t *testing.T) {
	svc, deps := newStoryService(t)
	owner := model.Owner{ClientID: "client-1"}

	deps.writer.On("Write", mock.Anything, "", "dragons").Return("The Dragon\nOnce upon a time.", nil).Once()
	deps.dispatcher.On("Dispatch", mock.Anything, mock.MatchedBy(func(job service.IllustrationJob) bool {
		return job.JobID != "" && job.Owner == owner && job.Story.Title == "The Dragon"
	})).Return(nil).Once()

	story, err := svc.Generate(context.Background(), owner, "  dragons ")
	require.NoError(t, err)
	assert.NotEmpty(t, story.ID)
	assert.Equal(t, "dragons", story.Theme)
	assert.Equal(t, "The Dragon", story.Title)
	assert.False(t, story.CreatedAt.IsZero())
	assert.Nil(t, story.ImageURL)
}

func TestStoryService_GenerateAnonymousSkipsIllustration(t *testing.T) {
	svc, deps := newStoryService(t)
	deps.writer.On("Write", mock.Anything, "", "cats").Return("Cats", nil).Once()

	story, err := svc.Generate(context.Background(), model.Owner{}, "cats")
	require.NoError(t, err)
	assert.Equal(t, "Cats", story.Content)
	deps.dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

func TestStoryService_GenerateWriterError(t *testing.T) {
	svc, deps := newStoryService(t)
	deps.writer.On("Write", mock.Anything, "user-1", "cats").Return("", errors.New("ai down")).Once()

	_, err := svc.Generate(context.Background(), model.Owner{UserID: "user-1"}, "cats")
	assert.EqualError(t, err, "ai down")
}

func TestStoryService_GenerateDispatchErrorSavesText(t *testing.T) {
	tests := []struct {
		name        string
		dispatchErr error
		owner       model.Owner
	}{
		{"dispatcher closed", service.ErrDispatcherClosed, model.Owner{UserID: "user-1"}},
		{"queue unavailable", errors.New("amqp down"), model.Owner{UserID: "user-1", ClientID: "client-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, deps := newStoryService(t)
			deps.writer.On("Write", mock.Anything, tt.owner.UserID, "cats").Return("Cats\nMeow.", nil).Once()
			deps.dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return(tt.dispatchErr).Once()

			textOnly := mock.MatchedBy(func(s model.Story) bool {
				return s.ID != "" && s.Content == "Cats\nMeow." && s.ImageURL == nil
			})
			deps.remote.On("Save", mock.Anything, "user-1", textOnly).Return(nil).Once()
			if tt.owner.ClientID != "" {
				deps.local.On("Save", mock.Anything, "client-1", textOnly).Return(nil).Once()
			}

			story, err := svc.Generate(context.Background(), tt.owner, "cats")
			require.NoError(t, err)
			assert.NotEmpty(t, story.ID)

			got := deps.notices.all()
			require.Len(t, got, 1)
			assert.Equal(t, model.NoticeIllustrationFailed, got[0].Kind)
			assert.Equal(t, story.ID, got[0].StoryID)
			assert.Equal(t, tt.owner, got[0].Owner)
		})
	}
}

func TestStoryService_GenerateDispatchErrorSavesWithoutRequestContext(t *testing.T) {
	svc, deps := newStoryService(t)
	ctx, cancel := context.WithCancel(context.Background())
	owner := model.Owner{ClientID: "client-1"}

	deps.writer.On("Write", mock.Anything, "", "cats").Return("Cats", nil).Once()
	deps.dispatcher.On("Dispatch", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(errors.New("publish timeout")).Once()
	deps.local.On("Save", mock.MatchedBy(func(c context.Context) bool { return c.Err() == nil }), "client-1",
		mock.AnythingOfType("model.Story")).Return(nil).Once()

	_, err := svc.Generate(ctx, owner, "cats")
	require.NoError(t, err)
}

func TestStoryService_GenerateStream(t *testing.T) {
	svc, deps := newStoryService(t)
	owner := model.Owner{ClientID: "client-1"}

	deps.writer.On("WriteStream", mock.Anything, "", "sea", mock.Anything).Return([]string{"The Sea\n", "Waves."}, nil).Once()
	deps.dispatcher.On("Dispatch", mock.Anything, mock.AnythingOfType("service.IllustrationJob")).Return(nil).Once()

	var chunks []string
	story, err := svc.GenerateStream(context.Background(), owner, "sea", func(c string) error {
		chunks = append(chunks, c)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"The Sea\n", "Waves."}, chunks)
	assert.Equal(t, "The Sea\nWaves.", story.Content)
	assert.Equal(t, "The Sea", story.Title)
}

func TestStoryService_GenerateStreamClientAbortKeepsPartialStory(t *testing.T) {
	svc, deps := newStoryService(t)
	owner := model.Owner{ClientID: "client-1"}
	ctx, cancel := context.WithCancel(context.Background())

	deps.writer.On("WriteStream", mock.Anything, "", "sea", mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return("Partial text", context.Canceled).Once()
	deps.dispatcher.On("Dispatch", mock.MatchedBy(func(c context.Context) bool { return c.Err() == nil }),
		mock.MatchedBy(func(job service.IllustrationJob) bool { return job.Story.Content == "Partial text" })).
		Return(nil).Once()

	story, err := svc.GenerateStream(ctx, owner, "sea", func(string) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "Partial text", story.Content)
}

func TestStoryService_GenerateStreamErrorWithoutAbort(t *testing.T) {
	svc, deps := newStoryService(t)
	deps.writer.On("WriteStream", mock.Anything, "", "sea", mock.Anything).
		Return("Partial text", errors.New("stream broke")).Once()

	story, err := svc.GenerateStream(context.Background(), model.Owner{ClientID: "client-1"}, "sea", func(string) error { return nil })
	assert.EqualError(t, err, "stream broke")
	assert.Empty(t, story.ID)
	deps.dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

func TestStoryService_WriteText(t *testing.T) {
	svc, deps := newStoryService(t)
	deps.writer.On("Write", mock.Anything, "user-1", "owls").Return("Owls at night", nil).Once()

	text, err := svc.WriteText(context.Background(), model.Owner{UserID: "user-1"}, "owls")
	require.NoError(t, err)
	assert.Equal(t, "Owls at night", text)
}

func TestStoryService_StoreSelection(t *testing.T) {
	ctx := context.Background()

	t.Run("authenticated user uses remote store", func(t *testing.T) {
		svc, deps := newStoryService(t)
		deps.remote.On("List", ctx, "user-1", 10).Return([]model.Story{{ID: "a"}}, nil).Once()

		stories, err := svc.List(ctx, model.Owner{UserID: "user-1", ClientID: "client-1"}, 10)
		require.NoError(t, err)
		assert.Len(t, stories, 1)
	})

	t.Run("client uses local store", func(t *testing.T) {
		svc, deps := newStoryService(t)
		deps.local.On("Clear", ctx, "client-1").Return(nil).Once()

		require.NoError(t, svc.Clear(ctx, model.Owner{ClientID: "client-1"}))
	})

	t.Run("no owner", func(t *testing.T) {
		svc, _ := newStoryService(t)
		_, err := svc.List(ctx, model.Owner{}, 10)
		assert.ErrorIs(t, err, model.ErrInvalidInput)
	})

	t.Run("remote store disabled", func(t *testing.T) {
		svc := service.NewStoryService(mocks.NewMockStoryWriter(t), mocks.NewMockDispatcher(t),
			service.Stores{Local: mocks.NewMockStoryStore(t)}, nil, zap.NewNop())
		_, err := svc.List(ctx, model.Owner{UserID: "user-1"}, 10)
		assert.ErrorIs(t, err, model.ErrStoreDisabled)
	})
}

func TestStoryService_Update(t *testing.T) {
	ctx := context.Background()
	owner := model.Owner{ClientID: "client-1"}

	t.Run("derives missing title", func(t *testing.T) {
		svc, deps := newStoryService(t)
		deps.local.On("Update", ctx, "client-1", mock.MatchedBy(func(s model.Story) bool {
			return s.ID == "s1" && s.Title == "New first line"
		})).Return(nil).Once()

		err := svc.Update(ctx, owner, model.Story{ID: "s1", Content: "New first line\nmore"})
		require.NoError(t, err)
	})

	t.Run("not found is propagated", func(t *testing.T) {
		svc, deps := newStoryService(t)
		deps.local.On("Update", ctx, "client-1", mock.Anything).Return(model.ErrNotFound).Once()

		err := svc.Update(ctx, owner, model.Story{ID: "s1", Title: "t", Content: "c"})
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("validation", func(t *testing.T) {
		svc, _ := newStoryService(t)
		assert.ErrorIs(t, svc.Update(ctx, owner, model.Story{Content: "c"}), model.ErrInvalidInput)
		assert.ErrorIs(t, svc.Update(ctx, owner, model.Story{ID: "s1", Content: "  "}), model.ErrInvalidInput)
	})
}

func TestStoryService_Delete(t *testing.T) {
	ctx := context.Background()
	svc, deps := newStoryService(t)
	deps.remote.On("Delete", ctx, "user-1", "s1").Return(nil).Once()

	require.NoError(t, svc.Delete(ctx, model.Owner{UserID: "user-1"}, "s1"))
	assert.ErrorIs(t, svc.Delete(ctx, model.Owner{UserID: "user-1"}, ""), model.ErrInvalidInput)
}
