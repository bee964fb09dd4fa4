package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"story-server/internal/imagegen"
	"story-server/internal/mocks"
	"story-server/internal/model"
	"story-server/internal/poller"
	"story-server/internal/service"
)

// fakeImageClient ставит задачу "task-1" и отдает статусы из statuses по очереди.
// После конца списка повторяется последний статус.
type fakeImageClient struct {
	mu        sync.Mutex
	submitErr error
	statuses  []poller.StatusRecord
	prompts   []string
	fetches   atomic.Int32
}

func (f *fakeImageClient) Submit(_ context.Context, req imagegen.ImageRequest) (imagegen.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, req.Prompt)
	if f.submitErr != nil {
		return imagegen.SubmitResult{}, f.submitErr
	}
	return imagegen.SubmitResult{TaskID: "task-1", Status: "PENDING"}, nil
}

func (f *fakeImageClient) FetchStatus(_ context.Context, _ string) (poller.StatusRecord, error) {
	n := int(f.fetches.Add(1))
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statuses) == 0 {
		return poller.StatusRecord{Status: "RUNNING"}, nil
	}
	if n > len(f.statuses) {
		n = len(f.statuses)
	}
	return f.statuses[n-1], nil
}

type noticeRecorder struct {
	mu      sync.Mutex
	notices []model.Notice
}

func (r *noticeRecorder) Notify(_ context.Context, notice model.Notice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, notice)
	return nil
}

func (r *noticeRecorder) all() []model.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Notice(nil), r.notices...)
}

func newTestRegistry(maxAttempts int) *poller.Registry {
	p := poller.New(poller.Config{MaxAttempts: maxAttempts, Interval: time.Millisecond}, zap.NewNop())
	return poller.NewRegistry(p, zap.NewNop())
}

func testJob(owner model.Owner) service.IllustrationJob {
	return service.IllustrationJob{
		JobID: "job-1",
		Owner: owner,
		Story: model.Story{
			ID:        "story-1",
			Theme:     "forest",
			Title:     "Once upon a time",
			Content:   "Once upon a time\nthere was a forest.",
			CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

func TestIllustrator_ReadySavesStoryWithImage(t *testing.T) {
	images := &fakeImageClient{statuses: []poller.StatusRecord{
		{Status: "RUNNING"},
		{Status: "SUCCEEDED", ArtifactURL: "https://img/1.png"},
	}}
	local := mocks.NewMockStoryStore(t)
	remote := mocks.NewMockStoryStore(t)
	notices := &noticeRecorder{}
	owner := model.Owner{UserID: "user-1", ClientID: "client-1"}

	hasImage := mock.MatchedBy(func(s model.Story) bool {
		return s.ID == "story-1" && s.ImageURL != nil && *s.ImageURL == "https://img/1.png"
	})
	local.On("Save", mock.Anything, "client-1", hasImage).Return(nil).Once()
	remote.On("Save", mock.Anything, "user-1", hasImage).Return(nil).Once()

	ill := service.NewIllustrator(images, newTestRegistry(5), service.Stores{Local: local, Remote: remote}, notices, "", zap.NewNop())
	result, err := ill.Illustrate(context.Background(), testJob(owner))
	require.NoError(t, err)

	assert.Equal(t, "task-1", result.TaskID)
	assert.Equal(t, poller.OutcomeReady, result.Outcome.Kind)
	assert.True(t, result.Story.HasImage())
	require.NotNil(t, result.Notice)
	assert.Equal(t, model.NoticeIllustrationReady, result.Notice.Kind)
	assert.Equal(t, "https://img/1.png", result.Notice.ImageURL)
	assert.Len(t, notices.all(), 1)

	require.Len(t, images.prompts, 1)
	assert.Contains(t, images.prompts[0], "forest")
}

func TestIllustrator_FailedSavesStoryWithoutImage(t *testing.T) {
	images := &fakeImageClient{statuses: []poller.StatusRecord{{Status: "FAILED", Message: "content policy"}}}
	local := mocks.NewMockStoryStore(t)
	notices := &noticeRecorder{}

	noImage := mock.MatchedBy(func(s model.Story) bool { return s.ID == "story-1" && s.ImageURL == nil })
	local.On("Save", mock.Anything, "client-1", noImage).Return(nil).Once()

	ill := service.NewIllustrator(images, newTestRegistry(5), service.Stores{Local: local}, notices, "", zap.NewNop())
	result, err := ill.Illustrate(context.Background(), testJob(model.Owner{ClientID: "client-1"}))
	require.NoError(t, err)

	assert.Equal(t, poller.OutcomeFailed, result.Outcome.Kind)
	assert.Equal(t, "Failed", result.Outcome.Reason)
	require.NotNil(t, result.Notice)
	assert.Equal(t, model.NoticeIllustrationFailed, result.Notice.Kind)
	assert.Contains(t, result.Notice.Message, "Failed")
}

func TestIllustrator_TimeoutSavesStoryAndSendsPendingNotice(t *testing.T) {
	images := &fakeImageClient{}
	remote := mocks.NewMockStoryStore(t)
	notices := &noticeRecorder{}
	remote.On("Save", mock.Anything, "user-1", mock.AnythingOfType("model.Story")).Return(nil).Once()

	ill := service.NewIllustrator(images, newTestRegistry(3), service.Stores{Remote: remote}, notices, "", zap.NewNop())
	result, err := ill.Illustrate(context.Background(), testJob(model.Owner{UserID: "user-1"}))
	require.NoError(t, err)

	assert.Equal(t, poller.OutcomeTimedOut, result.Outcome.Kind)
	assert.Equal(t, 3, result.Outcome.Attempts)
	assert.EqualValues(t, 3, images.fetches.Load())
	require.NotNil(t, result.Notice)
	assert.Equal(t, model.NoticeIllustrationPending, result.Notice.Kind)
}

func TestIllustrator_SubmitErrorTreatedAsFailure(t *testing.T) {
	images := &fakeImageClient{submitErr: errors.New("quota exceeded")}
	local := mocks.NewMockStoryStore(t)
	local.On("Save", mock.Anything, "client-1", mock.AnythingOfType("model.Story")).Return(nil).Once()

	ill := service.NewIllustrator(images, newTestRegistry(3), service.Stores{Local: local}, nil, "", zap.NewNop())
	result, err := ill.Illustrate(context.Background(), testJob(model.Owner{ClientID: "client-1"}))
	require.NoError(t, err)

	assert.Empty(t, result.TaskID)
	assert.Equal(t, poller.OutcomeFailed, result.Outcome.Kind)
	assert.Contains(t, result.Outcome.Reason, "quota exceeded")
	assert.Zero(t, images.fetches.Load())
}

func TestIllustrator_FullRegistrySavesTextOnly(t *testing.T) {
	p := poller.New(poller.Config{MaxAttempts: 1000, Interval: time.Millisecond}, zap.NewNop())
	registry := poller.NewRegistry(p, zap.NewNop(), poller.WithMaxSessions(1))
	t.Cleanup(registry.Close)

	busyCtx, stopBusy := context.WithCancel(context.Background())
	busyDone := make(chan struct{})
	go func() {
		defer close(busyDone)
		_, _ = registry.Watch(busyCtx, "busy-task", poller.FetcherFunc(func(context.Context, string) (poller.StatusRecord, error) {
			return poller.StatusRecord{Status: "RUNNING"}, nil
		}))
	}()
	require.Eventually(t, func() bool { return registry.Active() == 1 }, time.Second, time.Millisecond)

	images := &fakeImageClient{}
	local := mocks.NewMockStoryStore(t)
	noImage := mock.MatchedBy(func(s model.Story) bool { return s.ID == "story-1" && !s.HasImage() })
	local.On("Save", mock.Anything, "client-1", noImage).Return(nil).Once()
	notices := &noticeRecorder{}

	ill := service.NewIllustrator(images, registry, service.Stores{Local: local}, notices, "", zap.NewNop())
	result, err := ill.Illustrate(context.Background(), testJob(model.Owner{ClientID: "client-1"}))
	require.NoError(t, err)

	assert.Equal(t, "task-1", result.TaskID)
	assert.Equal(t, poller.OutcomeFailed, result.Outcome.Kind)
	assert.Contains(t, result.Outcome.Reason, "registry is full")
	assert.Zero(t, images.fetches.Load())
	require.Len(t, notices.all(), 1)
	assert.Equal(t, model.NoticeIllustrationFailed, notices.all()[0].Kind)

	stopBusy()
	<-busyDone
}

func TestIllustrator_StoreErrorDoesNotBlockOtherStore(t *testing.T) {
	images := &fakeImageClient{statuses: []poller.StatusRecord{{Status: "SUCCEEDED", ArtifactURL: "https://img/2.png"}}}
	local := mocks.NewMockStoryStore(t)
	remote := mocks.NewMockStoryStore(t)
	local.On("Save", mock.Anything, "client-1", mock.AnythingOfType("model.Story")).Return(errors.New("redis down")).Once()
	remote.On("Save", mock.Anything, "user-1", mock.AnythingOfType("model.Story")).Return(nil).Once()

	ill := service.NewIllustrator(images, newTestRegistry(3), service.Stores{Local: local, Remote: remote}, nil, "", zap.NewNop())
	result, err := ill.Illustrate(context.Background(), testJob(model.Owner{UserID: "user-1", ClientID: "client-1"}))
	require.NoError(t, err)
	assert.Equal(t, poller.OutcomeReady, result.Outcome.Kind)
}

func TestIllustrator_CanceledContextPersistsNothing(t *testing.T) {
	images := &fakeImageClient{}
	local := mocks.NewMockStoryStore(t)
	notices := &noticeRecorder{}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	ill := service.NewIllustrator(images, newTestRegistry(100000), service.Stores{Local: local}, notices, "", zap.NewNop())
	_, err := ill.Illustrate(ctx, testJob(model.Owner{ClientID: "client-1"}))

	assert.ErrorIs(t, err, context.Canceled)
	local.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, notices.all())
}

func TestIllustrator_AnonymousOwnerHasNoNotice(t *testing.T) {
	images := &fakeImageClient{statuses: []poller.StatusRecord{{Status: "SUCCEEDED", ArtifactURL: "https://img/3.png"}}}
	notices := &noticeRecorder{}

	ill := service.NewIllustrator(images, newTestRegistry(3), service.Stores{}, notices, "", zap.NewNop())
	result, err := ill.Illustrate(context.Background(), testJob(model.Owner{}))
	require.NoError(t, err)
	assert.Nil(t, result.Notice)
	assert.Empty(t, notices.all())
}

func TestIllustrator_GenerateImage(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		images := &fakeImageClient{statuses: []poller.StatusRecord{{Status: "SUCCEEDED", ArtifactURL: "https://img/4.png"}}}
		ill := service.NewIllustrator(images, newTestRegistry(3), service.Stores{}, nil, "draw %s", zap.NewNop())

		url, outcome, err := ill.GenerateImage(context.Background(), "a cat")
		require.NoError(t, err)
		assert.Equal(t, "https://img/4.png", url)
		assert.Equal(t, 1, outcome.Attempts)
		assert.Equal(t, []string{"draw a cat"}, images.prompts)
	})

	t.Run("failed", func(t *testing.T) {
		images := &fakeImageClient{statuses: []poller.StatusRecord{{Status: "CANCELED"}}}
		ill := service.NewIllustrator(images, newTestRegistry(3), service.Stores{}, nil, "", zap.NewNop())

		_, _, err := ill.GenerateImage(context.Background(), "a cat")
		assert.ErrorIs(t, err, service.ErrImageFailed)
		assert.Contains(t, err.Error(), "Canceled")
	})

	t.Run("timeout", func(t *testing.T) {
		ill := service.NewIllustrator(&fakeImageClient{}, newTestRegistry(2), service.Stores{}, nil, "", zap.NewNop())

		_, outcome, err := ill.GenerateImage(context.Background(), "a cat")
		assert.ErrorIs(t, err, service.ErrImageTimeout)
		assert.Equal(t, poller.OutcomeTimedOut, outcome.Kind)
	})

	t.Run("empty prompt", func(t *testing.T) {
		ill := service.NewIllustrator(&fakeImageClient{}, newTestRegistry(2), service.Stores{}, nil, "", zap.NewNop())

		_, _, err := ill.GenerateImage(context.Background(), "   ")
		assert.ErrorIs(t, err, model.ErrInvalidInput)
	})
}

func TestIllustrator_TaskOperations(t *testing.T) {
	images := &fakeImageClient{statuses: []poller.StatusRecord{{Status: "SUCCEEDED", ArtifactURL: "https://img/5.png"}}}
	ill := service.NewIllustrator(images, newTestRegistry(3), service.Stores{}, nil, "", zap.NewNop())

	submitted, err := ill.SubmitImage(context.Background(), "sea")
	require.NoError(t, err)
	assert.Equal(t, "task-1", submitted.TaskID)

	status, err := ill.TaskStatus(context.Background(), submitted.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "SUCCEEDED", status.Status)

	outcome, err := ill.WaitTask(context.Background(), submitted.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "https://img/5.png", outcome.ArtifactURL)

	_, err = ill.TaskStatus(context.Background(), "")
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	_, err = ill.WaitTask(context.Background(), "")
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	_, err = ill.SubmitImage(context.Background(), "")
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}
