package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"story-server/internal/model"
	"story-server/internal/repository"
)

// StoryService - сценарии работы с историями: генерация, список, редактирование.
type StoryService struct {
	writer     StoryWriter
	dispatcher Dispatcher
	stores     Stores
	notifier   Notifier
	logger     *zap.Logger
	now        func() time.Time
}

// NewStoryService создает новый экземпляр StoryService. notifier может быть nil.
func NewStoryService(writer StoryWriter, dispatcher Dispatcher, stores Stores, notifier Notifier, logger *zap.Logger) *StoryService {
	return &StoryService{
		writer:     writer,
		dispatcher: dispatcher,
		stores:     stores,
		notifier:   notifier,
		logger:     logger.Named("StoryService"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WriteText генерирует только текст истории, ничего не сохраняя.
func (s *StoryService) WriteText(ctx context.Context, owner model.Owner, theme string) (string, error) {
	theme = strings.TrimSpace(theme)
	text, err := s.writer.Write(ctx, owner.UserID, theme)
	if err != nil {
		storiesGenerated.WithLabelValues("text", "error").Inc()
		return "", err
	}
	storiesGenerated.WithLabelValues("text", "success").Inc()
	return text, nil
}

// Generate пишет историю и отправляет ее на иллюстрирование.
// Возвращаемая история еще без иллюстрации: она сохраняется после завершения задачи.
// Если задачу не удалось отправить, история сразу сохраняется без иллюстрации.
func (s *StoryService) Generate(ctx context.Context, owner model.Owner, theme string) (model.Story, error) {
	theme = strings.TrimSpace(theme)
	text, err := s.writer.Write(ctx, owner.UserID, theme)
	if err != nil {
		storiesGenerated.WithLabelValues("sync", "error").Inc()
		return model.Story{}, err
	}
	story := s.newStory(theme, text)
	storiesGenerated.WithLabelValues("sync", "success").Inc()

	s.dispatch(ctx, owner, story)
	return story, nil
}

// GenerateStream пишет историю по частям. Если клиент прервал генерацию,
// уже полученный текст все равно становится историей и иллюстрируется.
func (s *StoryService) GenerateStream(ctx context.Context, owner model.Owner, theme string, onChunk func(string) error) (model.Story, error) {
	theme = strings.TrimSpace(theme)
	text, err := s.writer.WriteStream(ctx, owner.UserID, theme, onChunk)
	if err != nil {
		if strings.TrimSpace(text) == "" || ctx.Err() == nil {
			storiesGenerated.WithLabelValues("stream", "error").Inc()
			return model.Story{}, err
		}
		story := s.newStory(theme, text)
		storiesGenerated.WithLabelValues("stream", "partial").Inc()
		s.logger.Info("Story stream stopped by client, keeping partial story",
			zap.String("story_id", story.ID), zap.Int("length", len(story.Content)))
		s.dispatch(context.WithoutCancel(ctx), owner, story)
		return story, err
	}

	story := s.newStory(theme, text)
	storiesGenerated.WithLabelValues("stream", "success").Inc()
	s.dispatch(ctx, owner, story)
	return story, nil
}

// List возвращает истории владельца, новые первыми.
func (s *StoryService) List(ctx context.Context, owner model.Owner, limit int) ([]model.Story, error) {
	store, key, err := s.storeFor(owner)
	if err != nil {
		return nil, err
	}
	return store.List(ctx, key, limit)
}

// Update заменяет существующую историю владельца.
func (s *StoryService) Update(ctx context.Context, owner model.Owner, story model.Story) error {
	if story.ID == "" {
		return fmt.Errorf("%w: story id is required", model.ErrInvalidInput)
	}
	if strings.TrimSpace(story.Content) == "" {
		return fmt.Errorf("%w: content is required", model.ErrInvalidInput)
	}
	if strings.TrimSpace(story.Title) == "" {
		story.Title = model.DeriveTitle(story.Content, story.Theme)
	}
	store, key, err := s.storeFor(owner)
	if err != nil {
		return err
	}
	return store.Update(ctx, key, story)
}

// Delete удаляет историю владельца.
func (s *StoryService) Delete(ctx context.Context, owner model.Owner, storyID string) error {
	if storyID == "" {
		return fmt.Errorf("%w: story id is required", model.ErrInvalidInput)
	}
	store, key, err := s.storeFor(owner)
	if err != nil {
		return err
	}
	return store.Delete(ctx, key, storyID)
}

// Clear удаляет все истории владельца.
func (s *StoryService) Clear(ctx context.Context, owner model.Owner) error {
	store, key, err := s.storeFor(owner)
	if err != nil {
		return err
	}
	return store.Clear(ctx, key)
}

func (s *StoryService) newStory(theme, text string) model.Story {
	content := strings.TrimSpace(text)
	return model.Story{
		ID:        uuid.NewString(),
		Theme:     theme,
		Title:     model.DeriveTitle(content, theme),
		Content:   content,
		CreatedAt: s.now(),
	}
}

// dispatch отправляет историю на иллюстрирование. Текст не теряется:
// при ошибке отправки история сохраняется без иллюстрации, владелец получает уведомление.
func (s *StoryService) dispatch(ctx context.Context, owner model.Owner, story model.Story) {
	if owner.IsAnonymous() {
		s.logger.Debug("Anonymous story, illustration skipped", zap.String("story_id", story.ID))
		return
	}
	job := IllustrationJob{JobID: uuid.NewString(), Story: story, Owner: owner}
	err := s.dispatcher.Dispatch(ctx, job)
	if err == nil {
		return
	}

	log := s.logger.With(zap.String("job_id", job.JobID), zap.String("story_id", story.ID))
	log.Error("Failed to dispatch illustration, saving story without it", zap.Error(err))
	illustrationsTotal.WithLabelValues("dispatch_failed").Inc()

	saveCtx := context.WithoutCancel(ctx)
	saveStory(saveCtx, s.stores, log, owner, story)
	deliver(saveCtx, s.notifier, log, textOnlyNotice(job.JobID, owner, story, "illustration service unavailable"))
}

// storeFor выбирает хранилище: аккаунт пользователя важнее локального клиента.
func (s *StoryService) storeFor(owner model.Owner) (repository.StoryStore, string, error) {
	switch {
	case owner.IsAuthenticated():
		if s.stores.Remote == nil {
			return nil, "", model.ErrStoreDisabled
		}
		return s.stores.Remote, owner.UserID, nil
	case owner.ClientID != "":
		if s.stores.Local == nil {
			return nil, "", model.ErrStoreDisabled
		}
		return s.stores.Local, owner.ClientID, nil
	default:
		return nil, "", fmt.Errorf("%w: client id or user token is required", model.ErrInvalidInput)
	}
}
