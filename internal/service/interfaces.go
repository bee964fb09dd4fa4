package service

import (
	"context"

	"story-server/internal/imagegen"
	"story-server/internal/model"
	"story-server/internal/poller"
	"story-server/internal/repository"
)

// ImageClient ставит задачи генерации изображений и отдает их статус.
type ImageClient interface {
	poller.StatusFetcher
	Submit(ctx context.Context, req imagegen.ImageRequest) (imagegen.SubmitResult, error)
}

// Notifier доставляет нефатальные уведомления владельцу истории.
type Notifier interface {
	Notify(ctx context.Context, notice model.Notice) error
}

// NotifierFunc позволяет использовать функцию как Notifier.
type NotifierFunc func(ctx context.Context, notice model.Notice) error

// Notify вызывает f(ctx, notice).
func (f NotifierFunc) Notify(ctx context.Context, notice model.Notice) error {
	return f(ctx, notice)
}

// StoryWriter пишет текст истории по теме.
type StoryWriter interface {
	Write(ctx context.Context, userID, theme string) (string, error)
	WriteStream(ctx context.Context, userID, theme string, onChunk func(string) error) (string, error)
}

// Dispatcher запускает иллюстрирование истории в фоне.
type Dispatcher interface {
	Dispatch(ctx context.Context, job IllustrationJob) error
}

// Stores - хранилища историй. Любое из них может быть nil (не настроено).
type Stores struct {
	Local  repository.StoryStore // По ClientID
	Remote repository.StoryStore // По UserID
}
