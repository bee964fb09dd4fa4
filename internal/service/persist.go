package service

import (
	"context"

	"go.uber.org/zap"

	"story-server/internal/model"
)

// saveStory сохраняет историю во все хранилища владельца.
// Ошибка одного хранилища не мешает записи в другое.
func saveStory(ctx context.Context, stores Stores, log *zap.Logger, owner model.Owner, story model.Story) {
	if owner.ClientID != "" && stores.Local != nil {
		if err := stores.Local.Save(ctx, owner.ClientID, story); err != nil {
			storePersistErrors.WithLabelValues("local").Inc()
			log.Error("Failed to save story to local store", zap.Error(err))
		}
	}
	if owner.UserID != "" && stores.Remote != nil {
		if err := stores.Remote.Save(ctx, owner.UserID, story); err != nil {
			storePersistErrors.WithLabelValues("remote").Inc()
			log.Error("Failed to save story to remote store", zap.Error(err))
		}
	}
}

// textOnlyNotice - уведомление о том, что история сохранена без иллюстрации.
func textOnlyNotice(jobID string, owner model.Owner, story model.Story, reason string) model.Notice {
	return model.Notice{
		Kind:    model.NoticeIllustrationFailed,
		Owner:   owner,
		StoryID: story.ID,
		JobID:   jobID,
		Message: "Illustration failed; story saved without it: " + reason,
	}
}

func deliver(ctx context.Context, notifier Notifier, log *zap.Logger, notice model.Notice) {
	if notifier == nil {
		return
	}
	if err := notifier.Notify(ctx, notice); err != nil {
		log.Warn("Failed to deliver notice", zap.String("kind", string(notice.Kind)), zap.Error(err))
	}
}
