package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"go.uber.org/zap"

	"story-server/internal/model"
)

const (
	upsertStoryQuery = `
        INSERT INTO stories (id, user_id, theme, title, content, image_url, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (id) DO UPDATE SET
            theme = EXCLUDED.theme,
            title = EXCLUDED.title,
            content = EXCLUDED.content,
            image_url = EXCLUDED.image_url,
            updated_at = NOW()
        WHERE stories.user_id = EXCLUDED.user_id`
	updateStoryQuery = `
        UPDATE stories SET theme = $3, title = $4, content = $5, image_url = $6, updated_at = NOW()
        WHERE id = $1 AND user_id = $2`
	deleteStoryQuery  = `DELETE FROM stories WHERE id = $1 AND user_id = $2`
	clearStoriesQuery = `DELETE FROM stories WHERE user_id = $1`
	listStoriesQuery  = `
        SELECT id, theme, title, content, image_url, created_at
        FROM stories
        WHERE user_id = $1
        ORDER BY created_at DESC
        LIMIT $2`
)

var _ StoryStore = (*pgStoryRepository)(nil)

// pgStoryRepository - удаленное хранилище историй аккаунта в PostgreSQL.
type pgStoryRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgStoryRepository создает новый экземпляр pgStoryRepository.
func NewPgStoryRepository(db DBTX, logger *zap.Logger) StoryStore {
	return &pgStoryRepository{
		db:     db,
		logger: logger.Named("PgStoryRepo"),
	}
}

// Save сохраняет историю пользователя (upsert по ID).
func (r *pgStoryRepository) Save(ctx context.Context, userID string, story model.Story) error {
	log := r.logger.With(zap.String("user_id", userID), zap.String("story_id", story.ID))
	if userID == "" || story.ID == "" {
		return fmt.Errorf("%w: user id and story id are required", model.ErrInvalidInput)
	}
	createdAt := story.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	cmdTag, err := r.db.Exec(ctx, upsertStoryQuery,
		story.ID, userID, story.Theme, story.Title, story.Content, story.ImageURL, createdAt)
	if err != nil {
		log.Error("Error saving story", zap.Error(err))
		return fmt.Errorf("database error saving story '%s': %w", story.ID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		// ID занят историей другого пользователя
		log.Warn("Story id belongs to another user, save rejected")
		return fmt.Errorf("%w: story id '%s' is already taken", model.ErrInvalidInput, story.ID)
	}
	log.Debug("Story saved", zap.Bool("has_image", story.HasImage()))
	return nil
}

// Update заменяет существующую историю пользователя.
func (r *pgStoryRepository) Update(ctx context.Context, userID string, story model.Story) error {
	log := r.logger.With(zap.String("user_id", userID), zap.String("story_id", story.ID))

	cmdTag, err := r.db.Exec(ctx, updateStoryQuery,
		story.ID, userID, story.Theme, story.Title, story.Content, story.ImageURL)
	if err != nil {
		log.Error("Error updating story", zap.Error(err))
		return fmt.Errorf("database error updating story '%s': %w", story.ID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		log.Debug("Story to update not found")
		return fmt.Errorf("%w: story '%s'", model.ErrNotFound, story.ID)
	}
	log.Debug("Story updated")
	return nil
}

// Delete удаляет историю пользователя.
func (r *pgStoryRepository) Delete(ctx context.Context, userID string, storyID string) error {
	log := r.logger.With(zap.String("user_id", userID), zap.String("story_id", storyID))

	cmdTag, err := r.db.Exec(ctx, deleteStoryQuery, storyID, userID)
	if err != nil {
		log.Error("Error deleting story", zap.Error(err))
		return fmt.Errorf("database error deleting story '%s': %w", storyID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		log.Debug("Story to delete not found")
		return fmt.Errorf("%w: story '%s'", model.ErrNotFound, storyID)
	}
	log.Debug("Story deleted")
	return nil
}

// List возвращает истории пользователя, новые первыми.
func (r *pgStoryRepository) List(ctx context.Context, userID string, limit int) ([]model.Story, error) {
	limit = normalizeLimit(limit)

	stories := make([]model.Story, 0)
	if err := pgxscan.Select(ctx, r.db, &stories, listStoriesQuery, userID, limit); err != nil {
		r.logger.Error("Error listing stories", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("database error listing stories: %w", err)
	}

	for i := range stories {
		if stories[i].Title == "" {
			stories[i].Title = model.DeriveTitle(stories[i].Content, stories[i].Theme)
		}
		if stories[i].ImageURL != nil && *stories[i].ImageURL == "" {
			stories[i].ImageURL = nil
		}
	}
	return stories, nil
}

// Clear удаляет все истории пользователя.
func (r *pgStoryRepository) Clear(ctx context.Context, userID string) error {
	cmdTag, err := r.db.Exec(ctx, clearStoriesQuery, userID)
	if err != nil {
		r.logger.Error("Error clearing stories", zap.String("user_id", userID), zap.Error(err))
		return fmt.Errorf("database error clearing stories: %w", err)
	}
	r.logger.Info("Stories cleared", zap.String("user_id", userID), zap.Int64("deleted", cmdTag.RowsAffected()))
	return nil
}
