package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"story-server/internal/model"
)

var _ StoryStore = (*redisStoryRepository)(nil)

// redisStoryRepository - локальное хранилище историй конкретного клиента (браузера).
// Для каждого клиента хранятся:
// 1. stories:{clientID} - hash storyID -> JSON истории
// 2. stories:{clientID}:order - sorted set storyID по времени создания
// Оба ключа продлеваются на ttl при каждой записи.
type redisStoryRepository struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisStoryRepository создает локальное хранилище историй.
func NewRedisStoryRepository(client *redis.Client, ttl time.Duration, logger *zap.Logger) StoryStore {
	return &redisStoryRepository{
		client: client,
		ttl:    ttl,
		logger: logger.Named("RedisStoryRepo"),
	}
}

func storiesKey(clientID string) string {
	return fmt.Sprintf("stories:%s", clientID)
}

func storiesOrderKey(clientID string) string {
	return fmt.Sprintf("stories:%s:order", clientID)
}

func (r *redisStoryRepository) expire(ctx context.Context, pipe redis.Pipeliner, clientID string) {
	if r.ttl > 0 {
		pipe.Expire(ctx, storiesKey(clientID), r.ttl)
		pipe.Expire(ctx, storiesOrderKey(clientID), r.ttl)
	}
}

// Save добавляет историю в начало списка клиента.
func (r *redisStoryRepository) Save(ctx context.Context, clientID string, story model.Story) error {
	if clientID == "" || story.ID == "" {
		return fmt.Errorf("%w: client id and story id are required", model.ErrInvalidInput)
	}
	if story.CreatedAt.IsZero() {
		story.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(story)
	if err != nil {
		return fmt.Errorf("failed to marshal story: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, storiesKey(clientID), story.ID, data)
		pipe.ZAdd(ctx, storiesOrderKey(clientID), redis.Z{
			Score:  float64(story.CreatedAt.UnixMilli()),
			Member: story.ID,
		})
		r.expire(ctx, pipe, clientID)
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to save story in redis",
			zap.String("client_id", clientID), zap.String("story_id", story.ID), zap.Error(err))
		return fmt.Errorf("redis error saving story '%s': %w", story.ID, err)
	}
	r.logger.Debug("Story saved", zap.String("client_id", clientID), zap.String("story_id", story.ID))
	return nil
}

// Update заменяет существующую историю, порядок не меняется.
func (r *redisStoryRepository) Update(ctx context.Context, clientID string, story model.Story) error {
	raw, err := r.client.HGet(ctx, storiesKey(clientID), story.ID).Result()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: story '%s'", model.ErrNotFound, story.ID)
	}
	if err != nil {
		return fmt.Errorf("redis error checking story '%s': %w", story.ID, err)
	}
	if story.CreatedAt.IsZero() {
		var existing model.Story
		if json.Unmarshal([]byte(raw), &existing) == nil {
			story.CreatedAt = existing.CreatedAt
		}
	}

	data, err := json.Marshal(story)
	if err != nil {
		return fmt.Errorf("failed to marshal story: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, storiesKey(clientID), story.ID, data)
		r.expire(ctx, pipe, clientID)
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to update story in redis",
			zap.String("client_id", clientID), zap.String("story_id", story.ID), zap.Error(err))
		return fmt.Errorf("redis error updating story '%s': %w", story.ID, err)
	}
	return nil
}

// Delete удаляет историю клиента.
func (r *redisStoryRepository) Delete(ctx context.Context, clientID string, storyID string) error {
	var hdel *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		hdel = pipe.HDel(ctx, storiesKey(clientID), storyID)
		pipe.ZRem(ctx, storiesOrderKey(clientID), storyID)
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to delete story from redis",
			zap.String("client_id", clientID), zap.String("story_id", storyID), zap.Error(err))
		return fmt.Errorf("redis error deleting story '%s': %w", storyID, err)
	}
	if hdel.Val() == 0 {
		return fmt.Errorf("%w: story '%s'", model.ErrNotFound, storyID)
	}
	return nil
}

// List возвращает истории клиента, новые первыми. Поврежденные записи пропускаются.
func (r *redisStoryRepository) List(ctx context.Context, clientID string, limit int) ([]model.Story, error) {
	limit = normalizeLimit(limit)
	log := r.logger.With(zap.String("client_id", clientID))

	ids, err := r.client.ZRevRange(ctx, storiesOrderKey(clientID), 0, int64(limit-1)).Result()
	if err != nil {
		log.Error("Failed to read story order", zap.Error(err))
		return nil, fmt.Errorf("redis error listing stories: %w", err)
	}
	stories := make([]model.Story, 0, len(ids))
	if len(ids) == 0 {
		return stories, nil
	}

	values, err := r.client.HMGet(ctx, storiesKey(clientID), ids...).Result()
	if err != nil {
		log.Error("Failed to read stories", zap.Error(err))
		return nil, fmt.Errorf("redis error listing stories: %w", err)
	}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			log.Warn("Story referenced by order set is missing", zap.String("story_id", ids[i]))
			continue
		}
		var story model.Story
		if err := json.Unmarshal([]byte(raw), &story); err != nil {
			log.Warn("Skipping corrupted story entry", zap.String("story_id", ids[i]), zap.Error(err))
			continue
		}
		stories = append(stories, story)
	}
	return stories, nil
}

// Clear удаляет все истории клиента.
func (r *redisStoryRepository) Clear(ctx context.Context, clientID string) error {
	if err := r.client.Del(ctx, storiesKey(clientID), storiesOrderKey(clientID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		r.logger.Error("Failed to clear stories", zap.String("client_id", clientID), zap.Error(err))
		return fmt.Errorf("redis error clearing stories: %w", err)
	}
	r.logger.Info("Stories cleared", zap.String("client_id", clientID))
	return nil
}
