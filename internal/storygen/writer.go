package storygen

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"story-server/internal/config"
	"story-server/internal/model"
)

// Writer пишет короткие истории по теме.
type Writer struct {
	client AIClient
	params GenerationParams
	logger *zap.Logger
}

// NewWriter создает Writer с параметрами генерации из конфигурации.
func NewWriter(client AIClient, cfg config.AIConfig, logger *zap.Logger) *Writer {
	temperature := cfg.Temperature
	maxTokens := cfg.MaxTokens
	params := GenerationParams{Temperature: &temperature}
	if maxTokens > 0 {
		params.MaxTokens = &maxTokens
	}
	return &Writer{
		client: client,
		params: params,
		logger: logger.Named("StoryWriter"),
	}
}

// Write генерирует полный текст истории.
func (w *Writer) Write(ctx context.Context, userID, theme string) (string, error) {
	theme = strings.TrimSpace(theme)
	if theme == "" {
		return "", fmt.Errorf("%w: theme is required", model.ErrInvalidInput)
	}

	text, usage, err := w.client.GenerateText(ctx, userID, storytellerSystemPrompt, BuildStoryPrompt(theme), w.params)
	if err != nil {
		return "", err
	}
	w.logger.Debug("Story written",
		zap.String("user_id", userID),
		zap.Int("length", len(text)),
		zap.Int("total_tokens", usage.TotalTokens))
	return strings.TrimSpace(text), nil
}

// WriteStream генерирует историю по частям, передавая каждую в onChunk.
// Возвращает накопленный текст, в том числе при ошибке или остановке стрима.
func (w *Writer) WriteStream(ctx context.Context, userID, theme string, onChunk func(string) error) (string, error) {
	theme = strings.TrimSpace(theme)
	if theme == "" {
		return "", fmt.Errorf("%w: theme is required", model.ErrInvalidInput)
	}

	var text strings.Builder
	usage, err := w.client.GenerateTextStream(ctx, userID, storytellerSystemPrompt, BuildStoryPrompt(theme), w.params,
		func(chunk string) error {
			text.WriteString(chunk)
			if onChunk != nil {
				return onChunk(chunk)
			}
			return nil
		})
	if err != nil {
		w.logger.Info("Story stream ended early",
			zap.String("user_id", userID),
			zap.Int("partial_length", text.Len()),
			zap.Error(err))
		return text.String(), err
	}
	w.logger.Debug("Story streamed",
		zap.String("user_id", userID),
		zap.Int("length", text.Len()),
		zap.Int("total_tokens", usage.TotalTokens),
		zap.Bool("estimated_usage", usage.Estimated))
	return text.String(), nil
}
