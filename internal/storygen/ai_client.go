package storygen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"story-server/internal/config"
)

// ErrAIGenerationFailed - ошибка при генерации текста AI.
var ErrAIGenerationFailed = errors.New("ai text generation failed")

// Поддерживаемые реализации AIClient.
const (
	ClientTypeOpenAI = "openai"
	ClientTypeOllama = "ollama"
)

// GenerationParams - параметры генерации. Указатели позволяют отличить 0 от отсутствия значения.
type GenerationParams struct {
	Temperature *float64
	MaxTokens   *int
	TopP        *float64
}

// UsageInfo содержит информацию об использовании токенов.
type UsageInfo struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Estimated        bool // true, если провайдер не вернул usage и токены посчитаны локально
}

// AIClient интерфейс для взаимодействия с AI API.
type AIClient interface {
	// GenerateText генерирует текст по системному промту и вводу пользователя.
	GenerateText(ctx context.Context, userID string, systemPrompt string, userInput string, params GenerationParams) (string, UsageInfo, error)
	// GenerateTextStream генерирует текст и вызывает chunkHandler для каждого фрагмента.
	// Ошибка chunkHandler прерывает стрим.
	GenerateTextStream(ctx context.Context, userID string, systemPrompt string, userInput string, params GenerationParams, chunkHandler func(string) error) (UsageInfo, error)
}

// NewAIClient создает клиент в зависимости от AI_CLIENT_TYPE.
func NewAIClient(cfg config.AIConfig, logger *zap.Logger) (AIClient, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout}

	switch strings.ToLower(cfg.ClientType) {
	case ClientTypeOpenAI:
		logger.Info("Using AI client implementation", zap.String("type", ClientTypeOpenAI),
			zap.String("base_url", cfg.BaseURL), zap.String("model", cfg.Model), zap.Duration("timeout", cfg.Timeout))
		return newOpenAIClient(cfg, httpClient, logger), nil
	case ClientTypeOllama:
		logger.Info("Using AI client implementation", zap.String("type", ClientTypeOllama),
			zap.String("base_url", cfg.BaseURL), zap.String("model", cfg.Model), zap.Duration("timeout", cfg.Timeout))
		return newOllamaClient(cfg, httpClient, logger)
	default:
		return nil, fmt.Errorf("unknown AI client type: '%s'", cfg.ClientType)
	}
}

func float32Val(f64 *float64) float32 {
	if f64 == nil {
		return 0
	}
	return float32(*f64)
}

func intVal(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}
