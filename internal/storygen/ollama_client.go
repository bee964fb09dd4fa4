package storygen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"story-server/internal/config"
)

// ollamaClient реализует AIClient через нативный API Ollama.
type ollamaClient struct {
	client  *api.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

func newOllamaClient(cfg config.AIConfig, httpClient *http.Client, logger *zap.Logger) (*ollamaClient, error) {
	// api.NewClient ожидает URL без суффикса /v1
	baseURL := strings.TrimSuffix(strings.TrimSuffix(cfg.BaseURL, "/"), "/v1")
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Ollama base URL '%s': %w", baseURL, err)
	}
	// Таймаут задается контекстом запроса, иначе долгий стрим обрывается http.Client.
	httpClient.Timeout = 0
	return &ollamaClient{
		client:  api.NewClient(parsedURL, httpClient),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		logger:  logger.Named("OllamaClient"),
	}, nil
}

func (c *ollamaClient) request(systemPrompt, userInput string, params GenerationParams, stream bool) *api.ChatRequest {
	messages := []api.Message{{Role: "system", Content: systemPrompt}}
	if userInput != "" {
		messages = append(messages, api.Message{Role: "user", Content: userInput})
	}
	options := map[string]interface{}{}
	if params.Temperature != nil {
		options["temperature"] = *params.Temperature
	}
	if params.TopP != nil {
		options["top_p"] = *params.TopP
	}
	if params.MaxTokens != nil {
		options["num_predict"] = *params.MaxTokens
	}
	return &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
		Options:  options,
	}
}

func (c *ollamaClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// GenerateText генерирует текст с использованием Ollama.
func (c *ollamaClient) GenerateText(ctx context.Context, userID string, systemPrompt string, userInput string, params GenerationParams) (string, UsageInfo, error) {
	log := c.logger.With(zap.String("user_id", userID), zap.String("model", c.model))
	if strings.TrimSpace(systemPrompt) == "" {
		aiRequestsTotal.WithLabelValues(c.model, "error").Inc()
		return "", UsageInfo{}, fmt.Errorf("%w: system prompt is empty", ErrAIGenerationFailed)
	}

	requestCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	startTime := time.Now()
	var resp api.ChatResponse
	err := c.client.Chat(requestCtx, c.request(systemPrompt, userInput, params, false), func(r api.ChatResponse) error {
		resp = r
		return nil
	})
	duration := time.Since(startTime)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Error("Ollama request timed out", zap.Duration("timeout", c.timeout), zap.Error(err))
		} else {
			log.Error("Ollama request failed", zap.Duration("duration", duration), zap.Error(err))
		}
		aiRequestsTotal.WithLabelValues(c.model, "error").Inc()
		return "", UsageInfo{}, fmt.Errorf("%w: %w", ErrAIGenerationFailed, err)
	}
	if resp.Message.Content == "" {
		log.Error("Ollama returned empty response", zap.Duration("duration", duration))
		aiRequestsTotal.WithLabelValues(c.model, "error_empty_response").Inc()
		return "", UsageInfo{}, fmt.Errorf("%w: empty response", ErrAIGenerationFailed)
	}

	aiRequestsTotal.WithLabelValues(c.model, "success").Inc()
	aiRequestDuration.WithLabelValues(c.model).Observe(duration.Seconds())

	usage := UsageInfo{
		PromptTokens:     resp.PromptEvalCount,
		CompletionTokens: resp.EvalCount,
		TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
	}
	observeUsage(c.model, usage)
	log.Info("Ollama response received", zap.Duration("duration", duration), zap.Int("response_length", len(resp.Message.Content)))
	return resp.Message.Content, usage, nil
}

// GenerateTextStream генерирует текст с использованием Ollama в потоковом режиме.
func (c *ollamaClient) GenerateTextStream(ctx context.Context, userID string, systemPrompt string, userInput string, params GenerationParams, chunkHandler func(string) error) (UsageInfo, error) {
	log := c.logger.With(zap.String("user_id", userID), zap.String("model", c.model))
	if strings.TrimSpace(systemPrompt) == "" {
		return UsageInfo{}, fmt.Errorf("%w: system prompt is empty", ErrAIGenerationFailed)
	}

	requestCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	startTime := time.Now()
	var handlerErr error
	var usage UsageInfo

	err := c.client.Chat(requestCtx, c.request(systemPrompt, userInput, params, true), func(resp api.ChatResponse) error {
		if resp.Message.Content != "" && chunkHandler != nil {
			if err := chunkHandler(resp.Message.Content); err != nil {
				handlerErr = err
				return err
			}
		}
		if resp.Done {
			usage.PromptTokens = resp.PromptEvalCount
			usage.CompletionTokens = resp.EvalCount
			usage.TotalTokens = resp.PromptEvalCount + resp.EvalCount
			if resp.DoneReason != "" && resp.DoneReason != "stop" {
				log.Warn("Ollama stream finished with unexpected reason", zap.String("done_reason", resp.DoneReason))
			}
		}
		return nil
	})
	duration := time.Since(startTime)

	if handlerErr != nil {
		log.Info("Stream consumer stopped, aborting Ollama stream", zap.Error(handlerErr))
		aiRequestsTotal.WithLabelValues(c.model, "aborted").Inc()
		return usage, handlerErr
	}
	if err != nil {
		log.Error("Ollama stream failed", zap.Duration("duration", duration), zap.Error(err))
		aiRequestsTotal.WithLabelValues(c.model, "error_stream").Inc()
		return UsageInfo{}, fmt.Errorf("%w: %w", ErrAIGenerationFailed, err)
	}

	aiRequestsTotal.WithLabelValues(c.model, "success_stream").Inc()
	aiRequestDuration.WithLabelValues(c.model).Observe(duration.Seconds())
	observeUsage(c.model, usage)
	log.Info("Ollama stream finished", zap.Duration("duration", duration))
	return usage, nil
}
