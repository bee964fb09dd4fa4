package storygen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"story-server/internal/config"
)

// openAIClient реализует AIClient через OpenAI-совместимый API
// (в том числе compatible-mode DashScope).
type openAIClient struct {
	client      *openaigo.Client
	model       string
	logger      *zap.Logger
	countTokens func(string) int
}

func newOpenAIClient(cfg config.AIConfig, httpClient *http.Client, logger *zap.Logger) *openAIClient {
	openaiConfig := openaigo.DefaultConfig(cfg.APIKey)
	openaiConfig.BaseURL = cfg.BaseURL
	openaiConfig.HTTPClient = httpClient
	return &openAIClient{
		client:      openaigo.NewClientWithConfig(openaiConfig),
		model:       cfg.Model,
		logger:      logger.Named("OpenAIClient"),
		countTokens: newTokenCounter(cfg.Model).Count,
	}
}

func (c *openAIClient) messages(systemPrompt, userInput string) []openaigo.ChatCompletionMessage {
	messages := []openaigo.ChatCompletionMessage{
		{Role: openaigo.ChatMessageRoleSystem, Content: systemPrompt},
	}
	if userInput != "" {
		messages = append(messages, openaigo.ChatCompletionMessage{
			Role:    openaigo.ChatMessageRoleUser,
			Content: userInput,
		})
	}
	return messages
}

// GenerateText генерирует текст за один запрос.
func (c *openAIClient) GenerateText(ctx context.Context, userID string, systemPrompt string, userInput string, params GenerationParams) (string, UsageInfo, error) {
	log := c.logger.With(zap.String("user_id", userID), zap.String("model", c.model))
	if strings.TrimSpace(systemPrompt) == "" {
		aiRequestsTotal.WithLabelValues(c.model, "error").Inc()
		return "", UsageInfo{}, fmt.Errorf("%w: system prompt is empty", ErrAIGenerationFailed)
	}

	log.Debug("Sending request to AI",
		zap.Int("system_prompt_bytes", len(systemPrompt)),
		zap.Int("user_input_bytes", len(userInput)))

	startTime := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openaigo.ChatCompletionRequest{
		Model:       c.model,
		Messages:    c.messages(systemPrompt, userInput),
		Temperature: float32Val(params.Temperature),
		MaxTokens:   intVal(params.MaxTokens),
		TopP:        float32Val(params.TopP),
	})
	duration := time.Since(startTime)

	if err != nil {
		log.Error("AI API request failed", zap.Duration("duration", duration), zap.Error(err))
		aiRequestsTotal.WithLabelValues(c.model, "error").Inc()
		return "", UsageInfo{}, fmt.Errorf("%w: %w", ErrAIGenerationFailed, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		log.Error("AI API returned empty response", zap.Duration("duration", duration))
		aiRequestsTotal.WithLabelValues(c.model, "error_empty_response").Inc()
		return "", UsageInfo{}, fmt.Errorf("%w: empty response", ErrAIGenerationFailed)
	}

	aiRequestsTotal.WithLabelValues(c.model, "success").Inc()
	aiRequestDuration.WithLabelValues(c.model).Observe(duration.Seconds())

	usage := UsageInfo{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	observeUsage(c.model, usage)

	text := resp.Choices[0].Message.Content
	log.Info("AI response received",
		zap.Duration("duration", duration),
		zap.Int("response_length", len(text)),
		zap.Int("total_tokens", usage.TotalTokens))
	return text, usage, nil
}

// GenerateTextStream генерирует текст в потоковом режиме.
func (c *openAIClient) GenerateTextStream(ctx context.Context, userID string, systemPrompt string, userInput string, params GenerationParams, chunkHandler func(string) error) (UsageInfo, error) {
	log := c.logger.With(zap.String("user_id", userID), zap.String("model", c.model))
	if strings.TrimSpace(systemPrompt) == "" {
		return UsageInfo{}, fmt.Errorf("%w: system prompt is empty", ErrAIGenerationFailed)
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, openaigo.ChatCompletionRequest{
		Model:         c.model,
		Messages:      c.messages(systemPrompt, userInput),
		Stream:        true,
		StreamOptions: &openaigo.StreamOptions{IncludeUsage: true},
		Temperature:   float32Val(params.Temperature),
		MaxTokens:     intVal(params.MaxTokens),
		TopP:          float32Val(params.TopP),
	})
	if err != nil {
		log.Error("Failed to open AI stream", zap.Error(err))
		aiRequestsTotal.WithLabelValues(c.model, "error_stream_init").Inc()
		return UsageInfo{}, fmt.Errorf("%w: failed to open stream: %w", ErrAIGenerationFailed, err)
	}
	defer stream.Close()

	startTime := time.Now()
	var finalUsage *openaigo.Usage
	var text strings.Builder

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Warn("AI stream read failed", zap.Int("received_bytes", text.Len()), zap.Error(err))
			aiRequestsTotal.WithLabelValues(c.model, "error_stream_read").Inc()
			return UsageInfo{}, fmt.Errorf("%w: stream read failed: %w", ErrAIGenerationFailed, err)
		}

		if response.Usage != nil && response.Usage.TotalTokens > 0 {
			finalUsage = response.Usage
		}
		if len(response.Choices) == 0 {
			continue
		}
		chunk := response.Choices[0].Delta.Content
		if chunk == "" {
			continue
		}
		text.WriteString(chunk)
		if chunkHandler != nil {
			if err := chunkHandler(chunk); err != nil {
				log.Info("Stream consumer stopped, aborting AI stream", zap.Error(err))
				aiRequestsTotal.WithLabelValues(c.model, "aborted").Inc()
				return c.estimateUsage(systemPrompt, userInput, text.String()), err
			}
		}
	}

	duration := time.Since(startTime)
	aiRequestDuration.WithLabelValues(c.model).Observe(duration.Seconds())

	var usage UsageInfo
	if finalUsage != nil {
		usage = UsageInfo{
			PromptTokens:     finalUsage.PromptTokens,
			CompletionTokens: finalUsage.CompletionTokens,
			TotalTokens:      finalUsage.TotalTokens,
		}
		aiRequestsTotal.WithLabelValues(c.model, "success_stream").Inc()
	} else {
		log.Warn("Final usage block not received in stream, using estimated token counts")
		usage = c.estimateUsage(systemPrompt, userInput, text.String())
		aiRequestsTotal.WithLabelValues(c.model, "success_stream_estimated").Inc()
	}
	observeUsage(c.model, usage)

	log.Info("AI stream finished", zap.Duration("duration", duration), zap.Int("response_length", text.Len()))
	return usage, nil
}

func (c *openAIClient) estimateUsage(systemPrompt, userInput, completion string) UsageInfo {
	prompt := c.countTokens(systemPrompt) + c.countTokens(userInput)
	completionTokens := c.countTokens(completion)
	return UsageInfo{
		PromptTokens:     prompt,
		CompletionTokens: completionTokens,
		TotalTokens:      prompt + completionTokens,
		Estimated:        true,
	}
}
