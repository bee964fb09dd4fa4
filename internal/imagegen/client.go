package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"story-server/internal/config"
	"story-server/internal/poller"
)

var (
	// ErrSubmitFailed - провайдер не принял задачу генерации.
	ErrSubmitFailed = errors.New("image task submission failed")
	// ErrStatusFailed - не удалось получить статус задачи (для поллера это временная ошибка).
	ErrStatusFailed = errors.New("image task status fetch failed")
)

const (
	submitPath  = "/services/aigc/text2image/image-synthesis"
	tasksPath   = "/tasks/"
	asyncHeader = "X-DashScope-Async"
	maxBodyLog  = 2048

	// maxResponseBytes ограничивает размер читаемого ответа провайдера.
	maxResponseBytes = 1 << 20
)

// ImageRequest - параметры одной задачи генерации.
type ImageRequest struct {
	Prompt string
	Size   string // Пусто - размер из конфигурации
	N      int    // 0 - количество из конфигурации
}

// SubmitResult - ответ провайдера на постановку задачи.
type SubmitResult struct {
	TaskID string `json:"taskId"`
	Status string `json:"status"`
}

// Client - клиент асинхронного API генерации изображений (DashScope text2image).
// Реализует poller.StatusFetcher.
type Client struct {
	logger     *zap.Logger
	cfg        config.ImageConfig
	httpClient *http.Client
	baseURL    string
}

var _ poller.StatusFetcher = (*Client)(nil)

// NewClient создает клиент. httpClient может быть nil, тогда создается клиент с cfg.Timeout.
func NewClient(cfg config.ImageConfig, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("image API base URL (IMAGE_BASE_URL) is not configured")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid IMAGE_BASE_URL: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Count <= 0 {
		cfg.Count = 1
	}
	return &Client{
		logger:     logger.Named("ImageClient"),
		cfg:        cfg,
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
	}, nil
}

// Model возвращает имя модели генерации.
func (c *Client) Model() string {
	return c.cfg.Model
}

type submitRequest struct {
	Model      string           `json:"model"`
	Input      submitInput      `json:"input"`
	Parameters submitParameters `json:"parameters"`
}

type submitInput struct {
	Prompt string `json:"prompt"`
}

type submitParameters struct {
	Size         string `json:"size,omitempty"`
	N            int    `json:"n"`
	PromptExtend bool   `json:"prompt_extend"`
	Watermark    bool   `json:"watermark"`
}

// taskResponse покрывает ответы и постановки задачи, и запроса статуса.
type taskResponse struct {
	RequestID string     `json:"request_id"`
	Code      string     `json:"code"`
	Message   string     `json:"message"`
	Output    taskOutput `json:"output"`
}

type taskOutput struct {
	TaskID     string       `json:"task_id"`
	TaskStatus string       `json:"task_status"`
	Code       string       `json:"code"`
	Message    string       `json:"message"`
	Results    []taskResult `json:"results"`
}

type taskResult struct {
	URL     string `json:"url"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Submit ставит задачу генерации и сразу возвращает ее идентификатор.
func (c *Client) Submit(ctx context.Context, req ImageRequest) (SubmitResult, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return SubmitResult{}, fmt.Errorf("%w: empty prompt", ErrSubmitFailed)
	}
	size := req.Size
	if size == "" {
		size = c.cfg.Size
	}
	n := req.N
	if n <= 0 {
		n = c.cfg.Count
	}

	payload := submitRequest{
		Model: c.cfg.Model,
		Input: submitInput{Prompt: req.Prompt},
		Parameters: submitParameters{
			Size:         size,
			N:            n,
			PromptExtend: true,
			Watermark:    true,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("%w: failed to marshal request: %v", ErrSubmitFailed, err)
	}

	endpoint := c.baseURL + submitPath
	log := c.logger.With(zap.String("url", endpoint), zap.String("model", c.cfg.Model))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return SubmitResult{}, fmt.Errorf("%w: failed to create request: %v", ErrSubmitFailed, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(asyncHeader, "enable")
	c.authorize(httpReq)

	start := time.Now()
	resp, status, err := c.do(httpReq)
	requestDuration.WithLabelValues("submit").Observe(time.Since(start).Seconds())
	if err != nil {
		requestsTotal.WithLabelValues("submit", "error").Inc()
		log.Error("Image task submission request failed", zap.Error(err))
		return SubmitResult{}, fmt.Errorf("%w: %w", ErrSubmitFailed, err)
	}
	if status < 200 || status >= 300 {
		requestsTotal.WithLabelValues("submit", "error").Inc()
		log.Error("Image API rejected task",
			zap.Int("status_code", status),
			zap.String("code", resp.Code),
			zap.String("message", resp.Message))
		return SubmitResult{}, fmt.Errorf("%w: HTTP %d: %s", ErrSubmitFailed, status, describe(resp))
	}
	if resp.Output.TaskID == "" {
		requestsTotal.WithLabelValues("submit", "error").Inc()
		log.Error("Image API response has no task id", zap.String("request_id", resp.RequestID))
		return SubmitResult{}, fmt.Errorf("%w: response has no task id", ErrSubmitFailed)
	}

	requestsTotal.WithLabelValues("submit", "ok").Inc()
	log.Info("Image task submitted",
		zap.String("task_id", resp.Output.TaskID),
		zap.String("task_status", resp.Output.TaskStatus))
	return SubmitResult{TaskID: resp.Output.TaskID, Status: resp.Output.TaskStatus}, nil
}

// FetchStatus запрашивает текущий статус задачи.
func (c *Client) FetchStatus(ctx context.Context, taskID string) (poller.StatusRecord, error) {
	endpoint := c.baseURL + tasksPath + url.PathEscape(taskID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return poller.StatusRecord{}, fmt.Errorf("%w: failed to create request: %v", ErrStatusFailed, err)
	}
	c.authorize(httpReq)

	start := time.Now()
	resp, status, err := c.do(httpReq)
	requestDuration.WithLabelValues("status").Observe(time.Since(start).Seconds())
	if err != nil {
		requestsTotal.WithLabelValues("status", "error").Inc()
		return poller.StatusRecord{}, fmt.Errorf("%w: %w", ErrStatusFailed, err)
	}
	if status < 200 || status >= 300 {
		requestsTotal.WithLabelValues("status", "error").Inc()
		return poller.StatusRecord{}, fmt.Errorf("%w: HTTP %d: %s", ErrStatusFailed, status, describe(resp))
	}
	requestsTotal.WithLabelValues("status", "ok").Inc()

	rec := poller.StatusRecord{Status: resp.Output.TaskStatus}
	for _, r := range resp.Output.Results {
		if r.URL != "" {
			rec.ArtifactURL = r.URL
			break
		}
	}
	rec.Message = firstNonEmpty(resp.Output.Message, resp.Message)
	if rec.Message == "" {
		for _, r := range resp.Output.Results {
			if r.Message != "" {
				rec.Message = r.Message
				break
			}
		}
	}

	c.logger.Debug("Image task status fetched",
		zap.String("task_id", taskID),
		zap.String("task_status", rec.Status),
		zap.Bool("has_artifact", rec.ArtifactURL != ""))
	return rec, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
}

// do выполняет запрос и разбирает JSON-ответ. Тело ответа с ошибкой
// разбирается по возможности, чтобы сохранить code/message провайдера.
func (c *Client) do(req *http.Request) (taskResponse, int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return taskResponse{}, 0, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return taskResponse{}, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(bodyBytes) > maxResponseBytes {
		return taskResponse{}, resp.StatusCode, fmt.Errorf("response body exceeds %d bytes", maxResponseBytes)
	}

	var parsed taskResponse
	if len(bodyBytes) > 0 {
		if err := json.Unmarshal(bodyBytes, &parsed); err != nil {
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return taskResponse{}, resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
			}
			parsed.Message = truncate(string(bodyBytes), maxBodyLog)
		}
	}
	return parsed, resp.StatusCode, nil
}

func describe(resp taskResponse) string {
	switch {
	case resp.Code != "" && resp.Message != "":
		return resp.Code + ": " + resp.Message
	case resp.Message != "":
		return resp.Message
	case resp.Code != "":
		return resp.Code
	default:
		return "no details"
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
