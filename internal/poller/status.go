package poller

import (
	"context"
	"strings"
)

// Status - нормализованный статус внешней задачи генерации.
type Status string

// Возможные статусы задачи
const (
	StatusPending   Status = "Pending"
	StatusRunning   Status = "Running"
	StatusSucceeded Status = "Succeeded"
	StatusFailed    Status = "Failed"
	StatusCanceled  Status = "Canceled"
	StatusUnknown   Status = "Unknown"
)

// ParseStatus переводит строку провайдера в Status без учета регистра.
// Любой нераспознанный статус считается Unknown (т.е. "задача еще выполняется").
func ParseStatus(raw string) Status {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PENDING":
		return StatusPending
	case "RUNNING":
		return StatusRunning
	case "SUCCEEDED":
		return StatusSucceeded
	case "FAILED":
		return StatusFailed
	case "CANCELED", "CANCELLED":
		return StatusCanceled
	default:
		return StatusUnknown
	}
}

// IsTerminal возвращает true, если после этого статуса задача больше не изменится.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// StatusRecord - нормализованный ответ эндпоинта статуса.
type StatusRecord struct {
	Status      string `json:"status"`                // Статус как его вернул провайдер
	ArtifactURL string `json:"artifactUrl,omitempty"` // Есть только у успешной задачи
	Message     string `json:"message,omitempty"`     // Диагностика провайдера, если есть
}

// StatusFetcher запрашивает текущий статус задачи. Сетевые и HTTP ошибки
// возвращаются как error, поллер считает их временными.
type StatusFetcher interface {
	FetchStatus(ctx context.Context, taskID string) (StatusRecord, error)
}

// FetcherFunc позволяет использовать обычную функцию как StatusFetcher.
type FetcherFunc func(ctx context.Context, taskID string) (StatusRecord, error)

// FetchStatus вызывает f(ctx, taskID).
func (f FetcherFunc) FetchStatus(ctx context.Context, taskID string) (StatusRecord, error) {
	return f(ctx, taskID)
}
