package worker

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"story-server/internal/messaging"
	"story-server/internal/service"
)

var (
	tasksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "story_worker_tasks_processed_total",
			Help: "Total number of illustration tasks processed by the worker.",
		},
		[]string{"status"}, // ready, failed, timed_out, requeued, error_unmarshal
	)
	taskDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "story_worker_task_duration_seconds",
		Help:    "Duration of illustration task processing in the worker.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 9),
	})
)

// Illustrator - то, что воркер вызывает для каждой задачи.
type Illustrator interface {
	Illustrate(ctx context.Context, job service.IllustrationJob) (service.IllustrationResult, error)
}

// Handler обрабатывает задачи иллюстрирования из очереди.
type Handler struct {
	logger      *zap.Logger
	illustrator Illustrator
	pusher      *push.Pusher // nil, если Pushgateway не настроен
}

// NewHandler создает новый экземпляр Handler.
func NewHandler(logger *zap.Logger, illustrator Illustrator, pushGatewayURL string) *Handler {
	h := &Handler{
		logger:      logger.Named("WorkerHandler"),
		illustrator: illustrator,
	}
	if pushGatewayURL != "" {
		hostname, _ := os.Hostname()
		h.pusher = push.New(pushGatewayURL, "story-illustration-worker").
			Grouping("instance", hostname).
			Gatherer(prometheus.DefaultGatherer)
		logger.Info("Prometheus Pusher initialized", zap.String("url", pushGatewayURL), zap.String("instance", hostname))
	}
	return h
}

// HandleDelivery обрабатывает одно сообщение с IllustrationTaskPayload.
// Возвращает true, если сообщение нужно подтвердить (ack).
// Невалидное сообщение подтверждается и отбрасывается, иначе оно будет возвращаться в очередь бесконечно.
// Если обработку прервала остановка воркера, сообщение возвращается в очередь.
func (h *Handler) HandleDelivery(ctx context.Context, msg amqp091.Delivery) bool {
	defer h.pushMetrics()

	var task messaging.IllustrationTaskPayload
	if err := json.Unmarshal(msg.Body, &task); err != nil || task.Story.ID == "" {
		if err == nil {
			err = errors.New("story id is empty")
		}
		h.logger.Error("Failed to decode illustration task, dropping message",
			zap.Error(err),
			zap.String("correlation_id", msg.CorrelationId),
			zap.ByteString("body", msg.Body))
		tasksProcessed.WithLabelValues("error_unmarshal").Inc()
		return true
	}

	log := h.logger.With(
		zap.String("job_id", task.JobID),
		zap.String("story_id", task.Story.ID),
		zap.String("correlation_id", msg.CorrelationId))
	log.Info("Received illustration task")

	start := time.Now()
	job := service.IllustrationJob{JobID: task.JobID, Story: task.Story, Owner: task.Owner()}
	result, err := h.illustrator.Illustrate(ctx, job)
	taskDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		log.Warn("Illustration task interrupted, requeueing", zap.Error(err))
		tasksProcessed.WithLabelValues("requeued").Inc()
		return false
	}

	tasksProcessed.WithLabelValues(string(result.Outcome.Kind)).Inc()
	log.Info("Illustration task processed",
		zap.String("outcome", string(result.Outcome.Kind)),
		zap.String("task_id", result.TaskID))
	return true
}

func (h *Handler) pushMetrics() {
	if h.pusher == nil {
		return
	}
	if err := h.pusher.Push(); err != nil {
		h.logger.Error("Failed to push metrics to Pushgateway", zap.Error(err))
	} else {
		h.logger.Debug("Metrics pushed to Pushgateway")
	}
}
