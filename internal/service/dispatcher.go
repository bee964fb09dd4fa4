package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"story-server/internal/messaging"
)

// ErrDispatcherClosed - диспетчер остановлен и новые задачи не принимает.
var ErrDispatcherClosed = errors.New("illustration dispatcher is closed")

// InProcessDispatcher выполняет задачи иллюстрирования в горутинах текущего процесса.
// Задачи не зависят от контекста HTTP запроса: они живут до завершения
// или до вызова Shutdown.
type InProcessDispatcher struct {
	illustrator *Illustrator
	logger      *zap.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
}

// NewInProcessDispatcher создает диспетчер поверх illustrator.
func NewInProcessDispatcher(illustrator *Illustrator, logger *zap.Logger) *InProcessDispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &InProcessDispatcher{
		illustrator: illustrator,
		logger:      logger.Named("InProcessDispatcher"),
		baseCtx:     ctx,
		cancel:      cancel,
	}
}

// Dispatch запускает задачу в фоне и сразу возвращает управление.
func (d *InProcessDispatcher) Dispatch(_ context.Context, job IllustrationJob) error {
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.wg.Add(1)
	d.mu.Unlock()

	dispatchInFlight.Inc()
	go func() {
		defer d.wg.Done()
		defer dispatchInFlight.Dec()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("Illustration job panicked", zap.String("job_id", job.JobID), zap.Any("panic", r))
			}
		}()
		if _, err := d.illustrator.Illustrate(d.baseCtx, job); err != nil {
			d.logger.Warn("Illustration job aborted", zap.String("job_id", job.JobID), zap.Error(err))
			if d.baseCtx.Err() != nil {
				saveCtx, cancel := context.WithTimeout(context.WithoutCancel(d.baseCtx), saveTimeout)
				d.illustrator.SaveWithoutIllustration(saveCtx, job, "server is shutting down")
				cancel()
			}
		}
	}()
	return nil
}

// Shutdown перестает принимать задачи и ждет завершения запущенных.
// Если ctx истекает раньше, оставшиеся задачи отменяются, а их истории
// сохраняются без иллюстрации.
func (d *InProcessDispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.logger.Warn("Shutdown deadline reached, canceling running illustration jobs")
		d.cancel()
		<-done
		return ctx.Err()
	}
}

// QueueDispatcher отправляет задачи иллюстрирования в очередь воркеру.
type QueueDispatcher struct {
	publisher messaging.Publisher
	logger    *zap.Logger
}

// NewQueueDispatcher создает диспетчер, публикующий задачи через publisher.
func NewQueueDispatcher(publisher messaging.Publisher, logger *zap.Logger) *QueueDispatcher {
	return &QueueDispatcher{publisher: publisher, logger: logger.Named("QueueDispatcher")}
}

const (
	publishTimeout = 5 * time.Second
	saveTimeout    = 5 * time.Second
)

// Dispatch публикует задачу. Публикация не прерывается отменой запроса.
func (d *QueueDispatcher) Dispatch(ctx context.Context, job IllustrationJob) error {
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	payload := messaging.IllustrationTaskPayload{
		JobID:    job.JobID,
		Story:    job.Story,
		UserID:   job.Owner.UserID,
		ClientID: job.Owner.ClientID,
	}

	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := d.publisher.Publish(publishCtx, payload, job.JobID); err != nil {
		d.logger.Error("Failed to publish illustration task", zap.String("job_id", job.JobID), zap.Error(err))
		return err
	}
	d.logger.Info("Illustration task published", zap.String("job_id", job.JobID), zap.String("story_id", job.Story.ID))
	return nil
}
