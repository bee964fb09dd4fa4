package poller

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Значения по умолчанию: 90 попыток с интервалом 2с, т.е. ~3 минуты.
const (
	DefaultMaxAttempts = 90
	DefaultInterval    = 2 * time.Second
)

// ErrInvalidTask возвращается, если нечего опрашивать.
var ErrInvalidTask = errors.New("invalid poll task")

// Config - неизменяемые параметры поллера.
type Config struct {
	MaxAttempts int
	Interval    time.Duration
}

// DefaultConfig возвращает конфигурацию по умолчанию.
func DefaultConfig() Config {
	return Config{MaxAttempts: DefaultMaxAttempts, Interval: DefaultInterval}
}

func (c Config) normalized() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	return c
}

// Poller опрашивает статус внешней задачи с фиксированным интервалом,
// пока задача не завершится или не закончится бюджет попыток.
// Состояние сессии живет только внутри вызова Poll, поэтому один Poller
// можно безопасно использовать из нескольких горутин.
type Poller struct {
	cfg    Config
	logger *zap.Logger
}

// New создает Poller. Неположительные значения в cfg заменяются значениями по умолчанию.
func New(cfg Config, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		cfg:    cfg.normalized(),
		logger: logger.Named("Poller"),
	}
}

// Config возвращает действующую конфигурацию.
func (p *Poller) Config() Config {
	return p.cfg
}

// Poll выполняет одну сессию опроса задачи taskID.
//
// Перед каждой попыткой (включая первую) выдерживается пауза Interval.
// Ошибки fetcher считаются временными и не прерывают опрос.
// Возвращает ровно один Outcome либо, при отмене ctx, пустой Outcome и ctx.Err().
func (p *Poller) Poll(ctx context.Context, taskID string, fetcher StatusFetcher) (Outcome, error) {
	if taskID == "" || fetcher == nil {
		return Outcome{}, ErrInvalidTask
	}
	log := p.logger.With(zap.String("task_id", taskID))
	log.Debug("Poll session started", zap.Int("max_attempts", p.cfg.MaxAttempts), zap.Duration("interval", p.cfg.Interval))

	timer := time.NewTimer(p.cfg.Interval)
	defer timer.Stop()

	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			timer.Reset(p.cfg.Interval)
		}
		if err := ctx.Err(); err != nil {
			return p.canceled(log, attempt-1, err)
		}
		select {
		case <-ctx.Done():
			return p.canceled(log, attempt-1, ctx.Err())
		case <-timer.C:
		}

		rec, err := fetcher.FetchStatus(ctx, taskID)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return p.canceled(log, attempt, ctxErr)
		}
		if err != nil {
			fetchErrorsTotal.Inc()
			log.Warn("Status fetch failed, will retry", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		status := ParseStatus(rec.Status)
		switch status {
		case StatusSucceeded:
			if rec.ArtifactURL == "" {
				log.Warn("Task succeeded without artifact", zap.Int("attempt", attempt))
				return p.finish(log, failed(ReasonSucceededWithoutArtifact, rec.Status, attempt)), nil
			}
			return p.finish(log, ready(rec.ArtifactURL, rec.Status, attempt)), nil
		case StatusFailed, StatusCanceled:
			log.Warn("Task reported terminal failure",
				zap.String("status", rec.Status),
				zap.String("message", rec.Message),
				zap.Int("attempt", attempt))
			return p.finish(log, failed(string(status), rec.Status, attempt)), nil
		default:
			log.Debug("Task still in progress", zap.String("status", rec.Status), zap.Int("attempt", attempt))
		}
	}

	return p.finish(log, timedOut(p.cfg.MaxAttempts)), nil
}

func (p *Poller) finish(log *zap.Logger, out Outcome) Outcome {
	sessionsTotal.WithLabelValues(string(out.Kind)).Inc()
	sessionAttempts.Observe(float64(out.Attempts))
	log.Info("Poll session finished", zap.String("outcome", string(out.Kind)), zap.Int("attempts", out.Attempts))
	return out
}

func (p *Poller) canceled(log *zap.Logger, attempts int, err error) (Outcome, error) {
	sessionsTotal.WithLabelValues("canceled").Inc()
	log.Info("Poll session canceled", zap.Int("attempts", attempts), zap.Error(err))
	return Outcome{}, err
}
