package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"story-server/internal/imagegen"
	"story-server/internal/model"
	"story-server/internal/poller"
)

var (
	// ErrImageFailed - изображение не получено (явная ошибка провайдера или отказ в постановке задачи).
	ErrImageFailed = errors.New("image generation failed")
	// ErrImageTimeout - бюджет опроса исчерпан, задача у провайдера может быть еще не завершена.
	ErrImageTimeout = errors.New("image generation timed out")
)

// IllustrationJob - задача иллюстрирования готовой истории.
type IllustrationJob struct {
	JobID string      `json:"jobId"`
	Story model.Story `json:"story"`
	Owner model.Owner `json:"owner"`
}

// IllustrationResult - итог иллюстрирования.
type IllustrationResult struct {
	Story   model.Story    // Сохраненная версия истории (с ImageURL при успехе)
	TaskID  string         // ID задачи у провайдера, пусто если постановка не удалась
	Outcome poller.Outcome // Результат опроса
	Notice  *model.Notice  // Уведомление владельцу, nil для анонимной истории
}

// Illustrator генерирует иллюстрацию к истории, дожидается ее и сохраняет историю.
type Illustrator struct {
	images         ImageClient
	registry       *poller.Registry
	stores         Stores
	notifier       Notifier
	promptTemplate string
	logger         *zap.Logger
}

// NewIllustrator создает Illustrator. notifier может быть nil.
func NewIllustrator(
	images ImageClient,
	registry *poller.Registry,
	stores Stores,
	notifier Notifier,
	promptTemplate string,
	logger *zap.Logger,
) *Illustrator {
	return &Illustrator{
		images:         images,
		registry:       registry,
		stores:         stores,
		notifier:       notifier,
		promptTemplate: promptTemplate,
		logger:         logger.Named("Illustrator"),
	}
}

// Illustrate выполняет полный цикл: постановка задачи -> ожидание -> сохранение -> уведомление.
//
// Результат ready сохраняет историю с иллюстрацией. failed и timed_out сохраняют
// историю без иллюстрации и отправляют уведомление. Отказ в постановке задачи
// обрабатывается как failed. При отмене ctx ничего не сохраняется и возвращается ctx.Err().
func (s *Illustrator) Illustrate(ctx context.Context, job IllustrationJob) (IllustrationResult, error) {
	log := s.logger.With(
		zap.String("job_id", job.JobID),
		zap.String("story_id", job.Story.ID),
		zap.String("user_id", job.Owner.UserID),
		zap.String("client_id", job.Owner.ClientID),
	)
	start := time.Now()
	log.Info("Illustration job started")

	taskID, outcome, err := s.generate(ctx, s.promptFor(job.Story))
	if err != nil {
		illustrationsTotal.WithLabelValues("canceled").Inc()
		log.Info("Illustration job canceled, nothing persisted", zap.String("task_id", taskID), zap.Error(err))
		return IllustrationResult{TaskID: taskID}, err
	}

	story := job.Story
	if outcome.Kind == poller.OutcomeReady {
		story = story.WithImage(outcome.ArtifactURL)
	}
	s.persist(ctx, log, job.Owner, story)

	result := IllustrationResult{Story: story, TaskID: taskID, Outcome: outcome}
	if notice := s.noticeFor(job, story, outcome); notice != nil {
		result.Notice = notice
		s.notify(ctx, log, *notice)
	}

	illustrationsTotal.WithLabelValues(string(outcome.Kind)).Inc()
	illustrationDuration.Observe(time.Since(start).Seconds())
	log.Info("Illustration job finished",
		zap.String("task_id", taskID),
		zap.String("outcome", string(outcome.Kind)),
		zap.String("reason", outcome.Reason),
		zap.Int("attempts", outcome.Attempts))
	return result, nil
}

// GenerateImage синхронно генерирует одно изображение по теме и возвращает его URL.
func (s *Illustrator) GenerateImage(ctx context.Context, theme string) (string, poller.Outcome, error) {
	if strings.TrimSpace(theme) == "" {
		return "", poller.Outcome{}, fmt.Errorf("%w: prompt is required", model.ErrInvalidInput)
	}
	_, outcome, err := s.generate(ctx, imagegen.BuildIllustrationPrompt(s.promptTemplate, theme))
	if err != nil {
		return "", outcome, err
	}
	switch outcome.Kind {
	case poller.OutcomeReady:
		return outcome.ArtifactURL, outcome, nil
	case poller.OutcomeTimedOut:
		return "", outcome, fmt.Errorf("%w after %d attempts", ErrImageTimeout, outcome.Attempts)
	default:
		return "", outcome, fmt.Errorf("%w: %s", ErrImageFailed, outcome.Reason)
	}
}

// SubmitImage ставит задачу генерации по теме и сразу возвращает ее ID.
func (s *Illustrator) SubmitImage(ctx context.Context, theme string) (imagegen.SubmitResult, error) {
	if strings.TrimSpace(theme) == "" {
		return imagegen.SubmitResult{}, fmt.Errorf("%w: prompt is required", model.ErrInvalidInput)
	}
	return s.images.Submit(ctx, imagegen.ImageRequest{Prompt: imagegen.BuildIllustrationPrompt(s.promptTemplate, theme)})
}

// TaskStatus возвращает текущий статус задачи провайдера (один запрос, без опроса).
func (s *Illustrator) TaskStatus(ctx context.Context, taskID string) (poller.StatusRecord, error) {
	if taskID == "" {
		return poller.StatusRecord{}, fmt.Errorf("%w: task id is required", model.ErrInvalidInput)
	}
	return s.images.FetchStatus(ctx, taskID)
}

// WaitTask подключается к сессии опроса задачи taskID (или запускает ее).
func (s *Illustrator) WaitTask(ctx context.Context, taskID string) (poller.Outcome, error) {
	if taskID == "" {
		return poller.Outcome{}, fmt.Errorf("%w: task id is required", model.ErrInvalidInput)
	}
	return s.registry.Watch(ctx, taskID, s.images)
}

// generate ставит задачу и дожидается результата. Ошибка возвращается только при отмене ctx.
func (s *Illustrator) generate(ctx context.Context, prompt string) (string, poller.Outcome, error) {
	submitted, err := s.images.Submit(ctx, imagegen.ImageRequest{Prompt: prompt})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", poller.Outcome{}, ctxErr
		}
		s.logger.Warn("Image task submission failed, treating as failed outcome", zap.Error(err))
		return "", poller.Outcome{Kind: poller.OutcomeFailed, Reason: err.Error()}, nil
	}

	outcome, err := s.registry.Watch(ctx, submitted.TaskID, s.images)
	if errors.Is(err, poller.ErrRegistryFull) {
		s.logger.Warn("Poll registry is full, treating task as failed", zap.String("task_id", submitted.TaskID))
		return submitted.TaskID, poller.Outcome{Kind: poller.OutcomeFailed, Reason: err.Error()}, nil
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return submitted.TaskID, poller.Outcome{}, ctxErr
		}
		// Сессию отменили без участия вызывающего (например, остановка реестра)
		return submitted.TaskID, poller.Outcome{}, err
	}
	return submitted.TaskID, outcome, nil
}

func (s *Illustrator) promptFor(story model.Story) string {
	subject := story.Theme
	if strings.TrimSpace(subject) == "" {
		subject = story.Title
	}
	return imagegen.BuildIllustrationPrompt(s.promptTemplate, subject)
}

func (s *Illustrator) persist(ctx context.Context, log *zap.Logger, owner model.Owner, story model.Story) {
	saveStory(ctx, s.stores, log, owner, story)
}

// SaveWithoutIllustration сохраняет текст истории без иллюстрации и уведомляет владельца.
// Вызывается, когда задачу пришлось прервать до получения результата.
func (s *Illustrator) SaveWithoutIllustration(ctx context.Context, job IllustrationJob, reason string) {
	log := s.logger.With(zap.String("job_id", job.JobID), zap.String("story_id", job.Story.ID))
	s.persist(ctx, log, job.Owner, job.Story)
	illustrationsTotal.WithLabelValues("interrupted").Inc()
	if !job.Owner.IsAnonymous() {
		s.notify(ctx, log, textOnlyNotice(job.JobID, job.Owner, job.Story, reason))
	}
	log.Info("Story saved without illustration", zap.String("reason", reason))
}

func (s *Illustrator) noticeFor(job IllustrationJob, story model.Story, outcome poller.Outcome) *model.Notice {
	notice := model.Notice{Owner: job.Owner, StoryID: story.ID, JobID: job.JobID}
	switch outcome.Kind {
	case poller.OutcomeReady:
		notice.Kind = model.NoticeIllustrationReady
		notice.ImageURL = outcome.ArtifactURL
		notice.Message = "Story saved with illustration"
	case poller.OutcomeTimedOut:
		notice.Kind = model.NoticeIllustrationPending
		notice.Message = "Illustration is taking longer than expected; story saved without it"
	default:
		notice.Kind = model.NoticeIllustrationFailed
		notice.Message = "Illustration failed; story saved without it"
		if outcome.Reason != "" {
			notice.Message += ": " + outcome.Reason
		}
	}
	if job.Owner.IsAnonymous() {
		return nil
	}
	return &notice
}

func (s *Illustrator) notify(ctx context.Context, log *zap.Logger, notice model.Notice) {
	deliver(ctx, s.notifier, log, notice)
}
