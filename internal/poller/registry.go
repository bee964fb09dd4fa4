package poller

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrRegistryFull - достигнут лимит одновременных сессий, новую сессию запустить нельзя.
var ErrRegistryFull = errors.New("poll registry is full")

// session - одна активная сессия опроса, разделяемая подписчиками.
type session struct {
	done        chan struct{}
	cancel      context.CancelFunc
	subscribers int
	outcome     Outcome
	err         error
}

// Registry хранит по одной сессии опроса на taskID. Повторные вызовы
// Watch для того же taskID подключаются к уже идущей сессии вместо
// запуска нового опроса.
type Registry struct {
	poller      *Poller
	logger      *zap.Logger
	maxSessions int // 0 - без ограничения
	mu          sync.Mutex
	sessions    map[string]*session
}

// RegistryOption настраивает Registry.
type RegistryOption func(*Registry)

// WithMaxSessions ограничивает число одновременных сессий опроса.
// Подключение к уже идущей сессии лимитом не ограничивается.
func WithMaxSessions(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.maxSessions = n
		}
	}
}

// NewRegistry создает реестр поверх poller.
func NewRegistry(poller *Poller, logger *zap.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		poller:   poller,
		logger:   logger.Named("PollRegistry"),
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Watch ждет результат опроса задачи taskID.
// Первый вызов запускает сессию, последующие подключаются к ней.
// Если ctx подписчика отменен, он отключается и получает ctx.Err();
// с уходом последнего подписчика сессия отменяется и удаляется.
// fetcher используется только при запуске новой сессии.
func (r *Registry) Watch(ctx context.Context, taskID string, fetcher StatusFetcher) (Outcome, error) {
	if taskID == "" || fetcher == nil {
		return Outcome{}, ErrInvalidTask
	}
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	s, err := r.attach(ctx, taskID, fetcher)
	if err != nil {
		return Outcome{}, err
	}

	select {
	case <-s.done:
		return s.outcome, s.err
	case <-ctx.Done():
		r.detach(taskID, s)
		return Outcome{}, ctx.Err()
	}
}

// Active возвращает количество активных сессий.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close отменяет все активные сессии. Ожидающие подписчики получат context.Canceled.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for taskID, s := range r.sessions {
		s.cancel()
		r.remove(taskID, s)
	}
}

func (r *Registry) attach(ctx context.Context, taskID string, fetcher StatusFetcher) (*session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[taskID]; ok {
		s.subscribers++
		r.logger.Debug("Attached to existing poll session",
			zap.String("task_id", taskID), zap.Int("subscribers", s.subscribers))
		return s, nil
	}
	if r.maxSessions > 0 && len(r.sessions) >= r.maxSessions {
		r.logger.Warn("Poll session limit reached", zap.String("task_id", taskID), zap.Int("max_sessions", r.maxSessions))
		return nil, ErrRegistryFull
	}

	// Сессия не должна зависеть от отмены ctx первого подписчика, только от реестра.
	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &session{
		done:        make(chan struct{}),
		cancel:      cancel,
		subscribers: 1,
	}
	r.sessions[taskID] = s
	activeSessions.Inc()
	r.logger.Debug("Started poll session", zap.String("task_id", taskID))

	go r.run(sessionCtx, taskID, fetcher, s)
	return s, nil
}

func (r *Registry) run(ctx context.Context, taskID string, fetcher StatusFetcher, s *session) {
	defer s.cancel()
	outcome, err := r.poller.Poll(ctx, taskID, fetcher)

	r.mu.Lock()
	r.remove(taskID, s)
	s.outcome, s.err = outcome, err
	r.mu.Unlock()

	close(s.done)
}

func (r *Registry) detach(taskID string, s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s.subscribers--
	if s.subscribers > 0 {
		return
	}
	r.logger.Debug("Last subscriber detached, canceling poll session", zap.String("task_id", taskID))
	s.cancel()
	r.remove(taskID, s)
}

// remove удаляет s из реестра, если под taskID все еще числится именно она.
// Вызывается под r.mu.
func (r *Registry) remove(taskID string, s *session) {
	if cur, ok := r.sessions[taskID]; ok && cur == s {
		delete(r.sessions, taskID)
		activeSessions.Dec()
	}
}
