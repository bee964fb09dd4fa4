package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"story-server/internal/imagegen"
	"story-server/internal/model"
	"story-server/internal/poller"
)

// StoryService - операции с историями, которые вызывает HTTP слой.
type StoryService interface {
	WriteText(ctx context.Context, owner model.Owner, theme string) (string, error)
	Generate(ctx context.Context, owner model.Owner, theme string) (model.Story, error)
	GenerateStream(ctx context.Context, owner model.Owner, theme string, onChunk func(string) error) (model.Story, error)
	List(ctx context.Context, owner model.Owner, limit int) ([]model.Story, error)
	Update(ctx context.Context, owner model.Owner, story model.Story) error
	Delete(ctx context.Context, owner model.Owner, storyID string) error
	Clear(ctx context.Context, owner model.Owner) error
}

// ImageService - операции генерации изображений.
type ImageService interface {
	GenerateImage(ctx context.Context, theme string) (string, poller.Outcome, error)
	SubmitImage(ctx context.Context, theme string) (imagegen.SubmitResult, error)
	TaskStatus(ctx context.Context, taskID string) (poller.StatusRecord, error)
	WaitTask(ctx context.Context, taskID string) (poller.Outcome, error)
}

// Handler - HTTP API сервера историй.
type Handler struct {
	stories    StoryService
	images     ImageService
	verifier   TokenVerifier // nil - аутентификация отключена
	wsHandler  http.HandlerFunc
	downloader *http.Client
	logger     *zap.Logger
}

// Options - необязательные зависимости Handler.
type Options struct {
	Verifier        TokenVerifier
	WebSocket       http.HandlerFunc
	DownloadTimeout time.Duration
}

// NewHandler создает Handler.
func NewHandler(stories StoryService, images ImageService, opts Options, logger *zap.Logger) *Handler {
	timeout := opts.DownloadTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Handler{
		stories:    stories,
		images:     images,
		verifier:   opts.Verifier,
		wsHandler:  opts.WebSocket,
		downloader: &http.Client{Timeout: timeout},
		logger:     logger.Named("HTTPHandler"),
	}
}

// RegisterRoutes регистрирует все маршруты на router.
func (h *Handler) RegisterRoutes(router gin.IRouter) {
	router.GET("/health", h.health)
	if h.wsHandler != nil {
		router.GET("/ws", gin.WrapF(h.wsHandler))
	}

	api := router.Group("/api", IdentityMiddleware(h.verifier, h.logger))
	{
		api.POST("/generate", h.generateText)
		api.POST("/generate/stream", h.generateStream)

		api.POST("/stories", h.createStory)
		api.GET("/stories", h.listStories)
		api.PUT("/stories/:id", h.updateStory)
		api.DELETE("/stories/:id", h.deleteStory)
		api.DELETE("/stories", h.clearStories)

		api.POST("/image", h.generateImage)
		api.POST("/image/tasks", h.submitImageTask)
		api.GET("/image/tasks/:taskId", h.getImageTask)
		api.GET("/image/tasks/:taskId/wait", h.waitImageTask)

		api.GET("/download-image", h.downloadImage)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
