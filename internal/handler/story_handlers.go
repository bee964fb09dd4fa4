package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"story-server/internal/model"
	"story-server/internal/repository"
)

type promptRequest struct {
	Prompt string `json:"prompt"`
}

type createStoryRequest struct {
	Theme string `json:"theme"`
}

type updateStoryRequest struct {
	Theme    string  `json:"theme"`
	Title    string  `json:"title"`
	Content  string  `json:"content"`
	ImageURL *string `json:"imageUrl"`
}

// generateText - исходный маршрут: только текст истории, ничего не сохраняется.
func (h *Handler) generateText(c *gin.Context) {
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		c.String(http.StatusBadRequest, "Missing prompt")
		return
	}

	text, err := h.stories.WriteText(c.Request.Context(), ownerFrom(c), req.Prompt)
	if err != nil {
		h.logger.Error("Error in story generation", zap.Error(err))
		c.String(http.StatusInternalServerError, "Error generating story")
		return
	}
	c.JSON(http.StatusOK, gin.H{"story": text})
}

// generateStream отдает текст истории по мере генерации (text/plain, chunked).
// ID созданной истории передается в трейлере X-Story-ID.
func (h *Handler) generateStream(c *gin.Context) {
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		badRequest(c, "Missing prompt")
		return
	}

	started := false
	onChunk := func(chunk string) error {
		if !started {
			c.Header("Content-Type", "text/plain; charset=utf-8")
			c.Header("Cache-Control", "no-cache")
			c.Header("Trailer", "X-Story-ID")
			c.Status(http.StatusOK)
			started = true
		}
		if _, err := c.Writer.WriteString(chunk); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	}

	story, err := h.stories.GenerateStream(c.Request.Context(), ownerFrom(c), req.Prompt, onChunk)
	if err != nil {
		if started {
			h.logger.Warn("Story stream interrupted", zap.String("story_id", story.ID), zap.Error(err))
			c.Abort()
			return
		}
		handleServiceError(c, err)
		return
	}
	if !started {
		// Пустой ответ модели: отдаем пустое тело с корректными заголовками.
		c.Header("Content-Type", "text/plain; charset=utf-8")
		c.Header("Trailer", "X-Story-ID")
		c.Status(http.StatusOK)
	}
	c.Writer.Header().Set("X-Story-ID", story.ID)
}

func (h *Handler) createStory(c *gin.Context) {
	var req createStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Theme) == "" {
		badRequest(c, "Missing theme")
		return
	}

	story, err := h.stories.Generate(c.Request.Context(), ownerFrom(c), req.Theme)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, story)
}

func (h *Handler) listStories(c *gin.Context) {
	limit := repository.DefaultListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	stories, err := h.stories.List(c.Request.Context(), ownerFrom(c), limit)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	if stories == nil {
		stories = []model.Story{}
	}
	c.JSON(http.StatusOK, gin.H{"stories": stories})
}

func (h *Handler) updateStory(c *gin.Context) {
	var req updateStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	story := model.Story{
		ID:       c.Param("id"),
		Theme:    req.Theme,
		Title:    req.Title,
		Content:  req.Content,
		ImageURL: req.ImageURL,
	}

	if err := h.stories.Update(c.Request.Context(), ownerFrom(c), story); err != nil {
		handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) deleteStory(c *gin.Context) {
	err := h.stories.Delete(c.Request.Context(), ownerFrom(c), c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) clearStories(c *gin.Context) {
	if err := h.stories.Clear(c.Request.Context(), ownerFrom(c)); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			c.Status(http.StatusNoContent)
			return
		}
		handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
