package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"story-server/internal/poller"
	"story-server/internal/service"
)

var httpURLPattern = regexp.MustCompile(`(?i)^https?://`)

type imageRequest struct {
	Prompt string `json:"prompt"`
	Story  string `json:"story"`
}

type taskStatusResponse struct {
	TaskID      string        `json:"taskId"`
	Status      poller.Status `json:"status"`
	RawStatus   string        `json:"rawStatus"`
	ArtifactURL string        `json:"artifactUrl,omitempty"`
	Message     string        `json:"message,omitempty"`
}

// generateImage - исходный синхронный маршрут: задача + ожидание результата в одном запросе.
func (h *Handler) generateImage(c *gin.Context) {
	var req imageRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing prompt"})
		return
	}

	imageURL, outcome, err := h.images.GenerateImage(c.Request.Context(), req.Prompt)
	if err != nil {
		log := h.logger.With(zap.String("outcome", string(outcome.Kind)), zap.Int("attempts", outcome.Attempts), zap.Error(err))
		switch {
		case errors.Is(err, service.ErrImageTimeout):
			log.Warn("Image generation timed out")
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Image generation timed out"})
		case c.Request.Context().Err() != nil:
			log.Info("Image request canceled by client")
			c.AbortWithStatus(statusClientClosedRequest)
		default:
			log.Error("Error generating image")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate image"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"imageUrl": imageURL})
}

func (h *Handler) submitImageTask(c *gin.Context) {
	var req imageRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		badRequest(c, "Missing prompt")
		return
	}
	result, err := h.images.SubmitImage(c.Request.Context(), req.Prompt)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"taskId": result.TaskID, "status": result.Status})
}

func (h *Handler) getImageTask(c *gin.Context) {
	taskID := c.Param("taskId")
	rec, err := h.images.TaskStatus(c.Request.Context(), taskID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, taskStatusResponse{
		TaskID:      taskID,
		Status:      poller.ParseStatus(rec.Status),
		RawStatus:   rec.Status,
		ArtifactURL: rec.ArtifactURL,
		Message:     rec.Message,
	})
}

// waitImageTask подключается к общей сессии опроса задачи и возвращает ее результат.
func (h *Handler) waitImageTask(c *gin.Context) {
	taskID := c.Param("taskId")
	outcome, err := h.images.WaitTask(c.Request.Context(), taskID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"taskId": taskID, "outcome": outcome})
}

// downloadImage проксирует изображение с заголовком Content-Disposition: attachment.
func (h *Handler) downloadImage(c *gin.Context) {
	rawURL := c.Query("url")
	if rawURL == "" {
		c.String(http.StatusBadRequest, "Missing url")
		return
	}
	if !httpURLPattern.MatchString(rawURL) {
		c.String(http.StatusBadRequest, "Invalid url")
		return
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, rawURL, nil)
	if err != nil {
		c.String(http.StatusBadRequest, "Invalid url")
		return
	}
	resp, err := h.downloader.Do(req)
	if err != nil {
		h.logger.Warn("Failed to fetch image", zap.String("url", rawURL), zap.Error(err))
		c.String(http.StatusBadGateway, "Failed to fetch image")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		h.logger.Warn("Upstream returned error for image", zap.String("url", rawURL), zap.Int("status", resp.StatusCode))
		c.String(http.StatusBadGateway, "Failed to fetch image")
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	filename := fmt.Sprintf("story-image-%d%s", time.Now().UnixMilli(), imageExtension(contentType))
	c.DataFromReader(http.StatusOK, resp.ContentLength, contentType, resp.Body, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, filename),
		"Cache-Control":       "no-store",
	})
}

func imageExtension(contentType string) string {
	switch {
	case strings.Contains(contentType, "png"):
		return ".png"
	case strings.Contains(contentType, "jpeg"):
		return ".jpg"
	default:
		return ""
	}
}
