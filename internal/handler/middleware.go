package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"story-server/internal/auth"
	"story-server/internal/model"
)

const (
	ownerContextKey = "owner"
	clientIDHeader  = "X-Client-ID"
)

// TokenVerifier проверяет токен пользователя.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, tokenString string) (*auth.Claims, error)
}

// ZapLoggingMiddleware логирует запросы через zap. /health и /metrics не логируются.
func ZapLoggingMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if path == "/health" || path == "/metrics" {
			c.Next()
			return
		}

		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)

		c.Next()

		if rawQuery := c.Request.URL.RawQuery; rawQuery != "" {
			path = path + "?" + rawQuery
		}
		fields := []zap.Field{
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
			zap.String("user_agent", c.Request.UserAgent()),
			zap.String("request_id", requestID),
		}
		if owner, ok := c.Get(ownerContextKey); ok {
			o := owner.(model.Owner)
			fields = append(fields, zap.String("user_id", o.UserID), zap.String("client_id", o.ClientID))
		}

		if len(c.Errors) > 0 {
			for _, ginErr := range c.Errors.ByType(gin.ErrorTypeAny) {
				log.Error("Request error", append(fields, zap.Error(ginErr.Err))...)
			}
			return
		}
		status := c.Writer.Status()
		switch {
		case status >= http.StatusInternalServerError:
			log.Error("Server error", fields...)
		case status >= http.StatusBadRequest:
			log.Warn("Client error", fields...)
		default:
			log.Info("Request completed", fields...)
		}
	}
}

// IdentityMiddleware определяет владельца запроса.
// Bearer токен необязателен, но если он передан, то должен быть валиден.
// X-Client-ID задает раздел локального хранилища.
// Если verifier nil (аутентификация отключена), токен игнорируется.
func IdentityMiddleware(verifier TokenVerifier, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := model.Owner{ClientID: strings.TrimSpace(c.GetHeader(clientIDHeader))}

		if authHeader := c.GetHeader("Authorization"); authHeader != "" && verifier != nil {
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				logger.Warn("Invalid Authorization header format")
				handleServiceError(c, model.ErrTokenMalformed)
				return
			}
			claims, err := verifier.VerifyToken(c.Request.Context(), parts[1])
			if err != nil {
				logger.Warn("Access token verification failed", zap.Error(err))
				handleServiceError(c, err)
				return
			}
			owner.UserID = claims.UserID()
		}

		c.Set(ownerContextKey, owner)
		c.Next()
	}
}

func ownerFrom(c *gin.Context) model.Owner {
	if v, ok := c.Get(ownerContextKey); ok {
		if owner, ok := v.(model.Owner); ok {
			return owner
		}
	}
	return model.Owner{}
}
