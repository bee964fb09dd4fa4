package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"story-server/internal/imagegen"
	"story-server/internal/model"
	"story-server/internal/poller"
	"story-server/internal/service"
)

// statusClientClosedRequest - клиент закрыл соединение до ответа (как в nginx).
const statusClientClosedRequest = 499

func handleServiceError(c *gin.Context, err error) {
	var statusCode int
	var errResp model.ErrorResponse

	switch {
	case errors.Is(err, context.Canceled):
		zap.L().Debug("Request canceled by client", zap.String("path", c.Request.URL.Path))
		c.AbortWithStatus(statusClientClosedRequest)
		return
	case errors.Is(err, model.ErrInvalidInput), errors.Is(err, poller.ErrInvalidTask):
		statusCode = http.StatusBadRequest
		errResp = model.ErrorResponse{Code: model.ErrCodeBadRequest, Message: err.Error()}
	case errors.Is(err, model.ErrNotFound):
		statusCode = http.StatusNotFound
		errResp = model.ErrorResponse{Code: model.ErrCodeNotFound, Message: "Story not found"}
	case errors.Is(err, model.ErrTokenInvalid), errors.Is(err, model.ErrTokenMalformed):
		statusCode = http.StatusUnauthorized
		errResp = model.ErrorResponse{Code: model.ErrCodeTokenInvalid, Message: "Token is invalid or malformed"}
	case errors.Is(err, model.ErrTokenExpired):
		statusCode = http.StatusUnauthorized
		errResp = model.ErrorResponse{Code: model.ErrCodeTokenExpired, Message: "Token has expired"}
	case errors.Is(err, model.ErrUnauthorized):
		statusCode = http.StatusUnauthorized
		errResp = model.ErrorResponse{Code: model.ErrCodeUnauthorized, Message: "Unauthorized"}
	case errors.Is(err, poller.ErrRegistryFull):
		statusCode = http.StatusTooManyRequests
		errResp = model.ErrorResponse{Code: model.ErrCodeTooMany, Message: "Too many image tasks are being watched, retry later"}
	case errors.Is(err, model.ErrStoreDisabled), errors.Is(err, service.ErrDispatcherClosed):
		statusCode = http.StatusServiceUnavailable
		errResp = model.ErrorResponse{Code: model.ErrCodeUnavailable, Message: err.Error()}
	case errors.Is(err, service.ErrImageTimeout):
		statusCode = http.StatusGatewayTimeout
		errResp = model.ErrorResponse{Code: model.ErrCodeTimeout, Message: "Image generation timed out"}
	case errors.Is(err, service.ErrImageFailed),
		errors.Is(err, imagegen.ErrSubmitFailed),
		errors.Is(err, imagegen.ErrStatusFailed):
		statusCode = http.StatusBadGateway
		errResp = model.ErrorResponse{Code: model.ErrCodeBadGateway, Message: err.Error()}
	default:
		zap.L().Error("Unhandled internal error in handleServiceError", zap.Error(err))
		statusCode = http.StatusInternalServerError
		errResp = model.ErrorResponse{Code: model.ErrCodeInternal, Message: "An unexpected internal error occurred"}
	}

	c.AbortWithStatusJSON(statusCode, errResp)
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, model.ErrorResponse{Code: model.ErrCodeBadRequest, Message: message})
}
