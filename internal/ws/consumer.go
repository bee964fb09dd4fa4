package ws

import (
	"context"
	"encoding/json"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"story-server/internal/messaging"
)

// NotificationHandler доставляет уведомления из очереди в Hub.
type NotificationHandler struct {
	hub    *Hub
	logger *zap.Logger
}

// NewNotificationHandler создает обработчик очереди уведомлений.
func NewNotificationHandler(hub *Hub, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{hub: hub, logger: logger.Named("NotificationHandler")}
}

// HandleDelivery всегда подтверждает сообщение: уведомления не критичны,
// а повторная доставка офлайн владельцу ничего не даст.
func (h *NotificationHandler) HandleDelivery(ctx context.Context, msg amqp091.Delivery) bool {
	var payload messaging.NotificationPayload
	if err := json.Unmarshal(msg.Body, &payload); err != nil {
		h.logger.Error("Failed to decode notification, dropping", zap.Error(err), zap.ByteString("body", msg.Body))
		return true
	}
	if err := h.hub.Notify(ctx, payload.Notice()); err != nil {
		h.logger.Warn("Failed to deliver notification", zap.String("job_id", payload.JobID), zap.Error(err))
	}
	return true
}
