package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ErrConsumerChannelClosed - брокер закрыл канал доставки (обычно разрыв соединения).
var ErrConsumerChannelClosed = errors.New("consumer channel closed by RabbitMQ")

// DeliveryHandler обрабатывает одно сообщение.
// Возвращает true, если сообщение нужно подтвердить (ack), false - вернуть в очередь (nack).
type DeliveryHandler interface {
	HandleDelivery(ctx context.Context, msg amqp091.Delivery) bool
}

// DeliveryHandlerFunc позволяет использовать функцию как DeliveryHandler.
type DeliveryHandlerFunc func(ctx context.Context, msg amqp091.Delivery) bool

// HandleDelivery вызывает f(ctx, msg).
func (f DeliveryHandlerFunc) HandleDelivery(ctx context.Context, msg amqp091.Delivery) bool {
	return f(ctx, msg)
}

// Consumer читает очередь по одному сообщению (prefetch 1) с ручным подтверждением.
type Consumer struct {
	conn        *amqp091.Connection
	queueName   string
	consumerTag string
	handler     DeliveryHandler
	logger      *zap.Logger
}

// NewConsumer создает Consumer для очереди queueName.
func NewConsumer(conn *amqp091.Connection, queueName, consumerTag string, handler DeliveryHandler, logger *zap.Logger) *Consumer {
	return &Consumer{
		conn:        conn,
		queueName:   queueName,
		consumerTag: consumerTag,
		handler:     handler,
		logger:      logger.Named("Consumer").With(zap.String("queue", queueName)),
	}
}

// Run обрабатывает сообщения до отмены ctx или закрытия канала брокером.
func (c *Consumer) Run(ctx context.Context) error {
	if c.conn == nil {
		return errors.New("cannot start consumer, RabbitMQ connection is nil")
	}
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open RabbitMQ channel for consumer: %w", err)
	}
	defer ch.Close()

	q, err := declareQueue(ch, c.queueName)
	if err != nil {
		return err
	}
	c.logger.Info("Queue declared", zap.Int("messages", q.Messages), zap.Int("consumers", q.Consumers))

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		q.Name,
		c.consumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}
	c.logger.Info("Consumer started, waiting for messages...")

	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Warn("Consumer channel closed by RabbitMQ")
				return ErrConsumerChannelClosed
			}
			c.dispatch(ctx, msg)
		case <-ctx.Done():
			c.logger.Info("Context cancelled, stopping consumer...")
			return nil
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, msg amqp091.Delivery) {
	c.logger.Debug("Received a message", zap.Uint64("delivery_tag", msg.DeliveryTag), zap.String("correlation_id", msg.CorrelationId))
	if c.handler.HandleDelivery(ctx, msg) {
		if err := msg.Ack(false); err != nil {
			c.logger.Error("Failed to ack message", zap.Uint64("delivery_tag", msg.DeliveryTag), zap.Error(err))
		}
		return
	}
	if err := msg.Nack(false, true); err != nil {
		c.logger.Error("Failed to nack message", zap.Uint64("delivery_tag", msg.DeliveryTag), zap.Error(err))
	}
}
