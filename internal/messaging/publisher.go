package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"story-server/internal/model"
)

// ErrPublisherClosed - канал издателя уже закрыт.
var ErrPublisherClosed = errors.New("publisher channel is closed")

// Publisher публикует JSON сообщения в очередь.
type Publisher interface {
	Publish(ctx context.Context, payload interface{}, correlationID string) error
	Close() error
}

// RabbitMQPublisher публикует сообщения напрямую в durable очередь (default exchange).
type RabbitMQPublisher struct {
	ch        *amqp091.Channel
	queueName string
	logger    *zap.Logger
	mu        sync.Mutex
}

// NewRabbitMQPublisher открывает канал и объявляет очередь queueName.
func NewRabbitMQPublisher(conn *amqp091.Connection, queueName string, logger *zap.Logger) (*RabbitMQPublisher, error) {
	if conn == nil {
		return nil, errors.New("rabbitmq connection is nil")
	}
	if queueName == "" {
		return nil, errors.New("queue name is required")
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel for publisher: %w", err)
	}
	if _, err := declareQueue(ch, queueName); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return &RabbitMQPublisher{
		ch:        ch,
		queueName: queueName,
		logger:    logger.Named("RabbitMQPublisher").With(zap.String("queue", queueName)),
	}, nil
}

// Publish сериализует payload в JSON и публикует persistent сообщение.
func (p *RabbitMQPublisher) Publish(ctx context.Context, payload interface{}, correlationID string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return ErrPublisherClosed
	}

	err = p.ch.PublishWithContext(ctx,
		"",          // default exchange
		p.queueName, // routing key = имя очереди
		false,       // mandatory
		false,       // immediate
		amqp091.Publishing{
			ContentType:   "application/json",
			CorrelationId: correlationID,
			Body:          body,
			DeliveryMode:  amqp091.Persistent,
			Timestamp:     time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	p.logger.Debug("Message published", zap.String("correlation_id", correlationID), zap.Int("size", len(body)))
	return nil
}

// Close закрывает канал. Повторный вызов ничего не делает.
func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return nil
	}
	err := p.ch.Close()
	p.ch = nil
	return err
}

// NotificationPublisher отправляет уведомления об иллюстрациях в очередь уведомлений.
type NotificationPublisher struct {
	publisher Publisher
}

// NewNotificationPublisher создает NotificationPublisher поверх publisher.
func NewNotificationPublisher(publisher Publisher) *NotificationPublisher {
	return &NotificationPublisher{publisher: publisher}
}

// Notify публикует уведомление, JobID используется как correlation id.
func (n *NotificationPublisher) Notify(ctx context.Context, notice model.Notice) error {
	return n.publisher.Publish(ctx, NewNotificationPayload(notice), notice.JobID)
}

func declareQueue(ch *amqp091.Channel, name string) (amqp091.Queue, error) {
	q, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // arguments
	)
	if err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to declare queue %s: %w", name, err)
	}
	return q, nil
}
