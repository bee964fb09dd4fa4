package messaging

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/docker/docker/client"
	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"story-server/internal/model"
)

func skipWithoutDocker(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}
	cli, err := client.NewClientWithOpts(client.FromEnv)
	if err != nil {
		t.Skipf("Docker client init error: %v", err)
	}
	defer cli.Close()
	if _, err := cli.Ping(context.Background()); err != nil {
		t.Skipf("Docker daemon is not running or accessible: %v", err)
	}
}

func TestRabbitMQ_PublishAndConsume(t *testing.T) {
	skipWithoutDocker(t)
	ctx := context.Background()

	container, err := rabbitmq.Run(ctx,
		"rabbitmq:3-management-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").WithStartupTimeout(2*time.Minute),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	amqpURL, err := container.AmqpURL(ctx)
	require.NoError(t, err)

	conn, err := Dial(ctx, amqpURL, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	const queue = "illustration_tasks_test"
	pub, err := NewRabbitMQPublisher(conn, queue, zap.NewNop())
	require.NoError(t, err)
	defer pub.Close()

	task := IllustrationTaskPayload{
		JobID:  "job-42",
		Story:  model.Story{ID: "story-42", Theme: "лес", Title: "Лес", Content: "Жил-был ёж.", CreatedAt: time.Now().UTC()},
		UserID: "user-1",
	}
	require.NoError(t, pub.Publish(ctx, task, task.JobID))

	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	received := make(chan amqp091.Delivery, 1)
	consumer := NewConsumer(conn, queue, "test-consumer", DeliveryHandlerFunc(func(_ context.Context, msg amqp091.Delivery) bool {
		received <- msg
		cancel()
		return true
	}), zap.NewNop())

	require.NoError(t, consumer.Run(runCtx))

	select {
	case msg := <-received:
		assert.Equal(t, "job-42", msg.CorrelationId)
		assert.Equal(t, "application/json", msg.ContentType)
		assert.Equal(t, amqp091.Persistent, msg.DeliveryMode)

		var got IllustrationTaskPayload
		require.NoError(t, json.Unmarshal(msg.Body, &got))
		assert.Equal(t, task.JobID, got.JobID)
		assert.Equal(t, task.Story.ID, got.Story.ID)
		assert.Equal(t, "user-1", got.Owner().UserID)
	default:
		t.Fatal("message was not delivered")
	}

	require.NoError(t, pub.Close())
	assert.ErrorIs(t, pub.Publish(ctx, task, task.JobID), ErrPublisherClosed)
}
