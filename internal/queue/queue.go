package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/trackgraph/internal/util"
	"github.com/OFFIS-RIT/trackgraph/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
	"golang.org/x/time/rate"
)

// EventQueue carries one event identifier per message.
const EventQueue = "event_queue"

// RetryDelay is how long a failed message waits in the retry queue before it
// is dead-lettered back onto its main queue.
const RetryDelay = 10 * time.Second

// Channel is the subset of *amqp091.Channel used to declare queues and
// publish messages.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// Init connects to RabbitMQ using RABBITMQ_USER, RABBITMQ_PASSWORD,
// RABBITMQ_HOST and RABBITMQ_PORT.
func Init() *amqp091.Connection {
	user := util.GetEnvString("RABBITMQ_USER", "guest")
	pass := util.GetEnvString("RABBITMQ_PASSWORD", "guest")
	host := util.GetEnvString("RABBITMQ_HOST", "localhost")
	port := util.GetEnvString("RABBITMQ_PORT", "5672")

	connURL := fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		user,
		pass,
		host,
		port,
	)

	conn, err := amqp091.Dial(connURL)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", "err", err)
	}

	return conn
}

// SetupQueues declares every queue together with its _dlq and _retry
// companions.
func SetupQueues(ch Channel, queueNames []string) error {
	for _, name := range queueNames {
		_, err := ch.QueueDeclare(
			name,
			true,  // durable
			false, // autoDelete
			false, // exclusive
			false, // noWait
			nil,   // args
		)
		if err != nil {
			return fmt.Errorf("failed to declare %s: %w", name, err)
		}

		dlqName := name + "_dlq"
		_, err = ch.QueueDeclare(
			dlqName,
			true,
			false,
			false,
			false,
			nil,
		)
		if err != nil {
			return fmt.Errorf("failed to declare %s: %w", dlqName, err)
		}

		retryName := name + "_retry"
		_, err = ch.QueueDeclare(
			retryName,
			true,
			false,
			false,
			false,
			amqp091.Table{
				"x-message-ttl":             int32(RetryDelay.Milliseconds()),
				"x-dead-letter-exchange":    "",
				"x-dead-letter-routing-key": name,
			},
		)
		if err != nil {
			return fmt.Errorf("failed to declare %s: %w", retryName, err)
		}
	}

	return nil
}

// PublishFIFO publishes a persistent message onto queueName through the
// default exchange.
func PublishFIFO(ctx context.Context, ch Channel, queueName string, data []byte, headers amqp091.Table) error {
	publishing := amqp091.Publishing{
		ContentType:  "text/plain",
		Body:         data,
		Headers:      headers,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	}

	return ch.PublishWithContext(
		ctx,
		"",
		queueName,
		false,
		false,
		publishing,
	)
}

// EnqueueEvents publishes one message per event id onto EventQueue, pacing
// publishes with limiter. It returns the number of published messages.
func EnqueueEvents(ctx context.Context, ch Channel, ids []int64, limiter *rate.Limiter) (int, error) {
	for i, id := range ids {
		if err := limiter.Wait(ctx); err != nil {
			return i, err
		}
		if err := PublishFIFO(ctx, ch, EventQueue, EncodeEventMessage(id), nil); err != nil {
			return i, fmt.Errorf("failed to enqueue event %d: %w", id, err)
		}
	}
	return len(ids), nil
}
