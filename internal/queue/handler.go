package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/OFFIS-RIT/trackgraph/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

// MaxRetries is the number of redeliveries before a message is moved to the
// dead letter queue.
const MaxRetries = 10

const retriesHeader = "x-retries"

// ErrBadMessage is returned for message bodies that are not an event id.
var ErrBadMessage = errors.New("malformed event message")

// EncodeEventMessage is the body of the message scheduling eventID.
func EncodeEventMessage(eventID int64) []byte {
	return []byte(strconv.FormatInt(eventID, 10))
}

// ParseEventMessage returns the event id carried by body.
func ParseEventMessage(body []byte) (int64, error) {
	s := strings.TrimSpace(string(body))
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("%w: %q", ErrBadMessage, s)
	}
	return id, nil
}

func retryCount(headers amqp091.Table) int {
	switch v := headers[retriesHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// HandleFailure routes a failed message. Retryable failures go to the retry
// queue until MaxRetries is reached; everything else goes to the dead letter
// queue. The original delivery is acked once the copy is published and
// requeued if publishing fails.
func HandleFailure(ctx context.Context, ch Channel, msg amqp091.Delivery, queueName string, retryable bool) {
	retries := retryCount(msg.Headers)

	headers := amqp091.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}

	target := queueName + "_retry"
	if !retryable || retries >= MaxRetries {
		target = queueName + "_dlq"
		logger.Info("[Queue] Sending message to DLQ", "dlq", target, "retries", retries)
	} else {
		headers[retriesHeader] = int32(retries + 1)
	}

	if err := PublishFIFO(ctx, ch, target, msg.Body, headers); err != nil {
		logger.Error("[Queue] Failed to publish failed message", "queue", target, "err", err)
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}
