package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/notification-agent/internal/delivery"
	"github.com/ignite/notification-agent/internal/metrics"
	"github.com/ignite/notification-agent/internal/pkg/logger"
)

// Consumer long-polls an SQS queue of status updates and SES events and
// applies them to the tracker. Messages are deleted once applied or once
// they are known to be unprocessable; transient failures are left for
// redelivery.
type Consumer struct {
	client   SQSAPI
	queueURL string
	tracker  Applier
	wait     int32
	backoff  time.Duration
}

// NewConsumer creates a queue consumer.
func NewConsumer(client SQSAPI, queueURL string, tracker Applier, waitSeconds int) *Consumer {
	if waitSeconds <= 0 || waitSeconds > 20 {
		waitSeconds = 20
	}
	return &Consumer{client: client, queueURL: queueURL, tracker: tracker, wait: int32(waitSeconds), backoff: 5 * time.Second}
}

// Run polls until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	logger.Info("tracking: SQS consumer started", "queue", c.queueURL)
	for ctx.Err() == nil {
		if err := c.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Warn("tracking: SQS receive failed", "queue", c.queueURL, "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(c.backoff):
			}
		}
	}
	logger.Info("tracking: SQS consumer stopped", "queue", c.queueURL)
}

// PollOnce receives one batch and processes it.
func (c *Consumer) PollOnce(ctx context.Context) error {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     c.wait,
	})
	if err != nil {
		return err
	}
	for _, msg := range out.Messages {
		if c.handle(ctx, aws.ToString(msg.Body)) {
			c.delete(ctx, msg.ReceiptHandle)
		}
	}
	return nil
}

// handle reports whether the message should be deleted.
func (c *Consumer) handle(ctx context.Context, body string) bool {
	u, ok, err := decodeMessage([]byte(body))
	if err != nil {
		metrics.IngestMessages.WithLabelValues("sqs", "malformed").Inc()
		logger.Warn("tracking: dropping malformed message", "error", err)
		return true
	}
	if !ok {
		metrics.IngestMessages.WithLabelValues("sqs", "ignored").Inc()
		return true
	}

	out, err := c.tracker.Apply(ctx, u)
	switch {
	case err == nil:
		metrics.IngestMessages.WithLabelValues("sqs", string(out)).Inc()
		return true
	case errors.Is(err, delivery.ErrNotFound), errors.Is(err, delivery.ErrBadUpdate):
		metrics.IngestMessages.WithLabelValues("sqs", "rejected").Inc()
		logger.Warn("tracking: dropping unapplicable update",
			"delivery_id", u.DeliveryID, "provider_message_id", u.ProviderMessageID, "status", u.Status, "error", err)
		return true
	default:
		metrics.IngestMessages.WithLabelValues("sqs", "retry").Inc()
		logger.Error("tracking: apply failed, leaving for redelivery", "delivery_id", u.DeliveryID, "error", err)
		return false
	}
}

// decodeMessage accepts our own StatusUpdate JSON or an SES event,
// optionally wrapped in an SNS envelope.
func decodeMessage(body []byte) (delivery.StatusUpdate, bool, error) {
	inner := unwrapSNS(body)
	if isSESEvent(inner) {
		return ParseSESEvent(inner)
	}
	var u delivery.StatusUpdate
	if err := json.Unmarshal(inner, &u); err != nil {
		return u, false, err
	}
	return u, true, nil
}

func (c *Consumer) delete(ctx context.Context, handle *string) {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: handle,
	})
	if err != nil {
		logger.Warn("tracking: SQS delete failed", "queue", c.queueURL, "error", err)
	}
}
