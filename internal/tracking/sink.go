package tracking

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/notification-agent/internal/delivery"
	"github.com/ignite/notification-agent/internal/domain"
)

// Applier is the tracker write side.
type Applier interface {
	Apply(ctx context.Context, u delivery.StatusUpdate) (domain.Outcome, error)
}

// Sink accepts a status update for eventual application.
type Sink interface {
	Submit(ctx context.Context, u delivery.StatusUpdate) error
}

// DirectSink applies updates inline.
type DirectSink struct{ Tracker Applier }

func (d DirectSink) Submit(ctx context.Context, u delivery.StatusUpdate) error {
	_, err := d.Tracker.Apply(ctx, u)
	return err
}

// SQSAPI is the slice of the SQS client used here.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Publisher enqueues updates on SQS for the Consumer.
type Publisher struct {
	client   SQSAPI
	queueURL string
}

// NewPublisher creates an SQS publisher.
func NewPublisher(client SQSAPI, queueURL string) *Publisher {
	return &Publisher{client: client, queueURL: queueURL}
}

func (p *Publisher) Submit(ctx context.Context, u delivery.StatusUpdate) error {
	body, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal status update: %w", err)
	}
	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("publish status update: %w", err)
	}
	return nil
}
