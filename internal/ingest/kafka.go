// Package ingest feeds lifecycle events from Kafka into the orchestrator.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ignite/notification-agent/internal/agent"
	"github.com/ignite/notification-agent/internal/domain"
	"github.com/ignite/notification-agent/internal/metrics"
	"github.com/ignite/notification-agent/internal/pkg/logger"
)

// EventHandler is satisfied by *agent.Orchestrator.
type EventHandler interface {
	Handle(ctx context.Context, ev *domain.Event) (agent.Result, error)
}

// MessageReader is the slice of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer reads events and commits each offset after handling.
type KafkaConsumer struct {
	reader      MessageReader
	handler     EventHandler
	maxAttempts int
	backoff     time.Duration
}

// NewKafkaReader builds a consumer-group reader.
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  time.Second,
	})
}

// NewKafkaConsumer creates a consumer over reader.
func NewKafkaConsumer(reader MessageReader, handler EventHandler) *KafkaConsumer {
	return &KafkaConsumer{reader: reader, handler: handler, maxAttempts: 3, backoff: 2 * time.Second}
}

// Run consumes until ctx is cancelled.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	logger.Info("ingest: kafka consumer started")
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("ingest: kafka fetch failed", "error", err)
			if !sleep(ctx, c.backoff) {
				return nil
			}
			continue
		}

		c.process(ctx, m)

		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			logger.Warn("ingest: kafka commit failed", "partition", m.Partition, "offset", m.Offset, "error", err)
		}
	}
}

// process handles one message. Declined events are retried a few times
// since a declined event is an infrastructure outage, not a bad event.
func (c *KafkaConsumer) process(ctx context.Context, m kafka.Message) {
	ev, err := DecodeEvent(m.Value)
	if err != nil {
		metrics.IngestMessages.WithLabelValues("kafka", "malformed").Inc()
		logger.Warn("ingest: dropping malformed event", "partition", m.Partition, "offset", m.Offset, "error", err)
		return
	}

	for attempt := 1; ; attempt++ {
		_, err := c.handler.Handle(ctx, ev)
		switch {
		case err == nil:
			metrics.IngestMessages.WithLabelValues("kafka", "handled").Inc()
			return
		case errors.Is(err, agent.ErrDeclined) && attempt < c.maxAttempts:
			if !sleep(ctx, c.backoff*time.Duration(attempt)) {
				return
			}
		default:
			metrics.IngestMessages.WithLabelValues("kafka", "failed").Inc()
			logger.Error("ingest: event not handled", "trigger", ev.TriggerEvent, "recipient_id", ev.RecipientID,
				"attempts", attempt, "error", err)
			return
		}
	}
}

// Close closes the reader.
func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}

// DecodeEvent parses {triggerEvent, recipientId, locale, context}.
func DecodeEvent(b []byte) (*domain.Event, error) {
	var ev domain.Event
	if err := json.Unmarshal(b, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	if ev.Context == nil {
		ev.Context = map[string]any{}
	}
	return &ev, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
