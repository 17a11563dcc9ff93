package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/notification-agent/internal/domain"
)

// InAppAdapter writes to a capped per-recipient Redis list and announces
// the new item on a pub/sub channel for connected clients.
type InAppAdapter struct {
	client    redis.UniversalClient
	keyPrefix string
	maxItems  int64
	pubsub    string
	now       func() time.Time
}

// NewInAppAdapter creates the in-app inbox adapter.
func NewInAppAdapter(client redis.UniversalClient, keyPrefix string, maxItems int, pubsub string) *InAppAdapter {
	if maxItems <= 0 {
		maxItems = 100
	}
	return &InAppAdapter{client: client, keyPrefix: keyPrefix, maxItems: int64(maxItems), pubsub: pubsub, now: time.Now}
}

// InboxItem is the stored in-app notification.
type InboxItem struct {
	ID         string    `json:"id"`
	DeliveryID string    `json:"deliveryId"`
	Recipient  string    `json:"recipientId"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	ActionURL  string    `json:"actionUrl,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (a *InAppAdapter) Channel() domain.Channel { return domain.ChannelInApp }

// InboxKey is the list key for a recipient.
func (a *InAppAdapter) InboxKey(recipientID string) string {
	return a.keyPrefix + ":" + recipientID
}

func (a *InAppAdapter) Send(ctx context.Context, msg Message) (ProviderReceipt, error) {
	item := InboxItem{
		ID:         uuid.NewString(),
		DeliveryID: msg.DeliveryID,
		Recipient:  msg.Address,
		Title:      msg.Content.Title,
		Body:       msg.Content.Body,
		ActionURL:  msg.Content.ActionURL,
		CreatedAt:  a.now().UTC(),
	}
	payload, err := json.Marshal(item)
	if err != nil {
		return ProviderReceipt{}, fmt.Errorf("inapp marshal: %w", err)
	}

	key := a.InboxKey(msg.Address)
	_, err = a.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, key, payload)
		p.LTrim(ctx, key, 0, a.maxItems-1)
		if a.pubsub != "" {
			p.Publish(ctx, a.pubsub, payload)
		}
		return nil
	})
	if err != nil {
		return ProviderReceipt{}, fmt.Errorf("inapp write: %w", err)
	}
	return ProviderReceipt{ProviderMessageID: item.ID}, nil
}
