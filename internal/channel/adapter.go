package channel

import (
	"context"

	"github.com/ignite/notification-agent/internal/domain"
)

// Message is what an adapter sends.
type Message struct {
	DeliveryID  string
	Channel     domain.Channel
	RecipientID string
	Address     string // resolved by the Dispatcher
	Context     map[string]any
	Content     domain.Rendered
	// OpenPixelURL, when set, is embedded as a 1x1 image in HTML email.
	OpenPixelURL string
}

// ProviderReceipt is the transport's acknowledgement. Queued means the
// provider accepted the message without confirming hand-off yet.
type ProviderReceipt struct {
	ProviderMessageID string
	Queued            bool
}

// Adapter is one delivery transport.
type Adapter interface {
	Channel() domain.Channel
	Send(ctx context.Context, msg Message) (ProviderReceipt, error)
}
