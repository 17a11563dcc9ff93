package tracking

import (
	"context"

	"github.com/ignite/notification-agent/internal/channel"
	"github.com/ignite/notification-agent/internal/domain"
)

// LinkTracking wraps an adapter so the action URL it sends is a signed
// click redirect, and email carries a signed open pixel. Messages without
// a delivery ID pass through untouched.
type LinkTracking struct {
	channel.Adapter
	links *Links
}

// WithLinkTracking decorates a channel adapter.
func WithLinkTracking(a channel.Adapter, links *Links) *LinkTracking {
	return &LinkTracking{Adapter: a, links: links}
}

func (t *LinkTracking) Channel() domain.Channel { return t.Adapter.Channel() }

func (t *LinkTracking) Send(ctx context.Context, msg channel.Message) (channel.ProviderReceipt, error) {
	if msg.DeliveryID == "" {
		return t.Adapter.Send(ctx, msg)
	}
	if msg.Content.ActionURL != "" {
		msg.Content.ActionURL = t.links.ClickURL(msg.DeliveryID, msg.Content.ActionURL)
	}
	if t.Adapter.Channel() == domain.ChannelEmail {
		msg.OpenPixelURL = t.links.OpenURL(msg.DeliveryID)
	}
	return t.Adapter.Send(ctx, msg)
}
