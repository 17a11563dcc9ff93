package channel

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"

	"github.com/ignite/notification-agent/internal/domain"
)

// ResendSender is the slice of resend.Client.Emails the adapter uses.
type ResendSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ResendAdapter sends email through Resend.
type ResendAdapter struct {
	emails ResendSender
	from   string
}

// NewResendAdapter creates a Resend email adapter from an API key.
func NewResendAdapter(apiKey, from string) *ResendAdapter {
	return &ResendAdapter{emails: resend.NewClient(apiKey).Emails, from: from}
}

func (a *ResendAdapter) Channel() domain.Channel { return domain.ChannelEmail }

func (a *ResendAdapter) Send(ctx context.Context, msg Message) (ProviderReceipt, error) {
	params := &resend.SendEmailRequest{
		From:    a.from,
		To:      []string{msg.Address},
		Subject: msg.Content.Title,
		Html:    emailHTML(msg.Content, msg.OpenPixelURL),
		Text:    emailText(msg.Content),
	}
	if msg.DeliveryID != "" {
		params.Tags = []resend.Tag{{Name: "delivery_id", Value: tagSafe(msg.DeliveryID)}}
	}
	resp, err := a.emails.SendWithContext(ctx, params)
	if err != nil {
		return ProviderReceipt{}, fmt.Errorf("resend send: %w", err)
	}
	return ProviderReceipt{ProviderMessageID: resp.Id}, nil
}
