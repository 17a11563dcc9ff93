package channel

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/notification-agent/internal/domain"
)

// SESClient is the slice of the SES v2 client the adapter uses.
type SESClient interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESAdapter sends email through Amazon SES. The delivery ID rides along as
// a message tag so SES event notifications can be matched back.
type SESAdapter struct {
	client           SESClient
	from             string
	configurationSet string
}

// NewSESAdapter creates an SES email adapter.
func NewSESAdapter(client SESClient, from, configurationSet string) *SESAdapter {
	return &SESAdapter{client: client, from: from, configurationSet: configurationSet}
}

func (a *SESAdapter) Channel() domain.Channel { return domain.ChannelEmail }

func (a *SESAdapter) Send(ctx context.Context, msg Message) (ProviderReceipt, error) {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(a.from),
		Destination:      &types.Destination{ToAddresses: []string{msg.Address}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Content.Title), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(emailHTML(msg.Content, msg.OpenPixelURL)), Charset: aws.String("UTF-8")},
					Text: &types.Content{Data: aws.String(emailText(msg.Content)), Charset: aws.String("UTF-8")},
				},
			},
		},
	}
	if msg.DeliveryID != "" {
		input.EmailTags = append(input.EmailTags, types.MessageTag{Name: aws.String("delivery_id"), Value: aws.String(tagSafe(msg.DeliveryID))})
	}
	if msg.Content.TemplateID != "" {
		input.EmailTags = append(input.EmailTags, types.MessageTag{Name: aws.String("template_id"), Value: aws.String(tagSafe(msg.Content.TemplateID))})
	}
	if a.configurationSet != "" {
		input.ConfigurationSetName = aws.String(a.configurationSet)
	}

	out, err := a.client.SendEmail(ctx, input)
	if err != nil {
		return ProviderReceipt{}, fmt.Errorf("ses send: %w", err)
	}
	return ProviderReceipt{ProviderMessageID: aws.ToString(out.MessageId)}, nil
}
