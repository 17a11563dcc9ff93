package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ignite/notification-agent/internal/domain"
	"github.com/ignite/notification-agent/internal/pkg/httpretry"
)

// SMSAdapter posts to a Twilio-style Messages endpoint.
type SMSAdapter struct {
	client     httpretry.HTTPDoer
	baseURL    string
	accountSID string
	authToken  string
	from       string
}

// NewSMSAdapter creates an SMS adapter.
func NewSMSAdapter(client httpretry.HTTPDoer, baseURL, accountSID, authToken, from string) *SMSAdapter {
	if baseURL == "" {
		baseURL = "https://api.twilio.com"
	}
	return &SMSAdapter{
		client:     client,
		baseURL:    strings.TrimRight(baseURL, "/"),
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
	}
}

type smsResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (a *SMSAdapter) Channel() domain.Channel { return domain.ChannelSMS }

func (a *SMSAdapter) Send(ctx context.Context, msg Message) (ProviderReceipt, error) {
	text := msg.Content.Body
	if msg.Content.ActionURL != "" {
		text += " " + msg.Content.ActionURL
	}
	form := url.Values{}
	form.Set("To", msg.Address)
	form.Set("From", a.from)
	form.Set("Body", text)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", a.baseURL, url.PathEscape(a.accountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return ProviderReceipt{}, fmt.Errorf("sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(a.accountSID, a.authToken)

	resp, err := a.client.Do(req)
	if err != nil {
		return ProviderReceipt{}, fmt.Errorf("sms gateway: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var sr smsResponse
	_ = json.Unmarshal(body, &sr)
	if resp.StatusCode >= 300 {
		if sr.Message != "" {
			return ProviderReceipt{}, fmt.Errorf("sms gateway status %d (code %d): %s", resp.StatusCode, sr.Code, sr.Message)
		}
		return ProviderReceipt{}, fmt.Errorf("sms gateway status %d: %s", resp.StatusCode, truncateBody(body))
	}
	if sr.SID == "" {
		return ProviderReceipt{}, fmt.Errorf("sms gateway returned no message sid")
	}

	switch sr.Status {
	case "failed", "undelivered":
		return ProviderReceipt{}, fmt.Errorf("sms rejected: %s", sr.Status)
	case "accepted", "queued", "scheduled":
		return ProviderReceipt{ProviderMessageID: sr.SID, Queued: true}, nil
	}
	return ProviderReceipt{ProviderMessageID: sr.SID}, nil
}
