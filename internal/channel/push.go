package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ignite/notification-agent/internal/domain"
	"github.com/ignite/notification-agent/internal/pkg/httpretry"
)

// PushAdapter posts to an Expo-style push gateway.
type PushAdapter struct {
	client      httpretry.HTTPDoer
	gatewayURL  string
	accessToken string
}

// NewPushAdapter creates a push adapter. client is usually a
// *httpretry.RetryClient.
func NewPushAdapter(client httpretry.HTTPDoer, gatewayURL, accessToken string) *PushAdapter {
	return &PushAdapter{client: client, gatewayURL: gatewayURL, accessToken: accessToken}
}

type pushRequest struct {
	To    string            `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Sound string            `json:"sound,omitempty"`
	Data  map[string]string `json:"data,omitempty"`
}

type pushTicket struct {
	Status  string `json:"status"`
	ID      string `json:"id"`
	Message string `json:"message"`
	Details struct {
		Error string `json:"error"`
	} `json:"details"`
}

type pushResponse struct {
	Data   pushTicket `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (a *PushAdapter) Channel() domain.Channel { return domain.ChannelPush }

func (a *PushAdapter) Send(ctx context.Context, msg Message) (ProviderReceipt, error) {
	data := map[string]string{"deliveryId": msg.DeliveryID}
	if msg.Content.ActionURL != "" {
		data["url"] = msg.Content.ActionURL
	}
	payload, err := json.Marshal(pushRequest{
		To: msg.Address, Title: msg.Content.Title, Body: msg.Content.Body, Sound: "default", Data: data,
	})
	if err != nil {
		return ProviderReceipt{}, fmt.Errorf("push marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.gatewayURL, bytes.NewReader(payload))
	if err != nil {
		return ProviderReceipt{}, fmt.Errorf("push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if a.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+a.accessToken)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return ProviderReceipt{}, fmt.Errorf("push gateway: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 300 {
		return ProviderReceipt{}, fmt.Errorf("push gateway status %d: %s", resp.StatusCode, truncateBody(body))
	}
	var pr pushResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return ProviderReceipt{}, fmt.Errorf("push decode: %w", err)
	}
	if len(pr.Errors) > 0 {
		return ProviderReceipt{}, fmt.Errorf("push gateway error %s: %s", pr.Errors[0].Code, pr.Errors[0].Message)
	}
	if pr.Data.Status != "ok" {
		return ProviderReceipt{}, fmt.Errorf("push ticket %s: %s %s", pr.Data.Status, pr.Data.Details.Error, pr.Data.Message)
	}
	return ProviderReceipt{ProviderMessageID: pr.Data.ID}, nil
}

func truncateBody(b []byte) string {
	if len(b) > 256 {
		return string(b[:256]) + "..."
	}
	return string(b)
}
