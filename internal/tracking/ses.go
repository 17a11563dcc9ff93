package tracking

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/notification-agent/internal/delivery"
	"github.com/ignite/notification-agent/internal/domain"
)

// snsEnvelope is the SNS notification wrapper SES events usually arrive in.
type snsEnvelope struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

type sesTimed struct {
	Timestamp time.Time `json:"timestamp"`
}

type sesEvent struct {
	EventType        string `json:"eventType"`
	NotificationType string `json:"notificationType"`
	Mail             struct {
		Timestamp time.Time           `json:"timestamp"`
		MessageID string              `json:"messageId"`
		Tags      map[string][]string `json:"tags"`
	} `json:"mail"`
	Bounce *struct {
		BounceType        string    `json:"bounceType"`
		BounceSubType     string    `json:"bounceSubType"`
		Timestamp         time.Time `json:"timestamp"`
		BouncedRecipients []struct {
			DiagnosticCode string `json:"diagnosticCode"`
		} `json:"bouncedRecipients"`
	} `json:"bounce"`
	Delivery *sesTimed `json:"delivery"`
	Open     *sesTimed `json:"open"`
	Click    *sesTimed `json:"click"`
	Reject   *struct {
		Reason string `json:"reason"`
	} `json:"reject"`
	Failure *struct {
		ErrorMessage string `json:"errorMessage"`
	} `json:"failure"`
}

// unwrapSNS returns the inner message when body is an SNS notification.
func unwrapSNS(body []byte) []byte {
	var env snsEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Type == "Notification" && env.Message != "" {
		return []byte(env.Message)
	}
	return body
}

// isSESEvent reports whether body looks like an SES event notification.
func isSESEvent(body []byte) bool {
	var envelope struct {
		EventType        string          `json:"eventType"`
		NotificationType string          `json:"notificationType"`
		Mail             json.RawMessage `json:"mail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return false
	}
	return len(envelope.Mail) > 0 && (envelope.EventType != "" || envelope.NotificationType != "")
}

// ParseSESEvent maps an SES event to a status update. ok is false for
// event types that do not move the delivery state machine (complaints,
// delivery delays, subscriptions).
func ParseSESEvent(body []byte) (u delivery.StatusUpdate, ok bool, err error) {
	var ev sesEvent
	if err := json.Unmarshal(unwrapSNS(body), &ev); err != nil {
		return u, false, fmt.Errorf("decode ses event: %w", err)
	}
	kind := ev.EventType
	if kind == "" {
		kind = ev.NotificationType
	}

	u = delivery.StatusUpdate{
		Channel:           domain.ChannelEmail,
		ProviderMessageID: ev.Mail.MessageID,
		OccurredAt:        ev.Mail.Timestamp,
	}
	if ids := ev.Mail.Tags["delivery_id"]; len(ids) > 0 {
		u.DeliveryID = ids[0]
	}

	switch strings.ToLower(kind) {
	case "send":
		u.Status = domain.StatusSent
	case "delivery":
		u.Status = domain.StatusDelivered
		if ev.Delivery != nil && !ev.Delivery.Timestamp.IsZero() {
			u.OccurredAt = ev.Delivery.Timestamp
		}
	case "open":
		u.Status = domain.StatusOpened
		if ev.Open != nil && !ev.Open.Timestamp.IsZero() {
			u.OccurredAt = ev.Open.Timestamp
		}
	case "click":
		u.Status = domain.StatusClicked
		if ev.Click != nil && !ev.Click.Timestamp.IsZero() {
			u.OccurredAt = ev.Click.Timestamp
		}
	case "bounce":
		u.Status = domain.StatusBounced
		if b := ev.Bounce; b != nil {
			u.Error = strings.TrimSpace(b.BounceType + " " + b.BounceSubType)
			if len(b.BouncedRecipients) > 0 && b.BouncedRecipients[0].DiagnosticCode != "" {
				u.Error += ": " + b.BouncedRecipients[0].DiagnosticCode
			}
			if !b.Timestamp.IsZero() {
				u.OccurredAt = b.Timestamp
			}
		}
	case "reject":
		u.Status = domain.StatusFailed
		u.Error = "rejected"
		if ev.Reject != nil && ev.Reject.Reason != "" {
			u.Error = "rejected: " + ev.Reject.Reason
		}
	case "rendering failure", "renderingfailure":
		u.Status = domain.StatusFailed
		u.Error = "rendering failure"
		if ev.Failure != nil && ev.Failure.ErrorMessage != "" {
			u.Error = "rendering failure: " + ev.Failure.ErrorMessage
		}
	default:
		return u, false, nil
	}
	return u, true, nil
}
