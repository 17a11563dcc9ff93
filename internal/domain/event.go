package domain

import (
	"fmt"
	"time"
)

// Event is an ephemeral lifecycle occurrence for one recipient. It is never
// persisted by the engine.
type Event struct {
	TriggerEvent string         `json:"triggerEvent"`
	RecipientID  string         `json:"recipientId"`
	Locale       string         `json:"locale,omitempty"`
	Context      map[string]any `json:"context"`
	OccurredAt   time.Time      `json:"occurredAt,omitempty"`
}

// Validate checks the fields every event must carry.
func (e *Event) Validate() error {
	if e.TriggerEvent == "" {
		return fmt.Errorf("event: triggerEvent is required")
	}
	if e.RecipientID == "" {
		return fmt.Errorf("event: recipientId is required")
	}
	return nil
}

// DispatchPlan pairs a selected rule with its resolved delivery target.
type DispatchPlan struct {
	Rule        Rule        `json:"rule"`
	Channel     Channel     `json:"channel"`
	TemplateRef TemplateRef `json:"template_ref"`
}

// ConfigurationError marks a malformed rule or template found at load time.
type ConfigurationError struct {
	Kind   string // "rule" or "template"
	ID     string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("invalid %s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("invalid %s %s: %s", e.Kind, e.ID, e.Reason)
}
