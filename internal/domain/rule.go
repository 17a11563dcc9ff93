package domain

import (
	"strings"
	"time"
)

// AgentType is the behavioral category a rule belongs to.
type AgentType string

const (
	AgentOnboarding        AgentType = "ONBOARDING"
	AgentRetention         AgentType = "RETENTION"
	AgentStreak            AgentType = "STREAK_GAMIFICATION"
	AgentSubscription      AgentType = "SUBSCRIPTION"
	AgentSleep             AgentType = "SLEEP"
	AgentContentScheduling AgentType = "CONTENT_SCHEDULING"
	AgentMoodWellness      AgentType = "MOOD_WELLNESS"
)

// AllAgentTypes returns every supported agent type.
func AllAgentTypes() []AgentType {
	return []AgentType{
		AgentOnboarding, AgentRetention, AgentStreak, AgentSubscription,
		AgentSleep, AgentContentScheduling, AgentMoodWellness,
	}
}

// Valid reports whether the agent type is one of the known categories.
func (a AgentType) Valid() bool {
	for _, t := range AllAgentTypes() {
		if a == t {
			return true
		}
	}
	return false
}

// Channel identifies a delivery transport.
type Channel string

const (
	ChannelPush  Channel = "PUSH"
	ChannelEmail Channel = "EMAIL"
	ChannelInApp Channel = "IN_APP"
	ChannelSMS   Channel = "SMS"
)

// AllChannels returns every supported channel.
func AllChannels() []Channel {
	return []Channel{ChannelPush, ChannelEmail, ChannelInApp, ChannelSMS}
}

// ParseChannel normalizes a channel name ("push", "in-app", "IN_APP").
func ParseChannel(s string) (Channel, bool) {
	c := Channel(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")))
	for _, known := range AllChannels() {
		if c == known {
			return c, true
		}
	}
	return "", false
}

// ActionSendNotification is the only action type the engine executes today.
const ActionSendNotification = "send_notification"

// Condition is one stored trigger condition: a context field and the raw
// expected value as persisted (scalar, list, or operator object).
type Condition struct {
	Field string `json:"field" yaml:"field"`
	Value any    `json:"value" yaml:"value"`
}

// ActionConfig holds the delivery target of a rule.
type ActionConfig struct {
	Channel    Channel `json:"channel" yaml:"channel"`
	TemplateID string  `json:"template_id,omitempty" yaml:"template_id"`
}

// Rule is a prioritized behavioral rule. Rules are read-only to the engine.
type Rule struct {
	ID                string       `json:"id" db:"id" yaml:"id"`
	Name              string       `json:"name" db:"name" yaml:"name"`
	AgentType         AgentType    `json:"agent_type" db:"agent_type" yaml:"agent_type"`
	TriggerEvent      string       `json:"trigger_event" db:"trigger_event" yaml:"trigger_event"`
	TriggerConditions []Condition  `json:"trigger_conditions" db:"trigger_conditions" yaml:"trigger_conditions"`
	ActionType        string       `json:"action_type" db:"action_type" yaml:"action_type"`
	ActionConfig      ActionConfig `json:"action_config" db:"action_config" yaml:"action_config"`
	Priority          int          `json:"priority" db:"priority" yaml:"priority"`
	CooldownHours     *int         `json:"cooldown_hours,omitempty" db:"cooldown_hours" yaml:"cooldown_hours"`
	IsActive          bool         `json:"is_active" db:"is_active" yaml:"is_active"`
	UpdatedAt         time.Time    `json:"updated_at" db:"updated_at" yaml:"-"`
}

// HasCooldown reports whether the rule suppresses repeat fires.
func (r *Rule) HasCooldown() bool {
	return r.CooldownHours != nil && *r.CooldownHours > 0
}

// TemplateRef is the template the rule's notifications render.
func (r *Rule) TemplateRef() TemplateRef {
	return TemplateRef{
		TemplateID: r.ActionConfig.TemplateID,
		AgentType:  r.AgentType,
		Channel:    r.ActionConfig.Channel,
	}
}

// Validate checks the parts of a rule that do not depend on condition
// compilation. Returns a *ConfigurationError describing the first defect.
func (r *Rule) Validate() error {
	switch {
	case r.ID == "":
		return &ConfigurationError{Kind: "rule", Reason: "missing id"}
	case r.TriggerEvent == "":
		return &ConfigurationError{Kind: "rule", ID: r.ID, Reason: "missing trigger event"}
	case !r.AgentType.Valid():
		return &ConfigurationError{Kind: "rule", ID: r.ID, Reason: "unknown agent type " + string(r.AgentType)}
	case r.ActionType != "" && r.ActionType != ActionSendNotification:
		return &ConfigurationError{Kind: "rule", ID: r.ID, Reason: "unsupported action type " + r.ActionType}
	case r.CooldownHours != nil && *r.CooldownHours < 0:
		return &ConfigurationError{Kind: "rule", ID: r.ID, Reason: "negative cooldown"}
	}
	if _, ok := ParseChannel(string(r.ActionConfig.Channel)); !ok {
		return &ConfigurationError{Kind: "rule", ID: r.ID, Reason: "unknown channel " + string(r.ActionConfig.Channel)}
	}
	return nil
}
