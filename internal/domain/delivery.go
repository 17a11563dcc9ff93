package domain

import (
	"strings"
	"time"
)

// DeliveryStatus is the lifecycle state of one dispatched notification.
type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "PENDING"
	StatusSent      DeliveryStatus = "SENT"
	StatusDelivered DeliveryStatus = "DELIVERED"
	StatusOpened    DeliveryStatus = "OPENED"
	StatusClicked   DeliveryStatus = "CLICKED"
	StatusFailed    DeliveryStatus = "FAILED"
	StatusBounced   DeliveryStatus = "BOUNCED"
)

// forward ranks the happy path. Terminal failure states are not ranked.
var forward = map[DeliveryStatus]int{
	StatusPending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusOpened:    3,
	StatusClicked:   4,
}

// ParseDeliveryStatus accepts upper or lower case names.
func ParseDeliveryStatus(s string) (DeliveryStatus, bool) {
	st := DeliveryStatus(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := forward[st]; ok {
		return st, true
	}
	if st == StatusFailed || st == StatusBounced {
		return st, true
	}
	return "", false
}

// IsTerminalFailure reports FAILED or BOUNCED.
func (s DeliveryStatus) IsTerminalFailure() bool {
	return s == StatusFailed || s == StatusBounced
}

// Outcome classifies a requested transition.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeAnomalous Outcome = "anomalous"
)

// NextStatus decides what happens when a record in current receives target.
//
// Forward moves along PENDING→SENT→DELIVERED→OPENED→CLICKED are applied,
// including skips. FAILED and BOUNCED are only reachable from PENDING or
// SENT. Repeating the current status is a duplicate. Everything else,
// including leaving a terminal failure, is anomalous.
func NextStatus(current, target DeliveryStatus) Outcome {
	if current == target {
		return OutcomeDuplicate
	}
	if current.IsTerminalFailure() {
		return OutcomeAnomalous
	}
	cur, ok := forward[current]
	if !ok {
		return OutcomeAnomalous
	}
	if target.IsTerminalFailure() {
		if current == StatusPending || current == StatusSent {
			return OutcomeApplied
		}
		return OutcomeAnomalous
	}
	next, ok := forward[target]
	if !ok || next < cur {
		return OutcomeAnomalous
	}
	return OutcomeApplied
}

// DeliveryRecord tracks one dispatched notification. Title and body are
// the rendered snapshot and are never re-rendered.
type DeliveryRecord struct {
	ID                string         `json:"id" db:"id"`
	RuleID            string         `json:"rule_id" db:"rule_id"`
	RecipientID       string         `json:"recipient_id" db:"recipient_id"`
	AgentType         AgentType      `json:"agent_type" db:"agent_type"`
	Channel           Channel        `json:"channel" db:"channel"`
	TemplateID        string         `json:"template_id" db:"template_id"`
	Locale            string         `json:"locale,omitempty" db:"locale"`
	Title             string         `json:"title" db:"title"`
	Body              string         `json:"body" db:"body"`
	ActionURL         string         `json:"action_url,omitempty" db:"action_url"`
	Status            DeliveryStatus `json:"status" db:"status"`
	ProviderMessageID string         `json:"provider_message_id,omitempty" db:"provider_message_id"`
	Error             string         `json:"error,omitempty" db:"error"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
	SentAt            *time.Time     `json:"sent_at,omitempty" db:"sent_at"`
	DeliveredAt       *time.Time     `json:"delivered_at,omitempty" db:"delivered_at"`
	OpenedAt          *time.Time     `json:"opened_at,omitempty" db:"opened_at"`
	ClickedAt         *time.Time     `json:"clicked_at,omitempty" db:"clicked_at"`
	FailedAt          *time.Time     `json:"failed_at,omitempty" db:"failed_at"`
	UpdatedAt         time.Time      `json:"updated_at" db:"updated_at"`
}

// Transition moves the record to target at the given instant and returns
// the outcome. The record is only mutated when the outcome is applied.
// Timestamps already set are kept; timestamps implied by a forward skip
// are filled with at.
func (r *DeliveryRecord) Transition(target DeliveryStatus, at time.Time, errMsg string) Outcome {
	out := NextStatus(r.Status, target)
	if out != OutcomeApplied {
		return out
	}
	at = at.UTC()
	if target.IsTerminalFailure() {
		setOnce(&r.FailedAt, at)
		if errMsg != "" {
			r.Error = errMsg
		}
	} else {
		rank := forward[target]
		if rank >= forward[StatusSent] {
			setOnce(&r.SentAt, at)
		}
		if rank >= forward[StatusDelivered] {
			setOnce(&r.DeliveredAt, at)
		}
		if rank >= forward[StatusOpened] {
			setOnce(&r.OpenedAt, at)
		}
		if rank >= forward[StatusClicked] {
			setOnce(&r.ClickedAt, at)
		}
	}
	r.Status = target
	r.UpdatedAt = at
	return out
}

func setOnce(dst **time.Time, at time.Time) {
	if *dst == nil {
		t := at
		*dst = &t
	}
}
