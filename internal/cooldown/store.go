package cooldown

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/notification-agent/internal/domain"
)

// Store is the atomic acquire primitive shared by all backends.
type Store interface {
	// TryAcquire returns true when the fire is allowed and has been
	// recorded. cooldownHours nil or zero always acquires.
	TryAcquire(ctx context.Context, key Key, cooldownHours *int) (bool, error)
}

// KeyScope decides which identifiers make up a cooldown key.
type KeyScope string

const (
	ScopeRule          KeyScope = "rule"
	ScopeRuleAgentType KeyScope = "rule_agent_type"
)

// ParseKeyScope maps a config value to a scope.
func ParseKeyScope(s string) (KeyScope, error) {
	switch KeyScope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeRule, "":
		return ScopeRule, nil
	case ScopeRuleAgentType:
		return ScopeRuleAgentType, nil
	}
	return "", fmt.Errorf("cooldown: unknown key scope %q", s)
}

// Key identifies one cooldown record.
type Key struct {
	Scope       KeyScope
	AgentType   domain.AgentType
	RuleID      string
	RecipientID string
}

// KeyFor builds the key for a rule firing to a recipient.
func (s KeyScope) KeyFor(rule *domain.Rule, recipientID string) Key {
	return Key{Scope: s, AgentType: rule.AgentType, RuleID: rule.ID, RecipientID: recipientID}
}

// String is the storage form of the key.
func (k Key) String() string {
	if k.Scope == ScopeRuleAgentType {
		return string(k.AgentType) + ":" + k.RuleID + ":" + k.RecipientID
	}
	return k.RuleID + ":" + k.RecipientID
}

// window converts cooldownHours to a duration; zero means no suppression.
func window(cooldownHours *int) time.Duration {
	if cooldownHours == nil || *cooldownHours <= 0 {
		return 0
	}
	return time.Duration(*cooldownHours) * time.Hour
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
