// Package selector turns an event into an ordered list of dispatch plans.
package selector

import (
	"context"
	"fmt"
	"strings"

	"github.com/ignite/notification-agent/internal/catalog"
	"github.com/ignite/notification-agent/internal/condition"
	"github.com/ignite/notification-agent/internal/cooldown"
	"github.com/ignite/notification-agent/internal/domain"
	"github.com/ignite/notification-agent/internal/metrics"
	"github.com/ignite/notification-agent/internal/pkg/logger"
)

// SnapshotProvider is the catalog view the selector reads.
type SnapshotProvider interface {
	Snapshot() (*catalog.Snapshot, error)
}

// Selector matches rules and acquires their cooldowns.
type Selector struct {
	rules     SnapshotProvider
	cooldowns cooldown.Store
	scope     cooldown.KeyScope
}

// New creates a Selector.
func New(rules SnapshotProvider, cooldowns cooldown.Store, scope cooldown.KeyScope) *Selector {
	if scope == "" {
		scope = cooldown.ScopeRule
	}
	return &Selector{rules: rules, cooldowns: cooldowns, scope: scope}
}

// Select returns the plans for ev in descending priority.
//
// Candidates are walked in priority order and each cooldown is acquired
// inside that loop, so a denied rule never blocks the next one. An
// acquisition is not released if a later step fails. Any catalog or
// cooldown outage returns no plans and an error: nothing may fire without
// suppression guarantees.
func (s *Selector) Select(ctx context.Context, ev *domain.Event) ([]domain.DispatchPlan, error) {
	snap, err := s.rules.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}

	var plans []domain.DispatchPlan
	for _, cr := range snap.Candidates(ev.TriggerEvent) {
		if !condition.Matches(cr.Predicate, ev.Context) {
			continue
		}

		key := s.scope.KeyFor(&cr.Rule, ev.RecipientID)
		ok, err := s.cooldowns.TryAcquire(ctx, key, cr.CooldownHours)
		if err != nil {
			if len(plans) > 0 {
				// already stamped; they stay suppressed for their window without a send
				logger.Warn("selector: declining event with cooldowns already acquired",
					"recipient_id", ev.RecipientID, "trigger", ev.TriggerEvent,
					"acquired_rule_ids", planRuleIDs(plans), "failed_rule_id", cr.ID, "error", err)
			}
			return nil, fmt.Errorf("select %s: %w", cr.ID, err)
		}
		if !ok {
			metrics.CooldownDenied.WithLabelValues(string(cr.AgentType)).Inc()
			logger.Debug("selector: cooldown active", "rule_id", cr.ID, "recipient_id", ev.RecipientID)
			continue
		}

		metrics.RulesSelected.WithLabelValues(string(cr.AgentType)).Inc()
		plans = append(plans, domain.DispatchPlan{
			Rule:        cr.Rule,
			Channel:     cr.ActionConfig.Channel,
			TemplateRef: cr.Rule.TemplateRef(),
		})
	}
	return plans, nil
}

func planRuleIDs(plans []domain.DispatchPlan) string {
	ids := make([]string, len(plans))
	for i, p := range plans {
		ids[i] = p.Rule.ID
	}
	return strings.Join(ids, ",")
}
