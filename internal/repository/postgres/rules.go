package postgres

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ignite/notification-agent/internal/domain"
	"github.com/ignite/notification-agent/internal/pkg/logger"
)

// RuleRepo is the read-only rule source backed by agent_rules.
type RuleRepo struct{ db *sql.DB }

// NewRuleRepo creates a Postgres-backed rule source.
func NewRuleRepo(db *sql.DB) *RuleRepo { return &RuleRepo{db: db} }

// ListActiveRules returns every active rule. A row whose JSON columns do
// not decode is skipped with a warning; it never fails the whole listing.
func (r *RuleRepo) ListActiveRules(ctx context.Context) ([]domain.Rule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, agent_type, trigger_event, trigger_conditions,
		       action_type, action_config, priority, cooldown_hours, is_active, updated_at
		FROM agent_rules
		WHERE is_active = true
		ORDER BY priority DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []domain.Rule
	for rows.Next() {
		var (
			rule       domain.Rule
			conds, cfg []byte
			cooldown   sql.NullInt64
		)
		if err := rows.Scan(&rule.ID, &rule.Name, &rule.AgentType, &rule.TriggerEvent, &conds,
			&rule.ActionType, &cfg, &rule.Priority, &cooldown, &rule.IsActive, &rule.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		if cooldown.Valid {
			h := int(cooldown.Int64)
			rule.CooldownHours = &h
		}
		if rule.TriggerConditions, err = DecodeConditions(conds); err != nil {
			logger.Warn("rules: skipping rule with malformed trigger_conditions", "rule_id", rule.ID, "error", err)
			continue
		}
		if len(cfg) > 0 {
			if err := json.Unmarshal(cfg, &rule.ActionConfig); err != nil {
				logger.Warn("rules: skipping rule with malformed action_config", "rule_id", rule.ID, "error", err)
				continue
			}
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

// DecodeConditions accepts either an object {"field": value} or an array
// [{"field": ..., "value": ...}]. Object keys are returned in sorted order
// since JSONB does not keep insertion order. Numbers stay json.Number.
func DecodeConditions(raw []byte) ([]domain.Condition, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	if raw[0] == '[' {
		var list []domain.Condition
		if err := dec.Decode(&list); err != nil {
			return nil, err
		}
		return list, nil
	}

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	fields := make([]string, 0, len(obj))
	for f := range obj {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	out := make([]domain.Condition, 0, len(fields))
	for _, f := range fields {
		out = append(out, domain.Condition{Field: f, Value: obj[f]})
	}
	return out, nil
}
