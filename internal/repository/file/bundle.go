// Package file serves rules and templates from a YAML bundle on disk. The
// file is re-read whenever its modification time changes, so edits reach
// the catalog on its next refresh without a restart.
package file

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ignite/notification-agent/internal/domain"
	"github.com/ignite/notification-agent/internal/pkg/logger"
	"github.com/ignite/notification-agent/internal/render"
)

// Bundle implements catalog.RuleSource and render.TemplateSource.
type Bundle struct {
	path string

	mu        sync.Mutex
	modTime   time.Time
	rules     []domain.Rule
	templates []domain.Template
}

// NewBundle creates a bundle source. The file is read lazily.
func NewBundle(path string) *Bundle {
	return &Bundle{path: path}
}

type bundleDoc struct {
	Rules     []ruleDoc     `yaml:"rules"`
	Templates []templateDoc `yaml:"templates"`
}

type templateDoc struct {
	domain.Template `yaml:",inline"`
	IsActive        *bool `yaml:"is_active"`
}

// ruleDoc mirrors domain.Rule but keeps trigger_conditions and
// action_config as nodes: conditions decode in document order in either
// form, and a malformed rule can be skipped without failing the bundle.
type ruleDoc struct {
	ID                string              `yaml:"id"`
	Name              string              `yaml:"name"`
	AgentType         domain.AgentType    `yaml:"agent_type"`
	TriggerEvent      string              `yaml:"trigger_event"`
	TriggerConditions yaml.Node           `yaml:"trigger_conditions"`
	ActionType        string              `yaml:"action_type"`
	ActionConfig      yaml.Node           `yaml:"action_config"`
	Priority          int                 `yaml:"priority"`
	CooldownHours     *int                `yaml:"cooldown_hours"`
	IsActive          *bool               `yaml:"is_active"`
}

func (d ruleDoc) toRule() (domain.Rule, error) {
	conds, err := decodeConditions(&d.TriggerConditions)
	if err != nil {
		return domain.Rule{}, fmt.Errorf("rule %s trigger_conditions: %w", d.ID, err)
	}
	var action domain.ActionConfig
	if d.ActionConfig.Kind != 0 {
		if err := d.ActionConfig.Decode(&action); err != nil {
			return domain.Rule{}, fmt.Errorf("rule %s action_config: %w", d.ID, err)
		}
	}
	active := d.IsActive == nil || *d.IsActive
	return domain.Rule{
		ID:                d.ID,
		Name:              d.Name,
		AgentType:         d.AgentType,
		TriggerEvent:      d.TriggerEvent,
		TriggerConditions: conds,
		ActionType:        d.ActionType,
		ActionConfig:      action,
		Priority:          d.Priority,
		CooldownHours:     d.CooldownHours,
		IsActive:          active,
	}, nil
}

func decodeConditions(n *yaml.Node) ([]domain.Condition, error) {
	switch n.Kind {
	case 0:
		return nil, nil
	case yaml.SequenceNode:
		var list []domain.Condition
		if err := n.Decode(&list); err != nil {
			return nil, err
		}
		return list, nil
	case yaml.MappingNode:
		out := make([]domain.Condition, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			var v any
			if err := n.Content[i+1].Decode(&v); err != nil {
				return nil, err
			}
			out = append(out, domain.Condition{Field: n.Content[i].Value, Value: v})
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected mapping or list, got %s", n.Tag)
}

func (b *Bundle) load() error {
	info, err := os.Stat(b.path)
	if err != nil {
		return fmt.Errorf("stat bundle: %w", err)
	}
	if !b.modTime.IsZero() && info.ModTime().Equal(b.modTime) {
		return nil
	}

	data, err := os.ReadFile(b.path)
	if err != nil {
		return fmt.Errorf("read bundle: %w", err)
	}
	var doc bundleDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse bundle: %w", err)
	}

	rules := make([]domain.Rule, 0, len(doc.Rules))
	for _, rd := range doc.Rules {
		r, err := rd.toRule()
		if err != nil {
			// the catalog never sees it; the rest of the bundle still loads
			logger.Warn("bundle: rule excluded", "rule_id", rd.ID, "path", b.path, "error", err)
			continue
		}
		r.UpdatedAt = info.ModTime()
		rules = append(rules, r)
	}
	templates := make([]domain.Template, 0, len(doc.Templates))
	for _, td := range doc.Templates {
		t := td.Template
		t.IsActive = td.IsActive == nil || *td.IsActive
		t.UpdatedAt = info.ModTime()
		templates = append(templates, t)
	}

	b.rules = rules
	b.templates = templates
	b.modTime = info.ModTime()
	return nil
}

// ListActiveRules implements catalog.RuleSource.
func (b *Bundle) ListActiveRules(_ context.Context) ([]domain.Rule, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.load(); err != nil {
		return nil, err
	}
	out := make([]domain.Rule, 0, len(b.rules))
	for _, r := range b.rules {
		if r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

// GetTemplate implements render.TemplateSource. Templates in the file are
// active unless they say otherwise.
func (b *Bundle) GetTemplate(_ context.Context, ref domain.TemplateRef) (*domain.Template, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.load(); err != nil {
		return nil, err
	}
	for i := range b.templates {
		t := b.templates[i]
		if ref.TemplateID != "" {
			if t.ID != ref.TemplateID {
				continue
			}
		} else if t.AgentType != ref.AgentType || t.Channel != ref.Channel {
			continue
		}
		if !t.IsActive {
			continue
		}
		return &t, nil
	}
	return nil, fmt.Errorf("%w: %s", render.ErrTemplateNotFound, ref.CacheKey())
}
