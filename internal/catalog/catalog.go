package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ignite/notification-agent/internal/condition"
	"github.com/ignite/notification-agent/internal/domain"
	"github.com/ignite/notification-agent/internal/metrics"
	"github.com/ignite/notification-agent/internal/pkg/logger"
	"github.com/ignite/notification-agent/internal/render"
)

// Catalog serves the current rule snapshot.
type Catalog struct {
	source       RuleSource
	templates    TemplateChecker
	interval     time.Duration
	maxStaleness time.Duration
	current      atomic.Pointer[Snapshot]
	lastErr      atomic.Value // string
	now          func() time.Time
}

// New creates a Catalog. interval drives Start; maxStaleness bounds how old
// a served snapshot may be (zero disables the bound).
func New(source RuleSource, interval, maxStaleness time.Duration) *Catalog {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Catalog{
		source:       source,
		interval:     interval,
		maxStaleness: maxStaleness,
		now:          time.Now,
	}
}

// TemplateChecker confirms the template a rule renders resolves and
// compiles. *render.Renderer satisfies it.
type TemplateChecker interface {
	Check(ctx context.Context, ref domain.TemplateRef) error
}

// WithTemplateChecker makes Refresh exclude rules whose template is missing
// or fails to compile.
func (c *Catalog) WithTemplateChecker(tc TemplateChecker) *Catalog {
	c.templates = tc
	return c
}

// Refresh loads the source and swaps in a new snapshot. On error the
// previous snapshot stays in place.
func (c *Catalog) Refresh(ctx context.Context) error {
	rules, err := c.source.ListActiveRules(ctx)
	if err != nil {
		metrics.CatalogRefreshes.WithLabelValues("error").Inc()
		c.lastErr.Store(err.Error())
		return fmt.Errorf("catalog refresh: %w", err)
	}

	compiled := make([]*CompiledRule, 0, len(rules))
	var excluded []Exclusion
	for i := range rules {
		r := rules[i]
		if !r.IsActive {
			continue
		}
		cr, err := compile(r)
		if err != nil {
			excluded = append(excluded, Exclusion{RuleID: r.ID, Reason: err.Error()})
			logger.Warn("catalog: rule excluded", "rule_id", r.ID, "error", err)
			continue
		}
		if err := c.checkTemplate(ctx, cr); err != nil {
			excluded = append(excluded, Exclusion{RuleID: r.ID, Reason: err.Error()})
			logger.Warn("catalog: rule excluded, template unusable", "rule_id", r.ID, "template", cr.TemplateRef().CacheKey(), "error", err)
			continue
		}
		compiled = append(compiled, cr)
	}

	snap := buildSnapshot(compiled, excluded, c.now())
	c.current.Store(snap)
	c.lastErr.Store("")

	metrics.CatalogRefreshes.WithLabelValues("ok").Inc()
	metrics.CatalogRules.Set(float64(snap.Size()))
	metrics.CatalogExcluded.Set(float64(len(excluded)))
	logger.Info("catalog: snapshot loaded", "rules", snap.Size(), "excluded", len(excluded), "triggers", len(snap.byTrigger))
	return nil
}

// compile validates a rule and builds its predicate. Every failure is a
// *domain.ConfigurationError.
func compile(r domain.Rule) (*CompiledRule, error) {
	if r.ActionType == "" {
		r.ActionType = domain.ActionSendNotification
	}
	if ch, ok := domain.ParseChannel(string(r.ActionConfig.Channel)); ok {
		r.ActionConfig.Channel = ch
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	pred, err := condition.Compile(r.ID, r.TriggerConditions)
	if err != nil {
		var cfgErr *domain.ConfigurationError
		if errors.As(err, &cfgErr) {
			return nil, err
		}
		return nil, &domain.ConfigurationError{Kind: "rule", ID: r.ID, Reason: err.Error()}
	}
	return &CompiledRule{Rule: r, Predicate: pred}, nil
}

// checkTemplate returns an error only for authoring defects. A template
// store outage keeps the rule; rendering will fail per plan if it persists.
func (c *Catalog) checkTemplate(ctx context.Context, cr *CompiledRule) error {
	if c.templates == nil {
		return nil
	}
	err := c.templates.Check(ctx, cr.TemplateRef())
	if err == nil {
		return nil
	}
	var cfgErr *domain.ConfigurationError
	if errors.As(err, &cfgErr) || errors.Is(err, render.ErrTemplateNotFound) {
		return err
	}
	logger.Warn("catalog: template check failed, keeping rule", "rule_id", cr.ID, "error", err)
	return nil
}

// Snapshot returns the current snapshot or ErrUnavailable.
func (c *Catalog) Snapshot() (*Snapshot, error) {
	snap := c.current.Load()
	if snap == nil {
		return nil, ErrUnavailable
	}
	if c.maxStaleness > 0 && c.now().Sub(snap.loadedAt) > c.maxStaleness {
		return nil, fmt.Errorf("%w: snapshot from %s is stale", ErrUnavailable, snap.loadedAt.Format(time.RFC3339))
	}
	return snap, nil
}

// Start refreshes immediately and then on every interval until ctx is done.
// Refresh errors are logged; the loop keeps going.
func (c *Catalog) Start(ctx context.Context) {
	if err := c.Refresh(ctx); err != nil {
		logger.Error("catalog: initial load failed", "error", err)
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				logger.Error("catalog: refresh failed, keeping previous snapshot", "error", err)
			}
		}
	}
}

// Stats is the read model behind GET /v1/catalog.
type Stats struct {
	Loaded    bool           `json:"loaded"`
	Stale     bool           `json:"stale"`
	LoadedAt  *time.Time     `json:"loaded_at,omitempty"`
	Rules     int            `json:"rules"`
	Triggers  map[string]int `json:"triggers"`
	Excluded  []Exclusion    `json:"excluded"`
	LastError string         `json:"last_error,omitempty"`
}

// Stats describes the current snapshot even when it is stale.
func (c *Catalog) Stats() Stats {
	st := Stats{Triggers: map[string]int{}, Excluded: []Exclusion{}}
	if v, ok := c.lastErr.Load().(string); ok {
		st.LastError = v
	}
	snap := c.current.Load()
	if snap == nil {
		return st
	}
	at := snap.loadedAt
	st.Loaded = true
	st.LoadedAt = &at
	st.Stale = c.maxStaleness > 0 && c.now().Sub(at) > c.maxStaleness
	st.Rules = snap.size
	st.Triggers = snap.Triggers()
	if snap.excluded != nil {
		st.Excluded = snap.excluded
	}
	return st
}
