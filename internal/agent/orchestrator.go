package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/notification-agent/internal/channel"
	"github.com/ignite/notification-agent/internal/domain"
	"github.com/ignite/notification-agent/internal/metrics"
	"github.com/ignite/notification-agent/internal/pkg/logger"
	"github.com/ignite/notification-agent/internal/render"
)

// PlanSelector returns cooldown-acquired plans in priority order.
type PlanSelector interface {
	Select(ctx context.Context, ev *domain.Event) ([]domain.DispatchPlan, error)
}

// ContentRenderer renders a template for a plan.
type ContentRenderer interface {
	Render(ctx context.Context, ref domain.TemplateRef, locale string, vars map[string]any) (domain.Rendered, error)
}

// Sender hands a message to its channel transport.
type Sender interface {
	Send(ctx context.Context, msg channel.Message) (channel.DeliveryHandle, error)
}

// Recorder persists the initial delivery record.
type Recorder interface {
	Record(ctx context.Context, rec *domain.DeliveryRecord) error
}

// PlanOutcome reports what happened to one dispatch plan.
type PlanOutcome struct {
	RuleID     string                `json:"ruleId"`
	Channel    domain.Channel        `json:"channel"`
	TemplateID string                `json:"templateId,omitempty"`
	DeliveryID string                `json:"deliveryId,omitempty"`
	Status     domain.DeliveryStatus `json:"status,omitempty"`
	Skipped    bool                  `json:"skipped,omitempty"`
	Error      string                `json:"error,omitempty"`
}

// Result summarizes one handled event.
type Result struct {
	TriggerEvent string        `json:"triggerEvent"`
	RecipientID  string        `json:"recipientId"`
	Selected     int           `json:"selected"`
	Dispatched   int           `json:"dispatched"`
	Failed       int           `json:"failed"`
	Skipped      int           `json:"skipped"`
	Plans        []PlanOutcome `json:"plans"`
}

// Orchestrator drives selector → renderer → dispatcher → tracker.
type Orchestrator struct {
	selector PlanSelector
	renderer ContentRenderer
	sender   Sender
	recorder Recorder
	now      func() time.Time
}

// New creates an orchestrator.
func New(selector PlanSelector, renderer ContentRenderer, sender Sender, recorder Recorder) *Orchestrator {
	return &Orchestrator{selector: selector, renderer: renderer, sender: sender, recorder: recorder, now: time.Now}
}

type prepared struct {
	idx     int
	plan    domain.DispatchPlan
	content domain.Rendered
}

// Handle processes one event. The returned error is non-nil only for an
// invalid event or a declined one; per-plan failures are in the Result.
func (o *Orchestrator) Handle(ctx context.Context, ev *domain.Event) (Result, error) {
	if err := ev.Validate(); err != nil {
		metrics.EventsHandled.WithLabelValues(ev.TriggerEvent, "invalid").Inc()
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	res := Result{TriggerEvent: ev.TriggerEvent, RecipientID: ev.RecipientID, Plans: []PlanOutcome{}}

	plans, err := o.selector.Select(ctx, ev)
	if err != nil {
		metrics.EventsHandled.WithLabelValues(ev.TriggerEvent, "declined").Inc()
		logger.Error("agent: event declined", "trigger", ev.TriggerEvent, "recipient_id", ev.RecipientID, "error", err)
		return res, fmt.Errorf("%w: %w", ErrDeclined, err)
	}
	res.Selected = len(plans)
	res.Plans = make([]PlanOutcome, len(plans))

	var ready []prepared
	for i, p := range plans {
		res.Plans[i] = PlanOutcome{RuleID: p.Rule.ID, Channel: p.Channel, TemplateID: p.TemplateRef.TemplateID}
		content, err := o.renderer.Render(ctx, p.TemplateRef, ev.Locale, ev.Context)
		if err != nil {
			metrics.RenderFailures.WithLabelValues(renderReason(err)).Inc()
			logger.Warn("agent: render failed, skipping plan",
				"rule_id", p.Rule.ID, "template", p.TemplateRef.CacheKey(), "recipient_id", ev.RecipientID, "error", err)
			res.Plans[i].Skipped = true
			res.Plans[i].Error = err.Error()
			res.Skipped++
			continue
		}
		res.Plans[i].TemplateID = content.TemplateID
		ready = append(ready, prepared{idx: i, plan: p, content: content})
	}

	var wg sync.WaitGroup
	for _, pr := range ready {
		wg.Add(1)
		go func(pr prepared) {
			defer wg.Done()
			res.Plans[pr.idx] = o.dispatch(ctx, ev, pr)
		}(pr)
	}
	wg.Wait()

	for _, p := range res.Plans {
		if p.Skipped {
			continue
		}
		if p.Status == domain.StatusFailed {
			res.Failed++
		} else {
			res.Dispatched++
		}
	}

	result := "no_match"
	switch {
	case res.Dispatched > 0:
		result = "dispatched"
	case res.Selected > 0:
		result = "not_dispatched"
	}
	metrics.EventsHandled.WithLabelValues(ev.TriggerEvent, result).Inc()
	logger.Info("agent: event handled",
		"trigger", ev.TriggerEvent, "recipient_id", ev.RecipientID,
		"selected", res.Selected, "dispatched", res.Dispatched, "failed", res.Failed, "skipped", res.Skipped)
	return res, nil
}

// dispatch sends one rendered plan and records the delivery. Each call owns
// its slot in the result so no locking is needed.
func (o *Orchestrator) dispatch(ctx context.Context, ev *domain.Event, pr prepared) PlanOutcome {
	out := PlanOutcome{RuleID: pr.plan.Rule.ID, Channel: pr.plan.Channel, TemplateID: pr.content.TemplateID}
	deliveryID := uuid.New().String()

	handle, sendErr := o.sender.Send(ctx, channel.Message{
		DeliveryID:  deliveryID,
		Channel:     pr.plan.Channel,
		RecipientID: ev.RecipientID,
		Context:     ev.Context,
		Content:     pr.content,
	})

	rec := &domain.DeliveryRecord{
		ID:                deliveryID,
		RuleID:            pr.plan.Rule.ID,
		RecipientID:       ev.RecipientID,
		AgentType:         pr.plan.Rule.AgentType,
		Channel:           pr.plan.Channel,
		TemplateID:        pr.content.TemplateID,
		Locale:            pr.content.Locale,
		Title:             pr.content.Title,
		Body:              pr.content.Body,
		ActionURL:         pr.content.ActionURL,
		Status:            handle.Status,
		ProviderMessageID: handle.ProviderMessageID,
		CreatedAt:         o.now().UTC(),
	}
	if sendErr != nil {
		rec.Status = domain.StatusFailed
		rec.Error = sendErr.Error()
		out.Error = rec.Error
	}

	// The send already happened; record it even if the caller has gone.
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.recorder.Record(recCtx, rec); err != nil {
		logger.Error("agent: failed to record delivery",
			"delivery_id", deliveryID, "rule_id", rec.RuleID, "status", rec.Status, "error", err)
	}

	out.DeliveryID = rec.ID
	out.Status = rec.Status
	return out
}

func renderReason(err error) string {
	var missing *render.MissingVariableError
	var cfg *domain.ConfigurationError
	switch {
	case errors.As(err, &missing):
		return "missing_variable"
	case errors.As(err, &cfg):
		return "configuration"
	case errors.Is(err, render.ErrTemplateNotFound):
		return "not_found"
	}
	return "other"
}
