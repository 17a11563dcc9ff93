package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/notification-agent/internal/domain"
	"github.com/ignite/notification-agent/internal/metrics"
	"github.com/ignite/notification-agent/internal/pkg/logger"
)

// StatusUpdate is one provider callback. Either DeliveryID or the
// (Channel, ProviderMessageID) pair identifies the record.
type StatusUpdate struct {
	DeliveryID        string                `json:"deliveryId,omitempty"`
	Channel           domain.Channel        `json:"channel,omitempty"`
	ProviderMessageID string                `json:"providerMessageId,omitempty"`
	Status            domain.DeliveryStatus `json:"status"`
	Error             string                `json:"error,omitempty"`
	OccurredAt        time.Time             `json:"occurredAt,omitempty"`
}

// Validate checks that the update names a record and a known status.
func (u StatusUpdate) Validate() error {
	if u.DeliveryID == "" && u.ProviderMessageID == "" {
		return fmt.Errorf("%w: deliveryId or providerMessageId is required", ErrBadUpdate)
	}
	if _, ok := domain.ParseDeliveryStatus(string(u.Status)); !ok {
		return fmt.Errorf("%w: unknown status %q", ErrBadUpdate, u.Status)
	}
	return nil
}

// Tracker owns delivery record creation and status transitions.
// All methods are safe for concurrent use if the repository is.
type Tracker struct {
	repo       Repository
	maxRetries int
	now        func() time.Time
}

// NewTracker creates a tracker. maxRetries bounds CAS attempts per update.
func NewTracker(repo Repository, maxRetries int) *Tracker {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Tracker{repo: repo, maxRetries: maxRetries, now: time.Now}
}

// Record persists the initial record for a dispatch. Only PENDING, SENT
// and FAILED are valid starting states.
func (t *Tracker) Record(ctx context.Context, rec *domain.DeliveryRecord) error {
	switch rec.Status {
	case domain.StatusPending, domain.StatusSent, domain.StatusFailed:
	case "":
		rec.Status = domain.StatusPending
	default:
		return fmt.Errorf("%w: record cannot start in %s", ErrBadUpdate, rec.Status)
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := t.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	switch rec.Status {
	case domain.StatusSent:
		if rec.SentAt == nil {
			rec.SentAt = &now
		}
	case domain.StatusFailed:
		if rec.FailedAt == nil {
			rec.FailedAt = &now
		}
	}

	if err := t.repo.Create(ctx, rec); err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	metrics.Transitions.WithLabelValues(string(rec.Status), "created").Inc()
	return nil
}

// Apply moves a record toward u.Status. Duplicates and anomalies are not
// errors: they are counted, logged, and reported through the outcome.
// Lost CAS races reload the record and retry up to maxRetries times.
func (t *Tracker) Apply(ctx context.Context, u StatusUpdate) (domain.Outcome, error) {
	if err := u.Validate(); err != nil {
		return "", err
	}
	target, _ := domain.ParseDeliveryStatus(string(u.Status))
	at := u.OccurredAt
	if at.IsZero() {
		at = t.now()
	}

	for attempt := 0; attempt < t.maxRetries; attempt++ {
		rec, err := t.load(ctx, u)
		if err != nil {
			return "", err
		}
		expected := rec.Status

		out := rec.Transition(target, at, u.Error)
		metrics.Transitions.WithLabelValues(string(target), string(out)).Inc()
		switch out {
		case domain.OutcomeDuplicate:
			logger.Debug("delivery: duplicate transition ignored", "delivery_id", rec.ID, "status", target)
			return out, nil
		case domain.OutcomeAnomalous:
			logger.Warn("delivery: anomalous transition rejected",
				"delivery_id", rec.ID, "current", expected, "target", target)
			return out, nil
		}

		ok, err := t.repo.CompareAndSwap(ctx, rec, expected)
		if err != nil {
			return "", fmt.Errorf("apply %s to %s: %w", target, rec.ID, err)
		}
		if ok {
			return out, nil
		}
		logger.Debug("delivery: lost update race, retrying", "delivery_id", rec.ID, "attempt", attempt+1)
	}
	return "", ErrContention
}

func (t *Tracker) load(ctx context.Context, u StatusUpdate) (*domain.DeliveryRecord, error) {
	if u.DeliveryID != "" {
		rec, err := t.repo.Get(ctx, u.DeliveryID)
		if err == nil || !errors.Is(err, ErrNotFound) || u.ProviderMessageID == "" {
			return rec, err
		}
	}
	return t.repo.GetByProviderMessageID(ctx, u.Channel, u.ProviderMessageID)
}

// Get returns one record.
func (t *Tracker) Get(ctx context.Context, id string) (*domain.DeliveryRecord, error) {
	return t.repo.Get(ctx, id)
}

// List returns records matching the filter.
func (t *Tracker) List(ctx context.Context, f ListFilter) ([]domain.DeliveryRecord, int, error) {
	return t.repo.List(ctx, f)
}

// Rates returns per-channel, per-day rates for the filter window.
func (t *Tracker) Rates(ctx context.Context, f CountFilter) ([]Rates, error) {
	counts, err := t.repo.CountByChannelDay(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("count deliveries: %w", err)
	}
	return RatesFromCounts(counts), nil
}

// Summary totals the filter window across days, per channel and overall.
func (t *Tracker) Summary(ctx context.Context, f CountFilter) (Summary, error) {
	counts, err := t.repo.CountByChannelDay(ctx, f)
	if err != nil {
		return Summary{}, fmt.Errorf("count deliveries: %w", err)
	}
	return Summarize(counts), nil
}
