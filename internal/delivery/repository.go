package delivery

import (
	"context"
	"time"

	"github.com/ignite/notification-agent/internal/domain"
)

// Repository is the persistence contract for delivery records.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Create inserts a new record.
	Create(ctx context.Context, rec *domain.DeliveryRecord) error

	// Get returns one record. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.DeliveryRecord, error)

	// GetByProviderMessageID looks a record up by the transport's message id.
	GetByProviderMessageID(ctx context.Context, channel domain.Channel, providerID string) (*domain.DeliveryRecord, error)

	// CompareAndSwap writes rec only if the stored status still equals
	// expected. It reports whether the write happened.
	CompareAndSwap(ctx context.Context, rec *domain.DeliveryRecord, expected domain.DeliveryStatus) (bool, error)

	// List returns records matching the filter, newest first, with the
	// total count ignoring pagination.
	List(ctx context.Context, filter ListFilter) ([]domain.DeliveryRecord, int, error)

	// CountByChannelDay returns status counts grouped by channel and UTC day.
	CountByChannelDay(ctx context.Context, filter CountFilter) ([]DayCounts, error)
}

// ListFilter controls pagination and filtering for record lists.
type ListFilter struct {
	Channel     domain.Channel
	Status      domain.DeliveryStatus
	RuleID      string
	RecipientID string
	From        time.Time
	To          time.Time
	Limit       int
	Offset      int
}

// CountFilter bounds an aggregate query. Zero times are open ends.
type CountFilter struct {
	Channel domain.Channel
	From    time.Time
	To      time.Time
}
