package catalog

import (
	"context"

	"github.com/ignite/notification-agent/internal/domain"
)

// RuleSource lists the rules the catalog should consider. Implementations
// may return inactive rules; the catalog filters them.
type RuleSource interface {
	ListActiveRules(ctx context.Context) ([]domain.Rule, error)
}
