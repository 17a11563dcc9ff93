package render

import (
	"context"

	"github.com/ignite/notification-agent/internal/domain"
)

// TemplateSource looks up the active template for a reference: by ID when
// ref.TemplateID is set, otherwise by agent type and channel.
type TemplateSource interface {
	GetTemplate(ctx context.Context, ref domain.TemplateRef) (*domain.Template, error)
}
