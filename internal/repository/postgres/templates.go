package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/notification-agent/internal/domain"
	"github.com/ignite/notification-agent/internal/render"
)

// TemplateRepo is the read-only template source backed by notification_templates.
type TemplateRepo struct{ db *sql.DB }

// NewTemplateRepo creates a Postgres-backed template source.
func NewTemplateRepo(db *sql.DB) *TemplateRepo { return &TemplateRepo{db: db} }

const templateColumns = `id, name, agent_type, channel, locales, COALESCE(action_url,''), variables, is_active, updated_at`

// GetTemplate resolves by ID when set, otherwise the most recently updated
// active template for the agent type and channel.
func (r *TemplateRepo) GetTemplate(ctx context.Context, ref domain.TemplateRef) (*domain.Template, error) {
	var row *sql.Row
	if ref.TemplateID != "" {
		row = r.db.QueryRowContext(ctx,
			`SELECT `+templateColumns+` FROM notification_templates WHERE id = $1 AND is_active = true`,
			ref.TemplateID)
	} else {
		row = r.db.QueryRowContext(ctx, `
			SELECT `+templateColumns+` FROM notification_templates
			WHERE agent_type = $1 AND channel = $2 AND is_active = true
			ORDER BY updated_at DESC, id
			LIMIT 1`, string(ref.AgentType), string(ref.Channel))
	}

	var (
		t       domain.Template
		locales []byte
		vars    pq.StringArray
	)
	err := row.Scan(&t.ID, &t.Name, &t.AgentType, &t.Channel, &locales, &t.ActionURL, &vars, &t.IsActive, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", render.ErrTemplateNotFound, ref.CacheKey())
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	if err := json.Unmarshal(locales, &t.Locales); err != nil {
		return nil, fmt.Errorf("template %s locales: %w", t.ID, err)
	}
	t.Variables = []string(vars)
	return &t, nil
}
