package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ignite/notification-agent/internal/delivery"
	"github.com/ignite/notification-agent/internal/domain"
)

const deliveryColumns = `id, rule_id, recipient_id, agent_type, channel, template_id,
		       COALESCE(locale,''), title, body, COALESCE(action_url,''), status,
		       COALESCE(provider_message_id,''), COALESCE(error,''),
		       created_at, sent_at, delivered_at, opened_at, clicked_at, failed_at, updated_at`

// DeliveryRepo implements delivery.Repository against PostgreSQL.
type DeliveryRepo struct{ db *sql.DB }

// NewDeliveryRepo creates a Postgres-backed delivery repository.
func NewDeliveryRepo(db *sql.DB) *DeliveryRepo { return &DeliveryRepo{db: db} }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDelivery(s rowScanner) (*domain.DeliveryRecord, error) {
	var r domain.DeliveryRecord
	var sent, delivered, opened, clicked, failed sql.NullTime
	err := s.Scan(
		&r.ID, &r.RuleID, &r.RecipientID, &r.AgentType, &r.Channel, &r.TemplateID,
		&r.Locale, &r.Title, &r.Body, &r.ActionURL, &r.Status,
		&r.ProviderMessageID, &r.Error,
		&r.CreatedAt, &sent, &delivered, &opened, &clicked, &failed, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.SentAt = timePtr(sent)
	r.DeliveredAt = timePtr(delivered)
	r.OpenedAt = timePtr(opened)
	r.ClickedAt = timePtr(clicked)
	r.FailedAt = timePtr(failed)
	return &r, nil
}

func (r *DeliveryRepo) Create(ctx context.Context, rec *domain.DeliveryRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO delivery_records
			(id, rule_id, recipient_id, agent_type, channel, template_id, locale,
			 title, body, action_url, status, provider_message_id, error,
			 created_at, sent_at, delivered_at, opened_at, clicked_at, failed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`, rec.ID, rec.RuleID, rec.RecipientID, string(rec.AgentType), string(rec.Channel), rec.TemplateID,
		nullString(rec.Locale), rec.Title, rec.Body, nullString(rec.ActionURL), string(rec.Status),
		nullString(rec.ProviderMessageID), nullString(rec.Error),
		rec.CreatedAt, rec.SentAt, rec.DeliveredAt, rec.OpenedAt, rec.ClickedAt, rec.FailedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create delivery: %w", err)
	}
	return nil
}

func (r *DeliveryRepo) Get(ctx context.Context, id string) (*domain.DeliveryRecord, error) {
	rec, err := scanDelivery(r.db.QueryRowContext(ctx,
		`SELECT `+deliveryColumns+` FROM delivery_records WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, delivery.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get delivery: %w", err)
	}
	return rec, nil
}

func (r *DeliveryRepo) GetByProviderMessageID(ctx context.Context, ch domain.Channel, providerID string) (*domain.DeliveryRecord, error) {
	q := `SELECT ` + deliveryColumns + ` FROM delivery_records WHERE provider_message_id = $1`
	args := []any{providerID}
	if ch != "" {
		q += ` AND channel = $2`
		args = append(args, string(ch))
	}
	q += ` ORDER BY created_at DESC LIMIT 1`

	rec, err := scanDelivery(r.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, delivery.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get delivery by provider id: %w", err)
	}
	return rec, nil
}

// CompareAndSwap writes the mutable columns guarded by the expected status.
func (r *DeliveryRepo) CompareAndSwap(ctx context.Context, rec *domain.DeliveryRecord, expected domain.DeliveryStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE delivery_records
		SET status = $3, error = $4, sent_at = $5, delivered_at = $6, opened_at = $7,
		    clicked_at = $8, failed_at = $9, updated_at = $10
		WHERE id = $1 AND status = $2
	`, rec.ID, string(expected), string(rec.Status), nullString(rec.Error),
		rec.SentAt, rec.DeliveredAt, rec.OpenedAt, rec.ClickedAt, rec.FailedAt, rec.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("update delivery: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update delivery: %w", err)
	}
	return n == 1, nil
}

// where builds the shared WHERE clause for list and count queries.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(expr string, val any) {
	w.args = append(w.args, val)
	w.conds = append(w.conds, fmt.Sprintf(expr, len(w.args)))
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func (r *DeliveryRepo) List(ctx context.Context, f delivery.ListFilter) ([]domain.DeliveryRecord, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	var w where
	if f.Channel != "" {
		w.add("channel = $%d", string(f.Channel))
	}
	if f.Status != "" {
		w.add("status = $%d", string(f.Status))
	}
	if f.RuleID != "" {
		w.add("rule_id = $%d", f.RuleID)
	}
	if f.RecipientID != "" {
		w.add("recipient_id = $%d", f.RecipientID)
	}
	if !f.From.IsZero() {
		w.add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		w.add("created_at < $%d", f.To)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM delivery_records`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count deliveries: %w", err)
	}

	n := len(w.args)
	q := `SELECT ` + deliveryColumns + ` FROM delivery_records` + w.String() +
		fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", n+1, n+2)
	args := append(append([]any{}, w.args...), limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	out := []domain.DeliveryRecord{}
	for rows.Next() {
		rec, err := scanDelivery(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan delivery: %w", err)
		}
		out = append(out, *rec)
	}
	return out, total, rows.Err()
}

// CountByChannelDay counts cumulatively by timestamp presence so a record
// that reached OPENED also counts as sent and delivered.
func (r *DeliveryRepo) CountByChannelDay(ctx context.Context, f delivery.CountFilter) ([]delivery.DayCounts, error) {
	var w where
	if f.Channel != "" {
		w.add("channel = $%d", string(f.Channel))
	}
	if !f.From.IsZero() {
		w.add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		w.add("created_at < $%d", f.To)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT channel,
		       to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day,
		       COUNT(*),
		       COUNT(sent_at),
		       COUNT(delivered_at),
		       COUNT(opened_at),
		       COUNT(clicked_at),
		       COUNT(*) FILTER (WHERE status = 'FAILED'),
		       COUNT(*) FILTER (WHERE status = 'BOUNCED')
		FROM delivery_records`+w.String()+`
		GROUP BY channel, day
		ORDER BY day, channel`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("count by channel day: %w", err)
	}
	defer rows.Close()

	var out []delivery.DayCounts
	for rows.Next() {
		var c delivery.DayCounts
		if err := rows.Scan(&c.Channel, &c.Day, &c.Total, &c.Sent, &c.Delivered,
			&c.Opened, &c.Clicked, &c.Failed, &c.Bounced); err != nil {
			return nil, fmt.Errorf("scan day counts: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
