package cooldown

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const (
	acquireGuardedSQL = `
		INSERT INTO agent_cooldowns (cooldown_key, rule_id, recipient_id, agent_type, last_fired_at, fire_count)
		VALUES ($1, $2, $3, $4, $5, 1)
		ON CONFLICT (cooldown_key) DO UPDATE
		SET last_fired_at = EXCLUDED.last_fired_at,
		    fire_count = agent_cooldowns.fire_count + 1
		WHERE agent_cooldowns.last_fired_at <= $6
		RETURNING last_fired_at`

	recordFireSQL = `
		INSERT INTO agent_cooldowns (cooldown_key, rule_id, recipient_id, agent_type, last_fired_at, fire_count)
		VALUES ($1, $2, $3, $4, $5, 1)
		ON CONFLICT (cooldown_key) DO UPDATE
		SET last_fired_at = EXCLUDED.last_fired_at,
		    fire_count = agent_cooldowns.fire_count + 1`
)

// PostgresStore uses a guarded upsert on agent_cooldowns. The row lock taken
// by ON CONFLICT serializes concurrent acquirers of the same key.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresStore creates a Postgres-backed store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// TryAcquire implements Store.
func (s *PostgresStore) TryAcquire(ctx context.Context, key Key, cooldownHours *int) (bool, error) {
	now := s.now().UTC()
	win := window(cooldownHours)

	if win == 0 {
		_, err := s.db.ExecContext(ctx, recordFireSQL,
			key.String(), key.RuleID, key.RecipientID, string(key.AgentType), now)
		if err != nil {
			return false, unavailable("postgres record fire", err)
		}
		return true, nil
	}

	var firedAt time.Time
	err := s.db.QueryRowContext(ctx, acquireGuardedSQL,
		key.String(), key.RuleID, key.RecipientID, string(key.AgentType), now, now.Add(-win),
	).Scan(&firedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("postgres acquire", err)
	}
	return true, nil
}
