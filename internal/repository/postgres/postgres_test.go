package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/notification-agent/internal/delivery"
	"github.com/ignite/notification-agent/internal/domain"
	"github.com/ignite/notification-agent/internal/render"
)

var deliveryCols = []string{
	"id", "rule_id", "recipient_id", "agent_type", "channel", "template_id",
	"locale", "title", "body", "action_url", "status", "provider_message_id", "error",
	"created_at", "sent_at", "delivered_at", "opened_at", "clicked_at", "failed_at", "updated_at",
}

func newMock(t *testing.T) (*DeliveryRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewDeliveryRepo(db), mock
}

func TestDeliveryRepo_Get(t *testing.T) {
	repo, mock := newMock(t)
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM delivery_records WHERE id = \\$1").
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows(deliveryCols).AddRow(
			"d1", "rule_7day_inactive", "u1", "RETENTION", "PUSH", "tpl_7day",
			"en", "Still there?", "It's been 7 days", "", "SENT", "tk-1", "",
			created, created, nil, nil, nil, nil, created,
		))

	rec, err := repo.Get(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelPush, rec.Channel)
	assert.Equal(t, domain.StatusSent, rec.Status)
	require.NotNil(t, rec.SentAt)
	assert.Nil(t, rec.DeliveredAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryRepo_GetNotFound(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery("SELECT (.+) FROM delivery_records").WillReturnRows(sqlmock.NewRows(deliveryCols))

	_, err := repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, delivery.ErrNotFound)
}

func TestDeliveryRepo_GetByProviderMessageID(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery("WHERE provider_message_id = \\$1 AND channel = \\$2").
		WithArgs("SM1", "SMS").
		WillReturnRows(sqlmock.NewRows(deliveryCols))

	_, err := repo.GetByProviderMessageID(context.Background(), domain.ChannelSMS, "SM1")
	assert.ErrorIs(t, err, delivery.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryRepo_Create(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectExec("INSERT INTO delivery_records").WillReturnResult(sqlmock.NewResult(1, 1))

	rec := &domain.DeliveryRecord{RuleID: "r1", RecipientID: "u1", Channel: domain.ChannelEmail, Status: domain.StatusPending}
	require.NoError(t, repo.Create(context.Background(), rec))
	assert.NotEmpty(t, rec.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryRepo_CompareAndSwap(t *testing.T) {
	repo, mock := newMock(t)
	rec := &domain.DeliveryRecord{ID: "d1", Status: domain.StatusDelivered, UpdatedAt: time.Now()}

	mock.ExpectExec("UPDATE delivery_records (.+) WHERE id = \\$1 AND status = \\$2").
		WithArgs("d1", "SENT", "DELIVERED", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE delivery_records").WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.CompareAndSwap(context.Background(), rec, domain.StatusSent)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.CompareAndSwap(context.Background(), rec, domain.StatusSent)
	require.NoError(t, err)
	assert.False(t, ok, "lost race reports false")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryRepo_List(t *testing.T) {
	repo, mock := newMock(t)
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM delivery_records WHERE channel = \\$1 AND status = \\$2 AND created_at >= \\$3").
		WithArgs("PUSH", "OPENED", from).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("LIMIT \\$4 OFFSET \\$5").
		WithArgs("PUSH", "OPENED", from, 10, 20).
		WillReturnRows(sqlmock.NewRows(deliveryCols).AddRow(
			"d1", "r1", "u1", "RETENTION", "PUSH", "t1", "", "T", "B", "", "OPENED", "", "",
			from, from, from, from, nil, nil, from,
		))

	out, total, err := repo.List(context.Background(), delivery.ListFilter{
		Channel: domain.ChannelPush, Status: domain.StatusOpened, From: from, Limit: 10, Offset: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, out, 1)
	assert.NotNil(t, out[0].OpenedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryRepo_CountByChannelDay(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery("GROUP BY channel, day").
		WillReturnRows(sqlmock.NewRows([]string{"channel", "day", "total", "sent", "delivered", "opened", "clicked", "failed", "bounced"}).
			AddRow("PUSH", "2026-03-01", 10, 9, 8, 4, 1, 1, 0))

	counts, err := repo.CountByChannelDay(context.Background(), delivery.CountFilter{})
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, delivery.DayCounts{Channel: domain.ChannelPush, Day: "2026-03-01", Total: 10, Sent: 9, Delivered: 8, Opened: 4, Clicked: 1, Failed: 1}, counts[0])
}

func TestRuleRepo_ListActiveRules(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cols := []string{"id", "name", "agent_type", "trigger_event", "trigger_conditions",
		"action_type", "action_config", "priority", "cooldown_hours", "is_active", "updated_at"}
	now := time.Now()
	mock.ExpectQuery("FROM agent_rules").WillReturnRows(sqlmock.NewRows(cols).
		AddRow("rule_7day_inactive", "7 day", "RETENTION", "user_inactive", []byte(`{"daysSinceActive": 7}`),
			"send_notification", []byte(`{"channel":"PUSH","template_id":"tpl_7day"}`), 90, 168, true, now).
		AddRow("rule_streak_risk", "streak", "STREAK_GAMIFICATION", "streak_at_risk", []byte(`[{"field":"streak.count","value":{"gte":3}}]`),
			"send_notification", []byte(`{"channel":"PUSH"}`), 80, nil, true, now).
		AddRow("rule_broken", "broken", "RETENTION", "user_inactive", []byte(`{not json`),
			"send_notification", []byte(`{}`), 10, nil, true, now))

	rules, err := NewRuleRepo(db).ListActiveRules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 2)

	assert.Equal(t, []domain.Condition{{Field: "daysSinceActive", Value: json.Number("7")}}, rules[0].TriggerConditions)
	assert.Equal(t, 168, *rules[0].CooldownHours)
	assert.Equal(t, "tpl_7day", rules[0].ActionConfig.TemplateID)
	assert.Nil(t, rules[1].CooldownHours)
	assert.Equal(t, "streak.count", rules[1].TriggerConditions[0].Field)
}

func TestRuleRepo_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery("FROM agent_rules").WillReturnError(errors.New("connection refused"))

	_, err = NewRuleRepo(db).ListActiveRules(context.Background())
	assert.Error(t, err)
}

func TestDecodeConditions(t *testing.T) {
	conds, err := DecodeConditions([]byte(`{"plan":["trial","grace"],"daysSinceActive":{"gte":3}}`))
	require.NoError(t, err)
	require.Len(t, conds, 2)
	assert.Equal(t, "daysSinceActive", conds[0].Field)
	assert.Equal(t, map[string]any{"gte": json.Number("3")}, conds[0].Value)

	conds, err = DecodeConditions(nil)
	require.NoError(t, err)
	assert.Empty(t, conds)
}

func TestTemplateRepo_GetTemplate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cols := []string{"id", "name", "agent_type", "channel", "locales", "action_url", "variables", "is_active", "updated_at"}
	mock.ExpectQuery("WHERE agent_type = \\$1 AND channel = \\$2").
		WithArgs("RETENTION", "PUSH").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"tpl_7day", "7 day", "RETENTION", "PUSH",
			[]byte(`{"en":{"title":"Hi {{user.firstName}}","body":"We miss you"}}`),
			"app://home", "{user.firstName}", true, time.Now(),
		))

	tpl, err := NewTemplateRepo(db).GetTemplate(context.Background(),
		domain.TemplateRef{AgentType: domain.AgentRetention, Channel: domain.ChannelPush})
	require.NoError(t, err)
	assert.Equal(t, "Hi {{user.firstName}}", tpl.Locales["en"].Title)
	assert.Equal(t, []string{"user.firstName"}, tpl.Variables)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplateRepo_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery("WHERE id = \\$1").WithArgs("tpl_x").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = NewTemplateRepo(db).GetTemplate(context.Background(), domain.TemplateRef{TemplateID: "tpl_x"})
	assert.ErrorIs(t, err, render.ErrTemplateNotFound)
}
