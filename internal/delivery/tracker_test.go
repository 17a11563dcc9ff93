package delivery_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/notification-agent/internal/delivery"
	"github.com/ignite/notification-agent/internal/domain"
)

// memRepo is an in-memory delivery repository for unit testing.
type memRepo struct {
	mu       sync.Mutex
	records  map[string]*domain.DeliveryRecord
	casCalls int
	// loseCAS makes the next n CAS calls report a lost race.
	loseCAS int
}

func newMemRepo() *memRepo {
	return &memRepo{records: make(map[string]*domain.DeliveryRecord)}
}

func (m *memRepo) Create(_ context.Context, rec *domain.DeliveryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

func (m *memRepo) Get(_ context.Context, id string) (*domain.DeliveryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return nil, delivery.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRepo) GetByProviderMessageID(_ context.Context, ch domain.Channel, pid string) (*domain.DeliveryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ProviderMessageID == pid && (ch == "" || r.Channel == ch) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, delivery.ErrNotFound
}

func (m *memRepo) CompareAndSwap(_ context.Context, rec *domain.DeliveryRecord, expected domain.DeliveryStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.casCalls++
	if m.loseCAS > 0 {
		m.loseCAS--
		return false, nil
	}
	cur, ok := m.records[rec.ID]
	if !ok || cur.Status != expected {
		return false, nil
	}
	cp := *rec
	m.records[rec.ID] = &cp
	return true, nil
}

func (m *memRepo) List(_ context.Context, f delivery.ListFilter) ([]domain.DeliveryRecord, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.DeliveryRecord
	for _, r := range m.records {
		if f.Channel != "" && r.Channel != f.Channel {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m *memRepo) CountByChannelDay(_ context.Context, f delivery.CountFilter) ([]delivery.DayCounts, error) {
	recs, _, _ := m.List(context.Background(), delivery.ListFilter{Channel: f.Channel})
	return delivery.Aggregate(recs), nil
}

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func seed(t *testing.T, repo *memRepo, status domain.DeliveryStatus) (*delivery.Tracker, string) {
	t.Helper()
	tr := delivery.NewTracker(repo, 3)
	rec := &domain.DeliveryRecord{
		RuleID: "rule_3day_inactive", RecipientID: "u1", Channel: domain.ChannelPush,
		Status: status, ProviderMessageID: "tk-1", CreatedAt: t0,
	}
	require.NoError(t, tr.Record(context.Background(), rec))
	require.NotEmpty(t, rec.ID)
	return tr, rec.ID
}

func TestRecord_StampsStartingState(t *testing.T) {
	repo := newMemRepo()
	_, id := seed(t, repo, domain.StatusSent)
	rec, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, rec.Status)
	assert.NotNil(t, rec.SentAt)
	assert.Nil(t, rec.DeliveredAt)
}

func TestRecord_RejectsLaterStartingState(t *testing.T) {
	tr := delivery.NewTracker(newMemRepo(), 3)
	err := tr.Record(context.Background(), &domain.DeliveryRecord{Status: domain.StatusOpened})
	assert.ErrorIs(t, err, delivery.ErrBadUpdate)
}

func TestApply_DeliveredTwiceIsIdempotent(t *testing.T) {
	repo := newMemRepo()
	tr, id := seed(t, repo, domain.StatusSent)
	ctx := context.Background()

	first := t0.Add(time.Minute)
	out, err := tr.Apply(ctx, delivery.StatusUpdate{DeliveryID: id, Status: domain.StatusDelivered, OccurredAt: first})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, out)

	out, err = tr.Apply(ctx, delivery.StatusUpdate{DeliveryID: id, Status: domain.StatusDelivered, OccurredAt: first.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDuplicate, out)

	rec, _ := repo.Get(ctx, id)
	require.NotNil(t, rec.DeliveredAt)
	assert.True(t, rec.DeliveredAt.Equal(first))
}

func TestApply_BackwardsIsAnomalousAndUnchanged(t *testing.T) {
	repo := newMemRepo()
	tr, id := seed(t, repo, domain.StatusSent)
	ctx := context.Background()

	_, err := tr.Apply(ctx, delivery.StatusUpdate{DeliveryID: id, Status: domain.StatusOpened, OccurredAt: t0.Add(time.Hour)})
	require.NoError(t, err)
	before, _ := repo.Get(ctx, id)

	out, err := tr.Apply(ctx, delivery.StatusUpdate{DeliveryID: id, Status: domain.StatusSent})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAnomalous, out)

	out, err = tr.Apply(ctx, delivery.StatusUpdate{DeliveryID: id, Status: domain.StatusBounced, Error: "late bounce"})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAnomalous, out)

	after, _ := repo.Get(ctx, id)
	assert.Equal(t, before, after)
}

func TestApply_ByProviderMessageID(t *testing.T) {
	repo := newMemRepo()
	tr, id := seed(t, repo, domain.StatusPending)

	out, err := tr.Apply(context.Background(), delivery.StatusUpdate{
		Channel: domain.ChannelPush, ProviderMessageID: "tk-1", Status: domain.StatusFailed, Error: "DeviceNotRegistered",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, out)

	rec, _ := repo.Get(context.Background(), id)
	assert.Equal(t, domain.StatusFailed, rec.Status)
	assert.Equal(t, "DeviceNotRegistered", rec.Error)
}

func TestApply_RetriesLostRace(t *testing.T) {
	repo := newMemRepo()
	tr, id := seed(t, repo, domain.StatusSent)
	repo.loseCAS = 2

	out, err := tr.Apply(context.Background(), delivery.StatusUpdate{DeliveryID: id, Status: domain.StatusDelivered})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, out)
	assert.Equal(t, 3, repo.casCalls)
}

func TestApply_GivesUpAfterMaxRetries(t *testing.T) {
	repo := newMemRepo()
	tr, id := seed(t, repo, domain.StatusSent)
	repo.loseCAS = 10

	_, err := tr.Apply(context.Background(), delivery.StatusUpdate{DeliveryID: id, Status: domain.StatusDelivered})
	assert.ErrorIs(t, err, delivery.ErrContention)
}

func TestApply_ConcurrentCallbacksConverge(t *testing.T) {
	repo := newMemRepo()
	tr, id := seed(t, repo, domain.StatusSent)
	ctx := context.Background()

	targets := []domain.DeliveryStatus{domain.StatusDelivered, domain.StatusOpened, domain.StatusClicked, domain.StatusDelivered}
	var wg sync.WaitGroup
	for _, s := range targets {
		wg.Add(1)
		go func(s domain.DeliveryStatus) {
			defer wg.Done()
			_, _ = tr.Apply(ctx, delivery.StatusUpdate{DeliveryID: id, Status: s})
		}(s)
	}
	wg.Wait()

	rec, _ := repo.Get(ctx, id)
	assert.Equal(t, domain.StatusClicked, rec.Status)
	assert.NotNil(t, rec.DeliveredAt)
	assert.NotNil(t, rec.OpenedAt)
}

func TestApply_Errors(t *testing.T) {
	tr := delivery.NewTracker(newMemRepo(), 3)
	ctx := context.Background()

	_, err := tr.Apply(ctx, delivery.StatusUpdate{Status: domain.StatusDelivered})
	assert.ErrorIs(t, err, delivery.ErrBadUpdate)

	_, err = tr.Apply(ctx, delivery.StatusUpdate{DeliveryID: "x", Status: "LOST"})
	assert.ErrorIs(t, err, delivery.ErrBadUpdate)

	_, err = tr.Apply(ctx, delivery.StatusUpdate{DeliveryID: "missing", Status: domain.StatusDelivered})
	assert.True(t, errors.Is(err, delivery.ErrNotFound))
}
