package delivery_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/notification-agent/internal/delivery"
	"github.com/ignite/notification-agent/internal/domain"
)

func at(t time.Time) *time.Time { return &t }

func TestAggregate(t *testing.T) {
	day1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)
	records := []domain.DeliveryRecord{
		{Channel: domain.ChannelPush, CreatedAt: day1, Status: domain.StatusClicked, SentAt: at(day1), DeliveredAt: at(day1), OpenedAt: at(day1), ClickedAt: at(day1)},
		{Channel: domain.ChannelPush, CreatedAt: day1, Status: domain.StatusDelivered, SentAt: at(day1), DeliveredAt: at(day1)},
		{Channel: domain.ChannelPush, CreatedAt: day1, Status: domain.StatusFailed, FailedAt: at(day1)},
		{Channel: domain.ChannelEmail, CreatedAt: day1, Status: domain.StatusBounced, SentAt: at(day1), FailedAt: at(day1)},
		{Channel: domain.ChannelPush, CreatedAt: day2, Status: domain.StatusSent, SentAt: at(day2)},
	}

	got := delivery.Aggregate(records)
	require.Len(t, got, 3)

	assert.Equal(t, delivery.DayCounts{Channel: domain.ChannelEmail, Day: "2026-03-01", Total: 1, Sent: 1, Bounced: 1}, got[0])
	assert.Equal(t, delivery.DayCounts{Channel: domain.ChannelPush, Day: "2026-03-01", Total: 3, Sent: 2, Delivered: 2, Opened: 1, Clicked: 1, Failed: 1}, got[1])
	assert.Equal(t, "2026-03-02", got[2].Day)
}

func TestRatesFromCounts(t *testing.T) {
	rates := delivery.RatesFromCounts([]delivery.DayCounts{
		{Channel: domain.ChannelPush, Day: "2026-03-01", Sent: 4, Delivered: 2, Opened: 1, Clicked: 1},
	})
	require.Len(t, rates, 1)
	assert.InDelta(t, 0.5, rates[0].DeliveryRate, 1e-9)
	assert.InDelta(t, 0.5, rates[0].OpenRate, 1e-9)
	assert.InDelta(t, 1.0, rates[0].ClickRate, 1e-9)
}

func TestRatesFromCounts_ZeroDenominators(t *testing.T) {
	rates := delivery.RatesFromCounts([]delivery.DayCounts{{Channel: domain.ChannelSMS, Day: "2026-03-01", Failed: 3, Total: 3}})
	require.Len(t, rates, 1)
	assert.Zero(t, rates[0].DeliveryRate)
	assert.Zero(t, rates[0].OpenRate)
	assert.Zero(t, rates[0].ClickRate)
}

func TestSummarize(t *testing.T) {
	s := delivery.Summarize([]delivery.DayCounts{
		{Channel: domain.ChannelPush, Day: "2026-03-01", Total: 3, Sent: 3, Delivered: 2, Opened: 1},
		{Channel: domain.ChannelPush, Day: "2026-03-02", Total: 1, Sent: 0, Failed: 1},
		{Channel: domain.ChannelEmail, Day: "2026-03-01", Total: 2, Sent: 2, Delivered: 2, Opened: 2, Clicked: 1},
	})

	require.Len(t, s.ByChannel, 2)
	assert.Equal(t, domain.ChannelPush, s.ByChannel[0].Channel)
	assert.Equal(t, 4, s.ByChannel[0].Total)
	assert.Equal(t, 66.67, s.ByChannel[0].DeliveryRate)
	assert.Equal(t, 25.0, s.ByChannel[0].FailureRate)

	assert.Equal(t, 6, s.Overall.Total)
	assert.Equal(t, 80.0, s.Overall.DeliveryRate)
	assert.Equal(t, 75.0, s.Overall.OpenRate)
	assert.Equal(t, 33.33, s.Overall.ClickRate)
}

func TestSummarize_Empty(t *testing.T) {
	s := delivery.Summarize(nil)
	assert.Zero(t, s.Overall.DeliveryRate)
	assert.Empty(t, s.ByChannel)
}

func TestTracker_ReadSide(t *testing.T) {
	repo := newMemRepo()
	tr, id := seed(t, repo, domain.StatusSent)
	ctx := context.Background()
	_, err := tr.Apply(ctx, delivery.StatusUpdate{DeliveryID: id, Status: domain.StatusDelivered})
	require.NoError(t, err)

	rates, err := tr.Rates(ctx, delivery.CountFilter{})
	require.NoError(t, err)
	require.Len(t, rates, 1)
	assert.Equal(t, 1.0, rates[0].DeliveryRate)

	sum, err := tr.Summary(ctx, delivery.CountFilter{Channel: domain.ChannelPush})
	require.NoError(t, err)
	assert.Equal(t, 100.0, sum.Overall.DeliveryRate)
}

func TestDayRange(t *testing.T) {
	start, end := delivery.DayRange(time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, 24*time.Hour, end.Sub(start))
}
