package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/ignite/notification-agent/internal/delivery"
	"github.com/ignite/notification-agent/internal/metrics"
	"github.com/ignite/notification-agent/internal/pkg/distlock"
	"github.com/ignite/notification-agent/internal/pkg/logger"
)

// LockFactory returns a lock for a job run key.
type LockFactory func(key string) distlock.Lock

// ExportScheduler runs the exporter on a cron schedule. Replicas share a
// per-day lock so only one of them uploads.
type ExportScheduler struct {
	scheduler gocron.Scheduler
	exporter  *Exporter
	lockFor   LockFactory
	timeout   time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewExportScheduler registers the export job. cronExpr is a standard
// five-field expression evaluated in UTC.
func NewExportScheduler(exporter *Exporter, cronExpr string, lockFor LockFactory) (*ExportScheduler, error) {
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	es := &ExportScheduler{
		scheduler: s,
		exporter:  exporter,
		lockFor:   lockFor,
		timeout:   10 * time.Minute,
		ctx:       ctx,
		cancel:    cancel,
	}

	_, err = s.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(func() {
			if err := es.RunOnce(es.ctx); err != nil {
				logger.Error("analytics export failed", "error", err)
			}
		}),
		gocron.WithName("analytics_export"),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to schedule analytics export: %w", err)
	}
	return es, nil
}

// RunOnce exports the previous UTC day unless another replica holds the
// lock for it.
func (s *ExportScheduler) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	day := s.exporter.PreviousDay()
	lockKey := "analytics-export:" + day.Format(delivery.DayFormat)

	var key string
	err := distlock.Do(ctx, s.lockFor(lockKey), func(ctx context.Context) error {
		var err error
		key, err = s.exporter.ExportDay(ctx, day)
		return err
	})
	switch {
	case errors.Is(err, distlock.ErrNotAcquired):
		metrics.AnalyticsExports.WithLabelValues("skipped").Inc()
		logger.Info("analytics export running elsewhere", "day", day.Format(delivery.DayFormat))
		return nil
	case err != nil:
		metrics.AnalyticsExports.WithLabelValues("failed").Inc()
		return err
	}
	metrics.AnalyticsExports.WithLabelValues("exported").Inc()
	logger.Info("analytics exported", "bucket", s.exporter.bucket, "key", key)
	return nil
}

// Start begins running scheduled jobs.
func (s *ExportScheduler) Start() {
	s.scheduler.Start()
	logger.Info("analytics export scheduler started")
}

// Shutdown stops the scheduler and cancels an in-flight export.
func (s *ExportScheduler) Shutdown() error {
	s.cancel()
	return s.scheduler.Shutdown()
}
