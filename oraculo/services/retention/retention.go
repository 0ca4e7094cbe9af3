// Package retention purges conversations that have been idle longer than a TTL.
package retention

import (
	"context"
	"errors"
	"time"

	"oraculo/oraculo/services/session"
	"oraculo/oraculo/utils/logging"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Janitor deletes expired conversations on a cron schedule.
type Janitor struct {
	store    *session.Store
	ttl      time.Duration
	schedule string
	cron     *cron.Cron
	now      func() time.Time
}

func New(store *session.Store, ttl time.Duration, schedule string) *Janitor {
	if schedule == "" {
		schedule = "@every 1h"
	}
	return &Janitor{
		store:    store,
		ttl:      ttl,
		schedule: schedule,
		cron:     cron.New(),
		now:      time.Now,
	}
}

// Enabled reports whether a TTL is configured.
func (j *Janitor) Enabled() bool { return j.ttl > 0 }

// Start registers the purge job. It does nothing when the janitor is disabled.
func (j *Janitor) Start() error {
	if !j.Enabled() {
		logging.AppLogger.Info("retention disabled")
		return nil
	}
	_, err := j.cron.AddFunc(j.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := j.RunOnce(ctx); err != nil {
			logging.ErrorLogger.Error("retention run failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	j.cron.Start()
	logging.AppLogger.Info("retention started", zap.Duration("ttl", j.ttl), zap.String("schedule", j.schedule))
	return nil
}

// Stop waits for a running purge to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// RunOnce deletes every conversation idle since before now-ttl and returns
// how many were removed. Each session is deleted under its own lock.
func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	if !j.Enabled() {
		return 0, nil
	}
	defer logging.LogDuration(ctx, "retention_run")()

	durable := j.store.Durable()
	ids, err := durable.Expired(ctx, j.now().Add(-j.ttl))
	if err != nil {
		return 0, err
	}

	var total int64
	var errs []error
	for _, id := range ids {
		n, err := j.purge(ctx, durable, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		total += n
	}
	if total > 0 {
		logging.AppLogger.Info("expired conversations deleted", zap.Int64("count", total))
	}
	return total, errors.Join(errs...)
}

func (j *Janitor) purge(ctx context.Context, durable session.Durable, id string) (int64, error) {
	release, err := j.store.Lock(ctx, id)
	if err != nil {
		return 0, err
	}
	defer release()
	n, err := durable.Delete(ctx, []string{id})
	if err != nil {
		return 0, err
	}
	j.store.Forget(id)
	return n, nil
}
