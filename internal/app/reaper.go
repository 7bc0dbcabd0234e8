/**
 * @description
 * Cron-driven eviction of stale transfers. A transfer whose counterparties
 * stop answering would otherwise sit in the in-memory table forever; the
 * reaper sweeps entries that have not progressed within the configured
 * retention window on a fixed schedule.
 *
 * @dependencies
 * - github.com/robfig/cron/v3: job scheduling.
 */

package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Reaper periodically evicts stale transfers from the saga engine.
type Reaper struct {
	cron      *cron.Cron
	saga      *Service
	logger    *slog.Logger
	schedule  string
	retention time.Duration
}

// NewReaper builds the reaper. schedule is a cron spec (e.g. "@every 5m");
// retention is how long a transfer may sit unchanged before eviction.
func NewReaper(logger *slog.Logger, saga *Service, schedule string, retention time.Duration) *Reaper {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	return &Reaper{
		cron:      cron.New(cron.WithChain(cron.Recover(cronLogger))),
		saga:      saga,
		logger:    logger,
		schedule:  schedule,
		retention: retention,
	}
}

// Start registers the sweep job and starts the scheduler.
func (r *Reaper) Start() error {
	_, err := r.cron.AddFunc(r.schedule, func() {
		if n := r.saga.SweepStale(r.retention); n > 0 {
			r.logger.Info("stale transfers evicted", "count", n, "retention", r.retention)
		}
	})
	if err != nil {
		return err
	}
	r.cron.Start()
	r.logger.Info("reaper scheduled", "schedule", r.schedule, "retention", r.retention)
	return nil
}

// Stop halts the scheduler and returns a context that completes when any
// running sweep has finished.
func (r *Reaper) Stop() context.Context {
	return r.cron.Stop()
}
