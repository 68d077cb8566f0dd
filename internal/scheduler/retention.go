// Package scheduler runs the cron-driven retention job that prunes old
// task metrics and health snapshots from the store.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/superdisco-agents/moai-flow-sub005/internal/config"
	"github.com/superdisco-agents/moai-flow-sub005/internal/infrastructure/store"
)

// Retention prunes append-only records older than the configured number
// of days on a cron schedule.
type Retention struct {
	store  *store.Store
	config config.RetentionConfig
	logger *slog.Logger
}

// NewRetention creates a retention job.
func NewRetention(st *store.Store, cfg config.RetentionConfig, logger *slog.Logger) *Retention {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retention{
		store:  st,
		config: cfg,
		logger: logger.With("component", "retention"),
	}
}

// Start runs the job loop until the context is cancelled. Invalid cron
// expressions disable the job rather than failing startup.
func (r *Retention) Start(ctx context.Context) {
	if !r.config.Enabled {
		return
	}
	if !gronx.New().IsValid(r.config.Schedule) {
		r.logger.Error("invalid retention schedule, job disabled", "schedule", r.config.Schedule)
		return
	}

	r.logger.Info("retention job started", "schedule", r.config.Schedule, "days", r.config.Days)

	for {
		next, err := gronx.NextTick(r.config.Schedule, false)
		if err != nil {
			r.logger.Error("compute next retention run", "error", err)
			return
		}

		select {
		case <-ctx.Done():
			r.logger.Info("retention job stopped")
			return
		case <-time.After(time.Until(next)):
			r.Prune(ctx)
		}
	}
}

// Prune deletes metrics and health snapshots older than the retention
// window.
func (r *Retention) Prune(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -r.config.Days).UnixMilli()

	pruned, err := r.store.PruneBefore(ctx, cutoff)
	if err != nil {
		r.logger.Error("prune records", "error", err)
		return
	}
	r.logger.Info("pruned records", "rows", pruned, "cutoff", cutoff)
}
