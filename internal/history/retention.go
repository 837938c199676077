package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/corvidlabs/voxcore/internal/config"
)

// DeleteOlderThan removes call_history rows whose start_time is older than
// retentionDays days ago, returning the number of rows removed. A
// retentionDays of zero or less is a no-op, matching the "retention_days >
// 0" condition call history retention is scoped to.
func (s *Store) DeleteOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `DELETE FROM call_history WHERE start_time < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("history: delete older than %d days: %w", retentionDays, err)
	}
	return res.RowsAffected()
}

// RetentionSweeper runs the retention sweep on cfg.RetentionCron's schedule
// until Stop is called. Its start/stop-by-background-loop shape mirrors
// internal/session.Consolidator, generalized from a fixed ticker interval
// to a cron expression since retention sweeps are a daily wall-clock job,
// not a fixed-period flush.
type RetentionSweeper struct {
	store *Store
	cfg   config.HistoryConfig
	cron  *cron.Cron
}

// NewRetentionSweeper builds a sweeper for store, unstarted.
func NewRetentionSweeper(store *Store, cfg config.HistoryConfig) *RetentionSweeper {
	return &RetentionSweeper{store: store, cfg: cfg}
}

// Start schedules the sweep and returns immediately. If cfg.RetentionDays
// is zero or cfg.RetentionCron is empty, Start does nothing.
func (r *RetentionSweeper) Start(ctx context.Context) error {
	if r.cfg.RetentionDays <= 0 || r.cfg.RetentionCron == "" {
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(r.cfg.RetentionCron, func() {
		n, err := r.store.DeleteOlderThan(ctx, r.cfg.RetentionDays)
		if err != nil {
			slog.Warn("call history retention sweep failed", "error", err)
			return
		}
		if n > 0 {
			slog.Info("call history retention sweep completed", "rows_deleted", n)
		}
	})
	if err != nil {
		return fmt.Errorf("history: parse retention cron %q: %w", r.cfg.RetentionCron, err)
	}
	r.cron = c
	c.Start()
	return nil
}

// Stop halts the scheduled sweep, waiting for any in-flight run to finish.
func (r *RetentionSweeper) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}
