package db

import (
	"context"
	"log/slog"
	"time"
)

// RetentionPolicy controls pruning of the run history.
type RetentionPolicy struct {
	// KeepDays: finished runs older than this many days are deleted (0 = disabled)
	KeepDays int
	// Interval: how often the cleanup runs
	Interval time.Duration
}

// StartRetentionJob prunes the run history on start and then every policy.Interval
// until ctx is done. It returns immediately when the policy is disabled.
func StartRetentionJob(ctx context.Context, store *RunStore, policy RetentionPolicy) {
	logger := slog.Default().With(slog.String("component", "run_retention"))
	if store == nil || policy.KeepDays <= 0 {
		logger.Info("retention job disabled (no policy configured)")
		return
	}
	if policy.Interval <= 0 {
		policy.Interval = 6 * time.Hour
	}
	logger.Info("retention job starting",
		slog.Int("keep_days", policy.KeepDays),
		slog.Duration("interval", policy.Interval))

	prune := func() {
		cutoff := time.Now().Add(-time.Duration(policy.KeepDays) * 24 * time.Hour)
		n, err := store.PruneBefore(ctx, cutoff)
		if err != nil {
			logger.Warn("retention cleanup failed", slog.Any("err", err))
			return
		}
		if n > 0 {
			logger.Info("pruned sync runs", slog.Int64("deleted", n), slog.Time("cutoff", cutoff))
		}
	}

	prune()
	ticker := time.NewTicker(policy.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention job stopped")
			return
		case <-ticker.C:
			prune()
		}
	}
}
