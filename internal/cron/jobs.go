package cron

import (
	"context"
	"log/slog"
	"time"
)

// RetentionStore is the subset of the audit store needed by the retention
// job. Defined here to avoid a circular dependency on the audit package.
type RetentionStore interface {
	DeleteOlderThan(ctx context.Context, cutoffMS int64) (int64, error)
}

// RetentionJob deletes audit decisions older than MaxAge.
type RetentionJob struct {
	Store        RetentionStore
	MaxAge       time.Duration
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "0 3 * * *"

	// Now is injectable for testing.
	Now func() time.Time
}

// Compile-time interface check.
var _ Job = (*RetentionJob)(nil)

// Name implements Job.
func (j *RetentionJob) Name() string {
	return "audit_retention"
}

// Schedule implements Job.
func (j *RetentionJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "0 3 * * *"
}

// Run deletes decisions past the retention window.
func (j *RetentionJob) Run(ctx context.Context) error {
	now := time.Now
	if j.Now != nil {
		now = j.Now
	}
	cutoffMS := now().Add(-j.MaxAge).UnixMilli()

	deleted, err := j.Store.DeleteOlderThan(ctx, cutoffMS)
	if err != nil {
		return err
	}
	if deleted > 0 && j.Logger != nil {
		j.Logger.Info("cron: deleted expired audit decisions", "count", deleted)
	}
	return nil
}
