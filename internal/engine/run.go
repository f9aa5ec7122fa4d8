package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Veraticus/policybook/internal/model"
)

// RunOptions configures a notify-and-purge pass. A nil DaysAhead or
// OverdueDays uses the engine configuration.
type RunOptions struct {
	Trigger     string
	DaysAhead   *int
	OverdueDays *int
}

func orDefault(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// NotifyAndPurge sends due-date reminders and then purges overdue clients.
// The purge runs even when some reminders failed. The returned run
// describes what happened; its error is non-nil only when a step aborted
// or a reminder failed.
func (e *ClientEngine) NotifyAndPurge(ctx context.Context, opts RunOptions) (*model.Run, error) {
	run := &model.Run{
		Trigger:   opts.Trigger,
		StartedAt: e.now(),
	}
	slog.Info("Starting notify-and-purge run", "trigger", opts.Trigger)

	notified, notifyErr := e.NotifyDueWithin(ctx, orDefault(opts.DaysAhead, e.config.DaysAhead))
	run.Notified = notified.Notified
	run.Failures = notified.Failed

	purged, purgeErr := e.PurgeOverdue(ctx, orDefault(opts.OverdueDays, e.config.OverdueDays))
	run.Purged = purged
	run.FinishedAt = e.now()

	err := errors.Join(notifyErr, purgeErr)
	switch {
	case purgeErr != nil:
		run.Status = model.RunStatusFailed
	case notifyErr != nil || len(run.Failures) > 0:
		run.Status = model.RunStatusPartial
	default:
		run.Status = model.RunStatusSucceeded
	}
	if err != nil {
		run.Error = err.Error()
	}

	slog.Info("Finished notify-and-purge run",
		"status", run.Status,
		"notified", len(run.Notified),
		"purged", run.Purged,
		"failures", len(run.Failures))
	return run, err
}
