package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/policybook/internal/cli"
	"github.com/Veraticus/policybook/internal/common"
	"github.com/Veraticus/policybook/internal/config"
	"github.com/Veraticus/policybook/internal/engine"
	"github.com/Veraticus/policybook/internal/model"
	"github.com/Veraticus/policybook/internal/scheduler"
	"github.com/Veraticus/policybook/internal/service"
	"github.com/spf13/cobra"
)

const stopTimeout = 30 * time.Second

func notifyCmd() *cobra.Command {
	var daysAhead int

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send payment reminders",
		Long: `Issue an invoice and email a reminder to every client whose payment is due
exactly --days-ahead days from today.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(appConfig, withReminders)
			if err != nil {
				return err
			}
			defer s.Close()

			if !cmd.Flags().Changed("days-ahead") {
				daysAhead = s.engine.Config().DaysAhead
			}
			result, err := s.engine.NotifyDueWithin(cmd.Context(), daysAhead)
			out := cmd.OutOrStdout()
			for _, email := range result.Notified {
				fmt.Fprintln(out, cli.FormatSuccess("Reminded "+email))
			}
			for _, email := range result.Failed {
				fmt.Fprintln(out, cli.FormatWarning("Could not remind "+email))
			}
			if len(result.Notified) == 0 && len(result.Failed) == 0 {
				fmt.Fprintln(out, cli.FormatInfo("No payments due"))
			}
			return err
		},
	}

	cmd.Flags().IntVar(&daysAhead, "days-ahead", 0, "remind clients due this many days from today (default: engine.days_ahead)")
	return cmd
}

func purgeCmd() *cobra.Command {
	var overdueDays int

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove overdue clients",
		Long:  `Remove every client whose payment is at least --overdue-days days late.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(appConfig, bookOnly)
			if err != nil {
				return err
			}
			defer s.Close()

			if !cmd.Flags().Changed("overdue-days") {
				overdueDays = s.engine.Config().OverdueDays
			}
			purged, err := s.engine.PurgeOverdue(cmd.Context(), overdueDays)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(purged) == 0 {
				fmt.Fprintln(out, cli.FormatInfo("No overdue clients"))
				return nil
			}
			for _, email := range purged {
				fmt.Fprintln(out, cli.FormatWarning("Removed "+email))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&overdueDays, "overdue-days", 0, "days late before a client is removed (default: engine.overdue_days)")
	return cmd
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Send reminders and purge overdue clients once",
		Long: `Run the notify-and-purge job once, the same way the scheduler does, and
record the outcome in the run journal.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := initStorage(cmd.Context(), appConfig)
			if err != nil {
				return err
			}
			defer closeStorage(store)

			run, err := runOnce(cmd.Context(), appConfig, store, "manual")
			if run != nil {
				printRun(cmd.OutOrStdout(), run)
			}
			return err
		},
	}
}

func scheduleCmd() *cobra.Command {
	var (
		spec     string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the notify-and-purge job periodically",
		Long: `Run the notify-and-purge job on a schedule until interrupted. --spec takes a
cron expression or descriptor such as "@daily"; otherwise the job runs every
--interval.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("spec") {
				appConfig.Schedule.Spec = spec
			}
			if cmd.Flags().Changed("interval") {
				appConfig.Schedule.Interval = interval
			}

			// Fail fast on missing collaborator settings.
			probe, err := openSession(appConfig, withReminders)
			if err != nil {
				return err
			}
			probe.Close()

			store, err := initStorage(cmd.Context(), appConfig)
			if err != nil {
				return err
			}
			defer closeStorage(store)

			sched, err := scheduler.New(scheduler.Options{
				Name:     "notify-and-purge",
				Spec:     appConfig.Schedule.Spec,
				Interval: appConfig.Schedule.Interval,
				Logger:   slog.Default(),
				Job: func(ctx context.Context) error {
					_, err := runOnce(ctx, appConfig, store, "schedule")
					return err
				},
			})
			if err != nil {
				return err
			}

			handler := cli.NewInterruptHandler(cmd.ErrOrStderr(), "Scheduler")
			ctx := handler.HandleInterrupts(cmd.Context())

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("Scheduler started ("+sched.Spec()+"), press Ctrl+C to stop"))
			sched.Start()
			<-ctx.Done()

			stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()
			if err := sched.Stop(stopCtx); err != nil {
				return fmt.Errorf("failed to stop scheduler: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Scheduler stopped after %d runs", sched.Runs())))
			return nil
		},
	}

	cmd.Flags().StringVar(&spec, "spec", "", "cron expression or descriptor (overrides schedule.spec)")
	cmd.Flags().DurationVar(&interval, "interval", scheduler.DefaultInterval, "run interval when no cron expression is set")
	return cmd
}

// runOnce opens the book afresh, runs notify-and-purge and records the run.
// A journal failure is logged and does not fail the run.
func runOnce(ctx context.Context, cfg *config.AppConfig, journal service.RunJournal, trigger string) (*model.Run, error) {
	s, err := openSession(cfg, withReminders)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	run, runErr := s.engine.NotifyAndPurge(ctx, engine.RunOptions{Trigger: trigger})
	if run != nil && journal != nil {
		// An interrupted run is still recorded.
		if err := journal.RecordRun(context.WithoutCancel(ctx), run); err != nil {
			common.LogError(err, "Failed to record run", common.Fields{"trigger": trigger})
		} else {
			common.LogInfo("Recorded run", common.Fields{"id": run.ID, "status": run.Status})
		}
	}
	return run, runErr
}

func printRun(w io.Writer, run *model.Run) {
	summary := fmt.Sprintf("Status:   %s\nNotified: %s\nPurged:   %s",
		run.Status, listOrDash(run.Notified), listOrDash(run.Purged))
	if len(run.Failures) > 0 {
		summary += "\nFailed:   " + listOrDash(run.Failures)
	}
	fmt.Fprintln(w, cli.RenderBox(cli.MailIcon+" Run "+run.ID, summary))
}

func listOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
