package cli

import (
	"github.com/spf13/cobra"

	"github.com/iudanet/fieldsync/internal/models"
	"github.com/iudanet/fieldsync/internal/server/reconcile"
)

// NewCleanupCommand creates the cleanup command.
func NewCleanupCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Apply the retention policy now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEngine(cmd.Context(), func(e *reconcile.Engine) error {
				report, err := e.Cleanup(cmd.Context(), opts.actor())
				if err != nil {
					return err
				}

				p := newPrinter(cmd.OutOrStdout(), opts.Format)
				if p.json() {
					return p.JSON(report)
				}
				c := report.Counts
				p.Line("Removed %d rows: %d completed, %d failed, %d session logs, %d resolved conflicts",
					c.Total(), c.Completed, c.Failed, c.Logs, c.Conflicts)
				p.Line("Next automatic cleanup: %s", formatTimePtr(report.Setting.NextScheduledAt))
				return nil
			})
		},
	}
}

// NewRetentionCommand creates the retention command with its set subcommand.
func NewRetentionCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retention",
		Short: "Show the retention policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEngine(cmd.Context(), func(e *reconcile.Engine) error {
				setting, err := e.Retention(cmd.Context(), opts.actor())
				if err != nil {
					return err
				}
				printRetention(newPrinter(cmd.OutOrStdout(), opts.Format), setting)
				return nil
			})
		},
	}

	cmd.AddCommand(newRetentionSetCommand(opts))
	return cmd
}

func newRetentionSetCommand(opts *RootOptions) *cobra.Command {
	var (
		policy models.RetentionPolicy
		auto   bool
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change retention horizons; unset flags keep their current value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEngine(cmd.Context(), func(e *reconcile.Engine) error {
				current, err := e.Retention(cmd.Context(), opts.actor())
				if err != nil {
					return err
				}

				next := current.Policy
				flags := cmd.Flags()
				if flags.Changed("completed-days") {
					next.CompletedDays = policy.CompletedDays
				}
				if flags.Changed("failed-days") {
					next.FailedDays = policy.FailedDays
				}
				if flags.Changed("logs-days") {
					next.LogsDays = policy.LogsDays
				}
				if flags.Changed("conflicts-days") {
					next.ConflictsDays = policy.ConflictsDays
				}
				enabled := current.AutoCleanupEnabled
				if flags.Changed("auto") {
					enabled = auto
				}

				setting, err := e.UpdateRetention(cmd.Context(), opts.actor(), next, enabled)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to update retention", err)
				}
				printRetention(newPrinter(cmd.OutOrStdout(), opts.Format), setting)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&policy.CompletedDays, "completed-days", 0, "keep completed items this many days")
	cmd.Flags().IntVar(&policy.FailedDays, "failed-days", 0, "keep failed items this many days")
	cmd.Flags().IntVar(&policy.LogsDays, "logs-days", 0, "keep session logs this many days")
	cmd.Flags().IntVar(&policy.ConflictsDays, "conflicts-days", 0, "keep resolved conflicts this many days")
	cmd.Flags().BoolVar(&auto, "auto", true, "run cleanup automatically once a day")

	return cmd
}

func printRetention(p *printer, s *models.RetentionSetting) {
	if p.json() {
		_ = p.JSON(s)
		return
	}
	p.Line("Completed items:    %d days", s.Policy.CompletedDays)
	p.Line("Failed items:       %d days", s.Policy.FailedDays)
	p.Line("Session logs:       %d days", s.Policy.LogsDays)
	p.Line("Resolved conflicts: %d days", s.Policy.ConflictsDays)
	p.Line("Auto cleanup:       %t", s.AutoCleanupEnabled)
	p.Line("Last cleanup:       %s", formatTimePtr(s.LastCleanupAt))
	p.Line("Next cleanup:       %s", formatTimePtr(s.NextScheduledAt))
}
