package cli

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/iudanet/fieldsync/internal/models"
	"github.com/iudanet/fieldsync/internal/server/reconcile"
)

// NewDispatchCommand creates the dispatch command.
func NewDispatchCommand(opts *RootOptions) *cobra.Command {
	var (
		device string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Run one dispatch pass over the queue",
		Long: `Run one dispatch pass: select due queue items, apply them to the entity
store in order per device and record the session log. The command exits
with status 1 when the pass failed as a whole.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return NewExitError(ExitCommandError, "--limit must not be negative")
			}
			return opts.withEngine(cmd.Context(), func(e *reconcile.Engine) error {
				return runDispatch(cmd.Context(), e, opts, newPrinter(cmd.OutOrStdout(), opts.Format), reconcile.DispatchOptions{
					DeviceID: device,
					Limit:    limit,
					Trigger:  models.TriggerManual,
				})
			})
		},
	}

	cmd.Flags().StringVar(&device, "device", "", "only dispatch this device's items")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum items to select (0 uses engine.batch_limit)")

	return cmd
}

func runDispatch(ctx context.Context, e *reconcile.Engine, opts *RootOptions, p *printer, do reconcile.DispatchOptions) error {
	log, err := e.Dispatch(ctx, opts.actor(), do)
	if log == nil {
		return WrapExitError(ExitFailure, "dispatch failed", err)
	}

	if p.json() {
		if perr := p.JSON(log); perr != nil {
			return perr
		}
	} else {
		printSession(p, log)
	}

	if err != nil {
		return WrapExitError(ExitFailure, "dispatch ended early", err)
	}
	if log.Status == models.SessionFailed && log.ItemsProcessed > 0 {
		return NewExitError(ExitFailure, "every processed item failed")
	}
	return nil
}

func printSession(p *printer, log *models.SyncSessionLog) {
	p.Line("Session %s: %s", log.ID, p.sessionStatus(log.Status))
	p.Line("  processed %d, succeeded %d, failed %d, conflicted %d",
		log.ItemsProcessed, log.ItemsSucceeded, log.ItemsFailed, log.ItemsConflicted)
	p.Line("  %s .. %s (%s)", formatTime(log.StartTime), formatTime(log.EndTime), log.Details.Trigger)
	if log.Details.RunError != nil {
		p.Line("  run error: %s: %s", log.Details.RunError.Kind, log.Details.RunError.Message)
	}
	if len(log.Details.Outcomes) == 0 {
		return
	}

	rows := make([][]string, 0, len(log.Details.Outcomes))
	for _, o := range log.Details.Outcomes {
		result := "-"
		if o.Result != nil {
			result = o.Result.String()
		}
		rows = append(rows, []string{o.ItemID, o.DeviceID, p.queueStatus(o.Status), result})
	}
	_ = p.Table([]string{"ITEM", "DEVICE", "STATUS", "RESULT"}, rows)
}

func itoa(n int) string { return strconv.Itoa(n) }
