package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iudanet/fieldsync/internal/models"
	"github.com/iudanet/fieldsync/internal/server/reconcile"
	"github.com/iudanet/fieldsync/internal/server/storage"
)

// NewQueueCommand creates the queue command with its clear-completed subcommand.
func NewQueueCommand(opts *RootOptions) *cobra.Command {
	var (
		list       listFlags
		status     string
		entityType string
		entityID   string
	)

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Show queue items and per-status counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := storage.QueueFilter{
				DeviceID:   list.device,
				EntityType: entityType,
				EntityID:   entityID,
			}
			if status != "" {
				filter.Status = models.QueueStatus(status)
				if !filter.Status.Valid() {
					return NewExitError(ExitCommandError, fmt.Sprintf("unknown status %q", status))
				}
			}

			var err error
			if filter.Range, filter.Page, err = list.build(time.Now()); err != nil {
				return err
			}

			return opts.withEngine(cmd.Context(), func(e *reconcile.Engine) error {
				report, err := e.QueueStatus(cmd.Context(), opts.actor(), filter)
				if err != nil {
					return err
				}
				return printQueue(newPrinter(cmd.OutOrStdout(), opts.Format), report)
			})
		},
	}

	list.register(cmd)
	cmd.Flags().StringVar(&status, "status", "", "pending, processing, completed, failed or conflict")
	cmd.Flags().StringVar(&entityType, "entity-type", "", "only this entity type")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "only this entity id")

	cmd.AddCommand(newClearCompletedCommand(opts))
	return cmd
}

func newClearCompletedCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-completed",
		Short: "Delete every completed queue item regardless of age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEngine(cmd.Context(), func(e *reconcile.Engine) error {
				n, err := e.ClearCompleted(cmd.Context(), opts.actor())
				if err != nil {
					return err
				}
				p := newPrinter(cmd.OutOrStdout(), opts.Format)
				if p.json() {
					return p.JSON(map[string]int64{"count": n})
				}
				p.Line("Removed %d completed items", n)
				return nil
			})
		},
	}
}

func printQueue(p *printer, report *reconcile.QueueReport) error {
	if p.json() {
		return p.JSON(report)
	}

	statuses := []models.QueueStatus{
		models.QueueStatusPending,
		models.QueueStatusProcessing,
		models.QueueStatusCompleted,
		models.QueueStatusFailed,
		models.QueueStatusConflict,
	}
	for _, s := range statuses {
		p.Line("%-10s %d", p.queueStatus(s), report.Counts[s])
	}
	p.Line("")

	rows := make([][]string, 0, len(report.Items))
	for _, it := range report.Items {
		rows = append(rows, []string{
			it.ID,
			it.DeviceID,
			it.EntityType + "/" + it.EntityID,
			string(it.Action),
			p.queueStatus(it.Status),
			itoa(it.Attempts),
			formatTime(it.NextAttemptAt),
		})
	}
	if err := p.Table([]string{"ID", "DEVICE", "ENTITY", "ACTION", "STATUS", "ATTEMPTS", "NEXT ATTEMPT"}, rows); err != nil {
		return err
	}
	p.Line("%d of %d items", len(report.Items), report.Total)
	return nil
}

// NewRetryCommand creates the retry command.
func NewRetryCommand(opts *RootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "retry [item-id]",
		Short: "Move failed items back to pending",
		Args: func(cmd *cobra.Command, args []string) error {
			switch {
			case all && len(args) > 0:
				return NewExitError(ExitCommandError, "pass an item id or --all, not both")
			case !all && len(args) != 1:
				return NewExitError(ExitCommandError, "pass exactly one item id or --all")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEngine(cmd.Context(), func(e *reconcile.Engine) error {
				p := newPrinter(cmd.OutOrStdout(), opts.Format)

				if all {
					n, err := e.RetryAllFailed(cmd.Context(), opts.actor())
					if err != nil {
						return err
					}
					if p.json() {
						return p.JSON(map[string]int64{"count": n})
					}
					p.Line("Requeued %d failed items", n)
					return nil
				}

				item, err := e.Retry(cmd.Context(), opts.actor(), args[0])
				if err != nil {
					return err
				}
				if p.json() {
					return p.JSON(item)
				}
				p.Line("Item %s is %s (attempt %d)", item.ID, p.queueStatus(item.Status), item.Attempts)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "requeue every failed item")
	return cmd
}
