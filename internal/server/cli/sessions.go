package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iudanet/fieldsync/internal/models"
	"github.com/iudanet/fieldsync/internal/server/reconcile"
	"github.com/iudanet/fieldsync/internal/server/storage"
)

// NewSessionsCommand creates the sessions command.
func NewSessionsCommand(opts *RootOptions) *cobra.Command {
	var (
		list   listFlags
		status string
		export string
	)

	cmd := &cobra.Command{
		Use:   "sessions [session-id]",
		Short: "List dispatch session logs or show one",
		Example: `  fieldsync sessions --since "2 days ago" --status partial
  fieldsync sessions --export csv > sessions.csv`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd.OutOrStdout(), opts.Format)

			if len(args) == 1 {
				return opts.withEngine(cmd.Context(), func(e *reconcile.Engine) error {
					log, err := e.SessionLog(cmd.Context(), opts.actor(), args[0])
					if err != nil {
						return err
					}
					if p.json() {
						return p.JSON(log)
					}
					printSession(p, log)
					return nil
				})
			}

			var format reconcile.ExportFormat
			if export != "" {
				f, err := reconcile.ParseExportFormat(export)
				if err != nil {
					return NewExitError(ExitCommandError, err.Error())
				}
				format = f
			}

			filter := storage.SessionFilter{DeviceID: list.device}
			if status != "" {
				filter.Status = models.SessionStatus(status)
				if !filter.Status.Valid() {
					return NewExitError(ExitCommandError, fmt.Sprintf("unknown status %q", status))
				}
			}
			var err error
			if filter.Range, filter.Page, err = list.build(time.Now()); err != nil {
				return err
			}

			return opts.withEngine(cmd.Context(), func(e *reconcile.Engine) error {
				logs, total, err := e.SessionLogs(cmd.Context(), opts.actor(), filter)
				if err != nil {
					return err
				}

				switch {
				case format != "":
					return reconcile.ExportSessionLogs(cmd.OutOrStdout(), logs, format)
				case p.json():
					return p.JSON(map[string]any{"items": logs, "total": total})
				}

				rows := make([][]string, 0, len(logs))
				for _, l := range logs {
					rows = append(rows, []string{
						l.ID,
						orDash(l.DeviceID),
						l.Username,
						string(l.Details.Trigger),
						p.sessionStatus(l.Status),
						formatTime(l.StartTime),
						fmt.Sprintf("%d/%d/%d/%d", l.ItemsProcessed, l.ItemsSucceeded, l.ItemsFailed, l.ItemsConflicted),
					})
				}
				if err := p.Table([]string{"ID", "DEVICE", "BY", "TRIGGER", "STATUS", "STARTED", "P/S/F/C"}, rows); err != nil {
					return err
				}
				p.Line("%d of %d sessions", len(logs), total)
				return nil
			})
		},
	}

	list.register(cmd)
	cmd.Flags().StringVar(&status, "status", "", "success, partial or failed")
	cmd.Flags().StringVar(&export, "export", "", "write the page as csv or tsv instead of a table")

	return cmd
}
