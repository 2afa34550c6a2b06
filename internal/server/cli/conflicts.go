package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iudanet/fieldsync/internal/models"
	"github.com/iudanet/fieldsync/internal/server/reconcile"
	"github.com/iudanet/fieldsync/internal/server/storage"
)

// NewConflictsCommand creates the conflicts command with its show subcommand.
func NewConflictsCommand(opts *RootOptions) *cobra.Command {
	var (
		list       listFlags
		unresolved bool
		resolved   bool
	)

	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "List recorded conflicts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if unresolved && resolved {
				return NewExitError(ExitCommandError, "--resolved and --unresolved are mutually exclusive")
			}

			filter := storage.ConflictFilter{DeviceID: list.device}
			switch {
			case unresolved:
				filter.Resolved = new(bool)
			case resolved:
				t := true
				filter.Resolved = &t
			}

			var err error
			if filter.Range, filter.Page, err = list.build(time.Now()); err != nil {
				return err
			}

			return opts.withEngine(cmd.Context(), func(e *reconcile.Engine) error {
				conflicts, total, err := e.ListConflicts(cmd.Context(), opts.actor(), filter)
				if err != nil {
					return err
				}

				p := newPrinter(cmd.OutOrStdout(), opts.Format)
				if p.json() {
					return p.JSON(map[string]any{"items": conflicts, "total": total})
				}

				rows := make([][]string, 0, len(conflicts))
				for _, c := range conflicts {
					state := "open"
					if c.Resolved {
						state = string(c.ResolutionType)
					}
					rows = append(rows, []string{
						c.ID,
						c.DeviceID,
						c.EntityType + "/" + c.EntityID,
						string(c.Reason),
						fmt.Sprintf("v%d", c.ServerVersion),
						state,
						formatTime(c.CreatedAt),
					})
				}
				if err := p.Table([]string{"ID", "DEVICE", "ENTITY", "REASON", "SERVER", "STATE", "CREATED"}, rows); err != nil {
					return err
				}
				p.Line("%d of %d conflicts", len(conflicts), total)
				return nil
			})
		},
	}

	list.register(cmd)
	cmd.Flags().BoolVar(&unresolved, "unresolved", false, "only open conflicts")
	cmd.Flags().BoolVar(&resolved, "resolved", false, "only resolved conflicts")

	cmd.AddCommand(newConflictShowCommand(opts))
	return cmd
}

func newConflictShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <conflict-id>",
		Short: "Show one conflict with the field diff against the client payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEngine(cmd.Context(), func(e *reconcile.Engine) error {
				view, err := e.ConflictDetail(cmd.Context(), opts.actor(), args[0])
				if err != nil {
					return err
				}

				p := newPrinter(cmd.OutOrStdout(), opts.Format)
				if p.json() {
					return p.JSON(view)
				}

				c := view.Conflict
				p.Line("Conflict %s on %s/%s (%s)", c.ID, c.EntityType, c.EntityID, c.Reason)
				p.Line("  device %s, item %s, server v%d", orDash(c.DeviceID), c.SyncQueueID, c.ServerVersion)
				p.Line("  client edit %s, server state %s", formatTime(c.ClientTimestamp), formatTime(c.ServerTimestamp))
				if c.Resolved {
					p.Line("  resolved with %s by %s at %s", c.ResolutionType, c.ResolvedBy, formatTimePtr(c.ResolvedAt))
				}
				p.Line("")

				rows := make([][]string, 0, len(view.Diff))
				for _, d := range view.Diff {
					rows = append(rows, []string{d.Field, string(d.Kind), orDash(string(d.Server)), orDash(string(d.Client)), orDash(string(d.MergeKeeps))})
				}
				return p.Table([]string{"FIELD", "CHANGE", "SERVER", "CLIENT", "MERGE KEEPS"}, rows)
			})
		},
	}
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(opts *RootOptions) *cobra.Command {
	var (
		strategy string
		all      bool
	)

	cmd := &cobra.Command{
		Use:   "resolve [conflict-id]",
		Short: "Resolve one conflict, or every open one with --all",
		Long: `Resolve conflicts with a strategy:

  server_wins  keep the server state and complete the item
  client_wins  requeue the client payload with force sync
  merge        merge object payloads field by field, newest edit wins`,
		Args: func(cmd *cobra.Command, args []string) error {
			switch {
			case all && len(args) > 0:
				return NewExitError(ExitCommandError, "pass a conflict id or --all, not both")
			case !all && len(args) != 1:
				return NewExitError(ExitCommandError, "pass exactly one conflict id or --all")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			s := models.ResolutionStrategy(strategy)
			return opts.withEngine(cmd.Context(), func(e *reconcile.Engine) error {
				p := newPrinter(cmd.OutOrStdout(), opts.Format)

				if all {
					counts, err := e.ResolveAll(cmd.Context(), opts.actor(), s)
					if err != nil {
						return err
					}
					if p.json() {
						return p.JSON(counts)
					}
					printResolveCounts(p, counts)
					return nil
				}

				res, err := e.Resolve(cmd.Context(), opts.actor(), args[0], s)
				if err != nil {
					return err
				}
				if p.json() {
					return p.JSON(res)
				}
				printResolveCounts(p, res.Counts)
				if res.Item != nil {
					p.Line("Item %s is %s", res.Item.ID, p.queueStatus(res.Item.Status))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&strategy, "strategy", "s", "", "server_wins, client_wins or merge")
	cmd.Flags().BoolVar(&all, "all", false, "resolve every open conflict")
	_ = cmd.MarkFlagRequired("strategy")

	return cmd
}

func printResolveCounts(p *printer, c models.ResolveCounts) {
	p.Line("Resolved %d: %d requeued, %d completed, %d skipped", c.Resolved, c.Requeued, c.Completed, c.Skipped)
}
