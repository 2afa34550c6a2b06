package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/iudanet/fieldsync/internal/server/storage"
)

// listFlags are shared by the listing commands.
type listFlags struct {
	device string
	since  string
	until  string
	limit  int
	offset int
}

func (l *listFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&l.device, "device", "", "only this device")
	cmd.Flags().StringVar(&l.since, "since", "", `lower time bound, RFC3339 or e.g. "2 days ago"`)
	cmd.Flags().StringVar(&l.until, "until", "", "upper time bound, RFC3339 or natural language")
	cmd.Flags().IntVar(&l.limit, "limit", storage.DefaultPageLimit, "page size")
	cmd.Flags().IntVar(&l.offset, "offset", 0, "rows to skip")
}

func (l *listFlags) build(now time.Time) (storage.TimeRange, storage.Page, error) {
	var (
		tr  storage.TimeRange
		err error
	)
	if tr.From, err = parseTime(l.since, now); err != nil {
		return tr, storage.Page{}, NewExitError(ExitCommandError, err.Error())
	}
	if tr.To, err = parseTime(l.until, now); err != nil {
		return tr, storage.Page{}, NewExitError(ExitCommandError, err.Error())
	}
	if !tr.From.IsZero() && !tr.To.IsZero() && tr.To.Before(tr.From) {
		return tr, storage.Page{}, NewExitError(ExitCommandError, "--until is before --since")
	}
	return tr, storage.Page{Limit: l.limit, Offset: l.offset}.Normalize(), nil
}
