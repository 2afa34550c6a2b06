package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/iudanet/fieldsync/internal/client/storage"
)

// runDiscard drops an outbox entry the server keeps rejecting, so the push
// can move past it. Entries never rejected need -force.
func (c *Cli) runDiscard(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("discard", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	seq := fs.Uint64("seq", 0, "Sequence number shown by pending")
	force := fs.Bool("force", false, "Discard an entry the server has not rejected")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("discard: %w", err)
	}
	if *seq == 0 {
		return errors.New("discard: -seq is required")
	}

	entries, err := c.outbox.Pending(ctx, 0)
	if err != nil {
		return fmt.Errorf("discard: %w", err)
	}

	var target *storage.OutboxEntry
	for _, e := range entries {
		if e.Seq == *seq {
			target = e
			break
		}
	}
	if target == nil {
		return fmt.Errorf("discard: seq %d: %w", *seq, storage.ErrEntryNotFound)
	}
	if target.LastError == "" && !*force {
		return fmt.Errorf("discard: #%d was never rejected by the server (use -force)", *seq)
	}

	e, err := c.outbox.Discard(ctx, *seq)
	if err != nil {
		return fmt.Errorf("discard: %w", err)
	}

	m := e.Mutation
	c.io.Printf("Discarded #%d %s %s/%s (key %s)\n", e.Seq, m.Action, m.EntityType, m.EntityID, m.IdempotencyKey)
	return nil
}
