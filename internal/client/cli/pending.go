package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"
)

func (c *Cli) runPending(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("pending", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	limit := fs.Int("limit", 20, "Entries to list (0 for all)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("pending: %w", err)
	}

	total, err := c.syncService.PendingCount(ctx)
	if err != nil {
		return err
	}

	if last, err := c.metadata.GetLastPush(ctx); err == nil && !last.IsZero() {
		c.io.Printf("Last push: %s\n", last.Local().Format(time.RFC3339))
	}

	if total == 0 {
		c.io.Println("No pending changes")
		return nil
	}
	c.io.Printf("Pending:   %d change(s)\n", total)
	c.io.Println()

	entries, err := c.outbox.Pending(ctx, *limit)
	if err != nil {
		return fmt.Errorf("pending: %w", err)
	}

	tw := tabwriter.NewWriter(c.io, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tACTION\tENTITY\tBASE\tQUEUED\tATTEMPTS\tLAST ERROR")
	for _, e := range entries {
		m := e.Mutation
		base := "-"
		if m.BaseVersion != nil {
			base = fmt.Sprint(*m.BaseVersion)
		}
		lastErr := e.LastError
		if lastErr == "" {
			lastErr = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s/%s\t%s\t%s\t%d\t%s\n",
			e.Seq, m.Action, m.EntityType, m.EntityID, base,
			e.QueuedAt.Local().Format(time.DateTime), e.Attempts, lastErr)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if *limit > 0 && total > len(entries) {
		c.io.Printf("... and %d more\n", total-len(entries))
	}
	return nil
}

func (c *Cli) runReceipt(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("receipt", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	key := fs.String("key", "", "Idempotency key of a pushed change")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("receipt: %w", err)
	}
	if *key == "" {
		return errors.New("receipt: -key is required")
	}

	id, ok, err := c.outbox.ServerItemID(ctx, *key)
	if err != nil {
		return fmt.Errorf("receipt: %w", err)
	}
	if !ok {
		return fmt.Errorf("receipt: no server item recorded for key %s", *key)
	}
	c.io.Println(id)
	return nil
}
