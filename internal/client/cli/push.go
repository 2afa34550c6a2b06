package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"

	httpClient "github.com/iudanet/fieldsync/internal/client/api"
)

func (c *Cli) runPush(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("push", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	tokenFlag := fs.String("token", "", "Device access token")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("push: %w", err)
	}

	token, err := c.accessToken(*tokenFlag)
	if err != nil {
		return err
	}

	result, err := c.syncService.Push(ctx, token)
	if result != nil && result.Pushed > 0 {
		c.io.Printf("Pushed:     %d change(s) in %d batch(es)\n", result.Pushed, result.Batches)
		c.io.Printf("Accepted:   %d\n", result.Accepted)
		if result.Duplicates > 0 {
			c.io.Printf("Duplicates: %d (already on the server)\n", result.Duplicates)
		}
	}
	if err != nil {
		if result != nil && result.Remaining > 0 {
			c.io.Printf("%d change(s) kept in the outbox\n", result.Remaining)
		}
		var serr *httpClient.StatusError
		if errors.As(err, &serr) && serr.StatusCode == http.StatusBadRequest {
			c.io.Println("The server rejected the batch. Check 'pending' and drop bad changes with 'discard -seq N'.")
		}
		return fmt.Errorf("push failed: %w", err)
	}

	if result.Pushed == 0 {
		c.io.Println("Nothing to push")
		return nil
	}
	c.io.Println("Outbox is empty")
	return nil
}
