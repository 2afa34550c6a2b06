package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/iudanet/fieldsync/internal/models"
	"github.com/iudanet/fieldsync/internal/validation"
)

func (c *Cli) runEnqueue(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("enqueue", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	entityType := fs.String("type", "", "Entity type")
	entityID := fs.String("id", "", "Entity id")
	action := fs.String("action", "", "create, update or delete")
	base := fs.Int64("base", -1, "Entity version the change was made against (-1 for none)")
	payload := fs.String("payload", "{}", "JSON payload")
	key := fs.String("key", "", "Idempotency key (generated when empty)")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}

	m := models.Mutation{
		EntityType:     *entityType,
		EntityID:       *entityID,
		Action:         models.Action(*action),
		IdempotencyKey: *key,
		Payload:        json.RawMessage(*payload),
	}
	if *base >= 0 {
		m.BaseVersion = base
	}

	// Reject locally what the server would reject for the whole batch
	batch := []models.Mutation{m}
	if err := validation.ValidateBatch(c.deviceID, batch); err != nil {
		var berr *validation.BatchError
		if errors.As(err, &berr) {
			for _, fe := range berr.Errors {
				c.io.Printf("  %s: %s\n", fe.Field, fe.Message)
			}
		}
		return fmt.Errorf("enqueue: invalid mutation: %w", err)
	}

	entry, err := c.outbox.Enqueue(ctx, batch[0])
	if err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}

	c.io.Printf("Queued #%d %s %s/%s (key %s)\n",
		entry.Seq, entry.Mutation.Action, entry.Mutation.EntityType, entry.Mutation.EntityID, entry.Mutation.IdempotencyKey)
	return nil
}
