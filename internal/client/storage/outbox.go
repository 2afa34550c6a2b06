package storage

import (
	"context"
	"time"

	"github.com/iudanet/fieldsync/internal/models"
)

//go:generate moq -out outbox_mock.go . OutboxStorage

// OutboxEntry is one local change waiting to be delivered to the server.
type OutboxEntry struct {
	Seq       uint64          `json:"seq"`
	Mutation  models.Mutation `json:"mutation"`
	QueuedAt  time.Time       `json:"queued_at"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"last_error,omitempty"`
}

// Ack confirms that the server stored the mutation with the given sequence.
type Ack struct {
	Seq          uint64
	ServerItemID string
}

// OutboxStorage keeps mutations made offline in the order they were made
type OutboxStorage interface {
	// Enqueue stores a mutation. An empty idempotency key is filled with a
	// fresh uuid and a missing client timestamp with the current time.
	Enqueue(ctx context.Context, m models.Mutation) (*OutboxEntry, error)

	// Pending returns up to limit undelivered entries, oldest first.
	// A limit <= 0 returns all of them.
	Pending(ctx context.Context, limit int) ([]*OutboxEntry, error)

	// Ack removes delivered entries and remembers the server item ids by idempotency key
	Ack(ctx context.Context, acks []Ack) error

	// MarkFailed records a rejected delivery attempt without removing the entries
	MarkFailed(ctx context.Context, seqs []uint64, reason string) error

	// Discard removes one undelivered entry without a receipt and returns it.
	// Returns ErrEntryNotFound for an unknown sequence.
	Discard(ctx context.Context, seq uint64) (*OutboxEntry, error)

	// Count returns the number of undelivered entries
	Count(ctx context.Context) (int, error)

	// ServerItemID returns the server id recorded for a delivered idempotency key
	ServerItemID(ctx context.Context, idempotencyKey string) (string, bool, error)
}
