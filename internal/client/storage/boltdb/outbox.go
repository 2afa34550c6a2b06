package boltdb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/iudanet/fieldsync/internal/client/storage"
	"github.com/iudanet/fieldsync/internal/models"
)

// seqKey encodes a sequence big-endian so the cursor walks entries in enqueue order.
func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

// Enqueue stores a mutation at the tail of the outbox
func (s *Storage) Enqueue(ctx context.Context, m models.Mutation) (*storage.OutboxEntry, error) {
	if m.IdempotencyKey == "" {
		m.IdempotencyKey = uuid.New().String()
	}
	now := time.Now().UTC()
	if m.ClientTimestamp == nil {
		m.ClientTimestamp = &now
	}

	entry := &storage.OutboxEntry{
		Mutation: m,
		QueuedAt: now,
	}

	err := s.update(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketOutbox)
		if err != nil {
			return err
		}

		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate sequence: %w", err)
		}
		entry.Seq = seq

		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal entry: %w", err)
		}
		return b.Put(seqKey(seq), data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue mutation: %w", err)
	}

	return entry, nil
}

// Pending returns undelivered entries, oldest first
func (s *Storage) Pending(ctx context.Context, limit int) ([]*storage.OutboxEntry, error) {
	var entries []*storage.OutboxEntry

	err := s.view(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketOutbox)
		if err != nil {
			return err
		}

		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if limit > 0 && len(entries) >= limit {
				break
			}
			var e storage.OutboxEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("failed to unmarshal entry %d: %w", binary.BigEndian.Uint64(k), err)
			}
			entries = append(entries, &e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending entries: %w", err)
	}

	return entries, nil
}

// Ack removes delivered entries. Every removal and its receipt are written in one transaction.
func (s *Storage) Ack(ctx context.Context, acks []storage.Ack) error {
	if len(acks) == 0 {
		return nil
	}

	err := s.update(func(tx *bbolt.Tx) error {
		outbox, err := bucket(tx, bucketOutbox)
		if err != nil {
			return err
		}
		receipts, err := bucket(tx, bucketAcks)
		if err != nil {
			return err
		}

		for _, a := range acks {
			key := seqKey(a.Seq)
			v := outbox.Get(key)
			if v == nil {
				return fmt.Errorf("seq %d: %w", a.Seq, storage.ErrEntryNotFound)
			}

			var e storage.OutboxEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("failed to unmarshal entry %d: %w", a.Seq, err)
			}
			if err := receipts.Put([]byte(e.Mutation.IdempotencyKey), []byte(a.ServerItemID)); err != nil {
				return fmt.Errorf("failed to record receipt: %w", err)
			}
			if err := outbox.Delete(key); err != nil {
				return fmt.Errorf("failed to delete entry %d: %w", a.Seq, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to ack entries: %w", err)
	}
	return nil
}

// MarkFailed bumps the attempt counter of each entry and stores the reason
func (s *Storage) MarkFailed(ctx context.Context, seqs []uint64, reason string) error {
	err := s.update(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketOutbox)
		if err != nil {
			return err
		}

		for _, seq := range seqs {
			key := seqKey(seq)
			v := b.Get(key)
			if v == nil {
				return fmt.Errorf("seq %d: %w", seq, storage.ErrEntryNotFound)
			}

			var e storage.OutboxEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("failed to unmarshal entry %d: %w", seq, err)
			}
			e.Attempts++
			e.LastError = reason

			data, err := json.Marshal(&e)
			if err != nil {
				return fmt.Errorf("failed to marshal entry: %w", err)
			}
			if err := b.Put(key, data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to mark entries failed: %w", err)
	}
	return nil
}

// Discard drops an entry the server will never accept
func (s *Storage) Discard(ctx context.Context, seq uint64) (*storage.OutboxEntry, error) {
	var e storage.OutboxEntry
	err := s.update(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketOutbox)
		if err != nil {
			return err
		}

		key := seqKey(seq)
		v := b.Get(key)
		if v == nil {
			return fmt.Errorf("seq %d: %w", seq, storage.ErrEntryNotFound)
		}
		if err := json.Unmarshal(v, &e); err != nil {
			return fmt.Errorf("failed to unmarshal entry %d: %w", seq, err)
		}
		return b.Delete(key)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to discard entry: %w", err)
	}
	return &e, nil
}

// Count returns the number of undelivered entries
func (s *Storage) Count(ctx context.Context) (int, error) {
	var n int
	err := s.view(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketOutbox)
		if err != nil {
			return err
		}
		n = b.Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return n, nil
}

// ServerItemID looks up the receipt recorded by Ack
func (s *Storage) ServerItemID(ctx context.Context, idempotencyKey string) (string, bool, error) {
	var (
		id    string
		found bool
	)
	err := s.view(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketAcks)
		if err != nil {
			return err
		}
		if v := b.Get([]byte(idempotencyKey)); v != nil {
			id, found = string(v), true
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to read receipt: %w", err)
	}
	return id, found, nil
}
