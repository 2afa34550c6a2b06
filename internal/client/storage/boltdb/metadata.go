package boltdb

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	keyLastPush = "last_push_at"
)

// SaveLastPush saves the time of the last successful push
func (s *Storage) SaveLastPush(ctx context.Context, at time.Time) error {
	return s.update(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketMetadata)
		if err != nil {
			return err
		}

		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(at.UnixNano()))

		if err := b.Put([]byte(keyLastPush), buf); err != nil {
			return fmt.Errorf("failed to save last push time: %w", err)
		}
		return nil
	})
}

// GetLastPush retrieves the time of the last successful push.
// Returns the zero time if nothing has been pushed yet
func (s *Storage) GetLastPush(ctx context.Context) (time.Time, error) {
	var at time.Time

	err := s.view(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketMetadata)
		if err != nil {
			return err
		}

		buf := b.Get([]byte(keyLastPush))
		if buf == nil {
			return nil
		}
		if len(buf) != 8 {
			return fmt.Errorf("corrupt last push time: %d bytes", len(buf))
		}
		at = time.Unix(0, int64(binary.BigEndian.Uint64(buf))).UTC()
		return nil
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last push time: %w", err)
	}

	return at, nil
}
