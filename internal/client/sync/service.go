package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	httpClient "github.com/iudanet/fieldsync/internal/client/api"
	"github.com/iudanet/fieldsync/internal/client/storage"
	"github.com/iudanet/fieldsync/pkg/api"
)

//go:generate moq -out service_mock.go . Service
//go:generate moq -out api_mock.go . APIClient

// ErrMalformedResponse is returned when the server answers a batch with
// a different number of items than it was sent.
var ErrMalformedResponse = errors.New("malformed submit response")

// APIClient is the part of the server API the push needs
type APIClient interface {
	Submit(ctx context.Context, accessToken string, req api.SubmitRequest) (*api.SubmitResponse, error)
}

// Service replays the local outbox to the server
type Service interface {
	// Push sends every pending mutation, batch by batch, in the order they were made
	Push(ctx context.Context, accessToken string) (*PushResult, error)

	// PendingCount returns the number of mutations still waiting for the server
	PendingCount(ctx context.Context) (int, error)
}

// Config tunes a push
type Config struct {
	DeviceID   string
	BatchSize  int
	MaxRetries uint64        // extra attempts for a batch after a transient failure
	RetryBase  time.Duration // first backoff, doubled on every retry
}

// DefaultConfig returns the push defaults for a device
func DefaultConfig(deviceID string) Config {
	return Config{
		DeviceID:   deviceID,
		BatchSize:  100,
		MaxRetries: 3,
		RetryBase:  500 * time.Millisecond,
	}
}

// PushResult contains push operation results
type PushResult struct {
	Batches    int // batches the server stored
	Pushed     int // mutations removed from the outbox
	Accepted   int // mutations queued on the server by this push
	Duplicates int // mutations the server had already seen
	Remaining  int // mutations still in the outbox
}

type service struct {
	apiClient       APIClient
	outbox          storage.OutboxStorage
	metadataStorage storage.MetadataStorage
	logger          *slog.Logger
	cfg             Config
	now             func() time.Time
}

// NewService creates a new sync service
func NewService(apiClient APIClient, outbox storage.OutboxStorage, metadataStorage storage.MetadataStorage, logger *slog.Logger, cfg Config) Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig(cfg.DeviceID).BatchSize
	}
	return &service{
		apiClient:       apiClient,
		outbox:          outbox,
		metadataStorage: metadataStorage,
		logger:          logger,
		cfg:             cfg,
		now:             time.Now,
	}
}

// Push drains the outbox. A failed batch stays in the outbox untouched and
// stops the push, so later mutations never overtake earlier ones.
func (s *service) Push(ctx context.Context, accessToken string) (*PushResult, error) {
	s.logger.Info("Starting push", "device_id", s.cfg.DeviceID)

	result := &PushResult{}
	for {
		entries, err := s.outbox.Pending(ctx, s.cfg.BatchSize)
		if err != nil {
			return result, fmt.Errorf("failed to read outbox: %w", err)
		}
		if len(entries) == 0 {
			break
		}

		resp, err := s.submit(ctx, accessToken, entries)
		if err != nil {
			s.recordRejection(ctx, entries, err)
			result.Remaining = s.remaining(ctx)
			return result, fmt.Errorf("failed to push batch: %w", err)
		}
		if resp == nil || len(resp.Items) != len(entries) {
			// Nothing is acked; the next push resends the batch.
			result.Remaining = s.remaining(ctx)
			return result, fmt.Errorf("%w: %d items for %d mutations", ErrMalformedResponse, itemCount(resp), len(entries))
		}

		acks := make([]storage.Ack, len(entries))
		for i, e := range entries {
			acks[i] = storage.Ack{Seq: e.Seq, ServerItemID: resp.Items[i].ID}
		}
		if err := s.outbox.Ack(ctx, acks); err != nil {
			// The server has the batch; the next push resends it and gets duplicates back.
			result.Remaining = s.remaining(ctx)
			return result, fmt.Errorf("failed to ack batch: %w", err)
		}

		result.Batches++
		result.Pushed += len(entries)
		result.Accepted += resp.Accepted
		result.Duplicates += resp.Duplicates

		s.logger.Debug("Batch pushed",
			"size", len(entries),
			"accepted", resp.Accepted,
			"duplicates", resp.Duplicates,
		)

		if len(entries) < s.cfg.BatchSize {
			break
		}
	}

	if result.Pushed > 0 {
		if err := s.metadataStorage.SaveLastPush(ctx, s.now()); err != nil {
			s.logger.Warn("Failed to save last push time", "error", err)
		}
	}

	s.logger.Info("Push completed",
		"pushed", result.Pushed,
		"accepted", result.Accepted,
		"duplicates", result.Duplicates,
		"batches", result.Batches,
	)

	return result, nil
}

func itemCount(resp *api.SubmitResponse) int {
	if resp == nil {
		return 0
	}
	return len(resp.Items)
}

func (s *service) submit(ctx context.Context, accessToken string, entries []*storage.OutboxEntry) (*api.SubmitResponse, error) {
	req := api.SubmitRequest{
		DeviceID:  s.cfg.DeviceID,
		Mutations: make([]api.Mutation, len(entries)),
	}
	for i, e := range entries {
		m := e.Mutation
		req.Mutations[i] = api.Mutation{
			ClientTimestamp: m.ClientTimestamp,
			BaseVersion:     m.BaseVersion,
			EntityType:      m.EntityType,
			EntityID:        m.EntityID,
			Action:          string(m.Action),
			IdempotencyKey:  m.IdempotencyKey,
			Payload:         m.Payload,
		}
	}

	var resp *api.SubmitResponse
	backoff := retry.WithMaxRetries(s.cfg.MaxRetries, retry.NewExponential(s.cfg.RetryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		r, err := s.apiClient.Submit(ctx, accessToken, req)
		if err == nil {
			resp = r
			return nil
		}

		var serr *httpClient.StatusError
		if errors.As(err, &serr) && !serr.Temporary() {
			return err
		}
		s.logger.Warn("Submit failed, retrying", "size", len(entries), "error", err)
		return retry.RetryableError(err)
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// recordRejection marks entries the server refused as invalid. Transport
// failures and other statuses leave the outbox as it was.
func (s *service) recordRejection(ctx context.Context, entries []*storage.OutboxEntry, err error) {
	var serr *httpClient.StatusError
	if !errors.As(err, &serr) || serr.StatusCode != http.StatusBadRequest {
		return
	}

	reasons := make(map[int]string)
	for _, d := range serr.Details {
		if d.Index < 0 || d.Index >= len(entries) {
			continue
		}
		msg := d.Field + ": " + d.Message
		if prev, ok := reasons[d.Index]; ok {
			msg = prev + "; " + msg
		}
		reasons[d.Index] = msg
	}

	if len(reasons) == 0 {
		seqs := make([]uint64, len(entries))
		for i, e := range entries {
			seqs[i] = e.Seq
		}
		if err := s.outbox.MarkFailed(ctx, seqs, serr.Error()); err != nil {
			s.logger.Error("Failed to record rejection", "error", err)
		}
		return
	}

	for i, reason := range reasons {
		if err := s.outbox.MarkFailed(ctx, []uint64{entries[i].Seq}, reason); err != nil {
			s.logger.Error("Failed to record rejection", "seq", entries[i].Seq, "error", err)
		}
	}
}

func (s *service) remaining(ctx context.Context) int {
	n, err := s.outbox.Count(ctx)
	if err != nil {
		s.logger.Warn("Failed to count outbox", "error", err)
		return -1
	}
	return n
}

// PendingCount returns the number of mutations waiting in the outbox
func (s *service) PendingCount(ctx context.Context) (int, error) {
	n, err := s.outbox.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending mutations: %w", err)
	}
	return n, nil
}
