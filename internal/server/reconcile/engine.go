// Package reconcile applies queued device mutations to the entity store,
// detects and resolves conflicts, records dispatch sessions and enforces
// retention.
package reconcile

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/fieldsync/internal/models"
	"github.com/iudanet/fieldsync/internal/server/storage"
)

var (
	// ErrForbidden is returned when the actor lacks the permission for an operation
	ErrForbidden = errors.New("forbidden")

	// ErrUnknownStrategy is returned for a resolution strategy that is not registered
	ErrUnknownStrategy = errors.New("unknown resolution strategy")

	// ErrMergeUnsupported is returned when a conflict cannot be merged field by field
	ErrMergeUnsupported = errors.New("merge is not supported for this conflict")

	// ErrSessionFinished is returned when a session recorder is finished twice
	ErrSessionFinished = errors.New("session already finished")
)

// Config holds dispatcher and cleanup tuning.
type Config struct {
	// Workers is the number of device lanes processed in parallel
	Workers int
	// BatchLimit is the default number of items one dispatch run selects
	BatchLimit int
	// MaxAttempts is the number of transient failures after which an item fails
	MaxAttempts int
	// BackoffBase is the delay after the first transient failure
	BackoffBase time.Duration
	// BackoffMax caps the exponential backoff
	BackoffMax time.Duration
	// TxTimeout bounds each entity store transaction
	TxTimeout time.Duration
	// StaleAfter is how long an item may stay processing before it is recovered
	StaleAfter time.Duration
	// RetentionKey selects the retention settings row
	RetentionKey string
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Workers:      4,
		BatchLimit:   100,
		MaxAttempts:  5,
		BackoffBase:  30 * time.Second,
		BackoffMax:   30 * time.Minute,
		TxTimeout:    5 * time.Second,
		StaleAfter:   10 * time.Minute,
		RetentionKey: models.DefaultRetentionKey,
	}
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	switch {
	case c.Workers < 1:
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	case c.BatchLimit < 1:
		return fmt.Errorf("batch limit must be at least 1, got %d", c.BatchLimit)
	case c.MaxAttempts < 1 || c.MaxAttempts > models.AttemptsCeiling:
		return fmt.Errorf("max attempts must be between 1 and %d, got %d", models.AttemptsCeiling, c.MaxAttempts)
	case c.BackoffBase <= 0 || c.BackoffMax < c.BackoffBase:
		return fmt.Errorf("backoff base %s and max %s are inconsistent", c.BackoffBase, c.BackoffMax)
	case c.TxTimeout <= 0:
		return fmt.Errorf("transaction timeout must be positive")
	case c.StaleAfter <= c.TxTimeout:
		return fmt.Errorf("stale-after %s must exceed transaction timeout %s", c.StaleAfter, c.TxTimeout)
	case c.RetentionKey == "":
		return fmt.Errorf("retention key is required")
	}
	return nil
}

// Backoff returns the delay before the next attempt after `attempts`
// transient failures: BackoffBase * 2^(attempts-1), capped at BackoffMax.
func (c Config) Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}

	d := c.BackoffBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= c.BackoffMax {
			return c.BackoffMax
		}
	}

	if d > c.BackoffMax {
		return c.BackoffMax
	}
	return d
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Publisher receives engine events. Implementations must not block.
type Publisher interface {
	Publish(event models.Event)
}

type noopPublisher struct{}

func (noopPublisher) Publish(models.Event) {}

// Engine is the reconciliation core shared by the HTTP API, the CLI and the
// schedulers. It is safe for concurrent use.
type Engine struct {
	store      storage.Store
	logger     *slog.Logger
	clock      Clock
	publisher  Publisher
	detector   *Detector
	strategies *Registry
	devices    *keyedLocker
	entities   *keyedLocker
	newID      func() string
	cfg        Config
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithPublisher sets the event sink.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithRegistry replaces the strategy registry.
func WithRegistry(r *Registry) Option {
	return func(e *Engine) { e.strategies = r }
}

// New creates an engine on top of store.
func New(logger *slog.Logger, store storage.Store, cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}

	e := &Engine{
		store:      store,
		logger:     logger,
		cfg:        cfg,
		clock:      systemClock{},
		publisher:  noopPublisher{},
		detector:   NewDetector(store),
		strategies: NewRegistry(),
		devices:    newKeyedLocker(),
		entities:   newKeyedLocker(),
		newID:      func() string { return uuid.New().String() },
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Strategies exposes the registry so callers can plug in strategies.
func (e *Engine) Strategies() *Registry {
	return e.strategies
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

func (e *Engine) publish(t models.EventType, data any) {
	e.publisher.Publish(models.Event{Type: t, At: e.clock.Now(), Data: data})
}

func authorize(actor models.Actor, p models.Permission) error {
	if actor.Can(p) {
		return nil
	}
	return fmt.Errorf("%w: %q (role %q) lacks %s permission", ErrForbidden, actor.Username, actor.Role, p)
}
