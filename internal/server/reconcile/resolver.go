package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/iudanet/fieldsync/internal/crdt"
	"github.com/iudanet/fieldsync/internal/fingerprint"
	"github.com/iudanet/fieldsync/internal/models"
	"github.com/iudanet/fieldsync/internal/server/storage"
	"github.com/iudanet/fieldsync/internal/validation"
)

// serverNodeID is the node id the server side carries in field merges.
const serverNodeID = "server"

// Strategy turns a conflict into a Resolution. Plan must not touch storage.
type Strategy interface {
	Name() models.ResolutionStrategy
	Plan(conflict *models.SyncConflict, item *models.SyncQueueItem) (models.Resolution, error)
}

// Registry holds the resolution strategies by name.
type Registry struct {
	strategies map[models.ResolutionStrategy]Strategy
	mu         sync.RWMutex
}

// NewRegistry returns a registry with server_wins, client_wins and merge.
func NewRegistry() *Registry {
	r := &Registry{strategies: make(map[models.ResolutionStrategy]Strategy)}
	r.Register(ServerWins{})
	r.Register(ClientWins{})
	r.Register(Merge{})
	return r
}

// Register adds or replaces a strategy.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Name()] = s
}

// Get returns the strategy registered under name.
func (r *Registry) Get(name models.ResolutionStrategy) (Strategy, error) {
	if err := validation.ValidateStrategy(string(name), r.Names()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownStrategy, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	return s, nil
}

// Names lists registered strategies in lexical order.
func (r *Registry) Names() []models.ResolutionStrategy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]models.ResolutionStrategy, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ServerWins keeps the entity store as it is and drops the client mutation.
type ServerWins struct{}

func (ServerWins) Name() models.ResolutionStrategy { return models.StrategyServerWins }

func (ServerWins) Plan(*models.SyncConflict, *models.SyncQueueItem) (models.Resolution, error) {
	return models.Resolution{Strategy: models.StrategyServerWins, Complete: true}, nil
}

// ClientWins requeues the client mutation unchanged with force sync.
type ClientWins struct{}

func (ClientWins) Name() models.ResolutionStrategy { return models.StrategyClientWins }

func (ClientWins) Plan(*models.SyncConflict, *models.SyncQueueItem) (models.Resolution, error) {
	return models.Resolution{Strategy: models.StrategyClientWins}, nil
}

// Merge builds a field level union of the server snapshot and the client
// payload. A field present on both sides keeps the value with the later
// timestamp, ties going to the lexically greater node id.
type Merge struct{}

func (Merge) Name() models.ResolutionStrategy { return models.StrategyMerge }

func (Merge) Plan(conflict *models.SyncConflict, item *models.SyncQueueItem) (models.Resolution, error) {
	switch {
	case item.Action == models.ActionDelete:
		return models.Resolution{}, fmt.Errorf("%w: delete mutations carry no fields", ErrMergeUnsupported)
	case conflict.Reason == models.ReasonEntityDeleted:
		return models.Resolution{}, fmt.Errorf("%w: entity was deleted on the server", ErrMergeUnsupported)
	case isNull(conflict.ServerData):
		return models.Resolution{}, fmt.Errorf("%w: no server state to merge with", ErrMergeUnsupported)
	}

	merged, err := crdt.MergeObjects(sides(conflict))
	if err != nil {
		if errors.Is(err, crdt.ErrNotObject) {
			return models.Resolution{}, fmt.Errorf("%w: %v", ErrMergeUnsupported, err)
		}
		return models.Resolution{}, fmt.Errorf("failed to merge payloads: %w", err)
	}

	return models.Resolution{Strategy: models.StrategyMerge, Payload: merged}, nil
}

// sides returns the server snapshot and the client payload of a conflict
// as merge participants.
func sides(conflict *models.SyncConflict) (server, client crdt.Side) {
	server = crdt.Side{Timestamp: conflict.ServerTimestamp, NodeID: serverNodeID, Doc: conflict.ServerData}
	client = crdt.Side{Timestamp: conflict.ClientTimestamp, NodeID: conflict.DeviceID, Doc: conflict.ClientData}
	return server, client
}

func isNull(doc json.RawMessage) bool {
	trimmed := bytes.TrimSpace(doc)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// ResolveResult is the outcome of resolving one conflict.
type ResolveResult struct {
	Conflict *models.SyncConflict  `json:"conflict"`
	Item     *models.SyncQueueItem `json:"item"`
	Counts   models.ResolveCounts  `json:"counts"`
}

// Resolve applies strategy to one conflict. Resolving a conflict that is
// already resolved is a no-op reported with zero counts.
func (e *Engine) Resolve(ctx context.Context, actor models.Actor, conflictID string, strategy models.ResolutionStrategy) (*ResolveResult, error) {
	if err := authorize(actor, models.PermAdmin); err != nil {
		return nil, err
	}

	s, err := e.strategies.Get(strategy)
	if err != nil {
		return nil, err
	}

	conflict, err := e.store.GetConflict(ctx, conflictID)
	if err != nil {
		return nil, fmt.Errorf("failed to get conflict: %w", err)
	}

	item, err := e.store.GetItem(ctx, conflict.SyncQueueID)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue item: %w", err)
	}

	if conflict.Resolved {
		return &ResolveResult{Conflict: conflict, Item: item}, nil
	}

	res, err := s.Plan(conflict, item)
	if err != nil {
		return nil, err
	}

	cr, err := e.resolution(actor, conflict, item, res)
	if err != nil {
		return nil, err
	}

	resolved, err := e.store.ResolveConflicts(ctx, []storage.ConflictResolution{cr})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve conflict: %w", err)
	}

	var counts models.ResolveCounts
	countResolution(&counts, res, len(resolved) == 1)

	if conflict, err = e.store.GetConflict(ctx, conflictID); err != nil {
		return nil, fmt.Errorf("failed to reload conflict: %w", err)
	}
	if item, err = e.store.GetItem(ctx, conflict.SyncQueueID); err != nil {
		return nil, fmt.Errorf("failed to reload queue item: %w", err)
	}

	if counts.Resolved > 0 {
		e.logger.Info("Conflict resolved",
			"conflict_id", conflictID,
			"item_id", item.ID,
			"strategy", strategy,
			"resolved_by", actor.Username,
			"item_status", item.Status,
		)
		e.publish(models.EventConflictResolved, conflict)
	}

	return &ResolveResult{Conflict: conflict, Item: item, Counts: counts}, nil
}

// ResolveAll applies strategy to every unresolved conflict in one
// transaction. Conflicts the strategy cannot plan are skipped.
func (e *Engine) ResolveAll(ctx context.Context, actor models.Actor, strategy models.ResolutionStrategy) (models.ResolveCounts, error) {
	var counts models.ResolveCounts

	if err := authorize(actor, models.PermAdmin); err != nil {
		return counts, err
	}

	s, err := e.strategies.Get(strategy)
	if err != nil {
		return counts, err
	}

	unresolved := false
	filter := storage.ConflictFilter{Resolved: &unresolved, Page: storage.Page{Limit: storage.MaxPageLimit}}

	var (
		batch []storage.ConflictResolution
		plans = make(map[string]models.Resolution)
	)
	for {
		conflicts, total, err := e.store.ListConflicts(ctx, filter)
		if err != nil {
			return counts, fmt.Errorf("failed to list conflicts: %w", err)
		}

		for _, conflict := range conflicts {
			item, err := e.store.GetItem(ctx, conflict.SyncQueueID)
			if err != nil {
				return counts, fmt.Errorf("failed to get queue item: %w", err)
			}

			res, err := s.Plan(conflict, item)
			if err == nil {
				var cr storage.ConflictResolution
				cr, err = e.resolution(actor, conflict, item, res)
				if err == nil {
					batch = append(batch, cr)
					plans[conflict.ID] = res
					continue
				}
			}

			counts.Skipped++
			e.logger.Warn("Conflict skipped",
				"conflict_id", conflict.ID,
				"strategy", strategy,
				"error", err,
			)
		}

		filter.Page.Offset += len(conflicts)
		if len(conflicts) == 0 || filter.Page.Offset >= total {
			break
		}
	}

	if len(batch) == 0 {
		return counts, nil
	}

	resolved, err := e.store.ResolveConflicts(ctx, batch)
	if err != nil {
		return counts, fmt.Errorf("failed to resolve conflicts: %w", err)
	}
	for _, id := range resolved {
		countResolution(&counts, plans[id], true)
	}
	// Resolved by someone else between listing and the transaction.
	counts.Skipped += len(batch) - len(resolved)

	e.logger.Info("Conflicts resolved in bulk",
		"strategy", strategy,
		"resolved_by", actor.Username,
		"resolved", counts.Resolved,
		"requeued", counts.Requeued,
		"completed", counts.Completed,
		"skipped", counts.Skipped,
	)
	e.publish(models.EventConflictResolved, counts)

	return counts, nil
}

// resolution converts a strategy's plan into a storage write.
func (e *Engine) resolution(actor models.Actor, conflict *models.SyncConflict, item *models.SyncQueueItem, res models.Resolution) (storage.ConflictResolution, error) {
	now := e.clock.Now()
	cr := storage.ConflictResolution{
		ResolvedAt: now,
		ConflictID: conflict.ID,
		ItemID:     item.ID,
		ResolvedBy: actor.Username,
		Strategy:   res.Strategy,
	}

	if res.Complete {
		cr.Item = storage.ItemUpdate{
			To:        models.QueueStatusCompleted,
			UpdatedAt: now,
			Result:    models.Ok(models.OutcomeDiscarded, conflict.ServerVersion),
		}
		return cr, nil
	}

	force := true
	cr.Item = storage.ItemUpdate{
		To:            models.QueueStatusPending,
		UpdatedAt:     now,
		ForceSync:     &force,
		NextAttemptAt: &now,
		Result:        models.OkDetail(models.OutcomeRequeued, string(res.Strategy)),
	}

	if res.Payload != nil {
		hash, err := fingerprint.Payload(res.Payload)
		if err != nil {
			return cr, fmt.Errorf("failed to fingerprint resolved payload: %w", err)
		}
		cr.Item.Payload = res.Payload
		cr.Item.PayloadHash = hash
	}

	return cr, nil
}

func countResolution(c *models.ResolveCounts, res models.Resolution, resolved bool) {
	if !resolved {
		return
	}
	c.Resolved++
	if res.Complete {
		c.Completed++
	} else {
		c.Requeued++
	}
}

// ChangeKind describes how one top-level field differs between the server
// snapshot and the client payload.
type ChangeKind string

const (
	ChangeClientOnly ChangeKind = "client_only"
	ChangeServerOnly ChangeKind = "server_only"
	ChangeChanged    ChangeKind = "changed"
)

// Side names a participant of a conflict.
type Side string

const (
	SideServer Side = "server"
	SideClient Side = "client"
)

// FieldDiff is one differing top-level field. MergeKeeps is set for
// changed fields and names the value the merge strategy would keep.
type FieldDiff struct {
	Field      string          `json:"field"`
	Kind       ChangeKind      `json:"kind"`
	Server     json.RawMessage `json:"server,omitempty"`
	Client     json.RawMessage `json:"client,omitempty"`
	MergeKeeps Side            `json:"merge_keeps,omitempty"`
}

// ConflictView is everything an operator needs to decide on a conflict.
type ConflictView struct {
	Conflict *models.SyncConflict  `json:"conflict"`
	Item     *models.SyncQueueItem `json:"item"`
	Current  *models.Entity        `json:"current,omitempty"` // nil when the entity does not exist
	Diff     []FieldDiff           `json:"diff"`
}

// ConflictDetail loads a conflict with its queue item, the entity as it is
// now, and the field diff between the detection snapshot and the client
// payload.
func (e *Engine) ConflictDetail(ctx context.Context, actor models.Actor, conflictID string) (*ConflictView, error) {
	if err := authorize(actor, models.PermAdmin); err != nil {
		return nil, err
	}

	conflict, err := e.store.GetConflict(ctx, conflictID)
	if err != nil {
		return nil, fmt.Errorf("failed to get conflict: %w", err)
	}

	item, err := e.store.GetItem(ctx, conflict.SyncQueueID)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue item: %w", err)
	}

	current, err := e.store.GetEntity(ctx, conflict.EntityType, conflict.EntityID)
	if err != nil && !errors.Is(err, storage.ErrEntityNotFound) {
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}

	return &ConflictView{
		Conflict: conflict,
		Item:     item,
		Current:  current,
		Diff:     DiffFields(sides(conflict)),
	}, nil
}

// DiffFields compares the server and client documents field by field, in
// field order. Anything that is not an object is treated as having no fields.
func DiffFields(server, client crdt.Side) []FieldDiff {
	s := fieldMap(server)
	c := fieldMap(client)

	fields := s.Fields()
	for _, f := range c.Fields() {
		if _, ok := s.Get(f); !ok {
			fields = append(fields, f)
		}
	}
	slices.Sort(fields)

	diff := make([]FieldDiff, 0, len(fields))
	for _, f := range fields {
		sr, inServer := s.Get(f)
		cr, inClient := c.Get(f)

		switch {
		case !inServer:
			diff = append(diff, FieldDiff{Field: f, Kind: ChangeClientOnly, Client: cr.Value})
		case !inClient:
			diff = append(diff, FieldDiff{Field: f, Kind: ChangeServerOnly, Server: sr.Value})
		case !jsonEqual(sr.Value, cr.Value):
			keeps := SideServer
			if cr.IsNewerThan(sr) {
				keeps = SideClient
			}
			diff = append(diff, FieldDiff{Field: f, Kind: ChangeChanged, Server: sr.Value, Client: cr.Value, MergeKeeps: keeps})
		}
	}
	return diff
}

func fieldMap(side crdt.Side) *crdt.LWWMap {
	m, err := crdt.FromObject(side.Doc, side.Timestamp, side.NodeID)
	if err != nil {
		return crdt.NewLWWMap()
	}
	return m
}

func jsonEqual(a, b json.RawMessage) bool {
	var ab, bb bytes.Buffer
	if json.Compact(&ab, a) != nil || json.Compact(&bb, b) != nil {
		return bytes.Equal(a, b)
	}
	return bytes.Equal(ab.Bytes(), bb.Bytes())
}

// ListConflicts returns one page of conflicts and the total count.
func (e *Engine) ListConflicts(ctx context.Context, actor models.Actor, filter storage.ConflictFilter) ([]*models.SyncConflict, int, error) {
	if err := authorize(actor, models.PermAdmin); err != nil {
		return nil, 0, err
	}

	filter.Page = filter.Page.Normalize()
	conflicts, total, err := e.store.ListConflicts(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list conflicts: %w", err)
	}
	return conflicts, total, nil
}
