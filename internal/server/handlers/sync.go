package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/iudanet/fieldsync/internal/models"
	"github.com/iudanet/fieldsync/internal/server/reconcile"
	"github.com/iudanet/fieldsync/pkg/api"
)

// Submitter accepts device mutation batches
type Submitter interface {
	Submit(ctx context.Context, actor models.Actor, deviceID string, mutations []models.Mutation) (*reconcile.SubmitResult, error)
}

// SyncHandler handles device submissions
type SyncHandler struct {
	logger    *slog.Logger
	submitter Submitter
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(logger *slog.Logger, submitter Submitter) *SyncHandler {
	return &SyncHandler{
		logger:    logger,
		submitter: submitter,
	}
}

// Submit handles POST /api/v1/sync/submit.
// The batch is validated as a whole; nothing is queued when any mutation is invalid.
func (h *SyncHandler) Submit(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(h.logger, w, r)
	if !ok {
		return
	}

	var req api.SubmitRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	// A device token implies its own device id.
	deviceID := req.DeviceID
	if deviceID == "" {
		deviceID = actor.DeviceID
	}

	res, err := h.submitter.Submit(r.Context(), actor, deviceID, toMutations(req.Mutations))
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	resp := api.SubmitResponse{
		Items:      make([]api.SubmittedItem, 0, len(res.Items)),
		Accepted:   res.Accepted,
		Duplicates: res.Duplicates,
	}
	for _, it := range res.Items {
		resp.Items = append(resp.Items, api.SubmittedItem{
			ID:             it.ID,
			IdempotencyKey: it.IdempotencyKey,
			Duplicate:      it.Duplicate,
		})
	}

	status := http.StatusAccepted
	if res.Accepted == 0 {
		status = http.StatusOK
	}
	writeJSON(h.logger, w, status, resp)
}

func toMutations(in []api.Mutation) []models.Mutation {
	out := make([]models.Mutation, 0, len(in))
	for _, m := range in {
		out = append(out, models.Mutation{
			ClientTimestamp: m.ClientTimestamp,
			BaseVersion:     m.BaseVersion,
			EntityType:      m.EntityType,
			EntityID:        m.EntityID,
			Action:          models.Action(m.Action),
			IdempotencyKey:  m.IdempotencyKey,
			Payload:         m.Payload,
		})
	}
	return out
}
