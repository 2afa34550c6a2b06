package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/iudanet/fieldsync/internal/models"
	"github.com/iudanet/fieldsync/internal/server/reconcile"
	"github.com/iudanet/fieldsync/internal/server/storage"
	"github.com/iudanet/fieldsync/pkg/api"
)

// AdminEngine is the part of the reconciliation engine behind the admin API.
type AdminEngine interface {
	Dispatch(ctx context.Context, actor models.Actor, opts reconcile.DispatchOptions) (*models.SyncSessionLog, error)
	QueueStatus(ctx context.Context, actor models.Actor, filter storage.QueueFilter) (*reconcile.QueueReport, error)
	Retry(ctx context.Context, actor models.Actor, itemID string) (*models.SyncQueueItem, error)
	RetryAllFailed(ctx context.Context, actor models.Actor) (int64, error)
	ClearCompleted(ctx context.Context, actor models.Actor) (int64, error)
	ListConflicts(ctx context.Context, actor models.Actor, filter storage.ConflictFilter) ([]*models.SyncConflict, int, error)
	ConflictDetail(ctx context.Context, actor models.Actor, conflictID string) (*reconcile.ConflictView, error)
	Resolve(ctx context.Context, actor models.Actor, conflictID string, strategy models.ResolutionStrategy) (*reconcile.ResolveResult, error)
	ResolveAll(ctx context.Context, actor models.Actor, strategy models.ResolutionStrategy) (models.ResolveCounts, error)
	Cleanup(ctx context.Context, actor models.Actor) (*reconcile.CleanupReport, error)
	Retention(ctx context.Context, actor models.Actor) (*models.RetentionSetting, error)
	UpdateRetention(ctx context.Context, actor models.Actor, policy models.RetentionPolicy, autoEnabled bool) (*models.RetentionSetting, error)
	SessionLogs(ctx context.Context, actor models.Actor, filter storage.SessionFilter) ([]*models.SyncSessionLog, int, error)
	SessionLog(ctx context.Context, actor models.Actor, id string) (*models.SyncSessionLog, error)
}

// AdminHandler serves the /api/v1/admin routes. Authorization is enforced
// by the engine, so every handler just forwards the request actor.
type AdminHandler struct {
	logger *slog.Logger
	engine AdminEngine
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(logger *slog.Logger, engine AdminEngine) *AdminHandler {
	return &AdminHandler{
		logger: logger,
		engine: engine,
	}
}

// Queue handles GET /api/v1/admin/queue
func (h *AdminHandler) Queue(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(h.logger, w, r)
	if !ok {
		return
	}

	filter, err := parseQueueFilter(r.URL.Query())
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	report, err := h.engine.QueueStatus(r.Context(), actor, filter)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	writeJSON(h.logger, w, http.StatusOK, struct {
		api.ListResponse[*models.SyncQueueItem]
		Counts map[models.QueueStatus]int `json:"counts"`
	}{
		ListResponse: api.ListResponse[*models.SyncQueueItem]{
			Items:  report.Items,
			Total:  report.Total,
			Limit:  filter.Page.Limit,
			Offset: filter.Page.Offset,
		},
		Counts: report.Counts,
	})
}

// Retry handles POST /api/v1/admin/queue/retry
func (h *AdminHandler) Retry(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(h.logger, w, r)
	if !ok {
		return
	}

	var req api.RetryRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	switch {
	case req.All && req.ItemID != "":
		writeError(h.logger, w, r, badRequest("item_id and all are mutually exclusive"))
	case req.All:
		n, err := h.engine.RetryAllFailed(r.Context(), actor)
		if err != nil {
			writeError(h.logger, w, r, err)
			return
		}
		writeJSON(h.logger, w, http.StatusOK, api.CountResponse{Count: n})
	case req.ItemID != "":
		item, err := h.engine.Retry(r.Context(), actor, req.ItemID)
		if err != nil {
			writeError(h.logger, w, r, err)
			return
		}
		writeJSON(h.logger, w, http.StatusOK, item)
	default:
		writeError(h.logger, w, r, badRequest("item_id or all is required"))
	}
}

// ClearCompleted handles POST /api/v1/admin/queue/clear-completed
func (h *AdminHandler) ClearCompleted(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(h.logger, w, r)
	if !ok {
		return
	}

	n, err := h.engine.ClearCompleted(r.Context(), actor)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, api.CountResponse{Count: n})
}

// Dispatch handles POST /api/v1/admin/dispatch and runs one pass inline.
func (h *AdminHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(h.logger, w, r)
	if !ok {
		return
	}

	var req api.DispatchRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	if req.Limit < 0 {
		writeError(h.logger, w, r, badRequest("invalid limit %d", req.Limit))
		return
	}

	log, err := h.engine.Dispatch(r.Context(), actor, reconcile.DispatchOptions{
		DeviceID: req.DeviceID,
		Limit:    req.Limit,
		Trigger:  models.TriggerManual,
	})
	if err != nil && log == nil {
		writeError(h.logger, w, r, err)
		return
	}
	if err != nil {
		// The pass was cut short but its session log is still the answer.
		h.logger.Warn("Dispatch ended early", "session_id", log.ID, "error", err)
	}
	writeJSON(h.logger, w, http.StatusOK, log)
}

// Conflicts handles GET /api/v1/admin/conflicts
func (h *AdminHandler) Conflicts(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(h.logger, w, r)
	if !ok {
		return
	}

	filter, err := parseConflictFilter(r.URL.Query())
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	conflicts, total, err := h.engine.ListConflicts(r.Context(), actor, filter)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	writeJSON(h.logger, w, http.StatusOK, api.ListResponse[*models.SyncConflict]{
		Items:  conflicts,
		Total:  total,
		Limit:  filter.Page.Limit,
		Offset: filter.Page.Offset,
	})
}

// Conflict handles GET /api/v1/admin/conflicts/{id}
func (h *AdminHandler) Conflict(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(h.logger, w, r)
	if !ok {
		return
	}

	view, err := h.engine.ConflictDetail(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, view)
}

// Resolve handles POST /api/v1/admin/conflicts/resolve. Without a
// conflict_id every unresolved conflict is resolved.
func (h *AdminHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(h.logger, w, r)
	if !ok {
		return
	}

	var req api.ResolveRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	if req.Strategy == "" {
		writeError(h.logger, w, r, badRequest("strategy is required"))
		return
	}
	strategy := models.ResolutionStrategy(req.Strategy)

	if req.ConflictID == "" {
		counts, err := h.engine.ResolveAll(r.Context(), actor, strategy)
		if err != nil {
			writeError(h.logger, w, r, err)
			return
		}
		writeJSON(h.logger, w, http.StatusOK, counts)
		return
	}

	res, err := h.engine.Resolve(r.Context(), actor, req.ConflictID, strategy)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, res)
}

// Cleanup handles POST /api/v1/admin/cleanup
func (h *AdminHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(h.logger, w, r)
	if !ok {
		return
	}

	report, err := h.engine.Cleanup(r.Context(), actor)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, report)
}

// Retention handles GET /api/v1/admin/retention
func (h *AdminHandler) Retention(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(h.logger, w, r)
	if !ok {
		return
	}

	setting, err := h.engine.Retention(r.Context(), actor)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, setting)
}

// UpdateRetention handles PUT /api/v1/admin/retention
func (h *AdminHandler) UpdateRetention(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(h.logger, w, r)
	if !ok {
		return
	}

	var req api.RetentionRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	policy := models.RetentionPolicy{
		CompletedDays: req.CompletedDays,
		FailedDays:    req.FailedDays,
		LogsDays:      req.LogsDays,
		ConflictsDays: req.ConflictsDays,
	}
	setting, err := h.engine.UpdateRetention(r.Context(), actor, policy, req.AutoCleanupEnabled)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, setting)
}

// Sessions handles GET /api/v1/admin/sessions. With format=csv or
// format=tsv the page is streamed as a flat export instead of JSON.
func (h *AdminHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(h.logger, w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter, err := parseSessionFilter(q)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	var format reconcile.ExportFormat
	if v := q.Get("format"); v != "" && v != "json" {
		if format, err = reconcile.ParseExportFormat(v); err != nil {
			writeError(h.logger, w, r, badRequest("%v", err))
			return
		}
	}

	logs, total, err := h.engine.SessionLogs(r.Context(), actor, filter)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	if format == "" {
		writeJSON(h.logger, w, http.StatusOK, api.ListResponse[*models.SyncSessionLog]{
			Items:  logs,
			Total:  total,
			Limit:  filter.Page.Limit,
			Offset: filter.Page.Offset,
		})
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=sessions.%s", format))
	w.WriteHeader(http.StatusOK)
	if err := reconcile.ExportSessionLogs(w, logs, format); err != nil {
		h.logger.Error("Failed to export session logs", "error", err)
	}
}

// Session handles GET /api/v1/admin/sessions/{id}
func (h *AdminHandler) Session(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(h.logger, w, r)
	if !ok {
		return
	}

	log, err := h.engine.SessionLog(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, log)
}
