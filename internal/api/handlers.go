package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	gosync "sync"

	"github.com/ria8651/open-msupply/internal/store"
	omsync "github.com/ria8651/open-msupply/internal/sync"
	"github.com/ria8651/open-msupply/internal/synchroniser"
	"github.com/ria8651/open-msupply/internal/types"
	"github.com/ria8651/open-msupply/internal/validation"
)

const (
	defaultBufferLimit = 100
	maxBufferLimit     = 1000
)

// SyncDriver is the part of the synchroniser the API drives.
type SyncDriver interface {
	// Begin takes the single-run guard; run executes the cycle and releases it.
	Begin() (run func(ctx context.Context) error, err error)
	Status() synchroniser.Status
	IsRunning() bool
}

// Handler implements the API handlers
type Handler struct {
	store   *store.SQLiteStore
	driver  SyncDriver
	apiKey  string
	version string

	// triggered tracks cycles started by TriggerSync.
	triggered gosync.WaitGroup
}

// NewHandler creates a new Handler.
func NewHandler(s *store.SQLiteStore, driver SyncDriver, apiKey, version string) *Handler {
	return &Handler{
		store:   s,
		driver:  driver,
		apiKey:  apiKey,
		version: version,
	}
}

// Wait blocks until every manually triggered cycle has returned.
func (h *Handler) Wait() {
	h.triggered.Wait()
}

// SyncStatusResponse is the body of GET /api/v1/sync/status.
type SyncStatusResponse struct {
	Driver     synchroniser.Status `json:"driver"`
	SiteID     *int64              `json:"site_id,omitempty"`
	SiteUUID   *string             `json:"site_uuid,omitempty"`
	PullCursor int64               `json:"pull_cursor"`
	PushCursor int64               `json:"push_cursor"`
	Buffer     types.BufferStats   `json:"buffer"`
	LastSync   *types.SyncLog      `json:"last_sync"`
}

// BufferListResponse is the body of GET /api/v1/sync/buffer.
type BufferListResponse struct {
	Records []omsync.SyncBufferRecord `json:"records"`
	Count   int                       `json:"count"`
}

// TriggerResponse is the body of POST /api/v1/sync/trigger.
type TriggerResponse struct {
	Status string `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// Health returns the health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.store.Ping(ctx); err != nil {
		slog.Error("health check failed", "component", "api", "error", err)
		WriteProblem(w, r, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	siteID, err := h.store.GetInt64(ctx, omsync.KeySiteID)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, types.HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		SiteID:    siteID,
		IsSyncing: h.driver.IsRunning(),
	})
}

// SyncStatus handles GET /api/v1/sync/status
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := SyncStatusResponse{Driver: h.driver.Status()}

	var err error
	if resp.SiteID, err = h.store.GetInt64(ctx, omsync.KeySiteID); err != nil {
		MapStoreError(w, r, err)
		return
	}
	if resp.SiteUUID, err = h.store.GetString(ctx, omsync.KeySiteUUID); err != nil {
		MapStoreError(w, r, err)
		return
	}
	for key, dst := range map[string]*int64{
		omsync.KeyPullCursor: &resp.PullCursor,
		omsync.KeyPushCursor: &resp.PushCursor,
	} {
		v, err := h.store.GetInt64(ctx, key)
		if err != nil {
			MapStoreError(w, r, err)
			return
		}
		if v != nil {
			*dst = *v
		}
	}

	stats, err := h.store.SyncBufferStats(ctx)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	resp.Buffer = *stats

	last, err := h.store.LatestSyncLog(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// Never synced.
	case err != nil:
		MapStoreError(w, r, err)
		return
	default:
		resp.LastSync = last
	}

	writeJSON(w, http.StatusOK, resp)
}

// TriggerSync handles POST /api/v1/sync/trigger. The guard is taken before
// answering, so 202 means this request owns the cycle. The cycle runs in the
// background and outlives the request.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	run, err := h.driver.Begin()
	if errors.Is(err, omsync.ErrSyncAlreadyRunning) {
		WriteProblemSyncRunning(w, r)
		return
	}
	if err != nil {
		MapStoreError(w, r, err)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	reqID := GetRequestID(r.Context())
	h.triggered.Add(1)
	go func() {
		defer h.triggered.Done()
		if err := run(ctx); err != nil {
			slog.Warn("manual sync failed", "component", "api", "request_id", reqID, "error", err)
			return
		}
		slog.Info("manual sync finished", "component", "api", "request_id", reqID)
	}()

	writeJSON(w, http.StatusAccepted, TriggerResponse{Status: "started"})
}

// ListBuffer handles GET /api/v1/sync/buffer
func (h *Handler) ListBuffer(w http.ResponseWriter, r *http.Request) {
	filter, errs := parseBufferQuery(r)
	if len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Query contains invalid parameters", errs)
		return
	}

	records, err := h.store.QuerySyncBuffer(r.Context(), filter)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	if records == nil {
		records = []omsync.SyncBufferRecord{}
	}

	writeJSON(w, http.StatusOK, BufferListResponse{Records: records, Count: len(records)})
}

// parseBufferQuery turns table, action, state and limit parameters into a
// buffer filter.
func parseBufferQuery(r *http.Request) (store.SyncBufferFilter, []validation.ValidationError) {
	q := r.URL.Query()
	var c validation.Collector

	var filter store.SyncBufferFilter
	switch state := q.Get("state"); state {
	case "":
	case "pending":
		filter = store.PendingFilter()
	case "integrated":
		filter = store.IntegratedFilter()
	case "failed":
		filter = store.FailedFilter()
	default:
		c.Add(validation.ValidateEnum("state", state, []string{"pending", "integrated", "failed"}))
	}

	if table := q.Get("table"); table != "" {
		filter.TableNames = []string{table}
	}

	if raw := q.Get("action"); raw != "" {
		action := omsync.Action(raw)
		if action.Valid() {
			filter.Action = &action
		} else {
			c.Add(validation.ValidateEnum("action", raw, []string{
				string(omsync.ActionUpsert), string(omsync.ActionDelete), string(omsync.ActionMerge),
			}))
		}
	}

	filter.Limit = defaultBufferLimit
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxBufferLimit {
			c.Add(&validation.ValidationError{
				Field:   "limit",
				Message: "must be an integer between 1 and " + strconv.Itoa(maxBufferLimit),
			})
		} else {
			filter.Limit = limit
		}
	}

	return filter, c.Errors()
}
