// Package handler provides HTTP request handlers for the edit coordination
// service.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/AdirGamil/animeedit/internal/config"
	apierrors "github.com/AdirGamil/animeedit/internal/errors"
	"github.com/AdirGamil/animeedit/internal/model"
	"github.com/AdirGamil/animeedit/internal/service"
	"github.com/AdirGamil/animeedit/internal/store"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	records      store.RecordStore
	locks        *service.LockTable
	pending      *service.PendingEditTable
	review       *service.ReviewService
	errorHandler *apierrors.Handler
	logger       *zap.Logger
	admin        config.AdminConfig
	timeout      time.Duration
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	records store.RecordStore,
	locks *service.LockTable,
	pending *service.PendingEditTable,
	review *service.ReviewService,
	errorHandler *apierrors.Handler,
	logger *zap.Logger,
	admin config.AdminConfig,
	timeout time.Duration,
) *Handlers {
	return &Handlers{
		records:      records,
		locks:        locks,
		pending:      pending,
		review:       review,
		errorHandler: errorHandler,
		logger:       logger,
		admin:        admin,
		timeout:      timeout,
	}
}

var (
	errInvalidPagination = errors.New("page and limit must be positive integers")
	errInvalidRecordID   = errors.New("recordId must be an integer")
)

// recordView is an Available record enriched with lock state for listings.
type recordView map[string]any

// pagedRecords is the envelope returned for paginated listings.
type pagedRecords struct {
	Items      []recordView `json:"items"`
	TotalCount int          `json:"totalCount"`
	TotalPages int          `json:"totalPages"`
	Page       int          `json:"page"`
	Limit      int          `json:"limit"`
}

// ListRecords handles GET /api/records requests. Records in the Available
// partition are returned enriched with {locked, lockedBy}; when page or
// limit query parameters are present the result is wrapped in a pagination
// envelope.
func (h *Handlers) ListRecords(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	records, err := h.records.List(ctx, model.PartitionAvailable)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	lockedBy := make(map[model.RecordID]string)
	for _, lock := range h.locks.Snapshot() {
		lockedBy[lock.RecordID] = lock.Holder
	}

	views := make([]recordView, 0, len(records))
	for _, record := range records {
		view := recordView(record.Fields.Clone())
		view["recordId"] = record.ID
		if holder, locked := lockedBy[record.ID]; locked {
			view["locked"] = true
			view["lockedBy"] = holder
		} else {
			view["locked"] = false
			view["lockedBy"] = nil
		}
		views = append(views, view)
	}

	page, limit, paginated, err := parsePagination(r)
	if err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), requestID)
		return
	}
	if !paginated {
		h.writeJSONResponse(w, http.StatusOK, views)
		return
	}

	totalCount := len(views)
	totalPages := (totalCount + limit - 1) / limit
	start := (page - 1) * limit
	if start > totalCount {
		start = totalCount
	}
	end := start + limit
	if end > totalCount {
		end = totalCount
	}

	h.writeJSONResponse(w, http.StatusOK, pagedRecords{
		Items:      views[start:end],
		TotalCount: totalCount,
		TotalPages: totalPages,
		Page:       page,
		Limit:      limit,
	})
}

// AcquireLock handles POST /api/locks/{recordId} requests.
func (h *Handlers) AcquireLock(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	recordID, err := recordIDVar(r)
	if err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), requestID)
		return
	}

	var req struct {
		Holder string `json:"holder"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler.WriteValidationError(w, "invalid request body", requestID)
		return
	}
	if req.Holder == "" {
		h.errorHandler.WriteValidationError(w, "holder is required", requestID)
		return
	}

	if err := h.locks.Acquire(recordID, req.Holder); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReleaseLock handles POST /api/unlock/{recordId} requests. Idempotent;
// always 200.
func (h *Handlers) ReleaseLock(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	recordID, err := recordIDVar(r)
	if err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), requestID)
		return
	}

	h.locks.Release(recordID)
	h.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SubmitEdit handles POST /api/edits requests.
func (h *Handlers) SubmitEdit(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	var req struct {
		RecordID *model.RecordID `json:"recordId"`
		Editor   string          `json:"editor"`
		Patch    model.Fields    `json:"patch"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler.WriteValidationError(w, "invalid request body", requestID)
		return
	}
	if req.RecordID == nil {
		h.errorHandler.WriteValidationError(w, "recordId is required", requestID)
		return
	}
	if req.Editor == "" {
		h.errorHandler.WriteValidationError(w, "editor is required", requestID)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	editID, err := h.review.SubmitEdit(ctx, *req.RecordID, req.Editor, req.Patch)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]string{"editId": editID})
}

// ListEdits handles GET /api/edits requests.
func (h *Handlers) ListEdits(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, h.pending.Snapshot())
}

// ApproveEdit handles POST /api/edits/{editId}/approve requests. The body's
// adminPatch is optional; an empty body approves the edit as submitted.
func (h *Handlers) ApproveEdit(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	editID := mux.Vars(r)["editId"]

	var req struct {
		AdminPatch model.Fields `json:"adminPatch"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.errorHandler.WriteValidationError(w, "invalid request body", requestID)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	approved, err := h.review.Approve(ctx, editID, req.AdminPatch)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]any{
		"success":       true,
		"updatedRecord": approved,
	})
}

// RejectEdit handles POST /api/edits/{editId}/reject requests.
func (h *Handlers) RejectEdit(w http.ResponseWriter, r *http.Request) {
	editID := mux.Vars(r)["editId"]

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.review.Reject(ctx, editID); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]any{"success": true})
}

// AdminLocks handles GET /api/admin/locks requests.
func (h *Handlers) AdminLocks(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, h.locks.Snapshot())
}

// AdminEdits handles GET /api/admin/edits requests.
func (h *Handlers) AdminEdits(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, h.pending.Snapshot())
}

// AdminForceUnlock handles POST /api/admin/unlock/{recordId} requests.
func (h *Handlers) AdminForceUnlock(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	recordID, err := recordIDVar(r)
	if err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), requestID)
		return
	}

	h.locks.ForceRelease(recordID)
	h.writeJSONResponse(w, http.StatusOK, map[string]any{"success": true})
}

// AdminStats handles GET /api/admin/stats requests.
func (h *Handlers) AdminStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	stats, err := h.review.Stats(ctx)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, stats)
}

// AdminLogin handles POST /api/admin/login requests, exchanging the
// configured credentials for the admin bearer token.
func (h *Handlers) AdminLogin(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler.WriteValidationError(w, "invalid request body", requestID)
		return
	}

	if req.Username != h.admin.Username || req.Password != h.admin.Password {
		h.errorHandler.WriteUnauthorizedError(w, "invalid credentials", requestID)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]string{"token": h.admin.Token})
}

// recordIDVar parses the recordId path variable.
func recordIDVar(r *http.Request) (model.RecordID, error) {
	raw := mux.Vars(r)["recordId"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errInvalidRecordID
	}
	return model.RecordID(id), nil
}

// parsePagination reads the page/limit query parameters. Returns
// paginated=false when neither is present.
func parsePagination(r *http.Request) (page, limit int, paginated bool, err error) {
	query := r.URL.Query()
	rawPage := query.Get("page")
	rawLimit := query.Get("limit")
	if rawPage == "" && rawLimit == "" {
		return 0, 0, false, nil
	}

	page = 1
	limit = 20
	if rawPage != "" {
		page, err = strconv.Atoi(rawPage)
		if err != nil || page < 1 {
			return 0, 0, false, errInvalidPagination
		}
	}
	if rawLimit != "" {
		limit, err = strconv.Atoi(rawLimit)
		if err != nil || limit < 1 {
			return 0, 0, false, errInvalidPagination
		}
	}
	return page, limit, true, nil
}

// writeJSONResponse writes a JSON response to the HTTP response writer.
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}
