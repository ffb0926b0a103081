package queue

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/storeops/opsqueue/internal/pkg/httputil"
)

// Listing limits.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrItemNotFound, Status: http.StatusNotFound, Message: "queue item not found"},
	{Error: ErrUnknownWorkType, Status: http.StatusBadRequest, Message: "no processor registered for work type"},
	{Error: ErrNotFailed, Status: http.StatusConflict, Message: "only failed items can be requeued"},
}

// Handler handles HTTP requests for the queue module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new queue handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers queue routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/queue", func(r chi.Router) {
		r.Post("/items", h.EnqueueItem)
		r.Get("/items", h.ListItems)
		r.Get("/items/{id}", h.GetItem)
		r.Post("/items/{id}/requeue", h.RequeueItem)
		r.Post("/dispatch", h.Dispatch)
		r.Get("/stats", h.GetStats)
	})
}

// EnqueueRequest represents request body for enqueueing a work item.
type EnqueueRequest struct {
	WorkType       string          `json:"work_type" validate:"required,max=100"`
	Payload        json.RawMessage `json:"payload" validate:"required"`
	MaxAttempts    int             `json:"max_attempts" validate:"omitempty,min=1,max=20"`
	IdempotencyKey string          `json:"idempotency_key" validate:"omitempty,max=255"`
}

// DispatchRequest represents request body for triggering a dispatch run.
type DispatchRequest struct {
	WorkType string `json:"work_type" validate:"required,max=100"`
	Limit    int    `json:"limit" validate:"omitempty,min=1,max=500"`
}

// EnqueueItem handles POST /queue/items.
func (h *Handler) EnqueueItem(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	item, deduped, err := h.service.Enqueue(r.Context(), EnqueueInput{
		WorkType:       req.WorkType,
		Payload:        req.Payload,
		MaxAttempts:    req.MaxAttempts,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	// A deduplicated enqueue returns the existing item, not a new one.
	status := http.StatusCreated
	if deduped {
		status = http.StatusOK
	}
	httputil.Success(w, status, item)
}

// GetItem handles GET /queue/items/{id}.
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	item, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, item)
}

// ListItems handles GET /queue/items.
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		WorkType: r.URL.Query().Get("work_type"),
		Status:   Status(r.URL.Query().Get("status")),
		Limit:    DefaultListLimit,
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			httputil.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if limit > MaxListLimit {
			limit = MaxListLimit
		}
		filter.Limit = limit
	}

	items, err := h.service.ListItems(r.Context(), filter)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, items)
}

// RequeueItem handles POST /queue/items/{id}/requeue.
func (h *Handler) RequeueItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	item, err := h.service.Requeue(r.Context(), id)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, item)
}

// Dispatch handles POST /queue/dispatch. The trigger is idempotent: running
// against an empty queue returns a zero summary, not an error.
func (h *Handler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req DispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	summary, err := h.service.Dispatch(r.Context(), req.WorkType, req.Limit)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, summary)
}

// GetStats handles GET /queue/stats.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetStats(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, stats)
}
