package jobs

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
	{Error: ErrJobNotFound, Status: http.StatusNotFound, Message: "job not found"},
	{Error: ErrJobAlreadyTerminal, Status: http.StatusConflict, Message: "JOB_ALREADY_TERMINAL"},
	{Error: ErrUnknownJobType, Status: http.StatusBadRequest, Message: "no generator registered for job type"},
}

// Handler handles HTTP requests for the jobs module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new jobs handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers job routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", h.CreateJob)
		r.Get("/", h.ListJobs)
		r.Get("/{id}", h.GetJobStatus)
		r.Post("/{id}/cancel", h.CancelJob)
		r.Post("/dispatch", h.Dispatch)
	})
}

// CreateJobRequest represents request body for creating a job.
type CreateJobRequest struct {
	JobType     string          `json:"job_type" validate:"required,max=100"`
	Spec        json.RawMessage `json:"spec" validate:"required"`
	MaxAttempts int             `json:"max_attempts" validate:"omitempty,min=1,max=20"`
}

// DispatchJobsRequest represents request body for triggering a runner invocation.
type DispatchJobsRequest struct {
	JobType string `json:"job_type" validate:"required,max=100"`
	Limit   int    `json:"limit" validate:"omitempty,min=1,max=100"`
}

// CreateJob handles POST /jobs.
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	job, err := h.service.Create(r.Context(), CreateInput{
		JobType:     req.JobType,
		Spec:        req.Spec,
		MaxAttempts: req.MaxAttempts,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, job)
}

// GetJobStatus handles GET /jobs/{id}. This is the projector read endpoint
// clients poll until the job is terminal.
func (h *Handler) GetJobStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	view, err := h.service.JobStatus(r.Context(), id)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, view)
}

// ListJobs handles GET /jobs.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			httputil.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if parsed > MaxListLimit {
			parsed = MaxListLimit
		}
		limit = parsed
	}

	jobs, err := h.service.List(r.Context(), r.URL.Query().Get("job_type"), limit)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, jobs)
}

// CancelJob handles POST /jobs/{id}/cancel.
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	status, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]string{
		"job_id": id,
		"status": string(status),
	})
}

// Dispatch handles POST /jobs/dispatch.
func (h *Handler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req DispatchJobsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	summary, err := h.service.Dispatch(r.Context(), req.JobType, req.Limit)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, summary)
}
