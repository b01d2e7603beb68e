// Package api provides HTTP handlers for the deployment service API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/offerlab/deployman/internal/core/deployment"
	"github.com/offerlab/deployman/internal/shell/api/openapi"
	"github.com/offerlab/deployman/internal/shell/engine"
	"github.com/offerlab/deployman/internal/shell/events"
	"github.com/offerlab/deployman/internal/shell/jenkins"
	"github.com/offerlab/deployman/internal/shell/messaging"
	"github.com/offerlab/deployman/internal/shell/store"
)

// =============================================================================
// Handler
// =============================================================================

// OperationSender enqueues invoked operations for asynchronous execution.
type OperationSender interface {
	Send(ctx context.Context, op messaging.InvokedOperation) error
}

// Handler provides HTTP handlers for the API.
type Handler struct {
	engine  *engine.SubmissionCoordinator
	backend jenkins.Client
	sender  OperationSender
	spec    *openapi.Generator
	logger  *slog.Logger
}

// NewHandler creates a new API handler. sender may be nil when the operations
// queue is not configured; POST /api/v1/operations then responds 503.
func NewHandler(e *engine.SubmissionCoordinator, backend jenkins.Client, sender OperationSender, l *slog.Logger) *Handler {
	if l == nil {
		l = slog.Default()
	}
	return &Handler{
		engine:  e,
		backend: backend,
		sender:  sender,
		spec:    specGenerator(),
		logger:  l.With("component", "api"),
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.jsonContentType)
	r.Use(h.requestIDHeader)

	// Health endpoints
	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)
	r.Get("/openapi.json", h.spec.Handler())

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/deployment", func(r chi.Router) {
			r.Get("/", h.handleGetDeployment)
			r.Put("/", h.handlePutDeployment)
			r.Post("/start", h.handleStartDeployment)
		})

		r.Post("/operations", h.handleInvokeOperation)
		r.Get("/events/types", h.handleEventTypes)
	})

	return r
}

// =============================================================================
// Middleware
// =============================================================================

// jsonContentType sets Content-Type header to application/json.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	// Check database (implicit - if we got here, store was created)
	checks["database"] = "ok"

	// Check the job engine
	if _, err := h.backend.ListQueue(r.Context()); err != nil {
		checks["backend"] = "failed"
		h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{
			Status: "not_ready",
			Checks: checks,
		})
		return
	}
	checks["backend"] = "ok"

	h.writeJSON(w, http.StatusOK, ReadyResponse{
		Status: "ready",
		Checks: checks,
	})
}

// =============================================================================
// Deployment Handlers
// =============================================================================

func (h *Handler) handleGetDeployment(w http.ResponseWriter, r *http.Request) {
	d, err := h.engine.CurrentDeployment(r.Context())
	if err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "no deployment configured", "deployment_not_found")
			return
		}
		h.logger.Error("failed to read deployment", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to read deployment", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusOK, h.deploymentToResponse(d))
}

func (h *Handler) handlePutDeployment(w http.ResponseWriter, r *http.Request) {
	var req DeploymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}

	def := deployment.Definition{
		DeploymentType: req.DeploymentType,
		Parameters:     req.Parameters,
	}
	if err := def.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
		return
	}

	d, err := h.engine.PutDeployment(r.Context(), def)
	if err != nil {
		h.logger.Error("failed to store deployment", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to store deployment", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusOK, h.deploymentToResponse(d))
}

func (h *Handler) handleStartDeployment(w http.ResponseWriter, r *http.Request) {
	var req DeploymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}

	def := deployment.Definition{
		DeploymentType: req.DeploymentType,
		Parameters:     req.Parameters,
	}
	if err := def.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
		return
	}

	result, err := h.engine.StartDeployment(r.Context(), engine.StartDeploymentRequest{Definition: def})
	if err != nil {
		h.logger.Error("failed to start deployment", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to start deployment", "internal_error")
		return
	}

	resp := StartDeploymentResponse{
		Deployment: h.deploymentToResponse(result.Deployment),
		Errors:     result.Errors,
	}
	if resp.Errors == nil {
		resp.Errors = []string{}
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// Operation Handlers
// =============================================================================

func (h *Handler) handleInvokeOperation(w http.ResponseWriter, r *http.Request) {
	if h.sender == nil {
		h.writeError(w, http.StatusServiceUnavailable, "operations queue is not configured", "operations_disabled")
		return
	}

	var req InvokeOperationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}

	if !messaging.KnownOperation(req.Name) {
		h.writeError(w, http.StatusBadRequest, "unknown operation: "+req.Name, "validation_error")
		return
	}

	op := messaging.InvokedOperation{
		ID:             uuid.NewString(),
		Name:           req.Name,
		DeploymentName: req.DeploymentName,
		Template:       req.Template,
		Parameters:     req.Parameters,
	}

	if err := h.sender.Send(r.Context(), op); err != nil {
		h.logger.Error("failed to enqueue operation", "operation", op.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to enqueue operation", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusAccepted, InvokeOperationResponse{
		ID:     op.ID,
		Name:   op.Name,
		Status: "queued",
	})
}

func (h *Handler) handleEventTypes(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, EventTypesResponse{EventTypes: events.Types()})
}

// =============================================================================
// Helpers
// =============================================================================

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func (h *Handler) deploymentToResponse(d *deployment.Deployment) DeploymentResponse {
	resp := DeploymentResponse{
		ID:     d.ID,
		Status: string(d.Status),
		Definition: DefinitionResponse{
			DeploymentType: d.Definition.DeploymentType,
			Parameters:     d.Definition.Parameters,
		},
	}
	if resp.Definition.Parameters == nil {
		resp.Definition.Parameters = make(map[string]any)
	}
	return resp
}

// isNotFound checks if an error is a not found error.
func isNotFound(err error) bool {
	var storeErr *store.StoreError
	if errors.As(err, &storeErr) {
		return errors.Is(storeErr.Unwrap(), store.ErrNotFound)
	}
	return false
}
