package api

// =============================================================================
// Request Types
// =============================================================================

// DeploymentRequest is the request body for creating, replacing, or starting
// the deployment: the definition of what to submit to the job engine.
type DeploymentRequest struct {
	DeploymentType string         `json:"deployment_type"`
	Parameters     map[string]any `json:"parameters,omitempty"`
}

// InvokeOperationRequest is the request body for enqueueing an operation.
type InvokeOperationRequest struct {
	Name           string         `json:"name"`
	DeploymentName string         `json:"deployment_name,omitempty"`
	Template       map[string]any `json:"template,omitempty"`
	Parameters     map[string]any `json:"parameters,omitempty"`
}

// =============================================================================
// Response Types
// =============================================================================

// DefinitionResponse describes the definition held by the deployment record.
type DefinitionResponse struct {
	DeploymentType string         `json:"deployment_type"`
	Parameters     map[string]any `json:"parameters"`
}

// DeploymentResponse is the response for deployment record operations.
type DeploymentResponse struct {
	ID         int                `json:"id"`
	Status     string             `json:"status"`
	Definition DefinitionResponse `json:"definition"`
}

// StartDeploymentResponse is the response for a submission attempt. Errors
// carries the messages collected by the pipeline; an empty array means the
// attempt went through cleanly.
type StartDeploymentResponse struct {
	Deployment DeploymentResponse `json:"deployment"`
	Errors     []string           `json:"errors"`
}

// InvokeOperationResponse acknowledges an enqueued operation.
type InvokeOperationResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// EventTypesResponse lists the event types this service publishes.
type EventTypesResponse struct {
	EventTypes []string `json:"event_types"`
}

// ErrorResponse is the error response format.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the readiness check response.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
