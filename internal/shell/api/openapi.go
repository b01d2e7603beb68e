package api

import (
	"net/http"

	"github.com/offerlab/deployman/internal/shell/api/openapi"
)

// specGenerator builds the OpenAPI document for the fixed route surface.
func specGenerator() *openapi.Generator {
	g := openapi.NewGenerator(
		openapi.WithTitle("Deployman API"),
		openapi.WithDescription("Deployment submission and admission control for the job engine"),
	)

	g.RegisterOperation(openapi.OperationInfo{
		Method:      http.MethodGet,
		Path:        "/api/v1/deployment",
		OperationID: "getDeployment",
		Summary:     "Get the managed deployment record",
		Tag:         "Deployment",
		Response:    DeploymentResponse{},
	})
	g.RegisterOperation(openapi.OperationInfo{
		Method:      http.MethodPut,
		Path:        "/api/v1/deployment",
		OperationID: "putDeployment",
		Summary:     "Create or replace the deployment definition",
		Tag:         "Deployment",
		Request:     DeploymentRequest{},
		Response:    DeploymentResponse{},
	})
	g.RegisterOperation(openapi.OperationInfo{
		Method:      http.MethodPost,
		Path:        "/api/v1/deployment/start",
		OperationID: "startDeployment",
		Summary:     "Run the submission pipeline for the deployment",
		Tag:         "Deployment",
		Request:     DeploymentRequest{},
		Response:    StartDeploymentResponse{},
	})
	g.RegisterOperation(openapi.OperationInfo{
		Method:      http.MethodPost,
		Path:        "/api/v1/operations",
		OperationID: "invokeOperation",
		Summary:     "Enqueue an operation on the operations queue",
		Tag:         "Operations",
		Request:     InvokeOperationRequest{},
		Response:    InvokeOperationResponse{},
		Status:      http.StatusAccepted,
	})
	g.RegisterOperation(openapi.OperationInfo{
		Method:      http.MethodGet,
		Path:        "/api/v1/events/types",
		OperationID: "listEventTypes",
		Summary:     "List the event types this service publishes",
		Tag:         "Events",
		Response:    EventTypesResponse{},
	})
	g.RegisterOperation(openapi.OperationInfo{
		Method:      http.MethodGet,
		Path:        "/health",
		OperationID: "health",
		Summary:     "Liveness probe",
		Tag:         "Health",
		Response:    HealthResponse{},
	})
	g.RegisterOperation(openapi.OperationInfo{
		Method:      http.MethodGet,
		Path:        "/ready",
		OperationID: "ready",
		Summary:     "Readiness probe",
		Tag:         "Health",
		Response:    ReadyResponse{},
	})

	return g
}
