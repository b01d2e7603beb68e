// Package deployment contains the pure domain model for the managed
// deployment record. This is part of the Functional Core - no I/O happens here.
package deployment

import (
	"errors"
	"strings"
)

// =============================================================================
// Deployment Errors
// =============================================================================

var (
	// ErrMissingDeploymentType is returned when a definition has no job name.
	ErrMissingDeploymentType = errors.New("deployment type is required")

	// ErrInvalidBuildNumber is returned when a submission reports a
	// non-positive build number.
	ErrInvalidBuildNumber = errors.New("build number must be positive")
)

// =============================================================================
// Deployment Status
// =============================================================================

// Status is the lifecycle state of the deployment record. Terminal values are
// the lowercase result codes reported by the job engine once a build finishes.
type Status string

const (
	// StatusUndefined means no submission has happened, or the engine has no
	// record of the build the deployment points at.
	StatusUndefined Status = "undefined"

	// StatusRunning means a build was submitted and accepted by the engine.
	StatusRunning Status = "running"

	// Known terminal result codes. The engine may report others; anything the
	// backend returns is carried through lowercased.
	StatusSuccess  Status = "success"
	StatusFailure  Status = "failure"
	StatusAborted  Status = "aborted"
	StatusUnstable Status = "unstable"
)

// StatusFromResult maps a backend build result to a deployment status.
// An empty result (build still in flight, or none reported) maps to Undefined.
func StatusFromResult(result string) Status {
	if result == "" {
		return StatusUndefined
	}
	return Status(strings.ToLower(result))
}

// Terminal reports whether the status is a backend-reported final result.
func (s Status) Terminal() bool {
	return s != StatusUndefined && s != StatusRunning && s != ""
}

// =============================================================================
// Deployment Definition
// =============================================================================

// Definition describes what to submit: the job template name plus the
// submission parameters. Created once per request, never mutated.
type Definition struct {
	// DeploymentType is the name of the job template on the backend.
	DeploymentType string `json:"deployment_type"`

	// Parameters are passed through to the backend on submission.
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Validate checks that the definition can be submitted.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.DeploymentType) == "" {
		return ErrMissingDeploymentType
	}
	return nil
}

// =============================================================================
// Deployment
// =============================================================================

// ID sentinels. A positive ID is a backend-assigned build number.
const (
	// IDUnset means the deployment was never submitted.
	IDUnset = 0

	// IDRejected means the most recent start attempt failed admission.
	IDRejected = -1
)

// Deployment is the single mutable record this service manages: the identity
// of the submitted build plus its last known status.
type Deployment struct {
	ID         int        `json:"id"`
	Status     Status     `json:"status"`
	Definition Definition `json:"definition"`
}

// New creates a fresh, never-submitted deployment for the given definition.
func New(def Definition) *Deployment {
	return &Deployment{
		ID:         IDUnset,
		Status:     StatusUndefined,
		Definition: def,
	}
}

// MarkSubmitted records a successful submission. The build number and the
// Running status are assigned together; a Deployment is never Running without
// a positive ID.
func (d *Deployment) MarkSubmitted(buildNumber int) error {
	if buildNumber <= 0 {
		return ErrInvalidBuildNumber
	}
	d.ID = buildNumber
	d.Status = StatusRunning
	return nil
}

// MarkRejected records a failed admission check. Only the id carries the
// rejection; the status keeps its last known value.
func (d *Deployment) MarkRejected() {
	d.ID = IDRejected
}

// Submitted reports whether the record points at a backend build.
func (d *Deployment) Submitted() bool {
	return d.ID > 0
}
