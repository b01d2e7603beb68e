// Package deployer is the boundary to the resource-template engine that
// queued operations run against. The rollout is a single opaque remote call;
// nothing in the pipeline depends on its internals.
package deployer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
)

// Rollout result states.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// ErrMissingDeploymentName is returned when a rollout has no name.
var ErrMissingDeploymentName = errors.New("deployment name is required")

// TemplateDeployment describes one resource-template rollout.
type TemplateDeployment struct {
	// DeploymentName identifies the rollout on the target engine.
	DeploymentName string

	// Template is the resource template to apply.
	Template map[string]any

	// Parameters are the template's input values.
	Parameters map[string]any
}

// Result reports the outcome of a rollout.
type Result struct {
	// ID is the engine-assigned identifier of the rollout.
	ID string

	// Status is StatusSucceeded or StatusFailed.
	Status string
}

// Deployer executes resource-template rollouts.
type Deployer interface {
	Deploy(ctx context.Context, d TemplateDeployment) (*Result, error)
}

// =============================================================================
// Log Deployer (for development/testing)
// =============================================================================

// LogDeployer records what would be rolled out and reports success. It stands
// in for the real engine in development mode.
type LogDeployer struct {
	logger *slog.Logger
}

var _ Deployer = (*LogDeployer)(nil)

// NewLogDeployer creates a log-only deployer.
func NewLogDeployer(logger *slog.Logger) *LogDeployer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDeployer{
		logger: logger.With("component", "deployer"),
	}
}

// Deploy logs the rollout and succeeds.
func (d *LogDeployer) Deploy(ctx context.Context, td TemplateDeployment) (*Result, error) {
	if td.DeploymentName == "" {
		return nil, ErrMissingDeploymentName
	}

	result := &Result{
		ID:     uuid.NewString(),
		Status: StatusSucceeded,
	}

	d.logger.Info("template rollout requested",
		"name", td.DeploymentName,
		"rollout_id", result.ID,
		"template_resources", len(td.Template),
		"parameters", len(td.Parameters))

	return result, nil
}
