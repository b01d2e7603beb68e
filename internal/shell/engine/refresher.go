package engine

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/offerlab/deployman/internal/core/deployment"
	"github.com/offerlab/deployman/internal/shell/jenkins"
)

// =============================================================================
// Status Refresher
// =============================================================================

// StatusRefresher reconciles a deployment record's status with what the job
// engine currently reports for the build it points at.
type StatusRefresher struct {
	backend jenkins.Client
	logger  *slog.Logger
}

// NewStatusRefresher creates a status refresher against the given backend.
func NewStatusRefresher(backend jenkins.Client, logger *slog.Logger) *StatusRefresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusRefresher{
		backend: backend,
		logger:  logger.With("component", "refresher"),
	}
}

// Refresh updates the deployment's status in place. A record that was never
// submitted has nothing to refresh. A build the engine no longer knows about
// resets the status to undefined. Query failures are logged and swallowed;
// the status keeps its prior value.
func (r *StatusRefresher) Refresh(ctx context.Context, d *deployment.Deployment) {
	if d.ID == deployment.IDUnset || d.Status == deployment.StatusUndefined {
		d.Status = deployment.StatusUndefined
		return
	}

	jobType := d.Definition.DeploymentType

	build, err := r.backend.GetBuild(ctx, jobType, strconv.Itoa(d.ID))
	switch {
	case errors.Is(err, jenkins.ErrBuildNotFound):
		r.logger.Warn("build no longer exists on the backend", "job", jobType, "build", d.ID)
		d.Status = deployment.StatusUndefined
	case err != nil:
		r.logger.Error("status refresh failed", "job", jobType, "build", d.ID, "error", err)
	case build.Result == "":
		// Still in flight; there is no result to adopt yet.
		r.logger.Debug("build still in progress", "job", jobType, "build", d.ID)
	default:
		d.Status = deployment.StatusFromResult(build.Result)
		r.logger.Debug("status refreshed", "job", jobType, "build", d.ID, "status", d.Status)
	}
}
