package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/offerlab/deployman/internal/core/admission"
	"github.com/offerlab/deployman/internal/core/deployment"
	"github.com/offerlab/deployman/internal/shell/jenkins"
)

// =============================================================================
// Admission Checker
// =============================================================================

// AdmissionChecker gathers queue and build-history state from the job engine
// and runs the pure admission rules over it. Backend failures other than a
// missing build history are treated as not startable; submission never
// happens while the engine's state is uncertain.
//
// The decision is advisory: nothing serializes the check against the
// submission that follows it, so two concurrent requests can both observe a
// startable state and both submit.
type AdmissionChecker struct {
	backend jenkins.Client
	logger  *slog.Logger
}

// NewAdmissionChecker creates an admission checker against the given backend.
func NewAdmissionChecker(backend jenkins.Client, logger *slog.Logger) *AdmissionChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdmissionChecker{
		backend: backend,
		logger:  logger.With("component", "admission"),
	}
}

// IsStartable decides whether a new build of the deployment's job type may
// be submitted right now.
func (c *AdmissionChecker) IsStartable(ctx context.Context, d *deployment.Deployment) admission.Decision {
	jobType := d.Definition.DeploymentType

	queue, err := c.backend.ListQueue(ctx)
	if err != nil {
		c.logger.Error("failed to list backend queue", "job", jobType, "error", err)
		return admission.Decision{Startable: false, Reason: "backend queue state is unavailable"}
	}

	obs := admission.Observation{QueuedJobs: queuedJobNames(queue)}

	// A queued duplicate blocks on its own; skip the build lookup when the
	// queue already decides.
	if decision := admission.Decide(jobType, obs); !decision.Startable {
		c.logger.Warn("admission blocked by queue", "job", jobType, "reason", decision.Reason)
		return decision
	}

	build, err := c.backend.GetBuild(ctx, jobType, jenkins.LastBuildRef)
	switch {
	case errors.Is(err, jenkins.ErrBuildNotFound):
		// Absence of history is not a blocking condition.
		c.logger.Warn("job has no build history", "job", jobType)
	case err != nil:
		c.logger.Error("failed to fetch last build", "job", jobType, "error", err)
		return admission.Decision{Startable: false, Reason: "backend build state is unavailable"}
	default:
		obs.LastBuild = &admission.BuildState{
			Building: build.Building,
			Result:   build.Result,
		}
	}

	decision := admission.Decide(jobType, obs)
	c.logger.Debug("admission decision",
		"job", jobType,
		"startable", decision.Startable,
		"reason", decision.Reason)
	return decision
}

// queuedJobNames projects the queue items down to the job names the
// admission rules compare against.
func queuedJobNames(items []jenkins.QueueItem) []string {
	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.JobName)
	}
	return names
}
