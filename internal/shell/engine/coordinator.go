// Package engine orchestrates deployment submissions against the external
// job engine. This is part of the Imperative Shell - it performs the I/O and
// hands every decision to the pure core.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/offerlab/deployman/internal/core/deployment"
	"github.com/offerlab/deployman/internal/shell/events"
	"github.com/offerlab/deployman/internal/shell/jenkins"
	"github.com/offerlab/deployman/internal/shell/store"
)

// RejectionMessage is the diagnostic appended to the result when the
// admission check turns a start-request down.
const RejectionMessage = "Deployment is not startable"

// =============================================================================
// Request/Result
// =============================================================================

// StartDeploymentRequest contains the input for one submission attempt. The
// caller validates the definition before the pipeline runs.
type StartDeploymentRequest struct {
	Definition deployment.Definition
}

// StartDeploymentResult is returned from every pipeline run. Errors carries
// human-readable messages for anything that went wrong short of a storage
// failure; the deployment reflects the best-known state either way.
type StartDeploymentResult struct {
	Deployment *deployment.Deployment `json:"deployment"`
	Errors     []string               `json:"errors"`
}

// =============================================================================
// Submission Coordinator
// =============================================================================

// SubmissionCoordinator runs one start-request end to end: refresh stored
// state, check admission, submit to the backend, correlate the queue item
// with a build, publish the started event, persist the record.
type SubmissionCoordinator struct {
	store     store.Store
	backend   jenkins.Client
	checker   *AdmissionChecker
	refresher *StatusRefresher
	publisher events.Publisher
	logger    *slog.Logger
}

// NewSubmissionCoordinator creates a coordinator over the given collaborators.
func NewSubmissionCoordinator(s store.Store, backend jenkins.Client, publisher events.Publisher, logger *slog.Logger) *SubmissionCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubmissionCoordinator{
		store:     s,
		backend:   backend,
		checker:   NewAdmissionChecker(backend, logger),
		refresher: NewStatusRefresher(backend, logger),
		publisher: publisher,
		logger:    logger.With("component", "engine"),
	}
}

// =============================================================================
// Pipeline
// =============================================================================

// invocation is the state one pipeline run threads through its stages.
type invocation struct {
	deployment *deployment.Deployment
	definition deployment.Definition
	errors     []string
}

// appendError records a caught failure as a plain message on the result.
func (inv *invocation) appendError(err error) {
	inv.errors = append(inv.errors, err.Error())
}

// stage is one step of the submission pipeline. Stages run in declaration
// order; returning false stops the chain. The record is persisted after the
// chain regardless of where it stopped.
type stage struct {
	name string
	run  func(ctx context.Context, inv *invocation) bool
}

func (c *SubmissionCoordinator) stages() []stage {
	return []stage{
		{name: "refresh", run: c.refreshStage},
		{name: "admit", run: c.admitStage},
		{name: "submit", run: c.submitStage},
		{name: "publish", run: c.publishStage},
	}
}

// StartDeployment processes a single start-request. Only storage failures
// propagate as errors; everything else is folded into the result.
func (c *SubmissionCoordinator) StartDeployment(ctx context.Context, req StartDeploymentRequest) (*StartDeploymentResult, error) {
	d, err := c.loadOrCreate(ctx, req.Definition)
	if err != nil {
		return nil, err
	}

	inv := &invocation{deployment: d, definition: req.Definition}

	for _, st := range c.stages() {
		if !st.run(ctx, inv) {
			c.logger.Debug("pipeline stopped", "stage", st.name)
			break
		}
	}

	// The record is written exactly once, whichever branch ended the chain.
	if err := c.store.SaveDeployment(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to persist deployment record: %w", err)
	}

	return &StartDeploymentResult{Deployment: d, Errors: inv.errors}, nil
}

// refreshStage reconciles the loaded record with the backend, then swaps in
// the requested definition. The stored definition only matters for
// correlating the old build; from here on the attempt runs against the
// requested one.
func (c *SubmissionCoordinator) refreshStage(ctx context.Context, inv *invocation) bool {
	c.refresher.Refresh(ctx, inv.deployment)
	inv.deployment.Definition = inv.definition
	return true
}

// admitStage ends the run when the job may not start. The record is marked
// rejected and no further backend contact happens.
func (c *SubmissionCoordinator) admitStage(ctx context.Context, inv *invocation) bool {
	decision := c.checker.IsStartable(ctx, inv.deployment)
	if decision.Startable {
		return true
	}

	inv.deployment.MarkRejected()
	inv.errors = append(inv.errors, RejectionMessage)
	c.logger.Warn("deployment rejected",
		"job", inv.deployment.Definition.DeploymentType,
		"reason", decision.Reason)
	return false
}

// submitStage triggers a build and correlates the resulting queue item with
// an executable build number. A trigger that produces no queue item, or a
// queue item that has not resolved after a single fetch, is a failed
// submission: the record keeps its pre-submission id and status and no error
// message is added. Transport failures are caught and recorded instead.
func (c *SubmissionCoordinator) submitStage(ctx context.Context, inv *invocation) bool {
	d := inv.deployment
	jobType := d.Definition.DeploymentType

	queueItemID, err := c.backend.TriggerBuild(ctx, jobType, d.Definition.Parameters)
	if err != nil {
		inv.appendError(err)
		c.logger.Error("trigger failed", "job", jobType, "error", err)
		return false
	}
	if queueItemID == 0 {
		c.logger.Warn("trigger produced no queue item", "job", jobType)
		return false
	}

	item, err := c.backend.GetQueueItem(ctx, queueItemID)
	if err != nil {
		inv.appendError(err)
		c.logger.Error("queue item lookup failed", "job", jobType, "queue_item", queueItemID, "error", err)
		return false
	}
	if item.BuildNumber == 0 {
		c.logger.Warn("queue item has not resolved to a build",
			"job", jobType,
			"queue_item", queueItemID)
		return false
	}

	if err := d.MarkSubmitted(item.BuildNumber); err != nil {
		inv.appendError(err)
		c.logger.Error("backend reported an unusable build number",
			"job", jobType,
			"build", item.BuildNumber,
			"error", err)
		return false
	}

	c.logger.Info("deployment submitted",
		"job", jobType,
		"build", d.ID,
		"queue_item", queueItemID)
	return true
}

// publishStage emits the started notification. Delivery failures are
// recorded on the result but never undo the submission.
func (c *SubmissionCoordinator) publishStage(ctx context.Context, inv *invocation) bool {
	d := inv.deployment

	payload := events.DeploymentStartedPayload{
		ID:   d.ID,
		Name: d.Definition.DeploymentType,
	}
	if err := c.publisher.Publish(ctx, events.TypeDeploymentStarted, payload); err != nil {
		inv.appendError(err)
		c.logger.Error("failed to publish start event", "job", payload.Name, "error", err)
	}
	return true
}

// loadOrCreate reads the stored record, constructing a fresh one when none
// has been written yet. Any other storage failure propagates.
func (c *SubmissionCoordinator) loadOrCreate(ctx context.Context, def deployment.Definition) (*deployment.Deployment, error) {
	d, err := c.store.GetDeployment(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.logger.Debug("no prior deployment record", "job", def.DeploymentType)
			return deployment.New(def), nil
		}
		return nil, fmt.Errorf("failed to read deployment record: %w", err)
	}
	return d, nil
}

// =============================================================================
// Record Access
// =============================================================================

// CurrentDeployment returns the stored record without touching the backend.
func (c *SubmissionCoordinator) CurrentDeployment(ctx context.Context) (*deployment.Deployment, error) {
	return c.store.GetDeployment(ctx)
}

// PutDeployment replaces the stored record's definition, creating the record
// if none exists. An existing record keeps its id and status.
func (c *SubmissionCoordinator) PutDeployment(ctx context.Context, def deployment.Definition) (*deployment.Deployment, error) {
	d, err := c.loadOrCreate(ctx, def)
	if err != nil {
		return nil, err
	}

	d.Definition = def
	if err := c.store.SaveDeployment(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}
