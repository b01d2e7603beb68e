package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/offerlab/deployman/internal/shell/deployer"
	"github.com/offerlab/deployman/internal/shell/events"
	"github.com/offerlab/deployman/internal/shell/store"
)

// =============================================================================
// Operations Dispatcher
// =============================================================================

// Dispatcher executes queued operations against the resource deployer. It is
// the Handler the receiver drives.
type Dispatcher struct {
	store     store.Store
	deployer  deployer.Deployer
	publisher events.Publisher
	logger    *slog.Logger
}

var _ Handler = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher over the given collaborators.
func NewDispatcher(s store.Store, d deployer.Deployer, publisher events.Publisher, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store:     s,
		deployer:  d,
		publisher: publisher,
		logger:    logger.With("component", "dispatcher"),
	}
}

// Handle runs one operation: resolve the deployment record for context, hand
// the rollout to the deployer, publish the completion event. A missing
// record or a deployer failure returns an error so the message is redelivered.
func (d *Dispatcher) Handle(ctx context.Context, op *InvokedOperation) error {
	record, err := d.store.GetDeployment(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("operation %s: no deployment record to run against", op.ID)
		}
		return fmt.Errorf("operation %s: %w", op.ID, err)
	}

	rollout := deployer.TemplateDeployment{
		DeploymentName: op.DeploymentName,
		Template:       op.Template,
		Parameters:     op.Parameters,
	}
	if rollout.DeploymentName == "" {
		rollout.DeploymentName = record.Definition.DeploymentType
	}

	result, err := d.deployer.Deploy(ctx, rollout)
	if err != nil {
		return fmt.Errorf("operation %s: %w", op.ID, err)
	}

	payload := events.DeploymentCompletedPayload{
		ID:     record.ID,
		Name:   record.Definition.DeploymentType,
		Status: result.Status,
	}
	if err := d.publisher.Publish(ctx, events.TypeDeploymentCompleted, payload); err != nil {
		// Completion events are advisory; the rollout itself went through.
		d.logger.Error("failed to publish completion event", "operation", op.ID, "error", err)
	}

	d.logger.Info("operation completed",
		"operation", op.ID,
		"name", op.Name,
		"rollout_id", result.ID,
		"status", result.Status)
	return nil
}
