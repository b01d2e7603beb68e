package store

import (
	"context"

	"github.com/offerlab/deployman/internal/core/deployment"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for the single deployment record
// this service manages. The record is read once at the start and written once
// at the end of each pipeline invocation; nothing guards the read-modify-write
// cycle, so last-writer-wins applies under concurrent invocations.
type Store interface {
	// GetDeployment reads the deployment record. Returns a StoreError
	// wrapping ErrNotFound when no record has been written yet.
	GetDeployment(ctx context.Context) (*deployment.Deployment, error)

	// SaveDeployment writes the deployment record, creating it if absent.
	SaveDeployment(ctx context.Context, d *deployment.Deployment) error

	// Lifecycle
	Close() error
}
