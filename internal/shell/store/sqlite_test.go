package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offerlab/deployman/internal/core/deployment"
)

// =============================================================================
// Test Helpers
// =============================================================================

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// =============================================================================
// Deployment Record Tests
// =============================================================================

func TestGetDeployment_NoRecord(t *testing.T) {
	store := setupTestStore(t)

	d, err := store.GetDeployment(context.Background())
	require.Error(t, err)
	assert.Nil(t, d)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveDeployment_RoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	d := deployment.New(deployment.Definition{
		DeploymentType: "deploy-app",
		Parameters: map[string]any{
			"location": "eastus",
			"replicas": float64(3),
		},
	})
	require.NoError(t, d.MarkSubmitted(17))

	err := store.SaveDeployment(ctx, d)
	require.NoError(t, err)

	retrieved, err := store.GetDeployment(ctx)
	require.NoError(t, err)
	assert.Equal(t, 17, retrieved.ID)
	assert.Equal(t, deployment.StatusRunning, retrieved.Status)
	assert.Equal(t, "deploy-app", retrieved.Definition.DeploymentType)
	assert.Equal(t, d.Definition.Parameters, retrieved.Definition.Parameters)
}

func TestSaveDeployment_UpsertsSingleRecord(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	first := deployment.New(deployment.Definition{DeploymentType: "deploy-app"})
	require.NoError(t, store.SaveDeployment(ctx, first))

	second := deployment.New(deployment.Definition{DeploymentType: "deploy-app"})
	require.NoError(t, second.MarkSubmitted(42))
	require.NoError(t, store.SaveDeployment(ctx, second))

	retrieved, err := store.GetDeployment(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42, retrieved.ID)
	assert.Equal(t, deployment.StatusRunning, retrieved.Status)

	var count int
	require.NoError(t, store.db.Get(&count, "SELECT COUNT(*) FROM deployment_record"))
	assert.Equal(t, 1, count)
}

func TestSaveDeployment_RejectedRecord(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	d := deployment.New(deployment.Definition{DeploymentType: "deploy-app"})
	d.MarkRejected()
	require.NoError(t, store.SaveDeployment(ctx, d))

	retrieved, err := store.GetDeployment(ctx)
	require.NoError(t, err)
	assert.Equal(t, deployment.IDRejected, retrieved.ID)
	assert.Equal(t, deployment.StatusUndefined, retrieved.Status)
}

func TestSaveDeployment_NilParameters(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	d := deployment.New(deployment.Definition{DeploymentType: "deploy-app"})
	require.NoError(t, store.SaveDeployment(ctx, d))

	retrieved, err := store.GetDeployment(ctx)
	require.NoError(t, err)
	assert.Nil(t, retrieved.Definition.Parameters)
}

func TestSaveDeployment_TerminalStatus(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	d := deployment.New(deployment.Definition{DeploymentType: "deploy-app"})
	require.NoError(t, d.MarkSubmitted(9))
	d.Status = deployment.StatusFailure
	require.NoError(t, store.SaveDeployment(ctx, d))

	retrieved, err := store.GetDeployment(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, retrieved.ID)
	assert.Equal(t, deployment.StatusFailure, retrieved.Status)
	assert.True(t, retrieved.Status.Terminal())
}
