package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/offerlab/deployman/internal/core/deployment"
	"github.com/offerlab/deployman/internal/shell/jenkins"
	"github.com/offerlab/deployman/internal/shell/store"
)

// =============================================================================
// Test Helpers
// =============================================================================

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingStore wraps a real store and records write traffic so tests can
// assert on persistence behavior.
type countingStore struct {
	store.Store
	saves   int
	getErr  error
	saveErr error
}

func (s *countingStore) GetDeployment(ctx context.Context) (*deployment.Deployment, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.Store.GetDeployment(ctx)
}

func (s *countingStore) SaveDeployment(ctx context.Context, d *deployment.Deployment) error {
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.Store.SaveDeployment(ctx, d)
}

func setupTestStore(t *testing.T) *countingStore {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		s.Close()
	})
	return &countingStore{Store: s}
}

func testDefinition() deployment.Definition {
	return deployment.Definition{
		DeploymentType: "deploy-app",
		Parameters:     map[string]any{"location": "eastus"},
	}
}

// =============================================================================
// Fake Backend
// =============================================================================

// fakeBackend is an in-memory jenkins.Client. Builds are keyed by the ref
// they are requested under ("lastBuild" or a number).
type fakeBackend struct {
	queue        []jenkins.QueueItem
	queueErr     error
	builds       map[string]*jenkins.Build
	buildErr     error
	triggerID    int64
	triggerErr   error
	queueItems   map[int64]*jenkins.QueueItem
	queueItemErr error

	listQueueCalls    int
	getBuildRefs      []string
	triggerCalls      int
	triggerParams     map[string]any
	getQueueItemCalls int
}

var _ jenkins.Client = (*fakeBackend)(nil)

func (f *fakeBackend) ListQueue(ctx context.Context) ([]jenkins.QueueItem, error) {
	f.listQueueCalls++
	if f.queueErr != nil {
		return nil, f.queueErr
	}
	return f.queue, nil
}

func (f *fakeBackend) GetBuild(ctx context.Context, job, ref string) (*jenkins.Build, error) {
	f.getBuildRefs = append(f.getBuildRefs, ref)
	if f.buildErr != nil {
		return nil, f.buildErr
	}
	build, ok := f.builds[ref]
	if !ok {
		return nil, fmt.Errorf("job %q ref %q: %w", job, ref, jenkins.ErrBuildNotFound)
	}
	return build, nil
}

func (f *fakeBackend) TriggerBuild(ctx context.Context, job string, params map[string]any) (int64, error) {
	f.triggerCalls++
	f.triggerParams = params
	if f.triggerErr != nil {
		return 0, f.triggerErr
	}
	return f.triggerID, nil
}

func (f *fakeBackend) GetQueueItem(ctx context.Context, id int64) (*jenkins.QueueItem, error) {
	f.getQueueItemCalls++
	if f.queueItemErr != nil {
		return nil, f.queueItemErr
	}
	item, ok := f.queueItems[id]
	if !ok {
		return nil, fmt.Errorf("queue item %d not found", id)
	}
	return item, nil
}

// =============================================================================
// Recording Publisher
// =============================================================================

type publishedEvent struct {
	eventType string
	payload   any
}

type recordingPublisher struct {
	published []publishedEvent
	err       error
}

func (p *recordingPublisher) Publish(ctx context.Context, eventType string, payload any) error {
	p.published = append(p.published, publishedEvent{eventType: eventType, payload: payload})
	return p.err
}
