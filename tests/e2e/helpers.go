// Package e2e provides end-to-end testing utilities for deployman.
package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/offerlab/deployman/internal/shell/events"
	"github.com/offerlab/deployman/internal/shell/messaging"
)

// =============================================================================
// Fake Job Engine
// =============================================================================

// FakeJobEngine is an in-process stand-in for the job engine. It speaks the
// JSON wire protocol the HTTP client consumes: the queue listing, queue items
// by id, build metadata, and the trigger endpoints. Tests drive its state
// through the control methods; the service under test only ever sees the
// HTTP surface.
type FakeJobEngine struct {
	mu       sync.Mutex
	server   *httptest.Server
	jobs     map[string]*fakeJob
	items    map[int64]*fakeQueueItem
	waiting  []*fakeQueueItem
	nextItem int64
	triggers map[string]int
	down     bool
	username string
	apiToken string
}

type fakeJob struct {
	builds    map[int]*fakeBuild
	nextBuild int
}

type fakeBuild struct {
	Number   int
	Building bool
	Result   string
}

type fakeQueueItem struct {
	ID      int64
	JobName string
	Build   int // 0 while the trigger has not been assigned a build
}

// NewFakeJobEngine starts a fake engine that requires the given basic-auth
// credentials on every request.
func NewFakeJobEngine(username, apiToken string) *FakeJobEngine {
	e := &FakeJobEngine{
		jobs:     make(map[string]*fakeJob),
		items:    make(map[int64]*fakeQueueItem),
		triggers: make(map[string]int),
		username: username,
		apiToken: apiToken,
	}
	e.server = httptest.NewServer(http.HandlerFunc(e.handle))
	return e
}

// URL returns the engine's base URL.
func (e *FakeJobEngine) URL() string {
	return e.server.URL
}

// Close shuts the engine down.
func (e *FakeJobEngine) Close() {
	e.server.Close()
}

// SetDown makes every request fail with 503 until turned back off.
func (e *FakeJobEngine) SetDown(down bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.down = down
}

// TriggerCount returns how many trigger requests the engine has received for
// the given job.
func (e *FakeJobEngine) TriggerCount(job string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.triggers[job]
}

// FinishBuild marks a build as completed with the given result.
func (e *FakeJobEngine) FinishBuild(t *testing.T, job string, number int, result string) {
	t.Helper()

	e.mu.Lock()
	defer e.mu.Unlock()

	j := e.jobs[job]
	if j == nil || j.builds[number] == nil {
		t.Fatalf("No build %d for job %q", number, job)
	}
	j.builds[number].Building = false
	j.builds[number].Result = result
}

// ResetJob clears a job's build history, the way an operator cleaning up the
// job would. Build numbering keeps counting from where it was.
func (e *FakeJobEngine) ResetJob(job string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if j := e.jobs[job]; j != nil {
		j.builds = make(map[int]*fakeBuild)
	}
}

// HoldInQueue places a waiting trigger for the job in the engine queue. It
// stays there, never assigned to a build, until the engine is torn down.
func (e *FakeJobEngine) HoldInQueue(job string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextItem++
	item := &fakeQueueItem{ID: e.nextItem, JobName: job}
	e.items[item.ID] = item
	e.waiting = append(e.waiting, item)
}

// handle routes one request against the engine's JSON API.
func (e *FakeJobEngine) handle(w http.ResponseWriter, r *http.Request) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.down {
		http.Error(w, "engine is down", http.StatusServiceUnavailable)
		return
	}

	if user, pass, ok := r.BasicAuth(); !ok || user != e.username || pass != e.apiToken {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	path := strings.Trim(r.URL.Path, "/")
	parts := strings.Split(path, "/")

	switch {
	case r.Method == http.MethodGet && path == "queue/api/json":
		e.writeJSON(w, map[string]any{"items": e.queuePayload()})

	case r.Method == http.MethodGet && len(parts) == 5 && parts[0] == "queue" && parts[1] == "item":
		id, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil || e.items[id] == nil {
			http.NotFound(w, r)
			return
		}
		e.writeJSON(w, itemPayload(e.items[id]))

	case r.Method == http.MethodPost && len(parts) == 3 && parts[0] == "job" &&
		(parts[2] == "build" || parts[2] == "buildWithParameters"):
		e.trigger(w, parts[1])

	case r.Method == http.MethodGet && len(parts) == 5 && parts[0] == "job" && parts[3] == "api":
		e.writeBuild(w, r, parts[1], parts[2])

	default:
		http.NotFound(w, r)
	}
}

// trigger accepts a build request: a new building build is created and the
// queue item pointing at it is reported through the Location header.
func (e *FakeJobEngine) trigger(w http.ResponseWriter, job string) {
	e.triggers[job]++

	j := e.jobs[job]
	if j == nil {
		j = &fakeJob{builds: make(map[int]*fakeBuild)}
		e.jobs[job] = j
	}
	j.nextBuild++
	j.builds[j.nextBuild] = &fakeBuild{Number: j.nextBuild, Building: true}

	e.nextItem++
	item := &fakeQueueItem{ID: e.nextItem, JobName: job, Build: j.nextBuild}
	e.items[item.ID] = item

	w.Header().Set("Location", fmt.Sprintf("%s/queue/item/%d/", e.server.URL, item.ID))
	w.WriteHeader(http.StatusCreated)
}

func (e *FakeJobEngine) writeBuild(w http.ResponseWriter, r *http.Request, job, ref string) {
	j := e.jobs[job]
	if j == nil {
		http.NotFound(w, r)
		return
	}

	var build *fakeBuild
	if ref == "lastBuild" {
		for _, b := range j.builds {
			if build == nil || b.Number > build.Number {
				build = b
			}
		}
	} else if n, err := strconv.Atoi(ref); err == nil {
		build = j.builds[n]
	}
	if build == nil {
		http.NotFound(w, r)
		return
	}

	e.writeJSON(w, map[string]any{
		"number":   build.Number,
		"building": build.Building,
		"result":   build.Result,
	})
}

// queuePayload lists the items still waiting in the queue. Triggers that were
// assigned a build have left it; only held items remain.
func (e *FakeJobEngine) queuePayload() []map[string]any {
	items := make([]map[string]any, 0, len(e.waiting))
	for _, item := range e.waiting {
		items = append(items, itemPayload(item))
	}
	return items
}

func itemPayload(item *fakeQueueItem) map[string]any {
	payload := map[string]any{
		"id":   item.ID,
		"task": map[string]any{"name": item.JobName},
	}
	if item.Build > 0 {
		payload["executable"] = map[string]any{"number": item.Build}
	}
	return payload
}

func (e *FakeJobEngine) writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

// =============================================================================
// Event Sink
// =============================================================================

// EventSink is an in-process webhook subscriber that records every event
// delivered to it.
type EventSink struct {
	mu       sync.Mutex
	server   *httptest.Server
	apiKey   string
	received []events.Event
}

// NewEventSink starts a sink that requires the given bearer token.
func NewEventSink(apiKey string) *EventSink {
	s := &EventSink{apiKey: apiKey}
	s.server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// URL returns the sink's webhook URL.
func (s *EventSink) URL() string {
	return s.server.URL
}

// Close shuts the sink down.
func (s *EventSink) Close() {
	s.server.Close()
}

func (s *EventSink) handle(w http.ResponseWriter, r *http.Request) {
	if s.apiKey != "" && r.Header.Get("Authorization") != "Bearer "+s.apiKey {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	var event events.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.received = append(s.received, event)
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

// StartedCount returns how many DeploymentStarted events were delivered for
// the given job name.
func (s *EventSink) StartedCount(job string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, ev := range s.received {
		if ev.Type != events.TypeDeploymentStarted {
			continue
		}
		data, ok := ev.Data.(map[string]any)
		if ok && data["name"] == job {
			count++
		}
	}
	return count
}

// =============================================================================
// Operation Recorder
// =============================================================================

// operationRecorder implements the API's operation sender and records
// everything enqueued through it.
type operationRecorder struct {
	mu  sync.Mutex
	ops []messaging.InvokedOperation
}

func (r *operationRecorder) Send(ctx context.Context, op messaging.InvokedOperation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
	return nil
}

// Operations returns a copy of everything sent so far.
func (r *operationRecorder) Operations() []messaging.InvokedOperation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]messaging.InvokedOperation(nil), r.ops...)
}
