// Package e2e provides end-to-end tests for deployman.
//
// These tests run the full HTTP stack against an in-process fake of the job
// engine; no external services are required. Run with:
//
//	go test -v ./tests/e2e/...
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/offerlab/deployman/internal/shell/api"
	"github.com/offerlab/deployman/internal/shell/engine"
	"github.com/offerlab/deployman/internal/shell/events"
	"github.com/offerlab/deployman/internal/shell/jenkins"
	"github.com/offerlab/deployman/internal/shell/store"
)

// =============================================================================
// Test Globals
// =============================================================================

const (
	engineUser  = "ci"
	engineToken = "e2e-api-token"
	sinkAPIKey  = "e2e-subscriber-key"
)

var (
	testStore  store.Store
	fakeEngine *FakeJobEngine
	eventSink  *EventSink
	opQueue    *operationRecorder
	testClient *http.Client
	baseURL    string
	testServer *http.Server
	testTmpDir string
)

// =============================================================================
// TestMain Setup
// =============================================================================

func TestMain(m *testing.M) {
	// Setup
	code := setup()
	if code != 0 {
		os.Exit(code)
	}

	// Run tests
	result := m.Run()

	// Teardown
	teardown()

	os.Exit(result)
}

func setup() int {
	log.Println("E2E Setup: Initializing test environment...")

	// Component logs would drown the test output; the tests assert on
	// responses, not log lines.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// 1. Create temp database
	tmpDir, err := os.MkdirTemp("", "deployman_e2e_")
	if err != nil {
		log.Printf("Failed to create temp dir: %v", err)
		return 1
	}
	testTmpDir = tmpDir
	tmpDB := filepath.Join(tmpDir, "test.db")
	log.Printf("E2E Setup: Using database: %s", tmpDB)

	// 2. Create SQLite store
	s, err := store.NewSQLiteStore(tmpDB)
	if err != nil {
		log.Printf("Failed to create store: %v", err)
		return 1
	}
	testStore = s
	log.Println("E2E Setup: SQLite store initialized")

	// 3. Start the fake job engine
	fakeEngine = NewFakeJobEngine(engineUser, engineToken)
	log.Printf("E2E Setup: Fake job engine listening on %s", fakeEngine.URL())

	// 4. Job engine client pointed at the fake
	backend := jenkins.NewHTTPClient(jenkins.Config{
		BaseURL:  fakeEngine.URL(),
		Username: engineUser,
		APIToken: engineToken,
		Timeout:  5 * time.Second,
	}, logger)

	// 5. Webhook publisher delivering to the in-process sink
	eventSink = NewEventSink(sinkAPIKey)
	publisher := events.NewWebhookPublisher(events.WebhookConfig{
		Subscriptions: []events.Subscription{
			{Name: "e2e-sink", URL: eventSink.URL(), APIKey: sinkAPIKey},
		},
		Timeout: 5 * time.Second,
	}, logger)
	log.Printf("E2E Setup: Event sink listening on %s", eventSink.URL())

	// 6. Coordinator and HTTP handler
	coordinator := engine.NewSubmissionCoordinator(testStore, backend, publisher, logger)
	opQueue = &operationRecorder{}
	handler := api.NewHandler(coordinator, backend, opQueue, logger)
	log.Println("E2E Setup: HTTP handler created")

	// 7. Find an available port
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.Printf("Failed to find available port: %v", err)
		return 1
	}
	port := listener.Addr().(*net.TCPAddr).Port
	baseURL = fmt.Sprintf("http://127.0.0.1:%d", port)
	log.Printf("E2E Setup: Server will listen on port %d", port)

	// 8. Create HTTP server
	testServer = &http.Server{
		Handler: handler.Routes(),
	}

	// 9. Start server in goroutine
	go func() {
		if err := testServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("Server error: %v", err)
		}
	}()
	log.Println("E2E Setup: HTTP server started")

	// 10. Create HTTP client
	testClient = &http.Client{
		Timeout: 30 * time.Second,
	}

	// 11. Wait for server to be ready
	if err := waitForReady(baseURL+"/health", 10*time.Second); err != nil {
		log.Printf("Server failed to become ready: %v", err)
		return 1
	}
	log.Println("E2E Setup: Server is ready")

	log.Println("E2E Setup: Complete!")
	return 0
}

func teardown() {
	log.Println("E2E Teardown: Cleaning up...")

	// 1. Shutdown HTTP server
	if testServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		testServer.Shutdown(ctx)
		log.Println("E2E Teardown: HTTP server stopped")
	}

	// 2. Stop the fake engine and the event sink
	if fakeEngine != nil {
		fakeEngine.Close()
	}
	if eventSink != nil {
		eventSink.Close()
	}
	log.Println("E2E Teardown: Fake backends stopped")

	// 3. Close database
	if testStore != nil {
		testStore.Close()
		log.Println("E2E Teardown: Database closed")
	}

	// 4. Remove temp files
	if testTmpDir != "" {
		os.RemoveAll(testTmpDir)
	}

	log.Println("E2E Teardown: Complete!")
}

// waitForReady polls the health endpoint until it responds.
func waitForReady(url string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("server not ready after %v", timeout)
}

// =============================================================================
// API Client Helpers
// =============================================================================

// doJSONRequest performs an HTTP request with a JSON body.
func doJSONRequest(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := testClient.Do(req)
	if err != nil {
		t.Fatalf("HTTP %s %s failed: %v", method, url, err)
	}
	return resp
}

// decodeResponse decodes a JSON response body into T.
func decodeResponse[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var result T
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return result
}

// PutDeployment replaces the deployment definition via the API.
func PutDeployment(t *testing.T, deploymentType string, parameters map[string]any) *api.DeploymentResponse {
	t.Helper()

	resp := doJSONRequest(t, http.MethodPut, baseURL+"/api/v1/deployment", api.DeploymentRequest{
		DeploymentType: deploymentType,
		Parameters:     parameters,
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("Failed to put deployment: status=%d body=%s", resp.StatusCode, string(body))
	}

	result := decodeResponse[api.DeploymentResponse](t, resp)
	t.Logf("Put deployment: type=%s id=%d status=%s", deploymentType, result.ID, result.Status)
	return &result
}

// GetDeployment fetches the deployment record via the API.
func GetDeployment(t *testing.T) *api.DeploymentResponse {
	t.Helper()

	resp := doJSONRequest(t, http.MethodGet, baseURL+"/api/v1/deployment", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("Failed to get deployment: status=%d body=%s", resp.StatusCode, string(body))
	}

	result := decodeResponse[api.DeploymentResponse](t, resp)
	return &result
}

// StartDeployment runs a submission attempt via the API. The call succeeds
// at the HTTP level even when the attempt is turned down; the caller inspects
// the returned errors.
func StartDeployment(t *testing.T, deploymentType string, parameters map[string]any) *api.StartDeploymentResponse {
	t.Helper()

	resp := doJSONRequest(t, http.MethodPost, baseURL+"/api/v1/deployment/start", api.DeploymentRequest{
		DeploymentType: deploymentType,
		Parameters:     parameters,
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("Failed to start deployment: status=%d body=%s", resp.StatusCode, string(body))
	}

	result := decodeResponse[api.StartDeploymentResponse](t, resp)
	t.Logf("Started deployment: id=%d status=%s errors=%v",
		result.Deployment.ID, result.Deployment.Status, result.Errors)
	return &result
}

// InvokeOperation enqueues an operation via the API.
func InvokeOperation(t *testing.T, name string) *api.InvokeOperationResponse {
	t.Helper()

	resp := doJSONRequest(t, http.MethodPost, baseURL+"/api/v1/operations", api.InvokeOperationRequest{
		Name: name,
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("Failed to invoke operation: status=%d body=%s", resp.StatusCode, string(body))
	}

	result := decodeResponse[api.InvokeOperationResponse](t, resp)
	t.Logf("Invoked operation: %s (id=%s)", name, result.ID)
	return &result
}

// =============================================================================
// HTTP Helpers
// =============================================================================

// HTTPGet performs an HTTP GET request and returns the response.
func HTTPGet(t *testing.T, url string) *http.Response {
	t.Helper()

	resp, err := testClient.Get(url)
	if err != nil {
		t.Fatalf("HTTP GET failed: %v", err)
	}
	return resp
}
