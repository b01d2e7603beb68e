// Package jenkins provides the client for the external job engine that
// executes deployment builds. Part of the Imperative Shell.
package jenkins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// Client Errors
// =============================================================================

var (
	// ErrBuildNotFound is returned when the engine has no build for the
	// requested job and reference. Callers branch on this with errors.Is;
	// every other error is a transient backend failure.
	ErrBuildNotFound = errors.New("build not found")
)

// =============================================================================
// Client Interface
// =============================================================================

// LastBuildRef addresses the most recent build of a job, whatever its number.
const LastBuildRef = "lastBuild"

// QueueItem is a backend-side record of a trigger request. BuildNumber stays
// zero until the engine assigns the trigger to an executable build.
type QueueItem struct {
	ID          int64
	JobName     string
	BuildNumber int
}

// Build is the engine's metadata for one execution of a job.
type Build struct {
	Number   int
	Building bool
	Result   string
}

// Client defines the job-engine operations the deployment pipeline needs.
type Client interface {
	// ListQueue returns the triggers currently waiting in the engine queue.
	ListQueue(ctx context.Context) ([]QueueItem, error)

	// GetBuild fetches build metadata. ref is a build number or LastBuildRef.
	// Returns ErrBuildNotFound when the engine has no such build.
	GetBuild(ctx context.Context, job, ref string) (*Build, error)

	// TriggerBuild submits a new build of the job and returns the id of the
	// queue item the engine created, or 0 when the engine created none.
	TriggerBuild(ctx context.Context, job string, params map[string]any) (int64, error)

	// GetQueueItem fetches a single queue item by id.
	GetQueueItem(ctx context.Context, id int64) (*QueueItem, error)
}

// =============================================================================
// HTTP Client Implementation
// =============================================================================

// Config holds the connection settings for the job engine.
type Config struct {
	BaseURL  string // e.g. "http://jenkins:8080"
	Username string
	APIToken string
	Timeout  time.Duration
}

// HTTPClient implements Client against the engine's JSON API.
type HTTPClient struct {
	baseURL    string
	username   string
	apiToken   string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a job-engine client.
func NewHTTPClient(cfg Config, logger *slog.Logger) *HTTPClient {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		apiToken: cfg.APIToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With("component", "jenkins_client"),
	}
}

// =============================================================================
// Wire Types
// =============================================================================

type queueResponse struct {
	Items []queueItemPayload `json:"items"`
}

type queueItemPayload struct {
	ID         int64              `json:"id"`
	Task       taskPayload        `json:"task"`
	Executable *executablePayload `json:"executable"`
}

type taskPayload struct {
	Name string `json:"name"`
}

type executablePayload struct {
	Number int `json:"number"`
}

type buildPayload struct {
	Number   int    `json:"number"`
	Building bool   `json:"building"`
	Result   string `json:"result"`
}

func (p queueItemPayload) toQueueItem() QueueItem {
	item := QueueItem{
		ID:      p.ID,
		JobName: p.Task.Name,
	}
	if p.Executable != nil {
		item.BuildNumber = p.Executable.Number
	}
	return item
}

// =============================================================================
// Queue Operations
// =============================================================================

// ListQueue returns the triggers currently waiting in the engine queue.
func (c *HTTPClient) ListQueue(ctx context.Context) ([]QueueItem, error) {
	var payload queueResponse
	if err := c.getJSON(ctx, c.baseURL+"/queue/api/json", &payload); err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}

	items := make([]QueueItem, len(payload.Items))
	for i, p := range payload.Items {
		items[i] = p.toQueueItem()
	}
	return items, nil
}

// GetQueueItem fetches a single queue item by id.
func (c *HTTPClient) GetQueueItem(ctx context.Context, id int64) (*QueueItem, error) {
	apiURL := fmt.Sprintf("%s/queue/item/%d/api/json", c.baseURL, id)

	var payload queueItemPayload
	if err := c.getJSON(ctx, apiURL, &payload); err != nil {
		return nil, fmt.Errorf("failed to get queue item %d: %w", id, err)
	}

	item := payload.toQueueItem()
	return &item, nil
}

// =============================================================================
// Build Operations
// =============================================================================

// GetBuild fetches metadata for one build of a job. ref is a build number or
// LastBuildRef. A 404 from the engine maps to ErrBuildNotFound.
func (c *HTTPClient) GetBuild(ctx context.Context, job, ref string) (*Build, error) {
	apiURL := fmt.Sprintf("%s/job/%s/%s/api/json", c.baseURL, url.PathEscape(job), url.PathEscape(ref))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get build: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: job %q ref %q", ErrBuildNotFound, job, ref)
	}
	if resp.StatusCode >= 400 {
		return nil, c.statusError(resp)
	}

	var payload buildPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode build response: %w", err)
	}

	return &Build{
		Number:   payload.Number,
		Building: payload.Building,
		Result:   payload.Result,
	}, nil
}

// TriggerBuild submits a new build and returns the created queue item id.
// The engine reports the queue item through the Location response header;
// a response without one yields 0 and no error, which the pipeline treats
// as a failed submission rather than a fault.
func (c *HTTPClient) TriggerBuild(ctx context.Context, job string, params map[string]any) (int64, error) {
	endpoint := "build"
	var body io.Reader
	if len(params) > 0 {
		endpoint = "buildWithParameters"
		form := url.Values{}
		for k, v := range params {
			form.Set(k, fmt.Sprint(v))
		}
		body = strings.NewReader(form.Encode())
	}

	apiURL := fmt.Sprintf("%s/job/%s/%s", c.baseURL, url.PathEscape(job), endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to trigger build: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return 0, c.statusError(resp)
	}

	id := parseQueueItemID(resp.Header.Get("Location"))
	if id == 0 {
		c.logger.Warn("trigger accepted without a queue item location",
			"job", job,
			"status", resp.StatusCode,
		)
	}
	return id, nil
}

// parseQueueItemID extracts the trailing queue item id from a Location header
// of the form ".../queue/item/42/". Returns 0 when no id is present.
func parseQueueItemID(location string) int64 {
	if location == "" {
		return 0
	}
	trimmed := strings.TrimRight(location, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return 0
	}
	id, err := strconv.ParseInt(trimmed[idx+1:], 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}

// =============================================================================
// Helpers
// =============================================================================

func (c *HTTPClient) getJSON(ctx context.Context, apiURL string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.statusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *HTTPClient) authorize(req *http.Request) {
	if c.username != "" && c.apiToken != "" {
		req.SetBasicAuth(c.username, c.apiToken)
	}
}

func (c *HTTPClient) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("job engine returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
