package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Subscriptions
// =============================================================================

// Subscription identifies one webhook receiver.
type Subscription struct {
	Name   string `yaml:"name" json:"name"`
	URL    string `yaml:"url" json:"url"`
	APIKey string `yaml:"api_key" json:"-"`
}

// subscriptionFile is the on-disk registry format.
type subscriptionFile struct {
	Subscriptions []Subscription `yaml:"subscriptions"`
}

// LoadSubscriptions reads the webhook subscription registry from a YAML file.
func LoadSubscriptions(path string) ([]Subscription, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read subscriptions file: %w", err)
	}

	var file subscriptionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse subscriptions file: %w", err)
	}

	for i, sub := range file.Subscriptions {
		if strings.TrimSpace(sub.Name) == "" {
			return nil, fmt.Errorf("subscription %d: name is required", i)
		}
		if strings.TrimSpace(sub.URL) == "" {
			return nil, fmt.Errorf("subscription %q: url is required", sub.Name)
		}
	}

	return file.Subscriptions, nil
}

// =============================================================================
// Webhook Publisher
// =============================================================================

// WebhookConfig holds configuration for the webhook publisher.
type WebhookConfig struct {
	Subscriptions []Subscription
	Timeout       time.Duration
}

// WebhookPublisher delivers events to every registered subscription over
// HTTP. A failing subscriber never prevents delivery to the others.
type WebhookPublisher struct {
	subscriptions []Subscription
	httpClient    *http.Client
	logger        *slog.Logger
}

var _ Publisher = (*WebhookPublisher)(nil)

// NewWebhookPublisher creates a webhook publisher for the given subscriptions.
func NewWebhookPublisher(cfg WebhookConfig, logger *slog.Logger) *WebhookPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &WebhookPublisher{
		subscriptions: cfg.Subscriptions,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.With("component", "events"),
	}
}

// Publish wraps the payload in an envelope and posts it to every
// subscription. Failed deliveries are logged per subscriber and folded into
// a single aggregate error.
func (p *WebhookPublisher) Publish(ctx context.Context, eventType string, payload any) error {
	event := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Status:    statusWord(eventType),
		Timestamp: time.Now().UTC(),
		Data:      payload,
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	failed := 0
	for _, sub := range p.subscriptions {
		if err := p.deliver(ctx, sub, body); err != nil {
			failed++
			p.logger.Error("event delivery failed",
				"subscription", sub.Name,
				"type", eventType,
				"error", err)
			continue
		}
		p.logger.Debug("event delivered", "subscription", sub.Name, "type", eventType)
	}

	if failed > 0 {
		return fmt.Errorf("event %s: %d of %d deliveries failed", eventType, failed, len(p.subscriptions))
	}
	return nil
}

// deliver posts the serialized event to a single subscriber.
func (p *WebhookPublisher) deliver(ctx context.Context, sub Subscription, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if sub.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+sub.APIKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("subscriber returned error %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// =============================================================================
// No-Op Publisher (for development/testing)
// =============================================================================

// NoOpPublisher is an event publisher that does nothing (for development
// mode, or when no subscriptions are configured).
type NoOpPublisher struct{}

// NewNoOpPublisher creates a no-op event publisher.
func NewNoOpPublisher() *NoOpPublisher {
	return &NoOpPublisher{}
}

// Publish does nothing.
func (p *NoOpPublisher) Publish(ctx context.Context, eventType string, payload any) error {
	return nil
}
