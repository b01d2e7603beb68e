// Package events broadcasts deployment lifecycle notifications to registered
// webhook subscribers.
package events

import (
	"context"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// =============================================================================
// Event Types
// =============================================================================

const (
	// TypeDeploymentStarted is emitted when a submission is accepted by the
	// job engine and a build number has been assigned.
	TypeDeploymentStarted = "DeploymentStarted"

	// TypeDeploymentCompleted is emitted when a queued operation finishes
	// executing against the resource deployer.
	TypeDeploymentCompleted = "DeploymentCompleted"
)

// Types returns the event types this service can emit.
func Types() []string {
	return []string{
		TypeDeploymentStarted,
		TypeDeploymentCompleted,
	}
}

// =============================================================================
// Event Envelope
// =============================================================================

// Event is the envelope delivered to every subscriber. Status is the
// past-tense word of the type ("DeploymentStarted" carries "Started").
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// statusWord derives the envelope's status from the event type by stripping
// the subject prefix and title-casing what remains.
func statusWord(eventType string) string {
	word := strings.TrimPrefix(eventType, "Deployment")
	if word == "" {
		word = eventType
	}
	return cases.Title(language.English).String(strings.ToLower(word))
}

// DeploymentStartedPayload is the body of a DeploymentStarted event.
type DeploymentStartedPayload struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// DeploymentCompletedPayload is the body of a DeploymentCompleted event.
type DeploymentCompletedPayload struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// =============================================================================
// Publisher Interface
// =============================================================================

// Publisher broadcasts an event to interested subscribers. Callers treat
// publishing as fire-and-forget; a returned error means one or more
// deliveries failed, not that the triggering operation should abort.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload any) error
}
