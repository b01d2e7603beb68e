// Package messaging moves invoked operations through the service bus queue
// that decouples the HTTP surface from the resource deployer.
package messaging

import (
	"encoding/json"
	"fmt"
)

// QueueOperations is the queue carrying invoked operations.
const QueueOperations = "operations"

// Operation names accepted on the operations queue. A retry runs the same
// rollout as a first start; the dispatcher drives both from the stored
// record.
const (
	OperationStartDeployment = "startDeployment"
	OperationRetryDeployment = "retryDeployment"
)

// KnownOperation reports whether name is an operation the dispatcher can run.
func KnownOperation(name string) bool {
	return name == OperationStartDeployment || name == OperationRetryDeployment
}

// =============================================================================
// Wire Format
// =============================================================================

// QueueMessage is the envelope placed on the queue. Body holds the operation
// serialized as a JSON string, so decoding happens in two steps: envelope
// first, then the operation out of the body string.
type QueueMessage struct {
	ID   string `json:"id"`
	Body any    `json:"body"`
}

// InvokedOperation is one queued unit of work against the resource deployer.
type InvokedOperation struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	DeploymentName string         `json:"deploymentName"`
	Template       map[string]any `json:"template,omitempty"`
	Parameters     map[string]any `json:"parameters,omitempty"`
}

// EncodeOperation wraps an operation in the queue envelope.
func EncodeOperation(op InvokedOperation) ([]byte, error) {
	inner, err := json.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal operation: %w", err)
	}

	envelope := QueueMessage{
		ID:   op.ID,
		Body: string(inner),
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal queue message: %w", err)
	}
	return data, nil
}

// DecodeOperation unwraps a queue envelope back into the operation it
// carries.
func DecodeOperation(data []byte) (*InvokedOperation, error) {
	var envelope QueueMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal queue message: %w", err)
	}

	body, ok := envelope.Body.(string)
	if !ok {
		return nil, fmt.Errorf("queue message %q: body is not a string", envelope.ID)
	}

	var op InvokedOperation
	if err := json.Unmarshal([]byte(body), &op); err != nil {
		return nil, fmt.Errorf("failed to unmarshal operation: %w", err)
	}
	return &op, nil
}
