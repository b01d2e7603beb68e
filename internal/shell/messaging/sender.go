package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
)

// =============================================================================
// Operations Sender
// =============================================================================

// Sender enqueues invoked operations.
type Sender struct {
	sender *azservicebus.Sender
	logger *slog.Logger
}

// NewSender creates a sender on the operations queue.
func NewSender(client *azservicebus.Client, logger *slog.Logger) (*Sender, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sbSender, err := client.NewSender(QueueOperations, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create queue sender: %w", err)
	}

	return &Sender{
		sender: sbSender,
		logger: logger.With("component", "operations_sender"),
	}, nil
}

// Send enqueues one operation.
func (s *Sender) Send(ctx context.Context, op InvokedOperation) error {
	data, err := EncodeOperation(op)
	if err != nil {
		return err
	}

	contentType := "application/json"
	msg := &azservicebus.Message{
		MessageID:   &op.ID,
		Body:        data,
		ContentType: &contentType,
	}

	if err := s.sender.SendMessage(ctx, msg, nil); err != nil {
		return fmt.Errorf("failed to send operation %s: %w", op.ID, err)
	}

	s.logger.Info("operation enqueued", "operation", op.ID, "name", op.Name)
	return nil
}

// Close releases the underlying queue link.
func (s *Sender) Close(ctx context.Context) error {
	return s.sender.Close(ctx)
}
