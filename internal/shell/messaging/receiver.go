package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
)

// receiveRetryDelay spaces out receive attempts after a transport failure.
const receiveRetryDelay = 5 * time.Second

// Handler processes one decoded operation. A returned error abandons the
// message for redelivery.
type Handler interface {
	Handle(ctx context.Context, op *InvokedOperation) error
}

// =============================================================================
// Operations Receiver
// =============================================================================

// ReceiverConfig configures the operations receiver.
type ReceiverConfig struct {
	// MaxMessages is the batch size for one receive call.
	// Default: 1.
	MaxMessages int
}

// Receiver pulls operations off the queue and hands them to the handler.
// Handled messages are completed; failed ones are abandoned so the bus
// redelivers them. An undecodable message is completed anyway, otherwise it
// would redeliver forever.
type Receiver struct {
	receiver *azservicebus.Receiver
	handler  Handler
	config   ReceiverConfig
	logger   *slog.Logger

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReceiver creates a receiver on the operations queue.
func NewReceiver(client *azservicebus.Client, handler Handler, config ReceiverConfig, logger *slog.Logger) (*Receiver, error) {
	if config.MaxMessages == 0 {
		config.MaxMessages = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	sbReceiver, err := client.NewReceiverForQueue(QueueOperations, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create queue receiver: %w", err)
	}

	return &Receiver{
		receiver: sbReceiver,
		handler:  handler,
		config:   config,
		logger:   logger.With("component", "operations_receiver"),
	}, nil
}

// Start begins the receive loop in a background goroutine.
func (r *Receiver) Start() {
	r.ctx, r.cancel = context.WithCancel(context.Background())

	r.wg.Add(1)
	go r.run()

	r.logger.Info("operations receiver started", "queue", QueueOperations)
}

// Stop drains the receive loop and closes the queue link.
func (r *Receiver) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()

	if err := r.receiver.Close(context.Background()); err != nil {
		r.logger.Error("failed to close queue receiver", "error", err)
	}
	r.logger.Info("operations receiver stopped")
}

// run is the receive loop.
func (r *Receiver) run() {
	defer r.wg.Done()

	for {
		messages, err := r.receiver.ReceiveMessages(r.ctx, r.config.MaxMessages, nil)
		if err != nil {
			if r.ctx.Err() != nil {
				return
			}
			r.logger.Error("failed to receive messages", "error", err)
			select {
			case <-r.ctx.Done():
				return
			case <-time.After(receiveRetryDelay):
			}
			continue
		}

		for _, msg := range messages {
			r.process(msg)
		}
	}
}

// process settles a single message around the handler call.
func (r *Receiver) process(msg *azservicebus.ReceivedMessage) {
	op, err := DecodeOperation(msg.Body)
	if err != nil {
		r.logger.Error("discarding undecodable message", "message_id", msg.MessageID, "error", err)
		if err := r.receiver.CompleteMessage(r.ctx, msg, nil); err != nil {
			r.logger.Error("failed to settle poison message", "message_id", msg.MessageID, "error", err)
		}
		return
	}

	if err := r.handler.Handle(r.ctx, op); err != nil {
		r.logger.Error("operation failed", "operation", op.ID, "name", op.Name, "error", err)
		if err := r.receiver.AbandonMessage(r.ctx, msg, nil); err != nil {
			r.logger.Error("failed to abandon message", "message_id", msg.MessageID, "error", err)
		}
		return
	}

	if err := r.receiver.CompleteMessage(r.ctx, msg, nil); err != nil {
		r.logger.Error("failed to complete message", "message_id", msg.MessageID, "error", err)
	}
}
