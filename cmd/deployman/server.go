package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/offerlab/deployman/internal/shell/api"
	"github.com/offerlab/deployman/internal/shell/deployer"
	"github.com/offerlab/deployman/internal/shell/engine"
	"github.com/offerlab/deployman/internal/shell/events"
	"github.com/offerlab/deployman/internal/shell/jenkins"
	"github.com/offerlab/deployman/internal/shell/messaging"
	"github.com/offerlab/deployman/internal/shell/store"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitDatabaseError   = 2
	ExitMessagingError  = 3
	ExitHTTPServerError = 4
)

// =============================================================================
// Server
// =============================================================================

// Server represents the deployman application server.
type Server struct {
	config     *Config
	httpServer *http.Server
	store      store.Store
	sbClient   *azservicebus.Client
	sender     *messaging.Sender
	receiver   *messaging.Receiver
	logger     *slog.Logger
}

// NewServer creates a new server with the given config.
func NewServer(cfg *Config, logger *slog.Logger) (*Server, error) {
	// Connect to database
	s, err := store.NewSQLiteStore(cfg.Database.DSN)
	if err != nil {
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitDatabaseError,
		}
	}

	// Create job engine client
	backend := jenkins.NewHTTPClient(jenkins.Config{
		BaseURL:  cfg.Jenkins.URL,
		Username: cfg.Jenkins.Username,
		APIToken: cfg.Jenkins.APIToken,
		Timeout:  cfg.Jenkins.Timeout,
	}, logger)

	// Create event publisher from the subscription registry
	var publisher events.Publisher
	if cfg.Events.SubscriptionsFile != "" {
		subs, err := events.LoadSubscriptions(cfg.Events.SubscriptionsFile)
		if err != nil {
			s.Close()
			return nil, &ServerError{
				Op:       "NewServer",
				Err:      err,
				ExitCode: ExitConfigError,
			}
		}
		publisher = events.NewWebhookPublisher(events.WebhookConfig{
			Subscriptions: subs,
			Timeout:       cfg.Events.Timeout,
		}, logger)
		logger.Info("event publishing enabled", "subscriptions", len(subs))
	} else {
		publisher = events.NewNoOpPublisher()
		logger.Info("event publishing disabled")
	}

	// Create the submission engine
	coordinator := engine.NewSubmissionCoordinator(s, backend, publisher, logger)

	// Create operations messaging if enabled
	var sbClient *azservicebus.Client
	var sender *messaging.Sender
	var receiver *messaging.Receiver
	var opSender api.OperationSender

	if cfg.Messaging.Enabled {
		if cfg.Messaging.ConnectionString == "" {
			s.Close()
			return nil, &ServerError{
				Op:       "NewServer",
				Err:      errors.New("messaging.connection_string is required when messaging is enabled"),
				ExitCode: ExitConfigError,
			}
		}

		sbClient, err = azservicebus.NewClientFromConnectionString(cfg.Messaging.ConnectionString, nil)
		if err != nil {
			s.Close()
			return nil, &ServerError{
				Op:       "NewServer",
				Err:      err,
				ExitCode: ExitMessagingError,
			}
		}

		sender, err = messaging.NewSender(sbClient, logger)
		if err != nil {
			s.Close()
			return nil, &ServerError{
				Op:       "NewServer",
				Err:      err,
				ExitCode: ExitMessagingError,
			}
		}
		opSender = sender

		dispatcher := messaging.NewDispatcher(s, deployer.NewLogDeployer(logger), publisher, logger)
		receiver, err = messaging.NewReceiver(sbClient, dispatcher, messaging.ReceiverConfig{
			MaxMessages: cfg.Messaging.MaxMessages,
		}, logger)
		if err != nil {
			s.Close()
			return nil, &ServerError{
				Op:       "NewServer",
				Err:      err,
				ExitCode: ExitMessagingError,
			}
		}

		logger.Info("operations messaging enabled", "queue", messaging.QueueOperations)
	} else {
		logger.Info("operations messaging disabled")
	}

	// Create HTTP handler
	handler := api.NewHandler(coordinator, backend, opSender, logger)

	// Create HTTP server
	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		config:     cfg,
		httpServer: httpServer,
		store:      s,
		sbClient:   sbClient,
		sender:     sender,
		receiver:   receiver,
		logger:     logger,
	}, nil
}

// Start starts the server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Start the operations receiver in background
	if s.receiver != nil {
		s.receiver.Start()
	}

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server",
			"address", s.config.Server.Address())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		return &ServerError{
			Op:       "Start",
			Err:      err,
			ExitCode: ExitHTTPServerError,
		}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	// Shutdown HTTP server
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	// Stop the operations receiver
	if s.receiver != nil {
		s.receiver.Stop()
	}

	// Close the operations sender and the Service Bus client
	if s.sender != nil {
		if err := s.sender.Close(shutdownCtx); err != nil {
			s.logger.Error("operations sender close error", "error", err)
		}
	}
	if s.sbClient != nil {
		if err := s.sbClient.Close(shutdownCtx); err != nil {
			s.logger.Error("service bus client close error", "error", err)
		}
	}

	// Close database
	if err := s.store.Close(); err != nil {
		s.logger.Error("database close error", "error", err)
	}

	s.logger.Info("shutdown complete")
	return nil
}

// =============================================================================
// Server Error
// =============================================================================

// ServerError represents an error during server operation.
type ServerError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *ServerError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ServerError) Unwrap() error {
	return e.Err
}
