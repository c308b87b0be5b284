package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mikey/meeting-scheduler/internal/adapters/ingress"
	"github.com/mikey/meeting-scheduler/internal/core"
	"github.com/mikey/meeting-scheduler/internal/di"
	"github.com/mikey/meeting-scheduler/internal/workflow"
	"go.uber.org/zap"
)

func main() {
	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	logger *zap.Logger,
	mailIngress *ingress.SMTPIngress,
	sweeper *workflow.Sweeper,
	classifier core.IntentClassifier,
	store core.SchedulingStore,
) error {
	defer logger.Sync()

	// Start the hold-expiry sweeper
	if err := sweeper.Start(); err != nil {
		logger.Fatal("Failed to start hold sweeper", zap.Error(err))
		return err
	}

	// Start the inbound mail listener
	if err := mailIngress.Start(); err != nil {
		logger.Fatal("Failed to start SMTP ingress", zap.Error(err))
		return err
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")

	if err := mailIngress.Stop(); err != nil {
		logger.Error("Failed to stop SMTP ingress", zap.Error(err))
	}

	sweeper.Stop()

	// Close any resources that need closing
	if closer, ok := classifier.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close classifier client", zap.Error(err))
		}
	}
	if closer, ok := store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close scheduling store", zap.Error(err))
		}
	}

	logger.Info("Shutdown complete")
	return nil
}
