package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/planline/planline/internal/config"
	"github.com/planline/planline/internal/logger"
	"go.uber.org/zap"
)

// These variables are set at build time via -ldflags
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	config.SetVersion(version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
		sig := <-signals
		logger.Info("Received termination signal, shutting down",
			zap.String("signal", sig.String()))
		cancel()
	}()

	// Only the serve command keeps the process alive after Execute returns.
	needsBlocking := false
	if len(os.Args) > 1 && os.Args[1] == "serve" {
		helpRequested := false
		for _, arg := range os.Args[2:] {
			if arg == "--help" || arg == "-h" {
				helpRequested = true
				break
			}
		}
		needsBlocking = !helpRequested
	}

	Execute(ctx)

	if needsBlocking {
		<-ctx.Done()
		logger.Info("Server has shut down.")
		time.Sleep(1 * time.Second) // Let the shutdown goroutine finish its teardown
		_ = logger.Shutdown()
	}
}
