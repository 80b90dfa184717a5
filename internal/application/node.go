package application

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/planline/planline/internal/config"
	"github.com/planline/planline/internal/constants"
	"github.com/planline/planline/internal/logger"
	"github.com/planline/planline/internal/metrics"
	"github.com/planline/planline/internal/realtime"
	"github.com/planline/planline/internal/storage"
	"github.com/planline/planline/internal/web"
	"github.com/planline/planline/internal/workers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Node ties the subsystems together: database, realtime hub, background
// workers, and the HTTP front.
type Node struct {
	ctx    context.Context
	cancel context.CancelFunc

	config     *config.Config
	db         *storage.DB
	hub        *realtime.Hub
	workerPool *workers.Pool
	webServer  *web.Server
	metricsSrv *http.Server

	startTime time.Time
}

// New builds a Node through the NodeBuilder.
func New(ctx context.Context, cfg *config.Config, version string) (*Node, error) {
	metrics.RegisterMetrics()

	builder := NewNodeBuilder(ctx, cfg)
	if err := builder.BuildDB(); err != nil {
		builder.cancel()
		return nil, fmt.Errorf("failed building db: %w", err)
	}
	builder.BuildStores()
	builder.BuildRealtime()
	builder.BuildWorkers()
	builder.BuildServices(version)
	builder.BuildWeb()

	node, err := builder.Build()
	if err != nil {
		builder.cancel()
		return nil, fmt.Errorf("failed to build node: %w", err)
	}
	return node, nil
}

func newNode(b *NodeBuilder) *Node {
	n := &Node{
		ctx:        b.ctx,
		cancel:     b.cancel,
		config:     b.config,
		db:         b.database,
		hub:        b.hub,
		workerPool: b.workerPool,
		webServer:  b.webServer,
		startTime:  time.Now(),
	}
	if b.config.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		n.metricsSrv = &http.Server{
			Addr:              fmt.Sprintf(":%d", b.config.Metrics.Port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
	return n
}

// Start launches the HTTP front and, when enabled, the metrics listener.
// It returns once the listeners are running.
func (n *Node) Start() error {
	go func() {
		if err := n.webServer.Start(); err != nil {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	if n.metricsSrv != nil {
		go func() {
			logger.Info("metrics server listening", zap.String("addr", n.metricsSrv.Addr))
			if err := n.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	logger.Info("node started",
		zap.String("listen_addr", n.config.Server.ListenAddr))
	return nil
}

// Shutdown runs the phased teardown: drain HTTP, close websocket
// connections, flush the worker queue, then close the database.
func (n *Node) Shutdown() {
	logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	var shutdownErrors []error

	// Drain in-flight HTTP requests first so mutations commit before the
	// realtime layer goes away.
	if err := n.webServer.Shutdown(shutdownCtx); err != nil {
		shutdownErrors = append(shutdownErrors, fmt.Errorf("web server shutdown: %w", err))
	}
	if n.metricsSrv != nil {
		if err := n.metricsSrv.Shutdown(shutdownCtx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	// Canceling the node context makes every websocket connection's monitor
	// close it with a polite close frame.
	n.cancel()

	// Flush queued audit writes and notifications.
	done := make(chan struct{})
	go func() {
		defer close(done)
		n.workerPool.Stop()
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		shutdownErrors = append(shutdownErrors,
			fmt.Errorf("worker pool shutdown timed out after %v", constants.ShutdownTimeout))
	}

	if err := n.shutdownDatabase(shutdownCtx); err != nil {
		shutdownErrors = append(shutdownErrors, err)
	}

	if len(shutdownErrors) > 0 {
		logger.Warn("shutdown completed with errors",
			zap.Int("error_count", len(shutdownErrors)),
			zap.Errors("errors", shutdownErrors))
	} else {
		logger.Info("shutdown completed")
	}
}

// shutdownDatabase closes the database connection with retries.
func (n *Node) shutdownDatabase(ctx context.Context) error {
	var lastErr error
	for i := 0; i < constants.MaxDBRetries; i++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("database shutdown timed out after %d attempts: %w", i, ctx.Err())
		default:
		}

		if err := n.db.CloseDB(ctx); err != nil {
			lastErr = err
			logger.Warn("failed to close database, retrying",
				zap.Int("attempt", i+1),
				zap.Error(err))
			select {
			case <-time.After(constants.DBRetryDelay):
			case <-ctx.Done():
				return fmt.Errorf("database shutdown timed out during retry delay: %w", ctx.Err())
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("database shutdown failed after %d retries: %w", constants.MaxDBRetries, lastErr)
}
