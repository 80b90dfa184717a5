package application

import (
	"context"
	"fmt"

	"github.com/planline/planline/internal/ai"
	"github.com/planline/planline/internal/auth"
	"github.com/planline/planline/internal/config"
	"github.com/planline/planline/internal/constants"
	"github.com/planline/planline/internal/health"
	"github.com/planline/planline/internal/logger"
	"github.com/planline/planline/internal/realtime"
	"github.com/planline/planline/internal/storage"
	"github.com/planline/planline/internal/web"
	"github.com/planline/planline/internal/workers"
	"go.uber.org/zap"
)

// NodeBuilder assembles a Node step by step. Each Build* method wires one
// subsystem; Build checks nothing was skipped.
type NodeBuilder struct {
	ctx    context.Context
	cancel context.CancelFunc
	config *config.Config

	database *storage.DB

	users         *storage.UserStore
	projects      *storage.ProjectStore
	sprints       *storage.SprintStore
	items         *storage.ItemStore
	docs          *storage.CollabDocStore
	notifications *storage.NotificationStore
	logs          *storage.AuditStore

	hub        *realtime.Hub
	realtime   *realtime.Server
	workerPool *workers.Pool
	recorder   *workers.Recorder
	authSvc    *auth.Service
	summarizer *ai.Summarizer
	checker    *health.Checker
	webServer  *web.Server
}

// NewNodeBuilder creates a builder with its own cancelable context.
func NewNodeBuilder(ctx context.Context, cfg *config.Config) *NodeBuilder {
	c, cancel := context.WithCancel(ctx)
	return &NodeBuilder{
		ctx:    c,
		cancel: cancel,
		config: cfg,
	}
}

// BuildDB connects to MongoDB and ensures the indexes exist.
func (b *NodeBuilder) BuildDB() error {
	logger.Info("Connecting to database",
		zap.String("server", b.config.Database.Server),
		zap.Int("port", b.config.Database.Port),
		zap.String("name", b.config.Database.Name))

	db, err := storage.InitDB(b.ctx, b.config.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.EnsureIndexes(b.ctx); err != nil {
		return fmt.Errorf("failed to ensure indexes: %w", err)
	}
	b.database = db
	return nil
}

// BuildStores creates the typed collection stores.
func (b *NodeBuilder) BuildStores() {
	b.users = storage.NewUserStore(b.database)
	b.projects = storage.NewProjectStore(b.database)
	b.sprints = storage.NewSprintStore(b.database)
	b.items = storage.NewItemStore(b.database)
	b.docs = storage.NewCollabDocStore(b.database)
	b.notifications = storage.NewNotificationStore(b.database)
	b.logs = storage.NewAuditStore(b.database)
}

// BuildRealtime creates the broadcast hub and the websocket server. The
// document store doubles as the hub's edit-lock store.
func (b *NodeBuilder) BuildRealtime() {
	b.hub = realtime.NewHub(b.docs)
	b.realtime = realtime.NewServer(b.hub, b.config.Server)
}

// BuildWorkers creates the background pool and the activity recorder.
func (b *NodeBuilder) BuildWorkers() {
	b.workerPool = workers.NewPool(constants.WorkerCount, constants.WorkerQueueSize)
	b.recorder = workers.NewRecorder(b.workerPool, b.logs, b.notifications, b.hub)
}

// BuildServices creates auth, AI and health checking.
func (b *NodeBuilder) BuildServices(version string) {
	b.authSvc = auth.NewService(b.config.Auth)
	b.summarizer = ai.NewSummarizer(b.config.AI)
	b.checker = health.NewChecker(b.database, b.hub, b.config, version)
}

// BuildWeb assembles the HTTP server around everything built so far.
func (b *NodeBuilder) BuildWeb() {
	b.webServer = web.NewServer(b.ctx, web.Deps{
		Config:        b.config,
		Users:         b.users,
		Projects:      b.projects,
		Sprints:       b.sprints,
		Items:         b.items,
		Docs:          b.docs,
		Notifications: b.notifications,
		Logs:          b.logs,
		Auth:          b.authSvc,
		Broadcaster:   b.hub,
		Recorder:      b.recorder,
		Summarizer:    b.summarizer,
		Realtime:      b.realtime,
		Health:        b.checker.Handler(),
	})
}

// Build validates the assembly and returns the Node.
func (b *NodeBuilder) Build() (*Node, error) {
	switch {
	case b.database == nil:
		return nil, fmt.Errorf("builder: database not built")
	case b.hub == nil:
		return nil, fmt.Errorf("builder: realtime hub not built")
	case b.workerPool == nil:
		return nil, fmt.Errorf("builder: worker pool not built")
	case b.webServer == nil:
		return nil, fmt.Errorf("builder: web server not built")
	}
	return newNode(b), nil
}
