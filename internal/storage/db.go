package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/planline/planline/internal/config"
	apperrors "github.com/planline/planline/internal/errors"
	"github.com/planline/planline/internal/logger"
	"github.com/planline/planline/internal/metrics"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Collection names.
const (
	CollUsers         = "users"
	CollProjects      = "projects"
	CollSprints       = "sprints"
	CollItems         = "items"
	CollCollabDocs    = "collab_docs"
	CollNotifications = "notifications"
	CollLogs          = "logs"
	CollCounters      = "counters"
)

// DBState represents the current state of the database connection
type DBState int

const (
	DBStateInitial DBState = iota
	DBStateConnecting
	DBStateConnected
	DBStateDisconnecting
	DBStateClosed
)

// DB wraps the MongoDB client and database handle.
type DB struct {
	Client       *mongo.Client
	database     *mongo.Database
	queryTimeout time.Duration

	state   DBState
	stateMu sync.RWMutex
}

// connectionURI builds the mongodb URI from config, preferring the explicit URI.
func connectionURI(cfg config.DatabaseConfig) string {
	if cfg.URI != "" {
		return cfg.URI
	}
	return fmt.Sprintf("mongodb://%s:%d", cfg.Server, cfg.Port)
}

// InitDB connects to MongoDB with retries and exponential backoff.
func InitDB(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	var client *mongo.Client
	var err error
	backoff := 2 * time.Second
	attempts := 0

	db := &DB{
		state:        DBStateConnecting,
		queryTimeout: cfg.QueryTimeout,
	}

	uri := connectionURI(cfg)
	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ConnectTimeout)

	for i := 0; i < 5; i++ {
		attempts++
		client, err = mongo.Connect(ctx, opts)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
			err = client.Ping(pingCtx, readpref.Primary())
			cancel()
			if err == nil {
				db.Client = client
				db.database = client.Database(cfg.Name)
				db.state = DBStateConnected

				logger.Info("Database connected",
					zap.Int("attempts", attempts),
					zap.String("database", cfg.Name))
				return db, nil
			}
			_ = client.Disconnect(ctx)
		}

		logger.Warn("Failed to connect to DB, retrying...",
			zap.Error(err),
			zap.Int("attempt", attempts),
			zap.Duration("backoff", backoff))
		time.Sleep(backoff)
		backoff *= 2
	}

	db.state = DBStateClosed
	return nil, apperrors.DatabaseConnectionError(fmt.Errorf("after %d attempts: %w", attempts, err))
}

// CloseDB disconnects from the database.
func (db *DB) CloseDB(ctx context.Context) error {
	db.stateMu.Lock()
	if db.state == DBStateDisconnecting || db.state == DBStateClosed {
		db.stateMu.Unlock()
		return nil
	}
	db.state = DBStateDisconnecting
	db.stateMu.Unlock()

	if db.Client != nil {
		err := db.Client.Disconnect(ctx)
		db.stateMu.Lock()
		db.state = DBStateClosed
		db.stateMu.Unlock()
		logger.Debug("Database connection closed")
		return err
	}

	return fmt.Errorf("database client is nil")
}

// Collection returns a handle on a named collection.
func (db *DB) Collection(name string) *mongo.Collection {
	return db.database.Collection(name)
}

// QueryTimeout returns the configured per-query deadline.
func (db *DB) QueryTimeout() time.Duration {
	return db.queryTimeout
}

// opContext derives a bounded context for one database operation.
func (db *DB) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, db.queryTimeout)
}

// isConnected checks if the database is in a connected state
func (db *DB) isConnected() bool {
	db.stateMu.RLock()
	defer db.stateMu.RUnlock()
	return db.state == DBStateConnected
}

// Ping checks database connectivity
func (db *DB) Ping(ctx context.Context) error {
	if db.Client == nil {
		return fmt.Errorf("database client is not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return db.Client.Ping(ctx, readpref.Primary())
}

// observe records a per-collection operation result in the metrics.
func observe(collection string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	metrics.DBOperations.WithLabelValues(collection, result).Inc()
}

// EnsureIndexes creates the indexes every store relies on. Safe to call on
// every startup; Mongo treats an existing identical index as a no-op.
func (db *DB) EnsureIndexes(ctx context.Context) error {
	if !db.isConnected() {
		return fmt.Errorf("database is not connected")
	}

	ctx, cancel := db.opContext(ctx)
	defer cancel()

	specs := map[string][]mongo.IndexModel{
		CollUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		CollProjects: {
			{Keys: bson.D{{Key: "users.userId", Value: 1}}},
			{Keys: bson.D{{Key: "code", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		CollSprints: {
			{Keys: bson.D{{Key: "projectId", Value: 1}}},
		},
		CollItems: {
			{Keys: bson.D{{Key: "projectId", Value: 1}, {Key: "deleted", Value: 1}}},
			{Keys: bson.D{{Key: "projectId", Value: 1}, {Key: "sprintId", Value: 1}}},
			{Keys: bson.D{{Key: "code", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		CollCollabDocs: {
			{Keys: bson.D{{Key: "projectId", Value: 1}, {Key: "structure_path", Value: 1}}},
		},
		CollNotifications: {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "is_read", Value: 1}}},
		},
		CollLogs: {
			{Keys: bson.D{{Key: "projectId", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
	}

	for coll, models := range specs {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes for %s: %w", coll, err)
		}
	}

	logger.Debug("Database indexes ensured")
	return nil
}
