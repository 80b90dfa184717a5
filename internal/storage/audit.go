package storage

import (
	"context"
	"time"

	"github.com/planline/planline/internal/domain"
	apperrors "github.com/planline/planline/internal/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AuditStore persists the append-only activity log. Entries are never
// updated or deleted.
type AuditStore struct {
	db *DB
}

func NewAuditStore(db *DB) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) Insert(ctx context.Context, entry *domain.AuditLog) error {
	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	entry.CreatedAt = time.Now().UTC()

	res, err := s.db.Collection(CollLogs).InsertOne(ctx, entry)
	observe(CollLogs, err)
	if err != nil {
		return apperrors.DatabaseError("insert log entry", err)
	}
	entry.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

// LogFilter narrows a project's activity log. Zero values mean "no filter".
type LogFilter struct {
	TriggerID primitive.ObjectID
	EntityID  primitive.ObjectID
	Entity    domain.AuditEntity
	Action    domain.AuditAction
	Since     time.Time
	Until     time.Time
}

// ListForProject returns a page of the project's log, newest first.
func (s *AuditStore) ListForProject(ctx context.Context, projectID primitive.ObjectID, filter LogFilter, page, perPage int64) ([]domain.AuditLog, int64, error) {
	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	query := bson.M{"projectId": projectID}
	if !filter.TriggerID.IsZero() {
		query["logTriggerId"] = filter.TriggerID
	}
	if !filter.EntityID.IsZero() {
		query["affectedEntityId"] = filter.EntityID
	}
	if filter.Entity != "" {
		query["affectedEntity"] = filter.Entity
	}
	if filter.Action != "" {
		query["action"] = filter.Action
	}
	if !filter.Since.IsZero() || !filter.Until.IsZero() {
		created := bson.M{}
		if !filter.Since.IsZero() {
			created["$gte"] = filter.Since.UTC()
		}
		if !filter.Until.IsZero() {
			created["$lte"] = filter.Until.UTC()
		}
		query["createdAt"] = created
	}

	total, err := s.db.Collection(CollLogs).CountDocuments(ctx, query)
	observe(CollLogs, err)
	if err != nil {
		return nil, 0, apperrors.DatabaseError("count log entries", err)
	}

	if page < 1 {
		page = 1
	}
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip((page - 1) * perPage).
		SetLimit(perPage)

	cursor, err := s.db.Collection(CollLogs).Find(ctx, query, opts)
	observe(CollLogs, err)
	if err != nil {
		return nil, 0, apperrors.DatabaseError("list log entries", err)
	}
	defer cursor.Close(ctx)

	var entries []domain.AuditLog
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, 0, apperrors.DatabaseError("decode log entries", err)
	}
	return entries, total, nil
}
