package storage

import (
	"context"
	"time"

	"github.com/planline/planline/internal/domain"
	apperrors "github.com/planline/planline/internal/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SprintStore persists sprints.
type SprintStore struct {
	db *DB
}

func NewSprintStore(db *DB) *SprintStore {
	return &SprintStore{db: db}
}

func (s *SprintStore) Create(ctx context.Context, sprint *domain.Sprint) error {
	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	now := time.Now().UTC()
	sprint.CreatedAt = now
	sprint.UpdatedAt = now

	res, err := s.db.Collection(CollSprints).InsertOne(ctx, sprint)
	observe(CollSprints, err)
	if err != nil {
		return apperrors.DatabaseError("insert sprint", err)
	}
	sprint.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

func (s *SprintStore) FindByID(ctx context.Context, id primitive.ObjectID) (*domain.Sprint, error) {
	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	var sprint domain.Sprint
	err := s.db.Collection(CollSprints).FindOne(ctx, bson.M{"_id": id, "deleted": bson.M{"$ne": true}}).Decode(&sprint)
	observe(CollSprints, err)
	if err == mongo.ErrNoDocuments {
		return nil, apperrors.NotFoundError("sprint")
	}
	if err != nil {
		return nil, apperrors.DatabaseError("find sprint", err)
	}
	return &sprint, nil
}

// ListForProject returns the project's sprints, newest start date first.
func (s *SprintStore) ListForProject(ctx context.Context, projectID primitive.ObjectID) ([]domain.Sprint, error) {
	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "start_date", Value: -1}})
	cursor, err := s.db.Collection(CollSprints).Find(ctx,
		bson.M{"projectId": projectID, "deleted": bson.M{"$ne": true}}, opts)
	observe(CollSprints, err)
	if err != nil {
		return nil, apperrors.DatabaseError("list sprints", err)
	}
	defer cursor.Close(ctx)

	var sprints []domain.Sprint
	if err := cursor.All(ctx, &sprints); err != nil {
		return nil, apperrors.DatabaseError("decode sprints", err)
	}
	return sprints, nil
}

// Update applies a partial update and returns the fresh document.
func (s *SprintStore) Update(ctx context.Context, id primitive.ObjectID, set bson.M) (*domain.Sprint, error) {
	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	set["updatedAt"] = time.Now().UTC()
	res, err := s.db.Collection(CollSprints).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	observe(CollSprints, err)
	if err != nil {
		return nil, apperrors.DatabaseError("update sprint", err)
	}
	if res.MatchedCount == 0 {
		return nil, apperrors.NotFoundError("sprint")
	}
	return s.FindByID(ctx, id)
}

// Complete marks a sprint finished. Completing twice is a conflict.
func (s *SprintStore) Complete(ctx context.Context, id primitive.ObjectID) error {
	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	res, err := s.db.Collection(CollSprints).UpdateOne(ctx,
		bson.M{"_id": id, "is_completed": bson.M{"$ne": true}},
		bson.M{"$set": bson.M{"is_completed": true, "updatedAt": time.Now().UTC()}})
	observe(CollSprints, err)
	if err != nil {
		return apperrors.DatabaseError("complete sprint", err)
	}
	if res.MatchedCount == 0 {
		return apperrors.ConflictError("sprint not found or already completed")
	}
	return nil
}

// SoftDelete hides a sprint without destroying history.
func (s *SprintStore) SoftDelete(ctx context.Context, id primitive.ObjectID) error {
	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	res, err := s.db.Collection(CollSprints).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"deleted": true, "updatedAt": time.Now().UTC()}})
	observe(CollSprints, err)
	if err != nil {
		return apperrors.DatabaseError("delete sprint", err)
	}
	if res.MatchedCount == 0 {
		return apperrors.NotFoundError("sprint")
	}
	return nil
}
