package storage

import (
	"context"
	"time"

	"github.com/planline/planline/internal/domain"
	apperrors "github.com/planline/planline/internal/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// ProjectStore persists projects and their membership lists.
type ProjectStore struct {
	db *DB
}

func NewProjectStore(db *DB) *ProjectStore {
	return &ProjectStore{db: db}
}

// Create inserts a project. The owner becomes the first active member.
func (s *ProjectStore) Create(ctx context.Context, project *domain.Project) error {
	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	now := time.Now().UTC()
	project.CreatedAt = now
	project.UpdatedAt = now
	if len(project.Users) == 0 {
		project.Users = []domain.ProjectUser{{
			UserID:   project.OwnerID,
			Role:     domain.RoleOwner,
			IsActive: true,
		}}
	}

	res, err := s.db.Collection(CollProjects).InsertOne(ctx, project)
	observe(CollProjects, err)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.ConflictError("a project with this code already exists")
		}
		return apperrors.DatabaseError("insert project", err)
	}
	project.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

// FindByID returns one project.
func (s *ProjectStore) FindByID(ctx context.Context, id primitive.ObjectID) (*domain.Project, error) {
	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	var project domain.Project
	err := s.db.Collection(CollProjects).FindOne(ctx, bson.M{"_id": id}).Decode(&project)
	observe(CollProjects, err)
	if err == mongo.ErrNoDocuments {
		return nil, apperrors.NotFoundError("project")
	}
	if err != nil {
		return nil, apperrors.DatabaseError("find project", err)
	}
	return &project, nil
}

// ListForUser returns every project the user is a member of.
func (s *ProjectStore) ListForUser(ctx context.Context, userID primitive.ObjectID) ([]domain.Project, error) {
	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	cursor, err := s.db.Collection(CollProjects).Find(ctx, bson.M{"users.userId": userID})
	observe(CollProjects, err)
	if err != nil {
		return nil, apperrors.DatabaseError("list projects", err)
	}
	defer cursor.Close(ctx)

	var projects []domain.Project
	if err := cursor.All(ctx, &projects); err != nil {
		return nil, apperrors.DatabaseError("decode projects", err)
	}
	return projects, nil
}

// Update applies a partial update and returns the fresh document.
func (s *ProjectStore) Update(ctx context.Context, id primitive.ObjectID, set bson.M) (*domain.Project, error) {
	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	set["updatedAt"] = time.Now().UTC()
	res, err := s.db.Collection(CollProjects).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	observe(CollProjects, err)
	if err != nil {
		return nil, apperrors.DatabaseError("update project", err)
	}
	if res.MatchedCount == 0 {
		return nil, apperrors.NotFoundError("project")
	}
	return s.FindByID(ctx, id)
}

// SetCurrentSprint points the project at its active sprint; nil clears it.
func (s *ProjectStore) SetCurrentSprint(ctx context.Context, id primitive.ObjectID, sprintID *primitive.ObjectID) error {
	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	update := bson.M{"$set": bson.M{"updatedAt": time.Now().UTC()}}
	if sprintID != nil {
		update["$set"].(bson.M)["currentSprintId"] = *sprintID
	} else {
		update["$unset"] = bson.M{"currentSprintId": ""}
	}

	res, err := s.db.Collection(CollProjects).UpdateOne(ctx, bson.M{"_id": id}, update)
	observe(CollProjects, err)
	if err != nil {
		return apperrors.DatabaseError("update project sprint", err)
	}
	if res.MatchedCount == 0 {
		return apperrors.NotFoundError("project")
	}
	return nil
}

// UpsertMember adds a member or updates the role/activity of an existing one.
func (s *ProjectStore) UpsertMember(ctx context.Context, id primitive.ObjectID, member domain.ProjectUser) error {
	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	// Try updating an existing entry first; fall back to a push.
	res, err := s.db.Collection(CollProjects).UpdateOne(ctx,
		bson.M{"_id": id, "users.userId": member.UserID},
		bson.M{"$set": bson.M{
			"users.$.role":      member.Role,
			"users.$.is_active": member.IsActive,
			"updatedAt":         time.Now().UTC(),
		}})
	observe(CollProjects, err)
	if err != nil {
		return apperrors.DatabaseError("update project member", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	res, err = s.db.Collection(CollProjects).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$push": bson.M{"users": member},
			"$set":  bson.M{"updatedAt": time.Now().UTC()},
		})
	observe(CollProjects, err)
	if err != nil {
		return apperrors.DatabaseError("add project member", err)
	}
	if res.MatchedCount == 0 {
		return apperrors.NotFoundError("project")
	}
	return nil
}

// RemoveMember pulls a user out of the membership list. The owner cannot be
// removed.
func (s *ProjectStore) RemoveMember(ctx context.Context, id, userID primitive.ObjectID) error {
	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	res, err := s.db.Collection(CollProjects).UpdateOne(ctx,
		bson.M{"_id": id, "ownerId": bson.M{"$ne": userID}},
		bson.M{
			"$pull": bson.M{"users": bson.M{"userId": userID}},
			"$set":  bson.M{"updatedAt": time.Now().UTC()},
		})
	observe(CollProjects, err)
	if err != nil {
		return apperrors.DatabaseError("remove project member", err)
	}
	if res.MatchedCount == 0 {
		return apperrors.ConflictError("project not found or user is the owner")
	}
	return nil
}
