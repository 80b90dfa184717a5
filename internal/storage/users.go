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

// UserStore persists accounts.
type UserStore struct {
	db *DB
}

func NewUserStore(db *DB) *UserStore {
	return &UserStore{db: db}
}

// Create inserts a new account. Email uniqueness is enforced by the index.
func (s *UserStore) Create(ctx context.Context, user *domain.User) error {
	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	res, err := s.db.Collection(CollUsers).InsertOne(ctx, user)
	observe(CollUsers, err)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.ConflictError("an account with this email already exists")
		}
		return apperrors.DatabaseError("insert user", err)
	}
	user.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

// FindByEmail looks an account up for login.
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	var user domain.User
	err := s.db.Collection(CollUsers).FindOne(ctx, bson.M{"email": email}).Decode(&user)
	observe(CollUsers, err)
	if err == mongo.ErrNoDocuments {
		return nil, apperrors.NotFoundError("user")
	}
	if err != nil {
		return nil, apperrors.DatabaseError("find user", err)
	}
	return &user, nil
}

// FindByID returns one account.
func (s *UserStore) FindByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error) {
	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	var user domain.User
	err := s.db.Collection(CollUsers).FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	observe(CollUsers, err)
	if err == mongo.ErrNoDocuments {
		return nil, apperrors.NotFoundError("user")
	}
	if err != nil {
		return nil, apperrors.DatabaseError("find user", err)
	}
	return &user, nil
}

// FindByIDs returns the accounts for a set of ids, in no particular order.
func (s *UserStore) FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]domain.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	cursor, err := s.db.Collection(CollUsers).Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	observe(CollUsers, err)
	if err != nil {
		return nil, apperrors.DatabaseError("list users", err)
	}
	defer cursor.Close(ctx)

	var users []domain.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, apperrors.DatabaseError("decode users", err)
	}
	return users, nil
}

// UpdateName changes the display name.
func (s *UserStore) UpdateName(ctx context.Context, id primitive.ObjectID, name string) error {
	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	res, err := s.db.Collection(CollUsers).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"name": name, "updatedAt": time.Now().UTC()}})
	observe(CollUsers, err)
	if err != nil {
		return apperrors.DatabaseError("update user", err)
	}
	if res.MatchedCount == 0 {
		return apperrors.NotFoundError("user")
	}
	return nil
}
