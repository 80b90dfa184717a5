package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/planline/planline/internal/domain"
	apperrors "github.com/planline/planline/internal/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ItemStore persists work items.
type ItemStore struct {
	db *DB
}

func NewItemStore(db *DB) *ItemStore {
	return &ItemStore{db: db}
}

// NextCode reserves the next item code for a project ("PRJ-42"). The counter
// lives in its own collection and is bumped atomically, so concurrent creates
// never collide.
func (s *ItemStore) NextCode(ctx context.Context, projectID primitive.ObjectID, projectCode string) (string, error) {
	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	var counter struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)
	err := s.db.Collection(CollCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": projectID},
		bson.M{"$inc": bson.M{"seq": 1}},
		opts).Decode(&counter)
	observe(CollCounters, err)
	if err != nil {
		return "", apperrors.DatabaseError("reserve item code", err)
	}
	return fmt.Sprintf("%s-%d", projectCode, counter.Seq), nil
}

func (s *ItemStore) Create(ctx context.Context, item *domain.Item) error {
	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	res, err := s.db.Collection(CollItems).InsertOne(ctx, item)
	observe(CollItems, err)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.ConflictError("an item with this code already exists")
		}
		return apperrors.DatabaseError("insert item", err)
	}
	item.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

func (s *ItemStore) FindByID(ctx context.Context, id primitive.ObjectID) (*domain.Item, error) {
	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	var item domain.Item
	err := s.db.Collection(CollItems).FindOne(ctx, bson.M{"_id": id, "deleted": bson.M{"$ne": true}}).Decode(&item)
	observe(CollItems, err)
	if err == mongo.ErrNoDocuments {
		return nil, apperrors.NotFoundError("item")
	}
	if err != nil {
		return nil, apperrors.DatabaseError("find item", err)
	}
	return &item, nil
}

// ItemFilter narrows a project item listing.
type ItemFilter struct {
	SprintID   *primitive.ObjectID
	EpicID     *primitive.ObjectID
	AssigneeID *primitive.ObjectID
	Type       domain.ItemType
	Backlog    bool // items in no sprint
}

// ListForProject returns a project's live items matching the filter.
func (s *ItemStore) ListForProject(ctx context.Context, projectID primitive.ObjectID, filter ItemFilter) ([]domain.Item, error) {
	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	query := bson.M{"projectId": projectID, "deleted": bson.M{"$ne": true}}
	if filter.SprintID != nil {
		query["sprintId"] = *filter.SprintID
	}
	if filter.Backlog {
		query["$or"] = bson.A{
			bson.M{"sprintId": bson.M{"$exists": false}},
			bson.M{"sprintId": bson.M{"$size": 0}},
		}
	}
	if filter.EpicID != nil {
		query["epicId"] = *filter.EpicID
	}
	if filter.AssigneeID != nil {
		query["assigneeId"] = *filter.AssigneeID
	}
	if filter.Type != "" {
		query["type"] = filter.Type
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := s.db.Collection(CollItems).Find(ctx, query, opts)
	observe(CollItems, err)
	if err != nil {
		return nil, apperrors.DatabaseError("list items", err)
	}
	defer cursor.Close(ctx)

	var items []domain.Item
	if err := cursor.All(ctx, &items); err != nil {
		return nil, apperrors.DatabaseError("decode items", err)
	}
	return items, nil
}

// Update applies a partial update ($set plus optional $unset) and returns the
// fresh document.
func (s *ItemStore) Update(ctx context.Context, id primitive.ObjectID, set, unset bson.M) (*domain.Item, error) {
	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	set["updatedAt"] = time.Now().UTC()
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	res, err := s.db.Collection(CollItems).UpdateOne(ctx, bson.M{"_id": id}, update)
	observe(CollItems, err)
	if err != nil {
		return nil, apperrors.DatabaseError("update item", err)
	}
	if res.MatchedCount == 0 {
		return nil, apperrors.NotFoundError("item")
	}
	return s.FindByID(ctx, id)
}

// SoftDelete hides an item without destroying history.
func (s *ItemStore) SoftDelete(ctx context.Context, id primitive.ObjectID) error {
	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	res, err := s.db.Collection(CollItems).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"deleted": true, "updatedAt": time.Now().UTC()}})
	observe(CollItems, err)
	if err != nil {
		return apperrors.DatabaseError("delete item", err)
	}
	if res.MatchedCount == 0 {
		return apperrors.NotFoundError("item")
	}
	return nil
}

// AddComment appends a comment to an item.
func (s *ItemStore) AddComment(ctx context.Context, id primitive.ObjectID, comment domain.ItemComment) (*domain.Item, error) {
	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	res, err := s.db.Collection(CollItems).UpdateOne(ctx,
		bson.M{"_id": id, "deleted": bson.M{"$ne": true}},
		bson.M{
			"$push": bson.M{"comments": comment},
			"$set":  bson.M{"updatedAt": time.Now().UTC()},
		})
	observe(CollItems, err)
	if err != nil {
		return nil, apperrors.DatabaseError("add comment", err)
	}
	if res.MatchedCount == 0 {
		return nil, apperrors.NotFoundError("item")
	}
	return s.FindByID(ctx, id)
}

// RemoveComment pulls a comment off an item.
func (s *ItemStore) RemoveComment(ctx context.Context, id, commentID primitive.ObjectID) (*domain.Item, error) {
	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	res, err := s.db.Collection(CollItems).UpdateOne(ctx,
		bson.M{"_id": id, "deleted": bson.M{"$ne": true}},
		bson.M{
			"$pull": bson.M{"comments": bson.M{"_id": commentID}},
			"$set":  bson.M{"updatedAt": time.Now().UTC()},
		})
	observe(CollItems, err)
	if err != nil {
		return nil, apperrors.DatabaseError("remove comment", err)
	}
	if res.MatchedCount == 0 {
		return nil, apperrors.NotFoundError("item")
	}
	if res.ModifiedCount == 0 {
		return nil, apperrors.NotFoundError("comment")
	}
	return s.FindByID(ctx, id)
}

// RollUnfinished moves a sprint's unfinished items (no done date) to the next
// sprint, or back to the backlog when next is nil. Returns how many moved.
func (s *ItemStore) RollUnfinished(ctx context.Context, sprintID primitive.ObjectID, next *primitive.ObjectID) (int64, error) {
	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	filter := bson.M{
		"sprintId":  sprintID,
		"deleted":   bson.M{"$ne": true},
		"done_date": bson.M{"$exists": false},
	}
	cursor, err := s.db.Collection(CollItems).Find(ctx, filter,
		options.Find().SetProjection(bson.M{"_id": 1}))
	observe(CollItems, err)
	if err != nil {
		return 0, apperrors.DatabaseError("find unfinished items", err)
	}
	var docs []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return 0, apperrors.DatabaseError("decode unfinished items", err)
	}
	if len(docs) == 0 {
		return 0, nil
	}

	ids := make([]primitive.ObjectID, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	now := time.Now().UTC()
	// $pull and $addToSet cannot touch the same field in one update, so the
	// move runs as two passes over the collected ids.
	_, err = s.db.Collection(CollItems).UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		bson.M{
			"$pull": bson.M{"sprintId": sprintID},
			"$set":  bson.M{"updatedAt": now},
		})
	observe(CollItems, err)
	if err != nil {
		return 0, apperrors.DatabaseError("pull completed sprint", err)
	}
	if next != nil {
		_, err = s.db.Collection(CollItems).UpdateMany(ctx,
			bson.M{"_id": bson.M{"$in": ids}},
			bson.M{
				"$addToSet": bson.M{"sprintId": *next},
				"$set":      bson.M{"updatedAt": now},
			})
		observe(CollItems, err)
		if err != nil {
			return 0, apperrors.DatabaseError("push next sprint", err)
		}
	}
	return int64(len(ids)), nil
}

// AddRelation writes a relation onto an item and its opposite onto the
// counterpart, so both directions stay consistent.
func (s *ItemStore) AddRelation(ctx context.Context, id primitive.ObjectID, rel domain.ItemRelation) error {
	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	now := time.Now().UTC()

	res, err := s.db.Collection(CollItems).UpdateOne(ctx,
		bson.M{"_id": id, "deleted": bson.M{"$ne": true}},
		bson.M{
			"$addToSet": bson.M{"relations": rel},
			"$set":      bson.M{"updatedAt": now},
		})
	observe(CollItems, err)
	if err != nil {
		return apperrors.DatabaseError("add relation", err)
	}
	if res.MatchedCount == 0 {
		return apperrors.NotFoundError("item")
	}

	counterpart := domain.ItemRelation{Type: rel.Type.Opposite(), ItemID: id}
	res, err = s.db.Collection(CollItems).UpdateOne(ctx,
		bson.M{"_id": rel.ItemID, "deleted": bson.M{"$ne": true}},
		bson.M{
			"$addToSet": bson.M{"relations": counterpart},
			"$set":      bson.M{"updatedAt": now},
		})
	observe(CollItems, err)
	if err != nil {
		return apperrors.DatabaseError("add counterpart relation", err)
	}
	if res.MatchedCount == 0 {
		return apperrors.NotFoundError("related item")
	}
	return nil
}

// RemoveRelation deletes both directions of a relation.
func (s *ItemStore) RemoveRelation(ctx context.Context, id primitive.ObjectID, rel domain.ItemRelation) error {
	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	now := time.Now().UTC()

	_, err := s.db.Collection(CollItems).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$pull": bson.M{"relations": rel},
			"$set":  bson.M{"updatedAt": now},
		})
	observe(CollItems, err)
	if err != nil {
		return apperrors.DatabaseError("remove relation", err)
	}

	counterpart := domain.ItemRelation{Type: rel.Type.Opposite(), ItemID: id}
	_, err = s.db.Collection(CollItems).UpdateOne(ctx,
		bson.M{"_id": rel.ItemID},
		bson.M{
			"$pull": bson.M{"relations": counterpart},
			"$set":  bson.M{"updatedAt": now},
		})
	observe(CollItems, err)
	if err != nil {
		return apperrors.DatabaseError("remove counterpart relation", err)
	}
	return nil
}

// SetHoursLeft records remaining work on an item.
func (s *ItemStore) SetHoursLeft(ctx context.Context, id primitive.ObjectID, hours float64) (*domain.Item, error) {
	return s.Update(ctx, id, bson.M{"hours_left": hours}, nil)
}
