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

// CollabDocStore persists collaborative documents, including the single
// holder edit lock the realtime layer drives.
type CollabDocStore struct {
	db *DB
}

func NewCollabDocStore(db *DB) *CollabDocStore {
	return &CollabDocStore{db: db}
}

var _ domain.EditorStore = (*CollabDocStore)(nil)

func (s *CollabDocStore) Create(ctx context.Context, doc *domain.CollabDoc) error {
	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if doc.StructurePath == "" {
		doc.StructurePath = "/"
	}

	res, err := s.db.Collection(CollCollabDocs).InsertOne(ctx, doc)
	observe(CollCollabDocs, err)
	if err != nil {
		return apperrors.DatabaseError("insert document", err)
	}
	doc.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

func (s *CollabDocStore) FindByID(ctx context.Context, id primitive.ObjectID) (*domain.CollabDoc, error) {
	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	var doc domain.CollabDoc
	err := s.db.Collection(CollCollabDocs).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	observe(CollCollabDocs, err)
	if err == mongo.ErrNoDocuments {
		return nil, apperrors.NotFoundError("document")
	}
	if err != nil {
		return nil, apperrors.DatabaseError("find document", err)
	}
	return &doc, nil
}

// ListForProject returns a project's documents ordered by path then name, so
// the tree renders stably.
func (s *CollabDocStore) ListForProject(ctx context.Context, projectID primitive.ObjectID) ([]domain.CollabDoc, error) {
	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "structure_path", Value: 1}, {Key: "name", Value: 1}})
	cursor, err := s.db.Collection(CollCollabDocs).Find(ctx, bson.M{"projectId": projectID}, opts)
	observe(CollCollabDocs, err)
	if err != nil {
		return nil, apperrors.DatabaseError("list documents", err)
	}
	defer cursor.Close(ctx)

	var docs []domain.CollabDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, apperrors.DatabaseError("decode documents", err)
	}
	return docs, nil
}

// Update applies a partial update and returns the fresh document.
func (s *CollabDocStore) Update(ctx context.Context, id primitive.ObjectID, set bson.M) (*domain.CollabDoc, error) {
	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	set["updatedAt"] = time.Now().UTC()
	res, err := s.db.Collection(CollCollabDocs).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	observe(CollCollabDocs, err)
	if err != nil {
		return nil, apperrors.DatabaseError("update document", err)
	}
	if res.MatchedCount == 0 {
		return nil, apperrors.NotFoundError("document")
	}
	return s.FindByID(ctx, id)
}

// Delete removes a document. Folders take their subtree with them: every
// document whose path starts with the folder's path is removed too.
func (s *CollabDocStore) Delete(ctx context.Context, doc *domain.CollabDoc) error {
	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	_, err := s.db.Collection(CollCollabDocs).DeleteOne(ctx, bson.M{"_id": doc.ID})
	observe(CollCollabDocs, err)
	if err != nil {
		return apperrors.DatabaseError("delete document", err)
	}

	if doc.IsFolder {
		prefix := doc.StructurePath
		if prefix == "/" {
			prefix = doc.Name
		} else {
			prefix = prefix + "/" + doc.Name
		}
		_, err = s.db.Collection(CollCollabDocs).DeleteMany(ctx, bson.M{
			"projectId":      doc.ProjectID,
			"structure_path": bson.M{"$regex": "^" + prefix},
		})
		observe(CollCollabDocs, err)
		if err != nil {
			return apperrors.DatabaseError("delete folder contents", err)
		}
	}
	return nil
}

/* ------------------------------------------------------------------ *
|  Edit lock (domain.EditorStore)                                     |
* -------------------------------------------------------------------*/

// SetEditor records the current editor of a document.
func (s *CollabDocStore) SetEditor(ctx context.Context, docID, subscriberID string) error {
	id, err := primitive.ObjectIDFromHex(docID)
	if err != nil {
		return apperrors.ValidationError("INVALID_ID", "malformed document id")
	}
	editor, err := primitive.ObjectIDFromHex(subscriberID)
	if err != nil {
		return apperrors.ValidationError("INVALID_ID", "malformed user id")
	}

	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	res, err := s.db.Collection(CollCollabDocs).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"is_edited_by": editor}})
	observe(CollCollabDocs, err)
	if err != nil {
		return apperrors.DatabaseError("set editor", err)
	}
	if res.MatchedCount == 0 {
		return apperrors.NotFoundError("document")
	}
	return nil
}

// GetEditor returns the current editor and whether one is set.
func (s *CollabDocStore) GetEditor(ctx context.Context, docID string) (string, bool, error) {
	id, err := primitive.ObjectIDFromHex(docID)
	if err != nil {
		return "", false, apperrors.ValidationError("INVALID_ID", "malformed document id")
	}

	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	var doc struct {
		EditedBy *primitive.ObjectID `bson:"is_edited_by"`
	}
	opts := options.FindOne().SetProjection(bson.M{"is_edited_by": 1})
	err = s.db.Collection(CollCollabDocs).FindOne(ctx, bson.M{"_id": id}, opts).Decode(&doc)
	observe(CollCollabDocs, err)
	if err == mongo.ErrNoDocuments {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperrors.DatabaseError("get editor", err)
	}
	if doc.EditedBy == nil {
		return "", false, nil
	}
	return doc.EditedBy.Hex(), true, nil
}

// ClearEditorIfHeldBy unsets the lock only when subscriberID still holds it.
// The filter carries the expected holder, so the read-check-write sequence a
// disconnecting connection runs cannot revoke a lock someone else claimed in
// between.
func (s *CollabDocStore) ClearEditorIfHeldBy(ctx context.Context, docID, subscriberID string) (bool, error) {
	id, err := primitive.ObjectIDFromHex(docID)
	if err != nil {
		return false, apperrors.ValidationError("INVALID_ID", "malformed document id")
	}
	holder, err := primitive.ObjectIDFromHex(subscriberID)
	if err != nil {
		return false, apperrors.ValidationError("INVALID_ID", "malformed user id")
	}

	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	res, err := s.db.Collection(CollCollabDocs).UpdateOne(ctx,
		bson.M{"_id": id, "is_edited_by": holder},
		bson.M{"$unset": bson.M{"is_edited_by": ""}})
	observe(CollCollabDocs, err)
	if err != nil {
		return false, apperrors.DatabaseError("clear editor", err)
	}
	return res.ModifiedCount > 0, nil
}
