package storage

import (
	"context"
	"time"

	"github.com/planline/planline/internal/domain"
	apperrors "github.com/planline/planline/internal/errors"
	"github.com/planline/planline/internal/metrics"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// NotificationStore persists per-user notifications.
type NotificationStore struct {
	db *DB
}

func NewNotificationStore(db *DB) *NotificationStore {
	return &NotificationStore{db: db}
}

func (s *NotificationStore) Create(ctx context.Context, n *domain.Notification) error {
	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	n.CreatedAt = time.Now().UTC()
	n.IsRead = false

	res, err := s.db.Collection(CollNotifications).InsertOne(ctx, n)
	observe(CollNotifications, err)
	if err != nil {
		return apperrors.DatabaseError("insert notification", err)
	}
	n.ID = res.InsertedID.(primitive.ObjectID)
	metrics.NotificationsCreated.Inc()
	return nil
}

// ListForUser returns the user's notifications, newest first, capped at limit
// (50 when limit is not positive).
func (s *NotificationStore) ListForUser(ctx context.Context, userID primitive.ObjectID, limit int64) ([]domain.Notification, error) {
	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(limit)
	cursor, err := s.db.Collection(CollNotifications).Find(ctx, bson.M{"userId": userID}, opts)
	observe(CollNotifications, err)
	if err != nil {
		return nil, apperrors.DatabaseError("list notifications", err)
	}
	defer cursor.Close(ctx)

	var list []domain.Notification
	if err := cursor.All(ctx, &list); err != nil {
		return nil, apperrors.DatabaseError("decode notifications", err)
	}
	return list, nil
}

// UnreadCount reports how many notifications the user has not read yet.
func (s *NotificationStore) UnreadCount(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	n, err := s.db.Collection(CollNotifications).CountDocuments(ctx,
		bson.M{"userId": userID, "is_read": false})
	observe(CollNotifications, err)
	if err != nil {
		return 0, apperrors.DatabaseError("count notifications", err)
	}
	return n, nil
}

// MarkRead flags one notification as read. The filter includes the owner so a
// user cannot mark someone else's notification.
func (s *NotificationStore) MarkRead(ctx context.Context, id, userID primitive.ObjectID) error {
	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	res, err := s.db.Collection(CollNotifications).UpdateOne(ctx,
		bson.M{"_id": id, "userId": userID},
		bson.M{"$set": bson.M{"is_read": true}})
	observe(CollNotifications, err)
	if err != nil {
		return apperrors.DatabaseError("mark notification read", err)
	}
	if res.MatchedCount == 0 {
		return apperrors.NotFoundError("notification")
	}
	return nil
}

// MarkAllRead flags every unread notification of the user as read.
func (s *NotificationStore) MarkAllRead(ctx context.Context, userID primitive.ObjectID) error {
	ctx, cancel := s.db.opContext(ctx)
	defer cancel()

	_, err := s.db.Collection(CollNotifications).UpdateMany(ctx,
		bson.M{"userId": userID, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true}})
	observe(CollNotifications, err)
	if err != nil {
		return apperrors.DatabaseError("mark notifications read", err)
	}
	return nil
}
