package workers

import (
	"context"
	"time"

	"github.com/planline/planline/internal/domain"
	apperrors "github.com/planline/planline/internal/errors"
	"github.com/planline/planline/internal/logger"
	"github.com/planline/planline/internal/storage"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Recorder writes audit entries and fans out notifications off the request
// path. Handlers call it after committing a mutation; a full queue or a
// failed write is logged and otherwise invisible to the client.
type Recorder struct {
	pool          *Pool
	audit         *storage.AuditStore
	notifications *storage.NotificationStore
	broadcaster   domain.Broadcaster
	log           *zap.Logger
}

func NewRecorder(pool *Pool, audit *storage.AuditStore, notifications *storage.NotificationStore, broadcaster domain.Broadcaster) *Recorder {
	return &Recorder{
		pool:          pool,
		audit:         audit,
		notifications: notifications,
		broadcaster:   broadcaster,
		log:           logger.New("activity"),
	}
}

// jobTimeout bounds each background write independently of the request that
// triggered it.
const jobTimeout = 10 * time.Second

// RecordLog appends an audit entry asynchronously. A transient write failure
// gets one retry before the entry is given up on.
func (r *Recorder) RecordLog(entry domain.AuditLog) {
	ok := r.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		err := r.audit.Insert(ctx, &entry)
		if err != nil && apperrors.IsRecoverable(err) {
			err = r.audit.Insert(ctx, &entry)
		}
		if err != nil {
			r.log.Error("failed to write audit entry",
				zap.String("entity", string(entry.Entity)),
				zap.String("action", string(entry.Action)),
				zap.Error(err))
		}
	})
	if !ok {
		r.log.Warn("audit queue full, entry dropped",
			zap.String("entity", string(entry.Entity)),
			zap.String("action", string(entry.Action)))
	}
}

// Notify persists a notification and pushes it to the recipient's live
// connections in the project.
func (r *Recorder) Notify(n domain.Notification) {
	ok := r.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		if err := r.notifications.Create(ctx, &n); err != nil {
			r.log.Error("failed to create notification",
				zap.String("user_id", n.UserID.Hex()),
				zap.Error(err))
			return
		}
		r.broadcaster.SendToUser(domain.EvNewNotification,
			n.ProjectID.Hex(), n.UserID.Hex(), n)
	})
	if !ok {
		r.log.Warn("notification queue full, notification dropped",
			zap.String("user_id", n.UserID.Hex()))
	}
}

// NotifyAll sends the same notification to several users, skipping the
// originator.
func (r *Recorder) NotifyAll(userIDs []string, template domain.Notification) {
	origin := ""
	if template.TriggerID != nil {
		origin = template.TriggerID.Hex()
	}
	for _, id := range userIDs {
		if id == origin {
			continue
		}
		uid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			continue
		}
		n := template
		n.UserID = uid
		r.Notify(n)
	}
}
