package realtime

import (
	"context"
	"encoding/json"

	"github.com/planline/planline/internal/domain"
	"github.com/planline/planline/internal/logger"
	"github.com/planline/planline/internal/metrics"
	"go.uber.org/zap"
)

// Hub owns the connection registry and fans events out to the connections
// whose scope matches. It implements domain.Broadcaster for the REST handlers
// and handles the control/lifecycle events coming off the websocket read
// loops.
type Hub struct {
	registry *Registry
	editors  domain.EditorStore
	log      *zap.Logger
}

var _ domain.Broadcaster = (*Hub)(nil)

func NewHub(editors domain.EditorStore) *Hub {
	return &Hub{
		registry: NewRegistry(),
		editors:  editors,
		log:      logger.New("realtime"),
	}
}

// Attach registers a transport and returns the connection id the transport
// layer hands back on every message and on close.
func (h *Hub) Attach(t Transport) string {
	id := h.registry.Register(t)
	metrics.IncrementActiveConnections()
	h.log.Debug("connection registered",
		zap.String("conn_id", id),
		zap.Int("total_connections", h.registry.Len()))
	return id
}

// ConnectionCount reports the number of live connections (health endpoint).
func (h *Hub) ConnectionCount() int {
	return h.registry.Len()
}

// SendToProject delivers {event, payload} to every connection scoped to the
// project, skipping connections owned by excludeSubscriber.
func (h *Hub) SendToProject(event, projectID string, payload any, excludeSubscriber string) {
	h.broadcast(event, payload, func(subscriber, project, _ string) bool {
		if excludeSubscriber != "" && subscriber == excludeSubscriber {
			return false
		}
		return project == projectID
	})
}

// SendToDocument delivers {event, payload} to every connection scoped to the
// document, skipping connections owned by excludeSubscriber.
func (h *Hub) SendToDocument(event, docID string, payload any, excludeSubscriber string) {
	h.broadcast(event, payload, func(subscriber, _, document string) bool {
		if excludeSubscriber != "" && subscriber == excludeSubscriber {
			return false
		}
		return document == docID
	})
}

// SendToUser delivers {event, payload} to the connections of one subscriber
// that are currently scoped to the project.
func (h *Hub) SendToUser(event, projectID, subscriberID string, payload any) {
	h.broadcast(event, payload, func(subscriber, project, _ string) bool {
		return subscriber == subscriberID && project == projectID
	})
}

// broadcast serializes the envelope once, snapshots the matching transports
// under the registry lock, then writes outside it. A failed write to one
// transport never aborts delivery to the rest, and no error reaches the
// caller: the triggering mutation is already committed and the notification
// is advisory.
func (h *Hub) broadcast(event string, payload any, match func(subscriber, projectID, docID string) bool) {
	raw, err := json.Marshal(domain.Envelope{Event: event, Payload: payload})
	if err != nil {
		h.log.Warn("failed to marshal broadcast envelope",
			zap.String("event", event), zap.Error(err))
		return
	}

	targets := h.registry.collect(match)
	for _, t := range targets {
		if err := t.Send(raw); err != nil {
			metrics.IncrementDeliveryFailures()
			h.log.Debug("broadcast delivery failed",
				zap.String("event", event), zap.Error(err))
		}
	}
	metrics.EventsBroadcast.WithLabelValues(event).Add(float64(len(targets)))
}

// broadcastPresence recomputes the presence snapshot for a document and sends
// the full identity list to everyone scoped to it, the announcing connection
// included.
func (h *Hub) broadcastPresence(docID string) {
	users := h.registry.ActiveUsers(docID)
	h.SendToDocument(domain.EvActiveCollabDocActiveUsers, docID, users, "")
}

// HandleControl applies one inbound control message from a connection.
// Messages from a single connection arrive here strictly in order; messages
// from different connections may interleave.
func (h *Hub) HandleControl(ctx context.Context, connID string, msg domain.ControlMessage) {
	switch msg.Event {
	case domain.EvActiveProjectChanged:
		projectID, err := payloadString(msg.Payload)
		if err != nil {
			h.protocolError(connID, msg.Event, err)
			return
		}
		h.registry.SetSubscriber(connID, msg.UserID)
		h.registry.SetProjectScope(connID, projectID)

	case domain.EvActiveCollabDocChanged:
		docID, err := payloadString(msg.Payload)
		if err != nil {
			h.protocolError(connID, msg.Event, err)
			return
		}
		h.registry.SetSubscriber(connID, msg.UserID)
		h.registry.SetDocumentScope(connID, docID)
		h.broadcastPresence(docID)

	case domain.EvActiveCollabDocUnset:
		_, _, oldDoc, _ := h.registry.Scopes(connID)
		h.registry.SetSubscriber(connID, msg.UserID)
		h.registry.SetDocumentScope(connID, "")
		if oldDoc != "" {
			h.broadcastPresence(oldDoc)
		}

	case domain.EvActiveCollabDocEditedBy:
		docID, err := payloadString(msg.Payload)
		if err != nil {
			h.protocolError(connID, msg.Event, err)
			return
		}
		if err := h.editors.SetEditor(ctx, docID, msg.UserID); err != nil {
			// Edit-lock state is best effort, not transactional with
			// presence. Nothing to roll back; the claim is simply not
			// announced.
			h.log.Error("failed to persist edit lock",
				zap.String("doc_id", docID),
				zap.String("subscriber", msg.UserID),
				zap.Error(err))
			return
		}
		h.SendToDocument(domain.EvActiveCollabDocEditedBy, docID, msg.UserID, "")

	default:
		h.protocolError(connID, msg.Event, errUnknownEvent)
	}
}

// HandleDisconnect runs the teardown sequence for a closed connection:
// release the edit lock if this connection's subscriber still holds it,
// unregister, then republish presence for the document it was viewing. The
// editor-store calls run without the registry lock held; a slow store never
// stalls other connections.
func (h *Hub) HandleDisconnect(ctx context.Context, connID string) {
	subscriber, _, docID, ok := h.registry.Scopes(connID)
	if !ok {
		return
	}

	if docID != "" && subscriber != "" {
		editor, set, err := h.editors.GetEditor(ctx, docID)
		switch {
		case err != nil:
			h.log.Error("failed to read edit lock during disconnect",
				zap.String("doc_id", docID), zap.Error(err))
		case set && editor == subscriber:
			// Conditional clear: between the read above and this write
			// another connection may have claimed the lock, and that claim
			// must survive.
			cleared, err := h.editors.ClearEditorIfHeldBy(ctx, docID, subscriber)
			if err != nil {
				h.log.Error("failed to release edit lock during disconnect",
					zap.String("doc_id", docID), zap.Error(err))
			} else if cleared {
				metrics.EditLocksCleared.Inc()
				h.SendToDocument(domain.EvActiveCollabDocEditedBy, docID, nil, "")
			}
		}
	}

	h.registry.Unregister(connID)
	metrics.DecrementActiveConnections()

	if docID != "" {
		h.broadcastPresence(docID)
	}

	h.log.Debug("connection unregistered",
		zap.String("conn_id", connID),
		zap.Int("total_connections", h.registry.Len()))
}

func (h *Hub) protocolError(connID, event string, err error) {
	metrics.IncrementProtocolErrors()
	h.log.Warn("dropping invalid control message",
		zap.String("conn_id", connID),
		zap.String("event", event),
		zap.Error(err))
}
