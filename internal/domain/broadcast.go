package domain

import "context"

// Broadcaster fans committed state changes out to connected clients. REST
// handlers receive an injected Broadcaster; they never talk to the transport
// layer directly. Delivery is best-effort and fire-and-forget: callers have
// already committed the underlying mutation and get no delivery feedback.
//
// excludeSubscriber, when non-empty, suppresses delivery to connections owned
// by that subscriber (normally the user who caused the change).
type Broadcaster interface {
	// SendToProject delivers to every connection whose active project scope
	// equals projectID.
	SendToProject(event, projectID string, payload any, excludeSubscriber string)

	// SendToDocument delivers to every connection whose active document scope
	// equals docID.
	SendToDocument(event, docID string, payload any, excludeSubscriber string)

	// SendToUser delivers to the connections of a single subscriber that are
	// currently scoped to projectID.
	SendToUser(event, projectID, subscriberID string, payload any)
}

// EditorStore is the realtime core's view of the document store: just the
// edit-lock field. "Nobody is editing" is an absent value, distinguishable
// from an empty identity.
type EditorStore interface {
	// SetEditor records subscriberID as the current editor of the document.
	SetEditor(ctx context.Context, docID, subscriberID string) error

	// GetEditor returns the current editor and whether one is set.
	GetEditor(ctx context.Context, docID string) (string, bool, error)

	// ClearEditorIfHeldBy clears the lock only if subscriberID still holds it,
	// reporting whether anything was cleared. The conditional write is what
	// keeps a disconnecting stale holder from wiping out a lock someone else
	// claimed in the meantime.
	ClearEditorIfHeldBy(ctx context.Context, docID, subscriberID string) (bool, error)
}
