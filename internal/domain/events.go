package domain

import "encoding/json"

// Control events sent by clients over the realtime channel. They mutate the
// connection's scope tags and never carry domain data.
const (
	EvActiveProjectChanged    = "ACTIVE_PROJECT_CHANGED"
	EvActiveCollabDocChanged  = "ACTIVE_COLLAB_DOC_CHANGED"
	EvActiveCollabDocUnset    = "ACTIVE_COLLAB_DOC_UNSET"
	EvActiveCollabDocEditedBy = "ACTIVE_COLLAB_DOC_EDITED_BY"
)

// Events emitted by the server. The presence and edit-lock events are produced
// by the realtime core itself; the rest are produced by the REST handlers after
// a committed mutation and routed by scope without interpretation.
const (
	EvActiveCollabDocActiveUsers = "ACTIVE_COLLAB_DOC_ACTIVE_USERS"

	EvItemCreated = "ITEM_CREATED"
	EvItemChanged = "ITEM_CHANGED"
	EvItemDeleted = "ITEM_DELETED"

	EvProjectChanged = "PROJECT_CHANGED"

	EvSprintCreated = "SPRINT_CREATED"
	EvSprintChanged = "SPRINT_CHANGED"

	EvCollabDocCreated = "COLLAB_DOC_CREATED"
	EvCollabDocChanged = "COLLAB_DOC_CHANGED"
	EvCollabDocDeleted = "COLLAB_DOC_DELETED"

	EvNewNotification = "NEW_NOTIFICATION"
)

// ControlMessage is one inbound JSON object on the realtime channel.
// Payload is event-specific: a project id or document id string, or absent.
type ControlMessage struct {
	Event   string          `json:"event"`
	UserID  string          `json:"userId"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Envelope is one outbound JSON object on the realtime channel.
type Envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}
