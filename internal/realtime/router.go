package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/planline/planline/internal/domain"
	apperrors "github.com/planline/planline/internal/errors"
)

var errUnknownEvent = apperrors.ProtocolError("unrecognized control event")

// ParseControl decodes one inbound websocket frame into a control message.
// Frames that are not JSON objects with an event name are rejected; the
// caller logs and drops them without tearing the connection down.
func ParseControl(raw []byte) (domain.ControlMessage, error) {
	var msg domain.ControlMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return domain.ControlMessage{}, apperrors.Wrap(err, apperrors.ErrorTypeProtocol, "PROTOCOL_ERROR", "malformed control frame")
	}
	if msg.Event == "" {
		return domain.ControlMessage{}, apperrors.ProtocolError("control frame missing event")
	}
	if msg.UserID == "" {
		return domain.ControlMessage{}, apperrors.ProtocolError("control frame missing userId")
	}
	return msg, nil
}

// payloadString extracts the string payload control events carry (a project
// or document id, or the claiming user id for edit locks).
func payloadString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", apperrors.ProtocolError("control frame missing payload")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", apperrors.ProtocolError(fmt.Sprintf("payload %s is not a string", truncate(raw, 64)))
	}
	if s == "" {
		return "", apperrors.ProtocolError("control frame payload is empty")
	}
	return s, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
