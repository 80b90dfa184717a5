package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/planline/planline/internal/domain"
)

type fakeEditorStore struct {
	mu       sync.Mutex
	editors  map[string]string
	setErr   error
	getErr   error
	clearErr error
}

func newFakeEditorStore() *fakeEditorStore {
	return &fakeEditorStore{editors: make(map[string]string)}
}

func (f *fakeEditorStore) SetEditor(_ context.Context, docID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.editors[docID] = userID
	return nil
}

func (f *fakeEditorStore) GetEditor(_ context.Context, docID string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return "", false, f.getErr
	}
	editor, ok := f.editors[docID]
	return editor, ok, nil
}

func (f *fakeEditorStore) ClearEditorIfHeldBy(_ context.Context, docID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clearErr != nil {
		return false, f.clearErr
	}
	if f.editors[docID] != userID {
		return false, nil
	}
	delete(f.editors, docID)
	return true, nil
}

func (f *fakeEditorStore) editor(docID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.editors[docID]
	return e, ok
}

type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func decodeEnvelopes(t *testing.T, tr *fakeTransport) []envelope {
	t.Helper()
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([]envelope, 0, len(tr.messages))
	for _, raw := range tr.messages {
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("undecodable envelope %q: %v", raw, err)
		}
		out = append(out, env)
	}
	return out
}

func lastEnvelope(t *testing.T, tr *fakeTransport) envelope {
	t.Helper()
	envs := decodeEnvelopes(t, tr)
	if len(envs) == 0 {
		t.Fatal("transport received no messages")
	}
	return envs[len(envs)-1]
}

func control(event, userID string, payload any) domain.ControlMessage {
	raw, _ := json.Marshal(payload)
	return domain.ControlMessage{Event: event, UserID: userID, Payload: raw}
}

// attach registers a transport and applies project and document scope via the
// same control events a client would send.
func attach(t *testing.T, hub *Hub, userID, projectID, docID string) (*fakeTransport, string) {
	t.Helper()
	tr := &fakeTransport{}
	id := hub.Attach(tr)
	if projectID != "" {
		hub.HandleControl(context.Background(), id, control(domain.EvActiveProjectChanged, userID, projectID))
	}
	if docID != "" {
		hub.HandleControl(context.Background(), id, control(domain.EvActiveCollabDocChanged, userID, docID))
	}
	return tr, id
}

func TestSendToProjectScopesAndExclusion(t *testing.T) {
	hub := NewHub(newFakeEditorStore())

	inProject, _ := attach(t, hub, "u1", "p1", "")
	excluded, _ := attach(t, hub, "u2", "p1", "")
	otherProject, _ := attach(t, hub, "u3", "p2", "")
	unscoped := &fakeTransport{}
	hub.Attach(unscoped)

	hub.SendToProject("ITEM_CREATED", "p1", map[string]string{"id": "i1"}, "u2")

	if inProject.count() != 1 {
		t.Fatalf("in-project transport received %d messages, want 1", inProject.count())
	}
	if env := lastEnvelope(t, inProject); env.Event != "ITEM_CREATED" {
		t.Fatalf("event = %q, want ITEM_CREATED", env.Event)
	}
	if excluded.count() != 0 {
		t.Fatalf("excluded subscriber received %d messages, want 0", excluded.count())
	}
	if otherProject.count() != 0 {
		t.Fatalf("other-project transport received %d messages, want 0", otherProject.count())
	}
	if unscoped.count() != 0 {
		t.Fatalf("unscoped transport received %d messages, want 0", unscoped.count())
	}
}

func TestSendToUserTargetsAllConnectionsOfOneSubscriber(t *testing.T) {
	hub := NewHub(newFakeEditorStore())

	first, _ := attach(t, hub, "u1", "p1", "")
	second, _ := attach(t, hub, "u1", "p1", "")
	other, _ := attach(t, hub, "u2", "p1", "")
	elsewhere, _ := attach(t, hub, "u1", "p2", "")

	hub.SendToUser("NEW_NOTIFICATION", "p1", "u1", map[string]string{"id": "n1"})

	if first.count() != 1 || second.count() != 1 {
		t.Fatalf("subscriber connections received (%d, %d) messages, want (1, 1)", first.count(), second.count())
	}
	if other.count() != 0 {
		t.Fatalf("other subscriber received %d messages, want 0", other.count())
	}
	if elsewhere.count() != 0 {
		t.Fatalf("subscriber connection in another project received %d messages, want 0", elsewhere.count())
	}
}

func TestUnregisteredConnectionUnreachable(t *testing.T) {
	hub := NewHub(newFakeEditorStore())

	tr, id := attach(t, hub, "u1", "p1", "")
	hub.HandleDisconnect(context.Background(), id)
	before := tr.count()

	hub.SendToProject("ITEM_CHANGED", "p1", nil, "")

	if tr.count() != before {
		t.Fatalf("disconnected transport received a broadcast")
	}
}

func TestDocumentChangeBroadcastsPresence(t *testing.T) {
	hub := NewHub(newFakeEditorStore())

	first, _ := attach(t, hub, "u2", "p1", "d1")
	second, _ := attach(t, hub, "u1", "p1", "d1")

	// The second join announces presence to both, the announcing
	// connection included.
	env := lastEnvelope(t, first)
	if env.Event != domain.EvActiveCollabDocActiveUsers {
		t.Fatalf("event = %q, want %q", env.Event, domain.EvActiveCollabDocActiveUsers)
	}
	var users []string
	if err := json.Unmarshal(env.Payload, &users); err != nil {
		t.Fatalf("presence payload: %v", err)
	}
	want := []string{"u1", "u2"}
	if len(users) != 2 || users[0] != want[0] || users[1] != want[1] {
		t.Fatalf("presence = %v, want %v", users, want)
	}

	selfEnv := lastEnvelope(t, second)
	if selfEnv.Event != domain.EvActiveCollabDocActiveUsers {
		t.Fatalf("announcing connection got %q, want presence", selfEnv.Event)
	}
}

func TestPresenceIdempotentUnderRepeatedJoins(t *testing.T) {
	hub := NewHub(newFakeEditorStore())

	tr, id := attach(t, hub, "u1", "p1", "d1")
	attach(t, hub, "u2", "p1", "d1")

	// Re-announcing the same document must not change the set.
	hub.HandleControl(context.Background(), id, control(domain.EvActiveCollabDocChanged, "u1", "d1"))

	var users []string
	env := lastEnvelope(t, tr)
	if err := json.Unmarshal(env.Payload, &users); err != nil {
		t.Fatalf("presence payload: %v", err)
	}
	if len(users) != 2 || users[0] != "u1" || users[1] != "u2" {
		t.Fatalf("presence = %v, want [u1 u2]", users)
	}
}

func TestDocumentUnsetRepublishesToFormerDocument(t *testing.T) {
	hub := NewHub(newFakeEditorStore())

	stayer, _ := attach(t, hub, "u1", "p1", "d1")
	leaver, leaverID := attach(t, hub, "u2", "p1", "d1")

	hub.HandleControl(context.Background(), leaverID, control(domain.EvActiveCollabDocUnset, "u2", nil))

	env := lastEnvelope(t, stayer)
	if env.Event != domain.EvActiveCollabDocActiveUsers {
		t.Fatalf("event = %q, want presence update", env.Event)
	}
	var users []string
	if err := json.Unmarshal(env.Payload, &users); err != nil {
		t.Fatalf("presence payload: %v", err)
	}
	if len(users) != 1 || users[0] != "u1" {
		t.Fatalf("presence = %v, want [u1]", users)
	}

	// The leaver no longer receives document-scoped traffic.
	before := leaver.count()
	hub.SendToDocument("COLLAB_DOC_CHANGED", "d1", nil, "")
	if leaver.count() != before {
		t.Fatal("connection that unset its document still receives document traffic")
	}
}

func TestEditClaimPersistsThenBroadcasts(t *testing.T) {
	store := newFakeEditorStore()
	hub := NewHub(store)

	viewer, _ := attach(t, hub, "u1", "p1", "d1")
	_, editorID := attach(t, hub, "u2", "p1", "d1")

	hub.HandleControl(context.Background(), editorID, control(domain.EvActiveCollabDocEditedBy, "u2", "d1"))

	if editor, ok := store.editor("d1"); !ok || editor != "u2" {
		t.Fatalf("stored editor = (%q, %v), want (u2, true)", editor, ok)
	}

	env := lastEnvelope(t, viewer)
	if env.Event != domain.EvActiveCollabDocEditedBy {
		t.Fatalf("event = %q, want %q", env.Event, domain.EvActiveCollabDocEditedBy)
	}
	var claimed string
	if err := json.Unmarshal(env.Payload, &claimed); err != nil {
		t.Fatalf("editor payload: %v", err)
	}
	if claimed != "u2" {
		t.Fatalf("claimed editor = %q, want u2", claimed)
	}
}

func TestEditClaimNotBroadcastOnStoreFailure(t *testing.T) {
	store := newFakeEditorStore()
	store.setErr = errors.New("write failed")
	hub := NewHub(store)

	viewer, _ := attach(t, hub, "u1", "p1", "d1")
	_, editorID := attach(t, hub, "u2", "p1", "d1")
	before := viewer.count()

	hub.HandleControl(context.Background(), editorID, control(domain.EvActiveCollabDocEditedBy, "u2", "d1"))

	if viewer.count() != before {
		t.Fatal("edit claim broadcast despite persistence failure")
	}
}

func TestDisconnectClearsOwnEditLock(t *testing.T) {
	store := newFakeEditorStore()
	hub := NewHub(store)

	viewer, _ := attach(t, hub, "u1", "p1", "d1")
	_, editorID := attach(t, hub, "u2", "p1", "d1")

	hub.HandleControl(context.Background(), editorID, control(domain.EvActiveCollabDocEditedBy, "u2", "d1"))
	hub.HandleDisconnect(context.Background(), editorID)

	if _, ok := store.editor("d1"); ok {
		t.Fatal("edit lock survived its holder's disconnect")
	}

	envs := decodeEnvelopes(t, viewer)
	var sawUnset, sawPresence bool
	for _, env := range envs {
		switch env.Event {
		case domain.EvActiveCollabDocEditedBy:
			if string(env.Payload) == "null" {
				sawUnset = true
			}
		case domain.EvActiveCollabDocActiveUsers:
			var users []string
			_ = json.Unmarshal(env.Payload, &users)
			if len(users) == 1 && users[0] == "u1" {
				sawPresence = true
			}
		}
	}
	if !sawUnset {
		t.Fatal("no EDITED_BY null broadcast after holder disconnected")
	}
	if !sawPresence {
		t.Fatal("no presence republish after holder disconnected")
	}
}

func TestDisconnectDoesNotClearNewerHoldersLock(t *testing.T) {
	store := newFakeEditorStore()
	hub := NewHub(store)

	viewer, _ := attach(t, hub, "u1", "p1", "d1")
	_, aID := attach(t, hub, "uA", "p1", "d1")
	_, bID := attach(t, hub, "uB", "p1", "d1")

	hub.HandleControl(context.Background(), aID, control(domain.EvActiveCollabDocEditedBy, "uA", "d1"))
	// B takes over before A's disconnect teardown runs.
	hub.HandleControl(context.Background(), bID, control(domain.EvActiveCollabDocEditedBy, "uB", "d1"))
	hub.HandleDisconnect(context.Background(), aID)

	if editor, ok := store.editor("d1"); !ok || editor != "uB" {
		t.Fatalf("editor after A's disconnect = (%q, %v), want (uB, true)", editor, ok)
	}

	// No null EDITED_BY may have been broadcast after B's claim.
	envs := decodeEnvelopes(t, viewer)
	sawBClaim := false
	for _, env := range envs {
		if env.Event != domain.EvActiveCollabDocEditedBy {
			continue
		}
		if string(env.Payload) == `"uB"` {
			sawBClaim = true
			continue
		}
		if sawBClaim && string(env.Payload) == "null" {
			t.Fatal("A's disconnect revoked B's newer edit lock")
		}
	}
	if !sawBClaim {
		t.Fatal("B's claim was never broadcast")
	}
}

func TestDisconnectWithoutDocumentSkipsLockStore(t *testing.T) {
	store := newFakeEditorStore()
	store.getErr = errors.New("must not be called")
	hub := NewHub(store)

	_, id := attach(t, hub, "u1", "p1", "")
	hub.HandleDisconnect(context.Background(), id)

	if got := hub.ConnectionCount(); got != 0 {
		t.Fatalf("ConnectionCount() = %d, want 0", got)
	}
}

func TestBroadcastSurvivesFailingTransport(t *testing.T) {
	hub := NewHub(newFakeEditorStore())

	broken := &fakeTransport{sendErr: errors.New("pipe closed")}
	brokenID := hub.Attach(broken)
	hub.HandleControl(context.Background(), brokenID, control(domain.EvActiveProjectChanged, "u1", "p1"))

	healthy, _ := attach(t, hub, "u2", "p1", "")

	hub.SendToProject("PROJECT_CHANGED", "p1", nil, "")

	if healthy.count() != 1 {
		t.Fatalf("healthy transport received %d messages, want 1", healthy.count())
	}
}

func TestMalformedControlFramesDropped(t *testing.T) {
	hub := NewHub(newFakeEditorStore())
	_, id := attach(t, hub, "u1", "p1", "")

	// Unknown event and non-string payload must both be ignored without
	// affecting the connection's scope.
	hub.HandleControl(context.Background(), id, control("BOGUS_EVENT", "u1", "x"))
	hub.HandleControl(context.Background(), id, control(domain.EvActiveCollabDocChanged, "u1", 42))

	sub, project, doc, ok := hub.registry.Scopes(id)
	if !ok || sub != "u1" || project != "p1" || doc != "" {
		t.Fatalf("scope after malformed frames = (%q, %q, %q, %v), want (u1, p1, \"\", true)", sub, project, doc, ok)
	}
}

func TestParseControl(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"valid", `{"event":"ACTIVE_PROJECT_CHANGED","userId":"u1","payload":"p1"}`, false},
		{"missing event", `{"userId":"u1","payload":"p1"}`, true},
		{"missing user", `{"event":"ACTIVE_PROJECT_CHANGED","payload":"p1"}`, true},
		{"not json", `hello`, true},
		{"array frame", `["EVENT","x"]`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseControl([]byte(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseControl(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
		})
	}
}
