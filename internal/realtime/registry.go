package realtime

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Transport is the write side of one live client connection. Implementations
// must tolerate concurrent Send calls and must never block a broadcast sweep
// indefinitely.
type Transport interface {
	// Send writes one serialized message, best effort.
	Send(msg []byte) error

	// Close tears the transport down. Safe to call more than once.
	Close(reason string)
}

// Conn is the registry's record of a live connection: the transport handle
// plus the mutable scope tags the client announces. The zero values of the
// tags mean "not announced yet". All fields are guarded by the owning
// registry's lock; the only way to read or mutate a Conn is through Registry
// methods keyed by its opaque id.
type Conn struct {
	id         string
	transport  Transport
	subscriber string
	project    string
	document   string
}

// ID returns the opaque id assigned at registration.
func (c *Conn) ID() string { return c.id }

// Registry is the single shared-mutable-state structure of the realtime
// layer: the set of live connections. Membership changes, tag mutation and
// broadcast iteration all run under one RWMutex so a sweep never observes a
// connection mid-mutation or after removal.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Conn
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Conn)}
}

// Register adds a transport and returns the opaque connection id used for all
// subsequent registry calls.
func (r *Registry) Register(t Transport) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.conns[id] = &Conn{id: id, transport: t}
	r.mu.Unlock()
	return id
}

// Unregister removes the connection. The id becomes permanently unreachable:
// later mutations are no-ops and later broadcasts cannot select it, even if a
// caller kept the id around.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	delete(r.conns, id)
	r.mu.Unlock()
}

// SetSubscriber tags the connection with its authenticated user identity.
// Unknown ids are ignored; disconnect races make them routine, not errors.
func (r *Registry) SetSubscriber(id, subscriber string) {
	r.mu.Lock()
	if c, ok := r.conns[id]; ok {
		c.subscriber = subscriber
	}
	r.mu.Unlock()
}

// SetProjectScope records which project the connection is viewing.
func (r *Registry) SetProjectScope(id, projectID string) {
	r.mu.Lock()
	if c, ok := r.conns[id]; ok {
		c.project = projectID
	}
	r.mu.Unlock()
}

// SetDocumentScope records which collaborative document the connection is
// viewing. Empty string clears the scope.
func (r *Registry) SetDocumentScope(id, docID string) {
	r.mu.Lock()
	if c, ok := r.conns[id]; ok {
		c.document = docID
	}
	r.mu.Unlock()
}

// Scopes returns the connection's current subscriber identity and scopes.
func (r *Registry) Scopes(id string) (subscriber, projectID, docID string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	if !ok {
		return "", "", "", false
	}
	return c.subscriber, c.project, c.document, true
}

// Len reports the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// ActiveUsers computes the presence snapshot for a document: the distinct
// subscriber identities currently scoped to it, sorted for deterministic
// output. Two tabs of the same user count once. The snapshot is derived on
// every call, never cached.
func (r *Registry) ActiveUsers(docID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	users := make([]string, 0, 4)
	for _, c := range r.conns {
		if c.document != docID || c.subscriber == "" {
			continue
		}
		if _, dup := seen[c.subscriber]; dup {
			continue
		}
		seen[c.subscriber] = struct{}{}
		users = append(users, c.subscriber)
	}
	sort.Strings(users)
	return users
}

// collect snapshots the transports of all connections matching the predicate.
// The predicate runs under the read lock; writes to the returned transports
// happen after the lock is released so a slow client cannot stall the
// registry.
func (r *Registry) collect(match func(subscriber, projectID, docID string) bool) []Transport {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var targets []Transport
	for _, c := range r.conns {
		if match(c.subscriber, c.project, c.document) {
			targets = append(targets, c.transport)
		}
	}
	return targets
}
