package realtime

import (
	"reflect"
	"sync"
	"testing"
)

type fakeTransport struct {
	mu       sync.Mutex
	messages [][]byte
	sendErr  error
	closed   bool
	reason   string
}

func (f *fakeTransport) Send(msg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	cp := make([]byte, len(msg))
	copy(cp, msg)
	f.messages = append(f.messages, cp)
	return nil
}

func (f *fakeTransport) Close(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.reason = reason
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func (f *fakeTransport) last() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return nil
	}
	return f.messages[len(f.messages)-1]
}

func TestRegisterAssignsUniqueIDs(t *testing.T) {
	reg := NewRegistry()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := reg.Register(&fakeTransport{})
		if id == "" {
			t.Fatal("expected non-empty connection id")
		}
		if seen[id] {
			t.Fatalf("duplicate connection id %q", id)
		}
		seen[id] = true
	}
	if got := reg.Len(); got != 100 {
		t.Fatalf("Len() = %d, want 100", got)
	}
}

func TestScopeMutationsApplyLastWrite(t *testing.T) {
	reg := NewRegistry()
	id := reg.Register(&fakeTransport{})

	reg.SetSubscriber(id, "u1")
	reg.SetProjectScope(id, "p1")
	reg.SetProjectScope(id, "p2")
	reg.SetDocumentScope(id, "d1")
	reg.SetDocumentScope(id, "d2")

	sub, project, doc, ok := reg.Scopes(id)
	if !ok {
		t.Fatal("Scopes() reported unknown connection")
	}
	if sub != "u1" || project != "p2" || doc != "d2" {
		t.Fatalf("Scopes() = (%q, %q, %q), want (u1, p2, d2)", sub, project, doc)
	}
}

func TestScopeMutationOnUnknownIDIsNoop(t *testing.T) {
	reg := NewRegistry()
	id := reg.Register(&fakeTransport{})

	reg.SetSubscriber("nope", "u1")
	reg.SetProjectScope("nope", "p1")
	reg.SetDocumentScope("nope", "d1")

	if _, _, _, ok := reg.Scopes("nope"); ok {
		t.Fatal("Scopes() found a connection that was never registered")
	}
	sub, project, doc, _ := reg.Scopes(id)
	if sub != "" || project != "" || doc != "" {
		t.Fatalf("registered connection mutated by unknown-id writes: (%q, %q, %q)", sub, project, doc)
	}
}

func TestUnregisterRemovesConnection(t *testing.T) {
	reg := NewRegistry()
	id := reg.Register(&fakeTransport{})
	reg.SetSubscriber(id, "u1")

	reg.Unregister(id)

	if _, _, _, ok := reg.Scopes(id); ok {
		t.Fatal("Scopes() found an unregistered connection")
	}
	if got := reg.Len(); got != 0 {
		t.Fatalf("Len() = %d, want 0", got)
	}

	// Double unregister must be harmless.
	reg.Unregister(id)
}

func TestActiveUsersDistinctAndSorted(t *testing.T) {
	reg := NewRegistry()

	add := func(user, doc string) string {
		id := reg.Register(&fakeTransport{})
		reg.SetSubscriber(id, user)
		reg.SetDocumentScope(id, doc)
		return id
	}

	// Two connections for u2 plus one for u1 on the same document, and one
	// unrelated viewer elsewhere.
	add("u2", "d1")
	add("u1", "d1")
	add("u2", "d1")
	add("u3", "d2")

	got := reg.ActiveUsers("d1")
	want := []string{"u1", "u2"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ActiveUsers(d1) = %v, want %v", got, want)
	}
}

func TestActiveUsersSkipsAnonymousConnections(t *testing.T) {
	reg := NewRegistry()

	id := reg.Register(&fakeTransport{})
	reg.SetDocumentScope(id, "d1")

	if got := reg.ActiveUsers("d1"); len(got) != 0 {
		t.Fatalf("ActiveUsers(d1) = %v, want empty for connection without subscriber", got)
	}
}

func TestActiveUsersEmptyDocument(t *testing.T) {
	reg := NewRegistry()
	if got := reg.ActiveUsers("missing"); len(got) != 0 {
		t.Fatalf("ActiveUsers(missing) = %v, want empty", got)
	}
}

func TestCollectMatchesSnapshot(t *testing.T) {
	reg := NewRegistry()

	t1 := &fakeTransport{}
	t2 := &fakeTransport{}
	id1 := reg.Register(t1)
	id2 := reg.Register(t2)
	reg.SetSubscriber(id1, "u1")
	reg.SetProjectScope(id1, "p1")
	reg.SetSubscriber(id2, "u2")
	reg.SetProjectScope(id2, "p2")

	targets := reg.collect(func(_, projectID, _ string) bool {
		return projectID == "p1"
	})
	if len(targets) != 1 {
		t.Fatalf("collect() returned %d transports, want 1", len(targets))
	}
	if err := targets[0].Send([]byte("x")); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if t1.count() != 1 || t2.count() != 0 {
		t.Fatalf("wrong transport collected: t1=%d t2=%d", t1.count(), t2.count())
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := reg.Register(&fakeTransport{})
			reg.SetSubscriber(id, "u")
			reg.SetProjectScope(id, "p")
			reg.SetDocumentScope(id, "d")
			reg.ActiveUsers("d")
			reg.collect(func(_, _, _ string) bool { return true })
			reg.Unregister(id)
		}()
	}
	wg.Wait()

	if got := reg.Len(); got != 0 {
		t.Fatalf("Len() = %d after all goroutines unregistered, want 0", got)
	}
}
