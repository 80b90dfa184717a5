package domain

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestRelationOppositesAreInvolutions(t *testing.T) {
	for from, to := range relationOpposites {
		if got := to.Opposite(); got != from {
			t.Errorf("Opposite(%s) = %s, but Opposite(%s) = %s", from, to, to, got)
		}
	}
}

func TestOppositeOfUnknownRelationFallsBack(t *testing.T) {
	if got := RelationType("NOT_A_RELATION").Opposite(); got != RelatesTo {
		t.Fatalf("got %s, want %s", got, RelatesTo)
	}
}

func TestProjectMemberLookup(t *testing.T) {
	alice := primitive.NewObjectID()
	bob := primitive.NewObjectID()
	p := &Project{Users: []ProjectUser{
		{UserID: alice, Role: RoleOwner},
		{UserID: bob, Role: RoleQA},
	}}

	m, ok := p.Member(bob)
	if !ok || m.Role != RoleQA {
		t.Fatalf("Member(bob) = %+v, %v", m, ok)
	}
	if _, ok := p.Member(primitive.NewObjectID()); ok {
		t.Fatal("expected unknown user to not be a member")
	}
}

func TestProjectHasColumn(t *testing.T) {
	p := &Project{BoardColumns: []string{"To Do", "Done"}}
	if !p.HasColumn("Done") {
		t.Fatal("expected Done to be on the board")
	}
	if p.HasColumn("QA") {
		t.Fatal("expected QA to be missing")
	}
}

func TestCollabDocPath(t *testing.T) {
	root := &CollabDoc{Name: "readme", StructurePath: "/"}
	if got := root.Path(); got != "/readme" {
		t.Fatalf("root path = %q", got)
	}
	nested := &CollabDoc{Name: "notes", StructurePath: "design/api"}
	if got := nested.Path(); got != "/design/api/notes" {
		t.Fatalf("nested path = %q", got)
	}
}
