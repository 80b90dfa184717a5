package web

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/planline/planline/internal/domain"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func accessFixture() (*domain.Project, primitive.ObjectID, primitive.ObjectID, primitive.ObjectID) {
	owner := primitive.NewObjectID()
	qa := primitive.NewObjectID()
	member := primitive.NewObjectID()
	project := &domain.Project{Users: []domain.ProjectUser{
		{UserID: owner, Role: domain.RoleOwner},
		{UserID: qa, Role: domain.RoleQA},
		{UserID: member, Role: domain.RoleMember},
	}}
	return project, owner, qa, member
}

func TestOpenDocReadableByAnyMember(t *testing.T) {
	project, owner, qa, member := accessFixture()
	doc := &domain.CollabDoc{OwnerID: owner}

	for _, id := range []primitive.ObjectID{owner, qa, member} {
		if !canReadDoc(doc, project, id) {
			t.Fatalf("expected %s to read an unrestricted doc", id.Hex())
		}
	}
}

func TestRestrictedDocFiltersByRoleAndUser(t *testing.T) {
	project, owner, qa, member := accessFixture()
	doc := &domain.CollabDoc{
		OwnerID: owner,
		Roles:   []domain.ProjectRole{domain.RoleQA},
	}

	if !canReadDoc(doc, project, qa) {
		t.Fatal("expected the QA member to read a QA-restricted doc")
	}
	if canReadDoc(doc, project, member) {
		t.Fatal("expected a plain member to be denied")
	}
	// A user allow list grants access regardless of role.
	doc.Users = []primitive.ObjectID{member}
	if !canReadDoc(doc, project, member) {
		t.Fatal("expected the listed user to read the doc")
	}
}

func TestOwnerAlwaysHasAccess(t *testing.T) {
	project, owner, _, member := accessFixture()
	doc := &domain.CollabDoc{
		OwnerID: owner,
		Roles:   []domain.ProjectRole{domain.RoleQA},
		Users:   []primitive.ObjectID{member},
	}

	if !canReadDoc(doc, project, owner) {
		t.Fatal("expected the owner to read their own doc")
	}
	if !canEditDoc(doc, project, owner) {
		t.Fatal("expected the owner to edit their own doc")
	}
}

func TestEditListsTightenReadAccess(t *testing.T) {
	project, owner, qa, member := accessFixture()
	doc := &domain.CollabDoc{
		OwnerID:   owner,
		EditRoles: []domain.ProjectRole{domain.RoleQA},
	}

	if !canEditDoc(doc, project, qa) {
		t.Fatal("expected the QA member to edit")
	}
	if canEditDoc(doc, project, member) {
		t.Fatal("expected a plain member to be denied edit")
	}
	// Without edit lists, edit access follows read access.
	open := &domain.CollabDoc{OwnerID: owner}
	if !canEditDoc(open, project, member) {
		t.Fatal("expected edit to fall back to read rules")
	}
}

func TestClientIPPrefersProxyHeaders(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"

	if got := clientIP(r); got != "10.0.0.1" {
		t.Fatalf("socket fallback = %q", got)
	}

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := clientIP(r); got != "203.0.113.7" {
		t.Fatalf("forwarded-for = %q", got)
	}

	r.Header.Set("X-Real-IP", "198.51.100.9")
	if got := clientIP(r); got != "198.51.100.9" {
		t.Fatalf("real-ip = %q", got)
	}
}

func TestParseObjectIDsRejectsMalformedEntries(t *testing.T) {
	valid := primitive.NewObjectID()
	ids, err := parseObjectIDs([]string{valid.Hex()})
	if err != nil || len(ids) != 1 || ids[0] != valid {
		t.Fatalf("valid parse = %v, %v", ids, err)
	}
	if _, err := parseObjectIDs([]string{valid.Hex(), "nope"}); err == nil {
		t.Fatal("expected malformed id to be rejected")
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"email":"a@b.c","bogus":1}`))
	var dst loginRequest
	if err := decodeJSON(r, &dst); err == nil {
		t.Fatal("expected unknown field to be rejected")
	}
}
