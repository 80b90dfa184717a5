package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/planline/planline/internal/config"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func testService(ttl time.Duration) *Service {
	return NewService(config.AuthConfig{
		JWTSecret:  "test-secret-at-least-16-bytes",
		TokenTTL:   ttl,
		RefreshTTL: ttl,
		BcryptCost: 4,
	})
}

func TestTokenRoundTrip(t *testing.T) {
	svc := testService(time.Hour)
	userID := primitive.NewObjectID()

	token, err := svc.IssueToken(userID)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	got, err := svc.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if got != userID {
		t.Fatalf("got subject %s, want %s", got.Hex(), userID.Hex())
	}
}

func TestRefreshTokenNotAcceptedAsAccessToken(t *testing.T) {
	svc := testService(time.Hour)
	userID := primitive.NewObjectID()

	refresh, err := svc.IssueRefreshToken(userID)
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}
	if _, err := svc.VerifyToken(refresh); err == nil {
		t.Fatal("expected a refresh token to fail access verification")
	}
	got, err := svc.VerifyRefreshToken(refresh)
	if err != nil {
		t.Fatalf("VerifyRefreshToken: %v", err)
	}
	if got != userID {
		t.Fatalf("got subject %s, want %s", got.Hex(), userID.Hex())
	}
	access, err := svc.IssueToken(userID)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := svc.VerifyRefreshToken(access); err == nil {
		t.Fatal("expected an access token to fail refresh verification")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	svc := testService(-time.Minute)

	token, err := svc.IssueToken(primitive.NewObjectID())
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := svc.VerifyToken(token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestTokenFromDifferentSecretRejected(t *testing.T) {
	issuer := testService(time.Hour)
	verifier := NewService(config.AuthConfig{
		JWTSecret:  "another-secret-16-bytes-long",
		TokenTTL:   time.Hour,
		BcryptCost: 4,
	})

	token, err := issuer.IssueToken(primitive.NewObjectID())
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := verifier.VerifyToken(token); err == nil {
		t.Fatal("expected token signed with a different secret to be rejected")
	}
}

func TestGarbageTokenRejected(t *testing.T) {
	svc := testService(time.Hour)
	if _, err := svc.VerifyToken("not.a.token"); err == nil {
		t.Fatal("expected malformed token to be rejected")
	}
}

func TestPasswordHashAndCheck(t *testing.T) {
	svc := testService(time.Hour)

	hash, err := svc.HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "correct horse battery staple" {
		t.Fatal("hash must not equal the plaintext")
	}
	if !svc.CheckPassword(hash, "correct horse battery staple") {
		t.Fatal("expected matching password to verify")
	}
	if svc.CheckPassword(hash, "wrong password") {
		t.Fatal("expected non-matching password to fail")
	}
}

func TestMiddlewareAcceptsBearerToken(t *testing.T) {
	svc := testService(time.Hour)
	userID := primitive.NewObjectID()
	token, err := svc.IssueToken(userID)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	var got primitive.ObjectID
	var ok bool
	handler := svc.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = UserID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !ok || got != userID {
		t.Fatalf("context user = %v (ok=%v), want %s", got, ok, userID.Hex())
	}
}

func TestMiddlewareAcceptsQueryToken(t *testing.T) {
	svc := testService(time.Hour)
	userID := primitive.NewObjectID()
	token, err := svc.IssueToken(userID)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	var ok bool
	handler := svc.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok = UserID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || !ok {
		t.Fatalf("status = %d, user ok = %v", rec.Code, ok)
	}
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	svc := testService(time.Hour)
	handler := svc.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
