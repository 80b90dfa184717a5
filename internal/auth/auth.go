package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/planline/planline/internal/config"
	apperrors "github.com/planline/planline/internal/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

// Service issues and verifies access tokens and hashes credentials.
type Service struct {
	secret     []byte
	tokenTTL   time.Duration
	refreshTTL time.Duration
	bcryptCost int
}

func NewService(cfg config.AuthConfig) *Service {
	return &Service{
		secret:     []byte(cfg.JWTSecret),
		tokenTTL:   cfg.TokenTTL,
		refreshTTL: cfg.RefreshTTL,
		bcryptCost: cfg.BcryptCost,
	}
}

// HashPassword returns the bcrypt hash of a plaintext password.
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", apperrors.InternalError("failed to hash password", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether the plaintext matches the stored hash.
func (s *Service) CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Token audiences separate short-lived access tokens from long-lived
// refresh tokens, so one can never be presented as the other.
const (
	audienceAccess  = "planline:access"
	audienceRefresh = "planline:refresh"
)

type claims struct {
	jwt.RegisteredClaims
}

// IssueToken creates a signed access token for the user.
func (s *Service) IssueToken(userID primitive.ObjectID) (string, error) {
	return s.issue(userID, audienceAccess, s.tokenTTL)
}

// IssueRefreshToken creates a long-lived token that can only be exchanged
// for a new token pair. Each one carries a unique id.
func (s *Service) IssueRefreshToken(userID primitive.ObjectID) (string, error) {
	return s.issue(userID, audienceRefresh, s.refreshTTL)
}

func (s *Service) issue(userID primitive.ObjectID, audience string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID.Hex(),
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", apperrors.InternalError("failed to sign token", err)
	}
	return signed, nil
}

// VerifyToken validates an access token and returns the user it belongs to.
func (s *Service) VerifyToken(tokenString string) (primitive.ObjectID, error) {
	return s.verify(tokenString, audienceAccess)
}

// VerifyRefreshToken validates a refresh token and returns its user.
func (s *Service) VerifyRefreshToken(tokenString string) (primitive.ObjectID, error) {
	return s.verify(tokenString, audienceRefresh)
}

func (s *Service) verify(tokenString, audience string) (primitive.ObjectID, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperrors.AuthenticationError("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithAudience(audience))
	if err != nil || !token.Valid {
		return primitive.NilObjectID, apperrors.AuthenticationError("invalid or expired token")
	}
	userID, err := primitive.ObjectIDFromHex(c.Subject)
	if err != nil {
		return primitive.NilObjectID, apperrors.AuthenticationError("malformed token subject")
	}
	return userID, nil
}
