package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken indicates the bearer token failed validation.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the JWT payload issued by the external authentication service.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 bearer tokens into verified identities.
type Verifier struct {
	secret []byte
}

// NewVerifier builds a verifier for the shared signing secret.
func NewVerifier(secret []byte) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("signing secret is not configured")
	}
	return &Verifier{secret: secret}, nil
}

// GenerateToken signs a token for the given identity. Production tokens come
// from the external auth service; this exists for tests and local tooling.
func (v *Verifier) GenerateToken(id Identity, ttl time.Duration) (string, error) {
	if strings.TrimSpace(id.UserID) == "" {
		return "", errors.New("user id is required")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be greater than zero")
	}
	now := time.Now().UTC()
	claims := Claims{
		UserID: id.UserID,
		Email:  id.Email,
		Role:   NormalizeRole(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseAndValidate verifies the token signature and claims and returns the
// verified identity.
func (v *Verifier) ParseAndValidate(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	if err := validateClaims(claims); err != nil {
		return Identity{}, ErrInvalidToken
	}
	return Identity{
		UserID: claims.UserID,
		Email:  strings.TrimSpace(claims.Email),
		Role:   NormalizeRole(claims.Role),
	}, nil
}

func validateClaims(claims *Claims) error {
	if strings.TrimSpace(claims.UserID) == "" {
		return errors.New("user_id missing")
	}
	if !ValidRole(NormalizeRole(claims.Role)) {
		return fmt.Errorf("unknown role: %s", claims.Role)
	}
	if claims.ExpiresAt == nil {
		return errors.New("expiry missing")
	}
	now := time.Now().UTC()
	if now.After(claims.ExpiresAt.Time) {
		return errors.New("token expired")
	}
	// Allow a small clock skew of 5 seconds when validating issued-at.
	if claims.IssuedAt != nil && claims.IssuedAt.Time.After(now.Add(5*time.Second)) {
		return errors.New("token issued in the future")
	}
	return nil
}
