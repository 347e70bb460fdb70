package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// IssuedClaims is the payload of locally issued login tokens. Field names
// match the default claim mapping.
type IssuedClaims struct {
	TenantID string   `json:"tenantId"`
	Roles    []string `json:"roles"`
	Email    string   `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs login tokens for the local development login flow.
type TokenIssuer struct {
	secret      []byte
	expireHours int
	now         func() time.Time
}

// NewTokenIssuer creates a token issuer.
func NewTokenIssuer(secret string, expireHours int) *TokenIssuer {
	if expireHours <= 0 {
		expireHours = 8
	}
	return &TokenIssuer{secret: []byte(secret), expireHours: expireHours, now: time.Now}
}

// Issue creates a signed token for the principal.
func (s *TokenIssuer) Issue(p Principal) (string, error) {
	now := s.now()
	claims := IssuedClaims{
		TenantID: p.TenantID,
		Roles:    p.Roles,
		Email:    p.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.SubjectID,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(s.expireHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}
