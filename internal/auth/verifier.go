package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
)

// Verifier turns a raw bearer token into a Principal.
type Verifier interface {
	Verify(ctx context.Context, token string) (Principal, error)
}

// OIDCConfig configures RS256 verification against a JWKS endpoint.
type OIDCConfig struct {
	Issuer   string
	Audience string
	Claims   ClaimMapping
	Leeway   time.Duration
}

// OIDCVerifier checks signature, issuer, audience and expiry.
type OIDCVerifier struct {
	keys   *KeySet
	claims ClaimMapping
	parser *jwt.Parser
}

// NewOIDCVerifier creates a verifier backed by keys.
func NewOIDCVerifier(cfg OIDCConfig, keys *KeySet) *OIDCVerifier {
	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = 30 * time.Second
	}
	return &OIDCVerifier{
		keys:   keys,
		claims: cfg.Claims,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithAudience(cfg.Audience),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(leeway),
			jwt.WithJSONNumber(),
		),
	}
}

// Verify implements Verifier.
func (v *OIDCVerifier) Verify(ctx context.Context, raw string) (Principal, error) {
	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		key, err := v.keys.Key(ctx, kid)
		if err != nil {
			return nil, err
		}
		return key, nil
	})
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	p, err := principalFromClaims(claims, v.claims)
	if err != nil {
		return Principal{}, err
	}
	if p.SubjectID == "" {
		return Principal{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return p, nil
}

// InsecureVerifier accepts any well-formed token without checking its
// signature or expiry. It exists for local development only.
type InsecureVerifier struct {
	claims ClaimMapping
	parser *jwt.Parser
}

// NewInsecureVerifier creates a verifier that trusts token contents.
func NewInsecureVerifier(claims ClaimMapping) *InsecureVerifier {
	return &InsecureVerifier{claims: claims, parser: jwt.NewParser(jwt.WithJSONNumber())}
}

// Verify implements Verifier.
func (v *InsecureVerifier) Verify(_ context.Context, raw string) (Principal, error) {
	claims := jwt.MapClaims{}
	if _, _, err := v.parser.ParseUnverified(raw, claims); err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	p, err := principalFromClaims(claims, v.claims)
	if err != nil {
		return Principal{}, err
	}
	if p.SubjectID == "" {
		p.SubjectID = DevSubject
	}
	return p, nil
}

func principalFromClaims(claims jwt.MapClaims, mapping ClaimMapping) (Principal, error) {
	payload, err := json.Marshal(claims)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return mapping.Principal(payload), nil
}
