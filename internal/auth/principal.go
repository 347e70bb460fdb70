package auth

import (
	"context"

	"github.com/gin-gonic/gin"
)

// ContextPrincipal is the gin context key holding the authenticated Principal.
const ContextPrincipal = "principal"

// Principal is the authenticated caller derived from a verified bearer token.
type Principal struct {
	SubjectID string   `json:"sub"`
	TenantID  string   `json:"tenantId,omitempty"`
	Roles     []string `json:"roles"`
	Email     string   `json:"email,omitempty"`
}

// HasRole reports whether the principal holds role.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored by WithPrincipal.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// SetPrincipal stores p on the gin context and on the request context.
func SetPrincipal(c *gin.Context, p Principal) {
	c.Set(ContextPrincipal, p)
	c.Request = c.Request.WithContext(WithPrincipal(c.Request.Context(), p))
}

// PrincipalFrom returns the principal set by the authentication middleware.
func PrincipalFrom(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(ContextPrincipal)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

// MustPrincipal is PrincipalFrom for handlers mounted behind authentication.
func MustPrincipal(c *gin.Context) Principal {
	return c.MustGet(ContextPrincipal).(Principal)
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
