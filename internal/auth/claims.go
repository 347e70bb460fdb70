package auth

import (
	"strings"

	"github.com/tidwall/gjson"
)

// DevSubject is the subject assigned to insecure-mode tokens without "sub".
const DevSubject = "dev-user"

// ClaimMapping lists, per principal field, the claim paths tried in order.
// Paths use gjson syntax so nested claims such as realm_access.roles work.
type ClaimMapping struct {
	Tenant  []string
	Roles   []string
	Subject []string
	Email   []string
}

// NewClaimMapping builds the lookup order from the configured tenant and role
// claim names. Empty names fall back to "tid" and "roles".
func NewClaimMapping(tenantClaim, roleClaim string) ClaimMapping {
	tenantClaim = strings.TrimSpace(tenantClaim)
	if tenantClaim == "" {
		tenantClaim = "tid"
	}
	roleClaim = strings.TrimSpace(roleClaim)
	if roleClaim == "" {
		roleClaim = "roles"
	}
	return ClaimMapping{
		Tenant:  dedupe([]string{tenantClaim, "tenantId", "tenant_id"}),
		Roles:   dedupe([]string{roleClaim, "roles", "role"}),
		Subject: []string{"sub"},
		Email:   []string{"preferred_username", "upn", "email"},
	}
}

// Principal maps a decoded JWT payload to a Principal. The first role path
// present wins even when it holds an empty list.
func (m ClaimMapping) Principal(payload []byte) Principal {
	return Principal{
		SubjectID: firstString(payload, m.Subject),
		TenantID:  firstString(payload, m.Tenant),
		Roles:     firstStrings(payload, m.Roles),
		Email:     firstString(payload, m.Email),
	}
}

func firstString(payload []byte, paths []string) string {
	for _, p := range paths {
		r := gjson.GetBytes(payload, p)
		if !r.Exists() || r.Type == gjson.Null {
			continue
		}
		if s := strings.TrimSpace(r.String()); s != "" {
			return s
		}
	}
	return ""
}

func firstStrings(payload []byte, paths []string) []string {
	for _, p := range paths {
		r := gjson.GetBytes(payload, p)
		if !r.Exists() || r.Type == gjson.Null {
			continue
		}
		var out []string
		if r.IsArray() {
			for _, v := range r.Array() {
				out = append(out, strings.TrimSpace(v.String()))
			}
		} else {
			out = append(out, strings.TrimSpace(r.String()))
		}
		return dedupe(out)
	}
	return []string{}
}
