package auth

import (
	"reflect"
	"testing"
)

func TestClaimMappingDefaults(t *testing.T) {
	m := NewClaimMapping("", "")
	if !reflect.DeepEqual(m.Tenant, []string{"tid", "tenantId", "tenant_id"}) {
		t.Fatalf("tenant paths = %v", m.Tenant)
	}
	if !reflect.DeepEqual(m.Roles, []string{"roles", "role"}) {
		t.Fatalf("role paths = %v", m.Roles)
	}
}

func TestClaimMappingPrincipal(t *testing.T) {
	cases := []struct {
		name    string
		mapping ClaimMapping
		payload string
		want    Principal
	}{
		{
			name:    "roles array and tid",
			mapping: NewClaimMapping("", ""),
			payload: `{"sub":"u1","tid":"t1","roles":["USER","ADMIN","USER"],"preferred_username":"a@x.io"}`,
			want:    Principal{SubjectID: "u1", TenantID: "t1", Roles: []string{"USER", "ADMIN"}, Email: "a@x.io"},
		},
		{
			name:    "fallback tenantId and legacy role string",
			mapping: NewClaimMapping("", ""),
			payload: `{"sub":"u2","tenantId":"t2","role":"ADMIN","email":"b@x.io"}`,
			want:    Principal{SubjectID: "u2", TenantID: "t2", Roles: []string{"ADMIN"}, Email: "b@x.io"},
		},
		{
			name:    "empty roles claim wins over legacy role",
			mapping: NewClaimMapping("", ""),
			payload: `{"sub":"u3","tid":"t3","roles":[],"role":"ADMIN"}`,
			want:    Principal{SubjectID: "u3", TenantID: "t3", Roles: []string{}},
		},
		{
			name:    "configured claims take precedence",
			mapping: NewClaimMapping("org", "realm_access.roles"),
			payload: `{"sub":"u4","org":"acme","tid":"ignored","realm_access":{"roles":["OandM"]}}`,
			want:    Principal{SubjectID: "u4", TenantID: "acme", Roles: []string{"OandM"}},
		},
		{
			name:    "no tenant",
			mapping: NewClaimMapping("", ""),
			payload: `{"sub":"u5","roles":["USER"]}`,
			want:    Principal{SubjectID: "u5", Roles: []string{"USER"}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.mapping.Principal([]byte(tc.payload))
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Principal() = %+v, want %+v", got, tc.want)
			}
		})
	}
}
