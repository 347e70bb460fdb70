package access

import (
	"fmt"
	"sort"

	"github.com/ticketing-suite/ticketing/internal/auth"
)

// Role names as they appear in token role claims.
const (
	RoleAdmin        = "ADMIN"
	RoleUser         = "USER"
	RoleAssetManager = "AssetManager"
	RoleOandM        = "OandM"
	RoleMonitoring   = "Monitoring"
	RoleContractor   = "Contractor"
)

// Operation names an API operation in the policy table.
type Operation string

const (
	OpAuthRegister Operation = "auth.register"

	OpTicketsList       Operation = "tickets.list"
	OpTicketsGet        Operation = "tickets.get"
	OpTicketsCreate     Operation = "tickets.create"
	OpTicketsUpdate     Operation = "tickets.update"
	OpTicketsBulkUpdate Operation = "tickets.bulk_update"

	OpCommentsList   Operation = "comments.list"
	OpCommentsCreate Operation = "comments.create"
	OpCommentsUpdate Operation = "comments.update"
	OpCommentsDelete Operation = "comments.delete"

	OpAttachmentsList     Operation = "attachments.list"
	OpAttachmentsCreate   Operation = "attachments.create"
	OpAttachmentsDownload Operation = "attachments.download"

	OpSitesList              Operation = "sites.list"
	OpSitesCreate            Operation = "sites.create"
	OpIssueTypesList         Operation = "issue_types.list"
	OpIssueTypesCreate       Operation = "issue_types.create"
	OpFieldDefinitionsList   Operation = "field_definitions.list"
	OpFieldDefinitionsCreate Operation = "field_definitions.create"

	OpUsersList           Operation = "users.list"
	OpUsersProfileUpdate  Operation = "users.profile_update"
	OpUsersChangePassword Operation = "users.change_password"
	OpUsersUpdate         Operation = "users.update"
	OpUsersDelete         Operation = "users.delete"
	OpUsersResetPassword  Operation = "users.reset_password"
)

// RoleSet is a role requirement. An empty set marks a public operation.
type RoleSet map[string]struct{}

// Roles builds a RoleSet.
func Roles(names ...string) RoleSet {
	s := make(RoleSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Union returns a new set containing the members of s and other.
func (s RoleSet) Union(other RoleSet) RoleSet {
	out := make(RoleSet, len(s)+len(other))
	for r := range s {
		out[r] = struct{}{}
	}
	for r := range other {
		out[r] = struct{}{}
	}
	return out
}

// Satisfied reports whether any of roles is in the set.
func (s RoleSet) Satisfied(roles []string) bool {
	for _, r := range roles {
		if _, ok := s[r]; ok {
			return true
		}
	}
	return false
}

// Names returns the members in sorted order.
func (s RoleSet) Names() []string {
	out := make([]string, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

var (
	AdminOnly = Roles(RoleAdmin)
	Managers  = Roles(RoleAdmin, RoleAssetManager, RoleOandM)
	Writers   = Managers.Union(Roles(RoleUser, RoleContractor))
	Readers   = Writers.Union(Roles(RoleMonitoring))
)

// Policy maps each operation to its role requirement.
type Policy map[Operation]RoleSet

// DefaultPolicy is the role table for every API operation.
func DefaultPolicy() Policy {
	return Policy{
		OpAuthRegister: AdminOnly,

		OpTicketsList:       Readers,
		OpTicketsGet:        Readers,
		OpTicketsCreate:     Writers,
		OpTicketsUpdate:     Writers,
		OpTicketsBulkUpdate: Managers,

		OpCommentsList:   Readers,
		OpCommentsCreate: Writers,
		OpCommentsUpdate: Writers,
		OpCommentsDelete: Writers,

		OpAttachmentsList:     Readers,
		OpAttachmentsCreate:   Writers,
		OpAttachmentsDownload: Readers,

		OpSitesList:              Readers,
		OpSitesCreate:            AdminOnly,
		OpIssueTypesList:         Readers,
		OpIssueTypesCreate:       AdminOnly,
		OpFieldDefinitionsList:   Readers,
		OpFieldDefinitionsCreate: AdminOnly,

		OpUsersList:           Readers,
		OpUsersProfileUpdate:  Readers,
		OpUsersChangePassword: Readers,
		OpUsersUpdate:         AdminOnly,
		OpUsersDelete:         AdminOnly,
		OpUsersResetPassword:  AdminOnly,
	}
}

// Gate evaluates the policy for authenticated principals.
type Gate struct {
	policy Policy
}

// NewGate creates a gate over p.
func NewGate(p Policy) *Gate {
	return &Gate{policy: p}
}

// MustKnow panics if op is not in the policy. Route registration calls it
// so a route without a policy entry fails at startup.
func (g *Gate) MustKnow(op Operation) {
	if _, ok := g.policy[op]; !ok {
		panic(fmt.Sprintf("access: operation %q has no policy entry", op))
	}
}

// Authorize checks p against the requirement for op. A nil principal is
// only allowed through public operations.
func (g *Gate) Authorize(p *auth.Principal, op Operation) error {
	required, ok := g.policy[op]
	if !ok {
		return Forbidden(CodeUnknownOperation, "operation not permitted")
	}
	if len(required) == 0 {
		return nil
	}
	if p == nil {
		return Unauthenticated("authentication required")
	}
	if !required.Satisfied(p.Roles) {
		return Forbidden(CodeInsufficientRole, "Insufficient role")
	}
	if p.TenantID == "" {
		return Forbidden(CodeMissingTenantClaim, "token has no tenant claim")
	}
	return nil
}
