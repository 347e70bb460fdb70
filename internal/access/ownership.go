package access

import (
	"fmt"

	"github.com/ticketing-suite/ticketing/internal/auth"
)

// Action is a mutation on an owned resource.
type Action string

const (
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

// ElevatedRoles may mutate resources they do not own.
var ElevatedRoles = Roles(RoleAdmin)

// RequireOwnership allows the mutation when p authored the resource or holds
// an elevated role. An empty ownerID is never matched by a subject.
func RequireOwnership(p auth.Principal, ownerID string, action Action, resource string) error {
	if ownerID != "" && p.SubjectID == ownerID {
		return nil
	}
	if ElevatedRoles.Satisfied(p.Roles) {
		return nil
	}
	return Forbidden(CodeNotOwner, fmt.Sprintf("You can only %s your own %s", action, resource))
}
