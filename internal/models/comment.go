package models

import "time"

// Visibility controls who outside the tenant's staff may see a comment.
type Visibility string

const (
	VisibilityInternal Visibility = "INTERNAL"
	VisibilityPublic   Visibility = "PUBLIC"
)

// Valid reports whether v is a known visibility.
func (v Visibility) Valid() bool {
	return v == VisibilityInternal || v == VisibilityPublic
}

// Comment is a note on a ticket, owned by its author.
type Comment struct {
	ID           string     `json:"id"`
	TenantID     string     `json:"tenantId"`
	TicketID     string     `json:"ticketId"`
	AuthorUserID *string    `json:"authorUserId"`
	Body         string     `json:"body"`
	Visibility   Visibility `json:"visibility"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Author returns the author id or "" for unattributed comments.
func (c Comment) Author() string {
	if c.AuthorUserID == nil {
		return ""
	}
	return *c.AuthorUserID
}
