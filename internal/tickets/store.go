// Package tickets serves the tenant-scoped ticket API.
package tickets

import (
	"context"
	"time"

	"github.com/ticketing-suite/ticketing/internal/models"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

// Filter narrows a ticket listing. Zero values are ignored.
type Filter struct {
	Status         models.TicketStatus
	Priority       models.Priority
	SiteID         string
	AssignedUserID string
	Search         string
	Limit          int
}

// CreateInput is a validated ticket creation request.
type CreateInput struct {
	SiteID         string
	TypeKey        string
	Description    string
	Details        *string
	Status         models.TicketStatus
	Priority       models.Priority
	AssignedUserID *string
	DueAt          *time.Time
	CustomFields   map[string]any
}

// UpdateInput holds the fields to change. Nil fields are left untouched.
type UpdateInput struct {
	Description    *string
	Details        *string
	Status         *models.TicketStatus
	Priority       *models.Priority
	AssignedUserID *string
	DueAt          *time.Time
	CustomFields   map[string]any
}

// BulkUpdateInput applies the same change to several tickets.
type BulkUpdateInput struct {
	IDs            []string
	Status         *models.TicketStatus
	Priority       *models.Priority
	AssignedUserID *string
	DueAt          *time.Time
}

// Store is the ticket persistence used by Handler. Every method is scoped to
// tenantID; rows of other tenants behave as if they did not exist.
type Store interface {
	List(ctx context.Context, tenantID string, f Filter) ([]models.Ticket, error)
	Get(ctx context.Context, tenantID, id string) (*models.Ticket, error)
	Create(ctx context.Context, tenantID string, in CreateInput) (*models.Ticket, error)
	Update(ctx context.Context, tenantID, id string, in UpdateInput) (*models.Ticket, error)
	BulkUpdate(ctx context.Context, tenantID string, in BulkUpdateInput) (int64, error)
}
