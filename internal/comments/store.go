// Package comments serves ticket comments. Comments are owned by their
// author; edits and deletes by anyone else require an elevated role.
package comments

import (
	"context"

	"github.com/ticketing-suite/ticketing/internal/models"
)

// Guard decides whether the caller may mutate the locked comment. It runs
// inside the mutating transaction, after the row is fetched and before it
// changes.
type Guard func(models.Comment) error

// CreateInput is a validated comment creation request.
type CreateInput struct {
	AuthorUserID string
	Body         string
	Visibility   models.Visibility
}

// UpdateInput holds the fields to change. Nil fields are left untouched.
type UpdateInput struct {
	Body       *string
	Visibility *models.Visibility
}

// Store is the comment persistence used by Handler.
type Store interface {
	List(ctx context.Context, tenantID, ticketID string) ([]models.Comment, error)
	Create(ctx context.Context, tenantID, ticketID string, in CreateInput) (*models.Comment, models.OutboxEvent, error)
	Update(ctx context.Context, tenantID, ticketID, commentID string, in UpdateInput, guard Guard) (*models.Comment, error)
	Delete(ctx context.Context, tenantID, ticketID, commentID string, guard Guard) error
}
