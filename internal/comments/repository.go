package comments

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ticketing-suite/ticketing/internal/models"
	"github.com/ticketing-suite/ticketing/internal/outbox"
	"github.com/ticketing-suite/ticketing/internal/tenancy"
	"github.com/ticketing-suite/ticketing/internal/tickets"
)

const commentColumns = `id, tenant_id, ticket_id, author_user_id, body, visibility, created_at, updated_at`

// Repository is the Postgres Store.
type Repository struct {
	exec *tenancy.Executor
}

// NewRepository creates a comments repository.
func NewRepository(exec *tenancy.Executor) *Repository {
	return &Repository{exec: exec}
}

func scanComment(row pgx.CollectableRow) (models.Comment, error) {
	var c models.Comment
	err := row.Scan(&c.ID, &c.TenantID, &c.TicketID, &c.AuthorUserID, &c.Body, &c.Visibility, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// List returns the ticket's comments in creation order. A ticket outside
// the tenant yields an empty list.
func (r *Repository) List(ctx context.Context, tenantID, ticketID string) ([]models.Comment, error) {
	return tenancy.Query(ctx, r.exec, tenantID, func(ctx context.Context, s tenancy.Scope) ([]models.Comment, error) {
		query := `SELECT ` + commentColumns + ` FROM comments WHERE ticket_id = $1 AND tenant_id = $2 ORDER BY created_at, id`
		rows, err := s.Tx.Query(ctx, query, ticketID, s.TenantID)
		if err != nil {
			return nil, fmt.Errorf("list comments: %w", err)
		}
		return pgx.CollectRows(rows, scanComment)
	})
}

// Create inserts the comment and its comment.created outbox event in one
// transaction.
func (r *Repository) Create(ctx context.Context, tenantID, ticketID string, in CreateInput) (*models.Comment, models.OutboxEvent, error) {
	var ev models.OutboxEvent
	c, err := tenancy.Query(ctx, r.exec, tenantID, func(ctx context.Context, s tenancy.Scope) (*models.Comment, error) {
		if err := tickets.RequireTicket(ctx, s, ticketID, false); err != nil {
			return nil, err
		}
		visibility := in.Visibility
		if visibility == "" {
			visibility = models.VisibilityInternal
		}
		var author *string
		if in.AuthorUserID != "" {
			author = &in.AuthorUserID
		}
		const query = `INSERT INTO comments (id, tenant_id, ticket_id, author_user_id, body, visibility)
			VALUES ($1, $2, $3, $4, $5, $6) RETURNING ` + commentColumns
		rows, err := s.Tx.Query(ctx, query, uuid.NewString(), s.TenantID, ticketID, author, in.Body, string(visibility))
		if err != nil {
			return nil, fmt.Errorf("insert comment: %w", err)
		}
		c, err := pgx.CollectExactlyOneRow(rows, scanComment)
		if err != nil {
			return nil, tenancy.Classify(err, "comment already exists")
		}
		ev, err = outbox.Record(ctx, s.Tx, s.TenantID, models.EventCommentCreated, c.ID, c)
		if err != nil {
			return nil, err
		}
		return &c, nil
	})
	if err != nil {
		return nil, models.OutboxEvent{}, err
	}
	return c, ev, nil
}

func lockComment(ctx context.Context, s tenancy.Scope, ticketID, commentID string) (models.Comment, error) {
	if err := tickets.RequireTicket(ctx, s, ticketID, true); err != nil {
		return models.Comment{}, err
	}
	query := `SELECT ` + commentColumns + ` FROM comments WHERE id = $1 AND ticket_id = $2 AND tenant_id = $3 FOR UPDATE`
	rows, err := s.Tx.Query(ctx, query, commentID, ticketID, s.TenantID)
	if err != nil {
		return models.Comment{}, fmt.Errorf("get comment: %w", err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanComment)
	if err != nil {
		return models.Comment{}, tenancy.NotFound(err, "comment not found")
	}
	return c, nil
}

// Update locks the comment, runs guard and applies in.
func (r *Repository) Update(ctx context.Context, tenantID, ticketID, commentID string, in UpdateInput, guard Guard) (*models.Comment, error) {
	return tenancy.Query(ctx, r.exec, tenantID, func(ctx context.Context, s tenancy.Scope) (*models.Comment, error) {
		current, err := lockComment(ctx, s, ticketID, commentID)
		if err != nil {
			return nil, err
		}
		if err := guard(current); err != nil {
			return nil, err
		}
		body := current.Body
		if in.Body != nil {
			body = *in.Body
		}
		visibility := current.Visibility
		if in.Visibility != nil {
			visibility = *in.Visibility
		}
		query := `UPDATE comments SET body = $1, visibility = $2, updated_at = NOW()
			WHERE id = $3 AND tenant_id = $4 RETURNING ` + commentColumns
		rows, err := s.Tx.Query(ctx, query, body, string(visibility), commentID, s.TenantID)
		if err != nil {
			return nil, fmt.Errorf("update comment: %w", err)
		}
		c, err := pgx.CollectExactlyOneRow(rows, scanComment)
		if err != nil {
			return nil, tenancy.NotFound(err, "comment not found")
		}
		return &c, nil
	})
}

// Delete locks the comment, runs guard and removes it.
func (r *Repository) Delete(ctx context.Context, tenantID, ticketID, commentID string, guard Guard) error {
	return r.exec.WithTenant(ctx, tenantID, func(ctx context.Context, s tenancy.Scope) error {
		current, err := lockComment(ctx, s, ticketID, commentID)
		if err != nil {
			return err
		}
		if err := guard(current); err != nil {
			return err
		}
		if _, err := s.Tx.Exec(ctx, `DELETE FROM comments WHERE id = $1 AND tenant_id = $2`, commentID, s.TenantID); err != nil {
			return fmt.Errorf("delete comment: %w", err)
		}
		return nil
	})
}
