// Package attachments records ticket attachments and hands out pre-signed
// object storage URLs under the tenant's key prefix.
package attachments

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ticketing-suite/ticketing/internal/models"
	"github.com/ticketing-suite/ticketing/internal/tenancy"
	"github.com/ticketing-suite/ticketing/internal/tickets"
)

const attachmentColumns = `id, tenant_id, ticket_id, object_key, filename, content_type, size_bytes, uploaded_by, created_at`

// Store is the attachment persistence used by Handler.
type Store interface {
	List(ctx context.Context, tenantID, ticketID string) ([]models.Attachment, error)
	Create(ctx context.Context, tenantID string, a models.Attachment) (*models.Attachment, error)
	Get(ctx context.Context, tenantID, ticketID, id string) (*models.Attachment, error)
}

// Repository is the Postgres Store.
type Repository struct {
	exec *tenancy.Executor
}

// NewRepository creates an attachments repository.
func NewRepository(exec *tenancy.Executor) *Repository {
	return &Repository{exec: exec}
}

func scanAttachment(row pgx.CollectableRow) (models.Attachment, error) {
	var a models.Attachment
	err := row.Scan(&a.ID, &a.TenantID, &a.TicketID, &a.ObjectKey, &a.Filename, &a.ContentType, &a.SizeBytes, &a.UploadedBy, &a.CreatedAt)
	return a, err
}

// List returns a ticket's attachments, oldest first. The ticket must be
// visible to the tenant.
func (r *Repository) List(ctx context.Context, tenantID, ticketID string) ([]models.Attachment, error) {
	return tenancy.Query(ctx, r.exec, tenantID, func(ctx context.Context, s tenancy.Scope) ([]models.Attachment, error) {
		if err := tickets.RequireTicket(ctx, s, ticketID, false); err != nil {
			return nil, err
		}
		query := `SELECT ` + attachmentColumns + ` FROM attachments WHERE ticket_id = $1 AND tenant_id = $2 ORDER BY created_at, id`
		rows, err := s.Tx.Query(ctx, query, ticketID, s.TenantID)
		if err != nil {
			return nil, fmt.Errorf("list attachments: %w", err)
		}
		return pgx.CollectRows(rows, scanAttachment)
	})
}

// Create records an attachment whose id and object key the caller chose.
func (r *Repository) Create(ctx context.Context, tenantID string, a models.Attachment) (*models.Attachment, error) {
	return tenancy.Query(ctx, r.exec, tenantID, func(ctx context.Context, s tenancy.Scope) (*models.Attachment, error) {
		if err := tickets.RequireTicket(ctx, s, a.TicketID, false); err != nil {
			return nil, err
		}
		const query = `INSERT INTO attachments (id, tenant_id, ticket_id, object_key, filename, content_type, size_bytes, uploaded_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING ` + attachmentColumns
		rows, err := s.Tx.Query(ctx, query, a.ID, s.TenantID, a.TicketID, a.ObjectKey, a.Filename, a.ContentType, a.SizeBytes, a.UploadedBy)
		if err != nil {
			return nil, fmt.Errorf("insert attachment: %w", err)
		}
		out, err := pgx.CollectExactlyOneRow(rows, scanAttachment)
		if err != nil {
			return nil, tenancy.Classify(err, "attachment already exists")
		}
		return &out, nil
	})
}

// Get returns one attachment of a ticket.
func (r *Repository) Get(ctx context.Context, tenantID, ticketID, id string) (*models.Attachment, error) {
	return tenancy.Query(ctx, r.exec, tenantID, func(ctx context.Context, s tenancy.Scope) (*models.Attachment, error) {
		query := `SELECT ` + attachmentColumns + ` FROM attachments WHERE id = $1 AND ticket_id = $2 AND tenant_id = $3`
		rows, err := s.Tx.Query(ctx, query, id, ticketID, s.TenantID)
		if err != nil {
			return nil, fmt.Errorf("get attachment: %w", err)
		}
		a, err := pgx.CollectExactlyOneRow(rows, scanAttachment)
		if err != nil {
			return nil, tenancy.NotFound(err, "attachment not found")
		}
		return &a, nil
	})
}
