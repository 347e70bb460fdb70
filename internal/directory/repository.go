// Package directory serves the tenant's reference data: sites, issue types
// and custom field definitions.
package directory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ticketing-suite/ticketing/internal/models"
	"github.com/ticketing-suite/ticketing/internal/tenancy"
)

// Store is the directory persistence used by Handler.
type Store interface {
	ListSites(ctx context.Context, tenantID string) ([]models.Site, error)
	CreateSite(ctx context.Context, tenantID string, s models.Site) (*models.Site, error)
	ListIssueTypes(ctx context.Context, tenantID string) ([]models.IssueType, error)
	CreateIssueType(ctx context.Context, tenantID string, it models.IssueType) (*models.IssueType, error)
	ListFieldDefinitions(ctx context.Context, tenantID string) ([]models.FieldDefinition, error)
	CreateFieldDefinition(ctx context.Context, tenantID string, fd models.FieldDefinition) (*models.FieldDefinition, error)
}

// Repository is the Postgres Store.
type Repository struct {
	exec *tenancy.Executor
}

// NewRepository creates a directory repository.
func NewRepository(exec *tenancy.Executor) *Repository {
	return &Repository{exec: exec}
}

func scanSite(row pgx.CollectableRow) (models.Site, error) {
	var s models.Site
	err := row.Scan(&s.ID, &s.TenantID, &s.Name, &s.Location, &s.CreatedAt)
	return s, err
}

func scanIssueType(row pgx.CollectableRow) (models.IssueType, error) {
	var it models.IssueType
	err := row.Scan(&it.ID, &it.TenantID, &it.Key, &it.Label, &it.Active, &it.CreatedAt)
	return it, err
}

func scanFieldDefinition(row pgx.CollectableRow) (models.FieldDefinition, error) {
	var fd models.FieldDefinition
	err := row.Scan(&fd.ID, &fd.TenantID, &fd.Key, &fd.Label, &fd.Datatype, &fd.Required, &fd.EnumOptions, &fd.CreatedAt)
	return fd, err
}

// listAll runs query in the tenant's transaction with the tenant id as $1 and
// collects every row.
func listAll[T any](ctx context.Context, e *tenancy.Executor, tenantID, query string, scan pgx.RowToFunc[T]) ([]T, error) {
	return tenancy.Query(ctx, e, tenantID, func(ctx context.Context, s tenancy.Scope) ([]T, error) {
		rows, err := s.Tx.Query(ctx, query, s.TenantID)
		if err != nil {
			return nil, err
		}
		return pgx.CollectRows(rows, scan)
	})
}

// insertOne runs an INSERT ... RETURNING in the tenant's transaction.
func insertOne[T any](ctx context.Context, e *tenancy.Executor, tenantID, query, conflictMsg string, scan pgx.RowToFunc[T], args func(tenantID string) []any) (*T, error) {
	return tenancy.Query(ctx, e, tenantID, func(ctx context.Context, s tenancy.Scope) (*T, error) {
		rows, err := s.Tx.Query(ctx, query, args(s.TenantID)...)
		if err != nil {
			return nil, tenancy.Classify(err, conflictMsg)
		}
		v, err := pgx.CollectExactlyOneRow(rows, scan)
		if err != nil {
			return nil, tenancy.Classify(err, conflictMsg)
		}
		return &v, nil
	})
}

// ListSites returns the tenant's sites by name.
func (r *Repository) ListSites(ctx context.Context, tenantID string) ([]models.Site, error) {
	list, err := listAll(ctx, r.exec, tenantID, `SELECT id, tenant_id, name, location, created_at FROM sites WHERE tenant_id = $1 ORDER BY name, id`, scanSite)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	return list, nil
}

// CreateSite inserts a site.
func (r *Repository) CreateSite(ctx context.Context, tenantID string, site models.Site) (*models.Site, error) {
	const query = `INSERT INTO sites (id, tenant_id, name, location) VALUES ($1, $2, $3, $4)
		RETURNING id, tenant_id, name, location, created_at`
	return insertOne(ctx, r.exec, tenantID, query, "site already exists", scanSite, func(tenantID string) []any {
		return []any{uuid.NewString(), tenantID, site.Name, site.Location}
	})
}

// ListIssueTypes returns the tenant's issue types by key.
func (r *Repository) ListIssueTypes(ctx context.Context, tenantID string) ([]models.IssueType, error) {
	list, err := listAll(ctx, r.exec, tenantID, `SELECT id, tenant_id, key, label, active, created_at FROM issue_types WHERE tenant_id = $1 ORDER BY key`, scanIssueType)
	if err != nil {
		return nil, fmt.Errorf("list issue types: %w", err)
	}
	return list, nil
}

// CreateIssueType inserts an issue type. Keys are unique per tenant.
func (r *Repository) CreateIssueType(ctx context.Context, tenantID string, it models.IssueType) (*models.IssueType, error) {
	const query = `INSERT INTO issue_types (id, tenant_id, key, label, active) VALUES ($1, $2, $3, $4, $5)
		RETURNING id, tenant_id, key, label, active, created_at`
	return insertOne(ctx, r.exec, tenantID, query, "issue type key already exists", scanIssueType, func(tenantID string) []any {
		return []any{uuid.NewString(), tenantID, it.Key, it.Label, it.Active}
	})
}

// ListFieldDefinitions returns the tenant's custom field definitions by key.
func (r *Repository) ListFieldDefinitions(ctx context.Context, tenantID string) ([]models.FieldDefinition, error) {
	const query = `SELECT id, tenant_id, key, label, datatype, required, enum_options, created_at
		FROM field_definitions WHERE tenant_id = $1 ORDER BY key`
	list, err := listAll(ctx, r.exec, tenantID, query, scanFieldDefinition)
	if err != nil {
		return nil, fmt.Errorf("list field definitions: %w", err)
	}
	return list, nil
}

// CreateFieldDefinition inserts a field definition. Keys are unique per tenant.
func (r *Repository) CreateFieldDefinition(ctx context.Context, tenantID string, fd models.FieldDefinition) (*models.FieldDefinition, error) {
	const query = `INSERT INTO field_definitions (id, tenant_id, key, label, datatype, required, enum_options)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, tenant_id, key, label, datatype, required, enum_options, created_at`
	options := fd.EnumOptions
	if options == nil {
		options = []string{}
	}
	return insertOne(ctx, r.exec, tenantID, query, "field definition key already exists", scanFieldDefinition, func(tenantID string) []any {
		return []any{uuid.NewString(), tenantID, fd.Key, fd.Label, string(fd.Datatype), fd.Required, options}
	})
}
