package tickets

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ticketing-suite/ticketing/internal/access"
	"github.com/ticketing-suite/ticketing/internal/models"
	"github.com/ticketing-suite/ticketing/internal/tenancy"
)

const ticketColumns = `id, tenant_id, site_id, type_key, description, details, status, priority,
	assigned_user_id, due_at, custom_fields, created_at, updated_at`

// Repository is the Postgres Store. All statements run inside tenant-bound
// transactions and also filter on tenant_id, so other tenants' rows stay
// hidden even for a role that is exempt from row-level security.
type Repository struct {
	exec *tenancy.Executor
}

// NewRepository creates a tickets repository.
func NewRepository(exec *tenancy.Executor) *Repository {
	return &Repository{exec: exec}
}

func scanTicket(row pgx.CollectableRow) (models.Ticket, error) {
	var t models.Ticket
	err := row.Scan(&t.ID, &t.TenantID, &t.SiteID, &t.TypeKey, &t.Description, &t.Details, &t.Status, &t.Priority,
		&t.AssignedUserID, &t.DueAt, &t.CustomFields, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

// List returns the tenant's tickets matching f, newest first.
func (r *Repository) List(ctx context.Context, tenantID string, f Filter) ([]models.Ticket, error) {
	return tenancy.Query(ctx, r.exec, tenantID, func(ctx context.Context, s tenancy.Scope) ([]models.Ticket, error) {
		query, args := listQuery(s.TenantID, f)
		rows, err := s.Tx.Query(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("list tickets: %w", err)
		}
		return pgx.CollectRows(rows, scanTicket)
	})
}

func listQuery(tenantID string, f Filter) (string, []any) {
	args := []any{tenantID}
	where := []string{"tenant_id = $1"}
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.Priority != "" {
		add("priority = $%d", string(f.Priority))
	}
	if f.SiteID != "" {
		add("site_id = $%d", f.SiteID)
	}
	if f.AssignedUserID != "" {
		add("assigned_user_id = $%d", f.AssignedUserID)
	}
	if f.Search != "" {
		args = append(args, "%"+escapeLike(f.Search)+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(description ILIKE $%d OR details ILIKE $%d)", n, n))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC, id LIMIT $%d`,
		ticketColumns, strings.Join(where, " AND "), len(args))
	return query, args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

// Get returns one ticket or a not-found error.
func (r *Repository) Get(ctx context.Context, tenantID, id string) (*models.Ticket, error) {
	return tenancy.Query(ctx, r.exec, tenantID, func(ctx context.Context, s tenancy.Scope) (*models.Ticket, error) {
		return getTicket(ctx, s, id, false)
	})
}

func getTicket(ctx context.Context, s tenancy.Scope, id string, forUpdate bool) (*models.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1 AND tenant_id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rows, err := s.Tx.Query(ctx, query, id, s.TenantID)
	if err != nil {
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	t, err := pgx.CollectExactlyOneRow(rows, scanTicket)
	if err != nil {
		return nil, tenancy.NotFound(err, "ticket not found")
	}
	return &t, nil
}

// RequireTicket returns a not-found error unless ticketID belongs to the
// scope's tenant. With lock set the row is held until commit.
func RequireTicket(ctx context.Context, s tenancy.Scope, ticketID string, lock bool) error {
	query := `SELECT id FROM tickets WHERE id = $1 AND tenant_id = $2`
	if lock {
		query += ` FOR UPDATE`
	}
	var id string
	if err := s.Tx.QueryRow(ctx, query, ticketID, s.TenantID).Scan(&id); err != nil {
		return tenancy.NotFound(err, "ticket not found")
	}
	return nil
}

// Create validates references and custom fields, then inserts the ticket.
func (r *Repository) Create(ctx context.Context, tenantID string, in CreateInput) (*models.Ticket, error) {
	return tenancy.Query(ctx, r.exec, tenantID, func(ctx context.Context, s tenancy.Scope) (*models.Ticket, error) {
		if err := requireSite(ctx, s, in.SiteID); err != nil {
			return nil, err
		}
		if err := requireActiveIssueType(ctx, s, in.TypeKey); err != nil {
			return nil, err
		}
		if err := requireAssignee(ctx, s, in.AssignedUserID); err != nil {
			return nil, err
		}
		fields := in.CustomFields
		if fields == nil {
			fields = map[string]any{}
		}
		if err := validateFields(ctx, s, fields); err != nil {
			return nil, err
		}
		status := in.Status
		if status == "" {
			status = models.StatusNew
		}

		const query = `INSERT INTO tickets (id, tenant_id, site_id, type_key, description, details, status, priority,
			assigned_user_id, due_at, custom_fields)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING ` + ticketColumns
		rows, err := s.Tx.Query(ctx, query, uuid.NewString(), s.TenantID, in.SiteID, in.TypeKey, in.Description, in.Details,
			string(status), string(in.Priority), assigneeValue(in.AssignedUserID), in.DueAt, fields)
		if err != nil {
			return nil, tenancy.Classify(fmt.Errorf("insert ticket: %w", err), "ticket already exists")
		}
		t, err := pgx.CollectExactlyOneRow(rows, scanTicket)
		if err != nil {
			return nil, tenancy.Classify(err, "ticket already exists")
		}
		return &t, nil
	})
}

// Update changes the non-nil fields of one ticket. An empty assignee clears
// the assignment.
func (r *Repository) Update(ctx context.Context, tenantID, id string, in UpdateInput) (*models.Ticket, error) {
	return tenancy.Query(ctx, r.exec, tenantID, func(ctx context.Context, s tenancy.Scope) (*models.Ticket, error) {
		current, err := getTicket(ctx, s, id, true)
		if err != nil {
			return nil, err
		}
		if err := requireAssignee(ctx, s, in.AssignedUserID); err != nil {
			return nil, err
		}
		if in.CustomFields != nil {
			if err := validateFields(ctx, s, in.CustomFields); err != nil {
				return nil, err
			}
		}

		sets, args := updateSets(in.Description, in.Details, in.Status, in.Priority, in.AssignedUserID, in.DueAt)
		if in.CustomFields != nil {
			args = append(args, in.CustomFields)
			sets = append(sets, fmt.Sprintf("custom_fields = $%d", len(args)))
		}
		if len(sets) == 0 {
			return current, nil
		}
		args = append(args, id, s.TenantID)
		query := fmt.Sprintf(`UPDATE tickets SET %s, updated_at = NOW() WHERE id = $%d AND tenant_id = $%d RETURNING %s`,
			strings.Join(sets, ", "), len(args)-1, len(args), ticketColumns)
		rows, err := s.Tx.Query(ctx, query, args...)
		if err != nil {
			return nil, tenancy.Classify(fmt.Errorf("update ticket: %w", err), "ticket already exists")
		}
		t, err := pgx.CollectExactlyOneRow(rows, scanTicket)
		if err != nil {
			return nil, tenancy.NotFound(tenancy.Classify(err, "ticket already exists"), "ticket not found")
		}
		return &t, nil
	})
}

// BulkUpdate applies in to the listed tickets of the tenant and returns how
// many rows changed. Ids of other tenants match nothing.
func (r *Repository) BulkUpdate(ctx context.Context, tenantID string, in BulkUpdateInput) (int64, error) {
	return tenancy.Query(ctx, r.exec, tenantID, func(ctx context.Context, s tenancy.Scope) (int64, error) {
		if err := requireAssignee(ctx, s, in.AssignedUserID); err != nil {
			return 0, err
		}
		sets, args := updateSets(nil, nil, in.Status, in.Priority, in.AssignedUserID, in.DueAt)
		if len(sets) == 0 || len(in.IDs) == 0 {
			return 0, nil
		}
		args = append(args, in.IDs, s.TenantID)
		query := fmt.Sprintf(`UPDATE tickets SET %s, updated_at = NOW() WHERE id = ANY($%d) AND tenant_id = $%d`,
			strings.Join(sets, ", "), len(args)-1, len(args))
		tag, err := s.Tx.Exec(ctx, query, args...)
		if err != nil {
			return 0, tenancy.Classify(fmt.Errorf("bulk update tickets: %w", err), "ticket already exists")
		}
		return tag.RowsAffected(), nil
	})
}

// assigneeValue maps a missing or empty assignee to SQL NULL.
func assigneeValue(assignee *string) any {
	if assignee == nil || *assignee == "" {
		return nil
	}
	return *assignee
}

func updateSets(description, details *string, status *models.TicketStatus, priority *models.Priority,
	assignee *string, dueAt *time.Time) ([]string, []any) {
	var sets []string
	var args []any
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if description != nil {
		set("description", *description)
	}
	if details != nil {
		set("details", *details)
	}
	if status != nil {
		set("status", string(*status))
	}
	if priority != nil {
		set("priority", string(*priority))
	}
	if assignee != nil {
		set("assigned_user_id", assigneeValue(assignee))
	}
	if dueAt != nil {
		set("due_at", *dueAt)
	}
	return sets, args
}

func requireSite(ctx context.Context, s tenancy.Scope, siteID string) error {
	var ok bool
	const query = `SELECT EXISTS (SELECT 1 FROM sites WHERE id = $1 AND tenant_id = $2)`
	if err := s.Tx.QueryRow(ctx, query, siteID, s.TenantID).Scan(&ok); err != nil {
		return fmt.Errorf("check site: %w", err)
	}
	if !ok {
		return access.BadRequest("site not found")
	}
	return nil
}

func requireActiveIssueType(ctx context.Context, s tenancy.Scope, key string) error {
	var ok bool
	const query = `SELECT EXISTS (SELECT 1 FROM issue_types WHERE key = $1 AND tenant_id = $2 AND active)`
	if err := s.Tx.QueryRow(ctx, query, key, s.TenantID).Scan(&ok); err != nil {
		return fmt.Errorf("check issue type: %w", err)
	}
	if !ok {
		return access.BadRequest("issue type not found or inactive")
	}
	return nil
}

// requireAssignee rejects assignees outside the tenant. The users foreign key
// alone would accept any user id.
func requireAssignee(ctx context.Context, s tenancy.Scope, userID *string) error {
	if userID == nil || *userID == "" {
		return nil
	}
	var ok bool
	const query = `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1 AND tenant_id = $2)`
	if err := s.Tx.QueryRow(ctx, query, *userID, s.TenantID).Scan(&ok); err != nil {
		return fmt.Errorf("check assignee: %w", err)
	}
	if !ok {
		return access.BadRequest("assigned user not found")
	}
	return nil
}

func validateFields(ctx context.Context, s tenancy.Scope, values map[string]any) error {
	const query = `SELECT id, tenant_id, key, label, datatype, required, enum_options, created_at
		FROM field_definitions WHERE tenant_id = $1 ORDER BY key`
	rows, err := s.Tx.Query(ctx, query, s.TenantID)
	if err != nil {
		return fmt.Errorf("load field definitions: %w", err)
	}
	defs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.FieldDefinition, error) {
		var d models.FieldDefinition
		err := row.Scan(&d.ID, &d.TenantID, &d.Key, &d.Label, &d.Datatype, &d.Required, &d.EnumOptions, &d.CreatedAt)
		return d, err
	})
	if err != nil {
		return fmt.Errorf("load field definitions: %w", err)
	}
	return ValidateCustomFields(defs, values)
}
