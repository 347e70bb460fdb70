// Package users manages tenant members and local credentials.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ticketing-suite/ticketing/internal/models"
	"github.com/ticketing-suite/ticketing/internal/tenancy"
)

const userColumns = `id, tenant_id, email, password_hash, name, role, is_active, created_at, updated_at`

// ErrInvalidCredentials reports a failed login. Unknown emails, wrong
// passwords and inactive users are not told apart.
var ErrInvalidCredentials = errors.New("invalid credentials")

// NewUser is a validated registration.
type NewUser struct {
	Email        string
	PasswordHash string
	Name         string
	Role         string
}

// UpdateInput holds the fields to change. Nil fields are left untouched.
type UpdateInput struct {
	Name     *string
	Email    *string
	Role     *string
	IsActive *bool
}

// PasswordFunc receives the locked user and returns the new password hash.
type PasswordFunc func(u models.User) (string, error)

// Store is the user persistence used by Handler.
type Store interface {
	List(ctx context.Context, tenantID string) ([]models.User, error)
	Create(ctx context.Context, tenantID string, u NewUser) (*models.User, error)
	Update(ctx context.Context, tenantID, id string, in UpdateInput) (*models.User, error)
	Delete(ctx context.Context, tenantID, id string) error
	SetPassword(ctx context.Context, tenantID, id string, next PasswordFunc) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

// Repository is the Postgres Store.
type Repository struct {
	exec *tenancy.Executor
}

// NewRepository creates a users repository.
func NewRepository(exec *tenancy.Executor) *Repository {
	return &Repository{exec: exec}
}

func scanUser(row pgx.CollectableRow) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.TenantID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// List returns the tenant's users by name.
func (r *Repository) List(ctx context.Context, tenantID string) ([]models.User, error) {
	return tenancy.Query(ctx, r.exec, tenantID, func(ctx context.Context, s tenancy.Scope) ([]models.User, error) {
		rows, err := s.Tx.Query(ctx, `SELECT `+userColumns+` FROM users WHERE tenant_id = $1 ORDER BY name, id`, s.TenantID)
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		return pgx.CollectRows(rows, scanUser)
	})
}

// Create inserts a user into tenantID. Emails are unique across tenants.
func (r *Repository) Create(ctx context.Context, tenantID string, in NewUser) (*models.User, error) {
	return tenancy.Query(ctx, r.exec, tenantID, func(ctx context.Context, s tenancy.Scope) (*models.User, error) {
		const query = `INSERT INTO users (id, tenant_id, email, password_hash, name, role)
			VALUES ($1, $2, $3, $4, $5, $6) RETURNING ` + userColumns
		rows, err := s.Tx.Query(ctx, query, uuid.NewString(), s.TenantID, normalizeEmail(in.Email), in.PasswordHash, in.Name, in.Role)
		if err != nil {
			return nil, tenancy.Classify(err, "email already in use")
		}
		u, err := pgx.CollectExactlyOneRow(rows, scanUser)
		if err != nil {
			return nil, tenancy.Classify(err, "email already in use")
		}
		return &u, nil
	})
}

// Update changes the non-nil fields of a user in the tenant.
func (r *Repository) Update(ctx context.Context, tenantID, id string, in UpdateInput) (*models.User, error) {
	return tenancy.Query(ctx, r.exec, tenantID, func(ctx context.Context, s tenancy.Scope) (*models.User, error) {
		var sets []string
		var args []any
		set := func(col string, v any) {
			args = append(args, v)
			sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
		}
		if in.Name != nil {
			set("name", *in.Name)
		}
		if in.Email != nil {
			set("email", normalizeEmail(*in.Email))
		}
		if in.Role != nil {
			set("role", *in.Role)
		}
		if in.IsActive != nil {
			set("is_active", *in.IsActive)
		}
		args = append(args, id, s.TenantID)
		var query string
		if len(sets) == 0 {
			query = fmt.Sprintf(`SELECT %s FROM users WHERE id = $%d AND tenant_id = $%d`, userColumns, len(args)-1, len(args))
		} else {
			query = fmt.Sprintf(`UPDATE users SET %s, updated_at = NOW() WHERE id = $%d AND tenant_id = $%d RETURNING %s`,
				strings.Join(sets, ", "), len(args)-1, len(args), userColumns)
		}
		rows, err := s.Tx.Query(ctx, query, args...)
		if err != nil {
			return nil, tenancy.Classify(err, "email already in use")
		}
		u, err := pgx.CollectExactlyOneRow(rows, scanUser)
		if err != nil {
			return nil, tenancy.NotFound(tenancy.Classify(err, "email already in use"), "user not found")
		}
		return &u, nil
	})
}

// Delete removes a user from the tenant.
func (r *Repository) Delete(ctx context.Context, tenantID, id string) error {
	return r.exec.WithTenant(ctx, tenantID, func(ctx context.Context, s tenancy.Scope) error {
		tag, err := s.Tx.Exec(ctx, `DELETE FROM users WHERE id = $1 AND tenant_id = $2`, id, s.TenantID)
		if err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return tenancy.NotFound(pgx.ErrNoRows, "user not found")
		}
		return nil
	})
}

// SetPassword locks the user, asks next for the new hash and stores it.
func (r *Repository) SetPassword(ctx context.Context, tenantID, id string, next PasswordFunc) error {
	return r.exec.WithTenant(ctx, tenantID, func(ctx context.Context, s tenancy.Scope) error {
		rows, err := s.Tx.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 AND tenant_id = $2 FOR UPDATE`, id, s.TenantID)
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}
		u, err := pgx.CollectExactlyOneRow(rows, scanUser)
		if err != nil {
			return tenancy.NotFound(err, "user not found")
		}
		hash, err := next(u)
		if err != nil {
			return err
		}
		const update = `UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id = $2 AND tenant_id = $3`
		if _, err := s.Tx.Exec(ctx, update, hash, id, s.TenantID); err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		return nil
	})
}

// FindByEmail looks a user up for login before any tenant is known.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	email = normalizeEmail(email)
	err := r.exec.WithCredentialLookup(ctx, email, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = $1`, email)
		if err != nil {
			return fmt.Errorf("find user: %w", err)
		}
		u, err = pgx.CollectExactlyOneRow(rows, scanUser)
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
