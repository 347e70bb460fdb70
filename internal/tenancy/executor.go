// Package tenancy runs data access inside transactions bound to one tenant.
//
// The binding is a transaction-local Postgres setting read by the row-level
// security policies, so it cannot outlive the unit of work or leak to the
// next borrower of the pooled connection.
package tenancy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const (
	bindTenantSQL     = `SELECT set_config('app.tenant_id', $1, true)`
	bindLoginEmailSQL = `SELECT set_config('app.login_email', $1, true)`
)

// ErrNoTenant is returned when a unit of work is requested without a tenant.
var ErrNoTenant = errors.New("tenancy: tenant id is required")

// Beginner starts transactions; *pgxpool.Pool satisfies it.
type Beginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Scope is the tenant-bound unit of work handed to callbacks.
type Scope struct {
	TenantID string
	Tx       pgx.Tx
}

// Executor opens tenant-bound transactions.
type Executor struct {
	db     Beginner
	logger *zap.Logger
}

// NewExecutor creates an executor on db.
func NewExecutor(db Beginner, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{db: db, logger: logger}
}

// WithTenant runs fn in a transaction where only tenantID's rows are visible.
// The transaction commits when fn returns nil and rolls back on error, panic
// or context cancellation.
func (e *Executor) WithTenant(ctx context.Context, tenantID string, fn func(ctx context.Context, s Scope) error) error {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return ErrNoTenant
	}
	err := pgx.BeginTxFunc(ctx, e.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, bindTenantSQL, tenantID); err != nil {
			return fmt.Errorf("bind tenant: %w", err)
		}
		return fn(ctx, Scope{TenantID: tenantID, Tx: tx})
	})
	if err != nil {
		e.logger.Debug("tenant transaction rolled back", zap.String("tenant_id", tenantID), zap.Error(err))
	}
	return err
}

// WithCredentialLookup runs fn in a read-only transaction where the only
// visible user row is the one whose email matches. No tenant is bound.
func (e *Executor) WithCredentialLookup(ctx context.Context, email string, fn func(ctx context.Context, tx pgx.Tx) error) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return errors.New("tenancy: email is required")
	}
	return pgx.BeginTxFunc(ctx, e.db, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, bindLoginEmailSQL, email); err != nil {
			return fmt.Errorf("bind login email: %w", err)
		}
		return fn(ctx, tx)
	})
}

// Query is WithTenant for callbacks that produce a value.
func Query[T any](ctx context.Context, e *Executor, tenantID string, fn func(ctx context.Context, s Scope) (T, error)) (T, error) {
	var out T
	err := e.WithTenant(ctx, tenantID, func(ctx context.Context, s Scope) error {
		v, err := fn(ctx, s)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
