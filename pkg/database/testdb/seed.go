package testdb

import (
	"context"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// Password is the plain password of every seeded user.
const Password = "password"

var (
	hashOnce sync.Once
	hash     string
)

func passwordHash(t *testing.T) string {
	t.Helper()
	hashOnce.Do(func() {
		b, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
		if err != nil {
			panic(err)
		}
		hash = string(b)
	})
	return hash
}

// ExecAsTenant runs statements in one transaction bound to tenantID.
func ExecAsTenant(t *testing.T, pool *pgxpool.Pool, tenantID string, stmts ...Stmt) {
	t.Helper()
	ctx := context.Background()
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT set_config('app.tenant_id', $1, true)`, tenantID); err != nil {
			return err
		}
		for _, s := range stmts {
			if _, err := tx.Exec(ctx, s.SQL, s.Args...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("exec as %s: %v", tenantID, err)
	}
}

// Stmt is one SQL statement with its arguments.
type Stmt struct {
	SQL  string
	Args []any
}

// S builds a Stmt.
func S(sql string, args ...any) Stmt { return Stmt{SQL: sql, Args: args} }

// SeedTenant inserts a tenant with one site, one active issue type and the
// given users (id, email, role), all with Password.
func SeedTenant(t *testing.T, pool *pgxpool.Pool, tenantID, siteID, issueTypeKey string, users ...[3]string) {
	t.Helper()
	stmts := []Stmt{
		S(`INSERT INTO tenants (id, name) VALUES ($1, $1)`, tenantID),
		S(`INSERT INTO sites (id, tenant_id, name) VALUES ($1, $2, $1)`, siteID, tenantID),
		S(`INSERT INTO issue_types (id, tenant_id, key, label) VALUES ($1, $2, $3, $3)`, tenantID+"-"+issueTypeKey, tenantID, issueTypeKey),
	}
	for _, u := range users {
		stmts = append(stmts, S(`INSERT INTO users (id, tenant_id, email, password_hash, name, role)
			VALUES ($1, $2, $3, $4, $1, $5)`,
			u[0], tenantID, u[1], passwordHash(t), u[2]))
	}
	ExecAsTenant(t, pool, tenantID, stmts...)
}
