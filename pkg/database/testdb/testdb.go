// Package testdb provisions throwaway Postgres databases for integration tests
// and records the SQL repositories issue.
package testdb

import (
	"context"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ticketing-suite/ticketing/pkg/database"
)

// EnvDSN names the variable holding a DSN with CREATE DATABASE rights.
const EnvDSN = "TICKETING_TEST_DATABASE_URL"

// AppRole is the unprivileged role test pools run as, so row-level security
// applies even when the DSN logs in as a superuser.
const AppRole = "ticketing_rls_test"

// NewDatabase creates a migrated database and a pool running as AppRole.
// The test is skipped when EnvDSN is unset.
func NewDatabase(t *testing.T) *pgxpool.Pool {
	t.Helper()
	baseDSN := os.Getenv(EnvDSN)
	if baseDSN == "" {
		t.Skipf("%s not set", EnvDSN)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	admin, err := pgx.Connect(ctx, baseDSN)
	if err != nil {
		t.Fatalf("connect admin db: %v", err)
	}
	dbName := "ticketing_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, err := admin.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{dbName}.Sanitize()); err != nil {
		t.Fatalf("create database: %v", err)
	}
	dsn := withDatabase(baseDSN, dbName)

	owner, err := pgx.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("connect test db: %v", err)
	}
	if err := database.Migrate(ctx, owner); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// Applying twice proves the migrations are idempotent.
	if err := database.Migrate(ctx, owner); err != nil {
		t.Fatalf("re-migrate: %v", err)
	}
	grant := `
DO $$
BEGIN
    IF NOT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = '` + AppRole + `') THEN
        CREATE ROLE ` + AppRole + ` NOLOGIN;
    END IF;
END
$$;
GRANT ` + AppRole + ` TO CURRENT_USER;
GRANT USAGE ON SCHEMA public TO ` + AppRole + `;
GRANT SELECT, INSERT, UPDATE, DELETE ON ALL TABLES IN SCHEMA public TO ` + AppRole + `;`
	if _, err := owner.Exec(ctx, grant); err != nil {
		t.Fatalf("grant app role: %v", err)
	}
	_ = owner.Close(ctx)

	pool, err := database.NewPostgresPool(ctx, dsn, database.PoolOptions{MaxConns: 8, SessionRole: AppRole}, zap.NewNop())
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}

	t.Cleanup(func() {
		pool.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = admin.Exec(ctx, "DROP DATABASE IF EXISTS "+pgx.Identifier{dbName}.Sanitize()+" WITH (FORCE)")
		_ = admin.Close(ctx)
	})
	return pool
}

func withDatabase(dsn, dbName string) string {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return dsn
	}
	parsed.Path = "/" + dbName
	return parsed.String()
}
