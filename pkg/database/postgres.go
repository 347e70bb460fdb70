package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PoolOptions tunes the connection pool.
type PoolOptions struct {
	MaxConns int32
	// SessionRole is assumed with SET ROLE on every new connection.
	SessionRole string
}

const bypassRLSQuery = `SELECT rolsuper OR rolbypassrls FROM pg_roles WHERE rolname = current_user`

// ErrBypassesRLS is returned when the pool's effective role skips row-level
// security, which Postgres does for superusers and BYPASSRLS roles even on
// tables with FORCE ROW LEVEL SECURITY.
var ErrBypassesRLS = errors.New("database role bypasses row-level security; set DB_SESSION_ROLE to an unprivileged role")

// RowQuerier runs a single-row query; *pgxpool.Pool satisfies it.
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CheckRowSecurity fails unless the effective role of db is subject to
// row-level security.
func CheckRowSecurity(ctx context.Context, db RowQuerier) error {
	var bypass bool
	if err := db.QueryRow(ctx, bypassRLSQuery).Scan(&bypass); err != nil {
		return fmt.Errorf("check database role: %w", err)
	}
	if bypass {
		return ErrBypassesRLS
	}
	return nil
}

// NewPostgresPool creates a pgx connection pool for PostgreSQL. It refuses
// to start when the role in effect after SET ROLE bypasses row-level security.
func NewPostgresPool(ctx context.Context, dsn string, opts PoolOptions, logger *zap.Logger) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}
	if opts.MaxConns > 0 {
		config.MaxConns = opts.MaxConns
	}
	if opts.SessionRole != "" {
		stmt := "SET ROLE " + pgx.Identifier{opts.SessionRole}.Sanitize()
		config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, stmt)
			return err
		}
	}
	// Tenant bindings are transaction-local; a connection handed back while
	// still inside a transaction is discarded instead of reused.
	config.AfterRelease = func(conn *pgx.Conn) bool {
		return conn.PgConn().TxStatus() == 'I'
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := CheckRowSecurity(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("PostgreSQL connection pool established",
		zap.Int32("max_conns", config.MaxConns),
		zap.String("session_role", opts.SessionRole),
	)
	return pool, nil
}
