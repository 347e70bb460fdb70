package testdb

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Recorder is an in-memory stand-in for a pool that records every statement
// run in the transactions it begins. Queries yield one row whose Scan sets
// *bool destinations to true and leaves the rest untouched; statements
// matched by Empty yield no rows.
type Recorder struct {
	Empty func(sql string) bool

	mu    sync.Mutex
	stmts []Stmt
}

// BeginTx starts a recording transaction.
func (r *Recorder) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	return &recordingTx{r: r}, nil
}

// Statements returns what was recorded, without the tenant binding.
func (r *Recorder) Statements() []Stmt {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Stmt
	for _, s := range r.stmts {
		if strings.Contains(s.SQL, "set_config(") {
			continue
		}
		out = append(out, s)
	}
	return out
}

// AssertTenantFiltered fails t unless something was recorded and every
// statement binds tenantID and, except for inserts, filters on tenant_id.
func (r *Recorder) AssertTenantFiltered(t testing.TB, tenantID string) {
	t.Helper()
	stmts := r.Statements()
	if len(stmts) == 0 {
		t.Fatal("no statements recorded")
	}
	for _, s := range stmts {
		insert := strings.HasPrefix(strings.TrimSpace(s.SQL), "INSERT")
		if !insert && !strings.Contains(s.SQL, "tenant_id = $") {
			t.Errorf("statement has no tenant_id predicate: %s", s.SQL)
		}
		bound := false
		for _, a := range s.Args {
			if a == tenantID {
				bound = true
			}
		}
		if !bound {
			t.Errorf("statement does not bind tenant %q: %s %v", tenantID, s.SQL, s.Args)
		}
	}
}

func (r *Recorder) record(sql string, args []any) bool {
	r.mu.Lock()
	r.stmts = append(r.stmts, Stmt{SQL: sql, Args: args})
	r.mu.Unlock()
	return r.Empty != nil && r.Empty(sql)
}

// recordingTx implements the pgx.Tx methods repositories use. Any other
// method panics on the nil embedded interface.
type recordingTx struct {
	pgx.Tx
	r *Recorder
}

func (tx *recordingTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	tx.r.record(sql, args)
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (tx *recordingTx) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	n := 1
	if tx.r.record(sql, args) {
		n = 0
	}
	return &fakeRows{left: n}, nil
}

func (tx *recordingTx) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	return fakeRow{empty: tx.r.record(sql, args)}
}

func (tx *recordingTx) Commit(context.Context) error   { return nil }
func (tx *recordingTx) Rollback(context.Context) error { return nil }

func fillBools(dest []any) {
	for _, d := range dest {
		if b, ok := d.(*bool); ok {
			*b = true
		}
	}
}

type fakeRow struct{ empty bool }

func (r fakeRow) Scan(dest ...any) error {
	if r.empty {
		return pgx.ErrNoRows
	}
	fillBools(dest)
	return nil
}

type fakeRows struct{ left int }

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT 1") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.left == 0 {
		return false
	}
	r.left--
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	fillBools(dest)
	return nil
}
