package database

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
)

type boolRow struct {
	v   bool
	err error
}

func (r boolRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*bool) = r.v
	return nil
}

type roleQuerier struct {
	row     boolRow
	lastSQL string
}

func (q *roleQuerier) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	q.lastSQL = sql
	return q.row
}

func TestCheckRowSecurity(t *testing.T) {
	boom := errors.New("connection reset")
	tests := []struct {
		name    string
		row     boolRow
		wantErr error
	}{
		{"unprivileged role", boolRow{v: false}, nil},
		{"superuser or bypassrls", boolRow{v: true}, ErrBypassesRLS},
		{"query failure", boolRow{err: boom}, boom},
	}
	for _, tt := range tests {
		q := &roleQuerier{row: tt.row}
		err := CheckRowSecurity(context.Background(), q)
		if tt.wantErr == nil && err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
		}
		if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.wantErr, err)
		}
		if q.lastSQL != bypassRLSQuery {
			t.Errorf("%s: ran %q", tt.name, q.lastSQL)
		}
	}
}
