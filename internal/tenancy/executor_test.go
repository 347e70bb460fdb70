package tenancy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ticketing-suite/ticketing/pkg/database/testdb"
)

func seedTenant(t *testing.T, ex *Executor, tenantID string, sites ...string) {
	t.Helper()
	err := ex.WithTenant(context.Background(), tenantID, func(ctx context.Context, s Scope) error {
		if _, err := s.Tx.Exec(ctx, `INSERT INTO tenants (id, name) VALUES ($1, $1)`, tenantID); err != nil {
			return err
		}
		for _, id := range sites {
			if _, err := s.Tx.Exec(ctx, `INSERT INTO sites (id, tenant_id, name) VALUES ($1, $2, $1)`, id, tenantID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed %s: %v", tenantID, err)
	}
}

func siteIDs(ctx context.Context, s Scope) ([]string, error) {
	rows, err := s.Tx.Query(ctx, `SELECT id FROM sites ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func newExecutor(t *testing.T) (*Executor, *pgxpool.Pool) {
	pool := testdb.NewDatabase(t)
	return NewExecutor(pool, nil), pool
}

func TestWithTenantRequiresTenant(t *testing.T) {
	ex := NewExecutor(nil, nil)
	err := ex.WithTenant(context.Background(), "  ", func(context.Context, Scope) error {
		t.Fatal("callback must not run")
		return nil
	})
	if !errors.Is(err, ErrNoTenant) {
		t.Fatalf("expected ErrNoTenant, got %v", err)
	}
}

func TestWithTenantIsolatesRows(t *testing.T) {
	ex, _ := newExecutor(t)
	seedTenant(t, ex, "t1", "t1-site-a", "t1-site-b")
	seedTenant(t, ex, "t2", "t2-site-a")

	got, err := Query(context.Background(), ex, "t1", siteIDs)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if fmt.Sprint(got) != "[t1-site-a t1-site-b]" {
		t.Fatalf("t1 sees %v", got)
	}

	// A direct id lookup of another tenant's row finds nothing.
	err = ex.WithTenant(context.Background(), "t2", func(ctx context.Context, s Scope) error {
		var id string
		return s.Tx.QueryRow(ctx, `SELECT id FROM sites WHERE id = $1`, "t1-site-a").Scan(&id)
	})
	if !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected ErrNoRows across tenants, got %v", err)
	}
}

func TestWithTenantRejectsCrossTenantWrites(t *testing.T) {
	ex, _ := newExecutor(t)
	seedTenant(t, ex, "t1")
	seedTenant(t, ex, "t2", "t2-site")

	err := ex.WithTenant(context.Background(), "t1", func(ctx context.Context, s Scope) error {
		_, err := s.Tx.Exec(ctx, `INSERT INTO sites (id, tenant_id, name) VALUES ('sneaky', 't2', 'x')`)
		return err
	})
	if err == nil {
		t.Fatal("expected row-level security to reject a write for another tenant")
	}

	err = ex.WithTenant(context.Background(), "t1", func(ctx context.Context, s Scope) error {
		tag, err := s.Tx.Exec(ctx, `UPDATE sites SET name = 'hijacked' WHERE id = 't2-site'`)
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 0 {
			return fmt.Errorf("updated %d foreign rows", tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestWithTenantBindingDoesNotLeak(t *testing.T) {
	ex, pool := newExecutor(t)
	seedTenant(t, ex, "t1", "t1-site")

	if err := ex.WithTenant(context.Background(), "t1", func(context.Context, Scope) error { return nil }); err != nil {
		t.Fatal(err)
	}
	// Every pooled connection must come back unbound.
	for i := 0; i < 8; i++ {
		var bound string
		if err := pool.QueryRow(context.Background(), `SELECT COALESCE(current_setting('app.tenant_id', true), '')`).Scan(&bound); err != nil {
			t.Fatal(err)
		}
		if bound != "" {
			t.Fatalf("connection still bound to %q", bound)
		}
	}
	var n int
	if err := pool.QueryRow(context.Background(), `SELECT count(*) FROM sites`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("unbound query saw %d rows", n)
	}
}

func TestWithTenantRollsBackOnError(t *testing.T) {
	ex, _ := newExecutor(t)
	seedTenant(t, ex, "t1")

	boom := errors.New("boom")
	err := ex.WithTenant(context.Background(), "t1", func(ctx context.Context, s Scope) error {
		if _, err := s.Tx.Exec(ctx, `INSERT INTO sites (id, tenant_id, name) VALUES ('gone', 't1', 'gone')`); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	got, err := Query(context.Background(), ex, "t1", siteIDs)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("rolled back insert is visible: %v", got)
	}
}

func TestWithTenantRollsBackOnPanic(t *testing.T) {
	ex, _ := newExecutor(t)
	seedTenant(t, ex, "t1")

	func() {
		defer func() { _ = recover() }()
		_ = ex.WithTenant(context.Background(), "t1", func(ctx context.Context, s Scope) error {
			if _, err := s.Tx.Exec(ctx, `INSERT INTO sites (id, tenant_id, name) VALUES ('panic', 't1', 'p')`); err != nil {
				return err
			}
			panic("handler crashed")
		})
	}()
	got, err := Query(context.Background(), ex, "t1", siteIDs)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("insert from panicking unit of work is visible: %v", got)
	}
}

func TestWithTenantConcurrentTenants(t *testing.T) {
	ex, _ := newExecutor(t)
	seedTenant(t, ex, "t1", "t1-site")
	seedTenant(t, ex, "t2", "t2-site")

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 40; i++ {
		tenant := "t1"
		if i%2 == 1 {
			tenant = "t2"
		}
		wg.Add(1)
		go func(tenant string) {
			defer wg.Done()
			got, err := Query(context.Background(), ex, tenant, func(ctx context.Context, s Scope) ([]string, error) {
				// Hold the transaction open so units of work overlap.
				if _, err := s.Tx.Exec(ctx, `SELECT pg_sleep(0.02)`); err != nil {
					return nil, err
				}
				return siteIDs(ctx, s)
			})
			if err != nil {
				errs <- err
				return
			}
			if len(got) != 1 || got[0] != tenant+"-site" {
				errs <- fmt.Errorf("tenant %s saw %v", tenant, got)
			}
		}(tenant)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestWithCredentialLookupSeesOnlyMatchingUser(t *testing.T) {
	ex, _ := newExecutor(t)
	seedTenant(t, ex, "t1")
	seedTenant(t, ex, "t2")
	for tenant, email := range map[string]string{"t1": "one@example.com", "t2": "two@example.com"} {
		err := ex.WithTenant(context.Background(), tenant, func(ctx context.Context, s Scope) error {
			_, err := s.Tx.Exec(ctx, `INSERT INTO users (id, tenant_id, email, password_hash, name) VALUES ($1, $2, $3, 'x', $3)`,
				tenant+"-user", tenant, email)
			return err
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	var emails []string
	err := ex.WithCredentialLookup(context.Background(), "TWO@example.com", func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT email FROM users`)
		if err != nil {
			return err
		}
		emails, err = pgx.CollectRows(rows, pgx.RowTo[string])
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(emails) != "[two@example.com]" {
		t.Fatalf("credential lookup saw %v", emails)
	}
}
