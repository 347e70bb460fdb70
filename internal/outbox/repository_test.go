package outbox

import (
	"context"
	"errors"
	"testing"

	"github.com/ticketing-suite/ticketing/internal/models"
	"github.com/ticketing-suite/ticketing/internal/tenancy"
	"github.com/ticketing-suite/ticketing/pkg/database/testdb"
)

func TestRepositoryDispatchIsTenantScoped(t *testing.T) {
	pool := testdb.NewDatabase(t)
	testdb.SeedTenant(t, pool, "t1", "t1-site", "fault")
	testdb.SeedTenant(t, pool, "t2", "t2-site", "fault")
	exec := tenancy.NewExecutor(pool, nil)
	ctx := context.Background()

	var ev models.OutboxEvent
	err := exec.WithTenant(ctx, "t1", func(ctx context.Context, s tenancy.Scope) error {
		var err error
		ev, err = Record(ctx, s.Tx, s.TenantID, models.EventCommentCreated, "c1", map[string]string{"body": "hi"})
		return err
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	repo := NewRepository(exec)
	publish := func(context.Context, models.OutboxEvent) error { return nil }

	if _, err := repo.Dispatch(ctx, "t2", ev.ID, publish); !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("foreign dispatch: %v", err)
	}
	published, err := repo.Dispatch(ctx, "t1", ev.ID, publish)
	if err != nil || !published {
		t.Fatalf("dispatch = %v, %v", published, err)
	}
	published, err = repo.Dispatch(ctx, "t1", ev.ID, publish)
	if err != nil || published {
		t.Fatalf("second dispatch = %v, %v; want already dispatched", published, err)
	}
}

func TestRecordRollsBackWithWriter(t *testing.T) {
	pool := testdb.NewDatabase(t)
	testdb.SeedTenant(t, pool, "t1", "t1-site", "fault")
	exec := tenancy.NewExecutor(pool, nil)
	ctx := context.Background()

	var ev models.OutboxEvent
	boom := errors.New("boom")
	err := exec.WithTenant(ctx, "t1", func(ctx context.Context, s tenancy.Scope) error {
		var err error
		if ev, err = Record(ctx, s.Tx, s.TenantID, models.EventCommentCreated, "c1", nil); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	_, err = NewRepository(exec).Dispatch(ctx, "t1", ev.ID, func(context.Context, models.OutboxEvent) error { return nil })
	if !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("rolled back event visible: %v", err)
	}
}

func TestRepositoryDispatchFiltersOnTenant(t *testing.T) {
	rec := &testdb.Recorder{}
	repo := NewRepository(tenancy.NewExecutor(rec, nil))
	published, err := repo.Dispatch(context.Background(), "t2", "ev1", func(context.Context, models.OutboxEvent) error { return nil })
	if err != nil || !published {
		t.Fatalf("dispatch = %v, %v", published, err)
	}
	rec.AssertTenantFiltered(t, "t2")
	if n := len(rec.Statements()); n != 2 {
		t.Fatalf("recorded %d statements, want select and mark", n)
	}
}
