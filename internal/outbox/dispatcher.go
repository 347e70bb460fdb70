package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ticketing-suite/ticketing/internal/models"
	"github.com/ticketing-suite/ticketing/internal/tenancy"
	"github.com/ticketing-suite/ticketing/pkg/queue"
)

// ErrEventNotFound means the outbox row is not visible in the job's tenant.
var ErrEventNotFound = errors.New("outbox event not found")

// JobSource yields dispatch jobs; *queue.Queue satisfies it.
type JobSource interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// Publisher delivers an event to subscribers of a tenant; *redis.Client satisfies it.
type Publisher interface {
	PublishTenantEvent(ctx context.Context, tenantID string, payload []byte) (int64, error)
}

// EventStore locks a pending event, runs publish and marks it dispatched in
// the same tenant-bound transaction.
type EventStore interface {
	Dispatch(ctx context.Context, tenantID, eventID string, publish func(ctx context.Context, ev models.OutboxEvent) error) (bool, error)
}

// Repository is the Postgres EventStore.
type Repository struct {
	exec *tenancy.Executor
}

// NewRepository creates an outbox repository.
func NewRepository(exec *tenancy.Executor) *Repository {
	return &Repository{exec: exec}
}

// Dispatch reports false when the event was already dispatched.
func (r *Repository) Dispatch(ctx context.Context, tenantID, eventID string, publish func(ctx context.Context, ev models.OutboxEvent) error) (bool, error) {
	return tenancy.Query(ctx, r.exec, tenantID, func(ctx context.Context, s tenancy.Scope) (bool, error) {
		const query = `SELECT id, tenant_id, type, entity_id, payload, created_at, dispatched_at
			FROM outbox WHERE id = $1 AND tenant_id = $2 FOR UPDATE`
		var ev models.OutboxEvent
		err := s.Tx.QueryRow(ctx, query, eventID, s.TenantID).
			Scan(&ev.ID, &ev.TenantID, &ev.Type, &ev.EntityID, &ev.Payload, &ev.CreatedAt, &ev.DispatchedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrEventNotFound
		}
		if err != nil {
			return false, fmt.Errorf("load outbox event: %w", err)
		}
		if ev.DispatchedAt != nil {
			return false, nil
		}
		if err := publish(ctx, ev); err != nil {
			return false, err
		}
		const mark = `UPDATE outbox SET dispatched_at = NOW() WHERE id = $1 AND tenant_id = $2`
		if _, err := s.Tx.Exec(ctx, mark, eventID, s.TenantID); err != nil {
			return false, fmt.Errorf("mark outbox event dispatched: %w", err)
		}
		return true, nil
	})
}

// Dispatcher moves outbox jobs from the queue to tenant event channels.
type Dispatcher struct {
	jobs      JobSource
	events    EventStore
	publisher Publisher
	logger    *zap.Logger

	pollTimeout time.Duration
	backoff     time.Duration
}

// NewDispatcher creates an outbox dispatcher.
func NewDispatcher(jobs JobSource, events EventStore, publisher Publisher, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		jobs:        jobs,
		events:      events,
		publisher:   publisher,
		logger:      logger,
		pollTimeout: 5 * time.Second,
		backoff:     queue.RetryBackoff,
	}
}

// Process executes one dispatch job.
func (d *Dispatcher) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeOutboxDispatch {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.OutboxPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if payload.TenantID == "" || payload.EventID == "" {
		return fmt.Errorf("job %s has no tenant or event id", job.ID)
	}

	published, err := d.events.Dispatch(ctx, payload.TenantID, payload.EventID, func(ctx context.Context, ev models.OutboxEvent) error {
		body, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		if _, err := d.publisher.PublishTenantEvent(ctx, ev.TenantID, body); err != nil {
			return err
		}
		return nil
	})
	if errors.Is(err, ErrEventNotFound) {
		d.logger.Warn("outbox event missing, dropping job",
			zap.String("job_id", job.ID),
			zap.String("tenant_id", payload.TenantID),
			zap.String("event_id", payload.EventID),
		)
		return nil
	}
	if err != nil {
		return err
	}
	if published {
		d.logger.Info("outbox event dispatched",
			zap.String("tenant_id", payload.TenantID),
			zap.String("event_id", payload.EventID),
			zap.String("type", payload.EventType),
		)
	}
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("outbox dispatcher stopping")
			return
		default:
		}

		job, err := d.jobs.Dequeue(ctx, d.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			d.logger.Warn("dequeue error", zap.Error(err))
			d.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		d.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := d.Process(ctx, job); err != nil {
			d.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := d.jobs.Retry(ctx, job); reErr != nil {
				d.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			d.sleep(ctx)
		}
	}
}

func (d *Dispatcher) sleep(ctx context.Context) {
	t := time.NewTimer(d.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
