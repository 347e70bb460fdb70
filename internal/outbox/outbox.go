// Package outbox records domain events in the writer's transaction and
// dispatches them to the tenant's Redis event channel after commit.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ticketing-suite/ticketing/internal/models"
	"github.com/ticketing-suite/ticketing/pkg/queue"
)

// Enqueuer hands committed events to the dispatch worker; *queue.Queue satisfies it.
type Enqueuer interface {
	EnqueueOutbox(ctx context.Context, payload queue.OutboxPayload) error
}

// Record inserts an event in tx. It becomes visible to the dispatcher only
// if tx commits.
func Record(ctx context.Context, tx pgx.Tx, tenantID, eventType, entityID string, payload any) (models.OutboxEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return models.OutboxEvent{}, fmt.Errorf("marshal event payload: %w", err)
	}
	ev := models.OutboxEvent{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Type:     eventType,
		EntityID: entityID,
		Payload:  body,
	}
	const query = `INSERT INTO outbox (id, tenant_id, type, entity_id, payload)
		VALUES ($1, $2, $3, $4, $5) RETURNING created_at`
	if err := tx.QueryRow(ctx, query, ev.ID, ev.TenantID, ev.Type, ev.EntityID, string(body)).Scan(&ev.CreatedAt); err != nil {
		return models.OutboxEvent{}, fmt.Errorf("insert outbox event: %w", err)
	}
	return ev, nil
}

// Notify enqueues a committed event. A nil enqueuer or a queue failure
// leaves the row pending; the request that wrote it still succeeds.
func Notify(ctx context.Context, enq Enqueuer, ev models.OutboxEvent, logger *zap.Logger) {
	if enq == nil || ev.ID == "" {
		return
	}
	err := enq.EnqueueOutbox(ctx, queue.OutboxPayload{TenantID: ev.TenantID, EventID: ev.ID, EventType: ev.Type})
	if err != nil && logger != nil {
		logger.Warn("outbox enqueue failed",
			zap.String("tenant_id", ev.TenantID),
			zap.String("event_id", ev.ID),
			zap.Error(err),
		)
	}
}
