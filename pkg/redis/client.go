package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Client wraps go-redis client with optional logger.
type Client struct {
	*redis.Client
	logger *zap.Logger
}

// NewClient creates a Redis client and verifies connectivity.
func NewClient(ctx context.Context, addr, password string, db int, logger *zap.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.Info("Redis client connected", zap.String("addr", addr))
	return &Client{Client: rdb, logger: logger}, nil
}

// TenantChannel is the pub/sub channel carrying a tenant's domain events.
func TenantChannel(tenantID string) string {
	return "tenants:" + tenantID + ":events"
}

// Publisher publishes tenant events on any go-redis command client.
type Publisher struct {
	cmd    redis.Cmdable
	logger *zap.Logger
}

// NewPublisher creates a tenant event publisher on cmd.
func NewPublisher(cmd redis.Cmdable, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{cmd: cmd, logger: logger}
}

// PublishTenantEvent publishes payload on the tenant's event channel and
// returns the number of subscribers that received it.
func (p *Publisher) PublishTenantEvent(ctx context.Context, tenantID string, payload []byte) (int64, error) {
	n, err := p.cmd.Publish(ctx, TenantChannel(tenantID), payload).Result()
	if err != nil {
		return 0, fmt.Errorf("publish tenant event: %w", err)
	}
	p.logger.Debug("tenant event published", zap.String("tenant_id", tenantID), zap.Int64("receivers", n))
	return n, nil
}

// PublishTenantEvent publishes payload on the tenant's event channel.
func (c *Client) PublishTenantEvent(ctx context.Context, tenantID string, payload []byte) (int64, error) {
	return NewPublisher(c.Client, c.logger).PublishTenantEvent(ctx, tenantID, payload)
}
