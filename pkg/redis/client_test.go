package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
)

type published struct {
	channel string
	message any
}

// fakeCmdable answers Publish; any other command panics on the nil interface.
type fakeCmdable struct {
	redis.Cmdable
	sent      []published
	receivers int64
	err       error
}

func (f *fakeCmdable) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	f.sent = append(f.sent, published{channel, message})
	return redis.NewIntResult(f.receivers, f.err)
}

func TestTenantChannel(t *testing.T) {
	if got := TenantChannel("acme"); got != "tenants:acme:events" {
		t.Fatalf("TenantChannel = %q", got)
	}
}

func TestPublishTenantEvent(t *testing.T) {
	cmd := &fakeCmdable{receivers: 2}
	n, err := NewPublisher(cmd, nil).PublishTenantEvent(context.Background(), "t1", []byte(`{"id":"ev1"}`))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("receivers = %d", n)
	}
	if len(cmd.sent) != 1 || cmd.sent[0].channel != "tenants:t1:events" {
		t.Fatalf("published %+v", cmd.sent)
	}
	if string(cmd.sent[0].message.([]byte)) != `{"id":"ev1"}` {
		t.Fatalf("payload = %v", cmd.sent[0].message)
	}
}

func TestPublishTenantEventError(t *testing.T) {
	down := errors.New("connection refused")
	_, err := NewPublisher(&fakeCmdable{err: down}, nil).PublishTenantEvent(context.Background(), "t1", nil)
	if !errors.Is(err, down) {
		t.Fatalf("expected wrapped publish error, got %v", err)
	}
}
