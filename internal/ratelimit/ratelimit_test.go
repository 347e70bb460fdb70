package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiterWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemoryLimiter(10)
	m.now = func() time.Time { return now }

	for i := 1; i <= 3; i++ {
		d, err := m.Allow(context.Background(), "ip", 3, time.Minute)
		if err != nil || !d.Allowed {
			t.Fatalf("hit %d: %+v %v", i, d, err)
		}
		if d.Remaining != 3-i {
			t.Fatalf("hit %d remaining = %d", i, d.Remaining)
		}
	}
	d, _ := m.Allow(context.Background(), "ip", 3, time.Minute)
	if d.Allowed || d.Remaining != 0 {
		t.Fatalf("4th hit should be limited: %+v", d)
	}
	if other, _ := m.Allow(context.Background(), "other-ip", 3, time.Minute); !other.Allowed {
		t.Fatal("keys must be counted independently")
	}

	now = now.Add(time.Minute)
	if d, _ := m.Allow(context.Background(), "ip", 3, time.Minute); !d.Allowed {
		t.Fatal("a new window should reset the counter")
	}
}

func TestMemoryLimiterCapacity(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemoryLimiter(1)
	m.now = func() time.Time { return now }

	if _, err := m.Allow(context.Background(), "a", 1, time.Second); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Allow(context.Background(), "b", 1, time.Second); err == nil {
		t.Fatal("expected capacity error while the first window is live")
	}
	now = now.Add(2 * time.Second)
	if _, err := m.Allow(context.Background(), "b", 1, time.Second); err != nil {
		t.Fatalf("expired windows should be collected: %v", err)
	}
}

func TestDisabledLimit(t *testing.T) {
	d, err := NewMemoryLimiter(0).Allow(context.Background(), "k", 0, time.Second)
	if err != nil || !d.Allowed {
		t.Fatalf("limit 0 disables limiting: %+v %v", d, err)
	}
}
