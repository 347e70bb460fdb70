package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"
)

func newTestKeySet(srv *jwksServer, clock *fakeClock) *KeySet {
	ks := NewKeySet("https://idp.example.com/discovery/v2.0/keys", KeySetOptions{
		HTTPClient:   srv.client(),
		TTL:          time.Minute,
		Stale:        5 * time.Minute,
		FetchTimeout: time.Second,
		MissCooldown: 10 * time.Second,
	})
	ks.now = clock.Now
	return ks
}

func TestKeySetCachesKeys(t *testing.T) {
	k1, _ := testKeys(t)
	srv := newJWKSServer(map[string]*rsa.PublicKey{"k1": &k1.PublicKey})
	ks := newTestKeySet(srv, newFakeClock(time.Now()))

	for i := 0; i < 3; i++ {
		key, err := ks.Key(context.Background(), "k1")
		if err != nil {
			t.Fatalf("Key: %v", err)
		}
		if key.N.Cmp(k1.PublicKey.N) != 0 {
			t.Fatal("unexpected key returned")
		}
	}
	if got := srv.fetches.Load(); got != 1 {
		t.Fatalf("fetches = %d, want 1", got)
	}
}

func TestKeySetServesStaleKeyWhileRefreshing(t *testing.T) {
	k1, _ := testKeys(t)
	srv := newJWKSServer(map[string]*rsa.PublicKey{"k1": &k1.PublicKey})
	clock := newFakeClock(time.Now())
	ks := newTestKeySet(srv, clock)

	if _, err := ks.Key(context.Background(), "k1"); err != nil {
		t.Fatalf("Key: %v", err)
	}
	// Past the TTL but inside the stale window, with the endpoint down.
	srv.set(nil, http.StatusServiceUnavailable)
	clock.Advance(2 * time.Minute)

	if _, err := ks.Key(context.Background(), "k1"); err != nil {
		t.Fatalf("stale key should be served: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for srv.fetches.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if srv.fetches.Load() < 2 {
		t.Fatal("expected a background refresh")
	}
}

func TestKeySetRejectsKeysPastStaleWindow(t *testing.T) {
	k1, _ := testKeys(t)
	srv := newJWKSServer(map[string]*rsa.PublicKey{"k1": &k1.PublicKey})
	clock := newFakeClock(time.Now())
	ks := newTestKeySet(srv, clock)

	if _, err := ks.Key(context.Background(), "k1"); err != nil {
		t.Fatalf("Key: %v", err)
	}
	srv.set(nil, http.StatusInternalServerError)
	clock.Advance(10 * time.Minute)

	if _, err := ks.Key(context.Background(), "k1"); err == nil {
		t.Fatal("expected failure once keys are past the stale window and refresh fails")
	}
}

func TestKeySetUnknownKidRefreshesOnceForConcurrentCallers(t *testing.T) {
	k1, k2 := testKeys(t)
	srv := newJWKSServer(map[string]*rsa.PublicKey{"k1": &k1.PublicKey})
	clock := newFakeClock(time.Now())
	ks := newTestKeySet(srv, clock)

	if _, err := ks.Key(context.Background(), "k1"); err != nil {
		t.Fatalf("Key: %v", err)
	}
	srv.set(map[string]*rsa.PublicKey{"k1": &k1.PublicKey, "k2": &k2.PublicKey}, http.StatusOK)
	clock.Advance(15 * time.Second)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ks.Key(context.Background(), "k2"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Key(k2): %v", err)
	}
	if got := srv.fetches.Load(); got != 2 {
		t.Fatalf("fetches = %d, want 2", got)
	}
}

func TestKeySetUnknownKidCooldown(t *testing.T) {
	k1, _ := testKeys(t)
	srv := newJWKSServer(map[string]*rsa.PublicKey{"k1": &k1.PublicKey})
	ks := newTestKeySet(srv, newFakeClock(time.Now()))

	if _, err := ks.Key(context.Background(), "k1"); err != nil {
		t.Fatalf("Key: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := ks.Key(context.Background(), "random-kid"); !errors.Is(err, errUnknownKid) {
			t.Fatalf("expected errUnknownKid, got %v", err)
		}
	}
	if got := srv.fetches.Load(); got != 1 {
		t.Fatalf("fetches = %d, want 1 inside the cooldown", got)
	}
}

func TestKeySetFetchFailure(t *testing.T) {
	srv := newJWKSServer(nil)
	srv.set(nil, http.StatusBadGateway)
	ks := newTestKeySet(srv, newFakeClock(time.Now()))

	if _, err := ks.Key(context.Background(), "k1"); err == nil {
		t.Fatal("expected error when the key endpoint is down")
	}
	if got := srv.fetches.Load(); got != fetchAttempts {
		t.Fatalf("fetches = %d, want %d attempts", got, fetchAttempts)
	}
}

func TestKeySetRequiresKid(t *testing.T) {
	ks := NewKeySet("https://idp.example.com/keys", KeySetOptions{})
	if _, err := ks.Key(context.Background(), ""); !errors.Is(err, errMissingKid) {
		t.Fatalf("expected errMissingKid, got %v", err)
	}
}
