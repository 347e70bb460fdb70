package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	defaultKeyTTL        = 5 * time.Minute
	defaultKeyStale      = 15 * time.Minute
	defaultFetchTimeout  = 5 * time.Second
	defaultMissCooldown  = 10 * time.Second
	fetchAttempts        = 3
	fetchRetryBase       = 200 * time.Millisecond
	maxJWKSResponseBytes = 1 << 20
)

var (
	errMissingKid = errors.New("token header has no kid")
	errUnknownKid = errors.New("signing key not found")
)

type keyFreshness int

const (
	keyAbsent keyFreshness = iota
	keyCurrent
	keyExpiring
)

// KeySetOptions tunes a remote key set. Zero values take the defaults.
type KeySetOptions struct {
	HTTPClient   *http.Client
	TTL          time.Duration
	Stale        time.Duration
	FetchTimeout time.Duration
	MissCooldown time.Duration
	Logger       *zap.Logger
}

// KeySet caches the RSA signing keys published at a JWKS endpoint.
type KeySet struct {
	url          string
	client       *http.Client
	ttl          time.Duration
	stale        time.Duration
	fetchTimeout time.Duration
	missCooldown time.Duration
	logger       *zap.Logger
	now          func() time.Time

	flight singleflight.Group

	mu          sync.RWMutex
	keys        map[string]*rsa.PublicKey
	expiresAt   time.Time
	staleUntil  time.Time
	refreshedAt time.Time
}

type jwksDocument struct {
	Keys []struct {
		Kty string `json:"kty"`
		Kid string `json:"kid"`
		Use string `json:"use"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

// NewKeySet creates a lazily populated key set for url.
func NewKeySet(url string, opts KeySetOptions) *KeySet {
	ks := &KeySet{
		url:          url,
		client:       opts.HTTPClient,
		ttl:          opts.TTL,
		stale:        opts.Stale,
		fetchTimeout: opts.FetchTimeout,
		missCooldown: opts.MissCooldown,
		logger:       opts.Logger,
		now:          time.Now,
		keys:         map[string]*rsa.PublicKey{},
	}
	if ks.client == nil {
		ks.client = http.DefaultClient
	}
	if ks.ttl <= 0 {
		ks.ttl = defaultKeyTTL
	}
	if ks.stale <= 0 {
		ks.stale = defaultKeyStale
	}
	if ks.fetchTimeout <= 0 {
		ks.fetchTimeout = defaultFetchTimeout
	}
	if ks.missCooldown <= 0 {
		ks.missCooldown = defaultMissCooldown
	}
	if ks.logger == nil {
		ks.logger = zap.NewNop()
	}
	return ks
}

// Key returns the public key for kid. Expired keys still inside the stale
// window are served while a background refresh runs; unknown kids trigger a
// synchronous refresh unless one completed within the miss cooldown.
func (ks *KeySet) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if kid == "" {
		return nil, errMissingKid
	}
	key, state := ks.lookup(kid)
	switch state {
	case keyCurrent:
		return key, nil
	case keyExpiring:
		go func() { _ = ks.refresh(context.Background()) }()
		return key, nil
	}
	if ks.recentlyRefreshed() {
		// Another caller may have just loaded it.
		if key, _ := ks.lookup(kid); key != nil {
			return key, nil
		}
		return nil, errUnknownKid
	}
	if err := ks.refresh(ctx); err != nil {
		return nil, err
	}
	if key, _ := ks.lookup(kid); key != nil {
		return key, nil
	}
	return nil, errUnknownKid
}

func (ks *KeySet) lookup(kid string) (*rsa.PublicKey, keyFreshness) {
	now := ks.now()
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	key, ok := ks.keys[kid]
	switch {
	case !ok:
		return nil, keyAbsent
	case now.Before(ks.expiresAt):
		return key, keyCurrent
	case now.Before(ks.staleUntil):
		return key, keyExpiring
	default:
		return nil, keyAbsent
	}
}

func (ks *KeySet) recentlyRefreshed() bool {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return !ks.refreshedAt.IsZero() && ks.now().Sub(ks.refreshedAt) < ks.missCooldown
}

// refresh collapses concurrent callers into one fetch. The fetch runs on its
// own timeout so a cancelled caller does not abort it for the others.
func (ks *KeySet) refresh(ctx context.Context) error {
	ch := ks.flight.DoChan("jwks", func() (interface{}, error) {
		if ks.recentlyRefreshed() {
			return nil, nil
		}
		fetchCtx, cancel := context.WithTimeout(context.Background(), ks.fetchTimeout)
		defer cancel()
		keys, err := ks.fetchWithRetry(fetchCtx)
		if err != nil {
			ks.logger.Warn("jwks refresh failed", zap.String("url", ks.url), zap.Error(err))
			return nil, err
		}
		now := ks.now()
		ks.mu.Lock()
		ks.keys = keys
		ks.expiresAt = now.Add(ks.ttl)
		ks.staleUntil = ks.expiresAt.Add(ks.stale)
		ks.refreshedAt = now
		ks.mu.Unlock()
		ks.logger.Debug("jwks refreshed", zap.Int("keys", len(keys)))
		return nil, nil
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (ks *KeySet) fetchWithRetry(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	delay := fetchRetryBase
	var lastErr error
	for attempt := 0; attempt < fetchAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
			delay *= 2
		}
		keys, err := ks.fetch(ctx)
		if err == nil {
			return keys, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (ks *KeySet) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ks.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build jwks request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := ks.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch jwks: status %d", resp.StatusCode)
	}
	var doc jwksDocument
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxJWKSResponseBytes))
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || k.Kid == "" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub, err := rsaKey(k.N, k.E)
		if err != nil {
			ks.logger.Debug("skipping malformed jwk", zap.String("kid", k.Kid), zap.Error(err))
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return nil, errors.New("jwks has no usable RSA signing keys")
	}
	return keys, nil
}

func rsaKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	exp := new(big.Int).SetBytes(eb)
	if len(nb) == 0 || !exp.IsInt64() || exp.Int64() < 3 || exp.Int64() > 1<<31-1 {
		return nil, errors.New("invalid rsa parameters")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: int(exp.Int64())}, nil
}
