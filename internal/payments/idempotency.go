package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bloomcart/bloomcart-backend/pkg/redis"
)

// IdempotencyGuard deduplicates gateway callbacks keyed by transaction
// reference. A marked key means the callback was already applied.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

// NewIdempotencyGuard builds a guard over the provided store.
func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{
		store: store,
		ttl:   ttl,
		scope: scope,
	}, nil
}

// CheckAndMark returns true when the reference was seen before. A fresh
// reference is marked atomically.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, txnRef string) (bool, error) {
	if txnRef == "" {
		return false, errors.New("transaction reference is required")
	}
	key := g.store.IdempotencyKey(g.scope, txnRef)
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

// Delete clears the mark so a failed application can be retried.
func (g *IdempotencyGuard) Delete(ctx context.Context, txnRef string) error {
	if txnRef == "" {
		return errors.New("transaction reference is required")
	}
	key := g.store.IdempotencyKey(g.scope, txnRef)
	return g.store.Del(ctx, key)
}
