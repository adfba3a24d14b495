package idempotency

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/x402-foundation/permitledger"
	"github.com/x402-foundation/permitledger/types"
)

// IdempotentRelayer wraps a permitledger.Relayer so that retried relay
// requests return the result of the original relay.
type IdempotentRelayer struct {
	inner        *permitledger.Relayer
	store        RelayStore
	keyGenerator KeyGenerator
}

// Wrap creates an IdempotentRelayer around relayer.
//
// Default configuration:
//   - InMemoryStore with 10-minute TTL
//   - DefaultKeyGenerator
func Wrap(relayer *permitledger.Relayer, opts ...Option) *IdempotentRelayer {
	cfg := &config{
		ttl:          10 * time.Minute,
		keyGenerator: DefaultKeyGenerator,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	store := cfg.store
	if store == nil {
		store = NewInMemoryStore(cfg.ttl)
	}

	return &IdempotentRelayer{
		inner:        relayer,
		store:        store,
		keyGenerator: cfg.keyGenerator,
	}
}

// Relay relays with a key derived from the request
func (r *IdempotentRelayer) Relay(ctx context.Context, permit types.SignedPermit, to common.Address, amount *big.Int) (*permitledger.RelayResult, error) {
	return r.RelayWithKey(ctx, r.keyGenerator(permit, to, amount), permit, to, amount)
}

// RelayWithKey relays under a caller-supplied idempotency key.
// An empty key falls back to the key generator. Reusing a key for a
// different permit, target or amount fails with
// permitledger.ErrIdempotencyConflict.
func (r *IdempotentRelayer) RelayWithKey(ctx context.Context, key string, permit types.SignedPermit, to common.Address, amount *big.Int) (*permitledger.RelayResult, error) {
	if key == "" {
		key = r.keyGenerator(permit, to, amount)
	}
	fingerprint := DefaultKeyGenerator(permit, to, amount)

	status, result, done := r.store.CheckAndMark(key, fingerprint)

	switch status {
	case StatusCached:
		return result, nil

	case StatusConflict:
		return nil, permitledger.NewLedgerError(permitledger.ErrCodeIdempotencyConflict,
			"idempotency key reused for a different relay", map[string]interface{}{"key": key})

	case StatusInFlight:
		result, err := r.store.WaitForResult(ctx, key, done)
		if err != nil {
			return nil, err
		}
		if result != nil {
			return result, nil
		}
		// The in-flight relay failed; take a fresh slot
		return r.RelayWithKey(ctx, key, permit, to, amount)

	case StatusNotFound:
		// This request owns the in-flight slot
	}

	result, err := r.inner.Relay(ctx, permit, to, amount)
	if err != nil {
		r.store.Fail(key, done)
		return nil, err
	}

	r.store.Complete(key, result, done)
	return result, nil
}

// Inner returns the wrapped relayer
func (r *IdempotentRelayer) Inner() *permitledger.Relayer {
	return r.inner
}
