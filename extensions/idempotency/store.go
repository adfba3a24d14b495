package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/x402-foundation/permitledger"
	"github.com/x402-foundation/permitledger/types"
)

// RelayStatus represents the result of checking the store.
type RelayStatus int

const (
	// StatusNotFound means no cached result and no in-flight request.
	StatusNotFound RelayStatus = iota
	// StatusCached means a cached result was found.
	StatusCached
	// StatusInFlight means another request is currently processing this relay.
	StatusInFlight
	// StatusConflict means the key is cached or in flight for a different request.
	StatusConflict
)

// RelayStore defines the interface for relay idempotency storage.
// Implementations must be safe for concurrent use.
type RelayStore interface {
	// CheckAndMark atomically checks the store and marks the key as in-flight if needed.
	// fingerprint identifies the request body; it is stored with the key and
	// compared on every later hit.
	//
	// Returns:
	//   - StatusCached + result + nil: A cached result exists, return it immediately
	//   - StatusInFlight + nil + done: Another request is processing, wait on done channel
	//   - StatusNotFound + nil + done: This request should proceed (now marked in-flight)
	//   - StatusConflict + nil + nil: The key belongs to a request with another fingerprint
	//
	// The done channel must be passed to Complete() or Fail() when the operation finishes.
	CheckAndMark(key, fingerprint string) (RelayStatus, *permitledger.RelayResult, chan struct{})

	// WaitForResult waits for an in-flight request to complete, respecting context cancellation.
	//
	// Returns:
	//   - The cached result if the in-flight request succeeded
	//   - nil if the in-flight request failed (caller should retry)
	//   - Error if context was cancelled
	WaitForResult(ctx context.Context, key string, done chan struct{}) (*permitledger.RelayResult, error)

	// Complete caches the result and signals any waiting goroutines via done.
	Complete(key string, result *permitledger.RelayResult, done chan struct{})

	// Fail removes the in-flight marker without caching a result,
	// signaling waiters that they should retry.
	Fail(key string, done chan struct{})
}

// KeyGenerator derives the deduplication key of a relay request.
type KeyGenerator func(permit types.SignedPermit, to common.Address, amount *big.Int) string

// DefaultKeyGenerator hashes the permit signature together with the transfer
// target and amount. A permit signature is single-use, so the key identifies
// one relay attempt.
func DefaultKeyGenerator(permit types.SignedPermit, to common.Address, amount *big.Int) string {
	h := sha256.New()
	h.Write([]byte(permit.Owner))
	h.Write([]byte(permit.Signature))
	h.Write(to.Bytes())
	if amount != nil {
		h.Write(amount.Bytes())
	}
	return hex.EncodeToString(h.Sum(nil))
}
