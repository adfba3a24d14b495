// Package idempotency provides relay idempotency as an opt-in extension for permit relayers.
//
// # Overview
//
// A relay submits a permit and then executes the transfer it authorizes. When a
// client retries a relay request (timeouts, dropped connections), resubmitting
// the same permit fails at the ledger because its nonce was already consumed.
// The retry would see an error even though the original relay succeeded.
// This package returns the original result instead.
//
// Ledger-level replay protection is unaffected: the wrapper never submits a
// permit twice, it only remembers what a completed relay returned.
//
// # Usage
//
// Basic usage with default in-memory cache:
//
//	relayer := permitledger.NewRelayer(backend, spenderSigner)
//
//	// Wrap with idempotency (opt-in)
//	idempotent := idempotency.Wrap(relayer)
//
// Custom TTL:
//
//	idempotent := idempotency.Wrap(relayer,
//	    idempotency.WithTTL(30 * time.Minute),
//	)
//
// Custom cache backend:
//
//	idempotent := idempotency.Wrap(relayer,
//	    idempotency.WithStore(myStore),
//	)
//
// # Implementing Custom Stores
//
// For distributed deployments, implement the RelayStore interface with your
// preferred backend (Redis, database, etc.). The interface provides:
//   - CheckAndMark: Atomic check-and-mark for deduplication, keyed by the
//     idempotency key and checked against the request fingerprint
//   - WaitForResult: Wait for in-flight requests to complete
//   - Complete: Cache successful results
//   - Fail: Clear in-flight marker on failure (allows retry)
//
// # How It Works
//
// 1. On Relay(), a key is derived from the signed permit and transfer (or supplied by the caller)
// 2. The store atomically checks for cached result or in-flight request
// 3. If cached: return immediately without touching the ledger, unless the
// key was stored for a different permit, target or amount, which fails with
// permitledger.ErrIdempotencyConflict
// 4. If in-flight: wait for the other request to complete, then return its result
// 5. Otherwise: relay, then cache the result
//
// Failed relays are NOT cached, allowing legitimate retries.
package idempotency
