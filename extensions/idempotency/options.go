package idempotency

import "time"

// config holds the configuration for IdempotentRelayer.
type config struct {
	ttl          time.Duration
	store        RelayStore
	keyGenerator KeyGenerator
}

// Option configures an IdempotentRelayer.
type Option func(*config)

// WithTTL sets how long completed relay results are remembered.
// Ignored when WithStore is given. Default: 10 minutes
func WithTTL(ttl time.Duration) Option {
	return func(c *config) {
		c.ttl = ttl
	}
}

// WithStore sets a custom RelayStore, e.g. one shared between relay instances.
func WithStore(store RelayStore) Option {
	return func(c *config) {
		c.store = store
	}
}

// WithKeyGenerator replaces DefaultKeyGenerator for Relay calls that carry
// no explicit key.
func WithKeyGenerator(gen KeyGenerator) Option {
	return func(c *config) {
		c.keyGenerator = gen
	}
}
