// Package http exposes a ledger over HTTP: framework-agnostic request
// handlers used by the gin and echo adapters, JSON-schema validation of
// request bodies, and LedgerClient, a Backend that talks to a remote ledger.
package http

import (
	"net/http"

	"github.com/x402-foundation/permitledger"
)

const (
	// HeaderSender names the gas payer of a permit submission. Other mutating
	// calls carry their sender inside the signed body.
	HeaderSender = "X-Sender"

	// HeaderCorrelationID carries the request correlation id
	HeaderCorrelationID = "X-Correlation-ID"

	// HeaderIdempotencyKey may replace the relay body's idempotencyKey field
	HeaderIdempotencyKey = "Idempotency-Key"
)

// Route paths shared by the server adapters and LedgerClient
const (
	PathHealth       = "/health"
	PathMetrics      = "/metrics"
	PathToken        = "/token"
	PathDomain       = "/domain"
	PathBalances     = "/balances"
	PathAllowances   = "/allowances"
	PathNonces       = "/nonces"
	PathCallNonces   = "/callNonces"
	PathPermit       = "/permit"
	PathTransfer     = "/transfer"
	PathTransferFrom = "/transferFrom"
	PathApprove      = "/approve"
	PathRelay        = "/relay"
)

// NewLocalHandlers serves an in-process ledger
func NewLocalHandlers(ledger *permitledger.Ledger, opts ...HandlerOption) *Handlers {
	return NewHandlers(permitledger.NewLocalBackend(ledger), opts...)
}

// NewClient creates a LedgerClient for the ledger API at url
func NewClient(url string) *LedgerClient {
	return NewLedgerClient(&ClientConfig{URL: url})
}

// StatusOK reports whether a handler status is a 2xx code
func StatusOK(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}
