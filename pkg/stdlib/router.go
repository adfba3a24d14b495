// Package stdlib serves the ledger API on a net/http ServeMux.
package stdlib

import (
	"encoding/json"
	"io"
	"net/http"

	ledgerhttp "github.com/x402-foundation/permitledger/http"
)

// maxBodyBytes bounds request bodies read by the router
const maxBodyBytes = 1 << 20

// Options configures the router
type Options struct {
	// Metrics is mounted at /metrics when set
	Metrics http.Handler
}

// Option is a functional option for NewHandler
type Option func(*Options)

// WithMetrics mounts a metrics handler at /metrics
func WithMetrics(handler http.Handler) Option {
	return func(o *Options) {
		o.Metrics = handler
	}
}

// NewHandler registers every ledger route on a new ServeMux
func NewHandler(h *ledgerhttp.Handlers, opts ...Option) http.Handler {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET "+ledgerhttp.PathHealth, func(w http.ResponseWriter, r *http.Request) {
		write(w, h.Health())
	})
	mux.HandleFunc("GET "+ledgerhttp.PathToken, func(w http.ResponseWriter, r *http.Request) {
		write(w, h.TokenInfo(r.Context()))
	})
	mux.HandleFunc("GET "+ledgerhttp.PathDomain, func(w http.ResponseWriter, r *http.Request) {
		write(w, h.Domain(r.Context()))
	})
	mux.HandleFunc("GET "+ledgerhttp.PathBalances+"/{address}", func(w http.ResponseWriter, r *http.Request) {
		write(w, h.BalanceOf(r.Context(), r.PathValue("address")))
	})
	mux.HandleFunc("GET "+ledgerhttp.PathAllowances+"/{owner}/{spender}", func(w http.ResponseWriter, r *http.Request) {
		write(w, h.Allowance(r.Context(), r.PathValue("owner"), r.PathValue("spender")))
	})
	mux.HandleFunc("GET "+ledgerhttp.PathNonces+"/{address}", func(w http.ResponseWriter, r *http.Request) {
		write(w, h.Nonces(r.Context(), r.PathValue("address")))
	})
	mux.HandleFunc("GET "+ledgerhttp.PathCallNonces+"/{address}", func(w http.ResponseWriter, r *http.Request) {
		write(w, h.CallNonces(r.Context(), r.PathValue("address")))
	})

	post := func(path string, handle func(r *http.Request, body []byte) ledgerhttp.Response) {
		mux.HandleFunc("POST "+path, func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
			if err != nil {
				write(w, ledgerhttp.Response{Status: http.StatusRequestEntityTooLarge, Body: ledgerhttp.ErrorBody(err)})
				return
			}
			write(w, handle(r, body))
		})
	}
	post(ledgerhttp.PathPermit, func(r *http.Request, body []byte) ledgerhttp.Response {
		return h.Permit(r.Context(), r.Header.Get(ledgerhttp.HeaderSender), body)
	})
	post(ledgerhttp.PathTransfer, func(r *http.Request, body []byte) ledgerhttp.Response {
		return h.Transfer(r.Context(), body)
	})
	post(ledgerhttp.PathTransferFrom, func(r *http.Request, body []byte) ledgerhttp.Response {
		return h.TransferFrom(r.Context(), body)
	})
	post(ledgerhttp.PathApprove, func(r *http.Request, body []byte) ledgerhttp.Response {
		return h.Approve(r.Context(), body)
	})
	post(ledgerhttp.PathRelay, func(r *http.Request, body []byte) ledgerhttp.Response {
		return h.Relay(r.Context(), r.Header.Get(ledgerhttp.HeaderIdempotencyKey), body)
	})

	if options.Metrics != nil {
		mux.Handle("GET "+ledgerhttp.PathMetrics, options.Metrics)
	}

	return mux
}

func write(w http.ResponseWriter, resp ledgerhttp.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	_ = json.NewEncoder(w).Encode(resp.Body)
}
