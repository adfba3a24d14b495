// Package gin serves the ledger API on a gin engine.
package gin

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	ledgerhttp "github.com/x402-foundation/permitledger/http"
)

// RouterOptions is the options for NewRouter.
type RouterOptions struct {
	Logger      *zap.Logger
	RateLimiter *ledgerhttp.RateLimiter
	Metrics     http.Handler
	Mounts      map[string]http.Handler
}

// Options is the type for the options for NewRouter.
type Options func(*RouterOptions)

// WithLogger enables the zap access log.
func WithLogger(logger *zap.Logger) Options {
	return func(options *RouterOptions) {
		options.Logger = logger
	}
}

// WithRateLimiter enables per-client rate limiting.
func WithRateLimiter(rl *ledgerhttp.RateLimiter) Options {
	return func(options *RouterOptions) {
		options.RateLimiter = rl
	}
}

// WithMetrics mounts a metrics handler at /metrics.
func WithMetrics(handler http.Handler) Options {
	return func(options *RouterOptions) {
		options.Metrics = handler
	}
}

// WithMount serves handler for every path under prefix.
func WithMount(prefix string, handler http.Handler) Options {
	return func(options *RouterOptions) {
		if options.Mounts == nil {
			options.Mounts = make(map[string]http.Handler)
		}
		options.Mounts[prefix] = handler
	}
}

// NewRouter creates a gin engine serving the ledger API
func NewRouter(h *ledgerhttp.Handlers, opts ...Options) *gin.Engine {
	options := &RouterOptions{Logger: zap.NewNop()}
	for _, opt := range opts {
		opt(options)
	}

	r := gin.New()
	r.Use(gin.Recovery(), CorrelationID(), AccessLog(options.Logger))
	if options.RateLimiter != nil {
		r.Use(RateLimit(options.RateLimiter, options.Logger))
	}

	Register(r, h)

	if options.Metrics != nil {
		r.GET(ledgerhttp.PathMetrics, gin.WrapH(options.Metrics))
	}
	for prefix, handler := range options.Mounts {
		r.Any(prefix+"/*path", gin.WrapH(handler))
	}
	return r
}

// Register adds the ledger routes to an existing router group
func Register(r gin.IRouter, h *ledgerhttp.Handlers) {
	r.GET(ledgerhttp.PathHealth, func(c *gin.Context) {
		write(c, h.Health())
	})
	r.GET(ledgerhttp.PathToken, func(c *gin.Context) {
		write(c, h.TokenInfo(c.Request.Context()))
	})
	r.GET(ledgerhttp.PathDomain, func(c *gin.Context) {
		write(c, h.Domain(c.Request.Context()))
	})
	r.GET(ledgerhttp.PathBalances+"/:address", func(c *gin.Context) {
		write(c, h.BalanceOf(c.Request.Context(), c.Param("address")))
	})
	r.GET(ledgerhttp.PathAllowances+"/:owner/:spender", func(c *gin.Context) {
		write(c, h.Allowance(c.Request.Context(), c.Param("owner"), c.Param("spender")))
	})
	r.GET(ledgerhttp.PathNonces+"/:address", func(c *gin.Context) {
		write(c, h.Nonces(c.Request.Context(), c.Param("address")))
	})
	r.GET(ledgerhttp.PathCallNonces+"/:address", func(c *gin.Context) {
		write(c, h.CallNonces(c.Request.Context(), c.Param("address")))
	})

	r.POST(ledgerhttp.PathPermit, withBody(func(c *gin.Context, body []byte) ledgerhttp.Response {
		return h.Permit(c.Request.Context(), c.GetHeader(ledgerhttp.HeaderSender), body)
	}))
	r.POST(ledgerhttp.PathTransfer, withBody(func(c *gin.Context, body []byte) ledgerhttp.Response {
		return h.Transfer(c.Request.Context(), body)
	}))
	r.POST(ledgerhttp.PathTransferFrom, withBody(func(c *gin.Context, body []byte) ledgerhttp.Response {
		return h.TransferFrom(c.Request.Context(), body)
	}))
	r.POST(ledgerhttp.PathApprove, withBody(func(c *gin.Context, body []byte) ledgerhttp.Response {
		return h.Approve(c.Request.Context(), body)
	}))
	r.POST(ledgerhttp.PathRelay, withBody(func(c *gin.Context, body []byte) ledgerhttp.Response {
		return h.Relay(c.Request.Context(), c.GetHeader(ledgerhttp.HeaderIdempotencyKey), body)
	}))
}

func withBody(handle func(c *gin.Context, body []byte) ledgerhttp.Response) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20))
		if err != nil {
			write(c, ledgerhttp.Response{Status: http.StatusRequestEntityTooLarge, Body: ledgerhttp.ErrorBody(err)})
			return
		}
		write(c, handle(c, body))
	}
}

func write(c *gin.Context, resp ledgerhttp.Response) {
	c.JSON(resp.Status, resp.Body)
}
