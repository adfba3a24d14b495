// Package echo serves the ledger API on an echo server.
package echo

import (
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	ledgerhttp "github.com/x402-foundation/permitledger/http"
	"github.com/x402-foundation/permitledger/types"
)

// Config configures NewServer. Zero values disable the matching feature.
type Config struct {
	Logger      *zap.Logger
	RateLimiter *ledgerhttp.RateLimiter
	Metrics     http.Handler
}

// NewServer creates an echo instance serving the ledger API
func NewServer(h *ledgerhttp.Handlers, cfg Config) *echo.Echo {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover(), CorrelationID(), AccessLog(logger))
	if cfg.RateLimiter != nil {
		e.Use(RateLimit(cfg.RateLimiter))
	}

	Register(e.Group(""), h)
	if cfg.Metrics != nil {
		e.GET(ledgerhttp.PathMetrics, echo.WrapHandler(cfg.Metrics))
	}
	return e
}

// Register adds the ledger routes to g
func Register(g *echo.Group, h *ledgerhttp.Handlers) {
	g.GET(ledgerhttp.PathHealth, func(c echo.Context) error {
		return write(c, h.Health())
	})
	g.GET(ledgerhttp.PathToken, func(c echo.Context) error {
		return write(c, h.TokenInfo(c.Request().Context()))
	})
	g.GET(ledgerhttp.PathDomain, func(c echo.Context) error {
		return write(c, h.Domain(c.Request().Context()))
	})
	g.GET(ledgerhttp.PathBalances+"/:address", func(c echo.Context) error {
		return write(c, h.BalanceOf(c.Request().Context(), c.Param("address")))
	})
	g.GET(ledgerhttp.PathAllowances+"/:owner/:spender", func(c echo.Context) error {
		return write(c, h.Allowance(c.Request().Context(), c.Param("owner"), c.Param("spender")))
	})
	g.GET(ledgerhttp.PathNonces+"/:address", func(c echo.Context) error {
		return write(c, h.Nonces(c.Request().Context(), c.Param("address")))
	})
	g.GET(ledgerhttp.PathCallNonces+"/:address", func(c echo.Context) error {
		return write(c, h.CallNonces(c.Request().Context(), c.Param("address")))
	})

	g.POST(ledgerhttp.PathPermit, withBody(func(c echo.Context, body []byte) ledgerhttp.Response {
		return h.Permit(c.Request().Context(), c.Request().Header.Get(ledgerhttp.HeaderSender), body)
	}))
	g.POST(ledgerhttp.PathTransfer, withBody(func(c echo.Context, body []byte) ledgerhttp.Response {
		return h.Transfer(c.Request().Context(), body)
	}))
	g.POST(ledgerhttp.PathTransferFrom, withBody(func(c echo.Context, body []byte) ledgerhttp.Response {
		return h.TransferFrom(c.Request().Context(), body)
	}))
	g.POST(ledgerhttp.PathApprove, withBody(func(c echo.Context, body []byte) ledgerhttp.Response {
		return h.Approve(c.Request().Context(), body)
	}))
	g.POST(ledgerhttp.PathRelay, withBody(func(c echo.Context, body []byte) ledgerhttp.Response {
		return h.Relay(c.Request().Context(), c.Request().Header.Get(ledgerhttp.HeaderIdempotencyKey), body)
	}))
}

// CorrelationID ensures every request carries a correlation id
func CorrelationID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			correlationID := ledgerhttp.NewCorrelationID(req.Header.Get(ledgerhttp.HeaderCorrelationID))
			c.Response().Header().Set(ledgerhttp.HeaderCorrelationID, correlationID)
			c.SetRequest(req.WithContext(ledgerhttp.WithCorrelationID(req.Context(), correlationID)))
			return next(c)
		}
	}
}

// AccessLog logs one line per request
func AccessLog(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			ledgerhttp.LoggerFromContext(c.Request().Context(), logger).Info("request completed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.Int("status", c.Response().Status),
				zap.Duration("latency", time.Since(start)),
			)
			return nil
		}
	}
}

// RateLimit rejects clients that exceed the limiter with 429
func RateLimit(rl *ledgerhttp.RateLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Path() == ledgerhttp.PathHealth {
				return next(c)
			}

			if !rl.Allow("ip:" + c.RealIP()) {
				c.Response().Header().Set("Retry-After", "1")
				return c.JSON(http.StatusTooManyRequests, types.ErrorResponse{
					Code:    "rate_limited",
					Message: "too many requests, retry later",
				})
			}
			return next(c)
		}
	}
}

func withBody(handle func(c echo.Context, body []byte) ledgerhttp.Response) echo.HandlerFunc {
	return func(c echo.Context) error {
		body, err := io.ReadAll(http.MaxBytesReader(c.Response(), c.Request().Body, 1<<20))
		if err != nil {
			return write(c, ledgerhttp.Response{Status: http.StatusRequestEntityTooLarge, Body: ledgerhttp.ErrorBody(err)})
		}
		return write(c, handle(c, body))
	}
}

func write(c echo.Context, resp ledgerhttp.Response) error {
	return c.JSON(resp.Status, resp.Body)
}
