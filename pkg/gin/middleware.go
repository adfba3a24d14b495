package gin

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	ledgerhttp "github.com/x402-foundation/permitledger/http"
	"github.com/x402-foundation/permitledger/types"
)

const correlationIDKey = "correlationID"

// CorrelationID ensures every request carries a correlation id, echoed in
// the response and stored on the request context.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := ledgerhttp.NewCorrelationID(c.GetHeader(ledgerhttp.HeaderCorrelationID))

		c.Set(correlationIDKey, correlationID)
		c.Header(ledgerhttp.HeaderCorrelationID, correlationID)
		c.Request = c.Request.WithContext(ledgerhttp.WithCorrelationID(c.Request.Context(), correlationID))

		c.Next()
	}
}

// GetCorrelationID retrieves the correlation ID from the Gin context
func GetCorrelationID(c *gin.Context) string {
	return c.GetString(correlationIDKey)
}

// AccessLog logs one line per request after it completes
func AccessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if sender := c.GetHeader(ledgerhttp.HeaderSender); sender != "" {
			fields = append(fields, zap.String("sender", sender))
		}

		log := ledgerhttp.LoggerFromContext(c.Request.Context(), logger)
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			log.Error("request completed", fields...)
		case c.Writer.Status() >= http.StatusBadRequest:
			log.Warn("request completed", fields...)
		default:
			log.Info("request completed", fields...)
		}
	}
}

// RateLimit rejects clients that exceed the limiter with 429. Clients are
// keyed by IP; the sender header is caller-chosen and not a client identity.
func RateLimit(rl *ledgerhttp.RateLimiter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == ledgerhttp.PathHealth {
			c.Next()
			return
		}

		clientID := clientIdentifier(c)
		c.Header("X-RateLimit-Limit", fmt.Sprintf("%g", float64(rl.Limit())))

		if !rl.Allow(clientID) {
			logger.Warn("Rate limit exceeded",
				zap.String("client_id", clientID),
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
			)
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, types.ErrorResponse{
				Code:    "rate_limited",
				Message: "too many requests, retry later",
			})
			return
		}

		c.Next()
	}
}

func clientIdentifier(c *gin.Context) string {
	clientIP := c.ClientIP()
	if clientIP == "" {
		clientIP = "unknown"
	}
	return "ip:" + clientIP
}
