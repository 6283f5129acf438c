// Package gin provides Gin-compatible middleware for x402 payment gating.
// This package is a thin adapter that translates gin.Context to the shared
// enforcement engine and delegates all verification and settlement logic to
// the http package's dispatcher wiring.
package gin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	x402 "github.com/paygatehq/x402-go"
	"github.com/paygatehq/x402-go/encoding"
	httpx402 "github.com/paygatehq/x402-go/http"
)

// ContextKey is the gin.Context key under which the verified
// *gate.AcquiredPayment is stored for handler access via c.Get.
const ContextKey = "x402_payment"

// NewX402Middleware creates a new x402 payment middleware for Gin.
// Requests not matching any configured route pass through untouched.
// Settlement is deferred until the protected handler commits a success
// status, so failing handlers never settle.
//
// Example usage:
//
//	mw, err := NewX402Middleware(&httpx402.Config{
//	    PayTo: "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0",
//	    Routes: gate.RoutesConfig{
//	        {Pattern: "GET /api/premium/*", Config: gate.RouteConfig{
//	            Price:   x402.USD("$0.01"),
//	            Network: "base",
//	        }},
//	    },
//	})
//	r := gin.Default()
//	r.Use(mw)
//	r.GET("/api/premium/data", func(c *gin.Context) {
//	    payment, _ := c.Get(ContextKey)
//	    acquired := payment.(*gate.AcquiredPayment)
//	    c.JSON(200, gin.H{"network": acquired.Payload.Network})
//	})
func NewX402Middleware(config *httpx402.Config) (gin.HandlerFunc, error) {
	dispatcher, err := httpx402.NewDispatcher(config)
	if err != nil {
		return nil, err
	}

	return func(c *gin.Context) {
		logger := slog.Default()

		// OPTIONS bypass for CORS preflight.
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		route := dispatcher.Match(c.Request.URL.Path, c.Request.Method)
		if route == nil {
			c.Next()
			return
		}

		req := httpx402.WrapRequest(c.Request)
		accepts := route.PaymentRequirements(req)

		acquired, err := route.AcquirePayment(c.Request.Context(), req, accepts)
		if err != nil {
			var protoErr *x402.ProtocolError
			if errors.As(err, &protoErr) {
				logger.Warn("payment rejected", "path", c.Request.URL.Path, "reason", protoErr.Reason)
				c.AbortWithStatusJSON(http.StatusPaymentRequired, protoErr)
				return
			}
			logger.Error("facilitator verification failed", "error", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"x402Version": x402.X402Version,
				"error":       "Payment verification failed",
			})
			return
		}

		if acquired == nil {
			logger.Info("no payment header provided, rendering paywall", "path", c.Request.URL.Path)
			html, err := httpx402.PaywallHTML(route, accepts, req.URL(), config.Paywall)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusPaymentRequired,
					x402.NewProtocolError("X-PAYMENT header is required", accepts, ""))
				return
			}
			c.Abort()
			c.Data(http.StatusPaymentRequired, "text/html; charset=utf-8", []byte(html))
			return
		}

		logger.Info("payment verified", "path", c.Request.URL.Path, "network", acquired.Payload.Network)

		// Store payment info in Gin context for handler access.
		c.Set(ContextKey, acquired)

		// Also store in stdlib context for compatibility with http helpers.
		ctx := context.WithValue(c.Request.Context(), httpx402.PaymentContextKey, acquired)
		c.Request = c.Request.WithContext(ctx)

		original := c.Writer
		c.Writer = &settlementWriter{
			ResponseWriter: original,
			settleFunc: func() bool {
				if config.VerifyOnly {
					return true
				}

				settlement, err := acquired.Settle(c.Request.Context())
				if err != nil {
					var protoErr *x402.ProtocolError
					if errors.As(err, &protoErr) {
						logger.Warn("settlement rejected", "reason", protoErr.Reason)
						writeJSON(original, http.StatusPaymentRequired, protoErr)
					} else {
						logger.Error("settlement failed", "error", err)
						writeJSON(original, http.StatusServiceUnavailable, gin.H{
							"x402Version": x402.X402Version,
							"error":       "Payment settlement failed",
						})
					}
					return false
				}

				logger.Info("payment settled", "transaction", settlement.Transaction, "payer", settlement.Payer)

				encoded, err := encoding.EncodeSettlement(*settlement)
				if err != nil {
					// Payment went through; the missing header is not
					// worth failing the response over.
					logger.Warn("failed to encode payment response header", "error", err)
					return true
				}
				original.Header().Set("X-PAYMENT-RESPONSE", encoded)
				return true
			},
			onFailure: func(statusCode int) {
				logger.Warn("handler returned non-success, skipping settlement", "status", statusCode)
			},
		}

		c.Next()
	}, nil
}

func writeJSON(w gin.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

// settlementWriter wraps gin.ResponseWriter to intercept the moment the
// downstream handler commits its response. Settlement runs inside
// WriteHeader, after the handler has chosen its status but before that
// status reaches the wire, so a failed handler never triggers a settle and
// a failed settle can still replace the response.
type settlementWriter struct {
	gin.ResponseWriter
	settleFunc func() bool
	onFailure  func(statusCode int)
	committed  bool
	hijacked   bool
}

func (w *settlementWriter) WriteHeader(statusCode int) {
	if w.committed {
		return
	}
	w.committed = true

	// Handler is failing: let the error pass through, no settlement.
	if statusCode >= 400 {
		if w.onFailure != nil {
			w.onFailure(statusCode)
		}
		w.ResponseWriter.WriteHeader(statusCode)
		return
	}

	if !w.settleFunc() {
		// settleFunc has written its own error response.
		w.hijacked = true
		return
	}

	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *settlementWriter) Write(b []byte) (int, error) {
	if !w.committed {
		w.WriteHeader(http.StatusOK)
	}

	// Settlement failed and the error response was already written.
	// Discard the handler's payload to avoid a mixed response body.
	if w.hijacked {
		return len(b), nil
	}

	return w.ResponseWriter.Write(b)
}

func (w *settlementWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

func (w *settlementWriter) WriteHeaderNow() {
	if !w.committed {
		w.WriteHeader(http.StatusOK)
	}
	if !w.hijacked {
		w.ResponseWriter.WriteHeaderNow()
	}
}
