// Package http binds the x402 enforcement engine to net/http. The
// middleware gates configured routes behind payment, defers settlement
// until the protected handler commits a success status, and emits the
// protocol's 402 JSON bodies and X-PAYMENT-RESPONSE headers.
package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	x402 "github.com/paygatehq/x402-go"
	"github.com/paygatehq/x402-go/encoding"
	"github.com/paygatehq/x402-go/facilitator"
	"github.com/paygatehq/x402-go/gate"
	"github.com/paygatehq/x402-go/paywall"
)

// Config holds the configuration for the x402 middleware.
type Config struct {
	// PayTo is the payment recipient address.
	PayTo string

	// Routes declares which routes require payment, and at what price.
	Routes gate.RoutesConfig

	// FacilitatorURL is the facilitator endpoint. Ignored when Facilitator
	// is set; defaults to gate.DefaultFacilitatorURL.
	FacilitatorURL string

	// Facilitator overrides the HTTP facilitator client, e.g. for tests.
	Facilitator facilitator.Interface

	// Paywall is the branding for the HTML paywall shown to browsers.
	Paywall *paywall.Config

	// VerifyOnly skips settlement when true (payments are only verified).
	VerifyOnly bool
}

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// PaymentContextKey is the context key under which the verified
// *gate.AcquiredPayment is stored for handler access.
const PaymentContextKey = contextKey("x402_payment")

// NewDispatcher compiles the route configuration into an enforcement
// engine wired for HTTP: the X-PAYMENT extractor, the browser paywall
// predicate, and request-URL resource derivation. The Gin and Chi adapters
// build on this too.
func NewDispatcher(config *Config) (*gate.Dispatcher, error) {
	opts := []gate.Option{
		gate.WithExtractor(ExtractPayment),
		gate.WithPaywallPredicate(IsBrowser),
		gate.WithResourceFromRequest(func(req gate.Request) string { return req.URL() }),
	}
	switch {
	case config.Facilitator != nil:
		opts = append(opts, gate.WithFacilitator(config.Facilitator))
	case config.FacilitatorURL != "":
		opts = append(opts, gate.WithFacilitatorURL(config.FacilitatorURL))
	}
	return gate.New(config.PayTo, config.Routes, opts...)
}

// NewX402Middleware compiles the route configuration and returns a
// middleware that wraps HTTP handlers with payment gating. Requests not
// matching any configured route pass through untouched. Invalid
// configuration is reported here, as *x402.ConfigError, never per request.
func NewX402Middleware(config *Config) (func(http.Handler) http.Handler, error) {
	dispatcher, err := NewDispatcher(config)
	if err != nil {
		return nil, err
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := slog.Default()

			// OPTIONS bypass for CORS preflight.
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			route := dispatcher.Match(r.URL.Path, r.Method)
			if route == nil {
				next.ServeHTTP(w, r)
				return
			}

			req := &requestAdapter{r: r}
			accepts := route.PaymentRequirements(req)

			acquired, err := route.AcquirePayment(r.Context(), req, accepts)
			if err != nil {
				var protoErr *x402.ProtocolError
				if errors.As(err, &protoErr) {
					logger.Warn("payment rejected", "path", r.URL.Path, "reason", protoErr.Reason)
					writeProtocolError(w, protoErr)
					return
				}
				logger.Error("facilitator verification failed", "error", err)
				http.Error(w, "Payment verification failed", http.StatusServiceUnavailable)
				return
			}

			if acquired == nil {
				logger.Info("no payment header provided, rendering paywall", "path", r.URL.Path)
				writePaywall(w, route, accepts, req.URL(), config.Paywall)
				return
			}

			logger.Info("payment verified", "path", r.URL.Path, "network", acquired.Payload.Network)

			ctx := context.WithValue(r.Context(), PaymentContextKey, acquired)
			r = r.WithContext(ctx)

			interceptor := &settlementInterceptor{
				w: w,
				settleFunc: func() bool {
					if config.VerifyOnly {
						return true
					}

					settlement, err := acquired.Settle(r.Context())
					if err != nil {
						var protoErr *x402.ProtocolError
						if errors.As(err, &protoErr) {
							logger.Warn("settlement rejected", "reason", protoErr.Reason)
							writeProtocolError(w, protoErr)
						} else {
							logger.Error("settlement failed", "error", err)
							http.Error(w, "Payment settlement failed", http.StatusServiceUnavailable)
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
					w.Header().Set("X-PAYMENT-RESPONSE", encoded)
					return true
				},
				onFailure: func(statusCode int) {
					logger.Warn("handler returned non-success, skipping settlement", "status", statusCode)
				},
			}
			next.ServeHTTP(interceptor, r)
		})
	}, nil
}

// writeProtocolError serializes a ProtocolError as the 402 response body.
// The error struct itself is the wire shape; nothing is added or removed.
func writeProtocolError(w http.ResponseWriter, protoErr *x402.ProtocolError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	// Status is already committed; an encode failure here leaves a
	// truncated body but the client still sees the 402.
	_ = json.NewEncoder(w).Encode(protoErr)
}

// PaywallHTML resolves the paywall page for a route: the per-route custom
// HTML when declared, otherwise the rendered default template.
func PaywallHTML(route *gate.Route, accepts []x402.PaymentRequirement, currentURL string, cfg *paywall.Config) (string, error) {
	if html := route.CustomPaywallHTML(); html != "" {
		return html, nil
	}
	return paywall.Render(accepts, currentURL, cfg)
}

func writePaywall(w http.ResponseWriter, route *gate.Route, accepts []x402.PaymentRequirement, currentURL string, cfg *paywall.Config) {
	html, err := PaywallHTML(route, accepts, currentURL, cfg)
	if err != nil {
		writeProtocolError(w, x402.NewProtocolError("X-PAYMENT header is required", accepts, ""))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusPaymentRequired)
	_, _ = w.Write([]byte(html))
}

// settlementInterceptor wraps the ResponseWriter to intercept the moment
// the downstream handler commits its response. Settlement runs inside
// WriteHeader, after the handler has chosen its status but before that
// status reaches the wire, so a failed handler never triggers a settle and
// a failed settle can still replace the response.
type settlementInterceptor struct {
	w http.ResponseWriter
	// settleFunc performs settlement; it reports whether the handler's
	// response may proceed.
	settleFunc func() bool
	// onFailure is a logging callback for skipped settlements.
	onFailure func(statusCode int)
	committed bool
	hijacked  bool
}

func (i *settlementInterceptor) Header() http.Header {
	return i.w.Header()
}

func (i *settlementInterceptor) Write(b []byte) (int, error) {
	// A Write without WriteHeader implies 200 OK; run the commit path now.
	if !i.committed {
		i.WriteHeader(http.StatusOK)
	}

	// Settlement failed and the error response was already written.
	// Discard the handler's payload to avoid a mixed response body.
	if i.hijacked {
		return len(b), nil
	}

	return i.w.Write(b)
}

func (i *settlementInterceptor) WriteHeader(statusCode int) {
	if i.committed {
		return
	}
	i.committed = true

	// Handler is failing: let the error pass through, no settlement.
	if statusCode >= 400 {
		if i.onFailure != nil {
			i.onFailure(statusCode)
		}
		i.w.WriteHeader(statusCode)
		return
	}

	if !i.settleFunc() {
		// settleFunc has written its own error response.
		i.hijacked = true
		return
	}

	i.w.WriteHeader(statusCode)
}

// Flush implements http.Flusher to support streaming responses.
func (i *settlementInterceptor) Flush() {
	if flusher, ok := i.w.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack implements http.Hijacker to support connection hijacking.
func (i *settlementInterceptor) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := i.w.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, errors.New("hijacking not supported")
}

// Push implements http.Pusher to support HTTP/2 server push.
func (i *settlementInterceptor) Push(target string, opts *http.PushOptions) error {
	if pusher, ok := i.w.(http.Pusher); ok {
		return pusher.Push(target, opts)
	}
	return http.ErrNotSupported
}
