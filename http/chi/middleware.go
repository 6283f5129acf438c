// Package chi provides Chi-compatible middleware for x402 payment gating.
// Chi middleware uses the stdlib http.Handler signature, so this package is
// a thin adapter over the http package's middleware plus a Router
// convenience hook.
package chi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	httpx402 "github.com/paygatehq/x402-go/http"
)

// NewX402Middleware creates a new x402 payment middleware for Chi.
// Requests not matching any configured route pass through untouched, so the
// middleware can sit at the top of the router. The verified payment is
// stored in the request context under httpx402.PaymentContextKey.
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
//	r := chi.NewRouter()
//	r.Use(mw)
//	r.Get("/api/premium/data", func(w http.ResponseWriter, r *http.Request) {
//	    payment := r.Context().Value(httpx402.PaymentContextKey).(*gate.AcquiredPayment)
//	    w.Write([]byte("paid on " + payment.Payload.Network))
//	})
func NewX402Middleware(config *httpx402.Config) (func(http.Handler) http.Handler, error) {
	return httpx402.NewX402Middleware(config)
}

// Protect compiles the route configuration and mounts the payment
// middleware on the router. It exists so configuration errors surface at
// startup without the caller juggling the middleware value.
func Protect(r chi.Router, config *httpx402.Config) error {
	mw, err := NewX402Middleware(config)
	if err != nil {
		return err
	}
	r.Use(mw)
	return nil
}
