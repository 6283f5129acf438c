package http

import (
	"fmt"
	"net/http"
	"strings"

	x402 "github.com/paygatehq/x402-go"
	"github.com/paygatehq/x402-go/encoding"
	"github.com/paygatehq/x402-go/gate"
)

// WrapRequest exposes an *http.Request through the engine's Request view.
func WrapRequest(r *http.Request) gate.Request {
	return &requestAdapter{r: r}
}

// requestAdapter exposes an *http.Request through the engine's view.
type requestAdapter struct {
	r *http.Request
}

func (a *requestAdapter) Method() string {
	return a.r.Method
}

func (a *requestAdapter) Path() string {
	return a.r.URL.Path
}

func (a *requestAdapter) URL() string {
	scheme := "http"
	if a.r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + a.r.Host + a.r.RequestURI
}

func (a *requestAdapter) Header(name string) string {
	return a.r.Header.Get(name)
}

// ExtractPayment is the engine extractor for HTTP requests: it decodes the
// X-PAYMENT header. An absent header is (nil, nil); a present but
// undecodable header or an unsupported protocol version is an error.
func ExtractPayment(req gate.Request) (*x402.PaymentPayload, error) {
	headerValue := req.Header("X-PAYMENT")
	if headerValue == "" {
		return nil, nil
	}

	payment, err := encoding.DecodePayment(headerValue)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrMalformedHeader, err)
	}

	if payment.X402Version != x402.X402Version {
		return nil, fmt.Errorf("%w: %d", x402.ErrUnsupportedVersion, payment.X402Version)
	}

	return &payment, nil
}

// IsBrowser is the engine paywall predicate for HTTP requests: an HTML
// paywall may be shown when the client advertises text/html and looks like
// a browser.
func IsBrowser(req gate.Request) bool {
	return strings.Contains(req.Header("Accept"), "text/html") &&
		strings.Contains(req.Header("User-Agent"), "Mozilla")
}
