// Package gate implements the framework-agnostic x402 payment enforcement
// engine: route-to-price configuration compilation, per-request payment
// requirement construction, the verify/settle state machine, and the
// one-shot settlement capability. HTTP framework adapters bind this engine
// to a concrete request/response model; see the http package.
package gate

import (
	"fmt"

	x402 "github.com/paygatehq/x402-go"
	"github.com/paygatehq/x402-go/facilitator"
)

// DefaultFacilitatorURL is used when no facilitator is configured.
const DefaultFacilitatorURL = "https://x402.org/facilitator"

// Request is the minimal view of an incoming request the engine needs.
// Adapters wrap their framework's request type to satisfy it.
type Request interface {
	// Method returns the HTTP method.
	Method() string

	// Path returns the request path.
	Path() string

	// URL returns the absolute URL of the request.
	URL() string

	// Header returns the named header value, or "" when absent.
	Header(name string) string
}

// Extractor pulls a payment payload out of a request. A (nil, nil) return
// means no payment was presented; an error means the payment was presented
// but malformed.
type Extractor func(req Request) (*x402.PaymentPayload, error)

// PaywallPredicate reports whether an HTML paywall may be shown to this
// client instead of a protocol error (typically: the client is a browser).
type PaywallPredicate func(req Request) bool

// ResourceFunc derives the protected resource URI from a request.
type ResourceFunc func(req Request) string

// PriceParser converts a route price into an atomic amount and asset.
type PriceParser func(price x402.Price, network string) (x402.AssetAmount, error)

// Matcher selects the requirement a payment is attempting to satisfy, or
// nil when none matches.
type Matcher func(payment x402.PaymentPayload, accepts []x402.PaymentRequirement) *x402.PaymentRequirement

// RouteConfig declares the price of a route and, optionally, metadata about
// the protected resource.
type RouteConfig struct {
	// Price is the payment required to access the route.
	Price x402.Price

	// Network is the blockchain network payments must be made on.
	Network string

	// Config holds optional per-route metadata.
	Config *RouteOptions
}

// RouteOptions is optional per-route metadata.
type RouteOptions struct {
	// Resource is a static URI for the protected resource. When empty, the
	// resource is derived per request via the engine's ResourceFunc.
	Resource string

	// Description is a human-readable payment description.
	Description string

	// MimeType is the content type of the protected resource.
	// Defaults to "application/json".
	MimeType string

	// MaxTimeoutSeconds is the payment authorization validity period.
	// Defaults to 300.
	MaxTimeoutSeconds int

	// OutputSchema describes the response of the protected resource.
	OutputSchema *x402.OutputSchema

	// CustomPaywallHTML replaces the default paywall page for this route.
	CustomPaywallHTML string
}

// RouteEntry pairs a route pattern ("GET /weather/*", "/premium/*", "*")
// with its configuration.
type RouteEntry struct {
	Pattern string
	Config  RouteConfig
}

// RoutesConfig is the ordered route-to-price declaration. Declaration order
// is the tie-break for overlapping patterns: first listed, first matched.
type RoutesConfig []RouteEntry

// Dispatcher holds the compiled route table. It is immutable after New and
// safe for concurrent use across requests.
type Dispatcher struct {
	routes []*Route
}

// New compiles a routes configuration into a dispatcher. All requirement
// templates are built here, once; New performs no network I/O. Invalid
// configuration is reported as *x402.ConfigError.
func New(payTo string, routes RoutesConfig, opts ...Option) (*Dispatcher, error) {
	s := newSettings(opts...)

	d := &Dispatcher{routes: make([]*Route, 0, len(routes))}
	for _, entry := range routes {
		template, err := buildTemplate(payTo, entry.Config, s)
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", entry.Pattern, err)
		}
		d.routes = append(d.routes, &Route{
			pattern:  parseRoutePattern(entry.Pattern),
			config:   entry.Config,
			template: template,
			settings: s,
		})
	}
	return d, nil
}

// Match returns the first declared route matching the path and method, or
// nil when the request is unprotected and must be passed through untouched.
func (d *Dispatcher) Match(path, method string) *Route {
	normalized := normalizePath(path)
	for _, rt := range d.routes {
		if rt.pattern.matches(normalized, method) {
			return rt
		}
	}
	return nil
}

// Routes returns the compiled routes in declaration order.
func (d *Dispatcher) Routes() []*Route {
	return d.routes
}

// Route is a compiled protected route: its pattern, its cached requirement
// template, and the engine hooks shared by all routes of the dispatcher.
type Route struct {
	pattern  routePattern
	config   RouteConfig
	template x402.PaymentRequirement
	settings *settings
}

// Config returns the route's declared configuration.
func (rt *Route) Config() RouteConfig {
	return rt.config
}

// CustomPaywallHTML returns the per-route paywall override, if any.
func (rt *Route) CustomPaywallHTML() string {
	if rt.config.Config == nil {
		return ""
	}
	return rt.config.Config.CustomPaywallHTML
}

// PaymentRequirements returns the acceptable payment requirements for a
// request to this route. Everything but the resource URI comes from the
// template cached at construction time.
func (rt *Route) PaymentRequirements(req Request) []x402.PaymentRequirement {
	requirement := rt.template
	if requirement.Resource == "" && rt.settings.resource != nil {
		requirement.Resource = rt.settings.resource(req)
	}
	return []x402.PaymentRequirement{requirement}
}

// Facilitator returns the verify/settle strategy in use.
func (rt *Route) Facilitator() facilitator.Interface {
	return rt.settings.facilitator
}

// settings holds the engine hooks shared by all routes of a dispatcher.
type settings struct {
	extract     Extractor
	paywallable PaywallPredicate
	resource    ResourceFunc
	parsePrice  PriceParser
	match       Matcher
	facilitator facilitator.Interface
}

func newSettings(opts ...Option) *settings {
	s := &settings{
		extract:     func(Request) (*x402.PaymentPayload, error) { return nil, nil },
		paywallable: func(Request) bool { return false },
		parsePrice:  x402.ParsePrice,
		match:       x402.FindMatchingRequirement,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.facilitator == nil {
		s.facilitator = facilitator.NewClient(DefaultFacilitatorURL)
	}
	return s
}

// Option configures a Dispatcher.
type Option func(*settings)

// WithFacilitator sets the verify/settle strategy.
func WithFacilitator(f facilitator.Interface) Option {
	return func(s *settings) {
		s.facilitator = f
	}
}

// WithFacilitatorURL points the default HTTP facilitator client at url.
func WithFacilitatorURL(url string) Option {
	return func(s *settings) {
		s.facilitator = facilitator.NewClient(url)
	}
}

// WithExtractor sets the payment payload extractor.
func WithExtractor(fn Extractor) Option {
	return func(s *settings) {
		s.extract = fn
	}
}

// WithPaywallPredicate sets the "can render paywall" predicate.
func WithPaywallPredicate(fn PaywallPredicate) Option {
	return func(s *settings) {
		s.paywallable = fn
	}
}

// WithResourceFromRequest sets the per-request resource URI deriver, used
// for routes that do not declare a static Resource.
func WithResourceFromRequest(fn ResourceFunc) Option {
	return func(s *settings) {
		s.resource = fn
	}
}

// WithPriceParser replaces the price-to-atomic-amount converter.
func WithPriceParser(fn PriceParser) Option {
	return func(s *settings) {
		s.parsePrice = fn
	}
}

// WithMatcher replaces the requirement matcher.
func WithMatcher(fn Matcher) Option {
	return func(s *settings) {
		s.match = fn
	}
}
