package x402

import "errors"

// Sentinel errors shared across packages. Transport-level failures wrap
// these with %w so callers can match with errors.Is.
var (
	// ErrMalformedHeader indicates that the X-PAYMENT header could not be decoded.
	ErrMalformedHeader = errors.New("malformed payment header")

	// ErrUnsupportedVersion indicates an unsupported x402 protocol version.
	ErrUnsupportedVersion = errors.New("unsupported x402 version")

	// ErrUnsupportedScheme indicates no requirement matches the payment's
	// scheme and network.
	ErrUnsupportedScheme = errors.New("unsupported payment scheme")

	// ErrFacilitatorUnavailable indicates the facilitator service could not
	// be reached.
	ErrFacilitatorUnavailable = errors.New("facilitator unavailable")

	// ErrVerificationFailed indicates the facilitator rejected a verify call.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrSettlementFailed indicates the facilitator rejected a settle call.
	ErrSettlementFailed = errors.New("settlement failed")

	// ErrInvalidAmount indicates a malformed or non-representable amount.
	ErrInvalidAmount = errors.New("invalid amount")
)

// ConfigError reports an invalid route or middleware configuration. It is
// raised synchronously at construction time, is always fatal to route
// registration, and is never serialized to clients.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return e.Reason
}

// NewConfigError creates a ConfigError with the given reason. The reason is
// carried verbatim so collaborator error messages survive intact.
func NewConfigError(reason string) *ConfigError {
	return &ConfigError{Reason: reason}
}

// ProtocolError is a per-request payment failure. It carries the full list
// of acceptable payment requirements so a client can retry with corrected
// payment, and serializes to exactly the 402 response body shape:
//
//	{"x402Version": 1, "error": "...", "accepts": [...], "payer": "..."}
//
// Payer is omitted when unknown. ProtocolError is the only structure the
// enforcement engine ever emits as a 402 body.
type ProtocolError struct {
	X402Version int                  `json:"x402Version"`
	Reason      string               `json:"error"`
	Accepts     []PaymentRequirement `json:"accepts"`
	Payer       string               `json:"payer,omitempty"`

	cause error
}

func (e *ProtocolError) Error() string {
	return e.Reason
}

// Unwrap exposes the underlying collaborator error, if any.
func (e *ProtocolError) Unwrap() error {
	return e.cause
}

// NewProtocolError creates a ProtocolError for the current protocol version.
func NewProtocolError(reason string, accepts []PaymentRequirement, payer string) *ProtocolError {
	return &ProtocolError{
		X402Version: X402Version,
		Reason:      reason,
		Accepts:     accepts,
		Payer:       payer,
	}
}

// WrapProtocolError is NewProtocolError with the originating error attached
// for errors.Is/As matching. The reason shown to clients is err.Error().
func WrapProtocolError(err error, accepts []PaymentRequirement) *ProtocolError {
	pe := NewProtocolError(err.Error(), accepts, "")
	pe.cause = err
	return pe
}
