package gate

import (
	"context"

	x402 "github.com/paygatehq/x402-go"
)

// Messages serialized into 402 bodies. Clients parse these; keep them
// byte-stable.
const (
	msgPaymentRequired    = "X-PAYMENT header is required"
	msgNoMatch            = "Unable to find matching payment requirements"
	msgVerificationFailed = "Payment verification failed"
	msgSettlementFailed   = "Settlement failed: "
)

// AcquiredPayment is a one-shot settlement capability for a verified
// payment. It is created only after the facilitator confirms the payload
// and is request-local: never share or reuse one. Settle may be called at
// most once per instance by contract; the engine does not guard against
// duplicate invocation.
type AcquiredPayment struct {
	// Payload is the verified payment payload.
	Payload x402.PaymentPayload

	// Requirement is the requirement the payload was verified against.
	Requirement x402.PaymentRequirement

	// Accepts is the full requirement list of the route, carried so
	// settlement errors can offer the client a retry.
	Accepts []x402.PaymentRequirement

	settings *settings
}

// AcquirePayment runs the per-request acquisition state machine:
// extraction, then the paywall check or requirement match, then
// verification, strictly in that order. Outcomes:
//
//   - (nil, nil): no payment was presented and the client can be shown a
//     paywall; the request must NOT be passed downstream.
//   - (nil, *x402.ProtocolError): the request must be rejected with a 402
//     carrying the error as its body.
//   - (*AcquiredPayment, nil): the payment verified; settlement is deferred
//     to the caller, typically until the protected handler has succeeded.
//
// Errors not originating from the protocol (e.g. an unreachable
// facilitator) propagate unchanged.
func (rt *Route) AcquirePayment(ctx context.Context, req Request, accepts []x402.PaymentRequirement) (*AcquiredPayment, error) {
	payload, err := rt.settings.extract(req)
	if err != nil {
		return nil, x402.WrapProtocolError(err, accepts)
	}

	if payload == nil {
		if rt.settings.paywallable(req) {
			return nil, nil
		}
		return nil, x402.NewProtocolError(msgPaymentRequired, accepts, "")
	}

	selected := rt.settings.match(*payload, accepts)
	if selected == nil {
		return nil, x402.NewProtocolError(msgNoMatch, accepts, "")
	}

	verified, err := rt.settings.facilitator.Verify(ctx, *payload, *selected)
	if err != nil {
		return nil, err
	}
	if !verified.IsValid {
		reason := verified.InvalidReason
		if reason == "" {
			reason = msgVerificationFailed
		}
		return nil, x402.NewProtocolError(reason, accepts, verified.Payer)
	}

	return &AcquiredPayment{
		Payload:     *payload,
		Requirement: *selected,
		Accepts:     accepts,
		settings:    rt.settings,
	}, nil
}

// Settle executes the payment on-chain via the facilitator. On success the
// settlement record is returned as reported, payer included. A facilitator
// transport failure or a structured settlement failure is raised as a
// *x402.ProtocolError; in the structured case the error message is
// "Settlement failed: <errorReason>" and carries the reported payer.
func (a *AcquiredPayment) Settle(ctx context.Context) (*x402.SettlementResponse, error) {
	settled, err := a.settings.facilitator.Settle(ctx, a.Payload, a.Requirement)
	if err != nil {
		return nil, x402.WrapProtocolError(err, a.Accepts)
	}

	if !settled.Success {
		return nil, x402.NewProtocolError(msgSettlementFailed+settled.ErrorReason, a.Accepts, settled.Payer)
	}

	return settled, nil
}
