// Package facilitator defines the verify/settle strategy contract consumed
// by the enforcement engine, and an HTTP client implementing it against a
// remote facilitator service.
package facilitator

import (
	"context"

	x402 "github.com/paygatehq/x402-go"
)

// Interface is the facilitator capability injected into the enforcement
// engine: a paired verify/settle strategy. Implementations must be safe for
// concurrent use; the engine guarantees verify always precedes settle for a
// given payment and that neither is retried.
type Interface interface {
	// Verify checks a payment authorization without executing the transaction.
	Verify(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement) (*VerifyResponse, error)

	// Settle executes a verified payment on the blockchain.
	Settle(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement) (*x402.SettlementResponse, error)

	// Supported queries the facilitator for supported payment kinds.
	Supported(ctx context.Context) (*SupportedResponse, error)
}

// VerifyResponse contains the payment verification result from the facilitator.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SupportedKind describes a supported payment type with its configuration.
type SupportedKind struct {
	X402Version int                    `json:"x402Version"`
	Scheme      string                 `json:"scheme"`
	Network     string                 `json:"network"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// SupportedResponse lists all payment types supported by the facilitator.
type SupportedResponse struct {
	Kinds []SupportedKind `json:"kinds"`
}
