// Package encoding provides the wire codecs for x402 payment headers.
// X-PAYMENT and X-PAYMENT-RESPONSE values are base64-encoded JSON.
package encoding

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	x402 "github.com/paygatehq/x402-go"
)

// EncodePayment converts a PaymentPayload to a base64-encoded JSON string
// suitable for an X-PAYMENT header value.
func EncodePayment(payment x402.PaymentPayload) (string, error) {
	return encode(payment, "payment")
}

// DecodePayment converts an X-PAYMENT header value back to a PaymentPayload.
func DecodePayment(encoded string) (x402.PaymentPayload, error) {
	var payment x402.PaymentPayload
	err := decode(encoded, &payment, "payment")
	return payment, err
}

// EncodeSettlement converts a SettlementResponse to a base64-encoded JSON
// string suitable for an X-PAYMENT-RESPONSE header value.
func EncodeSettlement(settlement x402.SettlementResponse) (string, error) {
	return encode(settlement, "settlement")
}

// DecodeSettlement converts an X-PAYMENT-RESPONSE header value back to a
// SettlementResponse.
func DecodeSettlement(encoded string) (x402.SettlementResponse, error) {
	var settlement x402.SettlementResponse
	err := decode(encoded, &settlement, "settlement")
	return settlement, err
}

func encode(v any, what string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s: %w", what, err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func decode(encoded string, v any, what string) error {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("failed to decode base64 %s: %w", what, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", what, err)
	}
	return nil
}
