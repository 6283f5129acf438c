package x402

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestProtocolError_JSONShape(t *testing.T) {
	accepts := []PaymentRequirement{{
		Scheme:            "exact",
		Network:           "base",
		MaxAmountRequired: "10000",
		Resource:          "https://api.example.com/data",
		MimeType:          "application/json",
		PayTo:             "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
		MaxTimeoutSeconds: 300,
		Asset:             "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
	}}

	pe := NewProtocolError("X-PAYMENT header is required", accepts, "")

	data, err := json.Marshal(pe)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if decoded["x402Version"] != float64(1) {
		t.Errorf("expected x402Version 1, got %v", decoded["x402Version"])
	}
	if decoded["error"] != "X-PAYMENT header is required" {
		t.Errorf("unexpected error field: %v", decoded["error"])
	}
	if _, ok := decoded["accepts"].([]interface{}); !ok {
		t.Errorf("expected accepts array, got %T", decoded["accepts"])
	}

	// Payer is unknown here and must be omitted, not emitted empty.
	if _, present := decoded["payer"]; present {
		t.Error("expected payer to be omitted when empty")
	}

	// No internal fields may leak into the wire shape.
	for key := range decoded {
		switch key {
		case "x402Version", "error", "accepts", "payer":
		default:
			t.Errorf("unexpected field %q in serialized ProtocolError", key)
		}
	}
}

func TestProtocolError_PayerIncludedWhenKnown(t *testing.T) {
	pe := NewProtocolError("insufficient_funds", nil, "0xPayer")

	data, err := json.Marshal(pe)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded["payer"] != "0xPayer" {
		t.Errorf("expected payer field, got %v", decoded["payer"])
	}
}

func TestWrapProtocolError_PreservesCause(t *testing.T) {
	cause := errors.New("header is not valid base64")
	wrapped := WrapProtocolError(cause, nil)

	if wrapped.Reason != cause.Error() {
		t.Errorf("expected reason %q, got %q", cause.Error(), wrapped.Reason)
	}
	if !errors.Is(wrapped, cause) {
		t.Error("expected errors.Is to match the wrapped cause")
	}

	var pe *ProtocolError
	if !errors.As(error(wrapped), &pe) {
		t.Error("expected errors.As to find *ProtocolError")
	}
}

func TestConfigError_ReasonVerbatim(t *testing.T) {
	reason := `invalid EVM address "0xnope" (expected 0x followed by 40 hex characters)`
	err := NewConfigError(reason)
	if err.Error() != reason {
		t.Errorf("expected reason verbatim, got %q", err.Error())
	}
}
