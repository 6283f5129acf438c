package gate

import (
	"context"
	"errors"
	"testing"

	x402 "github.com/paygatehq/x402-go"
	"github.com/paygatehq/x402-go/facilitator"
)

// fakeFacilitator scripts verify/settle outcomes and records call counts.
type fakeFacilitator struct {
	verifyResp *facilitator.VerifyResponse
	verifyErr  error
	settleResp *x402.SettlementResponse
	settleErr  error

	verifyCalls int
	settleCalls int
}

func (f *fakeFacilitator) Verify(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement) (*facilitator.VerifyResponse, error) {
	f.verifyCalls++
	return f.verifyResp, f.verifyErr
}

func (f *fakeFacilitator) Settle(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement) (*x402.SettlementResponse, error) {
	f.settleCalls++
	return f.settleResp, f.settleErr
}

func (f *fakeFacilitator) Supported(ctx context.Context) (*facilitator.SupportedResponse, error) {
	return &facilitator.SupportedResponse{}, nil
}

// paidExtractor returns a fixed payment payload for every request.
func paidExtractor(payload *x402.PaymentPayload) Extractor {
	return func(Request) (*x402.PaymentPayload, error) {
		return payload, nil
	}
}

func basePayment() *x402.PaymentPayload {
	return &x402.PaymentPayload{
		X402Version: 1,
		Scheme:      "exact",
		Network:     "base",
		Payload:     map[string]interface{}{"signature": "0xsig"},
	}
}

func newTestRoute(t *testing.T, fac facilitator.Interface, opts ...Option) *Route {
	t.Helper()
	routes := RoutesConfig{
		{Pattern: "GET /api/*", Config: RouteConfig{
			Price:   x402.USD("$0.01"),
			Network: "base",
			Config:  &RouteOptions{Resource: "https://api.example.com/api"},
		}},
	}
	opts = append([]Option{WithFacilitator(fac)}, opts...)
	d, err := New(testPayTo, routes, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return d.Routes()[0]
}

func TestAcquirePayment_NoPaymentNoPaywall(t *testing.T) {
	fac := &fakeFacilitator{}
	rt := newTestRoute(t, fac)
	accepts := rt.PaymentRequirements(&fakeRequest{})

	acquired, err := rt.AcquirePayment(context.Background(), &fakeRequest{}, accepts)
	if acquired != nil {
		t.Error("expected no acquired payment")
	}

	var pe *x402.ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *x402.ProtocolError, got %v", err)
	}
	if pe.Reason != "X-PAYMENT header is required" {
		t.Errorf("unexpected reason %q", pe.Reason)
	}
	if len(pe.Accepts) != 1 {
		t.Errorf("expected accepts to carry the requirement list, got %d entries", len(pe.Accepts))
	}
	if fac.verifyCalls != 0 {
		t.Error("verify must not be called without a payment")
	}
}

func TestAcquirePayment_NoPaymentPaywallable(t *testing.T) {
	fac := &fakeFacilitator{}
	rt := newTestRoute(t, fac,
		WithPaywallPredicate(func(Request) bool { return true }))
	accepts := rt.PaymentRequirements(&fakeRequest{})

	acquired, err := rt.AcquirePayment(context.Background(), &fakeRequest{}, accepts)
	if acquired != nil || err != nil {
		t.Errorf("expected (nil, nil) paywall outcome, got (%v, %v)", acquired, err)
	}
}

func TestAcquirePayment_MalformedPayment(t *testing.T) {
	fac := &fakeFacilitator{}
	rt := newTestRoute(t, fac,
		WithExtractor(func(Request) (*x402.PaymentPayload, error) {
			return nil, errors.New("malformed payment header: bad base64")
		}),
		// Extraction errors outrank the paywall: the client DID present a
		// payment, it just could not be decoded.
		WithPaywallPredicate(func(Request) bool { return true }))
	accepts := rt.PaymentRequirements(&fakeRequest{})

	acquired, err := rt.AcquirePayment(context.Background(), &fakeRequest{}, accepts)
	if acquired != nil {
		t.Error("expected no acquired payment")
	}

	var pe *x402.ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *x402.ProtocolError, got %v", err)
	}
	if pe.Reason != "malformed payment header: bad base64" {
		t.Errorf("expected extractor message verbatim, got %q", pe.Reason)
	}
	if fac.verifyCalls != 0 {
		t.Error("verify must not be called for a malformed payment")
	}
}

func TestAcquirePayment_NoMatchingRequirement(t *testing.T) {
	payment := basePayment()
	payment.Network = "solana"

	fac := &fakeFacilitator{}
	rt := newTestRoute(t, fac, WithExtractor(paidExtractor(payment)))
	accepts := rt.PaymentRequirements(&fakeRequest{})

	_, err := rt.AcquirePayment(context.Background(), &fakeRequest{}, accepts)

	var pe *x402.ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *x402.ProtocolError, got %v", err)
	}
	if pe.Reason != "Unable to find matching payment requirements" {
		t.Errorf("unexpected reason %q", pe.Reason)
	}
	if fac.verifyCalls != 0 {
		t.Error("verify must not be called without a matching requirement")
	}
}

func TestAcquirePayment_VerifyTransportErrorPropagates(t *testing.T) {
	transportErr := errors.New("facilitator unavailable: connection refused")
	fac := &fakeFacilitator{verifyErr: transportErr}
	rt := newTestRoute(t, fac, WithExtractor(paidExtractor(basePayment())))
	accepts := rt.PaymentRequirements(&fakeRequest{})

	_, err := rt.AcquirePayment(context.Background(), &fakeRequest{}, accepts)
	if !errors.Is(err, transportErr) {
		t.Fatalf("expected transport error to propagate unchanged, got %v", err)
	}

	// Transport failures are not protocol rejections.
	var pe *x402.ProtocolError
	if errors.As(err, &pe) {
		t.Error("transport error must not be a ProtocolError")
	}
	if fac.verifyCalls != 1 {
		t.Errorf("expected exactly 1 verify call, got %d", fac.verifyCalls)
	}
}

func TestAcquirePayment_VerificationRejected(t *testing.T) {
	fac := &fakeFacilitator{
		verifyResp: &facilitator.VerifyResponse{
			IsValid:       false,
			InvalidReason: "insufficient_funds",
			Payer:         "0xPayer",
		},
	}
	rt := newTestRoute(t, fac, WithExtractor(paidExtractor(basePayment())))
	accepts := rt.PaymentRequirements(&fakeRequest{})

	_, err := rt.AcquirePayment(context.Background(), &fakeRequest{}, accepts)

	var pe *x402.ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *x402.ProtocolError, got %v", err)
	}
	if pe.Reason != "insufficient_funds" {
		t.Errorf("expected facilitator reason verbatim, got %q", pe.Reason)
	}
	if pe.Payer != "0xPayer" {
		t.Errorf("expected payer carried through, got %q", pe.Payer)
	}
}

func TestAcquirePayment_VerificationRejectedWithoutReason(t *testing.T) {
	fac := &fakeFacilitator{
		verifyResp: &facilitator.VerifyResponse{IsValid: false},
	}
	rt := newTestRoute(t, fac, WithExtractor(paidExtractor(basePayment())))
	accepts := rt.PaymentRequirements(&fakeRequest{})

	_, err := rt.AcquirePayment(context.Background(), &fakeRequest{}, accepts)

	var pe *x402.ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *x402.ProtocolError, got %v", err)
	}
	if pe.Reason != "Payment verification failed" {
		t.Errorf("expected default reason, got %q", pe.Reason)
	}
}

func TestAcquirePayment_Success(t *testing.T) {
	payment := basePayment()
	fac := &fakeFacilitator{
		verifyResp: &facilitator.VerifyResponse{IsValid: true, Payer: "0xPayer"},
	}
	rt := newTestRoute(t, fac, WithExtractor(paidExtractor(payment)))
	accepts := rt.PaymentRequirements(&fakeRequest{})

	acquired, err := rt.AcquirePayment(context.Background(), &fakeRequest{}, accepts)
	if err != nil {
		t.Fatalf("AcquirePayment failed: %v", err)
	}
	if acquired == nil {
		t.Fatal("expected acquired payment")
	}
	if acquired.Payload.Network != payment.Network {
		t.Errorf("expected payload carried through, got %+v", acquired.Payload)
	}
	if acquired.Requirement.MaxAmountRequired != "10000" {
		t.Errorf("expected matched requirement, got %+v", acquired.Requirement)
	}
	if fac.settleCalls != 0 {
		t.Error("acquisition must not settle")
	}
}

func TestSettle_Success(t *testing.T) {
	fac := &fakeFacilitator{
		verifyResp: &facilitator.VerifyResponse{IsValid: true},
		settleResp: &x402.SettlementResponse{
			Success:     true,
			Transaction: "0xtxhash",
			Network:     "base",
			Payer:       "0xPayer",
		},
	}
	rt := newTestRoute(t, fac, WithExtractor(paidExtractor(basePayment())))
	accepts := rt.PaymentRequirements(&fakeRequest{})

	acquired, err := rt.AcquirePayment(context.Background(), &fakeRequest{}, accepts)
	if err != nil {
		t.Fatalf("AcquirePayment failed: %v", err)
	}

	settled, err := acquired.Settle(context.Background())
	if err != nil {
		t.Fatalf("Settle failed: %v", err)
	}
	if settled.Transaction != "0xtxhash" {
		t.Errorf("expected settlement passed through as reported, got %+v", settled)
	}
	if fac.settleCalls != 1 {
		t.Errorf("expected exactly 1 settle call, got %d", fac.settleCalls)
	}
}

func TestSettle_StructuredFailure(t *testing.T) {
	fac := &fakeFacilitator{
		verifyResp: &facilitator.VerifyResponse{IsValid: true},
		settleResp: &x402.SettlementResponse{
			Success:     false,
			ErrorReason: "insufficient_funds",
			Payer:       "0xPayer",
		},
	}
	rt := newTestRoute(t, fac, WithExtractor(paidExtractor(basePayment())))
	accepts := rt.PaymentRequirements(&fakeRequest{})

	acquired, err := rt.AcquirePayment(context.Background(), &fakeRequest{}, accepts)
	if err != nil {
		t.Fatalf("AcquirePayment failed: %v", err)
	}

	settled, err := acquired.Settle(context.Background())
	if settled != nil {
		t.Error("expected no settlement response on failure")
	}

	var pe *x402.ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *x402.ProtocolError, got %v", err)
	}
	if pe.Reason != "Settlement failed: insufficient_funds" {
		t.Errorf("unexpected reason %q", pe.Reason)
	}
	if pe.Payer != "0xPayer" {
		t.Errorf("expected payer carried through, got %q", pe.Payer)
	}
	if len(pe.Accepts) != 1 {
		t.Errorf("expected accepts carried for retry, got %d entries", len(pe.Accepts))
	}
}

func TestSettle_TransportFailure(t *testing.T) {
	transportErr := errors.New("facilitator unavailable: timeout")
	fac := &fakeFacilitator{
		verifyResp: &facilitator.VerifyResponse{IsValid: true},
		settleErr:  transportErr,
	}
	rt := newTestRoute(t, fac, WithExtractor(paidExtractor(basePayment())))
	accepts := rt.PaymentRequirements(&fakeRequest{})

	acquired, err := rt.AcquirePayment(context.Background(), &fakeRequest{}, accepts)
	if err != nil {
		t.Fatalf("AcquirePayment failed: %v", err)
	}

	_, err = acquired.Settle(context.Background())

	var pe *x402.ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *x402.ProtocolError, got %v", err)
	}
	if !errors.Is(err, transportErr) {
		t.Error("expected underlying transport error to remain matchable")
	}
	if pe.Payer != "" {
		t.Errorf("payer is unknown on transport failure, got %q", pe.Payer)
	}
	if fac.settleCalls != 1 {
		t.Errorf("expected exactly 1 settle call, got %d", fac.settleCalls)
	}
}

func TestAcquirePayment_CustomMatcher(t *testing.T) {
	var sawAccepts int
	fac := &fakeFacilitator{
		verifyResp: &facilitator.VerifyResponse{IsValid: true},
	}
	rt := newTestRoute(t, fac,
		WithExtractor(paidExtractor(basePayment())),
		WithMatcher(func(payment x402.PaymentPayload, accepts []x402.PaymentRequirement) *x402.PaymentRequirement {
			sawAccepts = len(accepts)
			return &accepts[0]
		}))
	accepts := rt.PaymentRequirements(&fakeRequest{})

	if _, err := rt.AcquirePayment(context.Background(), &fakeRequest{}, accepts); err != nil {
		t.Fatalf("AcquirePayment failed: %v", err)
	}
	if sawAccepts != 1 {
		t.Errorf("custom matcher saw %d requirements, want 1", sawAccepts)
	}
}
