package facilitator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	x402 "github.com/paygatehq/x402-go"
	"github.com/paygatehq/x402-go/retry"
)

// Default per-operation timeouts. Settlement gets a longer budget because it
// waits on a blockchain transaction.
const (
	DefaultVerifyTimeout = 5 * time.Second
	DefaultSettleTimeout = 60 * time.Second
)

// Client talks to a remote facilitator service over HTTP. The zero value is
// not usable; construct with NewClient.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// VerifyTimeout bounds verify and supported calls.
	VerifyTimeout time.Duration

	// SettleTimeout bounds settle calls.
	SettleTimeout time.Duration

	// Authorization, when non-empty, is sent verbatim as the Authorization
	// header on every facilitator request.
	Authorization string
}

// NewClient creates a facilitator client for the given base URL with
// default timeouts.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:       baseURL,
		HTTPClient:    &http.Client{},
		VerifyTimeout: DefaultVerifyTimeout,
		SettleTimeout: DefaultSettleTimeout,
	}
}

// request is the body sent to the facilitator's /verify and /settle endpoints.
type request struct {
	X402Version         int                     `json:"x402Version"`
	PaymentPayload      x402.PaymentPayload     `json:"paymentPayload"`
	PaymentRequirements x402.PaymentRequirement `json:"paymentRequirements"`
}

// Verify checks a payment authorization without executing the transaction.
func (c *Client) Verify(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement) (*VerifyResponse, error) {
	var verifyResp VerifyResponse
	if err := c.post(ctx, "/verify", payment, requirement, c.VerifyTimeout, &verifyResp, x402.ErrVerificationFailed); err != nil {
		return nil, err
	}
	return &verifyResp, nil
}

// Settle executes a verified payment on the blockchain.
func (c *Client) Settle(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement) (*x402.SettlementResponse, error) {
	var settlementResp x402.SettlementResponse
	if err := c.post(ctx, "/settle", payment, requirement, c.SettleTimeout, &settlementResp, x402.ErrSettlementFailed); err != nil {
		return nil, err
	}
	return &settlementResp, nil
}

func (c *Client) post(ctx context.Context, path string, payment x402.PaymentPayload, requirement x402.PaymentRequirement, timeout time.Duration, out any, failure error) error {
	body := request{
		X402Version:         x402.X402Version,
		PaymentPayload:      payment,
		PaymentRequirements: requirement,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.Authorization != "" {
		httpReq.Header.Set("Authorization", c.Authorization)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", x402.ErrFacilitatorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", failure, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// Supported queries the facilitator for supported payment kinds.
func (c *Client) Supported(ctx context.Context) (*SupportedResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.VerifyTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/supported", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.Authorization != "" {
		httpReq.Header.Set("Authorization", c.Authorization)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrFacilitatorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("supported endpoint failed: status %d", resp.StatusCode)
	}

	var supportedResp SupportedResponse
	if err := json.NewDecoder(resp.Body).Decode(&supportedResp); err != nil {
		return nil, fmt.Errorf("failed to decode supported response: %w", err)
	}
	return &supportedResp, nil
}

// EnrichRequirements merges network-specific data (like the SVM feePayer)
// from the facilitator's /supported endpoint into the given requirements.
// The call is idempotent and retried with backoff on transport failures;
// user-specified Extra values always take precedence.
func (c *Client) EnrichRequirements(ctx context.Context, requirements []x402.PaymentRequirement) ([]x402.PaymentRequirement, error) {
	supported, err := retry.WithRetry(ctx, retry.DefaultConfig, isTransient, func() (*SupportedResponse, error) {
		return c.Supported(ctx)
	})
	if err != nil {
		return requirements, fmt.Errorf("failed to fetch supported payment kinds: %w", err)
	}

	supportedByKey := make(map[string]SupportedKind, len(supported.Kinds))
	for _, kind := range supported.Kinds {
		supportedByKey[kind.Network+"-"+kind.Scheme] = kind
	}

	enriched := make([]x402.PaymentRequirement, len(requirements))
	for i, req := range requirements {
		enriched[i] = req
		kind, ok := supportedByKey[req.Network+"-"+req.Scheme]
		if !ok || kind.Extra == nil {
			continue
		}
		if enriched[i].Extra == nil {
			enriched[i].Extra = make(map[string]interface{}, len(kind.Extra))
		}
		for k, v := range kind.Extra {
			if _, exists := enriched[i].Extra[k]; !exists {
				enriched[i].Extra[k] = v
			}
		}
	}

	return enriched, nil
}

func isTransient(err error) bool {
	if errors.Is(err, x402.ErrFacilitatorUnavailable) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
