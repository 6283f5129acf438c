// Package x402 implements the server side of the x402 pay-per-request
// protocol: protocol types, the error taxonomy, the chain/asset registry and
// decimal-dollar price conversion. The enforcement engine itself lives in the
// gate subpackage; HTTP framework bindings live under http.
package x402

// X402Version is the protocol version spoken by this module.
const X402Version = 1

type InputSchemaType string

const (
	InputSchemaTypeHTTP InputSchemaType = "http"
)

// FieldDef describes a single field of a request or response schema.
type FieldDef struct {
	Type        string              `json:"type,omitempty"`
	Required    bool                `json:"required,omitempty"`
	Description string              `json:"description,omitempty"`
	Enum        []string            `json:"enum,omitempty"`
	Properties  map[string]FieldDef `json:"properties,omitempty"`
}

// InputSchema describes the expected structure of the client request.
type InputSchema struct {
	Type         InputSchemaType     `json:"type"`
	Method       string              `json:"method"`
	BodyType     string              `json:"bodyType,omitempty"`
	QueryParams  map[string]FieldDef `json:"queryParams,omitempty"`
	BodyFields   map[string]FieldDef `json:"bodyFields,omitempty"`
	HeaderFields map[string]FieldDef `json:"headerFields,omitempty"`
}

// OutputSchema describes the expected structure of the protected response.
type OutputSchema struct {
	Input  InputSchema         `json:"input,omitempty"`
	Output map[string]FieldDef `json:"output,omitempty"`
}

// PaymentRequirement is a single payment option the server will accept.
// It is the canonical, server-computed requirement presented to clients in
// 402 response bodies.
type PaymentRequirement struct {
	// Scheme is the payment scheme identifier (e.g., "exact").
	Scheme string `json:"scheme"`

	// Network is the blockchain network identifier (e.g., "base", "solana").
	Network string `json:"network"`

	// MaxAmountRequired is the payment amount in atomic units of Asset.
	MaxAmountRequired string `json:"maxAmountRequired"`

	// Resource is the URL of the protected resource.
	Resource string `json:"resource"`

	// Description is an optional human-readable payment description.
	Description string `json:"description"`

	// MimeType is the content type of the protected resource.
	MimeType string `json:"mimeType"`

	// PayTo is the recipient address, checksum-normalized.
	PayTo string `json:"payTo"`

	// MaxTimeoutSeconds is the validity period for the payment authorization.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds"`

	// Asset is the token contract address (EVM) or mint address (Solana),
	// checksum-normalized where the network defines a checksum.
	Asset string `json:"asset"`

	// OutputSchema describes the response of the protected resource.
	OutputSchema *OutputSchema `json:"outputSchema,omitempty"`

	// Extra carries scheme-specific signing-domain metadata, e.g. the
	// EIP-712 domain name and version for EIP-3009 transfers.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// PaymentPayload is a signed payment presented by a client. The server
// treats it as an unverified claim until the facilitator confirms it.
type PaymentPayload struct {
	// X402Version is the protocol version (currently 1).
	X402Version int `json:"x402Version"`

	// Scheme is the payment scheme identifier (e.g., "exact").
	Scheme string `json:"scheme"`

	// Network is the blockchain network identifier.
	Network string `json:"network"`

	// Payload contains the blockchain-specific signed payment data.
	Payload interface{} `json:"payload"`
}

// SettlementResponse is the facilitator's response after settling a payment
// on-chain. A failed settlement is never returned as this type by the
// enforcement engine; it is raised as a *ProtocolError instead.
type SettlementResponse struct {
	// Success indicates whether the payment was settled.
	Success bool `json:"success"`

	// ErrorReason provides details when Success is false.
	ErrorReason string `json:"errorReason,omitempty"`

	// Transaction is the blockchain transaction hash.
	Transaction string `json:"transaction,omitempty"`

	// Network is the network the payment was settled on.
	Network string `json:"network"`

	// Payer is the address that made the payment.
	Payer string `json:"payer"`
}

// EIP712Domain carries the EIP-712 signing-domain parameters of an asset.
type EIP712Domain struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// AssetConfig describes the asset a price is denominated in.
type AssetConfig struct {
	// Address is the token contract address (EVM) or mint address (Solana).
	Address string `json:"address"`

	// Decimals is the number of decimal places of the token.
	Decimals int `json:"decimals"`

	// EIP712 holds the signing-domain parameters for EVM assets.
	EIP712 *EIP712Domain `json:"eip712,omitempty"`
}

// AtomicPrice is an explicit price: an atomic-unit integer amount plus the
// asset it is denominated in.
type AtomicPrice struct {
	// Amount is the required amount as an atomic-unit integer string.
	Amount string `json:"amount"`

	// Asset describes the token the amount is denominated in.
	Asset AssetConfig `json:"asset"`
}

// Price is the price of a protected route. Exactly one representation is
// active: either Amount, a decimal dollar amount like "$0.01" or "0.01",
// or Atomic, an explicit atomic-unit amount with asset metadata.
type Price struct {
	Amount string
	Atomic *AtomicPrice
}

// USD returns a Price denominated in decimal dollars, e.g. USD("$0.01").
func USD(amount string) Price {
	return Price{Amount: amount}
}

// Atomic returns an explicit atomic-unit Price for the given asset.
func Atomic(amount string, asset AssetConfig) Price {
	return Price{Atomic: &AtomicPrice{Amount: amount, Asset: asset}}
}

// AssetAmount is the result of price conversion: the atomic-unit amount a
// client must pay and the asset it is denominated in.
type AssetAmount struct {
	// Amount is the atomic-unit integer string.
	Amount string

	// Asset describes the token the amount is denominated in.
	Asset AssetConfig
}
