package x402

import "fmt"

// NetworkType represents the blockchain virtual machine type.
type NetworkType int

const (
	// NetworkTypeUnknown represents an unrecognized network.
	NetworkTypeUnknown NetworkType = iota
	// NetworkTypeEVM represents Ethereum Virtual Machine chains.
	NetworkTypeEVM
	// NetworkTypeSVM represents Solana Virtual Machine chains.
	NetworkTypeSVM
)

// ChainConfig contains chain-specific configuration for the default payment
// asset (USDC) on a supported network.
type ChainConfig struct {
	// NetworkID is the x402 protocol network identifier (e.g., "base").
	NetworkID string

	// Type is the virtual machine family of the chain.
	Type NetworkType

	// USDCAddress is the official Circle USDC contract or mint address.
	USDCAddress string

	// Decimals is the number of decimal places for USDC (always 6).
	Decimals int

	// EIP712Name is the EIP-712 domain parameter "name" (empty for non-EVM chains).
	EIP712Name string

	// EIP712Version is the EIP-712 domain parameter "version" (empty for non-EVM chains).
	EIP712Version string
}

// Mainnet chain configurations.
var (
	// BaseMainnet is the configuration for Base mainnet.
	BaseMainnet = ChainConfig{
		NetworkID:     "base",
		Type:          NetworkTypeEVM,
		USDCAddress:   "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		Decimals:      6,
		EIP712Name:    "USD Coin",
		EIP712Version: "2",
	}

	// PolygonMainnet is the configuration for Polygon PoS mainnet.
	PolygonMainnet = ChainConfig{
		NetworkID:     "polygon",
		Type:          NetworkTypeEVM,
		USDCAddress:   "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
		Decimals:      6,
		EIP712Name:    "USD Coin",
		EIP712Version: "2",
	}

	// AvalancheMainnet is the configuration for Avalanche C-Chain mainnet.
	AvalancheMainnet = ChainConfig{
		NetworkID:     "avalanche",
		Type:          NetworkTypeEVM,
		USDCAddress:   "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E",
		Decimals:      6,
		EIP712Name:    "USD Coin",
		EIP712Version: "2",
	}

	// SolanaMainnet is the configuration for Solana mainnet.
	SolanaMainnet = ChainConfig{
		NetworkID:   "solana",
		Type:        NetworkTypeSVM,
		USDCAddress: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		Decimals:    6,
	}
)

// Testnet chain configurations.
var (
	// BaseSepolia is the configuration for Base Sepolia testnet.
	BaseSepolia = ChainConfig{
		NetworkID:     "base-sepolia",
		Type:          NetworkTypeEVM,
		USDCAddress:   "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Decimals:      6,
		EIP712Name:    "USDC",
		EIP712Version: "2",
	}

	// PolygonAmoy is the configuration for Polygon Amoy testnet.
	PolygonAmoy = ChainConfig{
		NetworkID:     "polygon-amoy",
		Type:          NetworkTypeEVM,
		USDCAddress:   "0x41E94Eb019C0762f9Bfcf9Fb1E58725BfB0e7582",
		Decimals:      6,
		EIP712Name:    "USDC",
		EIP712Version: "2",
	}

	// AvalancheFuji is the configuration for Avalanche Fuji testnet.
	AvalancheFuji = ChainConfig{
		NetworkID:     "avalanche-fuji",
		Type:          NetworkTypeEVM,
		USDCAddress:   "0x5425890298aed601595a70AB815c96711a31Bc65",
		Decimals:      6,
		EIP712Name:    "USD Coin",
		EIP712Version: "2",
	}

	// SolanaDevnet is the configuration for Solana devnet.
	SolanaDevnet = ChainConfig{
		NetworkID:   "solana-devnet",
		Type:        NetworkTypeSVM,
		USDCAddress: "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU",
		Decimals:    6,
	}
)

var knownChains = map[string]ChainConfig{
	BaseMainnet.NetworkID:      BaseMainnet,
	BaseSepolia.NetworkID:      BaseSepolia,
	PolygonMainnet.NetworkID:   PolygonMainnet,
	PolygonAmoy.NetworkID:      PolygonAmoy,
	AvalancheMainnet.NetworkID: AvalancheMainnet,
	AvalancheFuji.NetworkID:    AvalancheFuji,
	SolanaMainnet.NetworkID:    SolanaMainnet,
	SolanaDevnet.NetworkID:     SolanaDevnet,
}

// KnownChain returns the chain configuration for a network identifier.
func KnownChain(networkID string) (ChainConfig, bool) {
	chain, ok := knownChains[networkID]
	return chain, ok
}

// ValidateNetwork validates a network identifier and returns its type.
func ValidateNetwork(networkID string) (NetworkType, error) {
	if networkID == "" {
		return NetworkTypeUnknown, fmt.Errorf("networkID: cannot be empty")
	}
	chain, ok := knownChains[networkID]
	if !ok {
		return NetworkTypeUnknown, fmt.Errorf("networkID: unsupported network %q", networkID)
	}
	return chain.Type, nil
}

// DefaultAsset returns the default payment asset (USDC) for a network.
func DefaultAsset(networkID string) (AssetConfig, error) {
	chain, ok := knownChains[networkID]
	if !ok {
		return AssetConfig{}, fmt.Errorf("no default asset for unsupported network %q", networkID)
	}
	asset := AssetConfig{
		Address:  chain.USDCAddress,
		Decimals: chain.Decimals,
	}
	if chain.EIP712Name != "" {
		asset.EIP712 = &EIP712Domain{Name: chain.EIP712Name, Version: chain.EIP712Version}
	}
	return asset, nil
}
