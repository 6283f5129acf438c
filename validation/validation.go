// Package validation validates amounts and addresses appearing in payment
// requirements. EVM addresses are validated and checksummed with
// go-ethereum; Solana addresses are validated as base58 public keys.
package validation

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	solana "github.com/gagliardetto/solana-go"

	x402 "github.com/paygatehq/x402-go"
)

// ValidateAmount validates that an amount string is a valid positive integer.
// Returns an error if the amount is empty, malformed, or not greater than zero.
func ValidateAmount(amount string) error {
	if amount == "" {
		return fmt.Errorf("amount cannot be empty")
	}

	amt, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return fmt.Errorf("invalid amount format: %s", amount)
	}

	if amt.Sign() <= 0 {
		return fmt.Errorf("amount must be greater than 0, got: %s", amount)
	}

	return nil
}

// ValidateAddress validates an address against the network's address format.
func ValidateAddress(address, network string) error {
	_, err := ChecksumAddress(address, network)
	return err
}

// ChecksumAddress normalizes an address to its canonical form for the given
// network. EVM addresses are returned EIP-55 checksummed; Solana addresses
// are returned in canonical base58. Malformed addresses are an error.
func ChecksumAddress(address, network string) (string, error) {
	if address == "" {
		return "", fmt.Errorf("address cannot be empty")
	}

	networkType, err := x402.ValidateNetwork(network)
	if err != nil {
		return "", fmt.Errorf("cannot validate address: %w", err)
	}

	switch networkType {
	case x402.NetworkTypeEVM:
		if !common.IsHexAddress(address) {
			return "", fmt.Errorf("invalid EVM address %q (expected 0x followed by 40 hex characters)", address)
		}
		return common.HexToAddress(address).Hex(), nil

	case x402.NetworkTypeSVM:
		key, err := solana.PublicKeyFromBase58(address)
		if err != nil {
			return "", fmt.Errorf("invalid Solana address %q: %w", address, err)
		}
		return key.String(), nil

	default:
		return "", fmt.Errorf("unsupported network type for address validation: %d", networkType)
	}
}

// ValidatePaymentRequirement performs structural validation of a payment
// requirement: amount, network, addresses, scheme, and timeout.
func ValidatePaymentRequirement(req x402.PaymentRequirement) error {
	if err := ValidateAmount(req.MaxAmountRequired); err != nil {
		return fmt.Errorf("invalid requirement: %w", err)
	}

	if req.Network == "" {
		return fmt.Errorf("invalid requirement: network cannot be empty")
	}
	if _, err := x402.ValidateNetwork(req.Network); err != nil {
		return fmt.Errorf("invalid requirement: %w", err)
	}

	if err := ValidateAddress(req.PayTo, req.Network); err != nil {
		return fmt.Errorf("invalid requirement: payTo %w", err)
	}

	if req.Asset == "" {
		return fmt.Errorf("invalid requirement: asset address cannot be empty")
	}
	if err := ValidateAddress(req.Asset, req.Network); err != nil {
		return fmt.Errorf("invalid requirement: asset %w", err)
	}

	if req.Scheme == "" {
		return fmt.Errorf("invalid requirement: scheme cannot be empty")
	}

	if req.MaxTimeoutSeconds < 0 {
		return fmt.Errorf("invalid requirement: timeout cannot be negative: %d", req.MaxTimeoutSeconds)
	}

	return nil
}

// ValidatePaymentPayload validates a decoded payment payload structure.
func ValidatePaymentPayload(payment x402.PaymentPayload) error {
	if payment.X402Version != x402.X402Version {
		return fmt.Errorf("%w: %d", x402.ErrUnsupportedVersion, payment.X402Version)
	}

	if payment.Scheme == "" {
		return fmt.Errorf("scheme cannot be empty")
	}

	if payment.Network == "" {
		return fmt.Errorf("network cannot be empty")
	}

	if payment.Payload == nil {
		return fmt.Errorf("payload cannot be nil")
	}

	return nil
}
