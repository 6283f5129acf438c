package x402

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParsePrice converts a route price into an atomic-unit amount plus asset
// descriptor. Dollar prices are resolved against the network's default
// asset (USDC); explicit atomic prices are validated and passed through.
//
// The conversion is exact: "$0.01" on a 6-decimal asset yields "10000" and
// "$0.12345" yields "123450". Prices with more precision than the asset's
// decimals are rejected rather than rounded.
func ParsePrice(price Price, network string) (AssetAmount, error) {
	if price.Atomic != nil {
		return parseAtomicPrice(*price.Atomic)
	}
	return parseDollarPrice(price.Amount, network)
}

func parseAtomicPrice(price AtomicPrice) (AssetAmount, error) {
	amount, err := decimal.NewFromString(price.Amount)
	if err != nil {
		return AssetAmount{}, fmt.Errorf("invalid atomic amount %q: %w", price.Amount, ErrInvalidAmount)
	}
	if !amount.IsInteger() || amount.IsNegative() {
		return AssetAmount{}, fmt.Errorf("atomic amount %q must be a non-negative integer: %w", price.Amount, ErrInvalidAmount)
	}
	if price.Asset.Address == "" {
		return AssetAmount{}, fmt.Errorf("atomic price is missing an asset address")
	}
	return AssetAmount{Amount: amount.String(), Asset: price.Asset}, nil
}

func parseDollarPrice(amount, network string) (AssetAmount, error) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(amount), "$"))
	if trimmed == "" {
		return AssetAmount{}, fmt.Errorf("price cannot be empty")
	}

	dollars, err := decimal.NewFromString(trimmed)
	if err != nil {
		return AssetAmount{}, fmt.Errorf("invalid price %q: %w", amount, ErrInvalidAmount)
	}
	if dollars.IsNegative() {
		return AssetAmount{}, fmt.Errorf("price %q must be non-negative: %w", amount, ErrInvalidAmount)
	}

	asset, err := DefaultAsset(network)
	if err != nil {
		return AssetAmount{}, err
	}

	atomic := dollars.Shift(int32(asset.Decimals))
	if !atomic.IsInteger() {
		return AssetAmount{}, fmt.Errorf("price %q has more precision than the asset's %d decimals: %w",
			amount, asset.Decimals, ErrInvalidAmount)
	}

	return AssetAmount{Amount: atomic.String(), Asset: asset}, nil
}
