package vault

import "math/big"

// Share math is pure integer arithmetic. Conversions between asset amounts
// and share amounts floor toward zero, so repeated conversions can shed
// sub-unit dust; the dust always stays in the vault.
//
// Per-account round deltas are stored at a narrow width and running totals at
// a wide width. Both are asserted on every ledger write so an accounting step
// that would wrap fails loudly instead.

const (
	// NarrowBits bounds per-account, per-round amounts.
	NarrowBits = 104
	// WideBits bounds running totals such as the share supply.
	WideBits = 128
)

// assetUnit returns 10^decimals, the fixed-point scale of one share.
func assetUnit(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

// AssetToShares converts an asset amount into shares at the given price.
func AssetToShares(amount, assetPerShare *big.Int, decimals uint8) (*big.Int, error) {
	if assetPerShare == nil || assetPerShare.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	shares := new(big.Int).Mul(amount, assetUnit(decimals))
	return shares.Quo(shares, assetPerShare), nil
}

// SharesToAsset converts a share amount into the underlying asset at the
// given price.
func SharesToAsset(shares, assetPerShare *big.Int, decimals uint8) (*big.Int, error) {
	if assetPerShare == nil || assetPerShare.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	amount := new(big.Int).Mul(shares, assetPerShare)
	return amount.Quo(amount, assetUnit(decimals)), nil
}

// FitsBits reports whether v is representable as an unsigned integer of the
// given bit width.
func FitsBits(v *big.Int, bits int) bool {
	return v.Sign() >= 0 && v.BitLen() <= bits
}

// AssertUint104 fails with ErrOverflow when v exceeds the narrow width.
func AssertUint104(v *big.Int) error {
	if !FitsBits(v, NarrowBits) {
		return ErrOverflow
	}
	return nil
}

// AssertUint128 fails with ErrOverflow when v exceeds the wide width.
func AssertUint128(v *big.Int) error {
	if !FitsBits(v, WideBits) {
		return ErrOverflow
	}
	return nil
}
