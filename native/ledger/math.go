package ledger

import (
	"math/big"

	"github.com/holiman/uint256"
)

var (
	// precision is the 18-decimal fixed-point scale shared by balances.
	precision = mustBigInt("1000000000000000000")
	// additionalFeedPrecision lifts 8-decimal oracle answers to 18 decimals.
	additionalFeedPrecision = mustBigInt("10000000000")
	// minHealthFactor is 1.0 in fixed point; below it an account is liquidatable.
	minHealthFactor = mustBigInt("1000000000000000000")

	// liquidationThreshold of liquidationPrecision counts toward solvency.
	liquidationThreshold = big.NewInt(50)
	liquidationPrecision = big.NewInt(100)
	// liquidationBonus of liquidationPrecision is awarded on top of the
	// covered collateral.
	liquidationBonus = big.NewInt(10)

	// maxHealthFactor is the sentinel for debt-free accounts.
	maxHealthFactor = new(uint256.Int).SetAllOne().ToBig()
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// usdValue converts a wei-denominated collateral amount into its USD value at
// the given 8-decimal oracle price, keeping 18-decimal precision.
func usdValue(price, amount *big.Int) *big.Int {
	if price == nil || amount == nil {
		return big.NewInt(0)
	}
	value := new(big.Int).Mul(price, additionalFeedPrecision)
	value.Mul(value, amount)
	return value.Quo(value, precision)
}

// tokenAmountFromUsd converts a USD-pegged debt amount back into collateral
// units via the inverse oracle price.
func tokenAmountFromUsd(price, usdAmount *big.Int) *big.Int {
	if price == nil || price.Sign() == 0 || usdAmount == nil {
		return big.NewInt(0)
	}
	denom := new(big.Int).Mul(price, additionalFeedPrecision)
	amount := new(big.Int).Mul(usdAmount, precision)
	return amount.Quo(amount, denom)
}

// healthFactor derives the solvency ratio from minted debt and the USD value
// of deposited collateral. Debt-free accounts report the max sentinel.
func healthFactor(minted, collateralValueUsd *big.Int) *big.Int {
	if minted == nil || minted.Sign() == 0 {
		return new(big.Int).Set(maxHealthFactor)
	}
	adjusted := new(big.Int).Mul(collateralValueUsd, liquidationThreshold)
	adjusted.Quo(adjusted, liquidationPrecision)
	adjusted.Mul(adjusted, precision)
	return adjusted.Quo(adjusted, minted)
}

// MinHealthFactor exposes the liquidation boundary for callers rendering
// account health.
func MinHealthFactor() *big.Int { return new(big.Int).Set(minHealthFactor) }

func clone(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
