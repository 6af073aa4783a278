package routing

import "github.com/shopspring/decimal"

// divPrecision is the number of fractional digits kept by simulation divisions.
const divPrecision = 24

// Simulate returns the output of a constant-product swap with the fee taken
// from the input. ok is false when any reserve or the input is not positive.
func Simulate(amountIn, reserveIn, reserveOut, fee decimal.Decimal) (decimal.Decimal, bool) {
	if !amountIn.IsPositive() || !reserveIn.IsPositive() || !reserveOut.IsPositive() {
		return decimal.Zero, false
	}
	effective := amountIn.Mul(decimal.NewFromInt(1).Sub(fee))
	if !effective.IsPositive() {
		return decimal.Zero, false
	}
	out := effective.Mul(reserveOut).DivRound(reserveIn.Add(effective), divPrecision)
	return out, true
}

// priceImpact compares the executed price with the mid price, both in quote per
// base. It is positive when the trader gets a worse price than mid.
func priceImpact(side Side, exec, mid decimal.Decimal) decimal.Decimal {
	if !mid.IsPositive() {
		return decimal.Zero
	}
	diff := exec.Sub(mid)
	if side == SideSell {
		diff = diff.Neg()
	}
	return diff.DivRound(mid, divPrecision)
}
