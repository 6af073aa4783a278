package routing

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	feeXYK          = decimal.RequireFromString("0.003")
	feeConcentrated = decimal.RequireFromString("0.01")
	// DefaultFee applies to pair types with no known fee.
	DefaultFee = decimal.RequireFromString("0.01")
)

// FeeFor maps a pair type to its swap fee fraction. Custom types carry the fee
// in basis points as a trailing "_NN" segment.
func FeeFor(pairType string) decimal.Decimal {
	pt := strings.ToLower(strings.TrimSpace(pairType))
	switch pt {
	case "xyk", "":
		return feeXYK
	case "concentrated":
		return feeConcentrated
	}
	if i := strings.LastIndexByte(pt, '_'); i >= 0 && i < len(pt)-1 {
		if bps, err := strconv.Atoi(pt[i+1:]); err == nil && bps >= 0 && bps < 10000 {
			return decimal.New(int64(bps), -4)
		}
	}
	return DefaultFee
}
