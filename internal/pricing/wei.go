package pricing

import (
	"fmt"
	"math/big"
	"strings"
)

// weiPerEther is 10^18.
var weiPerEther = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// FromWei converts a decimal wei amount, as returned by the marketplace
// (e.g. "1500000000000000000" or "1.5e18" or "1500000000000000000.0000"),
// to ether.
func FromWei(amount string) (float64, error) {
	s := strings.TrimSpace(amount)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	wei, ok := new(big.Float).SetPrec(256).SetString(s)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	eth, _ := new(big.Float).SetPrec(256).Quo(wei, weiPerEther).Float64()
	return eth, nil
}
