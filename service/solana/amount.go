package solana

import (
	"fmt"
	"math/big"

	"github.com/fishnet-hq/paygate/service/payment"
)

// RawAmount converts a human-unit decimal price string into raw smallest
// units for the given decimal precision, flooring any precision beyond what
// the mint can represent. Prices never pass through a float.
func RawAmount(price string, decimals uint8) (uint64, error) {
	r, ok := new(big.Rat).SetString(price)
	if !ok {
		return 0, fmt.Errorf("%w: price %q is not a decimal number", payment.ErrInputInvalid, price)
	}
	if r.Sign() <= 0 {
		return 0, fmt.Errorf("%w: price %q is not positive", payment.ErrInputInvalid, price)
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	r.Mul(r, new(big.Rat).SetInt(scale))

	// Floor toward zero; r is positive so Quo is the floor.
	raw := new(big.Int).Quo(r.Num(), r.Denom())
	if raw.Sign() <= 0 {
		return 0, fmt.Errorf("%w: price %q rounds to zero at %d decimals", payment.ErrInputInvalid, price, decimals)
	}
	if !raw.IsUint64() {
		return 0, fmt.Errorf("%w: price %q overflows the token amount range", payment.ErrInputInvalid, price)
	}
	return raw.Uint64(), nil
}
