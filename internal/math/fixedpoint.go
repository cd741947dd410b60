package math

import (
	"math/big"
	"sync"

	"github.com/TanmayDhobale/miniForesight/internal/market"
)

// Int128 is a pooled big.Int for intermediate products of two uint64s.
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0)
	int128Pool.Put(v)
}

type RoundingMode int

const (
	RoundDown RoundingMode = iota
	RoundUp
)

var maxUint64 = new(big.Int).SetUint64(^uint64(0))

// CheckedAdd returns a+b or ErrArithmeticOverflow.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, market.ErrArithmeticOverflow
	}
	return sum, nil
}

// CheckedSub returns a-b or ErrArithmeticOverflow when b > a.
func CheckedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, market.ErrArithmeticOverflow
	}
	return a - b, nil
}

// MulDiv computes a*b/d with a 128-bit intermediate product.
func MulDiv(a, b, d uint64, mode RoundingMode) (uint64, error) {
	if d == 0 {
		return 0, market.ErrDivisionByZero
	}

	product := getInt128()
	defer putInt128(product)
	product.SetUint64(a)
	product.Mul(product, new(big.Int).SetUint64(b))

	quotient := getInt128()
	remainder := getInt128()
	defer putInt128(quotient)
	defer putInt128(remainder)

	quotient.QuoRem(product, new(big.Int).SetUint64(d), remainder)
	if mode == RoundUp && remainder.Sign() != 0 {
		quotient.Add(quotient, big.NewInt(1))
	}

	if quotient.Cmp(maxUint64) > 0 {
		return 0, market.ErrArithmeticOverflow
	}
	return quotient.Uint64(), nil
}
