package vault

import "math/big"

// All fractional quantities are Q64 fixed point: an integer numerator over an
// implicit 2^64 denominator. Monetary amounts stay plain integers.
var (
	q64     = new(big.Int).Lsh(big.NewInt(1), 64)
	bigZero = big.NewInt(0)
	bigOne  = big.NewInt(1)
)

type rounding int

const (
	roundDown rounding = iota
	roundUp
)

// mulDiv computes a*b/denom with the requested rounding direction. The
// intermediate product is exact, never truncated.
func mulDiv(a, b, denom *big.Int, mode rounding) *big.Int {
	if a == nil || b == nil || a.Sign() == 0 || b.Sign() == 0 {
		return big.NewInt(0)
	}
	if denom == nil || denom.Sign() == 0 {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, b)
	quo, rem := new(big.Int).QuoRem(product, denom, new(big.Int))
	if mode == roundUp && rem.Sign() != 0 {
		quo.Add(quo, bigOne)
	}
	return quo
}

// mulX64 scales an amount by a Q64 fraction.
func mulX64(amount, fractionX64 *big.Int, mode rounding) *big.Int {
	return mulDiv(amount, fractionX64, q64, mode)
}

// sharesToAssets converts a share count to underlying assets through a Q64
// exchange rate expressed as assets per share.
func sharesToAssets(shares, rateX64 *big.Int, mode rounding) *big.Int {
	return mulDiv(shares, rateX64, q64, mode)
}

// assetsToShares converts an asset amount to shares through a Q64 exchange
// rate expressed as assets per share.
func assetsToShares(assets, rateX64 *big.Int, mode rounding) *big.Int {
	if rateX64 == nil || rateX64.Sign() == 0 {
		return big.NewInt(0)
	}
	return mulDiv(assets, q64, rateX64, mode)
}

// fractionX64 builds a Q64 fraction from an integer ratio, rounding down.
func fractionX64(num, den int64) *big.Int {
	return mulDiv(big.NewInt(num), q64, big.NewInt(den), roundDown)
}

// FractionFromBps converts basis points to the Q64 fraction used throughout
// the vault. Configuration surfaces speak bps; the ledger never does.
func FractionFromBps(bps uint64) *big.Int {
	return mulDiv(new(big.Int).SetUint64(bps), q64, big.NewInt(10_000), roundDown)
}

// onePlusX64 returns 2^64 + fractionX64, the Q64 encoding of 1+f.
func onePlusX64(f *big.Int) *big.Int {
	if f == nil {
		return new(big.Int).Set(q64)
	}
	return new(big.Int).Add(q64, f)
}

// oneMinusX64 returns 2^64 - fractionX64, clamped at zero.
func oneMinusX64(f *big.Int) *big.Int {
	if f == nil {
		return new(big.Int).Set(q64)
	}
	out := new(big.Int).Sub(q64, f)
	if out.Sign() < 0 {
		out.SetInt64(0)
	}
	return out
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

func maxBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

func clampZero(v *big.Int) *big.Int {
	if v.Sign() < 0 {
		return big.NewInt(0)
	}
	return v
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
