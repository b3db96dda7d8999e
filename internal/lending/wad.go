package lending

import "math/big"

// All rates, factors and prices are fixed-point integers scaled by 1e18.
// Directed rounding matters: anything that counts toward the protocol's
// exposure rounds up, anything that counts toward an account's claim rounds
// down.
var wad = big.NewInt(1_000_000_000_000_000_000)

const secondsPerYear int64 = 365 * 24 * 3600

func mulWadDown(a, b *big.Int) *big.Int {
	if a == nil || b == nil {
		return new(big.Int)
	}
	p := new(big.Int).Mul(a, b)
	return p.Quo(p, wad)
}

func mulWadUp(a, b *big.Int) *big.Int {
	if a == nil || b == nil {
		return new(big.Int)
	}
	p := new(big.Int).Mul(a, b)
	return ceilQuo(p, wad)
}

func divWadDown(a, b *big.Int) *big.Int {
	if a == nil || b == nil || b.Sign() == 0 {
		return new(big.Int)
	}
	n := new(big.Int).Mul(a, wad)
	return n.Quo(n, b)
}

func divWadUp(a, b *big.Int) *big.Int {
	if a == nil || b == nil || b.Sign() == 0 {
		return new(big.Int)
	}
	n := new(big.Int).Mul(a, wad)
	return ceilQuo(n, b)
}

func mulDivDown(a, b, d *big.Int) *big.Int {
	if a == nil || b == nil || d == nil || d.Sign() == 0 {
		return new(big.Int)
	}
	p := new(big.Int).Mul(a, b)
	return p.Quo(p, d)
}

func mulDivUp(a, b, d *big.Int) *big.Int {
	if a == nil || b == nil || d == nil || d.Sign() == 0 {
		return new(big.Int)
	}
	p := new(big.Int).Mul(a, b)
	return ceilQuo(p, d)
}

func ceilQuo(n, d *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(n, d, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

func zeroIfNil(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func isZero(v *big.Int) bool {
	return v == nil || v.Sign() == 0
}

// wadFromFloat converts a decimal parameter (e.g. 0.8 for 80%) into wad scale.
// Only used for configuration values, never for balance arithmetic.
func wadFromFloat(f float64) *big.Int {
	r := new(big.Rat).SetFloat64(f)
	if r == nil {
		return new(big.Int)
	}
	r.Mul(r, new(big.Rat).SetInt(wad))
	out := new(big.Int).Quo(r.Num(), r.Denom())
	return out
}
