package lending

import "math/big"

// InterestRateModel maps pool utilization to borrow rates. It is pure: the
// only state is configuration. Rates are annualized, wad-scaled.
//
// Both curves are kinked: a gentle slope up to the kink utilization, a steep
// slope beyond it, and a hard ceiling once utilization reaches or exceeds
// 100% (over-borrowing against the backstop must produce a finite rate, not
// an overflow).
type InterestRateModel struct {
	FloatingBase   *big.Int
	FloatingSlope1 *big.Int
	FloatingSlope2 *big.Int
	FloatingKink   *big.Int

	FixedBase   *big.Int
	FixedSlope1 *big.Int
	FixedSlope2 *big.Int
	FixedKink   *big.Int

	// RateCeiling clamps both curves.
	RateCeiling *big.Int
}

// NewInterestRateModel builds a model from decimal parameters (0.02 == 2%).
func NewInterestRateModel(floatingBase, floatingSlope1, floatingSlope2, floatingKink,
	fixedBase, fixedSlope1, fixedSlope2, fixedKink, ceiling float64) *InterestRateModel {
	return &InterestRateModel{
		FloatingBase:   wadFromFloat(floatingBase),
		FloatingSlope1: wadFromFloat(floatingSlope1),
		FloatingSlope2: wadFromFloat(floatingSlope2),
		FloatingKink:   wadFromFloat(floatingKink),
		FixedBase:      wadFromFloat(fixedBase),
		FixedSlope1:    wadFromFloat(fixedSlope1),
		FixedSlope2:    wadFromFloat(fixedSlope2),
		FixedKink:      wadFromFloat(fixedKink),
		RateCeiling:    wadFromFloat(ceiling),
	}
}

// DefaultInterestRateModel mirrors a conservative kinked curve: 2% base,
// kink at 80%, 10x ceiling.
func DefaultInterestRateModel() *InterestRateModel {
	return NewInterestRateModel(
		0.02, 0.07, 1.5, 0.8,
		0.02, 0.09, 2.0, 0.8,
		10.0,
	)
}

func (m *InterestRateModel) Clone() *InterestRateModel {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}

// kinkedRate evaluates one curve at a wad utilization. Utilization above one
// is clamped through the ceiling rather than extrapolated.
func kinkedRate(utilization, base, slope1, slope2, kink, ceiling *big.Int) *big.Int {
	if utilization.Cmp(wad) >= 0 {
		return new(big.Int).Set(ceiling)
	}
	rate := new(big.Int).Set(base)
	if utilization.Cmp(kink) <= 0 || kink.Sign() == 0 {
		rate.Add(rate, mulWadDown(slope1, utilization))
	} else {
		rate.Add(rate, mulWadDown(slope1, kink))
		excess := new(big.Int).Sub(utilization, kink)
		rate.Add(rate, mulWadDown(slope2, excess))
	}
	if rate.Cmp(ceiling) > 0 {
		rate.Set(ceiling)
	}
	return rate
}

// FloatingRate returns the annual borrow rate for the floating pool given
// its wad utilization (floatingDebt / floatingAssets).
func (m *InterestRateModel) FloatingRate(utilization *big.Int) *big.Int {
	return kinkedRate(zeroIfNil(utilization), m.FloatingBase, m.FloatingSlope1, m.FloatingSlope2, m.FloatingKink, m.RateCeiling)
}

// FixedBorrowRate returns the annual rate a borrow of amount would pay at a
// maturity. Utilization is the fixed pool's own: the new borrowed total over
// its supply plus the floating backstop it may draw on. Zero available
// liquidity yields the base rate deterministically (the liquidity check
// itself rejects the borrow; the rate function never divides by zero).
func (m *InterestRateModel) FixedBorrowRate(pool *FixedPool, amount, backupAssets *big.Int) *big.Int {
	newBorrowed := new(big.Int).Add(pool.Borrowed, zeroIfNil(amount))
	available := new(big.Int).Add(pool.Supplied, zeroIfNil(backupAssets))
	if available.Sign() == 0 {
		if newBorrowed.Sign() == 0 {
			return new(big.Int).Set(m.FixedBase)
		}
		return new(big.Int).Set(m.RateCeiling)
	}
	utilization := divWadUp(newBorrowed, available)
	return kinkedRate(utilization, m.FixedBase, m.FixedSlope1, m.FixedSlope2, m.FixedKink, m.RateCeiling)
}

// FixedDepositRate returns the annualized rate a deposit of amount would earn
// at a maturity. It is marginal: the yield comes from the unassigned earnings
// the deposit captures by displacing backstop supply, not from the pool's
// blended historical rate.
func (m *InterestRateModel) FixedDepositRate(pool *FixedPool, amount, backupFeeRate *big.Int, maturity, now int64) *big.Int {
	if isZero(amount) || now >= maturity {
		return new(big.Int)
	}
	yield, _ := pool.calculateDeposit(amount, backupFeeRate)
	if yield.Sign() == 0 {
		return new(big.Int)
	}
	rate := divWadDown(yield, amount)
	return mulDivDown(rate, big.NewInt(secondsPerYear), big.NewInt(maturity-now))
}

// FixedFee converts an annual rate into the fee owed for borrowing assets
// until maturity.
func FixedFee(assets, annualRate *big.Int, maturity, now int64) *big.Int {
	if now >= maturity {
		return new(big.Int)
	}
	fee := mulWadDown(assets, annualRate)
	return mulDivDown(fee, big.NewInt(maturity-now), big.NewInt(secondsPerYear))
}
