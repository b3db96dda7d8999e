package lending

import (
	"math/big"
	"testing"
)

func testModel() *InterestRateModel {
	return &InterestRateModel{
		FloatingBase:   big.NewInt(20_000_000_000_000_000),  // 2%
		FloatingSlope1: big.NewInt(100_000_000_000_000_000), // 10%
		FloatingSlope2: big.NewInt(1_000_000_000_000_000_000),
		FloatingKink:   big.NewInt(800_000_000_000_000_000),
		FixedBase:      big.NewInt(20_000_000_000_000_000),
		FixedSlope1:    big.NewInt(100_000_000_000_000_000),
		FixedSlope2:    big.NewInt(1_000_000_000_000_000_000),
		FixedKink:      big.NewInt(800_000_000_000_000_000),
		RateCeiling:    new(big.Int).Mul(big.NewInt(10), wad),
	}
}

func TestFloatingRate_BelowKink(t *testing.T) {
	m := testModel()
	// util 50%: 2% + 10% * 0.5 = 7%
	got := m.FloatingRate(big.NewInt(500_000_000_000_000_000))
	want := big.NewInt(70_000_000_000_000_000)
	if got.Cmp(want) != 0 {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestFloatingRate_AboveKink(t *testing.T) {
	m := testModel()
	// util 90%: 2% + 10%*0.8 + 100%*0.1 = 20%
	got := m.FloatingRate(big.NewInt(900_000_000_000_000_000))
	want := big.NewInt(200_000_000_000_000_000)
	if got.Cmp(want) != 0 {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestFloatingRate_CeilingAtFullUtilization(t *testing.T) {
	m := testModel()
	got := m.FloatingRate(new(big.Int).Set(wad))
	if got.Cmp(m.RateCeiling) != 0 {
		t.Errorf("got %s, want ceiling %s", got, m.RateCeiling)
	}
	over := new(big.Int).Mul(big.NewInt(3), wad)
	if got := m.FloatingRate(over); got.Cmp(m.RateCeiling) != 0 {
		t.Errorf("over-utilization must clamp, got %s", got)
	}
}

func TestFixedBorrowRate_EmptyPoolNoLiquidity(t *testing.T) {
	m := testModel()
	p := newFixedPool(0)
	got := m.FixedBorrowRate(p, new(big.Int), new(big.Int))
	if got.Cmp(m.FixedBase) != 0 {
		t.Errorf("idle empty pool quotes the base rate, got %s", got)
	}
	got = m.FixedBorrowRate(p, big.NewInt(100), new(big.Int))
	if got.Cmp(m.RateCeiling) != 0 {
		t.Errorf("borrowing against nothing quotes the ceiling, got %s", got)
	}
}

func TestFixedBorrowRate_UtilizationRoundsUp(t *testing.T) {
	m := testModel()
	m.FixedSlope1 = new(big.Int).Set(wad) // unit slope exposes one-wei rounding
	p := newFixedPool(0)
	p.Supplied = big.NewInt(3)
	got := m.FixedBorrowRate(p, big.NewInt(1), new(big.Int))
	// util ceil(1/3) is above floor(1/3): the borrower pays for the rounding.
	floorUtil := new(big.Int).Quo(wad, big.NewInt(3))
	atFloor := kinkedRate(floorUtil, m.FixedBase, m.FixedSlope1, m.FixedSlope2, m.FixedKink, m.RateCeiling)
	if got.Cmp(atFloor) <= 0 {
		t.Errorf("rate %s should exceed rate at floored utilization %s", got, atFloor)
	}
}

func TestFixedFee_ScalesWithTerm(t *testing.T) {
	assets := new(big.Int).Mul(big.NewInt(100), wad)
	rate := big.NewInt(100_000_000_000_000_000) // 10% annual
	full := FixedFee(assets, rate, secondsPerYear, 0)
	want := new(big.Int).Mul(big.NewInt(10), wad)
	if full.Cmp(want) != 0 {
		t.Errorf("full year: got %s, want %s", full, want)
	}
	half := FixedFee(assets, rate, secondsPerYear, secondsPerYear/2)
	if half.Cmp(new(big.Int).Mul(big.NewInt(5), wad)) != 0 {
		t.Errorf("half year: got %s, want 5 wad", half)
	}
	if got := FixedFee(assets, rate, 100, 100); got.Sign() != 0 {
		t.Errorf("no term, no fee: got %s", got)
	}
}

func TestFixedDepositRate_AnnualizesCapturedYield(t *testing.T) {
	m := testModel()
	p := newFixedPool(0)
	p.borrow(new(big.Int).Mul(big.NewInt(1000), wad))
	p.UnassignedEarnings = new(big.Int).Mul(big.NewInt(10), wad)

	amount := new(big.Int).Mul(big.NewInt(1000), wad)
	got := m.FixedDepositRate(p, amount, new(big.Int), secondsPerYear, 0)
	// Captures all 10 wad on 1000 wad over a year: 1%.
	want := big.NewInt(10_000_000_000_000_000)
	if got.Cmp(want) != 0 {
		t.Errorf("got %s, want %s", got, want)
	}
	if got := m.FixedDepositRate(p, amount, new(big.Int), 100, 100); got.Sign() != 0 {
		t.Errorf("matured pool earns nothing, got %s", got)
	}
}
