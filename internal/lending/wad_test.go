package lending

import (
	"math/big"
	"testing"
)

// ============================================================================
// Test: fixed-point helpers
// ============================================================================

func TestMulWadDown_RoundsTowardZero(t *testing.T) {
	// 3 * 1/3 wad = 0.999... rounds down to 0 at unit scale
	a := big.NewInt(1)
	third := new(big.Int).Quo(wad, big.NewInt(3))
	got := mulWadDown(a, third)
	if got.Sign() != 0 {
		t.Errorf("got %s, want 0", got)
	}
}

func TestMulWadUp_RoundsAwayFromZero(t *testing.T) {
	a := big.NewInt(1)
	third := new(big.Int).Quo(wad, big.NewInt(3))
	got := mulWadUp(a, third)
	if got.Cmp(big.NewInt(1)) != 0 {
		t.Errorf("got %s, want 1", got)
	}
}

func TestDivWad_Directions(t *testing.T) {
	a := big.NewInt(1)
	b := big.NewInt(3)
	down := divWadDown(a, b)
	up := divWadUp(a, b)
	want := new(big.Int).Quo(wad, big.NewInt(3))
	if down.Cmp(want) != 0 {
		t.Errorf("divWadDown: got %s, want %s", down, want)
	}
	if new(big.Int).Sub(up, down).Cmp(big.NewInt(1)) != 0 {
		t.Errorf("divWadUp should exceed divWadDown by 1 on inexact quotient, got %s and %s", up, down)
	}
}

func TestDivWad_ZeroDenominator(t *testing.T) {
	if got := divWadDown(big.NewInt(5), new(big.Int)); got.Sign() != 0 {
		t.Errorf("got %s, want 0", got)
	}
	if got := divWadUp(big.NewInt(5), new(big.Int)); got.Sign() != 0 {
		t.Errorf("got %s, want 0", got)
	}
}

func TestMulDiv_ExactQuotientSameBothWays(t *testing.T) {
	a := big.NewInt(600)
	b := big.NewInt(50)
	d := big.NewInt(30)
	down := mulDivDown(a, b, d)
	up := mulDivUp(a, b, d)
	if down.Cmp(up) != 0 {
		t.Errorf("exact quotient should not depend on rounding, got %s and %s", down, up)
	}
	if down.Cmp(big.NewInt(1000)) != 0 {
		t.Errorf("got %s, want 1000", down)
	}
}

func TestCeilQuo(t *testing.T) {
	if got := ceilQuo(big.NewInt(10), big.NewInt(3)); got.Cmp(big.NewInt(4)) != 0 {
		t.Errorf("got %s, want 4", got)
	}
	if got := ceilQuo(big.NewInt(9), big.NewInt(3)); got.Cmp(big.NewInt(3)) != 0 {
		t.Errorf("got %s, want 3", got)
	}
}

func TestWadFromFloat_ExactHalf(t *testing.T) {
	got := wadFromFloat(0.5)
	want := new(big.Int).Quo(wad, big.NewInt(2))
	if got.Cmp(want) != 0 {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestZeroIfNil(t *testing.T) {
	if got := zeroIfNil(nil); got.Sign() != 0 {
		t.Errorf("nil should read as zero, got %s", got)
	}
	v := big.NewInt(7)
	if got := zeroIfNil(v); got.Cmp(v) != 0 {
		t.Errorf("got %s, want 7", got)
	}
}
