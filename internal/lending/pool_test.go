package lending

import (
	"errors"
	"math/big"
	"testing"
)

// ============================================================================
// Test: pool state machine
// ============================================================================

func TestPoolState_InvalidMaturity(t *testing.T) {
	if got := poolState(0, 100, 12); got != PoolStateInvalid {
		t.Errorf("zero maturity: got %v, want INVALID", got)
	}
	if got := poolState(FixedInterval+1, 100, 12); got != PoolStateInvalid {
		t.Errorf("off-grid maturity: got %v, want INVALID", got)
	}
}

func TestPoolState_Lifecycle(t *testing.T) {
	maturity := 3 * FixedInterval
	if got := poolState(maturity, 0, 2); got != PoolStateNotReady {
		t.Errorf("beyond window: got %v, want NOT_READY", got)
	}
	if got := poolState(maturity, 0, 12); got != PoolStateValid {
		t.Errorf("inside window: got %v, want VALID", got)
	}
	if got := poolState(maturity, maturity, 12); got != PoolStateMatured {
		t.Errorf("at maturity: got %v, want MATURED", got)
	}
	if got := poolState(maturity, maturity+1, 12); got != PoolStateMatured {
		t.Errorf("past maturity: got %v, want MATURED", got)
	}
}

func TestPoolState_WindowSlides(t *testing.T) {
	// The farthest maturity becomes reachable once the clock enters the
	// interval that brings it inside maxFuturePools intervals.
	maturity := 13 * FixedInterval
	if got := poolState(maturity, FixedInterval-1, 12); got != PoolStateNotReady {
		t.Errorf("got %v, want NOT_READY", got)
	}
	if got := poolState(maturity, FixedInterval, 12); got != PoolStateValid {
		t.Errorf("got %v, want VALID", got)
	}
}

func TestCheckPoolState_ReportsExpectation(t *testing.T) {
	err := checkPoolState(FixedInterval, FixedInterval+1, 12, PoolStateValid, PoolStateNone)
	var unmatched *UnmatchedPoolStateError
	if !errors.As(err, &unmatched) {
		t.Fatalf("got %v, want UnmatchedPoolStateError", err)
	}
	if unmatched.Actual != PoolStateMatured || unmatched.Expected != PoolStateValid {
		t.Errorf("got actual=%v expected=%v", unmatched.Actual, unmatched.Expected)
	}
}

func TestCheckPoolState_AcceptsAlternative(t *testing.T) {
	err := checkPoolState(FixedInterval, FixedInterval+1, 12, PoolStateValid, PoolStateMatured)
	if err != nil {
		t.Errorf("matured should satisfy the alternative, got %v", err)
	}
}

// ============================================================================
// Test: backup debt lifecycle
// ============================================================================

func TestFixedPool_BorrowCreatesBackupDebt(t *testing.T) {
	p := newFixedPool(0)
	addition := p.borrow(big.NewInt(1200))
	if addition.Cmp(big.NewInt(1200)) != 0 {
		t.Errorf("unsupplied pool: whole borrow is backstopped, got %s", addition)
	}
	if p.BackupDebt().Cmp(big.NewInt(1200)) != 0 {
		t.Errorf("backup debt: got %s, want 1200", p.BackupDebt())
	}
}

func TestFixedPool_DepositRetiresBackupDebtFirst(t *testing.T) {
	p := newFixedPool(0)
	p.borrow(big.NewInt(1200))
	p.deposit(big.NewInt(1000))

	reduction := p.deposit(big.NewInt(300))
	if reduction.Cmp(big.NewInt(200)) != 0 {
		t.Errorf("only the remaining 200 of debt can be retired, got %s", reduction)
	}
	if p.BackupDebt().Sign() != 0 {
		t.Errorf("backup debt should be fully retired, got %s", p.BackupDebt())
	}
	if p.Supplied.Cmp(big.NewInt(1300)) != 0 {
		t.Errorf("supplied: got %s, want 1300", p.Supplied)
	}
}

func TestFixedPool_BorrowUsesOwnSupplyBeforeBackstop(t *testing.T) {
	p := newFixedPool(0)
	p.deposit(big.NewInt(1000))
	addition := p.borrow(big.NewInt(600))
	if addition.Sign() != 0 {
		t.Errorf("borrow within supply needs no backstop, got %s", addition)
	}
	addition = p.borrow(big.NewInt(600))
	if addition.Cmp(big.NewInt(200)) != 0 {
		t.Errorf("only the excess over supply is backstopped, got %s", addition)
	}
}

func TestFixedPool_WithdrawSupplyShiftsDebtToBackstop(t *testing.T) {
	p := newFixedPool(0)
	p.deposit(big.NewInt(1000))
	p.borrow(big.NewInt(800))
	addition := p.withdrawSupply(big.NewInt(500))
	if addition.Cmp(big.NewInt(300)) != 0 {
		t.Errorf("800 borrowed against 500 remaining supply: got %s, want 300", addition)
	}
}

// ============================================================================
// Test: earnings accrual and distribution
// ============================================================================

func TestAccrueEarnings_LinearRelease(t *testing.T) {
	p := newFixedPool(0)
	p.UnassignedEarnings = big.NewInt(1000)
	maturity := int64(1000)

	released := p.accrueEarnings(maturity, 250)
	if released.Cmp(big.NewInt(250)) != 0 {
		t.Errorf("quarter elapsed: got %s, want 250", released)
	}
	// Second call covers half of the remaining horizon.
	released = p.accrueEarnings(maturity, 625)
	if released.Cmp(big.NewInt(375)) != 0 {
		t.Errorf("got %s, want 375", released)
	}
	released = p.accrueEarnings(maturity, 2000)
	if released.Cmp(big.NewInt(375)) != 0 {
		t.Errorf("release stops at maturity, got %s", released)
	}
	if p.UnassignedEarnings.Sign() != 0 {
		t.Errorf("everything released, got %s", p.UnassignedEarnings)
	}
}

func TestAccrueEarnings_NoDoubleRelease(t *testing.T) {
	p := newFixedPool(0)
	p.UnassignedEarnings = big.NewInt(1000)
	p.accrueEarnings(1000, 500)
	released := p.accrueEarnings(1000, 500)
	if released.Sign() != 0 {
		t.Errorf("same timestamp releases nothing, got %s", released)
	}
}

func TestCalculateDeposit_NoBackupDebtNoYield(t *testing.T) {
	p := newFixedPool(0)
	p.UnassignedEarnings = big.NewInt(1000)
	yield, fee := p.calculateDeposit(big.NewInt(500), big.NewInt(100_000_000_000_000_000))
	if yield.Sign() != 0 || fee.Sign() != 0 {
		t.Errorf("nothing to displace: got yield=%s fee=%s", yield, fee)
	}
}

func TestCalculateDeposit_ProportionalWithFee(t *testing.T) {
	p := newFixedPool(0)
	p.borrow(big.NewInt(1000))
	p.UnassignedEarnings = big.NewInt(200)

	// Deposit displaces half the backstop: gross yield 100, 10% protocol cut.
	yield, fee := p.calculateDeposit(big.NewInt(500), big.NewInt(100_000_000_000_000_000))
	if yield.Cmp(big.NewInt(90)) != 0 {
		t.Errorf("yield: got %s, want 90", yield)
	}
	if fee.Cmp(big.NewInt(10)) != 0 {
		t.Errorf("fee: got %s, want 10", fee)
	}
}

func TestCalculateDeposit_CappedAtBackupDebt(t *testing.T) {
	p := newFixedPool(0)
	p.borrow(big.NewInt(100))
	p.UnassignedEarnings = big.NewInt(60)

	yield, fee := p.calculateDeposit(big.NewInt(1000), new(big.Int))
	if yield.Cmp(big.NewInt(60)) != 0 || fee.Sign() != 0 {
		t.Errorf("oversized deposit captures everything once: got yield=%s fee=%s", yield, fee)
	}
}

func TestDistributeEarnings_AllBackstopped(t *testing.T) {
	p := newFixedPool(0)
	p.borrow(big.NewInt(1000))
	unassigned, backup := p.distributeEarnings(big.NewInt(50), big.NewInt(1000))
	if unassigned.Cmp(big.NewInt(50)) != 0 || backup.Sign() != 0 {
		t.Errorf("fully backstopped borrow keeps the fee unassigned: got %s/%s", unassigned, backup)
	}
}

func TestDistributeEarnings_SplitByBackstopShare(t *testing.T) {
	p := newFixedPool(0)
	p.deposit(big.NewInt(600))
	p.borrow(big.NewInt(1000))
	// 600 of the borrow is matched by fixed supply, 400 by the backstop.
	unassigned, backup := p.distributeEarnings(big.NewInt(100), big.NewInt(1000))
	if backup.Cmp(big.NewInt(60)) != 0 {
		t.Errorf("backup share: got %s, want 60", backup)
	}
	if unassigned.Cmp(big.NewInt(40)) != 0 {
		t.Errorf("unassigned share: got %s, want 40", unassigned)
	}
}
