package lending_test

import (
	"math/big"
	"testing"

	"github.com/google/uuid"

	"github.com/exactly/protocol-sub001/internal/lending"
)

// ============================================================================
// Test: cash conservation
// ============================================================================

// ledger mirrors the transfers a custodian would see against one market, so
// the market's internal accounting can be reconciled against real money
// movement after every step.
type ledger struct {
	t    *testing.T
	m    *lending.Market
	cash *big.Int
}

func newLedger(t *testing.T, m *lending.Market) *ledger {
	return &ledger{t: t, m: m, cash: new(big.Int)}
}

func (l *ledger) in(amount *big.Int)  { l.cash = new(big.Int).Add(l.cash, amount) }
func (l *ledger) out(amount *big.Int) { l.cash = new(big.Int).Sub(l.cash, amount) }

func (l *ledger) reconcile(step string) {
	l.t.Helper()
	if got := l.m.Cash(); got.Cmp(l.cash) != 0 {
		l.t.Fatalf("%s: market tracks %s of cash, transfers say %s", step, got, l.cash)
	}
	if !l.m.CheckCashConsistency() {
		l.t.Fatalf("%s: claims exceed cash plus receivables", step)
	}
}

func TestConservation_FloatingInterestCycle(t *testing.T) {
	irm := flatRateModel(pct(2), new(big.Int))
	m := lending.NewMarket(testConfig("USDC"), irm, 0)
	led := newLedger(t, m)
	alice := uuid.New()
	bob := uuid.New()

	if _, err := m.DepositFloating(alice, wadInt(1000), 0); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	led.in(wadInt(1000))
	if _, err := m.BorrowFloating(bob, wadInt(500), 0); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	led.out(wadInt(500))
	led.reconcile("borrow")

	year := int64(365 * 24 * 3600)
	actual, _, err := m.RepayFloating(bob, wadInt(600), year)
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	led.in(actual)
	led.reconcile("repay with interest")

	assets, err := m.WithdrawFloating(alice, wadInt(1000), year)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if assets.Cmp(wadInt(1010)) != 0 {
		t.Errorf("withdrawn: got %s, want 1010 wad", assets)
	}
	led.out(assets)
	led.reconcile("withdraw")
	if m.Cash().Sign() != 0 {
		t.Errorf("emptied pool still tracks %s of cash", m.Cash())
	}
}

func TestConservation_FixedPoolLifecycle(t *testing.T) {
	irm := flatRateModel(new(big.Int), pct(10))
	m := lending.NewMarket(testConfig("USDC"), irm, 0)
	led := newLedger(t, m)
	alice := uuid.New()
	bob := uuid.New()
	carol := uuid.New()
	maturity := lending.FixedInterval

	if _, err := m.DepositFloating(alice, wadInt(10_000), 0); err != nil {
		t.Fatalf("floating deposit: %v", err)
	}
	led.in(wadInt(10_000))
	led.reconcile("floating deposit")

	// The whole 1000 rides on the floating backstop; the fee stays
	// unassigned in the pool.
	owed, err := m.BorrowFixed(bob, maturity, wadInt(1000), nil, 20_000)
	if err != nil {
		t.Fatalf("fixed borrow: %v", err)
	}
	led.out(wadInt(1000))
	led.reconcile("fixed borrow")

	// Carol displaces half the backstop mid-flight and captures a yield cut
	// from the unassigned earnings.
	position, err := m.DepositFixed(carol, maturity, wadInt(500), nil, 1_000_000)
	if err != nil {
		t.Fatalf("fixed deposit: %v", err)
	}
	led.in(wadInt(500))
	led.reconcile("fixed deposit")

	if _, err := m.RepayFixed(bob, maturity, owed, maturity); err != nil {
		t.Fatalf("fixed repay: %v", err)
	}
	led.in(owed)
	led.reconcile("fixed repay")

	redeemed, err := m.WithdrawFixed(carol, maturity, position, maturity)
	if err != nil {
		t.Fatalf("fixed withdraw: %v", err)
	}
	led.out(redeemed)
	led.reconcile("fixed withdraw")

	assets, err := m.WithdrawFloating(alice, wadInt(10_000), maturity)
	if err != nil {
		t.Fatalf("floating withdraw: %v", err)
	}
	led.out(assets)
	led.reconcile("floating withdraw")

	// With every position closed the only claim left is the protocol's.
	if m.FloatingAssets().Sign() != 0 {
		t.Errorf("supplier claims should be empty, got %s", m.FloatingAssets())
	}
	if m.Cash().Cmp(m.EarningsAccumulator()) != 0 {
		t.Errorf("remaining cash %s must equal protocol earnings %s", m.Cash(), m.EarningsAccumulator())
	}
}

func TestConservation_LiquidationAndWriteOff(t *testing.T) {
	auditor, oracle, usdc, weth := twoMarkets(t)
	auditor.SetLiquidationIncentive(pct(20), pct(5)) // 1.25x total, exact seize math
	usdcLed := newLedger(t, usdc)
	wethLed := newLedger(t, weth)
	payer := uuid.New()
	bob := uuid.New()
	liquidator := uuid.New()

	// Fund the accumulator with a late-repay penalty.
	if _, err := usdc.DepositFloating(payer, wadInt(10_000), 0); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	usdcLed.in(wadInt(10_000))
	auditor.EnterMarket(payer, usdc)
	maturity := lending.FixedInterval
	if _, err := usdc.BorrowFixed(payer, maturity, wadInt(100), nil, 20_000); err != nil {
		t.Fatalf("fixed borrow: %v", err)
	}
	usdcLed.out(wadInt(100))
	usdcLed.reconcile("fixed borrow")

	day := int64(86_400)
	owed := usdc.FixedDebtAt(payer, maturity, maturity+day)
	if _, err := usdc.RepayFixed(payer, maturity, owed, maturity+day); err != nil {
		t.Fatalf("late repay: %v", err)
	}
	usdcLed.in(owed)
	usdcLed.reconcile("late repay")

	// Bob borrows 50 against 0.05 WETH, then the collateral collapses.
	now := maturity + 2*day
	if _, err := weth.DepositFloating(bob, pct(5), now); err != nil {
		t.Fatalf("collateral deposit: %v", err)
	}
	wethLed.in(pct(5))
	auditor.EnterMarket(bob, weth)
	if _, err := usdc.BorrowFloating(bob, wadInt(50), now); err != nil {
		t.Fatalf("floating borrow: %v", err)
	}
	usdcLed.out(wadInt(50))
	usdcLed.reconcile("floating borrow")
	wethLed.reconcile("collateral deposit")

	oracle.set("WETH", wadInt(100))
	repaid, seized, err := usdc.Liquidate(liquidator, bob, wadInt(100), nil, weth, now+1)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	usdcLed.in(repaid)
	// The liquidator walks away with the seized collateral minus the
	// lenders' cut: 5% of the 1.25x premium on 0.05 WETH is 0.002.
	lendersCut := big.NewInt(2_000_000_000_000_000)
	wethLed.out(new(big.Int).Sub(seized, lendersCut))
	usdcLed.reconcile("liquidation repay")
	wethLed.reconcile("seize")

	// The leftover 46 of unbacked debt was written off inside the call:
	// the accumulator shrinks, supplier claims must not move.
	if got := usdc.TotalDebt(bob, now+1); got.Sign() != 0 {
		t.Fatalf("bad debt should be cleared, still owes %s", got)
	}
	if got := usdc.FloatingAssets(); got.Cmp(wadInt(10_000)) != 0 {
		t.Errorf("supplier claims after write-off: got %s, want 10000 wad", got)
	}
	wantEA := new(big.Int).Add(wadInt(40), pct(40)) // 86.4 penalty - 46 written off
	if got := usdc.EarningsAccumulator(); got.Cmp(wantEA) != 0 {
		t.Errorf("accumulator: got %s, want %s", got, wantEA)
	}
	usdcLed.reconcile("write-off")
	if got := weth.EarningsAccumulator(); got.Cmp(lendersCut) != 0 {
		t.Errorf("lenders cut: got %s, want %s", got, lendersCut)
	}
}
