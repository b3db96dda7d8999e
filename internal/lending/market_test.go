package lending_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/google/uuid"

	"github.com/exactly/protocol-sub001/internal/lending"
)

// Wad-scaled integers keep expected values exact; float-derived parameters
// carry binary representation noise.
func wadInt(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

func pct(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(10_000_000_000_000_000))
}

func testConfig(asset string) lending.MarketConfig {
	return lending.MarketConfig{
		Asset:          asset,
		Decimals:       18,
		PenaltyRate:    big.NewInt(10_000_000_000_000), // 1e-5 wad per second
		BackupFeeRate:  pct(10),
		ReserveFactor:  pct(10),
		DampSpeedUp:    big.NewInt(100_000_000_000_000), // caps at 10_000s
		DampSpeedDown:  big.NewInt(420_000_000_000_000_000),
		MaxFuturePools: 12,
	}
}

// zeroRateModel keeps balances exactly flat across time.
func zeroRateModel() *lending.InterestRateModel {
	return &lending.InterestRateModel{
		FloatingBase:   new(big.Int),
		FloatingSlope1: new(big.Int),
		FloatingSlope2: new(big.Int),
		FloatingKink:   pct(80),
		FixedBase:      new(big.Int),
		FixedSlope1:    new(big.Int),
		FixedSlope2:    new(big.Int),
		FixedKink:      pct(80),
		RateCeiling:    wadInt(10),
	}
}

// flatRateModel charges a constant rate regardless of utilization.
func flatRateModel(floating, fixed *big.Int) *lending.InterestRateModel {
	m := zeroRateModel()
	m.FloatingBase = new(big.Int).Set(floating)
	m.FixedBase = new(big.Int).Set(fixed)
	return m
}

// ============================================================================
// Test: floating pool
// ============================================================================

func TestFloating_DepositWithdrawRoundTrip(t *testing.T) {
	m := lending.NewMarket(testConfig("USDC"), zeroRateModel(), 0)
	alice := uuid.New()

	shares, err := m.DepositFloating(alice, wadInt(1000), 0)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if shares.Cmp(wadInt(1000)) != 0 {
		t.Errorf("first deposit mints 1:1, got %s", shares)
	}

	assets, err := m.WithdrawFloating(alice, shares, 0)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if assets.Cmp(wadInt(1000)) != 0 {
		t.Errorf("round trip must return the deposit, got %s", assets)
	}
	if m.FloatingBalance(alice).Sign() != 0 {
		t.Errorf("balance should be zero, got %s", m.FloatingBalance(alice))
	}
	if m.FloatingAssets().Sign() != 0 {
		t.Errorf("pool should be empty, got %s", m.FloatingAssets())
	}
}

func TestFloating_ZeroAmountsRejected(t *testing.T) {
	m := lending.NewMarket(testConfig("USDC"), zeroRateModel(), 0)
	alice := uuid.New()

	if _, err := m.DepositFloating(alice, new(big.Int), 0); !errors.Is(err, lending.ErrZeroAmount) {
		t.Errorf("deposit zero: got %v", err)
	}
	if _, err := m.WithdrawFloating(alice, new(big.Int), 0); !errors.Is(err, lending.ErrRedeemCantBeZero) {
		t.Errorf("withdraw zero: got %v", err)
	}
	if _, err := m.BorrowFloating(alice, new(big.Int), 0); !errors.Is(err, lending.ErrZeroAmount) {
		t.Errorf("borrow zero: got %v", err)
	}
	if _, _, err := m.RepayFloating(alice, new(big.Int), 0); !errors.Is(err, lending.ErrZeroRepay) {
		t.Errorf("repay zero: got %v", err)
	}
}

func TestFloating_WithdrawMoreThanBalance(t *testing.T) {
	m := lending.NewMarket(testConfig("USDC"), zeroRateModel(), 0)
	alice := uuid.New()
	m.DepositFloating(alice, wadInt(100), 0)

	if _, err := m.WithdrawFloating(alice, wadInt(101), 0); !errors.Is(err, lending.ErrInsufficientBalance) {
		t.Errorf("got %v, want ErrInsufficientBalance", err)
	}
	if m.FloatingBalance(alice).Cmp(wadInt(100)) != 0 {
		t.Errorf("failed withdraw must not touch the balance, got %s", m.FloatingBalance(alice))
	}
}

func TestFloating_DepositFlooringToZeroSharesRejected(t *testing.T) {
	irm := flatRateModel(new(big.Int), pct(10))
	m := lending.NewMarket(testConfig("USDC"), irm, 0)
	alice := uuid.New()
	bob := uuid.New()
	carol := uuid.New()
	dave := uuid.New()
	maturity := lending.FixedInterval

	// Carol's fixed supply matches bob's borrow, so the whole borrow fee
	// lands in the floating pool, where alice holds a single wei-sized
	// share. The share price is now hundreds of wad per share.
	if _, err := m.DepositFixed(carol, maturity, wadInt(1000), nil, 0); err != nil {
		t.Fatalf("deposit fixed: %v", err)
	}
	if _, err := m.DepositFloating(alice, big.NewInt(1), 0); err != nil {
		t.Fatalf("seed deposit: %v", err)
	}
	if _, err := m.BorrowFixed(bob, maturity, wadInt(1000), nil, 20_000); err != nil {
		t.Fatalf("borrow fixed: %v", err)
	}

	// A deposit below the share price converts to zero shares. Minting
	// anything for it would hand the depositor a slice of alice's pool, so
	// it must be refused whole.
	before := m.FloatingAssets()
	if _, err := m.DepositFloating(dave, wadInt(1), 20_000); !errors.Is(err, lending.ErrZeroShares) {
		t.Errorf("got %v, want ErrZeroShares", err)
	}
	if m.FloatingAssets().Cmp(before) != 0 {
		t.Errorf("rejected deposit must not touch the pool, got %s", m.FloatingAssets())
	}
	if m.FloatingBalance(dave).Sign() != 0 {
		t.Errorf("rejected deposit must credit nothing, got %s", m.FloatingBalance(dave))
	}
}

func TestFloating_InterestAccruesToSuppliers(t *testing.T) {
	irm := flatRateModel(pct(2), new(big.Int)) // 2% floating
	m := lending.NewMarket(testConfig("USDC"), irm, 0)
	alice := uuid.New()
	bob := uuid.New()

	m.DepositFloating(alice, wadInt(1000), 0)
	if _, err := m.BorrowFloating(bob, wadInt(500), 0); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	year := int64(365 * 24 * 3600)
	// 2% on 500 over a year: 10 owed by bob, 10 earned by alice.
	if got := m.TotalDebt(bob, year); got.Cmp(wadInt(510)) != 0 {
		t.Errorf("debt after a year: got %s, want 510 wad", got)
	}

	actual, refund, err := m.RepayFloating(bob, wadInt(600), year)
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if actual.Cmp(wadInt(510)) != 0 {
		t.Errorf("actual repay: got %s, want 510 wad", actual)
	}
	if refund.Cmp(wadInt(90)) != 0 {
		t.Errorf("refund: got %s, want 90 wad", refund)
	}
	if got := m.FloatingBalance(alice); got.Cmp(wadInt(1010)) != 0 {
		t.Errorf("supplier balance: got %s, want 1010 wad", got)
	}
	if m.TotalDebt(bob, year).Sign() != 0 {
		t.Errorf("debt should be settled, got %s", m.TotalDebt(bob, year))
	}
}

func TestFloating_BorrowBeyondReserveRejected(t *testing.T) {
	m := lending.NewMarket(testConfig("USDC"), zeroRateModel(), 0)
	alice := uuid.New()
	bob := uuid.New()
	m.DepositFloating(alice, wadInt(100), 0)

	// 10% reserve: at most 90 is lendable.
	if _, err := m.BorrowFloating(bob, wadInt(95), 0); !errors.Is(err, lending.ErrInsufficientProtocolLiquidity) {
		t.Errorf("got %v, want ErrInsufficientProtocolLiquidity", err)
	}
	if _, err := m.BorrowFloating(bob, wadInt(90), 0); err != nil {
		t.Errorf("borrow at the reserve bound should pass, got %v", err)
	}
}

func TestFloating_WithdrawBlockedByOutstandingLoans(t *testing.T) {
	m := lending.NewMarket(testConfig("USDC"), zeroRateModel(), 0)
	alice := uuid.New()
	bob := uuid.New()
	m.DepositFloating(alice, wadInt(100), 0)
	m.BorrowFloating(bob, wadInt(50), 0)

	if _, err := m.WithdrawFloating(alice, wadInt(60), 0); !errors.Is(err, lending.ErrInsufficientLiquidity) {
		t.Errorf("got %v, want ErrInsufficientLiquidity", err)
	}
	if _, err := m.WithdrawFloating(alice, wadInt(50), 0); err != nil {
		t.Errorf("withdrawing the idle remainder should pass, got %v", err)
	}
}

func TestFloating_DebtSharesRoundAgainstBorrower(t *testing.T) {
	irm := flatRateModel(pct(2), new(big.Int))
	m := lending.NewMarket(testConfig("USDC"), irm, 0)
	alice := uuid.New()
	bob := uuid.New()
	carol := uuid.New()

	m.DepositFloating(alice, wadInt(1000), 0)
	m.BorrowFloating(bob, wadInt(100), 0)

	// A year later the share price is above one; carol's debt must never be
	// below the assets she drew.
	year := int64(365 * 24 * 3600)
	m.BorrowFloating(carol, big.NewInt(333), year)
	if got := m.TotalDebt(carol, year); got.Cmp(big.NewInt(333)) < 0 {
		t.Errorf("debt %s below drawn 333", got)
	}
}

func TestMarket_TotalDebtIncludesLatePenalty(t *testing.T) {
	m := lending.NewMarket(testConfig("USDC"), zeroRateModel(), 0)
	alice := uuid.New()
	bob := uuid.New()
	maturity := lending.FixedInterval

	m.DepositFloating(alice, wadInt(1000), 0)
	if _, err := m.BorrowFixed(bob, maturity, wadInt(500), nil, 20_000); err != nil {
		t.Fatalf("borrow fixed: %v", err)
	}

	day := int64(86_400)
	// Penalty rate 1e-5/s: one day late costs 86.4% of the position.
	if got := m.TotalDebt(bob, maturity+day); got.Cmp(wadInt(932)) != 0 {
		t.Errorf("got %s, want 932 wad", got)
	}
	if got := m.TotalDebt(bob, maturity); got.Cmp(wadInt(500)) != 0 {
		t.Errorf("no penalty at maturity, got %s", got)
	}
}
