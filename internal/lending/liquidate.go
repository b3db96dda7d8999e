package lending

import (
	"math/big"

	"github.com/google/uuid"

	"github.com/exactly/protocol-sub001/internal/event"
)

// Liquidate repays part of an undercollateralized borrower's debt in this
// market and seizes collateral from collateralMarket in exchange. The auditor
// sizes the repayment (close factor, collateral coverage) and the seizure;
// this market executes the repay, the collateral market executes the seize.
// All sizing and balance checks happen before the first mutation.
func (m *Market) Liquidate(liquidator, borrower uuid.UUID, maxRepayAssets, minSeizeAssets *big.Int, collateralMarket *Market, now int64) (repaid, seized *big.Int, err error) {
	if m.auditor == nil {
		return nil, nil, ErrMarketNotListed
	}
	m.accrueFloatingDebt(now)
	m.updateFloatingAssetsAverage(now)
	if collateralMarket != m {
		collateralMarket.accrueFloatingDebt(now)
		collateralMarket.updateFloatingAssetsAverage(now)
	}

	repayAssets, err := m.auditor.CheckLiquidation(m, collateralMarket, liquidator, borrower, maxRepayAssets, now)
	if err != nil {
		return nil, nil, err
	}

	seizeAssets, lendersAssets, err := m.auditor.CalculateSeize(m, collateralMarket, repayAssets)
	if err != nil {
		return nil, nil, err
	}
	// A dust repay can price to zero collateral; reject it here, while no
	// state has moved yet.
	if isZero(seizeAssets) {
		return nil, nil, ErrZeroAmount
	}
	if minSeizeAssets != nil && seizeAssets.Cmp(minSeizeAssets) < 0 {
		return nil, nil, ErrTooMuchSlippage
	}
	if seizeAssets.Cmp(collateralMarket.FloatingBalance(borrower)) > 0 {
		// Economic invariant violation: the auditor bounded the repay by the
		// collateral, so overshooting here is fatal to the call.
		return nil, nil, ErrInsufficientBalance
	}

	repaid = m.repayForLiquidation(borrower, repayAssets, now)
	m.cash = new(big.Int).Add(m.cash, repaid)
	if err := collateralMarket.seize(liquidator, borrower, seizeAssets, lendersAssets); err != nil {
		return nil, nil, err
	}

	m.record(&event.Liquidation{
		DebtMarket: m.Asset, CollateralMarket: collateralMarket.Asset,
		Liquidator: liquidator, Borrower: borrower,
		Repaid: new(big.Int).Set(repaid), Seized: new(big.Int).Set(seizeAssets),
	})

	m.auditor.HandleBadDebt(borrower, now)
	return repaid, seizeAssets, nil
}

// repayForLiquidation clears up to maxAssets of the borrower's debt at face
// value: fixed maturities first (oldest first, penalties to the accumulator),
// then the floating position. Liquidation repayment earns no early-repay
// discount.
func (m *Market) repayForLiquidation(borrower uuid.UUID, maxAssets *big.Int, now int64) (repaid *big.Int) {
	acc := m.account(borrower)
	remaining := new(big.Int).Set(maxAssets)
	repaid = new(big.Int)

	for _, maturity := range acc.borrowMaturities() {
		if remaining.Sign() == 0 {
			break
		}
		pos := acc.FixedBorrows[maturity]
		pool := m.fixedPool(maturity, now)
		m.floatingAssets = new(big.Int).Add(m.floatingAssets, pool.accrueEarnings(maturity, now))

		owed := m.fixedDebtOwed(pos, maturity, now)
		pay := minBig(remaining, owed)
		positionReduction := mulDivDown(pay, pos.total(), owed)
		penalty := new(big.Int).Sub(pay, positionReduction)
		m.earningsAccumulator = new(big.Int).Add(m.earningsAccumulator, penalty)

		principalCovered := pos.reduceBy(positionReduction)
		backupReduction := pool.repay(principalCovered)
		m.floatingBackupBorrowed = new(big.Int).Sub(m.floatingBackupBorrowed, backupReduction)
		if pos.total().Sign() == 0 {
			delete(acc.FixedBorrows, maturity)
		}

		repaid.Add(repaid, pay)
		remaining = new(big.Int).Sub(remaining, pay)
	}

	if remaining.Sign() > 0 && acc.FloatingBorrowShares.Sign() > 0 {
		actual, _, err := m.repayFloatingDebt(borrower, remaining)
		if err == nil {
			repaid.Add(repaid, actual)
		}
	}
	return repaid
}

// seize burns the borrower's floating deposit shares worth seizeAssets under
// auditor authorization. The lenders' share of the incentive stays in this
// market's earnings accumulator; the rest leaves with the liquidator.
func (m *Market) seize(liquidator, borrower uuid.UUID, seizeAssets, lendersAssets *big.Int) error {
	if isZero(seizeAssets) {
		return ErrZeroAmount
	}
	acc := m.account(borrower)
	shares := m.convertToSharesUp(seizeAssets)
	if shares.Cmp(acc.FloatingShares) > 0 {
		return ErrInsufficientBalance
	}

	acc.FloatingShares = new(big.Int).Sub(acc.FloatingShares, shares)
	m.floatingSupplyShares = new(big.Int).Sub(m.floatingSupplyShares, shares)
	m.floatingAssets = new(big.Int).Sub(m.floatingAssets, seizeAssets)
	m.earningsAccumulator = new(big.Int).Add(m.earningsAccumulator, lendersAssets)
	// Only the liquidator's share leaves the market; the lenders' cut stays
	// behind as accumulator cash.
	m.cash = new(big.Int).Sub(m.cash, new(big.Int).Sub(seizeAssets, lendersAssets))

	m.record(&event.Seize{
		Market: m.Asset, Liquidator: liquidator, Borrower: borrower,
		Assets: new(big.Int).Set(seizeAssets), LendersCut: new(big.Int).Set(lendersAssets),
	})
	return nil
}

func (m *Market) convertToSharesUp(assets *big.Int) *big.Int {
	if m.floatingSupplyShares.Sign() == 0 {
		return new(big.Int).Set(assets)
	}
	return mulDivUp(assets, m.floatingSupplyShares, m.floatingAssets)
}

// clearBadDebt writes off the borrower's remaining debt against the earnings
// accumulator, position by position. A position is cleared only when the
// accumulator can absorb it whole; otherwise it stays on the books for a
// later attempt.
func (m *Market) clearBadDebt(borrower uuid.UUID, now int64) (cleared *big.Int) {
	m.accrueFloatingDebt(now)
	acc := m.account(borrower)
	cleared = new(big.Int)

	for _, maturity := range acc.borrowMaturities() {
		pos := acc.FixedBorrows[maturity]
		pool := m.fixedPool(maturity, now)
		// The write-off covers the maturity value only. The late penalty was
		// never booked as income, so forgiving it costs the accumulator
		// nothing.
		owed := pos.total()
		if owed.Sign() == 0 || m.earningsAccumulator.Cmp(owed) < 0 {
			continue
		}
		m.earningsAccumulator = new(big.Int).Sub(m.earningsAccumulator, owed)
		backupReduction := pool.repay(pos.Principal)
		m.floatingBackupBorrowed = new(big.Int).Sub(m.floatingBackupBorrowed, backupReduction)
		delete(acc.FixedBorrows, maturity)
		cleared.Add(cleared, owed)
	}

	if acc.FloatingBorrowShares.Sign() > 0 && m.floatingBorrowShares.Sign() > 0 {
		owed := mulDivUp(acc.FloatingBorrowShares, m.floatingDebt, m.floatingBorrowShares)
		if owed.Sign() > 0 && m.earningsAccumulator.Cmp(owed) >= 0 {
			m.earningsAccumulator = new(big.Int).Sub(m.earningsAccumulator, owed)
			m.floatingBorrowShares = new(big.Int).Sub(m.floatingBorrowShares, acc.FloatingBorrowShares)
			m.floatingDebt = new(big.Int).Sub(m.floatingDebt, owed)
			if m.floatingDebt.Sign() < 0 {
				m.floatingDebt.SetInt64(0)
			}
			acc.FloatingBorrowShares = new(big.Int)
			cleared.Add(cleared, owed)
		}
	}

	if cleared.Sign() > 0 {
		m.record(&event.BadDebtCleared{Market: m.Asset, Borrower: borrower, Amount: new(big.Int).Set(cleared)})
	}
	return cleared
}
