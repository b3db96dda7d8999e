package lending

import (
	"math/big"

	"github.com/google/uuid"

	"github.com/exactly/protocol-sub001/internal/event"
)

// DepositFixed supplies assets to a future maturity. The deposit earns an
// immediate discount drawn from the pool's unassigned earnings, proportional
// to how much floating-pool backstop it displaces, and retires the pool's
// debt to the floating pool before growing its own surplus.
func (m *Market) DepositFixed(account uuid.UUID, maturity int64, assets, minAssetsOut *big.Int, now int64) (*big.Int, error) {
	if isZero(assets) || assets.Sign() < 0 {
		return nil, ErrZeroAmount
	}
	if err := checkPoolState(maturity, now, m.maxFuturePools, PoolStateValid, PoolStateNone); err != nil {
		return nil, err
	}
	m.accrueFloatingDebt(now)
	m.updateFloatingAssetsAverage(now)

	pool := m.fixedPool(maturity, now)
	m.floatingAssets = new(big.Int).Add(m.floatingAssets, pool.accrueEarnings(maturity, now))

	yield, backupFee := pool.calculateDeposit(assets, m.backupFeeRate)
	positionAssets := new(big.Int).Add(assets, yield)
	if minAssetsOut != nil && positionAssets.Cmp(minAssetsOut) < 0 {
		return nil, ErrTooMuchSlippage
	}

	backupReduction := pool.deposit(assets)
	m.floatingBackupBorrowed = new(big.Int).Sub(m.floatingBackupBorrowed, backupReduction)
	pool.UnassignedEarnings = new(big.Int).Sub(pool.UnassignedEarnings, new(big.Int).Add(yield, backupFee))
	m.earningsAccumulator = new(big.Int).Add(m.earningsAccumulator, backupFee)
	m.cash = new(big.Int).Add(m.cash, assets)

	acc := m.account(account)
	pos, ok := acc.FixedDeposits[maturity]
	if !ok {
		pos = &FixedPosition{Principal: new(big.Int), Fee: new(big.Int)}
		acc.FixedDeposits[maturity] = pos
	}
	pos.Principal = new(big.Int).Add(pos.Principal, assets)
	pos.Fee = new(big.Int).Add(pos.Fee, yield)

	m.record(&event.FixedDeposit{
		Market: m.Asset, Maturity: maturity, Account: account,
		Assets: new(big.Int).Set(assets), Fee: new(big.Int).Set(yield),
	})
	return positionAssets, nil
}

// BorrowFixed locks a rate until maturity. Liquidity comes first from the
// maturity's own unutilized supply, then from the floating backstop bounded
// by the damped assets average; the shortfall becomes the pool's debt to the
// floating pool.
func (m *Market) BorrowFixed(account uuid.UUID, maturity int64, assets, maxAssetsOwed *big.Int, now int64) (*big.Int, error) {
	if isZero(assets) || assets.Sign() < 0 {
		return nil, ErrZeroAmount
	}
	if err := checkPoolState(maturity, now, m.maxFuturePools, PoolStateValid, PoolStateNone); err != nil {
		return nil, err
	}
	m.accrueFloatingDebt(now)
	m.updateFloatingAssetsAverage(now)

	pool := m.fixedPool(maturity, now)
	m.floatingAssets = new(big.Int).Add(m.floatingAssets, pool.accrueEarnings(maturity, now))

	rate := m.irm.FixedBorrowRate(pool, assets, m.floatingAssetsAverage)
	fee := FixedFee(assets, rate, maturity, now)
	assetsOwed := new(big.Int).Add(assets, fee)
	if maxAssetsOwed != nil && assetsOwed.Cmp(maxAssetsOwed) > 0 {
		return nil, ErrTooMuchSlippage
	}

	// Everything below the mutation line must be validated first: the borrow
	// either commits whole or not at all.
	newBorrowed := new(big.Int).Add(pool.Borrowed, assets)
	newBackup := new(big.Int).Sub(newBorrowed, minBig(newBorrowed, pool.Supplied))
	backupAddition := new(big.Int).Sub(newBackup, pool.BackupDebt())
	if backupAddition.Sign() > 0 {
		if backupAddition.Cmp(m.availableFloatingLiquidity()) > 0 {
			return nil, ErrInsufficientProtocolLiquidity
		}
		if err := m.checkBackupReserve(backupAddition, nil); err != nil {
			return nil, err
		}
		total := new(big.Int).Add(m.floatingBackupBorrowed, backupAddition)
		if total.Cmp(m.floatingAssetsAverage) > 0 {
			return nil, ErrInsufficientProtocolLiquidity
		}
	}
	if m.auditor != nil {
		if err := m.auditor.CheckBorrow(m, account, assetsOwed, now); err != nil {
			return nil, err
		}
	}

	pool.borrow(assets)
	m.floatingBackupBorrowed = new(big.Int).Add(m.floatingBackupBorrowed, backupAddition)
	m.cash = new(big.Int).Sub(m.cash, assets)

	unassigned, backup := pool.distributeEarnings(fee, assets)
	pool.UnassignedEarnings = new(big.Int).Add(pool.UnassignedEarnings, unassigned)
	m.floatingAssets = new(big.Int).Add(m.floatingAssets, backup)

	acc := m.account(account)
	pos, ok := acc.FixedBorrows[maturity]
	if !ok {
		pos = &FixedPosition{Principal: new(big.Int), Fee: new(big.Int)}
		acc.FixedBorrows[maturity] = pos
	}
	pos.Principal = new(big.Int).Add(pos.Principal, assets)
	pos.Fee = new(big.Int).Add(pos.Fee, fee)

	m.record(&event.FixedBorrow{
		Market: m.Asset, Maturity: maturity, Account: account,
		Assets: new(big.Int).Set(assets), Fee: new(big.Int).Set(fee),
	})
	return assetsOwed, nil
}

// WithdrawFixed redeems a matured supply position. positionAssets is the
// maturity value (principal+fee) to redeem; redeeming more than the position
// holds is rejected.
func (m *Market) WithdrawFixed(account uuid.UUID, maturity int64, positionAssets *big.Int, now int64) (*big.Int, error) {
	if isZero(positionAssets) || positionAssets.Sign() < 0 {
		return nil, ErrRedeemCantBeZero
	}
	if err := checkPoolState(maturity, now, m.maxFuturePools, PoolStateMatured, PoolStateNone); err != nil {
		return nil, err
	}
	m.accrueFloatingDebt(now)
	m.updateFloatingAssetsAverage(now)

	acc := m.account(account)
	pos, ok := acc.FixedDeposits[maturity]
	if !ok || positionAssets.Cmp(pos.total()) > 0 {
		return nil, ErrInsufficientBalance
	}

	pool := m.fixedPool(maturity, now)
	m.floatingAssets = new(big.Int).Add(m.floatingAssets, pool.accrueEarnings(maturity, now))

	principalCovered := mulDivDown(positionAssets, pos.Principal, pos.total())

	newSupplied := new(big.Int).Sub(pool.Supplied, principalCovered)
	newBackup := new(big.Int).Sub(pool.Borrowed, minBig(pool.Borrowed, newSupplied))
	backupAddition := new(big.Int).Sub(newBackup, pool.BackupDebt())
	if backupAddition.Sign() > 0 {
		if backupAddition.Cmp(m.availableFloatingLiquidity()) > 0 {
			return nil, ErrInsufficientProtocolLiquidity
		}
		if err := m.checkBackupReserve(backupAddition, nil); err != nil {
			return nil, err
		}
	}

	pool.withdrawSupply(principalCovered)
	m.floatingBackupBorrowed = new(big.Int).Add(m.floatingBackupBorrowed, backupAddition)
	m.cash = new(big.Int).Sub(m.cash, positionAssets)
	pos.reduceBy(positionAssets)
	if pos.total().Sign() == 0 {
		delete(acc.FixedDeposits, maturity)
	}

	m.record(&event.FixedWithdraw{
		Market: m.Asset, Maturity: maturity, Account: account,
		Assets: new(big.Int).Set(positionAssets),
	})
	return new(big.Int).Set(positionAssets), nil
}

// RepayFixed pays down a fixed borrow with assets. Before maturity the payer
// earns the same unassigned-earnings discount a deposit would; after maturity
// the linear penalty applies and its proceeds go to the earnings accumulator.
// Paying more than owed is rejected, never silently refunded.
func (m *Market) RepayFixed(account uuid.UUID, maturity int64, assets *big.Int, now int64) (positionReduction *big.Int, err error) {
	if isZero(assets) || assets.Sign() < 0 {
		return nil, ErrZeroRepay
	}
	if err := checkPoolState(maturity, now, m.maxFuturePools, PoolStateValid, PoolStateMatured); err != nil {
		return nil, err
	}
	m.accrueFloatingDebt(now)
	m.updateFloatingAssetsAverage(now)

	acc := m.account(account)
	pos, ok := acc.FixedBorrows[maturity]
	if !ok {
		return nil, ErrTooMuchRepayTransfer
	}

	pool := m.fixedPool(maturity, now)
	m.floatingAssets = new(big.Int).Add(m.floatingAssets, pool.accrueEarnings(maturity, now))

	owed := m.fixedDebtOwed(pos, maturity, now)
	if assets.Cmp(owed) > 0 {
		return nil, ErrTooMuchRepayTransfer
	}

	if now < maturity {
		yield, backupFee := pool.calculateDeposit(assets, m.backupFeeRate)
		positionReduction = minBig(new(big.Int).Add(assets, yield), owed)
		positionReduction = new(big.Int).Set(positionReduction)
		pool.UnassignedEarnings = new(big.Int).Sub(pool.UnassignedEarnings, new(big.Int).Add(yield, backupFee))
		m.earningsAccumulator = new(big.Int).Add(m.earningsAccumulator, backupFee)
	} else {
		// assets covers positionReduction of maturity value plus its penalty.
		positionReduction = mulDivDown(assets, pos.total(), owed)
		penalty := new(big.Int).Sub(assets, positionReduction)
		m.earningsAccumulator = new(big.Int).Add(m.earningsAccumulator, penalty)
	}

	principalCovered := pos.reduceBy(positionReduction)
	backupReduction := pool.repay(principalCovered)
	m.floatingBackupBorrowed = new(big.Int).Sub(m.floatingBackupBorrowed, backupReduction)
	m.cash = new(big.Int).Add(m.cash, assets)
	if pos.total().Sign() == 0 {
		delete(acc.FixedBorrows, maturity)
	}

	m.record(&event.FixedRepay{
		Market: m.Asset, Maturity: maturity, Account: account,
		Assets: new(big.Int).Set(assets), PositionReduction: new(big.Int).Set(positionReduction),
	})
	return positionReduction, nil
}
