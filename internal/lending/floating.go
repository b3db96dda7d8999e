package lending

import (
	"math/big"

	"github.com/google/uuid"

	"github.com/exactly/protocol-sub001/internal/event"
)

// DepositFloating mints deposit shares at the current exchange rate (1:1 on
// an empty pool) and grows the floating assets.
func (m *Market) DepositFloating(account uuid.UUID, assets *big.Int, now int64) (*big.Int, error) {
	if isZero(assets) || assets.Sign() < 0 {
		return nil, ErrZeroAmount
	}
	m.accrueFloatingDebt(now)
	m.updateFloatingAssetsAverage(now)

	shares := m.convertToShares(assets)
	if shares.Sign() == 0 {
		// An inflated exchange rate can floor small deposits to zero shares.
		// Any fallback mint here would reprice every outstanding share, so
		// the deposit is refused outright.
		return nil, ErrZeroShares
	}

	acc := m.account(account)
	acc.FloatingShares = new(big.Int).Add(acc.FloatingShares, shares)
	m.floatingSupplyShares = new(big.Int).Add(m.floatingSupplyShares, shares)
	m.floatingAssets = new(big.Int).Add(m.floatingAssets, assets)
	m.cash = new(big.Int).Add(m.cash, assets)

	m.record(&event.FloatingDeposit{Market: m.Asset, Account: account, Assets: new(big.Int).Set(assets), Shares: new(big.Int).Set(shares)})
	return shares, nil
}

// WithdrawFloating burns shares and pays out assets. Liquidity presently lent
// to borrowers or to fixed-pool backstops cannot be withdrawn, and the
// auditor must confirm the account stays solvent without the collateral.
func (m *Market) WithdrawFloating(account uuid.UUID, shares *big.Int, now int64) (*big.Int, error) {
	if isZero(shares) || shares.Sign() < 0 {
		return nil, ErrRedeemCantBeZero
	}
	m.accrueFloatingDebt(now)
	m.updateFloatingAssetsAverage(now)

	acc := m.account(account)
	if acc.FloatingShares.Cmp(shares) < 0 {
		return nil, ErrInsufficientBalance
	}
	assets := m.convertToAssets(shares)
	if assets.Cmp(m.availableFloatingLiquidity()) > 0 {
		return nil, ErrInsufficientLiquidity
	}
	if m.auditor != nil {
		if err := m.auditor.CheckShortfall(m, account, assets, now); err != nil {
			return nil, err
		}
	}

	acc.FloatingShares = new(big.Int).Sub(acc.FloatingShares, shares)
	m.floatingSupplyShares = new(big.Int).Sub(m.floatingSupplyShares, shares)
	m.floatingAssets = new(big.Int).Sub(m.floatingAssets, assets)
	m.cash = new(big.Int).Sub(m.cash, assets)

	m.record(&event.FloatingWithdraw{Market: m.Asset, Account: account, Assets: new(big.Int).Set(assets), Shares: new(big.Int).Set(shares)})
	return assets, nil
}

// BorrowFloating draws assets from the floating pool against the account's
// collateral, minting debt shares. The whole borrow is rejected when either
// pool liquidity or account liquidity is insufficient; there is no partial
// fill.
func (m *Market) BorrowFloating(account uuid.UUID, assets *big.Int, now int64) (*big.Int, error) {
	if isZero(assets) || assets.Sign() < 0 {
		return nil, ErrZeroAmount
	}
	m.accrueFloatingDebt(now)
	m.updateFloatingAssetsAverage(now)

	if assets.Cmp(m.availableFloatingLiquidity()) > 0 {
		return nil, ErrInsufficientProtocolLiquidity
	}
	if err := m.checkBackupReserve(nil, assets); err != nil {
		return nil, err
	}
	if m.auditor != nil {
		if err := m.auditor.CheckBorrow(m, account, assets, now); err != nil {
			return nil, err
		}
	}

	// Debt shares round up: the borrower can never owe less than drawn.
	var shares *big.Int
	if m.floatingBorrowShares.Sign() == 0 || m.floatingDebt.Sign() == 0 {
		shares = new(big.Int).Set(assets)
	} else {
		shares = mulDivUp(assets, m.floatingBorrowShares, m.floatingDebt)
	}

	acc := m.account(account)
	acc.FloatingBorrowShares = new(big.Int).Add(acc.FloatingBorrowShares, shares)
	m.floatingBorrowShares = new(big.Int).Add(m.floatingBorrowShares, shares)
	m.floatingDebt = new(big.Int).Add(m.floatingDebt, assets)
	m.cash = new(big.Int).Sub(m.cash, assets)

	m.record(&event.FloatingBorrow{Market: m.Asset, Account: account, Assets: new(big.Int).Set(assets), Shares: new(big.Int).Set(shares)})
	return shares, nil
}

// RepayFloating pays down floating debt with assets. Paying more than owed
// refunds the excess instead of keeping it.
func (m *Market) RepayFloating(account uuid.UUID, assets *big.Int, now int64) (actual, refund *big.Int, err error) {
	if isZero(assets) || assets.Sign() < 0 {
		return nil, nil, ErrZeroRepay
	}
	m.accrueFloatingDebt(now)
	m.updateFloatingAssetsAverage(now)

	actual, _, err = m.repayFloatingDebt(account, assets)
	if err != nil {
		return nil, nil, err
	}
	refund = new(big.Int).Sub(assets, actual)
	m.cash = new(big.Int).Add(m.cash, actual)

	m.record(&event.FloatingRepay{Market: m.Asset, Account: account, Assets: new(big.Int).Set(actual), Refund: new(big.Int).Set(refund)})
	return actual, refund, nil
}

// repayFloatingDebt burns debt shares worth up to maxAssets. Shared by the
// repay entry point and the liquidation path; the caller has already accrued.
func (m *Market) repayFloatingDebt(account uuid.UUID, maxAssets *big.Int) (actual, sharesBurned *big.Int, err error) {
	acc := m.account(account)
	if acc.FloatingBorrowShares.Sign() == 0 {
		return nil, nil, ErrZeroRepay
	}
	owed := mulDivUp(acc.FloatingBorrowShares, m.floatingDebt, m.floatingBorrowShares)
	actual = minBig(maxAssets, owed)
	if actual.Cmp(owed) == 0 {
		sharesBurned = new(big.Int).Set(acc.FloatingBorrowShares)
	} else {
		sharesBurned = mulDivDown(actual, m.floatingBorrowShares, m.floatingDebt)
	}
	actual = new(big.Int).Set(actual)

	acc.FloatingBorrowShares = new(big.Int).Sub(acc.FloatingBorrowShares, sharesBurned)
	m.floatingBorrowShares = new(big.Int).Sub(m.floatingBorrowShares, sharesBurned)
	m.floatingDebt = new(big.Int).Sub(m.floatingDebt, actual)
	if m.floatingDebt.Sign() < 0 {
		m.floatingDebt.SetInt64(0)
	}
	return actual, sharesBurned, nil
}
