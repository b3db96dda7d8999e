package lending

import (
	"math/big"

	"github.com/google/uuid"

	"github.com/exactly/protocol-sub001/internal/event"
)

// PriceSource quotes asset prices in wad units of account per whole token.
// The auditor refuses to value anything it cannot price.
type PriceSource interface {
	Price(asset string) (*big.Int, error)
}

// LiquidationIncentive is the wad premium split applied to seized collateral:
// the liquidator's cut leaves the protocol, the lenders' cut lands in the
// collateral market's earnings accumulator.
type LiquidationIncentive struct {
	Liquidator *big.Int
	Lenders    *big.Int
}

func (li LiquidationIncentive) total() *big.Int {
	return new(big.Int).Add(li.Liquidator, li.Lenders)
}

type marketParams struct {
	adjustFactor *big.Int // wad in (0, 1]; haircuts collateral, grosses up debt
}

// Auditor is the cross-market risk engine: market listing, account
// memberships, the solvency scan behind every borrow and withdrawal, and the
// liquidation sizing rules. It holds no asset state of its own.
type Auditor struct {
	oracle   PriceSource
	recorder Recorder

	markets []*Market // listing order, kept stable for deterministic scans
	params  map[*Market]*marketParams

	memberships map[uuid.UUID]map[*Market]bool

	closeFactor *big.Int
	incentive   LiquidationIncentive
}

// NewAuditor wires the price source with the stock risk parameters: 50% close
// factor, 5% liquidator incentive, 2.5% lenders incentive.
func NewAuditor(oracle PriceSource) *Auditor {
	return &Auditor{
		oracle:      oracle,
		params:      make(map[*Market]*marketParams),
		memberships: make(map[uuid.UUID]map[*Market]bool),
		closeFactor: wadFromFloat(0.5),
		incentive: LiquidationIncentive{
			Liquidator: wadFromFloat(0.05),
			Lenders:    wadFromFloat(0.025),
		},
	}
}

// SetRecorder wires the event sink for membership and parameter events.
func (a *Auditor) SetRecorder(r Recorder) { a.recorder = r }

func (a *Auditor) record(evt event.Event) {
	if a.recorder != nil {
		a.recorder.Record(evt)
	}
}

// EnableMarket lists a market with its collateral adjust factor and claims it:
// once listed, the market routes every solvency question back here.
func (a *Auditor) EnableMarket(m *Market, adjustFactor *big.Int) error {
	if _, ok := a.params[m]; ok {
		return ErrMarketNotListed
	}
	if adjustFactor == nil || adjustFactor.Sign() <= 0 || adjustFactor.Cmp(wad) > 0 {
		return ErrZeroAmount
	}
	a.markets = append(a.markets, m)
	a.params[m] = &marketParams{adjustFactor: new(big.Int).Set(adjustFactor)}
	m.auditor = a
	a.record(&event.ParamUpdated{Market: m.Asset, Name: "market_enabled"})
	return nil
}

// Markets returns the listed markets in listing order.
func (a *Auditor) Markets() []*Market {
	out := make([]*Market, len(a.markets))
	copy(out, a.markets)
	return out
}

// MarketByAsset looks a listed market up by its underlying asset symbol.
func (a *Auditor) MarketByAsset(asset string) (*Market, bool) {
	for _, m := range a.markets {
		if m.Asset == asset {
			return m, true
		}
	}
	return nil, false
}

// EnterMarket opts the account's deposits in this market in as collateral.
// Idempotent.
func (a *Auditor) EnterMarket(account uuid.UUID, m *Market) error {
	if _, ok := a.params[m]; !ok {
		return ErrMarketNotListed
	}
	if a.entered(account, m) {
		return nil
	}
	set, ok := a.memberships[account]
	if !ok {
		set = make(map[*Market]bool)
		a.memberships[account] = set
	}
	set[m] = true
	a.record(&event.MarketEntered{Market: m.Asset, Account: account})
	return nil
}

// ExitMarket removes the market from the account's collateral set. Refused
// while the account owes the market anything or while the collateral is still
// load-bearing.
func (a *Auditor) ExitMarket(account uuid.UUID, m *Market, now int64) error {
	if _, ok := a.params[m]; !ok {
		return ErrMarketNotListed
	}
	if !a.entered(account, m) {
		return nil
	}
	if m.TotalDebt(account, now).Sign() > 0 {
		return ErrInsufficientAccountLiquidity
	}
	if err := a.CheckShortfall(m, account, m.FloatingBalance(account), now); err != nil {
		return err
	}
	delete(a.memberships[account], m)
	a.record(&event.MarketExited{Market: m.Asset, Account: account})
	return nil
}

func (a *Auditor) entered(account uuid.UUID, m *Market) bool {
	set, ok := a.memberships[account]
	return ok && set[m]
}

// AccountLiquidity values the account across every listed market at time now:
// adjusted collateral (entered floating deposits, haircut by the adjust
// factor, rounded down) against adjusted debt (all debt everywhere, grossed
// up by the adjust factor, rounded up). Hypothetical deltas against the
// target market are priced in before comparison.
func (a *Auditor) AccountLiquidity(account uuid.UUID, target *Market, withdrawAssets, borrowAssets *big.Int, now int64) (collateral, debt *big.Int, err error) {
	collateral = new(big.Int)
	debt = new(big.Int)
	for _, m := range a.markets {
		p := a.params[m]
		hasDebt := m.TotalDebt(account, now).Sign() > 0
		counted := a.entered(account, m)
		hypothetical := m == target && (withdrawAssets != nil || borrowAssets != nil)
		if !counted && !hasDebt && !hypothetical {
			continue
		}
		price, perr := a.oracle.Price(m.Asset)
		if perr != nil {
			return nil, nil, perr
		}

		if counted {
			assets := m.FloatingBalance(account)
			if m == target && withdrawAssets != nil {
				assets = new(big.Int).Sub(assets, withdrawAssets)
				if assets.Sign() < 0 {
					assets.SetInt64(0)
				}
			}
			value := mulDivDown(assets, price, m.baseUnit)
			collateral.Add(collateral, mulWadDown(value, p.adjustFactor))
		}

		owed := m.TotalDebt(account, now)
		if m == target && borrowAssets != nil {
			owed = new(big.Int).Add(owed, borrowAssets)
		}
		if owed.Sign() > 0 {
			value := mulDivUp(owed, price, m.baseUnit)
			debt.Add(debt, divWadUp(value, p.adjustFactor))
		}
	}
	return collateral, debt, nil
}

// CheckBorrow admits a new borrow only if the account stays solvent with the
// extra debt priced in. Borrowing implies membership: the debt market joins
// the account's collateral set so its deposits back the loan.
func (a *Auditor) CheckBorrow(m *Market, account uuid.UUID, assets *big.Int, now int64) error {
	if _, ok := a.params[m]; !ok {
		return ErrMarketNotListed
	}
	if err := a.EnterMarket(account, m); err != nil {
		return err
	}
	collateral, debt, err := a.AccountLiquidity(account, m, nil, assets, now)
	if err != nil {
		return err
	}
	if debt.Cmp(collateral) > 0 {
		return ErrInsufficientAccountLiquidity
	}
	return nil
}

// CheckShortfall admits a collateral withdrawal only if the account stays
// solvent without it. Accounts outside the market's collateral set withdraw
// freely.
func (a *Auditor) CheckShortfall(m *Market, account uuid.UUID, assets *big.Int, now int64) error {
	if !a.entered(account, m) {
		return nil
	}
	collateral, debt, err := a.AccountLiquidity(account, m, assets, nil, now)
	if err != nil {
		return err
	}
	if debt.Cmp(collateral) > 0 {
		return ErrInsufficientAccountLiquidity
	}
	return nil
}

// CheckLiquidation sizes the repayment of a liquidation before anything moves:
// the borrower must actually be insolvent, and the repay is capped by the
// close factor, by the liquidator's offer, and by what the borrower's
// collateral in the seize market can pay for (premium included).
func (a *Auditor) CheckLiquidation(debtMarket, collateralMarket *Market, liquidator, borrower uuid.UUID, maxRepayAssets *big.Int, now int64) (*big.Int, error) {
	if liquidator == borrower {
		return nil, ErrLiquidatorNotBorrower
	}
	if _, ok := a.params[debtMarket]; !ok {
		return nil, ErrMarketNotListed
	}
	if _, ok := a.params[collateralMarket]; !ok {
		return nil, ErrMarketNotListed
	}
	if maxRepayAssets == nil || maxRepayAssets.Sign() <= 0 {
		return nil, ErrZeroRepay
	}

	collateral, debt, err := a.AccountLiquidity(borrower, nil, nil, nil, now)
	if err != nil {
		return nil, err
	}
	if debt.Cmp(collateral) <= 0 {
		return nil, ErrNotLiquidatable
	}

	debtPrice, err := a.oracle.Price(debtMarket.Asset)
	if err != nil {
		return nil, err
	}
	collPrice, err := a.oracle.Price(collateralMarket.Asset)
	if err != nil {
		return nil, err
	}

	repay := minBig(maxRepayAssets, mulWadDown(debtMarket.TotalDebt(borrower, now), a.closeFactor))

	// Cap the repay so the seizure (premium included) fits in the borrower's
	// collateral balance.
	balance := collateralMarket.FloatingBalance(borrower)
	balanceValue := mulDivDown(balance, collPrice, collateralMarket.baseUnit)
	maxRepayValue := divWadDown(balanceValue, new(big.Int).Add(wad, a.incentive.total()))
	maxRepayByCollateral := mulDivDown(maxRepayValue, debtMarket.baseUnit, debtPrice)
	repay = minBig(repay, maxRepayByCollateral)

	if repay.Sign() <= 0 {
		return nil, ErrZeroRepay
	}
	return new(big.Int).Set(repay), nil
}

// CalculateSeize converts a repayment into collateral assets plus the whole
// premium, and splits out the lenders' share of that premium.
func (a *Auditor) CalculateSeize(debtMarket, collateralMarket *Market, repayAssets *big.Int) (seizeAssets, lendersAssets *big.Int, err error) {
	debtPrice, err := a.oracle.Price(debtMarket.Asset)
	if err != nil {
		return nil, nil, err
	}
	collPrice, err := a.oracle.Price(collateralMarket.Asset)
	if err != nil {
		return nil, nil, err
	}
	repayValue := mulDivDown(repayAssets, debtPrice, debtMarket.baseUnit)
	seizeValue := mulWadDown(repayValue, new(big.Int).Add(wad, a.incentive.total()))
	seizeAssets = mulDivDown(seizeValue, collateralMarket.baseUnit, collPrice)
	lendersAssets = mulDivDown(seizeAssets, a.incentive.Lenders, new(big.Int).Add(wad, a.incentive.total()))
	return seizeAssets, lendersAssets, nil
}

// HandleBadDebt sweeps a borrower with no remaining collateral anywhere:
// whatever they still owe is unbacked and gets written off against each debt
// market's earnings accumulator. A borrower still holding any priced
// collateral is left alone.
func (a *Auditor) HandleBadDebt(borrower uuid.UUID, now int64) {
	for _, m := range a.markets {
		if a.entered(borrower, m) && m.FloatingBalance(borrower).Sign() > 0 {
			return
		}
	}
	for _, m := range a.markets {
		m.clearBadDebt(borrower, now)
	}
}

// SetAdjustFactor retunes a listed market's collateral haircut.
func (a *Auditor) SetAdjustFactor(m *Market, factor *big.Int) error {
	p, ok := a.params[m]
	if !ok {
		return ErrMarketNotListed
	}
	if factor == nil || factor.Sign() <= 0 || factor.Cmp(wad) > 0 {
		return ErrZeroAmount
	}
	p.adjustFactor = new(big.Int).Set(factor)
	a.record(&event.ParamUpdated{Market: m.Asset, Name: "adjust_factor"})
	return nil
}

// AdjustFactor returns a listed market's collateral haircut.
func (a *Auditor) AdjustFactor(m *Market) *big.Int {
	p, ok := a.params[m]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(p.adjustFactor)
}

// SetLiquidationIncentive retunes the seizure premium split.
func (a *Auditor) SetLiquidationIncentive(liquidator, lenders *big.Int) {
	a.incentive = LiquidationIncentive{
		Liquidator: zeroIfNil(liquidator),
		Lenders:    zeroIfNil(lenders),
	}
	a.record(&event.ParamUpdated{Name: "liquidation_incentive"})
}

// SetCloseFactor retunes the per-call repayment cap.
func (a *Auditor) SetCloseFactor(factor *big.Int) {
	a.closeFactor = zeroIfNil(factor)
	a.record(&event.ParamUpdated{Name: "close_factor"})
}

// CloseFactor returns the per-call repayment cap.
func (a *Auditor) CloseFactor() *big.Int { return new(big.Int).Set(a.closeFactor) }

// Incentive returns the current seizure premium split.
func (a *Auditor) Incentive() LiquidationIncentive {
	return LiquidationIncentive{
		Liquidator: new(big.Int).Set(a.incentive.Liquidator),
		Lenders:    new(big.Int).Set(a.incentive.Lenders),
	}
}

// Entered reports whether the account counts this market as collateral.
func (a *Auditor) Entered(account uuid.UUID, m *Market) bool { return a.entered(account, m) }
