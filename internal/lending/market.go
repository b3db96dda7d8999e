package lending

import (
	"math/big"

	"github.com/google/uuid"

	"github.com/exactly/protocol-sub001/internal/event"
)

// Recorder receives domain events after the ledger state that produced them
// is final. A nil recorder is valid (tests exercise markets directly).
type Recorder interface {
	Record(evt event.Event)
}

// Market owns one underlying asset's ledger: a floating pool with share
// accounting plus a rolling window of fixed maturities. Every mutating entry
// point accrues lazily first, validates everything next, and only then
// mutates — a failed call leaves no trace.
type Market struct {
	Asset    string
	Decimals int
	baseUnit *big.Int

	auditor  *Auditor
	irm      *InterestRateModel
	recorder Recorder

	// Net settlement cash held by the market, tracked from the transfer
	// amounts of every operation. Purely observational: no operation reads
	// it, the conservation check recomputes the balance sheet against it.
	cash *big.Int

	// Floating pool.
	floatingAssets       *big.Int
	floatingSupplyShares *big.Int
	floatingDebt         *big.Int
	floatingBorrowShares *big.Int
	lastDebtAccrual      int64

	// Assets lent from the floating pool to undercapitalized maturities.
	floatingBackupBorrowed *big.Int

	// Damped moving average of floatingAssets; bounds fixed-pool backstop
	// borrowing so a same-instant deposit is not instantly borrowable.
	floatingAssetsAverage *big.Int
	lastAverageUpdate     int64

	// Protocol-owned earnings: backup fees, lenders' liquidation cut, late
	// penalties. Bad debt is written off against it.
	earningsAccumulator *big.Int

	fixedPools map[int64]*FixedPool
	accounts   map[uuid.UUID]*Account

	penaltyRate    *big.Int // wad per second, applied past maturity
	backupFeeRate  *big.Int // wad cut of captured unassigned earnings
	reserveFactor  *big.Int // wad share of floating assets never lent out
	dampSpeedUp    *big.Int // wad per second
	dampSpeedDown  *big.Int
	maxFuturePools int
}

// MarketConfig carries the tunable parameters for a market.
type MarketConfig struct {
	Asset          string
	Decimals       int
	PenaltyRate    *big.Int
	BackupFeeRate  *big.Int
	ReserveFactor  *big.Int
	DampSpeedUp    *big.Int
	DampSpeedDown  *big.Int
	MaxFuturePools int
}

// DefaultMarketConfig returns the parameters used when governance supplies
// none: 18 decimals, ~1.88e-11 penalty per second (about 0.16% per day),
// 10% backup fee, 10% reserve, 12 future pools.
func DefaultMarketConfig(asset string) MarketConfig {
	return MarketConfig{
		Asset:          asset,
		Decimals:       18,
		PenaltyRate:    wadFromFloat(1.88e-11),
		BackupFeeRate:  wadFromFloat(0.1),
		ReserveFactor:  wadFromFloat(0.1),
		DampSpeedUp:    wadFromFloat(0.0000555),
		DampSpeedDown:  wadFromFloat(0.42),
		MaxFuturePools: 12,
	}
}

func NewMarket(cfg MarketConfig, irm *InterestRateModel, now int64) *Market {
	base := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(cfg.Decimals)), nil)
	return &Market{
		Asset:                  cfg.Asset,
		Decimals:               cfg.Decimals,
		baseUnit:               base,
		irm:                    irm.Clone(),
		cash:                   new(big.Int),
		floatingAssets:         new(big.Int),
		floatingSupplyShares:   new(big.Int),
		floatingDebt:           new(big.Int),
		floatingBorrowShares:   new(big.Int),
		lastDebtAccrual:        now,
		floatingBackupBorrowed: new(big.Int),
		floatingAssetsAverage:  new(big.Int),
		lastAverageUpdate:      now,
		earningsAccumulator:    new(big.Int),
		fixedPools:             make(map[int64]*FixedPool),
		accounts:               make(map[uuid.UUID]*Account),
		penaltyRate:            zeroIfNil(cfg.PenaltyRate),
		backupFeeRate:          zeroIfNil(cfg.BackupFeeRate),
		reserveFactor:          zeroIfNil(cfg.ReserveFactor),
		dampSpeedUp:            zeroIfNil(cfg.DampSpeedUp),
		dampSpeedDown:          zeroIfNil(cfg.DampSpeedDown),
		maxFuturePools:         cfg.MaxFuturePools,
	}
}

// SetRecorder wires the event sink. Must be set before serving traffic.
func (m *Market) SetRecorder(r Recorder) { m.recorder = r }

func (m *Market) record(evt event.Event) {
	if m.recorder != nil {
		m.recorder.Record(evt)
	}
}

// SetInterestRateModel swaps the rate model. Applies to subsequent accruals
// and borrows only.
func (m *Market) SetInterestRateModel(irm *InterestRateModel, now int64) {
	m.accrueFloatingDebt(now)
	m.irm = irm.Clone()
	m.record(&event.ParamUpdated{Market: m.Asset, Name: "interest_rate_model"})
}

func (m *Market) SetPenaltyRate(rate *big.Int) {
	m.penaltyRate = zeroIfNil(rate)
	m.record(&event.ParamUpdated{Market: m.Asset, Name: "penalty_rate"})
}

func (m *Market) SetBackupFeeRate(rate *big.Int) {
	m.backupFeeRate = zeroIfNil(rate)
	m.record(&event.ParamUpdated{Market: m.Asset, Name: "backup_fee_rate"})
}

func (m *Market) SetReserveFactor(factor *big.Int) {
	m.reserveFactor = zeroIfNil(factor)
	m.record(&event.ParamUpdated{Market: m.Asset, Name: "reserve_factor"})
}

func (m *Market) SetDampSpeeds(up, down *big.Int) {
	m.dampSpeedUp = zeroIfNil(up)
	m.dampSpeedDown = zeroIfNil(down)
	m.record(&event.ParamUpdated{Market: m.Asset, Name: "damp_speeds"})
}

func (m *Market) SetMaxFuturePools(n int) {
	m.maxFuturePools = n
	m.record(&event.ParamUpdated{Market: m.Asset, Name: "max_future_pools"})
}

func (m *Market) MaxFuturePools() int { return m.maxFuturePools }

// fixedPool returns (creating on first touch) the pool for a maturity. The
// caller must already have validated the pool state.
func (m *Market) fixedPool(maturity, now int64) *FixedPool {
	p, ok := m.fixedPools[maturity]
	if !ok {
		p = newFixedPool(now)
		m.fixedPools[maturity] = p
	}
	return p
}

// accrueFloatingDebt applies closed-form interest on the floating debt since
// the last touch. Suppliers earn the interest through the share price; no
// background job exists, callers pay for their own accrual.
func (m *Market) accrueFloatingDebt(now int64) {
	elapsed := now - m.lastDebtAccrual
	if elapsed <= 0 {
		m.lastDebtAccrual = now
		return
	}
	m.lastDebtAccrual = now
	if m.floatingDebt.Sign() == 0 {
		return
	}
	utilization := new(big.Int)
	if m.floatingAssets.Sign() > 0 {
		utilization = divWadUp(m.floatingDebt, m.floatingAssets)
	}
	rate := m.irm.FloatingRate(utilization)
	interest := mulWadDown(m.floatingDebt, rate)
	interest = mulDivDown(interest, big.NewInt(elapsed), big.NewInt(secondsPerYear))
	if interest.Sign() == 0 {
		return
	}
	m.floatingDebt = new(big.Int).Add(m.floatingDebt, interest)
	m.floatingAssets = new(big.Int).Add(m.floatingAssets, interest)
}

// updateFloatingAssetsAverage moves the damped average toward the current
// floating assets. The approach factor is linear in elapsed time, clamped at
// one, with separate speeds for growth and shrinkage.
func (m *Market) updateFloatingAssetsAverage(now int64) {
	m.floatingAssetsAverage = m.previewFloatingAssetsAverage(now)
	m.lastAverageUpdate = now
}

func (m *Market) previewFloatingAssetsAverage(now int64) *big.Int {
	elapsed := now - m.lastAverageUpdate
	if elapsed <= 0 {
		return new(big.Int).Set(m.floatingAssetsAverage)
	}
	speed := m.dampSpeedUp
	if m.floatingAssets.Cmp(m.floatingAssetsAverage) < 0 {
		speed = m.dampSpeedDown
	}
	factor := new(big.Int).Mul(speed, big.NewInt(elapsed))
	if factor.Cmp(wad) > 0 {
		factor = new(big.Int).Set(wad)
	}
	keep := new(big.Int).Sub(wad, factor)
	avg := mulWadDown(m.floatingAssetsAverage, keep)
	avg.Add(avg, mulWadDown(m.floatingAssets, factor))
	return avg
}

// availableFloatingLiquidity is what the floating pool can actually pay out
// right now: deposits minus what is lent as floating debt and as fixed-pool
// backstop.
func (m *Market) availableFloatingLiquidity() *big.Int {
	out := new(big.Int).Sub(m.floatingAssets, m.floatingDebt)
	out.Sub(out, m.floatingBackupBorrowed)
	if out.Sign() < 0 {
		out.SetInt64(0)
	}
	return out
}

// checkBackupReserve rejects lending that would dip into the reserved share
// of floating assets.
func (m *Market) checkBackupReserve(extraBackup, extraDebt *big.Int) error {
	lent := new(big.Int).Add(m.floatingBackupBorrowed, zeroIfNil(extraBackup))
	lent.Add(lent, m.floatingDebt)
	lent.Add(lent, zeroIfNil(extraDebt))
	lendable := mulWadDown(m.floatingAssets, new(big.Int).Sub(wad, m.reserveFactor))
	if lent.Cmp(lendable) > 0 {
		return ErrInsufficientProtocolLiquidity
	}
	return nil
}

// penaltyFactor returns the wad multiplier (>= 1) applied to a fixed debt
// position that is late: 1 + penaltyRate * secondsLate.
func (m *Market) penaltyFactor(maturity, now int64) *big.Int {
	if now <= maturity {
		return new(big.Int).Set(wad)
	}
	late := new(big.Int).Mul(m.penaltyRate, big.NewInt(now-maturity))
	return new(big.Int).Add(wad, late)
}

// fixedDebtOwed is principal+fee plus the linear late penalty.
func (m *Market) fixedDebtOwed(pos *FixedPosition, maturity, now int64) *big.Int {
	return mulWadUp(pos.total(), m.penaltyFactor(maturity, now))
}

// --- views used by the auditor and the query service ---

// FloatingBalance converts an account's floating deposit shares to assets at
// the current exchange rate, rounding down.
func (m *Market) FloatingBalance(account uuid.UUID) *big.Int {
	acc, ok := m.accounts[account]
	if !ok || acc.FloatingShares.Sign() == 0 {
		return new(big.Int)
	}
	return m.convertToAssets(acc.FloatingShares)
}

func (m *Market) convertToAssets(shares *big.Int) *big.Int {
	if m.floatingSupplyShares.Sign() == 0 {
		return new(big.Int).Set(shares)
	}
	return mulDivDown(shares, m.floatingAssets, m.floatingSupplyShares)
}

func (m *Market) convertToShares(assets *big.Int) *big.Int {
	if m.floatingSupplyShares.Sign() == 0 {
		return new(big.Int).Set(assets)
	}
	return mulDivDown(assets, m.floatingSupplyShares, m.floatingAssets)
}

// previewFloatingDebt projects the floating debt to now without mutating.
func (m *Market) previewFloatingDebt(now int64) *big.Int {
	debt := new(big.Int).Set(m.floatingDebt)
	elapsed := now - m.lastDebtAccrual
	if elapsed <= 0 || debt.Sign() == 0 {
		return debt
	}
	utilization := new(big.Int)
	if m.floatingAssets.Sign() > 0 {
		utilization = divWadUp(debt, m.floatingAssets)
	}
	rate := m.irm.FloatingRate(utilization)
	interest := mulWadDown(debt, rate)
	interest = mulDivDown(interest, big.NewInt(elapsed), big.NewInt(secondsPerYear))
	return debt.Add(debt, interest)
}

// TotalDebt is everything the account owes this market at time now: floating
// debt shares converted up, plus every fixed position with penalties.
func (m *Market) TotalDebt(account uuid.UUID, now int64) *big.Int {
	acc, ok := m.accounts[account]
	if !ok {
		return new(big.Int)
	}
	debt := new(big.Int)
	if acc.FloatingBorrowShares.Sign() > 0 {
		debt.Add(debt, mulDivUp(acc.FloatingBorrowShares, m.previewFloatingDebt(now), m.floatingBorrowShares))
	}
	for maturity, pos := range acc.FixedBorrows {
		debt.Add(debt, m.fixedDebtOwed(pos, maturity, now))
	}
	return debt
}

// FixedDebtAt returns the owed amount for a single maturity position.
func (m *Market) FixedDebtAt(account uuid.UUID, maturity, now int64) *big.Int {
	acc, ok := m.accounts[account]
	if !ok {
		return new(big.Int)
	}
	pos, ok := acc.FixedBorrows[maturity]
	if !ok {
		return new(big.Int)
	}
	return m.fixedDebtOwed(pos, maturity, now)
}

// FloatingAssets returns the floating pool's attributed assets.
func (m *Market) FloatingAssets() *big.Int { return new(big.Int).Set(m.floatingAssets) }

// FloatingDebt returns the cached floating debt (without projecting accrual).
func (m *Market) FloatingDebt() *big.Int { return new(big.Int).Set(m.floatingDebt) }

// FloatingBackupBorrowed returns the total lent to fixed maturities.
func (m *Market) FloatingBackupBorrowed() *big.Int {
	return new(big.Int).Set(m.floatingBackupBorrowed)
}

// EarningsAccumulator returns the protocol-owned earnings balance.
func (m *Market) EarningsAccumulator() *big.Int { return new(big.Int).Set(m.earningsAccumulator) }

// FixedPoolSnapshot returns a copy of a maturity's pool state, nil when the
// pool was never touched.
func (m *Market) FixedPoolSnapshot(maturity int64) *FixedPool {
	p, ok := m.fixedPools[maturity]
	if !ok {
		return nil
	}
	return &FixedPool{
		Borrowed:           new(big.Int).Set(p.Borrowed),
		Supplied:           new(big.Int).Set(p.Supplied),
		UnassignedEarnings: new(big.Int).Set(p.UnassignedEarnings),
		LastAccrual:        p.LastAccrual,
	}
}

// Cash returns the market's tracked settlement cash.
func (m *Market) Cash() *big.Int { return new(big.Int).Set(m.cash) }

// CheckBackupDebtConsistency recomputes the backstop total from per-pool
// state. The core treats a mismatch as fatal.
func (m *Market) CheckBackupDebtConsistency() bool {
	sum := new(big.Int)
	for _, p := range m.fixedPools {
		sum.Add(sum, p.BackupDebt())
	}
	return sum.Cmp(m.floatingBackupBorrowed) == 0
}

// CheckCashConsistency rebuilds the market's balance sheet and verifies
// claims never exceed what backs them: tracked cash plus receivables
// (floating debt, fixed borrow positions) must cover floating supplier
// claims, protocol earnings, unreleased pool earnings, and fixed deposit
// positions. Directed rounding leaves sub-wei residue on the asset side
// only, so the comparison is one-sided.
func (m *Market) CheckCashConsistency() bool {
	assets := new(big.Int).Add(m.cash, m.floatingDebt)
	claims := new(big.Int).Add(m.floatingAssets, m.earningsAccumulator)
	for _, p := range m.fixedPools {
		claims.Add(claims, p.UnassignedEarnings)
	}
	for _, acc := range m.accounts {
		for _, pos := range acc.FixedBorrows {
			assets.Add(assets, pos.total())
		}
		for _, pos := range acc.FixedDeposits {
			claims.Add(claims, pos.total())
		}
	}
	return assets.Cmp(claims) >= 0
}
