package lending

import "math/big"

// FixedInterval is the grid spacing for fixed maturities (4 weeks).
const FixedInterval int64 = 4 * 7 * 24 * 3600

// PoolState is the lifecycle phase of a fixed maturity, derived from the
// clock on every call. There is no stored state transition.
type PoolState int

const (
	PoolStateNone PoolState = iota
	PoolStateInvalid
	PoolStateNotReady
	PoolStateValid
	PoolStateMatured
)

func (s PoolState) String() string {
	switch s {
	case PoolStateInvalid:
		return "INVALID"
	case PoolStateNotReady:
		return "NOT_READY"
	case PoolStateValid:
		return "VALID"
	case PoolStateMatured:
		return "MATURED"
	default:
		return "NONE"
	}
}

// poolState classifies a maturity timestamp relative to now.
func poolState(maturity, now int64, maxFuturePools int) PoolState {
	if maturity <= 0 || maturity%FixedInterval != 0 {
		return PoolStateInvalid
	}
	if maturity > now-now%FixedInterval+int64(maxFuturePools)*FixedInterval {
		return PoolStateNotReady
	}
	if now < maturity {
		return PoolStateValid
	}
	return PoolStateMatured
}

// checkPoolState rejects the call unless the maturity is currently in the
// required state (or the alternative, when one is given).
func checkPoolState(maturity, now int64, maxFuturePools int, required, alternative PoolState) error {
	actual := poolState(maturity, now, maxFuturePools)
	if actual == PoolStateInvalid {
		return ErrInvalidPoolID
	}
	if actual == required || (alternative != PoolStateNone && actual == alternative) {
		return nil
	}
	return &UnmatchedPoolStateError{Actual: actual, Expected: required, Alternative: alternative}
}

// FixedPool is the ledger for a single maturity. Borrowed/Supplied are
// principal amounts; UnassignedEarnings is borrower fee income not yet
// attributed to any supplier, released linearly toward maturity.
type FixedPool struct {
	Borrowed           *big.Int
	Supplied           *big.Int
	UnassignedEarnings *big.Int
	LastAccrual        int64
}

func newFixedPool(now int64) *FixedPool {
	return &FixedPool{
		Borrowed:           new(big.Int),
		Supplied:           new(big.Int),
		UnassignedEarnings: new(big.Int),
		LastAccrual:        now,
	}
}

// BackupDebt is what this maturity currently owes the floating pool:
// zero while supplied covers borrowed, exactly the shortfall otherwise.
func (p *FixedPool) BackupDebt() *big.Int {
	d := new(big.Int).Sub(p.Borrowed, p.Supplied)
	if d.Sign() < 0 {
		return new(big.Int)
	}
	return d
}

// accrueEarnings releases unassigned earnings proportionally to the time
// elapsed since the last accrual, stopping at maturity. The released amount
// belongs to the floating pool (it backstopped the matched borrows).
func (p *FixedPool) accrueEarnings(maturity, now int64) *big.Int {
	last := p.LastAccrual
	cutoff := now
	if cutoff > maturity {
		cutoff = maturity
	}
	if cutoff <= last {
		return new(big.Int)
	}
	elapsed := cutoff - last
	remaining := maturity - last
	p.LastAccrual = cutoff

	var released *big.Int
	if remaining <= 0 || elapsed >= remaining {
		released = new(big.Int).Set(p.UnassignedEarnings)
	} else {
		released = mulDivDown(p.UnassignedEarnings, big.NewInt(elapsed), big.NewInt(remaining))
	}
	p.UnassignedEarnings = new(big.Int).Sub(p.UnassignedEarnings, released)
	return released
}

// deposit adds supply principal and returns how much floating-pool debt the
// deposit retires. Pool debt is always repaid before available liquidity
// grows.
func (p *FixedPool) deposit(amount *big.Int) (backupDebtReduction *big.Int) {
	reduction := minBig(p.BackupDebt(), amount)
	backupDebtReduction = new(big.Int).Set(reduction)
	p.Supplied = new(big.Int).Add(p.Supplied, amount)
	return backupDebtReduction
}

// borrow adds borrow principal and returns the shortfall that must be drawn
// from the floating pool after the maturity's own unutilized supply is used.
func (p *FixedPool) borrow(amount *big.Int) (backupDebtAddition *big.Int) {
	before := p.BackupDebt()
	p.Borrowed = new(big.Int).Add(p.Borrowed, amount)
	return new(big.Int).Sub(p.BackupDebt(), before)
}

// repay removes borrow principal and returns how much floating-pool debt is
// retired by it.
func (p *FixedPool) repay(amount *big.Int) (backupDebtReduction *big.Int) {
	before := p.BackupDebt()
	p.Borrowed = new(big.Int).Sub(p.Borrowed, amount)
	return new(big.Int).Sub(before, p.BackupDebt())
}

// withdrawSupply removes supply principal and returns the extra amount the
// floating pool must now backstop for the remaining borrows.
func (p *FixedPool) withdrawSupply(amount *big.Int) (backupDebtAddition *big.Int) {
	before := p.BackupDebt()
	p.Supplied = new(big.Int).Sub(p.Supplied, amount)
	return new(big.Int).Sub(p.BackupDebt(), before)
}

// calculateDeposit computes the discount a deposit of amount earns by taking
// over borrow demand the floating pool was backstopping. The yield is the
// share of unassigned earnings matching the displaced backup supply, minus
// the backup fee cut retained by the protocol.
func (p *FixedPool) calculateDeposit(amount, backupFeeRate *big.Int) (yield, backupFee *big.Int) {
	backupSupplied := p.BackupDebt()
	if backupSupplied.Sign() == 0 {
		return new(big.Int), new(big.Int)
	}
	yield = mulDivDown(p.UnassignedEarnings, minBig(amount, backupSupplied), backupSupplied)
	backupFee = mulWadDown(yield, backupFeeRate)
	yield = new(big.Int).Sub(yield, backupFee)
	return yield, backupFee
}

// distributeEarnings splits a borrow fee between the maturity's unassigned
// earnings and the floating pool. Must be called after the borrow is booked.
// The portion of the borrow matched by fixed supply pays the floating pool
// immediately (fixed suppliers locked their yield at deposit time); the
// floating-backstopped portion stays unassigned, to be released over time or
// claimed by a later depositor who takes over the backstop.
func (p *FixedPool) distributeEarnings(earnings, borrowAmount *big.Int) (unassigned, backup *big.Int) {
	if isZero(borrowAmount) {
		return new(big.Int).Set(zeroIfNil(earnings)), new(big.Int)
	}
	matchedBySupply := new(big.Int).Sub(borrowAmount, minBig(p.BackupDebt(), borrowAmount))
	backup = mulDivDown(earnings, matchedBySupply, borrowAmount)
	unassigned = new(big.Int).Sub(earnings, backup)
	return unassigned, backup
}
