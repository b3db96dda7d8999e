package lending

import (
	"math/big"
	"sort"

	"github.com/google/uuid"
)

// FixedPosition is one account's stake in one maturity, on one side.
// Principal is the amount actually moved; Fee is the locked-in discount
// (supply side) or surcharge (debt side). The undiscounted maturity value is
// always Principal+Fee.
type FixedPosition struct {
	Principal *big.Int
	Fee       *big.Int
}

func (p *FixedPosition) total() *big.Int {
	return new(big.Int).Add(p.Principal, p.Fee)
}

// reduceBy shrinks the position by amount of maturity value, keeping the
// principal/fee proportion, and returns the principal portion removed.
func (p *FixedPosition) reduceBy(amount *big.Int) (principalCovered *big.Int) {
	total := p.total()
	if total.Sign() == 0 {
		return new(big.Int)
	}
	principalCovered = mulDivDown(amount, p.Principal, total)
	p.Principal = new(big.Int).Sub(p.Principal, principalCovered)
	feeCovered := new(big.Int).Sub(amount, principalCovered)
	p.Fee = new(big.Int).Sub(p.Fee, feeCovered)
	if p.Principal.Sign() < 0 {
		p.Principal.SetInt64(0)
	}
	if p.Fee.Sign() < 0 {
		p.Fee.SetInt64(0)
	}
	return principalCovered
}

// Account is one user's ledger inside a single market. Floating balances are
// share claims re-derived on every access; fixed positions are keyed by
// maturity and deleted when they reach zero.
type Account struct {
	FloatingShares       *big.Int
	FloatingBorrowShares *big.Int
	FixedDeposits        map[int64]*FixedPosition
	FixedBorrows         map[int64]*FixedPosition
}

func newAccount() *Account {
	return &Account{
		FloatingShares:       new(big.Int),
		FloatingBorrowShares: new(big.Int),
		FixedDeposits:        make(map[int64]*FixedPosition),
		FixedBorrows:         make(map[int64]*FixedPosition),
	}
}

func (m *Market) account(id uuid.UUID) *Account {
	acc, ok := m.accounts[id]
	if !ok {
		acc = newAccount()
		m.accounts[id] = acc
	}
	return acc
}

// borrowMaturities returns the maturities the account owes on, ascending.
// Deterministic iteration order matters for liquidation repayment.
func (a *Account) borrowMaturities() []int64 {
	out := make([]int64, 0, len(a.FixedBorrows))
	for maturity := range a.FixedBorrows {
		out = append(out, maturity)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
