package event

import (
	"math/big"

	"github.com/google/uuid"
)

// Liquidation records one liquidation call: debt repaid in the debt market,
// collateral seized from the collateral market.
type Liquidation struct {
	DebtMarket       string
	CollateralMarket string
	Liquidator       uuid.UUID
	Borrower         uuid.UUID
	Repaid           *big.Int
	Seized           *big.Int
}

func (e *Liquidation) EventType() EventType { return EventTypeLiquidation }

func (e *Liquidation) MarketID() *string { return &e.DebtMarket }

// Seize records the collateral-market side of a liquidation: borrower shares
// burned, with the lenders' cut of the premium retained by the market.
type Seize struct {
	Market     string
	Liquidator uuid.UUID
	Borrower   uuid.UUID
	Assets     *big.Int
	LendersCut *big.Int
}

func (e *Seize) EventType() EventType { return EventTypeSeize }

func (e *Seize) MarketID() *string { return &e.Market }

// BadDebtCleared records an unbacked-debt write-off against the market's
// earnings accumulator.
type BadDebtCleared struct {
	Market   string
	Borrower uuid.UUID
	Amount   *big.Int
}

func (e *BadDebtCleared) EventType() EventType { return EventTypeBadDebtCleared }

func (e *BadDebtCleared) MarketID() *string { return &e.Market }
