package event

import (
	"math/big"

	"github.com/google/uuid"
)

// FixedDeposit is a term supply to one maturity. Fee is the discount locked
// in at deposit time.
type FixedDeposit struct {
	Market   string
	Maturity int64
	Account  uuid.UUID
	Assets   *big.Int
	Fee      *big.Int
}

func (e *FixedDeposit) EventType() EventType { return EventTypeFixedDeposit }

func (e *FixedDeposit) MarketID() *string { return &e.Market }

// FixedWithdraw redeems a matured supply position at face value.
type FixedWithdraw struct {
	Market   string
	Maturity int64
	Account  uuid.UUID
	Assets   *big.Int
}

func (e *FixedWithdraw) EventType() EventType { return EventTypeFixedWithdraw }

func (e *FixedWithdraw) MarketID() *string { return &e.Market }

// FixedBorrow is a term borrow from one maturity. Fee is the surcharge locked
// in at borrow time; principal plus fee falls due at maturity.
type FixedBorrow struct {
	Market   string
	Maturity int64
	Account  uuid.UUID
	Assets   *big.Int
	Fee      *big.Int
}

func (e *FixedBorrow) EventType() EventType { return EventTypeFixedBorrow }

func (e *FixedBorrow) MarketID() *string { return &e.Market }

// FixedRepay settles term debt. PositionReduction is the maturity value
// retired, which exceeds Assets when an early payment earned a discount.
type FixedRepay struct {
	Market            string
	Maturity          int64
	Account           uuid.UUID
	Assets            *big.Int
	PositionReduction *big.Int
}

func (e *FixedRepay) EventType() EventType { return EventTypeFixedRepay }

func (e *FixedRepay) MarketID() *string { return &e.Market }
