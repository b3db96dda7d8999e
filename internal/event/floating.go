package event

import (
	"math/big"

	"github.com/google/uuid"
)

// FloatingDeposit is a variable-rate supply: assets in, shares minted.
type FloatingDeposit struct {
	Market  string
	Account uuid.UUID
	Assets  *big.Int
	Shares  *big.Int
}

func (e *FloatingDeposit) EventType() EventType { return EventTypeFloatingDeposit }

func (e *FloatingDeposit) MarketID() *string { return &e.Market }

// FloatingWithdraw is a variable-rate redemption: shares burned, assets out.
type FloatingWithdraw struct {
	Market  string
	Account uuid.UUID
	Assets  *big.Int
	Shares  *big.Int
}

func (e *FloatingWithdraw) EventType() EventType { return EventTypeFloatingWithdraw }

func (e *FloatingWithdraw) MarketID() *string { return &e.Market }

// FloatingBorrow is a variable-rate draw: assets out, debt shares minted.
type FloatingBorrow struct {
	Market  string
	Account uuid.UUID
	Assets  *big.Int
	Shares  *big.Int
}

func (e *FloatingBorrow) EventType() EventType { return EventTypeFloatingBorrow }

func (e *FloatingBorrow) MarketID() *string { return &e.Market }

// FloatingRepay settles variable-rate debt. Refund is the excess returned
// when the payment exceeded what was owed.
type FloatingRepay struct {
	Market  string
	Account uuid.UUID
	Assets  *big.Int
	Refund  *big.Int
}

func (e *FloatingRepay) EventType() EventType { return EventTypeFloatingRepay }

func (e *FloatingRepay) MarketID() *string { return &e.Market }
