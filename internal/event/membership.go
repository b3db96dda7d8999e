package event

import (
	"math/big"

	"github.com/google/uuid"
)

// MarketEntered records an account opting a market's deposits in as
// collateral.
type MarketEntered struct {
	Market  string
	Account uuid.UUID
}

func (e *MarketEntered) EventType() EventType { return EventTypeMarketEntered }

func (e *MarketEntered) MarketID() *string { return &e.Market }

// MarketExited records the account opting back out.
type MarketExited struct {
	Market  string
	Account uuid.UUID
}

func (e *MarketExited) EventType() EventType { return EventTypeMarketExited }

func (e *MarketExited) MarketID() *string { return &e.Market }

// PriceUpdated records an oracle quote accepted by the core. Price is wad
// units of account per whole token.
type PriceUpdated struct {
	Asset string
	Price *big.Int
}

func (e *PriceUpdated) EventType() EventType { return EventTypePriceUpdated }

func (e *PriceUpdated) MarketID() *string { return &e.Asset }

// ParamUpdated records a governance parameter change. Market is empty for
// auditor-level parameters.
type ParamUpdated struct {
	Market string
	Name   string
}

func (e *ParamUpdated) EventType() EventType { return EventTypeParamUpdated }

func (e *ParamUpdated) MarketID() *string {
	if e.Market == "" {
		return nil
	}
	return &e.Market
}
