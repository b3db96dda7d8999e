package ingestion

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"github.com/exactly/protocol-sub001/internal/core"
)

// quoteNamespace seeds deterministic command IDs for price quotes, so a
// redelivered NATS message maps to the same command and dedupes cleanly.
var quoteNamespace = uuid.MustParse("7a1f3c52-9b04-4e8d-a6c1-5e2f8d90b413")

// priceQuoteJSON is the wire format published by the oracle relayer.
// Field names use snake_case to match upstream producers. Prices are wad
// (1e18) decimal strings; int64 would overflow for high-priced assets.
type priceQuoteJSON struct {
	Asset         string `json:"asset"`
	Price         string `json:"price"`
	PriceSequence int64  `json:"price_sequence"`
	Timestamp     int64  `json:"timestamp"`
}

// ParsePriceQuote validates a raw NATS quote and converts it into a price
// update command for the engine.
func ParsePriceQuote(raw RawQuote) (core.Command, error) {
	var j priceQuoteJSON
	if err := json.Unmarshal(raw.Data, &j); err != nil {
		return core.Command{}, fmt.Errorf("parse price quote: %w", err)
	}

	if j.Asset == "" {
		return core.Command{}, fmt.Errorf("price quote missing asset")
	}
	if j.PriceSequence < 0 {
		return core.Command{}, fmt.Errorf("price quote %s: negative sequence %d", j.Asset, j.PriceSequence)
	}

	price, ok := new(big.Int).SetString(j.Price, 10)
	if !ok {
		return core.Command{}, fmt.Errorf("price quote %s: bad price %q", j.Asset, j.Price)
	}
	if price.Sign() <= 0 {
		return core.Command{}, fmt.Errorf("price quote %s: non-positive price %s", j.Asset, price)
	}

	id := uuid.NewSHA1(quoteNamespace, []byte(fmt.Sprintf("%s:%d", j.Asset, j.PriceSequence)))

	return core.Command{
		ID:            id,
		Kind:          core.CmdUpdatePrice,
		Market:        j.Asset,
		Amount:        price,
		PriceSequence: j.PriceSequence,
		Timestamp:     j.Timestamp,
	}, nil
}
