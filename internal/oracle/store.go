package oracle

import (
	"fmt"
	"math/big"
)

// Store is the in-memory price cache the auditor values collateral and
// debt against. Prices are wad-scaled units of account per whole token.
// Not thread-safe: writes happen only on the engine loop, and reads go
// through the same loop.
type Store struct {
	prices map[string]*big.Int
}

func NewStore() *Store {
	return &Store{prices: make(map[string]*big.Int)}
}

// Price returns the latest quote for an asset. A missing price is an
// error so solvency checks fail closed rather than valuing collateral
// at zero silently.
func (s *Store) Price(asset string) (*big.Int, error) {
	p, ok := s.prices[asset]
	if !ok {
		return nil, fmt.Errorf("oracle: no price for %s", asset)
	}
	return new(big.Int).Set(p), nil
}

// Set stores a quote. Zero and negative quotes are rejected.
func (s *Store) Set(asset string, price *big.Int) error {
	if price == nil || price.Sign() <= 0 {
		return fmt.Errorf("oracle: invalid price for %s", asset)
	}
	s.prices[asset] = new(big.Int).Set(price)
	return nil
}

// Assets returns the assets with a known price.
func (s *Store) Assets() []string {
	out := make([]string, 0, len(s.prices))
	for asset := range s.prices {
		out = append(out, asset)
	}
	return out
}
