package query

import (
	"time"

	"github.com/google/uuid"
)

// Wad amounts are serialized as decimal strings: they exceed int64 and
// JSON numbers lose precision past 2^53.

// MarketPositionView is one market's slice of an account snapshot.
type MarketPositionView struct {
	Market          string          `json:"market"`
	Entered         bool            `json:"entered"`
	FloatingBalance string          `json:"floating_balance"`
	TotalDebt       string          `json:"total_debt"`
	FixedDebts      []FixedDebtView `json:"fixed_debts,omitempty"`
}

// FixedDebtView is an account's debt at one maturity, penalty included
// when the maturity has passed.
type FixedDebtView struct {
	Maturity int64  `json:"maturity"`
	Debt     string `json:"debt"`
}

// AccountResponse is the full cross-market view of one account.
type AccountResponse struct {
	Account      uuid.UUID            `json:"account"`
	Collateral   string               `json:"collateral"`
	Debt         string               `json:"debt"`
	Healthy      bool                 `json:"healthy"`
	Positions    []MarketPositionView `json:"positions"`
	AsOfSequence int64                `json:"as_of_sequence"`
}

// FixedPoolView is the public state of one maturity pool.
type FixedPoolView struct {
	Maturity           int64  `json:"maturity"`
	Borrowed           string `json:"borrowed"`
	Supplied           string `json:"supplied"`
	UnassignedEarnings string `json:"unassigned_earnings"`
	LastAccrual        int64  `json:"last_accrual"`
}

// MarketResponse is the aggregate state of one market.
type MarketResponse struct {
	Market              string          `json:"market"`
	Price               string          `json:"price"`
	AdjustFactor        string          `json:"adjust_factor"`
	FloatingAssets      string          `json:"floating_assets"`
	FloatingDebt        string          `json:"floating_debt"`
	BackupBorrowed      string          `json:"backup_borrowed"`
	EarningsAccumulator string          `json:"earnings_accumulator"`
	FixedPools          []FixedPoolView `json:"fixed_pools"`
	AsOfSequence        int64           `json:"as_of_sequence"`
}

// EventRecord is one persisted event-log entry.
type EventRecord struct {
	Sequence       int64     `json:"sequence"`
	EventType      string    `json:"event_type"`
	IdempotencyKey string    `json:"idempotency_key"`
	MarketID       *string   `json:"market_id,omitempty"`
	Payload        []byte    `json:"payload"`
	StateHash      []byte    `json:"state_hash"`
	PrevHash       []byte    `json:"prev_hash"`
	Timestamp      time.Time `json:"timestamp"`
}

// IntegrityReport is the result of an event-log audit.
type IntegrityReport struct {
	IsHealthy       bool    `json:"is_healthy"`
	EventCount      int64   `json:"event_count"`
	LastSequence    int64   `json:"last_sequence"`
	SequenceGaps    []int64 `json:"sequence_gaps,omitempty"`
	HashChainBreaks []int64 `json:"hash_chain_breaks,omitempty"`
}
