package event

import (
	"time"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeFloatingDeposit
	EventTypeFloatingWithdraw
	EventTypeFloatingBorrow
	EventTypeFloatingRepay
	EventTypeFixedDeposit
	EventTypeFixedWithdraw
	EventTypeFixedBorrow
	EventTypeFixedRepay
	EventTypeSeize
	EventTypeLiquidation
	EventTypeBadDebtCleared
	EventTypeMarketEntered
	EventTypeMarketExited
	EventTypePriceUpdated
	EventTypeParamUpdated
)

// Envelope wraps every event in the log
type Envelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from the originating command
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Market context (nullable for global events)
	MarketID *string

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// JSON-encoded event-specific data
	Payload []byte

	// Hash chain: StateHash = SHA-256(PrevHash || Sequence || Payload digest)
	StateHash [32]byte
	PrevHash  [32]byte
}

// Event is the interface all event payloads must implement
type Event interface {
	// EventType returns the discriminator
	EventType() EventType

	// MarketID returns the market context (nil for global events)
	MarketID() *string
}

func (et EventType) String() string {
	switch et {
	case EventTypeFloatingDeposit:
		return "FloatingDeposit"
	case EventTypeFloatingWithdraw:
		return "FloatingWithdraw"
	case EventTypeFloatingBorrow:
		return "FloatingBorrow"
	case EventTypeFloatingRepay:
		return "FloatingRepay"
	case EventTypeFixedDeposit:
		return "FixedDeposit"
	case EventTypeFixedWithdraw:
		return "FixedWithdraw"
	case EventTypeFixedBorrow:
		return "FixedBorrow"
	case EventTypeFixedRepay:
		return "FixedRepay"
	case EventTypeSeize:
		return "Seize"
	case EventTypeLiquidation:
		return "Liquidation"
	case EventTypeBadDebtCleared:
		return "BadDebtCleared"
	case EventTypeMarketEntered:
		return "MarketEntered"
	case EventTypeMarketExited:
		return "MarketExited"
	case EventTypePriceUpdated:
		return "PriceUpdated"
	case EventTypeParamUpdated:
		return "ParamUpdated"
	default:
		return "Unknown"
	}
}
