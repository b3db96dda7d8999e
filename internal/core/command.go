package core

import (
	"math/big"

	"github.com/google/uuid"
)

// CommandKind discriminates the operations the engine can execute.
type CommandKind int32

const (
	CmdUnknown CommandKind = iota
	CmdDepositFloating
	CmdWithdrawFloating
	CmdBorrowFloating
	CmdRepayFloating
	CmdDepositFixed
	CmdWithdrawFixed
	CmdBorrowFixed
	CmdRepayFixed
	CmdLiquidate
	CmdEnterMarket
	CmdExitMarket
	CmdUpdatePrice
	CmdUpdateParam
)

func (k CommandKind) String() string {
	switch k {
	case CmdDepositFloating:
		return "DepositFloating"
	case CmdWithdrawFloating:
		return "WithdrawFloating"
	case CmdBorrowFloating:
		return "BorrowFloating"
	case CmdRepayFloating:
		return "RepayFloating"
	case CmdDepositFixed:
		return "DepositFixed"
	case CmdWithdrawFixed:
		return "WithdrawFixed"
	case CmdBorrowFixed:
		return "BorrowFixed"
	case CmdRepayFixed:
		return "RepayFixed"
	case CmdLiquidate:
		return "Liquidate"
	case CmdEnterMarket:
		return "EnterMarket"
	case CmdExitMarket:
		return "ExitMarket"
	case CmdUpdatePrice:
		return "UpdatePrice"
	case CmdUpdateParam:
		return "UpdateParam"
	default:
		return "Unknown"
	}
}

// Command is one unit of work for the engine. The engine never calls
// time.Now(): Timestamp is a versioned input supplied by the caller
// (unix seconds), so replaying the same command stream reproduces the
// same state byte for byte.
type Command struct {
	// ID doubles as the idempotency key.
	ID   uuid.UUID
	Kind CommandKind

	Account uuid.UUID
	Market  string

	// Liquidate only.
	Borrower         uuid.UUID
	CollateralMarket string

	// Fixed-pool operations only.
	Maturity int64

	// Primary amount: assets for deposits/borrows/repays, shares for
	// floating withdrawals, the oracle quote for price updates.
	Amount *big.Int

	// Slippage bound: min assets out on fixed deposits, max assets owed
	// on fixed borrows, min collateral seized on liquidations. Nil skips
	// the check.
	Bound *big.Int

	// UpdatePrice only: feed sequence for staleness filtering.
	PriceSequence int64

	// UpdateParam only: parameter name. Market-level parameters resolve
	// against Market; auditor-level parameters leave Market empty.
	Param string

	Timestamp int64
}

// Result carries the outcome of a command back to the submitter.
type Result struct {
	// Sequence of the first event the command produced, -1 when the
	// command was a no-op (duplicate or stale price).
	Sequence int64

	// Value is the operation's primary output: shares minted or burned,
	// assets withdrawn, position reduction, or assets repaid.
	Value *big.Int

	// Extra is the secondary output where one exists: the refund on
	// floating repays, the collateral seized on liquidations.
	Extra *big.Int

	Err error
}

// Request pairs a command with its reply channel for the engine loop.
type Request struct {
	Cmd   Command
	Reply chan Result
}
