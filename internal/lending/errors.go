package lending

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidPoolID                 = errors.New("lending: maturity not aligned to the fixed pool grid")
	ErrInsufficientLiquidity         = errors.New("lending: insufficient liquidity")
	ErrInsufficientProtocolLiquidity = errors.New("lending: insufficient protocol liquidity")
	ErrInsufficientAccountLiquidity  = errors.New("lending: insufficient account liquidity")
	ErrTooMuchSlippage               = errors.New("lending: realized amount violates caller bound")
	ErrZeroAmount                    = errors.New("lending: amount must be positive")
	ErrZeroShares                    = errors.New("lending: deposit converts to zero shares")
	ErrZeroRepay                     = errors.New("lending: repay amount must be positive")
	ErrRedeemCantBeZero              = errors.New("lending: redeem amount must be positive")
	ErrTooMuchRepayTransfer          = errors.New("lending: repay amount exceeds what is owed")
	ErrLiquidatorNotBorrower         = errors.New("lending: liquidator must not be the borrower")
	ErrMarketNotListed               = errors.New("lending: market not listed")
	ErrNotLiquidatable               = errors.New("lending: borrower not eligible for liquidation")
	ErrInsufficientBalance           = errors.New("lending: amount exceeds actual balance")
)

// UnmatchedPoolStateError reports an operation attempted against a maturity in
// the wrong lifecycle phase. Both the observed and the required state are
// carried so rejections can be audited.
type UnmatchedPoolStateError struct {
	Actual   PoolState
	Expected PoolState
	// Alternative is set when the operation would also have been accepted in a
	// second state (e.g. repay is valid both before and after maturity).
	Alternative PoolState
}

func (e *UnmatchedPoolStateError) Error() string {
	if e.Alternative != PoolStateNone {
		return fmt.Sprintf("lending: pool state %s, expected %s or %s", e.Actual, e.Expected, e.Alternative)
	}
	return fmt.Sprintf("lending: pool state %s, expected %s", e.Actual, e.Expected)
}
