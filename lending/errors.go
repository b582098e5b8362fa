// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lending

import (
	"errors"

	"github.com/luxfi/clend/confidential"
	"github.com/luxfi/clend/fixedpoint"
	"github.com/luxfi/clend/ledger"
)

// Kind classifies a lending error. No kind of error ever carries an amount.
type Kind uint8

const (
	KindUnknown Kind = iota
	ConfigurationError
	ArithmeticError
	StateError
	LiquidityError
	AuthorizationError
	LiquidationError
	SettlementError
)

func (k Kind) String() string {
	switch k {
	case ConfigurationError:
		return "configuration"
	case ArithmeticError:
		return "arithmetic"
	case StateError:
		return "state"
	case LiquidityError:
		return "liquidity"
	case AuthorizationError:
		return "authorization"
	case LiquidationError:
		return "liquidation"
	case SettlementError:
		return "settlement"
	default:
		return "unknown"
	}
}

// Error is a classified lending sentinel.
type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string {
	return e.msg
}

func newError(kind Kind, msg string) error {
	return &Error{Kind: kind, msg: msg}
}

// Lending errors
var (
	ErrInvalidRates   = newError(ConfigurationError, "loan-to-value must be below collateral threshold")
	ErrInvalidConfig  = newError(ConfigurationError, "invalid lending configuration")
	ErrMissingAmount  = newError(ConfigurationError, "repayment amount required")
	ErrInvalidAccount = newError(AuthorizationError, "account not owned by caller or wrong asset")
	ErrUnauthorized   = newError(AuthorizationError, "caller is not the required principal")

	ErrPoolExists        = newError(StateError, "pool already exists")
	ErrPoolNotFound      = newError(StateError, "pool not found")
	ErrPoolFull          = newError(StateError, "pool borrower limit reached")
	ErrLoanNotFound      = newError(StateError, "loan not found")
	ErrLoanAlreadyOpen   = newError(StateError, "loan already open")
	ErrCollateralLocked  = newError(StateError, "collateral locked")
	ErrNoOutstandingLoan = newError(StateError, "loan has not been drawn")
	ErrLoanNotSettled    = newError(StateError, "loan not settled")
	ErrLoanClosed        = newError(StateError, "loan closed")
	ErrConcurrentUpdate  = newError(StateError, "record changed since it was read")

	ErrInsufficientLiquidity = newError(LiquidityError, "insufficient liquidity")
	ErrZeroLiquidity         = newError(LiquidityError, "zero liquidity")

	ErrNotLiquidatable = newError(LiquidationError, "loan not liquidatable")
)

// KindOf classifies err, looking through wrapping and through the
// arithmetic and ledger errors of the lower layers.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	switch {
	case errors.Is(err, ledger.ErrTransferFailed),
		errors.Is(err, ledger.ErrAccountClosed),
		errors.Is(err, ledger.ErrAccountNotFound),
		errors.Is(err, ledger.ErrAccountNotEmpty),
		errors.Is(err, ledger.ErrAssetMismatch),
		errors.Is(err, ledger.ErrSelfTransfer):
		return SettlementError
	case errors.Is(err, fixedpoint.ErrDivisionByZero),
		errors.Is(err, fixedpoint.ErrOverflow),
		errors.Is(err, fixedpoint.ErrUnderflow),
		errors.Is(err, confidential.ErrWidthMismatch):
		return ArithmeticError
	case errors.Is(err, fixedpoint.ErrBpsOutOfRange):
		return ConfigurationError
	}
	return KindUnknown
}
