// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lending

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/clend/confidential"
	"github.com/luxfi/clend/fixedpoint"
	"github.com/luxfi/clend/ledger"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		kind Kind
	}{
		{nil, KindUnknown},
		{errors.New("other"), KindUnknown},
		{ErrInvalidRates, ConfigurationError},
		{fmt.Errorf("borrow: %w", ErrZeroLiquidity), LiquidityError},
		{fmt.Errorf("repay: %w", ErrNotLiquidatable), LiquidationError},
		{ErrUnauthorized, AuthorizationError},
		{ErrLoanClosed, StateError},
		{fmt.Errorf("disburse: %w", ledger.ErrTransferFailed), SettlementError},
		{ledger.ErrAccountClosed, SettlementError},
		{ledger.ErrSelfTransfer, SettlementError},
		{fixedpoint.ErrDivisionByZero, ArithmeticError},
		{fmt.Errorf("scale: %w", fixedpoint.ErrOverflow), ArithmeticError},
		{confidential.ErrWidthMismatch, ArithmeticError},
		{fixedpoint.ErrBpsOutOfRange, ConfigurationError},
		{ErrInvalidViewKey, ConfigurationError},
	}
	for _, tt := range tests {
		require.Equal(t, tt.kind, KindOf(tt.err), "%v", tt.err)
	}
}

func TestKindString(t *testing.T) {
	require.Equal(t, "liquidation", LiquidationError.String())
	require.Equal(t, "settlement", SettlementError.String())
	require.Equal(t, "unknown", Kind(200).String())
	require.Equal(t, "borrowed", Borrowed.String())
	require.Equal(t, "state(9)", LoanState(9).String())
	require.Equal(t, "liquidator", ThirdPartyLiquidate.String())
}
