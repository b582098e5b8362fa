// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lending

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestElapsedSlots(t *testing.T) {
	require.Equal(t, uint64(10), elapsedSlots(5, 15))
	require.Zero(t, elapsedSlots(15, 15))
	require.Zero(t, elapsedSlots(20, 15))
}

func TestAccrue(t *testing.T) {
	tests := []struct {
		name      string
		principal uint64
		rateBps   uint16
		elapsed   uint64
		interest  uint64
	}{
		{"one year", 50, 1000, SlotsPerYear, 5},
		{"half year", 1_000_000, 1000, SlotsPerYear / 2, 50_000},
		{"rounds down", 9, 1000, SlotsPerYear, 0},
		{"zero rate", 1000, 0, SlotsPerYear, 0},
		{"no time", 1000, 1000, 0, 0},
		{"two years", 1000, 2500, 2 * SlotsPerYear, 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t, DefaultConfig())
			pool := &Pool{Rates: Rates{InterestRateBps: tt.rateBps}}
			loan := &Loan{Principal: h.amount(tt.principal).Handle, LastUpdateSlot: 100}

			total, interest, err := h.engine.accrue(ctx, pool, loan, 100+tt.elapsed)
			require.NoError(t, err)
			require.Equal(t, tt.interest, h.disclose(interest))
			require.Equal(t, tt.principal+tt.interest, h.disclose(total))
		})
	}
}

func TestAccrueClockRegression(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultConfig())
	pool := &Pool{Rates: defaultRates}
	loan := &Loan{Principal: h.amount(100).Handle, LastUpdateSlot: 500}

	total, interest, err := h.engine.accrue(ctx, pool, loan, 400)
	require.NoError(t, err)
	require.Zero(t, h.disclose(interest))
	require.Equal(t, uint64(100), h.disclose(total))
}

func TestAccrueConfiguredYear(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.SlotsPerYear = 365
	h := newHarness(t, cfg)
	pool := &Pool{Rates: defaultRates}
	loan := &Loan{Principal: h.amount(3650).Handle}

	_, interest, err := h.engine.accrue(ctx, pool, loan, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(1), h.disclose(interest))
}
