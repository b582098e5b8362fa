// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lending

import (
	"context"

	"github.com/luxfi/clend/fixedpoint"
)

// healthFactorBelowOne reveals whether
//
//	locked_collateral * price * threshold_bps / 10_000 < total_due
//
// with total_due accrued to slot. Nothing else about the loan is revealed.
// Loans that have not been drawn are never liquidatable.
func (e *Engine) healthFactorBelowOne(ctx context.Context, pool *Pool, loan *Loan, slot uint64) (bool, error) {
	if loan.State != Borrowed {
		return false, nil
	}
	locked, err := e.balance(ctx, loan.CollateralAccount)
	if err != nil {
		return false, err
	}
	price, err := e.oracle.Price(ctx)
	if err != nil {
		return false, err
	}
	lhs, err := e.arith.MulScale(ctx, locked, price, uint64(pool.Rates.CollateralThresholdBps), fixedpoint.BasisPoints)
	if err != nil {
		return false, err
	}
	totalDue, _, err := e.accrue(ctx, pool, loan, slot)
	if err != nil {
		return false, err
	}
	below, err := e.arith.LessThan(ctx, lhs, totalDue, "health_factor")
	if err != nil {
		return false, err
	}
	e.metrics.observeHealthCheck(below)
	return below, nil
}
