// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lending

import (
	"context"

	"github.com/luxfi/clend/confidential"
	"github.com/luxfi/clend/fixedpoint"
)

// elapsedSlots is the plaintext accrual interval. A clock that reads
// earlier than the last update accrues nothing.
func elapsedSlots(last, now uint64) uint64 {
	if now <= last {
		return 0
	}
	return now - last
}

// accruedThrough is the slot a loan has been charged through after an
// update at now. It never moves backward.
func accruedThrough(last, now uint64) uint64 {
	return max(last, now)
}

// accrue returns the loan's total due at slot and the interest folded into
// it. Interest is a pure function of principal, rate and elapsed slots:
//
//	interest = principal * rate_bps * elapsed / (10_000 * slots_per_year)
func (e *Engine) accrue(ctx context.Context, pool *Pool, loan *Loan, slot uint64) (total, interest confidential.Value, err error) {
	principal := loan.principal()
	elapsed := elapsedSlots(loan.LastUpdateSlot, slot)
	if elapsed == 0 || pool.Rates.InterestRateBps == 0 {
		interest, err = e.arith.Zero(ctx)
		if err != nil {
			return confidential.Value{}, confidential.Value{}, err
		}
		return principal, interest, nil
	}

	num, err := fixedpoint.Mul(uint64(pool.Rates.InterestRateBps), elapsed)
	if err != nil {
		return confidential.Value{}, confidential.Value{}, err
	}
	den, err := fixedpoint.Mul(fixedpoint.BasisPoints, e.config.SlotsPerYear)
	if err != nil {
		return confidential.Value{}, confidential.Value{}, err
	}
	interest, err = e.arith.Scale(ctx, principal, num, den)
	if err != nil {
		return confidential.Value{}, confidential.Value{}, err
	}
	total, err = e.arith.Add(ctx, principal, interest)
	if err != nil {
		return confidential.Value{}, confidential.Value{}, err
	}
	return total, interest, nil
}
