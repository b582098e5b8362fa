// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lending

import (
	"context"
	"errors"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/clend/confidential"
	"github.com/luxfi/clend/fixedpoint"
)

// Role tags who is settling a repayment.
type Role uint8

const (
	// BorrowerRepay is always allowed.
	BorrowerRepay Role = iota + 1
	// ThirdPartyLiquidate is allowed only while the loan's health factor is
	// below one.
	ThirdPartyLiquidate
)

func (r Role) String() string {
	switch r {
	case BorrowerRepay:
		return "borrower"
	case ThirdPartyLiquidate:
		return "liquidator"
	default:
		return "unknown"
	}
}

// RepayRequest posts a repayment against borrower's loan in Pool.
type RepayRequest struct {
	Pool     common.Hash
	Borrower common.Address

	// Payer is the authenticated caller when it is not the borrower.
	Payer common.Address

	// Amount is moved from Source into the repayment buffer before
	// reconciliation. A nil Amount reconciles the buffer as it stands and
	// is only accepted from the borrower.
	Amount *confidential.Value
	Source common.Hash

	// CollateralTo receives the released share of locked collateral. It
	// must be a collateral account held by the payer.
	CollateralTo common.Hash
}

// repayment is the confidential outcome of reconciling a payment.
type repayment struct {
	interest    confidential.Value
	totalDue    confidential.Value
	actual      confidential.Value
	overpayment confidential.Value
	remaining   confidential.Value
	release     confidential.Value
}

// =========================================================================
// Core Lending Operations
// =========================================================================

// InitializeLoan opens borrower's loan in pool in CollateralOpen with zero
// principal and empty collateral and repayment accounts. A Closed loan may
// be reopened.
func (e *Engine) InitializeLoan(ctx context.Context, poolID common.Hash, borrower common.Address) error {
	return e.run("initialize_loan", func() error {
		if err := e.authorize(ctx, borrower); err != nil {
			return err
		}
		pool, err := e.store.Pool(poolID)
		if err != nil {
			return err
		}

		id := LoanID(poolID, borrower)
		var version uint64
		switch prev, err := e.store.Loan(id); {
		case err == nil && prev.State != Closed:
			return ErrLoanAlreadyOpen
		case err == nil:
			version = prev.Version
		case !errors.Is(err, ErrLoanNotFound):
			return err
		}
		if err := pool.addBorrower(borrower); err != nil {
			return err
		}

		slot, err := e.ledger.CurrentSlot(ctx)
		if err != nil {
			return err
		}
		zero, err := e.arith.Zero(ctx)
		if err != nil {
			return err
		}

		plan := e.settlement("initialize_loan")
		defer plan.abort(ctx)

		escrow := EscrowAddress(id)
		collateral, err := plan.mint(ctx, escrow, pool.Collateral)
		if err != nil {
			return err
		}
		buffer, err := plan.mint(ctx, escrow, pool.Asset)
		if err != nil {
			return err
		}
		loan := &Loan{
			Pool:              poolID,
			Borrower:          borrower,
			Principal:         zero.Handle,
			LastUpdateSlot:    slot,
			State:             CollateralOpen,
			CollateralAccount: collateral,
			RepaymentAccount:  buffer,
			Version:           version,
		}
		if err := plan.execute(ctx, func() error {
			return e.store.Commit([]*Pool{pool}, []*Loan{loan})
		}); err != nil {
			return err
		}
		e.log.Info("loan initialized", "pool", poolID, "loan", id, "borrower", borrower, "slot", slot)
		return nil
	})
}

// DepositCollateral moves amount from the borrower's source account into
// the loan's collateral position. Only allowed in CollateralOpen.
func (e *Engine) DepositCollateral(ctx context.Context, poolID common.Hash, borrower common.Address, source common.Hash, amount confidential.Value) error {
	return e.run("deposit_collateral", func() error {
		pool, loan, err := e.openCollateral(ctx, poolID, borrower)
		if err != nil {
			return err
		}
		if err := e.requireAccount(ctx, source, borrower, pool.Collateral); err != nil {
			return err
		}

		plan := e.settlement("deposit_collateral")
		defer plan.abort(ctx)

		plan.transfer("deposit", source, loan.CollateralAccount, amount)
		return plan.execute(ctx, func() error {
			return e.store.Commit(nil, []*Loan{loan})
		})
	})
}

// WithdrawCollateral moves amount from the collateral position back to the
// borrower's destination account. Only allowed in CollateralOpen.
func (e *Engine) WithdrawCollateral(ctx context.Context, poolID common.Hash, borrower common.Address, dest common.Hash, amount confidential.Value) error {
	return e.run("withdraw_collateral", func() error {
		pool, loan, err := e.openCollateral(ctx, poolID, borrower)
		if err != nil {
			return err
		}
		if err := e.requireAccount(ctx, dest, borrower, pool.Collateral); err != nil {
			return err
		}

		plan := e.settlement("withdraw_collateral")
		defer plan.abort(ctx)

		plan.transfer("withdraw", loan.CollateralAccount, dest, amount)
		return plan.execute(ctx, func() error {
			return e.store.Commit(nil, []*Loan{loan})
		})
	})
}

// Borrow draws the largest loan the deposited collateral supports, capped
// by vault liquidity:
//
//	max_loan        = collateral * price * ltv / 10_000
//	loan            = min(max_loan, vault)
//	loan_collateral = loan * 10_000 / (price * ltv)
//	excess          = collateral - loan_collateral
//
// The loan is paid to assetTo, the excess collateral is returned to
// collateralTo and the rest stays locked. The encrypted loan amount is
// returned.
func (e *Engine) Borrow(ctx context.Context, poolID common.Hash, borrower common.Address, assetTo, collateralTo common.Hash) (confidential.Value, error) {
	var disbursed confidential.Value
	err := e.run("borrow", func() error {
		pool, loan, err := e.openCollateral(ctx, poolID, borrower)
		if err != nil {
			return err
		}
		if err := e.requireAccount(ctx, assetTo, borrower, pool.Asset); err != nil {
			return err
		}
		if err := e.requireAccount(ctx, collateralTo, borrower, pool.Collateral); err != nil {
			return err
		}
		slot, err := e.ledger.CurrentSlot(ctx)
		if err != nil {
			return err
		}

		collateral, err := e.balance(ctx, loan.CollateralAccount)
		if err != nil {
			return err
		}
		price, err := e.oracle.Price(ctx)
		if err != nil {
			return err
		}
		ltv := uint64(pool.Rates.LoanToValueBps)

		maxLoan, err := e.arith.MulScale(ctx, collateral, price, ltv, fixedpoint.BasisPoints)
		if err != nil {
			return err
		}
		amount, err := e.reserveForBorrow(ctx, pool, maxLoan)
		if err != nil {
			return err
		}
		empty, err := e.arith.IsZero(ctx, amount, "borrow.loan_amount")
		if err != nil {
			return err
		}
		if empty {
			return ErrZeroLiquidity
		}
		loanCollateral, err := e.arith.DivScale(ctx, amount, fixedpoint.BasisPoints, price, ltv)
		if err != nil {
			return err
		}
		excess, err := e.arith.Sub(ctx, collateral, loanCollateral)
		if err != nil {
			return err
		}

		plan := e.settlement("borrow")
		defer plan.abort(ctx)

		plan.transfer("disburse", pool.Vault, assetTo, amount)
		plan.transfer("excess_collateral", loan.CollateralAccount, collateralTo, excess)

		loan.Principal = amount.Handle
		loan.LastUpdateSlot = accruedThrough(loan.LastUpdateSlot, slot)
		loan.State = Borrowed
		loan.Repayments = 0
		if err := plan.execute(ctx, func() error {
			return e.store.Commit([]*Pool{pool}, []*Loan{loan})
		}); err != nil {
			return err
		}
		disbursed = amount
		e.log.Info("loan drawn", "pool", poolID, "loan", loan.ID(), "slot", slot)
		return nil
	})
	return disbursed, err
}

// Repay reconciles a payment against the loan. The borrower may always
// repay; anyone else settles as a liquidator and is admitted only while the
// health factor is below one. Repayments are never rejected for exceeding
// the amount due. A borrower's overpayment stays in the repayment buffer
// until the loan is closed; a liquidator's is refunded to its source in the
// same operation.
func (e *Engine) Repay(ctx context.Context, req RepayRequest) (Role, error) {
	var role Role
	err := e.run("repay", func() error {
		pool, loan, err := e.loadLoan(req.Pool, req.Borrower)
		if err != nil {
			return err
		}
		switch loan.State {
		case Closed:
			return ErrLoanClosed
		case CollateralOpen:
			return ErrNoOutstandingLoan
		}
		slot, err := e.ledger.CurrentSlot(ctx)
		if err != nil {
			return err
		}

		payer := loan.Borrower
		role = BorrowerRepay
		if !e.auth.CallerIs(ctx, loan.Borrower) {
			if err := e.authorize(ctx, req.Payer); err != nil {
				return err
			}
			payer, role = req.Payer, ThirdPartyLiquidate
			if req.Amount == nil {
				return ErrMissingAmount
			}
			below, err := e.healthFactorBelowOne(ctx, pool, loan, slot)
			if err != nil {
				return err
			}
			if !below {
				return ErrNotLiquidatable
			}
		}
		if err := e.requireAccount(ctx, req.CollateralTo, payer, pool.Collateral); err != nil {
			return err
		}

		plan := e.settlement("repay")
		defer plan.abort(ctx)

		// The amount reconciled is the whole buffer for the borrower and
		// only the posted amount for a liquidator.
		amount, err := e.balance(ctx, loan.RepaymentAccount)
		if err != nil {
			return err
		}
		if req.Amount != nil {
			if err := e.requireAccount(ctx, req.Source, payer, pool.Asset); err != nil {
				return err
			}
			plan.transfer("post", req.Source, loan.RepaymentAccount, *req.Amount)
			if role == BorrowerRepay {
				if amount, err = e.arith.Add(ctx, amount, *req.Amount); err != nil {
					return err
				}
			} else {
				amount = *req.Amount
			}
		}

		r, err := e.reconcile(ctx, pool, loan, amount, slot)
		if err != nil {
			return err
		}
		plan.transfer("repay", loan.RepaymentAccount, pool.Treasury, r.actual)
		if role == ThirdPartyLiquidate {
			plan.transfer("refund_overpayment", loan.RepaymentAccount, req.Source, r.overpayment)
		}
		plan.transfer("release_collateral", loan.CollateralAccount, req.CollateralTo, r.release)

		loan.Principal = r.remaining.Handle
		loan.LastUpdateSlot = accruedThrough(loan.LastUpdateSlot, slot)
		loan.Repayments++
		if err := plan.execute(ctx, func() error {
			return e.store.Commit(nil, []*Loan{loan})
		}); err != nil {
			return err
		}
		if role == ThirdPartyLiquidate {
			e.metrics.observeLiquidation()
		}
		e.log.Info("repayment settled",
			"pool", req.Pool,
			"loan", loan.ID(),
			"role", role.String(),
			"repayments", loan.Repayments,
			"slot", slot,
		)
		return nil
	})
	return role, err
}

// CloseLoan closes a fully settled loan. The repayment buffer, which holds
// any overpayment, is paid to assetTo and residual collateral to
// collateralTo; both loan accounts are then destroyed. Closing a Closed
// loan fails with ErrLoanClosed.
func (e *Engine) CloseLoan(ctx context.Context, poolID common.Hash, borrower common.Address, assetTo, collateralTo common.Hash) error {
	return e.run("close_loan", func() error {
		if err := e.authorize(ctx, borrower); err != nil {
			return err
		}
		pool, loan, err := e.loadLoan(poolID, borrower)
		if err != nil {
			return err
		}
		if loan.State == Closed {
			return ErrLoanClosed
		}
		zero, err := e.arith.Zero(ctx)
		if err != nil {
			return err
		}
		ord, err := e.arith.CompareAndReveal(ctx, loan.principal(), zero, "close_loan.remaining_due")
		if err != nil {
			return err
		}
		if ord != confidential.Equal {
			return ErrLoanNotSettled
		}
		if err := e.requireAccount(ctx, assetTo, borrower, pool.Asset); err != nil {
			return err
		}
		if err := e.requireAccount(ctx, collateralTo, borrower, pool.Collateral); err != nil {
			return err
		}

		buffer, err := e.balance(ctx, loan.RepaymentAccount)
		if err != nil {
			return err
		}
		collateral, err := e.balance(ctx, loan.CollateralAccount)
		if err != nil {
			return err
		}

		plan := e.settlement("close_loan")
		defer plan.abort(ctx)

		plan.transfer("claim_repayment_buffer", loan.RepaymentAccount, assetTo, buffer)
		plan.transfer("claim_collateral", loan.CollateralAccount, collateralTo, collateral)
		plan.close(loan.RepaymentAccount)
		plan.close(loan.CollateralAccount)

		loan.State = Closed
		pool.removeBorrower(borrower)
		if err := plan.execute(ctx, func() error {
			return e.store.Commit([]*Pool{pool}, []*Loan{loan})
		}); err != nil {
			return err
		}
		e.log.Info("loan closed", "pool", poolID, "loan", loan.ID())
		return nil
	})
}

// =========================================================================
// Internal Functions
// =========================================================================

// openCollateral loads a loan whose collateral is still adjustable by its
// authenticated borrower.
func (e *Engine) openCollateral(ctx context.Context, poolID common.Hash, borrower common.Address) (*Pool, *Loan, error) {
	if err := e.authorize(ctx, borrower); err != nil {
		return nil, nil, err
	}
	pool, loan, err := e.loadLoan(poolID, borrower)
	if err != nil {
		return nil, nil, err
	}
	switch loan.State {
	case CollateralOpen:
		return pool, loan, nil
	case Closed:
		return nil, nil, ErrLoanClosed
	default:
		return nil, nil, ErrCollateralLocked
	}
}

// reconcile computes, without revealing amounts:
//
//	total_due   = principal + interest
//	actual      = min(amount, total_due)
//	overpayment = amount - actual
//	remaining   = total_due - actual
//	release     = locked * actual / total_due
//
// The release is skipped when total_due reveals zero.
func (e *Engine) reconcile(ctx context.Context, pool *Pool, loan *Loan, amount confidential.Value, slot uint64) (*repayment, error) {
	var (
		r   repayment
		err error
	)
	if r.totalDue, r.interest, err = e.accrue(ctx, pool, loan, slot); err != nil {
		return nil, err
	}
	if r.actual, err = e.arith.Min(ctx, amount, r.totalDue); err != nil {
		return nil, err
	}
	if r.overpayment, err = e.arith.Sub(ctx, amount, r.actual); err != nil {
		return nil, err
	}
	if r.remaining, err = e.arith.Sub(ctx, r.totalDue, r.actual); err != nil {
		return nil, err
	}

	nothingDue, err := e.arith.IsZero(ctx, r.totalDue, "repay.total_due")
	if err != nil {
		return nil, err
	}
	if nothingDue {
		if r.release, err = e.arith.Zero(ctx); err != nil {
			return nil, err
		}
		return &r, nil
	}
	locked, err := e.balance(ctx, loan.CollateralAccount)
	if err != nil {
		return nil, err
	}
	if r.release, err = e.arith.ScaleByRatio(ctx, locked, r.actual, r.totalDue); err != nil {
		return nil, err
	}
	return &r, nil
}
