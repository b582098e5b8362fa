// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lending

import (
	"context"
	"errors"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/clend/confidential"
)

// PoolParams describes a new lending pool.
type PoolParams struct {
	Owner      common.Address
	Asset      common.Address
	Collateral common.Address
	Rates      Rates

	// Treasury is the owner's asset account credited with repayments.
	Treasury common.Hash
}

// =========================================================================
// Admin Functions
// =========================================================================

// InitializeLendingPool creates the pool for (owner, asset, collateral)
// with an empty vault and returns its identifier.
func (e *Engine) InitializeLendingPool(ctx context.Context, params PoolParams) (common.Hash, error) {
	id := PoolID(params.Owner, params.Asset, params.Collateral)
	err := e.run("initialize_lending_pool", func() error {
		if err := e.authorize(ctx, params.Owner); err != nil {
			return err
		}
		if err := params.Rates.Verify(); err != nil {
			return err
		}
		if _, err := e.store.Pool(id); err == nil {
			return ErrPoolExists
		} else if !errors.Is(err, ErrPoolNotFound) {
			return err
		}
		if err := e.requireAccount(ctx, params.Treasury, params.Owner, params.Asset); err != nil {
			return err
		}

		plan := e.settlement("initialize_lending_pool")
		defer plan.abort(ctx)

		vault, err := plan.mint(ctx, EscrowAddress(id), params.Asset)
		if err != nil {
			return err
		}
		pool := &Pool{
			Owner:        params.Owner,
			Asset:        params.Asset,
			Collateral:   params.Collateral,
			Rates:        params.Rates,
			Vault:        vault,
			Treasury:     params.Treasury,
			MaxBorrowers: e.config.MaxBorrowers,
		}
		if err := plan.execute(ctx, func() error {
			return e.store.Commit([]*Pool{pool}, nil)
		}); err != nil {
			return err
		}
		e.log.Info("lending pool initialized",
			"pool", id,
			"owner", params.Owner,
			"rateBps", params.Rates.InterestRateBps,
			"ltvBps", params.Rates.LoanToValueBps,
			"thresholdBps", params.Rates.CollateralThresholdBps,
		)
		return nil
	})
	if err != nil {
		return common.Hash{}, err
	}
	return id, nil
}

// DepositLiquidity moves amount from the owner's source account into the
// pool vault.
func (e *Engine) DepositLiquidity(ctx context.Context, poolID, source common.Hash, amount confidential.Value) error {
	return e.run("deposit_liquidity", func() error {
		pool, err := e.store.Pool(poolID)
		if err != nil {
			return err
		}
		if err := e.authorize(ctx, pool.Owner); err != nil {
			return err
		}
		if err := e.requireAccount(ctx, source, pool.Owner, pool.Asset); err != nil {
			return err
		}

		plan := e.settlement("deposit_liquidity")
		defer plan.abort(ctx)

		plan.transfer("deposit", source, pool.Vault, amount)
		if err := plan.execute(ctx, func() error {
			return e.store.Commit([]*Pool{pool}, nil)
		}); err != nil {
			return err
		}
		e.log.Info("liquidity deposited", "pool", poolID)
		return nil
	})
}

// WithdrawLiquidity moves amount from the vault to the owner's destination
// account. It fails with ErrInsufficientLiquidity when amount exceeds the
// vault; only that boolean is revealed.
func (e *Engine) WithdrawLiquidity(ctx context.Context, poolID, dest common.Hash, amount confidential.Value) error {
	return e.run("withdraw_liquidity", func() error {
		pool, err := e.store.Pool(poolID)
		if err != nil {
			return err
		}
		if err := e.authorize(ctx, pool.Owner); err != nil {
			return err
		}
		if err := e.requireAccount(ctx, dest, pool.Owner, pool.Asset); err != nil {
			return err
		}

		vault, err := e.balance(ctx, pool.Vault)
		if err != nil {
			return err
		}
		short, err := e.arith.LessThan(ctx, vault, amount, "withdraw_liquidity.vault")
		if err != nil {
			return err
		}
		if short {
			return ErrInsufficientLiquidity
		}

		plan := e.settlement("withdraw_liquidity")
		defer plan.abort(ctx)

		plan.transfer("withdraw", pool.Vault, dest, amount)
		if err := plan.execute(ctx, func() error {
			return e.store.Commit([]*Pool{pool}, nil)
		}); err != nil {
			return err
		}
		e.log.Info("liquidity withdrawn", "pool", poolID)
		return nil
	})
}

// reserveForBorrow returns min(requested, vault). Only requested > vault is
// revealed; the result is a confidential select of one of the two. The
// caller debits the vault by planning a transfer of the result.
func (e *Engine) reserveForBorrow(ctx context.Context, pool *Pool, requested confidential.Value) (confidential.Value, error) {
	vault, err := e.balance(ctx, pool.Vault)
	if err != nil {
		return confidential.Value{}, err
	}
	exceeds, err := e.arith.LessThan(ctx, vault, requested, "reserve.vault")
	if err != nil {
		return confidential.Value{}, err
	}
	return e.arith.Select(ctx, confidential.Revealed(exceeds), vault, requested)
}
