// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ledger defines the confidential token ledger the lending engine
// settles against, and an in-memory implementation of it.
package ledger

import (
	"context"
	"errors"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/clend/confidential"
)

var (
	ErrTransferFailed   = errors.New("confidential transfer failed")
	ErrAccountNotFound  = errors.New("account not found")
	ErrAccountClosed    = errors.New("account closed")
	ErrAccountNotEmpty  = errors.New("account balance not zero")
	ErrAssetMismatch    = errors.New("account asset mismatch")
	ErrSelfTransfer     = errors.New("transfer to the source account")
	ErrSlotWentBackward = errors.New("slot clock went backward")
)

// Account describes a ledger account. Balance is encrypted.
type Account struct {
	Ref     common.Hash
	Owner   common.Address
	Asset   common.Address
	Balance confidential.Value
	Open    bool
}

// Ledger is the confidential token ledger. Insufficient balances are
// detected without decrypting them and surface as ErrTransferFailed.
type Ledger interface {
	// MintAccount opens a zero-balance account of asset held by owner.
	MintAccount(ctx context.Context, owner, asset common.Address) (common.Hash, error)

	// Transfer moves amount between two distinct accounts of the same asset.
	Transfer(ctx context.Context, from, to common.Hash, amount confidential.Value) error

	// CloseAccount destroys an account whose balance is zero.
	CloseAccount(ctx context.Context, ref common.Hash) error

	// CurrentSlot returns the ledger clock.
	CurrentSlot(ctx context.Context) (uint64, error)

	// ReadBalance returns the encrypted balance of ref.
	ReadBalance(ctx context.Context, ref common.Hash) (confidential.Value, error)

	// Account returns the public metadata of ref.
	Account(ctx context.Context, ref common.Hash) (Account, error)
}
