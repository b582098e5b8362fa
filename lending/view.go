// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lending

import (
	"context"
	"errors"
	"fmt"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/rlp"

	"github.com/luxfi/clend/hpke"
)

var (
	loanViewInfo  = []byte("clend/view/loan")
	vaultViewInfo = []byte("clend/view/vault")

	ErrInvalidViewKey = newError(ConfigurationError, "invalid view key")
	ErrViewDecryption = newError(AuthorizationError, "view decryption failed")
)

// LoanView is the decrypted position of a loan as seen by its borrower.
type LoanView struct {
	State      LoanState
	Slot       uint64
	Principal  uint64
	Interest   uint64
	TotalDue   uint64
	Collateral uint64
	Buffer     uint64
	Repayments uint64
}

// VaultView is the decrypted vault of a pool as seen by its owner.
type VaultView struct {
	Slot      uint64
	Vault     uint64
	Borrowers uint64
}

// SealedView is a view sealed to its recipient's HPKE public key.
type SealedView = hpke.Sealed

// GenerateViewKey returns a fresh recipient key pair in binary form.
func GenerateViewKey() (publicKey, privateKey []byte, err error) {
	return hpke.GenerateKeyPair()
}

// ViewLoan discloses the borrower's loan, accrued to the current slot, and
// seals it to recipient. Only the borrower may call it.
func (e *Engine) ViewLoan(ctx context.Context, poolID common.Hash, borrower common.Address, recipient []byte) (*SealedView, error) {
	var sealed *SealedView
	err := e.run("view_loan", func() error {
		if err := e.authorize(ctx, borrower); err != nil {
			return err
		}
		if err := hpke.ValidatePublicKey(recipient); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidViewKey, err)
		}
		pool, loan, err := e.loadLoan(poolID, borrower)
		if err != nil {
			return err
		}
		slot, err := e.ledger.CurrentSlot(ctx)
		if err != nil {
			return err
		}

		view := LoanView{
			State:      loan.State,
			Slot:       slot,
			Repayments: loan.Repayments,
		}
		if loan.State != Closed {
			total, interest, err := e.accrue(ctx, pool, loan, slot)
			if err != nil {
				return err
			}
			collateral, err := e.balance(ctx, loan.CollateralAccount)
			if err != nil {
				return err
			}
			buffer, err := e.balance(ctx, loan.RepaymentAccount)
			if err != nil {
				return err
			}
			for _, f := range []struct {
				out *uint64
				in  func() (uint64, error)
			}{
				{&view.Principal, func() (uint64, error) { return e.arith.Disclose(ctx, loan.principal()) }},
				{&view.Interest, func() (uint64, error) { return e.arith.Disclose(ctx, interest) }},
				{&view.TotalDue, func() (uint64, error) { return e.arith.Disclose(ctx, total) }},
				{&view.Collateral, func() (uint64, error) { return e.arith.Disclose(ctx, collateral) }},
				{&view.Buffer, func() (uint64, error) { return e.arith.Disclose(ctx, buffer) }},
			} {
				if *f.out, err = f.in(); err != nil {
					return err
				}
			}
		}
		sealed, err = sealView(recipient, loanViewInfo, loan.ID(), &view)
		return err
	})
	return sealed, err
}

// ViewVault discloses the pool vault and seals it to recipient. Only the
// pool owner may call it.
func (e *Engine) ViewVault(ctx context.Context, poolID common.Hash, recipient []byte) (*SealedView, error) {
	var sealed *SealedView
	err := e.run("view_vault", func() error {
		pool, err := e.store.Pool(poolID)
		if err != nil {
			return err
		}
		if err := e.authorize(ctx, pool.Owner); err != nil {
			return err
		}
		if err := hpke.ValidatePublicKey(recipient); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidViewKey, err)
		}
		slot, err := e.ledger.CurrentSlot(ctx)
		if err != nil {
			return err
		}
		vault, err := e.balance(ctx, pool.Vault)
		if err != nil {
			return err
		}
		view := VaultView{
			Slot:      slot,
			Borrowers: uint64(len(pool.Borrowers)),
		}
		if view.Vault, err = e.arith.Disclose(ctx, vault); err != nil {
			return err
		}
		sealed, err = sealView(recipient, vaultViewInfo, poolID, &view)
		return err
	})
	return sealed, err
}

// OpenLoanView decrypts a loan view sealed for the loan id.
func OpenLoanView(privateKey []byte, loanID common.Hash, sealed *SealedView) (*LoanView, error) {
	view := new(LoanView)
	if err := openView(privateKey, loanViewInfo, loanID, sealed, view); err != nil {
		return nil, err
	}
	return view, nil
}

// OpenVaultView decrypts a vault view sealed for the pool id.
func OpenVaultView(privateKey []byte, poolID common.Hash, sealed *SealedView) (*VaultView, error) {
	view := new(VaultView)
	if err := openView(privateKey, vaultViewInfo, poolID, sealed, view); err != nil {
		return nil, err
	}
	return view, nil
}

// sealView binds the ciphertext to id through the AAD.
func sealView(recipient, info []byte, id common.Hash, view any) (*SealedView, error) {
	plaintext, err := rlp.EncodeToBytes(view)
	if err != nil {
		return nil, err
	}
	return hpke.Seal(recipient, info, id.Bytes(), plaintext)
}

func openView(privateKey, info []byte, id common.Hash, sealed *SealedView, out any) error {
	plaintext, err := hpke.Open(privateKey, info, id.Bytes(), sealed)
	switch {
	case errors.Is(err, hpke.ErrInvalidKey):
		return fmt.Errorf("%w: %w", ErrInvalidViewKey, err)
	case err != nil:
		return fmt.Errorf("%w: %w", ErrViewDecryption, err)
	}
	return rlp.DecodeBytes(plaintext, out)
}
