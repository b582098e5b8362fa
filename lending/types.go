// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package lending implements collateralized lending over confidential
// balances. Collateral, principal and repayments stay encrypted; the
// protocol learns only the booleans it needs to enforce solvency and
// liquidation rules.
package lending

import (
	"fmt"

	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"

	"github.com/luxfi/clend/confidential"
	"github.com/luxfi/clend/fixedpoint"
)

// LoanState is the lifecycle tag of a Loan.
type LoanState uint8

const (
	CollateralOpen LoanState = iota + 1
	Borrowed
	Closed
)

func (s LoanState) String() string {
	switch s {
	case CollateralOpen:
		return "collateral_open"
	case Borrowed:
		return "borrowed"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Rates holds the pool's basis-point parameters.
type Rates struct {
	InterestRateBps        uint16 // flat annual rate
	LoanToValueBps         uint16 // borrowing limit against collateral value
	CollateralThresholdBps uint16 // liquidation threshold
}

// Verify enforces loan_to_value < collateral_threshold <= 10_000.
func (r Rates) Verify() error {
	for _, bps := range []uint16{r.InterestRateBps, r.LoanToValueBps, r.CollateralThresholdBps} {
		if err := fixedpoint.ValidateBps(bps); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	if r.LoanToValueBps >= r.CollateralThresholdBps {
		return ErrInvalidRates
	}
	return nil
}

// Pool is the persisted lending pool record.
type Pool struct {
	Owner      common.Address
	Asset      common.Address
	Collateral common.Address
	Rates      Rates

	// Vault holds lendable liquidity; Treasury is the owner's account that
	// receives repayments.
	Vault    common.Hash
	Treasury common.Hash

	MaxBorrowers uint32 // 0 = unlimited
	Borrowers    []common.Address

	Version uint64
}

// ID returns the pool identifier.
func (p *Pool) ID() common.Hash {
	return PoolID(p.Owner, p.Asset, p.Collateral)
}

func (p *Pool) hasBorrower(b common.Address) bool {
	for _, x := range p.Borrowers {
		if x == b {
			return true
		}
	}
	return false
}

func (p *Pool) addBorrower(b common.Address) error {
	if p.hasBorrower(b) {
		return nil
	}
	if p.MaxBorrowers != 0 && uint32(len(p.Borrowers)) >= p.MaxBorrowers {
		return ErrPoolFull
	}
	p.Borrowers = append(p.Borrowers, b)
	return nil
}

func (p *Pool) removeBorrower(b common.Address) {
	for i, x := range p.Borrowers {
		if x == b {
			p.Borrowers = append(p.Borrowers[:i], p.Borrowers[i+1:]...)
			return
		}
	}
}

// Loan is the persisted loan record. Closed loans are kept as tombstones.
type Loan struct {
	Pool     common.Hash
	Borrower common.Address

	// Principal is the handle of the encrypted outstanding due.
	Principal      common.Hash
	LastUpdateSlot uint64
	State          LoanState

	// Ledger accounts owned by the loan escrow.
	CollateralAccount common.Hash
	RepaymentAccount  common.Hash

	// Repayments counts reconciliations since the loan was drawn. A
	// Borrowed loan with Repayments > 0 is repaying.
	Repayments uint64

	Version uint64
}

// ID returns the loan identifier.
func (l *Loan) ID() common.Hash {
	return LoanID(l.Pool, l.Borrower)
}

// Repaying reports whether at least one repayment has been reconciled
// against a drawn loan.
func (l *Loan) Repaying() bool {
	return l.State == Borrowed && l.Repayments > 0
}

func (l *Loan) principal() confidential.Value {
	return confidential.Value{Handle: l.Principal, Width: confidential.Uint64}
}

// PoolID derives the identifier of the pool for an (owner, asset,
// collateral) triple.
func PoolID(owner, asset, collateral common.Address) common.Hash {
	h := blake3.New()
	h.Write([]byte("lending_pool"))
	h.Write(owner.Bytes())
	h.Write(asset.Bytes())
	h.Write(collateral.Bytes())
	var id common.Hash
	h.Digest().Read(id[:])
	return id
}

// LoanID derives the identifier of borrower's loan in pool.
func LoanID(pool common.Hash, borrower common.Address) common.Hash {
	h := blake3.New()
	h.Write([]byte("loan"))
	h.Write(pool.Bytes())
	h.Write(borrower.Bytes())
	var id common.Hash
	h.Digest().Read(id[:])
	return id
}

// EscrowAddress is the protocol-controlled owner of the ledger accounts
// backing record id.
func EscrowAddress(id common.Hash) common.Address {
	h := blake3.New()
	h.Write([]byte("escrow"))
	h.Write(id.Bytes())
	var digest [32]byte
	h.Digest().Read(digest[:])
	return common.BytesToAddress(digest[12:])
}
