// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lending

import (
	"context"
	"errors"
	"fmt"

	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"

	"github.com/luxfi/clend/confidential"
	"github.com/luxfi/clend/ledger"
)

// leg is one planned ledger transfer.
type leg struct {
	name   string
	from   common.Hash
	to     common.Hash
	amount confidential.Value
}

// settlement sequences the ledger effects of a single operation. Accounts
// are minted eagerly; transfers are planned and applied in order by
// execute. Any failure up to and including the record commit unwinds every
// applied transfer in reverse and closes the accounts the operation minted.
type settlement struct {
	op      string
	ledger  ledger.Ledger
	log     log.Logger
	metrics *Metrics

	legs    []leg
	applied []leg
	minted  []common.Hash
	closes  []common.Hash
	done    bool
}

func newSettlement(op string, l ledger.Ledger, logger log.Logger, m *Metrics) *settlement {
	return &settlement{op: op, ledger: l, log: logger, metrics: m}
}

// mint opens an account now; abort closes it again.
func (s *settlement) mint(ctx context.Context, owner, asset common.Address) (common.Hash, error) {
	ref, err := s.ledger.MintAccount(ctx, owner, asset)
	if err != nil {
		return common.Hash{}, fmt.Errorf("mint account: %w", err)
	}
	s.minted = append(s.minted, ref)
	return ref, nil
}

// transfer plans a transfer leg.
func (s *settlement) transfer(name string, from, to common.Hash, amount confidential.Value) {
	s.legs = append(s.legs, leg{name: name, from: from, to: to, amount: amount})
}

// close plans an account closure, applied after a successful commit.
func (s *settlement) close(ref common.Hash) {
	s.closes = append(s.closes, ref)
}

// execute applies the planned legs in order, then commit. Closures run only
// once commit has succeeded.
func (s *settlement) execute(ctx context.Context, commit func() error) error {
	for _, l := range s.legs {
		if err := s.ledger.Transfer(ctx, l.from, l.to, l.amount); err != nil {
			return s.unwind(ctx, fmt.Errorf("%s: %w", l.name, err))
		}
		s.applied = append(s.applied, l)
	}
	if err := commit(); err != nil {
		return s.unwind(ctx, err)
	}
	s.done = true

	for _, ref := range s.closes {
		if err := s.ledger.CloseAccount(ctx, ref); err != nil {
			// The record is committed; an unclosed drained account holds
			// no value.
			s.log.Warn("account close failed", "op", s.op, "account", ref, "err", err)
		}
	}
	return nil
}

// abort releases minted accounts of an operation that never executed.
func (s *settlement) abort(ctx context.Context) {
	if s.done {
		return
	}
	s.done = true
	s.closeMinted(context.WithoutCancel(ctx))
}

func (s *settlement) unwind(ctx context.Context, cause error) error {
	s.done = true
	s.metrics.observeCompensation(s.op)
	ctx = context.WithoutCancel(ctx)

	var errs []error
	for i := len(s.applied) - 1; i >= 0; i-- {
		l := s.applied[i]
		if err := s.ledger.Transfer(ctx, l.to, l.from, l.amount); err != nil {
			s.log.Error("compensation failed", "op", s.op, "leg", l.name, "err", err)
			errs = append(errs, fmt.Errorf("compensate %s: %w", l.name, err))
		}
	}
	s.applied = nil
	s.closeMinted(ctx)

	if len(errs) > 0 {
		return errors.Join(append([]error{cause}, errs...)...)
	}
	return cause
}

func (s *settlement) closeMinted(ctx context.Context) {
	for _, ref := range s.minted {
		if err := s.ledger.CloseAccount(ctx, ref); err != nil {
			s.log.Warn("minted account close failed", "op", s.op, "account", ref, "err", err)
		}
	}
	s.minted = nil
}
