// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"

	"github.com/luxfi/clend/confidential"
)

// TransferRecord is a journaled ledger movement.
type TransferRecord struct {
	From   common.Hash
	To     common.Hash
	Asset  common.Address
	Amount confidential.Value
	Slot   uint64
}

// Memory is an in-process Ledger backed by confidential.Arith. All account
// balances are ciphertexts of the arith backend.
type Memory struct {
	arith    *confidential.Arith
	accounts map[common.Hash]*Account
	journal  []TransferRecord
	slot     uint64
	nonce    uint64

	mu sync.Mutex
}

var _ Ledger = (*Memory)(nil)

// NewMemory returns an empty ledger whose clock starts at slot.
func NewMemory(arith *confidential.Arith, slot uint64) *Memory {
	return &Memory{
		arith:    arith,
		accounts: make(map[common.Hash]*Account),
		slot:     slot,
	}
}

func (m *Memory) MintAccount(ctx context.Context, owner, asset common.Address) (common.Hash, error) {
	zero, err := m.arith.Zero(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nonce++
	ref := accountRef(owner, asset, m.nonce)
	m.accounts[ref] = &Account{
		Ref:     ref,
		Owner:   owner,
		Asset:   asset,
		Balance: zero,
		Open:    true,
	}
	return ref, nil
}

func (m *Memory) Transfer(ctx context.Context, from, to common.Hash, amount confidential.Value) error {
	if from == to {
		return ErrSelfTransfer
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	src, err := m.open(from)
	if err != nil {
		return err
	}
	dst, err := m.open(to)
	if err != nil {
		return err
	}
	if src.Asset != dst.Asset {
		return ErrAssetMismatch
	}

	debited, err := m.arith.Sub(ctx, src.Balance, amount)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	credited, err := m.arith.Add(ctx, dst.Balance, amount)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	src.Balance = debited
	dst.Balance = credited

	m.journal = append(m.journal, TransferRecord{
		From:   from,
		To:     to,
		Asset:  src.Asset,
		Amount: amount,
		Slot:   m.slot,
	})
	return nil
}

func (m *Memory) CloseAccount(ctx context.Context, ref common.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, err := m.open(ref)
	if err != nil {
		return err
	}
	empty, err := m.arith.IsZero(ctx, acc.Balance, "ledger.close")
	if err != nil {
		return err
	}
	if !empty {
		return ErrAccountNotEmpty
	}
	acc.Open = false
	return nil
}

func (m *Memory) CurrentSlot(context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slot, nil
}

func (m *Memory) ReadBalance(_ context.Context, ref common.Hash) (confidential.Value, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, err := m.open(ref)
	if err != nil {
		return confidential.Value{}, err
	}
	return acc.Balance, nil
}

func (m *Memory) Account(_ context.Context, ref common.Hash) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[ref]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return *acc, nil
}

// Fund mints amount of fresh supply into ref.
func (m *Memory) Fund(ctx context.Context, ref common.Hash, amount uint64) error {
	v, err := m.arith.Const(ctx, amount)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	acc, err := m.open(ref)
	if err != nil {
		return err
	}
	sum, err := m.arith.Add(ctx, acc.Balance, v)
	if err != nil {
		return err
	}
	acc.Balance = sum
	return nil
}

// SetSlot moves the clock to slot. The clock never goes backward.
func (m *Memory) SetSlot(slot uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if slot < m.slot {
		return ErrSlotWentBackward
	}
	m.slot = slot
	return nil
}

// AdvanceSlot moves the clock forward by n slots.
func (m *Memory) AdvanceSlot(n uint64) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.slot += n
	return m.slot
}

// Journal returns a copy of all applied transfers in order.
func (m *Memory) Journal() []TransferRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]TransferRecord, len(m.journal))
	copy(out, m.journal)
	return out
}

func (m *Memory) open(ref common.Hash) (*Account, error) {
	acc, ok := m.accounts[ref]
	if !ok {
		return nil, ErrAccountNotFound
	}
	if !acc.Open {
		return nil, ErrAccountClosed
	}
	return acc, nil
}

// accountRef derives an account reference from its owner, asset and a
// ledger-local sequence number.
func accountRef(owner, asset common.Address, seq uint64) common.Hash {
	h := blake3.New()
	h.Write([]byte("account"))
	h.Write(owner.Bytes())
	h.Write(asset.Bytes())
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	h.Write(buf[:])

	var ref common.Hash
	h.Digest().Read(ref[:])
	return ref
}
