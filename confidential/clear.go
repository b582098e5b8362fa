// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package confidential

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"
)

type clearEntry struct {
	word  uint256.Int
	width Width
}

// ClearBackend simulates the Backend contract over plaintext words kept in
// process memory. Handles are unlinkable to their contents, so code written
// against it behaves exactly as it would against a real encryption scheme.
// It is intended for tests and dry runs.
type ClearBackend struct {
	entries map[common.Hash]clearEntry
	salt    [32]byte
	nonce   uint64

	mu sync.Mutex
}

// NewClearBackend returns an empty simulation backend.
func NewClearBackend() *ClearBackend {
	b := &ClearBackend{
		entries: make(map[common.Hash]clearEntry),
	}
	// crypto/rand.Read never returns an error as of Go 1.24.
	_, _ = rand.Read(b.salt[:])
	return b
}

// Len returns the number of live ciphertexts.
func (b *ClearBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

func (b *ClearBackend) Encrypt(_ context.Context, v uint64, w Width) (common.Hash, error) {
	if w.Bits() == 0 {
		return common.Hash{}, fmt.Errorf("%w: %s", ErrWidthMismatch, w)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	var word uint256.Int
	word.SetUint64(v)
	return b.store(word, w), nil
}

func (b *ClearBackend) Add(_ context.Context, x, y common.Hash) (common.Hash, error) {
	return b.binary(x, y, func(z, l, r *uint256.Int) { z.Add(l, r) })
}

func (b *ClearBackend) Sub(_ context.Context, x, y common.Hash) (common.Hash, error) {
	return b.binary(x, y, func(z, l, r *uint256.Int) { z.Sub(l, r) })
}

func (b *ClearBackend) Mul(_ context.Context, x, y common.Hash) (common.Hash, error) {
	return b.binary(x, y, func(z, l, r *uint256.Int) { z.Mul(l, r) })
}

func (b *ClearBackend) Div(_ context.Context, x, y common.Hash) (common.Hash, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	l, r, err := b.pair(x, y)
	if err != nil {
		return common.Hash{}, err
	}
	var z uint256.Int
	if r.word.IsZero() {
		z.Set(maxWord(l.width))
	} else {
		z.Div(&l.word, &r.word)
	}
	return b.store(z, l.width), nil
}

func (b *ClearBackend) ScalarMul(_ context.Context, x common.Hash, k uint64) (common.Hash, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[x]
	if !ok {
		return common.Hash{}, ErrUnknownHandle
	}
	var z uint256.Int
	z.Mul(&e.word, uint256.NewInt(k))
	return b.store(z, e.width), nil
}

func (b *ClearBackend) ScalarDiv(_ context.Context, x common.Hash, k uint64) (common.Hash, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[x]
	if !ok {
		return common.Hash{}, ErrUnknownHandle
	}
	var z uint256.Int
	if k == 0 {
		z.Set(maxWord(e.width))
	} else {
		z.Div(&e.word, uint256.NewInt(k))
	}
	return b.store(z, e.width), nil
}

func (b *ClearBackend) Lt(_ context.Context, x, y common.Hash) (common.Hash, error) {
	return b.compare(x, y, func(l, r *uint256.Int) bool { return l.Lt(r) })
}

func (b *ClearBackend) Eq(_ context.Context, x, y common.Hash) (common.Hash, error) {
	return b.compare(x, y, func(l, r *uint256.Int) bool { return l.Eq(r) })
}

func (b *ClearBackend) Select(_ context.Context, pred, x, y common.Hash) (common.Hash, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.entries[pred]
	if !ok {
		return common.Hash{}, ErrUnknownHandle
	}
	if p.width != Bool {
		return common.Hash{}, ErrNotPredicate
	}
	l, r, err := b.pair(x, y)
	if err != nil {
		return common.Hash{}, err
	}
	if p.word.IsZero() {
		return b.store(r.word, r.width), nil
	}
	return b.store(l.word, l.width), nil
}

func (b *ClearBackend) Cast(_ context.Context, x common.Hash, w Width) (common.Hash, error) {
	if w.Bits() == 0 {
		return common.Hash{}, fmt.Errorf("%w: %s", ErrWidthMismatch, w)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[x]
	if !ok {
		return common.Hash{}, ErrUnknownHandle
	}
	return b.store(e.word, w), nil
}

func (b *ClearBackend) Reveal(_ context.Context, pred common.Hash) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.entries[pred]
	if !ok {
		return false, ErrUnknownHandle
	}
	if p.width != Bool {
		return false, ErrNotPredicate
	}
	return !p.word.IsZero(), nil
}

func (b *ClearBackend) Disclose(_ context.Context, x common.Hash) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[x]
	if !ok {
		return 0, ErrUnknownHandle
	}
	if e.width != Uint64 {
		return 0, fmt.Errorf("%w: disclose %s", ErrWidthMismatch, e.width)
	}
	return e.word.Uint64(), nil
}

// Internal Functions

func (b *ClearBackend) binary(x, y common.Hash, op func(z, l, r *uint256.Int)) (common.Hash, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	l, r, err := b.pair(x, y)
	if err != nil {
		return common.Hash{}, err
	}
	var z uint256.Int
	op(&z, &l.word, &r.word)
	return b.store(z, l.width), nil
}

func (b *ClearBackend) compare(x, y common.Hash, op func(l, r *uint256.Int) bool) (common.Hash, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	l, r, err := b.pair(x, y)
	if err != nil {
		return common.Hash{}, err
	}
	var z uint256.Int
	if op(&l.word, &r.word) {
		z.SetOne()
	}
	return b.store(z, Bool), nil
}

func (b *ClearBackend) pair(x, y common.Hash) (clearEntry, clearEntry, error) {
	l, ok := b.entries[x]
	if !ok {
		return clearEntry{}, clearEntry{}, ErrUnknownHandle
	}
	r, ok := b.entries[y]
	if !ok {
		return clearEntry{}, clearEntry{}, ErrUnknownHandle
	}
	if l.width != r.width {
		return clearEntry{}, clearEntry{}, fmt.Errorf("%w: %s vs %s", ErrWidthMismatch, l.width, r.width)
	}
	return l, r, nil
}

// store masks word to w and files it under a fresh handle. Caller holds mu.
func (b *ClearBackend) store(word uint256.Int, w Width) common.Hash {
	if w != Uint256 {
		word.And(&word, maxWord(w))
	}
	b.nonce++
	var buf [40]byte
	copy(buf[:32], b.salt[:])
	binary.BigEndian.PutUint64(buf[32:], b.nonce)
	h := common.Hash(blake3.Sum256(buf[:]))
	b.entries[h] = clearEntry{word: word, width: w}
	return h
}

func maxWord(w Width) *uint256.Int {
	if w == Uint256 {
		return new(uint256.Int).SetAllOne()
	}
	one := uint256.NewInt(1)
	z := new(uint256.Int).Lsh(one, w.Bits())
	return z.Sub(z, one)
}
