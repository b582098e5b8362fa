// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lending

import (
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/rlp"
)

// Storage key prefixes for lending state
var (
	lendPoolPrefix = []byte("lend/pool")
	lendLoanPrefix = []byte("lend/loan")
)

// Store persists pool and loan records. Records are read fresh at the start
// of every operation and written exactly once, together, at commit. A
// commit fails with ErrConcurrentUpdate if any record's stored version moved
// since it was read.
type Store struct {
	db database.Database
	mu sync.Mutex
}

// NewStore returns a Store over db. A Store must be the only writer of the
// lending prefixes in db.
func NewStore(db database.Database) *Store {
	return &Store{db: db}
}

// Pool loads the pool record id.
func (s *Store) Pool(id common.Hash) (*Pool, error) {
	pool := new(Pool)
	if err := s.get(makeStorageKey(lendPoolPrefix, id), pool); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrPoolNotFound
		}
		return nil, fmt.Errorf("load pool: %w", err)
	}
	return pool, nil
}

// Loan loads the loan record id.
func (s *Store) Loan(id common.Hash) (*Loan, error) {
	loan := new(Loan)
	if err := s.get(makeStorageKey(lendLoanPrefix, id), loan); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrLoanNotFound
		}
		return nil, fmt.Errorf("load loan: %w", err)
	}
	return loan, nil
}

// Commit writes pools and loans in one batch. Records with Version 0 must
// not exist yet. On success every record's Version is advanced.
func (s *Store) Commit(pools []*Pool, loans []*Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.db.NewBatch()
	for _, p := range pools {
		key := makeStorageKey(lendPoolPrefix, p.ID())
		if err := s.checkVersion(key, new(Pool), p.Version, func(v any) uint64 { return v.(*Pool).Version }); err != nil {
			return err
		}
		next := *p
		next.Version++
		data, err := rlp.EncodeToBytes(&next)
		if err != nil {
			return fmt.Errorf("encode pool: %w", err)
		}
		if err := batch.Put(key, data); err != nil {
			return err
		}
	}
	for _, l := range loans {
		key := makeStorageKey(lendLoanPrefix, l.ID())
		if err := s.checkVersion(key, new(Loan), l.Version, func(v any) uint64 { return v.(*Loan).Version }); err != nil {
			return err
		}
		next := *l
		next.Version++
		data, err := rlp.EncodeToBytes(&next)
		if err != nil {
			return fmt.Errorf("encode loan: %w", err)
		}
		if err := batch.Put(key, data); err != nil {
			return err
		}
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	for _, p := range pools {
		p.Version++
	}
	for _, l := range loans {
		l.Version++
	}
	return nil
}

func (s *Store) get(key []byte, out any) error {
	data, err := s.db.Get(key)
	if err != nil {
		return err
	}
	return rlp.DecodeBytes(data, out)
}

func (s *Store) checkVersion(key []byte, into any, expected uint64, version func(any) uint64) error {
	err := s.get(key, into)
	switch {
	case errors.Is(err, database.ErrNotFound):
		if expected != 0 {
			return ErrConcurrentUpdate
		}
		return nil
	case err != nil:
		return fmt.Errorf("load for commit: %w", err)
	}
	if version(into) != expected {
		return ErrConcurrentUpdate
	}
	return nil
}

func makeStorageKey(prefix []byte, id common.Hash) []byte {
	key := make([]byte, 0, len(prefix)+common.HashLength)
	key = append(key, prefix...)
	return append(key, id.Bytes()...)
}
