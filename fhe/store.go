// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"errors"

	"github.com/luxfi/database"
	"github.com/luxfi/fhe"
	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"

	"github.com/luxfi/clend/confidential"
)

// Storage Management
//
// Records are laid out as [width byte][ciphertext encoding] under
// ciphertextPrefix || blake3(record).

func ciphertextKey(h common.Hash) []byte {
	key := make([]byte, 0, len(ciphertextPrefix)+common.HashLength)
	key = append(key, ciphertextPrefix...)
	return append(key, h[:]...)
}

func (e *Evaluator) put(w confidential.Width, data []byte) (common.Hash, error) {
	record := make([]byte, 0, 1+len(data))
	record = append(record, byte(w))
	record = append(record, data...)

	h := common.Hash(blake3.Sum256(record))
	if err := e.db.Put(ciphertextKey(h), record); err != nil {
		return common.Hash{}, err
	}
	return h, nil
}

func (e *Evaluator) load(h common.Hash) (confidential.Width, []byte, error) {
	record, err := e.db.Get(ciphertextKey(h))
	if errors.Is(err, database.ErrNotFound) {
		return 0, nil, confidential.ErrUnknownHandle
	}
	if err != nil {
		return 0, nil, err
	}
	if len(record) < 2 {
		return 0, nil, ErrCorruptCiphertext
	}
	return confidential.Width(record[0]), record[1:], nil
}

// serializeBitCiphertext converts BitCiphertext to bytes
func serializeBitCiphertext(ct *fhe.BitCiphertext) []byte {
	if ct == nil {
		return nil
	}
	data, err := ct.MarshalBinary()
	if err != nil {
		return nil
	}
	return data
}

// deserializeBitCiphertext converts bytes to BitCiphertext
func deserializeBitCiphertext(data []byte) *fhe.BitCiphertext {
	if len(data) == 0 {
		return nil
	}
	ct := new(fhe.BitCiphertext)
	if err := ct.UnmarshalBinary(data); err != nil {
		return nil
	}
	return ct
}

// serializeCiphertext converts a single Ciphertext (encrypted bit) to bytes
func serializeCiphertext(ct *fhe.Ciphertext) []byte {
	if ct == nil {
		return nil
	}
	data, err := ct.MarshalBinary()
	if err != nil {
		return nil
	}
	return data
}

// deserializeCiphertext converts bytes to a single Ciphertext (encrypted bit)
func deserializeCiphertext(data []byte) *fhe.Ciphertext {
	if len(data) == 0 {
		return nil
	}
	ct := new(fhe.Ciphertext)
	if err := ct.UnmarshalBinary(data); err != nil {
		return nil
	}
	return ct
}
