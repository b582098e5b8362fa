// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fhe implements confidential.Backend on TFHE. Ciphertexts live in
// a key-value store and are addressed by the blake3 digest of their
// encoding.
package fhe

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/database"
	"github.com/luxfi/fhe"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/clend/confidential"
)

var (
	// Singleton TFHE components
	tfheOnce  sync.Once
	evaluator *fhe.BitwiseEvaluator
	encryptor *fhe.BitwiseEncryptor
	decryptor *fhe.BitwiseDecryptor
	secretKey *fhe.SecretKey
	publicKey *fhe.PublicKey
	params    fhe.Parameters
	initErr   error
)

var (
	ErrCorruptCiphertext = errors.New("corrupt ciphertext")
	ErrUnsupportedWidth  = errors.New("unsupported ciphertext width")
)

var ciphertextPrefix = []byte("fhe/ct/")

// Initialize TFHE components
func initTFHE() error {
	tfheOnce.Do(func() {
		var err error

		params, err = fhe.NewParametersFromLiteral(fhe.PN10QP27)
		if err != nil {
			initErr = err
			return
		}

		kg := fhe.NewKeyGenerator(params)
		secretKey, publicKey = kg.GenKeyPair()
		bsk := kg.GenBootstrapKey(secretKey)

		encryptor = fhe.NewBitwiseEncryptor(params, secretKey)
		decryptor = fhe.NewBitwiseDecryptor(params, secretKey)
		evaluator = fhe.NewBitwiseEvaluator(params, bsk, secretKey)
	})

	return initErr
}

// tfheType converts an amount width to the TFHE integer type.
func tfheType(w confidential.Width) (fhe.FheUintType, error) {
	switch w {
	case confidential.Bool:
		return fhe.FheBool, nil
	case confidential.Uint64:
		return fhe.FheUint64, nil
	case confidential.Uint128:
		return fhe.FheUint128, nil
	case confidential.Uint256:
		return fhe.FheUint256, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedWidth, w)
	}
}

// Evaluator runs confidential amount arithmetic on TFHE ciphertexts.
type Evaluator struct {
	db database.Database
}

var _ confidential.Backend = (*Evaluator)(nil)

// NewEvaluator initializes the TFHE keys on first use and returns a
// backend that persists ciphertexts in db.
func NewEvaluator(db database.Database) (*Evaluator, error) {
	if err := initTFHE(); err != nil {
		return nil, fmt.Errorf("tfhe init: %w", err)
	}
	return &Evaluator{db: db}, nil
}

// PublicKey returns the serialized network public key.
func (e *Evaluator) PublicKey() ([]byte, error) {
	if publicKey == nil {
		return nil, errors.New("tfhe public key unavailable")
	}
	return publicKey.MarshalBinary()
}

func (e *Evaluator) Encrypt(ctx context.Context, v uint64, w confidential.Width) (common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}
	if w == confidential.Bool {
		// Bool constants go through Eq so they share the comparison encoding.
		var bit uint64
		if v != 0 {
			bit = 1
		}
		ct := encryptor.EncryptUint64(bit, fhe.FheUint8)
		one := encryptor.EncryptUint64(1, fhe.FheUint8)
		b, err := evaluator.Eq(ct, one)
		if err != nil {
			return common.Hash{}, err
		}
		return e.putBool(b)
	}
	t, err := tfheType(w)
	if err != nil {
		return common.Hash{}, err
	}
	return e.putUint(encryptor.EncryptUint64(v, t), w)
}

func (e *Evaluator) Add(ctx context.Context, a, b common.Hash) (common.Hash, error) {
	return e.binary(ctx, a, b, evaluator.Add)
}

func (e *Evaluator) Sub(ctx context.Context, a, b common.Hash) (common.Hash, error) {
	return e.binary(ctx, a, b, evaluator.Sub)
}

func (e *Evaluator) Mul(ctx context.Context, a, b common.Hash) (common.Hash, error) {
	return e.binary(ctx, a, b, evaluator.Mul)
}

func (e *Evaluator) Div(ctx context.Context, a, b common.Hash) (common.Hash, error) {
	return e.binary(ctx, a, b, evaluator.Div)
}

func (e *Evaluator) ScalarMul(ctx context.Context, a common.Hash, k uint64) (common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}
	ct, w, err := e.loadUint(a)
	if err != nil {
		return common.Hash{}, err
	}
	result, err := evaluator.ScalarMul(ct, k)
	if err != nil {
		return common.Hash{}, err
	}
	return e.putUint(result, w)
}

func (e *Evaluator) ScalarDiv(ctx context.Context, a common.Hash, k uint64) (common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}
	ct, w, err := e.loadUint(a)
	if err != nil {
		return common.Hash{}, err
	}
	t, err := tfheType(w)
	if err != nil {
		return common.Hash{}, err
	}
	if k == 0 {
		return e.putUint(evaluator.MaxValue(t), w)
	}
	// Encrypt the scalar and use encrypted division
	result, err := evaluator.Div(ct, encryptor.EncryptUint64(k, t))
	if err != nil {
		return common.Hash{}, err
	}
	return e.putUint(result, w)
}

func (e *Evaluator) Lt(ctx context.Context, a, b common.Hash) (common.Hash, error) {
	return e.compare(ctx, a, b, evaluator.Lt)
}

func (e *Evaluator) Eq(ctx context.Context, a, b common.Hash) (common.Hash, error) {
	return e.compare(ctx, a, b, evaluator.Eq)
}

func (e *Evaluator) Select(ctx context.Context, pred, a, b common.Hash) (common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}
	ctrl, err := e.loadBool(pred)
	if err != nil {
		return common.Hash{}, err
	}
	l, r, w, err := e.loadPair(a, b)
	if err != nil {
		return common.Hash{}, err
	}
	result, err := evaluator.Select(ctrl, l, r)
	if err != nil {
		return common.Hash{}, err
	}
	return e.putUint(result, w)
}

func (e *Evaluator) Cast(ctx context.Context, a common.Hash, w confidential.Width) (common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}
	if w == confidential.Bool {
		return common.Hash{}, fmt.Errorf("%w: cast to %s", ErrUnsupportedWidth, w)
	}
	ct, _, err := e.loadUint(a)
	if err != nil {
		return common.Hash{}, err
	}
	t, err := tfheType(w)
	if err != nil {
		return common.Hash{}, err
	}
	// CastTo returns *BitCiphertext directly (no error)
	return e.putUint(evaluator.CastTo(ct, t), w)
}

func (e *Evaluator) Reveal(ctx context.Context, pred common.Hash) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ct, err := e.loadBool(pred)
	if err != nil {
		return false, err
	}
	return decryptor.DecryptUint64(fhe.WrapBoolCiphertext(ct)) != 0, nil
}

func (e *Evaluator) Disclose(ctx context.Context, a common.Hash) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	ct, w, err := e.loadUint(a)
	if err != nil {
		return 0, err
	}
	if w != confidential.Uint64 {
		return 0, fmt.Errorf("%w: disclose %s", confidential.ErrWidthMismatch, w)
	}
	return decryptor.DecryptUint64(ct), nil
}

// Internal Functions

type bitOp func(lhs, rhs *fhe.BitCiphertext) (*fhe.BitCiphertext, error)

type cmpOp func(lhs, rhs *fhe.BitCiphertext) (*fhe.Ciphertext, error)

func (e *Evaluator) binary(ctx context.Context, a, b common.Hash, op bitOp) (common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}
	l, r, w, err := e.loadPair(a, b)
	if err != nil {
		return common.Hash{}, err
	}
	result, err := op(l, r)
	if err != nil {
		return common.Hash{}, err
	}
	return e.putUint(result, w)
}

func (e *Evaluator) compare(ctx context.Context, a, b common.Hash, op cmpOp) (common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}
	l, r, _, err := e.loadPair(a, b)
	if err != nil {
		return common.Hash{}, err
	}
	result, err := op(l, r)
	if err != nil {
		return common.Hash{}, err
	}
	return e.putBool(result)
}

func (e *Evaluator) loadPair(a, b common.Hash) (*fhe.BitCiphertext, *fhe.BitCiphertext, confidential.Width, error) {
	l, lw, err := e.loadUint(a)
	if err != nil {
		return nil, nil, 0, err
	}
	r, rw, err := e.loadUint(b)
	if err != nil {
		return nil, nil, 0, err
	}
	if lw != rw {
		return nil, nil, 0, fmt.Errorf("%w: %s vs %s", confidential.ErrWidthMismatch, lw, rw)
	}
	return l, r, lw, nil
}

func (e *Evaluator) loadUint(h common.Hash) (*fhe.BitCiphertext, confidential.Width, error) {
	w, data, err := e.load(h)
	if err != nil {
		return nil, 0, err
	}
	if w == confidential.Bool {
		return nil, 0, fmt.Errorf("%w: expected integer", confidential.ErrWidthMismatch)
	}
	ct := deserializeBitCiphertext(data)
	if ct == nil {
		return nil, 0, ErrCorruptCiphertext
	}
	return ct, w, nil
}

func (e *Evaluator) loadBool(h common.Hash) (*fhe.Ciphertext, error) {
	w, data, err := e.load(h)
	if err != nil {
		return nil, err
	}
	if w != confidential.Bool {
		return nil, confidential.ErrNotPredicate
	}
	ct := deserializeCiphertext(data)
	if ct == nil {
		return nil, ErrCorruptCiphertext
	}
	return ct, nil
}

func (e *Evaluator) putUint(ct *fhe.BitCiphertext, w confidential.Width) (common.Hash, error) {
	data := serializeBitCiphertext(ct)
	if data == nil {
		return common.Hash{}, ErrCorruptCiphertext
	}
	return e.put(w, data)
}

func (e *Evaluator) putBool(ct *fhe.Ciphertext) (common.Hash, error) {
	data := serializeCiphertext(ct)
	if data == nil {
		return common.Hash{}, ErrCorruptCiphertext
	}
	return e.put(confidential.Bool, data)
}
