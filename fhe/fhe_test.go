// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"context"
	"testing"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/fhe"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/clend/confidential"
)

func newTestEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	if testing.Short() {
		t.Skip("TFHE bootstrapping is slow; skipped in short mode")
	}
	e, err := NewEvaluator(memdb.New())
	require.NoError(t, err, "TFHE initialization should succeed")
	return e
}

// TestTFHEInitialization tests that the TFHE components initialize correctly
func TestTFHEInitialization(t *testing.T) {
	e := newTestEvaluator(t)
	require.NotNil(t, evaluator, "evaluator should be initialized")
	require.NotNil(t, encryptor, "encryptor should be initialized")
	require.NotNil(t, decryptor, "decryptor should be initialized")

	pk, err := e.PublicKey()
	require.NoError(t, err)
	require.NotEmpty(t, pk)
}

// TestTFHETypeMapping tests width to TFHE type mapping
func TestTFHETypeMapping(t *testing.T) {
	tests := []struct {
		name     string
		width    confidential.Width
		expected fhe.FheUintType
	}{
		{"bool", confidential.Bool, fhe.FheBool},
		{"uint64", confidential.Uint64, fhe.FheUint64},
		{"uint128", confidential.Uint128, fhe.FheUint128},
		{"uint256", confidential.Uint256, fhe.FheUint256},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tfheType(tt.width)
			require.NoError(t, err)
			require.Equal(t, tt.expected, result)
		})
	}

	_, err := tfheType(confidential.Width(0))
	require.ErrorIs(t, err, ErrUnsupportedWidth)
}

func TestEncryptDisclose(t *testing.T) {
	e := newTestEvaluator(t)
	ctx := context.Background()

	for _, v := range []uint64{0, 1, 255, 12345678} {
		h, err := e.Encrypt(ctx, v, confidential.Uint64)
		require.NoError(t, err)
		got, err := e.Disclose(ctx, h)
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestArithmetic(t *testing.T) {
	e := newTestEvaluator(t)
	ctx := context.Background()

	enc := func(v uint64) common.Hash {
		h, err := e.Encrypt(ctx, v, confidential.Uint64)
		require.NoError(t, err)
		return h
	}
	disclose := func(h common.Hash) uint64 {
		v, err := e.Disclose(ctx, h)
		require.NoError(t, err)
		return v
	}

	sum, err := e.Add(ctx, enc(50), enc(5))
	require.NoError(t, err)
	require.Equal(t, uint64(55), disclose(sum))

	diff, err := e.Sub(ctx, enc(60), enc(55))
	require.NoError(t, err)
	require.Equal(t, uint64(5), disclose(diff))

	scaled, err := e.ScalarMul(ctx, enc(50), 5000)
	require.NoError(t, err)
	q, err := e.ScalarDiv(ctx, scaled, 10_000)
	require.NoError(t, err)
	require.Equal(t, uint64(25), disclose(q))
}

func TestCompareSelectReveal(t *testing.T) {
	e := newTestEvaluator(t)
	ctx := context.Background()

	a, err := e.Encrypt(ctx, 60, confidential.Uint64)
	require.NoError(t, err)
	b, err := e.Encrypt(ctx, 55, confidential.Uint64)
	require.NoError(t, err)

	lt, err := e.Lt(ctx, a, b)
	require.NoError(t, err)
	revealed, err := e.Reveal(ctx, lt)
	require.NoError(t, err)
	require.False(t, revealed)

	// min(a, b) without revealing the predicate
	m, err := e.Select(ctx, lt, a, b)
	require.NoError(t, err)
	v, err := e.Disclose(ctx, m)
	require.NoError(t, err)
	require.Equal(t, uint64(55), v)

	tru, err := e.Encrypt(ctx, 1, confidential.Bool)
	require.NoError(t, err)
	revealed, err = e.Reveal(ctx, tru)
	require.NoError(t, err)
	require.True(t, revealed)

	_, err = e.Reveal(ctx, a)
	require.ErrorIs(t, err, confidential.ErrNotPredicate)
}

func TestCastRoundTrip(t *testing.T) {
	e := newTestEvaluator(t)
	ctx := context.Background()

	h, err := e.Encrypt(ctx, 42, confidential.Uint64)
	require.NoError(t, err)
	wide, err := e.Cast(ctx, h, confidential.Uint128)
	require.NoError(t, err)
	narrow, err := e.Cast(ctx, wide, confidential.Uint64)
	require.NoError(t, err)
	v, err := e.Disclose(ctx, narrow)
	require.NoError(t, err)
	require.Equal(t, uint64(42), v)

	_, err = e.Disclose(ctx, wide)
	require.ErrorIs(t, err, confidential.ErrWidthMismatch)
}

func TestUnknownHandle(t *testing.T) {
	e := newTestEvaluator(t)
	_, err := e.Disclose(context.Background(), common.HexToHash("0x01"))
	require.ErrorIs(t, err, confidential.ErrUnknownHandle)
}

func TestCancelledContext(t *testing.T) {
	e := newTestEvaluator(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Encrypt(ctx, 1, confidential.Uint64)
	require.ErrorIs(t, err, context.Canceled)
}

// TestArithOverTFHE runs the checked amount layer on real ciphertexts.
func TestArithOverTFHE(t *testing.T) {
	e := newTestEvaluator(t)
	ctx := context.Background()
	a := confidential.NewArith(e)

	collateral, err := a.Const(ctx, 50)
	require.NoError(t, err)
	price, err := a.Const(ctx, 2)
	require.NoError(t, err)

	maxLoan, err := a.MulScale(ctx, collateral, price, 5000, 10_000)
	require.NoError(t, err)
	v, err := a.Disclose(ctx, maxLoan)
	require.NoError(t, err)
	require.Equal(t, uint64(50), v)
}
