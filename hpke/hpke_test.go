// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hpke

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	pk, sk, err := GenerateKeyPair()
	require.NoError(t, err)

	plaintext := []byte("Hello, HPKE!")
	info := []byte("test info")
	aad := []byte("additional data")

	sealed, err := Seal(pk, info, aad, plaintext)
	require.NoError(t, err)
	require.Len(t, sealed.Enc, 32)
	require.NotEqual(t, plaintext, sealed.Ciphertext)

	got, err := Open(sk, info, aad, sealed)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestOpenRejects(t *testing.T) {
	pk, sk, err := GenerateKeyPair()
	require.NoError(t, err)
	_, otherSK, err := GenerateKeyPair()
	require.NoError(t, err)

	info := []byte("info")
	aad := []byte("aad")
	sealed, err := Seal(pk, info, aad, []byte("secret"))
	require.NoError(t, err)

	_, err = Open(sk, info, []byte("other aad"), sealed)
	require.ErrorIs(t, err, ErrDecryptionFailed)

	_, err = Open(sk, []byte("other info"), aad, sealed)
	require.ErrorIs(t, err, ErrDecryptionFailed)

	_, err = Open(otherSK, info, aad, sealed)
	require.ErrorIs(t, err, ErrDecryptionFailed)

	tampered := &Sealed{Enc: sealed.Enc, Ciphertext: append([]byte{}, sealed.Ciphertext...)}
	tampered.Ciphertext[0] ^= 0xff
	_, err = Open(sk, info, aad, tampered)
	require.ErrorIs(t, err, ErrDecryptionFailed)

	_, err = Open(sk, info, aad, &Sealed{Enc: []byte{1, 2, 3}})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = Open(sk, info, aad, nil)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestInvalidKeys(t *testing.T) {
	_, err := Seal([]byte{0x01}, nil, nil, []byte("x"))
	require.ErrorIs(t, err, ErrInvalidKey)
	require.ErrorIs(t, ValidatePublicKey([]byte{0x01}), ErrInvalidKey)

	pk, _, err := GenerateKeyPair()
	require.NoError(t, err)
	require.NoError(t, ValidatePublicKey(pk))
	sealed, err := Seal(pk, nil, nil, []byte("x"))
	require.NoError(t, err)
	_, err = Open([]byte{0x01}, nil, nil, sealed)
	require.ErrorIs(t, err, ErrInvalidKey)
}
