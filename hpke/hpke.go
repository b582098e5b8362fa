// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package hpke seals short payloads to a recipient public key with RFC 9180
// base mode, DHKEM(X25519, HKDF-SHA256) / HKDF-SHA256 / ChaCha20-Poly1305.
package hpke

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/cloudflare/circl/hpke"
)

const (
	kemID  = hpke.KEM_X25519_HKDF_SHA256
	kdfID  = hpke.KDF_HKDF_SHA256
	aeadID = hpke.AEAD_ChaCha20Poly1305
)

var (
	suite = hpke.NewSuite(kemID, kdfID, aeadID)

	ErrInvalidKey       = errors.New("invalid HPKE key")
	ErrInvalidInput     = errors.New("invalid HPKE input")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// Sealed is an encapsulated key and the ciphertext sealed under it.
type Sealed struct {
	Enc        []byte
	Ciphertext []byte
}

// GenerateKeyPair returns a fresh recipient key pair in binary form.
func GenerateKeyPair() (publicKey, privateKey []byte, err error) {
	pk, sk, err := kemID.Scheme().GenerateKeyPair()
	if err != nil {
		return nil, nil, err
	}
	if publicKey, err = pk.MarshalBinary(); err != nil {
		return nil, nil, err
	}
	if privateKey, err = sk.MarshalBinary(); err != nil {
		return nil, nil, err
	}
	return publicKey, privateKey, nil
}

// ValidatePublicKey reports whether publicKey is a usable recipient key.
func ValidatePublicKey(publicKey []byte) error {
	if _, err := kemID.Scheme().UnmarshalBinaryPublicKey(publicKey); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	return nil
}

// Seal encrypts plaintext to publicKey. info separates application
// contexts; aad is authenticated but not encrypted.
func Seal(publicKey, info, aad, plaintext []byte) (*Sealed, error) {
	pk, err := kemID.Scheme().UnmarshalBinaryPublicKey(publicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	sender, err := suite.NewSender(pk, info)
	if err != nil {
		return nil, err
	}
	enc, sealer, err := sender.Setup(rand.Reader)
	if err != nil {
		return nil, err
	}
	ct, err := sealer.Seal(plaintext, aad)
	if err != nil {
		return nil, err
	}
	return &Sealed{Enc: enc, Ciphertext: ct}, nil
}

// Open decrypts sealed with privateKey. info and aad must match the values
// given to Seal.
func Open(privateKey, info, aad []byte, sealed *Sealed) ([]byte, error) {
	if sealed == nil || len(sealed.Enc) != kemID.Scheme().CiphertextSize() {
		return nil, ErrInvalidInput
	}
	sk, err := kemID.Scheme().UnmarshalBinaryPrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	receiver, err := suite.NewReceiver(sk, info)
	if err != nil {
		return nil, err
	}
	opener, err := receiver.Setup(sealed.Enc)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	plaintext, err := opener.Open(sealed.Ciphertext, aad)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}
