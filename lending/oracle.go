// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lending

import (
	"context"
	"sync"

	"github.com/luxfi/clend/confidential"
)

// PriceOracle quotes the collateral price in asset units per collateral
// unit. Plaintext and encrypted feeds are both surfaced as a
// confidential.Value.
type PriceOracle interface {
	Price(ctx context.Context) (confidential.Value, error)
}

// FixedPrice is a plaintext feed, encrypted on every read.
type FixedPrice struct {
	arith *confidential.Arith
	price uint64
	mu    sync.RWMutex
}

// NewFixedPrice returns a plaintext feed quoting price.
func NewFixedPrice(arith *confidential.Arith, price uint64) *FixedPrice {
	return &FixedPrice{arith: arith, price: price}
}

// SetPrice updates the quote.
func (o *FixedPrice) SetPrice(price uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.price = price
}

func (o *FixedPrice) Price(ctx context.Context) (confidential.Value, error) {
	o.mu.RLock()
	price := o.price
	o.mu.RUnlock()
	return o.arith.Const(ctx, price)
}

// EncryptedPrice is a feed whose quote is already a ciphertext.
type EncryptedPrice struct {
	price confidential.Value
	mu    sync.RWMutex
}

// NewEncryptedPrice returns a feed quoting price.
func NewEncryptedPrice(price confidential.Value) *EncryptedPrice {
	return &EncryptedPrice{price: price}
}

// SetPrice updates the quote.
func (o *EncryptedPrice) SetPrice(price confidential.Value) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.price = price
}

func (o *EncryptedPrice) Price(context.Context) (confidential.Value, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.price, nil
}
