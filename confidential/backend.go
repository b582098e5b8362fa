// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package confidential

import (
	"context"

	"github.com/luxfi/geth/common"
)

// Backend is the primitive set an encryption scheme must offer.
//
// Arithmetic wraps modulo 2^bits of the operand width and division by an
// encrypted zero yields the width's maximum value; overflow, underflow and
// zero divisors are detected one level up by Arith through declared reveals.
// Binary operations require both operands to share a width.
type Backend interface {
	// Encrypt produces a fresh ciphertext of v at width w.
	Encrypt(ctx context.Context, v uint64, w Width) (common.Hash, error)

	Add(ctx context.Context, a, b common.Hash) (common.Hash, error)
	Sub(ctx context.Context, a, b common.Hash) (common.Hash, error)
	Mul(ctx context.Context, a, b common.Hash) (common.Hash, error)
	Div(ctx context.Context, a, b common.Hash) (common.Hash, error)
	ScalarMul(ctx context.Context, a common.Hash, k uint64) (common.Hash, error)
	ScalarDiv(ctx context.Context, a common.Hash, k uint64) (common.Hash, error)

	// Lt and Eq return encrypted booleans.
	Lt(ctx context.Context, a, b common.Hash) (common.Hash, error)
	Eq(ctx context.Context, a, b common.Hash) (common.Hash, error)

	// Select returns a fresh ciphertext equal to a when pred holds, else b.
	Select(ctx context.Context, pred, a, b common.Hash) (common.Hash, error)

	// Cast truncates or zero-extends a to width w.
	Cast(ctx context.Context, a common.Hash, w Width) (common.Hash, error)

	// Reveal decrypts an encrypted boolean.
	Reveal(ctx context.Context, pred common.Hash) (bool, error)

	// Disclose decrypts a 64-bit amount for its owner. It must never feed
	// protocol control flow.
	Disclose(ctx context.Context, a common.Hash) (uint64, error)
}
