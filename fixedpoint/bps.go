// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fixedpoint holds the basis-point scale, the plaintext parameter
// checks, and the arithmetic errors shared by the confidential layers.
// Wide intermediates over encrypted amounts live in package confidential;
// every division there truncates toward zero.
package fixedpoint

import (
	"errors"
	"math"
)

// BasisPoints is the fixed-point scale: 10_000 bps == 100%.
const BasisPoints = 10_000

var (
	ErrDivisionByZero = errors.New("division by zero")
	ErrOverflow       = errors.New("arithmetic overflow")
	ErrUnderflow      = errors.New("arithmetic underflow")
	ErrBpsOutOfRange  = errors.New("basis points out of range")
)

// ValidateBps reports whether bps is within [0, BasisPoints].
func ValidateBps(bps uint16) error {
	if bps > BasisPoints {
		return ErrBpsOutOfRange
	}
	return nil
}

// Mul returns a*b, failing on overflow. It forms the plaintext numerators
// and denominators handed to confidential scaling.
func Mul(a, b uint64) (uint64, error) {
	if a != 0 && b > math.MaxUint64/a {
		return 0, ErrOverflow
	}
	return a * b, nil
}
