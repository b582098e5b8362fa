// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package confidential provides opaque encrypted amounts and the checked
// arithmetic the lending engine runs over them. Plaintext reaches control
// flow only through labelled boolean reveals.
package confidential

import (
	"errors"
	"fmt"

	"github.com/luxfi/geth/common"
)

// Width is the plaintext bit width of an encrypted value.
type Width uint8

const (
	Bool Width = iota + 1
	Uint64
	Uint128
	Uint256
)

// Bits returns the number of plaintext bits carried by w.
func (w Width) Bits() uint {
	switch w {
	case Bool:
		return 1
	case Uint64:
		return 64
	case Uint128:
		return 128
	case Uint256:
		return 256
	default:
		return 0
	}
}

func (w Width) String() string {
	switch w {
	case Bool:
		return "ebool"
	case Uint64:
		return "euint64"
	case Uint128:
		return "euint128"
	case Uint256:
		return "euint256"
	default:
		return fmt.Sprintf("width(%d)", uint8(w))
	}
}

var (
	ErrUnknownHandle = errors.New("unknown ciphertext handle")
	ErrWidthMismatch = errors.New("ciphertext width mismatch")
	ErrNotPredicate  = errors.New("ciphertext is not a boolean predicate")
)

// Value is an opaque reference to an encrypted amount held by a Backend.
type Value struct {
	Handle common.Hash
	Width  Width
}

// IsNil reports whether v references no ciphertext.
func (v Value) IsNil() bool {
	return v.Handle == (common.Hash{})
}

func (v Value) String() string {
	return fmt.Sprintf("%s(%s)", v.Width, v.Handle.TerminalString())
}

// Ordering is the only fact CompareAndReveal discloses about two values.
type Ordering int8

const (
	Less    Ordering = -1
	Equal   Ordering = 0
	Greater Ordering = 1
)

func (o Ordering) String() string {
	switch o {
	case Less:
		return "less"
	case Equal:
		return "equal"
	default:
		return "greater"
	}
}

// Predicate drives a confidential select. It is either a boolean that has
// already been revealed or an encrypted boolean that never leaves the
// backend.
type Predicate struct {
	revealed  bool
	known     bool
	encrypted Value
}

// Revealed wraps a boolean that is already public.
func Revealed(b bool) Predicate {
	return Predicate{revealed: b, known: true}
}

// Encrypted wraps an encrypted boolean.
func Encrypted(v Value) Predicate {
	return Predicate{encrypted: v}
}

// IsRevealed reports whether the predicate carries a public boolean.
func (p Predicate) IsRevealed() bool {
	return p.known
}
