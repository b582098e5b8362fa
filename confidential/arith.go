// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package confidential

import (
	"context"
	"fmt"

	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/clend/fixedpoint"
)

// Reveal labels used by Arith itself. Callers declare their own labels for
// CompareAndReveal, LessThan and IsZero.
const (
	LabelAddOverflow    = "add.overflow"
	LabelSubUnderflow   = "sub.underflow"
	LabelNarrowOverflow = "narrow.overflow"
	LabelDivisorZero    = "divisor.zero"
	LabelDisclose       = "owner.disclose"
)

// Arith runs checked amount arithmetic over a Backend. Every value it
// returns is a Uint64 amount unless stated otherwise; wider widths only
// appear as intermediates.
type Arith struct {
	backend Backend
	log     log.Logger
	reveals *prometheus.CounterVec
}

// Option configures an Arith.
type Option func(*Arith)

// WithLogger sets the logger used for reveal tracing.
func WithLogger(l log.Logger) Option {
	return func(a *Arith) { a.log = l }
}

// WithRegisterer registers the reveal counter on reg.
func WithRegisterer(reg prometheus.Registerer, namespace string) Option {
	return func(a *Arith) {
		a.reveals = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "confidential_reveals_total",
			Help:      "Count of boolean reveals by declared label.",
		}, []string{"label"})
		if reg != nil {
			reg.MustRegister(a.reveals)
		}
	}
}

// NewArith returns checked arithmetic over backend.
func NewArith(backend Backend, opts ...Option) *Arith {
	a := &Arith{
		backend: backend,
		log:     log.Root(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Backend returns the underlying primitive set.
func (a *Arith) Backend() Backend {
	return a.backend
}

// Const encrypts a public amount.
func (a *Arith) Const(ctx context.Context, v uint64) (Value, error) {
	h, err := a.backend.Encrypt(ctx, v, Uint64)
	if err != nil {
		return Value{}, fmt.Errorf("encrypt: %w", err)
	}
	return Value{Handle: h, Width: Uint64}, nil
}

// Zero returns a fresh encryption of 0.
func (a *Arith) Zero(ctx context.Context) (Value, error) {
	return a.Const(ctx, 0)
}

// Add returns x+y, failing with fixedpoint.ErrOverflow when the sum wraps.
func (a *Arith) Add(ctx context.Context, x, y Value) (Value, error) {
	if err := sameWidth(x, y); err != nil {
		return Value{}, err
	}
	sum, err := a.backend.Add(ctx, x.Handle, y.Handle)
	if err != nil {
		return Value{}, err
	}
	s := Value{Handle: sum, Width: x.Width}
	wrapped, err := a.lessThan(ctx, s, x, LabelAddOverflow)
	if err != nil {
		return Value{}, err
	}
	if wrapped {
		return Value{}, fixedpoint.ErrOverflow
	}
	return s, nil
}

// Sub returns x-y, failing with fixedpoint.ErrUnderflow when y > x. Only
// the failure itself is observable.
func (a *Arith) Sub(ctx context.Context, x, y Value) (Value, error) {
	if err := sameWidth(x, y); err != nil {
		return Value{}, err
	}
	under, err := a.lessThan(ctx, x, y, LabelSubUnderflow)
	if err != nil {
		return Value{}, err
	}
	if under {
		return Value{}, fixedpoint.ErrUnderflow
	}
	d, err := a.backend.Sub(ctx, x.Handle, y.Handle)
	if err != nil {
		return Value{}, err
	}
	return Value{Handle: d, Width: x.Width}, nil
}

// Scale returns floor(x*num/den) with a 128-bit intermediate.
func (a *Arith) Scale(ctx context.Context, x Value, num, den uint64) (Value, error) {
	if den == 0 {
		return Value{}, fixedpoint.ErrDivisionByZero
	}
	w, err := a.cast(ctx, x, Uint128)
	if err != nil {
		return Value{}, err
	}
	if w, err = a.scalarMul(ctx, w, num); err != nil {
		return Value{}, err
	}
	if w, err = a.scalarDiv(ctx, w, den); err != nil {
		return Value{}, err
	}
	return a.narrow(ctx, w)
}

// MulScale returns floor(x*y*num/den) with a 256-bit intermediate. It is
// the price-weighted form of Scale.
func (a *Arith) MulScale(ctx context.Context, x, y Value, num, den uint64) (Value, error) {
	if den == 0 {
		return Value{}, fixedpoint.ErrDivisionByZero
	}
	wx, err := a.cast(ctx, x, Uint256)
	if err != nil {
		return Value{}, err
	}
	wy, err := a.cast(ctx, y, Uint256)
	if err != nil {
		return Value{}, err
	}
	p, err := a.backend.Mul(ctx, wx.Handle, wy.Handle)
	if err != nil {
		return Value{}, err
	}
	w := Value{Handle: p, Width: Uint256}
	if w, err = a.scalarMul(ctx, w, num); err != nil {
		return Value{}, err
	}
	if w, err = a.scalarDiv(ctx, w, den); err != nil {
		return Value{}, err
	}
	return a.narrow(ctx, w)
}

// DivScale returns floor(x*num / (y*ynum)). A zero divisor is detected
// through a declared reveal and fails with fixedpoint.ErrDivisionByZero.
func (a *Arith) DivScale(ctx context.Context, x Value, num uint64, y Value, ynum uint64) (Value, error) {
	if ynum == 0 {
		return Value{}, fixedpoint.ErrDivisionByZero
	}
	wy, err := a.cast(ctx, y, Uint128)
	if err != nil {
		return Value{}, err
	}
	if wy, err = a.scalarMul(ctx, wy, ynum); err != nil {
		return Value{}, err
	}
	wx, err := a.cast(ctx, x, Uint128)
	if err != nil {
		return Value{}, err
	}
	if wx, err = a.scalarMul(ctx, wx, num); err != nil {
		return Value{}, err
	}
	return a.divide(ctx, wx, wy)
}

// ScaleByRatio returns floor(x*num/den) where the ratio itself is
// encrypted.
func (a *Arith) ScaleByRatio(ctx context.Context, x, num, den Value) (Value, error) {
	wx, err := a.cast(ctx, x, Uint128)
	if err != nil {
		return Value{}, err
	}
	wn, err := a.cast(ctx, num, Uint128)
	if err != nil {
		return Value{}, err
	}
	wd, err := a.cast(ctx, den, Uint128)
	if err != nil {
		return Value{}, err
	}
	p, err := a.backend.Mul(ctx, wx.Handle, wn.Handle)
	if err != nil {
		return Value{}, err
	}
	return a.divide(ctx, Value{Handle: p, Width: Uint128}, wd)
}

// Lt returns the encrypted predicate x < y without revealing it.
func (a *Arith) Lt(ctx context.Context, x, y Value) (Predicate, error) {
	if err := sameWidth(x, y); err != nil {
		return Predicate{}, err
	}
	h, err := a.backend.Lt(ctx, x.Handle, y.Handle)
	if err != nil {
		return Predicate{}, err
	}
	return Encrypted(Value{Handle: h, Width: Bool}), nil
}

// Min returns the smaller of x and y obliviously: no reveal takes place.
func (a *Arith) Min(ctx context.Context, x, y Value) (Value, error) {
	p, err := a.Lt(ctx, x, y)
	if err != nil {
		return Value{}, err
	}
	return a.Select(ctx, p, x, y)
}

// Select returns a fresh ciphertext equal to x when p holds, else y.
// Revealed predicates are re-encrypted so the result is never the input
// handle.
func (a *Arith) Select(ctx context.Context, p Predicate, x, y Value) (Value, error) {
	if err := sameWidth(x, y); err != nil {
		return Value{}, err
	}
	pred := p.encrypted
	if p.known {
		var bit uint64
		if p.revealed {
			bit = 1
		}
		h, err := a.backend.Encrypt(ctx, bit, Bool)
		if err != nil {
			return Value{}, err
		}
		pred = Value{Handle: h, Width: Bool}
	}
	if pred.Width != Bool {
		return Value{}, ErrNotPredicate
	}
	h, err := a.backend.Select(ctx, pred.Handle, x.Handle, y.Handle)
	if err != nil {
		return Value{}, err
	}
	return Value{Handle: h, Width: x.Width}, nil
}

// CompareAndReveal discloses the ordering of x and y and nothing else.
func (a *Arith) CompareAndReveal(ctx context.Context, x, y Value, label string) (Ordering, error) {
	lt, err := a.LessThan(ctx, x, y, label)
	if err != nil {
		return 0, err
	}
	if lt {
		return Less, nil
	}
	eqh, err := a.backend.Eq(ctx, x.Handle, y.Handle)
	if err != nil {
		return 0, err
	}
	eq, err := a.reveal(ctx, eqh, label+".eq")
	if err != nil {
		return 0, err
	}
	if eq {
		return Equal, nil
	}
	return Greater, nil
}

// LessThan reveals x < y.
func (a *Arith) LessThan(ctx context.Context, x, y Value, label string) (bool, error) {
	if err := sameWidth(x, y); err != nil {
		return false, err
	}
	return a.lessThan(ctx, x, y, label+".lt")
}

// IsZero reveals x == 0.
func (a *Arith) IsZero(ctx context.Context, x Value, label string) (bool, error) {
	return a.isZero(ctx, x, label+".zero")
}

func (a *Arith) isZero(ctx context.Context, x Value, label string) (bool, error) {
	z, err := a.backend.Encrypt(ctx, 0, x.Width)
	if err != nil {
		return false, err
	}
	h, err := a.backend.Eq(ctx, x.Handle, z)
	if err != nil {
		return false, err
	}
	return a.reveal(ctx, h, label)
}

// Disclose decrypts an amount for its owner. The plaintext must only be
// handed back to the owner, sealed.
func (a *Arith) Disclose(ctx context.Context, x Value) (uint64, error) {
	if x.Width != Uint64 {
		return 0, fmt.Errorf("%w: disclose %s", ErrWidthMismatch, x.Width)
	}
	a.observe(LabelDisclose)
	return a.backend.Disclose(ctx, x.Handle)
}

// Internal Functions

func (a *Arith) lessThan(ctx context.Context, x, y Value, label string) (bool, error) {
	h, err := a.backend.Lt(ctx, x.Handle, y.Handle)
	if err != nil {
		return false, err
	}
	return a.reveal(ctx, h, label)
}

func (a *Arith) reveal(ctx context.Context, pred common.Hash, label string) (bool, error) {
	a.observe(label)
	return a.backend.Reveal(ctx, pred)
}

func (a *Arith) observe(label string) {
	a.log.Debug("confidential reveal", "label", label)
	if a.reveals != nil {
		a.reveals.WithLabelValues(label).Inc()
	}
}

func (a *Arith) cast(ctx context.Context, x Value, w Width) (Value, error) {
	if x.Width == w {
		return x, nil
	}
	h, err := a.backend.Cast(ctx, x.Handle, w)
	if err != nil {
		return Value{}, err
	}
	return Value{Handle: h, Width: w}, nil
}

func (a *Arith) scalarMul(ctx context.Context, x Value, k uint64) (Value, error) {
	h, err := a.backend.ScalarMul(ctx, x.Handle, k)
	if err != nil {
		return Value{}, err
	}
	return Value{Handle: h, Width: x.Width}, nil
}

func (a *Arith) scalarDiv(ctx context.Context, x Value, k uint64) (Value, error) {
	h, err := a.backend.ScalarDiv(ctx, x.Handle, k)
	if err != nil {
		return Value{}, err
	}
	return Value{Handle: h, Width: x.Width}, nil
}

// divide returns narrow(x/y) for same-width wide operands.
func (a *Arith) divide(ctx context.Context, x, y Value) (Value, error) {
	zero, err := a.isZero(ctx, y, LabelDivisorZero)
	if err != nil {
		return Value{}, err
	}
	if zero {
		return Value{}, fixedpoint.ErrDivisionByZero
	}
	q, err := a.backend.Div(ctx, x.Handle, y.Handle)
	if err != nil {
		return Value{}, err
	}
	return a.narrow(ctx, Value{Handle: q, Width: x.Width})
}

// narrow truncates a wide intermediate to Uint64 and reveals only whether
// the truncation lost bits.
func (a *Arith) narrow(ctx context.Context, x Value) (Value, error) {
	if x.Width == Uint64 {
		return x, nil
	}
	n, err := a.backend.Cast(ctx, x.Handle, Uint64)
	if err != nil {
		return Value{}, err
	}
	back, err := a.backend.Cast(ctx, n, x.Width)
	if err != nil {
		return Value{}, err
	}
	eq, err := a.backend.Eq(ctx, back, x.Handle)
	if err != nil {
		return Value{}, err
	}
	fits, err := a.reveal(ctx, eq, LabelNarrowOverflow)
	if err != nil {
		return Value{}, err
	}
	if !fits {
		return Value{}, fixedpoint.ErrOverflow
	}
	return Value{Handle: n, Width: Uint64}, nil
}

func sameWidth(x, y Value) error {
	if x.Width != y.Width {
		return fmt.Errorf("%w: %s vs %s", ErrWidthMismatch, x.Width, y.Width)
	}
	return nil
}
