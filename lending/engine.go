// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lending

import (
	"context"
	"fmt"
	"sync"

	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"

	"github.com/luxfi/clend/confidential"
	"github.com/luxfi/clend/ledger"
)

// Engine exposes the lending protocol surface. Every mutating operation is
// all-or-nothing: it reads its records fresh, plans its ledger transfers,
// applies them, and commits the records once. Any failure unwinds the
// applied transfers and leaves persisted state untouched.
type Engine struct {
	mu sync.Mutex

	config  Config
	store   *Store
	ledger  ledger.Ledger
	arith   *confidential.Arith
	oracle  PriceOracle
	auth    Authorizer
	log     log.Logger
	metrics *Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithAuthorizer replaces the default ContextAuthorizer.
func WithAuthorizer(a Authorizer) Option {
	return func(e *Engine) { e.auth = a }
}

// WithLogger sets the engine logger.
func WithLogger(l log.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithMetrics sets the engine collectors.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine wires an engine over db for records, l for balances and arith
// for confidential arithmetic. arith must share its backend with l.
func NewEngine(
	cfg Config,
	db database.Database,
	l ledger.Ledger,
	arith *confidential.Arith,
	oracle PriceOracle,
	opts ...Option,
) (*Engine, error) {
	if err := cfg.Verify(); err != nil {
		return nil, err
	}
	e := &Engine{
		config: cfg,
		store:  NewStore(db),
		ledger: l,
		arith:  arith,
		oracle: oracle,
		auth:   ContextAuthorizer{},
		log:    log.Root(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// =========================================================================
// View Functions
// =========================================================================

// GetPool returns the pool record id.
func (e *Engine) GetPool(id common.Hash) (*Pool, error) {
	return e.store.Pool(id)
}

// GetLoan returns borrower's loan record in pool.
func (e *Engine) GetLoan(pool common.Hash, borrower common.Address) (*Loan, error) {
	return e.store.Loan(LoanID(pool, borrower))
}

// IsLiquidatable reports whether a third party may currently repay the
// loan. It is the only public fact about a loan's risk.
func (e *Engine) IsLiquidatable(ctx context.Context, pool common.Hash, borrower common.Address) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, loan, err := e.loadLoan(pool, borrower)
	if err != nil {
		return false, err
	}
	slot, err := e.ledger.CurrentSlot(ctx)
	if err != nil {
		return false, err
	}
	return e.healthFactorBelowOne(ctx, p, loan, slot)
}

// =========================================================================
// Internal Functions
// =========================================================================

// run serializes op and records its outcome.
func (e *Engine) run(op string, fn func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	err := fn()
	e.metrics.observeOperation(op, err)
	if err != nil {
		e.log.Debug("lending operation rejected", "op", op, "kind", KindOf(err).String(), "err", err)
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (e *Engine) authorize(ctx context.Context, principal common.Address) error {
	if !e.auth.CallerIs(ctx, principal) {
		return ErrUnauthorized
	}
	return nil
}

func (e *Engine) loadLoan(pool common.Hash, borrower common.Address) (*Pool, *Loan, error) {
	p, err := e.store.Pool(pool)
	if err != nil {
		return nil, nil, err
	}
	loan, err := e.store.Loan(LoanID(pool, borrower))
	if err != nil {
		return nil, nil, err
	}
	return p, loan, nil
}

// requireAccount checks that ref is an open account of asset held by owner.
func (e *Engine) requireAccount(ctx context.Context, ref common.Hash, owner, asset common.Address) error {
	acc, err := e.ledger.Account(ctx, ref)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAccount, err)
	}
	if !acc.Open || acc.Owner != owner || acc.Asset != asset {
		return ErrInvalidAccount
	}
	return nil
}

func (e *Engine) settlement(op string) *settlement {
	return newSettlement(op, e.ledger, e.log, e.metrics)
}

func (e *Engine) balance(ctx context.Context, ref common.Hash) (confidential.Value, error) {
	v, err := e.ledger.ReadBalance(ctx, ref)
	if err != nil {
		return confidential.Value{}, fmt.Errorf("read balance: %w", err)
	}
	return v, nil
}
