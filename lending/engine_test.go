// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lending

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/clend/confidential"
	"github.com/luxfi/clend/ledger"
)

var (
	owner      = common.HexToAddress("0x1000000000000000000000000000000000000001")
	borrower   = common.HexToAddress("0x2000000000000000000000000000000000000002")
	liquidator = common.HexToAddress("0x3000000000000000000000000000000000000003")
	stranger   = common.HexToAddress("0x4000000000000000000000000000000000000004")

	usdc = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	sol  = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	defaultRates = Rates{
		InterestRateBps:        1000,
		LoanToValueBps:         5000,
		CollateralThresholdBps: 8000,
	}
)

const startSlot = 1_000

var errInjected = errors.New("injected transfer failure")

// faultyLedger fails the n-th Transfer after failAt is armed.
type faultyLedger struct {
	*ledger.Memory

	mu     sync.Mutex
	calls  int
	failAt int
	lag    uint64
}

// CurrentSlot reads the clock lag slots behind the ledger.
func (f *faultyLedger) CurrentSlot(ctx context.Context) (uint64, error) {
	slot, err := f.Memory.CurrentSlot(ctx)
	if err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return slot - f.lag, nil
}

// lagBy makes subsequent clock reads run n slots behind.
func (f *faultyLedger) lagBy(n uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lag = n
}

func (f *faultyLedger) Transfer(ctx context.Context, from, to common.Hash, amount confidential.Value) error {
	f.mu.Lock()
	f.calls++
	fail := f.failAt != 0 && f.calls == f.failAt
	f.mu.Unlock()
	if fail {
		return errInjected
	}
	return f.Memory.Transfer(ctx, from, to, amount)
}

// armAfter makes the n-th transfer from now fail.
func (f *faultyLedger) armAfter(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAt = f.calls + n
}

type harness struct {
	t       *testing.T
	reg     *prometheus.Registry
	arith   *confidential.Arith
	ledger  *faultyLedger
	oracle  *FixedPrice
	metrics *Metrics
	engine  *Engine

	pool     common.Hash
	treasury common.Hash
	funding  common.Hash
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	reg := prometheus.NewRegistry()
	arith := confidential.NewArith(confidential.NewClearBackend(), confidential.WithRegisterer(reg, cfg.MetricsNamespace))
	l := &faultyLedger{Memory: ledger.NewMemory(arith, startSlot)}
	oracle := NewFixedPrice(arith, 2)
	metrics := NewMetrics(reg, cfg.MetricsNamespace)

	engine, err := NewEngine(cfg, memdb.New(), l, arith, oracle,
		WithLogger(log.Root()),
		WithMetrics(metrics),
	)
	require.NoError(t, err)
	return &harness{
		t:       t,
		reg:     reg,
		arith:   arith,
		ledger:  l,
		oracle:  oracle,
		metrics: metrics,
		engine:  engine,
	}
}

func as(p common.Address) context.Context {
	return WithCaller(context.Background(), p)
}

func (h *harness) account(holder, asset common.Address, funds uint64) common.Hash {
	h.t.Helper()
	ctx := context.Background()
	ref, err := h.ledger.MintAccount(ctx, holder, asset)
	require.NoError(h.t, err)
	if funds > 0 {
		require.NoError(h.t, h.ledger.Fund(ctx, ref, funds))
	}
	return ref
}

func (h *harness) amount(v uint64) confidential.Value {
	h.t.Helper()
	c, err := h.arith.Const(context.Background(), v)
	require.NoError(h.t, err)
	return c
}

func (h *harness) balance(ref common.Hash) uint64 {
	h.t.Helper()
	ctx := context.Background()
	b, err := h.ledger.ReadBalance(ctx, ref)
	require.NoError(h.t, err)
	v, err := h.arith.Disclose(ctx, b)
	require.NoError(h.t, err)
	return v
}

func (h *harness) disclose(v confidential.Value) uint64 {
	h.t.Helper()
	out, err := h.arith.Disclose(context.Background(), v)
	require.NoError(h.t, err)
	return out
}

// reveals reads the reveal counter for label.
func (h *harness) reveals(label string) float64 {
	h.t.Helper()
	families, err := h.reg.Gather()
	require.NoError(h.t, err)
	for _, mf := range families {
		if mf.GetName() != "clend_confidential_reveals_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "label" && lp.GetValue() == label {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

// openPool creates the owner's usdc/sol pool and funds its vault.
func (h *harness) openPool(rates Rates, vault uint64) {
	h.t.Helper()
	h.treasury = h.account(owner, usdc, 0)
	h.funding = h.account(owner, usdc, vault)

	id, err := h.engine.InitializeLendingPool(as(owner), PoolParams{
		Owner:      owner,
		Asset:      usdc,
		Collateral: sol,
		Rates:      rates,
		Treasury:   h.treasury,
	})
	require.NoError(h.t, err)
	h.pool = id
	if vault > 0 {
		require.NoError(h.t, h.engine.DepositLiquidity(as(owner), id, h.funding, h.amount(vault)))
	}
}

func (h *harness) vault() uint64 {
	h.t.Helper()
	pool, err := h.engine.GetPool(h.pool)
	require.NoError(h.t, err)
	return h.balance(pool.Vault)
}

func (h *harness) loan(who common.Address) *Loan {
	h.t.Helper()
	loan, err := h.engine.GetLoan(h.pool, who)
	require.NoError(h.t, err)
	return loan
}

func (h *harness) principal(who common.Address) uint64 {
	h.t.Helper()
	return h.disclose(h.loan(who).principal())
}

type wallet struct {
	asset      common.Hash
	collateral common.Hash
}

// openLoan initializes who's loan and deposits collateral from a fresh
// wallet.
func (h *harness) openLoan(who common.Address, collateral uint64) wallet {
	h.t.Helper()
	w := wallet{
		asset:      h.account(who, usdc, 0),
		collateral: h.account(who, sol, collateral),
	}
	require.NoError(h.t, h.engine.InitializeLoan(as(who), h.pool, who))
	if collateral > 0 {
		require.NoError(h.t, h.engine.DepositCollateral(as(who), h.pool, who, w.collateral, h.amount(collateral)))
	}
	return w
}

func TestNewEngineRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SlotsPerYear = 0
	_, err := NewEngine(cfg, memdb.New(), nil, nil, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestInitializeLendingPool(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.openPool(defaultRates, 1000)

	pool, err := h.engine.GetPool(h.pool)
	require.NoError(t, err)
	require.Equal(t, owner, pool.Owner)
	require.Equal(t, defaultRates, pool.Rates)
	require.Equal(t, h.treasury, pool.Treasury)
	require.Equal(t, PoolID(owner, usdc, sol), pool.ID())
	require.Equal(t, uint64(1000), h.vault())
	require.Zero(t, h.balance(h.funding))

	vault, err := h.ledger.Account(context.Background(), pool.Vault)
	require.NoError(t, err)
	require.Equal(t, EscrowAddress(h.pool), vault.Owner)

	_, err = h.engine.InitializeLendingPool(as(owner), PoolParams{
		Owner: owner, Asset: usdc, Collateral: sol, Rates: defaultRates, Treasury: h.treasury,
	})
	require.ErrorIs(t, err, ErrPoolExists)
	require.Equal(t, StateError, KindOf(err))
}

func TestInitializeLendingPoolRates(t *testing.T) {
	tests := []struct {
		name  string
		rates Rates
		err   error
	}{
		{"ltv equals threshold", Rates{1000, 8000, 8000}, ErrInvalidRates},
		{"ltv above threshold", Rates{1000, 9000, 8000}, ErrInvalidRates},
		{"threshold out of range", Rates{1000, 5000, 10_001}, ErrInvalidConfig},
		{"rate out of range", Rates{20_000, 5000, 8000}, ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, DefaultConfig())
			treasury := h.account(owner, usdc, 0)
			_, err := h.engine.InitializeLendingPool(as(owner), PoolParams{
				Owner: owner, Asset: usdc, Collateral: sol, Rates: tt.rates, Treasury: treasury,
			})
			require.ErrorIs(t, err, tt.err)
			require.Equal(t, ConfigurationError, KindOf(err))

			_, err = h.engine.GetPool(PoolID(owner, usdc, sol))
			require.ErrorIs(t, err, ErrPoolNotFound)
		})
	}
}

func TestInitializeLendingPoolAuthorization(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	treasury := h.account(owner, usdc, 0)

	_, err := h.engine.InitializeLendingPool(as(stranger), PoolParams{
		Owner: owner, Asset: usdc, Collateral: sol, Rates: defaultRates, Treasury: treasury,
	})
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Equal(t, AuthorizationError, KindOf(err))

	_, err = h.engine.InitializeLendingPool(context.Background(), PoolParams{
		Owner: owner, Asset: usdc, Collateral: sol, Rates: defaultRates, Treasury: treasury,
	})
	require.ErrorIs(t, err, ErrUnauthorized)

	// Treasury must be an owner usdc account.
	foreign := h.account(stranger, usdc, 0)
	_, err = h.engine.InitializeLendingPool(as(owner), PoolParams{
		Owner: owner, Asset: usdc, Collateral: sol, Rates: defaultRates, Treasury: foreign,
	})
	require.ErrorIs(t, err, ErrInvalidAccount)
}

func TestLiquidity(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.openPool(defaultRates, 500)

	dest := h.account(owner, usdc, 0)
	require.NoError(t, h.engine.WithdrawLiquidity(as(owner), h.pool, dest, h.amount(200)))
	require.Equal(t, uint64(300), h.vault())
	require.Equal(t, uint64(200), h.balance(dest))

	err := h.engine.WithdrawLiquidity(as(owner), h.pool, dest, h.amount(301))
	require.ErrorIs(t, err, ErrInsufficientLiquidity)
	require.Equal(t, LiquidityError, KindOf(err))
	require.Equal(t, uint64(300), h.vault())

	require.NoError(t, h.engine.WithdrawLiquidity(as(owner), h.pool, dest, h.amount(300)))
	require.Zero(t, h.vault())

	err = h.engine.DepositLiquidity(as(stranger), h.pool, dest, h.amount(1))
	require.ErrorIs(t, err, ErrUnauthorized)
	err = h.engine.WithdrawLiquidity(as(stranger), h.pool, dest, h.amount(1))
	require.ErrorIs(t, err, ErrUnauthorized)

	err = h.engine.DepositLiquidity(as(owner), common.Hash{0x01}, dest, h.amount(1))
	require.ErrorIs(t, err, ErrPoolNotFound)
}

func TestReserveForBorrow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultConfig())
	h.openPool(defaultRates, 100)
	pool, err := h.engine.GetPool(h.pool)
	require.NoError(t, err)

	got, err := h.engine.reserveForBorrow(ctx, pool, h.amount(40))
	require.NoError(t, err)
	require.Equal(t, uint64(40), h.disclose(got))

	got, err = h.engine.reserveForBorrow(ctx, pool, h.amount(150))
	require.NoError(t, err)
	require.Equal(t, uint64(100), h.disclose(got))

	// Reserving plans nothing; the vault is untouched.
	require.Equal(t, uint64(100), h.vault())
}

func TestOperationMetrics(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.openPool(defaultRates, 100)

	err := h.engine.WithdrawLiquidity(as(stranger), h.pool, h.funding, h.amount(1))
	require.Error(t, err)

	require.Equal(t, float64(1), testutil.ToFloat64(h.metrics.operations.WithLabelValues("initialize_lending_pool", "ok")))
	require.Equal(t, float64(1), testutil.ToFloat64(h.metrics.operations.WithLabelValues("deposit_liquidity", "ok")))
	require.Equal(t, float64(1), testutil.ToFloat64(h.metrics.operations.WithLabelValues("withdraw_liquidity", "authorization")))
}
