package core_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TanmayDhobale/miniForesight/internal/core"
	"github.com/TanmayDhobale/miniForesight/internal/event"
	"github.com/TanmayDhobale/miniForesight/internal/ledger"
	"github.com/TanmayDhobale/miniForesight/internal/market"
	"github.com/TanmayDhobale/miniForesight/internal/state"
	"github.com/TanmayDhobale/miniForesight/internal/store"
)

const (
	authority = "platform"
	treasury  = "treasury"
	oracle    = "oracle"
)

var epoch = time.Unix(1_700_000_000, 0)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	events []core.Committed
}

func (r *recorder) Emit(c core.Committed) {
	r.mu.Lock()
	r.events = append(r.events, c)
	r.mu.Unlock()
}

func (r *recorder) last() core.Committed {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type harness struct {
	t      *testing.T
	ctx    context.Context
	store  store.Store
	clock  *clock
	events *recorder
	engine *core.Engine
}

func newHarness(t *testing.T, opts ...core.Option) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		ctx:    context.Background(),
		store:  store.NewMemory(),
		clock:  &clock{now: epoch},
		events: &recorder{},
	}
	opts = append([]core.Option{core.WithClock(h.clock.Now), core.WithEmitter(h.events)}, opts...)
	h.engine = core.NewEngine(h.store, opts...)
	return h
}

func as(identity string) core.Call {
	return core.Call{Identity: identity}
}

func (h *harness) mustInit(feeBps uint16) {
	h.t.Helper()
	_, err := h.engine.Initialize(h.ctx, as(authority), feeBps, treasury)
	require.NoError(h.t, err)
}

func (h *harness) mustFund(identity string, amount uint64) {
	h.t.Helper()
	_, err := h.engine.Deposit(h.ctx, as(authority), identity, amount)
	require.NoError(h.t, err)
}

func (h *harness) params(id uint64, outcomes ...string) market.CreateParams {
	if len(outcomes) == 0 {
		outcomes = []string{"Yes", "No"}
	}
	return market.CreateParams{
		ID:       id,
		Question: fmt.Sprintf("Question %d?", id),
		Outcomes: outcomes,
		EndTime:  h.clock.Now().Add(2 * time.Hour).Unix(),
		Oracle:   oracle,
		MinBet:   100,
	}
}

func (h *harness) mustCreate(id uint64, outcomes ...string) *market.Market {
	h.t.Helper()
	m, err := h.engine.CreateMarket(h.ctx, as("creator"), h.params(id, outcomes...))
	require.NoError(h.t, err)
	return m
}

func (h *harness) mustBet(user string, id uint64, outcome int, amount uint64) {
	h.t.Helper()
	_, err := h.engine.PlaceBet(h.ctx, as(user), id, outcome, amount)
	require.NoError(h.t, err)
}

func (h *harness) mustResolve(id uint64, outcome int) {
	h.t.Helper()
	_, err := h.engine.ResolveMarket(h.ctx, as(oracle), id, outcome)
	require.NoError(h.t, err)
}

func (h *harness) market(id uint64) *market.Market {
	h.t.Helper()
	var m *market.Market
	require.NoError(h.t, h.store.View(h.ctx, func(txn store.Txn) error {
		var err error
		m, err = state.New(txn).Market(id)
		return err
	}))
	return m
}

func (h *harness) position(id uint64, user string) *market.Position {
	h.t.Helper()
	var p *market.Position
	require.NoError(h.t, h.store.View(h.ctx, func(txn store.Txn) error {
		var err error
		p, err = state.New(txn).Position(id, user)
		return err
	}))
	return p
}

func (h *harness) balance(k ledger.AccountKey) uint64 {
	h.t.Helper()
	var v uint64
	require.NoError(h.t, h.store.View(h.ctx, func(txn store.Txn) error {
		var err error
		v, err = ledger.Balance(txn, k)
		return err
	}))
	return v
}

// ============================================================================
// Test: Initialize
// ============================================================================

func TestInitialize_OnceOnly(t *testing.T) {
	h := newHarness(t)
	cfg, err := h.engine.Initialize(h.ctx, as(authority), 200, treasury)
	require.NoError(t, err)
	assert.Equal(t, authority, cfg.Authority)

	evt, ok := h.events.last().Event.(*event.PlatformInitialized)
	require.True(t, ok)
	assert.Equal(t, uint16(200), evt.FeeBps)

	_, err = h.engine.Initialize(h.ctx, as("usurper"), 100, "elsewhere")
	assert.ErrorIs(t, err, market.ErrAlreadyInitialized)
	assert.Equal(t, 1, h.events.count())
}

func TestInitialize_FeeTooHigh(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.Initialize(h.ctx, as(authority), 501, treasury)
	assert.ErrorIs(t, err, market.ErrFeeTooHigh)
	assert.Equal(t, market.KindConfig, market.KindOf(err))

	_, err = h.engine.Initialize(h.ctx, as(authority), 500, treasury)
	assert.NoError(t, err)
}

func TestInitialize_RequiresRecipientAndCaller(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.Initialize(h.ctx, as(authority), 100, " ")
	assert.ErrorIs(t, err, market.ErrInvalidFeeRecipient)
	_, err = h.engine.Initialize(h.ctx, as(""), 100, treasury)
	assert.ErrorIs(t, err, market.ErrUnauthorized)
}

// ============================================================================
// Test: CreateMarket
// ============================================================================

func TestCreateMarket_InitialState(t *testing.T) {
	h := newHarness(t)
	h.mustInit(200)
	m := h.mustCreate(1, "A", "B", "C")

	assert.Equal(t, market.StatusActive, m.Status)
	assert.Equal(t, []uint64{0, 0, 0}, m.OutcomePools)
	assert.Zero(t, m.TotalPool)
	assert.Nil(t, m.WinningOutcome)
	assert.Equal(t, epoch.Unix(), m.CreatedAt)
	assert.Equal(t, "creator", m.Creator)

	created, ok := h.events.last().Event.(*event.MarketCreated)
	require.True(t, ok)
	assert.Equal(t, []string{"A", "B", "C"}, created.Outcomes)
	assert.Equal(t, oracle, created.Oracle)
}

func TestCreateMarket_IncrementsTotalMarkets(t *testing.T) {
	h := newHarness(t)
	h.mustInit(0)
	h.mustCreate(1)
	h.mustCreate(2)

	require.NoError(t, h.store.View(h.ctx, func(txn store.Txn) error {
		cfg, err := state.New(txn).Config()
		require.NoError(t, err)
		assert.Equal(t, uint64(2), cfg.TotalMarkets)
		return nil
	}))
}

func TestCreateMarket_Duplicate(t *testing.T) {
	h := newHarness(t)
	h.mustInit(0)
	h.mustCreate(1)

	_, err := h.engine.CreateMarket(h.ctx, as("other"), h.params(1))
	assert.ErrorIs(t, err, market.ErrDuplicateMarket)
	assert.Equal(t, "creator", h.market(1).Creator)
}

func TestCreateMarket_RequiresInitialization(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.CreateMarket(h.ctx, as("creator"), h.params(1))
	assert.ErrorIs(t, err, market.ErrNotInitialized)
}

func TestCreateMarket_ValidationBeforeEffects(t *testing.T) {
	h := newHarness(t)
	h.mustInit(0)
	p := h.params(1)
	p.EndTime = h.clock.Now().Add(30 * time.Minute).Unix()

	_, err := h.engine.CreateMarket(h.ctx, as("creator"), p)
	assert.ErrorIs(t, err, market.ErrInvalidEndTime)
	assert.Equal(t, market.KindValidation, market.KindOf(err))

	err = h.store.View(h.ctx, func(txn store.Txn) error {
		_, err := state.New(txn).Market(1)
		return err
	})
	assert.ErrorIs(t, err, market.ErrMarketNotFound)
}

// ============================================================================
// Test: PlaceBet
// ============================================================================

func TestPlaceBet_Accounting(t *testing.T) {
	h := newHarness(t)
	h.mustInit(200)
	h.mustCreate(1, "A", "B", "C")
	h.mustFund("u1", 10_000)
	h.mustFund("u2", 10_000)

	h.mustBet("u1", 1, 0, 100)
	h.mustBet("u1", 1, 2, 250)
	h.mustBet("u2", 1, 2, 400)
	h.mustBet("u1", 1, 0, 150)

	m := h.market(1)
	assert.Equal(t, []uint64{250, 0, 650}, m.OutcomePools)
	assert.Equal(t, uint64(900), m.TotalPool)

	var sum uint64
	for _, p := range m.OutcomePools {
		sum += p
	}
	assert.Equal(t, m.TotalPool, sum)

	p := h.position(1, "u1")
	assert.Equal(t, []uint64{250, 0, 250}, p.Bets)
	assert.Equal(t, uint64(500), p.TotalBet)
	assert.False(t, p.Claimed)

	assert.Equal(t, uint64(900), h.balance(ledger.EscrowAccount(1)))
	assert.Equal(t, uint64(9_500), h.balance(ledger.WalletAccount("u1")))

	bet, ok := h.events.last().Event.(*event.BetPlaced)
	require.True(t, ok)
	assert.Equal(t, uint64(900), bet.TotalPool)
	require.NotNil(t, h.events.last().Batch)
	assert.Len(t, h.events.last().Batch.Journals, 1)
}

func TestPlaceBet_BelowMinimum(t *testing.T) {
	h := newHarness(t)
	h.mustInit(200)
	h.mustCreate(1)
	h.mustFund("u1", 1_000)

	_, err := h.engine.PlaceBet(h.ctx, as("u1"), 1, 0, 99)
	assert.ErrorIs(t, err, market.ErrBetTooSmall)
	assert.Zero(t, h.market(1).TotalPool)
	assert.Equal(t, uint64(1_000), h.balance(ledger.WalletAccount("u1")))

	_, err = h.engine.PlaceBet(h.ctx, as("u1"), 1, 0, 100)
	assert.NoError(t, err)
}

func TestPlaceBet_EndTimeBoundary(t *testing.T) {
	h := newHarness(t)
	h.mustInit(0)
	m := h.mustCreate(1)
	h.mustFund("u1", 1_000)

	h.clock.Advance(time.Duration(m.EndTime-epoch.Unix()-1) * time.Second)
	h.mustBet("u1", 1, 0, 100)

	h.clock.Advance(time.Second)
	_, err := h.engine.PlaceBet(h.ctx, as("u1"), 1, 0, 100)
	assert.ErrorIs(t, err, market.ErrMarketExpired)
	assert.Equal(t, market.KindState, market.KindOf(err))
}

func TestPlaceBet_InvalidOutcome(t *testing.T) {
	h := newHarness(t)
	h.mustInit(0)
	h.mustCreate(1)
	h.mustFund("u1", 1_000)

	for _, idx := range []int{-1, 2} {
		_, err := h.engine.PlaceBet(h.ctx, as("u1"), 1, idx, 100)
		assert.ErrorIs(t, err, market.ErrInvalidOutcome)
	}
}

func TestPlaceBet_InactiveMarket(t *testing.T) {
	h := newHarness(t)
	h.mustInit(0)
	h.mustCreate(1)
	h.mustFund("u1", 1_000)
	_, err := h.engine.CloseMarket(h.ctx, as(authority), 1)
	require.NoError(t, err)

	_, err = h.engine.PlaceBet(h.ctx, as("u1"), 1, 0, 100)
	assert.ErrorIs(t, err, market.ErrMarketNotActive)

	_, err = h.engine.PlaceBet(h.ctx, as("u1"), 99, 0, 100)
	assert.ErrorIs(t, err, market.ErrMarketNotFound)
}

func TestPlaceBet_InsufficientFundsLeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	h.mustInit(0)
	h.mustCreate(1)
	h.mustFund("u1", 150)
	before := h.events.count()

	_, err := h.engine.PlaceBet(h.ctx, as("u1"), 1, 0, 200)
	assert.ErrorIs(t, err, market.ErrInsufficientFunds)

	assert.Zero(t, h.market(1).TotalPool)
	assert.Equal(t, uint64(150), h.balance(ledger.WalletAccount("u1")))
	assert.Equal(t, before, h.events.count())

	err = h.store.View(h.ctx, func(txn store.Txn) error {
		_, err := state.New(txn).Position(1, "u1")
		return err
	})
	assert.ErrorIs(t, err, market.ErrPositionNotFound)
}

type failingTransfer struct{}

func (failingTransfer) Transfer(store.Txn, ledger.TransferRequest) (ledger.Journal, error) {
	return ledger.Journal{}, errors.New("transfer rail unavailable")
}

func TestPlaceBet_TransferFailureAbortsAtomically(t *testing.T) {
	h := newHarness(t, core.WithTransfer(failingTransfer{}))
	h.mustInit(0)
	h.mustCreate(1)

	_, err := h.engine.PlaceBet(h.ctx, as("u1"), 1, 0, 100)
	require.Error(t, err)
	assert.Zero(t, h.market(1).TotalPool)
	assert.Equal(t, []uint64{0, 0}, h.market(1).OutcomePools)
}

func TestPlaceBet_OverflowRejected(t *testing.T) {
	h := newHarness(t)
	h.mustInit(0)
	h.mustCreate(1)
	huge := ^uint64(0)
	h.mustFund("whale", huge)

	h.mustBet("whale", 1, 0, huge-10)
	_, err := h.engine.PlaceBet(h.ctx, as("whale"), 1, 1, 100)
	assert.ErrorIs(t, err, market.ErrArithmeticOverflow)
	assert.Equal(t, market.KindArithmetic, market.KindOf(err))
	assert.Equal(t, huge-10, h.market(1).TotalPool)
}

// ============================================================================
// Test: ResolveMarket
// ============================================================================

func TestResolveMarket_TooEarly(t *testing.T) {
	h := newHarness(t)
	h.mustInit(0)
	h.mustCreate(1)

	_, err := h.engine.ResolveMarket(h.ctx, as(oracle), 1, 0)
	assert.ErrorIs(t, err, market.ErrTooEarly)
}

func TestResolveMarket_Unauthorized(t *testing.T) {
	h := newHarness(t)
	h.mustInit(0)
	h.mustCreate(1)
	h.clock.Advance(3 * time.Hour)

	_, err := h.engine.ResolveMarket(h.ctx, as("random"), 1, 0)
	assert.ErrorIs(t, err, market.ErrUnauthorized)
	assert.Equal(t, market.KindAuthorization, market.KindOf(err))
	assert.Equal(t, market.StatusActive, h.market(1).Status)
}

func TestResolveMarket_AuthorityMayResolve(t *testing.T) {
	h := newHarness(t)
	h.mustInit(0)
	h.mustCreate(1)
	h.clock.Advance(3 * time.Hour)

	m, err := h.engine.ResolveMarket(h.ctx, as(authority), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, *m.WinningOutcome)
}

func TestResolveMarket_OnlyOnce(t *testing.T) {
	h := newHarness(t)
	h.mustInit(0)
	h.mustCreate(1)
	h.clock.Advance(2 * time.Hour)
	h.mustResolve(1, 0)

	_, err := h.engine.ResolveMarket(h.ctx, as(oracle), 1, 1)
	assert.ErrorIs(t, err, market.ErrAlreadyResolved)
	assert.Equal(t, 0, *h.market(1).WinningOutcome)
}

func TestResolveMarket_InvalidOutcomeAndCancelled(t *testing.T) {
	h := newHarness(t)
	h.mustInit(0)
	h.mustCreate(1)
	h.mustCreate(2)
	h.clock.Advance(2 * time.Hour)

	_, err := h.engine.ResolveMarket(h.ctx, as(oracle), 1, 5)
	assert.ErrorIs(t, err, market.ErrInvalidOutcome)

	_, err = h.engine.CloseMarket(h.ctx, as(authority), 2)
	require.NoError(t, err)
	_, err = h.engine.ResolveMarket(h.ctx, as(oracle), 2, 0)
	assert.ErrorIs(t, err, market.ErrMarketNotActive)
}

func TestResolveMarket_ZeroStakeOutcomePermitted(t *testing.T) {
	h := newHarness(t)
	h.mustInit(200)
	h.mustCreate(1)
	h.mustFund("u1", 1_000)
	h.mustBet("u1", 1, 0, 500)
	h.clock.Advance(2 * time.Hour)

	h.mustResolve(1, 1)
	resolved, ok := h.events.last().Event.(*event.MarketResolved)
	require.True(t, ok)
	assert.Zero(t, resolved.WinningPool)

	_, err := h.engine.ClaimWinnings(h.ctx, as("u1"), 1, "")
	assert.ErrorIs(t, err, market.ErrNoWinningBet)
}

// ============================================================================
// Test: Settlement end to end
// ============================================================================

func TestSettlement_TwoOutcomeLifecycle(t *testing.T) {
	h := newHarness(t)
	h.mustInit(200)
	h.mustCreate(1, "Yes", "No")
	h.mustFund("U1", 1_000)
	h.mustFund("U2", 1_000)

	h.mustBet("U1", 1, 0, 100)
	h.mustBet("U2", 1, 1, 300)
	h.clock.Advance(2 * time.Hour)
	h.mustResolve(1, 0)

	res, err := h.engine.ClaimWinnings(h.ctx, as("U1"), 1, "")
	require.NoError(t, err)
	assert.Equal(t, uint64(392), res.Payout)
	assert.True(t, res.Position.Claimed)
	assert.Equal(t, uint64(1_292), h.balance(ledger.WalletAccount("U1")))

	claimed, ok := h.events.last().Event.(*event.WinningsClaimed)
	require.True(t, ok)
	assert.Equal(t, uint64(392), claimed.Amount)

	fee, err := h.engine.CollectFees(h.ctx, as(authority), 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), fee)
	assert.Equal(t, uint64(8), h.balance(ledger.WalletAccount(treasury)))
	assert.Zero(t, h.balance(ledger.EscrowAccount(1)))

	m := h.market(1)
	assert.True(t, m.FeesCollected)
	assert.Equal(t, m.TotalPool, m.PaidOut)
}

func TestClaim_NoWinningStake(t *testing.T) {
	h := newHarness(t)
	h.mustInit(200)
	h.mustCreate(1)
	h.mustFund("U1", 1_000)
	h.mustFund("U2", 1_000)
	h.mustBet("U1", 1, 0, 100)
	h.mustBet("U2", 1, 1, 300)
	h.clock.Advance(2 * time.Hour)
	h.mustResolve(1, 0)

	_, err := h.engine.ClaimWinnings(h.ctx, as("U2"), 1, "")
	assert.ErrorIs(t, err, market.ErrNoWinningBet)

	_, err = h.engine.ClaimWinnings(h.ctx, as("stranger"), 1, "")
	assert.ErrorIs(t, err, market.ErrNoWinningBet)
}

func TestClaim_ExactlyOnce(t *testing.T) {
	h := newHarness(t)
	h.mustInit(200)
	h.mustCreate(1)
	h.mustFund("U1", 1_000)
	h.mustBet("U1", 1, 0, 100)
	h.clock.Advance(2 * time.Hour)
	h.mustResolve(1, 0)

	_, err := h.engine.ClaimWinnings(h.ctx, as("U1"), 1, "")
	require.NoError(t, err)
	walletAfter := h.balance(ledger.WalletAccount("U1"))
	eventsAfter := h.events.count()

	_, err = h.engine.ClaimWinnings(h.ctx, as("U1"), 1, "")
	assert.ErrorIs(t, err, market.ErrAlreadyClaimed)
	assert.Equal(t, walletAfter, h.balance(ledger.WalletAccount("U1")))
	assert.Equal(t, eventsAfter, h.events.count())
}

func TestClaim_OnlyOwner(t *testing.T) {
	h := newHarness(t)
	h.mustInit(0)
	h.mustCreate(1)
	h.mustFund("U1", 1_000)
	h.mustBet("U1", 1, 0, 100)
	h.clock.Advance(2 * time.Hour)
	h.mustResolve(1, 0)

	_, err := h.engine.ClaimWinnings(h.ctx, as("thief"), 1, "U1")
	assert.ErrorIs(t, err, market.ErrUnauthorized)
	assert.False(t, h.position(1, "U1").Claimed)
}

func TestClaim_NotResolved(t *testing.T) {
	h := newHarness(t)
	h.mustInit(0)
	h.mustCreate(1)
	h.mustFund("U1", 1_000)
	h.mustBet("U1", 1, 0, 100)

	_, err := h.engine.ClaimWinnings(h.ctx, as("U1"), 1, "")
	assert.ErrorIs(t, err, market.ErrNotResolved)

	_, err = h.engine.CloseMarket(h.ctx, as(authority), 1)
	require.NoError(t, err)
	_, err = h.engine.ClaimWinnings(h.ctx, as("U1"), 1, "")
	assert.ErrorIs(t, err, market.ErrNotResolved, "cancelled markets never pay")
}

func TestClaim_PayoutBelowStakeWhenEveryoneWins(t *testing.T) {
	h := newHarness(t)
	h.mustInit(500)
	h.mustCreate(1)
	h.mustFund("U1", 1_000)
	h.mustBet("U1", 1, 0, 1_000)
	h.clock.Advance(2 * time.Hour)
	h.mustResolve(1, 0)

	res, err := h.engine.ClaimWinnings(h.ctx, as("U1"), 1, "")
	require.NoError(t, err)
	assert.Equal(t, uint64(950), res.Payout)
	assert.Equal(t, uint64(50), h.balance(ledger.EscrowAccount(1)), "fee stays in escrow")
}

func TestClaim_PayoutConservation(t *testing.T) {
	h := newHarness(t)
	h.mustInit(333)
	h.mustCreate(1, "A", "B", "C")

	stakes := map[string]uint64{"w1": 101, "w2": 257, "w3": 1_009, "w4": 333}
	for user, amount := range stakes {
		h.mustFund(user, amount)
		h.mustBet(user, 1, 1, amount)
	}
	h.mustFund("l1", 5_000)
	h.mustBet("l1", 1, 0, 4_321)
	h.mustFund("l2", 5_000)
	h.mustBet("l2", 1, 2, 777)
	h.clock.Advance(2 * time.Hour)
	h.mustResolve(1, 1)

	m := h.market(1)
	fee := m.TotalPool * 333 / 10_000
	prize := m.TotalPool - fee

	var paid uint64
	for user := range stakes {
		res, err := h.engine.ClaimWinnings(h.ctx, as(user), 1, "")
		require.NoError(t, err)
		paid += res.Payout
	}
	assert.LessOrEqual(t, paid, prize)
	assert.LessOrEqual(t, prize-paid, uint64(len(stakes)))

	collected, err := h.engine.CollectFees(h.ctx, as(authority), 1)
	require.NoError(t, err)
	assert.Equal(t, fee, collected)
	assert.Equal(t, prize-paid, h.balance(ledger.EscrowAccount(1)), "only rounding dust remains")
}

// ============================================================================
// Test: CollectFees
// ============================================================================

func TestCollectFees_AuthorityOnly(t *testing.T) {
	h := newHarness(t)
	h.mustInit(200)
	h.mustCreate(1)
	h.mustFund("U1", 1_000)
	h.mustBet("U1", 1, 0, 1_000)
	h.clock.Advance(2 * time.Hour)
	h.mustResolve(1, 0)

	_, err := h.engine.CollectFees(h.ctx, as(oracle), 1)
	assert.ErrorIs(t, err, market.ErrUnauthorized)
}

func TestCollectFees_RequiresResolved(t *testing.T) {
	h := newHarness(t)
	h.mustInit(200)
	h.mustCreate(1)

	_, err := h.engine.CollectFees(h.ctx, as(authority), 1)
	assert.ErrorIs(t, err, market.ErrNotResolved)
}

func TestCollectFees_LatchPreventsDoubleCollection(t *testing.T) {
	h := newHarness(t)
	h.mustInit(200)
	h.mustCreate(1)
	h.mustFund("U1", 1_000)
	h.mustFund("U2", 1_000)
	h.mustBet("U1", 1, 0, 500)
	h.mustBet("U2", 1, 1, 500)
	h.clock.Advance(2 * time.Hour)
	h.mustResolve(1, 0)

	fee, err := h.engine.CollectFees(h.ctx, as(authority), 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), fee)

	_, err = h.engine.CollectFees(h.ctx, as(authority), 1)
	assert.ErrorIs(t, err, market.ErrFeesAlreadyCollected)
	assert.Equal(t, uint64(20), h.balance(ledger.WalletAccount(treasury)))

	// The winner is still paid in full after the fee left escrow.
	res, err := h.engine.ClaimWinnings(h.ctx, as("U1"), 1, "")
	require.NoError(t, err)
	assert.Equal(t, uint64(980), res.Payout)
}

func TestCollectFees_ZeroFeeEmitsNothing(t *testing.T) {
	h := newHarness(t)
	h.mustInit(0)
	h.mustCreate(1)
	h.mustFund("U1", 1_000)
	h.mustBet("U1", 1, 0, 100)
	h.clock.Advance(2 * time.Hour)
	h.mustResolve(1, 0)
	before := h.events.count()

	fee, err := h.engine.CollectFees(h.ctx, as(authority), 1)
	require.NoError(t, err)
	assert.Zero(t, fee)
	assert.Equal(t, before, h.events.count())
	assert.False(t, h.market(1).FeesCollected)
}

// ============================================================================
// Test: CloseMarket
// ============================================================================

func TestCloseMarket_AuthorityOnly(t *testing.T) {
	h := newHarness(t)
	h.mustInit(0)
	h.mustCreate(1)

	_, err := h.engine.CloseMarket(h.ctx, as("creator"), 1)
	assert.ErrorIs(t, err, market.ErrUnauthorized)

	m, err := h.engine.CloseMarket(h.ctx, as(authority), 1)
	require.NoError(t, err)
	assert.Equal(t, market.StatusCancelled, m.Status)
	assert.Nil(t, m.WinningOutcome)

	_, err = h.engine.CloseMarket(h.ctx, as(authority), 1)
	assert.ErrorIs(t, err, market.ErrMarketNotActive)
}

func TestCloseMarket_ResolvedIsTerminal(t *testing.T) {
	h := newHarness(t)
	h.mustInit(0)
	h.mustCreate(1)
	h.clock.Advance(2 * time.Hour)
	h.mustResolve(1, 0)

	_, err := h.engine.CloseMarket(h.ctx, as(authority), 1)
	assert.ErrorIs(t, err, market.ErrAlreadyResolved)
	assert.Equal(t, market.StatusResolved, h.market(1).Status)
}

// ============================================================================
// Test: Wallet
// ============================================================================

func TestDeposit_AuthorityOnly(t *testing.T) {
	h := newHarness(t)
	h.mustInit(0)

	_, err := h.engine.Deposit(h.ctx, as("u1"), "u1", 100)
	assert.ErrorIs(t, err, market.ErrUnauthorized)

	bal, err := h.engine.Deposit(h.ctx, as(authority), "u1", 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), bal)
}

func TestWithdraw_OwnFundsOnly(t *testing.T) {
	h := newHarness(t)
	h.mustInit(0)
	h.mustFund("u1", 100)

	_, err := h.engine.Withdraw(h.ctx, as("u1"), 101)
	assert.ErrorIs(t, err, market.ErrInsufficientFunds)

	bal, err := h.engine.Withdraw(h.ctx, as("u1"), 60)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), bal)
	assert.Equal(t, uint64(60), h.balance(ledger.ExternalWithdrawals))
}

// ============================================================================
// Test: Request idempotency
// ============================================================================

func TestRequestID_AppliesOnce(t *testing.T) {
	h := newHarness(t)
	h.mustInit(0)
	h.mustCreate(1)
	h.mustFund("u1", 1_000)

	call := core.Call{Identity: "u1", RequestID: "req-1"}
	_, err := h.engine.PlaceBet(h.ctx, call, 1, 0, 100)
	require.NoError(t, err)
	_, err = h.engine.PlaceBet(h.ctx, call, 1, 0, 100)
	assert.ErrorIs(t, err, market.ErrDuplicateRequest)
	assert.Equal(t, uint64(100), h.market(1).TotalPool)

	seen, err := h.engine.SeenRequest(h.ctx, "req-1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestRequestID_FailedOperationDoesNotConsumeID(t *testing.T) {
	h := newHarness(t)
	h.mustInit(0)
	h.mustCreate(1)

	call := core.Call{Identity: "u1", RequestID: "req-2"}
	_, err := h.engine.PlaceBet(h.ctx, call, 1, 0, 100)
	require.ErrorIs(t, err, market.ErrInsufficientFunds)

	h.mustFund("u1", 1_000)
	_, err = h.engine.PlaceBet(h.ctx, call, 1, 0, 100)
	assert.NoError(t, err)
}

// ============================================================================
// Test: Concurrency
// ============================================================================

func TestConcurrentBets_PoolsStayConsistent(t *testing.T) {
	h := newHarness(t)
	h.mustInit(100)
	h.mustCreate(1, "A", "B", "C")
	h.mustCreate(2, "A", "B")

	const users = 12
	const betsPerUser = 10
	for u := 0; u < users; u++ {
		h.mustFund(fmt.Sprintf("u%d", u), 1_000_000)
	}

	var wg sync.WaitGroup
	for u := 0; u < users; u++ {
		wg.Add(1)
		go func(u int) {
			defer wg.Done()
			user := fmt.Sprintf("u%d", u)
			for i := 0; i < betsPerUser; i++ {
				id := uint64(1 + (u+i)%2)
				outcome := (u + i) % 2
				_, err := h.engine.PlaceBet(h.ctx, as(user), id, outcome, 100+uint64(i))
				assert.NoError(t, err)
			}
		}(u)
	}
	wg.Wait()

	var escrowTotal uint64
	for _, id := range []uint64{1, 2} {
		m := h.market(id)
		var sum uint64
		for _, p := range m.OutcomePools {
			sum += p
		}
		assert.Equal(t, m.TotalPool, sum)
		assert.Equal(t, m.TotalPool, h.balance(ledger.EscrowAccount(id)))
		escrowTotal += m.TotalPool
	}

	var expected uint64
	for i := 0; i < betsPerUser; i++ {
		expected += 100 + uint64(i)
	}
	assert.Equal(t, expected*users, escrowTotal)

	for u := 0; u < users; u++ {
		user := fmt.Sprintf("u%d", u)
		var total uint64
		for _, id := range []uint64{1, 2} {
			p := h.position(id, user)
			var sum uint64
			for _, b := range p.Bets {
				sum += b
			}
			assert.Equal(t, p.TotalBet, sum)
			total += p.TotalBet
		}
		assert.Equal(t, expected, total)
	}
}
