package audit_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TanmayDhobale/miniForesight/internal/audit"
	"github.com/TanmayDhobale/miniForesight/internal/core"
	"github.com/TanmayDhobale/miniForesight/internal/ledger"
	"github.com/TanmayDhobale/miniForesight/internal/market"
	"github.com/TanmayDhobale/miniForesight/internal/observability"
	"github.com/TanmayDhobale/miniForesight/internal/persistence"
	"github.com/TanmayDhobale/miniForesight/internal/state"
	"github.com/TanmayDhobale/miniForesight/internal/store"
)

const authority = "platform"

// settledStore runs a full market lifecycle: two markets, bets on both,
// one resolved with a claim and collected fees, one cancelled.
func settledStore(t *testing.T) store.Store {
	t.Helper()
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	s := store.NewMemory()
	e := core.NewEngine(s, core.WithClock(func() time.Time { return now }))
	as := func(id string) core.Call { return core.Call{Identity: id} }

	_, err := e.Initialize(ctx, as(authority), 300, "treasury")
	require.NoError(t, err)
	for _, id := range []uint64{1, 2} {
		_, err := e.CreateMarket(ctx, as("creator"), market.CreateParams{
			ID: id, Question: "Q?", Outcomes: []string{"A", "B", "C"},
			EndTime: now.Add(2 * time.Hour).Unix(), Oracle: "oracle", MinBet: 1,
		})
		require.NoError(t, err)
	}
	for _, user := range []string{"alice", "bob", "carol"} {
		_, err := e.Deposit(ctx, as(authority), user, 1_000)
		require.NoError(t, err)
	}
	bets := []struct {
		user    string
		market  uint64
		outcome int
		amount  uint64
	}{
		{"alice", 1, 0, 333}, {"bob", 1, 0, 111}, {"carol", 1, 2, 500},
		{"alice", 2, 1, 200}, {"bob", 2, 2, 50},
	}
	for _, b := range bets {
		_, err := e.PlaceBet(ctx, as(b.user), b.market, b.outcome, b.amount)
		require.NoError(t, err)
	}

	now = now.Add(3 * time.Hour)
	_, err = e.ResolveMarket(ctx, as("oracle"), 1, 0)
	require.NoError(t, err)
	_, err = e.ClaimWinnings(ctx, as("alice"), 1, "")
	require.NoError(t, err)
	_, err = e.CollectFees(ctx, as(authority), 1)
	require.NoError(t, err)
	_, err = e.CloseMarket(ctx, as(authority), 2)
	require.NoError(t, err)
	_, err = e.Withdraw(ctx, as("carol"), 100)
	require.NoError(t, err)
	return s
}

func mutate(t *testing.T, s store.Store, fn func(*state.Records, store.Txn)) {
	t.Helper()
	require.NoError(t, s.Update(context.Background(), func(txn store.Txn) error {
		fn(state.New(txn), txn)
		return nil
	}))
}

func checks(r *audit.Report) []string {
	var out []string
	for _, v := range r.Violations {
		out = append(out, v.Check)
	}
	return out
}

// ============================================================================
// Test: Record checks
// ============================================================================

func TestAuditor_CleanLedger(t *testing.T) {
	s := settledStore(t)
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	report, err := audit.NewAuditor(s, audit.WithMetrics(metrics)).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Healthy(), "violations: %+v", report.Violations)
	assert.Equal(t, 1, report.Markets["resolved"])
	assert.Equal(t, 1, report.Markets["cancelled"])
	assert.Equal(t, 5, report.Positions)
	assert.Nil(t, report.Chain)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AuditRuns))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.MarketsByState.WithLabelValues("resolved")))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.MarketsByState.WithLabelValues("active")))
}

func TestAuditor_DetectsPoolMismatch(t *testing.T) {
	s := settledStore(t)
	mutate(t, s, func(rec *state.Records, _ store.Txn) {
		m, err := rec.Market(2)
		require.NoError(t, err)
		m.OutcomePools[1]++
		require.NoError(t, rec.PutMarket(m))
	})

	report, err := audit.NewAuditor(s).Run(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{audit.CheckPoolSum, audit.CheckOutcomeStake}, checks(report))
	require.NotNil(t, report.Violations[0].MarketID)
	assert.Equal(t, uint64(2), *report.Violations[0].MarketID)
}

func TestAuditor_DetectsPositionMismatch(t *testing.T) {
	s := settledStore(t)
	mutate(t, s, func(rec *state.Records, _ store.Txn) {
		p, err := rec.Position(1, "bob")
		require.NoError(t, err)
		p.TotalBet = 1
		require.NoError(t, rec.PutPosition(p))
	})

	report, err := audit.NewAuditor(s).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{audit.CheckPositionSum}, checks(report))
	assert.Equal(t, "bob", report.Violations[0].Owner)
}

func TestAuditor_DetectsEscrowMismatch(t *testing.T) {
	s := settledStore(t)
	mutate(t, s, func(rec *state.Records, _ store.Txn) {
		m, err := rec.Market(1)
		require.NoError(t, err)
		m.PaidOut -= 5
		require.NoError(t, rec.PutMarket(m))
	})

	report, err := audit.NewAuditor(s).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{audit.CheckEscrow}, checks(report))
}

func TestAuditor_DetectsConservationBreak(t *testing.T) {
	s := settledStore(t)
	mutate(t, s, func(_ *state.Records, txn store.Txn) {
		key := ledger.BalancePrefix + ledger.WalletAccount("mallory").AccountPath()
		require.NoError(t, txn.Put(key, []byte(`{"balance":7}`)))
	})

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	report, err := audit.NewAuditor(s, audit.WithMetrics(metrics)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{audit.CheckConservation}, checks(report))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AuditViolations.WithLabelValues(audit.CheckConservation)))
}

func TestAuditor_CleanUnderConcurrentBets(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	s := store.NewMemory()
	e := core.NewEngine(s, core.WithClock(func() time.Time { return now }))
	as := func(id string) core.Call { return core.Call{Identity: id} }

	_, err := e.Initialize(ctx, as(authority), 200, "treasury")
	require.NoError(t, err)
	_, err = e.CreateMarket(ctx, as("creator"), market.CreateParams{
		ID: 1, Question: "Q?", Outcomes: []string{"A", "B"},
		EndTime: now.Add(time.Hour).Unix(), Oracle: "oracle", MinBet: 1,
	})
	require.NoError(t, err)
	_, err = e.Deposit(ctx, as(authority), "alice", 1_000_000)
	require.NoError(t, err)

	betCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for betCtx.Err() == nil {
			if _, err := e.PlaceBet(ctx, as("alice"), 1, 0, 1); err != nil {
				return
			}
		}
	}()

	auditor := audit.NewAuditor(s)
	for i := 0; i < 300; i++ {
		report, err := auditor.Run(ctx)
		require.NoError(t, err)
		if !report.Healthy() {
			stop()
			<-done
			t.Fatalf("run %d: violations on a healthy ledger: %+v", i, report.Violations)
		}
	}
	stop()
	<-done
}

// ============================================================================
// Test: Hash chain
// ============================================================================

type fakeEventLog struct {
	result      persistence.ChainVerification
	err         error
	checkpoints []int64
	violations  []int
}

func (f *fakeEventLog) VerifyChain(context.Context, int) (persistence.ChainVerification, error) {
	return f.result, f.err
}

func (f *fakeEventLog) SaveCheckpoint(_ context.Context, seq int64, _ [32]byte, violations int, _ any) error {
	f.checkpoints = append(f.checkpoints, seq)
	f.violations = append(f.violations, violations)
	return nil
}

func TestAuditor_ChainVerifiedAndCheckpointed(t *testing.T) {
	s := settledStore(t)
	log := &fakeEventLog{result: persistence.ChainVerification{Verified: 12, LastSeq: 12}}

	report, err := audit.NewAuditor(s, audit.WithEventLog(log, 100)).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Healthy())
	require.NotNil(t, report.Chain)
	assert.Equal(t, int64(12), report.Chain.LastSeq)
	assert.Equal(t, []int64{12}, log.checkpoints)
	assert.Equal(t, []int{0}, log.violations)
}

func TestAuditor_ChainBreakIsViolation(t *testing.T) {
	s := settledStore(t)
	log := &fakeEventLog{result: persistence.ChainVerification{
		Verified: 4, LastSeq: 4, BrokenAt: 5, BrokenWhy: "state_hash does not match recomputed digest",
	}}

	report, err := audit.NewAuditor(s, audit.WithEventLog(log, 100)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{audit.CheckHashChain}, checks(report))
	assert.Equal(t, []int{1}, log.violations)
}

func TestAuditor_ChainErrorFailsRun(t *testing.T) {
	log := &fakeEventLog{err: errors.New("connection reset")}
	_, err := audit.NewAuditor(store.NewMemory(), audit.WithEventLog(log, 100)).Run(context.Background())
	require.Error(t, err)
	assert.Empty(t, log.checkpoints)
}

// ============================================================================
// Test: Scheduler
// ============================================================================

func TestScheduler_RunsJobsUntilCancelled(t *testing.T) {
	sched := audit.NewScheduler(zerolog.Nop())
	var runs atomic.Int32
	_, err := sched.Add("* * * * * *", func(context.Context) { runs.Add(1) })
	require.NoError(t, err)

	_, err = sched.Add("not a schedule", func(context.Context) {})
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	require.Eventually(t, func() bool { return runs.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
