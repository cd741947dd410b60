// Package audit re-checks the settlement invariants over a consistent
// snapshot of the store and, when an event log is attached, the event
// hash chain.
package audit

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/TanmayDhobale/miniForesight/internal/ledger"
	"github.com/TanmayDhobale/miniForesight/internal/market"
	fpmath "github.com/TanmayDhobale/miniForesight/internal/math"
	"github.com/TanmayDhobale/miniForesight/internal/observability"
	"github.com/TanmayDhobale/miniForesight/internal/persistence"
	"github.com/TanmayDhobale/miniForesight/internal/state"
	"github.com/TanmayDhobale/miniForesight/internal/store"
)

// Check names, also used as the metric label.
const (
	CheckPoolSum      = "pool_sum"
	CheckPositionSum  = "position_sum"
	CheckOutcomeStake = "outcome_stake"
	CheckPaidOut      = "paid_out"
	CheckEscrow       = "escrow"
	CheckConservation = "conservation"
	CheckHashChain    = "hash_chain"
)

type Violation struct {
	Check    string  `json:"check"`
	MarketID *uint64 `json:"market_id,omitempty"`
	Owner    string  `json:"owner,omitempty"`
	Detail   string  `json:"detail"`
}

// ChainSummary is the hash chain part of a report.
type ChainSummary struct {
	Verified int64  `json:"verified"`
	LastSeq  int64  `json:"last_sequence"`
	LastHash string `json:"last_hash"`
	BrokenAt int64  `json:"broken_at,omitempty"`
}

type Report struct {
	StartedAt  time.Time      `json:"started_at"`
	Duration   time.Duration  `json:"duration"`
	Markets    map[string]int `json:"markets"`
	Positions  int            `json:"positions"`
	Violations []Violation    `json:"violations"`
	Chain      *ChainSummary  `json:"chain,omitempty"`
}

func (r *Report) Healthy() bool {
	return len(r.Violations) == 0
}

func (r *Report) add(check string, marketID *uint64, owner, format string, args ...any) {
	r.Violations = append(r.Violations, Violation{
		Check:    check,
		MarketID: marketID,
		Owner:    owner,
		Detail:   fmt.Sprintf(format, args...),
	})
}

// EventLog is the persisted event chain. *persistence.EventLogReader
// implements it.
type EventLog interface {
	VerifyChain(ctx context.Context, pageSize int) (persistence.ChainVerification, error)
	SaveCheckpoint(ctx context.Context, sequence int64, hash [32]byte, violations int, report any) error
}

type Auditor struct {
	store    store.Store
	eventLog EventLog
	pageSize int
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

type Option func(*Auditor)

// WithEventLog adds hash chain verification and checkpointing to each run.
func WithEventLog(l EventLog, pageSize int) Option {
	return func(a *Auditor) {
		a.eventLog = l
		a.pageSize = pageSize
	}
}

func WithMetrics(m *observability.Metrics) Option { return func(a *Auditor) { a.metrics = m } }

func WithLogger(l zerolog.Logger) Option { return func(a *Auditor) { a.logger = l } }

func NewAuditor(s store.Store, opts ...Option) *Auditor {
	a := &Auditor{store: s, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run performs one audit. Violations are reported, not returned as
// errors; an error means the audit itself could not complete.
func (a *Auditor) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{
		StartedAt:  start.UTC(),
		Markets:    map[string]int{},
		Violations: []Violation{},
	}

	if err := a.store.View(ctx, func(txn store.Txn) error {
		return a.checkRecords(txn, report)
	}); err != nil {
		return nil, fmt.Errorf("audit records: %w", err)
	}

	var chain persistence.ChainVerification
	if a.eventLog != nil {
		var err error
		chain, err = a.eventLog.VerifyChain(ctx, a.pageSize)
		if err != nil {
			return nil, fmt.Errorf("audit hash chain: %w", err)
		}
		report.Chain = &ChainSummary{
			Verified: chain.Verified,
			LastSeq:  chain.LastSeq,
			LastHash: hex.EncodeToString(chain.LastHash[:]),
			BrokenAt: chain.BrokenAt,
		}
		if chain.BrokenAt != 0 {
			report.add(CheckHashChain, nil, "", "sequence %d: %s", chain.BrokenAt, chain.BrokenWhy)
		}
	}

	report.Duration = time.Since(start)
	a.observe(report)

	if a.eventLog != nil && chain.LastSeq > 0 {
		if err := a.eventLog.SaveCheckpoint(ctx, chain.LastSeq, chain.LastHash, len(report.Violations), report); err != nil {
			a.logger.Error().Err(err).Int64("sequence", chain.LastSeq).Msg("audit checkpoint failed")
		}
	}
	return report, nil
}

func (a *Auditor) checkRecords(txn store.Txn, report *Report) error {
	rec := state.New(txn)

	tracker, err := ledger.LoadBalanceTracker(txn)
	if err != nil {
		return err
	}
	validator := ledger.NewInvariantValidator(tracker)

	markets := make(map[uint64]*market.Market)
	err = rec.Markets(func(m *market.Market) error {
		markets[m.ID] = m
		report.Markets[m.Status.String()]++
		id := m.ID

		if len(m.OutcomePools) != len(m.Outcomes) {
			report.add(CheckPoolSum, &id, "", "%d pools for %d outcomes", len(m.OutcomePools), len(m.Outcomes))
		} else if total, ok := sum(m.OutcomePools); !ok || total != m.TotalPool {
			report.add(CheckPoolSum, &id, "", "outcome pools sum to %d, total_pool is %d", total, m.TotalPool)
		}
		if m.PaidOut > m.TotalPool {
			report.add(CheckPaidOut, &id, "", "paid out %d exceeds total pool %d", m.PaidOut, m.TotalPool)
			return nil
		}
		if err := validator.ValidateEscrow(m.ID, m.EscrowBalance()); err != nil {
			report.add(CheckEscrow, &id, "", "%v", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan markets: %w", err)
	}

	// Per-outcome stake across all positions must rebuild each pool.
	staked := make(map[uint64][]uint64, len(markets))
	err = rec.AllPositions(func(p *market.Position) error {
		report.Positions++
		id := p.MarketID

		if total, ok := sum(p.Bets); !ok || total != p.TotalBet {
			report.add(CheckPositionSum, &id, p.Owner, "bets sum to %d, total_bet is %d", total, p.TotalBet)
		}

		m, ok := markets[id]
		if !ok {
			report.add(CheckOutcomeStake, &id, p.Owner, "position in unknown market")
			return nil
		}
		if len(p.Bets) != len(m.Outcomes) {
			report.add(CheckOutcomeStake, &id, p.Owner, "%d bets for %d outcomes", len(p.Bets), len(m.Outcomes))
			return nil
		}
		acc := staked[id]
		if acc == nil {
			acc = make([]uint64, len(m.Outcomes))
			staked[id] = acc
		}
		for i, b := range p.Bets {
			acc[i] += b
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan positions: %w", err)
	}

	for id, m := range markets {
		acc := staked[id]
		if acc == nil {
			acc = make([]uint64, len(m.Outcomes))
		}
		for i := range m.OutcomePools {
			if i < len(acc) && acc[i] != m.OutcomePools[i] {
				report.add(CheckOutcomeStake, &id, "", "outcome %d: positions stake %d, pool is %d", i, acc[i], m.OutcomePools[i])
			}
		}
	}

	for id, bal := range tracker.Escrows() {
		if _, ok := markets[id]; !ok && bal != 0 {
			report.add(CheckEscrow, &id, "", "escrow holds %d for unknown market", bal)
		}
	}

	if err := validator.ValidateConservation(); err != nil {
		report.add(CheckConservation, nil, "", "%v", err)
	}
	return nil
}

func sum(vs []uint64) (uint64, bool) {
	var total uint64
	for _, v := range vs {
		next, err := fpmath.CheckedAdd(total, v)
		if err != nil {
			return total, false
		}
		total = next
	}
	return total, true
}

func (a *Auditor) observe(report *Report) {
	if a.metrics != nil {
		a.metrics.AuditRuns.Inc()
		a.metrics.AuditDuration.Observe(report.Duration.Seconds())
		for _, v := range report.Violations {
			a.metrics.AuditViolations.WithLabelValues(v.Check).Inc()
		}
		for _, st := range []market.Status{market.StatusActive, market.StatusResolved, market.StatusCancelled} {
			a.metrics.MarketsByState.WithLabelValues(st.String()).Set(float64(report.Markets[st.String()]))
		}
	}

	for _, v := range report.Violations {
		evt := a.logger.Warn().Str("check", v.Check).Str("detail", v.Detail)
		if v.MarketID != nil {
			evt = evt.Uint64("market_id", *v.MarketID)
		}
		if v.Owner != "" {
			evt = evt.Str("owner", v.Owner)
		}
		evt.Msg("audit violation")
	}
	a.logger.Info().
		Int("positions", report.Positions).
		Int("violations", len(report.Violations)).
		Dur("duration", report.Duration).
		Msg("audit complete")
}
