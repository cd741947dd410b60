package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/TanmayDhobale/miniForesight/internal/event"
	"github.com/TanmayDhobale/miniForesight/internal/ledger"
	"github.com/TanmayDhobale/miniForesight/internal/market"
	"github.com/TanmayDhobale/miniForesight/internal/observability"
	"github.com/TanmayDhobale/miniForesight/internal/state"
	"github.com/TanmayDhobale/miniForesight/internal/store"
)

// Operation names, used for request ids, metrics and command subjects.
const (
	OpInitialize    = "initialize"
	OpCreateMarket  = "create_market"
	OpPlaceBet      = "place_bet"
	OpResolveMarket = "resolve_market"
	OpClaimWinnings = "claim_winnings"
	OpCollectFees   = "collect_fees"
	OpCloseMarket   = "close_market"
	OpDeposit       = "deposit"
	OpWithdraw      = "withdraw"
)

// Clock supplies operation time. The engine never reads the wall clock for
// state decisions.
type Clock func() time.Time

// ValueTransfer moves value between accounts inside the operation's store
// transaction, so a failed transfer aborts the whole operation.
type ValueTransfer interface {
	Transfer(txn store.Txn, req ledger.TransferRequest) (ledger.Journal, error)
}

// Emitter receives every committed event.
type Emitter interface {
	Emit(Committed)
}

// Committed is one successful operation as seen after commit.
type Committed struct {
	Operation string
	RequestID string
	Event     event.Event
	Batch     *ledger.Batch // nil when no value moved
	Timestamp time.Time
}

// Call identifies who is invoking an operation. Identity is established by
// the transport; RequestID, when set, makes the operation apply at most once.
type Call struct {
	Identity  string
	RequestID string
}

// marketStripes bounds the per-market commit locks.
const marketStripes = 64

// Engine executes settlement operations against a Store. Each operation is
// one store transaction; operations on different markets run in parallel.
type Engine struct {
	store    store.Store
	transfer ValueTransfer
	clock    Clock
	emitter  Emitter
	metrics  *observability.Metrics
	logger   zerolog.Logger

	// Serializes commit+emit per market so events leave in commit order.
	stripes [marketStripes]sync.Mutex
}

type Option func(*Engine)

func WithClock(c Clock) Option { return func(e *Engine) { e.clock = c } }

func WithTransfer(t ValueTransfer) Option { return func(e *Engine) { e.transfer = t } }

func WithEmitter(em Emitter) Option { return func(e *Engine) { e.emitter = em } }

func WithMetrics(m *observability.Metrics) Option { return func(e *Engine) { e.metrics = m } }

func WithLogger(l zerolog.Logger) Option { return func(e *Engine) { e.logger = l } }

func NewEngine(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		transfer: ledger.NewTransferer(),
		clock:    time.Now,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the backing store for read paths.
func (e *Engine) Store() store.Store {
	return e.store
}

// opContext is the per-attempt state of one operation.
type opContext struct {
	engine *Engine
	rec    *state.Records
	now    int64
	batch  *ledger.Batch
}

// move requests a value transfer and records its journal in the batch.
func (oc *opContext) move(from, to ledger.AccountKey, amount uint64, auth ledger.Authority, jt ledger.JournalType) error {
	j, err := oc.engine.transfer.Transfer(oc.rec.Txn(), ledger.TransferRequest{
		From:      from,
		To:        to,
		Amount:    amount,
		Authority: auth,
		Type:      jt,
		BatchID:   oc.batch.BatchID,
		Timestamp: oc.now,
	})
	if err != nil {
		return fmt.Errorf("transfer %s -> %s: %w", from, to, err)
	}
	oc.batch.Journals = append(oc.batch.Journals, j)
	return nil
}

// execute runs fn in one store transaction and emits its event after
// commit. fn may run more than once if the store retries on conflict; a
// nil event means the operation succeeded without a notification.
func (e *Engine) execute(ctx context.Context, op string, call Call, marketID *uint64, fn func(*opContext) (event.Event, error)) error {
	start := time.Now()
	now := e.clock()

	if marketID != nil {
		mu := &e.stripes[*marketID%marketStripes]
		mu.Lock()
		defer mu.Unlock()
	}

	var evt event.Event
	var batch *ledger.Batch
	err := e.store.Update(ctx, func(txn store.Txn) error {
		evt, batch = nil, nil
		oc := &opContext{
			engine: e,
			rec:    state.New(txn),
			now:    now.Unix(),
			batch:  ledger.NewBatch(now.Unix()),
		}
		if err := oc.rec.MarkRequest(call.RequestID, op, oc.now); err != nil {
			return err
		}

		var err error
		evt, err = fn(oc)
		if err != nil {
			return err
		}
		if len(oc.batch.Journals) > 0 {
			if err := oc.batch.Validate(); err != nil {
				return fmt.Errorf("invalid batch: %w", err)
			}
			batch = oc.batch
		}
		return nil
	})

	e.observe(op, start, err)
	if err != nil {
		e.logger.Debug().Err(err).Str("operation", op).Str("caller", call.Identity).Msg("operation rejected")
		return fmt.Errorf("%s: %w", op, err)
	}

	if evt != nil && e.emitter != nil {
		e.emitter.Emit(Committed{
			Operation: op,
			RequestID: call.RequestID,
			Event:     evt,
			Batch:     batch,
			Timestamp: now,
		})
	}
	return nil
}

func (e *Engine) observe(op string, start time.Time, err error) {
	if e.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = market.CodeOf(err)
	}
	e.metrics.OperationsTotal.WithLabelValues(op, result).Inc()
	e.metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// SeenRequest reports whether a request id has already been applied.
func (e *Engine) SeenRequest(ctx context.Context, requestID string) (bool, error) {
	var seen bool
	err := e.store.View(ctx, func(txn store.Txn) error {
		_, err := txn.Get(market.RequestKey(requestID))
		if err == nil {
			seen = true
			return nil
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	})
	return seen, err
}

func requireCaller(call Call) error {
	if call.Identity == "" {
		return market.ErrUnauthorized
	}
	return nil
}
