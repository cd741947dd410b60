package projection

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/TanmayDhobale/miniForesight/internal/core"
	"github.com/TanmayDhobale/miniForesight/internal/market"
	"github.com/TanmayDhobale/miniForesight/internal/state"
	"github.com/TanmayDhobale/miniForesight/internal/store"
)

// ProjectionWorker refreshes the market cache from sequenced events.
// The projection channel is non-blocking with drop; a missed event leaves a
// stale entry only until the next event on that market or the cache TTL.
type ProjectionWorker struct {
	store     store.Store
	cache     MarketCache
	inputChan <-chan core.CoreOutput
	logger    zerolog.Logger
	lastSeq   int64
}

func NewProjectionWorker(s store.Store, cache MarketCache, inputChan <-chan core.CoreOutput, logger zerolog.Logger) *ProjectionWorker {
	return &ProjectionWorker{
		store:     s,
		cache:     cache,
		inputChan: inputChan,
		logger:    logger,
	}
}

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			if err := pw.processOutput(ctx, output); err != nil {
				// Projections are eventually consistent; keep going.
				pw.logger.Warn().Err(err).Int64("sequence", output.Envelope.Sequence).Msg("projection update failed")
			}
			pw.lastSeq = output.Envelope.Sequence
		}
	}
}

// LastSequence is the last sequence seen. Only safe after Run returns.
func (pw *ProjectionWorker) LastSequence() int64 {
	return pw.lastSeq
}

// processOutput re-reads the committed market rather than replaying the
// event, so the cache always holds a store-consistent record.
func (pw *ProjectionWorker) processOutput(ctx context.Context, output core.CoreOutput) error {
	id := output.Envelope.MarketID
	if id == nil {
		return nil
	}

	var m *market.Market
	err := pw.store.View(ctx, func(txn store.Txn) error {
		var err error
		m, err = state.New(txn).Market(*id)
		return err
	})
	if err != nil {
		return fmt.Errorf("load market %d: %w", *id, err)
	}
	return pw.cache.Set(ctx, m, output.Envelope.Sequence)
}
