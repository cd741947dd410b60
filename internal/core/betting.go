package core

import (
	"context"
	"errors"

	"github.com/TanmayDhobale/miniForesight/internal/event"
	"github.com/TanmayDhobale/miniForesight/internal/ledger"
	"github.com/TanmayDhobale/miniForesight/internal/market"
	fpmath "github.com/TanmayDhobale/miniForesight/internal/math"
)

// BetResult is the state of the market and the bettor's position after a
// bet commits.
type BetResult struct {
	Market   *market.Market
	Position *market.Position
}

// PlaceBet stakes amount on one outcome and moves it from the caller's
// wallet into the market escrow.
func (e *Engine) PlaceBet(ctx context.Context, call Call, marketID uint64, outcome int, amount uint64) (*BetResult, error) {
	if err := requireCaller(call); err != nil {
		return nil, err
	}

	var result *BetResult
	err := e.execute(ctx, OpPlaceBet, call, &marketID, func(oc *opContext) (event.Event, error) {
		m, err := oc.rec.Market(marketID)
		if err != nil {
			return nil, err
		}
		if m.Status != market.StatusActive {
			return nil, market.ErrMarketNotActive
		}
		if oc.now >= m.EndTime {
			return nil, market.ErrMarketExpired
		}
		if !m.ValidOutcome(outcome) {
			return nil, market.ErrInvalidOutcome
		}
		if amount < m.MinBet {
			return nil, market.ErrBetTooSmall
		}

		totalPool, err := fpmath.CheckedAdd(m.TotalPool, amount)
		if err != nil {
			return nil, err
		}
		outcomePool, err := fpmath.CheckedAdd(m.OutcomePools[outcome], amount)
		if err != nil {
			return nil, err
		}

		pos, err := oc.rec.Position(marketID, call.Identity)
		if errors.Is(err, market.ErrPositionNotFound) {
			pos = market.NewPosition(call.Identity, m)
		} else if err != nil {
			return nil, err
		}
		stake, err := fpmath.CheckedAdd(pos.Bets[outcome], amount)
		if err != nil {
			return nil, err
		}
		totalBet, err := fpmath.CheckedAdd(pos.TotalBet, amount)
		if err != nil {
			return nil, err
		}

		// Every new value is known; only now commit records and move funds.
		m.TotalPool = totalPool
		m.OutcomePools[outcome] = outcomePool
		pos.Bets[outcome] = stake
		pos.TotalBet = totalBet

		if err := oc.rec.PutMarket(m); err != nil {
			return nil, err
		}
		if err := oc.rec.PutPosition(pos); err != nil {
			return nil, err
		}
		if err := oc.move(
			ledger.WalletAccount(call.Identity),
			ledger.EscrowAccount(marketID),
			amount,
			ledger.UserAuthority(call.Identity),
			ledger.JournalTypeBetStake,
		); err != nil {
			return nil, err
		}

		result = &BetResult{Market: m, Position: pos}
		return &event.BetPlaced{
			User:         call.Identity,
			Market:       marketID,
			OutcomeIndex: outcome,
			Amount:       amount,
			TotalPool:    totalPool,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.BetVolume.Add(float64(amount))
	}
	e.logger.Debug().Uint64("market_id", marketID).Str("user", call.Identity).Int("outcome", outcome).Uint64("amount", amount).Msg("bet placed")
	return result, nil
}
