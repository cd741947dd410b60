package core

import (
	"context"
	"errors"

	"github.com/TanmayDhobale/miniForesight/internal/event"
	"github.com/TanmayDhobale/miniForesight/internal/ledger"
	"github.com/TanmayDhobale/miniForesight/internal/market"
	fpmath "github.com/TanmayDhobale/miniForesight/internal/math"
)

// ResolveMarket records the winning outcome. The market's oracle or the
// platform authority may resolve, once, at or after the end time.
func (e *Engine) ResolveMarket(ctx context.Context, call Call, marketID uint64, winningOutcome int) (*market.Market, error) {
	if err := requireCaller(call); err != nil {
		return nil, err
	}

	var resolved *market.Market
	err := e.execute(ctx, OpResolveMarket, call, &marketID, func(oc *opContext) (event.Event, error) {
		cfg, err := oc.rec.Config()
		if err != nil {
			return nil, err
		}
		m, err := oc.rec.Market(marketID)
		if err != nil {
			return nil, err
		}
		if call.Identity != m.Oracle && call.Identity != cfg.Authority {
			return nil, market.ErrUnauthorized
		}
		if err := requireActive(m); err != nil {
			return nil, err
		}
		if oc.now < m.EndTime {
			return nil, market.ErrTooEarly
		}
		if !m.ValidOutcome(winningOutcome) {
			return nil, market.ErrInvalidOutcome
		}

		w := winningOutcome
		m.Status = market.StatusResolved
		m.WinningOutcome = &w
		if err := oc.rec.PutMarket(m); err != nil {
			return nil, err
		}

		resolved = m
		return &event.MarketResolved{
			Market:         m.ID,
			WinningOutcome: w,
			Resolver:       call.Identity,
			TotalPool:      m.TotalPool,
			WinningPool:    m.OutcomePools[w],
		}, nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info().Uint64("market_id", marketID).Int("winning_outcome", winningOutcome).Str("resolver", call.Identity).Msg("market resolved")
	return resolved, nil
}

// ClaimResult describes a committed claim.
type ClaimResult struct {
	Payout   uint64
	Position *market.Position
}

// ClaimWinnings pays a winning position its share of the prize pool from
// the market escrow. owner defaults to the caller; claiming for anyone else
// is unauthorized.
func (e *Engine) ClaimWinnings(ctx context.Context, call Call, marketID uint64, owner string) (*ClaimResult, error) {
	if err := requireCaller(call); err != nil {
		return nil, err
	}
	if owner == "" {
		owner = call.Identity
	}

	var result *ClaimResult
	err := e.execute(ctx, OpClaimWinnings, call, &marketID, func(oc *opContext) (event.Event, error) {
		m, err := oc.rec.Market(marketID)
		if err != nil {
			return nil, err
		}
		if m.Status != market.StatusResolved {
			return nil, market.ErrNotResolved
		}

		pos, err := oc.rec.Position(marketID, owner)
		if errors.Is(err, market.ErrPositionNotFound) {
			if owner != call.Identity {
				return nil, market.ErrUnauthorized
			}
			return nil, market.ErrNoWinningBet
		} else if err != nil {
			return nil, err
		}
		if pos.Claimed {
			return nil, market.ErrAlreadyClaimed
		}
		if pos.Owner != call.Identity {
			return nil, market.ErrUnauthorized
		}
		stake := pos.Bets[*m.WinningOutcome]
		if stake == 0 {
			return nil, market.ErrNoWinningBet
		}

		cfg, err := oc.rec.Config()
		if err != nil {
			return nil, err
		}
		settlement, err := fpmath.Settle(m, cfg.FeeBps)
		if err != nil {
			return nil, err
		}
		payout, err := settlement.PayoutFor(stake)
		if err != nil {
			return nil, err
		}
		paidOut, err := reserveFromEscrow(m, settlement, payout)
		if err != nil {
			return nil, err
		}

		pos.Claimed = true
		m.PaidOut = paidOut
		if err := oc.rec.PutPosition(pos); err != nil {
			return nil, err
		}
		if err := oc.rec.PutMarket(m); err != nil {
			return nil, err
		}
		if payout > 0 {
			if err := oc.move(
				ledger.EscrowAccount(marketID),
				ledger.WalletAccount(pos.Owner),
				payout,
				ledger.EscrowAuthority(marketID),
				ledger.JournalTypeWinningsPayout,
			); err != nil {
				return nil, err
			}
		}

		result = &ClaimResult{Payout: payout, Position: pos}
		return &event.WinningsClaimed{User: pos.Owner, Market: marketID, Amount: payout}, nil
	})
	if err != nil {
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.PayoutsTotal.Add(float64(result.Payout))
	}
	e.logger.Info().Uint64("market_id", marketID).Str("user", owner).Uint64("payout", result.Payout).Msg("winnings claimed")
	return result, nil
}

// CollectFees moves the platform fee of a resolved market to the fee
// recipient. It returns the amount moved, which is zero when the fee rounds
// to nothing. A market's fee is collected at most once.
func (e *Engine) CollectFees(ctx context.Context, call Call, marketID uint64) (uint64, error) {
	if err := requireCaller(call); err != nil {
		return 0, err
	}

	var collected uint64
	err := e.execute(ctx, OpCollectFees, call, &marketID, func(oc *opContext) (event.Event, error) {
		collected = 0
		cfg, err := oc.rec.Config()
		if err != nil {
			return nil, err
		}
		if call.Identity != cfg.Authority {
			return nil, market.ErrUnauthorized
		}
		m, err := oc.rec.Market(marketID)
		if err != nil {
			return nil, err
		}
		if m.Status != market.StatusResolved {
			return nil, market.ErrNotResolved
		}
		if m.FeesCollected {
			return nil, market.ErrFeesAlreadyCollected
		}

		settlement, err := fpmath.Settle(m, cfg.FeeBps)
		if err != nil {
			return nil, err
		}
		if settlement.Fee == 0 {
			return nil, nil
		}
		paidOut, err := fpmath.CheckedAdd(m.PaidOut, settlement.Fee)
		if err != nil {
			return nil, err
		}
		if paidOut > m.TotalPool {
			return nil, market.ErrInvalidPayout
		}

		m.FeesCollected = true
		m.PaidOut = paidOut
		if err := oc.rec.PutMarket(m); err != nil {
			return nil, err
		}
		if err := oc.move(
			ledger.EscrowAccount(marketID),
			ledger.WalletAccount(cfg.FeeRecipient),
			settlement.Fee,
			ledger.EscrowAuthority(marketID),
			ledger.JournalTypeFeeCollection,
		); err != nil {
			return nil, err
		}

		collected = settlement.Fee
		return &event.FeesCollected{Market: marketID, Amount: settlement.Fee, Recipient: cfg.FeeRecipient}, nil
	})
	if err != nil {
		return 0, err
	}

	if e.metrics != nil {
		e.metrics.FeesCollected.Add(float64(collected))
	}
	e.logger.Info().Uint64("market_id", marketID).Uint64("fee", collected).Msg("fees collected")
	return collected, nil
}

// reserveFromEscrow returns the market's PaidOut after paying payout, or
// ErrInvalidPayout if the payout would eat into the uncollected fee.
func reserveFromEscrow(m *market.Market, s fpmath.Settlement, payout uint64) (uint64, error) {
	paidOut, err := fpmath.CheckedAdd(m.PaidOut, payout)
	if err != nil {
		return 0, err
	}
	committed := paidOut
	if !m.FeesCollected {
		committed, err = fpmath.CheckedAdd(committed, s.Fee)
		if err != nil {
			return 0, err
		}
	}
	if committed > m.TotalPool {
		return 0, market.ErrInvalidPayout
	}
	return paidOut, nil
}
