package core

import (
	"context"
	"strings"

	"github.com/TanmayDhobale/miniForesight/internal/event"
	"github.com/TanmayDhobale/miniForesight/internal/market"
	fpmath "github.com/TanmayDhobale/miniForesight/internal/math"
)

// Initialize creates the platform configuration. The caller becomes the
// platform authority. It succeeds at most once per store.
func (e *Engine) Initialize(ctx context.Context, call Call, feeBps uint16, feeRecipient string) (*market.GlobalConfig, error) {
	if err := market.ValidateFee(feeBps); err != nil {
		return nil, err
	}
	if strings.TrimSpace(feeRecipient) == "" {
		return nil, market.ErrInvalidFeeRecipient
	}
	if err := requireCaller(call); err != nil {
		return nil, err
	}

	cfg := &market.GlobalConfig{
		Authority:    call.Identity,
		FeeBps:       feeBps,
		FeeRecipient: feeRecipient,
	}
	err := e.execute(ctx, OpInitialize, call, nil, func(oc *opContext) (event.Event, error) {
		if err := oc.rec.CreateConfig(cfg); err != nil {
			return nil, err
		}
		return &event.PlatformInitialized{
			Authority:    cfg.Authority,
			FeeBps:       cfg.FeeBps,
			FeeRecipient: cfg.FeeRecipient,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info().Str("authority", cfg.Authority).Uint16("fee_bps", feeBps).Msg("platform initialized")
	return cfg, nil
}

// CreateMarket validates p and opens a new market owned by the caller.
func (e *Engine) CreateMarket(ctx context.Context, call Call, p market.CreateParams) (*market.Market, error) {
	if err := requireCaller(call); err != nil {
		return nil, err
	}

	var created *market.Market
	err := e.execute(ctx, OpCreateMarket, call, &p.ID, func(oc *opContext) (event.Event, error) {
		if err := market.ValidateCreate(p, oc.now); err != nil {
			return nil, err
		}

		cfg, err := oc.rec.Config()
		if err != nil {
			return nil, err
		}
		total, err := fpmath.CheckedAdd(cfg.TotalMarkets, 1)
		if err != nil {
			return nil, err
		}

		m := &market.Market{
			ID:           p.ID,
			Creator:      call.Identity,
			Question:     p.Question,
			Outcomes:     append([]string(nil), p.Outcomes...),
			EndTime:      p.EndTime,
			Oracle:       p.Oracle,
			MinBet:       p.MinBet,
			Status:       market.StatusActive,
			OutcomePools: make([]uint64, len(p.Outcomes)),
			CreatedAt:    oc.now,
		}
		if err := oc.rec.CreateMarket(m); err != nil {
			return nil, err
		}
		cfg.TotalMarkets = total
		if err := oc.rec.PutConfig(cfg); err != nil {
			return nil, err
		}

		created = m
		return &event.MarketCreated{
			Market:    m.ID,
			Creator:   m.Creator,
			Question:  m.Question,
			Outcomes:  m.Outcomes,
			EndTime:   m.EndTime,
			Oracle:    m.Oracle,
			MinBet:    m.MinBet,
			CreatedAt: m.CreatedAt,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.MarketsCreated.Inc()
	}
	e.logger.Info().Uint64("market_id", created.ID).Str("creator", created.Creator).Int("outcomes", len(created.Outcomes)).Msg("market created")
	return created, nil
}

// CloseMarket cancels an active market. Only the platform authority may
// close; a cancelled market never pays out.
func (e *Engine) CloseMarket(ctx context.Context, call Call, marketID uint64) (*market.Market, error) {
	if err := requireCaller(call); err != nil {
		return nil, err
	}

	var closed *market.Market
	err := e.execute(ctx, OpCloseMarket, call, &marketID, func(oc *opContext) (event.Event, error) {
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
		if err := requireActive(m); err != nil {
			return nil, err
		}

		m.Status = market.StatusCancelled
		if err := oc.rec.PutMarket(m); err != nil {
			return nil, err
		}

		closed = m
		return &event.MarketClosed{Market: m.ID, Authority: call.Identity}, nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info().Uint64("market_id", marketID).Msg("market closed")
	return closed, nil
}

// requireActive maps a terminal status to its state error.
func requireActive(m *market.Market) error {
	switch m.Status {
	case market.StatusActive:
		return nil
	case market.StatusResolved:
		return market.ErrAlreadyResolved
	default:
		return market.ErrMarketNotActive
	}
}
