package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/TanmayDhobale/miniForesight/internal/ledger"
	"github.com/TanmayDhobale/miniForesight/internal/market"
	fpmath "github.com/TanmayDhobale/miniForesight/internal/math"
	"github.com/TanmayDhobale/miniForesight/internal/projection"
	"github.com/TanmayDhobale/miniForesight/internal/state"
	"github.com/TanmayDhobale/miniForesight/internal/store"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// QueryService provides read-only access to settlement records. Reads go
// to the store in read-only transactions; GetMarket is served from the
// market cache first when one is configured.
type QueryService struct {
	store    store.Store
	cache    projection.MarketCache
	decimals int32
	logger   zerolog.Logger
}

type Option func(*QueryService)

// WithCache puts a read-through market cache in front of GetMarket.
func WithCache(c projection.MarketCache) Option { return func(q *QueryService) { q.cache = c } }

// WithDecimals sets the number of decimals used for display amounts.
func WithDecimals(d int32) Option { return func(q *QueryService) { q.decimals = d } }

func WithLogger(l zerolog.Logger) Option { return func(q *QueryService) { q.logger = l } }

func NewQueryService(s store.Store, opts ...Option) *QueryService {
	q := &QueryService{store: s, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Format renders amount with the service's display decimals.
func (qs *QueryService) Format(amount uint64) string {
	return FormatAmount(amount, qs.decimals)
}

func (qs *QueryService) view(ctx context.Context, fn func(*state.Records) error) error {
	return qs.store.View(ctx, func(txn store.Txn) error {
		return fn(state.New(txn))
	})
}

// GetConfig returns the platform configuration.
func (qs *QueryService) GetConfig(ctx context.Context) (*market.GlobalConfig, error) {
	var cfg *market.GlobalConfig
	err := qs.view(ctx, func(rec *state.Records) error {
		var err error
		cfg, err = rec.Config()
		return err
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetMarket returns a market with its derived odds and escrow balance.
func (qs *QueryService) GetMarket(ctx context.Context, id uint64) (*MarketResponse, error) {
	cfg, err := qs.GetConfig(ctx)
	if err != nil {
		return nil, err
	}

	m, fromCache := qs.cachedMarket(ctx, id)
	if m == nil {
		err := qs.view(ctx, func(rec *state.Records) error {
			var err error
			m, err = rec.Market(id)
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	return &MarketResponse{
		Market:           *m,
		TotalPoolDisplay: qs.Format(m.TotalPool),
		EscrowBalance:    m.EscrowBalance(),
		Odds:             MarketOdds(m, cfg.FeeBps),
		FromCache:        fromCache,
	}, nil
}

// cachedMarket returns nil on a miss or when the cache is unavailable; the
// store is authoritative.
func (qs *QueryService) cachedMarket(ctx context.Context, id uint64) (*market.Market, bool) {
	if qs.cache == nil {
		return nil, false
	}
	m, err := qs.cache.Get(ctx, id)
	if err == nil {
		return m, true
	}
	if !errors.Is(err, projection.ErrCacheMiss) {
		qs.logger.Warn().Err(err).Uint64("market_id", id).Msg("market cache read failed")
	}
	return nil, false
}

// ListMarkets returns markets in id order, starting after the given id.
// A nil status lists every market.
func (qs *QueryService) ListMarkets(ctx context.Context, status *market.Status, after uint64, limit int) (*MarketList, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	var all []*market.Market
	err := qs.view(ctx, func(rec *state.Records) error {
		return rec.Markets(func(m *market.Market) error {
			if m.ID <= after {
				return nil
			}
			if status != nil && m.Status != *status {
				return nil
			}
			all = append(all, m)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}

	out := &MarketList{Markets: all}
	if len(all) > limit {
		out.Markets = all[:limit]
		out.NextAfter = all[limit-1].ID
	}
	if out.Markets == nil {
		out.Markets = []*market.Market{}
	}
	return out, nil
}

// GetPosition returns owner's position in a market.
func (qs *QueryService) GetPosition(ctx context.Context, marketID uint64, owner string) (*PositionResponse, error) {
	var pos *market.Position
	err := qs.view(ctx, func(rec *state.Records) error {
		if _, err := rec.Market(marketID); err != nil {
			return err
		}
		var err error
		pos, err = rec.Position(marketID, owner)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &PositionResponse{Position: *pos, TotalBetDisplay: qs.Format(pos.TotalBet)}, nil
}

// GetBalance returns an identity's wallet balance. Unknown identities have
// a zero balance.
func (qs *QueryService) GetBalance(ctx context.Context, identity string) (*BalanceResponse, error) {
	if identity == "" {
		return nil, market.ErrInvalidIdentity
	}
	var bal uint64
	err := qs.store.View(ctx, func(txn store.Txn) error {
		var err error
		bal, err = ledger.Balance(txn, ledger.WalletAccount(identity))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("balance of %s: %w", identity, err)
	}
	return &BalanceResponse{Identity: identity, Balance: bal, Display: qs.Format(bal)}, nil
}

// QuoteClaim computes what ClaimWinnings would pay owner right now. It
// applies the same checks in the same order, minus the caller check, and
// changes nothing.
func (qs *QueryService) QuoteClaim(ctx context.Context, marketID uint64, owner string) (*ClaimQuote, error) {
	if owner == "" {
		return nil, market.ErrInvalidIdentity
	}

	var quote *ClaimQuote
	err := qs.view(ctx, func(rec *state.Records) error {
		m, err := rec.Market(marketID)
		if err != nil {
			return err
		}
		if m.Status != market.StatusResolved {
			return market.ErrNotResolved
		}
		pos, err := rec.Position(marketID, owner)
		if errors.Is(err, market.ErrPositionNotFound) {
			return market.ErrNoWinningBet
		} else if err != nil {
			return err
		}
		if pos.Claimed {
			return market.ErrAlreadyClaimed
		}
		stake := pos.Bets[*m.WinningOutcome]
		if stake == 0 {
			return market.ErrNoWinningBet
		}

		cfg, err := rec.Config()
		if err != nil {
			return err
		}
		s, err := fpmath.Settle(m, cfg.FeeBps)
		if err != nil {
			return err
		}
		payout, err := s.PayoutFor(stake)
		if err != nil {
			return err
		}

		quote = &ClaimQuote{
			MarketID:    marketID,
			Owner:       owner,
			Stake:       stake,
			Payout:      payout,
			Display:     qs.Format(payout),
			TotalPool:   s.TotalPool,
			Fee:         s.Fee,
			PrizePool:   s.PrizePool,
			WinningPool: s.WinningPool,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return quote, nil
}
