package ingestion

import (
	"context"
	"fmt"

	"github.com/TanmayDhobale/miniForesight/internal/core"
	"github.com/TanmayDhobale/miniForesight/internal/market"
)

// Engine is the subset of core.Engine commands drive.
type Engine interface {
	Initialize(ctx context.Context, call core.Call, feeBps uint16, feeRecipient string) (*market.GlobalConfig, error)
	CreateMarket(ctx context.Context, call core.Call, p market.CreateParams) (*market.Market, error)
	PlaceBet(ctx context.Context, call core.Call, marketID uint64, outcome int, amount uint64) (*core.BetResult, error)
	ResolveMarket(ctx context.Context, call core.Call, marketID uint64, winningOutcome int) (*market.Market, error)
	ClaimWinnings(ctx context.Context, call core.Call, marketID uint64, owner string) (*core.ClaimResult, error)
	CollectFees(ctx context.Context, call core.Call, marketID uint64) (uint64, error)
	CloseMarket(ctx context.Context, call core.Call, marketID uint64) (*market.Market, error)
	Deposit(ctx context.Context, call core.Call, identity string, amount uint64) (uint64, error)
	Withdraw(ctx context.Context, call core.Call, amount uint64) (uint64, error)
}

var _ Engine = (*core.Engine)(nil)

// Dispatch runs cmd on behalf of identity and returns the operation's
// result value.
func Dispatch(ctx context.Context, e Engine, identity string, cmd *Command) (any, error) {
	call := core.Call{Identity: identity, RequestID: cmd.RequestID}

	switch cmd.Op {
	case core.OpInitialize:
		return e.Initialize(ctx, call, cmd.FeeBps, cmd.FeeRecipient)
	case core.OpCreateMarket:
		return e.CreateMarket(ctx, call, cmd.Create)
	case core.OpPlaceBet:
		return e.PlaceBet(ctx, call, cmd.MarketID, cmd.Outcome, cmd.Amount)
	case core.OpResolveMarket:
		return e.ResolveMarket(ctx, call, cmd.MarketID, cmd.Outcome)
	case core.OpClaimWinnings:
		return e.ClaimWinnings(ctx, call, cmd.MarketID, cmd.Owner)
	case core.OpCollectFees:
		return e.CollectFees(ctx, call, cmd.MarketID)
	case core.OpCloseMarket:
		return e.CloseMarket(ctx, call, cmd.MarketID)
	case core.OpDeposit:
		return e.Deposit(ctx, call, cmd.Identity, cmd.Amount)
	case core.OpWithdraw:
		return e.Withdraw(ctx, call, cmd.Amount)
	default:
		return nil, fmt.Errorf("%w: unknown operation %q", ErrMalformedCommand, cmd.Op)
	}
}
