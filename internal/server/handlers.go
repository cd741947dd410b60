package server

import (
	"context"

	"github.com/TanmayDhobale/miniForesight/internal/auth"
	"github.com/TanmayDhobale/miniForesight/internal/core"
	"github.com/TanmayDhobale/miniForesight/internal/ingestion"
	"github.com/TanmayDhobale/miniForesight/internal/market"
	"github.com/TanmayDhobale/miniForesight/internal/query"
)

// foresightService implements ForesightServer over the engine and the
// query service. It returns settlement errors unchanged; transports map
// them to their own status codes.
type foresightService struct {
	engine ingestion.Engine
	qs     *query.QueryService
}

var _ ForesightServer = (*foresightService)(nil)

// call builds the engine call for the authenticated caller in ctx.
func call(ctx context.Context, requestID string) (core.Call, error) {
	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return core.Call{}, auth.ErrMissingCredentials
	}
	return core.Call{Identity: id, RequestID: requestID}, nil
}

func (s *foresightService) Initialize(ctx context.Context, req *InitializeRequest) (*market.GlobalConfig, error) {
	c, err := call(ctx, req.RequestID)
	if err != nil {
		return nil, err
	}
	return s.engine.Initialize(ctx, c, req.FeeBps, req.FeeRecipient)
}

func (s *foresightService) CreateMarket(ctx context.Context, req *CreateMarketRequest) (*market.Market, error) {
	c, err := call(ctx, req.RequestID)
	if err != nil {
		return nil, err
	}
	return s.engine.CreateMarket(ctx, c, req.CreateParams)
}

func (s *foresightService) PlaceBet(ctx context.Context, req *PlaceBetRequest) (*PlaceBetResponse, error) {
	c, err := call(ctx, req.RequestID)
	if err != nil {
		return nil, err
	}
	res, err := s.engine.PlaceBet(ctx, c, req.MarketID, req.OutcomeIndex, req.Amount)
	if err != nil {
		return nil, err
	}
	return &PlaceBetResponse{Market: res.Market, Position: res.Position}, nil
}

func (s *foresightService) ResolveMarket(ctx context.Context, req *ResolveMarketRequest) (*market.Market, error) {
	c, err := call(ctx, req.RequestID)
	if err != nil {
		return nil, err
	}
	return s.engine.ResolveMarket(ctx, c, req.MarketID, req.WinningOutcome)
}

func (s *foresightService) ClaimWinnings(ctx context.Context, req *ClaimWinningsRequest) (*ClaimWinningsResponse, error) {
	c, err := call(ctx, req.RequestID)
	if err != nil {
		return nil, err
	}
	res, err := s.engine.ClaimWinnings(ctx, c, req.MarketID, req.Owner)
	if err != nil {
		return nil, err
	}
	return &ClaimWinningsResponse{Payout: res.Payout, Position: res.Position}, nil
}

func (s *foresightService) CollectFees(ctx context.Context, req *MarketRequest) (*CollectFeesResponse, error) {
	c, err := call(ctx, req.RequestID)
	if err != nil {
		return nil, err
	}
	amount, err := s.engine.CollectFees(ctx, c, req.MarketID)
	if err != nil {
		return nil, err
	}
	return &CollectFeesResponse{MarketID: req.MarketID, Amount: amount}, nil
}

func (s *foresightService) CloseMarket(ctx context.Context, req *MarketRequest) (*market.Market, error) {
	c, err := call(ctx, req.RequestID)
	if err != nil {
		return nil, err
	}
	return s.engine.CloseMarket(ctx, c, req.MarketID)
}

func (s *foresightService) Deposit(ctx context.Context, req *DepositRequest) (*WalletResponse, error) {
	c, err := call(ctx, req.RequestID)
	if err != nil {
		return nil, err
	}
	bal, err := s.engine.Deposit(ctx, c, req.Identity, req.Amount)
	if err != nil {
		return nil, err
	}
	return &WalletResponse{Identity: req.Identity, Balance: bal}, nil
}

func (s *foresightService) Withdraw(ctx context.Context, req *WithdrawRequest) (*WalletResponse, error) {
	c, err := call(ctx, req.RequestID)
	if err != nil {
		return nil, err
	}
	bal, err := s.engine.Withdraw(ctx, c, req.Amount)
	if err != nil {
		return nil, err
	}
	return &WalletResponse{Identity: c.Identity, Balance: bal}, nil
}

// --- Queries ---

func (s *foresightService) GetConfig(ctx context.Context, _ *GetConfigRequest) (*market.GlobalConfig, error) {
	return s.qs.GetConfig(ctx)
}

func (s *foresightService) GetMarket(ctx context.Context, req *MarketRequest) (*query.MarketResponse, error) {
	return s.qs.GetMarket(ctx, req.MarketID)
}

func (s *foresightService) ListMarkets(ctx context.Context, req *ListMarketsRequest) (*query.MarketList, error) {
	var status *market.Status
	if req.Status != "" {
		st, err := market.ParseStatus(req.Status)
		if err != nil {
			return nil, badRequest(err.Error())
		}
		status = &st
	}
	return s.qs.ListMarkets(ctx, status, req.After, req.Limit)
}

func (s *foresightService) GetPosition(ctx context.Context, req *PositionRequest) (*query.PositionResponse, error) {
	return s.qs.GetPosition(ctx, req.MarketID, req.Owner)
}

func (s *foresightService) QuoteClaim(ctx context.Context, req *PositionRequest) (*query.ClaimQuote, error) {
	return s.qs.QuoteClaim(ctx, req.MarketID, req.Owner)
}

func (s *foresightService) GetBalance(ctx context.Context, req *GetBalanceRequest) (*query.BalanceResponse, error) {
	return s.qs.GetBalance(ctx, req.Identity)
}
