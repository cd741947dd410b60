package server

import (
	"context"

	"google.golang.org/grpc"

	"github.com/TanmayDhobale/miniForesight/internal/market"
	"github.com/TanmayDhobale/miniForesight/internal/query"
)

const ServiceName = "foresight.v1.Foresight"

// ForesightServer is the foresight.v1.Foresight service.
type ForesightServer interface {
	Initialize(context.Context, *InitializeRequest) (*market.GlobalConfig, error)
	CreateMarket(context.Context, *CreateMarketRequest) (*market.Market, error)
	PlaceBet(context.Context, *PlaceBetRequest) (*PlaceBetResponse, error)
	ResolveMarket(context.Context, *ResolveMarketRequest) (*market.Market, error)
	ClaimWinnings(context.Context, *ClaimWinningsRequest) (*ClaimWinningsResponse, error)
	CollectFees(context.Context, *MarketRequest) (*CollectFeesResponse, error)
	CloseMarket(context.Context, *MarketRequest) (*market.Market, error)
	Deposit(context.Context, *DepositRequest) (*WalletResponse, error)
	Withdraw(context.Context, *WithdrawRequest) (*WalletResponse, error)

	GetConfig(context.Context, *GetConfigRequest) (*market.GlobalConfig, error)
	GetMarket(context.Context, *MarketRequest) (*query.MarketResponse, error)
	ListMarkets(context.Context, *ListMarketsRequest) (*query.MarketList, error)
	GetPosition(context.Context, *PositionRequest) (*query.PositionResponse, error)
	QuoteClaim(context.Context, *PositionRequest) (*query.ClaimQuote, error)
	GetBalance(context.Context, *GetBalanceRequest) (*query.BalanceResponse, error)
}

// ForesightServiceDesc registers ForesightServer with a grpc.Server.
var ForesightServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ForesightServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Initialize", ForesightServer.Initialize),
		unary("CreateMarket", ForesightServer.CreateMarket),
		unary("PlaceBet", ForesightServer.PlaceBet),
		unary("ResolveMarket", ForesightServer.ResolveMarket),
		unary("ClaimWinnings", ForesightServer.ClaimWinnings),
		unary("CollectFees", ForesightServer.CollectFees),
		unary("CloseMarket", ForesightServer.CloseMarket),
		unary("Deposit", ForesightServer.Deposit),
		unary("Withdraw", ForesightServer.Withdraw),
		unary("GetConfig", ForesightServer.GetConfig),
		unary("GetMarket", ForesightServer.GetMarket),
		unary("ListMarkets", ForesightServer.ListMarkets),
		unary("GetPosition", ForesightServer.GetPosition),
		unary("QuoteClaim", ForesightServer.QuoteClaim),
		unary("GetBalance", ForesightServer.GetBalance),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "foresight/v1/foresight.proto",
}

func RegisterForesightServer(s grpc.ServiceRegistrar, srv ForesightServer) {
	s.RegisterService(&ForesightServiceDesc, srv)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// unary builds the method descriptor that protoc-gen-go-grpc would
// generate for a unary RPC.
func unary[Req, Resp any](name string, call func(ForesightServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ForesightServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ForesightServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ============================================================================
// Client
// ============================================================================

// ForesightClient calls foresight.v1.Foresight over a client connection
// using the JSON codec.
type ForesightClient struct {
	cc grpc.ClientConnInterface
}

func NewForesightClient(cc grpc.ClientConnInterface) *ForesightClient {
	return &ForesightClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, name string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, fullMethod(name), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ForesightClient) Initialize(ctx context.Context, in *InitializeRequest, opts ...grpc.CallOption) (*market.GlobalConfig, error) {
	return invoke[market.GlobalConfig](ctx, c.cc, "Initialize", in, opts)
}

func (c *ForesightClient) CreateMarket(ctx context.Context, in *CreateMarketRequest, opts ...grpc.CallOption) (*market.Market, error) {
	return invoke[market.Market](ctx, c.cc, "CreateMarket", in, opts)
}

func (c *ForesightClient) PlaceBet(ctx context.Context, in *PlaceBetRequest, opts ...grpc.CallOption) (*PlaceBetResponse, error) {
	return invoke[PlaceBetResponse](ctx, c.cc, "PlaceBet", in, opts)
}

func (c *ForesightClient) ResolveMarket(ctx context.Context, in *ResolveMarketRequest, opts ...grpc.CallOption) (*market.Market, error) {
	return invoke[market.Market](ctx, c.cc, "ResolveMarket", in, opts)
}

func (c *ForesightClient) ClaimWinnings(ctx context.Context, in *ClaimWinningsRequest, opts ...grpc.CallOption) (*ClaimWinningsResponse, error) {
	return invoke[ClaimWinningsResponse](ctx, c.cc, "ClaimWinnings", in, opts)
}

func (c *ForesightClient) CollectFees(ctx context.Context, in *MarketRequest, opts ...grpc.CallOption) (*CollectFeesResponse, error) {
	return invoke[CollectFeesResponse](ctx, c.cc, "CollectFees", in, opts)
}

func (c *ForesightClient) CloseMarket(ctx context.Context, in *MarketRequest, opts ...grpc.CallOption) (*market.Market, error) {
	return invoke[market.Market](ctx, c.cc, "CloseMarket", in, opts)
}

func (c *ForesightClient) Deposit(ctx context.Context, in *DepositRequest, opts ...grpc.CallOption) (*WalletResponse, error) {
	return invoke[WalletResponse](ctx, c.cc, "Deposit", in, opts)
}

func (c *ForesightClient) Withdraw(ctx context.Context, in *WithdrawRequest, opts ...grpc.CallOption) (*WalletResponse, error) {
	return invoke[WalletResponse](ctx, c.cc, "Withdraw", in, opts)
}

func (c *ForesightClient) GetConfig(ctx context.Context, in *GetConfigRequest, opts ...grpc.CallOption) (*market.GlobalConfig, error) {
	return invoke[market.GlobalConfig](ctx, c.cc, "GetConfig", in, opts)
}

func (c *ForesightClient) GetMarket(ctx context.Context, in *MarketRequest, opts ...grpc.CallOption) (*query.MarketResponse, error) {
	return invoke[query.MarketResponse](ctx, c.cc, "GetMarket", in, opts)
}

func (c *ForesightClient) ListMarkets(ctx context.Context, in *ListMarketsRequest, opts ...grpc.CallOption) (*query.MarketList, error) {
	return invoke[query.MarketList](ctx, c.cc, "ListMarkets", in, opts)
}

func (c *ForesightClient) GetPosition(ctx context.Context, in *PositionRequest, opts ...grpc.CallOption) (*query.PositionResponse, error) {
	return invoke[query.PositionResponse](ctx, c.cc, "GetPosition", in, opts)
}

func (c *ForesightClient) QuoteClaim(ctx context.Context, in *PositionRequest, opts ...grpc.CallOption) (*query.ClaimQuote, error) {
	return invoke[query.ClaimQuote](ctx, c.cc, "QuoteClaim", in, opts)
}

func (c *ForesightClient) GetBalance(ctx context.Context, in *GetBalanceRequest, opts ...grpc.CallOption) (*query.BalanceResponse, error) {
	return invoke[query.BalanceResponse](ctx, c.cc, "GetBalance", in, opts)
}
