package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"

	"github.com/TanmayDhobale/miniForesight/internal/auth"
	"github.com/TanmayDhobale/miniForesight/internal/market"
)

// ErrorBody is the JSON error document of the HTTP gateway.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	// Code is the settlement error code, e.g. "AlreadyClaimed", or the
	// gRPC code name for failures outside the settlement taxonomy.
	Code    string `json:"code"`
	Message string `json:"message"`
}

type gateway struct {
	mux      *runtime.ServeMux
	svc      ForesightServer
	verifier *auth.Verifier
	logger   zerolog.Logger
}

type gatewayFunc func(ctx context.Context, r *http.Request, params map[string]string) (any, error)

// NewGateway maps the HTTP/JSON routes onto svc in-process.
func NewGateway(svc ForesightServer, verifier *auth.Verifier, logger zerolog.Logger) (http.Handler, error) {
	g := &gateway{
		mux:      runtime.NewServeMux(),
		svc:      svc,
		verifier: verifier,
		logger:   logger,
	}

	routes := []struct {
		method  string
		pattern string
		status  int
		fn      gatewayFunc
	}{
		{"POST", "/v1/platform/initialize", http.StatusCreated, g.initialize},
		{"GET", "/v1/platform", http.StatusOK, g.getConfig},
		{"POST", "/v1/markets", http.StatusCreated, g.createMarket},
		{"GET", "/v1/markets", http.StatusOK, g.listMarkets},
		{"GET", "/v1/markets/{id}", http.StatusOK, g.getMarket},
		{"POST", "/v1/markets/{id}/bets", http.StatusOK, g.placeBet},
		{"POST", "/v1/markets/{id}/resolve", http.StatusOK, g.resolve},
		{"POST", "/v1/markets/{id}/claim", http.StatusOK, g.claim},
		{"POST", "/v1/markets/{id}/fees", http.StatusOK, g.collectFees},
		{"POST", "/v1/markets/{id}/close", http.StatusOK, g.close},
		{"GET", "/v1/markets/{id}/positions/{user}", http.StatusOK, g.getPosition},
		{"GET", "/v1/markets/{id}/quote/{user}", http.StatusOK, g.quote},
		{"GET", "/v1/wallets/{id}", http.StatusOK, g.getBalance},
		{"POST", "/v1/wallets/{id}/deposit", http.StatusOK, g.deposit},
		{"POST", "/v1/wallets/{id}/withdraw", http.StatusOK, g.withdraw},
	}
	for _, rt := range routes {
		if err := g.mux.HandlePath(rt.method, rt.pattern, g.wrap(rt.status, rt.fn)); err != nil {
			return nil, fmt.Errorf("route %s %s: %w", rt.method, rt.pattern, err)
		}
	}
	return g.mux, nil
}

func (g *gateway) wrap(okStatus int, fn gatewayFunc) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		ctx, err := g.identify(r)
		if err != nil {
			g.writeError(w, err)
			return
		}
		resp, err := fn(ctx, r, params)
		if err != nil {
			g.writeError(w, err)
			return
		}
		writeJSON(w, okStatus, resp)
	}
}

// identify attaches the caller to the request context, mirroring the gRPC
// auth interceptor.
func (g *gateway) identify(r *http.Request) (context.Context, error) {
	ctx := r.Context()
	token := auth.BearerToken(r.Header.Get(AuthorizationHeader))
	claimed := r.Header.Get(IdentityHeader)
	if token == "" && claimed == "" {
		return ctx, nil
	}
	identity, err := g.verifier.Identify(token, claimed)
	if err != nil {
		return nil, err
	}
	return auth.WithIdentity(ctx, identity), nil
}

func (g *gateway) writeError(w http.ResponseWriter, err error) {
	code := codeOf(err)
	body := ErrorBody{Error: ErrorDetail{Code: market.CodeOf(err), Message: err.Error()}}
	if market.KindOf(err) == market.KindUnknown {
		body.Error.Code = code.String()
		if code == codes.Internal {
			g.logger.Error().Err(err).Msg("gateway request failed")
			body.Error.Message = "internal error"
		}
	}
	writeJSON(w, runtime.HTTPStatusFromCode(code), body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decode reads an optional JSON body into v.
func decode(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return badRequest("invalid JSON body: " + err.Error())
}

func pathID(params map[string]string) (uint64, error) {
	id, err := strconv.ParseUint(params["id"], 10, 64)
	if err != nil {
		return 0, badRequest(fmt.Sprintf("invalid market id %q", params["id"]))
	}
	return id, nil
}

// ============================================================================
// Routes
// ============================================================================

func (g *gateway) initialize(ctx context.Context, r *http.Request, _ map[string]string) (any, error) {
	var req InitializeRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	return g.svc.Initialize(ctx, &req)
}

func (g *gateway) getConfig(ctx context.Context, _ *http.Request, _ map[string]string) (any, error) {
	return g.svc.GetConfig(ctx, &GetConfigRequest{})
}

func (g *gateway) createMarket(ctx context.Context, r *http.Request, _ map[string]string) (any, error) {
	var req CreateMarketRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	return g.svc.CreateMarket(ctx, &req)
}

func (g *gateway) listMarkets(ctx context.Context, r *http.Request, _ map[string]string) (any, error) {
	q := r.URL.Query()
	req := ListMarketsRequest{Status: q.Get("status")}
	if v := q.Get("after"); v != "" {
		after, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, badRequest("invalid after")
		}
		req.After = after
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return nil, badRequest("invalid limit")
		}
		req.Limit = limit
	}
	return g.svc.ListMarkets(ctx, &req)
}

func (g *gateway) getMarket(ctx context.Context, _ *http.Request, params map[string]string) (any, error) {
	id, err := pathID(params)
	if err != nil {
		return nil, err
	}
	return g.svc.GetMarket(ctx, &MarketRequest{MarketID: id})
}

func (g *gateway) placeBet(ctx context.Context, r *http.Request, params map[string]string) (any, error) {
	id, err := pathID(params)
	if err != nil {
		return nil, err
	}
	var req PlaceBetRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	req.MarketID = id
	return g.svc.PlaceBet(ctx, &req)
}

func (g *gateway) resolve(ctx context.Context, r *http.Request, params map[string]string) (any, error) {
	id, err := pathID(params)
	if err != nil {
		return nil, err
	}
	var req ResolveMarketRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	req.MarketID = id
	return g.svc.ResolveMarket(ctx, &req)
}

func (g *gateway) claim(ctx context.Context, r *http.Request, params map[string]string) (any, error) {
	id, err := pathID(params)
	if err != nil {
		return nil, err
	}
	var req ClaimWinningsRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	req.MarketID = id
	return g.svc.ClaimWinnings(ctx, &req)
}

func (g *gateway) collectFees(ctx context.Context, r *http.Request, params map[string]string) (any, error) {
	id, err := pathID(params)
	if err != nil {
		return nil, err
	}
	var req MarketRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	req.MarketID = id
	return g.svc.CollectFees(ctx, &req)
}

func (g *gateway) close(ctx context.Context, r *http.Request, params map[string]string) (any, error) {
	id, err := pathID(params)
	if err != nil {
		return nil, err
	}
	var req MarketRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	req.MarketID = id
	return g.svc.CloseMarket(ctx, &req)
}

func (g *gateway) getPosition(ctx context.Context, _ *http.Request, params map[string]string) (any, error) {
	id, err := pathID(params)
	if err != nil {
		return nil, err
	}
	return g.svc.GetPosition(ctx, &PositionRequest{MarketID: id, Owner: params["user"]})
}

func (g *gateway) quote(ctx context.Context, _ *http.Request, params map[string]string) (any, error) {
	id, err := pathID(params)
	if err != nil {
		return nil, err
	}
	return g.svc.QuoteClaim(ctx, &PositionRequest{MarketID: id, Owner: params["user"]})
}

func (g *gateway) getBalance(ctx context.Context, _ *http.Request, params map[string]string) (any, error) {
	return g.svc.GetBalance(ctx, &GetBalanceRequest{Identity: params["id"]})
}

func (g *gateway) deposit(ctx context.Context, r *http.Request, params map[string]string) (any, error) {
	var req DepositRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	req.Identity = params["id"]
	return g.svc.Deposit(ctx, &req)
}

// withdraw only debits the caller's own wallet, so the path must name the
// caller.
func (g *gateway) withdraw(ctx context.Context, r *http.Request, params map[string]string) (any, error) {
	caller, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return nil, auth.ErrMissingCredentials
	}
	if params["id"] != caller {
		return nil, market.ErrUnauthorized
	}
	var req WithdrawRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	return g.svc.Withdraw(ctx, &req)
}
