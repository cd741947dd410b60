package server

import (
	"github.com/TanmayDhobale/miniForesight/internal/market"
)

// Request and response messages of foresight.v1.Foresight. Identity is
// never part of a request; it comes from call credentials.

type InitializeRequest struct {
	RequestID    string `json:"request_id,omitempty"`
	FeeBps       uint16 `json:"fee_bps"`
	FeeRecipient string `json:"fee_recipient"`
}

type CreateMarketRequest struct {
	RequestID string `json:"request_id,omitempty"`
	market.CreateParams
}

type PlaceBetRequest struct {
	RequestID    string `json:"request_id,omitempty"`
	MarketID     uint64 `json:"market_id"`
	OutcomeIndex int    `json:"outcome_index"`
	Amount       uint64 `json:"amount"`
}

type PlaceBetResponse struct {
	Market   *market.Market   `json:"market"`
	Position *market.Position `json:"position"`
}

type ResolveMarketRequest struct {
	RequestID      string `json:"request_id,omitempty"`
	MarketID       uint64 `json:"market_id"`
	WinningOutcome int    `json:"winning_outcome"`
}

type ClaimWinningsRequest struct {
	RequestID string `json:"request_id,omitempty"`
	MarketID  uint64 `json:"market_id"`
	Owner     string `json:"owner,omitempty"`
}

type ClaimWinningsResponse struct {
	Payout   uint64           `json:"payout"`
	Position *market.Position `json:"position"`
}

// MarketRequest addresses one market; used by CollectFees, CloseMarket
// and GetMarket.
type MarketRequest struct {
	RequestID string `json:"request_id,omitempty"`
	MarketID  uint64 `json:"market_id"`
}

type CollectFeesResponse struct {
	MarketID uint64 `json:"market_id"`
	Amount   uint64 `json:"amount"`
}

type DepositRequest struct {
	RequestID string `json:"request_id,omitempty"`
	Identity  string `json:"identity"`
	Amount    uint64 `json:"amount"`
}

type WithdrawRequest struct {
	RequestID string `json:"request_id,omitempty"`
	Amount    uint64 `json:"amount"`
}

type WalletResponse struct {
	Identity string `json:"identity"`
	Balance  uint64 `json:"balance"`
}

type GetConfigRequest struct{}

type ListMarketsRequest struct {
	Status string `json:"status,omitempty"`
	After  uint64 `json:"after,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type PositionRequest struct {
	MarketID uint64 `json:"market_id"`
	Owner    string `json:"owner"`
}

type GetBalanceRequest struct {
	Identity string `json:"identity"`
}
