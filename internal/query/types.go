package query

import "github.com/TanmayDhobale/miniForesight/internal/market"

// MarketResponse is a market record plus derived display values.
type MarketResponse struct {
	market.Market
	TotalPoolDisplay string        `json:"total_pool_display"`
	EscrowBalance    uint64        `json:"escrow_balance"`
	Odds             []OutcomeOdds `json:"odds"`
	FromCache        bool          `json:"from_cache"`
}

// OutcomeOdds is the pool-implied view of one outcome.
type OutcomeOdds struct {
	Index int    `json:"index"`
	Label string `json:"label"`
	Pool  uint64 `json:"pool"`
	// Share of the total pool staked on this outcome, 0..1.
	Share string `json:"share"`
	// Payout per unit staked if this outcome wins, after fees. Empty when
	// nothing is staked on the outcome.
	Multiplier string `json:"multiplier,omitempty"`
}

// PositionResponse represents a position for API queries.
type PositionResponse struct {
	market.Position
	TotalBetDisplay string `json:"total_bet_display"`
}

// BalanceResponse represents a wallet balance for API queries.
type BalanceResponse struct {
	Identity string `json:"identity"`
	Balance  uint64 `json:"balance"`
	Display  string `json:"display"`
}

// ClaimQuote is what ClaimWinnings would pay now.
type ClaimQuote struct {
	MarketID    uint64 `json:"market_id"`
	Owner       string `json:"owner"`
	Stake       uint64 `json:"stake"`
	Payout      uint64 `json:"payout"`
	Display     string `json:"display"`
	TotalPool   uint64 `json:"total_pool"`
	Fee         uint64 `json:"fee"`
	PrizePool   uint64 `json:"prize_pool"`
	WinningPool uint64 `json:"winning_pool"`
}

// MarketList is one page of ListMarkets.
type MarketList struct {
	Markets []*market.Market `json:"markets"`
	// NextAfter is the id to pass as after for the next page, 0 when done.
	NextAfter uint64 `json:"next_after,omitempty"`
}
