package market

import (
	"fmt"
	"time"
)

const (
	MaxFeeBps      = 500
	BpsDenominator = 10_000

	MinOutcomes    = 2
	MaxOutcomes    = 8
	MaxQuestionLen = 200
	MaxOutcomeLen  = 50

	MinDuration = time.Hour
	MaxDuration = 90 * 24 * time.Hour
)

// Status is the market lifecycle state. Resolved and Cancelled are terminal.
type Status int32

const (
	StatusActive Status = iota
	StatusResolved
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusResolved:
		return "resolved"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func ParseStatus(s string) (Status, error) {
	switch s {
	case "active":
		return StatusActive, nil
	case "resolved":
		return StatusResolved, nil
	case "cancelled":
		return StatusCancelled, nil
	}
	return 0, fmt.Errorf("unknown market status %q", s)
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// GlobalConfig is the platform-wide configuration record.
type GlobalConfig struct {
	Authority    string `json:"authority"`
	FeeBps       uint16 `json:"fee_bps"`
	FeeRecipient string `json:"fee_recipient"`
	TotalMarkets uint64 `json:"total_markets"`
}

// Market is a single pooled proposition. OutcomePools is parallel to
// Outcomes and always sums to TotalPool.
type Market struct {
	ID             uint64   `json:"id"`
	Creator        string   `json:"creator"`
	Question       string   `json:"question"`
	Outcomes       []string `json:"outcomes"`
	EndTime        int64    `json:"end_time"`
	Oracle         string   `json:"oracle"`
	MinBet         uint64   `json:"min_bet"`
	Status         Status   `json:"status"`
	TotalPool      uint64   `json:"total_pool"`
	OutcomePools   []uint64 `json:"outcome_pools"`
	WinningOutcome *int     `json:"winning_outcome,omitempty"`
	CreatedAt      int64    `json:"created_at"`
	FeesCollected  bool     `json:"fees_collected"`
	// PaidOut is the value released from escrow by claims and fee collection.
	PaidOut uint64 `json:"paid_out"`
}

// ValidOutcome reports whether idx addresses one of the market's outcomes.
func (m *Market) ValidOutcome(idx int) bool {
	return idx >= 0 && idx < len(m.Outcomes)
}

// WinningPool returns the stake on the winning outcome. ok is false until
// the market is resolved.
func (m *Market) WinningPool() (pool uint64, ok bool) {
	if m.Status != StatusResolved || m.WinningOutcome == nil {
		return 0, false
	}
	return m.OutcomePools[*m.WinningOutcome], true
}

// EscrowBalance is the value the market's escrow account should hold.
func (m *Market) EscrowBalance() uint64 {
	return m.TotalPool - m.PaidOut
}

func (m *Market) Clone() *Market {
	c := *m
	c.Outcomes = append([]string(nil), m.Outcomes...)
	c.OutcomePools = append([]uint64(nil), m.OutcomePools...)
	if m.WinningOutcome != nil {
		w := *m.WinningOutcome
		c.WinningOutcome = &w
	}
	return &c
}

// Position is one user's cumulative stake in one market.
type Position struct {
	Owner    string   `json:"owner"`
	MarketID uint64   `json:"market_id"`
	Bets     []uint64 `json:"bets"`
	TotalBet uint64   `json:"total_bet"`
	Claimed  bool     `json:"claimed"`
}

// NewPosition returns an empty position sized to the market's outcomes.
func NewPosition(owner string, m *Market) *Position {
	return &Position{
		Owner:    owner,
		MarketID: m.ID,
		Bets:     make([]uint64, len(m.Outcomes)),
	}
}

func (p *Position) Clone() *Position {
	c := *p
	c.Bets = append([]uint64(nil), p.Bets...)
	return &c
}

// CreateParams are the caller-supplied fields of a new market.
type CreateParams struct {
	ID       uint64   `json:"id"`
	Question string   `json:"question"`
	Outcomes []string `json:"outcomes"`
	EndTime  int64    `json:"end_time"`
	Oracle   string   `json:"oracle"`
	MinBet   uint64   `json:"min_bet"`
}
