package event

type PlatformInitialized struct {
	Authority    string `json:"authority"`
	FeeBps       uint16 `json:"fee_bps"`
	FeeRecipient string `json:"fee_recipient"`
}

func (e *PlatformInitialized) EventType() EventType { return EventTypePlatformInitialized }
func (e *PlatformInitialized) MarketID() *uint64    { return nil }

type MarketCreated struct {
	Market    uint64   `json:"market_id"`
	Creator   string   `json:"creator"`
	Question  string   `json:"question"`
	Outcomes  []string `json:"outcomes"`
	EndTime   int64    `json:"end_time"`
	Oracle    string   `json:"oracle"`
	MinBet    uint64   `json:"min_bet"`
	CreatedAt int64    `json:"created_at"`
}

func (e *MarketCreated) EventType() EventType { return EventTypeMarketCreated }
func (e *MarketCreated) MarketID() *uint64    { return &e.Market }

type BetPlaced struct {
	User         string `json:"user"`
	Market       uint64 `json:"market_id"`
	OutcomeIndex int    `json:"outcome_index"`
	Amount       uint64 `json:"amount"`
	TotalPool    uint64 `json:"total_pool"`
}

func (e *BetPlaced) EventType() EventType { return EventTypeBetPlaced }
func (e *BetPlaced) MarketID() *uint64    { return &e.Market }

type MarketResolved struct {
	Market         uint64 `json:"market_id"`
	WinningOutcome int    `json:"winning_outcome"`
	Resolver       string `json:"resolver"`
	TotalPool      uint64 `json:"total_pool"`
	WinningPool    uint64 `json:"winning_pool"`
}

func (e *MarketResolved) EventType() EventType { return EventTypeMarketResolved }
func (e *MarketResolved) MarketID() *uint64    { return &e.Market }

type WinningsClaimed struct {
	User   string `json:"user"`
	Market uint64 `json:"market_id"`
	Amount uint64 `json:"amount"`
}

func (e *WinningsClaimed) EventType() EventType { return EventTypeWinningsClaimed }
func (e *WinningsClaimed) MarketID() *uint64    { return &e.Market }

type FeesCollected struct {
	Market    uint64 `json:"market_id"`
	Amount    uint64 `json:"amount"`
	Recipient string `json:"recipient"`
}

func (e *FeesCollected) EventType() EventType { return EventTypeFeesCollected }
func (e *FeesCollected) MarketID() *uint64    { return &e.Market }

type MarketClosed struct {
	Market    uint64 `json:"market_id"`
	Authority string `json:"authority"`
}

func (e *MarketClosed) EventType() EventType { return EventTypeMarketClosed }
func (e *MarketClosed) MarketID() *uint64    { return &e.Market }

type FundsDeposited struct {
	Identity string `json:"identity"`
	Amount   uint64 `json:"amount"`
	Balance  uint64 `json:"balance"`
}

func (e *FundsDeposited) EventType() EventType { return EventTypeFundsDeposited }
func (e *FundsDeposited) MarketID() *uint64    { return nil }

type FundsWithdrawn struct {
	Identity string `json:"identity"`
	Amount   uint64 `json:"amount"`
	Balance  uint64 `json:"balance"`
}

func (e *FundsWithdrawn) EventType() EventType { return EventTypeFundsWithdrawn }
func (e *FundsWithdrawn) MarketID() *uint64    { return nil }
