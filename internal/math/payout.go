package math

import "github.com/TanmayDhobale/miniForesight/internal/market"

// Fee is floor(totalPool * feeBps / 10000).
func Fee(totalPool uint64, feeBps uint16) (uint64, error) {
	return MulDiv(totalPool, uint64(feeBps), market.BpsDenominator, RoundDown)
}

// PrizePool is the part of the pool distributed to winners.
func PrizePool(totalPool uint64, feeBps uint16) (uint64, error) {
	fee, err := Fee(totalPool, feeBps)
	if err != nil {
		return 0, err
	}
	return CheckedSub(totalPool, fee)
}

// Payout is floor(stake * prizePool / winningPool). The result never exceeds
// prizePool because stake <= winningPool for any real position.
func Payout(stake, prizePool, winningPool uint64) (uint64, error) {
	if winningPool == 0 {
		return 0, market.ErrDivisionByZero
	}
	if stake > winningPool {
		return 0, market.ErrInvalidPayout
	}
	payout, err := MulDiv(stake, prizePool, winningPool, RoundDown)
	if err != nil {
		return 0, err
	}
	if payout > prizePool {
		return 0, market.ErrInvalidPayout
	}
	return payout, nil
}

// Settlement is the full split of a resolved market's pool.
type Settlement struct {
	TotalPool   uint64
	Fee         uint64
	PrizePool   uint64
	WinningPool uint64
}

// Settle computes the fee and prize split for a resolved market.
func Settle(m *market.Market, feeBps uint16) (Settlement, error) {
	winningPool, ok := m.WinningPool()
	if !ok {
		return Settlement{}, market.ErrNotResolved
	}
	fee, err := Fee(m.TotalPool, feeBps)
	if err != nil {
		return Settlement{}, err
	}
	prize, err := CheckedSub(m.TotalPool, fee)
	if err != nil {
		return Settlement{}, err
	}
	return Settlement{
		TotalPool:   m.TotalPool,
		Fee:         fee,
		PrizePool:   prize,
		WinningPool: winningPool,
	}, nil
}

// PayoutFor applies the settlement to one winning stake.
func (s Settlement) PayoutFor(stake uint64) (uint64, error) {
	return Payout(stake, s.PrizePool, s.WinningPool)
}
