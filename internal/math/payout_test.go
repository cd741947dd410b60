package math_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TanmayDhobale/miniForesight/internal/market"
	fpmath "github.com/TanmayDhobale/miniForesight/internal/math"
)

const maxU64 = ^uint64(0)

// ============================================================================
// Test: Checked arithmetic
// ============================================================================

func TestCheckedAdd_Overflow(t *testing.T) {
	v, err := fpmath.CheckedAdd(maxU64-1, 1)
	require.NoError(t, err)
	assert.Equal(t, maxU64, v)

	_, err = fpmath.CheckedAdd(maxU64, 1)
	assert.ErrorIs(t, err, market.ErrArithmeticOverflow)
}

func TestCheckedSub_Underflow(t *testing.T) {
	_, err := fpmath.CheckedSub(1, 2)
	assert.ErrorIs(t, err, market.ErrArithmeticOverflow)
}

func TestMulDiv_WideIntermediate(t *testing.T) {
	// maxU64 * maxU64 overflows 64 bits but the quotient fits.
	v, err := fpmath.MulDiv(maxU64, maxU64, maxU64, fpmath.RoundDown)
	require.NoError(t, err)
	assert.Equal(t, maxU64, v)

	_, err = fpmath.MulDiv(maxU64, 2, 1, fpmath.RoundDown)
	assert.ErrorIs(t, err, market.ErrArithmeticOverflow)

	_, err = fpmath.MulDiv(1, 1, 0, fpmath.RoundDown)
	assert.ErrorIs(t, err, market.ErrDivisionByZero)
}

func TestMulDiv_Rounding(t *testing.T) {
	down, err := fpmath.MulDiv(10, 1, 3, fpmath.RoundDown)
	require.NoError(t, err)
	up, err := fpmath.MulDiv(10, 1, 3, fpmath.RoundUp)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), down)
	assert.Equal(t, uint64(4), up)
}

// ============================================================================
// Test: Payout formula
// ============================================================================

func TestFee_Floor(t *testing.T) {
	fee, err := fpmath.Fee(400, 200)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), fee)

	fee, err = fpmath.Fee(49, 200)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), fee, "0.98 floors to zero")
}

func TestPayout_TwoOutcomeMarket(t *testing.T) {
	prize, err := fpmath.PrizePool(400, 200)
	require.NoError(t, err)
	assert.Equal(t, uint64(392), prize)

	payout, err := fpmath.Payout(100, prize, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(392), payout)
}

func TestPayout_LargeValuesNoOverflow(t *testing.T) {
	total := maxU64 - 10
	prize, err := fpmath.PrizePool(total, 500)
	require.NoError(t, err)

	payout, err := fpmath.Payout(total/2, prize, total)
	require.NoError(t, err)
	assert.LessOrEqual(t, payout, prize)
}

func TestPayout_ZeroWinningPool(t *testing.T) {
	_, err := fpmath.Payout(0, 100, 0)
	assert.ErrorIs(t, err, market.ErrDivisionByZero)
}

func TestPayout_StakeAboveWinningPool(t *testing.T) {
	_, err := fpmath.Payout(11, 100, 10)
	assert.ErrorIs(t, err, market.ErrInvalidPayout)
}

func TestPayout_ConservationAcrossClaimants(t *testing.T) {
	stakes := []uint64{1, 7, 13, 333, 1001}
	var winning uint64
	for _, s := range stakes {
		winning += s
	}
	total := winning + 98_765
	prize, err := fpmath.PrizePool(total, 250)
	require.NoError(t, err)

	var paid uint64
	for _, s := range stakes {
		p, err := fpmath.Payout(s, prize, winning)
		require.NoError(t, err)
		paid += p
	}
	assert.LessOrEqual(t, paid, prize)
	assert.LessOrEqual(t, prize-paid, uint64(len(stakes)), "rounding slack bounded by claimant count")
}

func TestSettle_RequiresResolved(t *testing.T) {
	m := &market.Market{Outcomes: []string{"a", "b"}, OutcomePools: []uint64{1, 1}, TotalPool: 2}
	_, err := fpmath.Settle(m, 100)
	assert.ErrorIs(t, err, market.ErrNotResolved)
}

func TestSettle_Split(t *testing.T) {
	w := 0
	m := &market.Market{
		Outcomes:       []string{"Yes", "No"},
		OutcomePools:   []uint64{100, 300},
		TotalPool:      400,
		Status:         market.StatusResolved,
		WinningOutcome: &w,
	}
	s, err := fpmath.Settle(m, 200)
	require.NoError(t, err)
	assert.Equal(t, fpmath.Settlement{TotalPool: 400, Fee: 8, PrizePool: 392, WinningPool: 100}, s)

	p, err := s.PayoutFor(50)
	require.NoError(t, err)
	assert.Equal(t, uint64(196), p)
}
