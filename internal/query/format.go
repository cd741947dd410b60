package query

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/TanmayDhobale/miniForesight/internal/market"
	fpmath "github.com/TanmayDhobale/miniForesight/internal/math"
)

const shareDecimals = 4

// FormatAmount renders base units with the given number of decimals,
// e.g. FormatAmount(1234567, 6) == "1.234567".
func FormatAmount(amount uint64, decimals int32) string {
	return toDecimal(amount).Shift(-decimals).StringFixed(decimals)
}

func toDecimal(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// MarketOdds derives each outcome's pool share and winning multiplier.
func MarketOdds(m *market.Market, feeBps uint16) []OutcomeOdds {
	total := toDecimal(m.TotalPool)
	prize := decimal.Zero
	if fee, err := fpmath.Fee(m.TotalPool, feeBps); err == nil {
		prize = toDecimal(m.TotalPool - fee)
	}

	odds := make([]OutcomeOdds, len(m.Outcomes))
	for i, label := range m.Outcomes {
		pool := m.OutcomePools[i]
		o := OutcomeOdds{Index: i, Label: label, Pool: pool, Share: decimal.Zero.StringFixed(shareDecimals)}
		if m.TotalPool > 0 {
			o.Share = toDecimal(pool).DivRound(total, shareDecimals).StringFixed(shareDecimals)
		}
		if pool > 0 {
			o.Multiplier = prize.DivRound(toDecimal(pool), shareDecimals).StringFixed(shareDecimals)
		}
		odds[i] = o
	}
	return odds
}
