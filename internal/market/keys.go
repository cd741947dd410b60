package market

import "fmt"

// Record keys. Market ids are zero-padded so prefix scans return markets
// in id order.
const (
	ConfigKey      = "config:global"
	MarketPrefix   = "market:"
	PositionPrefix = "position:"
	RequestPrefix  = "request:"
)

func MarketKey(id uint64) string {
	return fmt.Sprintf("%s%020d", MarketPrefix, id)
}

func PositionKey(marketID uint64, owner string) string {
	return fmt.Sprintf("%s%020d:%s", PositionPrefix, marketID, owner)
}

// MarketPositionsPrefix matches every position in one market.
func MarketPositionsPrefix(marketID uint64) string {
	return fmt.Sprintf("%s%020d:", PositionPrefix, marketID)
}

func RequestKey(requestID string) string {
	return RequestPrefix + requestID
}
