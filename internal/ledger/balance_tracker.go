package ledger

import (
	"fmt"

	"github.com/TanmayDhobale/miniForesight/internal/store"
)

// BalanceTracker is an in-memory snapshot of account balances, used for
// auditing a consistent view of the ledger.
type BalanceTracker struct {
	balances map[AccountKey]uint64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]uint64),
	}
}

// LoadBalanceTracker snapshots every balance visible to txn.
func LoadBalanceTracker(txn store.Txn) (*BalanceTracker, error) {
	bt := NewBalanceTracker()
	err := ScanBalances(txn, func(k AccountKey, v uint64) error {
		bt.balances[k] = v
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load balances: %w", err)
	}
	return bt, nil
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) uint64 {
	return bt.balances[key]
}

// SumScope totals every account in a scope.
func (bt *BalanceTracker) SumScope(scope AccountScope) uint64 {
	var total uint64
	for k, v := range bt.balances {
		if k.Scope == scope {
			total += v
		}
	}
	return total
}

// Escrows returns the balance of every escrow account by market id.
func (bt *BalanceTracker) Escrows() map[uint64]uint64 {
	out := make(map[uint64]uint64)
	for k, v := range bt.balances {
		if id, ok := k.MarketID(); ok {
			out[id] = v
		}
	}
	return out
}
