package ledger

import (
	"fmt"
	"strconv"
	"strings"
)

// AccountScope is the top-level account namespace.
type AccountScope uint8

const (
	AccountScopeWallet AccountScope = iota
	AccountScopeEscrow
	AccountScopeExternal
)

func (s AccountScope) String() string {
	switch s {
	case AccountScopeWallet:
		return "wallet"
	case AccountScopeEscrow:
		return "escrow"
	case AccountScopeExternal:
		return "external"
	default:
		return "unknown"
	}
}

// AccountKey names a value-holding account.
type AccountKey struct {
	Scope AccountScope
	Owner string
}

// WalletAccount is a user's (or fee recipient's) spendable balance.
func WalletAccount(identity string) AccountKey {
	return AccountKey{Scope: AccountScopeWallet, Owner: identity}
}

// EscrowAccount custodies every stake placed on one market.
func EscrowAccount(marketID uint64) AccountKey {
	return AccountKey{Scope: AccountScopeEscrow, Owner: fmt.Sprintf("%020d", marketID)}
}

// External boundary accounts record cumulative flow into and out of the
// ledger. Their balances only grow.
var (
	ExternalDeposits    = AccountKey{Scope: AccountScopeExternal, Owner: "deposits"}
	ExternalWithdrawals = AccountKey{Scope: AccountScopeExternal, Owner: "withdrawals"}
)

// AccountPath returns the string representation for storage/logging.
func (k AccountKey) AccountPath() string {
	return k.Scope.String() + ":" + k.Owner
}

func (k AccountKey) String() string {
	return k.AccountPath()
}

func (k AccountKey) MarshalText() ([]byte, error) {
	return []byte(k.AccountPath()), nil
}

func (k *AccountKey) UnmarshalText(b []byte) error {
	parsed, err := ParseAccountPath(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// MarketID returns the market an escrow account belongs to.
func (k AccountKey) MarketID() (uint64, bool) {
	if k.Scope != AccountScopeEscrow {
		return 0, false
	}
	id, err := strconv.ParseUint(k.Owner, 10, 64)
	return id, err == nil
}

func ParseAccountPath(path string) (AccountKey, error) {
	scope, owner, ok := strings.Cut(path, ":")
	if !ok || owner == "" {
		return AccountKey{}, fmt.Errorf("malformed account path %q", path)
	}
	switch scope {
	case "wallet":
		return WalletAccount(owner), nil
	case "escrow":
		id, err := strconv.ParseUint(owner, 10, 64)
		if err != nil {
			return AccountKey{}, fmt.Errorf("malformed escrow account %q: %w", path, err)
		}
		return EscrowAccount(id), nil
	case "external":
		return AccountKey{Scope: AccountScopeExternal, Owner: owner}, nil
	}
	return AccountKey{}, fmt.Errorf("unknown account scope %q", scope)
}

// BalancePrefix namespaces balance records in the store.
const BalancePrefix = "balance:"

func (k AccountKey) storeKey() string {
	return BalancePrefix + k.AccountPath()
}
