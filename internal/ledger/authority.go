package ledger

type authorityKind uint8

const (
	authorityUser authorityKind = iota + 1
	authorityEscrow
	authorityHost
)

// Authority is the signer a transfer is made under. Each authority may only
// debit the accounts it controls.
type Authority struct {
	kind     authorityKind
	identity string
	escrow   AccountKey
}

// UserAuthority is a user's signature over their own wallet.
func UserAuthority(identity string) Authority {
	return Authority{kind: authorityUser, identity: identity}
}

// EscrowAuthority is the settlement engine's capability over one market's
// escrow. No end-user key can produce it.
func EscrowAuthority(marketID uint64) Authority {
	return Authority{kind: authorityEscrow, escrow: EscrowAccount(marketID)}
}

// HostAuthority moves value across the ledger boundary (deposits and
// withdrawals settled by the hosting platform).
func HostAuthority() Authority {
	return Authority{kind: authorityHost}
}

// CanDebit reports whether the authority may move value out of k.
func (a Authority) CanDebit(k AccountKey) bool {
	switch k.Scope {
	case AccountScopeWallet:
		return a.kind == authorityUser && a.identity != "" && a.identity == k.Owner
	case AccountScopeEscrow:
		return a.kind == authorityEscrow && a.escrow == k
	case AccountScopeExternal:
		return a.kind == authorityHost
	}
	return false
}

func (a Authority) String() string {
	switch a.kind {
	case authorityUser:
		return "user:" + a.identity
	case authorityEscrow:
		return "escrow:" + a.escrow.Owner
	case authorityHost:
		return "host"
	}
	return "none"
}
