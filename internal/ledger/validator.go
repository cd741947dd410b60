package ledger

import "fmt"

// InvariantValidator checks ledger invariants over a balance snapshot.
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateConservation verifies that value held inside the ledger equals
// what entered minus what left.
func (v *InvariantValidator) ValidateConservation() error {
	deposits := v.tracker.GetBalance(ExternalDeposits)
	withdrawals := v.tracker.GetBalance(ExternalWithdrawals)
	if withdrawals > deposits {
		return fmt.Errorf("withdrawals %d exceed deposits %d", withdrawals, deposits)
	}

	held := v.tracker.SumScope(AccountScopeWallet) + v.tracker.SumScope(AccountScopeEscrow)
	if held != deposits-withdrawals {
		return fmt.Errorf("ledger holds %d, expected deposits-withdrawals = %d", held, deposits-withdrawals)
	}
	return nil
}

// ValidateEscrow verifies one market's escrow holds exactly expected.
func (v *InvariantValidator) ValidateEscrow(marketID, expected uint64) error {
	got := v.tracker.GetBalance(EscrowAccount(marketID))
	if got != expected {
		return fmt.Errorf("escrow for market %d holds %d, expected %d", marketID, got, expected)
	}
	return nil
}
