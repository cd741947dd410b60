package ledger_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TanmayDhobale/miniForesight/internal/ledger"
	"github.com/TanmayDhobale/miniForesight/internal/market"
	"github.com/TanmayDhobale/miniForesight/internal/store"
)

func transfer(t *testing.T, s store.Store, req ledger.TransferRequest) (ledger.Journal, error) {
	t.Helper()
	var j ledger.Journal
	err := s.Update(context.Background(), func(txn store.Txn) error {
		var err error
		j, err = ledger.NewTransferer().Transfer(txn, req)
		return err
	})
	return j, err
}

func balance(t *testing.T, s store.Store, k ledger.AccountKey) uint64 {
	t.Helper()
	var v uint64
	require.NoError(t, s.View(context.Background(), func(txn store.Txn) error {
		var err error
		v, err = ledger.Balance(txn, k)
		return err
	}))
	return v
}

func deposit(t *testing.T, s store.Store, who string, amount uint64) {
	t.Helper()
	_, err := transfer(t, s, ledger.TransferRequest{
		From:      ledger.ExternalDeposits,
		To:        ledger.WalletAccount(who),
		Amount:    amount,
		Authority: ledger.HostAuthority(),
		Type:      ledger.JournalTypeDeposit,
		BatchID:   uuid.New(),
	})
	require.NoError(t, err)
}

// ============================================================================
// Test: AccountKey
// ============================================================================

func TestAccountKey_Paths(t *testing.T) {
	assert.Equal(t, "wallet:alice", ledger.WalletAccount("alice").AccountPath())
	assert.Equal(t, "escrow:00000000000000000042", ledger.EscrowAccount(42).AccountPath())
	assert.Equal(t, "external:deposits", ledger.ExternalDeposits.AccountPath())
}

func TestAccountKey_ParseRoundTrip(t *testing.T) {
	for _, k := range []ledger.AccountKey{
		ledger.WalletAccount("bob:with:colons"),
		ledger.EscrowAccount(7),
		ledger.ExternalWithdrawals,
	} {
		got, err := ledger.ParseAccountPath(k.AccountPath())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	_, err := ledger.ParseAccountPath("vault:x")
	assert.Error(t, err)
	_, err = ledger.ParseAccountPath("escrow:notanumber")
	assert.Error(t, err)
}

func TestAccountKey_EscrowMarketID(t *testing.T) {
	id, ok := ledger.EscrowAccount(9).MarketID()
	assert.True(t, ok)
	assert.Equal(t, uint64(9), id)

	_, ok = ledger.WalletAccount("9").MarketID()
	assert.False(t, ok)
}

func TestJournal_JSONUsesAccountPaths(t *testing.T) {
	j := ledger.Journal{DebitAccount: ledger.EscrowAccount(1), CreditAccount: ledger.WalletAccount("u"), Amount: 5}
	raw, err := json.Marshal(j)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"credit_account":"wallet:u"`)

	var back ledger.Journal
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, j.DebitAccount, back.DebitAccount)
}

// ============================================================================
// Test: Authority
// ============================================================================

func TestAuthority_Scoping(t *testing.T) {
	assert.True(t, ledger.UserAuthority("a").CanDebit(ledger.WalletAccount("a")))
	assert.False(t, ledger.UserAuthority("a").CanDebit(ledger.WalletAccount("b")))
	assert.False(t, ledger.UserAuthority("a").CanDebit(ledger.EscrowAccount(1)))
	assert.False(t, ledger.UserAuthority("").CanDebit(ledger.WalletAccount("")))

	assert.True(t, ledger.EscrowAuthority(1).CanDebit(ledger.EscrowAccount(1)))
	assert.False(t, ledger.EscrowAuthority(1).CanDebit(ledger.EscrowAccount(2)))
	assert.False(t, ledger.EscrowAuthority(1).CanDebit(ledger.WalletAccount("a")))

	assert.True(t, ledger.HostAuthority().CanDebit(ledger.ExternalDeposits))
	assert.False(t, ledger.HostAuthority().CanDebit(ledger.WalletAccount("a")))
}

// ============================================================================
// Test: Transferer
// ============================================================================

func TestTransfer_MovesValue(t *testing.T) {
	s := store.NewMemory()
	deposit(t, s, "alice", 1_000)

	j, err := transfer(t, s, ledger.TransferRequest{
		From:      ledger.WalletAccount("alice"),
		To:        ledger.EscrowAccount(1),
		Amount:    300,
		Authority: ledger.UserAuthority("alice"),
		Type:      ledger.JournalTypeBetStake,
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.EscrowAccount(1), j.DebitAccount)
	assert.Equal(t, ledger.WalletAccount("alice"), j.CreditAccount)

	assert.Equal(t, uint64(700), balance(t, s, ledger.WalletAccount("alice")))
	assert.Equal(t, uint64(300), balance(t, s, ledger.EscrowAccount(1)))
	assert.Equal(t, uint64(1_000), balance(t, s, ledger.ExternalDeposits))
}

func TestTransfer_InsufficientFunds(t *testing.T) {
	s := store.NewMemory()
	deposit(t, s, "alice", 10)

	_, err := transfer(t, s, ledger.TransferRequest{
		From:      ledger.WalletAccount("alice"),
		To:        ledger.EscrowAccount(1),
		Amount:    11,
		Authority: ledger.UserAuthority("alice"),
	})
	assert.ErrorIs(t, err, market.ErrInsufficientFunds)
	assert.Equal(t, uint64(10), balance(t, s, ledger.WalletAccount("alice")))
}

func TestTransfer_WrongAuthority(t *testing.T) {
	s := store.NewMemory()
	deposit(t, s, "alice", 10)

	_, err := transfer(t, s, ledger.TransferRequest{
		From:      ledger.WalletAccount("alice"),
		To:        ledger.WalletAccount("mallory"),
		Amount:    5,
		Authority: ledger.UserAuthority("mallory"),
	})
	assert.ErrorIs(t, err, market.ErrUnauthorized)
}

func TestTransfer_RejectsZeroAndSelf(t *testing.T) {
	s := store.NewMemory()
	deposit(t, s, "alice", 10)

	_, err := transfer(t, s, ledger.TransferRequest{
		From: ledger.WalletAccount("alice"), To: ledger.EscrowAccount(1),
		Authority: ledger.UserAuthority("alice"),
	})
	assert.ErrorIs(t, err, market.ErrInvalidAmount)

	_, err = transfer(t, s, ledger.TransferRequest{
		From: ledger.WalletAccount("alice"), To: ledger.WalletAccount("alice"),
		Amount: 1, Authority: ledger.UserAuthority("alice"),
	})
	assert.Error(t, err)
}

// ============================================================================
// Test: BalanceTracker / InvariantValidator
// ============================================================================

func TestInvariantValidator_EscrowAndConservation(t *testing.T) {
	s := store.NewMemory()
	deposit(t, s, "a", 50)
	_, err := transfer(t, s, ledger.TransferRequest{
		From:      ledger.WalletAccount("a"),
		To:        ledger.EscrowAccount(3),
		Amount:    20,
		Authority: ledger.UserAuthority("a"),
		Type:      ledger.JournalTypeBetStake,
		BatchID:   uuid.New(),
	})
	require.NoError(t, err)

	require.NoError(t, s.View(context.Background(), func(txn store.Txn) error {
		bt, err := ledger.LoadBalanceTracker(txn)
		require.NoError(t, err)
		assert.Equal(t, uint64(30), bt.GetBalance(ledger.WalletAccount("a")))
		assert.Equal(t, uint64(50), bt.GetBalance(ledger.ExternalDeposits))
		assert.Equal(t, map[uint64]uint64{3: 20}, bt.Escrows())

		v := ledger.NewInvariantValidator(bt)
		assert.NoError(t, v.ValidateConservation())
		assert.NoError(t, v.ValidateEscrow(3, 20))
		assert.Error(t, v.ValidateEscrow(3, 21))
		return nil
	}))
}

func TestBatch_ValidateRejectsMismatchedBatchID(t *testing.T) {
	batch := ledger.NewBatch(0)
	batch.Journals = []ledger.Journal{{
		JournalID: uuid.New(), BatchID: uuid.New(),
		DebitAccount: ledger.WalletAccount("a"), CreditAccount: ledger.WalletAccount("b"), Amount: 1,
	}}
	assert.Error(t, batch.Validate())

	assert.Error(t, ledger.NewBatch(0).Validate(), "empty batch")
}

func TestLoadBalanceTracker_FromStore(t *testing.T) {
	s := store.NewMemory()
	deposit(t, s, "alice", 70)
	deposit(t, s, "bob", 30)

	require.NoError(t, s.View(context.Background(), func(txn store.Txn) error {
		bt, err := ledger.LoadBalanceTracker(txn)
		require.NoError(t, err)
		assert.Equal(t, uint64(100), bt.SumScope(ledger.AccountScopeWallet))
		return ledger.NewInvariantValidator(bt).ValidateConservation()
	}))
}
