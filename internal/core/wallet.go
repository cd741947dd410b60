package core

import (
	"context"
	"strings"

	"github.com/TanmayDhobale/miniForesight/internal/event"
	"github.com/TanmayDhobale/miniForesight/internal/ledger"
	"github.com/TanmayDhobale/miniForesight/internal/market"
)

// Deposit credits identity's wallet with value arriving from outside the
// ledger. Only the platform authority confirms deposits.
func (e *Engine) Deposit(ctx context.Context, call Call, identity string, amount uint64) (uint64, error) {
	if err := requireCaller(call); err != nil {
		return 0, err
	}
	if strings.TrimSpace(identity) == "" {
		return 0, market.ErrInvalidIdentity
	}
	if amount == 0 {
		return 0, market.ErrInvalidAmount
	}

	var balance uint64
	err := e.execute(ctx, OpDeposit, call, nil, func(oc *opContext) (event.Event, error) {
		cfg, err := oc.rec.Config()
		if err != nil {
			return nil, err
		}
		if call.Identity != cfg.Authority {
			return nil, market.ErrUnauthorized
		}
		if err := oc.move(ledger.ExternalDeposits, ledger.WalletAccount(identity), amount, ledger.HostAuthority(), ledger.JournalTypeDeposit); err != nil {
			return nil, err
		}
		balance, err = ledger.Balance(oc.rec.Txn(), ledger.WalletAccount(identity))
		if err != nil {
			return nil, err
		}
		return &event.FundsDeposited{Identity: identity, Amount: amount, Balance: balance}, nil
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// Withdraw releases value from the caller's own wallet to the outside world.
func (e *Engine) Withdraw(ctx context.Context, call Call, amount uint64) (uint64, error) {
	if err := requireCaller(call); err != nil {
		return 0, err
	}
	if amount == 0 {
		return 0, market.ErrInvalidAmount
	}

	var balance uint64
	err := e.execute(ctx, OpWithdraw, call, nil, func(oc *opContext) (event.Event, error) {
		wallet := ledger.WalletAccount(call.Identity)
		if err := oc.move(wallet, ledger.ExternalWithdrawals, amount, ledger.UserAuthority(call.Identity), ledger.JournalTypeWithdrawal); err != nil {
			return nil, err
		}
		var err error
		balance, err = ledger.Balance(oc.rec.Txn(), wallet)
		if err != nil {
			return nil, err
		}
		return &event.FundsWithdrawn{Identity: call.Identity, Amount: amount, Balance: balance}, nil
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}
