package ledger

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/TanmayDhobale/miniForesight/internal/market"
	fpmath "github.com/TanmayDhobale/miniForesight/internal/math"
	"github.com/TanmayDhobale/miniForesight/internal/store"
)

// TransferRequest moves Amount from From to To under Authority.
type TransferRequest struct {
	From      AccountKey
	To        AccountKey
	Amount    uint64
	Authority Authority
	Type      JournalType
	BatchID   uuid.UUID
	Timestamp int64
}

// Transferer keeps balances as store records, so a transfer commits or
// aborts together with the operation that requested it.
type Transferer struct{}

func NewTransferer() *Transferer {
	return &Transferer{}
}

type balanceRecord struct {
	Balance uint64 `json:"balance"`
}

// Transfer validates and applies one movement inside txn.
func (t *Transferer) Transfer(txn store.Txn, req TransferRequest) (Journal, error) {
	j := Journal{
		JournalID:     uuid.New(),
		BatchID:       req.BatchID,
		DebitAccount:  req.To,
		CreditAccount: req.From,
		Amount:        req.Amount,
		JournalType:   req.Type,
		Timestamp:     req.Timestamp,
	}
	if req.Amount == 0 {
		return Journal{}, market.ErrInvalidAmount
	}
	if err := j.Validate(); err != nil {
		return Journal{}, err
	}
	if !req.Authority.CanDebit(req.From) {
		return Journal{}, fmt.Errorf("%w: %s cannot debit %s", market.ErrUnauthorized, req.Authority, req.From)
	}

	fromBal, err := Balance(txn, req.From)
	if err != nil {
		return Journal{}, err
	}
	toBal, err := Balance(txn, req.To)
	if err != nil {
		return Journal{}, err
	}

	if req.From.Scope == AccountScopeExternal {
		fromBal, err = fpmath.CheckedAdd(fromBal, req.Amount)
		if err != nil {
			return Journal{}, err
		}
	} else {
		if fromBal < req.Amount {
			return Journal{}, fmt.Errorf("%w: %s has %d, needs %d", market.ErrInsufficientFunds, req.From, fromBal, req.Amount)
		}
		fromBal -= req.Amount
	}
	toBal, err = fpmath.CheckedAdd(toBal, req.Amount)
	if err != nil {
		return Journal{}, err
	}

	if err := putBalance(txn, req.From, fromBal); err != nil {
		return Journal{}, err
	}
	if err := putBalance(txn, req.To, toBal); err != nil {
		return Journal{}, err
	}
	return j, nil
}

// Balance reads an account balance; unknown accounts hold zero.
func Balance(txn store.Txn, k AccountKey) (uint64, error) {
	raw, err := txn.Get(k.storeKey())
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read balance %s: %w", k, err)
	}
	var rec balanceRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return 0, fmt.Errorf("decode balance %s: %w", k, err)
	}
	return rec.Balance, nil
}

func putBalance(txn store.Txn, k AccountKey, v uint64) error {
	raw, err := json.Marshal(balanceRecord{Balance: v})
	if err != nil {
		return err
	}
	return txn.Put(k.storeKey(), raw)
}

// ScanBalances visits every stored balance.
func ScanBalances(txn store.Txn, fn func(AccountKey, uint64) error) error {
	return txn.Scan(BalancePrefix, func(key string, value []byte) error {
		k, err := ParseAccountPath(key[len(BalancePrefix):])
		if err != nil {
			return err
		}
		var rec balanceRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return fmt.Errorf("decode balance %s: %w", k, err)
		}
		return fn(k, rec.Balance)
	})
}
