package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	JournalTypeDeposit JournalType = iota
	JournalTypeWithdrawal
	JournalTypeBetStake
	JournalTypeWinningsPayout
	JournalTypeFeeCollection
)

func (t JournalType) String() string {
	switch t {
	case JournalTypeDeposit:
		return "deposit"
	case JournalTypeWithdrawal:
		return "withdrawal"
	case JournalTypeBetStake:
		return "bet_stake"
	case JournalTypeWinningsPayout:
		return "winnings_payout"
	case JournalTypeFeeCollection:
		return "fee_collection"
	default:
		return "unknown"
	}
}

// Journal is a single double-entry movement: Amount leaves CreditAccount
// and arrives in DebitAccount.
type Journal struct {
	JournalID     uuid.UUID   `json:"journal_id"`
	BatchID       uuid.UUID   `json:"batch_id"`
	DebitAccount  AccountKey  `json:"debit_account"`
	CreditAccount AccountKey  `json:"credit_account"`
	Amount        uint64      `json:"amount"`
	JournalType   JournalType `json:"journal_type"`
	Timestamp     int64       `json:"timestamp"`
}

// Batch groups the journals produced by one operation.
type Batch struct {
	BatchID   uuid.UUID
	Timestamp int64
	Journals  []Journal
}

func NewBatch(ts int64) *Batch {
	return &Batch{BatchID: uuid.New(), Timestamp: ts}
}

// Validate ensures the batch is well-formed. Each journal is balanced by
// construction, so the batch is balanced when every entry is.
func (b *Batch) Validate() error {
	if len(b.Journals) == 0 {
		return fmt.Errorf("batch %s is empty", b.BatchID)
	}
	for _, j := range b.Journals {
		if err := j.Validate(); err != nil {
			return err
		}
		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}
	}
	return nil
}

func (j Journal) Validate() error {
	if j.Amount == 0 {
		return fmt.Errorf("journal %s has zero amount", j.JournalID)
	}
	if j.DebitAccount == j.CreditAccount {
		return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
	}
	return nil
}
