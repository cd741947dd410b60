package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/TanmayDhobale/miniForesight/internal/core"
)

// EventLogWriter writes sequenced events and their journals to Postgres
// using multi-row INSERTs.
type EventLogWriter struct {
	db *sql.DB
}

// EventRow represents a row in event_log.events
type EventRow struct {
	Sequence  int64
	EventID   string
	EventType string
	RequestID *string
	MarketID  *string // NUMERIC(20,0); uint64 does not fit the driver's int64
	Payload   []byte
	Journals  []byte // nil when the event moved no value
	StateHash []byte
	PrevHash  []byte
	Timestamp time.Time
}

// JournalRow represents a row in event_log.journal
type JournalRow struct {
	JournalID     string
	BatchID       string
	Sequence      int64
	DebitAccount  string
	CreditAccount string
	Amount        string
	JournalType   string
	Timestamp     int64
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// RowsFromOutput flattens one sequenced output into table rows.
func RowsFromOutput(out core.CoreOutput) (EventRow, []JournalRow, error) {
	env := out.Envelope
	row := EventRow{
		Sequence:  env.Sequence,
		EventID:   env.EventID.String(),
		EventType: env.EventType.String(),
		Payload:   env.Payload,
		StateHash: env.StateHash[:],
		PrevHash:  env.PrevHash[:],
		Timestamp: env.Timestamp,
	}
	if env.RequestID != "" {
		id := env.RequestID
		row.RequestID = &id
	}
	if env.MarketID != nil {
		id := strconv.FormatUint(*env.MarketID, 10)
		row.MarketID = &id
	}

	if len(env.Journals) == 0 {
		return row, nil, nil
	}
	raw, err := json.Marshal(env.Journals)
	if err != nil {
		return EventRow{}, nil, fmt.Errorf("encode journals of sequence %d: %w", env.Sequence, err)
	}
	row.Journals = raw

	journals := make([]JournalRow, 0, len(env.Journals))
	for _, j := range env.Journals {
		journals = append(journals, JournalRow{
			JournalID:     j.JournalID.String(),
			BatchID:       j.BatchID.String(),
			Sequence:      env.Sequence,
			DebitAccount:  j.DebitAccount.String(),
			CreditAccount: j.CreditAccount.String(),
			Amount:        strconv.FormatUint(j.Amount, 10),
			JournalType:   j.JournalType.String(),
			Timestamp:     j.Timestamp,
		})
	}
	return row, journals, nil
}

// WriteEventBatch writes a batch of events to event_log.events using multi-row INSERT.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, tx *sql.Tx, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.events
		(sequence, event_id, event_type, request_id, market_id, payload, journals, state_hash, prev_hash, timestamp)
		VALUES `

	const cols = 10
	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*cols)

	for i, e := range events {
		values = append(values, placeholders(i*cols, cols))
		args = append(args,
			e.Sequence, e.EventID, e.EventType, e.RequestID, e.MarketID,
			string(e.Payload), nullableJSON(e.Journals), e.StateHash, e.PrevHash, e.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING" // Idempotent writes

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteJournalBatch writes a batch of journal entries to event_log.journal.
func (w *EventLogWriter) WriteJournalBatch(ctx context.Context, tx *sql.Tx, journals []JournalRow) error {
	if len(journals) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.journal
		(journal_id, batch_id, sequence, debit_account, credit_account, amount, journal_type, timestamp)
		VALUES `

	const cols = 8
	values := make([]string, 0, len(journals))
	args := make([]interface{}, 0, len(journals)*cols)

	for i, j := range journals {
		values = append(values, placeholders(i*cols, cols))
		args = append(args,
			j.JournalID, j.BatchID, j.Sequence,
			j.DebitAccount, j.CreditAccount, j.Amount,
			j.JournalType, j.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (journal_id) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// placeholders renders "($base+1, ..., $base+n)".
func placeholders(base, n int) string {
	var b strings.Builder
	b.WriteByte('(')
	for i := 1; i <= n; i++ {
		if i > 1 {
			b.WriteString(", ")
		}
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(base + i))
	}
	b.WriteByte(')')
	return b.String()
}

func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
