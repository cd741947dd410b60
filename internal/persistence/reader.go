package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/TanmayDhobale/miniForesight/internal/core"
)

// EventLogReader reads the persisted event chain back for restart and
// integrity checks.
type EventLogReader struct {
	db *sql.DB
}

func NewEventLogReader(db *sql.DB) *EventLogReader {
	return &EventLogReader{db: db}
}

// ChainTip returns the last persisted sequence and its state hash, or
// (0, GenesisHash) for an empty log. The sequencer resumes from here.
func (r *EventLogReader) ChainTip(ctx context.Context) (int64, [32]byte, error) {
	var seq int64
	var hash []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT sequence, state_hash FROM event_log.events
		ORDER BY sequence DESC
		LIMIT 1
	`).Scan(&seq, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, core.GenesisHash(), nil
	}
	if err != nil {
		return 0, [32]byte{}, fmt.Errorf("read chain tip: %w", err)
	}
	tip, err := toHash(hash)
	if err != nil {
		return 0, [32]byte{}, fmt.Errorf("sequence %d: %w", seq, err)
	}
	return seq, tip, nil
}

// LoadEventsFrom loads up to limit events with sequence >= fromSequence.
func (r *EventLogReader) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT sequence, event_id, event_type, request_id, market_id::TEXT,
		       payload::TEXT, journals::TEXT, state_hash, prev_hash, timestamp
		FROM event_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		var payload string
		var journals sql.NullString
		if err := rows.Scan(
			&e.Sequence, &e.EventID, &e.EventType, &e.RequestID, &e.MarketID,
			&payload, &journals, &e.StateHash, &e.PrevHash, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		e.Payload = []byte(payload)
		if journals.Valid {
			e.Journals = []byte(journals.String)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ChainVerification is the outcome of VerifyChain.
type ChainVerification struct {
	Verified  int64    // events checked
	LastSeq   int64    // last good sequence
	LastHash  [32]byte // hash at LastSeq
	BrokenAt  int64    // first bad sequence, 0 if none
	BrokenWhy string
}

// VerifyChain re-hashes the whole log from genesis in pages of pageSize.
func (r *EventLogReader) VerifyChain(ctx context.Context, pageSize int) (ChainVerification, error) {
	if pageSize <= 0 {
		pageSize = 1000
	}
	result := ChainVerification{LastHash: core.GenesisHash()}
	hasher := core.NewStateHasher()

	next := int64(1)
	for {
		page, err := r.LoadEventsFrom(ctx, next, pageSize)
		if err != nil {
			return result, err
		}
		for _, e := range page {
			if why := checkLink(e, next, hasher); why != "" {
				result.BrokenAt = e.Sequence
				result.BrokenWhy = why
				return result, nil
			}
			result.Verified++
			result.LastSeq = e.Sequence
			result.LastHash = hasher.GetPrevHash()
			next = e.Sequence + 1
		}
		if len(page) < pageSize {
			return result, nil
		}
	}
}

func checkLink(e EventRow, want int64, hasher *core.StateHasher) string {
	if e.Sequence != want {
		return fmt.Sprintf("gap: expected sequence %d", want)
	}
	prev, err := toHash(e.PrevHash)
	if err != nil {
		return err.Error()
	}
	if prev != hasher.GetPrevHash() {
		return "prev_hash does not match previous state_hash"
	}
	stored, err := toHash(e.StateHash)
	if err != nil {
		return err.Error()
	}
	if hasher.ComputeHash(e.Sequence, core.RawEventDigest(e.EventType, e.Payload, e.Journals)) != stored {
		return "state_hash does not match recomputed digest"
	}
	return ""
}

// SaveCheckpoint records an audit run that verified the chain up to
// sequence.
func (r *EventLogReader) SaveCheckpoint(ctx context.Context, sequence int64, hash [32]byte, violations int, report any) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO event_log.checkpoints (sequence, state_hash, violations, report, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (sequence) DO UPDATE SET violations = $3, report = $4, created_at = $5
	`, sequence, hash[:], violations, string(data), time.Now().UTC())
	return err
}

func toHash(b []byte) ([32]byte, error) {
	var h [32]byte
	if len(b) != len(h) {
		return h, fmt.Errorf("hash has %d bytes, want %d", len(b), len(h))
	}
	copy(h[:], b)
	return h, nil
}
