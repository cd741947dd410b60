package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// Postgres is a Store on a single ledger.records table. Update runs at
// SERIALIZABLE isolation; serialization failures and deadlocks surface as
// ErrConflict and are retried like any other conflict.
type Postgres struct {
	db *sql.DB

	OnConflict func()
}

// NewPostgres wraps an open database whose schema was created by the
// migrations in migrations/.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Update(ctx context.Context, fn func(Txn) error) error {
	return RetryOnConflict(ctx, p.OnConflict, func() error {
		return mapPGError(p.run(ctx, false, fn))
	})
}

func (p *Postgres) View(ctx context.Context, fn func(Txn) error) error {
	return mapPGError(p.run(ctx, true, fn))
}

func (p *Postgres) run(ctx context.Context, readOnly bool, fn func(Txn) error) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable, ReadOnly: readOnly})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&pgTxn{ctx: ctx, tx: tx, readOnly: readOnly}); err != nil {
		return err
	}
	return tx.Commit()
}

// Close is a no-op: the caller owns the *sql.DB.
func (p *Postgres) Close() error {
	return nil
}

// mapPGError turns retryable Postgres failures into ErrConflict.
func mapPGError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %s", ErrConflict, pqErr.Message)
		}
	}
	return err
}

type pgTxn struct {
	ctx      context.Context
	tx       *sql.Tx
	readOnly bool
}

func (t *pgTxn) Get(key string) ([]byte, error) {
	var value []byte
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT value FROM ledger.records WHERE key = $1`, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return value, err
}

func (t *pgTxn) Put(key string, value []byte) error {
	if t.readOnly {
		return ErrReadOnly
	}
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO ledger.records (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, key, value)
	return err
}

func (t *pgTxn) Insert(key string, value []byte) error {
	if t.readOnly {
		return ErrReadOnly
	}
	res, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO ledger.records (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO NOTHING
	`, key, value)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrKeyExists
	}
	return nil
}

func (t *pgTxn) Scan(prefix string, fn func(key string, value []byte) error) error {
	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT key, value FROM ledger.records
		WHERE left(key, $2) = $1
		ORDER BY key COLLATE "C"
	`, prefix, len(prefix))
	if err != nil {
		return err
	}

	// Buffer first: fn may issue statements on the same transaction.
	type kv struct {
		key   string
		value []byte
	}
	var batch []kv
	for rows.Next() {
		var r kv
		if err := rows.Scan(&r.key, &r.value); err != nil {
			rows.Close()
			return err
		}
		batch = append(batch, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, r := range batch {
		if err := fn(r.key, r.value); err != nil {
			return err
		}
	}
	return nil
}
