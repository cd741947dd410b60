// Package state maps settlement records onto store keys.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/TanmayDhobale/miniForesight/internal/market"
	"github.com/TanmayDhobale/miniForesight/internal/store"
)

// Records is a typed accessor over one store transaction.
type Records struct {
	txn store.Txn
}

func New(txn store.Txn) *Records {
	return &Records{txn: txn}
}

// Txn exposes the underlying transaction for collaborators that keep their
// own keys in the same atomic unit (the value ledger).
func (r *Records) Txn() store.Txn {
	return r.txn
}

// --- GlobalConfig ---

func (r *Records) Config() (*market.GlobalConfig, error) {
	var cfg market.GlobalConfig
	if err := r.get(market.ConfigKey, &cfg); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, market.ErrNotInitialized
		}
		return nil, err
	}
	return &cfg, nil
}

// CreateConfig writes the config once; later calls fail with
// ErrAlreadyInitialized.
func (r *Records) CreateConfig(cfg *market.GlobalConfig) error {
	err := r.insert(market.ConfigKey, cfg)
	if errors.Is(err, store.ErrKeyExists) {
		return market.ErrAlreadyInitialized
	}
	return err
}

func (r *Records) PutConfig(cfg *market.GlobalConfig) error {
	return r.put(market.ConfigKey, cfg)
}

// --- Market ---

func (r *Records) Market(id uint64) (*market.Market, error) {
	var m market.Market
	if err := r.get(market.MarketKey(id), &m); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, market.ErrMarketNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *Records) CreateMarket(m *market.Market) error {
	err := r.insert(market.MarketKey(m.ID), m)
	if errors.Is(err, store.ErrKeyExists) {
		return market.ErrDuplicateMarket
	}
	return err
}

func (r *Records) PutMarket(m *market.Market) error {
	return r.put(market.MarketKey(m.ID), m)
}

// Markets visits every market in id order.
func (r *Records) Markets(fn func(*market.Market) error) error {
	return r.txn.Scan(market.MarketPrefix, func(key string, value []byte) error {
		var m market.Market
		if err := json.Unmarshal(value, &m); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		return fn(&m)
	})
}

// --- Position ---

func (r *Records) Position(marketID uint64, owner string) (*market.Position, error) {
	var p market.Position
	if err := r.get(market.PositionKey(marketID, owner), &p); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, market.ErrPositionNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *Records) PutPosition(p *market.Position) error {
	return r.put(market.PositionKey(p.MarketID, p.Owner), p)
}

// Positions visits every position in one market.
func (r *Records) Positions(marketID uint64, fn func(*market.Position) error) error {
	return r.txn.Scan(market.MarketPositionsPrefix(marketID), func(key string, value []byte) error {
		var p market.Position
		if err := json.Unmarshal(value, &p); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		return fn(&p)
	})
}

// AllPositions visits every position of every market.
func (r *Records) AllPositions(fn func(*market.Position) error) error {
	return r.txn.Scan(market.PositionPrefix, func(key string, value []byte) error {
		var p market.Position
		if err := json.Unmarshal(value, &p); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		return fn(&p)
	})
}

// --- Requests ---

type requestRecord struct {
	Operation string `json:"operation"`
	Timestamp int64  `json:"timestamp"`
}

// MarkRequest claims a request id for one operation. A redelivered request
// fails with ErrDuplicateRequest.
func (r *Records) MarkRequest(requestID, op string, ts int64) error {
	if strings.TrimSpace(requestID) == "" {
		return nil
	}
	err := r.insert(market.RequestKey(requestID), requestRecord{Operation: op, Timestamp: ts})
	if errors.Is(err, store.ErrKeyExists) {
		return market.ErrDuplicateRequest
	}
	return err
}

// --- codec ---

func (r *Records) get(key string, v any) error {
	raw, err := r.txn.Get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (r *Records) put(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return r.txn.Put(key, raw)
}

func (r *Records) insert(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return r.txn.Insert(key, raw)
}
