package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/TanmayDhobale/miniForesight/internal/ledger"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypePlatformInitialized
	EventTypeMarketCreated
	EventTypeBetPlaced
	EventTypeMarketResolved
	EventTypeWinningsClaimed
	EventTypeFeesCollected
	EventTypeMarketClosed
	EventTypeFundsDeposited
	EventTypeFundsWithdrawn
)

// EventEnvelope wraps every committed event in the log
type EventEnvelope struct {
	EventID uuid.UUID `json:"event_id"`

	// Global monotonic sequence assigned by the sequencer
	Sequence int64 `json:"sequence"`

	// Caller-supplied request id, empty when none was given
	RequestID string `json:"request_id,omitempty"`

	EventType EventType `json:"event_type"`

	// Market context (nil for platform and wallet events)
	MarketID *uint64 `json:"market_id,omitempty"`

	// Operation time from the engine clock
	Timestamp time.Time `json:"timestamp"`

	// JSON-encoded event-specific data
	Payload json.RawMessage `json:"payload"`

	// Value movements committed with the event
	Journals []ledger.Journal `json:"journals,omitempty"`

	// SHA-256 chain over (prev_hash, sequence, payload digest)
	StateHash [32]byte `json:"-"`
	PrevHash  [32]byte `json:"-"`
}

// Event is the interface all event payloads must implement
type Event interface {
	// EventType returns the discriminator
	EventType() EventType

	// MarketID returns the market context (nil for global events)
	MarketID() *uint64
}

func (et EventType) String() string {
	switch et {
	case EventTypePlatformInitialized:
		return "PlatformInitialized"
	case EventTypeMarketCreated:
		return "MarketCreated"
	case EventTypeBetPlaced:
		return "BetPlaced"
	case EventTypeMarketResolved:
		return "MarketResolved"
	case EventTypeWinningsClaimed:
		return "WinningsClaimed"
	case EventTypeFeesCollected:
		return "FeesCollected"
	case EventTypeMarketClosed:
		return "MarketClosed"
	case EventTypeFundsDeposited:
		return "FundsDeposited"
	case EventTypeFundsWithdrawn:
		return "FundsWithdrawn"
	default:
		return "Unknown"
	}
}

// ParseEventType is the inverse of EventType.String.
func ParseEventType(s string) (EventType, error) {
	for et := EventTypePlatformInitialized; et <= EventTypeFundsWithdrawn; et++ {
		if et.String() == s {
			return et, nil
		}
	}
	return EventTypeUnknown, fmt.Errorf("unknown event type %q", s)
}

func (et EventType) MarshalText() ([]byte, error) {
	return []byte(et.String()), nil
}

func (et *EventType) UnmarshalText(b []byte) error {
	v, err := ParseEventType(string(b))
	if err != nil {
		return err
	}
	*et = v
	return nil
}

// Decode unmarshals an envelope payload into its typed event.
func Decode(et EventType, payload []byte) (Event, error) {
	var evt Event
	switch et {
	case EventTypePlatformInitialized:
		evt = &PlatformInitialized{}
	case EventTypeMarketCreated:
		evt = &MarketCreated{}
	case EventTypeBetPlaced:
		evt = &BetPlaced{}
	case EventTypeMarketResolved:
		evt = &MarketResolved{}
	case EventTypeWinningsClaimed:
		evt = &WinningsClaimed{}
	case EventTypeFeesCollected:
		evt = &FeesCollected{}
	case EventTypeMarketClosed:
		evt = &MarketClosed{}
	case EventTypeFundsDeposited:
		evt = &FundsDeposited{}
	case EventTypeFundsWithdrawn:
		evt = &FundsWithdrawn{}
	default:
		return nil, fmt.Errorf("unknown event type %d", et)
	}
	if err := json.Unmarshal(payload, evt); err != nil {
		return nil, fmt.Errorf("decode %s: %w", et, err)
	}
	return evt, nil
}
