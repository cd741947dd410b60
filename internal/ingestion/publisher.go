package ingestion

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/TanmayDhobale/miniForesight/internal/core"
	"github.com/TanmayDhobale/miniForesight/internal/event"
	"github.com/TanmayDhobale/miniForesight/internal/observability"
)

const (
	EventStream        = "FORESIGHT_EVENTS"
	EventSubjectPrefix = "foresight.events."
)

// PublishableEvent is the outbound wire form of a sequenced envelope.
type PublishableEvent struct {
	EventID   string          `json:"event_id"`
	Sequence  int64           `json:"sequence"`
	EventType string          `json:"event_type"`
	RequestID string          `json:"request_id,omitempty"`
	MarketID  *uint64         `json:"market_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	StateHash string          `json:"state_hash"`
	Timestamp time.Time       `json:"timestamp"`
}

func NewPublishableEvent(env *event.EventEnvelope) PublishableEvent {
	return PublishableEvent{
		EventID:   env.EventID.String(),
		Sequence:  env.Sequence,
		EventType: env.EventType.String(),
		RequestID: env.RequestID,
		MarketID:  env.MarketID,
		Payload:   env.Payload,
		StateHash: hex.EncodeToString(env.StateHash[:]),
		Timestamp: env.Timestamp,
	}
}

// EventSubject builds foresight.events.{event_type}[.{market_id}].
func EventSubject(evt PublishableEvent) string {
	subject := EventSubjectPrefix + evt.EventType
	if evt.MarketID != nil {
		subject += "." + strconv.FormatUint(*evt.MarketID, 10)
	}
	return subject
}

// EventSink delivers one outbound event.
type EventSink interface {
	Name() string
	Publish(ctx context.Context, evt PublishableEvent) error
}

// OutboundPublisher drains a projection channel into a sink. Publishing is
// best-effort: failures are logged and counted, never retried, since the
// event log remains the source of truth.
type OutboundPublisher struct {
	sink      EventSink
	inputChan <-chan core.CoreOutput
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewOutboundPublisher(sink EventSink, inputChan <-chan core.CoreOutput, metrics *observability.Metrics, logger zerolog.Logger) *OutboundPublisher {
	return &OutboundPublisher{
		sink:      sink,
		inputChan: inputChan,
		metrics:   metrics,
		logger:    logger,
	}
}

// Run starts the outbound publisher loop.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-op.inputChan:
			if !ok {
				return nil
			}
			evt := NewPublishableEvent(out.Envelope)
			if err := op.sink.Publish(ctx, evt); err != nil {
				op.logger.Warn().Err(err).Int64("sequence", evt.Sequence).Str("sink", op.sink.Name()).Msg("outbound publish failed")
				if op.metrics != nil {
					op.metrics.PublishErrors.WithLabelValues(op.sink.Name()).Inc()
				}
				continue
			}
			if op.metrics != nil {
				op.metrics.EventsPublished.WithLabelValues(op.sink.Name(), evt.EventType).Inc()
			}
		}
	}
}

// NATSSink publishes events to JetStream, deduplicated by event id.
type NATSSink struct {
	js jetstream.JetStream
}

func NewNATSSink(js jetstream.JetStream) *NATSSink {
	return &NATSSink{js: js}
}

func (s *NATSSink) Name() string { return "nats" }

func (s *NATSSink) Publish(ctx context.Context, evt PublishableEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = s.js.Publish(ctx, EventSubject(evt), data, jetstream.WithMsgID(evt.EventID))
	return err
}
