package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/TanmayDhobale/miniForesight/internal/auth"
	"github.com/TanmayDhobale/miniForesight/internal/core"
	"github.com/TanmayDhobale/miniForesight/internal/market"
	"github.com/TanmayDhobale/miniForesight/internal/observability"
)

const (
	CommandStream   = "FORESIGHT_COMMANDS"
	CommandConsumer = "foresight-commands"
)

// Disposition is what to do with a delivered command message.
type Disposition int

const (
	// Ack: applied, or rejected for a reason redelivery cannot fix.
	Ack Disposition = iota
	// Nak: failed for an infrastructure reason; redeliver.
	Nak
	// Term: never processable (malformed or unauthenticated).
	Term
)

func (d Disposition) String() string {
	switch d {
	case Ack:
		return "ack"
	case Nak:
		return "nak"
	case Term:
		return "term"
	default:
		return "unknown"
	}
}

// CommandSubscriber consumes operation commands from a JetStream durable
// consumer and applies them to the engine.
type CommandSubscriber struct {
	js       jetstream.JetStream
	engine   Engine
	verifier *auth.Verifier
	idem     *core.IdempotencyChecker
	metrics  *observability.Metrics
	logger   zerolog.Logger
	consumer jetstream.ConsumeContext
}

func NewCommandSubscriber(
	js jetstream.JetStream,
	engine Engine,
	verifier *auth.Verifier,
	idem *core.IdempotencyChecker,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *CommandSubscriber {
	return &CommandSubscriber{
		js:       js,
		engine:   engine,
		verifier: verifier,
		idem:     idem,
		metrics:  metrics,
		logger:   logger,
	}
}

// Subscribe creates the durable consumer and starts consuming.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (cs *CommandSubscriber) Subscribe(ctx context.Context) error {
	consumer, err := cs.js.CreateOrUpdateConsumer(ctx, CommandStream, jetstream.ConsumerConfig{
		Durable:       CommandConsumer,
		FilterSubject: CommandSubjectPrefix + ">",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", CommandConsumer, err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		switch cs.Handle(ctx, msg.Subject(), msg.Data()) {
		case Ack:
			msg.Ack()
		case Nak:
			msg.Nak()
		case Term:
			msg.Term()
		}
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", CommandConsumer, err)
	}

	cs.consumer = cc
	cs.logger.Info().Str("subject", CommandSubjectPrefix+">").Str("consumer", CommandConsumer).Msg("subscribed")
	return nil
}

// Handle processes one command message and reports its disposition.
func (cs *CommandSubscriber) Handle(ctx context.Context, subject string, data []byte) Disposition {
	cmd, err := ParseCommand(subject, data)
	if err != nil {
		cs.reject("unparsed", "malformed")
		cs.logger.Warn().Err(err).Str("subject", subject).Msg("malformed command terminated")
		return Term
	}
	if cs.metrics != nil {
		cs.metrics.CommandsReceived.WithLabelValues(cmd.Op).Inc()
	}

	if cs.idem != nil && cs.idem.IsDuplicate(ctx, cmd.RequestID) {
		cs.reject(cmd.Op, "duplicate")
		cs.logger.Debug().Str("op", cmd.Op).Str("request_id", cmd.RequestID).Msg("duplicate command skipped")
		return Ack
	}

	identity, err := cs.verifier.Identify(cmd.Token, cmd.Caller)
	if err != nil {
		cs.reject(cmd.Op, "unauthenticated")
		cs.logger.Warn().Err(err).Str("op", cmd.Op).Msg("unauthenticated command terminated")
		return Term
	}

	_, err = Dispatch(ctx, cs.engine, identity, cmd)
	switch {
	case err == nil:
		if cs.idem != nil {
			cs.idem.MarkProcessed(cmd.RequestID)
		}
		cs.logger.Debug().Str("op", cmd.Op).Str("caller", identity).Str("request_id", cmd.RequestID).Msg("command applied")
		return Ack

	case market.KindOf(err) != market.KindUnknown:
		// Settlement errors are deterministic; redelivery would fail again.
		if errors.Is(err, market.ErrDuplicateRequest) && cs.idem != nil {
			cs.idem.MarkProcessed(cmd.RequestID)
		}
		cs.reject(cmd.Op, market.CodeOf(err))
		cs.logger.Info().Err(err).Str("op", cmd.Op).Str("caller", identity).Msg("command rejected")
		return Ack

	default:
		cs.logger.Error().Err(err).Str("op", cmd.Op).Str("request_id", cmd.RequestID).Msg("command failed, requesting redelivery")
		return Nak
	}
}

func (cs *CommandSubscriber) reject(op, reason string) {
	if cs.metrics != nil {
		cs.metrics.CommandsRejected.WithLabelValues(op, reason).Inc()
	}
}

// Stop gracefully stops the consumer.
func (cs *CommandSubscriber) Stop() {
	if cs.consumer != nil {
		cs.consumer.Stop()
	}
	cs.logger.Info().Msg("command subscriber stopped")
}

// EnsureStreams creates the command and event streams if they don't exist.
// Streams use FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream, logger zerolog.Logger) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      CommandStream,
			Subjects:  []string{CommandSubjectPrefix + ">"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      EventStream,
			Subjects:  []string{EventSubjectPrefix + ">"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		logger.Info().Str("stream", cfg.Name).Msg("ensured stream")
	}
	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, logger zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.Name("miniforesight"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
