package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/TanmayDhobale/miniForesight/internal/event"
	"github.com/TanmayDhobale/miniForesight/internal/ledger"
	"github.com/TanmayDhobale/miniForesight/internal/observability"
)

// CoreOutput is one sequenced event ready for persistence and fan-out.
type CoreOutput struct {
	Envelope *event.EventEnvelope
	Batch    *ledger.Batch
}

type sink struct {
	name string
	ch   chan<- CoreOutput
}

// Sequencer orders committed events into a single hash-chained stream.
// The persist channel uses blocking sends (backpressure); projection
// channels use non-blocking sends and drop when full, since projections
// can be rebuilt from the event log.
type Sequencer struct {
	in       chan Committed
	done     chan struct{}
	stopOnce sync.Once

	// stopMu orders Emit against Stop: once Stop holds it and sets
	// stopped, no Emit is mid-send and none will send again.
	stopMu  sync.RWMutex
	stopped bool

	sequence    int64
	hasher      *StateHasher
	persistChan chan<- CoreOutput
	projections []sink

	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewSequencer continues a chain after lastSequence whose tip is prevHash.
// For an empty log pass 0 and GenesisHash().
func NewSequencer(lastSequence int64, prevHash [32]byte, buffer int, metrics *observability.Metrics, logger zerolog.Logger) *Sequencer {
	return &Sequencer{
		in:       make(chan Committed, buffer),
		done:     make(chan struct{}),
		sequence: lastSequence,
		hasher:   ResumeStateHasher(prevHash),
		metrics:  metrics,
		logger:   logger,
	}
}

// SetPersist attaches the blocking persistence output. Call before Run.
func (s *Sequencer) SetPersist(ch chan<- CoreOutput) {
	s.persistChan = ch
}

// AddProjection attaches a non-blocking output. Call before Run.
func (s *Sequencer) AddProjection(name string, ch chan<- CoreOutput) {
	s.projections = append(s.projections, sink{name: name, ch: ch})
}

// Emit hands a committed event to the sequencer. After Stop it is a no-op.
func (s *Sequencer) Emit(c Committed) {
	s.stopMu.RLock()
	defer s.stopMu.RUnlock()
	if s.stopped {
		s.dropped(c)
		return
	}
	select {
	case s.in <- c:
	case <-s.done:
		s.dropped(c)
	}
}

func (s *Sequencer) dropped(c Committed) {
	s.logger.Warn().Str("operation", c.Operation).Msg("sequencer stopped, event not sequenced")
}

// Stop makes further Emit calls return immediately. Events already handed
// over stay buffered for Run to drain.
func (s *Sequencer) Stop() {
	s.stopOnce.Do(func() {
		// Release Emits blocked on a full buffer before waiting for them.
		close(s.done)
		s.stopMu.Lock()
		s.stopped = true
		s.stopMu.Unlock()
	})
}

// Sequence returns the last assigned sequence. Only safe after Run returns.
func (s *Sequencer) Sequence() int64 {
	return s.sequence
}

// Run sequences events until ctx is cancelled, then drains what is already
// buffered.
func (s *Sequencer) Run(ctx context.Context) error {
	defer s.Stop()
	for {
		select {
		case c := <-s.in:
			if err := s.process(c); err != nil {
				return err
			}
		case <-ctx.Done():
			// Stop before draining so late Emits are logged and dropped
			// rather than left in the buffer.
			s.Stop()
			for {
				select {
				case c := <-s.in:
					if err := s.process(c); err != nil {
						return err
					}
				default:
					return ctx.Err()
				}
			}
		}
	}
}

func (s *Sequencer) process(c Committed) error {
	out, err := s.Next(c)
	if err != nil {
		return err
	}

	if s.persistChan != nil {
		s.persistChan <- out
	}
	for _, p := range s.projections {
		select {
		case p.ch <- out:
		default:
			if s.metrics != nil {
				s.metrics.ChannelDrops.WithLabelValues(p.name).Inc()
			}
		}
		if s.metrics != nil {
			s.metrics.ChannelSize.WithLabelValues(p.name).Set(float64(len(p.ch)))
		}
	}
	return nil
}

// Next assigns the next sequence and chain hash to c.
func (s *Sequencer) Next(c Committed) (CoreOutput, error) {
	payload, err := json.Marshal(c.Event)
	if err != nil {
		return CoreOutput{}, fmt.Errorf("encode %s payload: %w", c.Event.EventType(), err)
	}

	var journals []ledger.Journal
	if c.Batch != nil {
		journals = c.Batch.Journals
	}

	s.sequence++
	prev := s.hasher.GetPrevHash()
	digest := EventDigest(c.Event.EventType().String(), payload, journals)
	hash := s.hasher.ComputeHash(s.sequence, digest)

	env := &event.EventEnvelope{
		EventID:   uuid.New(),
		Sequence:  s.sequence,
		RequestID: c.RequestID,
		EventType: c.Event.EventType(),
		MarketID:  c.Event.MarketID(),
		Timestamp: c.Timestamp.UTC(),
		Payload:   payload,
		Journals:  journals,
		StateHash: hash,
		PrevHash:  prev,
	}

	if s.metrics != nil {
		s.metrics.SequencerSequence.Set(float64(s.sequence))
	}
	return CoreOutput{Envelope: env, Batch: c.Batch}, nil
}
