package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the settlement service.
type Metrics struct {
	// --- Operations ---
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	StoreConflicts    prometheus.Counter
	DuplicateRequests *prometheus.CounterVec

	// --- Value flow ---
	BetVolume      prometheus.Counter
	PayoutsTotal   prometheus.Counter
	FeesCollected  prometheus.Counter
	MarketsCreated prometheus.Counter
	MarketsByState *prometheus.GaugeVec

	// --- Pipeline ---
	SequencerSequence    prometheus.Gauge
	ChannelSize          *prometheus.GaugeVec
	ChannelDrops         *prometheus.CounterVec
	EventsPublished      *prometheus.CounterVec
	PublishErrors        *prometheus.CounterVec
	PersistEventsWritten prometheus.Counter
	PersistBatchDur      prometheus.Histogram
	PersistRetries       prometheus.Counter

	// --- Ingestion ---
	CommandsReceived *prometheus.CounterVec
	CommandsRejected *prometheus.CounterVec

	// --- Audit ---
	AuditRuns       prometheus.Counter
	AuditViolations *prometheus.CounterVec
	AuditDuration   prometheus.Histogram
}

// NewMetrics registers every metric with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		OperationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "foresight_operations_total",
			Help: "Settlement operations by operation and result code",
		}, []string{"operation", "result"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "foresight_operation_duration_seconds",
			Help:    "Wall time of one settlement operation including store commit",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		}, []string{"operation"}),
		StoreConflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "foresight_store_conflicts_total",
			Help: "Store transactions retried after a write conflict",
		}),
		DuplicateRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "foresight_duplicate_requests_total",
			Help: "Commands skipped because their request id was already applied",
		}, []string{"tier"}),

		BetVolume: f.NewCounter(prometheus.CounterOpts{
			Name: "foresight_bet_volume_total",
			Help: "Sum of accepted stakes in base units",
		}),
		PayoutsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "foresight_payouts_total",
			Help: "Sum of winnings paid out of escrow in base units",
		}),
		FeesCollected: f.NewCounter(prometheus.CounterOpts{
			Name: "foresight_fees_collected_total",
			Help: "Sum of platform fees collected in base units",
		}),
		MarketsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "foresight_markets_created_total",
			Help: "Markets created",
		}),
		MarketsByState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "foresight_markets",
			Help: "Markets by lifecycle status at the last audit",
		}, []string{"status"}),

		SequencerSequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "foresight_sequencer_sequence",
			Help: "Last sequence assigned to a committed event",
		}),
		ChannelSize: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "foresight_channel_size",
			Help: "Buffered envelopes per output channel",
		}, []string{"channel"}),
		ChannelDrops: f.NewCounterVec(prometheus.CounterOpts{
			Name: "foresight_channel_drops_total",
			Help: "Envelopes dropped by non-blocking output channels",
		}, []string{"channel"}),
		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "foresight_events_published_total",
			Help: "Events published to the outbound sink",
		}, []string{"sink", "event_type"}),
		PublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "foresight_publish_errors_total",
			Help: "Failed outbound publishes",
		}, []string{"sink"}),
		PersistEventsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "foresight_persist_events_written_total",
			Help: "Envelopes written to the event log",
		}),
		PersistBatchDur: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "foresight_persist_batch_duration_seconds",
			Help:    "Event log batch write latency",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		PersistRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "foresight_persist_retries_total",
			Help: "Event log batch write retries",
		}),

		CommandsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "foresight_commands_received_total",
			Help: "Commands received from the message bus",
		}, []string{"operation"}),
		CommandsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "foresight_commands_rejected_total",
			Help: "Commands rejected by parsing or by the engine",
		}, []string{"operation", "reason"}),

		AuditRuns: f.NewCounter(prometheus.CounterOpts{
			Name: "foresight_audit_runs_total",
			Help: "Conservation audits executed",
		}),
		AuditViolations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "foresight_audit_violations_total",
			Help: "Invariant violations found by the conservation audit",
		}, []string{"check"}),
		AuditDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "foresight_audit_duration_seconds",
			Help:    "Duration of one conservation audit",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
	}
}
