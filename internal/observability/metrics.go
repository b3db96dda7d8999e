package observability

import (
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the ledger service.
type Metrics struct {
	// --- Command processing ---
	CoreCommandsApplied  *prometheus.CounterVec
	CoreCommandsRejected *prometheus.CounterVec
	CoreCommandDuration  *prometheus.HistogramVec
	CoreEventsEmitted    *prometheus.CounterVec
	CoreSequence         prometheus.Gauge

	// --- Channel & backpressure ---
	ChannelSize         *prometheus.GaugeVec
	ChannelCapacity     *prometheus.GaugeVec
	ChannelUtilization  *prometheus.GaugeVec
	PublishDrops        prometheus.Counter
	PersistBackpressure prometheus.Counter

	// --- Idempotency ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge

	// --- Oracle feed ---
	PriceQuotesApplied *prometheus.CounterVec
	PriceQuotesStale   *prometheus.CounterVec
	OraclePrice        *prometheus.GaugeVec

	// --- Market state (wad values scaled to float) ---
	MarketFloatingAssets      *prometheus.GaugeVec
	MarketFloatingDebt        *prometheus.GaugeVec
	MarketBackupBorrowed      *prometheus.GaugeVec
	MarketEarningsAccumulator *prometheus.GaugeVec

	// --- Liquidation ---
	LiquidationsTotal   *prometheus.CounterVec
	BadDebtClearedTotal *prometheus.CounterVec

	// --- Persistence ---
	PersistEventsWritten prometheus.Counter
	PersistBatchDur      prometheus.Histogram
	PersistBatchSize     prometheus.Histogram
	PersistErrors        *prometheus.CounterVec
	PersistLastSequence  prometheus.Gauge

	// --- Messaging ---
	IngestMessages    *prometheus.CounterVec
	IngestParseErrors *prometheus.CounterVec
	OutboundPublished *prometheus.CounterVec

	// --- HTTP API ---
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		CoreCommandsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "exa_core_commands_applied_total",
			Help: "Commands successfully applied by the engine",
		}, []string{"kind"}),

		CoreCommandsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "exa_core_commands_rejected_total",
			Help: "Commands rejected (duplicate, stale, validation)",
		}, []string{"kind", "reason"}),

		CoreCommandDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "exa_core_command_duration_seconds",
			Help:    "Time to execute a single command",
			Buckets: latencyBuckets,
		}, []string{"kind"}),

		CoreEventsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "exa_core_events_emitted_total",
			Help: "Events appended to the log",
		}, []string{"event_type"}),

		CoreSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "exa_core_sequence",
			Help: "Next event sequence number",
		}),

		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "exa_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "exa_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "exa_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "exa_publish_drops_total",
			Help: "Events dropped due to full publish channel",
		}),

		PersistBackpressure: promauto.NewCounter(prometheus.CounterOpts{
			Name: "exa_persist_backpressure_total",
			Help: "Times the engine blocked on the persist channel",
		}),

		IdempotencyDuplicates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "exa_idempotency_duplicates_total",
			Help: "Duplicate commands caught",
		}, []string{"kind"}),

		DedupLRUSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "exa_dedup_lru_size",
			Help: "Current LRU occupancy",
		}),

		PriceQuotesApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "exa_price_quotes_applied_total",
			Help: "Oracle quotes accepted",
		}, []string{"asset"}),

		PriceQuotesStale: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "exa_price_quotes_stale_total",
			Help: "Oracle quotes skipped as stale or replayed",
		}, []string{"asset"}),

		OraclePrice: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "exa_oracle_price",
			Help: "Latest oracle quote (units of account per token)",
		}, []string{"asset"}),

		MarketFloatingAssets: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "exa_market_floating_assets",
			Help: "Variable-rate pool assets",
		}, []string{"market"}),

		MarketFloatingDebt: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "exa_market_floating_debt",
			Help: "Variable-rate pool debt",
		}, []string{"market"}),

		MarketBackupBorrowed: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "exa_market_backup_borrowed",
			Help: "Floating liquidity lent into fixed pools",
		}, []string{"market"}),

		MarketEarningsAccumulator: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "exa_market_earnings_accumulator",
			Help: "Protocol earnings awaiting distribution",
		}, []string{"market"}),

		LiquidationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "exa_liquidations_total",
			Help: "Liquidation calls executed",
		}, []string{"debt_market"}),

		BadDebtClearedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "exa_bad_debt_cleared_total",
			Help: "Bad-debt write-offs",
		}, []string{"market"}),

		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "exa_persist_events_written_total",
			Help: "Events written to Postgres",
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "exa_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "exa_persist_batch_size",
			Help:    "Events per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "exa_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "exa_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		IngestMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "exa_ingest_messages_total",
			Help: "NATS messages received",
		}, []string{"subject"}),

		IngestParseErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "exa_ingest_parse_errors_total",
			Help: "NATS messages that failed to parse",
		}, []string{"subject"}),

		OutboundPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "exa_outbound_published_total",
			Help: "Ledger events published to NATS",
		}, []string{"event_type"}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "exa_http_requests_total",
			Help: "HTTP API requests",
		}, []string{"endpoint", "status"}),

		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "exa_http_request_duration_seconds",
			Help:    "HTTP API latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}

// WadGauge converts a wad-scaled big.Int to a float for gauge export.
// Lossy: gauges feed dashboards, the event log holds exact values.
func WadGauge(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(
		new(big.Float).SetInt(v),
		big.NewFloat(1e18),
	).Float64()
	return f
}
