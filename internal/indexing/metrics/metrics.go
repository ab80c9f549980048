package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PassesTotal tracks synchronization passes by outcome (ok, failed, skipped)
	PassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feeder_passes_total",
			Help: "Total number of synchronization passes",
		},
		[]string{"outcome"},
	)

	// PassErrorsTotal tracks failed passes per error category
	PassErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feeder_pass_errors_total",
			Help: "Total number of failed passes per error category",
		},
		[]string{"category"},
	)

	// PassDuration tracks how long a pass takes
	PassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "feeder_pass_duration_seconds",
			Help:    "Synchronization pass duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	// BlocksImported tracks block records upserted by forward import
	BlocksImported = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feeder_blocks_imported_total",
			Help: "Total number of blocks imported",
		},
	)

	// ReorgsTotal tracks detected reorganizations
	ReorgsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feeder_reorgs_total",
			Help: "Total number of reorganizations detected",
		},
	)

	// ReorgDepth tracks how many stored blocks a reorg replaced
	ReorgDepth = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "feeder_reorg_depth_blocks",
			Help:    "Depth of detected reorganizations in blocks",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	// OrphansPruned tracks block rows deleted above a fork point
	OrphansPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feeder_orphans_pruned_total",
			Help: "Total number of stale block rows deleted above fork points",
		},
	)

	// IndexerLatestBlock tracks the highest locally stored height
	IndexerLatestBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feeder_indexer_latest_block",
			Help: "Latest block height stored by the feeder",
		},
	)

	// EpochHeight tracks the latest observed difficulty change height
	EpochHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feeder_epoch_height",
			Help: "Height of the latest observed difficulty change",
		},
	)

	// Netspace tracks the latest netspace reading in bytes
	Netspace = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feeder_netspace_bytes",
			Help: "Latest netspace reported by the node",
		},
	)

	// SubSlotSeconds tracks the estimated sub slot duration
	SubSlotSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feeder_sub_slot_seconds",
			Help: "Estimated sub slot duration in seconds",
		},
	)

	// NodeCallsTotal tracks node RPC calls
	NodeCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feeder_node_calls_total",
			Help: "Total number of node RPC calls",
		},
		[]string{"endpoint"},
	)

	// NodeErrorsTotal tracks node RPC errors
	NodeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feeder_node_errors_total",
			Help: "Total number of node RPC errors",
		},
		[]string{"endpoint", "error_type"},
	)

	// NodeLatency tracks node RPC latency
	NodeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feeder_node_latency_seconds",
			Help:    "Node RPC latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// DBConnectionPoolUsage tracks open connections relative to the pool limit
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feeder_db_connection_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
