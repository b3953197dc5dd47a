package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Consumer metrics
	MessagesConsumed   *prometheus.CounterVec
	OffsetCommits      *prometheus.CounterVec
	PartitionsAssigned *prometheus.GaugeVec
	Rebalances         *prometheus.CounterVec

	// Buffer metrics
	RecordsEnqueued      *prometheus.CounterVec
	RecordsProcessed     *prometheus.CounterVec
	RecordsFailed        *prometheus.CounterVec
	ProcessDuration      *prometheus.HistogramVec
	EnqueueBlockDuration *prometheus.HistogramVec
	DrainerMemoryUsage   *prometheus.GaugeVec
	DrainTimeouts        *prometheus.CounterVec

	// Store metrics
	StoreWrites        *prometheus.CounterVec
	StoreWriteDuration *prometheus.HistogramVec
	StoreErrors        *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		MessagesConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_messages_consumed_total",
				Help: "Total number of messages consumed from Kafka",
			},
			[]string{"topic", "partition"},
		),
		OffsetCommits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_offset_commit_total",
				Help: "Total number of offset commits",
			},
			[]string{"topic", "partition", "status"},
		),
		PartitionsAssigned: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kafka_partitions_assigned",
				Help: "Number of partitions currently assigned to this consumer",
			},
			[]string{"topic"},
		),
		Rebalances: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_rebalance_total",
				Help: "Total number of consumer group rebalances",
			},
			[]string{"group"},
		),

		RecordsEnqueued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buffer_records_enqueued_total",
				Help: "Total number of records routed into drainer queues",
			},
			[]string{"topic", "partition"},
		),
		RecordsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buffer_records_processed_total",
				Help: "Total number of buffered records processed successfully",
			},
			[]string{"topic", "partition"},
		),
		RecordsFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buffer_records_failed_total",
				Help: "Total number of buffered records that failed processing",
			},
			[]string{"topic", "partition"},
		),
		ProcessDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "buffer_process_duration_seconds",
				Help:    "Duration of ingestion task processing per record",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"topic"},
		),
		EnqueueBlockDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "buffer_enqueue_block_duration_seconds",
				Help:    "Time producers spent blocked on backpressure during enqueue",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0},
			},
			[]string{"topic"},
		),
		DrainerMemoryUsage: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "buffer_drainer_memory_usage_bytes",
				Help: "Current buffered bytes per drainer queue",
			},
			[]string{"drainer"},
		),
		DrainTimeouts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buffer_drain_timeout_total",
				Help: "Total number of drain barriers that exhausted their retry budget",
			},
			[]string{"topic"},
		),

		StoreWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "store_writes_total",
				Help: "Total number of records written to the embedded store",
			},
			[]string{"topic", "partition", "status"},
		),
		StoreWriteDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "store_write_duration_seconds",
				Help:    "Duration of embedded store write operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"topic"},
		),
		StoreErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "store_errors_total",
				Help: "Total number of embedded store errors",
			},
			[]string{"operation"},
		),
	}
}

// IncMessagesConsumed increments messages consumed counter.
func (m *Metrics) IncMessagesConsumed(topic string, partition int32) {
	m.MessagesConsumed.WithLabelValues(topic, fmt.Sprintf("%d", partition)).Inc()
}

// IncOffsetCommits increments offset commits counter.
func (m *Metrics) IncOffsetCommits(topic string, partition int32, status string) {
	m.OffsetCommits.WithLabelValues(topic, fmt.Sprintf("%d", partition), status).Inc()
}

// SetPartitionsAssigned sets partitions assigned gauge.
func (m *Metrics) SetPartitionsAssigned(topic string, count float64) {
	m.PartitionsAssigned.WithLabelValues(topic).Set(count)
}

// IncRebalances increments rebalances counter.
func (m *Metrics) IncRebalances(groupID string) {
	m.Rebalances.WithLabelValues(groupID).Inc()
}

// IncRecordsEnqueued increments the enqueued-records counter.
func (m *Metrics) IncRecordsEnqueued(topic string, partition int32) {
	m.RecordsEnqueued.WithLabelValues(topic, fmt.Sprintf("%d", partition)).Inc()
}

// IncRecordsProcessed increments the processed-records counter.
func (m *Metrics) IncRecordsProcessed(topic string, partition int32) {
	m.RecordsProcessed.WithLabelValues(topic, fmt.Sprintf("%d", partition)).Inc()
}

// IncRecordsFailed increments the failed-records counter.
func (m *Metrics) IncRecordsFailed(topic string, partition int32) {
	m.RecordsFailed.WithLabelValues(topic, fmt.Sprintf("%d", partition)).Inc()
}

// ObserveProcessDuration observes one record's processing duration.
func (m *Metrics) ObserveProcessDuration(topic string, seconds float64) {
	m.ProcessDuration.WithLabelValues(topic).Observe(seconds)
}

// ObserveEnqueueBlockDuration observes backpressure blocking time.
func (m *Metrics) ObserveEnqueueBlockDuration(topic string, seconds float64) {
	m.EnqueueBlockDuration.WithLabelValues(topic).Observe(seconds)
}

// SetDrainerMemoryUsage sets the per-drainer buffered-bytes gauge.
func (m *Metrics) SetDrainerMemoryUsage(drainer int, bytes float64) {
	m.DrainerMemoryUsage.WithLabelValues(fmt.Sprintf("%d", drainer)).Set(bytes)
}

// IncDrainTimeouts increments the drain-timeout counter.
func (m *Metrics) IncDrainTimeouts(topic string) {
	m.DrainTimeouts.WithLabelValues(topic).Inc()
}

// IncStoreWrites increments the store writes counter.
func (m *Metrics) IncStoreWrites(topic string, partition int32, status string) {
	m.StoreWrites.WithLabelValues(topic, fmt.Sprintf("%d", partition), status).Inc()
}

// ObserveStoreWriteDuration observes a store write duration.
func (m *Metrics) ObserveStoreWriteDuration(topic string, seconds float64) {
	m.StoreWriteDuration.WithLabelValues(topic).Observe(seconds)
}

// IncStoreErrors increments the store errors counter.
func (m *Metrics) IncStoreErrors(operation string) {
	m.StoreErrors.WithLabelValues(operation).Inc()
}
