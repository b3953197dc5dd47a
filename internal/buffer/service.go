package buffer

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sebas-inf/venice/internal/errors"
	"github.com/sebas-inf/venice/pkg/ingestion"
	"github.com/sebas-inf/venice/pkg/record"
)

// Service lifecycle states. Transitions are monotonic and one-shot:
// NEW -> STARTED -> STOPPING -> STOPPED.
const (
	stateNew int32 = iota
	stateStarted
	stateStopping
	stateStopped
)

// Config tunes the buffer service. Zero values for the optional fields are
// replaced with the defaults below.
type Config struct {
	// DrainerCount is the number of parallel drainer workers and the modulus
	// of the partition-routing hash. Required, >= 1.
	DrainerCount int
	// CapacityPerDrainerBytes is the hard byte ceiling of each drainer's
	// queue. Required, >= 1.
	CapacityPerDrainerBytes int64
	// NotifyDeltaBytes is the wake-up granularity for blocked producers.
	NotifyDeltaBytes int64
	// DrainRetryBudget is how many times the drain barrier probes the queue
	// before giving up.
	DrainRetryBudget int
	// DrainSleepInterval is the delay between drain barrier probes.
	DrainSleepInterval time.Duration
	// SlowDrainerThreshold is the fraction of queue capacity above which a
	// drainer is considered slow and the diagnostic burst fires.
	SlowDrainerThreshold float64
	// StopTimeout bounds how long Stop waits for workers to terminate.
	StopTimeout time.Duration
	// RecordOverheadBytes is added to each record's accounted size.
	RecordOverheadBytes int
}

const (
	defaultDrainRetryBudget     = 1000
	defaultDrainSleepInterval   = 50 * time.Millisecond
	defaultSlowDrainerThreshold = 0.8
	defaultStopTimeout          = 10 * time.Second
)

func (c *Config) applyDefaults() {
	if c.DrainRetryBudget == 0 {
		c.DrainRetryBudget = defaultDrainRetryBudget
	}
	if c.DrainSleepInterval == 0 {
		c.DrainSleepInterval = defaultDrainSleepInterval
	}
	if c.SlowDrainerThreshold == 0 {
		c.SlowDrainerThreshold = defaultSlowDrainerThreshold
	}
	if c.StopTimeout == 0 {
		c.StopTimeout = defaultStopTimeout
	}
	if c.RecordOverheadBytes == 0 {
		c.RecordOverheadBytes = record.DefaultOverheadBytes
	}
}

// MetricsCollector defines metrics operations for the buffer service.
type MetricsCollector interface {
	IncRecordsEnqueued(topic string, partition int32)
	IncRecordsProcessed(topic string, partition int32)
	IncRecordsFailed(topic string, partition int32)
	ObserveProcessDuration(topic string, seconds float64)
	ObserveEnqueueBlockDuration(topic string, seconds float64)
	SetDrainerMemoryUsage(drainer int, bytes float64)
	IncDrainTimeouts(topic string)
}

// Service is the facade over the drainer pool. It routes every incoming
// record to a deterministic drainer based on its (topic, partition) so that
// records of one partition are serialized through one queue, bounds memory
// per drainer, and exposes the drain barrier used before subscription
// changes.
type Service struct {
	cfg      Config
	queues   []*MemoryBoundedQueue
	drainers []*Drainer
	logger   *slog.Logger
	metrics  MetricsCollector

	state  atomic.Int32
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a buffer service with cfg.DrainerCount drainers, each
// owning one byte-bounded queue.
func NewService(cfg Config, logger *slog.Logger, metrics MetricsCollector) (*Service, error) {
	if cfg.DrainerCount < 1 {
		return nil, fmt.Errorf("drainer count must be >= 1, got %d", cfg.DrainerCount)
	}
	if cfg.CapacityPerDrainerBytes < 1 {
		return nil, fmt.Errorf("capacity per drainer must be >= 1 byte, got %d", cfg.CapacityPerDrainerBytes)
	}
	if cfg.NotifyDeltaBytes < 0 {
		return nil, fmt.Errorf("notify delta must be >= 0, got %d", cfg.NotifyDeltaBytes)
	}
	cfg.applyDefaults()
	if metrics == nil {
		metrics = NopMetrics{}
	}

	s := &Service{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
	}
	for i := 0; i < cfg.DrainerCount; i++ {
		q := NewMemoryBoundedQueue(cfg.CapacityPerDrainerBytes, cfg.NotifyDeltaBytes, cfg.RecordOverheadBytes)
		s.queues = append(s.queues, q)
		s.drainers = append(s.drainers, newDrainer(q, logger.With("drainer", i), metrics))
	}
	return s, nil
}

// Start launches one worker goroutine per drainer. It succeeds exactly once.
func (s *Service) Start() error {
	if !s.state.CompareAndSwap(stateNew, stateStarted) {
		return errors.ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	for _, d := range s.drainers {
		s.wg.Add(1)
		go func(d *Drainer) {
			defer s.wg.Done()
			d.run(ctx)
		}(d)
	}
	s.logger.Info("buffer service started",
		"drainer_count", s.cfg.DrainerCount,
		"capacity_per_drainer_bytes", s.cfg.CapacityPerDrainerBytes,
		"notify_delta_bytes", s.cfg.NotifyDeltaBytes)
	return nil
}

// Stop asks every drainer to exit, cancels blocked takes, and waits up to
// StopTimeout for the workers to terminate. A worker inside task processing
// is allowed to finish its current record; queued but unprocessed records
// are dropped, so callers must checkpoint offsets before stopping.
func (s *Service) Stop() error {
	if !s.state.CompareAndSwap(stateStarted, stateStopping) {
		return errors.ErrServiceNotStarted
	}
	defer s.state.Store(stateStopped)

	for _, d := range s.drainers {
		d.stop()
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("buffer service stopped")
		return nil
	case <-time.After(s.cfg.StopTimeout):
		return fmt.Errorf("buffer service stop: drainers did not terminate within %s", s.cfg.StopTimeout)
	}
}

// drainerIndex maps (topic, partition) to a drainer. The halving before the
// first abs keeps the value positive even for the most negative 32-bit hash.
// The formula is a compatibility contract: the same pair must map to the
// same index for the life of the process so per-partition ordering holds.
func (s *Service) drainerIndex(topic string, partition int32) int {
	h := fnv.New32a()
	h.Write([]byte(topic))
	topicHash := int32(h.Sum32()) / 2
	if topicHash < 0 {
		topicHash = -topicHash
	}
	idx := (topicHash + partition) % int32(len(s.queues))
	if idx < 0 {
		idx = -idx
	}
	return int(idx)
}

// Enqueue routes the record to its drainer and blocks while that drainer's
// queue is full. Blocking the caller is how the service signals backpressure
// to the upstream poller. No ordering is promised between different
// (topic, partition) pairs, even when they share a drainer.
func (s *Service) Enqueue(ctx context.Context, rec *record.ConsumerRecord, task ingestion.Task, produced ingestion.ProducedRecord) error {
	switch s.state.Load() {
	case stateNew:
		return errors.ErrServiceNotStarted
	case stateStopping, stateStopped:
		return errors.ErrServiceStopped
	}

	idx := s.drainerIndex(rec.Topic, rec.Partition)
	start := time.Now()
	if err := s.queues[idx].Put(ctx, &queueNode{rec: rec, task: task, produced: produced}); err != nil {
		return err
	}
	s.metrics.ObserveEnqueueBlockDuration(rec.Topic, time.Since(start).Seconds())
	s.metrics.IncRecordsEnqueued(rec.Topic, rec.Partition)
	return nil
}

// DrainPartition blocks until no buffered record for (topic, partition)
// remains in the partition's queue, probing with the default retry budget
// and sleep interval. The caller must have halted upstream production for
// the pair first; only then does an observed absence mean quiescence.
func (s *Service) DrainPartition(ctx context.Context, topic string, partition int32) error {
	return s.drainPartition(ctx, topic, partition, s.cfg.DrainRetryBudget, s.cfg.DrainSleepInterval)
}

func (s *Service) drainPartition(ctx context.Context, topic string, partition int32, retryBudget int, sleepInterval time.Duration) error {
	probe := &record.ConsumerRecord{Topic: topic, Partition: partition, Offset: -1}
	idx := s.drainerIndex(topic, partition)
	queue := s.queues[idx]

	for attempt := 0; attempt < retryBudget; attempt++ {
		if !queue.Contains(probe, record.SamePartition) {
			s.logger.Info("no buffered records left for partition",
				"drainer", idx, "topic", topic, "partition", partition)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleepInterval):
		}
	}

	err := &errors.DrainTimeoutError{
		PartitionID:  record.PartitionID{Topic: topic, Partition: partition},
		DrainerIndex: idx,
		Retries:      retryBudget,
	}
	s.logger.Error("drain barrier timed out", "error", err)
	s.metrics.IncDrainTimeouts(topic)
	return err
}

// DrainerCount returns the number of drainers.
func (s *Service) DrainerCount() int {
	return len(s.queues)
}

// PerDrainerMemoryUsage returns the buffered bytes of one drainer's queue.
func (s *Service) PerDrainerMemoryUsage(i int) int64 {
	return s.queues[i].MemoryUsage()
}

// TotalMemoryUsage returns the buffered bytes across all drainer queues.
func (s *Service) TotalMemoryUsage() int64 {
	var total int64
	for _, q := range s.queues {
		total += q.MemoryUsage()
	}
	return total
}

// TotalRemaining returns the free capacity in bytes across all queues.
func (s *Service) TotalRemaining() int64 {
	var total int64
	for _, q := range s.queues {
		total += q.Remaining()
	}
	return total
}

// MaxMemoryUsagePerDrainer returns the highest per-queue memory usage. When
// any drainer is above the slow-drainer threshold it also emits a diagnostic
// burst: the slowest partitions by accumulated processing time for every
// drainer (top 5 for slow drainers, top 1 for healthy ones), then clears the
// counters. The call therefore marks a sampling interval boundary.
func (s *Service) MaxMemoryUsagePerDrainer() int64 {
	var maxUsage int64
	slowDrainerExists := false
	threshold := s.cfg.SlowDrainerThreshold * float64(s.cfg.CapacityPerDrainerBytes)

	for i, q := range s.queues {
		usage := q.MemoryUsage()
		s.metrics.SetDrainerMemoryUsage(i, float64(usage))
		if usage > maxUsage {
			maxUsage = usage
		}
		if float64(usage) > threshold {
			slowDrainerExists = true
		}
	}
	if !slowDrainerExists {
		return maxUsage
	}

	for i, q := range s.queues {
		usage := q.MemoryUsage()
		count := 1
		if float64(usage) > threshold {
			count = 5
		}
		entries := s.drainers[i].sampleTimeSpent()
		partitionCount := len(entries)
		if len(entries) > count {
			entries = entries[:count]
		}
		for _, e := range entries {
			s.logger.Info("drainer time spent on partition",
				"drainer", i,
				"topic", e.partition.Topic,
				"partition", e.partition.Partition,
				"time_spent_ms", e.spent.Milliseconds())
		}
		s.logger.Info("drainer status",
			"drainer", i,
			"partition_count", partitionCount,
			"memory_usage_bytes", usage)
		s.drainers[i].clearTimeSpent()
	}
	return maxUsage
}

// MinMemoryUsagePerDrainer returns the lowest per-queue memory usage.
func (s *Service) MinMemoryUsagePerDrainer() int64 {
	minUsage := int64(-1)
	for _, q := range s.queues {
		usage := q.MemoryUsage()
		if minUsage < 0 || usage < minUsage {
			minUsage = usage
		}
	}
	return minUsage
}

// LiveDrainerCount returns how many drainers are still in the running
// state. A value below DrainerCount after Start means a shard has died and
// the process is degraded; the health check surfaces it.
func (s *Service) LiveDrainerCount() int {
	live := 0
	for _, d := range s.drainers {
		if d.State() == DrainerRunning {
			live++
		}
	}
	return live
}

// FatalDrainerCount returns how many drainers terminated on a fatal
// condition.
func (s *Service) FatalDrainerCount() int {
	fatal := 0
	for _, d := range s.drainers {
		if d.State() == DrainerStoppedFatal {
			fatal++
		}
	}
	return fatal
}

// Started reports whether the service is in the started state.
func (s *Service) Started() bool {
	return s.state.Load() == stateStarted
}
