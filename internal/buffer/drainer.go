package buffer

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sebas-inf/venice/pkg/record"
)

// Drainer terminal states. A drainer starts in DrainerRunning and ends in
// exactly one of the stopped states.
const (
	DrainerRunning int32 = iota
	DrainerStoppedNormal
	DrainerStoppedCancelled
	DrainerStoppedFatal
)

// maxLoggedRecordChars bounds how much of a record rendering makes it into
// the log on a processing failure.
const maxLoggedRecordChars = 1024

// Drainer is a single worker that owns one MemoryBoundedQueue. It loops
// taking buffered records, hands each to the owning ingestion task, and
// completes the produced-record handle. One drainer per queue keeps every
// (topic, partition) strictly ordered through its assigned queue.
type Drainer struct {
	queue   *MemoryBoundedQueue
	running atomic.Bool
	state   atomic.Int32
	logger  *slog.Logger
	metrics MetricsCollector

	// timeSpent accumulates processing time per partition. Written only by
	// the drainer goroutine; read and cleared by diagnostic callers.
	mu        sync.Mutex
	timeSpent map[record.PartitionID]time.Duration
}

func newDrainer(queue *MemoryBoundedQueue, logger *slog.Logger, metrics MetricsCollector) *Drainer {
	d := &Drainer{
		queue:     queue,
		logger:    logger,
		metrics:   metrics,
		timeSpent: make(map[record.PartitionID]time.Duration),
	}
	d.running.Store(true)
	d.state.Store(DrainerRunning)
	return d
}

// stop asks the drainer to exit after its current record. The worker blocked
// in Take is woken by cancelling its context.
func (d *Drainer) stop() {
	d.running.Store(false)
}

// State returns the drainer's current lifecycle state.
func (d *Drainer) State() int32 {
	return d.state.Load()
}

// run is the worker loop. It exits on cooperative stop, on context
// cancellation of the blocking take, or on a fatal condition raised while
// processing a record.
func (d *Drainer) run(ctx context.Context) {
	d.logger.Info("drainer started")
	for d.running.Load() {
		node, err := d.queue.Take(ctx)
		if err != nil {
			d.logger.Info("drainer take interrupted, exiting", "error", err)
			d.state.Store(DrainerStoppedCancelled)
			return
		}
		if fatal := d.processOne(node); fatal {
			d.state.Store(DrainerStoppedFatal)
			return
		}
	}
	d.logger.Info("drainer stopped")
	d.state.Store(DrainerStoppedNormal)
}

// processOne handles one buffered record. A returned error from the task is
// a per-record failure: it is logged, delivered back into the task, and used
// to complete the produced-record handle, after which the drainer keeps
// going. A panic out of the task indicates corrupted process state; it is
// reported as fatal and terminates the drainer without taking the other
// partitions of the process down with it.
func (d *Drainer) processOne(node *queueNode) (fatal bool) {
	rec := node.rec
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("fatal condition while processing record, drainer terminating",
				"panic", r,
				"record", truncate(rec.String(), maxLoggedRecordChars))
			fatal = true
		}
	}()

	start := time.Now()
	err := node.task.Process(rec, node.produced)
	elapsed := time.Since(start)

	if err != nil {
		d.logger.Error("failed to process buffered record",
			"record", truncate(rec.String(), maxLoggedRecordChars),
			"error", err)
		node.task.SetLastDrainerError(err)
		if node.produced != nil {
			node.produced.Complete(err)
		}
		d.metrics.IncRecordsFailed(rec.Topic, rec.Partition)
		return false
	}

	if node.produced != nil {
		node.produced.Complete(nil)
	}
	d.addTimeSpent(rec.PartitionID(), elapsed)
	d.metrics.IncRecordsProcessed(rec.Topic, rec.Partition)
	d.metrics.ObserveProcessDuration(rec.Topic, elapsed.Seconds())
	return false
}

func (d *Drainer) addTimeSpent(p record.PartitionID, elapsed time.Duration) {
	d.mu.Lock()
	d.timeSpent[p] += elapsed
	d.mu.Unlock()
}

// partitionTime pairs a partition with its accumulated processing time.
type partitionTime struct {
	partition record.PartitionID
	spent     time.Duration
}

// sampleTimeSpent returns the accumulated per-partition processing times
// sorted by time descending, along with the partition count.
func (d *Drainer) sampleTimeSpent() []partitionTime {
	d.mu.Lock()
	defer d.mu.Unlock()
	entries := make([]partitionTime, 0, len(d.timeSpent))
	for p, spent := range d.timeSpent {
		entries = append(entries, partitionTime{partition: p, spent: spent})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].spent > entries[j].spent })
	return entries
}

// clearTimeSpent resets the accumulated counters, marking the start of a new
// sampling interval.
func (d *Drainer) clearTimeSpent() {
	d.mu.Lock()
	d.timeSpent = make(map[record.PartitionID]time.Duration)
	d.mu.Unlock()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
