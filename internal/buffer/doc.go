// Package buffer implements the ingestion buffer-and-drain engine that sits
// between the message-bus poller and the per-partition storage-write logic.
//
// # Architecture
//
// The Service owns a fixed pool of drainers. Each Drainer owns exactly one
// MemoryBoundedQueue and consumes it from a single goroutine:
//
//	poller -> Service.Enqueue -> hash(topic)+partition mod N
//	       -> MemoryBoundedQueue[i].Put (blocks when full)
//	       -> Drainer[i] takes -> task.Process -> produced.Complete
//
// All records of one (topic, partition) hash to the same drainer, so they
// are processed in strict enqueue order. Downstream data-integrity
// validation depends on that ordering; there is deliberately no work
// stealing between drainers.
//
// # Backpressure
//
// Each queue is bounded in bytes of buffered payload. A full queue blocks
// the producer inside Enqueue, which is how the service tells the upstream
// poller to stop polling. A slow drainer only hurts the producers of its
// own queue; other partitions keep flowing.
//
// # Drain barrier
//
// Before a subscription change for a (topic, partition), DrainPartition
// polls the partition's queue until no record for the pair remains. The
// caller halts upstream production for the pair first; the barrier then
// guarantees that records of an old subscription cannot interleave with a
// new one.
//
// # Failure model
//
// An error returned by task.Process is a per-record failure: it is logged,
// stored in the task via SetLastDrainerError, used to complete the
// produced-record handle, and the drainer continues. A panic out of the
// task terminates that drainer only; the shard is dead until the process
// restarts, and LiveDrainerCount exposes the degradation to health checks.
package buffer
