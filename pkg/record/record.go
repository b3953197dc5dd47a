// Package record defines the consumed-record types shared between the
// ingestion buffer and its collaborators.
package record

import (
	"fmt"
	"time"
)

// DefaultOverheadBytes approximates the per-record bookkeeping cost (struct
// fields, queue node, slice headers) added on top of the payload bytes when
// accounting queue memory.
const DefaultOverheadBytes = 256

// PartitionID uniquely identifies a log-stream partition.
type PartitionID struct {
	Topic     string
	Partition int32
}

// String returns the partition ID in the format "topic-partition".
func (p PartitionID) String() string {
	return fmt.Sprintf("%s-%d", p.Topic, p.Partition)
}

// ConsumerRecord is a single raw record pulled from the message bus.
// Key and Value are kept by reference; the buffer never copies payload bytes.
type ConsumerRecord struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time
}

// PartitionID returns the (topic, partition) coordinates of the record.
func (r *ConsumerRecord) PartitionID() PartitionID {
	return PartitionID{Topic: r.Topic, Partition: r.Partition}
}

// QueueSize returns the number of bytes this record is accounted for while
// buffered: payload bytes plus a fixed overhead for the surrounding structures.
func (r *ConsumerRecord) QueueSize(overheadBytes int) int {
	return len(r.Key) + len(r.Value) + len(r.Topic) + overheadBytes
}

// String renders the record coordinates and payload sizes, not the payload
// itself, so it is safe to log.
func (r *ConsumerRecord) String() string {
	return fmt.Sprintf("ConsumerRecord{topic=%s partition=%d offset=%d key=%dB value=%dB}",
		r.Topic, r.Partition, r.Offset, len(r.Key), len(r.Value))
}

// SamePartition reports whether two records share (topic, partition). The
// drain barrier uses it as its containment predicate; it is deliberately not
// a general-purpose identity, which would also include the offset.
func SamePartition(a, b *ConsumerRecord) bool {
	return a.Topic == b.Topic && a.Partition == b.Partition
}
