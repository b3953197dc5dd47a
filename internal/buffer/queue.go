package buffer

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"github.com/sebas-inf/venice/internal/errors"
	"github.com/sebas-inf/venice/pkg/ingestion"
	"github.com/sebas-inf/venice/pkg/record"
)

// queueNode couples a buffered record with the collaborators the drainer
// needs when it finally processes it.
type queueNode struct {
	rec      *record.ConsumerRecord
	task     ingestion.Task
	produced ingestion.ProducedRecord
	size     int64
}

// MemoryBoundedQueue is a blocking multi-producer, single-consumer FIFO
// whose capacity is measured in bytes of buffered payload rather than in
// element count. Producers block in Put while the queue is full; the single
// consumer blocks in Take while it is empty.
//
// To dampen thundering-herd wakeups when many small producers are blocked,
// freed bytes are accumulated across takes and exactly one producer is woken
// each time the accumulated amount reaches notifyDelta.
type MemoryBoundedQueue struct {
	capacity    int64
	notifyDelta int64
	overhead    int

	mu               sync.Mutex
	notFull          *sync.Cond
	notEmpty         *sync.Cond
	items            *list.List
	used             int64
	freedSinceNotify int64
}

// NewMemoryBoundedQueue creates a queue bounded at capacityBytes. Each
// record is accounted as payload bytes plus overheadBytes.
func NewMemoryBoundedQueue(capacityBytes, notifyDeltaBytes int64, overheadBytes int) *MemoryBoundedQueue {
	q := &MemoryBoundedQueue{
		capacity:    capacityBytes,
		notifyDelta: notifyDeltaBytes,
		overhead:    overheadBytes,
		items:       list.New(),
	}
	q.notFull = sync.NewCond(&q.mu)
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Put enqueues the node, blocking while the record would push usage past
// capacity. The capacity check is strict: a producer never returns from Put
// having overshot the bound. A record that can never fit is rejected
// immediately with ErrRecordTooLarge rather than blocking forever. On
// context cancellation the record is not enqueued.
func (q *MemoryBoundedQueue) Put(ctx context.Context, node *queueNode) error {
	node.size = int64(node.rec.QueueSize(q.overhead))
	if node.size > q.capacity {
		return fmt.Errorf("%w: record size %d bytes, queue capacity %d bytes",
			errors.ErrRecordTooLarge, node.size, q.capacity)
	}

	stop := context.AfterFunc(ctx, q.wakeAll)
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for q.used+node.size > q.capacity {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		q.notFull.Wait()
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	q.items.PushBack(node)
	q.used += node.size
	q.notEmpty.Signal()
	return nil
}

// Take removes and returns the head of the queue, blocking while it is
// empty. The queue is designed for exactly one consumer; behavior with
// concurrent takers is undefined. On context cancellation the queue is
// unchanged.
func (q *MemoryBoundedQueue) Take(ctx context.Context) (*queueNode, error) {
	stop := context.AfterFunc(ctx, q.wakeAll)
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for q.items.Len() == 0 {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		q.notEmpty.Wait()
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	front := q.items.Front()
	q.items.Remove(front)
	node := front.Value.(*queueNode)
	q.used -= node.size

	q.freedSinceNotify += node.size
	if q.freedSinceNotify >= q.notifyDelta {
		q.notFull.Signal()
		q.freedSinceNotify = 0
	}
	return node, nil
}

// Contains reports whether any currently-buffered record satisfies eq
// against the probe. The scan holds the queue lock, so it is a consistent
// point-in-time snapshot; records enqueued after the scan begins are not
// guaranteed to be observed.
func (q *MemoryBoundedQueue) Contains(probe *record.ConsumerRecord, eq func(a, b *record.ConsumerRecord) bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for e := q.items.Front(); e != nil; e = e.Next() {
		if eq(probe, e.Value.(*queueNode).rec) {
			return true
		}
	}
	return false
}

// MemoryUsage returns the bytes currently accounted to buffered records.
func (q *MemoryBoundedQueue) MemoryUsage() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.used
}

// Remaining returns the free capacity in bytes.
func (q *MemoryBoundedQueue) Remaining() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.capacity - q.used
}

// Len returns the number of buffered records.
func (q *MemoryBoundedQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// wakeAll unblocks every waiter so cancelled callers can observe their
// context. Waiters whose context is still live simply re-check and wait.
func (q *MemoryBoundedQueue) wakeAll() {
	q.mu.Lock()
	q.notFull.Broadcast()
	q.notEmpty.Broadcast()
	q.mu.Unlock()
}
