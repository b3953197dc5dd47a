package server

import (
	"context"
	"fmt"
)

// BufferStatus is the slice of the buffer service the health checker reads.
type BufferStatus interface {
	Started() bool
	DrainerCount() int
	LiveDrainerCount() int
	FatalDrainerCount() int
	TotalMemoryUsage() int64
}

// Checker implements HealthChecker over the buffer service and the poller.
type Checker struct {
	buffer BufferStatus
	ready  <-chan struct{}
}

// NewChecker creates a health checker. ready is the poller's readiness
// channel; a nil channel means readiness depends on the buffer alone.
func NewChecker(buffer BufferStatus, ready <-chan struct{}) *Checker {
	return &Checker{buffer: buffer, ready: ready}
}

// Liveness fails once any drainer has terminated on a fatal condition: the
// shard is dead and only a restart brings it back.
func (c *Checker) Liveness() bool {
	return c.buffer.FatalDrainerCount() == 0
}

// Readiness reports whether the service can ingest traffic.
func (c *Checker) Readiness(_ context.Context) bool {
	if !c.buffer.Started() {
		return false
	}
	if c.ready != nil {
		select {
		case <-c.ready:
		default:
			return false
		}
	}
	return true
}

// GetStatus returns per-component status details.
func (c *Checker) GetStatus() map[string]string {
	return map[string]string{
		"drainers_live":       fmt.Sprintf("%d/%d", c.buffer.LiveDrainerCount(), c.buffer.DrainerCount()),
		"drainers_fatal":      fmt.Sprintf("%d", c.buffer.FatalDrainerCount()),
		"buffer_memory_bytes": fmt.Sprintf("%d", c.buffer.TotalMemoryUsage()),
	}
}

var _ HealthChecker = (*Checker)(nil)
