package ingestion

import "context"

// Ensure implementation satisfies interface at compile time.
var _ ProducedRecord = (*producedRecord)(nil)

// producedRecord is the channel-backed one-shot promise handed to the
// drainer. The done channel is closed exactly once by Complete.
type producedRecord struct {
	done chan struct{}
	err  error
}

// NewProducedRecord creates an uncompleted produced-record handle.
func NewProducedRecord() ProducedRecord {
	return &producedRecord{done: make(chan struct{})}
}

func (p *producedRecord) Complete(err error) {
	p.err = err
	close(p.done)
}

func (p *producedRecord) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
