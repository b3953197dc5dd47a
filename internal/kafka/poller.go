// Package kafka implements the consumer-side adapters between the message
// bus and the ingestion buffer.
package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/sebas-inf/venice/internal/errors"
	"github.com/sebas-inf/venice/pkg/ingestion"
	"github.com/sebas-inf/venice/pkg/record"
)

// Buffer is the slice of the buffer service the poller depends on.
type Buffer interface {
	Enqueue(ctx context.Context, rec *record.ConsumerRecord, task ingestion.Task, produced ingestion.ProducedRecord) error
	DrainPartition(ctx context.Context, topic string, partition int32) error
}

// Task extends the ingestion contract with the hooks the poller needs to
// observe asynchronous failures and reset validation state across
// subscription changes.
type Task interface {
	ingestion.Task
	LastDrainerError() error
	ResetPartition(p record.PartitionID)
}

// TaskProvider resolves the ingestion task owning a topic.
type TaskProvider func(topic string) Task

// PollerConfig contains Kafka poller configuration.
type PollerConfig struct {
	BootstrapServers    []string
	GroupID             string
	Topics              []string
	AutoOffsetReset     string
	SessionTimeoutMS    int
	HeartbeatIntervalMS int
	MaxPollIntervalMS   int
	Security            SecurityConfig
}

// MetricsCollector defines metrics operations for the poller.
type MetricsCollector interface {
	IncMessagesConsumed(topic string, partition int32)
	IncOffsetCommits(topic string, partition int32, status string)
	SetPartitionsAssigned(topic string, count float64)
	IncRebalances(groupID string)
}

// Poller pulls records from the message bus as fast as the buffer lets it.
// Each consumed message is routed through Buffer.Enqueue, which blocks on
// backpressure; blocking the poll loop is exactly how the buffer tells the
// upstream to slow down. Offsets are marked only after the enqueue
// succeeded and the owning task has not reported an asynchronous failure.
type Poller struct {
	consumerGroup sarama.ConsumerGroup
	config        PollerConfig
	buffer        Buffer
	tasks         TaskProvider
	logger        *slog.Logger
	metrics       MetricsCollector
	ready         chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewPoller creates a consumer-group poller feeding the buffer service.
func NewPoller(
	config PollerConfig,
	buf Buffer,
	tasks TaskProvider,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*Poller, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V2_8_0_0
	saramaConfig.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	saramaConfig.Consumer.Offsets.Initial = offsetInitial(config.AutoOffsetReset)
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = false
	saramaConfig.Consumer.Group.Session.Timeout = time.Duration(config.SessionTimeoutMS) * time.Millisecond
	saramaConfig.Consumer.Group.Heartbeat.Interval = time.Duration(config.HeartbeatIntervalMS) * time.Millisecond
	if config.MaxPollIntervalMS > 0 {
		saramaConfig.Consumer.MaxProcessingTime = time.Duration(config.MaxPollIntervalMS) * time.Millisecond
	} else {
		saramaConfig.Consumer.MaxProcessingTime = 5 * time.Minute
	}
	saramaConfig.Consumer.Return.Errors = true

	if err := configureSecurity(saramaConfig, config.Security); err != nil {
		return nil, fmt.Errorf("failed to configure security: %w", err)
	}

	consumerGroup, err := sarama.NewConsumerGroup(config.BootstrapServers, config.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	logger.Info("kafka poller created",
		"group_id", config.GroupID,
		"bootstrap_servers", config.BootstrapServers,
		"topics", config.Topics,
	)

	return &Poller{
		consumerGroup: consumerGroup,
		config:        config,
		buffer:        buf,
		tasks:         tasks,
		logger:        logger,
		metrics:       metrics,
		ready:         make(chan struct{}),
	}, nil
}

// Run consumes until ctx is cancelled. It returns the first consumer-group
// error, or nil on clean shutdown.
func (p *Poller) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.ErrConsumerClosed
	}
	p.mu.Unlock()

	handler := &pollerHandler{poller: p}
	for {
		err := p.consumerGroup.Consume(ctx, p.config.Topics, handler)
		if ctx.Err() != nil {
			p.logger.Info("poller context cancelled")
			return nil
		}
		if err != nil {
			p.logger.Error("consumer group error", "error", err)
			return err
		}
	}
}

// Ready returns a channel closed once the first consumer session is set up.
func (p *Poller) Ready() <-chan struct{} {
	return p.ready
}

// Close closes the poller and releases resources.
func (p *Poller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.logger.Info("closing kafka poller")
	return p.consumerGroup.Close()
}

// pollerHandler implements sarama.ConsumerGroupHandler.
type pollerHandler struct {
	poller    *Poller
	readyOnce sync.Once
}

// Setup is run at the beginning of a new session, before ConsumeClaim.
func (h *pollerHandler) Setup(session sarama.ConsumerGroupSession) error {
	p := h.poller
	p.logger.Info("consumer group session setup",
		"member_id", session.MemberID(),
		"generation_id", session.GenerationID(),
		"claims", session.Claims(),
	)

	if p.metrics != nil {
		p.metrics.IncRebalances(p.config.GroupID)
		for topic, partitions := range session.Claims() {
			p.metrics.SetPartitionsAssigned(topic, float64(len(partitions)))
		}
	}

	h.readyOnce.Do(func() { close(p.ready) })
	return nil
}

// Cleanup runs at the end of a session, once all ConsumeClaim goroutines
// have exited. Before the group rebalances, every claimed partition is
// drained through the barrier so records of this session cannot interleave
// with the next subscription, and its validation state is reset.
func (h *pollerHandler) Cleanup(session sarama.ConsumerGroupSession) error {
	p := h.poller
	drainCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	for topic, partitions := range session.Claims() {
		task := p.tasks(topic)
		for _, partition := range partitions {
			if err := p.buffer.DrainPartition(drainCtx, topic, partition); err != nil {
				p.logger.Error("failed to drain partition before rebalance",
					"topic", topic, "partition", partition, "error", err)
				continue
			}
			if task != nil {
				task.ResetPartition(record.PartitionID{Topic: topic, Partition: partition})
			}
		}
	}

	p.logger.Info("consumer group session cleanup", "member_id", session.MemberID())
	return nil
}

// ConsumeClaim pushes the partition's messages into the buffer service.
func (h *pollerHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	p := h.poller
	topic := claim.Topic()
	partition := claim.Partition()

	task := p.tasks(topic)
	if task == nil {
		return fmt.Errorf("no ingestion task registered for topic %s", topic)
	}

	p.logger.Info("started consuming partition",
		"topic", topic,
		"partition", partition,
		"initial_offset", claim.InitialOffset(),
	)

	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			rec := &record.ConsumerRecord{
				Topic:     message.Topic,
				Partition: message.Partition,
				Offset:    message.Offset,
				Key:       message.Key,
				Value:     message.Value,
				Timestamp: message.Timestamp,
			}

			if err := p.buffer.Enqueue(session.Context(), rec, task, nil); err != nil {
				p.logger.Error("failed to enqueue record",
					"topic", topic, "partition", partition, "offset", message.Offset, "error", err)
				return err
			}
			if p.metrics != nil {
				p.metrics.IncMessagesConsumed(message.Topic, message.Partition)
			}

			// An asynchronous drainer failure means some earlier record of
			// this task did not persist; surface it and leave this message
			// unmarked. The failed record itself was marked when it was
			// enqueued, and LastDrainerError clears the error when read, so
			// marking resumes with the next message.
			if err := task.LastDrainerError(); err != nil {
				p.logger.Error("ingestion task reported drainer failure, holding offsets",
					"topic", topic, "partition", partition, "error", err)
				if p.metrics != nil {
					p.metrics.IncOffsetCommits(topic, partition, "held")
				}
				continue
			}

			session.MarkMessage(message, "")
			if p.metrics != nil {
				p.metrics.IncOffsetCommits(topic, partition, "marked")
			}

		case <-session.Context().Done():
			p.logger.Info("session context done, stopping partition consumption",
				"topic", topic, "partition", partition)
			return nil
		}
	}
}
