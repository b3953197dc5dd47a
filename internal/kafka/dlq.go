package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/sebas-inf/venice/internal/errors"
	"github.com/sebas-inf/venice/pkg/record"
)

// DLQRecord is the JSON document published for every poisoned record.
type DLQRecord struct {
	OriginalTopic     string    `json:"original_topic"`
	OriginalPartition int32     `json:"original_partition"`
	OriginalOffset    int64     `json:"original_offset"`
	Key               []byte    `json:"key,omitempty"`
	Value             []byte    `json:"value,omitempty"`
	FailureReason     string    `json:"failure_reason"`
	FailureTimestamp  time.Time `json:"failure_timestamp"`
	ProcessorID       string    `json:"processor_id"`
}

// DLQConfig contains DLQ configuration.
type DLQConfig struct {
	Enabled     bool
	TopicSuffix string
}

// DLQPublisher publishes records that failed decoding or validation to a
// dead letter topic derived from the original topic name.
type DLQPublisher struct {
	producer    sarama.SyncProducer
	config      DLQConfig
	logger      *slog.Logger
	processorID string

	mu     sync.RWMutex
	closed bool
}

// NewDLQPublisher creates a new DLQ publisher. A disabled publisher accepts
// Publish calls and drops them.
func NewDLQPublisher(
	bootstrapServers []string,
	security SecurityConfig,
	dlqConfig DLQConfig,
	logger *slog.Logger,
	processorID string,
) (*DLQPublisher, error) {
	if !dlqConfig.Enabled {
		logger.Info("DLQ is disabled")
		return &DLQPublisher{
			config:      dlqConfig,
			logger:      logger,
			processorID: processorID,
			closed:      true,
		}, nil
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V2_8_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Idempotent = true
	saramaConfig.Net.MaxOpenRequests = 1

	if err := configureSecurity(saramaConfig, security); err != nil {
		return nil, fmt.Errorf("failed to configure security: %w", err)
	}

	producer, err := sarama.NewSyncProducer(bootstrapServers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create DLQ producer: %w", err)
	}

	logger.Info("DLQ publisher created", "topic_suffix", dlqConfig.TopicSuffix)
	return &DLQPublisher{
		producer:    producer,
		config:      dlqConfig,
		logger:      logger,
		processorID: processorID,
	}, nil
}

// Publish sends one poisoned record to the dead letter topic.
func (d *DLQPublisher) Publish(ctx context.Context, rec *record.ConsumerRecord, reason string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		if !d.config.Enabled {
			return nil
		}
		return errors.ErrConsumerClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	doc := DLQRecord{
		OriginalTopic:     rec.Topic,
		OriginalPartition: rec.Partition,
		OriginalOffset:    rec.Offset,
		Key:               rec.Key,
		Value:             rec.Value,
		FailureReason:     reason,
		FailureTimestamp:  time.Now().UTC(),
		ProcessorID:       d.processorID,
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ record: %w", err)
	}

	dlqTopic := rec.Topic + d.config.TopicSuffix
	_, _, err = d.producer.SendMessage(&sarama.ProducerMessage{
		Topic: dlqTopic,
		Key:   sarama.ByteEncoder(rec.Key),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("failed to publish to DLQ topic %s: %w", dlqTopic, err)
	}

	d.logger.Warn("record published to DLQ",
		"dlq_topic", dlqTopic,
		"partition", rec.Partition,
		"offset", rec.Offset,
		"reason", reason,
	)
	return nil
}

// Close closes the publisher and releases resources.
func (d *DLQPublisher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.producer.Close()
}
