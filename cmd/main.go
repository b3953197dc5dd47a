package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sebas-inf/venice/internal/buffer"
	"github.com/sebas-inf/venice/internal/config"
	"github.com/sebas-inf/venice/internal/envelope"
	"github.com/sebas-inf/venice/internal/kafka"
	"github.com/sebas-inf/venice/internal/observability"
	"github.com/sebas-inf/venice/internal/server"
	"github.com/sebas-inf/venice/internal/store"
	"github.com/sebas-inf/venice/internal/task"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	// Priority: CLI flag > CONFIG_PATH env var > default path
	var cfgPath string
	if *configPath != "" {
		cfgPath = *configPath
	} else if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		cfgPath = envPath
	} else {
		cfgPath = "config/application.yaml"
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
		Output: cfg.Observability.Logging.Output,
	})
	logger.Info("starting ingestion server",
		"version", cfg.Application.Version,
		"environment", cfg.Application.Environment,
	)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	// Embedded store shared by all ingestion tasks.
	st, err := store.Open(cfg.Store.Path, logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	codec, err := envelope.NewCodec()
	if err != nil {
		return fmt.Errorf("failed to create envelope codec: %w", err)
	}

	security := kafka.SecurityConfig{
		SecurityProtocol: cfg.Kafka.SecurityProtocol,
		SASLMechanism:    cfg.Kafka.SASLMechanism,
		SASLUsername:     cfg.Kafka.SASLUsername,
		SASLPassword:     cfg.Kafka.SASLPassword,
	}
	dlq, err := kafka.NewDLQPublisher(cfg.Kafka.BootstrapServers, security, kafka.DLQConfig{
		Enabled:     cfg.Kafka.DLQ.Enabled,
		TopicSuffix: cfg.Kafka.DLQ.TopicSuffix,
	}, logger, cfg.Application.Name)
	if err != nil {
		return fmt.Errorf("failed to create DLQ publisher: %w", err)
	}
	defer dlq.Close()

	// The buffer-and-drain engine between the poller and the tasks.
	bufService, err := buffer.NewService(buffer.Config{
		DrainerCount:            cfg.Buffer.DrainerCount,
		CapacityPerDrainerBytes: cfg.Buffer.CapacityPerDrainerBytes,
		NotifyDeltaBytes:        cfg.Buffer.NotifyDeltaBytes,
		DrainRetryBudget:        cfg.Buffer.DrainRetryBudget,
		DrainSleepInterval:      time.Duration(cfg.Buffer.DrainSleepIntervalMS) * time.Millisecond,
		SlowDrainerThreshold:    cfg.Buffer.SlowDrainerThreshold,
		StopTimeout:             time.Duration(cfg.Buffer.StopTimeoutSeconds) * time.Second,
		RecordOverheadBytes:     cfg.Buffer.RecordOverheadBytes,
	}, logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to create buffer service: %w", err)
	}
	if err := bufService.Start(); err != nil {
		return fmt.Errorf("failed to start buffer service: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// One ingestion task per subscribed topic.
	tasks := make(map[string]*task.StoreIngestionTask, len(cfg.Kafka.Consumer.Topics))
	for _, topic := range cfg.Kafka.Consumer.Topics {
		tasks[topic] = task.New(ctx, topic, st, codec, dlq, logger)
	}
	taskProvider := func(topic string) kafka.Task {
		if t, ok := tasks[topic]; ok {
			return t
		}
		return nil
	}

	poller, err := kafka.NewPoller(kafka.PollerConfig{
		BootstrapServers:    cfg.Kafka.BootstrapServers,
		GroupID:             cfg.Kafka.Consumer.GroupID,
		Topics:              cfg.Kafka.Consumer.Topics,
		AutoOffsetReset:     cfg.Kafka.Consumer.AutoOffsetReset,
		SessionTimeoutMS:    cfg.Kafka.Consumer.SessionTimeoutMS,
		HeartbeatIntervalMS: cfg.Kafka.Consumer.HeartbeatIntervalMS,
		MaxPollIntervalMS:   cfg.Kafka.Consumer.MaxPollIntervalMS,
		Security:            security,
	}, bufService, taskProvider, logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to create poller: %w", err)
	}
	defer poller.Close()

	checker := server.NewChecker(bufService, poller.Ready())
	httpServer := server.NewServer(
		cfg.Observability.Health.Port,
		cfg.Observability.Metrics.Port,
		checker,
		registry,
		logger,
	)
	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP servers: %w", err)
	}

	pollerDone := make(chan error, 1)
	go func() {
		pollerDone <- poller.Run(ctx)
	}()

	pollerExited := false
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-pollerDone:
		pollerExited = true
		if err != nil {
			logger.Error("poller exited", "error", err)
		}
		cancel()
	}

	// Graceful shutdown: let the poller leave its group (draining claimed
	// partitions on the way out), stop the drainers, then close servers.
	gracePeriod := time.Duration(cfg.Shutdown.GracePeriodSeconds) * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), gracePeriod)
	defer shutdownCancel()

	if err := poller.Close(); err != nil {
		logger.Error("failed to close poller", "error", err)
	}
	if !pollerExited {
		select {
		case <-pollerDone:
		case <-shutdownCtx.Done():
			logger.Warn("poller did not exit within grace period")
		}
	}

	if err := bufService.Stop(); err != nil {
		logger.Error("failed to stop buffer service", "error", err)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down HTTP servers", "error", err)
	}

	logger.Info("ingestion server stopped")
	return nil
}
