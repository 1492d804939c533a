// Package main 记忆 worker 入口：归档回合事件并执行记忆重建任务
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"rpg-narrative-api/internal/config"
	"rpg-narrative-api/internal/infrastructure/messaging"
	"rpg-narrative-api/internal/interfaces/worker"
	"rpg-narrative-api/internal/wire"
	"rpg-narrative-api/pkg/logger"
	"rpg-narrative-api/pkg/tracer"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Fatal(ctx, "memory-worker stopped with error", err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	shutdownTracer, err := tracer.Init(ctx, cfg.Tracing("memory-worker"))
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	deps, cleanup, err := wire.InitializeWorker(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize worker: %w", err)
	}
	defer cleanup()

	consumers := []*messaging.Consumer{
		newConsumer(deps, cfg, messaging.StreamTurnCompleted, messaging.ConsumerGroupArchiver),
		newConsumer(deps, cfg, messaging.StreamMemoryReindex, messaging.ConsumerGroupMemoryWorker),
	}
	worker.NewHandlers(deps.Reindexer, deps.EventLog, deps.Cache).Register(consumers[0], consumers[1])

	for _, c := range consumers {
		if err := c.Start(ctx); err != nil {
			return fmt.Errorf("start consumer: %w", err)
		}
		defer c.Stop()
		go c.WatchDeadLetters(ctx, deadLetterAlert)
	}

	logger.Info(ctx, "memory-worker started", "vector_backend", cfg.Vector.Backend)
	<-ctx.Done()
	logger.Info(context.Background(), "memory-worker shutting down")
	return nil
}

// deadLetterAlert 死信流超过该长度时告警
const deadLetterAlert = 100

func newConsumer(deps *wire.Worker, cfg *config.Config, stream messaging.Stream, group messaging.ConsumerGroup) *messaging.Consumer {
	return messaging.NewConsumer(deps.Redis.Redis(), messaging.ConsumerConfig{
		Stream:        stream,
		Group:         group,
		ConsumerName:  hostnameConsumerName(),
		BlockTimeout:  cfg.Messaging.RedisStream.BlockTimeout,
		ClaimInterval: cfg.Messaging.RedisStream.ClaimInterval,
		RetryLimit:    cfg.Messaging.RedisStream.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    cfg.Messaging.RedisStream.RetryBackoff.Initial,
			Max:        cfg.Messaging.RedisStream.RetryBackoff.Max,
			Multiplier: cfg.Messaging.RedisStream.RetryBackoff.Multiplier,
		},
	})
}

func hostnameConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
