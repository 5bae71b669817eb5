package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/maintkg/maintkg/internal/queue"
	"github.com/maintkg/maintkg/internal/setup"
	"github.com/maintkg/maintkg/internal/util"
	"github.com/maintkg/maintkg/pkg/graph"
	"github.com/maintkg/maintkg/pkg/leaselock"
	"github.com/maintkg/maintkg/pkg/logger"
	"github.com/maintkg/maintkg/pkg/logger/console"
	pgstore "github.com/maintkg/maintkg/pkg/store/pgx"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	aiClient := setup.AIClient()

	graphStore := setup.GraphStore(ctx)
	defer graphStore.Close(ctx)

	runner := setup.Runner(aiClient, graphStore)

	// With a Postgres store, a lease lock keeps two workers from ingesting
	// the same source file concurrently.
	var locker *leaselock.Client
	if ps, ok := graphStore.(*pgstore.Store); ok && ps.Pool() != nil {
		locker = leaselock.New(ps.Pool())
	}

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, []string{queue.IngestQueue}); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	// One message at a time; a single ingestion run already fans out
	// over its own chunk workers.
	if err := consumerCh.Qos(1, 0, true); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	msgs, err := consumerCh.Consume(
		queue.IngestQueue,
		queue.IngestQueue+"_consumer",
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		logger.Fatal("Failed to start consuming", "queue", queue.IngestQueue, "err", err)
	}

	logger.Info("Listening for messages", "queue", queue.IngestQueue)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received, exiting...")
			return
		case msg, ok := <-msgs:
			if !ok {
				logger.Info("Message channel closed", "queue", queue.IngestQueue)
				return
			}

			startTime := time.Now()
			logger.Info("Received message", "queue", queue.IngestQueue)

			processingErr := processIngest(ctx, locker, runner, msg.Body)
			if processingErr != nil {
				logger.Error("Error processing message", "queue", queue.IngestQueue, "err", processingErr)
				handleProcessingError(consumerCh, msg, queue.IngestQueue)
			} else {
				if err := msg.Ack(false); err != nil {
					logger.Error("Failed to ack message", "err", err)
				}
				logger.Info("Message processed successfully", "queue", queue.IngestQueue)
			}

			logger.Info("Processing time", "duration", time.Since(startTime).Round(time.Second).String())
			logger.Info("Waiting for next message")
		}
	}
}

func processIngest(ctx context.Context, locker *leaselock.Client, runner *graph.Runner, body []byte) error {
	if locker == nil {
		return queue.ProcessIngestMessage(ctx, runner, body)
	}

	job := new(queue.IngestJobMsg)
	if err := json.Unmarshal(body, job); err != nil || job.Path == "" {
		// Let ProcessIngestMessage report the malformed job.
		return queue.ProcessIngestMessage(ctx, runner, body)
	}

	return locker.WithLease(ctx, job.LockKey(), leaselock.Options{Wait: true}, func(leaseCtx context.Context) error {
		return queue.ProcessIngestMessage(leaseCtx, runner, body)
	})
}

func handleProcessingError(ch *amqp.Channel, msg amqp.Delivery, queueName string) {
	retries := 0
	if val, ok := msg.Headers["x-retries"]; ok {
		if v, ok := val.(int32); ok {
			retries = int(v)
		}
	}

	// If message has been retried 10 times, send to dead-letter
	if retries >= 10 {
		dlqName := queueName + "_dlq"
		logger.Info("Sending message to DLQ", "dlq", dlqName)
		pubErr := ch.Publish(
			"",
			dlqName,
			false,
			false,
			amqp.Publishing{
				ContentType: "application/json",
				Body:        msg.Body,
				Headers:     msg.Headers,
			},
		)
		if pubErr != nil {
			logger.Error("Failed to publish to DLQ", "dlq", dlqName, "err", pubErr)
			msg.Nack(false, true)
			return
		}
		msg.Ack(false)
		return
	}

	retryName := queueName + "_retry"
	headers := msg.Headers
	if headers == nil {
		headers = amqp.Table{}
	}
	headers["x-retries"] = retries + 1

	pubErr := ch.Publish(
		"",
		retryName,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        msg.Body,
			Headers:     headers,
		},
	)
	if pubErr != nil {
		logger.Error("Failed to publish to retry queue", "retry_queue", retryName, "err", pubErr)
		msg.Nack(false, true)
		return
	}
	msg.Ack(false)
}
