package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/maintkg/maintkg/internal/queue"
	"github.com/maintkg/maintkg/internal/server"
	"github.com/maintkg/maintkg/internal/setup"
	"github.com/maintkg/maintkg/internal/util"
	"github.com/maintkg/maintkg/pkg/logger"
	"github.com/maintkg/maintkg/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	aiClient := setup.AIClient()

	graphStore := setup.GraphStore(ctx)
	defer graphStore.Close(ctx)

	queryClient := setup.QueryClient(aiClient, graphStore)

	// Without a broker the server still answers queries; ingestion
	// requests get a 503.
	params := server.NewParams{Query: queryClient}
	if util.GetEnv("RABBITMQ_HOST") != "" {
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
		params.Channel = ch
	} else {
		logger.Warn("RABBITMQ_HOST not set, ingestion endpoint disabled")
	}

	srv := server.New(params)
	srv.Start(ctx)
}
