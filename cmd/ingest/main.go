// Command ingest runs a single ingestion from the command line, without a
// broker: it loads a source file, extracts a graph from it, and writes the
// result to the configured store.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/maintkg/maintkg/internal/queue"
	"github.com/maintkg/maintkg/internal/setup"
	"github.com/maintkg/maintkg/internal/util"
	"github.com/maintkg/maintkg/pkg/logger"
	"github.com/maintkg/maintkg/pkg/logger/console"
)

func main() {
	format := flag.String("format", "csv", "source format: csv, jsonl or pdf")
	path := flag.String("path", "", "path to the source file")
	textField := flag.String("text-field", "", "JSONL field holding the record text")
	idField := flag.String("id-field", "", "JSONL field holding the record ID")
	flag.Parse()

	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	if *path == "" {
		logger.Fatal("Missing required -path flag")
	}

	aiClient := setup.AIClient()

	graphStore := setup.GraphStore(ctx)
	defer graphStore.Close(ctx)

	runner := setup.Runner(aiClient, graphStore)

	job := &queue.IngestJobMsg{
		Format:    *format,
		Path:      *path,
		TextField: *textField,
		IDField:   *idField,
	}

	it, closeSource, err := queue.OpenSource(job)
	if err != nil {
		logger.Fatal("Could not open source", "path", *path, "err", err)
	}
	defer closeSource()

	report, err := runner.Run(ctx, it)
	if err != nil {
		logger.Fatal("Ingestion failed", "err", err)
	}

	logger.Info(
		"Ingestion finished",
		"records", report.Records,
		"chunks", report.Chunks,
		"chunks_failed", report.ChunksFailed,
		"nodes_created", report.NodesCreated,
		"nodes_merged", report.NodesMerged,
		"relationships", report.Relationships,
		"warnings", len(report.Warnings),
	)
	for _, w := range report.Warnings {
		logger.Warn(w)
	}
}
