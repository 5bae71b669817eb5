package graph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/maintkg/maintkg/pkg/chunk"
	"github.com/maintkg/maintkg/pkg/extract"
	"github.com/maintkg/maintkg/pkg/loader"
	"github.com/maintkg/maintkg/pkg/logger"
	"github.com/maintkg/maintkg/pkg/schema"
)

// Runner drives ingestion: records are chunked, each chunk goes through
// extraction and validation, and surviving elements are materialized into
// the graph.
type Runner struct {
	splitter     *chunk.Splitter
	extractor    *extract.Client
	registry     *schema.Registry
	materializer *Materializer

	parallel int
	limiter  *rate.Limiter
	strict   bool
}

type NewRunnerParams struct {
	Splitter     *chunk.Splitter
	Extractor    *extract.Client
	Registry     *schema.Registry
	Materializer *Materializer

	// Parallel bounds concurrent chunk extractions. Defaults to 4.
	Parallel int

	// Limiter spaces out model calls across all workers. Optional.
	Limiter *rate.Limiter

	// Strict aborts the run on the first failed chunk instead of
	// skipping it.
	Strict bool
}

func NewRunner(params NewRunnerParams) (*Runner, error) {
	if params.Splitter == nil {
		return nil, fmt.Errorf("graph: splitter is required")
	}
	if params.Extractor == nil {
		return nil, fmt.Errorf("graph: extractor is required")
	}
	if params.Registry == nil {
		return nil, fmt.Errorf("graph: schema registry is required")
	}
	if params.Materializer == nil {
		return nil, fmt.Errorf("graph: materializer is required")
	}

	parallel := params.Parallel
	if parallel <= 0 {
		parallel = 4
	}
	return &Runner{
		splitter:     params.Splitter,
		extractor:    params.Extractor,
		registry:     params.Registry,
		materializer: params.Materializer,
		parallel:     parallel,
		limiter:      params.Limiter,
		strict:       params.Strict,
	}, nil
}

// RunReport aggregates the outcome of one ingestion run.
type RunReport struct {
	Records       int
	Chunks        int
	ChunksFailed  int
	NodesCreated  int
	NodesMerged   int
	Relationships int
	Warnings      []string
}

// Run consumes the iterator until it is drained or ctx is canceled. A
// failed chunk is logged, counted, and skipped unless the runner is strict;
// an unavailable extraction provider always aborts the run.
func (r *Runner) Run(ctx context.Context, it loader.Iterator) (*RunReport, error) {
	report := &RunReport{}
	var mu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallel)

	for {
		rec, err := it.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			// Drain in-flight chunks before surfacing the source error.
			if werr := g.Wait(); werr != nil {
				return report, werr
			}
			return report, fmt.Errorf("reading source: %w", err)
		}
		report.Records++

		for _, c := range r.splitter.Split(rec.ID, rec.Text) {
			cn := c
			mu.Lock()
			report.Chunks++
			mu.Unlock()

			g.Go(func() error {
				if gCtx.Err() != nil {
					return nil
				}
				chunkReport, err := r.processChunk(gCtx, cn)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					if errors.Is(err, extract.ErrExtractionUnavailable) ||
						errors.Is(err, context.Canceled) || r.strict {
						return err
					}
					logger.Warn("[Pipeline] Chunk failed, skipping",
						"source", cn.SourceID, "chunk", cn.Index, "err", err)
					report.ChunksFailed++
					report.Warnings = append(report.Warnings,
						fmt.Sprintf("chunk %s/%d: %v", cn.SourceID, cn.Index, err))
					return nil
				}
				report.NodesCreated += chunkReport.NodesCreated
				report.NodesMerged += chunkReport.NodesMerged
				report.Relationships += chunkReport.RelationshipsWritten
				report.Warnings = append(report.Warnings, chunkReport.Warnings...)
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return report, err
	}
	return report, nil
}

func (r *Runner) processChunk(ctx context.Context, c chunk.Chunk) (*Report, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	raw, err := r.extractor.Extract(ctx, c.Text)
	if err != nil {
		return nil, err
	}

	ext, err := extract.Validate(raw, r.registry)
	if err != nil {
		return nil, err
	}
	for _, w := range ext.Warnings {
		logger.Debug("[Pipeline] Validation warning",
			"source", c.SourceID, "chunk", c.Index, "warning", w)
	}

	report, err := r.materializer.Materialize(ctx, ext, c.SourceID)
	if err != nil {
		return nil, err
	}
	report.Warnings = append(report.Warnings, ext.Warnings...)
	return report, nil
}
