package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/maintkg/maintkg/pkg/graph"
	"github.com/maintkg/maintkg/pkg/loader"
	csvloader "github.com/maintkg/maintkg/pkg/loader/csv"
	"github.com/maintkg/maintkg/pkg/loader/jsonl"
	pdfloader "github.com/maintkg/maintkg/pkg/loader/pdf"
	"github.com/maintkg/maintkg/pkg/logger"
)

// IngestJobMsg is one queued ingestion job. Format selects the loader;
// Path must be readable by the worker.
type IngestJobMsg struct {
	Format string `json:"format"`
	Path   string `json:"path"`

	// CSV column overrides, empty for defaults.
	CaseColumn       string `json:"case_column,omitempty"`
	DateColumn       string `json:"date_column,omitempty"`
	TechnicianColumn string `json:"technician_column,omitempty"`
	ReportColumn     string `json:"report_column,omitempty"`
	PieceColumn      string `json:"piece_column,omitempty"`

	// JSONL field overrides.
	TextField string `json:"text_field,omitempty"`
	IDField   string `json:"id_field,omitempty"`
}

// LockKey names the lease that serializes ingestion of this job's source
// file, so duplicate messages and competing workers never run it twice at
// the same time.
func (m *IngestJobMsg) LockKey() string {
	return "ingest:" + strings.ToLower(m.Path)
}

// ProcessIngestMessage runs one ingestion job through the pipeline runner.
func ProcessIngestMessage(ctx context.Context, runner *graph.Runner, body []byte) error {
	job := new(IngestJobMsg)
	if err := json.Unmarshal(body, job); err != nil {
		return fmt.Errorf("unmarshaling ingest job: %w", err)
	}

	it, closeFn, err := OpenSource(job)
	if err != nil {
		return err
	}
	defer closeFn()

	logger.Info("[Queue] Starting ingest job", "format", job.Format, "path", job.Path)
	report, err := runner.Run(ctx, it)
	if err != nil {
		return fmt.Errorf("ingest job for %s: %w", job.Path, err)
	}

	logger.Info("[Queue] Ingest job finished",
		"path", job.Path,
		"records", report.Records,
		"chunks", report.Chunks,
		"chunks_failed", report.ChunksFailed,
		"nodes_created", report.NodesCreated,
		"nodes_merged", report.NodesMerged,
		"relationships", report.Relationships,
		"warnings", len(report.Warnings),
	)
	return nil
}

// OpenSource builds the record iterator for a job. The returned close
// function releases the underlying file.
func OpenSource(job *IngestJobMsg) (loader.Iterator, func(), error) {
	switch strings.ToLower(job.Format) {
	case "csv":
		f, err := os.Open(job.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening %s: %w", job.Path, err)
		}
		it, err := csvloader.NewReader(f, job.Path, csvloader.Options{
			CaseColumn:       job.CaseColumn,
			DateColumn:       job.DateColumn,
			TechnicianColumn: job.TechnicianColumn,
			ReportColumn:     job.ReportColumn,
			PieceColumn:      job.PieceColumn,
		})
		if err != nil {
			f.Close()
			return nil, nil, err
		}
		return it, func() { f.Close() }, nil

	case "jsonl":
		f, err := os.Open(job.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening %s: %w", job.Path, err)
		}
		it := jsonl.NewReader(f, job.Path, jsonl.Options{
			TextField: job.TextField,
			IDField:   job.IDField,
		})
		return it, func() { f.Close() }, nil

	case "pdf":
		r, err := pdfloader.Open(job.Path)
		if err != nil {
			return nil, nil, err
		}
		return r, func() { r.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown source format %q", job.Format)
	}
}
