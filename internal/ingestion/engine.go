package ingestion

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mfenderov/cvf-papers/internal/elasticsearch"
	"github.com/mfenderov/cvf-papers/internal/events"
	"github.com/mfenderov/cvf-papers/internal/sink"
	"github.com/mfenderov/cvf-papers/internal/storage"
)

// Archive is the read side of the crawl archive.
type Archive interface {
	GetMetadata(ctx context.Context, prefix string) (*storage.CrawlMetadata, error)
	GetPapers(ctx context.Context, prefix string) ([]byte, error)
}

// Result holds ingestion execution results.
type Result struct {
	Prefix      string
	Conference  string
	DocsIndexed int
	Duration    time.Duration
	Errors      []string
}

// Engine reads archived crawls from S3 and indexes them to Elasticsearch.
type Engine struct {
	archive  Archive
	esClient *elasticsearch.Client
}

// New creates a new ingestion engine.
func New(archive Archive, esClient *elasticsearch.Client) *Engine {
	return &Engine{
		archive:  archive,
		esClient: esClient,
	}
}

// Ingest indexes every record of the crawl stored under prefix.
func (e *Engine) Ingest(ctx context.Context, prefix string) (*Result, error) {
	start := time.Now()
	result := &Result{Prefix: prefix}

	slog.Info("starting ingestion", "prefix", prefix)

	meta, err := e.archive.GetMetadata(ctx, prefix)
	if err != nil {
		return nil, err
	}
	result.Conference = meta.Conference

	data, err := e.archive.GetPapers(ctx, prefix)
	if err != nil {
		return nil, err
	}

	papers, err := sink.ReadTSV(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to read archived papers: %w", err)
	}

	slog.Info("found papers to ingest", "prefix", prefix, "count", len(papers))

	if err := e.esClient.CreateIndex(ctx); err != nil {
		return nil, err
	}

	bw, err := e.esClient.NewBulkWriter(ctx, meta.Conference)
	if err != nil {
		return nil, err
	}

	for _, p := range papers {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, "context cancelled")
			break
		}
		if err := bw.Write(p); err != nil {
			result.Errors = append(result.Errors, err.Error())
		}
	}

	stats, err := bw.Close(ctx)
	result.DocsIndexed = stats.Indexed
	result.Errors = append(result.Errors, stats.Errors...)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
	}

	// Refresh index to make documents searchable immediately
	if err := e.esClient.Refresh(ctx); err != nil {
		slog.Warn("failed to refresh index", "error", err)
	}

	result.Duration = time.Since(start)
	slog.Info("ingestion complete",
		"prefix", prefix,
		"conference", result.Conference,
		"docs_indexed", result.DocsIndexed,
		"duration", result.Duration,
		"errors", len(result.Errors))

	return result, nil
}

// Consume ingests each archived crawl announced on in and reports the
// outcome on out. It returns when in is closed; out is closed on return.
func (e *Engine) Consume(ctx context.Context, in <-chan events.CrawlCompleteEvent, out chan<- events.IngestionCompleteEvent) {
	defer close(out)

	for event := range in {
		done := events.IngestionCompleteEvent{
			Prefix:     event.Prefix,
			Conference: event.Conference,
		}

		result, err := e.Ingest(ctx, event.Prefix)
		if err != nil {
			done.Err = err
		} else {
			done.DocsIndexed = result.DocsIndexed
			done.Duration = result.Duration
			done.Errors = result.Errors
		}

		out <- done
	}
}
