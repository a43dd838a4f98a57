package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/mfenderov/cvf-papers/internal/conference"
	"github.com/mfenderov/cvf-papers/internal/config"
	"github.com/mfenderov/cvf-papers/internal/elasticsearch"
	"github.com/mfenderov/cvf-papers/internal/events"
	"github.com/mfenderov/cvf-papers/internal/fetcher"
	"github.com/mfenderov/cvf-papers/internal/ingestion"
	"github.com/mfenderov/cvf-papers/internal/pipeline"
	"github.com/mfenderov/cvf-papers/internal/sink"
	"github.com/mfenderov/cvf-papers/internal/storage"
	"github.com/mfenderov/cvf-papers/pkg/models"
	"github.com/spf13/cobra"
)

var (
	crawlWorkers int
	crawlBaseURL string
	crawlHeader  bool
	crawlUpload  bool
	crawlIndex   bool
)

var crawlCmd = &cobra.Command{
	Use:   "crawl CONFS OUTFILE",
	Short: "Crawl conference papers into a TSV file",
	Long: `Crawl one or more CVF conferences and write one line per paper:
title, authors, pdf link and abstract, separated by tabs.

CONFS is a comma-separated list of conference identifiers such as
CVPR2017 or ICCV2019. OUTFILE "-" writes to stdout.

Examples:
  # Crawl a single conference
  cvf-papers crawl CVPR2017 cvpr2017.tsv

  # Crawl several conferences with 16 workers
  cvf-papers crawl CVPR2022,ICCV2021 papers.tsv -w 16

  # Archive each conference to S3 and index it into Elasticsearch
  cvf-papers crawl CVPR2023 papers.tsv --upload --index`,
	Args: cobra.ExactArgs(2),
	RunE: runCrawl,
}

func init() {
	rootCmd.AddCommand(crawlCmd)

	crawlCmd.Flags().IntVarP(&crawlWorkers, "workers", "w", 8, "Number of parallel detail page workers")
	crawlCmd.Flags().StringVar(&crawlBaseURL, "base-url", "", "Override the open access base URL")
	crawlCmd.Flags().BoolVar(&crawlHeader, "header", false, "Write a header row")
	crawlCmd.Flags().BoolVar(&crawlUpload, "upload", false, "Archive each conference's TSV and metadata to S3")
	crawlCmd.Flags().BoolVar(&crawlIndex, "index", false, "Index records into Elasticsearch")
}

func runCrawl(cmd *cobra.Command, args []string) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()
	if cmd.Flags().Changed("workers") {
		cfg.Crawler.Workers = crawlWorkers
	}
	if cmd.Flags().Changed("base-url") {
		cfg.Crawler.BaseURL = crawlBaseURL
	}
	if cmd.Flags().Changed("header") {
		cfg.Output.Header = crawlHeader
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	resolver, err := conference.NewResolver(cfg.Crawler.BaseURL, cfg.Conferences)
	if err != nil {
		return err
	}
	specs, err := resolver.ResolveList(args[0])
	if err != nil {
		return err
	}

	slog.Debug("crawl command starting", "conferences", len(specs), "workers", cfg.Crawler.Workers,
		"upload", crawlUpload, "index", crawlIndex)

	out, closeOut, err := openOutput(cmd, args[1])
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeOut(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close output file: %w", cerr)
		}
	}()

	p, err := pipeline.New(
		fetcher.New(fetcher.Config{
			UserAgent: cfg.Crawler.UserAgent,
			Timeout:   cfg.Crawler.RequestTimeout,
			Logger:    slog.Default(),
		}),
		pipeline.Config{
			Workers:   cfg.Crawler.Workers,
			QueueSize: cfg.Crawler.QueueSize,
			Logger:    slog.Default(),
		},
	)
	if err != nil {
		return err
	}

	c := &crawlRun{
		cfg:      &cfg,
		pipeline: p,
		tsv:      sink.NewTSVWriter(out, sink.WithHeader(cfg.Output.Header)),
		status:   cmd.ErrOrStderr(),
	}
	if err := c.connect(ctx); err != nil {
		return err
	}

	return c.run(ctx, specs)
}

// openOutput opens OUTFILE, or stdout for "-". The returned func closes
// the file and reports the close error; it is a no-op for stdout.
func openOutput(cmd *cobra.Command, name string) (io.Writer, func() error, error) {
	if name == "-" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(name)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, f.Close, nil
}

// crawlRun holds the collaborators of one crawl invocation.
type crawlRun struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	tsv      *sink.TSVWriter
	status   io.Writer

	storage *storage.Client       // set with --upload
	es      *elasticsearch.Client // set with --index
}

func (c *crawlRun) connect(ctx context.Context) error {
	if crawlUpload {
		storageClient, err := storage.New(storage.Config{
			Endpoint:        c.cfg.Storage.Endpoint,
			Bucket:          c.cfg.Storage.Bucket,
			AccessKeyID:     c.cfg.Storage.AccessKeyID,
			SecretAccessKey: c.cfg.Storage.SecretAccessKey,
			UseSSL:          c.cfg.Storage.UseSSL,
		})
		if err != nil {
			return fmt.Errorf("failed to create storage client: %w", err)
		}
		if err := storageClient.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure bucket: %w", err)
		}
		c.storage = storageClient
	}

	if crawlIndex {
		esClient, err := elasticsearch.New(elasticsearch.Config{
			Addresses: c.cfg.Elasticsearch.Addresses,
			Index:     c.cfg.Elasticsearch.Index,
			Username:  c.cfg.Elasticsearch.Username,
			Password:  c.cfg.Elasticsearch.Password,
		})
		if err != nil {
			return fmt.Errorf("failed to create ES client: %w", err)
		}
		if err := esClient.CreateIndex(ctx); err != nil {
			return err
		}
		c.es = esClient
	}
	return nil
}

// run crawls every conference in order. With both --upload and --index,
// archived crawls are handed to an ingestion worker over a channel.
func (c *crawlRun) run(ctx context.Context, specs []conference.Spec) error {
	var crawlEvents chan events.CrawlCompleteEvent
	done := make(chan struct{})
	var totalIndexed, ingestedDocs int

	if c.storage != nil && c.es != nil {
		engine := ingestion.New(c.storage, c.es)
		crawlEvents = make(chan events.CrawlCompleteEvent)
		ingested := make(chan events.IngestionCompleteEvent)

		go engine.Consume(ctx, crawlEvents, ingested)
		go func() {
			defer close(done)
			for ev := range ingested {
				if ev.Err != nil {
					fmt.Fprintf(c.status, "Ingest %s: error: %v\n", ev.Conference, ev.Err)
					continue
				}
				ingestedDocs += ev.DocsIndexed
				fmt.Fprintf(c.status, "Ingest %s: %d docs indexed in %v\n", ev.Conference, ev.DocsIndexed, ev.Duration)
				for _, e := range ev.Errors {
					fmt.Fprintf(c.status, "  Warning: %s\n", e)
				}
			}
		}()
	} else {
		close(done)
	}

	var total pipeline.Result
	total.ByKind = make(map[models.ErrorKind]int)
	var failedConfs []string

	for _, spec := range specs {
		if ctx.Err() != nil {
			break
		}

		indexed, result, err := c.crawlOne(ctx, spec, crawlEvents)
		totalIndexed += indexed
		if result != nil {
			total.Discovered += result.Discovered
			total.Succeeded += result.Succeeded
			total.Failed += result.Failed
			total.Dropped += result.Dropped
			total.Duration += result.Duration
			for k, n := range result.ByKind {
				total.ByKind[k] += n
			}
		}
		if err != nil {
			fmt.Fprintf(c.status, "  Error: %v\n", err)
			failedConfs = append(failedConfs, spec.Name)
		}
	}

	if crawlEvents != nil {
		close(crawlEvents)
	}
	<-done
	totalIndexed += ingestedDocs

	if err := c.tsv.Flush(); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	fmt.Fprintf(c.status, "\nTotal: %d papers written, %d failed%s%s in %v\n",
		total.Succeeded, total.Failed, formatKinds(total.ByKind), formatDropped(total.Dropped),
		total.Duration.Round(time.Millisecond))
	if c.es != nil {
		fmt.Fprintf(c.status, "Indexed: %d docs into %s\n", totalIndexed, c.cfg.Elasticsearch.Index)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if len(failedConfs) > 0 {
		return fmt.Errorf("%d of %d conferences failed: %v", len(failedConfs), len(specs), failedConfs)
	}
	return nil
}

// crawlOne crawls a single conference into the shared output and, when
// configured, into its S3 archive and the search index. It returns the
// number of documents indexed directly.
func (c *crawlRun) crawlOne(ctx context.Context, spec conference.Spec, crawlEvents chan<- events.CrawlCompleteEvent) (int, *pipeline.Result, error) {
	fmt.Fprintf(c.status, "Crawling: %s (%s)\n", spec.Name, spec.IndexURL)

	sinks := []sink.Sink{c.tsv}

	var archive bytes.Buffer
	var archiveTSV *sink.TSVWriter
	if c.storage != nil {
		archiveTSV = sink.NewTSVWriter(&archive, sink.WithHeader(true))
		sinks = append(sinks, archiveTSV)
	}

	var bw *elasticsearch.BulkWriter
	if c.es != nil && c.storage == nil {
		var err error
		bw, err = c.es.NewBulkWriter(ctx, spec.Name)
		if err != nil {
			return 0, nil, err
		}
		sinks = append(sinks, bw)
	}

	result, runErr := c.pipeline.Run(ctx, spec, sink.Multi(sinks...))

	indexed := 0
	if bw != nil {
		stats, err := bw.Close(ctx)
		indexed = stats.Indexed
		if err != nil {
			slog.Warn("bulk indexing failed", "conference", spec.Name, "error", err)
		}
		for _, e := range stats.Errors {
			fmt.Fprintf(c.status, "  Warning: %s\n", e)
		}
	}

	if err := c.tsv.Flush(); err != nil {
		return indexed, result, fmt.Errorf("failed to write output: %w", err)
	}
	if runErr != nil {
		if result != nil {
			fmt.Fprintf(c.status, "  Papers: %d, Failed: %d%s%s before the crawl stopped\n",
				result.Succeeded, result.Failed, formatKinds(result.ByKind), formatDropped(result.Dropped))
		}
		return indexed, result, runErr
	}

	fmt.Fprintf(c.status, "  Papers: %d, Failed: %d%s, Skipped indexes: %d, Duration: %v\n",
		result.Succeeded, result.Failed, formatKinds(result.ByKind), result.SkippedIndexes,
		result.Duration.Round(time.Millisecond))

	if archiveTSV == nil {
		return indexed, result, nil
	}

	if err := archiveTSV.Flush(); err != nil {
		return indexed, result, err
	}
	prefix, err := c.storage.ArchiveCrawl(ctx, storage.CrawlMetadata{
		Conference: spec.Name,
		IndexURL:   spec.IndexURL,
		Discovered: result.Discovered,
		Succeeded:  result.Succeeded,
		Failed:     result.Failed,
	}, archive.Bytes())
	if err != nil {
		return indexed, result, err
	}
	fmt.Fprintf(c.status, "  Archived: %s\n", prefix)

	if crawlEvents != nil {
		crawlEvents <- events.CrawlCompleteEvent{
			Bucket:     c.storage.Bucket(),
			Prefix:     prefix,
			Conference: spec.Name,
			Succeeded:  result.Succeeded,
			Failed:     result.Failed,
			Timestamp:  time.Now(),
		}
	} else {
		fmt.Fprintf(c.status, "  Run 'cvf-papers ingest --prefix %s' to index these papers\n", prefix)
	}

	return indexed, result, nil
}

// formatDropped renders records lost to a failed sink, e.g. ", 3 dropped".
func formatDropped(n int) string {
	if n == 0 {
		return ""
	}
	return fmt.Sprintf(", %d dropped", n)
}

// formatKinds renders failure counts per kind, e.g. " (network 2, parse 1)".
func formatKinds(byKind map[models.ErrorKind]int) string {
	if len(byKind) == 0 {
		return ""
	}
	kinds := make([]models.ErrorKind, 0, len(byKind))
	for k := range byKind {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)

	var buf strings.Builder
	buf.WriteString(" (")
	for i, k := range kinds {
		if i > 0 {
			buf.WriteString(", ")
		}
		fmt.Fprintf(&buf, "%s %d", k, byKind[k])
	}
	buf.WriteString(")")
	return buf.String()
}
