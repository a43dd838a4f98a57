// Package coordinator runs fetch+extract over a stream of detail page URLs
// with a fixed number of workers.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mfenderov/cvf-papers/internal/extractor"
	"github.com/mfenderov/cvf-papers/pkg/models"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the worker count used when none is configured.
const DefaultWorkers = 8

// Fetcher retrieves raw page content.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Sink receives successful records, one call at a time.
type Sink interface {
	Write(p models.Paper) error
}

// Outcome is the result of processing one detail page URL. Exactly one of
// Paper and Err is set.
type Outcome struct {
	URL   string
	Paper *models.Paper
	Err   error
}

// OK reports whether the outcome carries a record.
func (o Outcome) OK() bool { return o.Err == nil && o.Paper != nil }

// Kind classifies a failed outcome.
func (o Outcome) Kind() models.ErrorKind { return models.KindOf(o.Err) }

// Summary counts the outcomes of a run.
type Summary struct {
	Succeeded int // records accepted by the sink
	Failed    int
	Dropped   int // records extracted but not written because the sink failed
	ByKind    map[models.ErrorKind]int
	Duration  time.Duration
}

// Total is the number of URLs processed.
func (s Summary) Total() int { return s.Succeeded + s.Failed + s.Dropped }

// Coordinator dispatches URLs to a bounded worker pool and delivers
// outcomes in completion order.
type Coordinator struct {
	fetcher Fetcher
	sink    Sink
	workers int
	logger  *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithWorkers sets the number of concurrent fetches.
func WithWorkers(n int) Option {
	return func(c *Coordinator) {
		c.workers = n
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// New creates a Coordinator writing successful records to sink.
func New(fetcher Fetcher, sink Sink, opts ...Option) (*Coordinator, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	c := &Coordinator{
		fetcher: fetcher,
		sink:    sink,
		workers: DefaultWorkers,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.workers <= 0 {
		return nil, fmt.Errorf("%w: workers must be positive, got %d", models.ErrConfiguration, c.workers)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// Workers returns the pool size.
func (c *Coordinator) Workers() int { return c.workers }

// Stream processes every URL received from urls and sends one Outcome per
// URL on the returned channel, which is closed once urls is closed and all
// work has drained. The caller must drain the channel.
func (c *Coordinator) Stream(ctx context.Context, urls <-chan string) <-chan Outcome {
	results := make(chan Outcome, c.workers)

	var g errgroup.Group
	for i := 0; i < c.workers; i++ {
		g.Go(func() error {
			for u := range urls {
				results <- c.process(ctx, u)
			}
			return nil
		})
	}

	go func() {
		g.Wait()
		close(results)
	}()

	return results
}

// Run drains urls through the pool and writes every record to the sink.
// Per-page failures are counted, never returned. A sink error cancels the
// remaining fetches and is returned once the pool has drained; records
// extracted from then on are counted as dropped.
func (c *Coordinator) Run(ctx context.Context, urls <-chan string) (Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	summary := Summary{ByKind: make(map[models.ErrorKind]int)}
	var sinkErr error

	c.logger.Debug("crawl starting", "workers", c.workers)

	for o := range c.Stream(ctx, urls) {
		if !o.OK() {
			summary.Failed++
			summary.ByKind[o.Kind()]++
			if sinkErr == nil {
				c.logger.Warn("paper failed", "url", o.URL, "kind", o.Kind().String(), "error", o.Err)
			}
			continue
		}

		if sinkErr != nil {
			summary.Dropped++
			continue
		}
		if c.sink != nil {
			if err := c.sink.Write(*o.Paper); err != nil {
				sinkErr = fmt.Errorf("failed to write record: %w", err)
				summary.Dropped++
				c.logger.Error("sink write failed, cancelling crawl", "error", err)
				cancel()
				continue
			}
		}
		summary.Succeeded++
	}

	summary.Duration = time.Since(start)
	c.logger.Debug("crawl finished",
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"dropped", summary.Dropped,
		"duration", summary.Duration)

	return summary, sinkErr
}

func (c *Coordinator) process(ctx context.Context, pageURL string) Outcome {
	body, err := c.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return Outcome{URL: pageURL, Err: err}
	}
	paper, err := extractor.ExtractPaperRecord(body, pageURL)
	if err != nil {
		return Outcome{URL: pageURL, Err: fmt.Errorf("%s: %w", pageURL, err)}
	}
	c.logger.Debug("paper extracted", "url", pageURL, "title", paper.Title)
	return Outcome{URL: pageURL, Paper: &paper}
}
