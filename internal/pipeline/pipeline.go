package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mfenderov/cvf-papers/internal/conference"
	"github.com/mfenderov/cvf-papers/internal/coordinator"
	"github.com/mfenderov/cvf-papers/internal/sink"
	"github.com/mfenderov/cvf-papers/internal/walker"
	"github.com/mfenderov/cvf-papers/pkg/models"
)

// Fetcher retrieves raw page content.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Config holds pipeline configuration.
type Config struct {
	Workers   int
	QueueSize int // buffered URLs between the walker and the workers
	Logger    *slog.Logger
}

// Result holds pipeline execution results for one conference.
type Result struct {
	Conference     string
	Discovered     int
	Duplicates     int
	SkippedIndexes int
	Succeeded      int // records accepted by the sink
	Failed         int
	Dropped        int // records lost to a sink failure
	ByKind         map[models.ErrorKind]int
	Duration       time.Duration
}

// Pipeline walks a conference index and crawls every paper it finds.
type Pipeline struct {
	config  Config
	fetcher Fetcher
	walker  *walker.Walker
}

// New creates a new Pipeline with the given configuration.
func New(fetcher Fetcher, config Config) (*Pipeline, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if config.Workers <= 0 {
		return nil, fmt.Errorf("%w: workers must be positive, got %d", models.ErrConfiguration, config.Workers)
	}
	if config.QueueSize < 0 {
		return nil, fmt.Errorf("%w: queue size must not be negative, got %d", models.ErrConfiguration, config.QueueSize)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Pipeline{
		config:  config,
		fetcher: fetcher,
		walker:  walker.New(fetcher, walker.WithLogger(config.Logger)),
	}, nil
}

// Run crawls one conference, streaming every record to out. Page-level
// failures are counted in the result. An error is returned when the root
// index cannot be walked or out fails; the result still reports what was
// crawled up to that point.
func (p *Pipeline) Run(ctx context.Context, spec conference.Spec, out sink.Sink) (*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	logger := p.config.Logger.With("conference", spec.Name)

	// A failing sink also stops the walker.
	guarded := sink.Func(func(paper models.Paper) error {
		if err := out.Write(paper); err != nil {
			cancel()
			return err
		}
		return nil
	})

	coord, err := coordinator.New(p.fetcher, guarded,
		coordinator.WithWorkers(p.config.Workers),
		coordinator.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	urls := make(chan string, p.config.QueueSize)
	var stats walker.Stats
	var walkErr error
	walkDone := make(chan struct{})

	go func() {
		defer close(walkDone)
		defer close(urls)
		stats, walkErr = p.walker.Stream(ctx, spec, urls)
	}()

	summary, sinkErr := coord.Run(ctx, urls)
	<-walkDone

	result := &Result{
		Conference:     spec.Name,
		Discovered:     stats.Emitted,
		Duplicates:     stats.Duplicates,
		SkippedIndexes: stats.SkippedIndexes,
		Succeeded:      summary.Succeeded,
		Failed:         summary.Failed,
		Dropped:        summary.Dropped,
		ByKind:         summary.ByKind,
		Duration:       time.Since(start),
	}

	logger.Info("conference crawled",
		"discovered", result.Discovered,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"dropped", result.Dropped,
		"skipped_indexes", result.SkippedIndexes,
		"duration", result.Duration)

	if sinkErr != nil {
		return result, sinkErr
	}
	if walkErr != nil {
		return result, fmt.Errorf("failed to walk %s: %w", spec.Name, walkErr)
	}
	return result, nil
}
