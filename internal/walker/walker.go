// Package walker turns a conference root index into the ordered,
// deduplicated sequence of its paper detail page URLs.
package walker

import (
	"context"
	"log/slog"

	"github.com/mfenderov/cvf-papers/internal/conference"
)

// Fetcher retrieves raw page content.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Stats summarises one walk.
type Stats struct {
	Emitted        int
	Duplicates     int
	SkippedIndexes int
}

// Walker enumerates detail page URLs. It keeps no state between walks, so
// walking the same conference twice yields the same sequence.
type Walker struct {
	fetcher Fetcher
	logger  *slog.Logger
}

// Option configures a Walker.
type Option func(*Walker)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Walker) {
		w.logger = logger
	}
}

// New creates a Walker that fetches index pages with f.
func New(f Fetcher, opts ...Option) *Walker {
	w := &Walker{fetcher: f}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w
}

// Walk calls emit for every distinct detail page URL of the conference,
// in index page order. An error from emit stops the walk.
func (w *Walker) Walk(ctx context.Context, spec conference.Spec, emit func(string) error) (Stats, error) {
	layout := LayoutFor(spec)
	seen := make(map[string]struct{})
	var stats Stats

	w.logger.Debug("walking index", "conference", spec.Name, "url", spec.IndexURL, "layout", layout.Name())

	skipped, err := layout.Walk(ctx, Env{Fetcher: w.fetcher, Logger: w.logger}, spec.IndexURL, func(link string) error {
		if _, dup := seen[link]; dup {
			stats.Duplicates++
			return nil
		}
		seen[link] = struct{}{}
		stats.Emitted++
		return emit(link)
	})
	stats.SkippedIndexes = skipped

	w.logger.Debug("index walk finished", "conference", spec.Name,
		"emitted", stats.Emitted, "duplicates", stats.Duplicates, "skipped_indexes", stats.SkippedIndexes)
	return stats, err
}

// Collect materialises the walk into a slice.
func (w *Walker) Collect(ctx context.Context, spec conference.Spec) ([]string, Stats, error) {
	var urls []string
	stats, err := w.Walk(ctx, spec, func(link string) error {
		urls = append(urls, link)
		return nil
	})
	return urls, stats, err
}

// Stream sends the walk into out, blocking while out is full. It does not
// close out.
func (w *Walker) Stream(ctx context.Context, spec conference.Spec, out chan<- string) (Stats, error) {
	return w.Walk(ctx, spec, func(link string) error {
		select {
		case out <- link:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}
