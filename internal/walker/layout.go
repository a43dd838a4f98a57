package walker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mfenderov/cvf-papers/internal/conference"
	"github.com/mfenderov/cvf-papers/internal/extractor"
)

// aggregateMarker identifies the "all papers" entry of a paginated root.
// Any sub-index URL containing it is skipped.
const aggregateMarker = "all"

// Env is what a Layout needs to walk an index.
type Env struct {
	Fetcher Fetcher
	Logger  *slog.Logger
}

// Layout enumerates the detail page URLs below a conference root index.
// Walk returns the number of sub-index pages it had to skip.
type Layout interface {
	Name() string
	Walk(ctx context.Context, env Env, indexURL string, emit func(string) error) (int, error)
}

// LayoutFor picks the layout matching the conference era.
func LayoutFor(spec conference.Spec) Layout {
	if spec.Paginated {
		return Paginated{}
	}
	return Flat{ListIndex: spec.ListIndex}
}

// Flat is the pre-2018 layout: the root page lists every paper.
type Flat struct {
	ListIndex int
}

func (Flat) Name() string { return conference.LayoutFlat }

func (l Flat) Walk(ctx context.Context, env Env, indexURL string, emit func(string) error) (int, error) {
	body, err := env.Fetcher.Fetch(ctx, indexURL)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch index: %w", err)
	}
	links, err := extractor.ExtractListLinks(body, indexURL, l.ListIndex)
	if err != nil {
		return 0, fmt.Errorf("failed to parse index %s: %w", indexURL, err)
	}
	for _, link := range links {
		if err := emit(link); err != nil {
			return 0, err
		}
	}
	return 0, nil
}

// Paginated is the 2018+ layout: the root page links to one sub-index per
// conference day plus an aggregate page that repeats all of them.
type Paginated struct{}

func (Paginated) Name() string { return conference.LayoutPaginated }

func (Paginated) Walk(ctx context.Context, env Env, indexURL string, emit func(string) error) (int, error) {
	body, err := env.Fetcher.Fetch(ctx, indexURL)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch index: %w", err)
	}
	days, err := extractor.ExtractSubIndexLinks(body, indexURL)
	if err != nil {
		return 0, fmt.Errorf("failed to parse index %s: %w", indexURL, err)
	}

	skipped := 0
	for _, dayURL := range days {
		if strings.Contains(dayURL, aggregateMarker) {
			env.Logger.Debug("skipping aggregate index", "url", dayURL)
			continue
		}
		if err := ctx.Err(); err != nil {
			return skipped, err
		}

		dayBody, err := env.Fetcher.Fetch(ctx, dayURL)
		if err != nil {
			env.Logger.Warn("skipping daily index", "url", dayURL, "error", err)
			skipped++
			continue
		}
		links, err := extractor.ExtractDetailLinks(dayBody, dayURL)
		if err != nil {
			env.Logger.Warn("skipping daily index", "url", dayURL, "error", err)
			skipped++
			continue
		}

		env.Logger.Debug("walked daily index", "url", dayURL, "papers", len(links))
		for _, link := range links {
			if err := emit(link); err != nil {
				return skipped, err
			}
		}
	}
	return skipped, nil
}
