package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/mfenderov/cvf-papers/pkg/models"
)

// Config holds fetcher configuration.
type Config struct {
	UserAgent string
	Timeout   time.Duration     // bound on a whole request, including the body read
	Transport http.RoundTripper // optional, mainly for tests
	Logger    *slog.Logger      // defaults to slog.Default()
}

// Fetcher retrieves raw HTML pages. It never retries.
type Fetcher struct {
	config Config
	base   *colly.Collector
}

// New creates a new Fetcher with the given configuration.
func New(config Config) *Fetcher {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = "cvf-papers/1.0"
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	c := colly.NewCollector(
		colly.UserAgent(config.UserAgent),
		colly.AllowURLRevisit(),
	)

	// Clones share the HTTP backend, so these apply to every fetch.
	c.SetRequestTimeout(config.Timeout)
	if config.Transport != nil {
		c.WithTransport(config.Transport)
	}

	return &Fetcher{
		config: config,
		base:   c,
	}
}

// Fetch performs one GET and returns the response body. Every failure
// wraps models.ErrNetwork. Safe for concurrent use.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: GET %s: %w", models.ErrNetwork, pageURL, err)
	}

	c := f.base.Clone()
	c.Context = ctx

	var body []byte
	var status int

	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	f.config.Logger.Debug("fetching page", "url", pageURL)

	if err := c.Visit(pageURL); err != nil {
		if status != 0 {
			return nil, fmt.Errorf("%w: GET %s: status %d: %w", models.ErrNetwork, pageURL, status, err)
		}
		return nil, fmt.Errorf("%w: GET %s: %w", models.ErrNetwork, pageURL, err)
	}
	c.Wait()

	if body == nil {
		return nil, fmt.Errorf("%w: GET %s: no response", models.ErrNetwork, pageURL)
	}

	f.config.Logger.Debug("fetched page", "url", pageURL, "status", status, "size", len(body))
	return body, nil
}
