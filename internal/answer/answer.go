package answer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mfenderov/cvf-papers/pkg/models"
)

// DefaultBatchSize is the number of prompts sent concurrently.
const DefaultBatchSize = 64

// Generator produces text for a single prompt.
type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Prompt builds the question prompt for one paper.
func Prompt(p models.Paper, question string) string {
	return p.Title + "\n" + p.Abstract + "\n\n" + question
}

// Answerer asks the same question about many papers.
type Answerer struct {
	gen       Generator
	batchSize int
	logger    *slog.Logger
}

// Option configures an Answerer.
type Option func(*Answerer)

// WithBatchSize sets how many prompts are in flight at once.
func WithBatchSize(n int) Option {
	return func(a *Answerer) {
		a.batchSize = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Answerer) {
		a.logger = l
	}
}

// New creates an Answerer.
func New(gen Generator, opts ...Option) (*Answerer, error) {
	if gen == nil {
		return nil, fmt.Errorf("generator is required")
	}

	a := &Answerer{
		gen:       gen,
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.batchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size must be positive, got %d", models.ErrConfiguration, a.batchSize)
	}
	return a, nil
}

// Answer returns one generated answer per paper, in input order. Batches run
// one after another; prompts inside a batch run concurrently. The first
// failure aborts the remaining work.
func (a *Answerer) Answer(ctx context.Context, question string, papers []models.Paper) ([]string, error) {
	answers := make([]string, len(papers))

	for start := 0; start < len(papers); start += a.batchSize {
		end := min(start+a.batchSize, len(papers))

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			g.Go(func() error {
				out, err := a.gen.Complete(gctx, Prompt(papers[i], question))
				if err != nil {
					return fmt.Errorf("failed to answer %q: %w", papers[i].Title, err)
				}
				answers[i] = out
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		a.logger.Debug("batch answered", "done", end, "total", len(papers))
	}

	return answers, nil
}

// WriteAnswers writes the question on the first line followed by the
// answers joined with newlines.
func WriteAnswers(w io.Writer, question string, answers []string) error {
	if _, err := io.WriteString(w, question+"\n"); err != nil {
		return err
	}
	_, err := io.WriteString(w, strings.Join(answers, "\n"))
	return err
}
