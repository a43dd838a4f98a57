// Package sink serialises paper records.
package sink

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/mfenderov/cvf-papers/pkg/models"
)

// Sink receives records one at a time.
type Sink interface {
	Write(p models.Paper) error
}

// TSVWriter writes one title\tauthors\tlink\tabstract line per record.
// It is safe for concurrent use.
type TSVWriter struct {
	mu      sync.Mutex
	w       *bufio.Writer
	header  bool
	started bool
	count   int
}

// TSVOption configures a TSVWriter.
type TSVOption func(*TSVWriter)

// WithHeader writes a column header line before the first record.
func WithHeader(enabled bool) TSVOption {
	return func(t *TSVWriter) {
		t.header = enabled
	}
}

// NewTSVWriter creates a TSVWriter on top of w.
func NewTSVWriter(w io.Writer, opts ...TSVOption) *TSVWriter {
	t := &TSVWriter{w: bufio.NewWriter(w)}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Write appends one record line.
func (t *TSVWriter) Write(p models.Paper) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.start(); err != nil {
		return err
	}
	if _, err := t.w.WriteString(p.TSVLine()); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	t.count++
	return nil
}

// Flush writes buffered lines to the underlying writer. The header is
// written even when no record was.
func (t *TSVWriter) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.start(); err != nil {
		return err
	}
	return t.w.Flush()
}

// Count returns the number of records written.
func (t *TSVWriter) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

func (t *TSVWriter) start() error {
	if t.started {
		return nil
	}
	t.started = true
	if !t.header {
		return nil
	}
	if _, err := t.w.WriteString(strings.Join(models.TSVHeader, "\t") + "\n"); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	return nil
}

// maxLineSize bounds a single TSV line; abstracts are a few KB at most.
const maxLineSize = 16 * 1024 * 1024

// ReadTSV parses records written by TSVWriter. A first line starting with
// the "title" column is treated as a header and its column names are used;
// otherwise columns are positional.
func ReadTSV(r io.Reader) ([]models.Paper, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	cols := map[string]int{"title": 0, "authors": 1, "link": 2, "abstract": 3}
	var papers []models.Paper
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")

		if lineNo == 1 && fields[0] == "title" {
			for i, name := range fields {
				cols[strings.TrimSpace(name)] = i
			}
			continue
		}

		get := func(name string) (string, error) {
			i := cols[name]
			if i >= len(fields) {
				return "", fmt.Errorf("%w: line %d: missing %s column (have %d columns)", models.ErrParse, lineNo, name, len(fields))
			}
			return fields[i], nil
		}

		var p models.Paper
		var err error
		if p.Title, err = get("title"); err != nil {
			return nil, err
		}
		if p.Authors, err = get("authors"); err != nil {
			return nil, err
		}
		if p.Link, err = get("link"); err != nil {
			return nil, err
		}
		if p.Abstract, err = get("abstract"); err != nil {
			return nil, err
		}
		papers = append(papers, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tsv: %w", err)
	}

	return papers, nil
}
