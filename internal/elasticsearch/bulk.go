package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8/esutil"
	"github.com/mfenderov/cvf-papers/pkg/models"
)

// BulkStats reports the outcome of a bulk load.
type BulkStats struct {
	Added   int
	Indexed int
	Failed  int
	Errors  []string
}

// BulkWriter indexes papers of one conference in batches. Write queues a
// paper; Close flushes and reports what Elasticsearch accepted.
type BulkWriter struct {
	ctx        context.Context
	bi         esutil.BulkIndexer
	conference string
	crawledAt  time.Time

	mu       sync.Mutex
	failures []string
}

// NewBulkWriter starts a bulk indexer for the given conference. ctx bounds
// all queued writes.
func (c *Client) NewBulkWriter(ctx context.Context, conference string) (*BulkWriter, error) {
	b := &BulkWriter{
		ctx:        ctx,
		conference: conference,
		crawledAt:  time.Now().UTC(),
	}

	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client:        c.es,
		Index:         c.index,
		NumWorkers:    1,
		FlushBytes:    1 << 20,
		FlushInterval: 5 * time.Second,
		OnError: func(_ context.Context, err error) {
			b.recordError(fmt.Sprintf("bulk request failed: %v", err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bulk indexer: %w", err)
	}
	b.bi = bi

	return b, nil
}

// Write queues one paper for indexing.
func (b *BulkWriter) Write(p models.Paper) error {
	doc := models.NewPaperDocument(p, b.conference, b.crawledAt)
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	err = b.bi.Add(b.ctx, esutil.BulkIndexerItem{
		Action:     "index",
		DocumentID: doc.ID,
		Body:       bytes.NewReader(data),
		OnFailure: func(_ context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
			if err != nil {
				b.recordError(fmt.Sprintf("%s: %v", item.DocumentID, err))
				return
			}
			b.recordError(fmt.Sprintf("%s: %s: %s", item.DocumentID, res.Error.Type, res.Error.Reason))
		},
	})
	if err != nil {
		return fmt.Errorf("failed to queue document: %w", err)
	}
	return nil
}

// Close flushes pending documents and returns the load statistics.
func (b *BulkWriter) Close(ctx context.Context) (BulkStats, error) {
	err := b.bi.Close(ctx)
	s := b.bi.Stats()

	b.mu.Lock()
	defer b.mu.Unlock()

	stats := BulkStats{
		Added:   int(s.NumAdded),
		Indexed: int(s.NumIndexed),
		Failed:  int(s.NumFailed),
		Errors:  append([]string(nil), b.failures...),
	}
	slog.Debug("bulk load finished", "conference", b.conference,
		"added", stats.Added, "indexed", stats.Indexed, "failed", stats.Failed)

	if err != nil {
		return stats, fmt.Errorf("failed to flush bulk indexer: %w", err)
	}
	return stats, nil
}

func (b *BulkWriter) recordError(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = append(b.failures, msg)
}
