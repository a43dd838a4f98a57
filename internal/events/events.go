package events

import "time"

// CrawlCompleteEvent is sent when a conference crawl has been archived to S3.
type CrawlCompleteEvent struct {
	Bucket     string    // S3 bucket name (e.g., "cvf-papers")
	Prefix     string    // S3 prefix (e.g., "crawls/CVPR2023/2024-12-04T17-30-00-abc123")
	Conference string    // Conference identifier that was crawled
	Succeeded  int       // Records written
	Failed     int       // Detail pages that could not be fetched or parsed
	Timestamp  time.Time // When the crawl completed
}

// IngestionCompleteEvent is sent when an archived crawl has been indexed.
type IngestionCompleteEvent struct {
	Prefix      string        // S3 prefix that was ingested
	Conference  string        // Conference the records belong to
	DocsIndexed int           // Number of documents indexed
	Duration    time.Duration // How long ingestion took
	Errors      []string      // Any errors encountered (non-fatal)
	Err         error         // Set when ingestion could not run at all
}
