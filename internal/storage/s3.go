package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/mfenderov/cvf-papers/pkg/models"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	papersObject   = "papers.tsv"
	metadataObject = "metadata.json"
)

// Config holds S3/MinIO client configuration.
type Config struct {
	Endpoint        string // "localhost:9000" for MinIO
	Bucket          string // "cvf-papers"
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
}

// Client archives crawl output in an S3 bucket.
type Client struct {
	minioClient *minio.Client
	bucket      string
}

// New creates a new S3/MinIO client.
func New(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if config.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	minioClient, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &Client{
		minioClient: minioClient,
		bucket:      config.Bucket,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.minioClient.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}

	err = c.minioClient.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{})
	if err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// CrawlMetadata describes one archived conference crawl.
type CrawlMetadata struct {
	Conference string `json:"conference"`
	IndexURL   string `json:"index_url"`
	Timestamp  string `json:"timestamp"`
	Discovered int    `json:"discovered"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
}

// CrawlPrefix returns the object prefix for a crawl:
// crawls/{conference}/{timestamp}-{id}.
func CrawlPrefix(conference, timestamp, id string) string {
	return path.Join("crawls", conference, timestamp+"-"+id)
}

// ArchiveCrawl stores one conference's TSV output together with its
// metadata under a fresh crawl prefix and returns that prefix.
func (c *Client) ArchiveCrawl(ctx context.Context, meta CrawlMetadata, tsv []byte) (string, error) {
	now := time.Now().UTC()
	timestamp := now.Format("2006-01-02T15-04-05")
	shortID := models.GenerateDocumentID(fmt.Sprintf("%s-%d", meta.Conference, now.UnixNano()))[:8]
	prefix := CrawlPrefix(meta.Conference, timestamp, shortID)

	if meta.Timestamp == "" {
		meta.Timestamp = now.Format(time.RFC3339)
	}

	if err := c.PutPapers(ctx, prefix, tsv); err != nil {
		return "", err
	}
	if err := c.PutMetadata(ctx, prefix, meta); err != nil {
		return "", fmt.Errorf("failed to write metadata: %w", err)
	}

	slog.Info("crawl archived", "conference", meta.Conference, "prefix", prefix, "bytes", len(tsv))
	return prefix, nil
}

// PutPapers writes the crawl's TSV output.
func (c *Client) PutPapers(ctx context.Context, prefix string, tsv []byte) error {
	objectName := path.Join(prefix, papersObject)

	_, err := c.minioClient.PutObject(ctx, c.bucket, objectName, bytes.NewReader(tsv), int64(len(tsv)), minio.PutObjectOptions{
		ContentType: "text/tab-separated-values",
	})
	if err != nil {
		return fmt.Errorf("failed to put papers: %w", err)
	}
	return nil
}

// GetPapers reads the crawl's TSV output.
func (c *Client) GetPapers(ctx context.Context, prefix string) ([]byte, error) {
	objectName := path.Join(prefix, papersObject)

	object, err := c.minioClient.GetObject(ctx, c.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get papers: %w", err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, fmt.Errorf("failed to read papers: %w", err)
	}
	return data, nil
}

// PutMetadata writes the crawl metadata JSON to S3.
func (c *Client) PutMetadata(ctx context.Context, prefix string, meta CrawlMetadata) error {
	objectName := path.Join(prefix, metadataObject)

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	reader := bytes.NewReader(data)
	_, err = c.minioClient.PutObject(ctx, c.bucket, objectName, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("failed to put metadata: %w", err)
	}
	return nil
}

// GetMetadata reads the crawl metadata from S3.
func (c *Client) GetMetadata(ctx context.Context, prefix string) (*CrawlMetadata, error) {
	objectName := path.Join(prefix, metadataObject)

	object, err := c.minioClient.GetObject(ctx, c.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata: %w", err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var meta CrawlMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return &meta, nil
}

// ListCrawls returns the prefixes of all archived crawls of a conference,
// or of every conference when conference is empty.
func (c *Client) ListCrawls(ctx context.Context, conference string) ([]string, error) {
	listPrefix := "crawls/"
	if conference != "" {
		listPrefix = path.Join("crawls", conference) + "/"
	}
	var prefixes []string

	objectCh := c.minioClient.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{
		Prefix:    listPrefix,
		Recursive: true,
	})

	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", object.Err)
		}
		if strings.HasSuffix(object.Key, "/"+metadataObject) {
			prefixes = append(prefixes, path.Dir(object.Key))
		}
	}

	return prefixes, nil
}

// Bucket returns the bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}
